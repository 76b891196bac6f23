package forest

import (
	"encoding/json"
	"fmt"

	"github.com/go-faster/jx"
)

// Wire types for the job API. Submission is a JSON payload wrapping the
// program text; a completed poll carries the result envelope with the
// measurement histogram.

type quilText struct {
	Quil string `json:"quil"`
}

type backendName struct {
	Name string `json:"name"`
}

type jobPayload struct {
	Quils      []quilText  `json:"quils"`
	Shots      int         `json:"shots"`
	MaxCredits int         `json:"maxCredits"`
	Backend    backendName `json:"backend"`
}

// jobID tolerates the service returning either a string or a numeric id.
type jobID string

func (j *jobID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*j = jobID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*j = jobID(n.String())
	return nil
}

type submitResponse struct {
	ID jobID `json:"id"`
}

type deviceStatusResponse struct {
	State       bool `json:"state"`
	LengthQueue int  `json:"lengthQueue"`
}

type pollResponse struct {
	Status struct {
		ID string `json:"id"`
	} `json:"status"`
	Quils []struct {
		Result json.RawMessage `json:"result"`
	} `json:"quils"`
}

// ready reports whether the response carries a result. Anything without
// one is the not-ready marker.
func (r *pollResponse) ready() bool {
	return len(r.Quils) > 0 && len(r.Quils[0].Result) > 0
}

type resultEnvelope struct {
	Date string `json:"date"`
	Data struct {
		Time   float64         `json:"time"`
		Counts json.RawMessage `json:"counts"`
	} `json:"data"`
}

// HistogramEntry is one measured bitstring and its occurrence count.
type HistogramEntry struct {
	Bitstring string
	Count     int
}

// Histogram holds measurement counts keyed by physical-qubit-ordered
// bitstrings, preserving the order in which the service reported them.
// The outcome-collapse walk downstream depends on that order, so it is
// kept explicit instead of using a Go map.
type Histogram struct {
	entries []HistogramEntry
}

// NewHistogram builds a histogram from entries in reporting order.
func NewHistogram(entries ...HistogramEntry) *Histogram {
	return &Histogram{entries: entries}
}

// Entries returns the counts in reporting order.
func (h *Histogram) Entries() []HistogramEntry {
	return h.entries
}

// Len returns the number of distinct states.
func (h *Histogram) Len() int {
	return len(h.entries)
}

// Total returns the sum of all counts.
func (h *Histogram) Total() int {
	t := 0
	for _, e := range h.entries {
		t += e.Count
	}
	return t
}

// parseHistogram decodes a JSON counts object in document order.
func parseHistogram(raw []byte) (*Histogram, error) {
	h := &Histogram{}
	d := jx.DecodeBytes(raw)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		n, err := d.Int()
		if err != nil {
			return fmt.Errorf("count for state %q is not an integer", key)
		}
		if n < 0 {
			return fmt.Errorf("count for state %q is negative", key)
		}
		for _, c := range key {
			if c != '0' && c != '1' {
				return fmt.Errorf("state %q is not a bitstring", key)
			}
		}
		h.entries = append(h.entries, HistogramEntry{Bitstring: key, Count: n})
		return nil
	}); err != nil {
		return nil, err
	}
	return h, nil
}

// ExecutionResult is a completed job's decoded result.
type ExecutionResult struct {
	JobID  string
	Date   string
	Time   float64
	Counts *Histogram
}

func decodeResult(jobID string, raw json.RawMessage) (*ExecutionResult, error) {
	var env resultEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &MalformedResultError{JobID: jobID, Reason: err.Error()}
	}
	if len(env.Data.Counts) == 0 {
		return nil, &MalformedResultError{JobID: jobID, Reason: "result carries no counts"}
	}
	h, err := parseHistogram(env.Data.Counts)
	if err != nil {
		return nil, &MalformedResultError{JobID: jobID, Reason: err.Error()}
	}
	return &ExecutionResult{JobID: jobID, Date: env.Date, Time: env.Data.Time, Counts: h}, nil
}
