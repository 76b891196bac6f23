package forest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves the device status, submit and poll endpoints, recording
// what the client sent. Device checks pop from onlineSeq; the last state
// repeats once the sequence is exhausted. Polls report pending until
// pendingPolls attempts have been made, then serve resultJSON.
type fakeAPI struct {
	t *testing.T

	onlineSeq    []bool
	pendingPolls int
	resultJSON   string

	mu          sync.Mutex
	checks      int
	polls       int
	submits     []jobPayload
	submitQuery url.Values
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/devices/"):
		online := f.onlineSeq[len(f.onlineSeq)-1]
		if f.checks < len(f.onlineSeq) {
			online = f.onlineSeq[f.checks]
		}
		f.checks++
		fmt.Fprintf(w, `{"state": %t, "lengthQueue": 3}`, online)

	case r.Method == http.MethodPost && r.URL.Path == "/Jobs":
		var payload jobPayload
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&payload))
		f.submits = append(f.submits, payload)
		f.submitQuery = r.URL.Query()
		fmt.Fprint(w, `{"id": "test-job"}`)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/Jobs/"):
		f.polls++
		if f.polls <= f.pendingPolls {
			fmt.Fprint(w, `{"status": {"id": "test-job"}, "quils": [{}]}`)
			return
		}
		fmt.Fprintf(w, `{"status": {"id": "test-job"}, "quils": [{"result": %s}]}`, f.resultJSON)

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, api *fakeAPI) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c := NewClient(ClientConfig{
		APIURL:  srv.URL + "/",
		Backoff: BackoffConfig{Initial: 10 * time.Millisecond, Factor: 2, Max: time.Second},
	})
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

const sampleResult = `{"date": "2018-02-05", "data": {"time": 12.5, "counts": {"00111": 396, "00101": 27, "00000": 601}}}`

func TestClientRunLifecycle(t *testing.T) {
	api := &fakeAPI{t: t, onlineSeq: []bool{true}, pendingPolls: 2, resultJSON: sampleResult}
	c, sleeps := newTestClient(t, api)

	res, err := c.Run(context.Background(), JobSubmission{
		Program:     "H 0\nMEASURE 0 [0]",
		Shots:       1024,
		Device:      DeviceAgave,
		Credentials: Credentials{Token: "tok"},
	})
	require.NoError(t, err)

	require.Len(t, api.submits, 1)
	payload := api.submits[0]
	require.Len(t, payload.Quils, 1)
	assert.Equal(t, "H 0\nMEASURE 0 [0]", payload.Quils[0].Quil)
	assert.Equal(t, 1024, payload.Shots)
	assert.Equal(t, DefaultMaxCredits, payload.MaxCredits)
	assert.Equal(t, "8Q-Agave", payload.Backend.Name)

	assert.Equal(t, "tok", api.submitQuery.Get("access_token"))
	assert.Equal(t, "8Q-Agave", api.submitQuery.Get("deviceRunType"))
	assert.Equal(t, "false", api.submitQuery.Get("fromCache"))
	assert.Equal(t, "1024", api.submitQuery.Get("shots"))

	assert.Equal(t, 3, api.polls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *sleeps)

	assert.Equal(t, "test-job", res.JobID)
	assert.Equal(t, "2018-02-05", res.Date)
	assert.Equal(t, []HistogramEntry{
		{Bitstring: "00111", Count: 396},
		{Bitstring: "00101", Count: 27},
		{Bitstring: "00000", Count: 601},
	}, res.Counts.Entries())
}

func TestClientSubmitUnknownDevice(t *testing.T) {
	api := &fakeAPI{t: t, onlineSeq: []bool{true}}
	c, _ := newTestClient(t, api)

	_, err := c.Submit(context.Background(), JobSubmission{Device: Device("3Q-Maple"), Shots: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3Q-Maple")
	assert.Zero(t, api.checks, "an off-catalog device must be rejected before any network call")
	assert.Empty(t, api.submits)
}

func TestClientSubmitDeviceOffline(t *testing.T) {
	api := &fakeAPI{t: t, onlineSeq: []bool{false}}
	c, _ := newTestClient(t, api)

	_, err := c.Submit(context.Background(), JobSubmission{Device: DeviceAcorn, Shots: 10})
	var offline *DeviceOfflineError
	require.ErrorAs(t, err, &offline)
	assert.Equal(t, DeviceAcorn, offline.Device)
	assert.Empty(t, offline.JobID)
	assert.Empty(t, api.submits, "job must not be posted to an offline device")
}

func TestClientRunDeviceGoesOffline(t *testing.T) {
	api := &fakeAPI{t: t, onlineSeq: []bool{true, false}, pendingPolls: 10, resultJSON: sampleResult}
	c, sleeps := newTestClient(t, api)

	_, err := c.Run(context.Background(), JobSubmission{Device: DeviceAgave, Shots: 10})
	var offline *DeviceOfflineError
	require.ErrorAs(t, err, &offline)
	assert.Equal(t, DeviceAgave, offline.Device)
	assert.Equal(t, "test-job", offline.JobID)
	assert.Equal(t, 1, api.polls)
	assert.Empty(t, *sleeps)
}

func TestClientRunMalformedResult(t *testing.T) {
	api := &fakeAPI{t: t, onlineSeq: []bool{true}, resultJSON: `{"data": {"counts": {"01": -2}}}`}
	c, _ := newTestClient(t, api)

	_, err := c.Run(context.Background(), JobSubmission{Device: DeviceAgave, Shots: 10})
	var malformed *MalformedResultError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "test-job", malformed.JobID)
}

func TestClientSubmitClampsShots(t *testing.T) {
	api := &fakeAPI{t: t, onlineSeq: []bool{true}}
	c, _ := newTestClient(t, api)

	_, err := c.Submit(context.Background(), JobSubmission{Device: DeviceQVM, Shots: 10000})
	require.NoError(t, err)
	require.Len(t, api.submits, 1)
	assert.Equal(t, MaxShots, api.submits[0].Shots)
	assert.Equal(t, "8192", api.submitQuery.Get("shots"))
}

func TestClientPollSingleAttempt(t *testing.T) {
	api := &fakeAPI{t: t, onlineSeq: []bool{true}, pendingPolls: 1, resultJSON: sampleResult}
	c, _ := newTestClient(t, api)

	res, err := c.Poll(context.Background(), "test-job", Credentials{})
	require.NoError(t, err)
	assert.Nil(t, res, "pending job must not be an error")

	res, err = c.Poll(context.Background(), "test-job", Credentials{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "test-job", res.JobID)
}

func TestClientRetrieve(t *testing.T) {
	api := &fakeAPI{t: t, onlineSeq: []bool{true}, pendingPolls: 1, resultJSON: sampleResult}
	c, sleeps := newTestClient(t, api)

	res, err := c.Retrieve(context.Background(), DeviceAgave, "test-job", Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "test-job", res.JobID)
	assert.Empty(t, api.submits, "re-attach must not submit a new job")
	assert.Len(t, *sleeps, 1)
}

func TestClientRunCancelledMidPoll(t *testing.T) {
	api := &fakeAPI{t: t, onlineSeq: []bool{true}, pendingPolls: 1000, resultJSON: sampleResult}
	c, _ := newTestClient(t, api)
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	_, err := c.Run(context.Background(), JobSubmission{Device: DeviceAgave, Shots: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "test-job", "error must carry the job id for re-attachment")
}

func TestClientTransportErrorOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(ClientConfig{APIURL: srv.URL + "/"})
	_, err := c.CheckDevice(context.Background(), DeviceAgave)
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, "check device", transport.Op)
}

func TestClientTransportErrorOnConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient(ClientConfig{APIURL: srv.URL + "/"})
	_, err := c.Submit(context.Background(), JobSubmission{Device: DeviceAgave})
	var transport *TransportError
	assert.ErrorAs(t, err, &transport)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(ClientConfig{})
	assert.Equal(t, DefaultAPIURL, c.base)
	assert.Equal(t, 30*time.Second, c.http.Timeout)
	assert.Equal(t, DefaultBackoff(), c.backoff)
}
