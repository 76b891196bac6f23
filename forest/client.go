// Client for the remote job lifecycle: device availability checks, job
// submission, polling with backoff, and re-attachment to previously
// submitted jobs.

package forest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// DefaultAPIURL is the public job endpoint.
	DefaultAPIURL = "https://job.rigetti.com/beta/"
	// MaxShots is the largest shot count the service accepts per job.
	MaxShots = 8192
	// DefaultMaxCredits caps the execution credits a job may consume.
	DefaultMaxCredits = 5
)

// Credentials authenticate API calls. Obtaining and persisting them is
// the caller's concern.
type Credentials struct {
	UserID string
	Token  string
}

// JobSubmission describes one job. It is immutable once sent.
type JobSubmission struct {
	Program     string
	Shots       int
	MaxCredits  int
	Device      Device
	Credentials Credentials
}

// DeviceStatus reports a device's availability and queue depth.
type DeviceStatus struct {
	Online      bool
	QueueLength int
}

// ClientConfig configures a Client. Zero values fall back to defaults.
type ClientConfig struct {
	APIURL     string
	HTTPClient *http.Client
	Backoff    BackoffConfig
}

// Client talks to the job API. All calls are blocking and synchronous;
// the polling loop sleeps between attempts and terminates only on a
// result, an offline device, or ctx cancellation.
type Client struct {
	base    string
	http    *http.Client
	backoff BackoffConfig

	// sleep waits between polls; injectable so tests can drive the
	// backoff and offline paths without real delays.
	sleep func(context.Context, time.Duration) error
}

// NewClient builds a client from cfg.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		base:    cfg.APIURL,
		http:    cfg.HTTPClient,
		backoff: cfg.Backoff,
		sleep:   sleepContext,
	}
	if c.base == "" {
		c.base = DefaultAPIURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.backoff == (BackoffConfig{}) {
		c.backoff = DefaultBackoff()
	}
	return c
}

func (c *Client) endpoint(path string) string {
	return c.base + path
}

// CheckDevice queries the device's availability and queue depth.
func (c *Client) CheckDevice(ctx context.Context, device Device) (DeviceStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("devices/"+url.PathEscape(string(device))), nil)
	if err != nil {
		return DeviceStatus{}, &TransportError{Op: "check device", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return DeviceStatus{}, &TransportError{Op: "check device", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DeviceStatus{}, &TransportError{Op: "check device", Err: errors.Errorf("unexpected status %s", resp.Status)}
	}
	var body deviceStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return DeviceStatus{}, &TransportError{Op: "check device", Err: errors.Wrap(err, "decode status")}
	}
	return DeviceStatus{Online: body.State, QueueLength: body.LengthQueue}, nil
}

// Submit checks the device and posts the job, returning the job id
// assigned by the service. It does not wait for completion.
func (c *Client) Submit(ctx context.Context, sub JobSubmission) (string, error) {
	if !sub.Device.Known() {
		return "", errors.Errorf("forest: unknown device %q, known devices: %v", sub.Device, Devices())
	}
	status, err := c.CheckDevice(ctx, sub.Device)
	if err != nil {
		return "", err
	}
	if !status.Online {
		return "", &DeviceOfflineError{Device: sub.Device}
	}
	zap.L().Debug("device online",
		zap.String("device", string(sub.Device)),
		zap.Int("queue_length", status.QueueLength))

	shots := sub.Shots
	if shots > MaxShots {
		zap.L().Warn("shot count exceeds the service maximum, clamping",
			zap.Int("requested", sub.Shots),
			zap.Int("max", MaxShots))
		shots = MaxShots
	}
	maxCredits := sub.MaxCredits
	if maxCredits == 0 {
		maxCredits = DefaultMaxCredits
	}

	payload := jobPayload{
		Quils:      []quilText{{Quil: sub.Program}},
		Shots:      shots,
		MaxCredits: maxCredits,
		Backend:    backendName{Name: string(sub.Device)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &TransportError{Op: "submit", Err: errors.Wrap(err, "encode payload")}
	}

	q := url.Values{}
	q.Set("access_token", sub.Credentials.Token)
	q.Set("deviceRunType", string(sub.Device))
	q.Set("fromCache", "false")
	q.Set("shots", strconv.Itoa(shots))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("Jobs")+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Op: "submit", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &TransportError{Op: "submit", Err: errors.Errorf("unexpected status %s", resp.Status)}
	}
	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", &TransportError{Op: "submit", Err: errors.Wrap(err, "decode response")}
	}
	if sr.ID == "" {
		return "", &TransportError{Op: "submit", Err: errors.New("response carries no job id")}
	}
	zap.L().Info("job submitted",
		zap.String("job_id", string(sr.ID)),
		zap.String("device", string(sub.Device)),
		zap.Int("shots", shots))
	return string(sr.ID), nil
}

// Poll makes a single result attempt. It returns (nil, nil) while the
// job is still pending; the retry loop belongs to the caller.
func (c *Client) Poll(ctx context.Context, jobID string, creds Credentials) (*ExecutionResult, error) {
	q := url.Values{}
	q.Set("access_token", creds.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("Jobs/"+url.PathEscape(jobID))+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &TransportError{Op: "poll", JobID: jobID, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "poll", JobID: jobID, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: "poll", JobID: jobID, Err: errors.Errorf("unexpected status %s", resp.Status)}
	}
	var pr pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, &TransportError{Op: "poll", JobID: jobID, Err: errors.Wrap(err, "decode response")}
	}
	if !pr.ready() {
		return nil, nil
	}
	return decodeResult(jobID, pr.Quils[0].Result)
}

// Run submits the job and polls until it completes, the device goes
// offline, or ctx is cancelled. There is no attempt ceiling here;
// bounded waits are the caller's policy, imposed through ctx.
func (c *Client) Run(ctx context.Context, sub JobSubmission) (*ExecutionResult, error) {
	jobID, err := c.Submit(ctx, sub)
	if err != nil {
		return nil, err
	}
	return c.await(ctx, sub.Device, jobID, sub.Credentials)
}

// Retrieve re-attaches to a previously submitted job and polls it with
// the same contract as Run.
func (c *Client) Retrieve(ctx context.Context, device Device, jobID string, creds Credentials) (*ExecutionResult, error) {
	zap.L().Info("re-attaching to job",
		zap.String("job_id", jobID),
		zap.String("device", string(device)))
	return c.await(ctx, device, jobID, creds)
}

func (c *Client) await(ctx context.Context, device Device, jobID string, creds Credentials) (*ExecutionResult, error) {
	wait := c.backoff.Initial
	for {
		res, err := c.Poll(ctx, jobID, creds)
		if err != nil {
			return nil, err
		}
		if res != nil {
			zap.L().Info("job finished",
				zap.String("job_id", jobID),
				zap.Int("states", res.Counts.Len()))
			return res, nil
		}
		// A queued job can outlive its device: a fresh status check wins
		// over "not ready".
		status, err := c.CheckDevice(ctx, device)
		if err != nil {
			return nil, err
		}
		if !status.Online {
			return nil, &DeviceOfflineError{Device: device, JobID: jobID}
		}
		zap.L().Debug("job pending",
			zap.String("job_id", jobID),
			zap.Int("queue_length", status.QueueLength),
			zap.Duration("wait", wait))
		if err := c.sleep(ctx, wait); err != nil {
			return nil, errors.Wrapf(err, "abandoned job %s; re-attach with the job id", jobID)
		}
		wait = c.backoff.Next(wait)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
