package forest

import "fmt"

// DeviceOfflineError is terminal: the target device is not accepting or
// finishing jobs. JobID is set when the job was already submitted, so the
// caller can re-attach later with Retrieve.
type DeviceOfflineError struct {
	Device Device
	JobID  string
}

func (e *DeviceOfflineError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("forest: device %s is offline", e.Device)
	}
	return fmt.Sprintf("forest: device %s went offline while job %s was queued; re-attach with the job id once it is back", e.Device, e.JobID)
}

// TransportError is a network or protocol failure during a submit or
// poll call. It is surfaced to the orchestrator, never retried here.
type TransportError struct {
	Op    string
	JobID string
	Err   error
}

func (e *TransportError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("forest: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("forest: %s (job %s): %v", e.Op, e.JobID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedResultError reports a result payload that could not be decoded
// into a histogram.
type MalformedResultError struct {
	JobID  string
	Reason string
}

func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("forest: malformed result for job %s: %s", e.JobID, e.Reason)
}
