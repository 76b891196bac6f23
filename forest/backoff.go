package forest

import "time"

// BackoffConfig controls the delay between unsuccessful polls. The delay
// starts at Initial and is multiplied by Factor after each attempt,
// capped at Max.
type BackoffConfig struct {
	Initial time.Duration
	Factor  float64
	Max     time.Duration
}

// DefaultBackoff is the polling cadence used when none is configured.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Factor: 2, Max: 30 * time.Second}
}

// Next returns the delay following cur.
func (b BackoffConfig) Next(cur time.Duration) time.Duration {
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	next := time.Duration(float64(cur) * factor)
	if b.Max > 0 && next > b.Max {
		next = b.Max
	}
	return next
}
