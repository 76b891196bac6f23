package backend

// NoDataError reports a probability query before any completed run.
type NoDataError struct{}

func (e *NoDataError) Error() string {
	return "backend: no data available; run the circuit first"
}

// stateProb is one reconstructed state and its probability, in the order
// the service reported it. The order matters: the outcome-collapse walk
// and projection collisions both follow it.
type stateProb struct {
	state string
	prob  float64
}

// reverseBits flips the service's fixed reporting order into the
// physical-index convention used internally.
func reverseBits(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
