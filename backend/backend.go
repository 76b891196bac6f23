// The backend translates a gate command stream into a Quil program,
// drives the remote job lifecycle, and reconstructs per-qubit outcomes
// and probability distributions under the logical to physical qubit
// renaming imposed by the external mapper.

package backend

import (
	"context"
	"math/rand"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quforge/forestq/forest"
	"github.com/quforge/forestq/quil"
)

// DefaultShots is the number of runs collected when none is configured.
const DefaultShots = 1024

// JobRunner is the slice of the forest client the backend drives. Tests
// substitute a fake.
type JobRunner interface {
	Run(ctx context.Context, sub forest.JobSubmission) (*forest.ExecutionResult, error)
	Retrieve(ctx context.Context, device forest.Device, jobID string, creds forest.Credentials) (*forest.ExecutionResult, error)
}

// MeasurementSink receives one bit per measured logical qubit after a
// run completes.
type MeasurementSink interface {
	SetMeasurementResult(logicalID, bit int)
}

// Config configures a Backend.
type Config struct {
	// UseHardware selects the configured hardware device; otherwise the
	// virtual machine runs the circuit.
	UseHardware bool
	Device      forest.Device
	Shots       int
	Credentials forest.Credentials
	// RetrieveExecution re-attaches to an existing job id instead of
	// submitting, e.g. after a previous run was abandoned mid-poll.
	RetrieveExecution string
	// Rand supplies the single uniform draw per run used to collapse the
	// measured outcome. Defaults to math/rand.
	Rand func() float64
}

// Backend owns the translation state of the current circuit and the
// probability table of the last completed run. One circuit is processed
// to completion before any network interaction begins, and at most one
// job is in flight per circuit execution.
type Backend struct {
	client   JobRunner
	resolver *PlacementResolver
	sink     MeasurementSink

	device      forest.Device
	shots       int
	creds       forest.Credentials
	retrieveJob string
	randFloat   func() float64

	prog  *quil.Program
	clear bool
	probs []stateProb
}

// New wires a backend. mapper is the externally owned qubit mapping and
// sink receives the collapsed measurement outcomes.
func New(client JobRunner, mapper MappingProvider, sink MeasurementSink, cfg Config) *Backend {
	device := forest.DeviceQVM
	if cfg.UseHardware {
		device = cfg.Device
		if device == "" {
			device = forest.DeviceAgave
		}
	}
	shots := cfg.Shots
	if shots <= 0 {
		shots = DefaultShots
	}
	if shots > forest.MaxShots {
		// the service caps the job at MaxShots; clamping here keeps
		// count/shots a true probability during reconstruction
		shots = forest.MaxShots
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	return &Backend{
		client:      client,
		resolver:    NewPlacementResolver(mapper),
		sink:        sink,
		device:      device,
		shots:       shots,
		creds:       cfg.Credentials,
		retrieveJob: cfg.RetrieveExecution,
		randFloat:   rnd,
		prog:        quil.NewProgram(),
		clear:       true,
	}
}

// IsAvailable reports whether the op can be executed on the service.
func (b *Backend) IsAvailable(op quil.Op) bool {
	return quil.Available(op)
}

// Device returns the execution target.
func (b *Backend) Device() forest.Device {
	return b.device
}

// Receive consumes a slice of the command stream. A flush op drains the
// accumulated circuit, runs it remotely, and resets for the next
// circuit. A translation error aborts the current circuit; its state is
// undefined until the next flush.
func (b *Backend) Receive(ctx context.Context, ops ...quil.Op) error {
	for _, op := range ops {
		if op.Gate == quil.GateFlush {
			err := b.run(ctx)
			b.prog.Reset()
			b.clear = true
			if err != nil {
				return err
			}
			continue
		}
		if err := b.store(op); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) store(op quil.Op) error {
	if b.clear {
		b.probs = nil
		b.prog.Reset()
		b.clear = false
	}
	return b.prog.Accept(op)
}

func (b *Backend) run(ctx context.Context) error {
	if b.prog.Empty() {
		return nil
	}
	program, err := b.prog.Finalize(b.resolver.Resolve)
	if err != nil {
		return err
	}
	if err := b.checkCapacity(); err != nil {
		return err
	}

	log := zap.L().With(
		zap.String("run_id", uuid.NewString()),
		zap.String("device", string(b.device)))
	log.Info("running circuit", zap.Int("shots", b.shots))

	var res *forest.ExecutionResult
	if b.retrieveJob == "" {
		res, err = b.client.Run(ctx, forest.JobSubmission{
			Program:     program,
			Shots:       b.shots,
			Device:      b.device,
			Credentials: b.creds,
		})
	} else {
		res, err = b.client.Retrieve(ctx, b.device, b.retrieveJob, b.creds)
	}
	if err != nil {
		return err
	}
	return b.loadResult(res, log)
}

// checkCapacity rejects circuits that allocate qubits beyond the
// device's register.
func (b *Backend) checkCapacity() error {
	max, any := b.prog.MaxAllocated()
	if !any {
		return nil
	}
	limit := b.device.Qubits()
	if limit > 0 && max >= limit {
		return errors.Errorf("backend: circuit allocates qubit %d but device %s has %d qubits", max, b.device, limit)
	}
	return nil
}

// loadResult converts the histogram into the probability table, collapses
// one concrete outcome, and delivers its bits to the sink.
func (b *Backend) loadResult(res *forest.ExecutionResult, log *zap.Logger) error {
	// One draw per run; the walk below is the only nondeterministic step
	// in the pipeline. States are visited in the order the service
	// reported them, which fixes the tie-break at equal cumulative mass.
	p := b.randFloat()
	pSum := 0.0
	measured := ""
	for _, e := range res.Counts.Entries() {
		prob := float64(e.Count) / float64(b.shots)
		state := reverseBits(e.Bitstring)
		pSum += prob
		if measured == "" && pSum >= p {
			measured = state
		}
		b.probs = append(b.probs, stateProb{state: state, prob: prob})
		log.Debug("reconstructed state",
			zap.String("state", state),
			zap.Float64("probability", prob))
	}
	if measured == "" && len(b.probs) > 0 {
		// Rounding can leave the accumulated mass a hair under the draw.
		measured = b.probs[len(b.probs)-1].state
	}

	for _, logical := range b.prog.MeasuredQubits() {
		pos, err := b.resolver.Resolve(logical)
		if err != nil {
			return err
		}
		bit := 0
		if pos < len(measured) && measured[pos] == '1' {
			bit = 1
		}
		if b.sink != nil {
			b.sink.SetMeasurementResult(logical, bit)
		}
	}
	log.Info("run complete",
		zap.String("job_id", res.JobID),
		zap.String("outcome", measured))
	return nil
}

// GetProbabilities projects the last run's probability table onto the
// supplied qubit register: the left-most bit of each reported state
// corresponds to the first qubit in the register. It fails before any
// run has completed, and for qubits that were not present in the
// executed circuit.
func (b *Backend) GetProbabilities(register []int) (map[string]float64, error) {
	if len(b.probs) == 0 {
		return nil, &NoDataError{}
	}
	out := make(map[string]float64, len(b.probs))
	for _, sp := range b.probs {
		mapped := make([]byte, len(register))
		for i, q := range register {
			pos, err := b.resolver.Resolve(q)
			if err != nil {
				return nil, err
			}
			if pos >= len(sp.state) {
				return nil, &UnknownQubitError{ID: q}
			}
			mapped[i] = sp.state[pos]
		}
		out[string(mapped)] = sp.prob
	}
	return out, nil
}
