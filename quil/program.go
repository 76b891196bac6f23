package quil

import (
	"fmt"
	"strconv"
	"strings"
)

// Program accumulates the translated instructions of one circuit between
// flush boundaries. Measurements are deferred: the service requires them
// at the end of the program, so Accept only records the measured logical
// ids and Finalize appends the MEASURE instructions after everything else.
type Program struct {
	lines     []string
	measured  []int
	allocated map[int]struct{}
}

// NewProgram returns an empty accumulator.
func NewProgram() *Program {
	return &Program{allocated: make(map[int]struct{})}
}

// Accept translates op and appends it to the program. Allocation and
// deallocation emit nothing; allocation is tracked for capacity checks.
func (p *Program) Accept(op Op) error {
	switch op.Gate {
	case GateBarrier:
		// Barriers are stripped by the upstream engine chain. One reaching
		// the translator is a bug in that chain, not a runtime condition.
		panic("quil: barrier reached the translator")
	case GateFlush:
		panic("quil: flush is a circuit boundary, not a translatable op")
	case GateAllocate:
		p.allocated[op.Target] = struct{}{}
		return nil
	case GateDeallocate:
		return nil
	case GateMeasure:
		if op.Logical == nil {
			return &MissingLogicalTagError{Target: op.Target}
		}
		p.measured = append(p.measured, *op.Logical)
		return nil
	}

	if op.Gate == GateX && len(op.Controls) > 0 {
		switch len(op.Controls) {
		case 1:
			p.lines = append(p.lines, fmt.Sprintf("CNOT %d %d", op.Controls[0], op.Target))
			return nil
		case 2:
			p.lines = append(p.lines, fmt.Sprintf("CCNOT %d %d %d", op.Controls[0], op.Controls[1], op.Target))
			return nil
		}
		return &UnsupportedGateError{Gate: op.Gate, Controls: len(op.Controls)}
	}
	if len(op.Controls) >= 2 {
		return &UnsupportedGateError{Gate: op.Gate, Controls: len(op.Controls)}
	}

	spelled, err := spell(op)
	if err != nil {
		return err
	}
	if len(op.Controls) == 1 {
		p.lines = append(p.lines, fmt.Sprintf("CONTROLLED %s %d %d", spelled, op.Controls[0], op.Target))
	} else {
		p.lines = append(p.lines, fmt.Sprintf("%s %d", spelled, op.Target))
	}
	return nil
}

// spell renders the instruction name, including the parameter for
// rotation and phase gates.
func spell(op Op) (string, error) {
	if op.Gate.Parametrized() {
		return fmt.Sprintf("%s(%s)", op.Gate.Mnemonic(), formatParam(op.Param)), nil
	}
	switch op.Gate {
	case GateX, GateY, GateZ, GateH, GateT, GateTdag, GateS, GateSdag:
		return op.Gate.Mnemonic(), nil
	}
	return "", &UnsupportedGateError{Gate: op.Gate, Controls: len(op.Controls)}
}

func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Empty reports whether any instruction has been emitted.
func (p *Program) Empty() bool {
	return len(p.lines) == 0
}

// MeasuredQubits returns the logical ids measured so far, in stream order.
func (p *Program) MeasuredQubits() []int {
	return p.measured
}

// MaxAllocated returns the highest allocated physical id, and false when
// no qubit was allocated.
func (p *Program) MaxAllocated() (int, bool) {
	max, any := 0, false
	for id := range p.allocated {
		if !any || id > max {
			max = id
		}
		any = true
	}
	return max, any
}

// Finalize resolves each measured logical id to its physical position and
// appends the deferred MEASURE instructions, returning the complete
// program text. The accumulator itself is left untouched.
func (p *Program) Finalize(resolve func(logical int) (int, error)) (string, error) {
	lines := make([]string, 0, len(p.lines)+len(p.measured))
	lines = append(lines, p.lines...)
	for _, id := range p.measured {
		pos, err := resolve(id)
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("MEASURE %d [%d]", pos, pos))
	}
	return strings.Join(lines, "\n"), nil
}

// Reset discards all accumulated state.
func (p *Program) Reset() {
	p.lines = nil
	p.measured = nil
	p.allocated = make(map[int]struct{})
}
