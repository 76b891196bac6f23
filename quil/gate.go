// Gate-level model of the command stream accepted by the Forest backend.
// The gate set is a closed enumeration; the Quil spelling of each gate is
// derived from it exhaustively rather than through a lookup table.

package quil

import (
	"fmt"
	"strings"
)

// Gate identifies a gate kind in the incoming command stream.
type Gate int

const (
	GateX Gate = iota
	GateY
	GateZ
	GateH
	GateT
	GateTdag
	GateS
	GateSdag
	GateRx
	GateRy
	GateRz
	GatePhase
	GateMeasure
	GateAllocate
	GateDeallocate
	GateBarrier
	// GateFlush marks a circuit boundary. It is never translated; the
	// backend drains and submits the accumulated circuit when it sees one.
	GateFlush
)

// String returns the canonical gate name.
func (g Gate) String() string {
	switch g {
	case GateX:
		return "X"
	case GateY:
		return "Y"
	case GateZ:
		return "Z"
	case GateH:
		return "H"
	case GateT:
		return "T"
	case GateTdag:
		return "Tdag"
	case GateS:
		return "S"
	case GateSdag:
		return "Sdag"
	case GateRx:
		return "Rx"
	case GateRy:
		return "Ry"
	case GateRz:
		return "Rz"
	case GatePhase:
		return "Ph"
	case GateMeasure:
		return "Measure"
	case GateAllocate:
		return "Allocate"
	case GateDeallocate:
		return "Deallocate"
	case GateBarrier:
		return "Barrier"
	case GateFlush:
		return "Flush"
	}
	return fmt.Sprintf("Gate(%d)", int(g))
}

// Mnemonic returns the Quil spelling of the gate. Most gates upper-case
// their canonical name; the daggered gates and the phase gate are the
// enumerated exceptions.
func (g Gate) Mnemonic() string {
	switch g {
	case GateTdag:
		return "DAGGER T"
	case GateSdag:
		return "DAGGER S"
	case GatePhase:
		return "PHASE"
	}
	return strings.ToUpper(g.String())
}

// Parametrized reports whether the gate carries a rotation parameter.
func (g Gate) Parametrized() bool {
	switch g {
	case GateRx, GateRy, GateRz, GatePhase:
		return true
	}
	return false
}

// Op is one element of the command stream: a gate applied to a target
// qubit with up to two controls, a rotation parameter for parametrized
// gates, and, on measure ops only, the logical identity of the qubit
// before physical placement.
type Op struct {
	Gate     Gate
	Target   int
	Controls []int
	Param    float64
	Logical  *int
}

// NewOp builds a gate op on the given target with optional controls.
func NewOp(g Gate, target int, controls ...int) Op {
	return Op{Gate: g, Target: target, Controls: controls}
}

// NewRotation builds a parametrized gate op.
func NewRotation(g Gate, param float64, target int, controls ...int) Op {
	return Op{Gate: g, Target: target, Controls: controls, Param: param}
}

// NewMeasure builds a measure op carrying the qubit's logical identity.
func NewMeasure(target, logical int) Op {
	l := logical
	return Op{Gate: GateMeasure, Target: target, Logical: &l}
}

// NewAllocate builds an allocation marker for the given physical qubit.
func NewAllocate(target int) Op {
	return Op{Gate: GateAllocate, Target: target}
}

// NewDeallocate builds a deallocation marker.
func NewDeallocate(target int) Op {
	return Op{Gate: GateDeallocate, Target: target}
}

// NewFlush builds a circuit boundary marker.
func NewFlush() Op {
	return Op{Gate: GateFlush}
}

// Available reports whether the service can execute the op. X admits up
// to two controls (CNOT/CCNOT); the other fixed gates, the rotations and
// the bookkeeping ops are always admissible. Barriers are consumed
// upstream and the flush marker is a circuit boundary, so neither is
// submittable.
func Available(op Op) bool {
	switch op.Gate {
	case GateX:
		return len(op.Controls) <= 2
	case GateY, GateZ, GateH, GateT, GateTdag, GateS, GateSdag:
		return true
	case GateRx, GateRy, GateRz, GatePhase:
		return true
	case GateMeasure, GateAllocate, GateDeallocate:
		return true
	}
	return false
}

// UnsupportedGateError reports a gate/control combination the translator
// cannot express. The availability predicate should prevent these from
// entering the stream; the translator still rejects them.
type UnsupportedGateError struct {
	Gate     Gate
	Controls int
}

func (e *UnsupportedGateError) Error() string {
	return fmt.Sprintf("quil: unsupported gate %s with %d controls", e.Gate, e.Controls)
}

// MissingLogicalTagError reports a measure op that arrived without the
// logical identity of the measured qubit.
type MissingLogicalTagError struct {
	Target int
}

func (e *MissingLogicalTagError) Error() string {
	return fmt.Sprintf("quil: measurement on qubit %d carries no logical qubit tag", e.Target)
}
