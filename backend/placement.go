package backend

import "fmt"

// MappingProvider exposes the logical to physical qubit mapping owned by
// the external allocation engine. The table is read-only here and only
// stable after a flush.
type MappingProvider interface {
	CurrentMapping() map[int]int
}

// MappingTable is a plain mapping literal usable as a MappingProvider.
type MappingTable map[int]int

func (m MappingTable) CurrentMapping() map[int]int {
	return m
}

// UnknownQubitError reports a logical qubit absent from the current
// mapping. A miss is a hard error: it means the qubit was eliminated
// before it was referenced.
type UnknownQubitError struct {
	ID int
}

func (e *UnknownQubitError) Error() string {
	return fmt.Sprintf("backend: unknown qubit id %d; make sure the circuit was flushed and the qubit was not eliminated during optimization", e.ID)
}

// PlacementResolver resolves logical qubit ids to their physical
// placement through the externally owned mapping. Pure lookup, no
// caching.
type PlacementResolver struct {
	provider MappingProvider
}

// NewPlacementResolver wraps the mapping provider.
func NewPlacementResolver(p MappingProvider) *PlacementResolver {
	return &PlacementResolver{provider: p}
}

// Resolve returns the physical position of the given logical qubit.
func (r *PlacementResolver) Resolve(logical int) (int, error) {
	pos, ok := r.provider.CurrentMapping()[logical]
	if !ok {
		return 0, &UnknownQubitError{ID: logical}
	}
	return pos, nil
}
