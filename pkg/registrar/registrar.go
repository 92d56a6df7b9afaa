// Copyright 2025 Certen Protocol

// Package registrar implements the Registrum subsystem: an append-only
// graph of registered domain states. It shares the event store's
// discipline (pkg/eventstore) — entries are assigned a strictly
// increasing OrderIndex and are never rewritten — but carries a
// structural parent/child relationship instead of a hash chain, since its
// output feeds the Global State Hash (pkg/gsh) as a plain ordered
// snapshot rather than its own integrity chain.
package registrar

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RegisteredState is one append-only node in the Registrum graph.
type RegisteredState struct {
	ID           string                 `json:"id"`
	Structure    string                 `json:"structure"`
	Data         map[string]interface{} `json:"data"`
	OrderIndex   int64                  `json:"orderIndex"`
	ParentID     string                 `json:"parentId,omitempty"`
	RegisteredAt time.Time              `json:"registeredAt"`
}

// Invariant is a named structural rule the registrar enforces on every
// Register call. The zero set (no invariants configured) only enforces
// the base append-only/parent-exists contract.
type Invariant string

const (
	// InvariantUniqueStructurePerParent rejects a second child of the same
	// Structure under one parent.
	InvariantUniqueStructurePerParent Invariant = "unique_structure_per_parent"
)

// Snapshot is the registrar's entire state as a value object: its ordered
// list of states plus the mode and invariant set it was built under. This
// is what pkg/gsh hashes as the Registrum subsystem.
type Snapshot struct {
	Mode       string            `json:"mode"`
	Invariants []Invariant       `json:"invariants"`
	States     []RegisteredState `json:"states"`
}

// Registrar is an in-memory, append-only state graph.
type Registrar struct {
	mu         sync.RWMutex
	mode       string
	invariants map[Invariant]struct{}
	states     []RegisteredState
	byID       map[string]RegisteredState
	childKeys  map[string]struct{} // parentID + "/" + structure, for InvariantUniqueStructurePerParent
}

// New constructs an empty Registrar. mode is an opaque label carried into
// every Snapshot (e.g. "strict", "advisory"); invariants configures which
// structural rules Register enforces.
func New(mode string, invariants ...Invariant) *Registrar {
	set := make(map[Invariant]struct{}, len(invariants))
	for _, inv := range invariants {
		set[inv] = struct{}{}
	}
	return &Registrar{
		mode:       mode,
		invariants: set,
		byID:       make(map[string]RegisteredState),
		childKeys:  make(map[string]struct{}),
	}
}

// Register appends a new state. structure names the domain shape being
// recorded (e.g. "intent", "policy-epoch"); data is its payload; parentID,
// if non-empty, must already be registered. Registration never mutates or
// removes an existing state.
func (r *Registrar) Register(structure string, data map[string]interface{}, parentID string) (RegisteredState, error) {
	if structure == "" {
		return RegisteredState{}, newErr(ErrInvalidInput, "structure is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if parentID != "" {
		if _, ok := r.byID[parentID]; !ok {
			return RegisteredState{}, newErrf(ErrStateTransition, "parent %q is not registered", parentID)
		}
	}

	if _, ok := r.invariants[InvariantUniqueStructurePerParent]; ok {
		key := parentID + "/" + structure
		if _, exists := r.childKeys[key]; exists {
			return RegisteredState{}, newErrf(ErrStateTransition, "structure %q already registered under parent %q", structure, parentID)
		}
	}

	state := RegisteredState{
		ID:           uuid.NewString(),
		Structure:    structure,
		Data:         data,
		OrderIndex:   int64(len(r.states)) + 1,
		ParentID:     parentID,
		RegisteredAt: time.Now().UTC(),
	}
	r.states = append(r.states, state)
	r.byID[state.ID] = state
	r.childKeys[parentID+"/"+structure] = struct{}{}
	return state, nil
}

// Get returns a registered state by id.
func (r *Registrar) Get(id string) (RegisteredState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return RegisteredState{}, newErrf(ErrNotFound, "state %q", id)
	}
	return s, nil
}

// Children returns every state directly registered under parentID, in
// registration order.
func (r *Registrar) Children(parentID string) []RegisteredState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegisteredState, 0)
	for _, s := range r.states {
		if s.ParentID == parentID {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of registered states.
func (r *Registrar) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}

// Snapshot returns the registrar's entire ordered state as a value object.
// State ordering within the snapshot is the unique authoritative ordering
// for the Registrum subsystem hash (pkg/gsh) — two snapshots with states
// in different order hash differently even if they contain the same set.
func (r *Registrar) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	invs := make([]Invariant, 0, len(r.invariants))
	for inv := range r.invariants {
		invs = append(invs, inv)
	}
	states := make([]RegisteredState, len(r.states))
	copy(states, r.states)
	return Snapshot{Mode: r.mode, Invariants: invs, States: states}
}

// FromSnapshot restores a Registrar from a prior Snapshot, preserving
// parent-lookup and invariant-enforcement state for future Register calls.
func FromSnapshot(snap Snapshot) *Registrar {
	r := New(snap.Mode, snap.Invariants...)
	r.states = append(r.states, snap.States...)
	for _, s := range snap.States {
		r.byID[s.ID] = s
		r.childKeys[s.ParentID+"/"+s.Structure] = struct{}{}
	}
	return r
}
