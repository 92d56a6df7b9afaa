// Copyright 2025 Certen Protocol

// Package governance implements the event-sourced signer/quorum registry
// (GovernanceStore), the canonical payload a witness submission signs
// over, and the signature-set aggregation and authority checks the
// witness submitter (pkg/witness) and replay verifier consult before
// trusting a multi-sig attestation.
//
// The weighted-quorum math follows this module's threshold-weight
// calculation style elsewhere, generalized here to a fixed per-policy
// quorum rather than a computed 2/3+1 fraction, since a QuorumChanged
// event sets quorum explicitly.
package governance

import (
	"sort"
	"sync"
	"time"

	"github.com/certen/attestia/pkg/canonicaljson"
	"github.com/certen/attestia/pkg/reconciler"
)

// EventKind discriminates one GovernanceStore event.
type EventKind string

const (
	SignerAdded   EventKind = "SignerAdded"
	SignerRemoved EventKind = "SignerRemoved"
	QuorumChanged EventKind = "QuorumChanged"
	PolicyRotated EventKind = "PolicyRotated"
)

// Event is one entry in the governance event stream. Only the fields
// relevant to Kind are meaningful; the rest are zero.
type Event struct {
	Kind      EventKind `json:"kind"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`

	// SignerAdded / SignerRemoved
	Address string `json:"address,omitempty"`
	Label   string `json:"label,omitempty"`
	Weight  int    `json:"weight,omitempty"`

	// QuorumChanged
	NewQuorum int `json:"newQuorum,omitempty"`

	// PolicyRotated
	Reason string `json:"reason,omitempty"`
}

// Signer is one entry of a GovernancePolicy's signer set.
type Signer struct {
	Address string    `json:"address"`
	Label   string    `json:"label"`
	Weight  int       `json:"weight"`
	AddedAt time.Time `json:"addedAt"`
}

// GovernancePolicy is the immutable, recomputed-every-event value a
// GovernanceStore produces: the current signer set and quorum.
type GovernancePolicy struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	Signers   []Signer  `json:"signers"`
	Quorum    int       `json:"quorum"`
	CreatedAt time.Time `json:"createdAt"`
}

type hashedPolicy struct {
	Version int      `json:"version"`
	Signers []Signer `json:"signers"`
	Quorum  int      `json:"quorum"`
}

func policyID(version int, signers []Signer, quorum int) (string, error) {
	sorted := make([]Signer, len(signers))
	copy(sorted, signers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })
	return canonicaljson.HashOf(hashedPolicy{Version: version, Signers: sorted, Quorum: quorum})
}

// GovernanceStore is an event-sourced signer/quorum registry. Like the
// event store, ledger, and registrar, it is a serialisation point: Apply
// holds the write lock for the duration of one event's validation and
// mutation, and reads take the read lock.
type GovernanceStore struct {
	mu      sync.RWMutex
	version int
	signers map[string]Signer
	order   []string // insertion order, for deterministic iteration pre-sort
	quorum  int
	events  []Event
}

// NewGovernanceStore constructs an empty store: no signers, quorum 0.
func NewGovernanceStore() *GovernanceStore {
	return &GovernanceStore{signers: make(map[string]Signer)}
}

func (s *GovernanceStore) totalWeight() int {
	total := 0
	for _, sg := range s.signers {
		total += sg.Weight
	}
	return total
}

// Apply validates and applies a single event, in order. Version must equal
// the store's current version + 1. A rejected event leaves the store
// completely unchanged.
func (s *GovernanceStore) Apply(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.Version != s.version+1 {
		return newErrf(ErrStateTransition, "event version %d does not follow current version %d", event.Version, s.version)
	}

	switch event.Kind {
	case SignerAdded:
		if event.Address == "" {
			return newErr(ErrInvalidInput, "signer address is required")
		}
		if _, exists := s.signers[event.Address]; exists {
			return newErrf(ErrStateTransition, "signer %q already registered", event.Address)
		}
		if event.Weight < 1 {
			return newErr(ErrInvalidInput, "signer weight must be >= 1")
		}
		s.signers[event.Address] = Signer{Address: event.Address, Label: event.Label, Weight: event.Weight, AddedAt: event.Timestamp}
		s.order = append(s.order, event.Address)

	case SignerRemoved:
		sg, exists := s.signers[event.Address]
		if !exists {
			return newErrf(ErrStateTransition, "signer %q is not registered", event.Address)
		}
		if s.totalWeight()-sg.Weight < s.quorum {
			return newErrf(ErrStateTransition, "removing signer %q would drop total weight below quorum %d", event.Address, s.quorum)
		}
		delete(s.signers, event.Address)
		for i, addr := range s.order {
			if addr == event.Address {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}

	case QuorumChanged:
		if event.NewQuorum < 1 {
			return newErr(ErrInvalidInput, "quorum must be >= 1")
		}
		if len(s.signers) > 0 && event.NewQuorum > s.totalWeight() {
			return newErrf(ErrInvalidInput, "quorum %d exceeds total signer weight %d", event.NewQuorum, s.totalWeight())
		}
		s.quorum = event.NewQuorum

	case PolicyRotated:
		// No state change; reserved for external correlation.

	default:
		return newErrf(ErrInvalidInput, "unknown event kind %q", event.Kind)
	}

	s.version = event.Version
	s.events = append(s.events, event)
	return nil
}

// Events returns every applied event, in order.
func (s *GovernanceStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Version returns the store's current version.
func (s *GovernanceStore) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// GetCurrentPolicy recomputes and returns the store's current policy. The
// policy id is derived fresh every call from {version, signers sorted,
// quorum}, so it is never stale.
func (s *GovernanceStore) GetCurrentPolicy() (GovernancePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	signers := make([]Signer, 0, len(s.signers))
	for _, addr := range s.order {
		signers = append(signers, s.signers[addr])
	}
	sort.Slice(signers, func(i, j int) bool { return signers[i].Address < signers[j].Address })

	id, err := policyID(s.version, signers, s.quorum)
	if err != nil {
		return GovernancePolicy{}, err
	}
	createdAt := time.Time{}
	if len(s.events) > 0 {
		createdAt = s.events[len(s.events)-1].Timestamp
	}
	return GovernancePolicy{ID: id, Version: s.version, Signers: signers, Quorum: s.quorum, CreatedAt: createdAt}, nil
}

// ReplayFrom reconstructs a store by applying events in order from an
// empty initial state. Equal event sequences always produce an equal
// final state; replaying an empty slice yields an empty store.
func ReplayFrom(events []Event) (*GovernanceStore, error) {
	s := NewGovernanceStore()
	for _, e := range events {
		if err := s.Apply(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ReplayToVersion reconstructs the store's state as of (and including)
// version v, ignoring any later events in the slice.
func ReplayToVersion(events []Event, v int) (*GovernanceStore, error) {
	s := NewGovernanceStore()
	for _, e := range events {
		if e.Version > v {
			break
		}
		if err := s.Apply(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// signingPayload is exactly what participates in the canonical signing
// hash.
type signingPayload struct {
	AttestationHash      string    `json:"attestationHash"`
	AttestationTimestamp time.Time `json:"attestationTimestamp"`
	PolicyID             string    `json:"policyId"`
	PolicyVersion        int       `json:"policyVersion"`
	Quorum               int       `json:"quorum"`
	Signers              []string  `json:"signers"`
}

// BuildCanonicalSigningPayload derives the hash a witness submission signs
// over: the attestation's own hash and timestamp bound to the exact
// policy (id, version, quorum, signer set) in force when it is signed. Any
// change to the attestation or the policy changes the resulting hash.
func BuildCanonicalSigningPayload(attestation reconciler.Attestation, policy GovernancePolicy) (string, error) {
	addresses := make([]string, len(policy.Signers))
	for i, sg := range policy.Signers {
		addresses[i] = sg.Address
	}
	sort.Strings(addresses)

	return canonicaljson.HashOf(signingPayload{
		AttestationHash:      attestation.SnapshotHash,
		AttestationTimestamp: attestation.AttestedAt,
		PolicyID:             policy.ID,
		PolicyVersion:        policy.Version,
		Quorum:               policy.Quorum,
		Signers:              addresses,
	})
}

// Signature is one signer's raw signature over a payload hash.
type Signature struct {
	Address   string `json:"address"`
	Signature string `json:"signature"` // hex-encoded
}

// QuorumResult reports whether an aggregated set of signatures meets the
// policy's quorum.
type QuorumResult struct {
	Met               bool     `json:"met"`
	TotalWeight       int      `json:"totalWeight"`
	RequiredWeight    int      `json:"requiredWeight"`
	SignerAddresses   []string `json:"signerAddresses"`
	MissingAddresses  []string `json:"missingAddresses,omitempty"`
}

// AggregatedSignature is the output of AggregateSignatures.
type AggregatedSignature struct {
	PayloadHash  string       `json:"payloadHash"`
	Signatures   []Signature  `json:"signatures"`
	Quorum       QuorumResult `json:"quorum"`
	AggregatedAt time.Time    `json:"aggregatedAt"`
}

// AggregateSignatures validates and combines a signature set against
// policy, in the order spec.md §4.11 describes: reject duplicates, reject
// non-members, sum weight, check quorum, sort deterministically by
// address. It never returns a quorum-met result for a rejected input —
// duplicate or non-member signatures fail the whole call.
func AggregateSignatures(sigs []Signature, policy GovernancePolicy, payloadHash string) (AggregatedSignature, error) {
	byAddress := make(map[string]Signer, len(policy.Signers))
	for _, sg := range policy.Signers {
		byAddress[sg.Address] = sg
	}

	seen := make(map[string]struct{}, len(sigs))
	present := make(map[string]struct{}, len(sigs))
	for _, sig := range sigs {
		if _, dup := seen[sig.Address]; dup {
			return AggregatedSignature{}, newErrf(ErrInvalidInput, "duplicate signature from %q", sig.Address)
		}
		seen[sig.Address] = struct{}{}
		if _, member := byAddress[sig.Address]; !member {
			return AggregatedSignature{}, newErrf(ErrInvalidInput, "signature from %q is not a policy signer", sig.Address)
		}
		present[sig.Address] = struct{}{}
	}

	totalWeight := 0
	signerAddresses := make([]string, 0, len(sigs))
	for addr := range present {
		totalWeight += byAddress[addr].Weight
		signerAddresses = append(signerAddresses, addr)
	}
	sort.Strings(signerAddresses)

	var missing []string
	for _, sg := range policy.Signers {
		if _, ok := present[sg.Address]; !ok {
			missing = append(missing, sg.Address)
		}
	}
	sort.Strings(missing)

	met := totalWeight >= policy.Quorum
	quorum := QuorumResult{
		Met:              met,
		TotalWeight:      totalWeight,
		RequiredWeight:   policy.Quorum,
		SignerAddresses:  signerAddresses,
		MissingAddresses: missing,
	}

	sorted := make([]Signature, len(sigs))
	copy(sorted, sigs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	agg := AggregatedSignature{
		PayloadHash:  payloadHash,
		Signatures:   sorted,
		Quorum:       quorum,
		AggregatedAt: time.Now().UTC(),
	}
	if !met {
		return agg, newErr(ErrQuorumNotMet, "aggregated signer weight below policy quorum")
	}
	return agg, nil
}

// AuthorityValidation is the output of ValidateAuthority.
type AuthorityValidation struct {
	Valid      bool     `json:"valid"`
	Rejections []string `json:"rejections,omitempty"`
}

// StateRef is the policy binding a caller claims to be operating under.
type StateRef struct {
	PolicyID      string `json:"policyId"`
	PolicyVersion int    `json:"policyVersion"`
}

// ValidateAuthority checks that stateRef still matches currentPolicy
// exactly; any drift (the policy rotated since stateRef was captured)
// rejects it rather than silently accepting a stale binding.
func ValidateAuthority(currentPolicy GovernancePolicy, stateRef StateRef) AuthorityValidation {
	var rejections []string
	if stateRef.PolicyID != currentPolicy.ID {
		rejections = append(rejections, "policy id mismatch")
	}
	if stateRef.PolicyVersion != currentPolicy.Version {
		rejections = append(rejections, "policy version mismatch")
	}
	return AuthorityValidation{Valid: len(rejections) == 0, Rejections: rejections}
}

// ValidateHistoricalQuorum replays events up to and including atVersion
// and checks sigs against the policy that was in force at that version —
// letting a caller verify an old attestation against the authority that
// actually signed it, not the store's present-day policy.
func ValidateHistoricalQuorum(payloadHash string, sigs []Signature, events []Event, atVersion int) (AggregatedSignature, error) {
	store, err := ReplayToVersion(events, atVersion)
	if err != nil {
		return AggregatedSignature{}, err
	}
	policy, err := store.GetCurrentPolicy()
	if err != nil {
		return AggregatedSignature{}, err
	}
	return AggregateSignatures(sigs, policy, payloadHash)
}
