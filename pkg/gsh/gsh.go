// Copyright 2025 Certen Protocol

// Package gsh computes the Global State Hash: the deterministic digest
// that ties a ledger snapshot, a registrar snapshot, and optional chain
// hashes into one value. It is a pure function of its inputs — the same
// three arguments always produce the same hash, regardless of when or
// where it is computed — which is what lets an independent verifier
// (pkg/verifier) recompute it from an exported bundle and compare.
package gsh

import (
	"time"

	"github.com/certen/attestia/pkg/canonicaljson"
	"github.com/certen/attestia/pkg/ledger"
	"github.com/certen/attestia/pkg/registrar"
)

// Subsystems holds the per-subsystem hashes the global hash is built from.
type Subsystems struct {
	Ledger    string            `json:"ledger"`
	Registrum string            `json:"registrum"`
	Chains    map[string]string `json:"chains,omitempty"`
}

// GlobalStateHash is the output of Compute. ComputedAt is metadata only —
// it never participates in Hash.
type GlobalStateHash struct {
	Hash       string     `json:"hash"`
	Subsystems Subsystems `json:"subsystems"`
	ComputedAt time.Time  `json:"computedAt"`
}

// hashedSubsystems is exactly what participates in the top-level hash:
// Subsystems minus any metadata.
type hashedSubsystems struct {
	Ledger    string            `json:"ledger"`
	Registrum string            `json:"registrum"`
	Chains    map[string]string `json:"chains,omitempty"`
}

// Compute derives the Global State Hash from a ledger snapshot, a
// registrar snapshot, and an optional set of chainId -> hash values. Every
// byte of either snapshot, or any chain hash, changes the result.
func Compute(ledgerSnap ledger.Snapshot, registrarSnap registrar.Snapshot, chainHashes map[string]string) (GlobalStateHash, error) {
	ledgerHash, err := canonicaljson.HashOf(ledgerSnap)
	if err != nil {
		return GlobalStateHash{}, err
	}
	registrumHash, err := canonicaljson.HashOf(registrarSnap)
	if err != nil {
		return GlobalStateHash{}, err
	}

	var chains map[string]string
	if len(chainHashes) > 0 {
		chains = make(map[string]string, len(chainHashes))
		for k, v := range chainHashes {
			chains[k] = v
		}
	}

	top := hashedSubsystems{Ledger: ledgerHash, Registrum: registrumHash, Chains: chains}
	hash, err := canonicaljson.HashOf(top)
	if err != nil {
		return GlobalStateHash{}, err
	}

	return GlobalStateHash{
		Hash:       hash,
		Subsystems: Subsystems{Ledger: ledgerHash, Registrum: registrumHash, Chains: chains},
		ComputedAt: time.Now().UTC(),
	}, nil
}

// RecomputeTop recomputes just the top-level hash from already-known
// subsystem hashes, without needing the snapshots themselves. The replay
// verifier (pkg/verifier) uses this to check step 3 of its verification
// (global hash recomputed from the bundle's own declared subsystem
// hashes) independently of step 2 (subsystem hashes recomputed from the
// bundle's snapshots).
func RecomputeTop(subsystems Subsystems) (string, error) {
	top := hashedSubsystems{Ledger: subsystems.Ledger, Registrum: subsystems.Registrum, Chains: subsystems.Chains}
	return canonicaljson.HashOf(top)
}

// ExportableStateBundle is the external verification artifact: snapshots
// plus every hash derived from them, ready for an independent replay.
type ExportableStateBundle struct {
	Version           int                `json:"version"`
	LedgerSnapshot    ledger.Snapshot    `json:"ledgerSnapshot"`
	RegistrumSnapshot registrar.Snapshot `json:"registrumSnapshot"`
	EventHashes       []string           `json:"eventHashes"`
	ChainHashes       map[string]string  `json:"chainHashes,omitempty"`
	GlobalStateHash   GlobalStateHash    `json:"globalStateHash"`
	BundleHash        string             `json:"bundleHash"`
	ExportedAt        time.Time          `json:"exportedAt"`
}

// hashedBundle is exactly what participates in BundleHash: every field of
// ExportableStateBundle except ExportedAt.
type hashedBundle struct {
	Version           int                `json:"version"`
	LedgerSnapshot    ledger.Snapshot    `json:"ledgerSnapshot"`
	RegistrumSnapshot registrar.Snapshot `json:"registrumSnapshot"`
	EventHashes       []string           `json:"eventHashes"`
	ChainHashes       map[string]string  `json:"chainHashes,omitempty"`
	GlobalStateHash   GlobalStateHash    `json:"globalStateHash"`
}

// CreateStateBundle computes the Global State Hash via Compute, then wraps
// it with the snapshots and event hashes into an ExportableStateBundle
// whose BundleHash covers everything except ExportedAt.
func CreateStateBundle(ledgerSnap ledger.Snapshot, registrarSnap registrar.Snapshot, eventHashes []string, chainHashes map[string]string) (ExportableStateBundle, error) {
	g, err := Compute(ledgerSnap, registrarSnap, chainHashes)
	if err != nil {
		return ExportableStateBundle{}, err
	}
	if eventHashes == nil {
		eventHashes = []string{}
	}

	hb := hashedBundle{
		Version:           1,
		LedgerSnapshot:    ledgerSnap,
		RegistrumSnapshot: registrarSnap,
		EventHashes:       eventHashes,
		ChainHashes:       chainHashes,
		GlobalStateHash:   g,
	}
	bundleHash, err := canonicaljson.HashOf(hb)
	if err != nil {
		return ExportableStateBundle{}, err
	}

	return ExportableStateBundle{
		Version:           1,
		LedgerSnapshot:    ledgerSnap,
		RegistrumSnapshot: registrarSnap,
		EventHashes:       eventHashes,
		ChainHashes:       chainHashes,
		GlobalStateHash:   g,
		BundleHash:        bundleHash,
		ExportedAt:        time.Now().UTC(),
	}, nil
}

// RecomputeBundleHash recomputes BundleHash from a bundle's own fields
// (excluding ExportedAt), for the replay verifier to compare against the
// bundle's declared value.
func RecomputeBundleHash(b ExportableStateBundle) (string, error) {
	hb := hashedBundle{
		Version:           b.Version,
		LedgerSnapshot:    b.LedgerSnapshot,
		RegistrumSnapshot: b.RegistrumSnapshot,
		EventHashes:       b.EventHashes,
		ChainHashes:       b.ChainHashes,
		GlobalStateHash:   b.GlobalStateHash,
	}
	return canonicaljson.HashOf(hb)
}
