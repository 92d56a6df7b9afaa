// Copyright 2025 Certen Protocol

package merkle

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/certen/attestia/pkg/canonicaljson"
	"github.com/certen/attestia/pkg/reconciler"
)

// ProofPackage bundles one attestation with the inclusion proof that ties
// it to a Merkle root, so that anyone holding the package alone — no
// access to the tree, the other attestations, or this node — can verify
// both that the attestation is unmodified and that it was included under
// the claimed root.
type ProofPackage struct {
	Version         int                    `json:"version"`
	Attestation     reconciler.Attestation `json:"attestation"`
	AttestationHash string                 `json:"attestationHash"`
	MerkleRoot      string                 `json:"merkleRoot"`
	InclusionProof  InclusionProof         `json:"inclusionProof"`
	PackagedAt      time.Time              `json:"packagedAt"`
	PackageHash     string                 `json:"packageHash"`
}

// hashedProofPackage is exactly what participates in PackageHash:
// ProofPackage minus PackagedAt, which is metadata only.
type hashedProofPackage struct {
	Version         int                    `json:"version"`
	Attestation     reconciler.Attestation `json:"attestation"`
	AttestationHash string                 `json:"attestationHash"`
	MerkleRoot      string                 `json:"merkleRoot"`
	InclusionProof  InclusionProof         `json:"inclusionProof"`
}

// BuildProofPackage generates an inclusion proof for attestation at
// leafIndex in tree and wraps it with the attestation into a ProofPackage.
// The caller is responsible for having built tree with attestation hashes
// in the same insertion order the attestations were produced in, so that
// leafIndex addresses the right leaf.
func BuildProofPackage(tree *Tree, leafIndex int, attestation reconciler.Attestation) (ProofPackage, error) {
	proof, err := tree.GenerateProof(leafIndex)
	if err != nil {
		return ProofPackage{}, fmt.Errorf("merkle: generate proof: %w", err)
	}

	attestationHash, err := canonicaljson.HashOf(attestation)
	if err != nil {
		return ProofPackage{}, fmt.Errorf("merkle: hash attestation: %w", err)
	}

	hp := hashedProofPackage{
		Version:         1,
		Attestation:     attestation,
		AttestationHash: attestationHash,
		MerkleRoot:      tree.RootHex(),
		InclusionProof:  *proof,
	}
	packageHash, err := canonicaljson.HashOf(hp)
	if err != nil {
		return ProofPackage{}, fmt.Errorf("merkle: hash package: %w", err)
	}

	return ProofPackage{
		Version:         1,
		Attestation:     attestation,
		AttestationHash: attestationHash,
		MerkleRoot:      tree.RootHex(),
		InclusionProof:  *proof,
		PackagedAt:      time.Now().UTC(),
		PackageHash:     packageHash,
	}, nil
}

// VerifyProofPackage independently re-derives every hash a ProofPackage
// claims and reports every mismatch rather than stopping at the first
// one: the inclusion proof must recompute its declared root, that root
// must match MerkleRoot, AttestationHash must equal hash(Attestation),
// and PackageHash must equal the recomputed package hash. valid is true
// only if reasons is empty.
func VerifyProofPackage(p ProofPackage) (valid bool, reasons []string, err error) {
	valid = true

	leafHash, decErr := hex.DecodeString(p.InclusionProof.LeafHash)
	if decErr != nil {
		return false, nil, fmt.Errorf("merkle: decode leaf hash: %w", decErr)
	}
	proofRoot, decErr := hex.DecodeString(p.InclusionProof.Root)
	if decErr != nil {
		return false, nil, fmt.Errorf("merkle: decode inclusion proof root: %w", decErr)
	}

	recomputed, verr := VerifyProof(leafHash, &p.InclusionProof, proofRoot)
	if verr != nil {
		return false, nil, fmt.Errorf("merkle: verify inclusion proof: %w", verr)
	}
	if !recomputed {
		valid = false
		reasons = append(reasons, "inclusion proof does not recompute its declared root")
	}
	if p.InclusionProof.Root != p.MerkleRoot {
		valid = false
		reasons = append(reasons, "inclusion proof root does not match merkleRoot")
	}

	wantAttestationHash, herr := canonicaljson.HashOf(p.Attestation)
	if herr != nil {
		return false, nil, fmt.Errorf("merkle: hash attestation: %w", herr)
	}
	if wantAttestationHash != p.AttestationHash {
		valid = false
		reasons = append(reasons, "attestationHash does not match hash(attestation)")
	}

	hp := hashedProofPackage{
		Version:         p.Version,
		Attestation:     p.Attestation,
		AttestationHash: p.AttestationHash,
		MerkleRoot:      p.MerkleRoot,
		InclusionProof:  p.InclusionProof,
	}
	wantPackageHash, herr := canonicaljson.HashOf(hp)
	if herr != nil {
		return false, nil, fmt.Errorf("merkle: hash package: %w", herr)
	}
	if wantPackageHash != p.PackageHash {
		valid = false
		reasons = append(reasons, "packageHash does not match the recomputed package hash")
	}

	return valid, reasons, nil
}
