// Copyright 2025 Certen Protocol

package witness

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/certen/attestia/pkg/crypto/bls"
)

// BLSKeyManagerSigner adapts a bls.KeyManager into a Signer, so a
// GovernancePolicy signer's address and signature can be backed by the
// same BLS12-381 keys used to sign attestation reports, rather than a
// chain-specific wallet key. Address() is the hex-encoded form of
// KeyManager.GetAddress(), so it can be registered directly as a
// governance.Signer.Address in a GovernancePolicy.
type BLSKeyManagerSigner struct {
	km     *bls.KeyManager
	domain string
}

// NewBLSKeyManagerSigner wraps an already-loaded key manager. domain is the
// BLS domain separation tag applied to every signature (see bls.Domain*).
func NewBLSKeyManagerSigner(km *bls.KeyManager, domain string) *BLSKeyManagerSigner {
	return &BLSKeyManagerSigner{km: km, domain: domain}
}

func (s *BLSKeyManagerSigner) Address() string {
	addr := s.km.GetAddress()
	return hex.EncodeToString(addr[:])
}

func (s *BLSKeyManagerSigner) Sign(ctx context.Context, unsignedBlob []byte) (string, error) {
	sig, err := s.km.SignWithDomain(unsignedBlob, s.domain)
	if err != nil {
		return "", fmt.Errorf("witness: bls sign: %w", err)
	}
	return sig.Hex(), nil
}
