// Copyright 2025 Certen Protocol

package witness

import (
	"context"
	"testing"

	"github.com/certen/attestia/pkg/crypto/bls"
)

func TestBLSKeyManagerSignerProducesVerifiableSignature(t *testing.T) {
	// GenerateFromSeed keeps everything in memory, unlike LoadOrGenerateKey
	// which touches disk.
	km := bls.NewKeyManager("")
	if err := km.GenerateFromSeed([]byte("witness-test-seed")); err != nil {
		t.Fatal(err)
	}

	signer := NewBLSKeyManagerSigner(km, bls.DomainAttestation)
	if signer.Address() == "" {
		t.Fatal("expected a non-empty address")
	}

	sigHex, err := signer.Sign(context.Background(), []byte("payload-hash"))
	if err != nil {
		t.Fatal(err)
	}
	sig, err := bls.SignatureFromHex(sigHex)
	if err != nil {
		t.Fatal(err)
	}
	if !km.GetPublicKey().VerifyWithDomain(sig, []byte("payload-hash"), bls.DomainAttestation) {
		t.Fatal("expected BLS signature to verify against the public key")
	}
}
