// Copyright 2025 Certen Protocol

package witness

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/certen/attestia/pkg/canonicaljson"
	"github.com/certen/attestia/pkg/governance"
)

type fakePreparer struct{}

func (fakePreparer) PrepareUnsigned(ctx context.Context, witnessAccount string, memo Memo) ([]byte, error) {
	return []byte(witnessAccount + "|" + memo.MemoData), nil
}
func (fakePreparer) AttachSingleSignature(unsignedBlob []byte, signatureHex string) ([]byte, error) {
	return append(append([]byte{}, unsignedBlob...), []byte("|sig:"+signatureHex)...), nil
}
func (fakePreparer) CombineSignatures(unsignedBlob []byte, sigs []governance.Signature) ([]byte, error) {
	out := append([]byte{}, unsignedBlob...)
	for _, s := range sigs {
		out = append(out, []byte("|sig:"+s.Address+":"+s.Signature)...)
	}
	return out, nil
}

type fakeSigner struct {
	addr string
}

func (s fakeSigner) Address() string { return s.addr }
func (s fakeSigner) Sign(ctx context.Context, unsignedBlob []byte) (string, error) {
	return hex.EncodeToString([]byte("sig-by-" + s.addr)), nil
}

type flakySubmitter struct {
	failures int
	calls    int
}

func (f *flakySubmitter) Submit(ctx context.Context, signedTxBlobHex string) (string, int64, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", 0, newErr(ErrTransient, "load shed")
	}
	return "TXHASH123", 42, nil
}

type permanentFailSubmitter struct{}

func (permanentFailSubmitter) Submit(ctx context.Context, signedTxBlobHex string) (string, int64, error) {
	return "", 0, errors.New("tecNO_PERMISSION")
}

func noSleepRetry() RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = func(time.Duration) {}
	return p
}

func TestMemoRoundTrip(t *testing.T) {
	payload := map[string]interface{}{"hash": "abc", "version": 1}
	memo, err := BuildMemo(payload)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeMemo(memo)
	if err != nil {
		t.Fatal(err)
	}
	canon, err := canonicaljson.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(canon) {
		t.Fatalf("decoded memo does not match canonical payload: %s vs %s", decoded, canon)
	}
}

func TestDecodeMemoRejectsWrongType(t *testing.T) {
	bad := Memo{MemoType: hex.EncodeToString([]byte("something-else")), MemoFormat: hex.EncodeToString([]byte("application/json")), MemoData: hex.EncodeToString([]byte("{}"))}
	if _, err := DecodeMemo(bad); err == nil {
		t.Fatal("expected rejection of a non-Attestia memo type")
	}
}

func TestSingleSigSubmitSucceeds(t *testing.T) {
	sub := &flakySubmitter{}
	rec, err := Submit(context.Background(), map[string]string{"hash": "abc"}, fakePreparer{}, fakeSigner{addr: "wallet-1"}, sub,
		Config{ChainID: "xrpl:mainnet", WitnessAccount: "rWitness", Retry: noSleepRetry()})
	if err != nil {
		t.Fatal(err)
	}
	if rec.TxHash != "TXHASH123" || rec.LedgerIndex != 42 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestSingleSigSubmitRetriesTransientThenSucceeds(t *testing.T) {
	sub := &flakySubmitter{failures: 2}
	rec, err := Submit(context.Background(), map[string]string{"hash": "abc"}, fakePreparer{}, fakeSigner{addr: "wallet-1"}, sub,
		Config{ChainID: "xrpl:mainnet", WitnessAccount: "rWitness", Retry: noSleepRetry()})
	if err != nil {
		t.Fatal(err)
	}
	if sub.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", sub.calls)
	}
	if rec.TxHash != "TXHASH123" {
		t.Fatalf("unexpected txHash: %s", rec.TxHash)
	}
}

func TestSingleSigSubmitDoesNotRetryPermanentError(t *testing.T) {
	sub := permanentFailSubmitter{}
	_, err := Submit(context.Background(), map[string]string{"hash": "abc"}, fakePreparer{}, fakeSigner{addr: "wallet-1"}, sub,
		Config{ChainID: "xrpl:mainnet", WitnessAccount: "rWitness", Retry: noSleepRetry()})
	var submitErr *WitnessSubmitError
	if !errors.As(err, &submitErr) {
		t.Fatalf("expected WitnessSubmitError, got %v", err)
	}
	if submitErr.Attempts != 1 {
		t.Fatalf("expected a single attempt for a permanent error, got %+v", submitErr)
	}
}

func samplePolicy(t *testing.T) governance.GovernancePolicy {
	t.Helper()
	s := governance.NewGovernanceStore()
	if err := s.Apply(governance.Event{Kind: governance.SignerAdded, Version: 1, Address: "wallet-1", Weight: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(governance.Event{Kind: governance.SignerAdded, Version: 2, Address: "wallet-2", Weight: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(governance.Event{Kind: governance.QuorumChanged, Version: 3, NewQuorum: 2}); err != nil {
		t.Fatal(err)
	}
	p, err := s.GetCurrentPolicy()
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestMultiSigSubmitQuorumMetSucceeds(t *testing.T) {
	policy := samplePolicy(t)
	sub := &flakySubmitter{}
	signers := []Signer{fakeSigner{addr: "wallet-1"}, fakeSigner{addr: "wallet-2"}}
	rec, err := MultiSigSubmit(context.Background(), map[string]string{"hash": "abc"}, fakePreparer{}, signers, policy, sub,
		Config{ChainID: "xrpl:mainnet", WitnessAccount: "rWitness", Retry: noSleepRetry()})
	if err != nil {
		t.Fatal(err)
	}
	if rec.TxHash != "TXHASH123" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestMultiSigSubmitRejectsSubQuorumWithoutSubmitting(t *testing.T) {
	policy := samplePolicy(t)
	sub := &flakySubmitter{}
	signers := []Signer{fakeSigner{addr: "wallet-2"}} // weight 1 < quorum 2
	_, err := MultiSigSubmit(context.Background(), map[string]string{"hash": "abc"}, fakePreparer{}, signers, policy, sub,
		Config{ChainID: "xrpl:mainnet", WitnessAccount: "rWitness", Retry: noSleepRetry()})
	if err == nil {
		t.Fatal("expected quorum-not-met rejection")
	}
	if sub.calls != 0 {
		t.Fatalf("expected zero submit attempts for a sub-quorum signature set, got %d", sub.calls)
	}
}

type fakeFetcher struct {
	memo   *Memo
	txHash string
}

func (f fakeFetcher) FetchMemo(ctx context.Context, chainID, txHash string) (FetchedMemo, error) {
	return FetchedMemo{TxHash: f.txHash, Memo: f.memo}, nil
}

func TestVerifyWitnessRoundTrip(t *testing.T) {
	payload := map[string]string{"hash": "abc"}
	payloadBytes, _ := canonicaljson.Marshal(payload)
	memo, err := BuildMemo(payload)
	if err != nil {
		t.Fatal(err)
	}
	record := WitnessRecord{TxHash: "TXHASH123", ChainID: "xrpl:mainnet", Payload: payloadBytes}
	declaredHash := canonicaljson.Hash(payloadBytes)

	result, err := VerifyWitness(context.Background(), fakeFetcher{memo: &memo, txHash: "TXHASH123"}, record, declaredHash)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Verified {
		t.Fatalf("expected verification to pass, got discrepancies: %v", result.Discrepancies)
	}
}

func TestVerifyWitnessFailsWhenMemoAbsent(t *testing.T) {
	record := WitnessRecord{TxHash: "TXHASH123", ChainID: "xrpl:mainnet"}
	result, err := VerifyWitness(context.Background(), fakeFetcher{memo: nil, txHash: "TXHASH123"}, record, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Verified {
		t.Fatal("expected verification to fail when no memo is present")
	}
}

func TestVerifyWitnessFailsOnHashMismatch(t *testing.T) {
	payload := map[string]string{"hash": "abc"}
	payloadBytes, _ := canonicaljson.Marshal(payload)
	memo, err := BuildMemo(payload)
	if err != nil {
		t.Fatal(err)
	}
	record := WitnessRecord{TxHash: "TXHASH123", ChainID: "xrpl:mainnet", Payload: payloadBytes}

	result, err := VerifyWitness(context.Background(), fakeFetcher{memo: &memo, txHash: "TXHASH123"}, record, "not-the-real-hash")
	if err != nil {
		t.Fatal(err)
	}
	if result.Verified {
		t.Fatal("expected verification to fail on declared hash mismatch")
	}
}
