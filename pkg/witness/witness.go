// Copyright 2025 Certen Protocol

// Package witness attaches a canonical attestation payload to a 1-unit
// self-send transaction on an external chain as a hex-encoded memo, so
// that anyone holding the transaction hash can independently recover and
// verify what was attested without trusting this node's say-so.
//
// Follows the create-then-retry-on-transient-failure workflow shape used
// elsewhere in this module for on-chain submission, combined with an
// exponential-backoff retry loop, generalized from anchoring a Merkle
// root on Ethereum to witnessing an arbitrary canonical payload via a
// memo-carrying self-send — which is why the memo fields
// (MemoType/MemoFormat/MemoData) and the self-send shape target XRPL
// (pkg/chain/xrpl), the one back-end in this module whose wire format
// natively carries memos.
package witness

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/certen/attestia/pkg/canonicaljson"
	"github.com/certen/attestia/pkg/governance"
)

// MemoType and MemoFormat are the fixed, hex-encoded memo fields every
// Attestia witness transaction carries.
const (
	memoTypeString   = "attestia/witness/v1"
	memoFormatString = "application/json"
)

// Memo is the three-field hex-encoded memo payload carried on the
// self-send transaction.
type Memo struct {
	MemoType   string `json:"memoType"`
	MemoFormat string `json:"memoFormat"`
	MemoData   string `json:"memoData"`
}

// BuildMemo canonicalizes payload and wraps it into the fixed three-field
// hex-encoded memo shape.
func BuildMemo(payload interface{}) (Memo, error) {
	canon, err := canonicaljson.Marshal(payload)
	if err != nil {
		return Memo{}, err
	}
	return Memo{
		MemoType:   hex.EncodeToString([]byte(memoTypeString)),
		MemoFormat: hex.EncodeToString([]byte(memoFormatString)),
		MemoData:   hex.EncodeToString(canon),
	}, nil
}

// DecodeMemo reverses BuildMemo, rejecting any memo whose type field is
// not exactly the Attestia witness marker.
func DecodeMemo(m Memo) ([]byte, error) {
	typeBytes, err := hex.DecodeString(m.MemoType)
	if err != nil {
		return nil, newErrf(ErrInvalidMemo, "memoType is not valid hex: %v", err)
	}
	if string(typeBytes) != memoTypeString {
		return nil, newErrf(ErrInvalidMemo, "memoType %q is not %q", string(typeBytes), memoTypeString)
	}
	data, err := hex.DecodeString(m.MemoData)
	if err != nil {
		return nil, newErrf(ErrInvalidMemo, "memoData is not valid hex: %v", err)
	}
	return data, nil
}

// WitnessRecord is the durable output of a successful witness submission.
type WitnessRecord struct {
	ID              string    `json:"id"`
	Payload         []byte    `json:"payload"`
	ChainID         string    `json:"chainId"`
	TxHash          string    `json:"txHash"`
	LedgerIndex     int64     `json:"ledgerIndex"`
	WitnessedAt     time.Time `json:"witnessedAt"`
	WitnessAccount  string    `json:"witnessAccount"`
}

// WitnessSubmitError wraps the error that ended the submit loop: a
// permanent error, or the last transient one once attempts ran out.
// Attempts is the number of submit calls made.
type WitnessSubmitError struct {
	Attempts int
	Cause    error
	Payload  []byte
}

func (e *WitnessSubmitError) Error() string {
	return "witness: submit failed after " + strconv.Itoa(e.Attempts) + " attempts: " + e.Cause.Error()
}

func (e *WitnessSubmitError) Unwrap() error { return e.Cause }

// Signer abstracts one wallet's ability to sign a prepared (unsigned)
// transaction blob. A single-sig flow uses exactly one Signer; a
// multi-sig flow uses one Signer per policy signer, each producing an
// independent partial signature over the same unsigned blob.
type Signer interface {
	Address() string
	Sign(ctx context.Context, unsignedBlob []byte) (signatureHex string, err error)
}

// TxPreparer builds the unsigned self-send transaction blob carrying memo
// and, for the multi-sig flow, combines per-signer signatures into one
// submittable blob. Implementations are chain-specific; pkg/chain/xrpl's
// RPC client is the transport this package submits the result over.
type TxPreparer interface {
	PrepareUnsigned(ctx context.Context, witnessAccount string, memo Memo) (unsignedBlob []byte, err error)
	AttachSingleSignature(unsignedBlob []byte, signatureHex string) (signedBlob []byte, err error)
	CombineSignatures(unsignedBlob []byte, sigs []governance.Signature) (signedBlob []byte, err error)
}

// Submitter relays a signed blob to the chain and returns its transaction
// hash and a ledger index. pkg/chain/xrpl.RPC satisfies this directly; its
// Submit returns after the submit call without waiting for validation.
type Submitter interface {
	Submit(ctx context.Context, signedTxBlobHex string) (txHash string, ledgerIndex int64, err error)
}

// RetryPolicy configures Submit's retry loop. Sleep is overridable in
// tests to avoid real delays.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Sleep       func(time.Duration)
}

// DefaultRetryPolicy returns a conservative exponential-backoff-with-
// jitter policy: 5 attempts, 200ms base, 10s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second, Sleep: time.Sleep}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d) + 1))
	return d/2 + jitter/2
}

// Config's ChainID is threaded through so WitnessRecord carries the chain
// id the submission actually happened on.
type Config struct {
	ChainID        string
	WitnessAccount string
	Retry          RetryPolicy
}

// Submit runs the single-sig flow: build the memo, prepare the unsigned
// self-send, sign it with the one wallet, submit with retry, and return
// the resulting WitnessRecord.
func Submit(ctx context.Context, payload interface{}, prep TxPreparer, signer Signer, sub Submitter, cfg Config) (WitnessRecord, error) {
	memo, err := BuildMemo(payload)
	if err != nil {
		return WitnessRecord{}, err
	}
	payloadBytes, err := canonicaljson.Marshal(payload)
	if err != nil {
		return WitnessRecord{}, err
	}

	unsigned, err := prep.PrepareUnsigned(ctx, cfg.WitnessAccount, memo)
	if err != nil {
		return WitnessRecord{}, err
	}
	sigHex, err := signer.Sign(ctx, unsigned)
	if err != nil {
		return WitnessRecord{}, err
	}
	signed, err := prep.AttachSingleSignature(unsigned, sigHex)
	if err != nil {
		return WitnessRecord{}, err
	}

	txHash, ledgerIndex, attempts, err := submitWithRetry(ctx, sub, hex.EncodeToString(signed), cfg.Retry)
	if err != nil {
		return WitnessRecord{}, &WitnessSubmitError{Attempts: attempts, Cause: err, Payload: payloadBytes}
	}

	id, err := canonicaljson.HashOf(struct {
		TxHash string `json:"txHash"`
		Chain  string `json:"chainId"`
	}{TxHash: txHash, Chain: cfg.ChainID})
	if err != nil {
		return WitnessRecord{}, err
	}

	return WitnessRecord{
		ID:             id,
		Payload:        payloadBytes,
		ChainID:        cfg.ChainID,
		TxHash:         txHash,
		LedgerIndex:    ledgerIndex,
		WitnessedAt:    time.Now().UTC(),
		WitnessAccount: cfg.WitnessAccount,
	}, nil
}

// MultiSigSubmit runs the multi-sig flow: every signer signs the same
// prepared transaction independently; quorum is verified against policy
// BEFORE a combined blob is ever built or submitted, so a sub-quorum
// signature set never reaches the network.
func MultiSigSubmit(ctx context.Context, payload interface{}, prep TxPreparer, signers []Signer, policy governance.GovernancePolicy, sub Submitter, cfg Config) (WitnessRecord, error) {
	memo, err := BuildMemo(payload)
	if err != nil {
		return WitnessRecord{}, err
	}
	payloadBytes, err := canonicaljson.Marshal(payload)
	if err != nil {
		return WitnessRecord{}, err
	}

	unsigned, err := prep.PrepareUnsigned(ctx, cfg.WitnessAccount, memo)
	if err != nil {
		return WitnessRecord{}, err
	}

	payloadHash := canonicaljson.Hash(payloadBytes)
	sigs := make([]governance.Signature, 0, len(signers))
	for _, signer := range signers {
		sigHex, err := signer.Sign(ctx, unsigned)
		if err != nil {
			return WitnessRecord{}, err
		}
		sigs = append(sigs, governance.Signature{Address: signer.Address(), Signature: sigHex})
	}

	agg, err := governance.AggregateSignatures(sigs, policy, payloadHash)
	if err != nil {
		return WitnessRecord{}, newErrf(ErrQuorumNotMet, "%v", err)
	}

	signed, err := prep.CombineSignatures(unsigned, agg.Signatures)
	if err != nil {
		return WitnessRecord{}, err
	}

	txHash, ledgerIndex, attempts, err := submitWithRetry(ctx, sub, hex.EncodeToString(signed), cfg.Retry)
	if err != nil {
		return WitnessRecord{}, &WitnessSubmitError{Attempts: attempts, Cause: err, Payload: payloadBytes}
	}

	id, err := canonicaljson.HashOf(struct {
		TxHash string `json:"txHash"`
		Chain  string `json:"chainId"`
	}{TxHash: txHash, Chain: cfg.ChainID})
	if err != nil {
		return WitnessRecord{}, err
	}

	return WitnessRecord{
		ID:             id,
		Payload:        payloadBytes,
		ChainID:        cfg.ChainID,
		TxHash:         txHash,
		LedgerIndex:    ledgerIndex,
		WitnessedAt:    time.Now().UTC(),
		WitnessAccount: cfg.WitnessAccount,
	}, nil
}

// submitWithRetry retries only errors classified transient (those
// wrapping ErrTransient); a permanent error returns immediately without
// consuming further attempts. It also returns the number of submit calls
// made.
func submitWithRetry(ctx context.Context, sub Submitter, signedBlobHex string, policy RetryPolicy) (string, int64, int, error) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Sleep == nil {
		policy.Sleep = time.Sleep
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		txHash, ledgerIndex, err := sub.Submit(ctx, signedBlobHex)
		if err == nil {
			return txHash, ledgerIndex, attempt + 1, nil
		}
		lastErr = err
		if !errors.Is(err, ErrTransient) {
			return "", 0, attempt + 1, err
		}
		if attempt < policy.MaxAttempts-1 {
			policy.Sleep(policy.delay(attempt))
		}
	}
	return "", 0, policy.MaxAttempts, lastErr
}

// VerifyResult is the outcome of VerifyWitness.
type VerifyResult struct {
	Verified      bool     `json:"verified"`
	Discrepancies []string `json:"discrepancies,omitempty"`
}

// FetchedMemo is whatever the verifier's tx lookup returns: a transaction
// hash plus its decoded Attestia memo, if any.
type FetchedMemo struct {
	TxHash string
	Memo   *Memo // nil if the transaction carries no Attestia memo
}

// TxFetcher looks a transaction up by hash for the verifier side. A
// separate, narrower interface than Submitter so a verifier that only
// reads chain data never needs submit credentials.
type TxFetcher interface {
	FetchMemo(ctx context.Context, chainID, txHash string) (FetchedMemo, error)
}

// VerifyWitness fetches the record's transaction, checks that it carries
// an Attestia memo, decodes it, compares the hash of the decoded payload
// with declaredHash (when non-empty), and compares the decoded payload and
// the fetched transaction hash with the held WitnessRecord. LedgerIndex,
// WitnessAccount and WitnessedAt are not checked. Once the fetch succeeds,
// any mismatch is reported in the result rather than as an error; a fetch
// failure is returned as an error.
func VerifyWitness(ctx context.Context, fetcher TxFetcher, record WitnessRecord, declaredHash string) (VerifyResult, error) {
	fetched, err := fetcher.FetchMemo(ctx, record.ChainID, record.TxHash)
	if err != nil {
		return VerifyResult{}, err
	}

	var discrepancies []string
	if fetched.Memo == nil {
		discrepancies = append(discrepancies, "transaction carries no Attestia witness memo")
		return VerifyResult{Verified: false, Discrepancies: discrepancies}, nil
	}

	decoded, err := DecodeMemo(*fetched.Memo)
	if err != nil {
		discrepancies = append(discrepancies, err.Error())
		return VerifyResult{Verified: false, Discrepancies: discrepancies}, nil
	}

	recomputedHash := canonicaljson.Hash(decoded)
	if declaredHash != "" && recomputedHash != declaredHash {
		discrepancies = append(discrepancies, "decoded memo payload hash does not match the declared hash")
	}

	var decodedPayload json.RawMessage
	if err := json.Unmarshal(decoded, &decodedPayload); err != nil {
		discrepancies = append(discrepancies, "decoded memo payload is not valid JSON")
	} else {
		canonRecord, err := canonicaljson.Canonicalize(record.Payload)
		if err == nil {
			canonDecoded, err2 := canonicaljson.Canonicalize(decoded)
			if err2 == nil && string(canonRecord) != string(canonDecoded) {
				discrepancies = append(discrepancies, "decoded memo payload does not match the held witness record")
			}
		}
	}

	if fetched.TxHash != record.TxHash {
		discrepancies = append(discrepancies, "fetched transaction hash does not match the held witness record")
	}

	return VerifyResult{Verified: len(discrepancies) == 0, Discrepancies: discrepancies}, nil
}
