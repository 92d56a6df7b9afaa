// Copyright 2025 Certen Protocol

package reconciler

import (
	"testing"
	"time"

	"github.com/certen/attestia/pkg/chain"
	"github.com/certen/attestia/pkg/ledger"
	"github.com/certen/attestia/pkg/money"
)

func mustAmount(t *testing.T, currency string, decimals int, s string) money.Amount {
	t.Helper()
	a, err := money.Parse(currency, decimals, s)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// TestThreeWayReconciliationPass reproduces spec's S4 scenario.
func TestThreeWayReconciliationPass(t *testing.T) {
	in := Input{
		Intents: []Intent{
			{ID: "i1", Status: IntentExecuted, ChainID: "eip155:1", TxHash: "0xabc"},
		},
		LedgerEntries: []ledger.Entry{
			{ID: "e1", AccountID: "acct-1", Type: ledger.Debit, Money: mustAmount(t, "USDC", 6, "100"), CorrelationID: "corr-1", IntentID: "i1", TxHash: "0xabc"},
		},
		ChainEvents: []chain.TransferEvent{
			{ChainID: "eip155:1", TxHash: "0xabc", Amount: "100.000000", Decimals: 6, Symbol: "USDC"},
		},
	}
	report, err := Reconcile(in, Options{Now: time.Unix(0, 0).UTC()})
	if err != nil {
		t.Fatal(err)
	}
	if report.MatchedCount != 1 || report.MismatchCount != 0 || report.MissingCount != 0 {
		t.Fatalf("expected matched=1 mismatch=0 missing=0, got matched=%d mismatch=%d missing=%d",
			report.MatchedCount, report.MismatchCount, report.MissingCount)
	}
	if report.BundleHash == "" {
		t.Fatal("expected a non-empty bundleHash")
	}
}

func TestMissingLedgerEntry(t *testing.T) {
	in := Input{
		Intents: []Intent{{ID: "i1", Status: IntentExecuted, ChainID: "eip155:1", TxHash: "0xabc"}},
	}
	report, err := Reconcile(in, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.MissingCount != 1 || report.Missing[0].Category != MissingLedgerEntry {
		t.Fatalf("expected one MISSING_LEDGER_ENTRY discrepancy, got %+v", report.Missing)
	}
}

func TestMissingChainEvent(t *testing.T) {
	in := Input{
		Intents: []Intent{{ID: "i1", Status: IntentExecuted, ChainID: "eip155:1", TxHash: "0xabc"}},
		LedgerEntries: []ledger.Entry{
			{ID: "e1", AccountID: "acct-1", Type: ledger.Debit, Money: mustAmount(t, "USDC", 6, "100"), CorrelationID: "corr-1", IntentID: "i1", TxHash: "0xabc"},
		},
	}
	report, err := Reconcile(in, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.MissingCount != 1 || report.Missing[0].Category != MissingChainEvent {
		t.Fatalf("expected one MISSING_CHAIN_EVENT discrepancy, got %+v", report.Missing)
	}
}

func TestAmountMismatch(t *testing.T) {
	in := Input{
		Intents: []Intent{{ID: "i1", Status: IntentExecuted, ChainID: "eip155:1", TxHash: "0xabc"}},
		LedgerEntries: []ledger.Entry{
			{ID: "e1", AccountID: "acct-1", Type: ledger.Debit, Money: mustAmount(t, "USDC", 6, "100"), CorrelationID: "corr-1", IntentID: "i1", TxHash: "0xabc"},
		},
		ChainEvents: []chain.TransferEvent{
			{ChainID: "eip155:1", TxHash: "0xabc", Amount: "99.000000", Decimals: 6, Symbol: "USDC"},
		},
	}
	report, err := Reconcile(in, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.MismatchCount != 1 || report.Mismatches[0].Category != AmountMismatch {
		t.Fatalf("expected one AMOUNT_MISMATCH discrepancy, got %+v", report.Mismatches)
	}
}

func TestOrphanChainEvent(t *testing.T) {
	in := Input{
		ChainEvents: []chain.TransferEvent{
			{ChainID: "eip155:1", TxHash: "0xdead", Amount: "5.000000", Decimals: 6, Symbol: "USDC"},
		},
	}
	report, err := Reconcile(in, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.MismatchCount != 1 || report.Mismatches[0].Category != OrphanChainEvent {
		t.Fatalf("expected one ORPHAN_CHAIN_EVENT discrepancy, got %+v", report.Mismatches)
	}
}

func TestBundleHashStableAcrossReplays(t *testing.T) {
	in := Input{
		Intents: []Intent{{ID: "i1", Status: IntentExecuted, ChainID: "eip155:1", TxHash: "0xabc"}},
		LedgerEntries: []ledger.Entry{
			{ID: "e1", AccountID: "acct-1", Type: ledger.Debit, Money: mustAmount(t, "USDC", 6, "100"), CorrelationID: "corr-1", IntentID: "i1", TxHash: "0xabc"},
		},
		ChainEvents: []chain.TransferEvent{
			{ChainID: "eip155:1", TxHash: "0xabc", Amount: "100.000000", Decimals: 6, Symbol: "USDC"},
		},
	}
	stamp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r1, err := Reconcile(in, Options{ReportID: "fixed", Now: stamp})
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Reconcile(in, Options{ReportID: "fixed", Now: stamp})
	if err != nil {
		t.Fatal(err)
	}
	if r1.BundleHash != r2.BundleHash {
		t.Fatalf("bundleHash not stable across replays: %s vs %s", r1.BundleHash, r2.BundleHash)
	}
}
