// Copyright 2025 Certen Protocol

package ledger

import (
	"testing"
	"time"

	"github.com/certen/attestia/pkg/money"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New()
	if _, err := l.RegisterAccount("cash", Asset, "Cash", time.Time{}); err != nil {
		t.Fatal(err)
	}
	if _, err := l.RegisterAccount("revenue", Income, "Revenue", time.Time{}); err != nil {
		t.Fatal(err)
	}
	return l
}

func TestAppendBalancedAccepted(t *testing.T) {
	l := newTestLedger(t)
	amt, _ := money.Parse("USDC", 6, "100.000000")
	_, err := l.Append([]Entry{
		{ID: "e1", AccountID: "cash", Type: Debit, Money: amt, CorrelationID: "tx1"},
		{ID: "e2", AccountID: "revenue", Type: Credit, Money: amt, CorrelationID: "tx1"},
	}, AppendOptions{})
	if err != nil {
		t.Fatalf("expected balanced batch to be accepted: %v", err)
	}

	bal, err := l.GetBalance("cash")
	if err != nil {
		t.Fatal(err)
	}
	if bal["USDC"].Balance.String() != "100.000000" {
		t.Fatalf("got balance %s", bal["USDC"].Balance.String())
	}
	if bal["USDC"].TotalDebits.String() != "100.000000" || bal["USDC"].TotalCredits.String() != "0.000000" {
		t.Fatalf("unexpected totals: %+v", bal["USDC"])
	}

	tb := l.GetTrialBalance(time.Time{})
	if !tb.Balanced {
		t.Fatalf("expected balanced trial balance")
	}
}

func TestAppendUnbalancedRejectedLeavesStateUnchanged(t *testing.T) {
	l := newTestLedger(t)
	debit, _ := money.Parse("USDC", 6, "100.000000")
	credit, _ := money.Parse("USDC", 6, "50.000000")
	_, err := l.Append([]Entry{
		{ID: "e1", AccountID: "cash", Type: Debit, Money: debit, CorrelationID: "tx1"},
		{ID: "e2", AccountID: "revenue", Type: Credit, Money: credit, CorrelationID: "tx1"},
	}, AppendOptions{})
	if err == nil {
		t.Fatalf("expected unbalanced batch to be rejected")
	}
	if len(l.GetTransactions()) != 0 {
		t.Fatalf("expected no transactions to be recorded")
	}
	if len(l.entries) != 0 {
		t.Fatalf("expected no entries to be recorded")
	}
}

func TestAppendRejectsZeroOrNegativeAmount(t *testing.T) {
	l := newTestLedger(t)
	zero := money.Zero("USDC", 6)
	_, err := l.Append([]Entry{
		{ID: "e1", AccountID: "cash", Type: Debit, Money: zero, CorrelationID: "tx1"},
	}, AppendOptions{})
	if err == nil {
		t.Fatalf("expected zero-amount entry to be rejected")
	}
}

func TestAppendRejectsDuplicateEntryID(t *testing.T) {
	l := newTestLedger(t)
	amt, _ := money.Parse("USDC", 6, "10.000000")
	if _, err := l.Append([]Entry{
		{ID: "dup", AccountID: "cash", Type: Debit, Money: amt, CorrelationID: "tx1"},
		{ID: "dup2", AccountID: "revenue", Type: Credit, Money: amt, CorrelationID: "tx1"},
	}, AppendOptions{}); err != nil {
		t.Fatal(err)
	}
	_, err := l.Append([]Entry{
		{ID: "dup", AccountID: "cash", Type: Debit, Money: amt, CorrelationID: "tx2"},
		{ID: "dup3", AccountID: "revenue", Type: Credit, Money: amt, CorrelationID: "tx2"},
	}, AppendOptions{})
	if err == nil {
		t.Fatalf("expected duplicate entry id to be rejected")
	}
}

func TestSnapshotRoundtrip(t *testing.T) {
	l := newTestLedger(t)
	amt, _ := money.Parse("USDC", 6, "25.000000")
	if _, err := l.Append([]Entry{
		{ID: "e1", AccountID: "cash", Type: Debit, Money: amt, CorrelationID: "tx1"},
		{ID: "e2", AccountID: "revenue", Type: Credit, Money: amt, CorrelationID: "tx1"},
	}, AppendOptions{}); err != nil {
		t.Fatal(err)
	}

	snap := l.Snapshot()
	restored := FromSnapshot(snap)
	snap2 := restored.Snapshot()

	if len(snap.Entries) != len(snap2.Entries) || len(snap.Accounts) != len(snap2.Accounts) {
		t.Fatalf("snapshot roundtrip mismatch")
	}

	// Uniqueness constraints must still hold on the restored ledger.
	_, err := restored.Append([]Entry{
		{ID: "e1", AccountID: "cash", Type: Debit, Money: amt, CorrelationID: "tx2"},
	}, AppendOptions{})
	if err == nil {
		t.Fatalf("expected restored ledger to still reject a reused entry id")
	}
}

func TestGetEntriesFilter(t *testing.T) {
	l := newTestLedger(t)
	amt, _ := money.Parse("USDC", 6, "1.000000")
	if _, err := l.Append([]Entry{
		{ID: "e1", AccountID: "cash", Type: Debit, Money: amt, CorrelationID: "tx1", IntentID: "i1"},
		{ID: "e2", AccountID: "revenue", Type: Credit, Money: amt, CorrelationID: "tx1", IntentID: "i1"},
	}, AppendOptions{}); err != nil {
		t.Fatal(err)
	}
	out := l.GetEntries(EntryFilter{IntentID: "i1"})
	if len(out) != 2 {
		t.Fatalf("expected 2 entries for intent, got %d", len(out))
	}
	out = l.GetEntries(EntryFilter{AccountID: "cash"})
	if len(out) != 1 || out[0].ID != "e1" {
		t.Fatalf("unexpected filter result: %+v", out)
	}
}
