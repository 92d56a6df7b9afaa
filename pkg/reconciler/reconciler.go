// Copyright 2025 Certen Protocol

// Package reconciler implements the three-way match between declared
// intents, posted ledger entries, and observed chain events: the step
// that turns "what we meant to happen" and "what we recorded" into
// evidence that "what actually happened on-chain" agrees with both.
//
// The Intent shape (id, correlation to a chain transaction) and the
// match-then-aggregate control flow follow this module's batch consensus
// coordination style, generalized from anchor-batch consensus to
// intent/ledger/chain reconciliation.
package reconciler

import (
	"fmt"
	"sort"
	"time"

	"github.com/certen/attestia/pkg/canonicaljson"
	"github.com/certen/attestia/pkg/chain"
	"github.com/certen/attestia/pkg/ledger"
	"github.com/certen/attestia/pkg/money"
)

// IntentStatus is the lifecycle state of a declared intent.
type IntentStatus string

const (
	IntentPending  IntentStatus = "pending"
	IntentExecuted IntentStatus = "executed"
	IntentFailed   IntentStatus = "failed"
)

// Intent is a declared instruction that should, once executed, have a
// matching chain event and ledger entry.
type Intent struct {
	ID            string       `json:"id"`
	Status        IntentStatus `json:"status"`
	ChainID       string       `json:"chainId"`
	TxHash        string       `json:"txHash,omitempty"`
	CorrelationID string       `json:"correlationId,omitempty"`
}

// DiscrepancyCategory classifies why a three-way match failed.
type DiscrepancyCategory string

const (
	AmountMismatch      DiscrepancyCategory = "AMOUNT_MISMATCH"
	MissingChainEvent   DiscrepancyCategory = "MISSING_CHAIN_EVENT"
	MissingLedgerEntry  DiscrepancyCategory = "MISSING_LEDGER_ENTRY"
	OrphanChainEvent    DiscrepancyCategory = "ORPHAN_CHAIN_EVENT"
)

// Discrepancy carries enough context to explain a mismatch in evidence
// text: the correlating ids plus expected/actual amounts where relevant.
type Discrepancy struct {
	Category      DiscrepancyCategory `json:"category"`
	IntentID      string               `json:"intentId,omitempty"`
	CorrelationID string               `json:"correlationId,omitempty"`
	ChainID       string               `json:"chainId,omitempty"`
	TxHash        string               `json:"txHash,omitempty"`
	Expected      string               `json:"expected,omitempty"`
	Actual        string               `json:"actual,omitempty"`
	Detail        string               `json:"detail"`
}

// MatchedTriple is one intent successfully reconciled against both a
// ledger entry and a chain event.
type MatchedTriple struct {
	IntentID      string `json:"intentId"`
	CorrelationID string `json:"correlationId"`
	ChainID       string `json:"chainId"`
	TxHash        string `json:"txHash"`
}

// Attestation is the signed-record output of a successful reconciliation
// run: evidence that the state at snapshotHash was checked.
type Attestation struct {
	ID           string    `json:"id"`
	ReportID     string    `json:"reportId"`
	SnapshotHash string    `json:"snapshotHash"`
	StateCount   int       `json:"stateCount"`
	AttestedBy   string    `json:"attestedBy"`
	AttestedAt   time.Time `json:"attestedAt"`
	Signature    string    `json:"signature,omitempty"`
}

// ReconciliationReport is the full output of one reconciliation run.
type ReconciliationReport struct {
	ReportID     string          `json:"reportId"`
	Matched      []MatchedTriple `json:"matched"`
	Mismatches   []Discrepancy   `json:"mismatches"`
	Missing      []Discrepancy   `json:"missing"`
	MatchedCount int             `json:"matchedCount"`
	MismatchCount int            `json:"mismatchCount"`
	MissingCount int             `json:"missingCount"`
	BundleHash   string          `json:"bundleHash"`
	Attestation  Attestation     `json:"attestation"`
}

// Input bundles everything one reconciliation run needs.
type Input struct {
	Intents      []Intent
	LedgerEntries []ledger.Entry
	ChainEvents  []chain.TransferEvent
}

// Options parametrizes a run; AttestedBy identifies the reconciling
// component/operator for the resulting Attestation.
type Options struct {
	ReportID   string // generated if empty
	AttestedBy string
	Now        time.Time // defaults to time.Now().UTC()
}

type chainKey struct {
	chainID string
	txHash  string
}

// Reconcile performs the three-way match described in spec.md §4.7:
//
//   - intents ↔ chain events key on (chainId, txHash) for executed intents
//   - intents ↔ ledger entries key on intentId
//   - ledger entries ↔ chain events key on (chainId, txHash, amount), amount
//     compared as the entry's scaled integer under its own decimals
//
// Every executed intent without a matching ledger entry, chain event, or
// agreeing amount produces a Discrepancy; every chain event touched by no
// intent is reported as an orphan. The report's entries are sorted by
// (chainId, txHash, correlationId) before hashing so bundleHash is stable
// across replays of the same logical input.
func Reconcile(in Input, opts Options) (ReconciliationReport, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	entriesByIntent := map[string][]ledger.Entry{}
	for _, e := range in.LedgerEntries {
		if e.IntentID != "" {
			entriesByIntent[e.IntentID] = append(entriesByIntent[e.IntentID], e)
		}
	}
	eventsByKey := map[chainKey][]chain.TransferEvent{}
	for _, ev := range in.ChainEvents {
		k := chainKey{chainID: ev.ChainID, txHash: ev.TxHash}
		eventsByKey[k] = append(eventsByKey[k], ev)
	}
	touchedEvents := map[chainKey]bool{}

	var matched []MatchedTriple
	var mismatches []Discrepancy
	var missing []Discrepancy

	for _, intent := range in.Intents {
		if intent.Status != IntentExecuted {
			continue
		}
		k := chainKey{chainID: intent.ChainID, txHash: intent.TxHash}

		entries := entriesByIntent[intent.ID]
		if len(entries) == 0 {
			missing = append(missing, Discrepancy{
				Category: MissingLedgerEntry,
				IntentID: intent.ID,
				ChainID:  intent.ChainID,
				TxHash:   intent.TxHash,
				Detail:   fmt.Sprintf("intent %s marked executed but no ledger entry carries intentId %s", intent.ID, intent.ID),
			})
			continue
		}

		events, haveEvent := eventsByKey[k]
		if !haveEvent || len(events) == 0 {
			missing = append(missing, Discrepancy{
				Category:      MissingChainEvent,
				IntentID:      intent.ID,
				CorrelationID: entries[0].CorrelationID,
				ChainID:       intent.ChainID,
				TxHash:        intent.TxHash,
				Detail:        fmt.Sprintf("intent %s executed on %s/%s but no chain event observed", intent.ID, intent.ChainID, intent.TxHash),
			})
			continue
		}
		touchedEvents[k] = true

		ev := events[0]
		entry := entries[0]
		expectedScaled, err := scaledAmount(entry.Money.String(), entry.Money.Scale)
		if err != nil {
			return ReconciliationReport{}, fmt.Errorf("reconciler: ledger entry %s: %w", entry.ID, err)
		}
		actualScaled, err := scaledAmount(ev.Amount, ev.Decimals)
		if err != nil {
			return ReconciliationReport{}, fmt.Errorf("reconciler: chain event %s/%s: %w", ev.ChainID, ev.TxHash, err)
		}
		if expectedScaled != actualScaled || entry.Money.Currency != ev.Symbol {
			mismatches = append(mismatches, Discrepancy{
				Category:      AmountMismatch,
				IntentID:      intent.ID,
				CorrelationID: entry.CorrelationID,
				ChainID:       intent.ChainID,
				TxHash:        intent.TxHash,
				Expected:      entry.Money.String() + " " + entry.Money.Currency,
				Actual:        ev.Amount + " " + ev.Symbol,
				Detail:        fmt.Sprintf("ledger entry %s disagrees with observed chain event %s/%s", entry.ID, ev.ChainID, ev.TxHash),
			})
			continue
		}

		matched = append(matched, MatchedTriple{
			IntentID:      intent.ID,
			CorrelationID: entry.CorrelationID,
			ChainID:       intent.ChainID,
			TxHash:        intent.TxHash,
		})
	}

	for k, events := range eventsByKey {
		if touchedEvents[k] {
			continue
		}
		for _, ev := range events {
			mismatches = append(mismatches, Discrepancy{
				Category: OrphanChainEvent,
				ChainID:  ev.ChainID,
				TxHash:   ev.TxHash,
				Actual:   ev.Amount + " " + ev.Symbol,
				Detail:   fmt.Sprintf("chain event %s/%s observed with no executed intent referencing it", ev.ChainID, ev.TxHash),
			})
		}
	}

	sortMatched(matched)
	sortDiscrepancies(mismatches)
	sortDiscrepancies(missing)

	report := ReconciliationReport{
		Matched:       matched,
		Mismatches:    mismatches,
		Missing:       missing,
		MatchedCount:  len(matched),
		MismatchCount: len(mismatches),
		MissingCount:  len(missing),
	}

	bundleHash, err := canonicaljson.HashOf(report)
	if err != nil {
		return ReconciliationReport{}, fmt.Errorf("reconciler: hash report: %w", err)
	}
	report.BundleHash = bundleHash

	reportID := opts.ReportID
	if reportID == "" {
		id, err := canonicaljson.HashOf(struct {
			BundleHash string    `json:"bundleHash"`
			Stamp      time.Time `json:"stamp"`
		}{BundleHash: bundleHash, Stamp: now})
		if err != nil {
			return ReconciliationReport{}, fmt.Errorf("reconciler: derive reportId: %w", err)
		}
		reportID = id
	}
	report.ReportID = reportID

	attestedBy := opts.AttestedBy
	if attestedBy == "" {
		attestedBy = "reconciler"
	}
	attestationID, err := canonicaljson.HashOf(struct {
		ReportID string `json:"reportId"`
		Hash     string `json:"snapshotHash"`
	}{ReportID: reportID, Hash: bundleHash})
	if err != nil {
		return ReconciliationReport{}, fmt.Errorf("reconciler: derive attestation id: %w", err)
	}
	report.Attestation = Attestation{
		ID:           attestationID,
		ReportID:     reportID,
		SnapshotHash: bundleHash,
		StateCount:   len(in.Intents) + len(in.LedgerEntries) + len(in.ChainEvents),
		AttestedBy:   attestedBy,
		AttestedAt:   now,
	}

	return report, nil
}

func sortMatched(m []MatchedTriple) {
	sort.Slice(m, func(i, j int) bool {
		if m[i].ChainID != m[j].ChainID {
			return m[i].ChainID < m[j].ChainID
		}
		if m[i].TxHash != m[j].TxHash {
			return m[i].TxHash < m[j].TxHash
		}
		return m[i].CorrelationID < m[j].CorrelationID
	})
}

func sortDiscrepancies(d []Discrepancy) {
	sort.Slice(d, func(i, j int) bool {
		if d[i].ChainID != d[j].ChainID {
			return d[i].ChainID < d[j].ChainID
		}
		if d[i].TxHash != d[j].TxHash {
			return d[i].TxHash < d[j].TxHash
		}
		return d[i].CorrelationID < d[j].CorrelationID
	})
}

// scaledAmount parses a decimal string under the given decimals and
// returns its unscaled integer value formatted as a string, so two
// amounts are comparable independent of zero-padding or formatting.
// Currency is deliberately ignored here; callers compare currency symbols
// separately.
func scaledAmount(amount string, decimals int) (string, error) {
	parsed, err := money.Parse("_", decimals, amount)
	if err != nil {
		return "", err
	}
	return parsed.Unscaled().String(), nil
}
