// Copyright 2025 Certen Protocol

// Package ledger implements a double-entry ledger over the event store's
// derived state: every append is a batch of entries sharing one
// correlationId, and every currency that batch touches must net debits to
// credits. Accounts carry no currency of their own — an account's balance
// is reported per currency, independently.
//
// CONCURRENCY: Append is a single critical section guarded by mu, matching
// the event store's "one writer at a time" model (see pkg/eventstore).
// Reads (GetBalance, GetTrialBalance, GetEntries, Snapshot) take the read
// lock and may run concurrently with each other.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/certen/attestia/pkg/money"
)

// AccountType fixes which side of an entry increases an account's balance.
type AccountType string

const (
	Asset     AccountType = "asset"
	Liability AccountType = "liability"
	Income    AccountType = "income"
	Expense   AccountType = "expense"
	Equity    AccountType = "equity"
)

// NormalSide returns the side on which this account type's balance
// normally sits: Asset/Expense are debit-normal, everything else is
// credit-normal.
func (t AccountType) NormalSide() EntryType {
	switch t {
	case Asset, Expense:
		return Debit
	default:
		return Credit
	}
}

func (t AccountType) valid() bool {
	switch t {
	case Asset, Liability, Income, Expense, Equity:
		return true
	default:
		return false
	}
}

// EntryType is one leg of a balanced batch.
type EntryType string

const (
	Debit  EntryType = "debit"
	Credit EntryType = "credit"
)

// Account is a named bucket entries post against.
type Account struct {
	ID        string      `json:"id"`
	Type      AccountType `json:"type"`
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Entry is one leg of a Transaction, supplied by the caller before an id or
// timestamp has been assigned.
type Entry struct {
	ID            string       `json:"id"`
	AccountID     string       `json:"accountId"`
	Type          EntryType    `json:"type"`
	Money         money.Amount `json:"money"`
	CorrelationID string       `json:"correlationId"`
	IntentID      string       `json:"intentId,omitempty"`
	TxHash        string       `json:"txHash,omitempty"`
	Timestamp     time.Time    `json:"timestamp"` // zero means "assign now" on Append
}

// Transaction is the record of one accepted Append: every entry posted
// together under a single correlationId.
type Transaction struct {
	CorrelationID string    `json:"correlationId"`
	Entries       []Entry   `json:"entries"`
	Timestamp     time.Time `json:"timestamp"`
	Description   string    `json:"description,omitempty"`
	EntryCount    int       `json:"entryCount"`
}

// CurrencyBalance is one currency's running totals on an account.
type CurrencyBalance struct {
	Currency     string
	TotalDebits  money.Amount
	TotalCredits money.Amount
	Balance      money.Amount // signed per the account's normal side
}

// TrialBalanceLine is one (account, currency) row of a trial balance.
type TrialBalanceLine struct {
	AccountID string
	Currency  string
	Debit     money.Amount // debit column; zero when the line nets to a credit
	Credit    money.Amount
}

// TrialBalance reports every account/currency pair plus whether debits and
// credits reconcile overall, per currency.
type TrialBalance struct {
	Lines    []TrialBalanceLine
	Balanced bool
	AsOf     time.Time
}

// EntryFilter selects a subset of GetEntries' results. Zero-value fields
// are not applied.
type EntryFilter struct {
	AccountID     string
	CorrelationID string
	Currency      string
	IntentID      string
	TxHash        string
	FromTimestamp time.Time
	ToTimestamp   time.Time
}

func (f EntryFilter) matches(e Entry) bool {
	if f.AccountID != "" && e.AccountID != f.AccountID {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if f.Currency != "" && e.Money.Currency != f.Currency {
		return false
	}
	if f.IntentID != "" && e.IntentID != f.IntentID {
		return false
	}
	if f.TxHash != "" && e.TxHash != f.TxHash {
		return false
	}
	if !f.FromTimestamp.IsZero() && e.Timestamp.Before(f.FromTimestamp) {
		return false
	}
	if !f.ToTimestamp.IsZero() && e.Timestamp.After(f.ToTimestamp) {
		return false
	}
	return true
}

// Snapshot is a value object capturing the entire ledger's state: accounts,
// every posted entry, and every transaction. FromSnapshot restores a Ledger
// that continues to enforce every uniqueness constraint a fresh Ledger
// would.
type Snapshot struct {
	Accounts     []Account     `json:"accounts"`
	Entries      []Entry       `json:"entries"`
	Transactions []Transaction `json:"transactions"`
}

// Ledger is an in-memory double-entry ledger.
type Ledger struct {
	mu           sync.RWMutex
	accounts     map[string]Account
	entryIDs     map[string]struct{}
	entries      []Entry // global post order
	transactions []Transaction
}

// New constructs an empty Ledger.
func New() *Ledger {
	return &Ledger{
		accounts: make(map[string]Account),
		entryIDs: make(map[string]struct{}),
	}
}

// RegisterAccount adds a new account. Re-registering the same id fails with
// ErrConflict. createdAt defaults to time.Now().UTC() when zero.
func (l *Ledger) RegisterAccount(id string, typ AccountType, name string, createdAt time.Time) (Account, error) {
	if id == "" {
		return Account{}, newErr(ErrInvalidInput, "account id is required")
	}
	if !typ.valid() {
		return Account{}, newErrf(ErrInvalidInput, "unknown account type %q", typ)
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[id]; exists {
		return Account{}, newErrf(ErrConflict, "account %q already registered", id)
	}
	acct := Account{ID: id, Type: typ, Name: name, CreatedAt: createdAt}
	l.accounts[id] = acct
	return acct, nil
}

// GetAccount returns a registered account by id.
func (l *Ledger) GetAccount(id string) (Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[id]
	if !ok {
		return Account{}, newErrf(ErrNotFound, "account %q", id)
	}
	return acct, nil
}

// AppendOptions carries the optional description attached to a Transaction.
type AppendOptions struct {
	Description string
}

// Append validates and, if every rule below passes, posts a batch of
// entries atomically:
//
//  1. the batch is non-empty
//  2. every entry shares one correlationId
//  3. entry ids are unique within the batch and against every prior entry
//  4. every accountId is registered
//  5. every Money is well-formed and strictly positive
//  6. per currency present in the batch, debits and credits net to zero
//
// A failure at any step leaves the ledger completely unchanged.
func (l *Ledger) Append(entries []Entry, opts AppendOptions) (Transaction, error) {
	if len(entries) == 0 {
		return Transaction{}, newErr(ErrInvalidInput, "batch has no entries")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	correlationID := entries[0].CorrelationID
	if correlationID == "" {
		return Transaction{}, newErr(ErrInvalidInput, "correlationId is required")
	}

	seenIDs := make(map[string]struct{}, len(entries))
	totals := map[string]money.Amount{} // currency -> signed net, debit positive

	for i, e := range entries {
		if e.CorrelationID != correlationID {
			return Transaction{}, newErr(ErrInvalidInput, "every entry in a batch must share one correlationId")
		}
		if e.ID == "" {
			return Transaction{}, newErrf(ErrInvalidInput, "entry %d: id is required", i)
		}
		if _, dup := seenIDs[e.ID]; dup {
			return Transaction{}, newErrf(ErrConflict, "entry id %q duplicated within batch", e.ID)
		}
		if _, dup := l.entryIDs[e.ID]; dup {
			return Transaction{}, newErrf(ErrConflict, "entry id %q already posted", e.ID)
		}
		seenIDs[e.ID] = struct{}{}

		if e.Type != Debit && e.Type != Credit {
			return Transaction{}, newErrf(ErrInvalidInput, "entry %q has invalid type %q", e.ID, e.Type)
		}
		if _, ok := l.accounts[e.AccountID]; !ok {
			return Transaction{}, newErrf(ErrNotFound, "account %q", e.AccountID)
		}
		if err := validateMoney(e.Money); err != nil {
			return Transaction{}, err
		}

		sum, ok := totals[e.Money.Currency]
		if !ok {
			sum = money.Zero(e.Money.Currency, e.Money.Scale)
		}
		signed := e.Money
		if e.Type == Credit {
			signed = signed.Neg()
		}
		net, err := sum.Add(signed)
		if err != nil {
			return Transaction{}, newErrf(ErrInvalidInput, "entry %q: %v", e.ID, err)
		}
		totals[e.Money.Currency] = net
	}

	currencies := make([]string, 0, len(totals))
	for c := range totals {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		if !totals[c].IsZero() {
			return Transaction{}, newErrf(ErrUnbalanced, "currency %s does not net to zero (%s)", c, totals[c].String())
		}
	}

	now := time.Now().UTC()
	posted := make([]Entry, len(entries))
	for i, e := range entries {
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		posted[i] = e
		l.entryIDs[e.ID] = struct{}{}
	}
	l.entries = append(l.entries, posted...)

	tx := Transaction{
		CorrelationID: correlationID,
		Entries:       posted,
		Timestamp:     now,
		Description:   opts.Description,
		EntryCount:    len(posted),
	}
	l.transactions = append(l.transactions, tx)
	return tx, nil
}

// GetBalance returns accountID's running totals and signed balance for
// every currency it has entries in.
func (l *Ledger) GetBalance(accountID string) (map[string]CurrencyBalance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[accountID]
	if !ok {
		return nil, newErrf(ErrNotFound, "account %q", accountID)
	}
	return l.balancesLocked(acct), nil
}

func (l *Ledger) balancesLocked(acct Account) map[string]CurrencyBalance {
	normal := acct.Type.NormalSide()
	out := map[string]CurrencyBalance{}
	for _, e := range l.entries {
		if e.AccountID != acct.ID {
			continue
		}
		cur, ok := out[e.Money.Currency]
		if !ok {
			z := money.Zero(e.Money.Currency, e.Money.Scale)
			cur = CurrencyBalance{Currency: e.Money.Currency, TotalDebits: z, TotalCredits: z, Balance: z}
		}
		if e.Type == Debit {
			cur.TotalDebits, _ = cur.TotalDebits.Add(e.Money)
		} else {
			cur.TotalCredits, _ = cur.TotalCredits.Add(e.Money)
		}
		out[e.Money.Currency] = cur
	}
	for c, cur := range out {
		var bal money.Amount
		if normal == Debit {
			bal, _ = cur.TotalDebits.Sub(cur.TotalCredits)
		} else {
			bal, _ = cur.TotalCredits.Sub(cur.TotalDebits)
		}
		cur.Balance = bal
		out[c] = cur
	}
	return out
}

// GetTrialBalance reports every account/currency line placed in the column
// matching the account's normal side, and whether debits equal credits per
// currency across the whole ledger. asOf, when non-zero, excludes entries
// timestamped after it.
func (l *Ledger) GetTrialBalance(asOf time.Time) TrialBalance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	currencyNet := map[string]money.Amount{} // debit-column minus credit-column
	lines := make([]TrialBalanceLine, 0, len(ids))

	for _, id := range ids {
		perCurrency := map[string]money.Amount{}
		for _, e := range l.entries {
			if e.AccountID != id {
				continue
			}
			if !asOf.IsZero() && e.Timestamp.After(asOf) {
				continue
			}
			signed := e.Money
			if e.Type == Credit {
				signed = signed.Neg()
			}
			cur, ok := perCurrency[e.Money.Currency]
			if !ok {
				cur = money.Zero(e.Money.Currency, e.Money.Scale)
			}
			cur, _ = cur.Add(signed)
			perCurrency[e.Money.Currency] = cur
		}
		currencies := make([]string, 0, len(perCurrency))
		for c := range perCurrency {
			currencies = append(currencies, c)
		}
		sort.Strings(currencies)
		for _, c := range currencies {
			net := perCurrency[c]
			line := TrialBalanceLine{AccountID: id, Currency: c}
			if net.IsNegative() {
				line.Credit = net.Abs()
				line.Debit = money.Zero(c, net.Scale)
			} else {
				line.Debit = net
				line.Credit = money.Zero(c, net.Scale)
			}
			lines = append(lines, line)

			total, ok := currencyNet[c]
			if !ok {
				total = money.Zero(c, net.Scale)
			}
			total, _ = total.Add(net)
			currencyNet[c] = total
		}
	}

	balanced := true
	for _, net := range currencyNet {
		if !net.IsZero() {
			balanced = false
			break
		}
	}

	return TrialBalance{Lines: lines, Balanced: balanced, AsOf: asOf}
}

// GetEntries returns every posted entry matching filter, in post order.
func (l *Ledger) GetEntries(filter EntryFilter) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0)
	for _, e := range l.entries {
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// GetEntriesByCorrelation returns every entry sharing correlationID, in
// post order.
func (l *Ledger) GetEntriesByCorrelation(correlationID string) []Entry {
	return l.GetEntries(EntryFilter{CorrelationID: correlationID})
}

// GetTransactions returns every posted transaction in post order.
func (l *Ledger) GetTransactions() []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Transaction, len(l.transactions))
	copy(out, l.transactions)
	return out
}

// Snapshot returns a value-object copy of the entire ledger state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	accts := make([]Account, 0, len(l.accounts))
	ids := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		accts = append(accts, l.accounts[id])
	}
	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	txs := make([]Transaction, len(l.transactions))
	copy(txs, l.transactions)
	return Snapshot{Accounts: accts, Entries: entries, Transactions: txs}
}

// FromSnapshot restores a Ledger from a prior Snapshot. The restored Ledger
// enforces every uniqueness constraint (account ids, entry ids) against
// the snapshot's contents for all future Append calls.
func FromSnapshot(snap Snapshot) *Ledger {
	l := New()
	for _, a := range snap.Accounts {
		l.accounts[a.ID] = a
	}
	l.entries = append(l.entries, snap.Entries...)
	for _, e := range snap.Entries {
		l.entryIDs[e.ID] = struct{}{}
	}
	l.transactions = append(l.transactions, snap.Transactions...)
	return l
}

// validateMoney enforces the Money invariants shared by every entry: a
// non-empty currency, a non-negative integer scale, a well-formed amount
// string, and a strictly positive value — zero and negative entries are
// rejected, since an entry's side (debit/credit) already carries its sign.
func validateMoney(m money.Amount) error {
	if m.Currency == "" {
		return newErr(ErrInvalidInput, "money: currency is required")
	}
	if m.Scale < 0 {
		return newErr(ErrInvalidInput, "money: scale must be >= 0")
	}
	if _, err := money.Parse(m.Currency, m.Scale, m.String()); err != nil {
		return newErrf(ErrInvalidInput, "money: malformed amount: %v", err)
	}
	if !m.IsPositive() {
		return newErr(ErrInvalidInput, "money: amount must be strictly positive")
	}
	return nil
}
