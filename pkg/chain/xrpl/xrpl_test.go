// Copyright 2025 Certen Protocol

package xrpl

import (
	"context"
	"testing"

	"github.com/certen/attestia/pkg/chain"
)

type mockRPC struct {
	ledger int64
	txs    []AccountTx
}

func (m *mockRPC) GetLedgerIndex(ctx context.Context) (int64, error) { return m.ledger, nil }
func (m *mockRPC) GetAccountBalance(ctx context.Context, address string) (string, error) {
	return "1000000", nil
}
func (m *mockRPC) GetTrustLineBalance(ctx context.Context, address, currency, issuer string) (string, error) {
	return "42.5", nil
}
func (m *mockRPC) GetAccountTx(ctx context.Context, address string, limit int) ([]AccountTx, error) {
	return m.txs, nil
}
func (m *mockRPC) Submit(ctx context.Context, blob string) (string, int64, error) {
	return "ABCDEF", m.ledger, nil
}

func newConnected(t *testing.T, txs []AccountTx) *Observer {
	t.Helper()
	o, err := NewWithRPC(Config{ChainID: "xrpl:mainnet"}, &mockRPC{ledger: 500, txs: txs})
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	return o
}

func TestGetTransfersSortedByLedgerIndexRegardlessOfOrder(t *testing.T) {
	o := newConnected(t, []AccountTx{
		{Hash: "tx-hi", LedgerIndex: 300, Account: "rAlice", Destination: "rBob", Amount: "10", Currency: "XRP", Successful: true},
		{Hash: "tx-lo", LedgerIndex: 100, Account: "rBob", Destination: "rAlice", Amount: "5", Currency: "XRP", Successful: true},
		{Hash: "tx-mid", LedgerIndex: 200, Account: "rAlice", Destination: "rCarol", Amount: "1", Currency: "XRP", Successful: true},
		{Hash: "tx-failed", LedgerIndex: 150, Account: "rAlice", Destination: "rBob", Amount: "99", Currency: "XRP", Successful: false},
	})
	out, err := o.GetTransfers(context.Background(), chain.TransferQuery{Address: "rAlice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 successful transfers touching rAlice, got %d", len(out))
	}
	wantLedgers := []int64{100, 200, 300}
	for i, want := range wantLedgers {
		if out[i].BlockNumber != want {
			t.Fatalf("index %d: want ledger %d, got %d", i, want, out[i].BlockNumber)
		}
	}
}

func TestGetTransfersFailsClosedBeforeConnect(t *testing.T) {
	o, err := NewWithRPC(Config{ChainID: "xrpl:mainnet"}, &mockRPC{ledger: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.GetTransfers(context.Background(), chain.TransferQuery{Address: "rAlice"}); err != chain.ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestChainMismatchRejected(t *testing.T) {
	if _, err := New(Config{ChainID: "eip155:1"}); err == nil {
		t.Fatalf("expected chain mismatch error for an EVM chain id")
	}
}

func TestGetBalanceReturnsDrops(t *testing.T) {
	o := newConnected(t, nil)
	bal, err := o.GetBalance(context.Background(), chain.BalanceQuery{Address: "rAlice"})
	if err != nil {
		t.Fatal(err)
	}
	if bal.Balance != "1000000" || bal.Symbol != "XRP" {
		t.Fatalf("unexpected balance: %+v", bal)
	}
}
