// Copyright 2025 Certen Protocol

// Package chain defines the Observer port: one interface every chain
// back-end (pkg/chain/evm, pkg/chain/solana, pkg/chain/xrpl) satisfies, so
// the reconciler (pkg/reconciler) and witness submitter (pkg/witness)
// never depend on a specific chain SDK. Every back-end is fail-closed:
// queries before Connect or after Disconnect return ErrNotConnected, a
// partial batch failure fails the whole call, and GetStatus swallows
// transport errors rather than propagating them.
package chain

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned by every query issued before Connect or
// after Disconnect.
var ErrNotConnected = errors.New("chain: not connected")

// ErrChainMismatch is returned by a back-end constructor when the supplied
// configuration names a chain outside that back-end's family (e.g. an EVM
// observer configured with an XRPL chain id).
var ErrChainMismatch = errors.New("chain: chain id does not belong to this observer's family")

// Finality selects which block tag a balance/status query is evaluated at.
type Finality string

const (
	FinalityLatest    Finality = "latest"
	FinalityFinalized Finality = "finalized"
	FinalitySafe      Finality = "safe"
)

// Status reports an observer's view of chain health. Connected is false,
// and every field other than ChainID zero, whenever the underlying
// transport errored — GetStatus never returns an error itself.
type Status struct {
	ChainID         string `json:"chainId"`
	Connected       bool   `json:"connected"`
	LatestBlock     *int64 `json:"latestBlock,omitempty"`
	FinalizedBlock  *int64 `json:"finalizedBlock,omitempty"`
	SafeBlock       *int64 `json:"safeBlock,omitempty"`
}

// Balance is a native or token balance at a specific block.
type Balance struct {
	ChainID  string `json:"chainId"`
	Balance  string `json:"balance"`
	Decimals int    `json:"decimals"`
	Symbol   string `json:"symbol"`
	AtBlock  int64  `json:"atBlock"`
}

// Direction filters GetTransfers by whether address is the sender or the
// recipient.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// TransferEvent is one observed value transfer, native or token.
type TransferEvent struct {
	ChainID     string    `json:"chainId"`
	TxHash      string    `json:"txHash"`
	BlockNumber int64     `json:"blockNumber"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Amount      string    `json:"amount"`
	Decimals    int       `json:"decimals"`
	Symbol      string    `json:"symbol"`
	Token       string    `json:"token,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	ObservedAt  time.Time `json:"observedAt"`
}

// BalanceQuery parametrizes GetBalance/GetTokenBalance.
type BalanceQuery struct {
	Address  string
	Token    string // empty for GetBalance, required for GetTokenBalance
	Finality Finality
}

// TransferQuery parametrizes GetTransfers. Limit <= 0 means unbounded.
type TransferQuery struct {
	Address   string
	Direction Direction // zero value means "both"
	Token     string
	FromBlock *int64
	ToBlock   *int64
	Limit     int
}

// Observer is the uniform, fail-closed port every chain back-end
// implements.
type Observer interface {
	// Connect establishes the underlying transport. Idempotent: calling it
	// again while already connected is a no-op.
	Connect(ctx context.Context) error
	// Disconnect tears the transport down. Idempotent.
	Disconnect(ctx context.Context) error

	// GetStatus reports connectivity and chain tip information. It never
	// returns an error — a failed underlying probe is reported as
	// Status{Connected: false}.
	GetStatus(ctx context.Context) Status

	// GetBalance returns the native balance at q.Address. Fails with
	// ErrNotConnected unless between Connect and Disconnect.
	GetBalance(ctx context.Context, q BalanceQuery) (Balance, error)
	// GetTokenBalance returns a token balance; q.Token is required.
	GetTokenBalance(ctx context.Context, q BalanceQuery) (Balance, error)
	// GetTransfers returns every transfer matching q, sorted ascending by
	// (blockNumber, txHash) regardless of the underlying RPC's reply
	// order, so two replays over identical mocked data produce
	// structurally identical output modulo ObservedAt.
	GetTransfers(ctx context.Context, q TransferQuery) ([]TransferEvent, error)
}
