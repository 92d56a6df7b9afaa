// Copyright 2025 Certen Protocol

// Package xrpl implements pkg/chain.Observer for the XRP Ledger, and
// exposes the same RPC client as a Submitter for pkg/witness — the
// witness submitter's memo-carrying self-send is fundamentally an XRPL
// Payment transaction (MemoType/MemoFormat/MemoData are XRPL fields), so
// both consumers share one minimal JSON-RPC client. No XRPL SDK appears
// in the retrieved example corpus (see DESIGN.md); this follows the same
// direct-JSON-RPC shape as pkg/chain/solana.
package xrpl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/certen/attestia/pkg/chain"
)

// AccountTx is one entry of account_tx relevant to transfer reconstruction.
type AccountTx struct {
	Hash        string
	LedgerIndex int64
	Account     string
	Destination string
	Amount      string // drops for native XRP, decimal string for issued currency
	Currency    string // "XRP" or issued-currency code
	Issuer      string // empty for native XRP
	CloseTime   int64  // ripple epoch seconds, 0 if unknown
	Successful  bool
}

// RPC is the minimal XRPL JSON-RPC surface shared by the observer and the
// witness submitter.
type RPC interface {
	GetLedgerIndex(ctx context.Context) (int64, error)
	GetAccountBalance(ctx context.Context, address string) (drops string, err error)
	GetTrustLineBalance(ctx context.Context, address, currency, issuer string) (amount string, err error)
	GetAccountTx(ctx context.Context, address string, limit int) ([]AccountTx, error)
	// Submit relays a signed transaction blob with one submit call and
	// returns the transaction hash and the ledger_index of the submit
	// response. It does not wait for the transaction to be validated.
	Submit(ctx context.Context, signedTxBlobHex string) (txHash string, ledgerIndex int64, err error)
}

// Config configures an Observer.
type Config struct {
	ChainID  string // must start with "xrpl:"
	RPCURL   string
	Decimals int // native XRP decimals, 6
}

// Observer is an XRPL chain.Observer.
type Observer struct {
	cfg       Config
	mu        sync.RWMutex
	rpc       RPC
	connected bool
}

// New constructs an Observer. It fails with chain.ErrChainMismatch if
// cfg.ChainID does not belong to the XRPL family.
func New(cfg Config) (*Observer, error) {
	if !strings.HasPrefix(cfg.ChainID, "xrpl:") {
		return nil, fmt.Errorf("%w: %q is not an XRPL chain id", chain.ErrChainMismatch, cfg.ChainID)
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = 6
	}
	return &Observer{cfg: cfg, rpc: NewRPCClient(cfg.RPCURL)}, nil
}

// NewWithRPC constructs an Observer against an explicit RPC implementation,
// for tests and for the witness submitter (which shares one RPC client
// instance with an Observer constructed this way).
func NewWithRPC(cfg Config, rpc RPC) (*Observer, error) {
	o, err := New(cfg)
	if err != nil {
		return nil, err
	}
	o.rpc = rpc
	return o, nil
}

// RPCOf exposes the Observer's underlying RPC client so pkg/witness can
// submit transactions over the same connection.
func (o *Observer) RPCOf() RPC { return o.rpc }

// Connect marks the observer ready. Idempotent.
func (o *Observer) Connect(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.connected {
		return nil
	}
	if _, err := o.rpc.GetLedgerIndex(ctx); err != nil {
		return fmt.Errorf("xrpl: connect: %w", err)
	}
	o.connected = true
	return nil
}

// Disconnect marks the observer unready. Idempotent.
func (o *Observer) Disconnect(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connected = false
	return nil
}

func (o *Observer) isConnected() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.connected
}

// GetStatus reports the current validated ledger index, or
// Connected:false on any failure.
func (o *Observer) GetStatus(ctx context.Context) chain.Status {
	if !o.isConnected() {
		return chain.Status{ChainID: o.cfg.ChainID, Connected: false}
	}
	idx, err := o.rpc.GetLedgerIndex(ctx)
	if err != nil {
		return chain.Status{ChainID: o.cfg.ChainID, Connected: false}
	}
	return chain.Status{ChainID: o.cfg.ChainID, Connected: true, LatestBlock: &idx, FinalizedBlock: &idx, SafeBlock: &idx}
}

// GetBalance returns the native XRP balance (in drops) of q.Address.
func (o *Observer) GetBalance(ctx context.Context, q chain.BalanceQuery) (chain.Balance, error) {
	if !o.isConnected() {
		return chain.Balance{}, chain.ErrNotConnected
	}
	drops, err := o.rpc.GetAccountBalance(ctx, q.Address)
	if err != nil {
		return chain.Balance{}, fmt.Errorf("xrpl: balance: %w", err)
	}
	idx, err := o.rpc.GetLedgerIndex(ctx)
	if err != nil {
		return chain.Balance{}, fmt.Errorf("xrpl: ledger index: %w", err)
	}
	return chain.Balance{ChainID: o.cfg.ChainID, Balance: drops, Decimals: o.cfg.Decimals, Symbol: "XRP", AtBlock: idx}, nil
}

// GetTokenBalance returns a trust-line balance. q.Token must encode
// "CURRENCY/ISSUER".
func (o *Observer) GetTokenBalance(ctx context.Context, q chain.BalanceQuery) (chain.Balance, error) {
	if !o.isConnected() {
		return chain.Balance{}, chain.ErrNotConnected
	}
	currency, issuer, ok := strings.Cut(q.Token, "/")
	if !ok {
		return chain.Balance{}, fmt.Errorf("xrpl: token must be \"CURRENCY/ISSUER\", got %q", q.Token)
	}
	amount, err := o.rpc.GetTrustLineBalance(ctx, q.Address, currency, issuer)
	if err != nil {
		return chain.Balance{}, fmt.Errorf("xrpl: trust line balance: %w", err)
	}
	idx, err := o.rpc.GetLedgerIndex(ctx)
	if err != nil {
		return chain.Balance{}, fmt.Errorf("xrpl: ledger index: %w", err)
	}
	return chain.Balance{ChainID: o.cfg.ChainID, Balance: amount, Decimals: 0, Symbol: currency, AtBlock: idx}, nil
}

// GetTransfers returns every successful payment touching q.Address, sorted
// ascending by (ledgerIndex, hash). Failed transactions (tesSUCCESS not
// met) are excluded; they are not "transfers" in the reconciled sense.
func (o *Observer) GetTransfers(ctx context.Context, q chain.TransferQuery) ([]chain.TransferEvent, error) {
	if !o.isConnected() {
		return nil, chain.ErrNotConnected
	}
	txs, err := o.rpc.GetAccountTx(ctx, q.Address, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("xrpl: account_tx for %s: %w", q.Address, err)
	}

	now := time.Now().UTC()
	out := make([]chain.TransferEvent, 0, len(txs))
	for _, tx := range txs {
		if !tx.Successful {
			continue
		}
		if q.FromBlock != nil && tx.LedgerIndex < *q.FromBlock {
			continue
		}
		if q.ToBlock != nil && tx.LedgerIndex > *q.ToBlock {
			continue
		}
		switch q.Direction {
		case chain.DirectionIncoming:
			if tx.Destination != q.Address {
				continue
			}
		case chain.DirectionOutgoing:
			if tx.Account != q.Address {
				continue
			}
		}
		var ts time.Time
		if tx.CloseTime > 0 {
			// Ripple epoch starts 2000-01-01T00:00:00Z, 946684800s after Unix epoch.
			ts = time.Unix(tx.CloseTime+946684800, 0).UTC()
		}
		out = append(out, chain.TransferEvent{
			ChainID:     o.cfg.ChainID,
			TxHash:      tx.Hash,
			BlockNumber: tx.LedgerIndex,
			From:        tx.Account,
			To:          tx.Destination,
			Amount:      tx.Amount,
			Decimals:    o.cfg.Decimals,
			Symbol:      tx.Currency,
			Token:       tx.Issuer,
			Timestamp:   ts,
			ObservedAt:  now,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].TxHash < out[j].TxHash
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// rpcClient is the default RPC implementation, talking JSON-RPC to a real
// rippled node's /rpc endpoint.
type rpcClient struct {
	url  string
	http *http.Client
}

// NewRPCClient constructs the default network-backed RPC client.
func NewRPCClient(url string) RPC {
	return &rpcClient{url: url, http: &http.Client{Timeout: 20 * time.Second}}
}

type rpcRequest struct {
	Method string          `json:"method"`
	Params [1]interface{}  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
}

func (c *rpcClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{Method: method, Params: [1]interface{}{params}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	var status struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(decoded.Result, &status); err == nil && status.Status == "error" {
		return fmt.Errorf("rpc error: %s", status.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(decoded.Result, out)
}

func (c *rpcClient) GetLedgerIndex(ctx context.Context) (int64, error) {
	var out struct {
		LedgerIndex int64 `json:"ledger_index"`
	}
	if err := c.call(ctx, "ledger_closed", map[string]interface{}{}, &out); err != nil {
		return 0, err
	}
	return out.LedgerIndex, nil
}

func (c *rpcClient) GetAccountBalance(ctx context.Context, address string) (string, error) {
	var out struct {
		AccountData struct {
			Balance string `json:"Balance"`
		} `json:"account_data"`
	}
	if err := c.call(ctx, "account_info", map[string]interface{}{"account": address}, &out); err != nil {
		return "", err
	}
	return out.AccountData.Balance, nil
}

func (c *rpcClient) GetTrustLineBalance(ctx context.Context, address, currency, issuer string) (string, error) {
	var out struct {
		Lines []struct {
			Account  string `json:"account"`
			Balance  string `json:"balance"`
			Currency string `json:"currency"`
		} `json:"lines"`
	}
	if err := c.call(ctx, "account_lines", map[string]interface{}{"account": address, "peer": issuer}, &out); err != nil {
		return "", err
	}
	for _, l := range out.Lines {
		if l.Account == issuer && l.Currency == currency {
			return l.Balance, nil
		}
	}
	return "0", nil
}

func (c *rpcClient) GetAccountTx(ctx context.Context, address string, limit int) ([]AccountTx, error) {
	params := map[string]interface{}{"account": address}
	if limit > 0 {
		params["limit"] = limit
	}
	var out struct {
		Transactions []struct {
			Tx struct {
				Hash        string      `json:"hash"`
				Account     string      `json:"Account"`
				Destination string      `json:"Destination"`
				Amount      interface{} `json:"Amount"`
				Date        int64       `json:"date"`
			} `json:"tx"`
			Meta struct {
				TransactionResult string `json:"TransactionResult"`
			} `json:"meta"`
			LedgerIndex int64 `json:"ledger_index"`
		} `json:"transactions"`
	}
	if err := c.call(ctx, "account_tx", params, &out); err != nil {
		return nil, err
	}

	result := make([]AccountTx, 0, len(out.Transactions))
	for _, t := range out.Transactions {
		entry := AccountTx{
			Hash:        t.Tx.Hash,
			LedgerIndex: t.LedgerIndex,
			Account:     t.Tx.Account,
			Destination: t.Tx.Destination,
			CloseTime:   t.Tx.Date,
			Successful:  t.Meta.TransactionResult == "tesSUCCESS",
		}
		switch amt := t.Tx.Amount.(type) {
		case string:
			entry.Amount = amt
			entry.Currency = "XRP"
		case map[string]interface{}:
			if v, ok := amt["value"].(string); ok {
				entry.Amount = v
			}
			if c, ok := amt["currency"].(string); ok {
				entry.Currency = c
			}
			if i, ok := amt["issuer"].(string); ok {
				entry.Issuer = i
			}
		default:
			// Amount shape not recognised; skip without erroring.
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (c *rpcClient) Submit(ctx context.Context, signedTxBlobHex string) (string, int64, error) {
	var out struct {
		EngineResult string `json:"engine_result"`
		Tx           struct {
			Hash string `json:"hash"`
		} `json:"tx_json"`
		LedgerIndex int64 `json:"ledger_index"`
	}
	if err := c.call(ctx, "submit", map[string]interface{}{"tx_blob": signedTxBlobHex}, &out); err != nil {
		return "", 0, err
	}
	if !strings.HasPrefix(out.EngineResult, "tes") {
		return "", 0, fmt.Errorf("xrpl: submit failed: %s", out.EngineResult)
	}
	return out.Tx.Hash, out.LedgerIndex, nil
}
