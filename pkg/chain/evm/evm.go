// Copyright 2025 Certen Protocol

// Package evm implements pkg/chain.Observer for Ethereum and EVM-compatible
// chains over go-ethereum's ethclient, following this module's connection
// and confirmation-tracking style used for other chain observers.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/attestia/pkg/chain"
)

// erc20TransferTopic is keccak256("Transfer(address,address,uint256)").
const erc20TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// Config configures an Observer.
type Config struct {
	ChainID               string // e.g. "eip155:1", must match RPC's reported chain id
	RPCURL                string
	NativeSymbol          string
	NativeDecimals        int
	RequiredConfirmations int64
}

// Observer is an EVM chain.Observer backed by a single ethclient connection.
type Observer struct {
	cfg    Config
	mu     sync.RWMutex
	client *ethclient.Client
	dial   func(ctx context.Context, url string) (*ethclient.Client, error)
}

// New constructs an Observer. It fails with chain.ErrChainMismatch if
// cfg.ChainID is not an "eip155:*" identifier.
func New(cfg Config) (*Observer, error) {
	if !strings.HasPrefix(cfg.ChainID, "eip155:") {
		return nil, fmt.Errorf("%w: %q is not an EVM chain id", chain.ErrChainMismatch, cfg.ChainID)
	}
	if cfg.NativeSymbol == "" {
		cfg.NativeSymbol = "ETH"
	}
	return &Observer{cfg: cfg, dial: ethclient.DialContext}, nil
}

// Connect dials the RPC endpoint. Idempotent.
func (o *Observer) Connect(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.client != nil {
		return nil
	}
	c, err := o.dial(ctx, o.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("evm: dial %s: %w", o.cfg.RPCURL, err)
	}
	o.client = c
	return nil
}

// Disconnect tears down the connection. Idempotent.
func (o *Observer) Disconnect(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.client != nil {
		o.client.Close()
		o.client = nil
	}
	return nil
}

func (o *Observer) connected() *ethclient.Client {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.client
}

// GetStatus reports chain tip information, or Connected:false if the
// underlying probe fails for any reason.
func (o *Observer) GetStatus(ctx context.Context) chain.Status {
	c := o.connected()
	if c == nil {
		return chain.Status{ChainID: o.cfg.ChainID, Connected: false}
	}
	head, err := c.BlockNumber(ctx)
	if err != nil {
		return chain.Status{ChainID: o.cfg.ChainID, Connected: false}
	}
	latest := int64(head)
	finalized := latest - o.cfg.RequiredConfirmations
	if finalized < 0 {
		finalized = 0
	}
	return chain.Status{
		ChainID:        o.cfg.ChainID,
		Connected:      true,
		LatestBlock:    &latest,
		FinalizedBlock: &finalized,
		SafeBlock:      &finalized,
	}
}

// GetBalance returns the native balance of q.Address.
func (o *Observer) GetBalance(ctx context.Context, q chain.BalanceQuery) (chain.Balance, error) {
	c := o.connected()
	if c == nil {
		return chain.Balance{}, chain.ErrNotConnected
	}
	addr := common.HexToAddress(q.Address)
	blockNum, err := o.resolveBlock(ctx, c, q.Finality)
	if err != nil {
		return chain.Balance{}, err
	}
	bal, err := c.BalanceAt(ctx, addr, blockNum)
	if err != nil {
		return chain.Balance{}, fmt.Errorf("evm: balance at %s: %w", q.Address, err)
	}
	var at int64
	if blockNum != nil {
		at = blockNum.Int64()
	} else {
		head, err := c.BlockNumber(ctx)
		if err != nil {
			return chain.Balance{}, fmt.Errorf("evm: block number: %w", err)
		}
		at = int64(head)
	}
	return chain.Balance{
		ChainID:  o.cfg.ChainID,
		Balance:  bal.String(),
		Decimals: o.cfg.NativeDecimals,
		Symbol:   o.cfg.NativeSymbol,
		AtBlock:  at,
	}, nil
}

var erc20ABI = mustERC20ABI()

func mustERC20ABI() abi.ABI {
	const def = `[
		{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
		{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
		{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"}
	]`
	a, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return a
}

// GetTokenBalance returns an ERC-20 balance for q.Token at q.Address.
func (o *Observer) GetTokenBalance(ctx context.Context, q chain.BalanceQuery) (chain.Balance, error) {
	c := o.connected()
	if c == nil {
		return chain.Balance{}, chain.ErrNotConnected
	}
	if q.Token == "" {
		return chain.Balance{}, fmt.Errorf("evm: token address is required")
	}
	token := common.HexToAddress(q.Token)
	owner := common.HexToAddress(q.Address)

	blockNum, err := o.resolveBlock(ctx, c, q.Finality)
	if err != nil {
		return chain.Balance{}, err
	}

	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return chain.Balance{}, fmt.Errorf("evm: pack balanceOf: %w", err)
	}
	result, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, blockNum)
	if err != nil {
		return chain.Balance{}, fmt.Errorf("evm: call balanceOf: %w", err)
	}
	var balance *big.Int
	if err := erc20ABI.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return chain.Balance{}, fmt.Errorf("evm: unpack balanceOf: %w", err)
	}

	decimalsData, err := erc20ABI.Pack("decimals")
	if err != nil {
		return chain.Balance{}, fmt.Errorf("evm: pack decimals: %w", err)
	}
	decResult, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: decimalsData}, blockNum)
	if err != nil {
		return chain.Balance{}, fmt.Errorf("evm: call decimals: %w", err)
	}
	var decimals uint8
	if err := erc20ABI.UnpackIntoInterface(&decimals, "decimals", decResult); err != nil {
		return chain.Balance{}, fmt.Errorf("evm: unpack decimals: %w", err)
	}

	var at int64
	if blockNum != nil {
		at = blockNum.Int64()
	} else if head, err := c.BlockNumber(ctx); err == nil {
		at = int64(head)
	} else {
		return chain.Balance{}, fmt.Errorf("evm: block number: %w", err)
	}

	return chain.Balance{
		ChainID:  o.cfg.ChainID,
		Balance:  balance.String(),
		Decimals: int(decimals),
		Symbol:   "",
		AtBlock:  at,
	}, nil
}

func (o *Observer) resolveBlock(ctx context.Context, c *ethclient.Client, f chain.Finality) (*big.Int, error) {
	switch f {
	case "", chain.FinalityLatest:
		return nil, nil
	case chain.FinalityFinalized, chain.FinalitySafe:
		head, err := c.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("evm: block number: %w", err)
		}
		target := int64(head) - o.cfg.RequiredConfirmations
		if target < 0 {
			target = 0
		}
		return big.NewInt(target), nil
	default:
		return nil, fmt.Errorf("evm: unknown finality %q", f)
	}
}

// GetTransfers returns ERC-20 Transfer events matching q, fetched via
// eth_getLogs, sorted ascending by (blockNumber, txHash) regardless of the
// order the RPC returned them in. Logs that do not have the standard
// Transfer shape are skipped. A failure fetching the block header of any
// returned log fails the whole call — partial results are never returned.
func (o *Observer) GetTransfers(ctx context.Context, q chain.TransferQuery) ([]chain.TransferEvent, error) {
	c := o.connected()
	if c == nil {
		return nil, chain.ErrNotConnected
	}
	if q.Token == "" {
		return nil, fmt.Errorf("evm: GetTransfers requires a token address")
	}

	filter := ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(q.Token)},
		Topics:    [][]common.Hash{{common.HexToHash(erc20TransferTopic)}},
	}
	if q.FromBlock != nil {
		filter.FromBlock = big.NewInt(*q.FromBlock)
	}
	if q.ToBlock != nil {
		filter.ToBlock = big.NewInt(*q.ToBlock)
	}

	logs, err := c.FilterLogs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("evm: filter logs: %w", err)
	}

	addr := strings.ToLower(q.Address)
	now := time.Now().UTC()
	out := make([]chain.TransferEvent, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) != 3 || len(lg.Data) < 32 {
			// Not a standard Transfer log shape; skip without erroring.
			continue
		}
		from := strings.ToLower(common.HexToAddress(lg.Topics[1].Hex()).Hex())
		to := strings.ToLower(common.HexToAddress(lg.Topics[2].Hex()).Hex())
		if q.Address != "" {
			switch q.Direction {
			case chain.DirectionIncoming:
				if to != addr {
					continue
				}
			case chain.DirectionOutgoing:
				if from != addr {
					continue
				}
			default:
				if to != addr && from != addr {
					continue
				}
			}
		}
		amount := new(big.Int).SetBytes(lg.Data)
		header, err := c.HeaderByNumber(ctx, big.NewInt(int64(lg.BlockNumber)))
		if err != nil {
			return nil, fmt.Errorf("evm: header for block %d: %w", lg.BlockNumber, err)
		}
		out = append(out, chain.TransferEvent{
			ChainID:     o.cfg.ChainID,
			TxHash:      lg.TxHash.Hex(),
			BlockNumber: int64(lg.BlockNumber),
			From:        from,
			To:          to,
			Amount:      amount.String(),
			Token:       strings.ToLower(common.HexToAddress(q.Token).Hex()),
			Timestamp:   time.Unix(int64(header.Time), 0).UTC(),
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
