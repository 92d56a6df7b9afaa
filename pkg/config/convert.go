// Copyright 2025 Certen Protocol

package config

import (
	"github.com/certen/attestia/pkg/chain/evm"
	"github.com/certen/attestia/pkg/chain/solana"
	"github.com/certen/attestia/pkg/chain/xrpl"
)

// ToObserverConfig converts the YAML-facing shape into pkg/chain/evm.Config.
func (c EVMChainConfig) ToObserverConfig() evm.Config {
	return evm.Config{
		ChainID:               c.ChainID,
		RPCURL:                c.RPCURL,
		NativeSymbol:          c.NativeSymbol,
		NativeDecimals:        c.NativeDecimals,
		RequiredConfirmations: c.RequiredConfirmations,
	}
}

// ToObserverConfig converts the YAML-facing shape into
// pkg/chain/solana.Config.
func (c SolanaChainConfig) ToObserverConfig() solana.Config {
	return solana.Config{
		ChainID:  c.ChainID,
		RPCURL:   c.RPCURL,
		Decimals: c.Decimals,
	}
}

// ToObserverConfig converts the YAML-facing shape into
// pkg/chain/xrpl.Config.
func (c XRPLChainConfig) ToObserverConfig() xrpl.Config {
	return xrpl.Config{
		ChainID:  c.ChainID,
		RPCURL:   c.RPCURL,
		Decimals: c.Decimals,
	}
}
