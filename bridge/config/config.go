// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"time"
)

// Chain kinds supported by the bridge core. New chains are added by
// implementing the connector interface, not by branching on chain IDs.
const (
	KindEthereum = "ethereum"
	KindCosmos   = "cosmos"
	KindPolkadot = "polkadot"
)

// Asset identifier formats, one per chain family.
const (
	AssetFormatHexContract = "hex-contract" // 0x-prefixed 20-byte contract address
	AssetFormatIBCDenom    = "ibc-denom"    // bank denom or ibc/<hash> voucher
	AssetFormatAssetIndex  = "asset-index"  // numeric pallet-assets index
)

var (
	ErrNoChains                = errors.New("no chains configured")
	ErrDuplicateChain          = errors.New("duplicate chain id")
	ErrUnknownChain            = errors.New("unknown chain id")
	ErrInvalidConfirmations    = errors.New("required confirmations must be positive")
	ErrInvalidTimestampSkew    = errors.New("max timestamp skew must be positive")
	ErrInvalidChainKind        = errors.New("unknown chain kind")
	ErrInvalidAssetFormat      = errors.New("unknown asset id format")
	ErrInvalidSignatureTimeout = errors.New("signature timeout must be positive")
)

// ChainConfig holds the per-chain, environment-scoped bridge parameters. It
// is loaded from validated configuration and never inferred at runtime from
// untrusted input.
type ChainConfig struct {
	ChainID string `json:"chainId"`
	Kind    string `json:"kind"`

	// RequiredConfirmations is the finality depth for this chain. It must
	// reflect the chain's probabilistic-finality characteristics (deeper
	// for proof-of-work chains).
	RequiredConfirmations uint64 `json:"requiredConfirmations"`

	// MaxTimestampSkew bounds how far an observed event timestamp may drift
	// from local time before the event is rejected as stale or future.
	MaxTimestampSkew time.Duration `json:"maxTimestampSkew"`

	AssetIDFormat string `json:"assetIdFormat"`

	RPCEndpoint string `json:"rpcEndpoint"`
}

// Validate checks a single chain entry.
func (c *ChainConfig) Validate() error {
	if c.RequiredConfirmations == 0 {
		return fmt.Errorf("%w: chain %s", ErrInvalidConfirmations, c.ChainID)
	}
	if c.MaxTimestampSkew <= 0 {
		return fmt.Errorf("%w: chain %s", ErrInvalidTimestampSkew, c.ChainID)
	}
	switch c.Kind {
	case KindEthereum, KindCosmos, KindPolkadot:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidChainKind, c.Kind)
	}
	switch c.AssetIDFormat {
	case AssetFormatHexContract, AssetFormatIBCDenom, AssetFormatAssetIndex:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAssetFormat, c.AssetIDFormat)
	}
	return nil
}

// Config contains all the foundational parameters of the bridge core.
type Config struct {
	// Environment scopes the configuration (testnet or mainnet).
	Environment string `json:"environment"`

	// AlgorithmVersion selects the deployment-wide post-quantum signature
	// algorithm (1=ML-DSA-44, 2=ML-DSA-65, 3=ML-DSA-87).
	AlgorithmVersion uint32 `json:"algorithmVersion"`

	// SignatureTimeout bounds how long a transaction may wait for the
	// signature threshold before it is failed.
	SignatureTimeout time.Duration `json:"signatureTimeout"`

	// Execution retry policy for transient destination-chain errors.
	ExecutionRetryLimit int           `json:"executionRetryLimit"`
	ExecutionRetryBase  time.Duration `json:"executionRetryBase"`
	ExecutionRetryCap   time.Duration `json:"executionRetryCap"`

	// Security limits, denominated in base asset units.
	MaxBridgeAmount  uint64 `json:"maxBridgeAmount"`
	DailyBridgeLimit uint64 `json:"dailyBridgeLimit"`

	// Risk oracle integration. A zero URL disables scoring; the bridge
	// proceeds without a score on oracle timeout or absence.
	RiskOracleURL          string        `json:"riskOracleUrl"`
	RiskOracleTimeout      time.Duration `json:"riskOracleTimeout"`
	LargeTransferThreshold uint64        `json:"largeTransferThreshold"`

	Chains []ChainConfig `json:"chains"`
}

// DefaultConfig returns a Config with testnet defaults. Confirmation depths
// and skew windows are per-deployment decisions; these defaults track each
// chain's typical finality characteristics and are meant to be overridden.
func DefaultConfig() Config {
	return Config{
		Environment:         "testnet",
		AlgorithmVersion:    2, // ML-DSA-65
		SignatureTimeout:    30 * time.Minute,
		ExecutionRetryLimit: 8,
		ExecutionRetryBase:  2 * time.Second,
		ExecutionRetryCap:   2 * time.Minute,
		MaxBridgeAmount:     1_000_000 * 1e6,
		DailyBridgeLimit:    10_000_000 * 1e6,
		RiskOracleTimeout:   2 * time.Second,
		Chains: []ChainConfig{
			{
				ChainID:               "ethereum",
				Kind:                  KindEthereum,
				RequiredConfirmations: 12,
				MaxTimestampSkew:      15 * time.Minute,
				AssetIDFormat:         AssetFormatHexContract,
			},
			{
				ChainID:               "cosmoshub",
				Kind:                  KindCosmos,
				RequiredConfirmations: 1,
				MaxTimestampSkew:      5 * time.Minute,
				AssetIDFormat:         AssetFormatIBCDenom,
			},
			{
				ChainID:               "polkadot",
				Kind:                  KindPolkadot,
				RequiredConfirmations: 2,
				MaxTimestampSkew:      5 * time.Minute,
				AssetIDFormat:         AssetFormatAssetIndex,
			},
		},
	}
}

// Validate ensures the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return ErrNoChains
	}
	if c.SignatureTimeout <= 0 {
		return ErrInvalidSignatureTimeout
	}
	if c.ExecutionRetryLimit <= 0 {
		c.ExecutionRetryLimit = 8
	}
	if c.ExecutionRetryBase <= 0 {
		c.ExecutionRetryBase = 2 * time.Second
	}
	if c.ExecutionRetryCap < c.ExecutionRetryBase {
		c.ExecutionRetryCap = 2 * time.Minute
	}

	seen := make(map[string]struct{}, len(c.Chains))
	for i := range c.Chains {
		chain := &c.Chains[i]
		if _, ok := seen[chain.ChainID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateChain, chain.ChainID)
		}
		seen[chain.ChainID] = struct{}{}
		if err := chain.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Chain returns the configuration for the given chain ID.
func (c *Config) Chain(chainID string) (*ChainConfig, error) {
	for i := range c.Chains {
		if c.Chains[i].ChainID == chainID {
			return &c.Chains[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownChain, chainID)
}
