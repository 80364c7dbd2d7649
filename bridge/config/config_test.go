// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig()
	require.NoError(cfg.Validate())

	eth, err := cfg.Chain("ethereum")
	require.NoError(err)
	require.Equal(KindEthereum, eth.Kind)
	// Proof-of-work heritage chains need a deeper finality window than
	// instant-finality chains.
	cosmos, err := cfg.Chain("cosmoshub")
	require.NoError(err)
	require.Greater(eth.RequiredConfirmations, cosmos.RequiredConfirmations)
}

func TestValidateRejects(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig()
	cfg.Chains = nil
	require.ErrorIs(cfg.Validate(), ErrNoChains)

	cfg = DefaultConfig()
	cfg.Chains = append(cfg.Chains, cfg.Chains[0])
	require.ErrorIs(cfg.Validate(), ErrDuplicateChain)

	cfg = DefaultConfig()
	cfg.Chains[0].RequiredConfirmations = 0
	require.ErrorIs(cfg.Validate(), ErrInvalidConfirmations)

	cfg = DefaultConfig()
	cfg.Chains[0].MaxTimestampSkew = 0
	require.ErrorIs(cfg.Validate(), ErrInvalidTimestampSkew)

	cfg = DefaultConfig()
	cfg.Chains[0].Kind = "solana"
	require.ErrorIs(cfg.Validate(), ErrInvalidChainKind)

	cfg = DefaultConfig()
	cfg.Chains[0].AssetIDFormat = "raw"
	require.ErrorIs(cfg.Validate(), ErrInvalidAssetFormat)
}

func TestValidateBackfillsRetryPolicy(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig()
	cfg.ExecutionRetryLimit = 0
	cfg.ExecutionRetryBase = 0
	cfg.ExecutionRetryCap = 0
	require.NoError(cfg.Validate())

	require.Equal(8, cfg.ExecutionRetryLimit)
	require.Equal(2*time.Second, cfg.ExecutionRetryBase)
	require.GreaterOrEqual(cfg.ExecutionRetryCap, cfg.ExecutionRetryBase)
}

func TestUnknownChainLookup(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.Chain("bitcoin")
	require.ErrorIs(t, err, ErrUnknownChain)
}
