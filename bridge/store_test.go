// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/dytallix/interop/bridge/connector"
	"github.com/dytallix/interop/bridge/payload"
)

func TestTransactionPersistence(t *testing.T) {
	require := require.New(t)
	store := NewStore(memdb.New(), log.NewNoOpLogger())

	now := time.Now().Truncate(time.Nanosecond)
	vdr := ids.GenerateTestNodeID()
	tx := &Transaction{
		ID:              ComputeTxID("ethereum", "0xlock1"),
		SourceChain:     "ethereum",
		DestChain:       "dytallix",
		SourceTxRef:     "0xlock1",
		Sender:          "0xaa",
		Recipient:       "dx1bb",
		AssetID:         "0xcc",
		Amount:          uint256.NewInt(12_345),
		Nonce:           42,
		PayloadHash:     payload.HashBytes([]byte("canonical")),
		CreatedAtHeight: 7,
		Status:          StatusAwaitingSignatures,
		CreatedAt:       now,
		UpdatedAt:       now,
		Signatures: map[ids.NodeID][]byte{
			vdr: []byte("signature bytes"),
		},
		RiskScore: 0.25,
		Wrapped: &connector.WrappedAsset{
			OriginalAssetID: "0xcc",
			OriginalChain:   "ethereum",
			Amount:          uint256.NewInt(12_345),
			WrappedAt:       now.Unix(),
		},
	}

	require.NoError(store.PutTransaction(tx))
	got, err := store.GetTransaction(tx.ID)
	require.NoError(err)

	require.Equal(tx.ID, got.ID)
	require.Equal(tx.SourceChain, got.SourceChain)
	require.Equal(tx.Amount, got.Amount)
	require.Equal(tx.PayloadHash, got.PayloadHash)
	require.Equal(tx.CreatedAtHeight, got.CreatedAtHeight)
	require.Equal(tx.Status, got.Status)
	require.Equal(tx.Signatures[vdr], got.Signatures[vdr])
	require.Equal(tx.RiskScore, got.RiskScore)
	require.True(got.CreatedAt.Equal(tx.CreatedAt))
	require.NotNil(got.Wrapped)
	require.Equal(tx.Wrapped.Amount, got.Wrapped.Amount)
	require.Equal("ethereum", got.Wrapped.OriginalChain)

	_, err = store.GetTransaction(ids.GenerateTestID())
	require.ErrorIs(err, database.ErrNotFound)
}

func TestTransactionsIterate(t *testing.T) {
	require := require.New(t)
	store := NewStore(memdb.New(), log.NewNoOpLogger())

	for i, ref := range []string{"0xa", "0xb", "0xc"} {
		require.NoError(store.PutTransaction(&Transaction{
			ID:          ComputeTxID("ethereum", ref),
			SourceChain: "ethereum",
			DestChain:   "dytallix",
			SourceTxRef: ref,
			Amount:      uint256.NewInt(uint64(i + 1)),
			Status:      StatusInitiated,
		}))
	}

	txs, err := store.Transactions()
	require.NoError(err)
	require.Len(txs, 3)
}

func TestCustodyAccounting(t *testing.T) {
	require := require.New(t)
	store := NewStore(memdb.New(), log.NewNoOpLogger())

	held, err := store.Custody("ethereum", "0xcc")
	require.NoError(err)
	require.True(held.IsZero())

	require.NoError(store.LockCustody("ethereum", "0xcc", uint256.NewInt(700)))
	require.NoError(store.LockCustody("ethereum", "0xcc", uint256.NewInt(300)))

	held, err = store.Custody("ethereum", "0xcc")
	require.NoError(err)
	require.Equal(uint256.NewInt(1_000), held)

	// Pairs do not bleed into each other.
	other, err := store.Custody("ethereum", "0xdd")
	require.NoError(err)
	require.True(other.IsZero())

	require.NoError(store.ReleaseCustody("ethereum", "0xcc", uint256.NewInt(1_000)))
	err = store.ReleaseCustody("ethereum", "0xcc", uint256.NewInt(1))
	require.ErrorIs(err, ErrInsufficientCustody)
}

func TestHaltFlag(t *testing.T) {
	require := require.New(t)
	store := NewStore(memdb.New(), log.NewNoOpLogger())

	halted, err := store.Halted()
	require.NoError(err)
	require.False(halted)

	require.NoError(store.SetHalted(true))
	halted, err = store.Halted()
	require.NoError(err)
	require.True(halted)

	require.NoError(store.SetHalted(false))
	halted, err = store.Halted()
	require.NoError(err)
	require.False(halted)
}

func TestDailyVolume(t *testing.T) {
	require := require.New(t)
	store := NewStore(memdb.New(), log.NewNoOpLogger())

	total, err := store.AddDailyVolume("2026-08-30", 500)
	require.NoError(err)
	require.Equal(uint64(500), total)

	total, err = store.AddDailyVolume("2026-08-30", 250)
	require.NoError(err)
	require.Equal(uint64(750), total)

	// Days are independent counters.
	next, err := store.DailyVolume("2026-08-31")
	require.NoError(err)
	require.Zero(next)
}
