// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replay

import (
	"sync"
	"testing"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

const testSkew = 5 * time.Minute

func TestAdmitOnce(t *testing.T) {
	require := require.New(t)

	g := New(memdb.New(), log.NewNoOpLogger())
	now := time.Unix(1_700_000_000, 0)
	g.clock.Set(now)

	require.NoError(g.TryAdmit("ethereum", "0xsender", 42, now, testSkew))
	require.ErrorIs(g.TryAdmit("ethereum", "0xsender", 42, now, testSkew), ErrDuplicate)

	seen, err := g.Seen("ethereum", "0xsender", 42)
	require.NoError(err)
	require.True(seen)
}

func TestDistinctTriplesAdmitted(t *testing.T) {
	require := require.New(t)

	g := New(memdb.New(), log.NewNoOpLogger())
	now := time.Unix(1_700_000_000, 0)
	g.clock.Set(now)

	require.NoError(g.TryAdmit("ethereum", "0xsender", 42, now, testSkew))
	// Same nonce from a different sender or chain is a distinct transfer.
	require.NoError(g.TryAdmit("ethereum", "0xother", 42, now, testSkew))
	require.NoError(g.TryAdmit("cosmoshub", "0xsender", 42, now, testSkew))
	require.NoError(g.TryAdmit("ethereum", "0xsender", 43, now, testSkew))
}

func TestTimestampWindow(t *testing.T) {
	require := require.New(t)

	g := New(memdb.New(), log.NewNoOpLogger())
	now := time.Unix(1_700_000_000, 0)
	g.clock.Set(now)

	// Stale and future timestamps are rejected with no state change.
	stale := now.Add(-testSkew - time.Second)
	require.ErrorIs(g.TryAdmit("ethereum", "0xsender", 1, stale, testSkew), ErrStaleOrFuture)

	future := now.Add(testSkew + time.Second)
	require.ErrorIs(g.TryAdmit("ethereum", "0xsender", 1, future, testSkew), ErrStaleOrFuture)

	seen, err := g.Seen("ethereum", "0xsender", 1)
	require.NoError(err)
	require.False(seen)

	// Window edges are inclusive.
	require.NoError(g.TryAdmit("ethereum", "0xsender", 1, now.Add(-testSkew), testSkew))
	require.NoError(g.TryAdmit("ethereum", "0xsender", 2, now.Add(testSkew), testSkew))
}

func TestKeySegmentsDoNotCollide(t *testing.T) {
	require := require.New(t)

	g := New(memdb.New(), log.NewNoOpLogger())
	now := time.Unix(1_700_000_000, 0)
	g.clock.Set(now)

	require.NoError(g.TryAdmit("eth", "abcd", 1, now, testSkew))
	// Same concatenation, different segmentation.
	require.NoError(g.TryAdmit("etha", "bcd", 1, now, testSkew))
}

func TestConcurrentAdmitSingleWinner(t *testing.T) {
	require := require.New(t)

	g := New(memdb.New(), log.NewNoOpLogger())
	now := time.Unix(1_700_000_000, 0)
	g.clock.Set(now)

	const racers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		dups int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.TryAdmit("ethereum", "0xsender", 42, now, testSkew)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case err == ErrDuplicate:
				dups++
			}
		}()
	}
	wg.Wait()

	require.Equal(1, wins)
	require.Equal(racers-1, dups)
}
