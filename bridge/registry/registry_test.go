// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(memdb.New(), log.NewNoOpLogger())
	require.NoError(t, err)
	return r
}

func TestRegisterAndActiveSet(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry(t)

	a := ids.GenerateTestNodeID()
	b := ids.GenerateTestNodeID()

	require.NoError(r.Register(a, []byte("pk-a"), 2, 10))
	require.NoError(r.Register(b, []byte("pk-b"), 2, 20))

	// Before either activation height the set is empty.
	require.Empty(r.ActiveSetAt(5))

	set := r.ActiveSetAt(15)
	require.Len(set, 1)
	require.Equal([]byte("pk-a"), set[a].PublicKey)

	set = r.ActiveSetAt(25)
	require.Len(set, 2)
}

func TestRegisterDuplicate(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry(t)

	a := ids.GenerateTestNodeID()
	require.NoError(r.Register(a, []byte("pk-a"), 2, 10))
	require.ErrorIs(r.Register(a, []byte("pk-a2"), 2, 11), ErrValidatorExists)
}

func TestRevokedKeyNotAuthorizedRetroactively(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry(t)

	a := ids.GenerateTestNodeID()
	require.NoError(r.Register(a, []byte("pk-a"), 2, 10))
	require.NoError(r.Revoke(a, 50))

	// Authorized in the window, not after revocation.
	entry, err := r.AuthorizedKeyAt(a, 30)
	require.NoError(err)
	require.Equal([]byte("pk-a"), entry.PublicKey)

	_, err = r.AuthorizedKeyAt(a, 50)
	require.ErrorIs(err, ErrNotAuthorized)
	_, err = r.AuthorizedKeyAt(a, 60)
	require.ErrorIs(err, ErrNotAuthorized)

	// Not authorized before activation either.
	_, err = r.AuthorizedKeyAt(a, 9)
	require.ErrorIs(err, ErrNotAuthorized)

	require.ErrorIs(r.Revoke(a, 60), ErrValidatorRevoked)
}

func TestRotatePinsHistory(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry(t)

	a := ids.GenerateTestNodeID()
	require.NoError(r.Register(a, []byte("pk-old"), 2, 10))
	require.NoError(r.Rotate(a, []byte("pk-new"), 2, 40))

	// Height-pinned reads see the key that was authoritative then.
	entry, err := r.AuthorizedKeyAt(a, 20)
	require.NoError(err)
	require.Equal([]byte("pk-old"), entry.PublicKey)

	entry, err = r.AuthorizedKeyAt(a, 40)
	require.NoError(err)
	require.Equal([]byte("pk-new"), entry.PublicKey)
}

func TestThresholdVersioning(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry(t)

	_, err := r.ThresholdAt(10)
	require.ErrorIs(err, ErrInvalidThreshold)

	require.NoError(r.SetThreshold(3, 0))
	require.NoError(r.SetThreshold(4, 100))

	th, err := r.ThresholdAt(50)
	require.NoError(err)
	require.Equal(3, th)

	th, err = r.ThresholdAt(100)
	require.NoError(err)
	require.Equal(4, th)

	require.ErrorIs(r.SetThreshold(5, 50), ErrThresholdRegressed)
	require.ErrorIs(r.SetThreshold(0, 200), ErrInvalidThreshold)
}

func TestPersistenceAcrossReload(t *testing.T) {
	require := require.New(t)
	db := memdb.New()

	r, err := New(db, log.NewNoOpLogger())
	require.NoError(err)

	a := ids.GenerateTestNodeID()
	require.NoError(r.Register(a, []byte("pk-a"), 2, 10))
	require.NoError(r.SetThreshold(3, 0))
	require.NoError(r.Revoke(a, 50))

	reloaded, err := New(db, log.NewNoOpLogger())
	require.NoError(err)

	_, err = reloaded.AuthorizedKeyAt(a, 30)
	require.NoError(err)
	_, err = reloaded.AuthorizedKeyAt(a, 60)
	require.ErrorIs(err, ErrNotAuthorized)

	th, err := reloaded.ThresholdAt(10)
	require.NoError(err)
	require.Equal(3, th)

	records, err := reloaded.Audit()
	require.NoError(err)
	require.Len(records, 3)
	require.Equal("register", records[0].Action)
	require.Equal("set_threshold", records[1].Action)
	require.Equal("revoke", records[2].Action)
}
