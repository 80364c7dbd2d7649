// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func validTransfer() *Transfer {
	return &Transfer{
		SourceChain: "ethereum",
		DestChain:   "dytallix",
		AssetID:     "ETH",
		Amount:      uint256.NewInt(1_000_000),
		Sender:      "0x8ba1f109551bd432803012645ac136ddd64dba72",
		Recipient:   "dtx1qy352euf40x77qfrg4ncn27daau5vhnszzwr0c3",
		Nonce:       42,
	}
}

func TestHashDeterminism(t *testing.T) {
	require := require.New(t)

	a, err := HashTransfer(validTransfer())
	require.NoError(err)

	b, err := HashTransfer(validTransfer())
	require.NoError(err)

	require.Equal(a, b)
}

func TestHashSensitivity(t *testing.T) {
	require := require.New(t)

	base, err := HashTransfer(validTransfer())
	require.NoError(err)

	mutations := map[string]func(*Transfer){
		"amount off by one": func(tr *Transfer) {
			tr.Amount = uint256.NewInt(1_000_001)
		},
		"different nonce": func(tr *Transfer) {
			tr.Nonce = 43
		},
		"different recipient": func(tr *Transfer) {
			tr.Recipient = "dtx1qy352euf40x77qfrg4ncn27daau5vhnszzwr0c4"
		},
		"different asset": func(tr *Transfer) {
			tr.AssetID = "WETH"
		},
		"swapped direction": func(tr *Transfer) {
			tr.SourceChain, tr.DestChain = tr.DestChain, tr.SourceChain
		},
	}

	for name, mutate := range mutations {
		tr := validTransfer()
		mutate(tr)
		h, err := HashTransfer(tr)
		require.NoError(err, name)
		require.NotEqual(base, h, name)
	}
}

// Adjacent string fields must not be able to shift bytes between each other.
func TestFieldBoundaryUnambiguous(t *testing.T) {
	require := require.New(t)

	a := validTransfer()
	a.Sender = "ab"
	a.Recipient = "c"

	b := validTransfer()
	b.Sender = "a"
	b.Recipient = "bc"

	ha, err := HashTransfer(a)
	require.NoError(err)
	hb, err := HashTransfer(b)
	require.NoError(err)

	require.NotEqual(ha, hb)
}

func TestCanonicalizeRejectsInvalid(t *testing.T) {
	require := require.New(t)

	tests := []struct {
		name   string
		mutate func(*Transfer)
		err    error
	}{
		{"zero amount", func(tr *Transfer) { tr.Amount = uint256.NewInt(0) }, ErrZeroAmount},
		{"nil amount", func(tr *Transfer) { tr.Amount = nil }, ErrZeroAmount},
		{"empty sender", func(tr *Transfer) { tr.Sender = "" }, ErrMissingField},
		{"empty asset", func(tr *Transfer) { tr.AssetID = "" }, ErrMissingField},
		{"same chain", func(tr *Transfer) { tr.DestChain = tr.SourceChain }, ErrSameChain},
	}

	for _, tt := range tests {
		tr := validTransfer()
		tt.mutate(tr)
		_, err := Canonicalize(tr)
		require.ErrorIs(err, tt.err, tt.name)
	}
}

func TestDomainTagBound(t *testing.T) {
	require := require.New(t)

	b, err := Canonicalize(validTransfer())
	require.NoError(err)
	require.Contains(string(b), DomainTag)
}
