// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package payload produces the canonical byte encoding of a cross-chain
// transfer. The digest over this encoding is the only thing validators sign;
// it is always recomputed from the transfer's logical fields and never
// trusted from a caller.
package payload

import (
	"crypto/sha256"
	"errors"

	"github.com/holiman/uint256"

	"github.com/dytallix/interop/utils/wrappers"
)

const (
	// DomainTag separates bridge payload signatures from every other
	// signature domain in the protocol. A signature over a payload without
	// this tag never verifies against a bridge payload hash.
	DomainTag = "dytallix-bridge-v1"

	// HashLen is the length of a payload digest
	HashLen = 32

	codecVersion uint16 = 0

	maxPayloadSize = 4096
)

var (
	ErrNilTransfer   = errors.New("nil transfer")
	ErrZeroAmount    = errors.New("transfer amount must be positive")
	ErrMissingField  = errors.New("transfer field missing")
	ErrSameChain     = errors.New("source and destination chain are equal")
	ErrOversizedData = errors.New("transfer field exceeds payload size limit")
)

// Hash is a payload digest.
type Hash [HashLen]byte

// Transfer holds the logical fields of a cross-chain transfer that are bound
// into the signed payload.
type Transfer struct {
	SourceChain string       `json:"sourceChain"`
	DestChain   string       `json:"destChain"`
	AssetID     string       `json:"assetId"`
	Amount      *uint256.Int `json:"amount"`
	Sender      string       `json:"sender"`
	Recipient   string       `json:"recipient"`
	Nonce       uint64       `json:"nonce"`
}

// Verify checks the structural invariants of a transfer.
func (t *Transfer) Verify() error {
	switch {
	case t == nil:
		return ErrNilTransfer
	case t.Amount == nil || t.Amount.IsZero():
		return ErrZeroAmount
	case t.SourceChain == "" || t.DestChain == "" || t.AssetID == "" ||
		t.Sender == "" || t.Recipient == "":
		return ErrMissingField
	case t.SourceChain == t.DestChain:
		return ErrSameChain
	}
	return nil
}

// Canonicalize encodes a transfer into its unique byte representation:
// codec version, domain tag, then every field in declared order with
// explicit widths. The same logical transfer always yields the same bytes.
func Canonicalize(t *Transfer) ([]byte, error) {
	if err := t.Verify(); err != nil {
		return nil, err
	}

	p := wrappers.Packer{MaxSize: maxPayloadSize}
	p.PackShort(codecVersion)
	p.PackStr(DomainTag)
	p.PackStr(t.SourceChain)
	p.PackStr(t.DestChain)
	p.PackStr(t.AssetID)

	amount := t.Amount.Bytes32()
	p.PackFixedBytes(amount[:])

	p.PackStr(t.Sender)
	p.PackStr(t.Recipient)
	p.PackLong(t.Nonce)

	if p.Errored() {
		return nil, ErrOversizedData
	}
	return p.Bytes, nil
}

// HashBytes digests canonical payload bytes.
func HashBytes(b []byte) Hash {
	return sha256.Sum256(b)
}

// HashTransfer canonicalizes and digests a transfer in one step.
func HashTransfer(t *Transfer) (Hash, error) {
	b, err := Canonicalize(t)
	if err != nil {
		return Hash{}, err
	}
	return HashBytes(b), nil
}
