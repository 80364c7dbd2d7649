// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bridge manages the lifecycle of cross-chain transfers: opening a
// transfer from a finalized lock event, collecting validator signatures over
// its canonical payload, and executing the destination-chain credit once the
// signature threshold is met.
package bridge

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	"github.com/dytallix/interop/bridge/connector"
	"github.com/dytallix/interop/bridge/payload"
)

// Status is a transfer's lifecycle state. Transitions are monotonic: a
// transfer never moves backwards, and Completed and Reversed are terminal.
type Status uint8

const (
	StatusInitiated Status = iota
	StatusAwaitingSignatures
	StatusThresholdMet
	StatusCompleted
	StatusFailed
	StatusReversed
)

func (s Status) String() string {
	switch s {
	case StatusInitiated:
		return "initiated"
	case StatusAwaitingSignatures:
		return "awaiting_signatures"
	case StatusThresholdMet:
		return "threshold_met"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusReversed:
		return "reversed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusReversed
}

var validTransitions = map[Status][]Status{
	StatusInitiated:          {StatusAwaitingSignatures, StatusFailed},
	StatusAwaitingSignatures: {StatusThresholdMet, StatusFailed},
	StatusThresholdMet:       {StatusCompleted, StatusFailed},
	StatusFailed:             {StatusReversed},
}

var ErrInvalidTransition = errors.New("invalid status transition")

// Transaction is a bridge transfer being shepherded across chains.
type Transaction struct {
	ID          ids.ID       `json:"id"`
	SourceChain string       `json:"sourceChain"`
	DestChain   string       `json:"destChain"`
	SourceTxRef string       `json:"sourceTxRef"`
	Sender      string       `json:"sender"`
	Recipient   string       `json:"recipient"`
	AssetID     string       `json:"assetId"`
	Amount      *uint256.Int `json:"amount"`
	Nonce       uint64       `json:"nonce"`

	PayloadHash payload.Hash `json:"payloadHash"`

	// CreatedAtHeight pins the validator set and threshold the transfer is
	// judged against. Registry changes after this height do not apply.
	CreatedAtHeight uint64 `json:"createdAtHeight"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Signatures maps each accepted validator to its signature over
	// PayloadHash.
	Signatures map[ids.NodeID][]byte `json:"signatures"`

	DestTxRef     string                  `json:"destTxRef,omitempty"`
	FailureReason string                  `json:"failureReason,omitempty"`
	Wrapped       *connector.WrappedAsset `json:"wrapped,omitempty"`
	RiskScore     float64                 `json:"riskScore,omitempty"`
}

// Advance moves the transaction to next, rejecting any transition the
// lifecycle does not allow.
func (tx *Transaction) Advance(next Status, now time.Time) error {
	for _, allowed := range validTransitions[tx.Status] {
		if next == allowed {
			tx.Status = next
			tx.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, tx.Status, next)
}

// Transfer returns the canonical payload the validators sign.
func (tx *Transaction) Transfer() *payload.Transfer {
	return &payload.Transfer{
		SourceChain: tx.SourceChain,
		DestChain:   tx.DestChain,
		AssetID:     tx.AssetID,
		Amount:      tx.Amount,
		Sender:      tx.Sender,
		Recipient:   tx.Recipient,
		Nonce:       tx.Nonce,
	}
}

// ComputeTxID derives the transaction identifier from the source event so
// that re-observing the same lock yields the same transfer.
func ComputeTxID(sourceChain, sourceTxRef string) ids.ID {
	h := sha256.New()
	h.Write([]byte(sourceChain))
	h.Write([]byte{':'})
	h.Write([]byte(sourceTxRef))
	return ids.ID(h.Sum(nil))
}
