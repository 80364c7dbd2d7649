// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package connector abstracts the external chains behind a uniform
// capability interface. A connector observes lock events on its chain,
// answers finality queries against the chain's configured confirmation
// depth, and executes idempotent mint/unlock calls on the destination side.
package connector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/dytallix/interop/bridge/config"
)

var (
	ErrNilBackend         = errors.New("nil chain backend")
	ErrWrongChainKind     = errors.New("chain config kind mismatch")
	ErrInvalidAddress     = errors.New("invalid address for chain")
	ErrInvalidAssetID     = errors.New("invalid asset id for chain")
	ErrFinalityNotReached = errors.New("source event finality not reached")
)

// Error wraps a destination-chain failure with its retry classification.
// Transient errors (network, timeout) are retried with backoff; fatal errors
// (destination contract rejected the call) fail the transaction.
type Error struct {
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Retryable {
		return fmt.Sprintf("transient connector error: %s", e.Err)
	}
	return fmt.Sprintf("fatal connector error: %s", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient marks an error as retryable.
func Transient(err error) *Error {
	return &Error{Retryable: true, Err: err}
}

// Fatal marks an error as non-retryable.
func Fatal(err error) *Error {
	return &Error{Retryable: false, Err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Retryable
	}
	return false
}

// RawLockEvent is a lock/burn observed on a source chain, before finality
// and replay checks.
type RawLockEvent struct {
	ChainID        string       `json:"chainId"`
	DestChain      string       `json:"destChain"`
	TxRef          string       `json:"txRef"`
	Sender         string       `json:"sender"`
	Recipient      string       `json:"recipient"`
	AssetID        string       `json:"assetId"`
	Amount         *uint256.Int `json:"amount"`
	Nonce          uint64       `json:"nonce"`
	BlockHeight    uint64       `json:"blockHeight"`
	BlockTimestamp time.Time    `json:"blockTimestamp"`
}

// WrappedAsset describes the destination-chain representation of value
// locked on the source chain.
type WrappedAsset struct {
	OriginalAssetID string       `json:"originalAssetId"`
	OriginalChain   string       `json:"originalChain"`
	Amount          *uint256.Int `json:"amount"`
	WrappedAt       int64        `json:"wrappedAt"`
}

// MintRequest is the outbound mint/unlock call, keyed by a deterministic
// identifier derived from the bridge transaction id.
type MintRequest struct {
	TransactionID ids.ID        `json:"transactionId"`
	Recipient     string        `json:"recipient"`
	AssetID       string        `json:"assetId"`
	Amount        *uint256.Int  `json:"amount"`
	Wrapped       *WrappedAsset `json:"wrapped,omitempty"`
}

// ChainConnector is the per-chain capability interface. New chains are
// added by implementing it, not by branching on chain IDs in the manager.
type ChainConnector interface {
	// ChainID returns the configured chain identifier.
	ChainID() string

	// RequiredConfirmations returns the chain's configured confirmation
	// depth.
	RequiredConfirmations() uint64

	// LatestHeight returns the chain's current best height.
	LatestHeight(ctx context.Context) (uint64, error)

	// LockEventsInRange returns lock events in (from, to], normalized to
	// RawLockEvent. The range is driven by the checkpointed poller.
	LockEventsInRange(ctx context.Context, from, to uint64) ([]RawLockEvent, error)

	// FinalityReached reports whether the event's containing block has at
	// least the chain's required confirmations.
	FinalityReached(ctx context.Context, event RawLockEvent) (bool, error)

	// ExecuteMintOrUnlock performs the destination-chain credit. It is
	// idempotent: a retried call for the same transaction id observes the
	// deterministic destination reference as already applied and does not
	// resubmit.
	ExecuteMintOrUnlock(ctx context.Context, req *MintRequest) (string, error)

	// ValidateAddress checks an address against the chain's format.
	ValidateAddress(addr string) error

	// ValidateAssetID checks an asset identifier against the chain's
	// configured format.
	ValidateAssetID(assetID string) error
}

// Backend is the thin chain-RPC surface a connector is built over. Real
// deployments implement it against the chain's node API; tests fake it.
type Backend interface {
	LatestHeight(ctx context.Context) (uint64, error)
	LockEvents(ctx context.Context, from, to uint64) ([]RawLockEvent, error)

	// IsApplied reports whether a mint/unlock with the given deterministic
	// reference has already been applied on the destination chain.
	IsApplied(ctx context.Context, destRef string) (bool, error)

	// SubmitMint submits the mint/unlock keyed by destRef.
	SubmitMint(ctx context.Context, destRef string, req *MintRequest) error
}

// base carries the behavior shared by every chain adapter.
type base struct {
	cfg     *config.ChainConfig
	backend Backend
	log     log.Logger
}

func newBase(cfg *config.ChainConfig, backend Backend, logger log.Logger, wantKind string) (base, error) {
	if backend == nil {
		return base{}, ErrNilBackend
	}
	if cfg.Kind != wantKind {
		return base{}, fmt.Errorf("%w: have %q, want %q", ErrWrongChainKind, cfg.Kind, wantKind)
	}
	return base{
		cfg:     cfg,
		backend: backend,
		log:     logger,
	}, nil
}

func (b *base) ChainID() string {
	return b.cfg.ChainID
}

func (b *base) RequiredConfirmations() uint64 {
	return b.cfg.RequiredConfirmations
}

func (b *base) LatestHeight(ctx context.Context) (uint64, error) {
	return b.backend.LatestHeight(ctx)
}

func (b *base) LockEventsInRange(ctx context.Context, from, to uint64) ([]RawLockEvent, error) {
	return b.backend.LockEvents(ctx, from, to)
}

func (b *base) FinalityReached(ctx context.Context, event RawLockEvent) (bool, error) {
	latest, err := b.backend.LatestHeight(ctx)
	if err != nil {
		return false, Transient(err)
	}
	return latest >= event.BlockHeight+b.cfg.RequiredConfirmations, nil
}

// executeMintOrUnlock submits the credit under a deterministic reference so
// that a retried submission is recognized as already applied rather than
// resubmitted.
func (b *base) executeMintOrUnlock(ctx context.Context, req *MintRequest) (string, error) {
	destRef := DeriveDestRef(b.cfg.ChainID, req.TransactionID)

	applied, err := b.backend.IsApplied(ctx, destRef)
	if err != nil {
		return "", Transient(err)
	}
	if applied {
		b.log.Debug("mint already applied, skipping resubmission",
			log.String("chainID", b.cfg.ChainID),
			log.Stringer("transactionID", req.TransactionID),
			log.String("destRef", destRef),
		)
		return destRef, nil
	}

	if err := b.backend.SubmitMint(ctx, destRef, req); err != nil {
		return "", err
	}
	return destRef, nil
}

// DeriveDestRef derives the deterministic destination-chain transaction
// identifier for a bridge transaction. Both a fresh submission and a retry
// compute the same reference.
func DeriveDestRef(chainID string, txID ids.ID) string {
	h := sha256.New()
	h.Write([]byte("dytallix-bridge-mint"))
	h.Write([]byte(chainID))
	h.Write(txID[:])
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
