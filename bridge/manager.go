// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math"

	"github.com/dytallix/interop/bridge/config"
	"github.com/dytallix/interop/bridge/connector"
	"github.com/dytallix/interop/bridge/metrics"
	"github.com/dytallix/interop/bridge/payload"
	"github.com/dytallix/interop/bridge/pqc"
	"github.com/dytallix/interop/bridge/registry"
	"github.com/dytallix/interop/bridge/replay"
	"github.com/dytallix/interop/bridge/risk"
	"github.com/dytallix/interop/utils/timer/mockable"
)

var (
	ErrHalted               = errors.New("bridge is halted")
	ErrUnknownTransaction   = errors.New("unknown bridge transaction")
	ErrWrongStatus          = errors.New("operation not allowed in current status")
	ErrNoConnector          = errors.New("no connector for chain")
	ErrAmountLimitExceeded  = errors.New("amount exceeds per-transfer limit")
	ErrDailyLimitExceeded   = errors.New("amount exceeds daily bridge limit")
	ErrRiskRejected         = errors.New("transfer flagged by risk oracle")
	ErrPayloadMismatch      = errors.New("stored payload hash does not match transfer fields")
	ErrConflictingSignature = errors.New("validator already submitted a different signature")
)

// ManagerParams collects the manager's collaborators.
type ManagerParams struct {
	Config     *config.Config
	Store      *Store
	Registry   *registry.Registry
	Replay     *replay.Guard
	Verifier   *pqc.Verifier
	Oracle     *risk.Oracle
	Metrics    *metrics.Metrics
	Connectors map[string]connector.ChainConnector
	Log        log.Logger
}

// Manager drives bridge transfers through their lifecycle. All state
// mutations go through the store so a restart resumes from durable state.
type Manager struct {
	cfg        *config.Config
	store      *Store
	registry   *registry.Registry
	replay     *replay.Guard
	verifier   *pqc.Verifier
	oracle     *risk.Oracle
	metrics    *metrics.Metrics
	connectors map[string]connector.ChainConnector
	log        log.Logger

	clock mockable.Clock

	// mu serializes lifecycle mutations. Reads of individual transactions
	// go straight to the store. Destination execution runs outside mu so
	// one slow chain cannot stall unrelated transfers; the executing set
	// guarantees a single executor per transfer.
	mu        sync.Mutex
	height    uint64
	executing map[ids.ID]struct{}
}

func NewManager(p ManagerParams) (*Manager, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Manager{
		cfg:        p.Config,
		store:      p.Store,
		registry:   p.Registry,
		replay:     p.Replay,
		verifier:   p.Verifier,
		oracle:     p.Oracle,
		metrics:    p.Metrics,
		connectors: p.Connectors,
		log:        p.Log,
		executing:  make(map[ids.ID]struct{}),
	}, nil
}

// SetHeight records the local chain height used to pin validator sets for
// newly opened transfers.
func (m *Manager) SetHeight(height uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = height
}

// IngestLockEvent opens a transfer from a finalized source-chain lock
// event. Re-ingesting an event for an already known transfer returns the
// existing transaction unchanged.
func (m *Manager) IngestLockEvent(ctx context.Context, ev connector.RawLockEvent) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if halted, err := m.store.Halted(); err != nil {
		return nil, err
	} else if halted {
		return nil, ErrHalted
	}

	srcCfg, err := m.cfg.Chain(ev.ChainID)
	if err != nil {
		return nil, err
	}

	txID := ComputeTxID(ev.ChainID, ev.TxRef)
	if existing, err := m.store.GetTransaction(txID); err == nil {
		return existing, nil
	}

	conn, ok := m.connectors[ev.ChainID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoConnector, ev.ChainID)
	}
	if err := conn.ValidateAddress(ev.Sender); err != nil {
		return nil, err
	}
	if err := conn.ValidateAssetID(ev.AssetID); err != nil {
		return nil, err
	}
	if dest, ok := m.connectors[ev.DestChain]; ok {
		if err := dest.ValidateAddress(ev.Recipient); err != nil {
			return nil, err
		}
	}
	final, err := conn.FinalityReached(ctx, ev)
	if err != nil {
		return nil, err
	}
	if !final {
		return nil, connector.ErrFinalityNotReached
	}

	transfer := &payload.Transfer{
		SourceChain: ev.ChainID,
		DestChain:   ev.DestChain,
		AssetID:     ev.AssetID,
		Amount:      ev.Amount,
		Sender:      ev.Sender,
		Recipient:   ev.Recipient,
		Nonce:       ev.Nonce,
	}
	if err := transfer.Verify(); err != nil {
		return nil, err
	}
	if err := m.checkLimits(ev); err != nil {
		return nil, err
	}

	hash, err := payload.HashTransfer(transfer)
	if err != nil {
		return nil, err
	}

	now := m.clock.Time()
	tx := &Transaction{
		ID:              txID,
		SourceChain:     ev.ChainID,
		DestChain:       ev.DestChain,
		SourceTxRef:     ev.TxRef,
		Sender:          ev.Sender,
		Recipient:       ev.Recipient,
		AssetID:         ev.AssetID,
		Amount:          ev.Amount,
		Nonce:           ev.Nonce,
		PayloadHash:     hash,
		CreatedAtHeight: m.height,
		Status:          StatusInitiated,
		CreatedAt:       now,
		UpdatedAt:       now,
		Signatures:      make(map[ids.NodeID][]byte),
		Wrapped: &connector.WrappedAsset{
			OriginalAssetID: ev.AssetID,
			OriginalChain:   ev.ChainID,
			Amount:          ev.Amount,
			WrappedAt:       now.Unix(),
		},
	}

	if m.oracle != nil {
		if assessment := m.oracle.Score(ctx, ev.ChainID, ev.DestChain, ev.AssetID, ev.Sender, ev.Recipient, ev.Amount); assessment != nil {
			tx.RiskScore = assessment.Score
			if assessment.Flagged {
				tx.FailureReason = fmt.Sprintf("risk oracle: %s", assessment.Reason)
				tx.Status = StatusFailed
				if err := m.store.PutTransaction(tx); err != nil {
					return nil, err
				}
				m.metrics.IncFailed(tx.DestChain)
				return tx, ErrRiskRejected
			}
		}
	}

	// Nonce admission happens last: a transfer rejected above must not
	// consume its nonce.
	if err := m.replay.TryAdmit(ev.ChainID, ev.Sender, ev.Nonce, ev.BlockTimestamp, srcCfg.MaxTimestampSkew); err != nil {
		if errors.Is(err, replay.ErrDuplicate) {
			m.metrics.IncReplaysBlocked()
		}
		return nil, err
	}

	if err := m.recordVolume(ev); err != nil {
		return nil, err
	}
	if err := m.store.LockCustody(ev.ChainID, ev.AssetID, ev.Amount); err != nil {
		return nil, err
	}
	if err := m.store.PutTransaction(tx); err != nil {
		return nil, err
	}
	if err := tx.Advance(StatusAwaitingSignatures, m.clock.Time()); err != nil {
		return nil, err
	}
	if err := m.store.PutTransaction(tx); err != nil {
		return nil, err
	}

	m.log.Info("opened bridge transfer",
		log.Stringer("txID", tx.ID),
		log.String("sourceChain", tx.SourceChain),
		log.String("destChain", tx.DestChain),
		log.String("amount", tx.Amount.Dec()),
		log.Uint64("nonce", tx.Nonce),
	)
	return tx, nil
}

func (m *Manager) checkLimits(ev connector.RawLockEvent) error {
	if m.cfg.MaxBridgeAmount > 0 && ev.Amount.GtUint64(m.cfg.MaxBridgeAmount) {
		return fmt.Errorf("%w: %s", ErrAmountLimitExceeded, ev.Amount.Dec())
	}
	if m.cfg.DailyBridgeLimit == 0 {
		return nil
	}
	if !ev.Amount.IsUint64() {
		return fmt.Errorf("%w: %s", ErrDailyLimitExceeded, ev.Amount.Dec())
	}
	day := m.clock.Time().UTC().Format("2006-01-02")
	current, err := m.store.DailyVolume(day)
	if err != nil {
		return err
	}
	total, err := math.Add(current, ev.Amount.Uint64())
	if err != nil || total > m.cfg.DailyBridgeLimit {
		return fmt.Errorf("%w: day total would reach %d", ErrDailyLimitExceeded, total)
	}
	return nil
}

// recordVolume charges the day's volume counter. It runs only after nonce
// admission so a rejected duplicate never inflates the counter.
func (m *Manager) recordVolume(ev connector.RawLockEvent) error {
	if m.cfg.DailyBridgeLimit == 0 {
		return nil
	}
	day := m.clock.Time().UTC().Format("2006-01-02")
	_, err := m.store.AddDailyVolume(day, ev.Amount.Uint64())
	return err
}

// SubmitSignature verifies and records one validator's signature over the
// transfer's payload hash. A validator resubmitting its accepted signature
// byte for byte is a no-op; differing bytes are rejected. Crossing the
// threshold triggers destination execution.
func (m *Manager) SubmitSignature(ctx context.Context, txID ids.ID, validatorID ids.NodeID, signature []byte) error {
	tx, ready, err := m.recordSignature(txID, validatorID, signature)
	if err != nil || !ready {
		return err
	}
	return m.runExecution(ctx, tx)
}

func (m *Manager) recordSignature(txID ids.ID, validatorID ids.NodeID, signature []byte) (*Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.store.GetTransaction(txID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownTransaction, txID)
	}
	if existing, ok := tx.Signatures[validatorID]; ok {
		if bytes.Equal(existing, signature) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %s", ErrConflictingSignature, validatorID)
	}
	if tx.Status != StatusAwaitingSignatures {
		return nil, false, fmt.Errorf("%w: %s", ErrWrongStatus, tx.Status)
	}

	// The hash is recomputed from stored fields so a corrupted record can
	// never be signed into execution.
	hash, err := payload.HashTransfer(tx.Transfer())
	if err != nil {
		return nil, false, err
	}
	if hash != tx.PayloadHash {
		return nil, false, ErrPayloadMismatch
	}

	entry, err := m.registry.AuthorizedKeyAt(validatorID, tx.CreatedAtHeight)
	if err != nil {
		m.metrics.IncSignaturesRejected()
		return nil, false, err
	}
	if err := m.verifier.Verify(tx.PayloadHash, signature, entry.PublicKey, entry.Algorithm); err != nil {
		m.metrics.IncSignaturesRejected()
		m.log.Warn("rejected validator signature",
			log.Stringer("txID", tx.ID),
			log.Stringer("validatorID", validatorID),
			log.Err(err),
		)
		return nil, false, err
	}

	tx.Signatures[validatorID] = signature
	tx.UpdatedAt = m.clock.Time()
	m.metrics.IncSignaturesAccepted()
	if err := m.store.PutTransaction(tx); err != nil {
		return nil, false, err
	}

	threshold, err := m.registry.ThresholdAt(tx.CreatedAtHeight)
	if err != nil {
		return nil, false, err
	}
	if len(tx.Signatures) < threshold {
		return nil, false, nil
	}

	if err := tx.Advance(StatusThresholdMet, m.clock.Time()); err != nil {
		return nil, false, err
	}
	if err := m.store.PutTransaction(tx); err != nil {
		return nil, false, err
	}
	m.log.Info("signature threshold met",
		log.Stringer("txID", tx.ID),
		log.Int("signatures", len(tx.Signatures)),
		log.Int("threshold", threshold),
	)
	return tx, true, nil
}

// runExecution claims the transfer and drives its destination credit
// without holding the manager mutex. While claimed, no other path mutates
// the transfer: Cancel, Reverse, and ExpireStale all refuse its status.
func (m *Manager) runExecution(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	if _, busy := m.executing[tx.ID]; busy {
		m.mu.Unlock()
		return nil
	}
	m.executing[tx.ID] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.executing, tx.ID)
		m.mu.Unlock()
	}()
	return m.execute(ctx, tx)
}

// ResumePending re-drives transfers whose threshold was met but whose
// destination credit never finished, such as after a restart between the
// threshold being persisted and execution completing. Re-execution is safe
// because the destination reference is deterministic: an already applied
// credit is observed, not resubmitted. It returns the number of transfers
// driven to a terminal status.
func (m *Manager) ResumePending(ctx context.Context) (int, error) {
	txs, err := m.store.Transactions()
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, tx := range txs {
		if tx.Status != StatusThresholdMet {
			continue
		}
		m.log.Info("resuming interrupted transfer",
			log.Stringer("txID", tx.ID),
			log.String("destChain", tx.DestChain),
		)
		if err := m.runExecution(ctx, tx); err != nil {
			return resumed, err
		}
		resumed++
	}
	return resumed, nil
}

// execute performs the destination-chain credit with bounded exponential
// backoff on transient errors.
func (m *Manager) execute(ctx context.Context, tx *Transaction) error {
	conn, ok := m.connectors[tx.DestChain]
	if !ok {
		return m.fail(tx, fmt.Sprintf("no connector for destination chain %s", tx.DestChain))
	}

	req := &connector.MintRequest{
		TransactionID: tx.ID,
		Recipient:     tx.Recipient,
		AssetID:       tx.AssetID,
		Amount:        tx.Amount,
		Wrapped:       tx.Wrapped,
	}

	delay := m.cfg.ExecutionRetryBase
	for attempt := 0; ; attempt++ {
		destRef, err := conn.ExecuteMintOrUnlock(ctx, req)
		if err == nil {
			tx.DestTxRef = destRef
			if err := tx.Advance(StatusCompleted, m.clock.Time()); err != nil {
				return err
			}
			if err := m.store.PutTransaction(tx); err != nil {
				return err
			}
			m.metrics.IncCompleted(tx.DestChain)
			m.log.Info("bridge transfer completed",
				log.Stringer("txID", tx.ID),
				log.String("destTxRef", destRef),
				log.Int("attempts", attempt+1),
			)
			return nil
		}
		if !connector.IsTransient(err) {
			return m.fail(tx, fmt.Sprintf("destination execution failed: %s", err))
		}
		if attempt >= m.cfg.ExecutionRetryLimit {
			return m.fail(tx, fmt.Sprintf("destination execution retries exhausted: %s", err))
		}

		m.metrics.IncExecutionRetries()
		select {
		case <-ctx.Done():
			return m.fail(tx, fmt.Sprintf("destination execution aborted: %s", ctx.Err()))
		case <-time.After(delay):
		}
		if delay *= 2; delay > m.cfg.ExecutionRetryCap {
			delay = m.cfg.ExecutionRetryCap
		}
	}
}

func (m *Manager) fail(tx *Transaction, reason string) error {
	if err := tx.Advance(StatusFailed, m.clock.Time()); err != nil {
		return err
	}
	tx.FailureReason = reason
	if err := m.store.PutTransaction(tx); err != nil {
		return err
	}
	m.metrics.IncFailed(tx.DestChain)
	m.log.Warn("bridge transfer failed",
		log.Stringer("txID", tx.ID),
		log.String("reason", reason),
	)
	return nil
}

// ExpireStale fails every transfer that has waited for signatures longer
// than the configured timeout. It returns the number of expired transfers.
func (m *Manager) ExpireStale() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txs, err := m.store.Transactions()
	if err != nil {
		return 0, err
	}

	now := m.clock.Time()
	expired := 0
	for _, tx := range txs {
		if tx.Status != StatusAwaitingSignatures {
			continue
		}
		if now.Sub(tx.CreatedAt) <= m.cfg.SignatureTimeout {
			continue
		}
		if err := m.fail(tx, "signature collection timed out"); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// Cancel fails a transfer that has not yet met its threshold. Once the
// threshold is met the transfer is past the point of no return.
func (m *Manager) Cancel(txID ids.ID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.store.GetTransaction(txID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, txID)
	}
	if tx.Status != StatusInitiated && tx.Status != StatusAwaitingSignatures {
		return fmt.Errorf("%w: %s", ErrWrongStatus, tx.Status)
	}
	return m.fail(tx, fmt.Sprintf("cancelled: %s", reason))
}

// Reverse returns a failed transfer's custody to the source side.
func (m *Manager) Reverse(txID ids.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.store.GetTransaction(txID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, txID)
	}
	if err := tx.Advance(StatusReversed, m.clock.Time()); err != nil {
		return err
	}
	if err := m.store.ReleaseCustody(tx.SourceChain, tx.AssetID, tx.Amount); err != nil {
		return err
	}
	if err := m.store.PutTransaction(tx); err != nil {
		return err
	}
	m.metrics.IncReversed(tx.SourceChain)
	m.log.Info("bridge transfer reversed",
		log.Stringer("txID", tx.ID),
		log.String("sourceChain", tx.SourceChain),
	)
	return nil
}

// Halt stops admission of new transfers. In-flight status queries and
// resumption remain available.
func (m *Manager) Halt() error {
	m.log.Warn("halting bridge")
	return m.store.SetHalted(true)
}

// Resume re-enables admission of new transfers.
func (m *Manager) Resume() error {
	m.log.Info("resuming bridge")
	return m.store.SetHalted(false)
}

// Transaction returns the transfer with the given id.
func (m *Manager) Transaction(txID ids.ID) (*Transaction, error) {
	tx, err := m.store.GetTransaction(txID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, txID)
	}
	return tx, nil
}

// Stats summarizes the bridge's current state.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
	Halted   bool           `json:"halted"`
}

func (m *Manager) Stats() (*Stats, error) {
	txs, err := m.store.Transactions()
	if err != nil {
		return nil, err
	}
	halted, err := m.store.Halted()
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		Total:    len(txs),
		ByStatus: make(map[string]int),
		Halted:   halted,
	}
	for _, tx := range txs {
		stats.ByStatus[tx.Status.String()]++
	}
	return stats, nil
}
