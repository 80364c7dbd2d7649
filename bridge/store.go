// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"bytes"
	"errors"
	"fmt"
	gomath "math"
	"sort"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math"

	"github.com/dytallix/interop/bridge/connector"
	"github.com/dytallix/interop/bridge/payload"
)

const (
	txPrefix      = "tx:"
	custodyPrefix = "cu:"
	volumePrefix  = "vol:"
	haltKey       = "halt"
)

var (
	ErrInsufficientCustody = errors.New("insufficient custody balance")
	ErrCustodyOverflow     = errors.New("custody balance overflow")
)

// signatureEntry is one validator's accepted signature, persisted in
// validator-id order for deterministic bytes.
type signatureEntry struct {
	ValidatorID ids.NodeID `serialize:"true"`
	Signature   []byte     `serialize:"true"`
}

// storedTransaction is the durable form of a Transaction.
type storedTransaction struct {
	ID              ids.ID           `serialize:"true"`
	SourceChain     string           `serialize:"true"`
	DestChain       string           `serialize:"true"`
	SourceTxRef     string           `serialize:"true"`
	Sender          string           `serialize:"true"`
	Recipient       string           `serialize:"true"`
	AssetID         string           `serialize:"true"`
	Amount          [32]byte         `serialize:"true"`
	Nonce           uint64           `serialize:"true"`
	PayloadHash     [32]byte         `serialize:"true"`
	CreatedAtHeight uint64           `serialize:"true"`
	Status          uint8            `serialize:"true"`
	CreatedAt       int64            `serialize:"true"`
	UpdatedAt       int64            `serialize:"true"`
	Signatures      []signatureEntry `serialize:"true"`
	DestTxRef       string           `serialize:"true"`
	FailureReason   string           `serialize:"true"`
	RiskScoreBits   uint64           `serialize:"true"`

	HasWrapped     bool     `serialize:"true"`
	WrappedAssetID string   `serialize:"true"`
	WrappedChain   string   `serialize:"true"`
	WrappedAmount  [32]byte `serialize:"true"`
	WrappedAtUnix  int64    `serialize:"true"`
}

// custodyRecord tracks value locked per (chain, asset).
type custodyRecord struct {
	Locked [32]byte `serialize:"true"`
}

func toStored(tx *Transaction) *storedTransaction {
	st := &storedTransaction{
		ID:              tx.ID,
		SourceChain:     tx.SourceChain,
		DestChain:       tx.DestChain,
		SourceTxRef:     tx.SourceTxRef,
		Sender:          tx.Sender,
		Recipient:       tx.Recipient,
		AssetID:         tx.AssetID,
		Amount:          tx.Amount.Bytes32(),
		Nonce:           tx.Nonce,
		PayloadHash:     tx.PayloadHash,
		CreatedAtHeight: tx.CreatedAtHeight,
		Status:          uint8(tx.Status),
		CreatedAt:       tx.CreatedAt.UnixNano(),
		UpdatedAt:       tx.UpdatedAt.UnixNano(),
		DestTxRef:       tx.DestTxRef,
		FailureReason:   tx.FailureReason,
		RiskScoreBits:   gomath.Float64bits(tx.RiskScore),
	}
	for id, sig := range tx.Signatures {
		st.Signatures = append(st.Signatures, signatureEntry{
			ValidatorID: id,
			Signature:   sig,
		})
	}
	sort.Slice(st.Signatures, func(i, j int) bool {
		return bytes.Compare(st.Signatures[i].ValidatorID[:], st.Signatures[j].ValidatorID[:]) < 0
	})
	if tx.Wrapped != nil {
		st.HasWrapped = true
		st.WrappedAssetID = tx.Wrapped.OriginalAssetID
		st.WrappedChain = tx.Wrapped.OriginalChain
		st.WrappedAmount = tx.Wrapped.Amount.Bytes32()
		st.WrappedAtUnix = tx.Wrapped.WrappedAt
	}
	return st
}

func fromStored(st *storedTransaction) *Transaction {
	tx := &Transaction{
		ID:              st.ID,
		SourceChain:     st.SourceChain,
		DestChain:       st.DestChain,
		SourceTxRef:     st.SourceTxRef,
		Sender:          st.Sender,
		Recipient:       st.Recipient,
		AssetID:         st.AssetID,
		Amount:          new(uint256.Int).SetBytes32(st.Amount[:]),
		Nonce:           st.Nonce,
		PayloadHash:     payload.Hash(st.PayloadHash),
		CreatedAtHeight: st.CreatedAtHeight,
		Status:          Status(st.Status),
		CreatedAt:       time.Unix(0, st.CreatedAt),
		UpdatedAt:       time.Unix(0, st.UpdatedAt),
		Signatures:      make(map[ids.NodeID][]byte, len(st.Signatures)),
		DestTxRef:       st.DestTxRef,
		FailureReason:   st.FailureReason,
		RiskScore:       gomath.Float64frombits(st.RiskScoreBits),
	}
	for _, entry := range st.Signatures {
		tx.Signatures[entry.ValidatorID] = entry.Signature
	}
	if st.HasWrapped {
		tx.Wrapped = &connector.WrappedAsset{
			OriginalAssetID: st.WrappedAssetID,
			OriginalChain:   st.WrappedChain,
			Amount:          new(uint256.Int).SetBytes32(st.WrappedAmount[:]),
			WrappedAt:       st.WrappedAtUnix,
		}
	}
	return tx
}

// Store persists transactions, custody balances, daily volume counters, and
// the halt flag.
type Store struct {
	db  database.Database
	log log.Logger
}

func NewStore(db database.Database, logger log.Logger) *Store {
	return &Store{
		db:  db,
		log: logger,
	}
}

func (s *Store) PutTransaction(tx *Transaction) error {
	raw, err := Codec.Marshal(codecVersion, toStored(tx))
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}
	return s.db.Put(txKey(tx.ID), raw)
}

func (s *Store) GetTransaction(txID ids.ID) (*Transaction, error) {
	raw, err := s.db.Get(txKey(txID))
	if err != nil {
		return nil, err
	}
	st := &storedTransaction{}
	if _, err := Codec.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return fromStored(st), nil
}

// Transactions returns every persisted transaction, in key order.
func (s *Store) Transactions() ([]*Transaction, error) {
	it := s.db.NewIteratorWithPrefix([]byte(txPrefix))
	defer it.Release()

	var txs []*Transaction
	for it.Next() {
		st := &storedTransaction{}
		if _, err := Codec.Unmarshal(it.Value(), st); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
		}
		txs = append(txs, fromStored(st))
	}
	return txs, it.Error()
}

func (s *Store) SetHalted(halted bool) error {
	if halted {
		return s.db.Put([]byte(haltKey), []byte{1})
	}
	return s.db.Delete([]byte(haltKey))
}

func (s *Store) Halted() (bool, error) {
	has, err := s.db.Has([]byte(haltKey))
	if err != nil {
		return false, err
	}
	return has, nil
}

// LockCustody credits value held for a (chain, asset) pair.
func (s *Store) LockCustody(chain, asset string, amount *uint256.Int) error {
	held, err := s.Custody(chain, asset)
	if err != nil {
		return err
	}
	total, overflow := new(uint256.Int).AddOverflow(held, amount)
	if overflow {
		return ErrCustodyOverflow
	}
	return s.putCustody(chain, asset, total)
}

// ReleaseCustody debits value held for a (chain, asset) pair.
func (s *Store) ReleaseCustody(chain, asset string, amount *uint256.Int) error {
	held, err := s.Custody(chain, asset)
	if err != nil {
		return err
	}
	if held.Lt(amount) {
		return fmt.Errorf("%w: held %s, releasing %s", ErrInsufficientCustody, held.Dec(), amount.Dec())
	}
	return s.putCustody(chain, asset, new(uint256.Int).Sub(held, amount))
}

// Custody returns the value held for a (chain, asset) pair, zero when the
// pair has never locked anything.
func (s *Store) Custody(chain, asset string) (*uint256.Int, error) {
	raw, err := s.db.Get(custodyKey(chain, asset))
	if errors.Is(err, database.ErrNotFound) {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	rec := &custodyRecord{}
	if _, err := Codec.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal custody record: %w", err)
	}
	return new(uint256.Int).SetBytes32(rec.Locked[:]), nil
}

func (s *Store) putCustody(chain, asset string, held *uint256.Int) error {
	raw, err := Codec.Marshal(codecVersion, &custodyRecord{Locked: held.Bytes32()})
	if err != nil {
		return fmt.Errorf("failed to marshal custody record: %w", err)
	}
	return s.db.Put(custodyKey(chain, asset), raw)
}

// AddDailyVolume adds amount to the day's bridged-volume counter and
// returns the new total.
func (s *Store) AddDailyVolume(day string, amount uint64) (uint64, error) {
	current, err := s.DailyVolume(day)
	if err != nil {
		return 0, err
	}
	total, err := math.Add(current, amount)
	if err != nil {
		return 0, err
	}
	return total, s.db.Put(volumeKey(day), database.PackUInt64(total))
}

// DailyVolume returns the volume bridged on the given day.
func (s *Store) DailyVolume(day string) (uint64, error) {
	raw, err := s.db.Get(volumeKey(day))
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return database.ParseUInt64(raw)
}

func txKey(txID ids.ID) []byte {
	return append([]byte(txPrefix), txID[:]...)
}

func custodyKey(chain, asset string) []byte {
	key := make([]byte, 0, len(custodyPrefix)+len(chain)+1+len(asset))
	key = append(key, custodyPrefix...)
	key = append(key, chain...)
	key = append(key, 0)
	key = append(key, asset...)
	return key
}

func volumeKey(day string) []byte {
	return append([]byte(volumePrefix), day...)
}
