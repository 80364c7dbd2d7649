// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry tracks the bridge validator set. Entries and signing
// thresholds are versioned by activation height so that signature
// authorization is always checked against the set that was authoritative
// when a transaction was created, never the latest set.
package registry

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/cache"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

var (
	validatorPrefix = []byte("vd:")
	thresholdPrefix = []byte("th:")
	auditPrefix     = []byte("au:")
	auditSeqKey     = []byte("au:seq")

	ErrValidatorExists    = errors.New("validator already registered")
	ErrValidatorNotFound  = errors.New("validator not found")
	ErrValidatorRevoked   = errors.New("validator already revoked")
	ErrEmptyPublicKey     = errors.New("empty public key")
	ErrInvalidThreshold   = errors.New("threshold must be positive")
	ErrThresholdRegressed = errors.New("threshold height must not decrease")
	ErrNotAuthorized      = errors.New("validator not authorized at height")
)

const snapshotCacheSize = 64

// Status of a validator entry.
type Status uint8

const (
	StatusActive Status = iota
	StatusRevoked
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Entry is one active or historical validator. Entries are never deleted;
// revocation only records the height at which the key stopped being valid.
type Entry struct {
	ValidatorID       ids.NodeID `json:"validatorId"`
	PublicKey         []byte     `json:"publicKey"`
	Algorithm         uint32     `json:"algorithm"`
	Status            Status     `json:"status"`
	ActivatedAtHeight uint64     `json:"activatedAtHeight"`
	RevokedAtHeight   *uint64    `json:"revokedAtHeight,omitempty"`
}

// activeAt reports whether the entry's key was authoritative at the height.
func (e *Entry) activeAt(height uint64) bool {
	if e.ActivatedAtHeight > height {
		return false
	}
	return e.RevokedAtHeight == nil || *e.RevokedAtHeight > height
}

// AuditRecord is appended for every administrative mutation.
type AuditRecord struct {
	Seq         uint64     `json:"seq"`
	Action      string     `json:"action"`
	ValidatorID ids.NodeID `json:"validatorId"`
	Height      uint64     `json:"height"`
	Threshold   int        `json:"threshold,omitempty"`
	RecordedAt  int64      `json:"recordedAt"`
}

// thresholdVersion is one height-versioned threshold setting.
type thresholdVersion struct {
	Height    uint64 `json:"height"`
	Threshold int    `json:"threshold"`
}

// Registry provides persistent, height-versioned validator-set state.
type Registry struct {
	db  database.Database
	log log.Logger

	mu sync.RWMutex
	// entries holds every version of every validator key, keyed by
	// validator then ordered by activation height.
	entries    map[ids.NodeID][]*Entry
	thresholds []thresholdVersion
	auditSeq   uint64

	snapshots *cache.LRU[uint64, map[ids.NodeID]*Entry]
}

// New loads registry state from the database.
func New(db database.Database, logger log.Logger) (*Registry, error) {
	r := &Registry{
		db:        db,
		log:       logger,
		entries:   make(map[ids.NodeID][]*Entry),
		snapshots: &cache.LRU[uint64, map[ids.NodeID]*Entry]{Size: snapshotCacheSize},
	}

	it := db.NewIteratorWithPrefix(validatorPrefix)
	defer it.Release()
	for it.Next() {
		entry := &Entry{}
		if err := json.Unmarshal(it.Value(), entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal validator entry: %w", err)
		}
		r.entries[entry.ValidatorID] = append(r.entries[entry.ValidatorID], entry)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	for _, versions := range r.entries {
		sort.Slice(versions, func(i, j int) bool {
			return versions[i].ActivatedAtHeight < versions[j].ActivatedAtHeight
		})
	}

	tit := db.NewIteratorWithPrefix(thresholdPrefix)
	defer tit.Release()
	for tit.Next() {
		var tv thresholdVersion
		if err := json.Unmarshal(tit.Value(), &tv); err != nil {
			return nil, fmt.Errorf("failed to unmarshal threshold version: %w", err)
		}
		r.thresholds = append(r.thresholds, tv)
	}
	if err := tit.Error(); err != nil {
		return nil, err
	}
	sort.Slice(r.thresholds, func(i, j int) bool {
		return r.thresholds[i].Height < r.thresholds[j].Height
	})

	seqBytes, err := db.Get(auditSeqKey)
	switch {
	case err == nil:
		r.auditSeq = binary.BigEndian.Uint64(seqBytes)
	case errors.Is(err, database.ErrNotFound):
	default:
		return nil, err
	}

	return r, nil
}

// Register adds a new validator key activating at the given height.
func (r *Registry) Register(validatorID ids.NodeID, publicKey []byte, algorithm uint32, height uint64) error {
	if len(publicKey) == 0 {
		return ErrEmptyPublicKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur := r.currentEntry(validatorID); cur != nil && cur.Status == StatusActive {
		return fmt.Errorf("%w: %s", ErrValidatorExists, validatorID)
	}

	entry := &Entry{
		ValidatorID:       validatorID,
		PublicKey:         publicKey,
		Algorithm:         algorithm,
		Status:            StatusActive,
		ActivatedAtHeight: height,
	}
	if err := r.putEntry(entry); err != nil {
		return err
	}
	r.entries[validatorID] = append(r.entries[validatorID], entry)
	r.snapshots.Flush()

	r.log.Info("validator registered",
		log.Stringer("validatorID", validatorID),
		log.Uint64("activatedAtHeight", height),
	)
	return r.appendAudit("register", validatorID, height, 0)
}

// Revoke marks a validator's current key invalid from the given height on.
// The historical entry is retained for audit and height-pinned checks.
func (r *Registry) Revoke(validatorID ids.NodeID, height uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.currentEntry(validatorID)
	if cur == nil {
		return fmt.Errorf("%w: %s", ErrValidatorNotFound, validatorID)
	}
	if cur.Status == StatusRevoked {
		return fmt.Errorf("%w: %s", ErrValidatorRevoked, validatorID)
	}

	cur.Status = StatusRevoked
	cur.RevokedAtHeight = &height
	if err := r.putEntry(cur); err != nil {
		return err
	}
	r.snapshots.Flush()

	r.log.Info("validator revoked",
		log.Stringer("validatorID", validatorID),
		log.Uint64("revokedAtHeight", height),
	)
	return r.appendAudit("revoke", validatorID, height, 0)
}

// Rotate revokes the validator's current key and activates a replacement at
// the same height. History is appended, never overwritten.
func (r *Registry) Rotate(validatorID ids.NodeID, newPublicKey []byte, algorithm uint32, height uint64) error {
	if len(newPublicKey) == 0 {
		return ErrEmptyPublicKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.currentEntry(validatorID)
	if cur == nil {
		return fmt.Errorf("%w: %s", ErrValidatorNotFound, validatorID)
	}
	if cur.Status == StatusActive {
		cur.Status = StatusRevoked
		cur.RevokedAtHeight = &height
		if err := r.putEntry(cur); err != nil {
			return err
		}
	}

	entry := &Entry{
		ValidatorID:       validatorID,
		PublicKey:         newPublicKey,
		Algorithm:         algorithm,
		Status:            StatusActive,
		ActivatedAtHeight: height,
	}
	if err := r.putEntry(entry); err != nil {
		return err
	}
	r.entries[validatorID] = append(r.entries[validatorID], entry)
	r.snapshots.Flush()

	r.log.Info("validator key rotated",
		log.Stringer("validatorID", validatorID),
		log.Uint64("height", height),
	)
	return r.appendAudit("rotate", validatorID, height, 0)
}

// SetThreshold records a new signing threshold effective from the given
// height. Thresholds are registry-level configuration, versioned by height;
// they are never a transaction-level parameter.
func (r *Registry) SetThreshold(threshold int, height uint64) error {
	if threshold <= 0 {
		return ErrInvalidThreshold
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.thresholds); n > 0 && r.thresholds[n-1].Height > height {
		return ErrThresholdRegressed
	}

	tv := thresholdVersion{Height: height, Threshold: threshold}
	data, err := json.Marshal(tv)
	if err != nil {
		return err
	}
	if err := r.db.Put(thresholdKey(height), data); err != nil {
		return err
	}
	r.thresholds = append(r.thresholds, tv)

	r.log.Info("signing threshold updated",
		log.Int("threshold", threshold),
		log.Uint64("height", height),
	)
	return r.appendAudit("set_threshold", ids.EmptyNodeID, height, threshold)
}

// ActiveSetAt returns the validators whose keys were Active at the given
// height. The result is cached per height; callers must not mutate it.
func (r *Registry) ActiveSetAt(height uint64) map[ids.NodeID]*Entry {
	if set, ok := r.snapshots.Get(height); ok {
		return set
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[ids.NodeID]*Entry)
	for validatorID, versions := range r.entries {
		// Versions are ordered by activation height; the last one active
		// at the height wins.
		for i := len(versions) - 1; i >= 0; i-- {
			if versions[i].activeAt(height) {
				set[validatorID] = versions[i]
				break
			}
		}
	}

	r.snapshots.Put(height, set)
	return set
}

// ThresholdAt returns the minimum number of distinct valid signatures
// required for transactions created at the given height.
func (r *Registry) ThresholdAt(height uint64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	threshold := 0
	for _, tv := range r.thresholds {
		if tv.Height > height {
			break
		}
		threshold = tv.Threshold
	}
	if threshold == 0 {
		return 0, ErrInvalidThreshold
	}
	return threshold, nil
}

// AuthorizedKeyAt returns the public key a validator was authorized to sign
// with at the given height. A key revoked before, or activated after, the
// height is rejected.
func (r *Registry) AuthorizedKeyAt(validatorID ids.NodeID, height uint64) (*Entry, error) {
	set := r.ActiveSetAt(height)
	entry, ok := set[validatorID]
	if !ok {
		return nil, fmt.Errorf("%w: %s at height %d", ErrNotAuthorized, validatorID, height)
	}
	return entry, nil
}

// Audit returns all administrative records in append order.
func (r *Registry) Audit() ([]AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []AuditRecord
	it := r.db.NewIteratorWithPrefix(auditPrefix)
	defer it.Release()
	for it.Next() {
		if string(it.Key()) == string(auditSeqKey) {
			continue
		}
		var rec AuditRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	return records, nil
}

func (r *Registry) currentEntry(validatorID ids.NodeID) *Entry {
	versions := r.entries[validatorID]
	if len(versions) == 0 {
		return nil
	}
	return versions[len(versions)-1]
}

func (r *Registry) putEntry(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal validator entry: %w", err)
	}
	return r.db.Put(entryKey(entry.ValidatorID, entry.ActivatedAtHeight), data)
}

func (r *Registry) appendAudit(action string, validatorID ids.NodeID, height uint64, threshold int) error {
	r.auditSeq++
	rec := AuditRecord{
		Seq:         r.auditSeq,
		Action:      action,
		ValidatorID: validatorID,
		Height:      height,
		Threshold:   threshold,
		RecordedAt:  time.Now().Unix(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := r.db.Put(auditKey(r.auditSeq), data); err != nil {
		return err
	}

	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, r.auditSeq)
	return r.db.Put(auditSeqKey, seqBytes)
}

func entryKey(validatorID ids.NodeID, height uint64) []byte {
	key := make([]byte, 0, len(validatorPrefix)+len(validatorID)+8)
	key = append(key, validatorPrefix...)
	key = append(key, validatorID[:]...)
	key = binary.BigEndian.AppendUint64(key, height)
	return key
}

func thresholdKey(height uint64) []byte {
	key := make([]byte, 0, len(thresholdPrefix)+8)
	key = append(key, thresholdPrefix...)
	key = binary.BigEndian.AppendUint64(key, height)
	return key
}

func auditKey(seq uint64) []byte {
	key := make([]byte, 0, len(auditPrefix)+1+8)
	key = append(key, auditPrefix...)
	key = append(key, 'r')
	key = binary.BigEndian.AppendUint64(key, seq)
	return key
}
