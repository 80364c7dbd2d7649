// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package replay persists consumed (source chain, sender, nonce) triples and
// enforces the timestamp acceptance window. Admission runs before any
// signature is persisted for a transaction.
package replay

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/log"

	"github.com/dytallix/interop/utils/timer/mockable"
)

var (
	recordPrefix = []byte("rp:")

	// ErrDuplicate is returned when the (source chain, sender, nonce)
	// triple has already been admitted.
	ErrDuplicate = errors.New("replay: nonce already consumed")

	// ErrStaleOrFuture is returned when the observed event timestamp falls
	// outside the chain's acceptance window.
	ErrStaleOrFuture = errors.New("replay: timestamp outside acceptance window")
)

// Record is one admitted triple. Records are never deleted; retention must
// exceed every chain's maximum reorg depth, and indefinite retention
// satisfies that trivially.
type Record struct {
	SourceChain string `json:"sourceChain"`
	Sender      string `json:"sender"`
	Nonce       uint64 `json:"nonce"`
	FirstSeenAt int64  `json:"firstSeenAt"`
}

// Guard provides atomic check-and-insert admission. Two admissions racing on
// the same triple have exactly one winner.
type Guard struct {
	db    database.Database
	log   log.Logger
	clock mockable.Clock

	mu sync.Mutex
}

// New returns a guard backed by the given database.
func New(db database.Database, logger log.Logger) *Guard {
	return &Guard{
		db:  db,
		log: logger,
	}
}

// TryAdmit atomically records the (sourceChain, sender, nonce) triple if the
// observed timestamp is inside [now-maxSkew, now+maxSkew] and the triple has
// never been seen. A rejected admission leaves no state behind.
func (g *Guard) TryAdmit(sourceChain, sender string, nonce uint64, observed time.Time, maxSkew time.Duration) error {
	now := g.clock.Time()
	if observed.Before(now.Add(-maxSkew)) || observed.After(now.Add(maxSkew)) {
		g.log.Debug("rejected out-of-window event timestamp",
			log.String("sourceChain", sourceChain),
			log.String("sender", sender),
			log.Uint64("nonce", nonce),
			log.Time("observed", observed),
		)
		return ErrStaleOrFuture
	}

	key := recordKey(sourceChain, sender, nonce)

	g.mu.Lock()
	defer g.mu.Unlock()

	switch has, err := g.db.Has(key); {
	case err != nil:
		return err
	case has:
		return ErrDuplicate
	}

	rec := Record{
		SourceChain: sourceChain,
		Sender:      sender,
		Nonce:       nonce,
		FirstSeenAt: now.Unix(),
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	return g.db.Put(key, data)
}

// Seen reports whether a triple has already been admitted.
func (g *Guard) Seen(sourceChain, sender string, nonce uint64) (bool, error) {
	return g.db.Has(recordKey(sourceChain, sender, nonce))
}

func recordKey(sourceChain, sender string, nonce uint64) []byte {
	// Length-prefixed segments keep (chain, sender) pairs from colliding
	// across segment boundaries.
	key := make([]byte, 0, len(recordPrefix)+8+len(sourceChain)+8+len(sender)+8)
	key = append(key, recordPrefix...)
	key = binary.BigEndian.AppendUint32(key, uint32(len(sourceChain)))
	key = append(key, sourceChain...)
	key = binary.BigEndian.AppendUint32(key, uint32(len(sender)))
	key = append(key, sender...)
	key = binary.BigEndian.AppendUint64(key, nonce)
	return key
}
