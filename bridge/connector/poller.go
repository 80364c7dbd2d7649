// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package connector

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/log"
)

const checkpointPrefix = "cp:"

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 512
	maxPollBackoff      = time.Minute
)

// Poller drives a connector, scanning its chain for finalized lock events
// and emitting them on Events. Scan progress is checkpointed in the
// database so a restart resumes where the last run stopped instead of
// re-scanning from genesis.
type Poller struct {
	connector ChainConnector
	db        database.KeyValueReaderWriter
	log       log.Logger

	interval  time.Duration
	batchSize uint64

	events chan RawLockEvent
}

// NewPoller returns a poller over connector. The caller consumes Events;
// Run blocks until ctx is cancelled.
func NewPoller(connector ChainConnector, db database.KeyValueReaderWriter, logger log.Logger) *Poller {
	return &Poller{
		connector: connector,
		db:        db,
		log:       logger,
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
		events:    make(chan RawLockEvent, 64),
	}
}

// Events is the stream of finalized lock events in block order.
func (p *Poller) Events() <-chan RawLockEvent {
	return p.events
}

// Run polls until ctx is cancelled. Transient chain errors back off
// exponentially up to a minute and never abort the loop.
func (p *Poller) Run(ctx context.Context) error {
	defer close(p.events)

	backoff := p.interval
	for {
		advanced, err := p.pollOnce(ctx)
		switch {
		case err == nil:
			backoff = p.interval
			if advanced {
				// More blocks may be waiting, go again immediately.
				continue
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return ctx.Err()
		default:
			p.log.Warn("poll failed, backing off",
				log.String("chainID", p.connector.ChainID()),
				log.Duration("backoff", backoff),
				log.Err(err),
			)
			backoff = min(backoff*2, maxPollBackoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// pollOnce scans the next finalized block range and emits its lock events.
// It reports whether the checkpoint advanced.
func (p *Poller) pollOnce(ctx context.Context) (bool, error) {
	latest, err := p.connector.LatestHeight(ctx)
	if err != nil {
		return false, err
	}

	from, err := p.checkpoint()
	if err != nil {
		return false, err
	}

	finalized, ok := p.finalizedHeight(latest)
	if !ok || finalized <= from {
		return false, nil
	}

	to := min(finalized, from+p.batchSize)

	events, err := p.connector.LockEventsInRange(ctx, from, to)
	if err != nil {
		return false, err
	}
	for _, ev := range events {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case p.events <- ev:
		}
	}

	if err := p.setCheckpoint(to); err != nil {
		return false, err
	}
	if len(events) > 0 {
		p.log.Debug("emitted finalized lock events",
			log.String("chainID", p.connector.ChainID()),
			log.Int("count", len(events)),
			log.Uint64("from", from),
			log.Uint64("to", to),
		)
	}
	return true, nil
}

// finalizedHeight returns the highest height whose blocks have the chain's
// required confirmations.
func (p *Poller) finalizedHeight(latest uint64) (uint64, bool) {
	depth := p.connector.RequiredConfirmations()
	if latest <= depth {
		return 0, false
	}
	return latest - depth, true
}

func (p *Poller) checkpoint() (uint64, error) {
	raw, err := p.db.Get(p.checkpointKey())
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (p *Poller) setCheckpoint(height uint64) error {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, height)
	return p.db.Put(p.checkpointKey(), raw)
}

func (p *Poller) checkpointKey() []byte {
	return []byte(checkpointPrefix + p.connector.ChainID())
}
