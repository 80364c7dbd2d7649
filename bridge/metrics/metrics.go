// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics exposes bridge operation counters.
package metrics

import (
	"github.com/luxfi/metric"
)

const chainLabel = "chain"

var chainLabels = []string{chainLabel}

type Metrics struct {
	numSignaturesAccepted metric.Counter
	numSignaturesRejected metric.Counter
	numReplaysBlocked     metric.Counter
	numExecutionRetries   metric.Counter

	numCompleted metric.CounterVec
	numFailed    metric.CounterVec
	numReversed  metric.CounterVec
}

// New builds the bridge counters and registers them on registerer, which
// the daemon gathers for its /metrics endpoint.
func New(registerer metric.Registerer) (*Metrics, error) {
	m := &Metrics{}

	m.numSignaturesAccepted = metric.NewCounter(metric.CounterOpts{
		Name: "signatures_accepted",
		Help: "Number of validator signatures accepted toward a threshold",
	})
	m.numSignaturesRejected = metric.NewCounter(metric.CounterOpts{
		Name: "signatures_rejected",
		Help: "Number of validator signatures rejected",
	})
	m.numReplaysBlocked = metric.NewCounter(metric.CounterOpts{
		Name: "replays_blocked",
		Help: "Number of lock events rejected as nonce replays",
	})
	m.numExecutionRetries = metric.NewCounter(metric.CounterOpts{
		Name: "execution_retries",
		Help: "Number of destination-chain execution retries",
	})

	m.numCompleted = metric.NewCounterVec(
		metric.CounterOpts{
			Name: "transfers_completed",
			Help: "Number of bridge transfers completed, by destination chain",
		},
		chainLabels,
	)
	m.numFailed = metric.NewCounterVec(
		metric.CounterOpts{
			Name: "transfers_failed",
			Help: "Number of bridge transfers failed, by destination chain",
		},
		chainLabels,
	)
	m.numReversed = metric.NewCounterVec(
		metric.CounterOpts{
			Name: "transfers_reversed",
			Help: "Number of bridge transfers reversed, by source chain",
		},
		chainLabels,
	)
	for _, c := range []metric.Collector{
		m.numSignaturesAccepted,
		m.numSignaturesRejected,
		m.numReplaysBlocked,
		m.numExecutionRetries,
		m.numCompleted,
		m.numFailed,
		m.numReversed,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) IncSignaturesAccepted() {
	m.numSignaturesAccepted.Inc()
}

func (m *Metrics) IncSignaturesRejected() {
	m.numSignaturesRejected.Inc()
}

func (m *Metrics) IncReplaysBlocked() {
	m.numReplaysBlocked.Inc()
}

func (m *Metrics) IncExecutionRetries() {
	m.numExecutionRetries.Inc()
}

func (m *Metrics) IncCompleted(destChain string) {
	m.numCompleted.With(metric.Labels{chainLabel: destChain}).Inc()
}

func (m *Metrics) IncFailed(destChain string) {
	m.numFailed.With(metric.Labels{chainLabel: destChain}).Inc()
}

func (m *Metrics) IncReversed(sourceChain string) {
	m.numReversed.With(metric.Labels{chainLabel: sourceChain}).Inc()
}
