// Package metrics exposes Prometheus-backed counters and gauges for the
// transaction protocol driver, implementing core/protocol.Metrics so the
// core never imports prometheus directly.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"nhbchain/core/protocol"
)

// Driver records protocol.Driver operations as Prometheus series.
type Driver struct {
	updates      *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	pushes       *prometheus.CounterVec
	pushFails    *prometheus.CounterVec
	stateGauges  *prometheus.GaugeVec
	archiveFails *prometheus.CounterVec

	mu sync.Mutex
}

// NewDriver builds and registers the driver metrics on reg. Passing a
// fresh *prometheus.Registry in tests avoids collisions with the default
// global registry.
func NewDriver(reg prometheus.Registerer) *Driver {
	d := &Driver{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txprotocol",
			Subsystem: "driver",
			Name:      "updates_total",
			Help:      "Total Update() calls segmented by outcome.",
		}, []string{"outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txprotocol",
			Subsystem: "driver",
			Name:      "updates_rejected_total",
			Help:      "Total Update() calls rejected, segmented by error kind.",
		}, []string{"kind"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txprotocol",
			Subsystem: "gossip",
			Name:      "push_attempts_total",
			Help:      "Total gossip push attempts, segmented by peer.",
		}, []string{"peer"}),
		pushFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txprotocol",
			Subsystem: "gossip",
			Name:      "push_failures_total",
			Help:      "Total gossip push failures, segmented by peer.",
		}, []string{"peer"}),
		stateGauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "txprotocol",
			Subsystem: "driver",
			Name:      "record_state",
			Help:      "1 if the named boolean of a transaction's last-evaluated RecordState is true, else 0.",
		}, []string{"transaction_code", "field"}),
		archiveFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txprotocol",
			Subsystem: "driver",
			Name:      "archive_failures_total",
			Help:      "Total archival sink failures on fully-committed records.",
		}, []string{"transaction_code"}),
	}
	reg.MustRegister(d.updates, d.rejections, d.pushes, d.pushFails, d.stateGauges, d.archiveFails)
	return d
}

var _ protocol.Metrics = (*Driver)(nil)

func (d *Driver) UpdateProcessed(kind string) { d.updates.WithLabelValues(kind).Inc() }

func (d *Driver) UpdateRejected(kind protocol.ErrorKind) {
	d.rejections.WithLabelValues(string(kind)).Inc()
}

func (d *Driver) PushAttempted(peer protocol.Key) { d.pushes.WithLabelValues(string(peer)).Inc() }

func (d *Driver) PushFailed(peer protocol.Key) { d.pushFails.WithLabelValues(string(peer)).Inc() }

func (d *Driver) RecordState(transactionCode string, state protocol.RecordState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := func(field string, v bool) {
		g := d.stateGauges.WithLabelValues(transactionCode, field)
		if v {
			g.Set(1)
		} else {
			g.Set(0)
		}
	}
	set("our_promise_needed", state.OurPromiseNeeded)
	set("fully_promised", state.FullyPromised)
	set("our_commit_needed", state.OurCommitNeeded)
	set("consensus_committed", state.ConsensusCommitted)
	set("fully_committed", state.FullyCommitted)
}

func (d *Driver) ArchiveFailed(transactionCode string) {
	d.archiveFails.WithLabelValues(transactionCode).Inc()
}
