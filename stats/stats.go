// Package stats tracks per-message-type and aggregate sandesh counters:
// tx, rx, and drops by reason. All update paths are constant-time and
// non-blocking (atomics; the type map takes its write lock only on first
// sight of a new message type).
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"sync"
	ratomic "sync/atomic"

	"github.com/NVIDIA/sandesh/cmn"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	numTxReasons = int(cmn.TxWrongClientSMState) + 1
	numRxReasons = int(cmn.RxDecodingFailed) + 1
)

type (
	counters struct {
		sent      ratomic.Uint64
		sentBytes ratomic.Uint64
		recv      ratomic.Uint64
		recvBytes ratomic.Uint64

		// index 0 (NoDrop) stays zero; kept for direct reason indexing
		txDrops     [numTxReasons]ratomic.Uint64
		txDropBytes [numTxReasons]ratomic.Uint64
		rxDrops     [numRxReasons]ratomic.Uint64
		rxDropBytes [numRxReasons]ratomic.Uint64
	}

	// Registry is the process-wide message statistics tracker.
	Registry struct {
		mu    sync.RWMutex
		types map[string]*counters
		agg   counters

		promReg *prometheus.Registry
		promTx  *prometheus.CounterVec
		promRx  *prometheus.CounterVec
	}
)

func NewRegistry() *Registry {
	r := &Registry{
		types:   make(map[string]*counters, 16),
		promReg: prometheus.NewRegistry(),
		promTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sandesh",
			Name:      "messages_sent_total",
			Help:      "Sandesh messages submitted for transmission, by type and drop reason.",
		}, []string{"message_type", "drop_reason"}),
		promRx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sandesh",
			Name:      "messages_received_total",
			Help:      "Sandesh messages received, by type and drop reason.",
		}, []string{"message_type", "drop_reason"}),
	}
	r.promReg.MustRegister(r.promTx, r.promRx)
	return r
}

// Prometheus returns the gatherer backing the /metrics endpoint.
func (r *Registry) Prometheus() *prometheus.Registry { return r.promReg }

func (r *Registry) get(msgType string) *counters {
	r.mu.RLock()
	c, ok := r.types[msgType]
	r.mu.RUnlock()
	if ok {
		return c
	}
	r.mu.Lock()
	if c, ok = r.types[msgType]; !ok {
		c = &counters{}
		r.types[msgType] = c
	}
	r.mu.Unlock()
	return c
}

// UpdateTxStats counts one submission outcome for msgType. TxNoDrop counts
// a successful hand-off to the session; anything else counts a drop under
// its reason.
func (r *Registry) UpdateTxStats(msgType string, nbytes int64, reason cmn.TxDropReason) {
	if reason < 0 || int(reason) >= numTxReasons {
		return
	}
	c := r.get(msgType)
	c.updateTx(nbytes, reason)
	r.agg.updateTx(nbytes, reason)
	r.promTx.WithLabelValues(msgType, reason.String()).Inc()
}

// UpdateRxStats counts one receive outcome for msgType.
func (r *Registry) UpdateRxStats(msgType string, nbytes int64, reason cmn.RxDropReason) {
	if reason < 0 || int(reason) >= numRxReasons {
		return
	}
	c := r.get(msgType)
	c.updateRx(nbytes, reason)
	r.agg.updateRx(nbytes, reason)
	r.promRx.WithLabelValues(msgType, reason.String()).Inc()
}

func (c *counters) updateTx(nbytes int64, reason cmn.TxDropReason) {
	if reason == cmn.TxNoDrop {
		c.sent.Add(1)
		c.sentBytes.Add(uint64(nbytes))
		return
	}
	c.txDrops[reason].Add(1)
	c.txDropBytes[reason].Add(uint64(nbytes))
}

func (c *counters) updateRx(nbytes int64, reason cmn.RxDropReason) {
	if reason == cmn.RxNoDrop {
		c.recv.Add(1)
		c.recvBytes.Add(uint64(nbytes))
		return
	}
	c.rxDrops[reason].Add(1)
	c.rxDropBytes[reason].Add(uint64(nbytes))
}
