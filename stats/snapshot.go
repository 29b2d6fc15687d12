// Package stats tracks per-message-type and aggregate sandesh counters.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"sort"

	"github.com/NVIDIA/sandesh/cmn"

	jsoniter "github.com/json-iterator/go"
)

type (
	// MessageStats is the externally visible counter set for one message
	// type (or the aggregate). Field names follow the legacy wire schema.
	MessageStats struct {
		MessagesSent         uint64            `json:"messages_sent"`
		BytesSent            uint64            `json:"bytes_sent"`
		MessagesSentDropped  uint64            `json:"messages_sent_dropped"`
		BytesSentDropped     uint64            `json:"bytes_sent_dropped"`
		MessagesRecv         uint64            `json:"messages_received"`
		BytesRecv            uint64            `json:"bytes_received"`
		MessagesRecvDropped  uint64            `json:"messages_received_dropped"`
		BytesRecvDropped     uint64            `json:"bytes_received_dropped"`
		SentDroppedByReason  map[string]uint64 `json:"messages_sent_dropped_by_reason,omitempty"`
		RecvDroppedByReason  map[string]uint64 `json:"messages_received_dropped_by_reason,omitempty"`
	}

	TypeStats struct {
		MessageType string       `json:"message_type"`
		Stats       MessageStats `json:"stats"`
	}

	Snapshot struct {
		Types     []TypeStats  `json:"type_stats"`
		Aggregate MessageStats `json:"aggregate_stats"`
	}
)

func (c *counters) snapshot() (ms MessageStats) {
	ms.MessagesSent = c.sent.Load()
	ms.BytesSent = c.sentBytes.Load()
	ms.MessagesRecv = c.recv.Load()
	ms.BytesRecv = c.recvBytes.Load()
	for i := 1; i < numTxReasons; i++ {
		n := c.txDrops[i].Load()
		if n == 0 {
			continue
		}
		if ms.SentDroppedByReason == nil {
			ms.SentDroppedByReason = make(map[string]uint64, 4)
		}
		ms.SentDroppedByReason[cmn.TxDropReason(i).String()] = n
		ms.MessagesSentDropped += n
		ms.BytesSentDropped += c.txDropBytes[i].Load()
	}
	for i := 1; i < numRxReasons; i++ {
		n := c.rxDrops[i].Load()
		if n == 0 {
			continue
		}
		if ms.RecvDroppedByReason == nil {
			ms.RecvDroppedByReason = make(map[string]uint64, 4)
		}
		ms.RecvDroppedByReason[cmn.RxDropReason(i).String()] = n
		ms.MessagesRecvDropped += n
		ms.BytesRecvDropped += c.rxDropBytes[i].Load()
	}
	return ms
}

// Snapshot copies the registry out for introspection, types sorted by name.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	out := Snapshot{Types: make([]TypeStats, 0, len(names))}
	for _, name := range names {
		out.Types = append(out.Types, TypeStats{name, r.types[name].snapshot()})
	}
	r.mu.RUnlock()
	out.Aggregate = r.agg.snapshot()
	return out
}

// StatsFor returns the counters for a single message type, if tracked.
func (r *Registry) StatsFor(msgType string) (MessageStats, bool) {
	r.mu.RLock()
	c, ok := r.types[msgType]
	r.mu.RUnlock()
	if !ok {
		return MessageStats{}, false
	}
	return c.snapshot(), true
}

// Aggregate returns the roll-up across all message types.
func (r *Registry) Aggregate() MessageStats { return r.agg.snapshot() }

func (s Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	return jsoniter.Marshal(alias(s))
}
