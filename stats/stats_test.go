// Package stats tracks per-message-type and aggregate sandesh counters.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"sync"
	"testing"

	"github.com/NVIDIA/sandesh/cmn"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxCounters(t *testing.T) {
	r := NewRegistry()
	r.UpdateTxStats("SystemLog", 100, cmn.TxNoDrop)
	r.UpdateTxStats("SystemLog", 120, cmn.TxNoDrop)
	r.UpdateTxStats("SystemLog", 80, cmn.TxNoSession)
	r.UpdateTxStats("ObjectLog", 50, cmn.TxQueueLevel)

	ms, ok := r.StatsFor("SystemLog")
	require.True(t, ok)
	assert.EqualValues(t, 2, ms.MessagesSent)
	assert.EqualValues(t, 220, ms.BytesSent)
	assert.EqualValues(t, 1, ms.MessagesSentDropped)
	assert.EqualValues(t, 1, ms.SentDroppedByReason["NoSession"])

	agg := r.Aggregate()
	assert.EqualValues(t, 2, agg.MessagesSent)
	assert.EqualValues(t, 2, agg.MessagesSentDropped)
	assert.EqualValues(t, 1, agg.SentDroppedByReason["QueueLevel"])
}

func TestRxCounters(t *testing.T) {
	r := NewRegistry()
	r.UpdateRxStats("Req", 10, cmn.RxNoDrop)
	r.UpdateRxStats("Req", 20, cmn.RxDecodingFailed)

	ms, ok := r.StatsFor("Req")
	require.True(t, ok)
	assert.EqualValues(t, 1, ms.MessagesRecv)
	assert.EqualValues(t, 10, ms.BytesRecv)
	assert.EqualValues(t, 1, ms.MessagesRecvDropped)
	assert.EqualValues(t, 20, ms.BytesRecvDropped)
	assert.EqualValues(t, 1, ms.RecvDroppedByReason["DecodingFailed"])
}

func TestSnapshotSortedAndComplete(t *testing.T) {
	r := NewRegistry()
	r.UpdateTxStats("Zed", 1, cmn.TxNoDrop)
	r.UpdateTxStats("Alpha", 1, cmn.TxNoDrop)
	snap := r.Snapshot()
	require.Len(t, snap.Types, 2)
	assert.Equal(t, "Alpha", snap.Types[0].MessageType)
	assert.Equal(t, "Zed", snap.Types[1].MessageType)
	assert.EqualValues(t, 2, snap.Aggregate.MessagesSent)

	b, err := snap.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"messages_sent"`)
}

func TestInvalidReasonIgnored(t *testing.T) {
	r := NewRegistry()
	r.UpdateTxStats("X", 1, cmn.TxDropReason(99))
	_, ok := r.StatsFor("X")
	assert.False(t, ok)
}

func TestConcurrentUpdates(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				r.UpdateTxStats("Hot", 10, cmn.TxNoDrop)
			}
		}()
	}
	wg.Wait()
	ms, _ := r.StatsFor("Hot")
	assert.EqualValues(t, 8000, ms.MessagesSent)
	assert.EqualValues(t, 80000, ms.BytesSent)
}

func TestPrometheusGather(t *testing.T) {
	r := NewRegistry()
	r.UpdateTxStats("SystemLog", 10, cmn.TxNoDrop)
	r.UpdateRxStats("Req", 5, cmn.RxNoDrop)
	mfs, err := r.Prometheus().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(mfs))
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "sandesh_messages_sent_total")
	assert.Contains(t, names, "sandesh_messages_received_total")
}
