// Package trace keeps named in-memory ring buffers.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package trace

import (
	"fmt"
	"testing"

	"github.com/NVIDIA/sandesh/cmn"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tmsg(i int) *cmn.Message {
	return &cmn.Message{Name: fmt.Sprintf("TraceTest%d", i)}
}

func readAll(t *Tracer, buf, ctx string, count int) (out []*cmn.Message) {
	t.Read(buf, ctx, count, func(m *cmn.Message, _ bool) { out = append(out, m) })
	return out
}

func TestCreateDeleteBuffer(t *testing.T) {
	tr := NewTracer()
	tr.BufAdd("buf", 5, true)
	assert.Contains(t, tr.BufList(), "buf")
	assert.Equal(t, 5, tr.BufSize("buf"))

	// read from empty buffer
	assert.Empty(t, readAll(tr, "buf", "ctx", 0))

	tr.BufDelete("buf")
	assert.NotContains(t, tr.BufList(), "buf")
	assert.Empty(t, readAll(tr, "buf", "ctx", 0))
}

func TestWriteAssignsMonotonicSeq(t *testing.T) {
	tr := NewTracer()
	tr.BufAdd("buf", 3, true)
	var last uint64
	for i := 0; i < 7; i++ {
		seq := tr.Write("buf", tmsg(i))
		require.Greater(t, seq, last)
		last = seq
	}
}

func TestEnableDisable(t *testing.T) {
	tr := NewTracer()
	tr.BufAdd("buf", 5, false) // created disabled
	assert.Zero(t, tr.Write("buf", tmsg(1)))
	assert.Empty(t, readAll(tr, "buf", "r1", 0))

	tr.BufEnable("buf")
	require.NotZero(t, tr.Write("buf", tmsg(1)))
	require.NotZero(t, tr.Write("buf", tmsg(2)))
	assert.Len(t, readAll(tr, "buf", "r2", 0), 2)

	tr.BufDisable("buf")
	assert.Zero(t, tr.Write("buf", tmsg(3)))
	assert.Len(t, readAll(tr, "buf", "r3", 0), 2)

	// subsystem-wide flag wins over the buffer flag
	tr.BufEnable("buf")
	tr.Disable()
	assert.Zero(t, tr.Write("buf", tmsg(4)))
	tr.Enable()
	assert.NotZero(t, tr.Write("buf", tmsg(4)))
}

func TestStatefulReadCursor(t *testing.T) {
	tr := NewTracer()
	tr.BufAdd("buf", 10, true)
	for i := 1; i <= 3; i++ {
		tr.Write("buf", tmsg(i))
	}

	// count=1 reads the oldest entry
	got := readAll(tr, "buf", "r1", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "TraceTest1", got[0].Name)

	// count=0 continues from the cursor to the tail
	got = readAll(tr, "buf", "r1", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "TraceTest2", got[0].Name)
	assert.Equal(t, "TraceTest3", got[1].Name)

	// a second full read on the same context yields nothing
	assert.Empty(t, readAll(tr, "buf", "r1", 0))

	// a fresh context starts over at the oldest entry
	got = readAll(tr, "buf", "r2", 5)
	assert.Len(t, got, 3)

	// count above the buffer size clamps to what's there
	assert.Len(t, readAll(tr, "buf", "r3", 20), 3)
}

func TestReadDoneFreesCursor(t *testing.T) {
	tr := NewTracer()
	tr.BufAdd("buf", 4, true)
	tr.Write("buf", tmsg(1))
	tr.Write("buf", tmsg(2))

	require.Len(t, readAll(tr, "buf", "ctx", 0), 2)
	require.Empty(t, readAll(tr, "buf", "ctx", 0))

	tr.ReadDone("buf", "ctx")
	assert.Len(t, readAll(tr, "buf", "ctx", 0), 2)
}

func TestOverwriteInvalidatesCursor(t *testing.T) {
	tr := NewTracer()
	tr.BufAdd("buf", 3, true)
	for i := 1; i <= 3; i++ {
		tr.Write("buf", tmsg(i))
	}
	require.Len(t, readAll(tr, "buf", "ctx", 1), 1) // cursor after entry 1

	// five more writes: the ring wraps past the cursor
	for i := 4; i <= 8; i++ {
		tr.Write("buf", tmsg(i))
	}
	got := readAll(tr, "buf", "ctx", 0)
	require.Len(t, got, 3)
	assert.Equal(t, "TraceTest6", got[0].Name) // restarted at the new oldest
	assert.Equal(t, "TraceTest8", got[2].Name)
}

func TestRingOverwriteOldest(t *testing.T) {
	tr := NewTracer()
	tr.BufAdd("buf", 3, true)
	for i := 1; i <= 5; i++ {
		tr.Write("buf", tmsg(i))
	}
	got := readAll(tr, "buf", "ctx", 0)
	require.Len(t, got, 3)
	assert.Equal(t, "TraceTest3", got[0].Name)
	assert.Equal(t, "TraceTest5", got[2].Name)
}
