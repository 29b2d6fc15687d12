// Package transport implements the collector link.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/NVIDIA/sandesh/cmn"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionHarness struct {
	mu     sync.Mutex
	events []Event
	bodies [][]byte
	tx     []cmn.TxDropReason
}

func (h *sessionHarness) eventCb(_ *Session, ev Event) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

func (h *sessionHarness) recvCb(_ *Session, body []byte) {
	h.mu.Lock()
	h.bodies = append(h.bodies, body)
	h.mu.Unlock()
}

func (h *sessionHarness) txCb(_ *cmn.Message, _ int64, reason cmn.TxDropReason) {
	h.mu.Lock()
	h.tx = append(h.tx, reason)
	h.mu.Unlock()
}

func (h *sessionHarness) lastEvent() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) == 0 {
		return 0, false
	}
	return h.events[len(h.events)-1], true
}

func waitEvent(t *testing.T, h *sessionHarness, want Event) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if ev, ok := h.lastEvent(); ok && ev == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event %s never observed", want)
}

func testMsg(i int) *cmn.Message {
	return &cmn.Message{
		Hdr:  cmn.Header{Type: cmn.TypeSystem, Level: cmn.LevelInfo, SequenceNo: uint64(i)},
		Name: "SessionTest",
		Body: []byte(fmt.Sprintf("<SessionTest><i>%d</i></SessionTest>", i)),
	}
}

func TestSessionConnectFailEmitsError(t *testing.T) {
	h := &sessionHarness{}
	s := NewSession("127.0.0.1:1", cmn.DefaultConfig(), h.eventCb, h.recvCb, h.txCb, nil)
	s.Connect()
	waitEvent(t, h, EvError)
	s.Close()
}

func TestSessionSendsFrames(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var (
		mu     sync.Mutex
		frames [][]byte
	)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var dec Decoder
		buf := make([]byte, 4096)
		for {
			n, rerr := conn.Read(buf)
			if n > 0 {
				_ = dec.Feed(buf[:n], func(body []byte) error {
					cp := make([]byte, len(body))
					copy(cp, body)
					mu.Lock()
					frames = append(frames, cp)
					mu.Unlock()
					return nil
				})
			}
			if rerr != nil {
				return
			}
		}
	}()

	h := &sessionHarness{}
	s := NewSession(ln.Addr().String(), cmn.DefaultConfig(),
		h.eventCb, h.recvCb, h.txCb, nil)
	s.Connect()
	waitEvent(t, h, EvEstablished)
	require.True(t, s.IsConnected())

	const n = 20
	for i := 0; i < n; i++ {
		require.True(t, s.EnqueueSandesh(testMsg(i)))
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := len(frames)
		mu.Unlock()
		if got == n {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	require.Len(t, frames, n)
	mu.Unlock()

	h.mu.Lock()
	sent := 0
	for _, r := range h.tx {
		if r == cmn.TxNoDrop {
			sent++
		}
	}
	h.mu.Unlock()
	assert.Equal(t, n, sent)
	s.Close()
}

func TestSessionReaderDeliversAndClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			connCh <- conn
		}
	}()

	h := &sessionHarness{}
	s := NewSession(ln.Addr().String(), cmn.DefaultConfig(),
		h.eventCb, h.recvCb, h.txCb, nil)
	s.Connect()
	waitEvent(t, h, EvEstablished)
	s.StartReader()

	server := <-connCh
	frame, err := Encode(testMsg(7))
	require.NoError(t, err)
	_, err = server.Write(frame)
	require.NoError(t, err)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		got := len(h.bodies)
		h.mu.Unlock()
		if got == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.mu.Lock()
	require.Len(t, h.bodies, 1)
	h.mu.Unlock()

	// remote close surfaces as EvClose
	require.NoError(t, server.Close())
	waitEvent(t, h, EvClose)
	s.Close()
}

func TestSessionFramingErrorClosesConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			connCh <- conn
		}
	}()

	h := &sessionHarness{}
	s := NewSession(ln.Addr().String(), cmn.DefaultConfig(),
		h.eventCb, h.recvCb, h.txCb, nil)
	s.Connect()
	waitEvent(t, h, EvEstablished)
	s.StartReader()

	server := <-connCh
	_, err = server.Write([]byte("this is not a sandesh frame, not even close!!"))
	require.NoError(t, err)
	waitEvent(t, h, EvClose)
	s.Close()
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	h := &sessionHarness{}
	s := NewSession("127.0.0.1:1", cmn.DefaultConfig(), h.eventCb, h.recvCb, h.txCb, nil)
	s.Close()
	s.Close()
	assert.True(t, s.IsClosed())
	assert.False(t, s.EnqueueSandesh(testMsg(0)), "enqueue after close rejected")
}

func TestSessionNotConnectedHoldsQueue(t *testing.T) {
	h := &sessionHarness{}
	// ready predicate true, but never connected: the runner must not run,
	// so the enqueued message is neither sent nor dropped
	s := NewSession("127.0.0.1:1", cmn.DefaultConfig(), h.eventCb, h.recvCb, h.txCb,
		func() bool { return true })
	require.True(t, s.EnqueueSandesh(testMsg(1)))
	// not connected: runner predicate holds the queue; nothing is counted
	time.Sleep(50 * time.Millisecond)
	h.mu.Lock()
	assert.Empty(t, h.tx)
	h.mu.Unlock()
	s.Close()
}
