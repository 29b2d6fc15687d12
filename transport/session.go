// Package transport implements the collector link.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NVIDIA/sandesh/cmn"
	"github.com/NVIDIA/sandesh/nlog"
	"github.com/NVIDIA/sandesh/workq"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Event is a session lifecycle notification delivered to the state machine.
type Event int

const (
	EvEstablished Event = iota // TCP connect succeeded
	EvError                    // TCP connect failed
	EvClose                    // remote close, read error, or framing error
)

func (e Event) String() string {
	switch e {
	case EvEstablished:
		return "Established"
	case EvError:
		return "Error"
	}
	return "Close"
}

const (
	dialTimeout = 5 * time.Second
	// outgoing frames are concatenated up to this size before a write,
	// to amortize syscalls when the queue is backed up
	maxSendBufSize = 4 * cmn.KiB
	readBufSize    = 4 * cmn.KiB
)

type (
	// EventCb receives session events; the session reference lets the
	// state machine drop events from sessions it no longer owns.
	EventCb func(s *Session, ev Event)
	// RecvCb receives each deframed BODY from the reader loop.
	RecvCb func(s *Session, body []byte)
	// TxCb accounts every transmission outcome.
	TxCb func(msg *cmn.Message, nbytes int64, reason cmn.TxDropReason)
)

// Session wraps one TCP connection to a collector: a send queue whose
// runner encodes and writes with coalescing, and a reader loop feeding the
// frame decoder.
type Session struct {
	id     string
	server string
	cfg    *cmn.Config

	mu   sync.Mutex
	conn net.Conn

	sendq   *workq.Queue[*cmn.Message]
	eventCb EventCb
	recvCb  RecvCb
	txCb    TxCb

	cache     []byte // writer coalescing buffer
	connected atomic.Bool
	closed    atomic.Bool

	wg sync.WaitGroup
}

// NewSession prepares a session to server ("host:port"). ready gates the
// send-queue runner on top of the connected check.
func NewSession(server string, cfg *cmn.Config, eventCb EventCb, recvCb RecvCb,
	txCb TxCb, ready func() bool) *Session {
	s := &Session{
		id:      uuid.NewString(),
		server:  server,
		cfg:     cfg,
		eventCb: eventCb,
		recvCb:  recvCb,
		txCb:    txCb,
		cache:   make([]byte, 0, maxSendBufSize),
	}
	s.sendq = workq.New(s.sendMsg, func(m *cmn.Message) int64 { return m.Size() })
	s.sendq.SetStartRunner(func() bool {
		return s.connected.Load() && !s.closed.Load() && (ready == nil || ready())
	})
	if cfg.SendQueueBounded {
		s.sendq.SetBounded(cfg.SendQueueMaxBytes)
	}
	return s
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Server() string { return s.server }
func (s *Session) String() string { return "session[" + s.server + "/" + s.id[:8] + "]" }

// SendQueue exposes the queue for watermark installation and runner kicks.
func (s *Session) SendQueue() *workq.Queue[*cmn.Message] { return s.sendq }

func (s *Session) IsConnected() bool { return s.connected.Load() }
func (s *Session) IsClosed() bool    { return s.closed.Load() }

// Connect dials asynchronously; the outcome arrives as EvEstablished or
// EvError on the event callback.
func (s *Session) Connect() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		conn, err := net.DialTimeout("tcp", s.server, dialTimeout)
		if err != nil {
			if s.closed.Load() {
				return
			}
			nlog.Errorf("%s: connect: %v", s, err)
			s.eventCb(s, EvError)
			return
		}
		if s.closed.Load() {
			_ = conn.Close()
			return
		}
		if err := setSockOpts(conn, s.cfg); err != nil {
			// degraded but not fatal
			nlog.Warningf("%s: keepalive setup: %v", s, err)
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.connected.Store(true)
		s.eventCb(s, EvEstablished)
		s.sendq.MayBeStartRunner()
	}()
}

// StartReader spawns the reader loop; called once the state machine enters
// client-init.
func (s *Session) StartReader() {
	s.wg.Add(1)
	go s.readLoop()
}

func (s *Session) readLoop() {
	defer s.wg.Done()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	var (
		dec Decoder
		buf = make([]byte, readBufSize)
	)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			ferr := dec.Feed(buf[:n], func(body []byte) error {
				cp := make([]byte, len(body))
				copy(cp, body)
				s.recvCb(s, cp)
				return nil
			})
			if ferr != nil {
				nlog.Errorf("%s: %v, closing collector session", s, ferr)
				s.closeConn()
				s.eventCb(s, EvClose)
				return
			}
		}
		if err != nil {
			if !s.closed.Load() {
				nlog.Errorf("%s: read: %v", s, err)
				s.closeConn()
				s.eventCb(s, EvClose)
			}
			return
		}
	}
}

// EnqueueSandesh queues msg for transmission. A false return means the
// queue rejected it (bounded and full, or stopped by Close); the caller
// counts the NoQueue drop.
func (s *Session) EnqueueSandesh(msg *cmn.Message) bool {
	return s.sendq.Enqueue(msg)
}

// sendMsg runs on the queue runner: encode, coalesce, write.
func (s *Session) sendMsg(msg *cmn.Message) {
	if !s.connected.Load() || s.closed.Load() {
		if msg.Hdr.Level.Valid() && nlog.Allowed(msg.Hdr.Level, msg.Hdr.Category) {
			nlog.Log(msg.Hdr.Level, msg.Hdr.Category, "SANDESH: Not connected: %s", msg.Name)
		}
		s.txCb(msg, 0, cmn.TxSessionNotConnected)
		return
	}
	frame, err := Encode(msg)
	if err != nil {
		nlog.Errorf("%s: encode %s: %v", s, msg.Name, err)
		s.txCb(msg, 0, cmn.TxHeaderWriteFailed)
		return
	}
	more := !s.sendq.IsEmpty()
	if err := s.write(frame, more); err != nil {
		nlog.Errorf("%s: write: %v", s, err)
		s.txCb(msg, int64(len(frame)), cmn.TxWriteFailed)
		s.closeConn()
		s.eventCb(s, EvClose)
		return
	}
	s.txCb(msg, int64(len(frame)), cmn.TxNoDrop)
}

// write coalesces frame into the send cache; the cache is flushed when no
// further frame is queued or the cache crosses maxSendBufSize.
func (s *Session) write(frame []byte, more bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return cmn.ErrSessionClosed
	}
	s.cache = append(s.cache, frame...)
	if more && len(s.cache) < maxSendBufSize {
		return nil
	}
	_, err := s.conn.Write(s.cache)
	s.cache = s.cache[:0]
	return errors.Wrap(err, "send")
}

func (s *Session) closeConn() {
	s.connected.Store(false)
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
}

// Close tears the session down: at most once; the send queue is stopped
// and drained silently, the reader unblocked, no further events emitted.
// A dial still in flight discards its result on completion (the state
// machine additionally drops events from sessions it no longer owns).
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.closeConn()
	s.sendq.Stop()
}
