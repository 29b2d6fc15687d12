// Package sandesh is a telemetry generator client.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package sandesh

import (
	"github.com/NVIDIA/sandesh/cmn"
	"github.com/NVIDIA/sandesh/nlog"
)

// collectorReadContext is the reserved reader context used when a trace
// buffer is replayed to the collector; reads through it never repeat
// entries between calls.
const collectorReadContext = "Collector"

// TraceBufferCreate makes a named ring of fixed capacity; enable controls
// its initial state.
func (g *Generator) TraceBufferCreate(name string, size int, enable bool) {
	g.tracer.BufAdd(name, size, enable)
}

func (g *Generator) TraceBufferDelete(name string)  { g.tracer.BufDelete(name) }
func (g *Generator) TraceBufferEnable(name string)  { g.tracer.BufEnable(name) }
func (g *Generator) TraceBufferDisable(name string) { g.tracer.BufDisable(name) }

func (g *Generator) IsTraceBufferEnabled(name string) bool { return g.tracer.BufEnabled(name) }
func (g *Generator) TraceBufferList() []string             { return g.tracer.BufList() }
func (g *Generator) TraceBufferSize(name string) int       { return g.tracer.BufSize(name) }

func (g *Generator) TraceEnable()         { g.tracer.Enable() }
func (g *Generator) TraceDisable()        { g.tracer.Disable() }
func (g *Generator) IsTraceEnabled() bool { return g.tracer.Enabled() }

// TraceMsg records p into the named buffer. The write is a no-op while
// tracing or the buffer is disabled. The buffer name rides in the header
// category and the per-buffer sequence number in the header seqno, for
// correlation when the buffer is later replayed.
func (g *Generator) TraceMsg(bufName string, p Payload) {
	if !g.tracer.Enabled() || !g.tracer.BufEnabled(bufName) {
		return
	}
	body, err := p.Marshal()
	if err != nil {
		nlog.Errorf("trace %q encode failed: %v", p.SandeshName(), err)
		return
	}
	msg := &cmn.Message{
		Hdr:  g.newHeader(cmn.TypeTrace, cmn.LevelDebug, bufName, "", 0, 0),
		Name: p.SandeshName(),
		Body: body,
	}
	msg.Hdr.SequenceNo = g.tracer.Write(bufName, msg)
}

// SendTrace submits a trace-typed message directly: to the introspect
// response buffer when ctx is an http context, through the normal send
// pipeline otherwise.
func (g *Generator) SendTrace(ctx string, p Payload, more bool) int {
	body, nbytes, reason := g.marshal(p)
	if reason != cmn.TxNoDrop {
		g.stats.UpdateTxStats(p.SandeshName(), nbytes, reason)
		return -1
	}
	if isHTTPContext(ctx) {
		if g.http == nil || !g.http.WriteResponse(ctx, body, more) {
			return -1
		}
		return 0
	}
	if g.handleTest(cmn.LevelDebug, "", p.SandeshName()) {
		return 0
	}
	msg := &cmn.Message{
		Hdr:  g.newHeader(cmn.TypeTrace, cmn.LevelDebug, "", ctx, g.NextSeqNum(), 0),
		Name: p.SandeshName(),
		Body: body,
	}
	return g.dispatch(msg)
}

// TraceBufferRead yields up to count entries (0 means all remaining) for
// the reader context; the cursor persists across calls until
// TraceBufferReadDone.
func (g *Generator) TraceBufferRead(name, readContext string, count int,
	cb func(msg *cmn.Message, more bool)) {
	g.tracer.Read(name, readContext, count, cb)
}

func (g *Generator) TraceBufferReadDone(name, readContext string) {
	g.tracer.ReadDone(name, readContext)
}

// SendSandeshTraceBuffer replays the named buffer to the collector through
// the regular send path. Only entries added since the previous replay are
// sent (the Collector reader context tracks the position).
func (g *Generator) SendSandeshTraceBuffer(name string, count int) {
	g.tracer.Read(name, collectorReadContext, count, func(msg *cmn.Message, _ bool) {
		g.dispatch(msg)
	})
}
