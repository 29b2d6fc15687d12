// Package client supervises the collector connection.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package client

import (
	"sync"

	"github.com/NVIDIA/sandesh/cmn"
	"github.com/NVIDIA/sandesh/nlog"
	"github.com/NVIDIA/sandesh/stats"
	"github.com/NVIDIA/sandesh/transport"
	"github.com/NVIDIA/sandesh/uve"
	"github.com/NVIDIA/sandesh/workq"
)

// Env is the generator facade as seen from the client: message
// construction, request dispatch, and level control live there.
type Env interface {
	// BuildCtrlMessage renders the SandeshCtrlClientToServer announcing
	// this generator (connects = successful connection count).
	BuildCtrlMessage(connects int) (*cmn.Message, error)
	// BuildReplayMessage renders one cached UVE entry as a sync replay.
	BuildReplayMessage(typeName string, e uve.Entry) (*cmn.Message, error)
	// HasHandler reports whether a request handler is registered for name.
	HasHandler(name string) bool
	// HandleRequest dispatches a non-control received sandesh.
	HandleRequest(hdr cmn.Header, name string, payload []byte)
	// SendGeneratorInfo emits the module client-state UVE.
	SendGeneratorInfo()
	// SetSendLevel is driven by queue watermark crossings.
	SetSendLevel(level cmn.Level)
	// NotifyConnection reports machine state changes for the
	// process-status roll-up.
	NotifyConnection(state State, server string)
	// DropLogAllowed rate-limits operational drop logging.
	DropLogAllowed() bool
}

// Client owns the state machine and routes sandeshs between the generator
// and the active session.
type Client struct {
	cfg      *cmn.Config
	env      Env
	stats    *stats.Registry
	typeMaps *uve.TypeMaps
	sm       *stateMachine
	ready    func() bool // send-queue enable gate

	mu        sync.Mutex
	collector string // remote identity, known once Established
}

func New(cfg *cmn.Config, env Env, reg *stats.Registry, tm *uve.TypeMaps,
	primary, secondary string, ready func() bool) *Client {
	c := &Client{cfg: cfg, env: env, stats: reg, typeMaps: tm, ready: ready}
	c.sm = newStateMachine(c, primary, secondary)
	return c
}

// Initiate starts the state machine (idle-hold then connect).
func (c *Client) Initiate() { c.sm.initialize() }

// Shutdown stops the machine and closes any session; idempotent.
func (c *Client) Shutdown() { c.sm.shutdown() }

func (c *Client) State() State        { return c.sm.currentState() }
func (c *Client) ConnectCount() int   { return c.sm.connectCount() }
func (c *Client) Session() *transport.Session { return c.sm.currentSession() }

func (c *Client) Collectors() (active, backup string) { return c.sm.activeCollector() }

// Collector returns the remote identity negotiated on the current session.
func (c *Client) Collector() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collector
}

func (c *Client) setCollectorName(name string) {
	c.mu.Lock()
	c.collector = name
	c.mu.Unlock()
}

func (c *Client) resetCollectorName() { c.setCollectorName("") }

// ReconfigCollectors feeds a new primary/secondary pair into the machine.
func (c *Client) ReconfigCollectors(primary, secondary string) {
	c.sm.enqueue(Event{ID: EvCollectorChange, Primary: primary, Secondary: secondary})
}

// SetAdminState holds the machine down (true) or releases it (false).
func (c *Client) SetAdminState(down bool) {
	if down {
		c.sm.enqueue(Event{ID: EvStop})
	} else {
		c.sm.enqueue(Event{ID: EvStart})
	}
}

// KickSendQueue restarts the session queue runner after the send gate
// reopened.
func (c *Client) KickSendQueue() {
	if s := c.sm.currentSession(); s != nil {
		s.SendQueue().MayBeStartRunner()
	}
}

// SendSandesh hands msg to the active session. The returned reason is
// TxNoDrop on acceptance. Drops are counted here; an accepted message is
// counted by the session when it is written or dropped.
func (c *Client) SendSandesh(msg *cmn.Message) cmn.TxDropReason {
	s := c.sm.currentSession()
	if s == nil {
		c.dropTx(msg, cmn.TxNoSession, "No session")
		return cmn.TxNoSession
	}
	if !s.EnqueueSandesh(msg) {
		c.dropTx(msg, cmn.TxNoQueue, "Queue full")
		return cmn.TxNoQueue
	}
	return cmn.TxNoDrop
}

// SendUVESandesh routes a UVE through the machine so it is forwarded only
// in ClientInit or Established.
func (c *Client) SendUVESandesh(msg *cmn.Message) {
	c.sm.enqueue(Event{ID: EvSandeshUVESend, Msg: msg})
}

func (c *Client) dropUVE(msg *cmn.Message, state State) {
	nlog.Infof("sandesh client: discarding %s in state %s", msg.Name, state)
	c.stats.UpdateTxStats(msg.Name, msg.Size(), cmn.TxWrongClientSMState)
}

func (c *Client) dropTx(msg *cmn.Message, reason cmn.TxDropReason, why string) {
	c.stats.UpdateTxStats(msg.Name, msg.Size(), reason)
	if reason.Operational() && !c.env.DropLogAllowed() {
		return
	}
	if msg.Hdr.Level.Valid() {
		nlog.Log(msg.Hdr.Level, msg.Hdr.Category, "SANDESH: %s: %s", why, msg.Name)
	} else {
		nlog.Errorf("SANDESH: %s: %s", why, msg.Name)
	}
}

// sendSandesh is the internal forward used by the machine itself.
func (c *Client) sendSandesh(msg *cmn.Message) { c.SendSandesh(msg) }

// newSession builds a session toward server with the client's receive and
// accounting paths and the configured level watermarks.
func (c *Client) newSession(server string) *transport.Session {
	s := transport.NewSession(server, c.cfg, c.sm.onSessionEvent, c.receiveMsg,
		c.onTx, c.ready)
	high := make([]workq.Watermark, 0, len(c.cfg.HighWatermarks))
	for _, wm := range c.cfg.HighWatermarks {
		level := wm.Level
		high = append(high, workq.Watermark{Bytes: wm.Bytes, Cb: func(int64) {
			c.env.SetSendLevel(level)
		}})
	}
	low := make([]workq.Watermark, 0, len(c.cfg.LowWatermarks))
	for _, wm := range c.cfg.LowWatermarks {
		level := wm.Level
		low = append(low, workq.Watermark{Bytes: wm.Bytes, Cb: func(int64) {
			c.env.SetSendLevel(level)
		}})
	}
	s.SendQueue().SetWatermarks(high, low)
	return s
}

func (c *Client) onTx(msg *cmn.Message, nbytes int64, reason cmn.TxDropReason) {
	c.stats.UpdateTxStats(msg.Name, nbytes, reason)
}

// receiveMsg is the session reader's frame handler: parse the body header,
// then route control messages to the machine and everything else to the
// request dispatcher.
func (c *Client) receiveMsg(s *transport.Session, body []byte) {
	hdr, name, payload, err := transport.ParseBody(body)
	if err != nil {
		nlog.Errorf("failed to decode sandesh header: %v", err)
		c.stats.UpdateRxStats("Unknown", int64(len(body)), cmn.RxDecodingFailed)
		return
	}
	nbytes := int64(len(body))
	if hdr.Hints&cmn.HintControl != 0 {
		if name != CtrlName {
			nlog.Errorf("invalid sandesh control message [%s]", name)
			c.stats.UpdateRxStats(name, nbytes, cmn.RxControlMsgFailed)
			return
		}
		ctrl, err := DecodeCtrl(payload)
		if err != nil {
			nlog.Errorf("failed to decode sandesh control message: %v", err)
			c.stats.UpdateRxStats(name, nbytes, cmn.RxDecodingFailed)
			return
		}
		c.stats.UpdateRxStats(name, nbytes, cmn.RxNoDrop)
		c.sm.onCtrlMsgReceive(s, ctrl, hdr.Source)
		return
	}
	if !c.env.HasHandler(name) {
		nlog.Errorf("invalid sandesh request %q", name)
		c.stats.UpdateRxStats(name, nbytes, cmn.RxCreateFailed)
		return
	}
	c.stats.UpdateRxStats(name, nbytes, cmn.RxNoDrop)
	c.env.HandleRequest(hdr, name, payload)
}

// handleInitialized runs on entering ClientInit: announce the generator,
// then refresh the client-state UVE.
func (c *Client) handleInitialized(connects int) {
	msg, err := c.env.BuildCtrlMessage(connects)
	if err != nil {
		nlog.Errorf("failed to build sandesh control message: %v", err)
		return
	}
	c.SendSandesh(msg)
	c.env.SendGeneratorInfo()
}

// handleCtrlMsg starts (or restarts) the UVE sync sweep against the
// collector-supplied per-type sequence numbers.
func (c *Client) handleCtrlMsg(ctrl *CtrlServerToClient) {
	if ctrl == nil {
		return
	}
	inmap := ctrl.SeqnoMap()
	nlog.Infof("uve sync: %d type(s) in sandesh control message", len(ctrl.TypeInfo))
	n := c.typeMaps.SyncAll(inmap, func(typeName string, e uve.Entry) bool {
		msg, err := c.env.BuildReplayMessage(typeName, e)
		if err != nil {
			nlog.Errorf("uve sync [%s]: %v", typeName, err)
			return true // skip this entry, keep the sweep alive
		}
		return c.SendSandesh(msg) == cmn.TxNoDrop
	})
	nlog.Infof("uve sync: replayed %d entries", n)
}

func (c *Client) sendGeneratorInfo() { c.env.SendGeneratorInfo() }

// notifyState is called from state entry actions with sm.mu held; the
// active collector is passed in rather than read back through the machine.
func (c *Client) notifyState(s State, active string) {
	c.env.NotifyConnection(s, active)
}
