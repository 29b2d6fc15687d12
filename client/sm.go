// Package client supervises the collector connection: the finite state
// machine driving session lifetime, failover, and timers, plus the client
// that dispatches received sandeshs.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package client

import (
	"sync"
	"time"

	"github.com/NVIDIA/sandesh/cmn"
	"github.com/NVIDIA/sandesh/nlog"
	"github.com/NVIDIA/sandesh/transport"
	"github.com/NVIDIA/sandesh/workq"
)

// State enumerates the connection state machine states.
type State int32

const (
	Idle State = iota
	Disconnect
	Connect
	ConnectToBackup
	ClientInit
	Established
)

var stateNames = [...]string{
	"Idle", "Disconnect", "Connect", "ConnectToBackup", "ClientInit", "Established",
}

func (s State) String() string { return stateNames[s] }

// EventID enumerates state machine events.
type EventID int

const (
	EvStart EventID = iota
	EvStop
	EvIdleHoldTimerExpired
	EvConnectTimerExpired
	EvCollectorUnknown
	EvBackupCollectorUnknown
	EvTcpConnected
	EvTcpConnectFail
	EvTcpClose
	EvCollectorChange
	EvSandeshCtrlMessageRecv
	EvSandeshUVESend
)

var eventNames = [...]string{
	"EvStart", "EvStop", "EvIdleHoldTimerExpired", "EvConnectTimerExpired",
	"EvCollectorUnknown", "EvBackupCollectorUnknown", "EvTcpConnected",
	"EvTcpConnectFail", "EvTcpClose", "EvCollectorChange",
	"EvSandeshCtrlMessageRecv", "EvSandeshUVESend",
}

func (e EventID) String() string { return eventNames[e] }

// Event carries an EventID plus whatever the id needs: the session it
// pertains to (for stale filtering), a received control message, or a UVE
// to forward.
type Event struct {
	ID        EventID
	Session   *transport.Session
	Ctrl      *CtrlServerToClient
	Source    string // collector identity from the control message
	Primary   string // collector change
	Secondary string
	Msg       *cmn.Message // uve send
}

// transitions lists exactly the (state, event) pairs that fire; anything
// else is logged as unconsumed.
var transitions = map[State]map[EventID]State{
	Idle: {
		EvIdleHoldTimerExpired: Connect,
		EvCollectorChange:      Connect,
	},
	Disconnect: {
		EvCollectorChange: Connect,
	},
	Connect: {
		EvCollectorUnknown:    Disconnect,
		EvTcpConnectFail:      ConnectToBackup,
		EvConnectTimerExpired: ConnectToBackup,
		EvCollectorChange:     Idle,
		EvTcpConnected:        ClientInit,
	},
	ConnectToBackup: {
		EvBackupCollectorUnknown: Idle,
		EvTcpConnectFail:         Idle,
		EvConnectTimerExpired:    Idle,
		EvCollectorChange:        Idle,
		EvTcpConnected:           ClientInit,
	},
	ClientInit: {
		EvConnectTimerExpired:    Idle,
		EvTcpClose:               Idle,
		EvCollectorChange:        Idle,
		EvSandeshCtrlMessageRecv: Established,
	},
	Established: {
		EvTcpClose:        ConnectToBackup,
		EvCollectorChange: Connect,
	},
}

// stateMachine serializes all work through its event queue; entry actions
// and the transition table follow the legacy client. Start and Stop (admin
// state) are handled ahead of the table.
type stateMachine struct {
	client *Client

	mu           sync.Mutex
	state        State
	session      *transport.Session
	active       string // collector being tried / in use
	backup       string
	cfgPrimary   string // as configured (reset targets for Idle)
	cfgSecondary string
	connects     int
	adminDown    bool

	idleHoldTimer *time.Timer
	connectTimer  *time.Timer

	eventq *workq.Queue[Event]
}

func newStateMachine(c *Client, primary, secondary string) *stateMachine {
	sm := &stateMachine{
		client:       c,
		state:        Idle,
		active:       primary,
		backup:       secondary,
		cfgPrimary:   primary,
		cfgSecondary: secondary,
	}
	sm.eventq = workq.New(sm.dequeueEvent, nil)
	return sm
}

func (sm *stateMachine) initialize() { sm.enqueue(Event{ID: EvStart}) }

func (sm *stateMachine) enqueue(ev Event) { sm.eventq.Enqueue(ev) }

func (sm *stateMachine) currentState() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

func (sm *stateMachine) currentSession() *transport.Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.session
}

func (sm *stateMachine) activeCollector() (active, backup string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active, sm.backup
}

func (sm *stateMachine) connectCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.connects
}

// dequeueEvent runs on the event-queue runner; it is the only place state
// changes.
func (sm *stateMachine) dequeueEvent(ev Event) {
	sm.mu.Lock()
	if ev.ID != EvSandeshUVESend {
		nlog.Infof("sandesh client: processing %s in state %s", ev.ID, sm.state)
	}
	// events from a session the machine no longer owns are stale
	if ev.Session != nil && ev.Session != sm.session {
		nlog.Infof("sandesh client: ignoring %s for old session", ev.ID)
		sm.mu.Unlock()
		return
	}
	switch ev.ID {
	case EvStart:
		sm.adminDown = false
		if sm.state == Idle {
			sm.enterIdleLocked()
		}
		sm.mu.Unlock()
		return
	case EvStop:
		sm.adminDown = true
		prev := sm.state
		sm.state = Idle
		sm.enterIdleLocked()
		sm.mu.Unlock()
		nlog.Infof("sandesh client: %s => state %s -> state Idle", ev.ID, prev)
		return
	case EvCollectorChange:
		oldActive := sm.active
		sm.cfgPrimary, sm.cfgSecondary = ev.Primary, ev.Secondary
		sm.active, sm.backup = ev.Primary, ev.Secondary
		if oldActive == sm.active {
			nlog.Infof("sandesh client: no change in active collector, ignoring %s", ev.ID)
			sm.mu.Unlock()
			return
		}
	case EvSandeshUVESend:
		state := sm.state
		sm.mu.Unlock()
		if state == Established || state == ClientInit {
			sm.client.sendSandesh(ev.Msg)
		} else {
			sm.client.dropUVE(ev.Msg, state)
		}
		return
	case EvSandeshCtrlMessageRecv:
		if sm.state == Established {
			// mid-session resync request
			sm.mu.Unlock()
			sm.client.handleCtrlMsg(ev.Ctrl)
			return
		}
	case EvIdleHoldTimerExpired:
		if sm.adminDown {
			nlog.Infof("sandesh client: admin down, ignoring %s", ev.ID)
			sm.mu.Unlock()
			return
		}
	}

	next, ok := transitions[sm.state][ev.ID]
	if !ok {
		nlog.Infof("sandesh client: unconsumed %s in state %s", ev.ID, sm.state)
		sm.mu.Unlock()
		return
	}
	prev := sm.state
	sm.state = next
	sm.enterStateLocked(next, ev)
	sm.mu.Unlock()
	nlog.Infof("sandesh client: %s => state %s -> state %s", ev.ID, prev, next)
}

// state entry actions; under sm.mu

func (sm *stateMachine) enterStateLocked(s State, ev Event) {
	switch s {
	case Idle:
		sm.enterIdleLocked()
	case Disconnect:
		sm.client.notifyState(s, sm.active)
	case Connect:
		sm.enterConnectLocked()
	case ConnectToBackup:
		sm.enterConnectToBackupLocked()
	case ClientInit:
		sm.enterClientInitLocked()
	case Established:
		sm.enterEstablishedLocked(ev)
	}
}

func (sm *stateMachine) enterIdleLocked() {
	sm.cancelConnectTimerLocked()
	sm.active, sm.backup = sm.cfgPrimary, sm.cfgSecondary
	sm.deleteSessionLocked()
	sm.client.notifyState(Idle, sm.active)
	if sm.adminDown {
		return
	}
	sm.startIdleHoldTimerLocked()
}

func (sm *stateMachine) enterConnectLocked() {
	sm.cancelIdleHoldTimerLocked()
	sm.client.resetCollectorName()
	sm.deleteSessionLocked()
	sm.client.notifyState(Connect, sm.active)
	if sm.active == "" {
		sm.enqueue(Event{ID: EvCollectorUnknown})
		return
	}
	sm.createSessionLocked()
}

func (sm *stateMachine) enterConnectToBackupLocked() {
	sm.cancelConnectTimerLocked()
	sm.deleteSessionLocked()
	if sm.backup == "" {
		sm.client.notifyState(ConnectToBackup, sm.active)
		sm.enqueue(Event{ID: EvBackupCollectorUnknown})
		return
	}
	sm.active, sm.backup = sm.backup, sm.active
	sm.client.notifyState(ConnectToBackup, sm.active)
	sm.createSessionLocked()
}

func (sm *stateMachine) enterClientInitLocked() {
	sm.connects++
	sm.session.StartReader()
	sm.client.notifyState(ClientInit, sm.active)
	connects := sm.connects
	sm.mu.Unlock()
	sm.client.handleInitialized(connects)
	sm.mu.Lock()
}

func (sm *stateMachine) enterEstablishedLocked(ev Event) {
	sm.cancelConnectTimerLocked()
	sm.client.setCollectorName(ev.Source)
	sm.client.notifyState(Established, sm.active)
	ctrl := ev.Ctrl
	sm.mu.Unlock()
	sm.client.handleCtrlMsg(ctrl)
	sm.client.sendGeneratorInfo()
	sm.mu.Lock()
}

// sessions; under sm.mu

func (sm *stateMachine) createSessionLocked() {
	sm.session = sm.client.newSession(sm.active)
	sm.startConnectTimerLocked()
	sm.session.Connect()
}

func (sm *stateMachine) deleteSessionLocked() {
	if sm.session != nil {
		sm.session.Close()
		sm.session = nil
		sm.client.resetCollectorName()
	}
}

// timers; expiry posts an event carrying the session active at arming
// time, so a restart cannot be confused with a stale expiry

func (sm *stateMachine) startIdleHoldTimerLocked() {
	d := sm.client.cfg.IdleHoldTime
	if d <= 0 {
		sm.enqueue(Event{ID: EvIdleHoldTimerExpired})
		return
	}
	if sm.idleHoldTimer != nil {
		return
	}
	sm.idleHoldTimer = time.AfterFunc(d, func() {
		sm.mu.Lock()
		sm.idleHoldTimer = nil
		sm.mu.Unlock()
		sm.enqueue(Event{ID: EvIdleHoldTimerExpired})
	})
}

func (sm *stateMachine) cancelIdleHoldTimerLocked() {
	if sm.idleHoldTimer != nil {
		sm.idleHoldTimer.Stop()
		sm.idleHoldTimer = nil
	}
}

func (sm *stateMachine) startConnectTimerLocked() {
	if sm.connectTimer != nil {
		return
	}
	session := sm.session
	sm.connectTimer = time.AfterFunc(sm.client.cfg.ConnectTime, func() {
		sm.mu.Lock()
		sm.connectTimer = nil
		sm.mu.Unlock()
		sm.enqueue(Event{ID: EvConnectTimerExpired, Session: session})
	})
}

func (sm *stateMachine) cancelConnectTimerLocked() {
	if sm.connectTimer != nil {
		sm.connectTimer.Stop()
		sm.connectTimer = nil
	}
}

// onSessionEvent converts transport events; stale sessions are filtered in
// dequeueEvent against the then-current session.
func (sm *stateMachine) onSessionEvent(s *transport.Session, ev transport.Event) {
	switch ev {
	case transport.EvEstablished:
		nlog.Infof("session event: tcp connected")
		sm.enqueue(Event{ID: EvTcpConnected, Session: s})
	case transport.EvError:
		nlog.Errorf("session event: tcp connect fail")
		sm.enqueue(Event{ID: EvTcpConnectFail, Session: s})
	case transport.EvClose:
		nlog.Errorf("session event: tcp connection closed")
		sm.enqueue(Event{ID: EvTcpClose, Session: s})
	}
}

// onCtrlMsgReceive handles a decoded SandeshCtrlServerToClient. A failed
// negotiation closes the session; the machine retries via TcpClose.
func (sm *stateMachine) onCtrlMsgReceive(s *transport.Session, ctrl *CtrlServerToClient, source string) {
	if !ctrl.Success {
		nlog.Errorf("negotiation with collector %s failed", source)
		s.Close()
		sm.enqueue(Event{ID: EvTcpClose, Session: s})
		return
	}
	sm.enqueue(Event{ID: EvSandeshCtrlMessageRecv, Session: s, Ctrl: ctrl, Source: source})
}

func (sm *stateMachine) shutdown() {
	sm.eventq.Stop()
	sm.mu.Lock()
	sm.cancelIdleHoldTimerLocked()
	sm.cancelConnectTimerLocked()
	sm.deleteSessionLocked()
	sm.state = Idle
	sm.adminDown = true
	sm.mu.Unlock()
}
