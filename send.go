// Package sandesh is a telemetry generator client.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package sandesh

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/NVIDIA/sandesh/client"
	"github.com/NVIDIA/sandesh/cmn"
	"github.com/NVIDIA/sandesh/conninfo"
	"github.com/NVIDIA/sandesh/nlog"
	"github.com/NVIDIA/sandesh/uve"
)

func timeNow() time.Time { return time.Now() }

type (
	// Payload is the per-type encoded body; implementations come from the
	// generated type packages (the envelope is specified here, the body
	// grammar there).
	Payload interface {
		SandeshName() string
		Marshal() ([]byte, error)
	}

	// Validator is optionally implemented by payloads with field
	// constraints; failure drops the submission as ValidationFailed.
	Validator interface {
		Validate() error
	}
)

// NextSeqNum allocates the process-wide monotonic sequence number assigned
// at submission.
func (g *Generator) NextSeqNum() uint64 { return g.seqnum.Add(1) }

func (g *Generator) newHeader(kind cmn.Type, level cmn.Level, category, context string,
	seq uint64, hints uint32) cmn.Header {
	return cmn.Header{
		Timestamp:  cmn.UTCTimestampUsec(),
		Module:     g.module,
		Source:     g.source,
		Context:    context,
		SequenceNo: seq,
		VersionSig: versionSig,
		Type:       kind,
		Hints:      hints,
		Level:      level,
		Category:   category,
		NodeType:   g.nodeType,
		InstanceID: g.instanceID,
	}
}

// versionSig pins the header schema generation.
const versionSig = 2674379322

// marshal validates and renders a payload, counting failures.
func (g *Generator) marshal(p Payload) ([]byte, int64, cmn.TxDropReason) {
	name := p.SandeshName()
	if v, ok := p.(Validator); ok {
		if err := v.Validate(); err != nil {
			nlog.Errorf("sandesh %q validation failed: %v", name, err)
			return nil, 0, cmn.TxValidationFailed
		}
	}
	body, err := p.Marshal()
	if err != nil {
		nlog.Errorf("sandesh %q encode failed: %v", name, err)
		return nil, 0, cmn.TxHeaderWriteFailed
	}
	return body, int64(len(body)), cmn.TxNoDrop
}

// handleTest short-circuits delivery in unit-test mode or for UT levels.
func (g *Generator) handleTest(level cmn.Level, category, name string) bool {
	if !g.unitTest && !level.IsUT() {
		return false
	}
	if nlog.Allowed(level, category) {
		nlog.Log(cmn.LevelDebug, category, "SANDESH (ut): %s", name)
	}
	return true
}

// Send submits an async message (system, object, or flow) and returns 0 on
// accept-for-send or -1 on any drop. Every drop updates statistics;
// unit-test mode and local-log delivery (no collector) count nothing.
func (g *Generator) Send(kind cmn.Type, level cmn.Level, category string, p Payload) int {
	name := p.SandeshName()
	body, nbytes, reason := g.marshal(p)
	if reason != cmn.TxNoDrop {
		g.stats.UpdateTxStats(name, nbytes, reason)
		return -1
	}
	if g.handleTest(level, category, name) {
		return 0
	}
	if kind == cmn.TypeSystem && !g.limiter(name).Allow(timeNow()) {
		g.stats.UpdateTxStats(name, nbytes, cmn.TxRatelimitDrop)
		return -1
	}
	if send := g.SendLevel(); send != cmn.LevelInvalid && level >= send {
		g.stats.UpdateTxStats(name, nbytes, cmn.TxQueueLevel)
		return -1
	}
	msg := &cmn.Message{
		Hdr:  g.newHeader(kind, level, category, "", g.NextSeqNum(), 0),
		Name: name,
		Body: body,
	}
	return g.dispatch(msg)
}

// SendSystem is the common case: an async system log.
func (g *Generator) SendSystem(level cmn.Level, category string, p Payload) int {
	return g.Send(cmn.TypeSystem, level, category, p)
}

func (g *Generator) SendObject(level cmn.Level, category string, p Payload) int {
	return g.Send(cmn.TypeObject, level, category, p)
}

func (g *Generator) SendFlow(level cmn.Level, category string, p Payload) int {
	return g.Send(cmn.TypeFlow, level, category, p)
}

// SendRequest submits a request toward the collector; ctx "ctrl" marks a
// control message for the state machine on the far side.
func (g *Generator) SendRequest(ctx string, p Payload) int {
	name := p.SandeshName()
	body, nbytes, reason := g.marshal(p)
	if reason != cmn.TxNoDrop {
		g.stats.UpdateTxStats(name, nbytes, reason)
		return -1
	}
	var hints uint32
	if ctx == "ctrl" {
		hints |= cmn.HintControl
	}
	if g.handleTest(cmn.LevelInfo, "", name) {
		return 0
	}
	msg := &cmn.Message{
		Hdr:  g.newHeader(cmn.TypeRequest, cmn.LevelInfo, "", ctx, g.NextSeqNum(), hints),
		Name: name,
		Body: body,
	}
	return g.dispatch(msg)
}

// SendResponse answers a request. A context beginning with http:// or
// https:// short-circuits into the introspect response buffer; everything
// else rides the normal submission pipeline back to the collector.
func (g *Generator) SendResponse(ctx string, p Payload, more bool) int {
	name := p.SandeshName()
	body, nbytes, reason := g.marshal(p)
	if reason != cmn.TxNoDrop {
		g.stats.UpdateTxStats(name, nbytes, reason)
		return -1
	}
	if isHTTPContext(ctx) {
		if g.http == nil || !g.http.WriteResponse(ctx, body, more) {
			nlog.Errorf("http response: stale context %q for %s", ctx, name)
			return -1
		}
		return 0
	}
	if g.handleTest(cmn.LevelInfo, "", name) {
		return 0
	}
	msg := &cmn.Message{
		Hdr:  g.newHeader(cmn.TypeResponse, cmn.LevelInfo, "", ctx, g.NextSeqNum(), 0),
		Name: name,
		Body: body,
	}
	return g.dispatch(msg)
}

func isHTTPContext(ctx string) bool {
	return strings.HasPrefix(ctx, "http://") || strings.HasPrefix(ctx, "https://")
}

// dispatch hands an accepted message to the client, or accounts why not.
func (g *Generator) dispatch(msg *cmn.Message) int {
	if g.client != nil {
		if g.client.SendSandesh(msg) != cmn.TxNoDrop {
			return -1
		}
		return 0
	}
	if g.connectToCollector {
		g.stats.UpdateTxStats(msg.Name, msg.Size(), cmn.TxNoClient)
		if g.DropLogAllowed() {
			nlog.Errorf("SANDESH: No client: %s", msg.Name)
		}
		return -1
	}
	// not connecting anywhere: deliver to the local log
	if msg.Hdr.Level.Valid() && nlog.Allowed(msg.Hdr.Level, msg.Hdr.Category) {
		nlog.Log(msg.Hdr.Level, msg.Hdr.Category, "SANDESH: %s", msg.Name)
	}
	return 0
}

//
// UVEs
//

// SendUVE submits a fresh UVE: the cache entry for its key is merged per
// the type's rule, a new sequence number is assigned, and the update is
// forwarded when the machine is ClientInit or Established (logged
// otherwise).
func (g *Generator) SendUVE(typeName string, data uve.Data) int {
	return g.sendUVE(cmn.TypeUVE, typeName, data)
}

// SendAlarm submits an alarm-variant UVE. The AlarmToken value is not
// attached; the body goes out as data marshals it.
func (g *Generator) SendAlarm(typeName string, data uve.Data) int {
	return g.sendUVE(cmn.TypeAlarm, typeName, data)
}

// SendDynamicUVE submits a dynamic UVE (element-map body).
func (g *Generator) SendDynamicUVE(typeName string, data uve.Data) int {
	return g.sendUVE(cmn.TypeDynamicUVE, typeName, data)
}

func (g *Generator) sendUVE(kind cmn.Type, typeName string, data uve.Data) int {
	seq := g.NextSeqNum()
	if _, err := g.typeMaps.Update(typeName, data, seq); err != nil {
		nlog.Errorf("sandesh uve %q: %v", typeName, err)
		g.stats.UpdateTxStats(typeName, 0, cmn.TxValidationFailed)
		return -1
	}
	body, err := data.Marshal()
	if err != nil {
		nlog.Errorf("sandesh uve %q encode failed: %v", typeName, err)
		g.stats.UpdateTxStats(typeName, 0, cmn.TxHeaderWriteFailed)
		return -1
	}
	msg := &cmn.Message{
		Hdr:  g.newHeader(kind, cmn.LevelInfo, "", "", seq, cmn.HintKey),
		Name: typeName,
		Body: body,
	}
	if g.handleTest(cmn.LevelInfo, "", typeName) {
		return 0
	}
	if g.client != nil {
		g.client.SendUVESandesh(msg)
	} else {
		nlog.Debugf("SANDESH: %s[%s]", typeName, data.Key())
	}
	return 0
}

//
// client.Env
//

// BuildCtrlMessage renders the connection announcement sent first on every
// new session.
func (g *Generator) BuildCtrlMessage(connects int) (*cmn.Message, error) {
	ctrl := &client.CtrlClientToServer{
		SourceHostname: g.source,
		ModuleName:     g.module,
		SuccessfulConn: connects,
		UVETypes:       g.typeMaps.TypeNames(),
		Pid:            osPid(),
		HTTPPort:       g.HTTPPort(),
		NodeType:       g.nodeType,
		InstanceID:     g.instanceID,
	}
	body, err := xml.Marshal(ctrl)
	if err != nil {
		return nil, err
	}
	return &cmn.Message{
		Hdr: g.newHeader(cmn.TypeRequest, cmn.LevelInfo, "", "ctrl",
			g.NextSeqNum(), cmn.HintControl),
		Name: client.CtrlClientName,
		Body: body,
	}, nil
}

// BuildReplayMessage renders a cached UVE entry as a sync replay: the
// SyncReplay hint set and the entry's original sequence number.
func (g *Generator) BuildReplayMessage(typeName string, e uve.Entry) (*cmn.Message, error) {
	body, err := e.Data.Marshal()
	if err != nil {
		return nil, err
	}
	return &cmn.Message{
		Hdr: g.newHeader(cmn.TypeUVE, cmn.LevelInfo, "", "", e.Seqno,
			cmn.HintKey|cmn.HintSyncReplay),
		Name: typeName,
		Body: body,
	}, nil
}

// HandleRequest dispatches a request received from the collector; fields
// come from the payload's child elements.
func (g *Generator) HandleRequest(hdr cmn.Header, name string, payload []byte) {
	fields, err := parseFields(payload)
	if err != nil {
		nlog.Errorf("failed to decode sandesh request %q: %v", name, err)
		g.stats.UpdateRxStats(name, int64(len(payload)), cmn.RxDecodingFailed)
		return
	}
	g.invokeHandler(name, fields, hdr.Context)
}

// parseFields flattens the payload's immediate children into name->text.
func parseFields(payload []byte) (map[string]string, error) {
	fields := make(map[string]string, 8)
	dec := xml.NewDecoder(strings.NewReader(string(payload)))
	depth := 0
	var cur string
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			if depth == 0 {
				return fields, nil
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				cur = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 2 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 && cur != "" {
				if v := strings.TrimSpace(text.String()); v != "" {
					fields[cur] = v
				}
				cur = ""
			}
			depth--
			if depth == 0 {
				return fields, nil
			}
		}
	}
}

// NotifyConnection feeds state machine transitions into the
// process-status roll-up; identical consecutive states are suppressed by
// the roll-up's dedup.
func (g *Generator) NotifyConnection(state client.State, server string) {
	var status conninfo.ConnStatus
	switch state {
	case client.Established:
		status = conninfo.StatusUp
	case client.Connect, client.ConnectToBackup, client.ClientInit:
		status = conninfo.StatusInit
	default:
		status = conninfo.StatusDown
	}
	var addrs []string
	if server != "" {
		addrs = []string{server}
	}
	desc := state.String()
	if status == conninfo.StatusUp {
		desc = ""
	}
	g.conn.Update("Collector", "", status, addrs, desc)
}

// AlarmToken derives an opaque token from the generator identity at start.
// SendAlarm does not attach it.
func (g *Generator) AlarmToken() string {
	tok := fmt.Sprintf("%s:%d:%d", g.source, g.HTTPPort(), g.startTime)
	return base64.StdEncoding.EncodeToString([]byte(tok))
}
