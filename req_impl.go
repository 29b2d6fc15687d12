// Package sandesh is a telemetry generator client.
//
// This file implements the built-in control requests served over both the
// collector link and the introspect surface.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package sandesh

import (
	"encoding/xml"
	"net"
	"strconv"
	"strings"

	"github.com/NVIDIA/sandesh/cmn"
	"github.com/NVIDIA/sandesh/nlog"

	jsoniter "github.com/json-iterator/go"
)

type cdata struct {
	Text string `xml:",cdata"`
}

type (
	// SandeshLoggingParams reports (and echoes after a set) the local
	// logging configuration.
	SandeshLoggingParams struct {
		XMLName        xml.Name `xml:"SandeshLoggingParams"`
		EnableLocal    bool     `xml:"enable_local_log"`
		Category       string   `xml:"category"`
		Level          string   `xml:"level"`
		File           string   `xml:"file"`
		EnableSyslog   bool     `xml:"enable_syslog"`
		SyslogFacility string   `xml:"syslog_facility"`
	}

	SandeshSendQueueResponse struct {
		XMLName xml.Name `xml:"SandeshSendQueueResponse"`
		Enable  bool     `xml:"enable"`
	}

	SandeshSendingParams struct {
		XMLName   xml.Name `xml:"SandeshSendingParams"`
		SendLevel string   `xml:"send_level"`
	}

	CollectorInfoResponse struct {
		XMLName xml.Name `xml:"CollectorInfoResponse"`
		IP      string   `xml:"ip"`
		Port    int      `xml:"port"`
		Status  string   `xml:"status"`
	}

	SandeshMessageStatsResp struct {
		XMLName xml.Name `xml:"SandeshMessageStats"`
		Stats   cdata    `xml:"stats"`
	}

	TraceBufInfo struct {
		Name    string `xml:"trace_buf_name"`
		Size    int    `xml:"size"`
		Enabled bool   `xml:"enabled"`
	}

	SandeshTraceBufferListResp struct {
		XMLName xml.Name       `xml:"SandeshTraceBufferListResp"`
		Buffers []TraceBufInfo `xml:"trace_buffer_list>TraceBufInfo"`
	}

	SandeshTraceEnableDisableResp struct {
		XMLName xml.Name `xml:"SandeshTraceEnableDisableResp"`
		Status  string   `xml:"enable_disable_status"`
	}

	SandeshTraceBufStatusResp struct {
		XMLName      xml.Name       `xml:"SandeshTraceBufStatusResp"`
		TraceEnabled bool           `xml:"trace_enabled"`
		Buffers      []TraceBufInfo `xml:"trace_buf_status_list>TraceBufInfo"`
	}

	TraceEntryText struct {
		Seqno   uint64 `xml:"seqno"`
		Message string `xml:"message"`
		Content cdata  `xml:"content"`
	}

	SandeshTraceTextResponse struct {
		XMLName xml.Name         `xml:"SandeshTraceTextResponse"`
		Name    string           `xml:"trace_buf_name"`
		Entries []TraceEntryText `xml:"traces>TraceEntryText"`
	}

	UVECacheEntry struct {
		Key     string `xml:"key"`
		Table   string `xml:"table,omitempty"`
		Seqno   uint64 `xml:"seqno"`
		Deleted bool   `xml:"deleted"`
		Data    cdata  `xml:"data"`
	}

	SandeshUVECacheResp struct {
		XMLName   xml.Name        `xml:"SandeshUVECacheResp"`
		TypeName  string          `xml:"type_name"`
		Returned  int             `xml:"returned"`
		Entries   []UVECacheEntry `xml:"uves>UVECacheEntry"`
	}

	UVETypeInfo struct {
		TypeName string `xml:"type_name"`
		Seqno    uint64 `xml:"seq_num"`
	}

	SandeshUVETypesResp struct {
		XMLName xml.Name      `xml:"SandeshUVETypesResp"`
		Types   []UVETypeInfo `xml:"type_info>UVETypeInfo"`
	}
)

func respName(v any) string {
	switch v.(type) {
	case *SandeshLoggingParams:
		return "SandeshLoggingParams"
	case *SandeshSendQueueResponse:
		return "SandeshSendQueueResponse"
	case *SandeshSendingParams:
		return "SandeshSendingParams"
	case *CollectorInfoResponse:
		return "CollectorInfoResponse"
	case *SandeshMessageStatsResp:
		return "SandeshMessageStats"
	case *SandeshTraceBufferListResp:
		return "SandeshTraceBufferListResp"
	case *SandeshTraceEnableDisableResp:
		return "SandeshTraceEnableDisableResp"
	case *SandeshTraceBufStatusResp:
		return "SandeshTraceBufStatusResp"
	case *SandeshTraceTextResponse:
		return "SandeshTraceTextResponse"
	case *SandeshUVECacheResp:
		return "SandeshUVECacheResp"
	case *SandeshUVETypesResp:
		return "SandeshUVETypesResp"
	}
	return "UnknownResponse"
}

// xmlPayload adapts any xml-marshalable response struct to Payload.
type xmlPayload struct{ v any }

func (p xmlPayload) SandeshName() string      { return respName(p.v) }
func (p xmlPayload) Marshal() ([]byte, error) { return xml.Marshal(p.v) }

func (g *Generator) respond(ctx string, v any) {
	if g.SendResponse(ctx, xmlPayload{v}, false) != 0 {
		nlog.Errorf("failed to send %s response", respName(v))
	}
}

func parseBool(s string) bool { b, _ := strconv.ParseBool(strings.ToLower(s)); return b }

// registerBuiltinHandlers installs the control-plane request table.
func (g *Generator) registerBuiltinHandlers() {
	table := map[string]RequestHandler{
		"SandeshLoggingParamsSet":             handleLoggingParamsSet,
		"SandeshLoggingParamsStatus":          handleLoggingParamsStatus,
		"SandeshSendQueueSet":                 handleSendQueueSet,
		"SandeshSendQueueStatus":              handleSendQueueStatus,
		"SandeshSendingParamsSet":             handleSendingParamsSet,
		"CollectorInfoRequest":                handleCollectorInfo,
		"SandeshMessageStatsReq":              handleMessageStats,
		"SandeshTraceBufferListRequest":       handleTraceBufferList,
		"SandeshTraceEnableDisableReq":        handleTraceEnableDisable,
		"SandeshTraceBufStatusReq":            handleTraceBufStatus,
		"SandeshTraceBufferEnableDisableReq":  handleTraceBufEnableDisable,
		"SandeshTraceRequest":                 handleTraceRequest,
		"SandeshUVECacheReq":                  handleUVECacheReq,
		"SandeshUVETypesReq":                  handleUVETypesReq,
	}
	for name, h := range table {
		g.RegisterHandler(name, h)
	}
}

func handleLoggingParamsSet(g *Generator, ctx string, fields map[string]string) {
	p := nlog.GetParams()
	if v, ok := fields["enable"]; ok {
		p.EnableLocal = parseBool(v)
	}
	if v, ok := fields["category"]; ok {
		p.Category = v
	}
	if v, ok := fields["log_level"]; ok {
		p.Level = cmn.ParseLevel(v)
	}
	if v, ok := fields["file"]; ok {
		p.File = v
	}
	if v, ok := fields["enable_syslog"]; ok {
		p.EnableSyslog = parseBool(v)
	}
	if v, ok := fields["syslog_facility"]; ok {
		p.SyslogFacility = v
	}
	nlog.SetParams(p)
	handleLoggingParamsStatus(g, ctx, nil)
}

func handleLoggingParamsStatus(g *Generator, ctx string, _ map[string]string) {
	p := nlog.GetParams()
	g.respond(ctx, &SandeshLoggingParams{
		EnableLocal:    p.EnableLocal,
		Category:       p.Category,
		Level:          p.Level.String(),
		File:           p.File,
		EnableSyslog:   p.EnableSyslog,
		SyslogFacility: p.SyslogFacility,
	})
}

func handleSendQueueSet(g *Generator, ctx string, fields map[string]string) {
	if v, ok := fields["enable"]; ok {
		g.SetSendQueue(parseBool(v))
	}
	handleSendQueueStatus(g, ctx, nil)
}

func handleSendQueueStatus(g *Generator, ctx string, _ map[string]string) {
	g.respond(ctx, &SandeshSendQueueResponse{Enable: g.SendQueueEnabled()})
}

func handleSendingParamsSet(g *Generator, ctx string, fields map[string]string) {
	if v, ok := fields["send_level"]; ok {
		g.SetSendLevel(cmn.ParseLevel(v))
	}
	g.respond(ctx, &SandeshSendingParams{SendLevel: g.SendLevel().String()})
}

func handleCollectorInfo(g *Generator, ctx string, _ map[string]string) {
	resp := &CollectorInfoResponse{}
	if c := g.Client(); c != nil {
		active, _ := c.Collectors()
		if host, portStr, err := net.SplitHostPort(active); err == nil {
			resp.IP = host
			resp.Port, _ = strconv.Atoi(portStr)
		}
		resp.Status = c.State().String()
	}
	g.respond(ctx, resp)
}

func handleMessageStats(g *Generator, ctx string, _ map[string]string) {
	js, err := jsoniter.MarshalToString(g.Stats().Snapshot())
	if err != nil {
		nlog.Errorf("stats snapshot: %v", err)
		return
	}
	g.respond(ctx, &SandeshMessageStatsResp{Stats: cdata{Text: js}})
}

func (g *Generator) traceBufInfos() []TraceBufInfo {
	names := g.TraceBufferList()
	infos := make([]TraceBufInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, TraceBufInfo{
			Name:    name,
			Size:    g.TraceBufferSize(name),
			Enabled: g.IsTraceBufferEnabled(name),
		})
	}
	return infos
}

func handleTraceBufferList(g *Generator, ctx string, _ map[string]string) {
	g.respond(ctx, &SandeshTraceBufferListResp{Buffers: g.traceBufInfos()})
}

func handleTraceEnableDisable(g *Generator, ctx string, fields map[string]string) {
	if v, ok := fields["enable"]; ok {
		if parseBool(v) {
			g.TraceEnable()
		} else {
			g.TraceDisable()
		}
	} else {
		// no argument toggles
		if g.IsTraceEnabled() {
			g.TraceDisable()
		} else {
			g.TraceEnable()
		}
	}
	status := "disabled"
	if g.IsTraceEnabled() {
		status = "enabled"
	}
	g.respond(ctx, &SandeshTraceEnableDisableResp{Status: "Sandesh trace " + status})
}

func handleTraceBufStatus(g *Generator, ctx string, _ map[string]string) {
	g.respond(ctx, &SandeshTraceBufStatusResp{
		TraceEnabled: g.IsTraceEnabled(),
		Buffers:      g.traceBufInfos(),
	})
}

func handleTraceBufEnableDisable(g *Generator, ctx string, fields map[string]string) {
	name := fields["trace_buf_name"]
	if name != "" {
		if v, ok := fields["enable"]; !ok || parseBool(v) {
			g.TraceBufferEnable(name)
		} else {
			g.TraceBufferDisable(name)
		}
	}
	handleTraceBufStatus(g, ctx, nil)
}

func handleTraceRequest(g *Generator, ctx string, fields map[string]string) {
	name := fields["name"]
	count := 0
	if v, ok := fields["count"]; ok {
		count, _ = strconv.Atoi(v)
	}
	resp := &SandeshTraceTextResponse{Name: name}
	g.TraceBufferRead(name, ctx, count, func(msg *cmn.Message, _ bool) {
		resp.Entries = append(resp.Entries, TraceEntryText{
			Seqno:   msg.Hdr.SequenceNo,
			Message: msg.Name,
			Content: cdata{Text: string(msg.Body)},
		})
	})
	g.TraceBufferReadDone(name, ctx)
	g.respond(ctx, resp)
}

func handleUVECacheReq(g *Generator, ctx string, fields map[string]string) {
	typeName := fields["tname"]
	resp := &SandeshUVECacheResp{TypeName: typeName}
	entries, ok := g.TypeMaps().Entries(typeName)
	if ok {
		for _, e := range entries {
			body, err := e.Data.Marshal()
			if err != nil {
				continue
			}
			resp.Entries = append(resp.Entries, UVECacheEntry{
				Key:     e.Data.Key(),
				Table:   e.Data.Table(),
				Seqno:   e.Seqno,
				Deleted: e.Data.IsDeleted(),
				Data:    cdata{Text: string(body)},
			})
		}
	}
	resp.Returned = len(resp.Entries)
	g.respond(ctx, resp)
}

func handleUVETypesReq(g *Generator, ctx string, _ map[string]string) {
	resp := &SandeshUVETypesResp{}
	seqnos := g.TypeMaps().TypeSeqnos()
	for _, name := range g.TypeMaps().TypeNames() {
		resp.Types = append(resp.Types, UVETypeInfo{TypeName: name, Seqno: seqnos[name]})
	}
	g.respond(ctx, resp)
}
