// Package sandesh is a telemetry generator client.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package sandesh

import (
	"encoding/xml"
	"os"

	"github.com/NVIDIA/sandesh/conninfo"
	"github.com/NVIDIA/sandesh/nlog"
	"github.com/NVIDIA/sandesh/uve"
)

func osPid() int { return os.Getpid() }

// ModuleClientTraceType is the built-in UVE carrying generator state.
const ModuleClientTraceType = "SandeshModuleClientTrace"

type (
	// SandeshClientInfo describes the collector connection from the
	// generator's side.
	SandeshClientInfo struct {
		Status         string `xml:"status"`
		SuccessfulConn int    `xml:"successful_connections"`
		Pid            int    `xml:"pid"`
		HTTPPort       int    `xml:"http_port"`
		StartTime      int64  `xml:"start_time"`
		CollectorName  string `xml:"collector_name"`
		CollectorIP    string `xml:"collector_ip"`
		Primary        string `xml:"primary"`
		Secondary      string `xml:"secondary"`
	}

	// ModuleClientState is the generator-info UVE body, keyed on
	// source:node_type:module:instance_id.
	ModuleClientState struct {
		XMLName    xml.Name          `xml:"ModuleClientState"`
		Name       string            `xml:"name"`
		Deleted    bool              `xml:"deleted,omitempty"`
		ClientInfo SandeshClientInfo `xml:"client_info"`
	}
)

// interface guard
var _ uve.Data = (*ModuleClientState)(nil)

func (m *ModuleClientState) Key() string              { return m.Name }
func (m *ModuleClientState) Table() string            { return "" }
func (m *ModuleClientState) IsDeleted() bool          { return m.Deleted }
func (m *ModuleClientState) Marshal() ([]byte, error) { return xml.Marshal(m) }

// SendGeneratorInfo emits the module client-state UVE; called on
// ClientInit and Established transitions and available to operators.
func (g *Generator) SendGeneratorInfo() {
	if g.client == nil {
		return
	}
	active, backup := g.client.Collectors()
	info := SandeshClientInfo{
		Status:         g.client.State().String(),
		SuccessfulConn: g.client.ConnectCount(),
		Pid:            osPid(),
		HTTPPort:       g.HTTPPort(),
		StartTime:      g.startTime,
		CollectorName:  g.client.Collector(),
		CollectorIP:    active,
		Primary:        active,
		Secondary:      backup,
	}
	state := &ModuleClientState{
		Name:       g.source + ":" + g.nodeType + ":" + g.module + ":" + g.instanceID,
		ClientInfo: info,
	}
	g.SendUVE(ModuleClientTraceType, state)
}

// sendNodeStatus is the conninfo roll-up emitter.
func (g *Generator) sendNodeStatus(ns *conninfo.NodeStatus) {
	if g.SendUVE(conninfo.UVETypeName, ns) != 0 {
		nlog.Errorf("failed to send process-status uve for %s", ns.Name)
	}
}

// registerBuiltins installs the internal UVE types ahead of user packages.
func (g *Generator) registerBuiltins() {
	for _, desc := range []uve.TypeDesc{
		{Name: conninfo.UVETypeName},
		{Name: ModuleClientTraceType},
	} {
		if err := g.typeMaps.Register(desc); err != nil {
			nlog.Errorf("builtin uve type: %v", err)
		}
	}
	g.registerBuiltinHandlers()
}
