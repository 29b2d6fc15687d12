// Package client supervises the collector connection.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package client

import "encoding/xml"

// CtrlName is the payload element (and dispatch) name of the server
// control message; it must be the only payload carried with the Control
// hint from the collector side.
const CtrlName = "SandeshCtrlServerToClient"

// CtrlClientName names the one message the client must send first on every
// new connection.
const CtrlClientName = "SandeshCtrlClientToServer"

type (
	// CtrlClientToServer announces the generator to the collector.
	CtrlClientToServer struct {
		XMLName        xml.Name `xml:"SandeshCtrlClientToServer"`
		SourceHostname string   `xml:"source"`
		ModuleName     string   `xml:"module_name"`
		SuccessfulConn int      `xml:"successful_connections"`
		UVETypes       []string `xml:"sucessful_types>type_name"` // sic, legacy schema
		Pid            int      `xml:"pid"`
		HTTPPort       int      `xml:"http_port"`
		NodeType       string   `xml:"node_type_name"`
		InstanceID     string   `xml:"instance_id_name"`
	}

	// CtrlTypeInfo is the collector's last-seen sequence number for one
	// UVE type; types absent from the list mean zero.
	CtrlTypeInfo struct {
		TypeName string `xml:"type_name"`
		SeqNum   uint64 `xml:"seq_num"`
	}

	// CtrlServerToClient is the collector's negotiation reply; Success
	// false means disconnect and retry.
	CtrlServerToClient struct {
		XMLName  xml.Name       `xml:"SandeshCtrlServerToClient"`
		Success  bool           `xml:"success"`
		TypeInfo []CtrlTypeInfo `xml:"type_info>info"`
	}
)

// SeqnoMap flattens the type info list for the UVE sync sweep.
func (c *CtrlServerToClient) SeqnoMap() map[string]uint64 {
	m := make(map[string]uint64, len(c.TypeInfo))
	for _, ti := range c.TypeInfo {
		m[ti.TypeName] = ti.SeqNum
	}
	return m
}

// DecodeCtrl parses the payload of a Control-hinted message.
func DecodeCtrl(payload []byte) (*CtrlServerToClient, error) {
	ctrl := &CtrlServerToClient{}
	if err := xml.Unmarshal(payload, ctrl); err != nil {
		return nil, err
	}
	return ctrl, nil
}
