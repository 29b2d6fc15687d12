// Package conninfo tracks the health of every external dependency of the
// generator and rolls the set up into a process state emitted as a UVE
// keyed on the host name.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package conninfo

import (
	"encoding/xml"
	"sort"
	"strings"
	"sync"
)

// ConnStatus is one dependency's link status.
type ConnStatus string

const (
	StatusUp   ConnStatus = "Up"
	StatusDown ConnStatus = "Down"
	StatusInit ConnStatus = "Initializing"
)

// ProcessState is the roll-up of all dependencies.
type ProcessState string

const (
	StateFunctional    ProcessState = "Functional"
	StateNonFunctional ProcessState = "Non-Functional"
	StateStarting      ProcessState = "Starting"
)

type (
	// ConnInfo describes one (type, name) dependency.
	ConnInfo struct {
		Type        string     `xml:"type" json:"type"`
		Name        string     `xml:"name" json:"name"`
		Status      ConnStatus `xml:"status" json:"status"`
		ServerAddrs []string   `xml:"server_addrs>addr" json:"server_addrs"`
		Description string     `xml:"description,omitempty" json:"description,omitempty"`
	}

	// ProcessStatus is the emitted roll-up for this module instance.
	ProcessStatus struct {
		ModuleID    string       `xml:"module_id" json:"module_id"`
		InstanceID  string       `xml:"instance_id" json:"instance_id"`
		State       ProcessState `xml:"state" json:"state"`
		ConnInfos   []ConnInfo   `xml:"connection_infos>connection_info" json:"connection_infos"`
		Description string       `xml:"description,omitempty" json:"description,omitempty"`
	}

	// NodeStatus is the UVE body, keyed on the host name.
	NodeStatus struct {
		XMLName       xml.Name        `xml:"NodeStatus"`
		Name          string          `xml:"name"`
		Deleted       bool            `xml:"deleted,omitempty"`
		ProcessStatus []ProcessStatus `xml:"process_status>ProcessStatus"`
	}

	// SendFunc emits the roll-up UVE.
	SendFunc func(*NodeStatus)

	connKey struct{ typ, name string }

	// State is the dependency registry for one generator.
	State struct {
		mu         sync.Mutex
		hostname   string
		moduleID   string
		instanceID string
		send       SendFunc
		conns      map[connKey]ConnInfo
	}
)

// NodeStatus implements the uve cache Data contract.
func (ns *NodeStatus) Key() string              { return ns.Name }
func (ns *NodeStatus) Table() string            { return "" }
func (ns *NodeStatus) IsDeleted() bool          { return ns.Deleted }
func (ns *NodeStatus) Marshal() ([]byte, error) { return xml.Marshal(ns) }

// UVETypeName is the registered type carrying the roll-up.
const UVETypeName = "NodeStatusUVE"

func New(hostname, moduleID, instanceID string, send SendFunc) *State {
	return &State{
		hostname:   hostname,
		moduleID:   moduleID,
		instanceID: instanceID,
		send:       send,
		conns:      make(map[connKey]ConnInfo, 8),
	}
}

// Update creates or updates the (connType, name) entry. A submission
// identical to the stored entry in status, addresses, and description is a
// no-op: no UVE is emitted.
func (s *State) Update(connType, name string, status ConnStatus, serverAddrs []string, description string) {
	key := connKey{typ: connType, name: name}
	info := ConnInfo{
		Type:        connType,
		Name:        name,
		Status:      status,
		ServerAddrs: serverAddrs,
		Description: description,
	}
	s.mu.Lock()
	if cur, ok := s.conns[key]; ok && cur.Status == status &&
		cur.Description == description && equalAddrs(cur.ServerAddrs, serverAddrs) {
		s.mu.Unlock()
		return
	}
	s.conns[key] = info
	ns := s.buildLocked()
	s.mu.Unlock()
	s.send(ns)
}

// Delete removes the entry and re-emits the roll-up.
func (s *State) Delete(connType, name string) {
	s.mu.Lock()
	delete(s.conns, connKey{typ: connType, name: name})
	ns := s.buildLocked()
	s.mu.Unlock()
	s.send(ns)
}

// Snapshot returns the current entries, sorted by (type, name).
func (s *State) Snapshot() []ConnInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *State) sortedLocked() []ConnInfo {
	out := make([]ConnInfo, 0, len(s.conns))
	for _, ci := range s.conns {
		out = append(out, ci)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *State) buildLocked() *NodeStatus {
	infos := s.sortedLocked()
	state, desc := rollup(infos)
	return &NodeStatus{
		Name: s.hostname,
		ProcessStatus: []ProcessStatus{{
			ModuleID:    s.moduleID,
			InstanceID:  s.instanceID,
			State:       state,
			ConnInfos:   infos,
			Description: desc,
		}},
	}
}

// rollup computes the process state: Functional iff every dependency is
// up, Starting while the only non-up dependencies are still initializing,
// otherwise Non-Functional with each non-up entry summarised as
// <type>:<name>[<description>].
func rollup(infos []ConnInfo) (ProcessState, string) {
	var (
		down    []string
		allInit = true
	)
	for _, ci := range infos {
		if ci.Status == StatusUp {
			continue
		}
		if ci.Status != StatusInit {
			allInit = false
		}
		elem := ci.Type
		if ci.Name != "" {
			elem += ":" + ci.Name
		}
		if ci.Description != "" {
			elem += "[" + ci.Description + "]"
		}
		down = append(down, elem)
	}
	if len(down) == 0 {
		return StateFunctional, ""
	}
	if allInit {
		return StateStarting, strings.Join(down, ", ") + " connection initializing"
	}
	return StateNonFunctional, strings.Join(down, ", ") + " connection down"
}

func equalAddrs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
