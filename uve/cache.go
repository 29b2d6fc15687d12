// Package uve caches the latest value of every keyed UVE record per
// registered type and replays entries on demand under the collector sync
// protocol.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package uve

import (
	"sort"
	"sync"

	"github.com/NVIDIA/sandesh/cmn"
	"github.com/NVIDIA/sandesh/cmn/debug"
	"github.com/NVIDIA/sandesh/nlog"
)

type (
	// Data is the per-type cached payload. Implementations come from the
	// generated type packages; the cache needs only identity, tombstone
	// status, and the payload encoder.
	Data interface {
		Key() string      // user-visible primary key
		Table() string    // empty means the type's default table
		IsDeleted() bool  // tombstone
		Marshal() ([]byte, error)
	}

	// Merge produces the cached value from an existing live entry and an
	// incoming update, which may be a tombstone. nil Merge replaces
	// wholesale.
	Merge func(existing, incoming Data) Data

	// TypeDesc registers one UVE type.
	TypeDesc struct {
		Name  string
		Merge Merge
	}

	// Entry is one cache slot; (table, type, key) is the cache key.
	Entry struct {
		Data        Data
		Seqno       uint64
		UpdateCount uint64
	}

	entryKey struct{ table, key string }

	perTypeMap struct {
		desc    TypeDesc
		entries map[entryKey]*Entry
		lastSeq uint64 // newest seqno assigned to this type
	}

	// TypeMaps is the process-wide registry: type name to per-type map.
	// The registered type set is immutable after Seal.
	TypeMaps struct {
		mu     sync.Mutex
		types  map[string]*perTypeMap
		sealed bool
	}
)

func NewTypeMaps() *TypeMaps {
	return &TypeMaps{types: make(map[string]*perTypeMap, 8)}
}

// Register adds a type descriptor; duplicate names and post-seal
// registrations are rejected.
func (tm *TypeMaps) Register(desc TypeDesc) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.sealed {
		return cmn.NewErrUnknownType("registration state for UVE type", desc.Name)
	}
	if _, ok := tm.types[desc.Name]; ok {
		return cmn.NewErrUnknownType("duplicate UVE type", desc.Name)
	}
	tm.types[desc.Name] = &perTypeMap{
		desc:    desc,
		entries: make(map[entryKey]*Entry, 8),
	}
	return nil
}

// Seal freezes the registered type set.
func (tm *TypeMaps) Seal() { tm.mu.Lock(); tm.sealed = true; tm.mu.Unlock() }

// TypeNames lists registered types, sorted.
func (tm *TypeMaps) TypeNames() []string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	names := make([]string, 0, len(tm.types))
	for name := range tm.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeSeqnos reports the newest sequence number per type.
func (tm *TypeMaps) TypeSeqnos() map[string]uint64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	out := make(map[string]uint64, len(tm.types))
	for name, m := range tm.types {
		out[name] = m.lastSeq
	}
	return out
}

// Update applies a fresh (non-replay) submission carrying seqno to the
// cache and returns the resulting entry value. A UVE entry's sequence
// number only increases over its cache lifetime.
func (tm *TypeMaps) Update(typeName string, data Data, seqno uint64) (Entry, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	m, ok := tm.types[typeName]
	if !ok {
		return Entry{}, cmn.NewErrUnknownType("UVE type", typeName)
	}
	if seqno > m.lastSeq {
		m.lastSeq = seqno
	}
	key := entryKey{table: data.Table(), key: data.Key()}
	e, exists := m.entries[key]
	if exists {
		// an entry's seqno only increases over its cache lifetime
		debug.Assertf(seqno > e.Seqno, "uve <%s/%s>: seqno %d not above %d",
			typeName, data.Key(), seqno, e.Seqno)
	}
	switch {
	case !exists:
		e = &Entry{Data: data, Seqno: seqno}
		m.entries[key] = e
	case e.Data.IsDeleted() && !data.IsDeleted():
		// tombstone replaced by a re-created entry
		e.Data, e.Seqno, e.UpdateCount = data, seqno, 0
	case e.Data.IsDeleted() && data.IsDeleted():
		nlog.Errorf("duplicate uve delete <%s/%s>", typeName, data.Key())
		e.Seqno = seqno
	default:
		if m.desc.Merge != nil {
			e.Data = m.desc.Merge(e.Data, data)
		} else {
			e.Data = data
		}
		e.Seqno = seqno
		e.UpdateCount++
	}
	return *e, nil
}

// Entries snapshots a type's cache slots (map order).
func (tm *TypeMaps) Entries(typeName string) ([]Entry, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	m, ok := tm.types[typeName]
	if !ok {
		return nil, false
	}
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out, true
}
