// Package uve caches the latest value of every keyed UVE record.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package uve

import "github.com/NVIDIA/sandesh/nlog"

// SendFunc re-emits one cached entry as a sync replay (SyncReplay hint,
// original sequence number). A false return aborts the remaining replays:
// the session is gone and a fresh establish restarts sync anyway.
type SendFunc func(typeName string, e Entry) bool

// SyncAll replays, for every registered type, each cached entry strictly
// newer than the collector-supplied sequence number (missing types mean 0).
// Returns the number of entries replayed.
func (tm *TypeMaps) SyncAll(inmap map[string]uint64, send SendFunc) int {
	count := 0
	for _, name := range tm.TypeNames() {
		n, aborted := tm.SyncType(name, inmap[name], send)
		count += n
		if aborted {
			break
		}
	}
	return count
}

// SyncType replays one type's entries newer than seqno. aborted reports an
// interrupted sweep (send returned false).
func (tm *TypeMaps) SyncType(typeName string, seqno uint64, send SendFunc) (count int, aborted bool) {
	tm.mu.Lock()
	m, ok := tm.types[typeName]
	if !ok {
		tm.mu.Unlock()
		return 0, false
	}
	pending := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if seqno == 0 || e.Seqno > seqno {
			pending = append(pending, *e)
		}
	}
	tm.mu.Unlock()

	for _, e := range pending {
		if !send(typeName, e) {
			nlog.Warningf("uve sync [%s]: session lost after %d of %d replays",
				typeName, count, len(pending))
			return count, true
		}
		count++
	}
	return count, false
}
