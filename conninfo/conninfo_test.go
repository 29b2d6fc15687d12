// Package conninfo tracks dependency health and the process roll-up.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package conninfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	emitted []*NodeStatus
}

func (r *recorder) send(ns *NodeStatus) { r.emitted = append(r.emitted, ns) }

func (r *recorder) last(t *testing.T) ProcessStatus {
	t.Helper()
	require.NotEmpty(t, r.emitted)
	ns := r.emitted[len(r.emitted)-1]
	require.Len(t, ns.ProcessStatus, 1)
	return ns.ProcessStatus[0]
}

func TestRollupScenario(t *testing.T) {
	rec := &recorder{}
	cs := New("host1", "mod", "0", rec.send)

	cs.Update("Test", "Test1", StatusUp, nil, "")
	cs.Update("Test", "Test2", StatusUp, nil, "")
	ps := rec.last(t)
	assert.Equal(t, StateFunctional, ps.State)
	assert.Equal(t, "", ps.Description)

	cs.Update("Test", "Test2", StatusDown, nil, "Test2 DOWN")
	ps = rec.last(t)
	assert.Equal(t, StateNonFunctional, ps.State)
	assert.Equal(t, "Test:Test2[Test2 DOWN] connection down", ps.Description)

	cs.Update("Test", "Test3", StatusDown, nil, "Test3 DOWN")
	ps = rec.last(t)
	assert.Equal(t, StateNonFunctional, ps.State)
	assert.Equal(t,
		"Test:Test2[Test2 DOWN], Test:Test3[Test3 DOWN] connection down",
		ps.Description)
}

func TestIdenticalUpdateSuppressed(t *testing.T) {
	rec := &recorder{}
	cs := New("host1", "mod", "0", rec.send)

	cs.Update("Database", "db0", StatusUp, []string{"10.0.0.1:9042"}, "")
	require.Len(t, rec.emitted, 1)

	// identical in status, addrs, and description: no emission
	cs.Update("Database", "db0", StatusUp, []string{"10.0.0.1:9042"}, "")
	assert.Len(t, rec.emitted, 1)

	// any field change emits again
	cs.Update("Database", "db0", StatusUp, []string{"10.0.0.2:9042"}, "")
	assert.Len(t, rec.emitted, 2)
	cs.Update("Database", "db0", StatusDown, []string{"10.0.0.2:9042"}, "gone")
	assert.Len(t, rec.emitted, 3)
}

func TestDeleteReemits(t *testing.T) {
	rec := &recorder{}
	cs := New("host1", "mod", "0", rec.send)

	cs.Update("Test", "a", StatusDown, nil, "down")
	ps := rec.last(t)
	require.Equal(t, StateNonFunctional, ps.State)

	cs.Delete("Test", "a")
	ps = rec.last(t)
	assert.Equal(t, StateFunctional, ps.State)
	assert.Empty(t, ps.ConnInfos)
}

func TestUVEKeyAndBody(t *testing.T) {
	rec := &recorder{}
	cs := New("host1", "mod", "7", rec.send)
	cs.Update("Collector", "", StatusInit, []string{"1.2.3.4:8086"}, "Connect")

	ns := rec.emitted[0]
	assert.Equal(t, "host1", ns.Key())
	assert.False(t, ns.IsDeleted())
	body, err := ns.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(body), "<NodeStatus>")
	assert.Contains(t, string(body), "1.2.3.4:8086")

	ps := rec.last(t)
	assert.Equal(t, "mod", ps.ModuleID)
	assert.Equal(t, "7", ps.InstanceID)
}

func TestRollupStartingWhileInitializing(t *testing.T) {
	rec := &recorder{}
	cs := New("host1", "mod", "0", rec.send)

	cs.Update("Collector", "", StatusInit, []string{"1.2.3.4:8086"}, "Connect")
	ps := rec.last(t)
	assert.Equal(t, StateStarting, ps.State)
	assert.Equal(t, "Collector[Connect] connection initializing", ps.Description)

	// one hard-down dependency outweighs the initializing ones
	cs.Update("Database", "db0", StatusDown, nil, "gone")
	ps = rec.last(t)
	assert.Equal(t, StateNonFunctional, ps.State)

	cs.Update("Collector", "", StatusUp, []string{"1.2.3.4:8086"}, "")
	cs.Update("Database", "db0", StatusUp, nil, "")
	ps = rec.last(t)
	assert.Equal(t, StateFunctional, ps.State)
}

func TestRollupNameOnlyWhenNoDescription(t *testing.T) {
	infos := []ConnInfo{{Type: "Redis", Name: "", Status: StatusDown}}
	state, desc := rollup(infos)
	assert.Equal(t, StateNonFunctional, state)
	assert.Equal(t, "Redis connection down", desc)
}
