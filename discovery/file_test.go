// Package discovery feeds collector lists into the generator.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package discovery

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type applied struct {
	mu   sync.Mutex
	sets [][]string
}

func (a *applied) apply(collectors []string) {
	a.mu.Lock()
	a.sets = append(a.sets, collectors)
	a.mu.Unlock()
}

func (a *applied) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sets)
}

func (a *applied) last() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sets) == 0 {
		return nil
	}
	return a.sets[len(a.sets)-1]
}

func TestWatchAppliesInitialList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collectors.yml")
	require.NoError(t, os.WriteFile(path,
		[]byte("collectors:\n  - 10.0.0.1:8086\n  - 10.0.0.2:8086\n"), 0o644))

	a := &applied{}
	w, err := Watch(path, a.apply)
	require.NoError(t, err)
	defer w.Stop()

	require.Equal(t, 1, a.count())
	assert.Equal(t, []string{"10.0.0.1:8086", "10.0.0.2:8086"}, a.last())
}

func TestWatchPushesChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collectors.yml")
	require.NoError(t, os.WriteFile(path,
		[]byte("collectors: [10.0.0.1:8086]\n"), 0o644))

	a := &applied{}
	w, err := Watch(path, a.apply)
	require.NoError(t, err)
	defer w.Stop()
	require.Equal(t, 1, a.count())

	require.NoError(t, os.WriteFile(path,
		[]byte("collectors: [10.0.0.9:8086, 10.0.0.1:8086]\n"), 0o644))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && a.count() < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	require.GreaterOrEqual(t, a.count(), 2)
	assert.Equal(t, []string{"10.0.0.9:8086", "10.0.0.1:8086"}, a.last())
}

func TestWatchIgnoresNoopRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collectors.yml")
	content := []byte("collectors: [10.0.0.1:8086]\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	a := &applied{}
	w, err := Watch(path, a.apply)
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, content, 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, a.count(), "unchanged list is not re-applied")
}

func TestWatchMissingFile(t *testing.T) {
	_, err := Watch(filepath.Join(t.TempDir(), "nope.yml"), func([]string) {})
	assert.Error(t, err)
}
