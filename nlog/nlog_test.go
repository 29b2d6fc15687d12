// Package nlog is the sandesh logging front end.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/NVIDIA/sandesh/cmn"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedGates(t *testing.T) {
	Init("test:logger")
	defer SetParams(Params{Level: cmn.LevelInfo})

	SetParams(Params{EnableLocal: true, Level: cmn.LevelInfo})
	assert.True(t, Allowed(cmn.LevelError, "anything"))
	assert.True(t, Allowed(cmn.LevelInfo, ""))
	assert.False(t, Allowed(cmn.LevelDebug, ""), "below the configured level")

	SetParams(Params{EnableLocal: false, Level: cmn.LevelDebug})
	assert.False(t, Allowed(cmn.LevelEmergency, ""), "local logging off")

	SetParams(Params{EnableLocal: true, Level: cmn.LevelDebug, Category: "XMPP"})
	assert.True(t, Allowed(cmn.LevelInfo, "XMPP"))
	assert.False(t, Allowed(cmn.LevelInfo, "BGP"), "category mismatch")
}

func TestIndividualSetters(t *testing.T) {
	Init("test:logger")
	defer SetParams(Params{Level: cmn.LevelInfo})

	SetParams(Params{})
	SetLocalLogging(true)
	SetLevel(cmn.LevelWarning)
	SetCategory("cat")
	p := GetParams()
	assert.True(t, p.EnableLocal)
	assert.Equal(t, cmn.LevelWarning, p.Level)
	assert.Equal(t, "cat", p.Category)
}

func TestFileSinkWritesAndRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sandesh.log")

	s := newFileSink(path, 256)
	line := []byte(strings.Repeat("x", 64) + "\n")
	for i := 0; i < 8; i++ {
		_, err := s.Write(line)
		require.NoError(t, err)
	}
	require.NoError(t, s.Sync())
	s.close()

	// crossing 256 bytes rotated at least once
	_, err := os.Stat(path + ".1")
	assert.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLogToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	Init("test:logger")
	SetParams(Params{EnableLocal: true, Level: cmn.LevelDebug, File: path})
	defer SetParams(Params{Level: cmn.LevelInfo})

	Infof("hello %s", "world")
	Log(cmn.LevelWarning, "cat", "categorized %d", 42)
	Flush()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, "hello world")
	assert.Contains(t, out, "categorized 42")
	assert.Contains(t, out, "category")
}

func TestLevelGateOnInfra(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.log")
	Init("test:logger")
	SetParams(Params{Level: cmn.LevelWarning, File: path})
	defer SetParams(Params{Level: cmn.LevelInfo})

	Debugf("dropped debug")
	Infof("dropped info")
	Errorf("kept error")
	Flush()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "dropped")
	assert.Contains(t, string(b), "kept error")
}

func TestZlevelFolding(t *testing.T) {
	assert.Equal(t, "DEBUG", zlevel(cmn.LevelDebug).CapitalString())
	assert.Equal(t, "INFO", zlevel(cmn.LevelInfo).CapitalString())
	assert.Equal(t, "WARN", zlevel(cmn.LevelWarning).CapitalString())
	assert.Equal(t, "ERROR", zlevel(cmn.LevelError).CapitalString())
	assert.Equal(t, "ERROR", zlevel(cmn.LevelEmergency).CapitalString())
}
