// Package nlog is the sandesh logging front end.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"os"
	"sync"

	"go.uber.org/zap/zapcore"
)

// fileSink appends to a log file and rotates by size: on crossing maxSize
// the current file is renamed to <path>.1 (replacing any previous rollover)
// and a fresh file is opened.
type fileSink struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	written int64
	maxSize int64
	erred   bool
}

// interface guard
var _ zapcore.WriteSyncer = (*fileSink)(nil)

func newFileSink(path string, maxSize int64) *fileSink {
	s := &fileSink{path: path, maxSize: maxSize}
	s.open()
	return s
}

func (s *fileSink) open() {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.erred = true
		return
	}
	if fi, err := f.Stat(); err == nil {
		s.written = fi.Size()
	}
	s.file, s.erred = f, false
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.erred || s.file == nil {
		// degraded: fall back to stderr rather than dropping the line
		return os.Stderr.Write(p)
	}
	n, err := s.file.Write(p)
	if err != nil {
		s.erred = true
		return n, err
	}
	s.written += int64(n)
	if s.maxSize > 0 && s.written >= s.maxSize {
		s.rotate()
	}
	return n, nil
}

func (s *fileSink) rotate() {
	_ = s.file.Close()
	_ = os.Rename(s.path, s.path+".1")
	s.written = 0
	s.open()
}

func (s *fileSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

func (s *fileSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}
