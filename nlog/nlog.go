// Package nlog is the sandesh logging front end: leveled, categorized,
// dynamically reconfigurable, writing to stderr, a rotating file, and/or
// syslog.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"os"
	"sync"

	"github.com/NVIDIA/sandesh/cmn"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Params mirror set_logging_params: every field is individually settable at
// runtime.
type Params struct {
	EnableLocal    bool      // local logging of sandesh messages
	Category       string    // empty matches all categories
	Level          cmn.Level // minimum severity logged
	File           string    // "" or "<stdout>" logs to stderr
	EnableSyslog   bool
	SyslogFacility string
	MaxFileSize    int64 // rotation threshold, bytes
}

type nlog struct {
	mu     sync.Mutex
	name   string
	params Params
	zlog   *zap.Logger
	sink   *fileSink // nil when logging to stderr
}

var g = &nlog{
	params: Params{Level: cmn.LevelInfo, MaxFileSize: 10 * cmn.MiB},
}

// Init names the logger (source:module:node_type:instance_id) and builds the
// initial stderr core. Safe to call more than once; the last name wins.
func Init(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.name = name
	g.rebuild()
}

// SetParams replaces the full parameter set, rebuilding sinks as needed.
func SetParams(p Params) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.MaxFileSize <= 0 {
		p.MaxFileSize = g.params.MaxFileSize
	}
	g.params = p
	g.rebuild()
}

func GetParams() Params {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.params
}

func SetLocalLogging(enable bool) { update(func(p *Params) { p.EnableLocal = enable }) }
func SetLevel(level cmn.Level)    { update(func(p *Params) { p.Level = level }) }
func SetCategory(category string) { update(func(p *Params) { p.Category = category }) }
func SetFile(file string)         { update(func(p *Params) { p.File = file }) }

func SetSyslog(enable bool, facility string) {
	update(func(p *Params) { p.EnableSyslog, p.SyslogFacility = enable, facility })
}

func update(f func(*Params)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f(&g.params)
	g.rebuild()
}

// Allowed is the local-logging gate for sandesh messages: local logging on,
// severity at or above the configured level, and category match (an empty
// configured category matches everything).
func Allowed(level cmn.Level, category string) bool {
	g.mu.Lock()
	p := g.params
	g.mu.Unlock()
	if !p.EnableLocal {
		return false
	}
	if level > p.Level {
		return false
	}
	return p.Category == "" || p.Category == category
}

// infra logging; gated by level only

func Debugf(format string, args ...any)   { logf(cmn.LevelDebug, "", format, args) }
func Infof(format string, args ...any)    { logf(cmn.LevelInfo, "", format, args) }
func Warningf(format string, args ...any) { logf(cmn.LevelWarning, "", format, args) }
func Errorf(format string, args ...any)   { logf(cmn.LevelError, "", format, args) }

func Infoln(args ...any)  { logln(cmn.LevelInfo, args) }
func Errorln(args ...any) { logln(cmn.LevelError, args) }

// Log writes a sandesh message at its own severity. Callers check Allowed
// first; Log itself applies only the level gate so that drop logging at a
// message's severity keeps working when local logging is off.
func Log(level cmn.Level, category, format string, args ...any) {
	logf(level, category, format, args)
}

func Flush() {
	g.mu.Lock()
	zlog := g.zlog
	g.mu.Unlock()
	if zlog != nil {
		_ = zlog.Sync()
	}
}

func logf(level cmn.Level, category, format string, args []any) {
	zlog, ok := logger(level)
	if !ok {
		return
	}
	s := zlog.Sugar()
	if category != "" {
		s = s.With("category", category)
	}
	switch zlevel(level) {
	case zapcore.DebugLevel:
		s.Debugf(format, args...)
	case zapcore.InfoLevel:
		s.Infof(format, args...)
	case zapcore.WarnLevel:
		s.Warnf(format, args...)
	default:
		s.Errorf(format, args...)
	}
}

func logln(level cmn.Level, args []any) {
	zlog, ok := logger(level)
	if !ok {
		return
	}
	if zlevel(level) >= zapcore.ErrorLevel {
		zlog.Sugar().Errorln(args...)
	} else {
		zlog.Sugar().Infoln(args...)
	}
}

func logger(level cmn.Level) (*zap.Logger, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.zlog == nil {
		g.rebuild()
	}
	if level > g.params.Level && !level.IsUT() {
		return nil, false
	}
	return g.zlog, true
}

// zlevel folds the eight sandesh severities onto zap's four output levels.
func zlevel(l cmn.Level) zapcore.Level {
	switch {
	case l >= cmn.LevelDebug || l.IsUT():
		return zapcore.DebugLevel
	case l >= cmn.LevelNotice:
		return zapcore.InfoLevel
	case l == cmn.LevelWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// rebuild constructs the zap core stack under g.mu.
func (n *nlog) rebuild() {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})

	if n.sink != nil && n.sink.path != n.params.File {
		n.sink.close()
		n.sink = nil
	}

	var cores []zapcore.Core
	switch n.params.File {
	case "", "<stdout>":
		cores = append(cores,
			zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zapcore.DebugLevel))
	default:
		if n.sink == nil {
			n.sink = newFileSink(n.params.File, n.params.MaxFileSize)
		} else {
			n.sink.maxSize = n.params.MaxFileSize
		}
		cores = append(cores, zapcore.NewCore(enc, n.sink, zapcore.DebugLevel))
	}
	if n.params.EnableSyslog {
		if w := newSyslogSink(n.params.SyslogFacility, n.name); w != nil {
			cores = append(cores, zapcore.NewCore(enc, w, zapcore.DebugLevel))
		}
	}

	zlog := zap.New(zapcore.NewTee(cores...))
	if n.name != "" {
		zlog = zlog.Named(n.name)
	}
	n.zlog = zlog
}
