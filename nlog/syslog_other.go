//go:build !linux && !darwin

// Package nlog is the sandesh logging front end.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import "go.uber.org/zap/zapcore"

// syslog is unavailable; the request is honored as a no-op sink.
func newSyslogSink(string, string) zapcore.WriteSyncer { return nil }
