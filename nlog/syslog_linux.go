//go:build linux || darwin

// Package nlog is the sandesh logging front end.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"log/syslog"
	"strings"

	"go.uber.org/zap/zapcore"
)

func newSyslogSink(facility, tag string) zapcore.WriteSyncer {
	w, err := syslog.New(parseFacility(facility)|syslog.LOG_INFO, tag)
	if err != nil {
		return nil
	}
	return zapcore.AddSync(w)
}

func parseFacility(s string) syslog.Priority {
	switch strings.ToUpper(strings.TrimPrefix(strings.ToUpper(s), "LOG_")) {
	case "USER":
		return syslog.LOG_USER
	case "DAEMON":
		return syslog.LOG_DAEMON
	case "SYSLOG":
		return syslog.LOG_SYSLOG
	case "LOCAL0":
		return syslog.LOG_LOCAL0
	case "LOCAL1":
		return syslog.LOG_LOCAL1
	case "LOCAL2":
		return syslog.LOG_LOCAL2
	case "LOCAL3":
		return syslog.LOG_LOCAL3
	case "LOCAL4":
		return syslog.LOG_LOCAL4
	case "LOCAL5":
		return syslog.LOG_LOCAL5
	case "LOCAL6":
		return syslog.LOG_LOCAL6
	case "LOCAL7":
		return syslog.LOG_LOCAL7
	}
	return syslog.LOG_LOCAL0
}
