//go:build !linux

// Package transport implements the collector link.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"net"

	"github.com/NVIDIA/sandesh/cmn"
)

// setSockOpts arms what the platform offers: keepalive with the configured
// idle time; interval/probes/user-timeout need Linux.
func setSockOpts(conn net.Conn, cfg *cmn.Config) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetKeepAlive(true); err != nil {
		return err
	}
	return tc.SetKeepAlivePeriod(cfg.KeepaliveIdle)
}
