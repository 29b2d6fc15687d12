//go:build linux

// Package transport implements the collector link.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"net"
	"time"

	"github.com/NVIDIA/sandesh/cmn"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// setSockOpts arms TCP keepalive (idle/interval/probes) and the user
// timeout so a dead collector is detected within tens of seconds even with
// an empty send queue.
func setSockOpts(conn net.Conn, cfg *cmn.Config) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetKeepAlive(true); err != nil {
		return errors.Wrap(err, "SO_KEEPALIVE")
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	err = raw.Control(func(fd uintptr) {
		serr = setTCPOpts(int(fd), cfg)
	})
	if err != nil {
		return err
	}
	return serr
}

func setTCPOpts(fd int, cfg *cmn.Config) error {
	set := func(opt, val int, name string) error {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, opt, val); err != nil {
			return errors.Wrapf(err, "setsockopt %s=%d", name, val)
		}
		return nil
	}
	if err := set(unix.TCP_KEEPIDLE, secs(cfg.KeepaliveIdle), "TCP_KEEPIDLE"); err != nil {
		return err
	}
	if err := set(unix.TCP_KEEPINTVL, secs(cfg.KeepaliveInterval), "TCP_KEEPINTVL"); err != nil {
		return err
	}
	if err := set(unix.TCP_KEEPCNT, cfg.KeepaliveProbes, "TCP_KEEPCNT"); err != nil {
		return err
	}
	msec := int(cfg.TCPUserTimeout / time.Millisecond)
	return set(unix.TCP_USER_TIMEOUT, msec, "TCP_USER_TIMEOUT")
}

func secs(d time.Duration) int {
	if s := int(d / time.Second); s > 0 {
		return s
	}
	return 1
}
