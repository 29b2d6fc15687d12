// Package cmn provides types and constants shared by all sandesh subsystems.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"errors"
	"fmt"
)

type (
	// ErrFraming is unrecoverable on the current connection: the byte
	// stream can no longer be resynchronized and the session must close.
	ErrFraming struct {
		what string
	}
	ErrUnknownType struct {
		kind, name string
	}
)

var (
	ErrSessionClosed = errors.New("session already closed")
	ErrQueueStopped  = errors.New("send queue stopped")
)

func NewErrFraming(format string, a ...any) *ErrFraming {
	return &ErrFraming{fmt.Sprintf(format, a...)}
}

func (e *ErrFraming) Error() string { return "framing error: " + e.what }

func IsErrFraming(err error) bool {
	var e *ErrFraming
	return errors.As(err, &e)
}

func NewErrUnknownType(kind, name string) *ErrUnknownType {
	return &ErrUnknownType{kind: kind, name: name}
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown %s %q", e.kind, e.name)
}
