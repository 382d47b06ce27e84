// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the error taxonomy of spec §7: a small set of
// kinds shared across discovery, health, and invocation, wrapped in a
// single Error type so callers can classify failures with errors.As
// without string-matching messages.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies a taxonomy bucket from spec §7.
type Kind string

// Taxonomy kinds. Names match the spec's error taxonomy table.
const (
	KindConfigError         Kind = "config_error"
	KindTransportError      Kind = "transport_error"
	KindAuthError           Kind = "auth_error"
	KindProtocolError       Kind = "protocol_error"
	KindToolError           Kind = "tool_error"
	KindInvalidToolID       Kind = "invalid_tool_id"
	KindUnknownTool         Kind = "unknown_tool"
	KindInvalidArguments    Kind = "invalid_arguments"
	KindBackendQuarantined  Kind = "backend_quarantined"
	KindCacheError          Kind = "cache_error"
	KindNotFound            Kind = "not_found"
	KindAlreadyExists       Kind = "already_exists"
	KindIOError             Kind = "io_error"
	KindTimeout             Kind = "timeout"
)

// Error is the concrete error type for the whole module. Backend is empty
// when the error isn't backend-scoped (e.g. InvalidToolId before any
// backend lookup happens).
type Error struct {
	Kind    Kind
	Backend string
	Message string
	Cause   error
}

// New constructs an Error. Cause may be nil.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NewBackend constructs a backend-scoped Error.
func NewBackend(kind Kind, backend, message string, cause error) *Error {
	return &Error{Kind: kind, Backend: backend, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Backend != "" {
		prefix = fmt.Sprintf("%s[%s]", e.Kind, e.Backend)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, allowing
// errors.Is(err, errors.New(KindBackendQuarantined, "", nil)) style checks
// as well as direct kind comparisons via Kind accessor helpers below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// returning ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Transient reports whether a Kind represents a transient failure that
// should count toward the Health Monitor's consecutive-failure counter
// rather than jumping straight to quarantine (spec §4.3).
func Transient(k Kind) bool {
	switch k {
	case KindTransportError, KindTimeout:
		return true
	default:
		return false
	}
}

// Permanent reports whether a Kind should jump a backend directly to
// quarantined regardless of the consecutive-failure counter (spec §4.3,
// §7: AuthError and ProtocolError are permanent).
func Permanent(k Kind) bool {
	switch k {
	case KindAuthError, KindProtocolError:
		return true
	default:
		return false
	}
}
