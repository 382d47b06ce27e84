// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logger provides a process-wide structured logger for toolgate.
//
// It wraps the standard library's log/slog the way the rest of the
// ambient stack wraps small, well-understood libraries: a single
// lazily-initialized singleton, a debug toggle driven by the
// TOOLGATE_DEBUG_LOGGING environment input (spec §6 "debug_logging"),
// and a handful of printf-style helpers so call sites don't need to
// import log/slog directly.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

var (
	singleton   atomic.Pointer[slog.Logger]
	initOnce    sync.Once
	debugLogger bool
)

// Initialize sets up the singleton logger. Safe to call more than once;
// only the first call takes effect. Subsequent calls are no-ops so that
// cobra's PersistentPreRun can call it unconditionally on every command.
func Initialize() {
	initOnce.Do(func() {
		debugLogger = debugEnabled(os.Getenv("TOOLGATE_DEBUG_LOGGING"))
		level := slog.LevelInfo
		if debugLogger {
			level = slog.LevelDebug
		}
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		singleton.Store(slog.New(handler))
	})
}

func debugEnabled(v string) bool {
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// get returns the singleton, initializing it with defaults if Initialize
// was never called (useful in unit tests that don't go through cmd/).
func get() *slog.Logger {
	if l := singleton.Load(); l != nil {
		return l
	}
	Initialize()
	return singleton.Load()
}

// Debugf logs at debug level.
func Debugf(format string, args ...any) { get().Debug(sprintf(format, args...)) }

// Infof logs at info level.
func Infof(format string, args ...any) { get().Info(sprintf(format, args...)) }

// Warnf logs at warn level.
func Warnf(format string, args ...any) { get().Warn(sprintf(format, args...)) }

// Errorf logs at error level.
func Errorf(format string, args ...any) { get().Error(sprintf(format, args...)) }

// Info logs a plain message at info level.
func Info(msg string) { get().Info(msg) }

// Warn logs a plain message at warn level.
func Warn(msg string) { get().Warn(msg) }

// Error logs a plain message at error level.
func Error(msg string) { get().Error(msg) }

// With returns a logger scoped with the given key/value pairs, for call
// sites that want structured fields instead of a formatted string (e.g.
// component = "discovery", backend = name).
func With(args ...any) *slog.Logger { return get().With(args...) }

// FromContext returns a logger carrying fields stashed by WithContext, or
// the singleton if none were.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return get()
}

// WithContext returns a context carrying the given logger for downstream
// FromContext calls; used so a backend name or request ID attached at the
// orchestrator boundary propagates through discovery/health/router logs
// without threading an extra parameter through every signature.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

type ctxKey struct{}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
