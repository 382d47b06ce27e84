// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package router implements the Invocation Router (spec §4.10,
// component C10): the `run` operation exposed to clients, validating a
// qualified tool call against the Tool Metadata Cache and Health
// Monitor before dispatching it through a pooled connection.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/toolgate/pkg/backendtransport"
	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
	"github.com/stacklok/toolgate/pkg/pool"
)

// DefaultDeadline is the per-call timeout unless the caller overrides
// it (spec §4.10 step 6: "default 60 seconds").
const DefaultDeadline = 60 * time.Second

// MetadataSource is the read surface the Router needs from the Tool
// Metadata Cache.
type MetadataSource interface {
	Snapshot() map[string]domain.BackendRecord
}

// ProfileSource resolves a backend's LaunchSpec, needed to dial a
// connection the pool hasn't already got warm. pkg/profile.Store
// satisfies this directly.
type ProfileSource interface {
	Get(backend string) (domain.LaunchSpec, error)
}

// HealthChecker is the health-state surface the Router consults and
// updates around every call (spec §4.10 steps 3 and 7).
type HealthChecker interface {
	CanAttempt(backend string) bool
	RecordSuccess(backend string)
	RecordFailure(backend string, err error)
}

// Connector acquires a pooled connection for a backend.
type Connector interface {
	Acquire(ctx context.Context, backend string, spec domain.LaunchSpec) (*pool.Lease, error)
}

// Router dispatches `run` calls per spec §4.10's seven-step algorithm.
type Router struct {
	metadata MetadataSource
	profile  ProfileSource
	health   HealthChecker
	conns    Connector
	deadline time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithDeadline overrides DefaultDeadline.
func WithDeadline(d time.Duration) Option {
	return func(r *Router) { r.deadline = d }
}

// New returns a Router over metadata/profile/health/conns.
func New(metadata MetadataSource, profile ProfileSource, health HealthChecker, conns Connector, opts ...Option) *Router {
	r := &Router{metadata: metadata, profile: profile, health: health, conns: conns, deadline: DefaultDeadline}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run invokes qualifiedName with args, returning the backend's
// ToolResult verbatim (including a structured ToolError, which is a
// result, not a failure) or an *tgerrors.Error classifying why the call
// never completed.
func (r *Router) Run(ctx context.Context, qualifiedName string, args map[string]any) (*backendtransport.ToolResult, error) {
	backend, toolName, err := domain.SplitQualifiedID(qualifiedName)
	if err != nil {
		return nil, err
	}

	record, ok := r.metadata.Snapshot()[backend]
	if !ok {
		return nil, tgerrors.NewBackend(tgerrors.KindUnknownTool, backend, fmt.Sprintf("unknown backend %q", backend), nil)
	}
	tool, ok := findTool(record.Tools, toolName)
	if !ok {
		return nil, tgerrors.NewBackend(tgerrors.KindUnknownTool, backend, fmt.Sprintf("backend %q has no tool %q", backend, toolName), nil)
	}

	if !r.health.CanAttempt(backend) {
		return nil, tgerrors.NewBackend(tgerrors.KindBackendQuarantined, backend, "backend is quarantined", nil)
	}

	if msgs := validateArgs(tool.InputSchema, args); len(msgs) > 0 {
		return nil, tgerrors.NewBackend(tgerrors.KindInvalidArguments, backend, joinMessages(msgs), nil)
	}

	spec, err := r.profile.Get(backend)
	if err != nil {
		return nil, err
	}

	lease, err := r.conns.Acquire(ctx, backend, spec)
	if err != nil {
		kind, _ := tgerrors.KindOf(err)
		if kind != tgerrors.KindBackendQuarantined {
			r.health.RecordFailure(backend, err)
		}
		return nil, err
	}
	defer lease.Release()

	callCtx, cancel := context.WithTimeout(ctx, r.deadline)
	defer cancel()

	result, err := lease.Channel.CallTool(callCtx, toolName, args)
	if err != nil {
		classified := classifyCallError(backend, err)
		r.health.RecordFailure(backend, classified)
		return nil, classified
	}

	// A structured ToolError from the backend is a result, not a
	// transport failure (spec §4.10 step 7).
	r.health.RecordSuccess(backend)
	return result, nil
}

func findTool(tools []domain.ToolDescriptor, name string) (domain.ToolDescriptor, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return domain.ToolDescriptor{}, false
}

func classifyCallError(backend string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return tgerrors.NewBackend(tgerrors.KindTimeout, backend, "tool call timed out", err)
	}
	if kind, ok := tgerrors.KindOf(err); ok {
		return tgerrors.NewBackend(kind, backend, "tool call failed", err)
	}
	return tgerrors.NewBackend(tgerrors.KindTransportError, backend, "tool call failed", err)
}

func joinMessages(msgs []string) string {
	out := msgs[0]
	for _, m := range msgs[1:] {
		out += "; " + m
	}
	return out
}
