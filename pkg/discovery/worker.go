// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package discovery implements the Discovery Worker (spec §4.4,
// component C4): for each backend in the active profile, open a
// transport, perform the MCP handshake, list its tools, and close —
// tolerating individual backend failures so one broken backend never
// blocks discovery of the rest (grounded on the teacher's
// aggregator.QueryAllCapabilities "graceful handling of partial
// failures" behavior).
package discovery

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/stacklok/toolgate/pkg/backendtransport"
	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
	"github.com/stacklok/toolgate/pkg/logger"
)

// DefaultConcurrency bounds how many backends are discovered at once
// (spec §4.4 "default 5").
const DefaultConcurrency = 5

// DefaultDeadline is the hard per-backend timeout for the whole
// open-initialize-list-close sequence (spec §4.4 "30s hard deadline").
const DefaultDeadline = 30 * time.Second

// Result is one backend's discovery outcome. Exactly one of (ServerInfo,
// Tools) or Err is meaningful, mirroring the spec's
// "DiscoveryResult = Ok{...} | Err{...}" sum type.
type Result struct {
	Backend    string
	ServerInfo domain.ServerInfo
	Tools      []domain.ToolDescriptor
	Err        error
}

// Dialer is the subset of backendtransport.Factory the worker needs,
// narrowed for testability.
type Dialer interface {
	Dial(ctx context.Context, spec domain.LaunchSpec) (backendtransport.Channel, error)
}

// Worker runs discovery across a set of backends with bounded
// concurrency and a paced dial rate.
type Worker struct {
	dialer      Dialer
	concurrency int
	deadline    time.Duration
	limiter     *rate.Limiter
}

// Option configures a Worker.
type Option func(*Worker)

// WithConcurrency overrides DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(w *Worker) { w.concurrency = n }
}

// WithDeadline overrides DefaultDeadline.
func WithDeadline(d time.Duration) Option {
	return func(w *Worker) { w.deadline = d }
}

// NewWorker constructs a Worker over dialer.
func NewWorker(dialer Dialer, opts ...Option) *Worker {
	w := &Worker{
		dialer:      dialer,
		concurrency: DefaultConcurrency,
		deadline:    DefaultDeadline,
	}
	for _, opt := range opts {
		opt(w)
	}
	// Paces dials at one per 20ms (50/s) so a large profile's cold
	// start doesn't thrash the OS/process table, while staying well
	// above any realistic backend count (spec §4.4 "paces concurrent
	// backend dials").
	w.limiter = rate.NewLimiter(rate.Limit(50), w.concurrency)
	return w
}

// Discover runs discovery for every spec concurrently, bounded by
// w.concurrency, returning one Result per spec in unspecified order.
func (w *Worker) Discover(ctx context.Context, specs []domain.LaunchSpec) []Result {
	results := make([]Result, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			if err := w.limiter.Wait(gctx); err != nil {
				results[i] = Result{Backend: spec.Name, Err: tgerrors.NewBackend(tgerrors.KindTransportError, spec.Name, "waiting for dial slot", err)}
				return nil
			}
			results[i] = w.discoverOne(gctx, spec)
			return nil
		})
	}
	// errgroup's Go never returns a non-nil error here (each goroutine
	// always records its outcome into results and returns nil), so the
	// group can't fail; Wait only blocks until all finish.
	_ = g.Wait()

	return results
}

// DiscoverOne dials a single backend and returns its server info and
// tool list, satisfying pkg/patcher.Rediscoverer for the reconcile path.
func (w *Worker) DiscoverOne(ctx context.Context, spec domain.LaunchSpec) (domain.ServerInfo, []domain.ToolDescriptor, error) {
	result := w.discoverOne(ctx, spec)
	return result.ServerInfo, result.Tools, result.Err
}

func (w *Worker) discoverOne(ctx context.Context, spec domain.LaunchSpec) Result {
	ctx, cancel := context.WithTimeout(ctx, w.deadline)
	defer cancel()

	channel, err := w.dialer.Dial(ctx, spec)
	if err != nil {
		logger.Warn(fmt.Sprintf("discovery: dial failed for %s: %v", spec.Name, err))
		return Result{Backend: spec.Name, Err: err}
	}
	defer channel.Close()

	info, err := channel.Initialize(ctx)
	if err != nil {
		logger.Warn(fmt.Sprintf("discovery: initialize failed for %s: %v", spec.Name, err))
		return Result{Backend: spec.Name, Err: err}
	}

	tools, err := channel.ListTools(ctx)
	if err != nil {
		logger.Warn(fmt.Sprintf("discovery: list_tools failed for %s: %v", spec.Name, err))
		return Result{Backend: spec.Name, Err: err}
	}

	return Result{Backend: spec.Name, ServerInfo: info, Tools: tools}
}
