// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator implements the Orchestrator Facade (spec §4.12,
// component C12): the protocol-independent entry point composing every
// other component into the seven operations a wire binding exposes
// (start, find, run, addBackend/removeBackend, health, shutdown).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/stacklok/toolgate/pkg/backendtransport"
	"github.com/stacklok/toolgate/pkg/discovery"
	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
	"github.com/stacklok/toolgate/pkg/finder"
	"github.com/stacklok/toolgate/pkg/health"
	"github.com/stacklok/toolgate/pkg/logger"
	"github.com/stacklok/toolgate/pkg/patcher"
	"github.com/stacklok/toolgate/pkg/pool"
	"github.com/stacklok/toolgate/pkg/router"
)

// ProfileStore narrows pkg/profile.Store to what the facade needs, so
// tests can substitute an in-memory fake.
type ProfileStore interface {
	Get(name string) (domain.LaunchSpec, error)
	List() (map[string]domain.LaunchSpec, error)
	Add(spec domain.LaunchSpec) error
	Upsert(spec domain.LaunchSpec) error
	Remove(name string) error
	ProfileHash() (string, error)
}

// Orchestrator wires the Profile Store, Health Monitor, Discovery
// Worker, Cache Patcher, Semantic Finder, Invocation Router and
// Connection Pool into the operations a wire binding calls.
type Orchestrator struct {
	profile ProfileStore
	health  *health.Monitor
	worker  *discovery.Worker
	patcher *patcher.Patcher
	finder  *finder.Finder
	router  *router.Router
	pool    *pool.Pool

	idleEviction time.Duration
	stopSweep    chan struct{}
}

// Deps bundles the already-constructed components an Orchestrator
// composes; every field is built by cmd/toolgate's wiring step from a
// config.Config before being handed here.
type Deps struct {
	Profile      ProfileStore
	Health       *health.Monitor
	Worker       *discovery.Worker
	Patcher      *patcher.Patcher
	Finder       *finder.Finder
	Router       *router.Router
	Pool         *pool.Pool
	IdleEviction time.Duration
}

// New constructs an Orchestrator from already-wired dependencies.
func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		profile:      d.Profile,
		health:       d.Health,
		worker:       d.Worker,
		patcher:      d.Patcher,
		finder:       d.Finder,
		router:       d.Router,
		pool:         d.Pool,
		idleEviction: d.IdleEviction,
	}
	if o.patcher != nil {
		o.patcher.OnPatch(func(ev patcher.Event) {
			patchesTotal.WithLabelValues(string(ev.Kind)).Inc()
		})
	}
	return o
}

// Start reconciles the cache against the current profile (spec §4.8
// reconcile: a backend whose configHash or cache schema no longer
// matches is rediscovered) and starts the idle-connection sweeper.
func (o *Orchestrator) Start(ctx context.Context) error {
	specs, err := o.profile.List()
	if err != nil {
		return fmt.Errorf("listing profile for startup reconcile: %w", err)
	}

	if err := o.patcher.Reconcile(ctx, specs, rediscovererFunc(o.timedDiscoverOne)); err != nil {
		return fmt.Errorf("reconciling cache against profile: %w", err)
	}

	if o.idleEviction > 0 {
		o.stopSweep = make(chan struct{})
		go o.sweepIdleConnections()
	}
	return nil
}

type rediscovererFunc func(ctx context.Context, spec domain.LaunchSpec) (domain.ServerInfo, []domain.ToolDescriptor, error)

func (f rediscovererFunc) DiscoverOne(ctx context.Context, spec domain.LaunchSpec) (domain.ServerInfo, []domain.ToolDescriptor, error) {
	return f(ctx, spec)
}

// timedDiscoverOne wraps the Discovery Worker's DiscoverOne with the
// discovery_duration_seconds histogram.
func (o *Orchestrator) timedDiscoverOne(ctx context.Context, spec domain.LaunchSpec) (domain.ServerInfo, []domain.ToolDescriptor, error) {
	start := time.Now()
	info, tools, err := o.worker.DiscoverOne(ctx, spec)
	result := "ok"
	if err != nil {
		result = "error"
	}
	discoveryDuration.WithLabelValues(spec.Name, result).Observe(time.Since(start).Seconds())
	return info, tools, err
}

func (o *Orchestrator) sweepIdleConnections() {
	ticker := time.NewTicker(o.idleEviction)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.pool.EvictIdle(o.idleEviction)
			o.sampleGauges()
		case <-o.stopSweep:
			return
		}
	}
}

// sampleGauges refreshes the ambient pool-occupancy and quarantine
// gauges; called on the idle-sweep cadence rather than per-request.
func (o *Orchestrator) sampleGauges() {
	poolOpenConnections.Set(float64(o.pool.Len()))

	quarantined := 0
	for _, state := range o.health.AllStates() {
		if state.Status == domain.HealthQuarantined {
			quarantined++
		}
	}
	quarantinedBackends.Set(float64(quarantined))
}

// Find delegates to the Semantic Finder (spec §4.9).
func (o *Orchestrator) Find(ctx context.Context, query string, opts finder.Options) ([]finder.Match, error) {
	return o.finder.Find(ctx, query, opts)
}

// Run delegates to the Invocation Router (spec §4.10).
func (o *Orchestrator) Run(ctx context.Context, qualifiedName string, args map[string]any) (*backendtransport.ToolResult, error) {
	return o.router.Run(ctx, qualifiedName, args)
}

// Health returns every backend's current health state (spec §4.3).
func (o *Orchestrator) Health() map[string]domain.HealthState {
	return o.health.AllStates()
}

// DiscoveryReport is what AddBackend returns after onboarding a backend:
// the server handshake plus every tool it exposed (spec §4.12
// addBackend).
type DiscoveryReport struct {
	Backend    string
	ServerInfo domain.ServerInfo
	Tools      []domain.ToolDescriptor
}

// AddBackend upserts spec into the profile, discovers its tools, and
// patches the caches, in that order so a discovery failure never leaves
// a backend registered with stale or absent metadata (spec §4.12
// addBackend: adding a backend under a name that's already configured
// replaces its launch spec rather than failing).
func (o *Orchestrator) AddBackend(ctx context.Context, spec domain.LaunchSpec) (DiscoveryReport, error) {
	if err := o.profile.Upsert(spec); err != nil {
		return DiscoveryReport{}, err
	}

	info, tools, err := o.timedDiscoverOne(ctx, spec)
	if err != nil {
		return DiscoveryReport{}, fmt.Errorf("discovering backend %s: %w", spec.Name, err)
	}

	newHash, err := o.profileHashAfterChange()
	if err != nil {
		return DiscoveryReport{}, err
	}

	discovered := patcher.Discovered{
		Backend:     spec.Name,
		ConfigHash:  spec.ConfigHash(),
		ServerInfo:  info,
		Tools:       tools,
		Category:    spec.Category,
		Description: spec.Description,
	}
	if err := o.patcher.PatchAdd(ctx, discovered, newHash); err != nil {
		return DiscoveryReport{}, fmt.Errorf("patching caches for backend %s: %w", spec.Name, err)
	}

	return DiscoveryReport{Backend: spec.Name, ServerInfo: info, Tools: tools}, nil
}

// RemoveBackend deregisters a backend, drops its cached tools and
// vectors, and discards its pooled connection so no in-flight run can
// reach it again (spec §4.12 removeBackend).
func (o *Orchestrator) RemoveBackend(name string) error {
	if err := o.profile.Remove(name); err != nil {
		return err
	}

	newHash, err := o.profileHashAfterChange()
	if err != nil {
		return err
	}

	if err := o.patcher.PatchRemove(name, newHash); err != nil {
		return fmt.Errorf("patching caches for removed backend %s: %w", name, err)
	}

	o.pool.Discard(name)
	o.health.Forget(name)
	return nil
}

func (o *Orchestrator) profileHashAfterChange() (string, error) {
	hash, err := o.profile.ProfileHash()
	if err != nil {
		return "", tgerrors.New(tgerrors.KindCacheError, "computing profile hash after change", err)
	}
	return hash, nil
}

// Shutdown drains the connection pool and stops the idle sweeper (spec
// §4.12 shutdown).
func (o *Orchestrator) Shutdown() {
	if o.stopSweep != nil {
		close(o.stopSweep)
	}
	o.pool.Drain()
	logger.Info("orchestrator shut down")
}
