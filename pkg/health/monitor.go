// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"sync"
	"time"

	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
)

// DefaultThreshold is K in "K consecutive failures quarantines a
// backend" (spec §4.3).
const DefaultThreshold = 3

// DefaultCoolOff is how long a quarantined backend waits before a
// single probe attempt is allowed through (spec §4.3 "10-minute
// cool-off").
const DefaultCoolOff = 10 * time.Minute

// Monitor tracks one circuit per backend name.
type Monitor struct {
	threshold int
	coolOff   time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	circuits map[string]*circuit
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(n int) Option {
	return func(m *Monitor) { m.threshold = n }
}

// WithCoolOff overrides DefaultCoolOff.
func WithCoolOff(d time.Duration) Option {
	return func(m *Monitor) { m.coolOff = d }
}

// withClock overrides the time source; test-only.
func withClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor constructs a Monitor with DefaultThreshold/DefaultCoolOff
// unless overridden.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		threshold: DefaultThreshold,
		coolOff:   DefaultCoolOff,
		now:       time.Now,
		circuits:  make(map[string]*circuit),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) circuitFor(backend string) *circuit {
	m.mu.RLock()
	c, ok := m.circuits[backend]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.circuits[backend]; ok {
		return c
	}
	c = newCircuit(m.threshold, m.coolOff)
	m.circuits[backend] = c
	return c
}

// CanAttempt reports whether backend may currently be dialed/invoked
// (spec §4.10 step 1: "reject immediately if quarantined").
func (m *Monitor) CanAttempt(backend string) bool {
	return m.circuitFor(backend).canAttempt(m.now())
}

// RecordSuccess marks a successful call against backend.
func (m *Monitor) RecordSuccess(backend string) {
	m.circuitFor(backend).recordSuccess(m.now())
}

// RecordFailure marks a failed call against backend, classifying err
// via pkg/errors to decide whether it counts toward the consecutive
// failure threshold or forces immediate quarantine (spec §4.3
// "permanent failures quarantine without waiting for the threshold").
func (m *Monitor) RecordFailure(backend string, err error) {
	kind, _ := tgerrors.KindOf(err)
	permanent := tgerrors.Permanent(kind)
	m.circuitFor(backend).recordFailure(m.now(), kind, permanent)
}

// State returns the current HealthState for backend, or the zero
// value with ok=false if no outcome has ever been recorded for it.
func (m *Monitor) State(backend string) (domain.HealthState, bool) {
	m.mu.RLock()
	c, ok := m.circuits[backend]
	m.mu.RUnlock()
	if !ok {
		return domain.HealthState{}, false
	}
	return c.snapshot(), true
}

// AllStates returns a snapshot of every tracked backend's HealthState.
func (m *Monitor) AllStates() map[string]domain.HealthState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]domain.HealthState, len(m.circuits))
	for name, c := range m.circuits {
		out[name] = c.snapshot()
	}
	return out
}

// Forget drops all tracked state for backend, e.g. after it's removed
// from the active profile.
func (m *Monitor) Forget(backend string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.circuits, backend)
}
