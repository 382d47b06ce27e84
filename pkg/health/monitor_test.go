// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
)

// fakeClock lets tests advance time deterministically instead of
// sleeping on the cool-off window.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestMonitor(clock *fakeClock, threshold int, coolOff time.Duration) *Monitor {
	return NewMonitor(WithThreshold(threshold), WithCoolOff(coolOff), withClock(clock.now))
}

func TestMonitor_NewBackendStartsHealthy(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock, 3, time.Minute)

	assert.True(t, m.CanAttempt("fs"))
	_, ok := m.State("fs")
	assert.False(t, ok, "no outcome recorded yet")
}

func TestMonitor_BelowThreshold_StaysDegradedNotQuarantined(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock, 3, time.Minute)

	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "timeout", nil))
	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "timeout", nil))

	state, ok := m.State("fs")
	require.True(t, ok)
	assert.Equal(t, domain.HealthDegraded, state.Status)
	assert.Equal(t, 2, state.ConsecutiveFailures)
	assert.True(t, m.CanAttempt("fs"))
}

func TestMonitor_ReachingThreshold_Quarantines(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock, 3, time.Minute)

	for i := 0; i < 3; i++ {
		m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "timeout", nil))
	}

	state, ok := m.State("fs")
	require.True(t, ok)
	assert.Equal(t, domain.HealthQuarantined, state.Status)
	assert.False(t, m.CanAttempt("fs"))
}

func TestMonitor_PermanentError_QuarantinesImmediately(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock, 3, time.Minute)

	m.RecordFailure("gh", tgerrors.New(tgerrors.KindAuthError, "invalid credentials", nil))

	state, ok := m.State("gh")
	require.True(t, ok)
	assert.Equal(t, domain.HealthQuarantined, state.Status)
	assert.Equal(t, 1, state.ConsecutiveFailures)
}

func TestMonitor_Success_ResetsToHealthy(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock, 3, time.Minute)

	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "timeout", nil))
	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "timeout", nil))
	m.RecordSuccess("fs")

	state, ok := m.State("fs")
	require.True(t, ok)
	assert.Equal(t, domain.HealthHealthy, state.Status)
	assert.Equal(t, 0, state.ConsecutiveFailures)
	assert.True(t, m.CanAttempt("fs"))
}

func TestMonitor_CoolOff_AllowsSingleProbe(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock, 2, 10*time.Minute)

	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "x", nil))
	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "x", nil))
	require.False(t, m.CanAttempt("fs"))

	clock.advance(9 * time.Minute)
	assert.False(t, m.CanAttempt("fs"), "cool-off has not elapsed yet")

	clock.advance(2 * time.Minute)
	assert.True(t, m.CanAttempt("fs"), "cool-off elapsed, single probe allowed")
	assert.False(t, m.CanAttempt("fs"), "a second concurrent probe is rejected")
}

func TestMonitor_ProbeSuccess_ClosesCircuit(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock, 2, time.Minute)

	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "x", nil))
	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "x", nil))

	clock.advance(2 * time.Minute)
	require.True(t, m.CanAttempt("fs"))

	m.RecordSuccess("fs")
	state, _ := m.State("fs")
	assert.Equal(t, domain.HealthHealthy, state.Status)
	assert.True(t, m.CanAttempt("fs"))
}

func TestMonitor_ProbeFailure_ReQuarantines(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock, 2, time.Minute)

	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "x", nil))
	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "x", nil))

	clock.advance(2 * time.Minute)
	require.True(t, m.CanAttempt("fs"))

	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "x", nil))
	state, _ := m.State("fs")
	assert.Equal(t, domain.HealthQuarantined, state.Status)
	assert.False(t, m.CanAttempt("fs"))
}

func TestMonitor_RepeatedProbeFailure_GrowsCoolOff(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock, 2, time.Minute)

	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "x", nil))
	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "x", nil))

	clock.advance(time.Minute + time.Second)
	require.True(t, m.CanAttempt("fs"))
	m.RecordFailure("fs", tgerrors.New(tgerrors.KindTransportError, "x", nil))

	// second cool-off window is longer than the first; one minute is
	// no longer enough to allow another probe.
	clock.advance(time.Minute + time.Second)
	assert.False(t, m.CanAttempt("fs"), "backoff should have grown past one minute")
}

func TestMonitor_AllStates_SnapshotsEveryBackend(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock, 3, time.Minute)

	m.RecordSuccess("fs")
	m.RecordFailure("gh", tgerrors.New(tgerrors.KindAuthError, "bad token", nil))

	all := m.AllStates()
	require.Len(t, all, 2)
	assert.Equal(t, domain.HealthHealthy, all["fs"].Status)
	assert.Equal(t, domain.HealthQuarantined, all["gh"].Status)
}

func TestMonitor_Forget_DropsState(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock, 3, time.Minute)

	m.RecordSuccess("fs")
	m.Forget("fs")

	_, ok := m.State("fs")
	assert.False(t, ok)
}
