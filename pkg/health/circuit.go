// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package health implements the Health Monitor (spec §4.3, component
// C3): a per-backend state machine tracking healthy -> degraded ->
// quarantined transitions from a stream of invocation outcomes, with
// an automatic cool-off reset out of quarantine.
package health

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
)

// circuit is one backend's state machine. It mirrors a classic circuit
// breaker (closed/open/half-open) but is named and shaped for the
// spec's three-state vocabulary: healthy maps to closed, quarantined
// to open, and the cool-off probe to half-open.
//
// The cool-off itself grows with repeated re-quarantines (a backend
// that fails its probe and goes straight back to quarantine waits
// longer next time, capped) via a backoff.ExponentialBackOff rather
// than a fixed interval, so a persistently broken backend doesn't
// spend the pool's attention budget on retry churn.
type circuit struct {
	mu sync.Mutex

	threshold int
	backoff   *backoff.ExponentialBackOff
	coolOff   time.Duration // current wait, advanced on each quarantine

	status          domain.HealthStatus
	consecutiveFail int
	lastFailureAt   time.Time
	lastFailureKind tgerrors.Kind
	quarantinedAt   time.Time
	probing         bool
}

func newCircuit(threshold int, coolOff time.Duration) *circuit {
	if threshold < 1 {
		threshold = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = coolOff
	b.MaxInterval = coolOff * 6
	b.Multiplier = 2
	return &circuit{
		threshold: threshold,
		backoff:   b,
		coolOff:   coolOff,
		status:    domain.HealthHealthy,
	}
}

// canAttempt reports whether a new call may be dispatched to this
// backend. A quarantined circuit only allows a call once the cool-off
// has elapsed, and then allows exactly one probing attempt at a time
// (spec §4.3 "single probe during cool-off").
func (c *circuit) canAttempt(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != domain.HealthQuarantined {
		return true
	}
	if c.probing {
		return false
	}
	if now.Sub(c.quarantinedAt) < c.coolOff {
		return false
	}
	c.probing = true
	return true
}

// recordSuccess clears consecutive failures and restores health. A
// backend recovering from degraded lands back at healthy directly
// (spec §4.3 has no separate "recovering" state).
func (c *circuit) recordSuccess(_ time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFail = 0
	c.status = domain.HealthHealthy
	c.probing = false
	c.backoff.Reset()
	c.coolOff = c.backoff.InitialInterval
}

// recordFailure advances the failure count and, once it reaches
// threshold, quarantines the backend (spec §4.3 "K=3 consecutive
// failures"). permanent forces immediate quarantine regardless of
// count, since a permanent error (AuthError, ProtocolError) will not
// self-heal by retrying.
func (c *circuit) recordFailure(now time.Time, kind tgerrors.Kind, permanent bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFail++
	c.lastFailureAt = now
	c.lastFailureKind = kind
	c.probing = false

	switch {
	case permanent || c.consecutiveFail >= c.threshold:
		if c.status == domain.HealthQuarantined {
			// re-quarantined after a failed probe: back off further
			c.coolOff = c.backoff.NextBackOff()
		}
		c.status = domain.HealthQuarantined
		c.quarantinedAt = now
	case c.consecutiveFail > 0:
		c.status = domain.HealthDegraded
	}
}

func (c *circuit) snapshot() domain.HealthState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return domain.HealthState{
		Status:              c.status,
		ConsecutiveFailures: c.consecutiveFail,
		LastFailureAt:       c.lastFailureAt,
		LastFailureKind:     c.lastFailureKind,
		QuarantinedAt:       c.quarantinedAt,
	}
}
