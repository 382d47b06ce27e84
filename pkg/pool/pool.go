// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pool implements the Connection Pool (spec §4.11, component
// C11): a bounded LRU of live backend channels, shared by the
// Invocation Router across calls so a backend's handshake cost is
// paid once per MAX_REUSE executions rather than once per call.
package pool

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stacklok/toolgate/pkg/backendtransport"
	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
)

// Defaults per spec §4.11.
const (
	DefaultMaxOpen   = 50
	DefaultMaxReuse  = 1000
	DefaultIdleEvict = 5 * time.Minute
)

// Dialer opens a Channel for one backend's LaunchSpec, narrowed from
// backendtransport.Factory for testability.
type Dialer interface {
	Dial(ctx context.Context, spec domain.LaunchSpec) (backendtransport.Channel, error)
}

// Monitor is the health-check surface the pool consults before handing
// out a connection (spec §4.11 "never hands out a connection to a
// quarantined backend").
type Monitor interface {
	CanAttempt(backend string) bool
}

// entry is one pooled connection, tracked on the LRU list keyed by
// backend name (grounded on the teacher's container/list-based LRU in
// cmd/thv-operator/pkg/optimizer/embeddings/cache.go, generalized from
// an embedding-vector cache to a live-connection pool). refCount tracks
// concurrent leases sharing this same channel (spec §4.10: concurrent
// calls to one backend multiplex over its single connection via
// JSON-RPC id, they don't each get an exclusive channel). retired marks
// an entry that has been unindexed (past maxReuse, evicted, or
// discarded) but is still closed lazily, once its last lease releases.
type entry struct {
	backend        string
	channel        backendtransport.Channel
	executionCount int
	lastUsedAt     time.Time
	refCount       int
	retired        bool
	closed         bool
}

// closeOnce closes e's channel at most once, so a retire path and a
// later release draining to zero refs can't double-close it.
func (e *entry) closeOnce() {
	if e.closed {
		return
	}
	e.closed = true
	_ = e.channel.Close()
}

// Pool is a bounded LRU of backendtransport.Channel, one entry per
// backend, reused up to maxReuse executions before being recycled.
type Pool struct {
	dialer  Dialer
	monitor Monitor

	maxOpen  int
	maxReuse int

	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List

	connects singleflight.Group
}

// Option configures a Pool.
type Option func(*Pool)

// WithMaxOpen overrides DefaultMaxOpen.
func WithMaxOpen(n int) Option {
	return func(p *Pool) { p.maxOpen = n }
}

// WithMaxReuse overrides DefaultMaxReuse.
func WithMaxReuse(n int) Option {
	return func(p *Pool) { p.maxReuse = n }
}

// New constructs a Pool dialing through dialer, consulting monitor
// before every acquire.
func New(dialer Dialer, monitor Monitor, opts ...Option) *Pool {
	p := &Pool{
		dialer:   dialer,
		monitor:  monitor,
		maxOpen:  DefaultMaxOpen,
		maxReuse: DefaultMaxReuse,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Lease is a checked-out connection; the caller must Release it
// exactly once when done. Concurrent acquires for the same backend can
// return Leases pointing at the same entry (spec §4.10 multiplexing),
// so Release always operates on the exact list element the Lease was
// issued against rather than re-resolving backend by name.
type Lease struct {
	Backend string
	Channel backendtransport.Channel

	pool *Pool
	el   *list.Element
}

// Acquire returns a live channel for backend, dialing via spec if none
// is pooled or the pooled one has reached maxReuse (spec §4.11
// acquire). Concurrent acquires for the same backend share both the
// in-flight dial and, once dialed, the same pooled channel — at most
// one live connection is ever open per backend (spec I5).
func (p *Pool) Acquire(ctx context.Context, backend string, spec domain.LaunchSpec) (*Lease, error) {
	if p.monitor != nil && !p.monitor.CanAttempt(backend) {
		return nil, tgerrors.NewBackend(tgerrors.KindBackendQuarantined, backend, "backend is quarantined", nil)
	}

	p.mu.Lock()
	if el, ok := p.items[backend]; ok {
		e := el.Value.(*entry)
		if e.executionCount < p.maxReuse {
			p.lru.MoveToFront(el)
			e.executionCount++
			e.refCount++
			e.lastUsedAt = time.Now()
			p.mu.Unlock()
			return &Lease{Backend: backend, Channel: e.channel, pool: p, el: el}, nil
		}
		p.retireLocked(el)
	}
	p.mu.Unlock()

	ch, err, _ := p.connects.Do(backend, func() (any, error) {
		return p.dialer.Dial(ctx, spec)
	})
	if err != nil {
		return nil, tgerrors.NewBackend(tgerrors.KindTransportError, backend, "dialing backend", err)
	}
	channel := ch.(backendtransport.Channel)

	p.mu.Lock()
	if el, ok := p.items[backend]; ok {
		// Another Acquire installed backend's entry while this one was
		// dialing (e.g. its own singleflight call had already returned
		// and released the key before this one started). Reuse the
		// entry already indexed instead of overwriting it, which would
		// otherwise orphan it on the LRU.
		e := el.Value.(*entry)
		p.lru.MoveToFront(el)
		e.executionCount++
		e.refCount++
		e.lastUsedAt = time.Now()
		p.mu.Unlock()
		if channel != e.channel {
			_ = channel.Close()
		}
		return &Lease{Backend: backend, Channel: e.channel, pool: p, el: el}, nil
	}
	p.evictIfFullLocked(backend)
	el := p.lru.PushFront(&entry{backend: backend, channel: channel, executionCount: 1, refCount: 1, lastUsedAt: time.Now()})
	p.items[backend] = el
	p.mu.Unlock()

	return &Lease{Backend: backend, Channel: channel, pool: p, el: el}, nil
}

// Release returns a leased connection to the pool, recycling it once
// its last concurrent lease has released and it has reached maxReuse
// (spec §4.11 release). A Lease built outside the pool (as tests do,
// to stub out a Connector) has a nil pool and Release is a no-op.
func (l *Lease) Release() {
	if l.pool == nil {
		return
	}
	l.pool.release(l.el)
}

func (p *Pool) release(el *list.Element) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := el.Value.(*entry)
	e.refCount--
	e.lastUsedAt = time.Now()

	if e.retired {
		if e.refCount == 0 {
			e.closeOnce()
		}
		return
	}
	if e.executionCount >= p.maxReuse && e.refCount == 0 {
		if cur, ok := p.items[e.backend]; ok && cur == el {
			p.lru.Remove(cur)
			delete(p.items, e.backend)
		}
		e.closeOnce()
	}
}

// Discard closes and drops backend's pooled connection immediately,
// used when a caller cancels an in-flight run to guarantee the backend
// stops work (spec §5 "cancellation ... closes the pooled connection").
// Any other lease still holding this entry will observe a closed
// channel on its next use, the intended effect of a forced cancel.
func (p *Pool) Discard(backend string) {
	p.mu.Lock()
	el, ok := p.items[backend]
	if ok {
		p.lru.Remove(el)
		delete(p.items, backend)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	e := el.Value.(*entry)
	e.retired = true
	e.closeOnce()
}

// evictIfFullLocked evicts the least-recently-used idle (refCount == 0)
// entry when the pool is at capacity and about to add one for a new
// backend (spec §4.11 "evict the least-recently-used closed-idle
// entry"). Caller must hold p.mu.
func (p *Pool) evictIfFullLocked(incoming string) {
	if _, exists := p.items[incoming]; exists {
		return
	}
	if p.lru.Len() < p.maxOpen {
		return
	}
	for el := p.lru.Back(); el != nil; el = el.Prev() {
		if el.Value.(*entry).refCount == 0 {
			p.retireLocked(el)
			return
		}
	}
}

// EvictIdle closes every connection idle for longer than d (spec §4.11
// evictIdle background sweep, default 5 minutes).
func (p *Pool) EvictIdle(d time.Duration) {
	cutoff := time.Now().Add(-d)

	p.mu.Lock()
	defer p.mu.Unlock()
	var next *list.Element
	for el := p.lru.Back(); el != nil; el = next {
		next = el.Prev()
		e := el.Value.(*entry)
		if e.refCount > 0 || e.lastUsedAt.After(cutoff) {
			continue
		}
		p.retireLocked(el)
	}
}

// Drain closes every pooled connection (spec §4.11 drain, invoked on
// orchestrator shutdown).
func (p *Pool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for el := p.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		e.retired = true
		e.closeOnce()
	}
	p.items = make(map[string]*list.Element)
	p.lru = list.New()
}

// retireLocked unindexes el so the next Acquire for its backend dials a
// fresh connection, closing its channel immediately if no lease is
// currently holding it, or deferring the close to the last Release
// otherwise. Caller must hold p.mu.
func (p *Pool) retireLocked(el *list.Element) {
	e := el.Value.(*entry)
	p.lru.Remove(el)
	delete(p.items, e.backend)
	e.retired = true
	if e.refCount == 0 {
		e.closeOnce()
	}
}

func (p *Pool) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("pool(open=%d/%d)", p.lru.Len(), p.maxOpen)
}

// Len reports the number of currently open pooled connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lru.Len()
}
