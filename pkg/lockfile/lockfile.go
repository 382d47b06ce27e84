// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package lockfile provides cross-process file locks, one lock file per
// guarded path, so the Profile Store and the Cache Patcher serialize
// read-modify-write cycles across goroutines and across concurrent CLI
// and server processes (spec §4.1, §5). It also defines lockRegistry, a
// path -> *flock.Flock map; Acquire does not consult it.
package lockfile

import (
	"fmt"
	"sync"

	"github.com/gofrs/flock"

	"github.com/stacklok/toolgate/pkg/logger"
)

type lockRegistry struct {
	mu    sync.RWMutex
	locks map[string]*flock.Flock
}

func (r *lockRegistry) RegisterLock(path string, l *flock.Flock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks[path] = l
}

func (r *lockRegistry) UnregisterLock(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, path)
}

func (r *lockRegistry) Get(path string) (*flock.Flock, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.locks[path]
	return l, ok
}

var registry = &lockRegistry{locks: make(map[string]*flock.Flock)}

// A Guard holds one path's file lock for the duration of a
// read-modify-write cycle. Release MUST be called (typically via
// defer) to unlock.
type Guard struct {
	path string
	lock *flock.Flock
}

// Acquire blocks until it holds the exclusive lock on path+".lock",
// creating the lock file if needed. Every call opens its own
// *flock.Flock: flock(2) locks taken through separate descriptors
// exclude each other even inside one process, so a second Acquire for
// the same path blocks until the first Guard is released, whether it
// comes from another goroutine or another process. (A shared instance
// would not do this: Lock on a *flock.Flock that already holds the lock
// returns at once.)
func Acquire(path string) (*Guard, error) {
	lockPath := path + ".lock"

	l := flock.New(lockPath)
	if err := l.Lock(); err != nil {
		return nil, fmt.Errorf("lockfile: acquiring lock on %s: %w", lockPath, err)
	}
	logger.Debugf("lockfile: acquired %s", lockPath)
	return &Guard{path: lockPath, lock: l}, nil
}

// Release unlocks the guarded path. Safe to call once; calling it more
// than once is a no-op beyond the first.
func (g *Guard) Release() {
	if g == nil || g.lock == nil {
		return
	}
	if err := g.lock.Unlock(); err != nil {
		logger.Warnf("lockfile: releasing %s: %v", g.path, err)
	}
	g.lock = nil
}
