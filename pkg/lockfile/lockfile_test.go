// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lockfile

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	r := &lockRegistry{locks: make(map[string]*flock.Flock)}
	path := "/test/path/file.lock"
	l := flock.New(path)

	r.RegisterLock(path, l)

	got, ok := r.Get(path)
	require.True(t, ok)
	assert.Same(t, l, got)
}

func TestLockRegistry_Unregister(t *testing.T) {
	t.Parallel()

	r := &lockRegistry{locks: make(map[string]*flock.Flock)}
	path := "/test/path/file.lock"
	r.RegisterLock(path, flock.New(path))

	r.UnregisterLock(path)

	_, ok := r.Get(path)
	assert.False(t, ok)
}

func TestAcquireRelease_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profile.json")

	guard, err := Acquire(path)
	require.NoError(t, err)
	require.NotNil(t, guard)

	guard.Release()
	// Releasing twice must not panic.
	guard.Release()
}

func TestAcquire_SerializesConcurrentCallers(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profile.json")

	var mu sync.Mutex
	order := make([]int, 0, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer wg.Done()
			guard, err := Acquire(path)
			require.NoError(t, err)
			defer guard.Release()

			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Len(t, order, 2)
}
