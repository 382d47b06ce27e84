// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "default.json"))
}

func TestStore_EmptyProfile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	names, err := s.Names()
	require.NoError(t, err)
	assert.Empty(t, names)

	hash, err := s.ProfileHash()
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
}

func TestStore_UpsertGetRemove(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	spec := domain.LaunchSpec{Name: "fs", Transport: domain.TransportStdio, Command: "fs-mcp"}
	require.NoError(t, s.Upsert(spec))

	got, err := s.Get("fs")
	require.NoError(t, err)
	assert.Equal(t, spec, got)

	require.NoError(t, s.Remove("fs"))

	_, err = s.Get("fs")
	require.Error(t, err)
	kind, ok := tgerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, tgerrors.KindNotFound, kind)
}

func TestStore_Add_FailsOnDuplicate(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	spec := domain.LaunchSpec{Name: "fs", Transport: domain.TransportStdio, Command: "fs-mcp"}
	require.NoError(t, s.Add(spec))

	err := s.Add(spec)
	require.Error(t, err)
	kind, ok := tgerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, tgerrors.KindAlreadyExists, kind)
}

func TestStore_Remove_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	err := s.Remove("missing")
	require.Error(t, err)
	kind, ok := tgerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, tgerrors.KindNotFound, kind)
}

func TestStore_ProfileHash_ChangesOnMutation(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	h1, err := s.ProfileHash()
	require.NoError(t, err)

	require.NoError(t, s.Upsert(domain.LaunchSpec{Name: "fs", Transport: domain.TransportStdio, Command: "fs-mcp"}))

	h2, err := s.ProfileHash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	require.NoError(t, s.Remove("fs"))
	h3, err := s.ProfileHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h3, "removing the only backend restores the original hash")
}

func TestStore_Persists_AcrossInstances(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "default.json")

	s1 := NewStore(path)
	require.NoError(t, s1.Upsert(domain.LaunchSpec{Name: "gh", Transport: domain.TransportHTTPStreaming, BaseURL: "http://localhost:9"}))

	s2 := NewStore(path)
	got, err := s2.Get("gh")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9", got.BaseURL)
}

func TestStore_ConcurrentUpserts_NoLostUpdates(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := "backend-" + string(rune('a'+i))
			err := s.Upsert(domain.LaunchSpec{Name: name, Transport: domain.TransportStdio, Command: "x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	names, err := s.Names()
	require.NoError(t, err)
	assert.Len(t, names, 10)
}
