// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package patcher

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolgate/pkg/cache"
	"github.com/stacklok/toolgate/pkg/domain"
	"github.com/stacklok/toolgate/pkg/embedding"
)

// stubEmbedder returns a fixed-length vector whose first component is 1
// and the rest 0 per call, and records
// every text it was asked to embed, so tests can assert which tools
// were (or weren't) re-embedded.
type stubEmbedder struct {
	dim   int
	calls []string
}

func (s *stubEmbedder) Dimension() int { return s.dim }

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls = append(s.calls, text)
	vec := make([]float32, s.dim)
	vec[0] = 1
	return vec, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newTestPatcher(t *testing.T, embedder embedding.Embedder) (*Patcher, *cache.MetadataCache, *cache.VectorCache) {
	t.Helper()
	dir := t.TempDir()
	metadata := cache.NewMetadataCache(filepath.Join(dir, "l1.json"))
	vectors := cache.NewVectorCache(filepath.Join(dir, "l2.json"))
	engine := embedding.NewEngine(embedder, nil)
	p, err := New(metadata, vectors, engine)
	require.NoError(t, err)
	return p, metadata, vectors
}

func TestPatchAdd_WritesMetadataAndVectors(t *testing.T) {
	t.Parallel()
	p, metadata, vectors := newTestPatcher(t, &stubEmbedder{dim: 4})

	tools := []domain.ToolDescriptor{{Name: "read_file", Description: "reads a file"}}
	err := p.PatchAdd(context.Background(), Discovered{
		Backend:    "fs",
		ServerInfo: domain.ServerInfo{Name: "fs-server", Version: "1.0.0"},
		Tools:      tools,
		ConfigHash: "cfg-1",
	}, "hash-1")
	require.NoError(t, err)

	backends, hash, ok, err := metadata.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hash-1", hash)
	assert.Equal(t, "cfg-1", backends["fs"].ConfigHash)
	assert.Equal(t, tools, backends["fs"].Tools)

	vecs, _, _, _, _, ok, err := vectors.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, vecs, "fs:read_file")
}

func TestPatchRemove_DropsBackendAndItsVectors(t *testing.T) {
	t.Parallel()
	p, metadata, vectors := newTestPatcher(t, &stubEmbedder{dim: 4})

	tools := []domain.ToolDescriptor{{Name: "read_file", Description: "reads a file"}}
	require.NoError(t, p.PatchAdd(context.Background(), Discovered{Backend: "fs", Tools: tools, ConfigHash: "cfg-1"}, "hash-1"))

	require.NoError(t, p.PatchRemove("fs", "hash-2"))

	backends, _, _, err := metadata.Load()
	require.NoError(t, err)
	assert.NotContains(t, backends, "fs")

	vecs, _, _, _, _, _, err := vectors.Load()
	require.NoError(t, err)
	assert.NotContains(t, vecs, "fs:read_file")
}

func TestPatchUpdate_UnchangedToolsAreNotReEmbedded(t *testing.T) {
	t.Parallel()
	stub := &stubEmbedder{dim: 4}
	p, _, vectors := newTestPatcher(t, stub)

	original := []domain.ToolDescriptor{
		{Name: "read_file", Description: "reads a file"},
		{Name: "write_file", Description: "writes a file"},
	}
	require.NoError(t, p.PatchAdd(context.Background(), Discovered{Backend: "fs", Tools: original, ConfigHash: "cfg-1"}, "hash-1"))

	before, _, _, _, _, _, err := vectors.Load()
	require.NoError(t, err)
	readVecBefore := before["fs:read_file"]

	stub.calls = nil
	updated := []domain.ToolDescriptor{
		{Name: "read_file", Description: "reads a file"},       // unchanged
		{Name: "write_file", Description: "writes a file, v2"}, // changed
	}
	require.NoError(t, p.PatchUpdate(context.Background(), Discovered{Backend: "fs", Tools: updated, ConfigHash: "cfg-2"}, "hash-2"))

	// Only the changed tool should have triggered an Embed call.
	require.Len(t, stub.calls, 1)
	assert.Contains(t, stub.calls[0], "write_file")

	after, _, _, _, _, _, err := vectors.Load()
	require.NoError(t, err)
	assert.Equal(t, readVecBefore, after["fs:read_file"])
	assert.Contains(t, after, "fs:write_file")
}

func TestPatchUpdate_RemovedToolsDropVectors(t *testing.T) {
	t.Parallel()
	p, _, vectors := newTestPatcher(t, &stubEmbedder{dim: 4})

	original := []domain.ToolDescriptor{
		{Name: "read_file", Description: "reads a file"},
		{Name: "write_file", Description: "writes a file"},
	}
	require.NoError(t, p.PatchAdd(context.Background(), Discovered{Backend: "fs", Tools: original, ConfigHash: "cfg-1"}, "hash-1"))

	updated := []domain.ToolDescriptor{{Name: "read_file", Description: "reads a file"}}
	require.NoError(t, p.PatchUpdate(context.Background(), Discovered{Backend: "fs", Tools: updated, ConfigHash: "cfg-2"}, "hash-2"))

	vecs, _, _, _, _, _, err := vectors.Load()
	require.NoError(t, err)
	assert.NotContains(t, vecs, "fs:write_file")
	assert.Contains(t, vecs, "fs:read_file")
}

func TestPatchAdd_UpdatesLiveMirrors(t *testing.T) {
	t.Parallel()
	p, _, _ := newTestPatcher(t, &stubEmbedder{dim: 4})

	tools := []domain.ToolDescriptor{{Name: "read_file", Description: "reads a file"}}
	require.NoError(t, p.PatchAdd(context.Background(), Discovered{
		Backend: "fs", Tools: tools, ConfigHash: "cfg-1",
	}, "hash-1"))

	assert.Contains(t, p.Live().Snapshot(), "fs")
	assert.Contains(t, p.LiveVectors().Snapshot(), "fs:read_file")

	require.NoError(t, p.PatchRemove("fs", "hash-2"))
	assert.NotContains(t, p.Live().Snapshot(), "fs")
	assert.NotContains(t, p.LiveVectors().Snapshot(), "fs:read_file")
}

func TestOnPatch_FiresForEveryOperation(t *testing.T) {
	t.Parallel()
	p, _, _ := newTestPatcher(t, &stubEmbedder{dim: 4})

	var events []Event
	p.OnPatch(func(ev Event) { events = append(events, ev) })

	tools := []domain.ToolDescriptor{{Name: "read_file"}}
	require.NoError(t, p.PatchAdd(context.Background(), Discovered{Backend: "fs", Tools: tools, ConfigHash: "cfg-1"}, "hash-1"))
	require.NoError(t, p.PatchUpdate(context.Background(), Discovered{Backend: "fs", Tools: tools, ConfigHash: "cfg-2"}, "hash-2"))
	require.NoError(t, p.PatchRemove("fs", "hash-3"))

	require.Len(t, events, 3)
	assert.Equal(t, EventAdded, events[0].Kind)
	assert.Equal(t, EventUpdated, events[1].Kind)
	assert.Equal(t, EventRemoved, events[2].Kind)
}

type fakeRediscoverer struct {
	results map[string]struct {
		info  domain.ServerInfo
		tools []domain.ToolDescriptor
		err   error
	}
	calls []string
}

func (f *fakeRediscoverer) DiscoverOne(_ context.Context, spec domain.LaunchSpec) (domain.ServerInfo, []domain.ToolDescriptor, error) {
	f.calls = append(f.calls, spec.Name)
	r := f.results[spec.Name]
	return r.info, r.tools, r.err
}

func TestReconcile_AddsNewAndRemovesAbsentBackends(t *testing.T) {
	t.Parallel()
	p, metadata, _ := newTestPatcher(t, &stubEmbedder{dim: 4})

	// Pre-existing cached backend that's no longer in the profile.
	require.NoError(t, p.PatchAdd(context.Background(), Discovered{
		Backend: "stale", Tools: []domain.ToolDescriptor{{Name: "old_tool"}}, ConfigHash: "stale-hash",
	}, "irrelevant"))

	profile := map[string]domain.LaunchSpec{
		"fs": {Name: "fs", Transport: domain.TransportStdio, Command: "fs-server"},
	}
	rediscoverer := &fakeRediscoverer{results: map[string]struct {
		info  domain.ServerInfo
		tools []domain.ToolDescriptor
		err   error
	}{
		"fs": {info: domain.ServerInfo{Name: "fs-server", Version: "1.0.0"}, tools: []domain.ToolDescriptor{{Name: "read_file"}}},
	}}

	require.NoError(t, p.Reconcile(context.Background(), profile, rediscoverer))

	backends, hash, ok, err := metadata.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.ProfileHash(profile), hash)
	assert.Contains(t, backends, "fs")
	assert.NotContains(t, backends, "stale")
	assert.Equal(t, []string{"fs"}, rediscoverer.calls)
}

func TestReconcile_SkipsBackendsWithUnchangedConfigHash(t *testing.T) {
	t.Parallel()
	p, _, _ := newTestPatcher(t, &stubEmbedder{dim: 4})

	spec := domain.LaunchSpec{Name: "fs", Transport: domain.TransportStdio, Command: "fs-server"}
	require.NoError(t, p.PatchAdd(context.Background(), Discovered{
		Backend: "fs", Tools: []domain.ToolDescriptor{{Name: "read_file"}}, ConfigHash: spec.ConfigHash(),
	}, domain.ProfileHash(map[string]domain.LaunchSpec{"fs": spec})))

	rediscoverer := &fakeRediscoverer{}
	require.NoError(t, p.Reconcile(context.Background(), map[string]domain.LaunchSpec{"fs": spec}, rediscoverer))

	assert.Empty(t, rediscoverer.calls)
}

func TestReconcile_PropagatesRediscoveryError(t *testing.T) {
	t.Parallel()
	p, _, _ := newTestPatcher(t, &stubEmbedder{dim: 4})

	spec := domain.LaunchSpec{Name: "fs", Transport: domain.TransportStdio, Command: "fs-server"}
	rediscoverer := &fakeRediscoverer{results: map[string]struct {
		info  domain.ServerInfo
		tools []domain.ToolDescriptor
		err   error
	}{
		"fs": {err: errors.New("dial failed")},
	}}

	err := p.Reconcile(context.Background(), map[string]domain.LaunchSpec{"fs": spec}, rediscoverer)
	require.Error(t, err)
}
