// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package finder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolgate/pkg/domain"
	"github.com/stacklok/toolgate/pkg/embedding"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
	"github.com/stacklok/toolgate/pkg/health"
)

type fakeMetadata struct {
	backends map[string]domain.BackendRecord
}

func (f fakeMetadata) Snapshot() map[string]domain.BackendRecord { return f.backends }

type fakeVectors struct {
	vectors map[string]domain.VectorRecord
}

func (f fakeVectors) Snapshot() map[string]domain.VectorRecord { return f.vectors }

// axisEmbedder returns the query text's vector from a fixed lookup
// table, letting tests pin exact cosine scores without a real model.
type axisEmbedder struct {
	vectors map[string][]float32
	dim     int
}

func (a axisEmbedder) Dimension() int { return a.dim }

func (a axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := a.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, a.dim), nil
}

func (a axisEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := a.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func backendRecord(tools ...domain.ToolDescriptor) domain.BackendRecord {
	return domain.BackendRecord{Tools: tools}
}

func TestFind_EmptyQuery_BrowsesAlphabeticallyByToolID(t *testing.T) {
	t.Parallel()
	metadata := fakeMetadata{backends: map[string]domain.BackendRecord{
		"z-backend": backendRecord(domain.ToolDescriptor{Name: "alpha", Description: "first"}),
		"a-backend": backendRecord(domain.ToolDescriptor{Name: "beta", Description: "second"}),
	}}
	f := New(metadata, fakeVectors{vectors: map[string]domain.VectorRecord{}}, embedding.NewEngine(axisEmbedder{dim: 2}, nil), nil)

	matches, err := f.Find(context.Background(), "", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a-backend:beta", matches[0].ToolID)
	assert.Equal(t, "z-backend:alpha", matches[1].ToolID)
}

func TestFind_EmptyQuery_TruncatesToLimit(t *testing.T) {
	t.Parallel()
	metadata := fakeMetadata{backends: map[string]domain.BackendRecord{
		"fs": backendRecord(
			domain.ToolDescriptor{Name: "a"},
			domain.ToolDescriptor{Name: "b"},
			domain.ToolDescriptor{Name: "c"},
		),
	}}
	f := New(metadata, fakeVectors{vectors: map[string]domain.VectorRecord{}}, embedding.NewEngine(axisEmbedder{dim: 2}, nil), nil)

	matches, err := f.Find(context.Background(), "", Options{Limit: 2, MinConfidence: 0.1, Depth: DepthNamesOnly})
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestFind_RanksByScoreDescendingWithToolIDTieBreak(t *testing.T) {
	t.Parallel()
	metadata := fakeMetadata{backends: map[string]domain.BackendRecord{
		"fs": backendRecord(
			domain.ToolDescriptor{Name: "exact_match", Description: "exact"},
			domain.ToolDescriptor{Name: "partial_match", Description: "partial"},
			domain.ToolDescriptor{Name: "tied_a", Description: "tied"},
			domain.ToolDescriptor{Name: "tied_b", Description: "tied"},
		),
	}}
	vectors := fakeVectors{vectors: map[string]domain.VectorRecord{
		"fs:exact_match":   {ToolID: "fs:exact_match", Vector: []float32{1, 0}},
		"fs:partial_match": {ToolID: "fs:partial_match", Vector: []float32{0.8, 0.6}},
		"fs:tied_a":        {ToolID: "fs:tied_a", Vector: []float32{0.6, 0.8}},
		"fs:tied_b":        {ToolID: "fs:tied_b", Vector: []float32{0.6, 0.8}},
	}}
	embedder := axisEmbedder{dim: 2, vectors: map[string][]float32{"find me": {1, 0}}}
	f := New(metadata, vectors, embedding.NewEngine(embedder, nil), nil)

	matches, err := f.Find(context.Background(), "find me", Options{Limit: 10, MinConfidence: 0.1, Depth: DepthNamesOnly})
	require.NoError(t, err)
	require.Len(t, matches, 4)
	assert.Equal(t, "fs:exact_match", matches[0].ToolID)
	assert.Equal(t, "fs:partial_match", matches[1].ToolID)
	// tied_a/tied_b score identically and tie-break ascending by toolId.
	assert.Equal(t, "fs:tied_a", matches[2].ToolID)
	assert.Equal(t, "fs:tied_b", matches[3].ToolID)
}

func TestFind_FiltersBelowMinConfidence(t *testing.T) {
	t.Parallel()
	metadata := fakeMetadata{backends: map[string]domain.BackendRecord{
		"fs": backendRecord(
			domain.ToolDescriptor{Name: "close", Description: "close"},
			domain.ToolDescriptor{Name: "far", Description: "far"},
		),
	}}
	vectors := fakeVectors{vectors: map[string]domain.VectorRecord{
		"fs:close": {ToolID: "fs:close", Vector: []float32{1, 0}},
		"fs:far":   {ToolID: "fs:far", Vector: []float32{0, 1}},
	}}
	embedder := axisEmbedder{dim: 2, vectors: map[string][]float32{"q": {1, 0}}}
	f := New(metadata, vectors, embedding.NewEngine(embedder, nil), nil)

	matches, err := f.Find(context.Background(), "q", Options{Limit: 10, MinConfidence: 0.5, Depth: DepthNamesOnly})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "fs:close", matches[0].ToolID)
}

func TestFind_ExcludesQuarantinedBackends(t *testing.T) {
	t.Parallel()
	metadata := fakeMetadata{backends: map[string]domain.BackendRecord{
		"good": backendRecord(domain.ToolDescriptor{Name: "tool_a", Description: "a"}),
		"bad":  backendRecord(domain.ToolDescriptor{Name: "tool_b", Description: "b"}),
	}}
	vectors := fakeVectors{vectors: map[string]domain.VectorRecord{
		"good:tool_a": {ToolID: "good:tool_a", Vector: []float32{1, 0}},
		"bad:tool_b":  {ToolID: "bad:tool_b", Vector: []float32{1, 0}},
	}}
	embedder := axisEmbedder{dim: 2, vectors: map[string][]float32{"q": {1, 0}}}

	monitor := health.NewMonitor(health.WithThreshold(1))
	monitor.RecordFailure("bad", tgerrors.NewBackend(tgerrors.KindAuthError, "bad", "permanently broken", nil))

	f := New(metadata, vectors, embedding.NewEngine(embedder, nil), monitor)

	matches, err := f.Find(context.Background(), "q", Options{Limit: 10, MinConfidence: 0.1, Depth: DepthNamesOnly})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "good:tool_a", matches[0].ToolID)
}

func TestFind_ProjectsAtRequestedDepth(t *testing.T) {
	t.Parallel()
	tool := domain.ToolDescriptor{
		Name:        "read_file",
		Description: "reads a file from disk",
		InputSchema: domain.InputSchema{"path": {Type: "string", Required: true}},
	}
	metadata := fakeMetadata{backends: map[string]domain.BackendRecord{"fs": backendRecord(tool)}}
	vectors := fakeVectors{vectors: map[string]domain.VectorRecord{
		"fs:read_file": {ToolID: "fs:read_file", Vector: []float32{1, 0}},
	}}
	embedder := axisEmbedder{dim: 2, vectors: map[string][]float32{"q": {1, 0}}}
	f := New(metadata, vectors, embedding.NewEngine(embedder, nil), nil)

	names, err := f.Find(context.Background(), "q", Options{Limit: 1, MinConfidence: 0.1, Depth: DepthNamesOnly})
	require.NoError(t, err)
	assert.Empty(t, names[0].Description)
	assert.Nil(t, names[0].InputSchema)

	withDesc, err := f.Find(context.Background(), "q", Options{Limit: 1, MinConfidence: 0.1, Depth: DepthWithDescriptions})
	require.NoError(t, err)
	assert.Equal(t, "reads a file from disk", withDesc[0].Description)
	assert.Nil(t, withDesc[0].InputSchema)

	full, err := f.Find(context.Background(), "q", Options{Limit: 1, MinConfidence: 0.1, Depth: DepthFull})
	require.NoError(t, err)
	assert.Equal(t, tool.InputSchema, full[0].InputSchema)
}
