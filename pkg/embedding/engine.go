// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package embedding

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stacklok/toolgate/pkg/domain"
	"github.com/stacklok/toolgate/pkg/logger"
)

// Embedder turns text into an embedding vector. teiClient is the
// production implementation; tests substitute a fake.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Engine is the Embedding Engine (spec §4.5, component C5): turns a
// tool descriptor into a unit vector, optionally enriched with
// domain-capability phrases, and scores queries against a candidate
// set via exhaustive cosine scan.
type Engine struct {
	embedder     Embedder
	augmentation map[string][]string
	model        string
}

// Option configures an Engine.
type Option func(*Engine)

// WithModel records the embedding model name this Engine's vectors are
// generated under, stored in the L2 envelope (spec §4.5/§4.7) so a
// later model change can be detected without comparing vectors
// themselves.
func WithModel(name string) Option {
	return func(e *Engine) { e.model = name }
}

// NewEngine constructs an Engine. augmentation maps a backend category
// (spec §4.5 "domain capability text augmentation") to a list of
// phrases appended to that category's tools before embedding; nil
// disables augmentation.
func NewEngine(embedder Embedder, augmentation map[string][]string, opts ...Option) *Engine {
	e := &Engine{embedder: embedder, augmentation: augmentation}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model returns the embedding model name this Engine was configured
// with (spec §4.5 "the model name and d are stored in the L2
// envelope").
func (e *Engine) Model() string { return e.model }

// Dimension returns the embedding width produced by this Engine's
// underlying Embedder.
func (e *Engine) Dimension() int { return e.embedder.Dimension() }

// sourceText builds the text embedded for one tool, matching spec
// §4.5's concatenation: "<name>. <description>. Parameters: <param
// summaries>. Backend: <backend description>", with any
// category-specific augmentation phrases appended last.
func sourceText(tool domain.ToolDescriptor, category, backendDescription string, augmentation map[string][]string) string {
	parts := []string{tool.Name}
	if tool.Description != "" {
		parts = append(parts, tool.Description)
	}
	if summary := paramSummary(tool.InputSchema); summary != "" {
		parts = append(parts, "Parameters: "+summary)
	}
	if backendDescription != "" {
		parts = append(parts, "Backend: "+backendDescription)
	}
	if phrases, ok := augmentation[category]; ok {
		parts = append(parts, phrases...)
	}
	return strings.Join(parts, ". ")
}

// paramSummary renders a tool's input schema as "name (type, required)"
// entries, sorted by name for determinism.
func paramSummary(schema domain.InputSchema) string {
	if len(schema) == 0 {
		return ""
	}
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		p := schema[name]
		tag := p.Type
		if p.Required {
			tag += ", required"
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, tag))
	}
	return strings.Join(parts, ", ")
}

// BackendInfo is the per-backend context folded into a tool's source
// text (spec §4.5: category drives augmentation, Description is the
// literal "Backend: <description>" clause).
type BackendInfo struct {
	Category    string
	Description string
}

// EmbedTool embeds one tool, returning its unit vector and the
// generation metadata the Embedding Cache persists alongside it.
func (e *Engine) EmbedTool(ctx context.Context, backend string, info BackendInfo, tool domain.ToolDescriptor) (domain.VectorRecord, domain.VectorMeta, error) {
	text := sourceText(tool, info.Category, info.Description, e.augmentation)
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return domain.VectorRecord{}, domain.VectorMeta{}, fmt.Errorf("embedding %s: %w", tool.QualifiedID(backend), err)
	}

	id := tool.QualifiedID(backend)
	return domain.VectorRecord{ToolID: id, Vector: normalize(vec)},
		domain.VectorMeta{ToolID: id, Backend: backend, GeneratedAt: time.Now(), SourceText: text},
		nil
}

// EmbedToolsBatch embeds many tools from the same backend in one round
// trip.
func (e *Engine) EmbedToolsBatch(ctx context.Context, backend string, info BackendInfo, tools []domain.ToolDescriptor) ([]domain.VectorRecord, []domain.VectorMeta, error) {
	if len(tools) == 0 {
		return nil, nil, nil
	}
	texts := make([]string, len(tools))
	for i, t := range tools {
		texts[i] = sourceText(t, info.Category, info.Description, e.augmentation)
	}

	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding batch for %s: %w", backend, err)
	}

	now := time.Now()
	records := make([]domain.VectorRecord, len(tools))
	metas := make([]domain.VectorMeta, len(tools))
	for i, t := range tools {
		id := t.QualifiedID(backend)
		records[i] = domain.VectorRecord{ToolID: id, Vector: normalize(vectors[i])}
		metas[i] = domain.VectorMeta{ToolID: id, Backend: backend, GeneratedAt: now, SourceText: texts[i]}
	}
	return records, metas, nil
}

// EmbedQuery embeds a search query the same way a tool's source text
// would be embedded, without augmentation (queries come from the
// caller, not a backend category).
func (e *Engine) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return normalize(vec), nil
}

// Scored is one candidate's similarity to a query.
type Scored struct {
	ToolID string
	Score  float64
}

// TopK returns the k highest-scoring candidates against query,
// breaking ties by ToolID ascending for deterministic output (spec
// §4.9 "tie-break by toolId").
func TopK(query []float32, candidates map[string]domain.VectorRecord, k int) []Scored {
	scored := make([]Scored, 0, len(candidates))
	for id, rec := range candidates {
		if len(rec.Vector) != len(query) {
			// Stale L2 entry left over from a model change that hasn't
			// been reconciled yet; it can never legitimately score, so
			// don't let it mix into the ranking.
			logger.Warnf("skipping tool %s: embedding dimension %d does not match query dimension %d", id, len(rec.Vector), len(query))
			continue
		}
		scored = append(scored, Scored{ToolID: id, Score: CosineSimilarity(query, rec.Vector)})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ToolID < scored[j].ToolID
	})

	if k >= 0 && k < len(scored) {
		scored = scored[:k]
	}
	return scored
}
