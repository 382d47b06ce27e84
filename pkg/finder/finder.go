// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package finder implements the Semantic Finder (spec §4.9, component
// C9): the `find` operation exposed to clients, scanning the Embedding
// Cache for candidates and projecting results from the Tool Metadata
// Cache at the caller's requested depth.
package finder

import (
	"context"
	"fmt"
	"sort"

	"github.com/stacklok/toolgate/pkg/domain"
	"github.com/stacklok/toolgate/pkg/embedding"
	"github.com/stacklok/toolgate/pkg/health"
)

// Defaults per spec §4.9.
const (
	DefaultLimit         = 5
	DefaultMinConfidence = 0.30
	candidateFanout      = 3 // top-limit*candidateFanout candidates scanned before filtering
)

// Depth controls how much of a tool's descriptor a find result carries.
type Depth int

// Depth levels (spec §4.9).
const (
	DepthNamesOnly Depth = iota
	DepthWithDescriptions
	DepthFull
)

// Options configures one find call; zero value is not valid — use
// DefaultOptions.
type Options struct {
	Limit         int
	MinConfidence float64
	Depth         Depth
}

// DefaultOptions returns spec §4.9's defaults.
func DefaultOptions() Options {
	return Options{Limit: DefaultLimit, MinConfidence: DefaultMinConfidence, Depth: DepthWithDescriptions}
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = DefaultMinConfidence
	}
	return o
}

// Match is one result of a find call.
type Match struct {
	ToolID      string
	Backend     string
	Name        string
	Description string      `json:"description,omitempty"`
	InputSchema domain.InputSchema `json:"inputSchema,omitempty"`
	Score       float64
}

// MetadataSource is the read surface the Finder needs from the Tool
// Metadata Cache: a snapshot taken under a short read lock (spec §4.9
// "snapshots the in-memory structures under a short read lock").
type MetadataSource interface {
	Snapshot() map[string]domain.BackendRecord
}

// VectorSource is the read surface the Finder needs from the Embedding
// Cache.
type VectorSource interface {
	Snapshot() map[string]domain.VectorRecord
}

// Finder is read-only and lock-free against cache reads beyond the
// snapshot calls above (spec §4.9).
type Finder struct {
	metadata MetadataSource
	vectors  VectorSource
	engine   *embedding.Engine
	monitor  *health.Monitor
}

// New returns a Finder over metadata/vectors, embedding queries via
// engine and filtering quarantined backends via monitor.
func New(metadata MetadataSource, vectors VectorSource, engine *embedding.Engine, monitor *health.Monitor) *Finder {
	return &Finder{metadata: metadata, vectors: vectors, engine: engine, monitor: monitor}
}

// Find implements spec §4.9's five-step algorithm.
func (f *Finder) Find(ctx context.Context, query string, opts Options) ([]Match, error) {
	opts = opts.withDefaults()
	backends := f.metadata.Snapshot()

	if query == "" {
		return f.browse(backends, opts), nil
	}

	queryVec, err := f.engine.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	candidates := embedding.TopK(queryVec, f.vectors.Snapshot(), opts.Limit*candidateFanout)

	toolIndex := indexTools(backends)
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if c.Score < opts.MinConfidence {
			continue
		}
		entry, ok := toolIndex[c.ToolID]
		if !ok {
			continue
		}
		if f.monitor != nil {
			if state, ok := f.monitor.State(entry.backend); ok && state.Status == domain.HealthQuarantined {
				continue
			}
		}
		matches = append(matches, projectMatch(entry, c.Score, opts.Depth))
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ToolID < matches[j].ToolID
	})

	if len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

// browse implements step 1: empty query returns the top-limit tools in
// alphabetical toolId order ("browse everything").
func (f *Finder) browse(backends map[string]domain.BackendRecord, opts Options) []Match {
	entries := make([]toolEntry, 0)
	for backend, record := range backends {
		for _, t := range record.Tools {
			entries = append(entries, toolEntry{backend: backend, tool: t})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].tool.QualifiedID(entries[i].backend) < entries[j].tool.QualifiedID(entries[j].backend)
	})

	if len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}

	matches := make([]Match, 0, len(entries))
	for _, e := range entries {
		matches = append(matches, projectMatch(e, 1.0, opts.Depth))
	}
	return matches
}

type toolEntry struct {
	backend string
	tool    domain.ToolDescriptor
}

func indexTools(backends map[string]domain.BackendRecord) map[string]toolEntry {
	index := make(map[string]toolEntry)
	for backend, record := range backends {
		for _, t := range record.Tools {
			index[t.QualifiedID(backend)] = toolEntry{backend: backend, tool: t}
		}
	}
	return index
}

func projectMatch(e toolEntry, score float64, depth Depth) Match {
	m := Match{
		ToolID:  e.tool.QualifiedID(e.backend),
		Backend: e.backend,
		Name:    e.tool.Name,
		Score:   score,
	}
	if depth >= DepthWithDescriptions {
		m.Description = e.tool.Description
	}
	if depth >= DepthFull {
		m.InputSchema = e.tool.InputSchema
	}
	return m
}
