// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package patcher implements the Cache Patcher (spec §4.8, component
// C8): the only writer of L1/L2, serialized through a process-wide lock
// so an in-flight patch always completes before the next one starts.
package patcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stacklok/toolgate/pkg/cache"
	"github.com/stacklok/toolgate/pkg/domain"
	"github.com/stacklok/toolgate/pkg/embedding"
)

// Event is emitted after every successful patch operation, letting an
// external system observe cache changes without toolgate depending on
// it (spec Open Questions: "optional subsystems").
type Event struct {
	Backend string
	Kind    EventKind
}

// EventKind names what a patch did.
type EventKind string

// Event kinds.
const (
	EventAdded   EventKind = "added"
	EventRemoved EventKind = "removed"
	EventUpdated EventKind = "updated"
)

// Patcher mutates L1 and L2 atomically per spec §4.8. All four
// operations acquire the same in-process mutex before touching either
// cache, matching "all patcher operations serialize through a
// process-wide lock".
type Patcher struct {
	metadata *cache.MetadataCache
	vectors  *cache.VectorCache
	engine   *embedding.Engine

	// live mirrors what's on disk so the Semantic Finder never touches
	// L1/L2 directly (spec §4.9); every successful store() refreshes
	// both right after the files are written.
	live        *cache.LiveMetadata
	liveVectors *cache.LiveVectors

	mu       sync.Mutex
	onPatch  []func(Event)
	onPatchM sync.Mutex
}

// New returns a Patcher writing through metadata/vectors, embedding new
// or changed tools via engine. It loads both caches once up front to
// seed the live in-memory mirrors (spec §4.6: "synchronous at
// startup").
func New(metadata *cache.MetadataCache, vectors *cache.VectorCache, engine *embedding.Engine) (*Patcher, error) {
	p := &Patcher{metadata: metadata, vectors: vectors, engine: engine}

	backends, _, _, err := metadata.Load()
	if err != nil {
		return nil, fmt.Errorf("loading metadata cache: %w", err)
	}
	vecs, _, _, model, dimension, ok, err := vectors.Load()
	if err != nil {
		return nil, fmt.Errorf("loading vector cache: %w", err)
	}
	if ok && modelMismatch(model, dimension, engine) {
		vecs = nil
	}
	p.live = cache.NewLiveMetadata(backends)
	p.liveVectors = cache.NewLiveVectors(vecs)
	return p, nil
}

// Live returns the in-memory L1 mirror, wired into the Semantic Finder
// as its MetadataSource.
func (p *Patcher) Live() *cache.LiveMetadata {
	return p.live
}

// LiveVectors returns the in-memory L2 mirror, wired into the Semantic
// Finder as its VectorSource.
func (p *Patcher) LiveVectors() *cache.LiveVectors {
	return p.liveVectors
}

// OnPatch registers an observer invoked after every successful patch.
// Not a Non-goal exclusion — this is the hook point spec's Open
// Questions leave for an external scheduler/analytics/audit system to
// subscribe through, rather than toolgate depending on one directly.
func (p *Patcher) OnPatch(fn func(Event)) {
	p.onPatchM.Lock()
	defer p.onPatchM.Unlock()
	p.onPatch = append(p.onPatch, fn)
}

func (p *Patcher) emit(ev Event) {
	p.onPatchM.Lock()
	observers := append([]func(Event){}, p.onPatch...)
	p.onPatchM.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}

// snapshot is the in-memory state loaded at the start of every patch
// operation; L1/L2 are small enough (spec §4.6: "few MB for realistic
// fleets") to hold fully in memory while mutating.
type snapshot struct {
	backends map[string]domain.BackendRecord
	vectors  map[string]domain.VectorRecord
	meta     map[string]domain.VectorMeta
}

func (p *Patcher) loadSnapshot() (snapshot, error) {
	backends, _, _, err := p.metadata.Load()
	if err != nil {
		return snapshot{}, fmt.Errorf("loading metadata cache: %w", err)
	}
	if backends == nil {
		backends = map[string]domain.BackendRecord{}
	}
	vectors, meta, _, model, dimension, ok, err := p.vectors.Load()
	if err != nil {
		return snapshot{}, fmt.Errorf("loading vector cache: %w", err)
	}
	if vectors == nil {
		vectors = map[string]domain.VectorRecord{}
	}
	if meta == nil {
		meta = map[string]domain.VectorMeta{}
	}
	if ok && modelMismatch(model, dimension, p.engine) {
		// The embedding model changed since these vectors were
		// generated (spec §4.5/§4.7: "a mismatch forces a full
		// re-embed" / "the entire L2 is discarded and rebuilt").
		vectors = map[string]domain.VectorRecord{}
		meta = map[string]domain.VectorMeta{}
	}
	return snapshot{backends: backends, vectors: vectors, meta: meta}, nil
}

// modelMismatch reports whether a loaded L2 envelope's model/dimension
// no longer match engine's. An empty stored model name means the
// envelope predates this check (or no model was ever configured); that
// is never treated as a mismatch, matching the cache's general
// "absent metadata is not an error" posture (spec §4.6).
func modelMismatch(model string, dimension int, engine *embedding.Engine) bool {
	if model == "" {
		return false
	}
	return model != engine.Model() || dimension != engine.Dimension()
}

// vectorsModelStale reports whether the persisted L2 envelope's model
// identity no longer matches the engine's current one, without loading
// the vectors themselves. Reconcile uses this to force a re-embed of
// backends it would otherwise skip as unchanged.
func (p *Patcher) vectorsModelStale() (bool, error) {
	_, _, _, model, dimension, ok, err := p.vectors.Load()
	if err != nil {
		return false, fmt.Errorf("loading vector cache: %w", err)
	}
	return ok && modelMismatch(model, dimension, p.engine), nil
}

func (s snapshot) store(p *Patcher, newProfileHash string) error {
	if err := p.metadata.Store(s.backends, newProfileHash); err != nil {
		return fmt.Errorf("storing metadata cache: %w", err)
	}
	if err := p.vectors.Store(s.vectors, s.meta, newProfileHash, p.engine.Model(), p.engine.Dimension()); err != nil {
		return fmt.Errorf("storing vector cache: %w", err)
	}
	p.live.Replace(s.backends)
	p.liveVectors.Replace(s.vectors)
	return nil
}

// Discovered is what a Discovery Worker run hands the Patcher: one
// backend's freshly observed tool list plus the launch spec it was
// discovered under (spec §4.3's DiscoveryResult, narrowed to the Ok
// case — the caller decides what to do with Err).
type Discovered struct {
	Backend     string
	ServerInfo  domain.ServerInfo
	Tools       []domain.ToolDescriptor
	ConfigHash  string
	Category    string
	Description string
}

func (d Discovered) backendInfo() embedding.BackendInfo {
	return embedding.BackendInfo{Category: d.Category, Description: d.Description}
}

// PatchAdd inserts or replaces backend's tool block in L1, embeds every
// tool, writes vectors into L2, and updates profileHash on both files
// (spec §4.8 patchAdd).
func (p *Patcher) PatchAdd(ctx context.Context, d Discovered, newProfileHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap, err := p.loadSnapshot()
	if err != nil {
		return err
	}

	if err := p.embedBackend(ctx, snap, d.Backend, d.backendInfo(), d.Tools); err != nil {
		return err
	}
	snap.backends[d.Backend] = domain.BackendRecord{
		ConfigHash:   d.ConfigHash,
		DiscoveredAt: time.Now(),
		ServerInfo:   d.ServerInfo,
		Tools:        d.Tools,
	}

	if err := snap.store(p, newProfileHash); err != nil {
		return err
	}
	p.emit(Event{Backend: d.Backend, Kind: EventAdded})
	return nil
}

// PatchRemove deletes backend from L1 and every backend:* vector from
// L2, then updates profileHash (spec §4.8 patchRemove).
func (p *Patcher) PatchRemove(backend, newProfileHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap, err := p.loadSnapshot()
	if err != nil {
		return err
	}

	delete(snap.backends, backend)
	removeBackendVectors(snap, backend)

	if err := snap.store(p, newProfileHash); err != nil {
		return err
	}
	p.emit(Event{Backend: backend, Kind: EventRemoved})
	return nil
}

// PatchUpdate is remove-then-add computed as a diff: tools unchanged in
// name+description keep their existing vector (no re-embed); new or
// changed tools are re-embedded; tools no longer present have their
// vectors dropped (spec §4.8 patchUpdate).
func (p *Patcher) PatchUpdate(ctx context.Context, d Discovered, newProfileHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap, err := p.loadSnapshot()
	if err != nil {
		return err
	}

	previous := snap.backends[d.Backend].Tools
	toEmbed, unchanged := diffTools(previous, d.Tools)

	keep := make(map[string]domain.VectorRecord, len(unchanged))
	keepMeta := make(map[string]domain.VectorMeta, len(unchanged))
	for _, t := range unchanged {
		id := t.QualifiedID(d.Backend)
		rec, recOK := snap.vectors[id]
		m, metaOK := snap.meta[id]
		if !recOK || !metaOK {
			// Unchanged by name+description, but its vector is missing
			// from the snapshot (e.g. a model-mismatch rebuild wiped
			// L2 out from under it) — re-embed rather than silently
			// dropping it.
			toEmbed = append(toEmbed, t)
			continue
		}
		keep[id] = rec
		keepMeta[id] = m
	}

	removeBackendVectors(snap, d.Backend)
	for id, rec := range keep {
		snap.vectors[id] = rec
	}
	for id, m := range keepMeta {
		snap.meta[id] = m
	}

	if err := p.embedBackend(ctx, snap, d.Backend, d.backendInfo(), toEmbed); err != nil {
		return err
	}
	snap.backends[d.Backend] = domain.BackendRecord{
		ConfigHash:   d.ConfigHash,
		DiscoveredAt: time.Now(),
		ServerInfo:   d.ServerInfo,
		Tools:        d.Tools,
	}

	if err := snap.store(p, newProfileHash); err != nil {
		return err
	}
	p.emit(Event{Backend: d.Backend, Kind: EventUpdated})
	return nil
}

// Rediscoverer dials a single backend and returns its current tool
// list. Reconcile uses it to refresh backends that L1 lacks or whose
// configHash has drifted from what L1 has cached; pkg/discovery.Worker
// satisfies the shape this needs for one spec.
type Rediscoverer interface {
	DiscoverOne(ctx context.Context, spec domain.LaunchSpec) (domain.ServerInfo, []domain.ToolDescriptor, error)
}

// Reconcile performs the full scan of spec §4.8 reconcile: backends
// present in profile but absent from (or stale in) L1 are rediscovered
// and patched in; backends present in L1 but absent from profile are
// removed. Intended for orchestrator startup whenever
// L1.profileHash != hash(profile).
func (p *Patcher) Reconcile(ctx context.Context, profile map[string]domain.LaunchSpec, rediscover Rediscoverer) error {
	newHash := domain.ProfileHash(profile)
	cached := p.live.Snapshot()

	vectorsStale, err := p.vectorsModelStale()
	if err != nil {
		return fmt.Errorf("checking vector cache model: %w", err)
	}

	for name, spec := range profile {
		record, ok := cached[name]
		configHash := spec.ConfigHash()
		// A serverInfo.version drift with no configHash change can only
		// be observed by actually dialing, which reconcile does not do
		// speculatively for every unchanged backend; such drift is
		// instead caught the next time the Discovery Worker runs and
		// reports a changed version through PatchUpdate directly.
		if ok && record.ConfigHash == configHash {
			if !vectorsStale {
				continue
			}
			// The embedding model changed since L2 was last written
			// (spec §4.7: "the entire L2 is discarded and rebuilt").
			// Re-embed this backend's already-known tools without
			// redialing it.
			discovered := Discovered{
				Backend:     name,
				ServerInfo:  record.ServerInfo,
				Tools:       record.Tools,
				ConfigHash:  configHash,
				Category:    spec.Category,
				Description: spec.Description,
			}
			if err := p.PatchUpdate(ctx, discovered, newHash); err != nil {
				return err
			}
			continue
		}

		info, tools, err := rediscover.DiscoverOne(ctx, spec)
		if err != nil {
			return fmt.Errorf("rediscovering %s: %w", name, err)
		}

		discovered := Discovered{
			Backend:     name,
			ServerInfo:  info,
			Tools:       tools,
			ConfigHash:  configHash,
			Category:    spec.Category,
			Description: spec.Description,
		}
		if ok {
			if err := p.PatchUpdate(ctx, discovered, newHash); err != nil {
				return err
			}
		} else {
			if err := p.PatchAdd(ctx, discovered, newHash); err != nil {
				return err
			}
		}
	}

	for name := range cached {
		if _, ok := profile[name]; !ok {
			if err := p.PatchRemove(name, newHash); err != nil {
				return err
			}
		}
	}

	return nil
}

// embedBackend embeds tools (already filtered to the ones that actually
// need it) and writes their records/meta into snap.
func (p *Patcher) embedBackend(ctx context.Context, snap snapshot, backend string, info embedding.BackendInfo, tools []domain.ToolDescriptor) error {
	if len(tools) == 0 {
		return nil
	}
	records, metas, err := p.engine.EmbedToolsBatch(ctx, backend, info, tools)
	if err != nil {
		return fmt.Errorf("embedding tools for %s: %w", backend, err)
	}
	for i, rec := range records {
		snap.vectors[rec.ToolID] = rec
		snap.meta[rec.ToolID] = metas[i]
	}
	return nil
}

// diffTools splits next against previous into (toEmbed, unchanged).
// A tool is unchanged if its name and description are identical to a
// tool of the same name in previous (spec §4.8 "tools unchanged in
// name+description retain their vectors").
func diffTools(previous, next []domain.ToolDescriptor) (toEmbed, unchanged []domain.ToolDescriptor) {
	prevByName := make(map[string]domain.ToolDescriptor, len(previous))
	for _, t := range previous {
		prevByName[t.Name] = t
	}
	for _, t := range next {
		if old, ok := prevByName[t.Name]; ok && old.Description == t.Description {
			unchanged = append(unchanged, t)
			continue
		}
		toEmbed = append(toEmbed, t)
	}
	return toEmbed, unchanged
}

// removeBackendVectors drops every vector/meta entry owned by backend.
func removeBackendVectors(snap snapshot, backend string) {
	prefix := backend + ":"
	for id := range snap.vectors {
		if hasPrefix(id, prefix) {
			delete(snap.vectors, id)
			delete(snap.meta, id)
		}
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
