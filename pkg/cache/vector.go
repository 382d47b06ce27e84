// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"time"

	"github.com/stacklok/toolgate/pkg/domain"
	"github.com/stacklok/toolgate/pkg/lockfile"
)

// VectorCache is the L2 cache (spec §4.7): qualified tool id -> its
// embedding vector and the metadata of how it was generated, derived
// from L1 content rather than independently authoritative.
type VectorCache struct {
	path string
}

// NewVectorCache returns a VectorCache persisted at path.
func NewVectorCache(path string) *VectorCache {
	return &VectorCache{path: path}
}

type vectorPayload struct {
	Vectors map[string]domain.VectorRecord `json:"vectors"`
	Meta    map[string]domain.VectorMeta   `json:"meta"`
}

// Load returns the cached vectors and their generation metadata
// against the profileHash and embedding model identity (model name,
// dimension) they were captured for.
func (c *VectorCache) Load() (vectors map[string]domain.VectorRecord, meta map[string]domain.VectorMeta, profileHash, model string, dimension int, ok bool, err error) {
	e, ok, err := loadEnvelope[vectorPayload](c.path)
	if err != nil || !ok {
		return nil, nil, "", "", 0, false, err
	}
	return e.Payload.Vectors, e.Payload.Meta, e.ProfileHash, e.EmbedModel, e.Dimension, true, nil
}

// Store persists vectors/meta against profileHash and the embedding
// model identity (model, dimension) they were generated under.
func (c *VectorCache) Store(vectors map[string]domain.VectorRecord, meta map[string]domain.VectorMeta, profileHash, model string, dimension int) error {
	return storeEnvelope(c.path, envelope[vectorPayload]{
		SchemaVersion:  SchemaVersion,
		ProfileHash:    profileHash,
		EmbedModel:     model,
		Dimension:      dimension,
		LastModifiedAt: time.Now(),
		Payload:        vectorPayload{Vectors: vectors, Meta: meta},
	})
}

// Lock acquires the cross-process guard over this cache's file.
func (c *VectorCache) Lock() (*lockfile.Guard, error) {
	return lockfile.Acquire(c.path)
}

// Path returns the backing file path.
func (c *VectorCache) Path() string { return c.path }
