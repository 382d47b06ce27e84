// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"time"

	"github.com/stacklok/toolgate/pkg/domain"
	"github.com/stacklok/toolgate/pkg/lockfile"
)

// MetadataCache is the L1 cache (spec §4.6): backend name -> its
// {configHash, discoveredAt, serverInfo, tools} record, as last
// discovered.
type MetadataCache struct {
	path string
}

// NewMetadataCache returns a MetadataCache persisted at path.
func NewMetadataCache(path string) *MetadataCache {
	return &MetadataCache{path: path}
}

// Load returns the cached backend records along with the profileHash
// they were captured against. ok is false if the cache is missing,
// unversioned, or otherwise unusable.
func (c *MetadataCache) Load() (backends map[string]domain.BackendRecord, profileHash string, ok bool, err error) {
	e, ok, err := loadEnvelope[map[string]domain.BackendRecord](c.path)
	if err != nil || !ok {
		return nil, "", false, err
	}
	return e.Payload, e.ProfileHash, true, nil
}

// Store persists backends against profileHash, replacing any prior
// content (spec §4.8 full reconcile path; incremental patches go
// through pkg/patcher instead).
func (c *MetadataCache) Store(backends map[string]domain.BackendRecord, profileHash string) error {
	return storeEnvelope(c.path, envelope[map[string]domain.BackendRecord]{
		SchemaVersion:  SchemaVersion,
		ProfileHash:    profileHash,
		LastModifiedAt: time.Now(),
		Payload:        backends,
	})
}

// Lock acquires the cross-process guard over this cache's file, for
// callers (pkg/patcher) that need a read-modify-write critical section
// spanning more than one Load/Store pair.
func (c *MetadataCache) Lock() (*lockfile.Guard, error) {
	return lockfile.Acquire(c.path)
}

// Path returns the backing file path.
func (c *MetadataCache) Path() string { return c.path }
