// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the Tool Metadata Cache (C6, "L1") and the
// Embedding Cache (C7, "L2") from spec §4.6/§4.7: two persisted JSON
// documents, each wrapped in a {schemaVersion, profileHash,
// lastModifiedAt, payload} envelope, invalidated purely by comparing
// the stored profileHash against the Profile Store's current one
// (spec §5 "content-hash based cache invalidation" — no TTL layered on
// top, see DESIGN.md Open Question decisions).
package cache

import (
	"encoding/json"
	"os"
	"time"

	"github.com/stacklok/toolgate/pkg/fileutils"
	"github.com/stacklok/toolgate/pkg/lockfile"
)

// SchemaVersion is bumped whenever the payload shape changes
// incompatibly; a mismatched version is treated the same as a stale
// profileHash (spec §6).
const SchemaVersion = 1

// envelope is the on-disk shape shared by both caches. EmbedModel and
// Dimension are only populated by the L2 (vector) cache: they record
// the embedding model's identity so a later model change can be
// detected without comparing vector contents (spec §4.5 "the model
// name and d are stored in the L2 envelope; a mismatch forces a full
// re-embed").
type envelope[T any] struct {
	SchemaVersion  int       `json:"schemaVersion"`
	ProfileHash    string    `json:"profileHash"`
	LastModifiedAt time.Time `json:"lastModifiedAt"`
	EmbedModel     string    `json:"embedModel,omitempty"`
	Dimension      int       `json:"dimension,omitempty"`
	Payload        T         `json:"payload"`
}

// loadEnvelope reads and decodes path, returning (zero value, false,
// nil) when the file doesn't exist or fails schema/version validation
// — both are "start from empty" conditions, not errors, since a stale
// or missing cache is always safe to rebuild.
func loadEnvelope[T any](path string) (envelope[T], bool, error) {
	var e envelope[T]

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return e, false, nil
		}
		return e, false, err
	}
	if len(data) == 0 {
		return e, false, nil
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return e, false, nil
	}
	if e.SchemaVersion != SchemaVersion {
		return e, false, nil
	}
	return e, true, nil
}

// storeEnvelope writes e to path atomically, under a cross-process
// lock shared with any concurrent reader/writer of the same path
// (spec §6 atomic write protocol).
func storeEnvelope[T any](path string, e envelope[T]) error {
	guard, err := lockfile.Acquire(path)
	if err != nil {
		return err
	}
	defer guard.Release()

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return fileutils.AtomicWriteFile(path, data, 0o600)
}
