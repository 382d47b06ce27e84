// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package profile implements the Profile Store (spec §4.1, component C1):
// the durable set of configured backends. All writes are
// read-modify-write cycles serialized by a cross-process file lock so a
// CLI invocation and a running server never race on the same document.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
	"github.com/stacklok/toolgate/pkg/fileutils"
	"github.com/stacklok/toolgate/pkg/lockfile"
)

// document is the on-disk shape of a profile: backendName -> LaunchSpec.
type document struct {
	Backends map[string]domain.LaunchSpec `json:"backends"`
}

// Store is the Profile Store. It is safe for concurrent use from
// multiple goroutines in this process, and for concurrent use from
// multiple processes via the file lock acquired for every write.
type Store struct {
	path string
}

// NewStore returns a Store backed by the document at path (spec §6:
// "<base>/profiles/<profile>.json").
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Get returns the named backend's launch spec, or NotFound.
func (s *Store) Get(name string) (domain.LaunchSpec, error) {
	doc, err := s.load()
	if err != nil {
		return domain.LaunchSpec{}, err
	}
	spec, ok := doc.Backends[name]
	if !ok {
		return domain.LaunchSpec{}, tgerrors.NewBackend(tgerrors.KindNotFound, name, "backend not found in profile", nil)
	}
	return spec, nil
}

// List returns every configured backend, keyed by name.
func (s *Store) List() (map[string]domain.LaunchSpec, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.LaunchSpec, len(doc.Backends))
	for k, v := range doc.Backends {
		out[k] = v
	}
	return out, nil
}

// Names returns the sorted list of configured backend names.
func (s *Store) Names() ([]string, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doc.Backends))
	for k := range doc.Backends {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

// Upsert inserts or replaces a backend's launch spec.
func (s *Store) Upsert(spec domain.LaunchSpec) error {
	return s.readModifyWrite(func(doc *document) error {
		doc.Backends[spec.Name] = spec
		return nil
	})
}

// Add inserts a backend's launch spec, failing AlreadyExists if one is
// already registered under that name (spec §4.1 failure kinds).
func (s *Store) Add(spec domain.LaunchSpec) error {
	return s.readModifyWrite(func(doc *document) error {
		if _, exists := doc.Backends[spec.Name]; exists {
			return tgerrors.NewBackend(tgerrors.KindAlreadyExists, spec.Name, "backend already configured", nil)
		}
		doc.Backends[spec.Name] = spec
		return nil
	})
}

// Remove deletes a backend from the profile, failing NotFound if absent.
func (s *Store) Remove(name string) error {
	return s.readModifyWrite(func(doc *document) error {
		if _, exists := doc.Backends[name]; !exists {
			return tgerrors.NewBackend(tgerrors.KindNotFound, name, "backend not found in profile", nil)
		}
		delete(doc.Backends, name)
		return nil
	})
}

// ProfileHash returns the stable content hash of spec §3/§4.1 over the
// current profile.
func (s *Store) ProfileHash() (string, error) {
	doc, err := s.load()
	if err != nil {
		return "", err
	}
	return domain.ProfileHash(doc.Backends), nil
}

// ConfigHash returns a single backend's config hash, or NotFound.
func (s *Store) ConfigHash(name string) (string, error) {
	spec, err := s.Get(name)
	if err != nil {
		return "", err
	}
	return spec.ConfigHash(), nil
}

func (s *Store) load() (*document, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &document{Backends: map[string]domain.LaunchSpec{}}, nil
	}
	if err != nil {
		return nil, tgerrors.New(tgerrors.KindIOError, fmt.Sprintf("reading profile %s", s.path), err)
	}
	if len(b) == 0 {
		return &document{Backends: map[string]domain.LaunchSpec{}}, nil
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, tgerrors.New(tgerrors.KindIOError, fmt.Sprintf("parsing profile %s", s.path), err)
	}
	if doc.Backends == nil {
		doc.Backends = map[string]domain.LaunchSpec{}
	}
	return &doc, nil
}

// readModifyWrite executes mutate under the cross-process file lock and
// persists the result atomically, matching the protocol of spec §4.1 and
// §6.
func (s *Store) readModifyWrite(mutate func(doc *document) error) error {
	guard, err := lockfile.Acquire(s.path)
	if err != nil {
		return tgerrors.New(tgerrors.KindIOError, "acquiring profile lock", err)
	}
	defer guard.Release()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := mutate(doc); err != nil {
		return err
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return tgerrors.New(tgerrors.KindIOError, "marshaling profile", err)
	}
	if err := fileutils.AtomicWriteFile(s.path, b, 0o600); err != nil {
		return tgerrors.New(tgerrors.KindIOError, "writing profile", err)
	}
	return nil
}
