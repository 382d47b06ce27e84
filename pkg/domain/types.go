// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package domain holds the data model shared by every component of
// toolgate: the aggregating proxy described in spec §3. Types here have
// no behavior beyond small pure helpers (hashing, qualified-id
// formatting) so that profile, cache, discovery, health, and router
// packages can all depend on them without importing each other.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	tgerrors "github.com/stacklok/toolgate/pkg/errors"
)

// TransportKind is the transport tag of a backend's launch spec (spec §3).
type TransportKind string

// Transport kinds supported by the Transport Factory (spec §4.2).
const (
	TransportStdio         TransportKind = "stdio"
	TransportHTTPStreaming TransportKind = "http_streaming"
	TransportSSE           TransportKind = "sse"
)

// AuthKind is the credential kind attached to an HTTP-variant backend.
type AuthKind string

// Supported auth kinds (spec §4.2); the core never renews or persists
// material for these, it only looks them up via a CredentialProvider.
const (
	AuthBearer AuthKind = "bearer"
	AuthBasic  AuthKind = "basic"
	AuthAPIKey AuthKind = "api-key"
	AuthOAuth  AuthKind = "oauth"
)

// AuthSpec names which credential the Transport Factory should attach;
// the material itself lives behind a CredentialProvider (spec §4.2, §9).
type AuthSpec struct {
	Kind AuthKind `json:"kind" yaml:"kind"`
	// Ref names the credential within a CredentialProvider; toolgate
	// never stores the material inline.
	Ref string `json:"ref,omitempty" yaml:"ref,omitempty"`
}

// LaunchSpec is a backend's configuration entity (spec §3 "Backend").
// Exactly one of (Command) or (BaseURL) is meaningful depending on
// Transport.
type LaunchSpec struct {
	Name      string            `json:"name" yaml:"name"`
	Transport TransportKind     `json:"transport" yaml:"transport"`
	Command   string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args      []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	BaseURL   string            `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	Auth      *AuthSpec         `json:"auth,omitempty" yaml:"auth,omitempty"`
	// Category feeds the Embedding Engine's domain-capability boosting
	// (spec §4.5); e.g. "shell", "vcs", "ticketing".
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	// Description is a short human description of the backend appended
	// to the text fed to the embedding model (spec §4.5).
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ConfigHash returns a stable content hash over every launch-affecting
// field, per spec §3/§4.1. Two LaunchSpecs that differ only in Category
// or Description hash the same, since those fields don't affect how the
// backend is actually launched.
func (s LaunchSpec) ConfigHash() string {
	canonical := struct {
		Transport TransportKind     `json:"transport"`
		Command   string            `json:"command,omitempty"`
		Args      []string          `json:"args,omitempty"`
		Env       map[string]string `json:"env,omitempty"`
		BaseURL   string            `json:"baseUrl,omitempty"`
		Auth      *AuthSpec         `json:"auth,omitempty"`
	}{s.Transport, s.Command, s.Args, s.Env, s.BaseURL, s.Auth}

	return hashJSON(canonical)
}

// ProfileHash computes the profile hash of spec §3: a hash over the
// sorted list of (backend_name, configHash) pairs, deliberately not over
// the full profile, so reordering or unrelated field changes don't
// invalidate caches.
func ProfileHash(specs map[string]LaunchSpec) string {
	type pair struct {
		Name       string `json:"name"`
		ConfigHash string `json:"configHash"`
	}
	pairs := make([]pair, 0, len(specs))
	for name, spec := range specs {
		pairs = append(pairs, pair{Name: name, ConfigHash: spec.ConfigHash()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return hashJSON(pairs)
}

func hashJSON(v any) string {
	// canonical: sorted keys via json.Marshal (Go maps already marshal
	// with sorted keys) and no insignificant whitespace.
	b, err := json.Marshal(v)
	if err != nil {
		// Marshaling our own well-typed structs cannot fail; treat it
		// as a programmer error rather than threading another error
		// return through every caller.
		panic(fmt.Sprintf("domain: hashJSON: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ServerInfo is the {name, version} a backend reports during handshake
// (spec §3), used to trigger cache invalidation on a version bump.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ParamSchema is one entry of a tool's structured input schema (spec §3,
// §9: "dynamic schemas are data, not types").
type ParamSchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// InputSchema maps parameter name to its schema.
type InputSchema map[string]ParamSchema

// ToolDescriptor is a tool exposed by a backend (spec §3).
type ToolDescriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// QualifiedID returns the "backend:tool" wire identity (spec §3).
func (t ToolDescriptor) QualifiedID(backend string) string {
	return QualifyToolID(backend, t.Name)
}

// QualifyToolID joins a backend name and tool name into a qualified id.
func QualifyToolID(backend, tool string) string {
	return backend + ":" + tool
}

// SplitQualifiedID parses "backend:tool" into its parts. Returns
// InvalidToolId if there's no colon or either part is empty.
func SplitQualifiedID(qualified string) (backend, tool string, err error) {
	idx := strings.IndexByte(qualified, ':')
	if idx < 0 {
		return "", "", tgerrors.New(tgerrors.KindInvalidToolID, "missing ':' separator in tool id: "+qualified, nil)
	}
	backend, tool = qualified[:idx], qualified[idx+1:]
	if backend == "" || tool == "" {
		return "", "", tgerrors.New(tgerrors.KindInvalidToolID, "empty backend or tool name in: "+qualified, nil)
	}
	return backend, tool, nil
}

// HealthStatus is a backend's place in the Health Monitor state machine
// (spec §4.3).
type HealthStatus string

// Health states.
const (
	HealthHealthy     HealthStatus = "healthy"
	HealthDegraded    HealthStatus = "degraded"
	HealthQuarantined HealthStatus = "quarantined"
)

// HealthState is the per-backend record the Health Monitor owns
// (spec §3).
type HealthState struct {
	Status              HealthStatus   `json:"status"`
	ConsecutiveFailures int            `json:"consecutiveFailures"`
	LastFailureAt       time.Time      `json:"lastFailureAt,omitzero"`
	LastFailureKind     tgerrors.Kind  `json:"lastFailureKind,omitempty"`
	QuarantinedAt       time.Time      `json:"quarantinedAt,omitzero"`
}

// BackendRecord is one backend's block in the Tool Metadata Cache (spec
// §4.6): everything the Cache Patcher needs to decide, on reconcile,
// whether a backend needs rediscovery without dialing it.
type BackendRecord struct {
	ConfigHash   string           `json:"configHash"`
	DiscoveredAt time.Time        `json:"discoveredAt"`
	ServerInfo   ServerInfo       `json:"serverInfo"`
	Tools        []ToolDescriptor `json:"tools"`
}

// VectorRecord is one entry of the Embedding Cache (spec §3).
type VectorRecord struct {
	ToolID string    `json:"toolId"`
	Vector []float32 `json:"vector"`
}

// VectorMeta is the L2 sidecar metadata allowing re-embedding without
// re-enumeration (spec §3, §4.7).
type VectorMeta struct {
	ToolID      string    `json:"toolId"`
	Backend     string    `json:"backend"`
	GeneratedAt time.Time `json:"generatedAt"`
	SourceText  string    `json:"sourceText"`
}
