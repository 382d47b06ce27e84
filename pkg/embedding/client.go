// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package embedding

import (
	"fmt"
	"time"

	tgerrors "github.com/stacklok/toolgate/pkg/errors"
)

// DefaultModel is the sentence-embedding model toolgate assumes its
// TEI-compatible service is serving unless overridden (spec §4.5
// "local sentence-embedding model"); its 384-wide output matches the
// default embedding dimension in pkg/config.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// Config is the subset of the Embedding Engine's configuration (spec
// §4.5, §6) needed to dial the embedding service.
type Config struct {
	ServiceURL string
	Model      string
	Dimension  int
	Timeout    time.Duration
}

// NewEmbedder dials the configured embedding service. A zero-value
// ServiceURL is a configuration error: the orchestrator cannot run the
// Semantic Finder without one.
func NewEmbedder(cfg Config) (Embedder, error) {
	if cfg.ServiceURL == "" {
		return nil, tgerrors.New(tgerrors.KindConfigError, "embedding service URL is required", nil)
	}
	if cfg.Dimension <= 0 {
		return nil, tgerrors.New(tgerrors.KindConfigError, fmt.Sprintf("invalid embedding dimension %d", cfg.Dimension), nil)
	}
	return newTEIClient(cfg.ServiceURL, cfg.Dimension, cfg.Timeout), nil
}
