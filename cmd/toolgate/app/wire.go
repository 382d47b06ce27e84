// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/stacklok/toolgate/pkg/backendtransport"
	"github.com/stacklok/toolgate/pkg/cache"
	"github.com/stacklok/toolgate/pkg/config"
	"github.com/stacklok/toolgate/pkg/discovery"
	"github.com/stacklok/toolgate/pkg/embedding"
	"github.com/stacklok/toolgate/pkg/finder"
	"github.com/stacklok/toolgate/pkg/health"
	"github.com/stacklok/toolgate/pkg/orchestrator"
	"github.com/stacklok/toolgate/pkg/patcher"
	"github.com/stacklok/toolgate/pkg/pool"
	"github.com/stacklok/toolgate/pkg/profile"
	"github.com/stacklok/toolgate/pkg/router"
)

// ensureStateDirs creates the directories spec §6's persisted-state
// layout needs under cfg.BaseDir, so a first run doesn't fail writing
// the profile or cache documents into a missing directory.
func ensureStateDirs(cfg config.Config) error {
	for _, sub := range []string{"profiles", "cache", "health", "logs", "credentials"} {
		if err := os.MkdirAll(filepath.Join(cfg.BaseDir, sub), 0o755); err != nil {
			return fmt.Errorf("creating %s directory: %w", sub, err)
		}
	}
	return nil
}

// profileStoreFor opens the profile store alone, for commands like
// "backend list" that only need to read the profile and would
// otherwise pay the cost of wiring the full orchestrator.
func profileStoreFor(cfg config.Config) (*profile.Store, error) {
	if err := ensureStateDirs(cfg); err != nil {
		return nil, err
	}
	return profile.NewStore(cfg.ProfilePath()), nil
}

// buildOrchestrator wires every component of spec §4 into an
// Orchestrator Facade from cfg, the same dependency graph
// cmd/vmcp/app/commands.go assembles for its own aggregator before
// handing it to a server.
func buildOrchestrator(cfg config.Config) (*orchestrator.Orchestrator, error) {
	if err := ensureStateDirs(cfg); err != nil {
		return nil, err
	}

	profileStore := profile.NewStore(cfg.ProfilePath())
	metadataCache := cache.NewMetadataCache(cfg.MetadataCachePath())
	vectorCache := cache.NewVectorCache(cfg.VectorCachePath())

	embedder, err := embedding.NewEmbedder(cfg.EmbeddingConfig())
	if err != nil {
		return nil, fmt.Errorf("building embedding client: %w", err)
	}
	augmentation, err := embedding.LoadDefaultAugmentation()
	if err != nil {
		return nil, fmt.Errorf("loading default augmentation phrases: %w", err)
	}
	engine := embedding.NewEngine(embedder, augmentation, embedding.WithModel(cfg.EmbeddingConfig().Model))

	patch, err := patcher.New(metadataCache, vectorCache, engine)
	if err != nil {
		return nil, fmt.Errorf("loading caches: %w", err)
	}

	monitor := health.NewMonitor()
	transportFactory := backendtransport.NewFactory(backendtransport.NoCredentials{}, filepath.Join(cfg.BaseDir, "logs"))
	worker := discovery.NewWorker(transportFactory, discovery.WithDeadline(cfg.DiscoveryDeadline()))
	connPool := pool.New(transportFactory, monitor,
		pool.WithMaxOpen(cfg.MaxOpenConnections),
		pool.WithMaxReuse(cfg.MaxReusePerConnection),
	)

	semanticFinder := finder.New(patch.Live(), patch.LiveVectors(), engine, monitor)
	invocationRouter := router.New(patch.Live(), profileStore, monitor, connPool, router.WithDeadline(cfg.RunDeadline()))

	return orchestrator.New(orchestrator.Deps{
		Profile:      profileStore,
		Health:       monitor,
		Worker:       worker,
		Patcher:      patch,
		Finder:       semanticFinder,
		Router:       invocationRouter,
		Pool:         connPool,
		IdleEviction: cfg.IdleEviction(),
	}), nil
}
