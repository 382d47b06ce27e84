// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ambient Prometheus metrics for the operations this package fans out
// to (discovery, cache patching, pool occupancy, quarantine state),
// scraped at the upstream HTTP listener's /metrics endpoint.
var (
	discoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolgate_discovery_duration_seconds",
			Help:    "Time spent discovering a backend's tools.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "result"},
	)

	patchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_cache_patches_total",
			Help: "Cache patch operations applied, by kind.",
		},
		[]string{"kind"},
	)

	poolOpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolgate_pool_open_connections",
			Help: "Pooled backend connections currently open.",
		},
	)

	quarantinedBackends = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolgate_quarantined_backends",
			Help: "Backends currently in the quarantined health state.",
		},
	)
)
