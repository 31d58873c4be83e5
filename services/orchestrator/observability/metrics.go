// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the retrieval core.
//
// # Description
//
// Metrics cover the degradation paths that matter operationally:
//   - Search volume by strategy and outcome
//   - Credential rotations and pool exhaustion per provider
//   - Memory-engine fallback activations by stage
//   - Retrieval latency histograms
//   - Consolidation merge counts
//
// All collectors are registered once via promauto on the default
// registry; exposing them over /metrics is the embedding process's job.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "lectern"

var (
	// SearchesTotal counts vector store searches.
	// Labels: strategy (indexed, sampled, exhaustive, hybrid),
	// outcome (hit, empty, error).
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "vectorstore",
		Name:      "searches_total",
		Help:      "Vector store searches by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	// RetrievalDuration measures similarity search latency.
	// Labels: strategy.
	RetrievalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "vectorstore",
		Name:      "retrieval_duration_seconds",
		Help:      "Similarity search latency by strategy.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"strategy"})

	// KeyRotations counts credential rotations per provider.
	KeyRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "provider",
		Name:      "key_rotations_total",
		Help:      "Round-robin credential rotations by provider.",
	}, []string{"provider"})

	// ProviderExhaustions counts rotate-and-retry loops that ran out of
	// credentials.
	ProviderExhaustions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "provider",
		Name:      "exhausted_total",
		Help:      "Provider calls that failed after exhausting every credential.",
	}, []string{"provider"})

	// MemoryFallbacks counts memory-engine degradations.
	// Labels: stage (intent, selection, recent, semantic, plan).
	MemoryFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "memory",
		Name:      "fallback_total",
		Help:      "Memory engine fallback activations by stage.",
	}, []string{"stage"})

	// ConsolidationMerges counts memory records merged away by
	// consolidation runs.
	ConsolidationMerges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "memory",
		Name:      "consolidation_merged_total",
		Help:      "Memory records merged into consolidated records.",
	})

	// EmbeddingCacheOps counts embedding cache lookups.
	// Labels: result (hit, miss).
	EmbeddingCacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "embedding",
		Name:      "cache_ops_total",
		Help:      "Embedding cache lookups by result.",
	}, []string{"result"})
)
