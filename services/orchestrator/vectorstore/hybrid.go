// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
	"github.com/harborai/lectern/services/orchestrator/observability"
)

// Hybrid chains the Weaviate index over the local store. The local store
// is the source of truth; the index is mirrored best-effort and consulted
// first on reads. Explicit filename filters always scan the local store
// exhaustively, because correctness of the filter matters more than speed
// there.
type Hybrid struct {
	local *LocalStore
	index *WeaviateIndex // nil when no index is deployed
}

// NewHybrid builds the chain. index may be nil.
func NewHybrid(local *LocalStore, index *WeaviateIndex) *Hybrid {
	return &Hybrid{local: local, index: index}
}

// Put writes to the local store; only a local failure is an error. The
// index mirror is best-effort.
func (h *Hybrid) Put(ctx context.Context, cards []datatypes.Card) error {
	if err := h.local.Put(ctx, cards); err != nil {
		return err
	}
	if h.index != nil {
		if err := h.index.Put(ctx, cards); err != nil {
			slog.Warn("Failed to mirror cards to the index, local store remains authoritative",
				"count", len(cards), "error", err)
		}
	}
	return nil
}

// DeleteSource removes the source from both tiers. The index deletion is
// best-effort like the mirror write.
func (h *Hybrid) DeleteSource(ctx context.Context, owner, collection, source string) error {
	if err := h.local.DeleteSource(ctx, owner, collection, source); err != nil {
		return err
	}
	if h.index != nil {
		if err := h.index.DeleteSource(ctx, owner, collection, source); err != nil {
			slog.Warn("Failed to delete source from the index", "source", source, "error", err)
		}
	}
	return nil
}

// Search dispatches by strategy. The default hybrid chain is: indexed,
// then on error or empty result sampled local search. Filenames force an
// exhaustive local scan regardless of the requested strategy.
func (h *Hybrid) Search(ctx context.Context, q SearchQuery) ([]Scored, error) {
	start := time.Now()
	strategy := q.Strategy
	if strategy == "" {
		strategy = StrategyHybrid
	}
	if len(q.Filenames) > 0 {
		strategy = StrategyExhaustive
	}

	hits, err := h.search(ctx, strategy, q)

	outcome := "hit"
	if err != nil {
		outcome = "error"
	} else if len(hits) == 0 {
		outcome = "empty"
	}
	observability.SearchesTotal.WithLabelValues(string(strategy), outcome).Inc()
	observability.RetrievalDuration.WithLabelValues(string(strategy)).Observe(time.Since(start).Seconds())
	return hits, err
}

func (h *Hybrid) search(ctx context.Context, strategy SearchStrategy, q SearchQuery) ([]Scored, error) {
	switch strategy {
	case StrategyIndexed:
		if h.index == nil {
			return nil, ErrEmptyEvidence
		}
		q.Strategy = StrategyIndexed
		return h.index.Search(ctx, q)

	case StrategySampled, StrategyExhaustive:
		q.Strategy = strategy
		return h.local.Search(ctx, q)

	default: // StrategyHybrid
		if h.index != nil {
			q.Strategy = StrategyIndexed
			hits, err := h.index.Search(ctx, q)
			if err == nil && len(hits) > 0 {
				return hits, nil
			}
			if err != nil {
				slog.Warn("Indexed search failed, falling back to local store", "error", err)
			}
		}
		q.Strategy = StrategySampled
		return h.local.Search(ctx, q)
	}
}
