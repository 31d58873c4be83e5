// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harborai/lectern/services/orchestrator/embedding"
	"github.com/harborai/lectern/services/orchestrator/vectorstore"
)

// MultiSearch runs the query variants against the store and stops at the
// first strategy/variant combination that yields evidence. The requested
// strategy is tried across every variant before falling back to an
// exhaustive scan. Results from combinations tried so far are deduplicated
// by card identity via MergeScored, keeping the highest score seen.
//
// A search error on one combination is logged and skipped; MultiSearch only
// fails when the variants cannot be embedded. An empty result is not an
// error.
func MultiSearch(ctx context.Context, store vectorstore.Store, embedder embedding.Port, base vectorstore.SearchQuery, variants []string) ([]vectorstore.Scored, error) {
	ctx, span := tracer.Start(ctx, "MultiSearch")
	defer span.End()

	if len(variants) == 0 {
		return nil, nil
	}

	vectors, err := embedder.Embed(ctx, variants)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query variants: %w", err)
	}
	if len(vectors) != len(variants) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d variants", len(vectors), len(variants))
	}

	strategies := []vectorstore.SearchStrategy{base.Strategy}
	if base.Strategy != vectorstore.StrategyExhaustive {
		strategies = append(strategies, vectorstore.StrategyExhaustive)
	}

	var merged []vectorstore.Scored
	for _, strategy := range strategies {
		for i, variant := range variants {
			query := base
			query.Vector = vectors[i]
			query.Strategy = strategy

			results, err := store.Search(ctx, query)
			if err != nil {
				slog.Warn("Variant search failed, trying next combination",
					"strategy", string(strategy), "variant", i, "error", err)
				continue
			}
			merged = vectorstore.MergeScored(merged, results)
			if len(merged) > 0 {
				slog.Debug("Variant search produced evidence",
					"strategy", string(strategy), "variant", variant, "results", len(merged))
				return merged, nil
			}
		}
	}
	return merged, nil
}
