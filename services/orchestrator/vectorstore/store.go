// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vectorstore stores document cards and retrieves them by vector
// similarity. A local badger-backed store is always available; a Weaviate
// index accelerates large collections when deployed, with every indexed
// query able to fall back to the local store.
package vectorstore

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
)

// SearchStrategy selects how candidates are gathered before scoring.
type SearchStrategy string

const (
	// StrategyIndexed queries the remote vector index.
	StrategyIndexed SearchStrategy = "indexed"

	// StrategySampled scores only the most recently inserted candidates.
	StrategySampled SearchStrategy = "sampled"

	// StrategyExhaustive scores every matching card.
	StrategyExhaustive SearchStrategy = "exhaustive"

	// StrategyHybrid tries the index first and falls back to sampled
	// local search. This is the default.
	StrategyHybrid SearchStrategy = "hybrid"
)

// SearchQuery describes one retrieval request.
type SearchQuery struct {
	OwnerID      string
	CollectionID string

	// Vector is the query embedding. Its width must match the store's
	// dimension.
	Vector []float32

	// K is the maximum number of results.
	K int

	// Filenames, when set, restricts candidates to cards from these
	// sources. The filter applies before scoring.
	Filenames []string

	// Keywords, when set, boost near-tie scores by lexical overlap.
	Keywords []string

	Strategy SearchStrategy
}

// Scored is one search hit.
type Scored struct {
	Card  datatypes.Card
	Score float64
}

// Store is the retrieval contract the rest of the orchestrator depends
// on.
type Store interface {
	// Put writes cards. A dimension mismatch on any card rejects the
	// whole batch and writes nothing.
	Put(ctx context.Context, cards []datatypes.Card) error

	// Search returns up to K hits, best first. Ties keep insertion
	// order.
	Search(ctx context.Context, q SearchQuery) ([]Scored, error)

	// DeleteSource removes every card ingested from one source file.
	DeleteSource(ctx context.Context, owner, collection, source string) error
}

// ========================================================================
// Scoring
// ========================================================================

// CosineSimilarity computes cosine similarity with the denominator
// clamped to a minimum of 1.0, so zero vectors score 0 against everything
// instead of dividing by zero. Mismatched widths score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom < 1.0 {
		denom = 1.0
	}
	return dot / denom
}

// sortByScore orders hits best first. The sort is stable, so equal scores
// keep their prior (insertion) order.
func sortByScore(hits []Scored) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
}

// MergeScored combines two result sets, deduplicating by card ID and
// keeping the maximum score for duplicates. Order follows the inputs:
// existing first, then new cards from more.
func MergeScored(existing, more []Scored) []Scored {
	out := make([]Scored, 0, len(existing)+len(more))
	index := make(map[string]int, len(existing))
	for _, hit := range existing {
		index[hit.Card.CardID] = len(out)
		out = append(out, hit)
	}
	for _, hit := range more {
		if at, ok := index[hit.Card.CardID]; ok {
			if hit.Score > out[at].Score {
				out[at].Score = hit.Score
			}
			continue
		}
		index[hit.Card.CardID] = len(out)
		out = append(out, hit)
	}
	return out
}

// keywordBoostBand is the score distance from the leader within which
// keyword overlap may reorder results. Hits clearly behind the leader are
// left alone.
const keywordBoostBand = 0.05

// KeywordBoost nudges near-tie scores by lexical keyword overlap. Each
// hit within the band of the current best score is multiplied by
// 1 + 0.1*overlap, where overlap is the fraction of query keywords
// present in the card content.
func KeywordBoost(hits []Scored, keywords []string) {
	if len(hits) == 0 || len(keywords) == 0 {
		return
	}
	best := hits[0].Score
	for _, h := range hits[1:] {
		if h.Score > best {
			best = h.Score
		}
	}
	for i := range hits {
		if best-hits[i].Score > keywordBoostBand {
			continue
		}
		overlap := keywordOverlap(hits[i].Card.Content, keywords)
		if overlap > 0 {
			hits[i].Score *= 1 + 0.1*overlap
		}
	}
}

func keywordOverlap(content string, keywords []string) float64 {
	lower := strings.ToLower(content)
	found := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			found++
		}
	}
	return float64(found) / float64(len(keywords))
}
