// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
	"github.com/harborai/lectern/services/orchestrator/observability"
	"github.com/harborai/lectern/services/orchestrator/vectorstore"
)

// Similarity thresholds for grouping near-duplicate records. Embedding
// similarity is authoritative; word-overlap Jaccard covers record pairs
// where either side has no embedding.
const (
	consolidateCosine  = 0.7
	consolidateJaccard = 0.6
)

// Consolidator merges near-duplicate memory records so long-lived owners
// do not accumulate dozens of variants of the same fact. Merging is
// lossy on purpose: the originals are deleted after the merged record is
// written.
type Consolidator struct {
	store *PersistentStore
}

func NewConsolidator(store *PersistentStore) *Consolidator {
	return &Consolidator{store: store}
}

// Run performs one consolidation pass and reports how many merges it
// made. Each pass groups transitively-similar records and replaces every
// group of two or more with a single merged record. One pass is bounded:
// a merged record is not re-compared until the next Run.
func (c *Consolidator) Run(ctx context.Context, owner, collection string) (int, error) {
	ctx, span := tracer.Start(ctx, "Consolidator.Run")
	defer span.End()

	records, err := c.store.List(ctx, owner, collection)
	if err != nil {
		return 0, fmt.Errorf("failed to list records for consolidation: %w", err)
	}
	if len(records) < 2 {
		return 0, nil
	}

	groups := groupSimilar(records)
	merges := 0
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		merged := mergeGroup(group)
		if err := c.store.Put(ctx, &merged); err != nil {
			slog.Warn("Failed to write merged record, keeping originals", "owner", owner, "error", err)
			continue
		}
		// The merged record inherits the oldest member's key; deleting
		// that member would delete the merge itself.
		mergedKey := memKey(&merged)
		for i := range group {
			if memKey(&group[i]) == mergedKey {
				continue
			}
			if err := c.store.Delete(ctx, &group[i]); err != nil {
				slog.Warn("Failed to delete consolidated original", "id", group[i].ID, "error", err)
			}
		}
		merges++
		observability.ConsolidationMerges.Inc()
	}
	if merges > 0 {
		slog.Info("Consolidated memory records", "owner", owner, "collection", collection, "merges", merges)
	}
	return merges, nil
}

// groupSimilar buckets records by transitive similarity: a record joins
// the first existing group any member of which it is similar to.
func groupSimilar(records []datatypes.MemoryRecord) [][]datatypes.MemoryRecord {
	var groups [][]datatypes.MemoryRecord
next:
	for _, rec := range records {
		for gi, group := range groups {
			for _, member := range group {
				if similar(&rec, &member) {
					groups[gi] = append(groups[gi], rec)
					continue next
				}
			}
		}
		groups = append(groups, []datatypes.MemoryRecord{rec})
	}
	return groups
}

// similar decides if two records describe the same thing. Records of
// different kinds never merge.
func similar(a, b *datatypes.MemoryRecord) bool {
	if a.Kind != b.Kind {
		return false
	}
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		return vectorstore.CosineSimilarity(a.Embedding, b.Embedding) > consolidateCosine
	}
	return jaccardWords(a.Content, b.Content) > consolidateJaccard
}

// jaccardWords is word-set Jaccard similarity over lowercased content.
func jaccardWords(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

// mergeGroup collapses a similarity group into one record. The oldest
// member anchors identity and content; summaries concatenate, importance
// takes the max plus a small bump capped at 1, tags union, access counts
// sum.
func mergeGroup(group []datatypes.MemoryRecord) datatypes.MemoryRecord {
	merged := group[0]

	var summaries []string
	tags := make(map[string]bool)
	access := 0
	importance := 0.0
	for _, rec := range group {
		if rec.Summary != "" {
			summaries = append(summaries, rec.Summary)
		}
		for _, tag := range rec.Tags {
			tags[tag] = true
		}
		access += rec.AccessCount
		if rec.Importance > importance {
			importance = rec.Importance
		}
		if rec.CreatedAt.Before(merged.CreatedAt) {
			merged = rec
		}
	}

	merged.Summary = strings.Join(summaries, " | ")
	merged.AccessCount = access
	merged.Importance = importance + 0.1
	if merged.Importance > 1 {
		merged.Importance = 1
	}
	merged.Tags = merged.Tags[:0:0]
	for tag := range tags {
		merged.Tags = append(merged.Tags, tag)
	}
	sort.Strings(merged.Tags)
	return merged
}
