// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"math"
	"testing"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical unit vectors", []float32{1, 0}, []float32{1, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero query", []float32{0, 0}, []float32{1, 0}, 0.0},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 0.0},
		{"mismatched widths", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
		{"empty", nil, nil, 0.0},
		// Sub-unit norms: denominator 0.25 clamps to 1, so the score is
		// the raw dot product, not 1.0.
		{"clamped denominator", []float32{0.3, 0.4}, []float32{0.3, 0.4}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMergeScoredDedupesKeepingMaxScore(t *testing.T) {
	existing := []Scored{
		{Card: datatypes.Card{CardID: "a"}, Score: 0.9},
		{Card: datatypes.Card{CardID: "b"}, Score: 0.5},
	}
	more := []Scored{
		{Card: datatypes.Card{CardID: "b"}, Score: 0.8},
		{Card: datatypes.Card{CardID: "c"}, Score: 0.7},
		{Card: datatypes.Card{CardID: "a"}, Score: 0.1},
	}
	merged := MergeScored(existing, more)
	if len(merged) != 3 {
		t.Fatalf("expected 3 unique cards, got %d", len(merged))
	}
	byID := map[string]float64{}
	for _, hit := range merged {
		byID[hit.Card.CardID] = hit.Score
	}
	if byID["a"] != 0.9 {
		t.Errorf("card a score = %v, want max 0.9", byID["a"])
	}
	if byID["b"] != 0.8 {
		t.Errorf("card b score = %v, want max 0.8", byID["b"])
	}
	if byID["c"] != 0.7 {
		t.Errorf("card c score = %v, want 0.7", byID["c"])
	}
	// Order: existing entries first, new entries appended.
	if merged[0].Card.CardID != "a" || merged[1].Card.CardID != "b" || merged[2].Card.CardID != "c" {
		t.Errorf("merge order wrong: %v %v %v", merged[0].Card.CardID, merged[1].Card.CardID, merged[2].Card.CardID)
	}
}

func TestKeywordBoost(t *testing.T) {
	hits := []Scored{
		{Card: datatypes.Card{CardID: "near", Content: "the warranty covers parts and labor"}, Score: 0.80},
		{Card: datatypes.Card{CardID: "tie", Content: "unrelated shipping information"}, Score: 0.80},
		{Card: datatypes.Card{CardID: "far", Content: "warranty warranty warranty"}, Score: 0.40},
	}
	KeywordBoost(hits, []string{"warranty"})

	if hits[0].Score <= 0.80 {
		t.Errorf("matching near-tie hit should be boosted, got %v", hits[0].Score)
	}
	if hits[1].Score != 0.80 {
		t.Errorf("non-matching hit should keep its score, got %v", hits[1].Score)
	}
	if hits[2].Score != 0.40 {
		t.Errorf("hit far behind the leader should not be boosted, got %v", hits[2].Score)
	}
}

func TestKeywordBoostNoKeywords(t *testing.T) {
	hits := []Scored{{Card: datatypes.Card{CardID: "a", Content: "text"}, Score: 0.5}}
	KeywordBoost(hits, nil)
	if hits[0].Score != 0.5 {
		t.Errorf("no keywords should not change scores, got %v", hits[0].Score)
	}
}
