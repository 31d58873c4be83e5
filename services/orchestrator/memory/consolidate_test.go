// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
)

func TestConsolidatorMergesSimilarEmbeddings(t *testing.T) {
	store := newTestPersistentStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	a := testRecord("a", datatypes.MemoryQA, "the warranty lasts two years", base, []float32{1, 0})
	a.Summary = "warranty duration"
	a.Tags = []string{"warranty"}
	a.AccessCount = 2
	a.Importance = 0.6

	b := testRecord("b", datatypes.MemoryQA, "warranty covers twenty four months", base.Add(time.Minute), []float32{0.99, 0.01})
	b.Summary = "warranty length"
	b.Tags = []string{"coverage"}
	b.AccessCount = 3
	b.Importance = 0.4

	unrelated := testRecord("c", datatypes.MemoryQA, "shipping takes five days", base.Add(2*time.Minute), []float32{0, 1})

	for _, rec := range []*datatypes.MemoryRecord{&a, &b, &unrelated} {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	consolidator := NewConsolidator(store)
	merges, err := consolidator.Run(ctx, "owner", "coll")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if merges != 1 {
		t.Fatalf("expected 1 merge, got %d", merges)
	}

	records, err := store.List(ctx, "owner", "coll")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected merged + unrelated = 2 records, got %d", len(records))
	}

	var merged *datatypes.MemoryRecord
	for i := range records {
		if records[i].ID == "a" {
			merged = &records[i]
		}
	}
	if merged == nil {
		t.Fatal("merged record should anchor on the oldest member (a)")
	}
	if merged.AccessCount != 5 {
		t.Errorf("merged access count = %d, want summed 5", merged.AccessCount)
	}
	if diff := merged.Importance - 0.7; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("merged importance = %v, want max+0.1 = 0.7", merged.Importance)
	}
	if len(merged.Tags) != 2 {
		t.Errorf("merged tags = %v, want union of both", merged.Tags)
	}
	if merged.Summary != "warranty duration | warranty length" {
		t.Errorf("merged summary = %q", merged.Summary)
	}
}

func TestConsolidatorJaccardFallback(t *testing.T) {
	store := newTestPersistentStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	// No embeddings: word-overlap similarity decides.
	a := testRecord("a", datatypes.MemoryGeneral, "the quick brown fox jumps over the dog", base, nil)
	b := testRecord("b", datatypes.MemoryGeneral, "the quick brown fox jumps over the cat", base.Add(time.Second), nil)
	c := testRecord("c", datatypes.MemoryGeneral, "completely different topic entirely here", base.Add(2*time.Second), nil)

	for _, rec := range []*datatypes.MemoryRecord{&a, &b, &c} {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	merges, err := NewConsolidator(store).Run(ctx, "owner", "coll")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if merges != 1 {
		t.Errorf("expected 1 merge from word overlap, got %d", merges)
	}
}

func TestConsolidatorDoesNotMergeAcrossKinds(t *testing.T) {
	store := newTestPersistentStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	a := testRecord("a", datatypes.MemoryQA, "identical content", base, []float32{1, 0})
	b := testRecord("b", datatypes.MemoryGeneral, "identical content", base.Add(time.Second), []float32{1, 0})
	for _, rec := range []*datatypes.MemoryRecord{&a, &b} {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	merges, err := NewConsolidator(store).Run(ctx, "owner", "coll")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if merges != 0 {
		t.Errorf("records of different kinds must not merge, got %d merges", merges)
	}
}

func TestConsolidatorBelowThresholdUntouched(t *testing.T) {
	store := newTestPersistentStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	// Cosine exactly at the boundary does not merge; the test vectors sit
	// safely below it.
	a := testRecord("a", datatypes.MemoryQA, "one", base, []float32{1, 0})
	b := testRecord("b", datatypes.MemoryQA, "two", base.Add(time.Second), []float32{0.5, 0.87})
	for _, rec := range []*datatypes.MemoryRecord{&a, &b} {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	merges, err := NewConsolidator(store).Run(ctx, "owner", "coll")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if merges != 0 {
		t.Errorf("dissimilar records must not merge, got %d merges", merges)
	}
}

func TestJaccardWords(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"a b c", "a b c", 1.0},
		{"a b", "c d", 0.0},
		{"a b c d", "a b c e", 0.6},
		{"", "a", 0.0},
	}
	for _, tt := range tests {
		if got := jaccardWords(tt.a, tt.b); got != tt.want {
			t.Errorf("jaccardWords(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
