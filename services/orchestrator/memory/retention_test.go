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

func TestSweepRemovesOnlyExpired(t *testing.T) {
	store := newTestPersistentStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	old := testRecord("old", datatypes.MemoryQA, "stale exchange", now.Add(-100*24*time.Hour), nil)

	important := testRecord("important", datatypes.MemoryQA, "key fact", now.Add(-100*24*time.Hour), nil)
	important.Importance = 0.9

	accessed := testRecord("accessed", datatypes.MemoryQA, "referenced fact", now.Add(-100*24*time.Hour), nil)
	accessed.AccessCount = 3

	fresh := testRecord("fresh", datatypes.MemoryQA, "recent exchange", now.Add(-24*time.Hour), nil)

	for _, rec := range []*datatypes.MemoryRecord{&old, &important, &accessed, &fresh} {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	sweeper := NewSweeper(store, RetentionPolicy{MaxAge: 90 * 24 * time.Hour, KeepImportant: 0.8})
	sweeper.now = func() time.Time { return now }

	removed, err := sweeper.Sweep(ctx, "owner", "coll")
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	records, err := store.List(ctx, "owner", "coll")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("surviving records = %d, want 3", len(records))
	}
	for _, rec := range records {
		if rec.ID == "old" {
			t.Error("expired record should have been deleted")
		}
	}
}

func TestSweepEmptyScope(t *testing.T) {
	store := newTestPersistentStore(t)
	sweeper := NewSweeper(store, DefaultRetentionPolicy())
	removed, err := sweeper.Sweep(context.Background(), "nobody", "empty")
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d on empty scope", removed)
	}
}

func TestDefaultRetentionPolicyFromEnv(t *testing.T) {
	t.Setenv("MEMORY_RETENTION_DAYS", "30")
	policy := DefaultRetentionPolicy()
	if policy.MaxAge != 30*24*time.Hour {
		t.Errorf("MaxAge = %v, want 30 days", policy.MaxAge)
	}

	t.Setenv("MEMORY_RETENTION_DAYS", "junk")
	policy = DefaultRetentionPolicy()
	if policy.MaxAge != 90*24*time.Hour {
		t.Errorf("invalid env should fall back to 90 days, got %v", policy.MaxAge)
	}
}
