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
	"testing"
	"time"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
	storage "github.com/harborai/lectern/services/orchestrator/storage/badger"
)

func newTestPersistentStore(t *testing.T) *PersistentStore {
	t.Helper()
	db, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPersistentStore(db)
}

func testRecord(id string, kind datatypes.MemoryKind, content string, createdAt time.Time, embedding []float32) datatypes.MemoryRecord {
	return datatypes.MemoryRecord{
		ID:           id,
		OwnerID:      "owner",
		CollectionID: "coll",
		Kind:         kind,
		Content:      content,
		Importance:   0.5,
		Embedding:    embedding,
		CreatedAt:    createdAt,
	}
}

func TestPersistentStoreListRecent(t *testing.T) {
	store := newTestPersistentStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := testRecord(fmt.Sprintf("r%d", i), datatypes.MemoryQA,
			fmt.Sprintf("content %d", i), base.Add(time.Duration(i)*time.Minute), nil)
		if err := store.Put(ctx, &rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	recent, err := store.ListRecent(ctx, "owner", "coll", 3, nil)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recent))
	}
	for i, want := range []string{"r4", "r3", "r2"} {
		if recent[i].ID != want {
			t.Errorf("position %d = %s, want %s (newest first)", i, recent[i].ID, want)
		}
	}
}

func TestPersistentStoreKindFilter(t *testing.T) {
	store := newTestPersistentStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, kind := range []datatypes.MemoryKind{datatypes.MemoryQA, datatypes.MemoryConversation, datatypes.MemoryGeneral} {
		rec := testRecord(fmt.Sprintf("r%d", i), kind, "content", now.Add(time.Duration(i)*time.Second), nil)
		if err := store.Put(ctx, &rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	got, err := store.ListRecent(ctx, "owner", "coll", 10, []datatypes.MemoryKind{datatypes.MemoryQA})
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(got) != 1 || got[0].Kind != datatypes.MemoryQA {
		t.Errorf("kind filter returned %d records", len(got))
	}
}

func TestPersistentStoreSearchSemantic(t *testing.T) {
	store := newTestPersistentStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records := []datatypes.MemoryRecord{
		testRecord("close", datatypes.MemoryQA, "about warranties", now, []float32{1, 0}),
		testRecord("far", datatypes.MemoryQA, "about shipping", now.Add(time.Second), []float32{0, 1}),
		testRecord("noembed", datatypes.MemoryQA, "no embedding here", now.Add(2*time.Second), nil),
	}
	for i := range records {
		if err := store.Put(ctx, &records[i]); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	hits, err := store.SearchSemantic(ctx, "owner", "coll", []float32{1, 0}, 10, 0.5, nil)
	if err != nil {
		t.Fatalf("SearchSemantic() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit above threshold, got %d", len(hits))
	}
	if hits[0].ID != "close" {
		t.Errorf("hit = %s, want close", hits[0].ID)
	}
}

func TestPersistentStoreIncrementAccess(t *testing.T) {
	store := newTestPersistentStore(t)
	ctx := context.Background()

	rec := testRecord("r1", datatypes.MemoryQA, "content", time.Now().UTC(), nil)
	if err := store.Put(ctx, &rec); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.IncrementAccess(ctx, &rec); err != nil {
		t.Fatalf("IncrementAccess() error = %v", err)
	}

	got, err := store.ListRecent(ctx, "owner", "coll", 1, nil)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(got) != 1 || got[0].AccessCount != 1 {
		t.Errorf("persisted access count = %d, want 1", got[0].AccessCount)
	}
}

func TestPersistentStoreReset(t *testing.T) {
	store := newTestPersistentStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mine := testRecord("mine", datatypes.MemoryQA, "content", now, nil)
	if err := store.Put(ctx, &mine); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	other := testRecord("other", datatypes.MemoryQA, "content", now, nil)
	other.OwnerID = "someone-else"
	if err := store.Put(ctx, &other); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := store.Reset(ctx, "owner"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	got, err := store.ListRecent(ctx, "owner", "coll", 10, nil)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("reset owner still has %d records", len(got))
	}
	kept, err := store.ListRecent(ctx, "someone-else", "coll", 10, nil)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(kept) != 1 {
		t.Errorf("reset must not touch other owners, got %d records", len(kept))
	}
}

func TestPersistentStoreRejectsInvalidRecord(t *testing.T) {
	store := newTestPersistentStore(t)
	rec := testRecord("bad", datatypes.MemoryKind("mystery"), "content", time.Now(), nil)
	if err := store.Put(context.Background(), &rec); err == nil {
		t.Error("expected validation error for unknown kind")
	}
}
