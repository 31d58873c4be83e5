// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
	storage "github.com/harborai/lectern/services/orchestrator/storage/badger"
)

func newTestHybrid(t *testing.T) *Hybrid {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	local, err := NewLocalStore(db, 2)
	require.NoError(t, err)
	return NewHybrid(local, nil)
}

func TestHybridFallsBackToLocalWithoutIndex(t *testing.T) {
	h := newTestHybrid(t)
	ctx := context.Background()

	cards := []datatypes.Card{
		testCard("00000000-0000-0000-0000-000000000001", "o", "c", "a.pdf", []float32{1, 0}),
		testCard("00000000-0000-0000-0000-000000000002", "o", "c", "b.pdf", []float32{0, 1}),
	}
	require.NoError(t, h.Put(ctx, cards))

	// Default strategy is the hybrid chain; with no index it lands on the
	// sampled local store.
	hits, err := h.Search(ctx, SearchQuery{
		OwnerID: "o", CollectionID: "c", Vector: []float32{0.9, 0.1}, K: 2,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "a.pdf", hits[0].Card.SourceName)
}

func TestHybridIndexedWithoutIndexIsEmptyEvidence(t *testing.T) {
	h := newTestHybrid(t)

	_, err := h.Search(context.Background(), SearchQuery{
		OwnerID: "o", CollectionID: "c", Vector: []float32{1, 0}, K: 1,
		Strategy: StrategyIndexed,
	})
	require.ErrorIs(t, err, ErrEmptyEvidence)
}

func TestHybridFilenamesForceExhaustive(t *testing.T) {
	h := newTestHybrid(t)
	ctx := context.Background()

	cards := []datatypes.Card{
		testCard("00000000-0000-0000-0000-000000000001", "o", "c", "a.pdf", []float32{1, 0}),
		testCard("00000000-0000-0000-0000-000000000002", "o", "c", "b.pdf", []float32{1, 0}),
	}
	require.NoError(t, h.Put(ctx, cards))

	hits, err := h.Search(ctx, SearchQuery{
		OwnerID: "o", CollectionID: "c", Vector: []float32{1, 0}, K: 5,
		Filenames: []string{"b.pdf"},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "b.pdf", hits[0].Card.SourceName)
}

func TestHybridDeleteSource(t *testing.T) {
	h := newTestHybrid(t)
	ctx := context.Background()

	cards := []datatypes.Card{
		testCard("00000000-0000-0000-0000-000000000001", "o", "c", "gone.pdf", []float32{1, 0}),
		testCard("00000000-0000-0000-0000-000000000002", "o", "c", "kept.pdf", []float32{1, 0}),
	}
	require.NoError(t, h.Put(ctx, cards))
	require.NoError(t, h.DeleteSource(ctx, "o", "c", "gone.pdf"))

	hits, err := h.Search(ctx, SearchQuery{
		OwnerID: "o", CollectionID: "c", Vector: []float32{1, 0}, K: 5,
		Strategy: StrategyExhaustive,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "kept.pdf", hits[0].Card.SourceName)
}
