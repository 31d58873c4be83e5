// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
	storage "github.com/harborai/lectern/services/orchestrator/storage/badger"
	"github.com/harborai/lectern/services/orchestrator/vectorstore"
)

var tracer = otel.Tracer("lectern.memory")

// PersistentStore keeps memory records in badger under
// mem/<owner>/<collection>/<kind>/<created_nanos>/<id>. The timestamp in
// the key gives per-kind chronological iteration; cross-kind recency is
// resolved in memory since per-owner record counts stay small.
type PersistentStore struct {
	db *storage.DB
}

func NewPersistentStore(db *storage.DB) *PersistentStore {
	return &PersistentStore{db: db}
}

func memKey(rec *datatypes.MemoryRecord) string {
	return fmt.Sprintf("mem/%s/%s/%s/%020d/%s",
		rec.OwnerID, rec.CollectionID, rec.Kind, rec.CreatedAt.UnixNano(), rec.ID)
}

// Put validates and writes one record.
func (s *PersistentStore) Put(ctx context.Context, rec *datatypes.MemoryRecord) error {
	ctx, span := tracer.Start(ctx, "PersistentStore.Put")
	defer span.End()

	if err := rec.Validate(); err != nil {
		return err
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal memory record %s: %w", rec.ID, err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(memKey(rec)), value)
	})
}

// Delete removes one record. Missing records are not an error.
func (s *PersistentStore) Delete(ctx context.Context, rec *datatypes.MemoryRecord) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete([]byte(memKey(rec)))
	})
}

// List returns every record for an owner and collection, oldest first.
func (s *PersistentStore) List(ctx context.Context, owner, collection string) ([]datatypes.MemoryRecord, error) {
	ctx, span := tracer.Start(ctx, "PersistentStore.List")
	defer span.End()

	records, err := s.scan(ctx, owner, collection, nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// ListRecent returns up to n records, newest first, optionally restricted
// by kind.
func (s *PersistentStore) ListRecent(ctx context.Context, owner, collection string, n int, kinds []datatypes.MemoryKind) ([]datatypes.MemoryRecord, error) {
	ctx, span := tracer.Start(ctx, "PersistentStore.ListRecent")
	defer span.End()

	if n <= 0 {
		return nil, nil
	}
	records, err := s.scan(ctx, owner, collection, kinds)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > n {
		records = records[:n]
	}
	return records, nil
}

// SearchSemantic ranks records with embeddings by cosine similarity to
// the query vector, dropping scores at or below the threshold. Records
// without embeddings never match. Results come back best first.
func (s *PersistentStore) SearchSemantic(ctx context.Context, owner, collection string, vector []float32, limit int, threshold float64, kinds []datatypes.MemoryKind) ([]datatypes.MemoryRecord, error) {
	ctx, span := tracer.Start(ctx, "PersistentStore.SearchSemantic")
	defer span.End()

	if limit <= 0 || len(vector) == 0 {
		return nil, nil
	}
	records, err := s.scan(ctx, owner, collection, kinds)
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec   datatypes.MemoryRecord
		score float64
	}
	var hits []scored
	for _, rec := range records {
		if len(rec.Embedding) == 0 {
			continue
		}
		score := vectorstore.CosineSimilarity(vector, rec.Embedding)
		if score <= threshold {
			continue
		}
		hits = append(hits, scored{rec: rec, score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]datatypes.MemoryRecord, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out, nil
}

// IncrementAccess bumps the record's access counter in place. Access
// counts feed consolidation's merge bookkeeping; losing an increment is
// harmless, so failures are logged and swallowed by callers.
func (s *PersistentStore) IncrementAccess(ctx context.Context, rec *datatypes.MemoryRecord) error {
	rec.AccessCount++
	return s.Put(ctx, rec)
}

// Reset deletes every record the owner has, across all collections.
func (s *PersistentStore) Reset(ctx context.Context, owner string) error {
	ctx, span := tracer.Start(ctx, "PersistentStore.Reset")
	defer span.End()

	prefix := []byte(fmt.Sprintf("mem/%s/", owner))
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// scan reads every record under the owner/collection prefix, optionally
// filtered by kind. Kind filtering narrows the key prefix, so unmatched
// kinds cost nothing.
func (s *PersistentStore) scan(ctx context.Context, owner, collection string, kinds []datatypes.MemoryKind) ([]datatypes.MemoryRecord, error) {
	prefixes := make([]string, 0, 3)
	if len(kinds) == 0 {
		prefixes = append(prefixes, fmt.Sprintf("mem/%s/%s/", owner, collection))
	} else {
		for _, kind := range kinds {
			prefixes = append(prefixes, fmt.Sprintf("mem/%s/%s/%s/", owner, collection, kind))
		}
	}

	var records []datatypes.MemoryRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		for _, prefix := range prefixes {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(prefix)
			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				var rec datatypes.MemoryRecord
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &rec)
				}); err != nil {
					slog.Warn("Skipping undecodable memory record", "key", string(it.Item().Key()), "error", err)
					continue
				}
				records = append(records, rec)
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
