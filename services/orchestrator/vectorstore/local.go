// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
	storage "github.com/harborai/lectern/services/orchestrator/storage/badger"
)

var tracer = otel.Tracer("lectern.vectorstore")

// Sampling bounds: sampled search scores the SampleFactor*K most recently
// inserted matching cards.
const (
	DefaultSampleFactor = 25
	minSampleFactor     = 10
	maxSampleFactor     = 50
	defaultK            = 10
)

const seqCounterKey = "seq/card"

// LocalStore keeps cards in badger under
// card/<owner>/<collection>/<source>/<seq>. The sequence number is a
// store-wide monotonic counter, so key order within a source and the
// stored seq across sources both reflect insertion order.
type LocalStore struct {
	db           *storage.DB
	dim          int
	sampleFactor int
}

// storedCard is the persisted value: the card plus its insertion
// sequence.
type storedCard struct {
	Seq  uint64         `json:"seq"`
	Card datatypes.Card `json:"card"`
}

// NewLocalStore wraps an open badger handle. dim fixes the embedding
// width for every card the store will accept. The sample factor comes
// from CARD_SAMPLE_FACTOR, clamped to [10, 50].
func NewLocalStore(db *storage.DB, dim int) (*LocalStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	factor := DefaultSampleFactor
	if raw := os.Getenv("CARD_SAMPLE_FACTOR"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			slog.Warn("Invalid CARD_SAMPLE_FACTOR, using default", "value", raw, "default", factor)
		} else {
			factor = parsed
		}
	}
	if factor < minSampleFactor {
		factor = minSampleFactor
	}
	if factor > maxSampleFactor {
		factor = maxSampleFactor
	}
	return &LocalStore{db: db, dim: dim, sampleFactor: factor}, nil
}

// Dimension reports the embedding width this store accepts.
func (s *LocalStore) Dimension() int { return s.dim }

// ========================================================================
// Writes
// ========================================================================

// Put writes cards in one transaction. Every embedding is checked before
// anything is written: a single mismatched card rejects the whole batch.
func (s *LocalStore) Put(ctx context.Context, cards []datatypes.Card) error {
	ctx, span := tracer.Start(ctx, "LocalStore.Put")
	defer span.End()

	if len(cards) == 0 {
		return nil
	}
	for _, card := range cards {
		if len(card.Embedding) != s.dim {
			return &DimensionMismatchError{Want: s.dim, Got: len(card.Embedding)}
		}
	}

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		seq, err := loadSeq(txn)
		if err != nil {
			return err
		}
		for _, card := range cards {
			seq++
			value, err := json.Marshal(storedCard{Seq: seq, Card: card})
			if err != nil {
				return fmt.Errorf("failed to marshal card %s: %w", card.CardID, err)
			}
			key := cardKey(card.OwnerID, card.CollectionID, card.SourceName, seq)
			if err := txn.Set([]byte(key), value); err != nil {
				return fmt.Errorf("failed to write card %s: %w", card.CardID, err)
			}
		}
		return saveSeq(txn, seq)
	})
}

// DeleteSource removes every card ingested from one source file.
func (s *LocalStore) DeleteSource(ctx context.Context, owner, collection, source string) error {
	ctx, span := tracer.Start(ctx, "LocalStore.DeleteSource")
	defer span.End()

	prefix := []byte(fmt.Sprintf("card/%s/%s/%s/", owner, collection, source))
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

// ========================================================================
// Search
// ========================================================================

// Search scores candidates against the query vector. Explicit filenames
// force an exhaustive scan; otherwise StrategySampled bounds candidates
// to the most recently inserted sampleFactor*K rows. Results come back
// best first, ties in insertion order.
func (s *LocalStore) Search(ctx context.Context, q SearchQuery) ([]Scored, error) {
	ctx, span := tracer.Start(ctx, "LocalStore.Search")
	defer span.End()

	if len(q.Vector) != s.dim {
		return nil, &DimensionMismatchError{Want: s.dim, Got: len(q.Vector)}
	}
	k := q.K
	if k <= 0 {
		k = defaultK
	}

	exhaustive := q.Strategy == StrategyExhaustive || len(q.Filenames) > 0

	candidates, err := s.collect(ctx, q.OwnerID, q.CollectionID, q.Filenames)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if !exhaustive {
		bound := s.sampleFactor * k
		if len(candidates) > bound {
			// Most recent first, then restore insertion order for the
			// stable tie-break downstream.
			sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq > candidates[j].seq })
			candidates = candidates[:bound]
			sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })
		}
	}

	hits, err := s.score(ctx, candidates, q.Vector)
	if err != nil {
		return nil, err
	}
	KeywordBoost(hits, q.Keywords)
	sortByScore(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// candidate is one matching key found during the key-only pass.
type candidate struct {
	key []byte
	seq uint64
}

// collect walks keys under card/<owner>/<collection>/ without touching
// values, applying the filename filter from the key alone.
func (s *LocalStore) collect(ctx context.Context, owner, collection string, filenames []string) ([]candidate, error) {
	prefix := fmt.Sprintf("card/%s/%s/", owner, collection)

	allowed := map[string]bool{}
	for _, f := range filenames {
		allowed[f] = true
	}

	var out []candidate
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			source, seq, ok := parseCardKey(string(key), prefix)
			if !ok {
				continue
			}
			if len(allowed) > 0 && !allowed[source] {
				continue
			}
			out = append(out, candidate{key: it.Item().KeyCopy(nil), seq: seq})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Keys iterate in source order; insertion order is the seq.
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out, nil
}

// score reads and scores the candidate values.
func (s *LocalStore) score(ctx context.Context, candidates []candidate, vector []float32) ([]Scored, error) {
	hits := make([]Scored, 0, len(candidates))
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		for _, cand := range candidates {
			item, err := txn.Get(cand.key)
			if err != nil {
				if err == badger.ErrKeyNotFound {
					continue
				}
				return fmt.Errorf("failed to read %s: %w", cand.key, err)
			}
			var stored storedCard
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				slog.Warn("Skipping undecodable card", "key", string(cand.key), "error", err)
				continue
			}
			hits = append(hits, Scored{
				Card:  stored.Card,
				Score: CosineSimilarity(vector, stored.Card.Embedding),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// ========================================================================
// Keys
// ========================================================================

func cardKey(owner, collection, source string, seq uint64) string {
	return fmt.Sprintf("card/%s/%s/%s/%020d", owner, collection, source, seq)
}

// parseCardKey splits "<source>/<seq>" out of a full key. Sources may
// contain slashes, so the seq is taken from the last segment.
func parseCardKey(key, prefix string) (source string, seq uint64, ok bool) {
	rest := strings.TrimPrefix(key, prefix)
	if rest == key {
		return "", 0, false
	}
	idx := strings.LastIndexByte(rest, '/')
	if idx < 0 {
		return "", 0, false
	}
	seq, err := strconv.ParseUint(rest[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return rest[:idx], seq, true
}

func loadSeq(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte(seqCounterKey))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load sequence counter: %w", err)
	}
	var seq uint64
	err = item.Value(func(val []byte) error {
		parsed, err := strconv.ParseUint(string(val), 10, 64)
		if err != nil {
			return err
		}
		seq = parsed
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("corrupt sequence counter: %w", err)
	}
	return seq, nil
}

func saveSeq(txn *badger.Txn, seq uint64) error {
	return txn.Set([]byte(seqCounterKey), []byte(strconv.FormatUint(seq, 10)))
}
