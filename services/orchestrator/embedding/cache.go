// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/harborai/lectern/services/orchestrator/observability"
)

// Cached wraps an embedder with an in-process ristretto cache keyed by
// the SHA-256 of the text. Questions repeat heavily inside a session
// (reformulated variants share sub-phrases) and chunk re-ingestion after
// a crash re-embeds identical content, so hit rates are high in practice.
type Cached struct {
	inner Port
	cache *ristretto.Cache[string, []float32]
}

// NewCached builds the cache sized for maxEntries vectors. Cost is the
// vector byte size so memory stays bounded regardless of dimension.
func NewCached(inner Port, maxEntries int64) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	vectorBytes := int64(inner.Dimension()) * 4
	cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries * vectorBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Embed serves hits from the cache and batches the misses into a single
// inner call, preserving input order in the result.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	keys := make([]string, len(texts))

	for i, text := range texts {
		keys[i] = cacheKey(text)
		if vec, ok := c.cache.Get(keys[i]); ok {
			observability.EmbeddingCacheOps.WithLabelValues("hit").Inc()
			out[i] = vec
			continue
		}
		observability.EmbeddingCacheOps.WithLabelValues("miss").Inc()
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("inner embedder returned %d vectors for %d texts", len(vectors), len(missTexts))
	}
	for j, vec := range vectors {
		i := missIdx[j]
		out[i] = vec
		c.cache.Set(keys[i], vec, int64(len(vec))*4)
	}
	return out, nil
}

// Close releases the cache's background goroutines.
func (c *Cached) Close() {
	c.cache.Close()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb/%x", sum[:16])
}
