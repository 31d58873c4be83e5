// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/harborai/lectern/services/llm"
)

// OpenAIEmbedder computes vectors with the OpenAI embeddings API. Like
// the chat client it builds a fresh SDK client per attempt so that key
// rotation takes effect mid-retry.
type OpenAIEmbedder struct {
	ring  *llm.KeyRing
	retry llm.RetryConfig
	model openai.EmbeddingModel
	dim   int
}

// NewOpenAIEmbedder reads OPENAI_EMBEDDING_MODEL from the environment,
// defaulting to text-embedding-3-small (1536 dimensions).
func NewOpenAIEmbedder(ring *llm.KeyRing, retry llm.RetryConfig) *OpenAIEmbedder {
	model := openai.SmallEmbedding3
	dim := 1536
	if raw := os.Getenv("OPENAI_EMBEDDING_MODEL"); raw != "" {
		model = openai.EmbeddingModel(raw)
		if model == openai.LargeEmbedding3 {
			dim = 3072
		}
	}
	return &OpenAIEmbedder{ring: ring, retry: retry, model: model, dim: dim}
}

func (e *OpenAIEmbedder) Dimension() int { return e.dim }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "OpenAIEmbedder.Embed")
	defer span.End()

	if len(texts) == 0 {
		return nil, nil
	}

	var vectors [][]float32
	err := llm.WithRotation(ctx, e.ring, e.retry, func(key string) error {
		client := openai.NewClient(key)
		resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: e.model,
		})
		if err != nil {
			return llm.WrapOpenAIError(err)
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("embedding API returned %d vectors for %d texts", len(resp.Data), len(texts))
		}
		vectors = make([][]float32, len(resp.Data))
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(vectors) {
				return fmt.Errorf("embedding API returned out-of-range index %d", item.Index)
			}
			vectors[item.Index] = item.Embedding
		}
		return nil
	})
	if err != nil {
		slog.Error("OpenAI embedding failed", "model", e.model, "error", err)
		return nil, err
	}
	return vectors, nil
}
