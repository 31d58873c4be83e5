// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package embedding turns text into vectors. Every retrieval path in the
// orchestrator goes through the Port interface so callers never care
// whether vectors come from the local embedding service, a hosted API, or
// a cache in front of either.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("lectern.embedding")

// Port is the embedding capability. Implementations must return exactly
// one vector per input text, in order, and every vector must have
// Dimension() components.
type Port interface {
	// Embed computes vectors for a batch of texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the width of the vectors this embedder produces.
	Dimension() int
}

// ========================================================================
// HTTP embedding service
// ========================================================================

// HTTPEmbedder calls the co-deployed embedding sidecar's /embed endpoint.
type HTTPEmbedder struct {
	httpClient *http.Client
	baseURL    string
	dim        int
}

// NewHTTPEmbedder reads EMBEDDING_SERVICE_URL and EMBEDDING_DIM from the
// environment. The URL is required.
func NewHTTPEmbedder() (*HTTPEmbedder, error) {
	baseURL := os.Getenv("EMBEDDING_SERVICE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("EMBEDDING_SERVICE_URL environment variable not set")
	}
	dim := 768
	if raw := os.Getenv("EMBEDDING_DIM"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			slog.Warn("Invalid EMBEDDING_DIM, using default", "value", raw, "default", dim)
		} else {
			dim = parsed
		}
	}
	return &HTTPEmbedder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		dim:        dim,
	}, nil
}

func (h *HTTPEmbedder) Dimension() int { return h.dim }

// Embed sends the whole batch in one request. The sidecar returns vectors
// in input order, which we verify by count and width before returning.
func (h *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "HTTPEmbedder.Embed")
	defer span.End()

	if len(texts) == 0 {
		return nil, nil
	}

	reqBody, err := json.Marshal(datatypes.EmbedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to setup embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach the embedding service: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var embResp datatypes.EmbedResponse
	if err := json.Unmarshal(bodyBytes, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding service response: %w", err)
	}
	if len(embResp.Vectors) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(embResp.Vectors), len(texts))
	}
	for i, vec := range embResp.Vectors {
		if len(vec) != h.dim {
			return nil, fmt.Errorf("vector %d has %d components, expected %d", i, len(vec), h.dim)
		}
	}
	return embResp.Vectors, nil
}

// ========================================================================
// Fail-closed decorator
// ========================================================================

// FailClosed wraps an embedder so that a provider failure degrades to
// zero vectors instead of failing the request. Zero vectors score zero
// against everything under cosine similarity, so downstream retrieval
// returns no semantic matches rather than an error.
type FailClosed struct {
	inner Port
}

func NewFailClosed(inner Port) *FailClosed {
	return &FailClosed{inner: inner}
}

func (f *FailClosed) Dimension() int { return f.inner.Dimension() }

func (f *FailClosed) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := f.inner.Embed(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	// Context errors still propagate: the request is over either way.
	if ctx.Err() != nil {
		return nil, err
	}
	slog.Warn("Embedding failed, substituting zero vectors", "count", len(texts), "error", err)
	dim := f.inner.Dimension()
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, dim)
	}
	return out, nil
}
