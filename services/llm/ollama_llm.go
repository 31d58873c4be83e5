// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lectern.llm")

// OllamaClient talks to a local Ollama server. No credentials are
// involved, so rotation does not apply; transient 5xx responses are still
// retried through the shared retry loop with an empty ring.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	retry      RetryConfig
	ring       *KeyRing
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

func NewOllamaClient(retry RetryConfig) (*OllamaClient, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	model := os.Getenv("OLLAMA_MODEL")
	if baseURL == "" {
		return nil, fmt.Errorf("OLLAMA_BASE_URL environment variable not set")
	}
	if model == "" {
		slog.Warn("OLLAMA_MODEL not set, defaulting", "model", "llama3.1")
		model = "llama3.1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "default_model", model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		model:      model,
		retry:      retry,
		ring:       &KeyRing{provider: ProviderOllama},
	}, nil
}

// Generate implements the LLMClient interface.
func (o *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return o.complete(ctx, o.model, "", prompt, params)
}

// Complete implements the AnswerGenerator capability.
func (o *OllamaClient) Complete(ctx context.Context, systemPrompt, userPrompt string, sel ProviderSelection) (string, error) {
	model := sel.Model
	if model == "" {
		model = o.model
	}
	return o.complete(ctx, model, systemPrompt, userPrompt, GenerationParams{})
}

func (o *OllamaClient) complete(ctx context.Context, model, system, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", model))
	slog.Debug("Generating text via Ollama", "model", model)

	options := make(map[string]interface{})
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	} else {
		options["temperature"] = float32(0.2)
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	payload := ollamaGenerateRequest{
		Model:   model,
		Prompt:  prompt,
		System:  system,
		Stream:  false,
		Options: options,
	}
	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to marshal request to Ollama: %w", err)
	}

	var answer string
	// Empty ring: rotation is a no-op, but 5xx responses still get the
	// bounded retry loop.
	err = WithRotation(ctx, o.ring, o.retry, func(string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewBuffer(reqBodyBytes))
		if err != nil {
			return fmt.Errorf("failed to create request to Ollama: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("Ollama API call failed: %w", err)
		}
		defer resp.Body.Close()

		respBodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body from Ollama: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("model '%s' not found. Please run: 'ollama pull %s'", model, model)
			}
			return &ProviderError{Provider: ProviderOllama, StatusCode: resp.StatusCode, Message: string(respBodyBytes)}
		}

		var ollamaResp ollamaGenerateResponse
		if err := json.Unmarshal(respBodyBytes, &ollamaResp); err != nil {
			return fmt.Errorf("failed to parse Ollama response: %w", err)
		}
		answer = ollamaResp.Response
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Ollama generation failed", "model", model, "error", err)
		return "", err
	}

	slog.Debug("Received response from Ollama")
	return answer, nil
}
