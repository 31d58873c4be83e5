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
	"time"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
)

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	StopSeqs    []string `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient calls the Anthropic messages API over plain HTTP. The
// key is read from the ring on every attempt so rotation takes effect
// mid-retry.
type AnthropicClient struct {
	httpClient *http.Client
	ring       *KeyRing
	model      string
	retry      RetryConfig
}

func NewAnthropicClient(ring *KeyRing, retry RetryConfig) *AnthropicClient {
	model := os.Getenv("CLAUDE_MODEL")
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
		slog.Info("CLAUDE_MODEL not set, defaulting to", "model", model)
	}
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		ring:       ring,
		model:      model,
		retry:      retry,
	}
}

// Generate implements the LLMClient interface.
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return a.complete(ctx, a.model, "", prompt, params)
}

// Complete implements the AnswerGenerator capability.
func (a *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string, sel ProviderSelection) (string, error) {
	model := sel.Model
	if model == "" {
		model = a.model
	}
	return a.complete(ctx, model, systemPrompt, userPrompt, GenerationParams{})
}

func (a *AnthropicClient) complete(ctx context.Context, model, system, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "AnthropicClient.Generate")
	defer span.End()

	reqPayload := anthropicRequest{
		Model:     model,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		System:    system,
		MaxTokens: 4096,
	}
	if params.Temperature != nil {
		reqPayload.Temperature = params.Temperature
	}
	if params.TopP != nil {
		reqPayload.TopP = params.TopP
	}
	if params.TopK != nil {
		reqPayload.TopK = params.TopK
	}
	if params.MaxTokens != nil {
		reqPayload.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		reqPayload.StopSeqs = params.Stop
	}

	reqBodyBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var finalText string
	err = WithRotation(ctx, a.ring, a.retry, func(key string) error {
		req, err := http.NewRequestWithContext(ctx, "POST", anthropicBaseURL, bytes.NewBuffer(reqBodyBytes))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", anthropicAPIVersion)
		req.Header.Set("content-type", "application/json")

		slog.Debug("Sending REST request to Anthropic", "model", model)

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		bodyBytes, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return &ProviderError{Provider: ProviderAnthropic, StatusCode: resp.StatusCode, Message: string(bodyBytes)}
		}

		var apiResp anthropicResponse
		if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
			return fmt.Errorf("failed to parse response JSON: %w", err)
		}
		if apiResp.Error != nil {
			return fmt.Errorf("anthropic API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
		}
		if len(apiResp.Content) == 0 {
			return fmt.Errorf("received empty content from Anthropic")
		}
		finalText = ""
		for _, block := range apiResp.Content {
			if block.Type == "text" {
				finalText += block.Text
			}
		}
		if finalText == "" {
			return fmt.Errorf("received content but no text block found")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return finalText, nil
}
