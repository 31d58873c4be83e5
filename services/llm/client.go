// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "context"

// Provider identifies an AI backend. The set is closed; routing decisions
// are made on this enum rather than on loosely typed maps.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ProviderSelection names the backend and model chosen for one call.
type ProviderSelection struct {
	Provider Provider `json:"provider"`
	Model    string   `json:"model"`
}

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// GenerateFunc adapts a closure to the generation capability. Components
// that only need text generation (intent classification, summarization,
// AI-assisted selection) accept a GenerateFunc so they can be wired to any
// client or mocked in tests; a nil GenerateFunc means the deterministic
// fallback path only.
type GenerateFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)
