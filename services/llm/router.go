// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"
)

// AnswerGenerator is the capability the answer pipeline depends on. All
// provider clients implement it; Router implements it by dispatching.
type AnswerGenerator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, sel ProviderSelection) (string, error)
}

// ========================================================================
// Routing
// ========================================================================

// Router picks a provider and model per request and dispatches to the
// matching client. Selection is a cheap lexical heuristic: long or
// analytical prompts go to the strongest configured provider, everything
// else goes to the cheapest one available.
type Router struct {
	clients map[Provider]AnswerGenerator
	// order is the preference chain for complex prompts, strongest first.
	order []Provider

	largeModels map[Provider]string
	smallModels map[Provider]string
}

func NewRouter() *Router {
	return &Router{
		clients: make(map[Provider]AnswerGenerator),
		largeModels: map[Provider]string{
			ProviderAnthropic: getEnvString("CLAUDE_MODEL", "claude-3-5-sonnet-20240620"),
			ProviderOpenAI:    getEnvString("OPENAI_MODEL_LARGE", "gpt-4o"),
			ProviderOllama:    getEnvString("OLLAMA_MODEL_LARGE", "llama3.1:70b"),
		},
		smallModels: map[Provider]string{
			ProviderAnthropic: getEnvString("CLAUDE_MODEL_SMALL", "claude-3-5-haiku-20241022"),
			ProviderOpenAI:    getEnvString("OPENAI_MODEL", "gpt-4o-mini"),
			ProviderOllama:    getEnvString("OLLAMA_MODEL", "llama3.1"),
		},
	}
}

// NewRouterFromEnv builds a router with every provider the environment
// has credentials for, in strongest-first preference order. A local
// Ollama endpoint is always registered when OLLAMA_BASE_URL is set so
// the pipeline has a provider even with no paid keys.
func NewRouterFromEnv() *Router {
	rings := LoadKeyRings()
	retry := DefaultRetryConfig()
	r := NewRouter()
	if ring := rings[ProviderAnthropic]; ring != nil && ring.Size() > 0 {
		r.Register(ProviderAnthropic, NewAnthropicClient(ring, retry))
	}
	if ring := rings[ProviderOpenAI]; ring != nil && ring.Size() > 0 {
		r.Register(ProviderOpenAI, NewOpenAIClient(ring, retry))
	}
	if os.Getenv("OLLAMA_BASE_URL") != "" {
		if client, err := NewOllamaClient(retry); err == nil {
			r.Register(ProviderOllama, client)
		} else {
			slog.Warn("Skipping Ollama provider", "error", err)
		}
	}
	if len(r.order) == 0 {
		slog.Warn("No LLM providers configured; generation will be unavailable")
	}
	return r
}

// Register adds a provider client. Registration order doubles as the
// preference order for complex prompts.
func (r *Router) Register(p Provider, client AnswerGenerator) {
	if _, ok := r.clients[p]; ok {
		return
	}
	r.clients[p] = client
	r.order = append(r.order, p)
}

// Providers reports the registered providers in preference order.
func (r *Router) Providers() []Provider {
	out := make([]Provider, len(r.order))
	copy(out, r.order)
	return out
}

// Select chooses the provider and model for a prompt. Degraded requests
// always get the small model: the caller has already lost evidence
// quality, so spending a large model on it buys nothing.
func (r *Router) Select(prompt string, degraded bool) ProviderSelection {
	if len(r.order) == 0 {
		return ProviderSelection{}
	}
	provider := r.order[0]
	if degraded || !isComplexPrompt(prompt) {
		// Prefer the cheapest provider for simple prompts: local first.
		for _, p := range r.order {
			if p == ProviderOllama {
				provider = p
				break
			}
		}
		return ProviderSelection{Provider: provider, Model: r.smallModels[provider]}
	}
	return ProviderSelection{Provider: provider, Model: r.largeModels[provider]}
}

// Complete implements AnswerGenerator, dispatching to the client named by
// the selection. An unknown or empty provider falls back to the first
// registered client.
func (r *Router) Complete(ctx context.Context, systemPrompt, userPrompt string, sel ProviderSelection) (string, error) {
	client, ok := r.clients[sel.Provider]
	if !ok {
		if len(r.order) == 0 {
			return "", fmt.Errorf("no LLM providers registered")
		}
		slog.Warn("Unknown provider in selection, using default", "provider", sel.Provider, "default", r.order[0])
		sel = ProviderSelection{Provider: r.order[0]}
		client = r.clients[sel.Provider]
	}
	return client.Complete(ctx, systemPrompt, userPrompt, sel)
}

// isComplexPrompt is a deliberately rough complexity score: token length
// plus analytical trigger words. Anything fancier belongs server-side.
func isComplexPrompt(prompt string) bool {
	words := 0
	inWord := false
	for _, r := range prompt {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	if words > 120 {
		return true
	}
	lower := strings.ToLower(prompt)
	for _, trigger := range []string{"compare", "contrast", "analyze", "explain why", "trade-off", "tradeoff", "prove", "derive"} {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
