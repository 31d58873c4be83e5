// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"strings"
	"testing"
)

type stubGenerator struct {
	answer string
	calls  int
	seen   ProviderSelection
}

func (s *stubGenerator) Complete(_ context.Context, _, _ string, sel ProviderSelection) (string, error) {
	s.calls++
	s.seen = sel
	return s.answer, nil
}

func TestRouterSelect(t *testing.T) {
	r := NewRouter()
	r.Register(ProviderAnthropic, &stubGenerator{})
	r.Register(ProviderOllama, &stubGenerator{})

	tests := []struct {
		name         string
		prompt       string
		degraded     bool
		wantProvider Provider
	}{
		{
			name:         "short factual prompt routes local",
			prompt:       "What is the warranty period?",
			wantProvider: ProviderOllama,
		},
		{
			name:         "analytical trigger routes strongest",
			prompt:       "Compare the two proposals in section 3.",
			wantProvider: ProviderAnthropic,
		},
		{
			name:         "long prompt routes strongest",
			prompt:       strings.Repeat("word ", 150),
			wantProvider: ProviderAnthropic,
		},
		{
			name:         "degraded request stays cheap even when complex",
			prompt:       "Compare the two proposals in section 3.",
			degraded:     true,
			wantProvider: ProviderOllama,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := r.Select(tt.prompt, tt.degraded)
			if sel.Provider != tt.wantProvider {
				t.Errorf("Select() provider = %q, want %q", sel.Provider, tt.wantProvider)
			}
			if sel.Model == "" {
				t.Error("Select() returned empty model")
			}
		})
	}
}

func TestRouterSelectNoProviders(t *testing.T) {
	r := NewRouter()
	sel := r.Select("anything", false)
	if sel.Provider != "" || sel.Model != "" {
		t.Errorf("empty router should return zero selection, got %+v", sel)
	}
}

func TestRouterCompleteDispatch(t *testing.T) {
	anthropic := &stubGenerator{answer: "from anthropic"}
	ollama := &stubGenerator{answer: "from ollama"}
	r := NewRouter()
	r.Register(ProviderAnthropic, anthropic)
	r.Register(ProviderOllama, ollama)

	got, err := r.Complete(context.Background(), "sys", "user", ProviderSelection{Provider: ProviderOllama, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "from ollama" {
		t.Errorf("Complete() = %q, want dispatch to ollama", got)
	}
	if anthropic.calls != 0 || ollama.calls != 1 {
		t.Errorf("call counts anthropic=%d ollama=%d, want 0/1", anthropic.calls, ollama.calls)
	}
	if ollama.seen.Model != "llama3.1" {
		t.Errorf("selection model passed through = %q, want llama3.1", ollama.seen.Model)
	}
}

func TestRouterCompleteUnknownProviderFallsBack(t *testing.T) {
	primary := &stubGenerator{answer: "primary"}
	r := NewRouter()
	r.Register(ProviderOpenAI, primary)

	got, err := r.Complete(context.Background(), "", "q", ProviderSelection{Provider: "mystery"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "primary" {
		t.Errorf("Complete() = %q, want fallback to first registered provider", got)
	}
}
