// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
)

func TestIntentDetectorFamilies(t *testing.T) {
	d := NewIntentDetector(nil)
	ctx := context.Background()

	tests := []struct {
		question string
		want     datatypes.Intent
	}{
		{"Can you elaborate on the second point?", datatypes.IntentEnhancement},
		{"tell me more about the indexing", datatypes.IntentEnhancement},
		{"What do you mean by amortized?", datatypes.IntentClarification},
		{"I'm confused, can you rephrase that?", datatypes.IntentClarification},
		{"Compare chapter 2 and chapter 3", datatypes.IntentComparison},
		{"Is badger better than bolt?", datatypes.IntentComparison},
		{"You said earlier the limit was 20", datatypes.IntentReference},
		{"before you mentioned a cache, where?", datatypes.IntentReference},
		{"What is the capital of France?", datatypes.IntentContinuation},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			if got := d.Detect(ctx, tt.question, true); got != tt.want {
				t.Errorf("Detect(%q) = %v, want %v", tt.question, got, tt.want)
			}
		})
	}
}

func TestIntentDetectorPriorityOrder(t *testing.T) {
	d := NewIntentDetector(nil)
	// Matches both enhancement ("tell me more") and comparison
	// ("difference"): enhancement is checked first and must win.
	got := d.Detect(context.Background(), "tell me more about the difference", true)
	if got != datatypes.IntentEnhancement {
		t.Errorf("Detect() = %v, want enhancement to outrank comparison", got)
	}
}

func TestIntentDetectorNoHistoryIsNewTopic(t *testing.T) {
	// With no prior exchanges the classifier has nothing to relate the
	// question to, so the detector must settle on NEW_TOPIC without
	// consulting it.
	called := false
	generate := func(context.Context, string, int) (string, error) {
		called = true
		return "CONTINUATION", nil
	}
	d := NewIntentDetector(generate)
	got := d.Detect(context.Background(), "What is a vector index?", false)
	if got != datatypes.IntentNewTopic {
		t.Errorf("Detect() with no history = %v, want NEW_TOPIC", got)
	}
	if called {
		t.Error("empty history should skip the AI classifier")
	}
}

func TestIntentDetectorAIClassification(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  datatypes.Intent
	}{
		{"clean label", "NEW_TOPIC", nil, datatypes.IntentNewTopic},
		{"chatty label", "The intent here is clearly COMPARISON.", nil, datatypes.IntentComparison},
		{"ambiguous reply rejected", "COMPARISON or maybe REFERENCE", nil, datatypes.IntentContinuation},
		{"garbage rejected", "I cannot classify this", nil, datatypes.IntentContinuation},
		{"model failure falls back", "", errors.New("provider down"), datatypes.IntentContinuation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generate := func(context.Context, string, int) (string, error) {
				return tt.reply, tt.err
			}
			d := NewIntentDetector(generate)
			got := d.Detect(context.Background(), "unmatched question text", true)
			if got != tt.want {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntentRegexDoesNotConsultAI(t *testing.T) {
	called := false
	generate := func(context.Context, string, int) (string, error) {
		called = true
		return "NEW_TOPIC", nil
	}
	d := NewIntentDetector(generate)
	d.Detect(context.Background(), "please elaborate on that", true)
	if called {
		t.Error("regex match should short-circuit the AI classifier")
	}
}
