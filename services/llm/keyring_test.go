// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"testing"
)

func TestKeyRingRotationCycle(t *testing.T) {
	ring := NewKeyRing(ProviderOpenAI, []string{"k1", "k2", "k3"})

	if got := ring.Key(); got != "k1" {
		t.Fatalf("expected first key k1, got %q", got)
	}
	// Two full cycles: rotation must visit every key before repeating.
	want := []string{"k2", "k3", "k1", "k2", "k3", "k1"}
	for i, w := range want {
		if got := ring.Rotate(); got != w {
			t.Fatalf("rotation %d: expected %q, got %q", i, w, got)
		}
	}
}

func TestKeyRingEmptyPool(t *testing.T) {
	ring := NewKeyRing(ProviderOpenAI, nil)
	if got := ring.Key(); got != "" {
		t.Errorf("empty ring Key() = %q, want empty string", got)
	}
	if got := ring.Rotate(); got != "" {
		t.Errorf("empty ring Rotate() = %q, want empty string", got)
	}
}

func TestKeyRingTrimsBlankKeys(t *testing.T) {
	ring := NewKeyRing(ProviderAnthropic, []string{" k1 ", "", "  ", "k2"})
	if ring.Size() != 2 {
		t.Fatalf("expected 2 usable keys, got %d", ring.Size())
	}
	if got := ring.Key(); got != "k1" {
		t.Errorf("expected trimmed key k1, got %q", got)
	}
}

func TestWithRotationRetriesOnRetryableStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"unauthorized", 401},
		{"forbidden", 403},
		{"rate_limited", 429},
		{"server_error", 500},
		{"bad_gateway", 502},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring := NewKeyRing(ProviderOpenAI, []string{"bad", "good"})
			cfg := RetryConfig{MaxRetries: 5}

			var seen []string
			err := WithRotation(context.Background(), ring, cfg, func(key string) error {
				seen = append(seen, key)
				if key == "bad" {
					return &ProviderError{Provider: ProviderOpenAI, StatusCode: tt.statusCode, Message: "nope"}
				}
				return nil
			})
			if err != nil {
				t.Fatalf("expected success after rotation, got %v", err)
			}
			if len(seen) != 2 || seen[0] != "bad" || seen[1] != "good" {
				t.Errorf("expected attempts [bad good], got %v", seen)
			}
		})
	}
}

func TestWithRotationStopsOnNonRetryable(t *testing.T) {
	ring := NewKeyRing(ProviderOpenAI, []string{"k1", "k2"})
	cfg := RetryConfig{MaxRetries: 5}

	attempts := 0
	wantErr := errors.New("malformed request")
	err := WithRotation(context.Background(), ring, cfg, func(string) error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("non-retryable error should not be retried, got %d attempts", attempts)
	}
}

func TestWithRotationExhaustion(t *testing.T) {
	ring := NewKeyRing(ProviderAnthropic, []string{"k1", "k2"})
	cfg := RetryConfig{MaxRetries: 5}

	attempts := 0
	err := WithRotation(context.Background(), ring, cfg, func(string) error {
		attempts++
		return &ProviderError{Provider: ProviderAnthropic, StatusCode: 429, Message: "slow down"}
	})
	if !IsProviderExhausted(err) {
		t.Fatalf("expected ProviderExhaustedError, got %v", err)
	}
	var exhausted *ProviderExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("errors.As failed on %v", err)
	}
	if exhausted.Provider != ProviderAnthropic {
		t.Errorf("exhaustion provider = %q, want anthropic", exhausted.Provider)
	}
	if attempts != cfg.MaxRetries+1 {
		t.Errorf("expected %d attempts, got %d", cfg.MaxRetries+1, attempts)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != 429 {
		t.Errorf("exhaustion should wrap the last provider error, got %v", err)
	}
}

func TestWithRotationHonorsContextCancellation(t *testing.T) {
	ring := NewKeyRing(ProviderOpenAI, []string{"k1"})
	cfg := RetryConfig{MaxRetries: 5}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := WithRotation(ctx, ring, cfg, func(string) error {
		attempts++
		cancel()
		return &ProviderError{Provider: ProviderOpenAI, StatusCode: 500, Message: "boom"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("cancelled context should stop retries, got %d attempts", attempts)
	}
}

func TestProviderErrorRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, false},
		{401, true},
		{403, true},
		{404, false},
		{429, true},
		{499, false},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		pe := &ProviderError{Provider: ProviderOpenAI, StatusCode: tt.status}
		if got := pe.Retryable(); got != tt.want {
			t.Errorf("status %d: Retryable() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
