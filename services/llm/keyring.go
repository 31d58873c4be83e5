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
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/harborai/lectern/services/orchestrator/observability"
)

// KeyRing is a round-robin credential pool for one provider.
//
// # Description
//
// The pool is immutable after construction; only the rotation cursor
// moves. The cursor is a single atomic counter, so rotation needs no
// lock and is safe under concurrent outbound calls.
//
// An empty ring is valid: Key and Rotate deterministically return the
// empty string, so calls against a misconfigured provider fail fast and
// visibly at the HTTP layer instead of panicking at construction time.
//
// # Example
//
//	ring := NewKeyRing(ProviderOpenAI, []string{"sk-a", "sk-b"})
//	key := ring.Key()        // "sk-a"
//	key = ring.Rotate()      // "sk-b"
//	key = ring.Rotate()      // "sk-a" again (cycle closure)
type KeyRing struct {
	provider Provider
	keys     []string
	cursor   atomic.Uint64
}

// NewKeyRing builds a ring over the given credentials. Blank entries are
// dropped; order is preserved.
func NewKeyRing(provider Provider, keys []string) *KeyRing {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		slog.Warn("Key ring is empty; calls will fail fast", "provider", provider)
	}
	return &KeyRing{provider: provider, keys: cleaned}
}

// Provider returns the provider this ring serves.
func (r *KeyRing) Provider() Provider { return r.provider }

// Size returns the number of credentials in the pool.
func (r *KeyRing) Size() int { return len(r.keys) }

// Key returns the credential at the current cursor position, or the empty
// string for an empty pool.
func (r *KeyRing) Key() string {
	if len(r.keys) == 0 {
		return ""
	}
	return r.keys[r.cursor.Load()%uint64(len(r.keys))]
}

// Rotate advances the cursor round-robin and returns the new credential.
// After Size() rotations the ring is back at its starting credential.
func (r *KeyRing) Rotate() string {
	if len(r.keys) == 0 {
		return ""
	}
	r.cursor.Add(1)
	observability.KeyRotations.WithLabelValues(string(r.provider)).Inc()
	return r.Key()
}

// =============================================================================
// Pool loading
// =============================================================================

// keyFile is the YAML shape of the optional credentials file:
//
//	providers:
//	  openai:
//	    - sk-aaa
//	    - sk-bbb
//	  anthropic:
//	    - sk-ant-ccc
type keyFile struct {
	Providers map[string][]string `yaml:"providers"`
}

// LoadKeyRings builds one ring per provider from, in precedence order, the
// YAML file named by LECTERN_KEYFILE, then the comma-separated
// {PROVIDER}_API_KEYS variables, then the singular {PROVIDER}_API_KEY.
//
// Pools are loaded exactly once at startup; the returned rings never
// change afterward. Providers without credentials get an empty ring.
func LoadKeyRings() map[Provider]*KeyRing {
	fromFile := map[string][]string{}
	if path := os.Getenv("LECTERN_KEYFILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Failed to read key file, falling back to environment", "path", path, "error", err)
		} else {
			var kf keyFile
			if err := yaml.Unmarshal(data, &kf); err != nil {
				slog.Warn("Failed to parse key file, falling back to environment", "path", path, "error", err)
			} else {
				fromFile = kf.Providers
			}
		}
	}

	rings := make(map[Provider]*KeyRing, 3)
	for _, p := range []Provider{ProviderOllama, ProviderOpenAI, ProviderAnthropic} {
		keys := fromFile[string(p)]
		if len(keys) == 0 {
			keys = keysFromEnv(p)
		}
		rings[p] = NewKeyRing(p, keys)
		slog.Info("Loaded provider key pool", "provider", p, "size", rings[p].Size())
	}
	return rings
}

func keysFromEnv(p Provider) []string {
	prefix := strings.ToUpper(string(p))
	if v := os.Getenv(prefix + "_API_KEYS"); v != "" {
		return strings.Split(v, ",")
	}
	if v := os.Getenv(prefix + "_API_KEY"); v != "" {
		return []string{v}
	}
	return nil
}

// =============================================================================
// Rotate-and-retry
// =============================================================================

// RetryConfig bounds the rotate-and-retry loop shared by all outbound AI
// calls.
type RetryConfig struct {
	// MaxRetries is the number of rotations attempted after the first
	// failure. Default: 5.
	MaxRetries int

	// Limiter, when non-nil, paces outbound attempts process-wide.
	Limiter *rate.Limiter
}

// DefaultRetryConfig returns the standard retry bounds with a shared
// limiter of ten attempts per second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		Limiter:    rate.NewLimiter(rate.Limit(10), 10),
	}
}

// WithRotation invokes fn with the ring's current credential and, on a
// retryable provider failure (401/403/429/5xx), rotates and retries the
// same request up to cfg.MaxRetries times.
//
// # Description
//
// This is the usage contract for every outbound AI call. The loop never
// holds a lock across the network call: rotation is a single atomic
// advance. Context cancellation stops retries immediately. On exhaustion
// the caller receives a *ProviderExhaustedError and must degrade rather
// than crash the request pipeline.
//
// # Example
//
//	err := WithRotation(ctx, ring, DefaultRetryConfig(), func(key string) error {
//	    return callProvider(ctx, key)
//	})
//	if IsProviderExhausted(err) {
//	    return "The assistant is temporarily unavailable. Please try again.", nil
//	}
func WithRotation(ctx context.Context, ring *KeyRing, cfg RetryConfig, fn func(key string) error) error {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				return err
			}
		}

		key := ring.Key()
		if attempt > 0 {
			key = ring.Rotate()
			slog.Info("Retrying provider call with rotated credential",
				"provider", ring.Provider(), "attempt", attempt)
		}

		err := fn(key)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var pe *ProviderError
		if errors.As(err, &pe) && !pe.Retryable() {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("provider call aborted: %w", ctx.Err())
		}
	}

	observability.ProviderExhaustions.WithLabelValues(string(ring.Provider())).Inc()
	return &ProviderExhaustedError{
		Provider: ring.Provider(),
		Attempts: maxRetries + 1,
		LastErr:  lastErr,
	}
}
