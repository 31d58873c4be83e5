// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ProviderError wraps an HTTP-level failure from an AI provider.
//
// # Description
//
// ProviderError carries the upstream status code so the rotation layer can
// decide whether switching credentials may help. Auth failures (401/403),
// rate limits (429), and server errors (5xx) are retryable with a rotated
// key; anything else is not.
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether rotating to another credential and retrying
// the same request may succeed.
func (e *ProviderError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// ProviderExhaustedError signals that every rotated credential failed.
//
// Callers must handle it by degrading (for example returning a user-visible
// "try again" message), never by crashing the request pipeline.
type ProviderExhaustedError struct {
	Provider Provider
	Attempts int
	LastErr  error
}

// Error implements the error interface.
func (e *ProviderExhaustedError) Error() string {
	return fmt.Sprintf("%s provider exhausted after %d attempts: %v", e.Provider, e.Attempts, e.LastErr)
}

// Unwrap exposes the last underlying failure.
func (e *ProviderExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsProviderExhausted checks whether err is (or wraps) a
// ProviderExhaustedError.
func IsProviderExhausted(err error) bool {
	var pe *ProviderExhaustedError
	return errors.As(err, &pe)
}
