// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AnswerRequest is a question posed against an owner's collection.
//
// # Description
//
// AnswerRequest carries the user's question plus the partition it runs in.
// Filenames, when present, restrict document evidence to the named sources
// and force the exhaustive search strategy.
//
// # Validation
//
// Uses go-playground/validator:
//   - OwnerID, CollectionID, Question: required
//   - Question: max 8192 bytes
type AnswerRequest struct {
	RequestID    string   `json:"request_id"`
	OwnerID      string   `json:"owner_id" validate:"required"`
	CollectionID string   `json:"collection_id" validate:"required"`
	Question     string   `json:"question" validate:"required,max=8192"`
	Filenames    []string `json:"filenames,omitempty"`
	Timestamp    int64    `json:"timestamp"`
}

// Validate validates the request fields via struct tags.
func (r *AnswerRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid answer request: %w", err)
	}
	return nil
}

// EnsureDefaults populates RequestID and Timestamp when the caller
// omitted them.
func (r *AnswerRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// AnswerResponse is the assembled answer handed back to the caller.
//
// Degraded is true when the answer was produced on a fallback path
// (provider exhaustion, deadline, or empty evidence): the Answer field
// then carries a natural-language explanation rather than an error.
type AnswerResponse struct {
	ResponseID string            `json:"response_id"`
	RequestID  string            `json:"request_id"`
	Answer     string            `json:"answer"`
	Sources    []SourceInfo      `json:"sources,omitempty"`
	Intent     Intent            `json:"intent,omitempty"`
	Strategy   RetrievalStrategy `json:"strategy,omitempty"`
	Degraded   bool              `json:"degraded"`
	Timestamp  int64             `json:"timestamp"`
}

// NewAnswerResponse builds a response echoing the request ID.
func NewAnswerResponse(requestID, answer string, sources []SourceInfo) *AnswerResponse {
	return &AnswerResponse{
		ResponseID: uuid.NewString(),
		RequestID:  requestID,
		Answer:     answer,
		Sources:    sources,
		Timestamp:  time.Now().UnixMilli(),
	}
}
