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
)

// MemoryKind classifies a persistent memory record.
type MemoryKind string

const (
	// MemoryConversation is a summarized conversational exchange.
	MemoryConversation MemoryKind = "conversation"

	// MemoryQA is a question/answer pair recorded after an answered question.
	MemoryQA MemoryKind = "qa"

	// MemoryGeneral is any other durable fact worth remembering.
	MemoryGeneral MemoryKind = "general"
)

// ValidMemoryKind reports whether k is one of the closed set of kinds.
func ValidMemoryKind(k MemoryKind) bool {
	switch k {
	case MemoryConversation, MemoryQA, MemoryGeneral:
		return true
	}
	return false
}

// MemoryRecord is a durable, searchable memory entry.
//
// # Description
//
// A record is created on every answered question and may later be merged
// with near-duplicate records by consolidation, which deletes the
// originals. Records are deleted on explicit user reset. Embedding is
// optional; records without one participate only in recency retrieval and
// in word-overlap consolidation.
//
// # Thread Safety
//
// MemoryRecord is a value type; the persistent store hands out copies.
type MemoryRecord struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	CollectionID string     `json:"collection_id,omitempty"`
	Kind         MemoryKind `json:"kind"`
	Content      string     `json:"content"`
	Summary      string     `json:"summary,omitempty"`
	Importance   float64    `json:"importance"`
	Tags         []string   `json:"tags,omitempty"`
	Embedding    []float32  `json:"embedding,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	AccessCount  int        `json:"access_count"`
}

// Validate checks the record's invariants before storage.
func (m *MemoryRecord) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("invalid memory record: missing id")
	}
	if m.OwnerID == "" {
		return fmt.Errorf("invalid memory record: missing owner_id")
	}
	if !ValidMemoryKind(m.Kind) {
		return fmt.Errorf("invalid memory record: unknown kind %q", m.Kind)
	}
	if m.Content == "" {
		return fmt.Errorf("invalid memory record: empty content")
	}
	if m.Importance < 0 || m.Importance > 1 {
		return fmt.Errorf("invalid memory record: importance %v out of [0,1]", m.Importance)
	}
	return nil
}
