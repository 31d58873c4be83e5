// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the shared data model for the retrieval core:
// document cards, memory records, execution plans, and the request and
// response shapes exchanged with external collaborators.
package datatypes

import (
	"crypto/sha256"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// validate is the shared validator instance for datatypes.
var validate = validator.New()

// Page is one parsed page of a source document, as produced by the
// external content extractor.
//
// # Description
//
// Pages are the input to the chunker. Image captions, when present, have
// already been folded into Text by the extractor; Images carries the raw
// captions for callers that need them separately.
type Page struct {
	// PageNum is the 1-based page number within the source document.
	PageNum int `json:"page_num"`

	// Text is the extracted page text. May be empty for image-only pages.
	Text string `json:"text"`

	// Images holds captions for images found on the page, if any.
	Images []string `json:"images,omitempty"`
}

// Card is a bounded semantic fragment of a source document plus its
// embedding vector.
//
// # Description
//
// Cards are created during ingestion and are immutable thereafter. A card
// is deleted only when its source document is replaced or removed. Every
// card in a store carries an embedding of the store's configured dimension.
//
// # Fields
//
//   - OwnerID/CollectionID: logical partition; all filtering happens on
//     these two fields before any similarity scoring.
//   - SourceName: the originating document (filename).
//   - Topic: a one-sentence label for the fragment.
//   - Summary: a short extractive summary.
//   - Content: the fragment text, targeted at 150-500 words.
//   - PageSpan: inclusive [first, last] page numbers the content spans.
//
// # Thread Safety
//
// Card is treated as a value type; stores hand out copies.
type Card struct {
	CardID       string    `json:"card_id" validate:"required"`
	OwnerID      string    `json:"owner_id" validate:"required"`
	CollectionID string    `json:"collection_id" validate:"required"`
	SourceName   string    `json:"source_name" validate:"required"`
	Topic        string    `json:"topic"`
	Summary      string    `json:"summary"`
	Content      string    `json:"content" validate:"required"`
	Embedding    []float32 `json:"embedding"`
	PageSpan     [2]int    `json:"page_span"`
}

// Validate checks required card fields via struct tags.
func (c *Card) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid card: %w", err)
	}
	return nil
}

// DeterministicCardID derives a stable card ID from the fragment content
// and its position, so re-ingesting an unchanged document produces the
// same IDs and overwrites rather than duplicates.
func DeterministicCardID(owner, collection, source string, seq int, content string) string {
	hash := sha256.Sum256(fmt.Appendf(nil, "%s/%s/%s/%d/%s", owner, collection, source, seq, content))
	id, err := uuid.FromBytes(hash[:16])
	if err != nil {
		// sha256 always yields 16 usable bytes; this branch is unreachable
		// but uuid.FromBytes has an error return.
		return uuid.NewString()
	}
	return id.String()
}

// SourceInfo describes one piece of document evidence attached to an answer.
type SourceInfo struct {
	Source   string  `json:"source"`
	Topic    string  `json:"topic,omitempty"`
	Score    float64 `json:"score,omitempty"`
	PageSpan [2]int  `json:"page_span,omitempty"`
}
