// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chunker

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
	"github.com/harborai/lectern/services/orchestrator/embedding"
)

var tracer = otel.Tracer("lectern.chunker")

// SummaryFunc optionally rewrites a fragment's extractive summary, for
// example with an LLM. Any failure is swallowed and the extractive
// summary kept.
type SummaryFunc func(ctx context.Context, text string) (string, error)

// BuildCards embeds the fragments in one batch and assembles Cards with
// deterministic identifiers. The fragment index is the card's sequence
// number, so re-ingesting an unchanged document produces the same IDs.
func BuildCards(ctx context.Context, owner, collection, source string, fragments []Fragment, port embedding.Port, summarize SummaryFunc) ([]datatypes.Card, error) {
	ctx, span := tracer.Start(ctx, "chunker.BuildCards")
	defer span.End()

	if len(fragments) == 0 {
		return nil, nil
	}

	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Text
	}
	vectors, err := port.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d fragments: %w", len(fragments), err)
	}
	if len(vectors) != len(fragments) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d fragments", len(vectors), len(fragments))
	}

	cards := make([]datatypes.Card, 0, len(fragments))
	for i, f := range fragments {
		summary := f.Summary
		if summarize != nil {
			if improved, err := summarize(ctx, f.Text); err == nil && improved != "" {
				summary = improved
			} else if err != nil {
				slog.Debug("AI summary failed, keeping extractive summary",
					"source", source, "seq", i, "error", err)
			}
		}
		card := datatypes.Card{
			CardID:       datatypes.DeterministicCardID(owner, collection, source, i, f.Text),
			OwnerID:      owner,
			CollectionID: collection,
			SourceName:   source,
			Topic:        f.Topic,
			Summary:      summary,
			Content:      f.Text,
			Embedding:    vectors[i],
			PageSpan:     f.PageSpan,
		}
		if err := card.Validate(); err != nil {
			return nil, fmt.Errorf("fragment %d produced an invalid card: %w", i, err)
		}
		cards = append(cards, card)
	}
	return cards, nil
}
