// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
)

const cardClassName = "Card"

// WeaviateIndex mirrors cards into a Weaviate class for indexed
// similarity search. It is an accelerator, not the source of truth: the
// hybrid chain treats any failure here as a miss and falls back to the
// local store.
type WeaviateIndex struct {
	client *weaviate.Client
	dim    int
}

func NewWeaviateIndex(ctx context.Context, client *weaviate.Client, dim int) (*WeaviateIndex, error) {
	if err := EnsureSchema(ctx, client); err != nil {
		return nil, err
	}
	return &WeaviateIndex{client: client, dim: dim}, nil
}

// cardQueryResponse is the GraphQL shape for Card searches.
type cardQueryResponse struct {
	Get struct {
		Card []struct {
			Content      string `json:"content"`
			Source       string `json:"source"`
			Topic        string `json:"topic"`
			Summary      string `json:"summary"`
			OwnerID      string `json:"owner_id"`
			CollectionID string `json:"collection_id"`
			PageStart    int    `json:"page_start"`
			PageEnd      int    `json:"page_end"`
			Additional   struct {
				ID        string  `json:"id"`
				Certainty float64 `json:"certainty"`
			} `json:"_additional"`
		} `json:"Card"`
	} `json:"Get"`
}

// Put mirrors cards via one batch request. The card's deterministic ID
// doubles as the Weaviate object ID, so re-ingestion upserts in place.
func (w *WeaviateIndex) Put(ctx context.Context, cards []datatypes.Card) error {
	ctx, span := tracer.Start(ctx, "WeaviateIndex.Put")
	defer span.End()

	if len(cards) == 0 {
		return nil
	}
	for _, card := range cards {
		if len(card.Embedding) != w.dim {
			return &DimensionMismatchError{Want: w.dim, Got: len(card.Embedding)}
		}
	}

	objects := make([]*models.Object, len(cards))
	for i, card := range cards {
		objects[i] = &models.Object{
			Class:  cardClassName,
			ID:     strfmt.UUID(card.CardID),
			Vector: card.Embedding,
			Properties: map[string]interface{}{
				"content":       card.Content,
				"source":        card.SourceName,
				"topic":         card.Topic,
				"summary":       card.Summary,
				"owner_id":      card.OwnerID,
				"collection_id": card.CollectionID,
				"page_start":    card.PageSpan[0],
				"page_end":      card.PageSpan[1],
			},
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch import cards to Weaviate: %w", err)
	}
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Error in Weaviate batch item", "error", errItem.Message)
			}
			return fmt.Errorf("weaviate rejected %s", item.ID)
		}
	}
	return nil
}

// Search runs a NearVector query scoped by owner and collection, with an
// optional source restriction. Certainty is the score.
func (w *WeaviateIndex) Search(ctx context.Context, q SearchQuery) ([]Scored, error) {
	ctx, span := tracer.Start(ctx, "WeaviateIndex.Search")
	defer span.End()

	if len(q.Vector) != w.dim {
		return nil, &DimensionMismatchError{Want: w.dim, Got: len(q.Vector)}
	}
	k := q.K
	if k <= 0 {
		k = defaultK
	}

	where := w.scopeFilter(q)

	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(q.Vector)

	// Certainty is always in [0,1]; distance varies by metric.
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "topic"},
		{Name: "summary"},
		{Name: "owner_id"},
		{Name: "collection_id"},
		{Name: "page_start"},
		{Name: "page_end"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(cardClassName).
		WithFields(fields...).
		WithWhere(where).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search returned errors: %v", result.Errors[0].Message)
	}

	parsed, err := datatypes.ParseGraphQLResponse[cardQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse weaviate results: %w", err)
	}

	hits := make([]Scored, 0, len(parsed.Get.Card))
	for _, item := range parsed.Get.Card {
		hits = append(hits, Scored{
			Card: datatypes.Card{
				CardID:       item.Additional.ID,
				OwnerID:      item.OwnerID,
				CollectionID: item.CollectionID,
				SourceName:   item.Source,
				Topic:        item.Topic,
				Summary:      item.Summary,
				Content:      item.Content,
				PageSpan:     [2]int{item.PageStart, item.PageEnd},
			},
			Score: item.Additional.Certainty,
		})
	}
	KeywordBoost(hits, q.Keywords)
	sortByScore(hits)
	return hits, nil
}

// DeleteSource removes all indexed cards for one source file.
func (w *WeaviateIndex) DeleteSource(ctx context.Context, owner, collection, source string) error {
	ctx, span := tracer.Start(ctx, "WeaviateIndex.DeleteSource")
	defer span.End()

	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().WithPath([]string{"owner_id"}).WithOperator(filters.Equal).WithValueString(owner),
			filters.Where().WithPath([]string{"collection_id"}).WithOperator(filters.Equal).WithValueString(collection),
			filters.Where().WithPath([]string{"source"}).WithOperator(filters.Equal).WithValueString(source),
		})

	_, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(cardClassName).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete source from Weaviate: %w", err)
	}
	return nil
}

// scopeFilter builds the owner/collection Where clause, adding a source
// restriction when the query names files.
func (w *WeaviateIndex) scopeFilter(q SearchQuery) *filters.WhereBuilder {
	operands := []*filters.WhereBuilder{
		filters.Where().WithPath([]string{"owner_id"}).WithOperator(filters.Equal).WithValueString(q.OwnerID),
		filters.Where().WithPath([]string{"collection_id"}).WithOperator(filters.Equal).WithValueString(q.CollectionID),
	}
	if len(q.Filenames) > 0 {
		sources := make([]*filters.WhereBuilder, len(q.Filenames))
		for i, f := range q.Filenames {
			sources[i] = filters.Where().WithPath([]string{"source"}).WithOperator(filters.Equal).WithValueString(f)
		}
		operands = append(operands, filters.Where().WithOperator(filters.Or).WithOperands(sources))
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}
