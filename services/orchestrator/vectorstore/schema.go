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

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// CardClassSchema is the Weaviate class backing the indexed strategy.
// Vectors are supplied by the embedding port, never by Weaviate modules.
func CardClassSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       cardClassName,
		Description: "A bounded document fragment with its embedding.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Fragment text.",
				Tokenization: "word",
			},
			{
				Name:         "topic",
				DataType:     []string{"text"},
				Description:  "Heading or first sentence the fragment falls under.",
				Tokenization: "word",
			},
			{
				Name:         "summary",
				DataType:     []string{"text"},
				Description:  "Short summary used by the evidence fallback chain.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Source file the fragment came from.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "owner_id",
				DataType:        []string{"text"},
				Description:     "Owning user; every query is scoped by it.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "collection_id",
				DataType:        []string{"text"},
				Description:     "Collection within the owner's space.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "page_start",
				DataType:        []string{"int"},
				Description:     "First page the fragment spans.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "page_end",
				DataType:        []string{"int"},
				Description:     "Last page the fragment spans.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureSchema creates the Card class if the cluster does not have it yet.
// Existing classes are left untouched.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	class := CardClassSchema()

	_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
	if err == nil {
		slog.Debug("Schema already exists", "class", class.Class)
		return nil
	}

	slog.Info("Creating schema", "class", class.Class)
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create schema for class %s: %w", class.Class, err)
	}
	return nil
}
