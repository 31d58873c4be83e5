// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/harborai/lectern/services/llm"
	"github.com/harborai/lectern/services/orchestrator/datatypes"
	"github.com/harborai/lectern/services/orchestrator/embedding"
	"github.com/harborai/lectern/services/orchestrator/observability"
)

// MemoryContext is what retrieval hands to answer composition: a recent
// block and a semantic block, both preformatted. Either or both may be
// empty; composition renders only what exists.
type MemoryContext struct {
	Recent   string
	Semantic string
}

// ExecutionEngine runs a retrieval plan against the buffer and the
// persistent store.
//
// # Description
//
// Execute never returns an error. Retrieval quality degrades through a
// fixed ladder instead: AI-assisted candidate selection when the plan
// asks for it, cosine ranking when the AI call fails, raw recency when
// even scoring is impossible, and empty blocks as the floor. An answer
// composed without memory beats no answer.
type ExecutionEngine struct {
	buffer   *LegacyBuffer
	store    *PersistentStore
	embedder embedding.Port
	generate llm.GenerateFunc // nil disables AI-assisted selection
}

func NewExecutionEngine(buffer *LegacyBuffer, store *PersistentStore, embedder embedding.Port, generate llm.GenerateFunc) *ExecutionEngine {
	return &ExecutionEngine{buffer: buffer, store: store, embedder: embedder, generate: generate}
}

// Execute gathers the memory context for one question under the plan.
func (e *ExecutionEngine) Execute(ctx context.Context, owner, collection, question string, plan datatypes.ExecutionPlan) MemoryContext {
	ctx, span := tracer.Start(ctx, "ExecutionEngine.Execute")
	defer span.End()

	return MemoryContext{
		Recent:   e.recentBlock(ctx, owner, collection, plan),
		Semantic: e.semanticBlock(ctx, owner, collection, question, plan),
	}
}

// recentBlock prefers the in-process buffer and falls back to the
// persistent store when the buffer is cold (fresh process, same owner).
func (e *ExecutionEngine) recentBlock(ctx context.Context, owner, collection string, plan datatypes.ExecutionPlan) string {
	entries := e.buffer.Recent(owner, plan.Params.RecentLimit)
	if len(entries) > 0 {
		return strings.Join(entries, "\n")
	}

	records, err := e.store.ListRecent(ctx, owner, collection, plan.Params.RecentLimit, plan.Params.PriorityKinds)
	if err != nil {
		slog.Warn("Recent memory retrieval failed, continuing without it", "owner", owner, "error", err)
		observability.MemoryFallbacks.WithLabelValues("recent").Inc()
		return ""
	}
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, rec.Content)
	}
	return strings.Join(lines, "\n")
}

// semanticBlock embeds the question, searches the store, and ranks the
// candidates down the selection ladder.
func (e *ExecutionEngine) semanticBlock(ctx context.Context, owner, collection, question string, plan datatypes.ExecutionPlan) string {
	if plan.Params.SemanticLimit <= 0 {
		return ""
	}

	vectors, err := e.embedder.Embed(ctx, []string{question})
	if err != nil || len(vectors) != 1 {
		slog.Warn("Question embedding failed, skipping semantic memory", "owner", owner, "error", err)
		observability.MemoryFallbacks.WithLabelValues("semantic").Inc()
		return ""
	}

	records, err := e.store.SearchSemantic(ctx, owner, collection, vectors[0],
		plan.Params.SemanticLimit, plan.Params.SimilarityThreshold, plan.Params.PriorityKinds)
	if err != nil {
		slog.Warn("Semantic memory search failed, continuing without it", "owner", owner, "error", err)
		observability.MemoryFallbacks.WithLabelValues("semantic").Inc()
		return ""
	}
	if len(records) == 0 {
		return ""
	}

	selected := records
	if plan.Params.UseAISelection && e.generate != nil {
		if picked, ok := e.selectAI(ctx, question, records); ok {
			selected = picked
		} else {
			// SearchSemantic already returned cosine-ranked candidates,
			// so the failed AI pass degrades to that ordering.
			observability.MemoryFallbacks.WithLabelValues("selection").Inc()
		}
	}

	for i := range selected {
		if err := e.store.IncrementAccess(ctx, &selected[i]); err != nil {
			slog.Debug("Failed to bump memory access count", "id", selected[i].ID, "error", err)
		}
	}

	lines := make([]string, 0, len(selected))
	for _, rec := range selected {
		lines = append(lines, rec.Content)
	}
	return strings.Join(lines, "\n")
}

// selectAI asks the model which numbered candidates matter for the
// question and keeps only those, in the order the model names them.
func (e *ExecutionEngine) selectAI(ctx context.Context, question string, records []datatypes.MemoryRecord) ([]datatypes.MemoryRecord, bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nCandidate memories:\n", question)
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec.Content)
	}
	b.WriteString("\nReply with the numbers of the memories relevant to the question, comma-separated. Reply NONE if none are relevant.")

	reply, err := e.generate(ctx, b.String(), 64)
	if err != nil {
		slog.Debug("AI memory selection failed", "error", err)
		return nil, false
	}
	return parseSelection(reply, records)
}

// parseSelection extracts candidate indices from the model reply. An
// unparseable reply rejects the whole selection; NONE selects nothing.
func parseSelection(reply string, records []datatypes.MemoryRecord) ([]datatypes.MemoryRecord, bool) {
	trimmed := strings.TrimSpace(reply)
	if strings.EqualFold(trimmed, "NONE") {
		return nil, true
	}

	seen := make(map[int]bool)
	var out []datatypes.MemoryRecord
	found := false
	for _, field := range strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n'
	}) {
		n, err := strconv.Atoi(strings.TrimSuffix(field, "."))
		if err != nil {
			continue
		}
		found = true
		if n < 1 || n > len(records) || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, records[n-1])
	}
	if !found {
		return nil, false
	}
	return out, true
}
