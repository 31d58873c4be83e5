// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"strings"
	"testing"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
	"github.com/harborai/lectern/services/orchestrator/memory"
	"github.com/harborai/lectern/services/orchestrator/vectorstore"
)

func scoredCard(source, topic, content string, score float64) vectorstore.Scored {
	return vectorstore.Scored{
		Card: datatypes.Card{
			SourceName: source,
			Topic:      topic,
			Content:    content,
		},
		Score: score,
	}
}

func TestBuildContextBlockOrdering(t *testing.T) {
	docs := []vectorstore.Scored{
		scoredCard("manual.pdf", "Coolant", "coolant circulates through the loop", 0.9),
		scoredCard("manual.pdf", "Warranty", "warranty covers two years", 0.5),
	}
	mem := memory.MemoryContext{
		Recent:   "q: what pump\na: the main pump",
		Semantic: "earlier answer about coolant",
	}

	block := BuildContextBlock(docs, mem, 500)

	docIdx := strings.Index(block, "Document evidence:")
	recentIdx := strings.Index(block, "Recent conversation:")
	semanticIdx := strings.Index(block, "Related memory:")
	if docIdx == -1 || recentIdx == -1 || semanticIdx == -1 {
		t.Fatalf("missing sections in block:\n%s", block)
	}
	if !(docIdx < recentIdx && recentIdx < semanticIdx) {
		t.Errorf("sections out of order: doc=%d recent=%d semantic=%d", docIdx, recentIdx, semanticIdx)
	}
	if !strings.Contains(block, "[manual.pdf: Coolant]") {
		t.Errorf("card header missing:\n%s", block)
	}
	if strings.Index(block, "coolant circulates") > strings.Index(block, "warranty covers") {
		t.Error("cards should appear in given score order")
	}
}

func TestBuildContextBlockBudget(t *testing.T) {
	long := strings.Repeat("word ", 300)
	docs := []vectorstore.Scored{scoredCard("a.pdf", "", long, 1)}
	mem := memory.MemoryContext{Recent: strings.Repeat("recent ", 100)}

	block := BuildContextBlock(docs, mem, 50)

	// Section headers are not budgeted; content is.
	contentWords := 0
	for _, line := range strings.Split(block, "\n") {
		if strings.HasSuffix(line, ":") {
			continue
		}
		contentWords += len(strings.Fields(line))
	}
	if contentWords > 52 {
		t.Errorf("content words = %d, want <= budget (+headers slack)", contentWords)
	}
	if strings.Contains(block, "Recent conversation:") {
		t.Error("memory section should be dropped when evidence exhausts the budget")
	}
}

func TestBuildContextBlockEmptyInputs(t *testing.T) {
	block := BuildContextBlock(nil, memory.MemoryContext{}, 100)
	if block != "" {
		t.Errorf("empty inputs should produce empty block, got %q", block)
	}

	onlyMem := BuildContextBlock(nil, memory.MemoryContext{Semantic: "a fact"}, 100)
	if !strings.Contains(onlyMem, "Related memory:") || strings.Contains(onlyMem, "Document evidence:") {
		t.Errorf("memory-only block wrong:\n%s", onlyMem)
	}
}

func TestBuildContextBlockDefaultBudget(t *testing.T) {
	docs := []vectorstore.Scored{scoredCard("a.pdf", "T", "short content", 1)}
	if block := BuildContextBlock(docs, memory.MemoryContext{}, 0); !strings.Contains(block, "short content") {
		t.Errorf("zero budget should fall back to the default, got %q", block)
	}
}
