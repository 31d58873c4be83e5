// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"fmt"
	"strings"

	"github.com/harborai/lectern/services/orchestrator/memory"
	"github.com/harborai/lectern/services/orchestrator/vectorstore"
)

// DefaultContextBudgetWords bounds the assembled context block. Document
// evidence is spent first; memory fills what remains.
const DefaultContextBudgetWords = 2000

// BuildContextBlock assembles the prompt context from document evidence and
// memory. Evidence comes first in score order, then the recent conversation,
// then semantic memory, truncated at the word budget. Sections that would
// not fit at all are dropped whole rather than opened and cut mid-header.
func BuildContextBlock(docs []vectorstore.Scored, mem memory.MemoryContext, budgetWords int) string {
	if budgetWords <= 0 {
		budgetWords = DefaultContextBudgetWords
	}

	var b strings.Builder
	remaining := budgetWords

	if len(docs) > 0 {
		b.WriteString("Document evidence:\n")
		for _, scored := range docs {
			if remaining <= 0 {
				break
			}
			entry := formatCard(scored)
			entry, used := clampWords(entry, remaining)
			if entry == "" {
				break
			}
			b.WriteString(entry)
			b.WriteString("\n\n")
			remaining -= used
		}
	}

	remaining = writeSection(&b, "Recent conversation:", mem.Recent, remaining)
	writeSection(&b, "Related memory:", mem.Semantic, remaining)

	return strings.TrimRight(b.String(), "\n")
}

func formatCard(scored vectorstore.Scored) string {
	card := scored.Card
	header := card.SourceName
	if card.Topic != "" {
		header = fmt.Sprintf("%s: %s", card.SourceName, card.Topic)
	}
	return fmt.Sprintf("[%s]\n%s", header, card.Content)
}

// writeSection appends a titled section if any budget remains, returning
// the budget left afterwards.
func writeSection(b *strings.Builder, title, content string, remaining int) int {
	content = strings.TrimSpace(content)
	if content == "" || remaining <= 0 {
		return remaining
	}
	clamped, used := clampWords(content, remaining)
	if clamped == "" {
		return remaining
	}
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(clamped)
	b.WriteString("\n\n")
	return remaining - used
}

// clampWords truncates text to at most limit words, reporting how many it
// kept. Whitespace shape inside the kept prefix is not preserved.
func clampWords(text string, limit int) (string, int) {
	if limit <= 0 {
		return "", 0
	}
	words := strings.Fields(text)
	if len(words) <= limit {
		return text, len(words)
	}
	return strings.Join(words[:limit], " "), limit
}
