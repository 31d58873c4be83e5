// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conversation turns a user question into document evidence and a
// bounded context block. It reformulates the question into search variants,
// runs them against the vector store until one produces results, and
// assembles retrieved cards plus memory context under a word budget.
package conversation

import (
	"strings"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("lectern.conversation")

// Leading interrogative scaffolding that rarely carries retrieval signal.
// Longer phrases first so "what is the" wins over "what is".
var questionPrefixes = []string{
	"can you tell me about",
	"can you explain",
	"could you explain",
	"tell me about",
	"what do you know about",
	"what is the",
	"what are the",
	"what is",
	"what are",
	"how does the",
	"how does",
	"how do",
	"why does",
	"why is",
	"where is",
	"where are",
	"who is",
	"explain",
	"describe",
}

// Stopwords dropped when reducing a question to its keyword form.
var keywordStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "do": true,
	"does": true, "did": true, "can": true, "could": true, "would": true,
	"should": true, "what": true, "when": true, "where": true, "which": true,
	"who": true, "why": true, "how": true, "of": true, "in": true,
	"on": true, "for": true, "to": true, "from": true, "with": true,
	"about": true, "and": true, "or": true, "it": true, "its": true,
	"this": true, "that": true, "these": true, "those": true, "me": true,
	"my": true, "you": true, "your": true, "tell": true, "please": true,
	"explain": true, "describe": true,
}

// Reformulator derives alternative phrasings of a question for retrieval.
// All variants are deterministic text transforms; no model calls.
type Reformulator struct {
	maxVariants int
}

func NewReformulator() *Reformulator {
	return &Reformulator{maxVariants: 3}
}

// Variants returns search phrasings for a question, most specific first:
// the original text, the question with interrogative scaffolding trimmed,
// and a keyword-only form. Duplicates and empty variants are dropped.
func (r *Reformulator) Variants(question string) []string {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil
	}

	candidates := []string{
		question,
		trimQuestion(question),
		keywordsOnly(question),
	}

	seen := make(map[string]bool, len(candidates))
	variants := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		cand = strings.TrimSpace(cand)
		if cand == "" {
			continue
		}
		key := strings.ToLower(cand)
		if seen[key] {
			continue
		}
		seen[key] = true
		variants = append(variants, cand)
		if len(variants) == r.maxVariants {
			break
		}
	}
	return variants
}

// trimQuestion strips a leading interrogative phrase and trailing
// punctuation, leaving the subject of the question.
func trimQuestion(question string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(question), "?!. ")
	lower := strings.ToLower(trimmed)
	for _, prefix := range questionPrefixes {
		if strings.HasPrefix(lower, prefix+" ") {
			rest := strings.TrimSpace(trimmed[len(prefix):])
			return trimArticle(rest)
		}
	}
	return trimmed
}

func trimArticle(s string) string {
	lower := strings.ToLower(s)
	for _, article := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(lower, article) {
			return strings.TrimSpace(s[len(article):])
		}
	}
	return s
}

// keywordsOnly reduces a question to its content words, preserving order.
func keywordsOnly(question string) string {
	var words []string
	for _, word := range strings.Fields(question) {
		cleaned := strings.Trim(strings.ToLower(word), "?!.,;:\"'()")
		if cleaned == "" || keywordStopwords[cleaned] {
			continue
		}
		words = append(words, cleaned)
	}
	return strings.Join(words, " ")
}

// Keywords returns the content words of a question for keyword-overlap
// re-ranking.
func Keywords(question string) []string {
	kw := keywordsOnly(question)
	if kw == "" {
		return nil
	}
	return strings.Fields(kw)
}
