// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/harborai/lectern/services/llm"
	"github.com/harborai/lectern/services/orchestrator/datatypes"
	"github.com/harborai/lectern/services/orchestrator/observability"
)

// intentFamily is one ordered rule: the first family whose pattern
// matches wins.
type intentFamily struct {
	intent  datatypes.Intent
	pattern *regexp.Regexp
}

// Families are checked in priority order. Enhancement outranks the rest
// because "tell me more about the difference" should deepen the previous
// answer, not start a comparison from scratch.
var intentFamilies = []intentFamily{
	{datatypes.IntentEnhancement, regexp.MustCompile(`(?i)\b(more detail|elaborate|expand|go deeper|tell me more|in depth)\b`)},
	{datatypes.IntentClarification, regexp.MustCompile(`(?i)\b(what do you mean|clarify|confused|didn'?t understand|don'?t understand|rephrase|simpler)\b`)},
	{datatypes.IntentComparison, regexp.MustCompile(`(?i)\b(compare|comparison|difference|differ|versus|vs\.?|better than|worse than)\b`)},
	{datatypes.IntentReference, regexp.MustCompile(`(?i)\b(you said|you mentioned|earlier|previously|before you mentioned|that answer|last time)\b`)},
}

// aiIntentPrompt asks for exactly one label. The strict parse below
// tolerates chatty models by searching the reply for a known label.
const aiIntentPrompt = `Classify the user's question into exactly one of these intents:
ENHANCEMENT, CLARIFICATION, COMPARISON, REFERENCE, NEW_TOPIC, CONTINUATION.
Reply with only the label.

Question: %s`

// IntentDetector classifies a question against the running conversation.
// Regex families decide first; an optional AI classifier breaks the
// no-match case; everything else is a continuation.
type IntentDetector struct {
	// generate, when non-nil, is consulted for questions no regex
	// family matches. Failures fall through silently.
	generate llm.GenerateFunc
}

func NewIntentDetector(generate llm.GenerateFunc) *IntentDetector {
	return &IntentDetector{generate: generate}
}

// Detect never fails: with no signal at all the intent is CONTINUATION,
// or NEW_TOPIC when there is no conversation history yet.
func (d *IntentDetector) Detect(ctx context.Context, question string, hasHistory bool) datatypes.Intent {
	for _, family := range intentFamilies {
		if family.pattern.MatchString(question) {
			return family.intent
		}
	}
	if !hasHistory {
		return datatypes.IntentNewTopic
	}
	if d.generate != nil {
		if intent, ok := d.classifyAI(ctx, question); ok {
			return intent
		}
		observability.MemoryFallbacks.WithLabelValues("intent").Inc()
	}
	return datatypes.IntentContinuation
}

// classifyAI asks the model for a label and parses it strictly.
func (d *IntentDetector) classifyAI(ctx context.Context, question string) (datatypes.Intent, bool) {
	reply, err := d.generate(ctx, strings.Replace(aiIntentPrompt, "%s", question, 1), 16)
	if err != nil {
		slog.Debug("AI intent classification failed", "error", err)
		return "", false
	}
	return parseIntentLabel(reply)
}

var knownIntents = []datatypes.Intent{
	datatypes.IntentEnhancement,
	datatypes.IntentClarification,
	datatypes.IntentComparison,
	datatypes.IntentReference,
	datatypes.IntentNewTopic,
	datatypes.IntentContinuation,
}

// parseIntentLabel accepts the reply only if it names exactly one known
// label.
func parseIntentLabel(reply string) (datatypes.Intent, bool) {
	upper := strings.ToUpper(reply)
	var found datatypes.Intent
	matches := 0
	for _, intent := range knownIntents {
		if strings.Contains(upper, string(intent)) {
			found = intent
			matches++
		}
	}
	if matches != 1 {
		return "", false
	}
	return found, true
}
