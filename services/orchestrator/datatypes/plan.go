// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Intent is the classified purpose of a user question.
type Intent string

const (
	// IntentEnhancement asks for more detail on a prior answer.
	IntentEnhancement Intent = "ENHANCEMENT"

	// IntentClarification asks what a prior answer meant.
	IntentClarification Intent = "CLARIFICATION"

	// IntentContinuation continues the current thread; also the default
	// when no pattern matches and AI classification is unavailable.
	IntentContinuation Intent = "CONTINUATION"

	// IntentNewTopic starts an unrelated thread.
	IntentNewTopic Intent = "NEW_TOPIC"

	// IntentComparison asks to relate two or more things.
	IntentComparison Intent = "COMPARISON"

	// IntentReference points back at something previously said.
	IntentReference Intent = "REFERENCE"
)

// RetrievalStrategy is a named memory-retrieval policy.
type RetrievalStrategy string

const (
	// StrategyFocusedQA widens recall over prior Q&A records; used for
	// enhancement and reference intents, which must not silently miss
	// relevant prior answers.
	StrategyFocusedQA RetrievalStrategy = "FOCUSED_QA"

	// StrategyRecentFocus leans on the most recent exchanges.
	StrategyRecentFocus RetrievalStrategy = "RECENT_FOCUS"

	// StrategyBroadContext widens fetch limits instead of loosening the
	// similarity threshold; used for comparisons.
	StrategyBroadContext RetrievalStrategy = "BROAD_CONTEXT"

	// StrategySemanticDeep searches semantically with little recency bias;
	// used when a new topic opens.
	StrategySemanticDeep RetrievalStrategy = "SEMANTIC_DEEP"

	// StrategyMixedApproach balances recent and semantic retrieval; also
	// the fallback plan when planning itself fails.
	StrategyMixedApproach RetrievalStrategy = "MIXED_APPROACH"
)

// PlanParams are the numeric knobs attached to a retrieval strategy.
type PlanParams struct {
	// RecentLimit bounds how many recent exchanges to fetch.
	RecentLimit int `json:"recent_limit"`

	// SemanticLimit bounds how many semantic candidates to fetch.
	SemanticLimit int `json:"semantic_limit"`

	// SimilarityThreshold filters semantic candidates by cosine score.
	SimilarityThreshold float64 `json:"similarity_threshold"`

	// UseAISelection enables AI-assisted relevance selection, with
	// deterministic fallbacks when the call fails.
	UseAISelection bool `json:"use_ai_selection"`

	// PriorityKinds orders which memory kinds to prefer.
	PriorityKinds []MemoryKind `json:"priority_kinds,omitempty"`
}

// ExecutionPlan is the per-question retrieval decision. It is a transient
// value object derived by the planner and owned by the call stack; it is
// never persisted.
type ExecutionPlan struct {
	Intent   Intent            `json:"intent"`
	Strategy RetrievalStrategy `json:"strategy"`
	Params   PlanParams        `json:"params"`
}
