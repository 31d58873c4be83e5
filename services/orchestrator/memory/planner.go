// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"log/slog"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
	"github.com/harborai/lectern/services/orchestrator/observability"
)

// StrategyPlanner maps an intent to a retrieval strategy and its
// parameters. The table is fixed: the same intent always yields the same
// plan, which keeps retrieval reproducible and testable.
type StrategyPlanner struct{}

func NewStrategyPlanner() *StrategyPlanner {
	return &StrategyPlanner{}
}

// Plan returns the execution plan for an intent. Unknown intents plan as
// CONTINUATION.
func (p *StrategyPlanner) Plan(intent datatypes.Intent) datatypes.ExecutionPlan {
	switch intent {
	case datatypes.IntentEnhancement, datatypes.IntentReference:
		// Going deeper on a prior answer must not miss relevant Q&A
		// history, so recall is wide open: near-zero threshold and AI
		// selection to cut the noise back down.
		return datatypes.ExecutionPlan{
			Intent:   intent,
			Strategy: datatypes.StrategyFocusedQA,
			Params: datatypes.PlanParams{
				RecentLimit:         3,
				SemanticLimit:       8,
				SimilarityThreshold: 0.05,
				UseAISelection:      true,
				PriorityKinds:       []datatypes.MemoryKind{datatypes.MemoryQA},
			},
		}

	case datatypes.IntentClarification:
		return datatypes.ExecutionPlan{
			Intent:   intent,
			Strategy: datatypes.StrategyRecentFocus,
			Params: datatypes.PlanParams{
				RecentLimit:         6,
				SemanticLimit:       2,
				SimilarityThreshold: 0.3,
				PriorityKinds:       []datatypes.MemoryKind{datatypes.MemoryConversation},
			},
		}

	case datatypes.IntentComparison:
		// Comparisons widen limits rather than loosening thresholds.
		return datatypes.ExecutionPlan{
			Intent:   intent,
			Strategy: datatypes.StrategyBroadContext,
			Params: datatypes.PlanParams{
				RecentLimit:         4,
				SemanticLimit:       10,
				SimilarityThreshold: 0.2,
				UseAISelection:      true,
				PriorityKinds:       []datatypes.MemoryKind{datatypes.MemoryQA, datatypes.MemoryGeneral},
			},
		}

	case datatypes.IntentNewTopic:
		return datatypes.ExecutionPlan{
			Intent:   intent,
			Strategy: datatypes.StrategySemanticDeep,
			Params: datatypes.PlanParams{
				RecentLimit:         1,
				SemanticLimit:       10,
				SimilarityThreshold: 0.35,
			},
		}

	default:
		return mixedApproachPlan(intent)
	}
}

// SafePlan is Plan with panic recovery: any planning failure degrades to
// the balanced default instead of killing the request.
func (p *StrategyPlanner) SafePlan(intent datatypes.Intent) (plan datatypes.ExecutionPlan) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Strategy planning panicked, using mixed approach", "intent", intent, "panic", r)
			observability.MemoryFallbacks.WithLabelValues("plan").Inc()
			plan = mixedApproachPlan(intent)
		}
	}()
	return p.Plan(intent)
}

func mixedApproachPlan(intent datatypes.Intent) datatypes.ExecutionPlan {
	return datatypes.ExecutionPlan{
		Intent:   intent,
		Strategy: datatypes.StrategyMixedApproach,
		Params: datatypes.PlanParams{
			RecentLimit:         4,
			SemanticLimit:       5,
			SimilarityThreshold: 0.25,
		},
	}
}
