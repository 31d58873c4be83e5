// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services wires retrieval, memory, and generation into the
// question-answering pipeline.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/harborai/lectern/services/llm"
	"github.com/harborai/lectern/services/orchestrator/conversation"
	"github.com/harborai/lectern/services/orchestrator/datatypes"
	"github.com/harborai/lectern/services/orchestrator/embedding"
	"github.com/harborai/lectern/services/orchestrator/memory"
	"github.com/harborai/lectern/services/orchestrator/vectorstore"
)

var answerTracer = otel.Tracer("lectern.services")

const (
	// DefaultAnswerTimeout bounds one question end-to-end. When it fires
	// the caller gets a natural-language timeout message, never a hang.
	DefaultAnswerTimeout = 90 * time.Second

	defaultEvidenceK = 6

	answerSystemPrompt = "You are a document assistant. Answer the question " +
		"using only the provided context. If the context does not contain " +
		"the answer, say so plainly. Name the source file when you quote it."

	msgNoEvidence = "I don't know. I could not find anything in this collection relevant to your question."
	msgExhausted  = "I could not reach any answer provider just now. Please try again in a moment."
	msgTimeout    = "That question took too long to answer. Please try again, or ask something narrower."
	msgGeneration = "Something went wrong while composing the answer. The documents were retrieved; please try asking again."
)

// AnswerService is the question-answering orchestrator: it retrieves
// document evidence and conversation memory in parallel, composes a bounded
// context block, and generates an answer through the provider router. Every
// failure mode degrades to a natural-language response.
//
// The service is safe for concurrent use.
type AnswerService struct {
	store        vectorstore.Store
	embedder     *embedding.FailClosed
	router       *llm.Router
	buffer       *memory.LegacyBuffer
	memStore     *memory.PersistentStore
	detector     *memory.IntentDetector
	planner      *memory.StrategyPlanner
	engine       *memory.ExecutionEngine
	reformulator *conversation.Reformulator
	timeout      time.Duration
	budgetWords  int
}

// NewAnswerService assembles the pipeline. The generate hook drives AI
// intent classification and relevance selection; nil restricts both to
// their deterministic fallbacks. The embedder is wrapped fail-closed so a
// dead embedding service degrades retrieval rather than erroring requests.
func NewAnswerService(
	store vectorstore.Store,
	embedder embedding.Port,
	router *llm.Router,
	buffer *memory.LegacyBuffer,
	memStore *memory.PersistentStore,
	generate llm.GenerateFunc,
) *AnswerService {
	timeout := time.Duration(getEnvInt("ANSWER_TIMEOUT_SECONDS", int(DefaultAnswerTimeout/time.Second))) * time.Second
	failClosed := embedding.NewFailClosed(embedder)

	return &AnswerService{
		store:        store,
		embedder:     failClosed,
		router:       router,
		buffer:       buffer,
		memStore:     memStore,
		detector:     memory.NewIntentDetector(generate),
		planner:      memory.NewStrategyPlanner(),
		engine:       memory.NewExecutionEngine(buffer, memStore, failClosed, generate),
		reformulator: conversation.NewReformulator(),
		timeout:      timeout,
		budgetWords:  getEnvInt("CONTEXT_BUDGET_WORDS", conversation.DefaultContextBudgetWords),
	}
}

// Answer handles one question end-to-end.
//
// The flow is:
//  1. Validate and default the request; apply the outer deadline.
//  2. In parallel: retrieve document evidence (variant searches with a
//     fallback chain) and execute the memory strategy pipeline.
//  3. Compose the context block and generate via the router.
//  4. Persist the exchange best-effort.
//
// Only validation failures return an error; every runtime failure becomes
// a degraded natural-language answer.
func (s *AnswerService) Answer(ctx context.Context, req *datatypes.AnswerRequest) (*datatypes.AnswerResponse, error) {
	ctx, span := answerTracer.Start(ctx, "AnswerService.Answer")
	defer span.End()

	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.String("request.owner", req.OwnerID),
	)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	hasHistory := s.buffer.Len(req.OwnerID) > 0

	// Document evidence and memory context are independent; run them in
	// parallel and join before composing the prompt.
	var (
		docs   []vectorstore.Scored
		memCtx memory.MemoryContext
		plan   datatypes.ExecutionPlan
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs = s.retrieveEvidence(gctx, req)
		return nil
	})
	g.Go(func() error {
		intent := s.detector.Detect(gctx, req.Question, hasHistory)
		plan = s.planner.SafePlan(intent)
		memCtx = s.engine.Execute(gctx, req.OwnerID, req.CollectionID, req.Question, plan)
		return nil
	})
	if err := g.Wait(); err != nil {
		// Both branches swallow their own failures; this only fires on
		// context cancellation.
		slog.Warn("Retrieval group interrupted", "requestId", req.RequestID, "error", err)
	}
	span.SetAttributes(
		attribute.String("plan.intent", string(plan.Intent)),
		attribute.String("plan.strategy", string(plan.Strategy)),
		attribute.Int("evidence.cards", len(docs)),
	)

	if len(docs) == 0 && memCtx.Recent == "" && memCtx.Semantic == "" {
		resp := datatypes.NewAnswerResponse(req.RequestID, msgNoEvidence, nil)
		resp.Intent = plan.Intent
		resp.Strategy = plan.Strategy
		resp.Degraded = true
		return resp, nil
	}

	contextBlock := conversation.BuildContextBlock(docs, memCtx, s.budgetWords)
	userPrompt := fmt.Sprintf("%s\n\nQuestion: %s", contextBlock, req.Question)

	answer, degraded := s.generate(ctx, req, userPrompt)

	resp := datatypes.NewAnswerResponse(req.RequestID, answer, sourcesFrom(docs))
	resp.Intent = plan.Intent
	resp.Strategy = plan.Strategy
	resp.Degraded = degraded

	if !degraded {
		s.persistExchange(ctx, req, answer)
	}
	return resp, nil
}

// retrieveEvidence runs the evidence fallback chain: filtered variant
// search, then unfiltered, then a summary sweep of the collection. It never
// fails; exhausting the chain returns nil.
func (s *AnswerService) retrieveEvidence(ctx context.Context, req *datatypes.AnswerRequest) []vectorstore.Scored {
	ctx, span := answerTracer.Start(ctx, "AnswerService.retrieveEvidence")
	defer span.End()

	variants := s.reformulator.Variants(req.Question)
	base := vectorstore.SearchQuery{
		OwnerID:      req.OwnerID,
		CollectionID: req.CollectionID,
		K:            defaultEvidenceK,
		Filenames:    req.Filenames,
		Keywords:     conversation.Keywords(req.Question),
	}

	docs, err := conversation.MultiSearch(ctx, s.store, s.embedder, base, variants)
	if err != nil {
		slog.Warn("Filtered evidence search failed", "requestId", req.RequestID, "error", err)
	}
	if len(docs) > 0 {
		return docs
	}

	if len(base.Filenames) > 0 {
		unfiltered := base
		unfiltered.Filenames = nil
		docs, err = conversation.MultiSearch(ctx, s.store, s.embedder, unfiltered, variants)
		if err != nil {
			slog.Warn("Unfiltered evidence search failed", "requestId", req.RequestID, "error", err)
		}
		if len(docs) > 0 {
			return docs
		}
	}

	return s.summarySweep(ctx, req)
}

// summarySweep is the last rung of the evidence chain: an exhaustive
// unfiltered scan whose card summaries stand in for full content. Useful
// when the question's embedding matches nothing but the collection itself
// is small enough to survey.
func (s *AnswerService) summarySweep(ctx context.Context, req *datatypes.AnswerRequest) []vectorstore.Scored {
	vectors, err := s.embedder.Embed(ctx, []string{req.Question})
	if err != nil || len(vectors) != 1 {
		return nil
	}

	results, err := s.store.Search(ctx, vectorstore.SearchQuery{
		OwnerID:      req.OwnerID,
		CollectionID: req.CollectionID,
		Vector:       vectors[0],
		K:            2 * defaultEvidenceK,
		Strategy:     vectorstore.StrategyExhaustive,
	})
	if err != nil {
		slog.Warn("Summary sweep failed", "requestId", req.RequestID, "error", err)
		return nil
	}

	for i := range results {
		if results[i].Card.Summary != "" {
			results[i].Card.Content = results[i].Card.Summary
		}
	}
	return results
}

// generate calls the router and maps every failure to a degraded message.
func (s *AnswerService) generate(ctx context.Context, req *datatypes.AnswerRequest, userPrompt string) (string, bool) {
	sel := s.router.Select(req.Question, false)
	answer, err := s.router.Complete(ctx, answerSystemPrompt, userPrompt, sel)
	if err == nil && answer != "" {
		return answer, false
	}

	switch {
	case llm.IsProviderExhausted(err):
		slog.Error("All providers exhausted", "requestId", req.RequestID, "provider", string(sel.Provider))
		return msgExhausted, true
	case ctx.Err() != nil:
		slog.Warn("Answer deadline fired", "requestId", req.RequestID)
		return msgTimeout, true
	default:
		slog.Error("Generation failed", "requestId", req.RequestID, "error", err)
		return msgGeneration, true
	}
}

// persistExchange records the finished turn in both memory tiers. Failures
// are logged, never surfaced; losing one memory write must not fail the
// answer that was already produced.
func (s *AnswerService) persistExchange(ctx context.Context, req *datatypes.AnswerRequest, answer string) {
	s.buffer.Add(req.OwnerID, req.Question, answer)

	rec := datatypes.MemoryRecord{
		ID:           uuid.NewString(),
		OwnerID:      req.OwnerID,
		CollectionID: req.CollectionID,
		Kind:         datatypes.MemoryQA,
		Content:      fmt.Sprintf("q: %s\na: %s", req.Question, answer),
		Summary:      req.Question,
		Importance:   0.5,
		CreatedAt:    time.Now().UTC(),
	}
	if vectors, err := s.embedder.Embed(ctx, []string{rec.Content}); err == nil && len(vectors) == 1 && !isZeroVector(vectors[0]) {
		rec.Embedding = vectors[0]
	}
	if err := s.memStore.Put(ctx, &rec); err != nil {
		slog.Warn("Failed to persist exchange", "requestId", req.RequestID, "error", err)
	}
}

func sourcesFrom(docs []vectorstore.Scored) []datatypes.SourceInfo {
	if len(docs) == 0 {
		return nil
	}
	sources := make([]datatypes.SourceInfo, 0, len(docs))
	for _, scored := range docs {
		sources = append(sources, datatypes.SourceInfo{
			Source:   scored.Card.SourceName,
			Topic:    scored.Card.Topic,
			Score:    scored.Score,
			PageSpan: scored.Card.PageSpan,
		})
	}
	return sources
}

// isZeroVector reports whether a fail-closed embedder returned filler.
func isZeroVector(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
		slog.Warn("Invalid integer env var, using default", "key", key, "default", defaultVal)
	}
	return defaultVal
}
