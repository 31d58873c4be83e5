// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"log/slog"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OpenAIClient calls the OpenAI chat API. A fresh SDK client is built on
// every attempt so that key rotation takes effect mid-retry.
type OpenAIClient struct {
	ring  *KeyRing
	model string
	retry RetryConfig
}

func NewOpenAIClient(ring *KeyRing, retry RetryConfig) *OpenAIClient {
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{ring: ring, model: model, retry: retry}
}

// Generate implements the LLMClient interface.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return c.complete(ctx, c.model, "", prompt, params)
}

// Complete implements the AnswerGenerator capability.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string, sel ProviderSelection) (string, error) {
	model := sel.Model
	if model == "" {
		model = c.model
	}
	return c.complete(ctx, model, systemPrompt, userPrompt, GenerationParams{})
}

func (c *OpenAIClient) complete(ctx context.Context, model, system, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", model))

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	var answer string
	err := WithRotation(ctx, c.ring, c.retry, func(key string) error {
		client := openai.NewClient(key)
		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			return WrapOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return &ProviderError{Provider: ProviderOpenAI, StatusCode: 500, Message: "empty choices in completion response"}
		}
		answer = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("OpenAI generation failed", "model", model, "error", err)
		return "", err
	}
	return answer, nil
}

// WrapOpenAIError lifts go-openai SDK errors into ProviderError so the
// rotation loop can classify them by status code. Shared with the
// embedding client.
func WrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: ProviderOpenAI, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: ProviderOpenAI, StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return err
}
