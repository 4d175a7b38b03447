//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package openai implements the reasoning provider boundary on the OpenAI
// chat completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"trpc.group/trpc-go/trpc-kubeintel-go/model"
)

var _ model.Provider = (*Provider)(nil)

const systemPrompt = "You are a Kubernetes cluster intelligence assistant. " +
	"Answer with a single JSON object and nothing else."

// Provider is an OpenAI-compatible reasoning provider.
type Provider struct {
	client openai.Client
	name   string
}

// options holds the configuration options for the provider.
type options struct {
	APIKey        string
	BaseURL       string
	OpenAIOptions []openaiopt.RequestOption
}

// Option configures the provider.
type Option func(*options)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.APIKey = key
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.BaseURL = url
	}
}

// WithOpenAIOptions passes extra request options to the underlying client.
func WithOpenAIOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) {
		o.OpenAIOptions = append(o.OpenAIOptions, opts...)
	}
}

// New creates a provider for the named model.
func New(name string, opts ...Option) *Provider {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	var clientOpts []openaiopt.RequestOption
	if o.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.BaseURL))
	}
	clientOpts = append(clientOpts, o.OpenAIOptions...)
	return &Provider{
		client: openai.NewClient(clientOpts...),
		name:   name,
	}
}

// Infer runs one JSON-mode chat completion and decodes the object it returns.
func (p *Provider) Infer(ctx context.Context, prompt string, promptContext map[string]any) (model.StructuredResult, error) {
	user := prompt
	if len(promptContext) > 0 {
		ctxJSON, err := json.Marshal(promptContext)
		if err != nil {
			return nil, fmt.Errorf("openai provider: marshal context: %w", err)
		}
		user = fmt.Sprintf("%s\n\nContext:\n%s", prompt, ctxJSON)
	}

	chatRequest := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.name),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	completion, err := p.client.Chat.Completions.New(ctx, chatRequest)
	if err != nil {
		return nil, fmt.Errorf("openai provider: completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai provider: completion returned no choices")
	}

	result := model.StructuredResult{}
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &result); err != nil {
		return nil, fmt.Errorf("openai provider: decode result: %w", err)
	}
	return result, nil
}
