//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package recommend implements the deployment recommendation tool: capture
// the user's intent, clarify it with provider-generated questions, then rank
// deployment solutions against the cluster's scanned capabilities.
package recommend

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-kubeintel-go/capability"
	"trpc.group/trpc-go/trpc-kubeintel-go/model"
	"trpc.group/trpc-go/trpc-kubeintel-go/session"
	"trpc.group/trpc-go/trpc-kubeintel-go/workflow"
)

const (
	// Kind is the tool family name.
	Kind = "recommend"
	// Prefix is the session id prefix.
	Prefix = "rec"

	stepIntent  = "intent"
	stepClarify = "clarify"
	stepChoose  = "choose"
)

// Tool wires the recommendation workflow to its collaborators.
type Tool struct {
	provider model.Provider
	store    capability.Store
}

// New creates the recommendation tool.
func New(provider model.Provider, store capability.Store) *Tool {
	return &Tool{provider: provider, store: store}
}

// Spec returns the tool's workflow table.
func (t *Tool) Spec() *workflow.ToolSpec {
	return &workflow.ToolSpec{
		Kind:        Kind,
		Prefix:      Prefix,
		Description: "Recommend how to deploy an application on this cluster, ranked against its scanned capabilities.",
		InitialStep: stepIntent,
		Steps: map[string]*workflow.StepDescriptor{
			stepIntent: {
				Name:           stepIntent,
				RequiredFields: []string{"intent"},
				Hints: map[string]string{
					"intent": "Describe what should be deployed, e.g. 'a stateless web API with a PostgreSQL database'.",
				},
				Handle: t.handleIntent,
			},
			stepClarify: {
				Name:           stepClarify,
				RequiredFields: []string{"answers"},
				Hints: map[string]string{
					"answers": "Answer the clarifying questions; {} skips the optional ones.",
				},
				Handle: t.handleClarify,
			},
			stepChoose: {
				Name:           stepChoose,
				RequiredFields: []string{"solution"},
				Hints: map[string]string{
					"solution": "Name one of the recommended solutions.",
				},
				Handle: t.handleChoose,
			},
		},
		MissingSession: workflow.RestartOnMissing,
	}
}

func (t *Tool) handleIntent(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	intent := workflow.StringField(fields, "intent")
	if intent == "" {
		return nil, workflow.NewValidationError(
			"intent is empty.",
			"Describe what should be deployed.",
		)
	}

	result, err := t.provider.Infer(ctx,
		"Generate clarifying questions for this deployment intent. Return {\"questions\": [{\"id\", \"question\", \"required\"}]}.",
		map[string]any{"intent": intent},
	)
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}

	return &workflow.StepResult{
		DataPatch: session.DataMap{"intent": intent},
		Payload: map[string]any{
			"questions": result.ListValue("questions"),
		},
		NextStep: stepClarify,
		Message:  "Answer the clarifying questions, or pass {} to skip the optional ones.",
	}, nil
}

func (t *Tool) handleClarify(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	answers := workflow.MapField(fields, "answers")
	if answers == nil {
		answers = map[string]any{}
	}

	docs, err := t.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	caps := make([]map[string]any, len(docs))
	for i, doc := range docs {
		caps[i] = map[string]any{
			"resource":     doc.Key(),
			"description":  doc.Description,
			"capabilities": doc.Capabilities,
		}
	}

	result, err := t.provider.Infer(ctx,
		"Rank deployment solutions for the intent against the cluster capabilities. Return {\"solutions\": [{\"name\", \"score\", \"reason\"}]}.",
		map[string]any{
			"intent":       sess.Data["intent"],
			"answers":      answers,
			"capabilities": caps,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("rank solutions: %w", err)
	}

	solutions := result.ListValue("solutions")
	return &workflow.StepResult{
		DataPatch: session.DataMap{
			"answers":   answers,
			"solutions": solutions,
		},
		Payload: map[string]any{
			"solutions": solutions,
		},
		NextStep: stepChoose,
		Message:  "Pick a solution by name to get its manifest outline.",
	}, nil
}

func (t *Tool) handleChoose(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	solution := workflow.StringField(fields, "solution")
	if solution == "" {
		return nil, workflow.NewValidationError(
			"solution is empty.",
			"Name one of the recommended solutions.",
		)
	}

	result, err := t.provider.Infer(ctx,
		"Produce a Kubernetes manifest outline for the chosen solution. Return {\"manifests\": [{\"kind\", \"outline\"}]}.",
		map[string]any{
			"intent":   sess.Data["intent"],
			"answers":  sess.Data["answers"],
			"solution": solution,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("generate manifests: %w", err)
	}

	return &workflow.StepResult{
		DataPatch: session.DataMap{"solution": solution},
		Payload: map[string]any{
			"solution":  solution,
			"manifests": result.ListValue("manifests"),
		},
		NextStep: "",
		Message:  "Recommendation complete.",
	}, nil
}
