//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package policy implements the organizational policy management tool:
// list, add and remove deployment policies through a confirmed conversation.
package policy

import (
	"context"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-kubeintel-go/capability"
	"trpc.group/trpc-go/trpc-kubeintel-go/session"
	"trpc.group/trpc-go/trpc-kubeintel-go/workflow"
)

const (
	// Kind is the tool family name.
	Kind = "policy"
	// Prefix is the session id prefix.
	Prefix = "pol"

	stepSelectAction = "select-action"
	stepCompose      = "compose"
	stepConfirm      = "confirm"

	// policyGroup namespaces policy documents inside the document store.
	policyGroup = "policies.kubeintel"

	actionList   = "list"
	actionAdd    = "add"
	actionRemove = "remove"
)

// Tool wires the policy workflow to its document store.
type Tool struct {
	store capability.Store
}

// New creates the policy tool over a dedicated document store namespace.
func New(store capability.Store) *Tool {
	return &Tool{store: store}
}

// Spec returns the tool's workflow table.
func (t *Tool) Spec() *workflow.ToolSpec {
	return &workflow.ToolSpec{
		Kind:        Kind,
		Prefix:      Prefix,
		Description: "Manage organizational deployment policies: list, add or remove them.",
		InitialStep: stepSelectAction,
		Steps: map[string]*workflow.StepDescriptor{
			stepSelectAction: {
				Name:           stepSelectAction,
				RequiredFields: []string{"action"},
				Hints: map[string]string{
					"action": "One of 'list', 'add' or 'remove'.",
				},
				Handle: t.handleSelectAction,
			},
			stepCompose: {
				Name:           stepCompose,
				RequiredFields: []string{"policyName"},
				Hints: map[string]string{
					"policyName": "A short kebab-case policy identifier, e.g. 'require-resource-limits'.",
				},
				Handle: t.handleCompose,
			},
			stepConfirm: {
				Name:           stepConfirm,
				RequiredFields: []string{"confirmed"},
				Hints: map[string]string{
					"confirmed": "true applies the change, false abandons it.",
				},
				Handle: t.handleConfirm,
			},
		},
		MissingSession: workflow.ErrorOnMissing,
	}
}

func (t *Tool) handleSelectAction(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	action := workflow.StringField(fields, "action")
	switch action {
	case actionList:
		docs, err := t.store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list policies: %w", err)
		}
		policies := make([]map[string]any, len(docs))
		for i, doc := range docs {
			policies[i] = map[string]any{
				"name":      doc.Kind,
				"rationale": doc.Description,
			}
		}
		return &workflow.StepResult{
			Payload:  map[string]any{"policies": policies},
			NextStep: "",
			Message:  fmt.Sprintf("%d policies defined.", len(policies)),
		}, nil
	case actionAdd, actionRemove:
		return &workflow.StepResult{
			DataPatch: session.DataMap{"action": action},
			Payload: map[string]any{
				"questions": composeQuestions(action),
			},
			NextStep: stepCompose,
			Message:  fmt.Sprintf("Provide the policy details to %s.", action),
		}, nil
	default:
		return nil, workflow.NewValidationError(
			fmt.Sprintf("Unknown action '%s'.", action),
			"Use 'list', 'add' or 'remove'.",
		)
	}
}

func (t *Tool) handleCompose(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	action, _ := sess.Data["action"].(string)
	name := workflow.StringField(fields, "policyName")
	if name == "" {
		return nil, workflow.NewValidationError(
			"policyName is empty.",
			"Provide the policy identifier.",
		)
	}
	rationale := workflow.StringField(fields, "rationale")
	if action == actionAdd && rationale == "" {
		return nil, workflow.NewValidationError(
			"Missing required field 'rationale' when adding a policy.",
			"Explain why the policy exists; agents surface it when the policy blocks a deployment.",
		)
	}
	if action == actionRemove {
		if _, err := t.store.Get(ctx, policyKey(name)); err == capability.ErrNotFound {
			return nil, workflow.NewValidationError(
				fmt.Sprintf("Policy '%s' does not exist.", name),
				"Use action 'list' to see the defined policies.",
			)
		} else if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
	}

	return &workflow.StepResult{
		DataPatch: session.DataMap{
			"policyName": name,
			"rationale":  rationale,
		},
		Payload: map[string]any{
			"preview": map[string]any{
				"action":     action,
				"policyName": name,
				"rationale":  rationale,
			},
		},
		NextStep: stepConfirm,
		Message:  "Confirm with confirmed=true to apply the change.",
	}, nil
}

func (t *Tool) handleConfirm(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	action, _ := sess.Data["action"].(string)
	name, _ := sess.Data["policyName"].(string)

	if !workflow.BoolField(fields, "confirmed") {
		return &workflow.StepResult{
			Payload:  map[string]any{"applied": false},
			NextStep: "",
			Message:  "Change abandoned.",
		}, nil
	}

	switch action {
	case actionAdd:
		rationale, _ := sess.Data["rationale"].(string)
		doc := &capability.Document{
			Kind:        name,
			Group:       policyGroup,
			Description: rationale,
			ScannedAt:   time.Now(),
		}
		if err := t.store.Upsert(ctx, doc); err != nil {
			return nil, fmt.Errorf("store policy: %w", err)
		}
	case actionRemove:
		if err := t.store.Delete(ctx, policyKey(name)); err != nil {
			return nil, fmt.Errorf("delete policy: %w", err)
		}
	default:
		return nil, fmt.Errorf("session has no pending action")
	}

	return &workflow.StepResult{
		Payload: map[string]any{
			"applied":    true,
			"action":     action,
			"policyName": name,
		},
		NextStep: "",
		Message:  fmt.Sprintf("Policy '%s' %s applied.", name, action),
	}, nil
}

func composeQuestions(action string) []map[string]any {
	questions := []map[string]any{{
		"id":       "policyName",
		"question": "Which policy?",
		"required": true,
	}}
	if action == actionAdd {
		questions = append(questions, map[string]any{
			"id":       "rationale",
			"question": "Why does this policy exist?",
			"required": true,
		})
	}
	return questions
}

func policyKey(name string) string {
	return name + "." + policyGroup
}
