//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package operate implements the day-2 operations tool: describe an issue,
// review the proposed remediation plan, and execute it action by action with
// per-action error isolation.
package operate

import (
	"context"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-kubeintel-go/cluster"
	"trpc.group/trpc-go/trpc-kubeintel-go/model"
	"trpc.group/trpc-go/trpc-kubeintel-go/session"
	"trpc.group/trpc-go/trpc-kubeintel-go/workflow"
)

const (
	// Kind is the tool family name.
	Kind = "operate"
	// Prefix is the session id prefix.
	Prefix = "op"

	stepDescribe = "describe-issue"
	stepApprove  = "approve"
)

// Tool wires the operations workflow to the reasoning provider and the
// cluster action boundary.
type Tool struct {
	provider model.Provider
	actioner cluster.Actioner
}

// New creates the operations tool.
func New(provider model.Provider, actioner cluster.Actioner) *Tool {
	return &Tool{provider: provider, actioner: actioner}
}

// Spec returns the tool's workflow table.
func (t *Tool) Spec() *workflow.ToolSpec {
	return &workflow.ToolSpec{
		Kind:        Kind,
		Prefix:      Prefix,
		Description: "Plan and apply day-2 changes: describe an issue, review the plan, approve to execute.",
		InitialStep: stepDescribe,
		Steps: map[string]*workflow.StepDescriptor{
			stepDescribe: {
				Name:           stepDescribe,
				RequiredFields: []string{"issue"},
				Hints: map[string]string{
					"issue": "Describe the problem, e.g. 'payments deployment is crash-looping after the last rollout'.",
				},
				Handle: t.handleDescribe,
			},
			stepApprove: {
				Name:           stepApprove,
				RequiredFields: []string{"approved"},
				Hints: map[string]string{
					"approved": "true executes the plan, false abandons it.",
				},
				Handle: t.handleApprove,
			},
		},
		MissingSession: workflow.ErrorOnMissing,
	}
}

func (t *Tool) handleDescribe(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	issue := workflow.StringField(fields, "issue")
	if issue == "" {
		return nil, workflow.NewValidationError(
			"issue is empty.",
			"Describe the problem to remediate.",
		)
	}

	result, err := t.provider.Infer(ctx,
		"Propose kubectl actions to remediate this issue. Return {\"summary\", \"actions\": [\"kubectl arguments as one string\"]}.",
		map[string]any{"issue": issue},
	)
	if err != nil {
		return nil, fmt.Errorf("plan remediation: %w", err)
	}

	actions := []string{}
	for _, item := range result.ListValue("actions") {
		if s, ok := item.(string); ok && s != "" {
			actions = append(actions, s)
		}
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("plan remediation: provider returned no actions")
	}

	return &workflow.StepResult{
		DataPatch: session.DataMap{
			"issue": issue,
			"plan":  actions,
		},
		Payload: map[string]any{
			"summary": result.StringValue("summary"),
			"plan":    actions,
		},
		NextStep: stepApprove,
		Message:  "Review the plan, then continue with approved=true to execute it.",
	}, nil
}

// handleApprove executes the stored plan. One action's failure is recorded
// and never aborts the remaining actions.
func (t *Tool) handleApprove(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	if !workflow.BoolField(fields, "approved") {
		return &workflow.StepResult{
			Payload:  map[string]any{"executed": false},
			NextStep: "",
			Message:  "Plan abandoned; nothing was changed.",
		}, nil
	}

	plan := planFromData(sess)
	if len(plan) == 0 {
		return nil, fmt.Errorf("session has no stored plan")
	}

	results := make([]map[string]any, 0, len(plan))
	failed := 0
	for _, action := range plan {
		out, err := t.actioner.Apply(ctx, splitAction(action))
		entry := map[string]any{"action": action}
		if err != nil {
			failed++
			entry["error"] = err.Error()
		} else {
			entry["output"] = strings.TrimSpace(out)
		}
		results = append(results, entry)
	}

	return &workflow.StepResult{
		DataPatch: session.DataMap{"results": results},
		Payload: map[string]any{
			"executed": true,
			"results":  results,
			"failed":   failed,
		},
		NextStep: "",
		Message:  fmt.Sprintf("Executed %d actions, %d failed.", len(plan), failed),
	}, nil
}

// splitAction tokenizes one planned action the way a shell would, so quoted
// arguments such as JSON patches survive as single tokens.
func splitAction(action string) []string {
	var tokens []string
	var current strings.Builder
	var quote rune
	inToken := false
	for _, r := range action {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func planFromData(sess *session.Session) []string {
	switch v := sess.Data["plan"].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
