//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package workflow provides the session-driven workflow orchestration engine
// shared by every kubeintel tool: per-tool step tables, start/continue
// routing, validation-before-mutation and agent-facing response envelopes.
package workflow

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-kubeintel-go/session"
)

// Request is the generic workflow request a transport hands to the router.
type Request struct {
	// SessionID continues an existing conversation; empty starts a new one.
	SessionID string
	// Step names the target step explicitly. Tools built around structural
	// inference leave it empty and declare trigger fields instead.
	Step string
	// Fields carries every remaining tool-specific argument.
	Fields map[string]any
}

// StepResult is what a step handler produces: a patch to the session data,
// a response payload, and the name of the next step (empty means terminal).
type StepResult struct {
	// DataPatch is merged into session.Data key by key. A nil value deletes
	// the key.
	DataPatch session.DataMap
	// Payload is returned to the caller inside the workflow envelope.
	Payload map[string]any
	// NextStep is the step the session advances to. Empty completes the
	// workflow.
	NextStep string
	// Message is agent-facing guidance about what to call next.
	Message string
}

// HandlerFunc is the pure transform of one step. The session passed in is a
// private copy; handlers communicate changes only through the DataPatch.
type HandlerFunc func(ctx context.Context, sess *session.Session, fields map[string]any) (*StepResult, error)

// StepDescriptor declares one step of a tool's workflow graph.
type StepDescriptor struct {
	// Name is the step name, unique within the tool.
	Name string
	// RequiredFields are validated before the handler runs. A rejected call
	// never mutates persisted state.
	RequiredFields []string
	// Triggers are optional fields whose presence selects this step during
	// structural step inference.
	Triggers []string
	// Hints maps a required field to actionable text returned when it is
	// missing, e.g. "Provide the list of existing files, [] if none".
	Hints map[string]string
	// ReadOnly steps never mutate or persist the session and stay callable
	// after completion. The progress pseudo-step is the canonical example.
	ReadOnly bool
	// Handle is the step transform.
	Handle HandlerFunc
}

// MissingSessionPolicy decides what a tool does when a continuation-shaped
// call arrives without a sessionId. The corpus of agent tools is split on
// this, so it is an explicit per-tool flag.
type MissingSessionPolicy int

const (
	// ErrorOnMissing rejects the call with a correctable validation error.
	ErrorOnMissing MissingSessionPolicy = iota
	// RestartOnMissing silently starts a fresh session.
	RestartOnMissing
)

// ToolSpec is the per-tool decision table the router dispatches on.
type ToolSpec struct {
	// Kind is the tool family name and its storage namespace.
	Kind string
	// Prefix is the session id prefix, distinct per family.
	Prefix string
	// Description is the agent-facing tool description.
	Description string
	// InitialStep is entered by every identifier-less call.
	InitialStep string
	// Steps is the step table keyed by step name.
	Steps map[string]*StepDescriptor
	// Transitions lists candidate next steps per current step, in trigger
	// priority order. The first candidate whose Triggers are all present in
	// the request wins; otherwise the session's current step is used.
	Transitions map[string][]string
	// MissingSession is the continuation-without-sessionId policy.
	MissingSession MissingSessionPolicy
}

// Validate checks the spec is internally consistent.
func (s *ToolSpec) Validate() error {
	if s.Kind == "" {
		return fmt.Errorf("workflow: tool spec has no kind")
	}
	if s.Prefix == "" {
		return fmt.Errorf("workflow: tool %q has no session prefix", s.Kind)
	}
	if _, ok := s.Steps[s.InitialStep]; !ok {
		return fmt.Errorf("workflow: tool %q: initial step %q not declared", s.Kind, s.InitialStep)
	}
	for name, desc := range s.Steps {
		if desc == nil || desc.Handle == nil {
			return fmt.Errorf("workflow: tool %q: step %q has no handler", s.Kind, name)
		}
	}
	for from, candidates := range s.Transitions {
		if _, ok := s.Steps[from]; !ok {
			return fmt.Errorf("workflow: tool %q: transition source %q not declared", s.Kind, from)
		}
		for _, to := range candidates {
			if _, ok := s.Steps[to]; !ok {
				return fmt.Errorf("workflow: tool %q: transition target %q not declared", s.Kind, to)
			}
		}
	}
	return nil
}

// ErrorDetail is a workflow-level failure the calling agent can act on.
type ErrorDetail struct {
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// Envelope is the uniform response shape for every workflow call. Workflow
// failures travel inside a still-successful transport response, so an
// LLM-driven client always parses the same shape and branches on Success.
type Envelope struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message,omitempty"`
	Workflow map[string]any `json:"workflow,omitempty"`
	Error    *ErrorDetail   `json:"error,omitempty"`
}

// NewErrorEnvelope builds a workflow-level failure envelope.
func NewErrorEnvelope(message, hint string) *Envelope {
	return &Envelope{
		Success: false,
		Error:   &ErrorDetail{Message: message, Hint: hint},
	}
}

// ValidationError lets a handler reject a call with actionable text without
// mutating anything. The router shapes it into an error envelope.
type ValidationError struct {
	Message string
	Hint    string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError.
func NewValidationError(message, hint string) *ValidationError {
	return &ValidationError{Message: message, Hint: hint}
}

// FieldPresent reports whether a field arrived in the request, regardless of
// its value. An explicitly supplied empty list counts as present.
func FieldPresent(fields map[string]any, name string) bool {
	_, ok := fields[name]
	return ok
}

// StringField extracts a string-valued field, "" if absent or mistyped.
func StringField(fields map[string]any, name string) string {
	v, _ := fields[name].(string)
	return v
}

// StringSliceField extracts a list of strings from a field that may arrive
// as []string or as JSON-decoded []any.
func StringSliceField(fields map[string]any, name string) []string {
	switch v := fields[name].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
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

// BoolField extracts a boolean field, false if absent or mistyped.
func BoolField(fields map[string]any, name string) bool {
	v, _ := fields[name].(bool)
	return v
}

// MapField extracts a map-valued field, nil if absent or mistyped.
func MapField(fields map[string]any, name string) map[string]any {
	v, _ := fields[name].(map[string]any)
	return v
}
