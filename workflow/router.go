//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"trpc.group/trpc-go/trpc-kubeintel-go/log"
	"trpc.group/trpc-go/trpc-kubeintel-go/session"
	"trpc.group/trpc-go/trpc-kubeintel-go/telemetry"
)

// Router composes the session store and the per-tool step tables. It resolves
// start-vs-continue, validates required fields, dispatches to step handlers,
// persists the outcome and shapes the response envelope.
type Router struct {
	store session.Store
	specs map[string]*ToolSpec

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	callCounter metric.Int64Counter
}

// NewRouter creates a router over the given session store.
func NewRouter(store session.Store) *Router {
	counter, err := telemetry.Meter.Int64Counter("kubeintel.workflow.calls",
		metric.WithDescription("Workflow calls handled, by tool kind and outcome."))
	if err != nil {
		log.Warnf("workflow: create call counter: %v", err)
	}
	return &Router{
		store:       store,
		specs:       make(map[string]*ToolSpec),
		locks:       make(map[string]*sync.Mutex),
		callCounter: counter,
	}
}

// Register adds a tool spec to the router.
func (r *Router) Register(spec *ToolSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if _, ok := r.specs[spec.Kind]; ok {
		return fmt.Errorf("workflow: tool %q already registered", spec.Kind)
	}
	for kind, existing := range r.specs {
		if existing.Prefix == spec.Prefix {
			return fmt.Errorf("workflow: tool %q reuses session prefix %q of tool %q", spec.Kind, spec.Prefix, kind)
		}
	}
	r.specs[spec.Kind] = spec
	return nil
}

// Spec returns the registered spec for a tool kind.
func (r *Router) Spec(kind string) (*ToolSpec, bool) {
	spec, ok := r.specs[kind]
	return spec, ok
}

// Specs returns every registered spec, ordered by kind.
func (r *Router) Specs() []*ToolSpec {
	kinds := make([]string, 0, len(r.specs))
	for kind := range r.specs {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	specs := make([]*ToolSpec, 0, len(kinds))
	for _, kind := range kinds {
		specs = append(specs, r.specs[kind])
	}
	return specs
}

// Handle executes one workflow call. A returned Go error is a transport-level
// failure (unknown tool, storage outage); every workflow-level failure comes
// back as an error envelope so the calling agent keeps a single shape to parse.
func (r *Router) Handle(ctx context.Context, toolKind string, req Request) (*Envelope, error) {
	spec, ok := r.specs[toolKind]
	if !ok {
		return nil, fmt.Errorf("workflow: unknown tool kind %q", toolKind)
	}
	if req.Fields == nil {
		req.Fields = map[string]any{}
	}

	ctx, span := telemetry.Tracer.Start(ctx, "workflow.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("kubeintel.tool", toolKind),
		attribute.Bool("kubeintel.continue", req.SessionID != ""),
	)

	env, err := r.dispatch(ctx, spec, req)
	r.countCall(ctx, toolKind, env, err)
	return env, err
}

func (r *Router) dispatch(ctx context.Context, spec *ToolSpec, req Request) (*Envelope, error) {
	if req.SessionID == "" {
		// A continuation-shaped call (explicit non-initial step) without a
		// sessionId is resolved by the tool's declared policy.
		if req.Step != "" && req.Step != spec.InitialStep && spec.MissingSession == ErrorOnMissing {
			return NewErrorEnvelope(
				fmt.Sprintf("A sessionId is required to run step '%s'.", req.Step),
				"Call the tool without a step first to obtain a sessionId.",
			), nil
		}
		return r.start(ctx, spec, req)
	}
	return r.resume(ctx, spec, req)
}

// start is the identifier-less path: run the initial handler, allocate a
// session, persist, respond.
func (r *Router) start(ctx context.Context, spec *ToolSpec, req Request) (*Envelope, error) {
	desc := spec.Steps[spec.InitialStep]
	if env := checkRequired(desc, req.Fields); env != nil {
		return env, nil
	}

	now := time.Now()
	sess := &session.Session{
		ID:          session.NewID(spec.Prefix),
		ToolKind:    spec.Kind,
		CurrentStep: spec.InitialStep,
		Status:      session.StatusActive,
		Data:        session.DataMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	res, err := desc.Handle(ctx, sess, req.Fields)
	if err != nil {
		return shapeHandlerError(spec, desc, err), nil
	}
	applyResult(sess, res, now)
	if err := r.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("workflow: persist new session: %w", err)
	}
	log.Debugf("workflow: tool %s started session %s at step %s", spec.Kind, sess.ID, spec.InitialStep)
	return successEnvelope(sess, res), nil
}

// resume is the continue path: load, resolve the effective step, validate,
// invoke, merge, persist.
func (r *Router) resume(ctx context.Context, spec *ToolSpec, req Request) (*Envelope, error) {
	// Two concurrent continues against one session must not race the
	// load-validate-mutate-persist sequence.
	lock := r.sessionLock(spec.Kind, req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := r.store.Load(ctx, session.Key{ToolKind: spec.Kind, SessionID: req.SessionID})
	if errors.Is(err, session.ErrNotFound) {
		return NewErrorEnvelope(
			fmt.Sprintf("Session '%s' not found.", req.SessionID),
			"The session may have expired. Start a new conversation without a sessionId.",
		), nil
	}
	if err != nil {
		return nil, fmt.Errorf("workflow: load session: %w", err)
	}

	stepName := resolveStep(spec, sess, req)
	desc, ok := spec.Steps[stepName]
	if !ok {
		return NewErrorEnvelope(
			fmt.Sprintf("Unknown step '%s' for this tool.", stepName),
			fmt.Sprintf("The session is at step '%s'; omit the step parameter to continue from there.", sess.CurrentStep),
		), nil
	}
	if sess.Status == session.StatusComplete && !desc.ReadOnly {
		return NewErrorEnvelope(
			fmt.Sprintf("Session '%s' is already complete.", sess.ID),
			"Start a new conversation without a sessionId.",
		), nil
	}
	if env := checkRequired(desc, req.Fields); env != nil {
		return env, nil
	}

	res, err := desc.Handle(ctx, sess, req.Fields)
	if err != nil {
		return shapeHandlerError(spec, desc, err), nil
	}

	if desc.ReadOnly {
		// Read-only steps observe without persisting so they stay safe to
		// poll arbitrarily often.
		return readOnlyEnvelope(sess, res), nil
	}

	applyResult(sess, res, time.Now())
	if err := r.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("workflow: persist session: %w", err)
	}
	log.Debugf("workflow: tool %s session %s advanced to step %s (status %s)",
		spec.Kind, sess.ID, sess.CurrentStep, sess.Status)
	return successEnvelope(sess, res), nil
}

// resolveStep determines the effective step: an explicit step parameter wins;
// otherwise the transition table selects the first candidate whose trigger
// fields are all present; otherwise the session stays on its current step.
func resolveStep(spec *ToolSpec, sess *session.Session, req Request) string {
	if req.Step != "" {
		return req.Step
	}
	for _, name := range spec.Transitions[sess.CurrentStep] {
		desc := spec.Steps[name]
		if desc == nil || len(desc.Triggers) == 0 {
			continue
		}
		allPresent := true
		for _, trigger := range desc.Triggers {
			if !FieldPresent(req.Fields, trigger) {
				allPresent = false
				break
			}
		}
		if allPresent {
			return name
		}
	}
	return sess.CurrentStep
}

// checkRequired returns an error envelope if a required field is absent.
// It runs strictly before the handler, so a rejected call mutates nothing.
func checkRequired(desc *StepDescriptor, fields map[string]any) *Envelope {
	for _, name := range desc.RequiredFields {
		if FieldPresent(fields, name) {
			continue
		}
		hint := desc.Hints[name]
		if hint == "" {
			hint = fmt.Sprintf("Provide '%s' and retry the call.", name)
		}
		return NewErrorEnvelope(
			fmt.Sprintf("Missing required field '%s' for step '%s'.", name, desc.Name),
			hint,
		)
	}
	return nil
}

// applyResult merges the handler's patch and advances the step. A terminal
// result marks the session complete; the record is retained, never deleted.
func applyResult(sess *session.Session, res *StepResult, now time.Time) {
	for k, v := range res.DataPatch {
		if v == nil {
			delete(sess.Data, k)
			continue
		}
		sess.Data[k] = v
	}
	if res.NextStep == "" {
		sess.Status = session.StatusComplete
	} else {
		sess.CurrentStep = res.NextStep
	}
	sess.Touch(now)
}

// shapeHandlerError turns a handler failure into a workflow-level envelope.
// Nothing has been persisted at this point, so prior session state is intact.
func shapeHandlerError(spec *ToolSpec, desc *StepDescriptor, err error) *Envelope {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return NewErrorEnvelope(vErr.Message, vErr.Hint)
	}
	log.Errorf("workflow: tool %s step %s failed: %v", spec.Kind, desc.Name, err)
	return NewErrorEnvelope(
		fmt.Sprintf("Step '%s' failed: %v", desc.Name, err),
		"The session state is unchanged; retry the same call.",
	)
}

func successEnvelope(sess *session.Session, res *StepResult) *Envelope {
	wf := make(map[string]any, len(res.Payload)+3)
	for k, v := range res.Payload {
		wf[k] = v
	}
	wf["sessionId"] = sess.ID
	message := res.Message
	if sess.Status == session.StatusComplete {
		wf["status"] = string(session.StatusComplete)
		if message == "" {
			message = "Workflow complete."
		}
	} else {
		wf["nextStep"] = sess.CurrentStep
		if message == "" {
			message = fmt.Sprintf("Continue with sessionId '%s'; the next step is '%s'.", sess.ID, sess.CurrentStep)
		}
	}
	return &Envelope{Success: true, Message: message, Workflow: wf}
}

func readOnlyEnvelope(sess *session.Session, res *StepResult) *Envelope {
	wf := make(map[string]any, len(res.Payload)+2)
	for k, v := range res.Payload {
		wf[k] = v
	}
	wf["sessionId"] = sess.ID
	if sess.Status == session.StatusActive {
		wf["nextStep"] = sess.CurrentStep
	}
	return &Envelope{Success: true, Message: res.Message, Workflow: wf}
}

// sessionLock returns the mutex serializing mutations of one session. Locks
// are retained for the life of the router; session cardinality is bounded by
// the store's retention.
func (r *Router) sessionLock(toolKind, sessionID string) *sync.Mutex {
	key := toolKind + "/" + sessionID
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}

func (r *Router) countCall(ctx context.Context, toolKind string, env *Envelope, err error) {
	if r.callCounter == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "transport_error"
	case env != nil && !env.Success:
		outcome = "workflow_error"
	}
	r.callCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kubeintel.tool", toolKind),
		attribute.String("kubeintel.outcome", outcome),
	))
}
