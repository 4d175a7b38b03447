//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package capabilities implements the cluster capability scan tool. A scan
// starts synchronously but runs to completion out of band on a bounded
// worker pool; callers observe it by polling the progress pseudo-step.
package capabilities

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-kubeintel-go/capability"
	"trpc.group/trpc-go/trpc-kubeintel-go/cluster"
	"trpc.group/trpc-go/trpc-kubeintel-go/model"
	"trpc.group/trpc-go/trpc-kubeintel-go/session"
	"trpc.group/trpc-go/trpc-kubeintel-go/task"
	"trpc.group/trpc-go/trpc-kubeintel-go/workflow"
)

const (
	// Kind is the tool family name.
	Kind = "capabilities"
	// Prefix is the session id prefix.
	Prefix = "cap"

	stepStart    = "start"
	stepSelect   = "select"
	stepProgress = "progress"

	// ModeFull enumerates every served resource kind, built-in and custom.
	ModeFull = "full"
	// ModeTargeted scans a caller-supplied kind list.
	ModeTargeted = "targeted"
	// ModeInteractive collects the kind selection through ordinary workflow
	// steps before delegating to the same runner.
	ModeInteractive = "interactive"
)

// descriptionLimit bounds raw describe output stored when no reasoning
// provider is configured.
const descriptionLimit = 2000

// Tool wires the scan workflow to its collaborators.
type Tool struct {
	lister   cluster.Lister
	provider model.Provider
	store    capability.Store
	runner   *task.Runner
	tracker  *task.Tracker
}

// New creates the capability scan tool. The provider may be nil, in which
// case stored descriptions fall back to raw schema output.
func New(lister cluster.Lister, provider model.Provider, store capability.Store, runner *task.Runner, tracker *task.Tracker) *Tool {
	return &Tool{
		lister:   lister,
		provider: provider,
		store:    store,
		runner:   runner,
		tracker:  tracker,
	}
}

// Spec returns the tool's workflow table.
func (t *Tool) Spec() *workflow.ToolSpec {
	return &workflow.ToolSpec{
		Kind:        Kind,
		Prefix:      Prefix,
		Description: "Scan the cluster's resource kinds and store capability summaries for semantic recommendation.",
		InitialStep: stepStart,
		Steps: map[string]*workflow.StepDescriptor{
			stepStart: {
				Name:           stepStart,
				RequiredFields: []string{"mode"},
				Hints: map[string]string{
					"mode": "One of 'full', 'targeted' (with resourceList) or 'interactive'.",
				},
				Handle: t.handleStart,
			},
			stepSelect: {
				Name:           stepSelect,
				RequiredFields: []string{"resourceList"},
				Hints: map[string]string{
					"resourceList": "Pick qualified names from availableResources.",
				},
				Handle: t.handleSelect,
			},
			stepProgress: {
				Name:     stepProgress,
				ReadOnly: true,
				Handle:   t.handleProgress,
			},
		},
		MissingSession: workflow.ErrorOnMissing,
	}
}

func (t *Tool) handleStart(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	mode := workflow.StringField(fields, "mode")
	switch mode {
	case ModeFull:
		return t.startFull(ctx, sess)
	case ModeTargeted:
		return t.startTargeted(ctx, sess, fields)
	case ModeInteractive:
		return t.startInteractive(ctx, sess)
	default:
		return nil, workflow.NewValidationError(
			fmt.Sprintf("Unknown mode '%s'.", mode),
			"Use 'full', 'targeted' or 'interactive'.",
		)
	}
}

func (t *Tool) startFull(ctx context.Context, sess *session.Session) (*workflow.StepResult, error) {
	result, err := t.runner.StartDiscovered(ctx, sess.ID, ModeFull, t.discoverAll, t.scanItem)
	if err != nil {
		return nil, startFailure(err)
	}
	return &workflow.StepResult{
		DataPatch: session.DataMap{"mode": ModeFull},
		Payload: map[string]any{
			"status": result.Status,
			"mode":   result.Mode,
		},
		NextStep: stepProgress,
		Message:  "Full cluster scan started; poll the progress step until status is 'complete'.",
	}, nil
}

func (t *Tool) startTargeted(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	if !workflow.FieldPresent(fields, "resourceList") {
		return nil, workflow.NewValidationError(
			"Missing required field 'resourceList' for targeted mode.",
			"Provide the qualified resource names to scan, e.g. ['Deployment.apps', 'Service'].",
		)
	}
	return t.launchTargeted(ctx, sess, ModeTargeted, workflow.StringSliceField(fields, "resourceList"))
}

func (t *Tool) startInteractive(ctx context.Context, sess *session.Session) (*workflow.StepResult, error) {
	kinds, err := t.lister.ListResourceKinds(ctx)
	if err != nil {
		return nil, fmt.Errorf("list resource kinds: %w", err)
	}
	available := make([]string, len(kinds))
	for i, kind := range kinds {
		available[i] = kind.QualifiedName()
	}
	return &workflow.StepResult{
		DataPatch: session.DataMap{"mode": ModeInteractive},
		Payload: map[string]any{
			"availableResources": available,
			"questions": []map[string]any{{
				"id":       "resourceList",
				"question": "Which resource kinds should be scanned?",
				"required": true,
			}},
		},
		NextStep: stepSelect,
		Message:  "Pick resource kinds from availableResources and continue with resourceList.",
	}, nil
}

// handleSelect finishes the interactive variant. It is sugar over the same
// runner the targeted mode uses, not a separate execution engine; the
// session keeps reporting the mode it was started with.
func (t *Tool) handleSelect(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	mode := ModeTargeted
	if m, ok := sess.Data["mode"].(string); ok && m != "" {
		mode = m
	}
	return t.launchTargeted(ctx, sess, mode, workflow.StringSliceField(fields, "resourceList"))
}

func (t *Tool) launchTargeted(ctx context.Context, sess *session.Session, mode string, resources []string) (*workflow.StepResult, error) {
	if len(resources) == 0 {
		return nil, workflow.NewValidationError(
			"resourceList is empty.",
			"Provide at least one qualified resource name to scan.",
		)
	}
	items := make([]task.WorkItem, len(resources))
	for i, name := range resources {
		items[i] = task.WorkItem{Key: name}
	}
	result, err := t.runner.Start(ctx, sess.ID, mode, items, t.scanItem)
	if err != nil {
		return nil, startFailure(err)
	}
	return &workflow.StepResult{
		DataPatch: session.DataMap{
			"mode":         mode,
			"resourceList": resources,
		},
		Payload: map[string]any{
			"status":        result.Status,
			"mode":          result.Mode,
			"resourceCount": result.ItemCount,
		},
		NextStep: stepProgress,
		Message:  "Scan started; poll the progress step until status is 'complete'.",
	}, nil
}

// startFailure shapes runner launch errors. A still-running batch is a
// correctable caller mistake, not an internal fault.
func startFailure(err error) error {
	if errors.Is(err, task.ErrBatchActive) {
		return workflow.NewValidationError(
			"A scan is already running for this session.",
			"Poll the progress step until status is 'complete' before starting another scan.",
		)
	}
	return err
}

// handleProgress reads the tracker without mutating anything; it is safe to
// poll arbitrarily often and stays callable after the session completes.
func (t *Tool) handleProgress(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	rec, ok := t.tracker.Get(sess.ID)
	if !ok {
		return &workflow.StepResult{
			Payload: map[string]any{
				"progress": map[string]any{"status": "not_found"},
			},
			Message: "No scan has been started for this session.",
		}, nil
	}

	progress := map[string]any{
		"status":    string(rec.Status),
		"total":     rec.Total,
		"succeeded": rec.Succeeded,
		"failed":    rec.Failed,
	}
	if len(rec.Errors) > 0 {
		progress["errors"] = rec.Errors
	}
	message := "Scan still running; poll again."
	if rec.Status == task.StatusComplete {
		message = fmt.Sprintf("Scan complete: %d succeeded, %d failed.", rec.Succeeded, rec.Failed)
	}
	return &workflow.StepResult{
		Payload: map[string]any{"progress": progress},
		Message: message,
	}, nil
}

// discoverAll enumerates the cluster's resource kinds for full mode.
func (t *Tool) discoverAll(ctx context.Context) ([]task.WorkItem, error) {
	kinds, err := t.lister.ListResourceKinds(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]task.WorkItem, len(kinds))
	for i, kind := range kinds {
		items[i] = task.WorkItem{Key: kind.QualifiedName(), Payload: kind}
	}
	return items, nil
}

// scanItem processes one resource kind: describe, summarize, upsert at the
// kind's deterministic key so a re-scan overwrites the stored record.
func (t *Tool) scanItem(ctx context.Context, item task.WorkItem) error {
	schema, err := t.lister.Describe(ctx, item.Key)
	if err != nil {
		return fmt.Errorf("describe: %w", err)
	}

	doc := documentForKey(item)
	doc.ScannedAt = time.Now()

	if t.provider != nil {
		result, err := t.provider.Infer(ctx,
			"Summarize what this Kubernetes resource kind provides and list its capability tags.",
			map[string]any{"resource": item.Key, "schema": schema},
		)
		if err != nil {
			return fmt.Errorf("summarize: %w", err)
		}
		doc.Description = result.StringValue("description")
		for _, tag := range result.ListValue("capabilities") {
			if s, ok := tag.(string); ok {
				doc.Capabilities = append(doc.Capabilities, s)
			}
		}
	}
	if doc.Description == "" {
		doc.Description = truncate(schema, descriptionLimit)
	}

	if err := t.store.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// documentForKey builds the result document skeleton from the item's stable
// identity ("Kind.group", bare "Kind" for core resources).
func documentForKey(item task.WorkItem) *capability.Document {
	if kind, ok := item.Payload.(cluster.ResourceKind); ok {
		return &capability.Document{
			Kind:   kind.Kind,
			Group:  kind.Group,
			Custom: kind.Custom(),
		}
	}
	name, group, _ := strings.Cut(item.Key, ".")
	doc := &capability.Document{Kind: name, Group: group}
	doc.Custom = cluster.ResourceKind{Group: group}.Custom()
	return doc
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
