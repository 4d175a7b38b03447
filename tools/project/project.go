//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package project implements the project-file generation tool: a multi-step
// conversation that assesses which project files are missing, then walks the
// selected files one at a time, collecting answers and emitting content.
package project

import (
	"context"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-kubeintel-go/session"
	"trpc.group/trpc-go/trpc-kubeintel-go/workflow"
)

const (
	// Kind is the tool family name.
	Kind = "project"
	// Prefix is the session id prefix.
	Prefix = "proj"

	stepCollect  = "collect-context"
	stepAssess   = "assess"
	stepSelect   = "select"
	stepGenerate = "generate"
)

// Question is one agent-facing question about a file.
type Question struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Required bool   `json:"required"`
}

// fileTemplate describes one generatable project file.
type fileTemplate struct {
	name      string
	reason    string
	questions []Question
	render    func(projectName string, answers map[string]any) string
}

// catalog is the ordered set of files the tool knows how to generate.
var catalog = []fileTemplate{
	{
		name:   "README.md",
		reason: "Every project needs an entry point for humans and agents.",
		questions: []Question{
			{ID: "description", Question: "One-line description of the project?", Required: false},
		},
		render: func(projectName string, answers map[string]any) string {
			description, _ := answers["description"].(string)
			if description == "" {
				description = "A service deployed to Kubernetes."
			}
			return fmt.Sprintf("# %s\n\n%s\n", projectName, description)
		},
	},
	{
		name:   "Dockerfile",
		reason: "Required to build a container image for cluster deployment.",
		questions: []Question{
			{ID: "baseImage", Question: "Container base image?", Required: false},
		},
		render: func(projectName string, answers map[string]any) string {
			base, _ := answers["baseImage"].(string)
			if base == "" {
				base = "golang:1.24-alpine"
			}
			return fmt.Sprintf("FROM %s\nWORKDIR /app\nCOPY . .\nRUN go build -o /%s .\nCMD [\"/%s\"]\n", base, projectName, projectName)
		},
	},
	{
		name:   ".github/workflows/ci.yaml",
		reason: "Continuous integration keeps generated manifests deployable.",
		questions: []Question{
			{ID: "goVersion", Question: "Go version for CI?", Required: false},
		},
		render: func(projectName string, answers map[string]any) string {
			version, _ := answers["goVersion"].(string)
			if version == "" {
				version = "1.24"
			}
			return fmt.Sprintf("name: ci\non: [push]\njobs:\n  test:\n    runs-on: ubuntu-latest\n    steps:\n      - uses: actions/checkout@v4\n      - uses: actions/setup-go@v5\n        with:\n          go-version: %q\n      - run: go test ./...\n", version)
		},
	},
	{
		name:   "deployment.yaml",
		reason: "The workload manifest the recommendation tool builds on.",
		questions: []Question{
			{ID: "replicas", Question: "How many replicas?", Required: false},
			{ID: "namespace", Question: "Target namespace?", Required: false},
		},
		render: func(projectName string, answers map[string]any) string {
			namespace, _ := answers["namespace"].(string)
			if namespace == "" {
				namespace = "default"
			}
			replicas := "2"
			if r, ok := answers["replicas"].(string); ok && r != "" {
				replicas = r
			}
			return fmt.Sprintf("apiVersion: apps/v1\nkind: Deployment\nmetadata:\n  name: %s\n  namespace: %s\nspec:\n  replicas: %s\n  selector:\n    matchLabels:\n      app: %s\n  template:\n    metadata:\n      labels:\n        app: %s\n    spec:\n      containers:\n        - name: %s\n          image: %s:latest\n", projectName, namespace, replicas, projectName, projectName, projectName, projectName)
		},
	},
}

func templateFor(name string) *fileTemplate {
	for i := range catalog {
		if catalog[i].name == name {
			return &catalog[i]
		}
	}
	return nil
}

// questionsFor builds the question set for a file. The required projectName
// question is prepended until an answer for it has been stored.
func questionsFor(tpl *fileTemplate, haveProjectName bool) []Question {
	questions := []Question{}
	if !haveProjectName {
		questions = append(questions, Question{
			ID:       "projectName",
			Question: "What is the project name?",
			Required: true,
		})
	}
	return append(questions, tpl.questions...)
}

// Spec returns the tool's workflow table. The tool routes by structural
// inference: the presence of selectedFiles distinguishes "give me a report"
// from "start generating".
func Spec() *workflow.ToolSpec {
	return &workflow.ToolSpec{
		Kind:        Kind,
		Prefix:      Prefix,
		Description: "Generate missing project files (README, Dockerfile, CI, manifests) through a guided conversation.",
		InitialStep: stepCollect,
		Steps: map[string]*workflow.StepDescriptor{
			stepCollect: {
				Name:   stepCollect,
				Handle: handleCollect,
			},
			stepAssess: {
				Name:           stepAssess,
				RequiredFields: []string{"existingFiles"},
				Hints: map[string]string{
					"existingFiles": "List the files already present in the project, [] if none.",
				},
				Handle: handleAssess,
			},
			stepSelect: {
				Name:           stepSelect,
				RequiredFields: []string{"selectedFiles"},
				Triggers:       []string{"selectedFiles"},
				Hints: map[string]string{
					"selectedFiles": "Pick file names from the report's availableFiles list.",
				},
				Handle: handleSelect,
			},
			stepGenerate: {
				Name:   stepGenerate,
				Handle: handleGenerate,
			},
		},
		Transitions: map[string][]string{
			stepAssess: {stepSelect},
		},
		MissingSession: workflow.RestartOnMissing,
	}
}

func handleCollect(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	return &workflow.StepResult{
		Payload: map[string]any{
			"questions": []Question{{
				ID:       "existingFiles",
				Question: "Which project files already exist?",
				Required: true,
			}},
		},
		NextStep: stepAssess,
		Message:  "Provide existingFiles ([] if the project is empty) to get a recommendation report.",
	}, nil
}

func handleAssess(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	existing := workflow.StringSliceField(fields, "existingFiles")
	existingSet := make(map[string]bool, len(existing))
	for _, name := range existing {
		existingSet[name] = true
	}

	report := []map[string]any{}
	available := []string{}
	for _, tpl := range catalog {
		if existingSet[tpl.name] {
			continue
		}
		available = append(available, tpl.name)
		report = append(report, map[string]any{
			"file":   tpl.name,
			"reason": tpl.reason,
		})
	}

	return &workflow.StepResult{
		DataPatch: session.DataMap{
			"existingFiles": existing,
		},
		Payload: map[string]any{
			"report":         report,
			"availableFiles": available,
		},
		NextStep: stepSelect,
		Message:  "Review the report, then continue with selectedFiles to start generating.",
	}, nil
}

func handleSelect(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	selected := workflow.StringSliceField(fields, "selectedFiles")
	if len(selected) == 0 {
		return nil, workflow.NewValidationError(
			"No files selected.",
			"Provide at least one file name in selectedFiles.",
		)
	}
	for _, name := range selected {
		if templateFor(name) == nil {
			return nil, workflow.NewValidationError(
				fmt.Sprintf("Unknown file '%s'.", name),
				fmt.Sprintf("Choose from: %s.", strings.Join(catalogNames(), ", ")),
			)
		}
	}

	current := selected[0]
	remaining := append([]string(nil), selected[1:]...)
	tpl := templateFor(current)

	return &workflow.StepResult{
		DataPatch: session.DataMap{
			"selectedFiles":  selected,
			"currentFile":    current,
			"remainingFiles": remaining,
			"completedFiles": []string{},
			"answers":        map[string]any{},
		},
		Payload: map[string]any{
			"currentFile": current,
			"questions":   questionsFor(tpl, false),
		},
		NextStep: stepGenerate,
		Message:  fmt.Sprintf("Answer the questions for '%s', then continue with answers.", current),
	}, nil
}

// handleGenerate drives the per-file loop. A single call may both confirm the
// current file (completedFileName) and hand in answers for the next one
// (nextFileAnswers); the resulting session state is identical to issuing the
// two operations sequentially, and the response previews the file after the
// one just unlocked so the caller can stay one round trip ahead.
func handleGenerate(ctx context.Context, sess *session.Session, fields map[string]any) (*workflow.StepResult, error) {
	state := loadGenerateState(sess)

	if workflow.FieldPresent(fields, "completedFileName") {
		completed := workflow.StringField(fields, "completedFileName")
		if completed != state.current {
			return nil, workflow.NewValidationError(
				fmt.Sprintf("File '%s' is not the file in progress.", completed),
				fmt.Sprintf("The current file is '%s'.", state.current),
			)
		}
		state.completed = append(state.completed, state.current)
		if len(state.remaining) > 0 {
			state.current = state.remaining[0]
			state.remaining = state.remaining[1:]
		} else {
			state.current = ""
		}
	}

	// answers and nextFileAnswers are the same operation; the latter name is
	// used by combined calls to make clear the answers target the file
	// unlocked by completedFileName.
	var provided map[string]any
	answered := false
	if workflow.FieldPresent(fields, "answers") {
		provided = workflow.MapField(fields, "answers")
		answered = true
	}
	if workflow.FieldPresent(fields, "nextFileAnswers") {
		provided = workflow.MapField(fields, "nextFileAnswers")
		answered = true
	}

	if state.current == "" {
		if answered {
			return nil, workflow.NewValidationError(
				"All selected files are already generated.",
				"There is no file left to answer for.",
			)
		}
		return &workflow.StepResult{
			DataPatch: state.patch(),
			Payload: map[string]any{
				"generatedFiles": state.completed,
			},
			NextStep: "",
			Message:  "All selected files are generated. Workflow complete.",
		}, nil
	}

	var generated map[string]any
	if answered {
		merged := state.answersFor(state.current)
		for k, v := range provided {
			merged[k] = v
		}
		if name, ok := merged["projectName"].(string); ok && name != "" {
			state.projectName = name
			delete(merged, "projectName")
		}
		state.answers[state.current] = merged

		if state.projectName == "" {
			return nil, workflow.NewValidationError(
				"Missing required answer 'projectName'.",
				"Provide projectName in the answers; it is required before any file can be generated.",
			)
		}
		tpl := templateFor(state.current)
		generated = map[string]any{
			"name":    state.current,
			"content": tpl.render(state.projectName, merged),
		}
	}

	payload := map[string]any{
		"currentFile": state.current,
	}
	if generated != nil {
		payload["generatedFile"] = generated
	} else {
		payload["questions"] = questionsFor(templateFor(state.current), state.projectName != "")
	}
	if len(state.remaining) > 0 {
		payload["nextFile"] = map[string]any{
			"name":      state.remaining[0],
			"questions": questionsFor(templateFor(state.remaining[0]), state.projectName != ""),
		}
	}

	message := fmt.Sprintf("Answer the questions for '%s', then continue with answers.", state.current)
	if generated != nil {
		message = fmt.Sprintf("Review '%s'; confirm with completedFileName to move on.", state.current)
	}
	return &workflow.StepResult{
		DataPatch: state.patch(),
		Payload:   payload,
		NextStep:  stepGenerate,
		Message:   message,
	}, nil
}

// generateState is the per-session progress of the generation loop.
type generateState struct {
	current     string
	remaining   []string
	completed   []string
	answers     map[string]any
	projectName string
}

func loadGenerateState(sess *session.Session) *generateState {
	state := &generateState{
		current:     stringData(sess, "currentFile"),
		remaining:   sliceData(sess, "remainingFiles"),
		completed:   sliceData(sess, "completedFiles"),
		projectName: stringData(sess, "projectName"),
		answers:     map[string]any{},
	}
	if m, ok := sess.Data["answers"].(map[string]any); ok {
		for k, v := range m {
			state.answers[k] = v
		}
	}
	return state
}

func (s *generateState) answersFor(file string) map[string]any {
	merged := map[string]any{}
	if prior, ok := s.answers[file].(map[string]any); ok {
		for k, v := range prior {
			merged[k] = v
		}
	}
	return merged
}

func (s *generateState) patch() session.DataMap {
	return session.DataMap{
		"currentFile":    s.current,
		"remainingFiles": s.remaining,
		"completedFiles": s.completed,
		"answers":        s.answers,
		"projectName":    s.projectName,
	}
}

func stringData(sess *session.Session, key string) string {
	v, _ := sess.Data[key].(string)
	return v
}

func sliceData(sess *session.Session, key string) []string {
	switch v := sess.Data[key].(type) {
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

func catalogNames() []string {
	names := make([]string, len(catalog))
	for i, tpl := range catalog {
		names[i] = tpl.name
	}
	return names
}
