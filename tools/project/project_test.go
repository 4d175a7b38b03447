//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-kubeintel-go/session"
	"trpc.group/trpc-go/trpc-kubeintel-go/session/inmemory"
	"trpc.group/trpc-go/trpc-kubeintel-go/workflow"
)

func newRouter(t *testing.T) (*workflow.Router, *inmemory.Store) {
	t.Helper()
	store := inmemory.NewStore()
	r := workflow.NewRouter(store)
	require.NoError(t, r.Register(Spec()))
	return r, store
}

func handle(t *testing.T, r *workflow.Router, req workflow.Request) *workflow.Envelope {
	t.Helper()
	env, err := r.Handle(context.Background(), Kind, req)
	require.NoError(t, err)
	return env
}

func sessionID(t *testing.T, env *workflow.Envelope) string {
	t.Helper()
	require.True(t, env.Success, "expected success, got %+v", env.Error)
	id, _ := env.Workflow["sessionId"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestProject_EmptyRepositoryScenario(t *testing.T) {
	r, _ := newRouter(t)

	// Identifier-less call: the tool asks which files already exist.
	env := handle(t, r, workflow.Request{})
	id := sessionID(t, env)
	assert.Equal(t, "assess", env.Workflow["nextStep"])
	questions := env.Workflow["questions"].([]Question)
	require.Len(t, questions, 1)
	assert.Equal(t, "existingFiles", questions[0].ID)

	// An explicitly empty existingFiles list is a valid answer: every
	// catalog file is recommended and nothing is in progress yet.
	env = handle(t, r, workflow.Request{
		SessionID: id,
		Fields:    map[string]any{"existingFiles": []any{}},
	})
	require.True(t, env.Success)
	assert.NotContains(t, env.Workflow, "currentFile")
	available := env.Workflow["availableFiles"].([]string)
	assert.Equal(t, []string{"README.md", "Dockerfile", ".github/workflows/ci.yaml", "deployment.yaml"}, available)
	report := env.Workflow["report"].([]map[string]any)
	require.Len(t, report, 4)
	for _, entry := range report {
		assert.NotEmpty(t, entry["reason"])
	}

	// Selecting two files starts the walk; the first file's question set
	// includes the required projectName.
	env = handle(t, r, workflow.Request{
		SessionID: id,
		Fields:    map[string]any{"selectedFiles": []any{"README.md", "Dockerfile"}},
	})
	require.True(t, env.Success)
	assert.Equal(t, "README.md", env.Workflow["currentFile"])
	qs := env.Workflow["questions"].([]Question)
	require.NotEmpty(t, qs)
	assert.Equal(t, "projectName", qs[0].ID)
	assert.True(t, qs[0].Required)
}

func TestProject_ExistingFilesExcluded(t *testing.T) {
	r, _ := newRouter(t)

	env := handle(t, r, workflow.Request{})
	id := sessionID(t, env)

	env = handle(t, r, workflow.Request{
		SessionID: id,
		Fields:    map[string]any{"existingFiles": []any{"README.md", "Dockerfile"}},
	})
	available := env.Workflow["availableFiles"].([]string)
	assert.Equal(t, []string{".github/workflows/ci.yaml", "deployment.yaml"}, available)
}

func TestProject_UnknownSelectionRejected(t *testing.T) {
	r, store := newRouter(t)

	env := handle(t, r, workflow.Request{})
	id := sessionID(t, env)
	handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"existingFiles": []any{}}})

	before, err := store.Load(context.Background(), session.Key{ToolKind: Kind, SessionID: id})
	require.NoError(t, err)

	env = handle(t, r, workflow.Request{
		SessionID: id,
		Fields:    map[string]any{"selectedFiles": []any{"LICENSE"}},
	})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error.Message, "Unknown file 'LICENSE'")

	after, err := store.Load(context.Background(), session.Key{ToolKind: Kind, SessionID: id})
	require.NoError(t, err)
	assert.Equal(t, before.Data, after.Data, "a rejected selection must not mutate the session")
}

func TestProject_GenerateWalk(t *testing.T) {
	r, _ := newRouter(t)

	env := handle(t, r, workflow.Request{})
	id := sessionID(t, env)
	handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"existingFiles": []any{}}})
	handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"selectedFiles": []any{"README.md", "Dockerfile"}}})

	// Answers for the first file; projectName is captured once for the
	// whole session.
	env = handle(t, r, workflow.Request{
		SessionID: id,
		Fields: map[string]any{
			"answers": map[string]any{"projectName": "shop", "description": "demo shop"},
		},
	})
	require.True(t, env.Success)
	generated := env.Workflow["generatedFile"].(map[string]any)
	assert.Equal(t, "README.md", generated["name"])
	assert.Contains(t, generated["content"], "# shop")
	assert.Contains(t, generated["content"], "demo shop")

	// The response previews the next file so the caller stays a round trip
	// ahead; projectName is no longer asked.
	next := env.Workflow["nextFile"].(map[string]any)
	assert.Equal(t, "Dockerfile", next["name"])
	for _, q := range next["questions"].([]Question) {
		assert.NotEqual(t, "projectName", q.ID)
	}

	// Confirm README and answer for the Dockerfile in one combined call.
	env = handle(t, r, workflow.Request{
		SessionID: id,
		Fields: map[string]any{
			"completedFileName": "README.md",
			"nextFileAnswers":   map[string]any{"baseImage": "alpine:3.20"},
		},
	})
	require.True(t, env.Success)
	generated = env.Workflow["generatedFile"].(map[string]any)
	assert.Equal(t, "Dockerfile", generated["name"])
	assert.Contains(t, generated["content"], "FROM alpine:3.20")

	// Confirming the last file completes the workflow.
	env = handle(t, r, workflow.Request{
		SessionID: id,
		Fields:    map[string]any{"completedFileName": "Dockerfile"},
	})
	require.True(t, env.Success)
	assert.Equal(t, "complete", env.Workflow["status"])
	assert.Equal(t, []string{"README.md", "Dockerfile"}, env.Workflow["generatedFiles"])
}

func TestProject_EmptyAnswersSkipOptionalQuestions(t *testing.T) {
	r, _ := newRouter(t)

	env := handle(t, r, workflow.Request{})
	id := sessionID(t, env)
	handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"existingFiles": []any{}}})
	handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"selectedFiles": []any{"README.md"}}})

	env = handle(t, r, workflow.Request{
		SessionID: id,
		Fields:    map[string]any{"answers": map[string]any{"projectName": "shop"}},
	})
	require.True(t, env.Success)
	generated := env.Workflow["generatedFile"].(map[string]any)
	assert.Contains(t, generated["content"], "A service deployed to Kubernetes.", "defaults fill skipped optional answers")
}

func TestProject_MissingProjectNameRejected(t *testing.T) {
	r, _ := newRouter(t)

	env := handle(t, r, workflow.Request{})
	id := sessionID(t, env)
	handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"existingFiles": []any{}}})
	handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"selectedFiles": []any{"README.md"}}})

	env = handle(t, r, workflow.Request{
		SessionID: id,
		Fields:    map[string]any{"answers": map[string]any{"description": "demo"}},
	})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error.Message, "projectName")
}

func TestProject_WrongCompletedFileRejected(t *testing.T) {
	r, _ := newRouter(t)

	env := handle(t, r, workflow.Request{})
	id := sessionID(t, env)
	handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"existingFiles": []any{}}})
	handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"selectedFiles": []any{"README.md", "Dockerfile"}}})

	env = handle(t, r, workflow.Request{
		SessionID: id,
		Fields:    map[string]any{"completedFileName": "Dockerfile"},
	})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error.Message, "not the file in progress")
	assert.Contains(t, env.Error.Hint, "README.md")
}

// TestProject_CombinedCallEquivalence verifies the round-trip optimization:
// one combined confirm+answer call leaves the session data identical to the
// two sequential calls it replaces.
func TestProject_CombinedCallEquivalence(t *testing.T) {
	run := func(t *testing.T, combined bool) session.DataMap {
		r, store := newRouter(t)

		env := handle(t, r, workflow.Request{})
		id := sessionID(t, env)
		handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"existingFiles": []any{}}})
		handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"selectedFiles": []any{"README.md", "Dockerfile"}}})
		handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{
			"answers": map[string]any{"projectName": "shop", "description": "demo"},
		}})

		if combined {
			env = handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{
				"completedFileName": "README.md",
				"nextFileAnswers":   map[string]any{"baseImage": "alpine:3.20"},
			}})
			require.True(t, env.Success)
		} else {
			env = handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{
				"completedFileName": "README.md",
			}})
			require.True(t, env.Success)
			env = handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{
				"answers": map[string]any{"baseImage": "alpine:3.20"},
			}})
			require.True(t, env.Success)
		}

		sess, err := store.Load(context.Background(), session.Key{ToolKind: Kind, SessionID: id})
		require.NoError(t, err)
		return sess.Data
	}

	sequential := run(t, false)
	combined := run(t, true)
	assert.Equal(t, sequential, combined)
}
