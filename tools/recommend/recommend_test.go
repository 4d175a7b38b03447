//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

package recommend

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-kubeintel-go/capability"
	"trpc.group/trpc-go/trpc-kubeintel-go/model"
	"trpc.group/trpc-go/trpc-kubeintel-go/model/modeltest"
	"trpc.group/trpc-go/trpc-kubeintel-go/session/inmemory"
	"trpc.group/trpc-go/trpc-kubeintel-go/workflow"
)

func newFixture(t *testing.T, stub *modeltest.Stub) (*workflow.Router, *capability.InMemoryStore) {
	t.Helper()
	store := capability.NewInMemoryStore()
	r := workflow.NewRouter(inmemory.NewStore())
	require.NoError(t, r.Register(New(stub, store).Spec()))
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

func TestRecommend_FullConversation(t *testing.T) {
	stub := &modeltest.Stub{Queue: []model.StructuredResult{
		{"questions": []any{map[string]any{"id": "database", "question": "Which database?", "required": false}}},
		{"solutions": []any{
			map[string]any{"name": "sqlclaim", "score": 0.9, "reason": "the cluster serves SQLClaim"},
			map[string]any{"name": "helm-postgres", "score": 0.4, "reason": "generic fallback"},
		}},
		{"manifests": []any{map[string]any{"kind": "SQLClaim", "outline": "apiVersion: devopstoolkit.live/v1beta1"}}},
	}}
	r, store := newFixture(t, stub)
	require.NoError(t, store.Upsert(context.Background(), &capability.Document{
		Kind: "SQLClaim", Group: "devopstoolkit.live", Description: "managed databases", Custom: true,
	}))

	env := handle(t, r, workflow.Request{Fields: map[string]any{"intent": "a web api with postgres"}})
	id := sessionID(t, env)
	assert.Equal(t, "clarify", env.Workflow["nextStep"])
	require.Len(t, env.Workflow["questions"].([]any), 1)

	env = handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{
		"answers": map[string]any{"database": "postgres"},
	}})
	require.True(t, env.Success)
	assert.Equal(t, "choose", env.Workflow["nextStep"])
	solutions := env.Workflow["solutions"].([]any)
	require.Len(t, solutions, 2)

	env = handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"solution": "sqlclaim"}})
	require.True(t, env.Success)
	assert.Equal(t, "complete", env.Workflow["status"])
	manifests := env.Workflow["manifests"].([]any)
	require.Len(t, manifests, 1)

	// The ranking call saw the scanned capabilities.
	require.Len(t, stub.Prompts, 3)
	assert.Contains(t, stub.Prompts[1], "Rank deployment solutions")
}

func TestRecommend_EmptyAnswersAllowed(t *testing.T) {
	stub := &modeltest.Stub{Result: model.StructuredResult{
		"questions": []any{}, "solutions": []any{}, "manifests": []any{},
	}}
	r, _ := newFixture(t, stub)

	env := handle(t, r, workflow.Request{Fields: map[string]any{"intent": "a cron job"}})
	id := sessionID(t, env)

	// {} explicitly skips the optional questions; the field is still present.
	env = handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"answers": map[string]any{}}})
	assert.True(t, env.Success)

	// Omitting answers entirely is a missing required field.
	env2 := handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{}})
	assert.False(t, env2.Success)
	assert.Contains(t, env2.Error.Message, "answers")
}

func TestRecommend_EmptyIntentRejected(t *testing.T) {
	r, _ := newFixture(t, &modeltest.Stub{})

	env := handle(t, r, workflow.Request{Fields: map[string]any{"intent": ""}})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error.Message, "intent is empty")
}

func TestRecommend_ProviderFailureFailsOnlyStep(t *testing.T) {
	stub := &modeltest.Stub{Queue: []model.StructuredResult{
		{"questions": []any{}},
	}}
	r, _ := newFixture(t, stub)

	env := handle(t, r, workflow.Request{Fields: map[string]any{"intent": "a web api"}})
	id := sessionID(t, env)

	stub.Err = fmt.Errorf("rate limited")
	env = handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"answers": map[string]any{}}})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error.Message, "failed")

	// The session survives and the same call succeeds once the provider
	// recovers.
	stub.Err = nil
	stub.Result = model.StructuredResult{"solutions": []any{}}
	env = handle(t, r, workflow.Request{SessionID: id, Fields: map[string]any{"answers": map[string]any{}}})
	assert.True(t, env.Success)
}

func TestRecommend_RestartOnMissingSession(t *testing.T) {
	stub := &modeltest.Stub{Result: model.StructuredResult{"questions": []any{}}}
	r, _ := newFixture(t, stub)

	// An explicit later step without a sessionId restarts from intent
	// instead of failing; the tool is conversational and forgiving.
	env := handle(t, r, workflow.Request{Step: "clarify", Fields: map[string]any{"intent": "a web api"}})
	require.True(t, env.Success)
	assert.Equal(t, "clarify", env.Workflow["nextStep"])
}
