//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

package task

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, tracker *Tracker) *Runner {
	t.Helper()
	runner, err := NewRunner(tracker, WithConcurrency(4))
	require.NoError(t, err)
	t.Cleanup(runner.Release)
	return runner
}

func items(n int) []WorkItem {
	out := make([]WorkItem, n)
	for i := range out {
		out[i] = WorkItem{Key: fmt.Sprintf("item-%d", i)}
	}
	return out
}

func TestRunner_StartReturnsImmediately(t *testing.T) {
	tracker := NewTracker()
	runner := newTestRunner(t, tracker)

	release := make(chan struct{})
	result, err := runner.Start(context.Background(), "cap-1-abc", "targeted", items(2),
		func(ctx context.Context, item WorkItem) error {
			<-release
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, "started", result.Status)
	assert.Equal(t, "cap-1-abc", result.SessionID)
	assert.Equal(t, "targeted", result.Mode)
	assert.Equal(t, 2, result.ItemCount)

	rec, ok := tracker.Get("cap-1-abc")
	require.True(t, ok)
	assert.NotEqual(t, StatusComplete, rec.Status, "batch must still be in flight")

	close(release)
	runner.Wait()

	rec, _ = tracker.Get("cap-1-abc")
	assert.Equal(t, StatusComplete, rec.Status)
	assert.Equal(t, 2, rec.Succeeded)
}

func TestRunner_EveryItemAttempted(t *testing.T) {
	tracker := NewTracker()
	runner := newTestRunner(t, tracker)

	const n = 20
	var mu sync.Mutex
	attempted := make(map[string]bool)

	_, err := runner.Start(context.Background(), "cap-1-abc", "targeted", items(n),
		func(ctx context.Context, item WorkItem) error {
			mu.Lock()
			attempted[item.Key] = true
			mu.Unlock()
			return nil
		})
	require.NoError(t, err)
	runner.Wait()

	assert.Len(t, attempted, n)
	rec, _ := tracker.Get("cap-1-abc")
	require.NotNil(t, rec.Total)
	assert.Equal(t, n, *rec.Total)
	assert.Equal(t, n, rec.Succeeded+rec.Failed)
}

func TestRunner_ItemFailureIsolated(t *testing.T) {
	tracker := NewTracker()
	runner := newTestRunner(t, tracker)

	_, err := runner.Start(context.Background(), "cap-1-abc", "targeted", items(5),
		func(ctx context.Context, item WorkItem) error {
			if item.Key == "item-2" {
				return fmt.Errorf("describe: boom")
			}
			return nil
		})
	require.NoError(t, err)
	runner.Wait()

	rec, ok := tracker.Get("cap-1-abc")
	require.True(t, ok)
	assert.Equal(t, StatusComplete, rec.Status)
	assert.Equal(t, 4, rec.Succeeded)
	assert.Equal(t, 1, rec.Failed)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, "item-2", rec.Errors[0].Item)
	assert.Contains(t, rec.Errors[0].Message, "boom")
}

func TestRunner_PanickingItemCountsAsFailed(t *testing.T) {
	tracker := NewTracker()
	runner := newTestRunner(t, tracker)

	_, err := runner.Start(context.Background(), "cap-1-abc", "targeted", items(3),
		func(ctx context.Context, item WorkItem) error {
			if item.Key == "item-1" {
				panic("unexpected schema")
			}
			return nil
		})
	require.NoError(t, err)
	runner.Wait()

	rec, _ := tracker.Get("cap-1-abc")
	assert.Equal(t, StatusComplete, rec.Status)
	assert.Equal(t, 2, rec.Succeeded)
	assert.Equal(t, 1, rec.Failed)
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0].Message, "panic")
}

func TestRunner_BatchSurvivesCallerCancellation(t *testing.T) {
	tracker := NewTracker()
	runner := newTestRunner(t, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := runner.Start(ctx, "cap-1-abc", "targeted", items(4),
		func(ctx context.Context, item WorkItem) error {
			// The detached context must not be canceled with the caller's.
			return ctx.Err()
		})
	require.NoError(t, err)
	cancel()
	runner.Wait()

	rec, _ := tracker.Get("cap-1-abc")
	assert.Equal(t, 4, rec.Succeeded, "items must run on a context detached from the initiating call")
}

func TestRunner_StartDiscovered(t *testing.T) {
	tracker := NewTracker()
	runner := newTestRunner(t, tracker)

	result, err := runner.StartDiscovered(context.Background(), "cap-1-abc", "full",
		func(ctx context.Context) ([]WorkItem, error) {
			return items(6), nil
		},
		func(ctx context.Context, item WorkItem) error {
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, "started", result.Status)
	assert.Zero(t, result.ItemCount, "item count is unknown before discovery")

	runner.Wait()

	rec, ok := tracker.Get("cap-1-abc")
	require.True(t, ok)
	assert.Equal(t, StatusComplete, rec.Status)
	require.NotNil(t, rec.Total)
	assert.Equal(t, 6, *rec.Total)
	assert.Equal(t, 6, rec.Succeeded)
}

func TestRunner_DuplicateStartRefused(t *testing.T) {
	tracker := NewTracker()
	runner := newTestRunner(t, tracker)

	started := make(chan struct{}, 3)
	release := make(chan struct{})
	_, err := runner.Start(context.Background(), "cap-1-abc", "targeted", items(3),
		func(ctx context.Context, item WorkItem) error {
			started <- struct{}{}
			<-release
			return nil
		})
	require.NoError(t, err)
	// Two items deep into the first batch.
	<-started
	<-started

	_, err = runner.Start(context.Background(), "cap-1-abc", "targeted", items(1),
		func(ctx context.Context, item WorkItem) error {
			t.Error("duplicate batch must not run")
			return nil
		})
	require.ErrorIs(t, err, ErrBatchActive)

	rec, ok := tracker.Get("cap-1-abc")
	require.True(t, ok)
	require.NotNil(t, rec.Total)
	assert.Equal(t, 3, *rec.Total, "duplicate start must not overwrite the in-flight total")
	assert.LessOrEqual(t, rec.Succeeded+rec.Failed, *rec.Total)

	_, err = runner.StartDiscovered(context.Background(), "cap-1-abc", "full",
		func(ctx context.Context) ([]WorkItem, error) { return items(1), nil },
		func(ctx context.Context, item WorkItem) error {
			t.Error("duplicate batch must not run")
			return nil
		})
	require.ErrorIs(t, err, ErrBatchActive)

	close(release)
	runner.Wait()

	rec, _ = tracker.Get("cap-1-abc")
	assert.Equal(t, StatusComplete, rec.Status)
	assert.Equal(t, 3, rec.Succeeded)
	assert.Equal(t, 0, rec.Failed)

	// A completed session may start over.
	_, err = runner.Start(context.Background(), "cap-1-abc", "targeted", items(2),
		func(ctx context.Context, item WorkItem) error { return nil })
	require.NoError(t, err)
	runner.Wait()

	rec, _ = tracker.Get("cap-1-abc")
	require.NotNil(t, rec.Total)
	assert.Equal(t, 2, *rec.Total)
	assert.Equal(t, 2, rec.Succeeded)
}

func TestRunner_DiscoveryFailureCompletesBatch(t *testing.T) {
	tracker := NewTracker()
	runner := newTestRunner(t, tracker)

	_, err := runner.StartDiscovered(context.Background(), "cap-1-abc", "full",
		func(ctx context.Context) ([]WorkItem, error) {
			return nil, fmt.Errorf("api server unreachable")
		},
		func(ctx context.Context, item WorkItem) error {
			t.Error("per-item func must not run when discovery fails")
			return nil
		})
	require.NoError(t, err)
	runner.Wait()

	rec, ok := tracker.Get("cap-1-abc")
	require.True(t, ok)
	assert.Equal(t, StatusComplete, rec.Status)
	assert.Equal(t, 1, rec.Failed)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, "discovery", rec.Errors[0].Item)
}
