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

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"

	"trpc.group/trpc-go/trpc-kubeintel-go/log"
	"trpc.group/trpc-go/trpc-kubeintel-go/telemetry"
)

const defaultConcurrency = 8

// WorkItem is one unit of a background batch.
type WorkItem struct {
	// Key is the item's stable identity. Result documents derive their
	// storage key from it, so re-running a batch overwrites rather than
	// duplicates.
	Key string
	// Payload carries tool-specific context for the item.
	Payload any
}

// PerItemFunc processes one work item. Returning an error records the item
// as failed without aborting the batch.
type PerItemFunc func(ctx context.Context, item WorkItem) error

// DiscoverFunc enumerates the work items of a batch whose size is not known
// up front.
type DiscoverFunc func(ctx context.Context) ([]WorkItem, error)

// StartResult is returned to the initiating call immediately; the batch
// itself runs to completion out of band.
type StartResult struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
	ItemCount int    `json:"itemCount"`
}

// runnerOpts is the options for the runner.
type runnerOpts struct {
	concurrency int
}

// RunnerOpt is the option for the runner.
type RunnerOpt func(*runnerOpts)

// WithConcurrency bounds the worker pool size. Per-item work talks to the
// reasoning provider and the cluster API, both of which rate-limit, so the
// pool is never unbounded.
func WithConcurrency(n int) RunnerOpt {
	return func(opts *runnerOpts) {
		opts.concurrency = n
	}
}

// Runner spawns detached, bounded-concurrency execution of work batches and
// feeds their outcomes to a Tracker. A started batch always runs to
// completion; the core contract has no cancellation.
type Runner struct {
	pool    *ants.Pool
	tracker *Tracker
	// wg tracks in-flight batches so tests and shutdown can drain them.
	wg sync.WaitGroup
}

// NewRunner creates a runner over a shared worker pool.
func NewRunner(tracker *Tracker, options ...RunnerOpt) (*Runner, error) {
	opts := runnerOpts{concurrency: defaultConcurrency}
	for _, option := range options {
		option(&opts)
	}
	pool, err := ants.NewPool(opts.concurrency)
	if err != nil {
		return nil, fmt.Errorf("task: create worker pool: %w", err)
	}
	return &Runner{pool: pool, tracker: tracker}, nil
}

// Start launches a batch over a known item list and returns immediately.
// A session whose previous batch is still running gets ErrBatchActive and no
// second batch.
func (r *Runner) Start(ctx context.Context, sessionID, mode string, items []WorkItem, perItem PerItemFunc) (StartResult, error) {
	if err := r.tracker.Register(sessionID); err != nil {
		return StartResult{}, err
	}
	r.tracker.SetTotal(sessionID, len(items))
	r.tracker.Running(sessionID)

	// The batch must outlive the initiating call.
	detached := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go r.runBatch(detached, sessionID, mode, items, perItem)

	return StartResult{
		Status:    "started",
		SessionID: sessionID,
		Mode:      mode,
		ItemCount: len(items),
	}, nil
}

// StartDiscovered launches a batch whose items are enumerated out of band.
// The tracker reports a nil total until discovery finishes. Duplicate starts
// against a running session get ErrBatchActive.
func (r *Runner) StartDiscovered(ctx context.Context, sessionID, mode string, discover DiscoverFunc, perItem PerItemFunc) (StartResult, error) {
	if err := r.tracker.Register(sessionID); err != nil {
		return StartResult{}, err
	}
	r.tracker.Running(sessionID)

	detached := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		items, err := discover(detached)
		if err != nil {
			log.Errorf("task: session %s discovery failed: %v", sessionID, err)
			r.tracker.ItemFailed(sessionID, "discovery", err.Error())
			r.tracker.Complete(sessionID)
			r.wg.Done()
			return
		}
		r.tracker.SetTotal(sessionID, len(items))
		r.runBatch(detached, sessionID, mode, items, perItem)
	}()

	return StartResult{
		Status:    "started",
		SessionID: sessionID,
		Mode:      mode,
	}, nil
}

// Wait blocks until every started batch has finished. Intended for shutdown
// and tests; ordinary callers observe batches through the tracker.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Release drains in-flight batches and releases the worker pool.
func (r *Runner) Release() {
	r.wg.Wait()
	r.pool.Release()
}

// runBatch fans the items out on the bounded pool and finalizes the progress
// record once every item has been attempted, however many failed.
func (r *Runner) runBatch(ctx context.Context, sessionID, mode string, items []WorkItem, perItem PerItemFunc) {
	defer r.wg.Done()

	ctx, span := telemetry.Tracer.Start(ctx, "task.batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("kubeintel.session_id", sessionID),
		attribute.String("kubeintel.mode", mode),
		attribute.Int("kubeintel.item_count", len(items)),
	)

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		item := item
		err := r.pool.Submit(func() {
			defer wg.Done()
			r.runItem(ctx, sessionID, item, perItem)
		})
		if err != nil {
			wg.Done()
			r.tracker.ItemFailed(sessionID, item.Key, fmt.Sprintf("submit: %v", err))
		}
	}
	wg.Wait()

	r.tracker.Complete(sessionID)
	if rec, ok := r.tracker.Get(sessionID); ok {
		log.Infof("task: session %s batch complete: %d succeeded, %d failed", sessionID, rec.Succeeded, rec.Failed)
	}
}

func (r *Runner) runItem(ctx context.Context, sessionID string, item WorkItem, perItem PerItemFunc) {
	defer func() {
		// A panicking item counts as failed; it must not take the batch down.
		if rec := recover(); rec != nil {
			r.tracker.ItemFailed(sessionID, item.Key, fmt.Sprintf("panic: %v", rec))
		}
	}()
	if err := perItem(ctx, item); err != nil {
		log.Debugf("task: session %s item %s failed: %v", sessionID, item.Key, err)
		r.tracker.ItemFailed(sessionID, item.Key, err.Error())
		return
	}
	r.tracker.ItemSucceeded(sessionID)
}
