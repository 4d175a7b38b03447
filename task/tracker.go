//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package task provides detached background execution of multi-item work
// batches and the session-scoped progress records observing them.
package task

import (
	"errors"
	"sync"
)

// ErrBatchActive reports a start against a session whose previous batch has
// not completed yet. The duplicate must not launch: two batches feeding one
// progress record would merge their counters and whichever finished first
// would freeze the record against the other.
var ErrBatchActive = errors.New("task: batch already active for session")

// ProgressStatus is the lifecycle of one background batch.
type ProgressStatus string

const (
	// StatusInitiated marks a batch that is registered but not yet running.
	StatusInitiated ProgressStatus = "initiated"
	// StatusRunning marks a batch with items in flight.
	StatusRunning ProgressStatus = "running"
	// StatusComplete is terminal: every item has been attempted and the
	// counters are frozen. Clients must treat anything else as still running.
	StatusComplete ProgressStatus = "complete"
)

// ItemError records one failed work item.
type ItemError struct {
	Item    string `json:"item"`
	Message string `json:"message"`
}

// ProgressRecord is the queryable state of one batch. Total is nil until
// discovery finishes for batches whose item count is not known up front.
type ProgressRecord struct {
	SessionID string         `json:"sessionId"`
	Status    ProgressStatus `json:"status"`
	Total     *int           `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Errors    []ItemError    `json:"errors,omitempty"`
}

func (p *ProgressRecord) clone() ProgressRecord {
	copied := *p
	if p.Total != nil {
		total := *p.Total
		copied.Total = &total
	}
	copied.Errors = make([]ItemError, len(p.Errors))
	copy(copied.Errors, p.Errors)
	return copied
}

// Tracker holds progress records keyed by session id. All mutation goes
// through synchronized methods, so concurrent item completions never lose an
// increment. Updates addressed to unknown sessions are dropped.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*ProgressRecord
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[string]*ProgressRecord)}
}

// Register creates the record for a session in the initiated state. A session
// already tracked is reset only if its previous batch completed; while one is
// still in flight Register returns ErrBatchActive and leaves the record
// untouched.
func (t *Tracker) Register(sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.records[sessionID]; ok && rec.Status != StatusComplete {
		return ErrBatchActive
	}
	t.records[sessionID] = &ProgressRecord{
		SessionID: sessionID,
		Status:    StatusInitiated,
	}
	return nil
}

// SetTotal fixes the item count once discovery knows it.
func (t *Tracker) SetTotal(sessionID string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[sessionID]
	if !ok || rec.Status == StatusComplete {
		return
	}
	rec.Total = &total
}

// Running marks the batch as executing.
func (t *Tracker) Running(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[sessionID]
	if !ok || rec.Status == StatusComplete {
		return
	}
	rec.Status = StatusRunning
}

// ItemSucceeded increments the success counter.
func (t *Tracker) ItemSucceeded(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[sessionID]
	if !ok || rec.Status == StatusComplete {
		return
	}
	rec.Succeeded++
}

// ItemFailed increments the failure counter and records the item error.
// One item's failure never touches any other item's outcome.
func (t *Tracker) ItemFailed(sessionID, item, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[sessionID]
	if !ok || rec.Status == StatusComplete {
		return
	}
	rec.Failed++
	rec.Errors = append(rec.Errors, ItemError{Item: item, Message: message})
}

// Complete marks the batch terminal and freezes every counter.
func (t *Tracker) Complete(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[sessionID]
	if !ok {
		return
	}
	rec.Status = StatusComplete
}

// Get returns a copy of the record. It is pure and safe to poll arbitrarily
// often; polling is the only supported observation mechanism.
func (t *Tracker) Get(sessionID string) (ProgressRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[sessionID]
	if !ok {
		return ProgressRecord{}, false
	}
	return rec.clone(), true
}
