//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package session provides durable per-conversation state for workflow tools.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a session does not exist in the store.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyExists is returned when creating a session whose id is taken.
	ErrAlreadyExists = errors.New("session already exists")
	// ErrToolKindRequired is the error for tool kind required.
	ErrToolKindRequired = errors.New("toolKind is required")
	// ErrSessionIDRequired is the error for session id required.
	ErrSessionIDRequired = errors.New("sessionID is required")
)

// Status is the lifecycle status of a session.
type Status string

const (
	// StatusActive marks a session whose workflow has remaining steps.
	StatusActive Status = "active"
	// StatusComplete marks a session whose workflow reached a terminal step.
	// Completed sessions are retained for inspection, never deleted by the engine.
	StatusComplete Status = "complete"
)

// DataMap is the tool-owned session payload. The engine treats it as opaque;
// it mutates only through validated step handler patches.
type DataMap map[string]any

// Session is one in-progress (or completed) multi-step tool conversation.
type Session struct {
	ID          string    `json:"id"`
	ToolKind    string    `json:"toolKind"`
	CurrentStep string    `json:"currentStep"`
	Status      Status    `json:"status"`
	Data        DataMap   `json:"data"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Key identifies a session within a tool family namespace.
type Key struct {
	ToolKind  string // tool family, also the storage namespace
	SessionID string
}

// Check validates the key.
func (k *Key) Check() error {
	if k.ToolKind == "" {
		return ErrToolKindRequired
	}
	if k.SessionID == "" {
		return ErrSessionIDRequired
	}
	return nil
}

// Store is the durable keyed persistence behind the workflow engine.
// Each tool family occupies its own namespace, so identical random suffixes
// across families cannot collide and bulk cleanup can target one family.
type Store interface {
	// Create persists a new session. It fails with ErrAlreadyExists if the
	// id is already taken within the tool family.
	Create(ctx context.Context, sess *Session) error

	// Load returns a copy of the session, or ErrNotFound.
	Load(ctx context.Context, key Key) (*Session, error)

	// Save atomically overwrites the stored record. A crash mid-write must
	// never leave a partial record observable by a subsequent Load.
	Save(ctx context.Context, sess *Session) error

	// Exists reports whether the session is present.
	Exists(ctx context.Context, key Key) (bool, error)

	// DeleteToolSessions wipes every session of one tool family, leaving
	// other families untouched.
	DeleteToolSessions(ctx context.Context, toolKind string) error

	// Close closes the store.
	Close() error
}

// idPattern is the wire shape of every session id: prefix, millisecond
// timestamp, random token.
var idPattern = regexp.MustCompile(`^[a-z]+-\d+-[a-f0-9-]+$`)

// NewID produces a collision-resistant, time-sortable session id for the
// given tool prefix: <prefix>-<unix ms>-<uuid fragment>.
func NewID(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// ValidID reports whether id is a well-formed session id for the prefix.
func ValidID(prefix, id string) bool {
	return idPattern.MatchString(id) && strings.HasPrefix(id, prefix+"-")
}

// Clone returns a deep copy of the session so callers can never mutate
// stored state through aliased maps.
func (s *Session) Clone() *Session {
	return &Session{
		ID:          s.ID,
		ToolKind:    s.ToolKind,
		CurrentStep: s.CurrentStep,
		Status:      s.Status,
		Data:        CloneData(s.Data),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// Touch advances UpdatedAt, keeping it monotonically non-decreasing.
func (s *Session) Touch(now time.Time) {
	if now.After(s.UpdatedAt) {
		s.UpdatedAt = now
	}
}

// CloneData deep-copies a session data map.
func CloneData(data DataMap) DataMap {
	copied := make(DataMap, len(data))
	for k, v := range data {
		copied[k] = cloneValue(v)
	}
	return copied
}

// cloneValue deep-copies the JSON-shaped values session data is built from.
// Scalars are immutable and returned as is.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		copied := make(map[string]any, len(val))
		for k, item := range val {
			copied[k] = cloneValue(item)
		}
		return copied
	case DataMap:
		copied := make(map[string]any, len(val))
		for k, item := range val {
			copied[k] = cloneValue(item)
		}
		return copied
	case []any:
		copied := make([]any, len(val))
		for i, item := range val {
			copied[i] = cloneValue(item)
		}
		return copied
	case []string:
		copied := make([]string, len(val))
		copy(copied, val)
		return copied
	default:
		return val
	}
}
