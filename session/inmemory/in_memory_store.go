//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory session store implementation.
package inmemory

import (
	"context"
	"sync"

	"trpc.group/trpc-go/trpc-kubeintel-go/session"
)

var _ session.Store = (*Store)(nil)

// toolSessions holds the sessions of one tool family.
type toolSessions struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func newToolSessions() *toolSessions {
	return &toolSessions{sessions: make(map[string]*session.Session)}
}

// storeOpts is the options for the in-memory store.
type storeOpts struct {
	// sessionLimit caps retained sessions per tool family; zero means unlimited.
	sessionLimit int
}

// StoreOpt is the option for the in-memory session store.
type StoreOpt func(*storeOpts)

// WithSessionLimit caps the number of retained sessions per tool family.
// When the cap is exceeded the oldest completed session is evicted first.
func WithSessionLimit(limit int) StoreOpt {
	return func(opts *storeOpts) {
		opts.sessionLimit = limit
	}
}

// Store provides an in-memory implementation of session.Store.
// Tool families are isolated maps, so concurrent conversations of different
// tools never contend on one lock.
type Store struct {
	mu    sync.RWMutex
	tools map[string]*toolSessions
	opts  storeOpts
}

// NewStore creates a new in-memory session store.
func NewStore(options ...StoreOpt) *Store {
	opts := storeOpts{}
	for _, option := range options {
		option(&opts)
	}
	return &Store{
		tools: make(map[string]*toolSessions),
		opts:  opts,
	}
}

func (s *Store) getToolSessions(toolKind string) (*toolSessions, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.tools[toolKind]
	return ts, ok
}

func (s *Store) getOrCreateToolSessions(toolKind string) *toolSessions {
	s.mu.RLock()
	ts, ok := s.tools[toolKind]
	if ok {
		s.mu.RUnlock()
		return ts
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok = s.tools[toolKind]
	if ok {
		return ts
	}
	ts = newToolSessions()
	s.tools[toolKind] = ts
	return ts
}

// Create persists a new session.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	key := session.Key{ToolKind: sess.ToolKind, SessionID: sess.ID}
	if err := key.Check(); err != nil {
		return err
	}

	ts := s.getOrCreateToolSessions(sess.ToolKind)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, ok := ts.sessions[sess.ID]; ok {
		return session.ErrAlreadyExists
	}
	s.evictLocked(ts)
	ts.sessions[sess.ID] = sess.Clone()
	return nil
}

// Load returns a deep copy of the stored session.
func (s *Store) Load(ctx context.Context, key session.Key) (*session.Session, error) {
	if err := key.Check(); err != nil {
		return nil, err
	}
	ts, ok := s.getToolSessions(key.ToolKind)
	if !ok {
		return nil, session.ErrNotFound
	}

	ts.mu.RLock()
	defer ts.mu.RUnlock()
	sess, ok := ts.sessions[key.SessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	return sess.Clone(), nil
}

// Save atomically overwrites the stored record. The clone is built before
// the map write, so readers always observe either the old or the new record.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	key := session.Key{ToolKind: sess.ToolKind, SessionID: sess.ID}
	if err := key.Check(); err != nil {
		return err
	}

	copied := sess.Clone()
	ts := s.getOrCreateToolSessions(sess.ToolKind)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.sessions[sess.ID] = copied
	return nil
}

// Exists reports whether the session is present.
func (s *Store) Exists(ctx context.Context, key session.Key) (bool, error) {
	if err := key.Check(); err != nil {
		return false, err
	}
	ts, ok := s.getToolSessions(key.ToolKind)
	if !ok {
		return false, nil
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	_, ok = ts.sessions[key.SessionID]
	return ok, nil
}

// DeleteToolSessions wipes one tool family.
func (s *Store) DeleteToolSessions(ctx context.Context, toolKind string) error {
	if toolKind == "" {
		return session.ErrToolKindRequired
	}
	ts, ok := s.getToolSessions(toolKind)
	if !ok {
		return nil
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.sessions = make(map[string]*session.Session)
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	return nil
}

// evictLocked drops the oldest completed session when the per-family cap is
// exceeded. Active sessions are never evicted.
func (s *Store) evictLocked(ts *toolSessions) {
	if s.opts.sessionLimit <= 0 || len(ts.sessions) < s.opts.sessionLimit {
		return
	}
	var oldestID string
	for id, sess := range ts.sessions {
		if sess.Status != session.StatusComplete {
			continue
		}
		if oldestID == "" || sess.UpdatedAt.Before(ts.sessions[oldestID].UpdatedAt) {
			oldestID = id
		}
	}
	if oldestID != "" {
		delete(ts.sessions, oldestID)
	}
}
