//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

package capability

import (
	"context"
	"sort"
	"sync"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a map-backed document store.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewInMemoryStore creates an empty in-memory document store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string]*Document)}
}

// Upsert writes the document at its deterministic key.
func (s *InMemoryStore) Upsert(ctx context.Context, doc *Document) error {
	copied := *doc
	copied.Capabilities = append([]string(nil), doc.Capabilities...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.Key()] = &copied
	return nil
}

// Get returns the document at key.
func (s *InMemoryStore) Get(ctx context.Context, key string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *doc
	copied.Capabilities = append([]string(nil), doc.Capabilities...)
	return &copied, nil
}

// List returns every stored document ordered by key.
func (s *InMemoryStore) List(ctx context.Context) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.docs))
	for key := range s.docs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	docs := make([]*Document, 0, len(keys))
	for _, key := range keys {
		copied := *s.docs[key]
		copied.Capabilities = append([]string(nil), s.docs[key].Capabilities...)
		docs = append(docs, &copied)
	}
	return docs, nil
}

// Delete removes the document at key.
func (s *InMemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
	return nil
}
