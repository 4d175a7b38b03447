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
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps documents in one redis hash per namespace, each field a
// full JSON document. HSET on a field is a single atomic overwrite, which is
// exactly the upsert-at-deterministic-key contract.
type RedisStore struct {
	client  redis.UniversalClient
	hashKey string
}

// NewRedisStore creates a redis document store. The namespace separates
// capability documents from other document families sharing the instance.
func NewRedisStore(client redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "capabilities"
	}
	return &RedisStore{
		client:  client,
		hashKey: "kubeintel:docs:" + namespace,
	}
}

// Upsert writes the document at its deterministic key.
func (s *RedisStore) Upsert(ctx context.Context, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("capability redis store: marshal document: %w", err)
	}
	if err := s.client.HSet(ctx, s.hashKey, doc.Key(), data).Err(); err != nil {
		return fmt.Errorf("capability redis store: upsert %s: %w", doc.Key(), err)
	}
	return nil
}

// Get returns the document at key.
func (s *RedisStore) Get(ctx context.Context, key string) (*Document, error) {
	data, err := s.client.HGet(ctx, s.hashKey, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("capability redis store: get %s: %w", key, err)
	}
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("capability redis store: unmarshal %s: %w", key, err)
	}
	return doc, nil
}

// List returns every stored document ordered by key.
func (s *RedisStore) List(ctx context.Context) ([]*Document, error) {
	raw, err := s.client.HGetAll(ctx, s.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("capability redis store: list: %w", err)
	}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	docs := make([]*Document, 0, len(keys))
	for _, key := range keys {
		doc := &Document{}
		if err := json.Unmarshal([]byte(raw[key]), doc); err != nil {
			return nil, fmt.Errorf("capability redis store: unmarshal %s: %w", key, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Delete removes the document at key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.HDel(ctx, s.hashKey, key).Err(); err != nil {
		return fmt.Errorf("capability redis store: delete %s: %w", key, err)
	}
	return nil
}
