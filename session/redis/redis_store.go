//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a redis-backed session store implementation.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-kubeintel-go/session"
	storage "trpc.group/trpc-go/trpc-kubeintel-go/storage/redis"
)

var _ session.Store = (*Store)(nil)

// keyPrefix namespaces every kubeintel key inside a shared redis instance.
const keyPrefix = "kubeintel:session:"

// StoreOpts is the options for the redis session store.
type StoreOpts struct {
	redisClient  redis.UniversalClient
	url          string
	instanceName string
}

// StoreOption is the option for the redis session store.
type StoreOption func(*StoreOpts)

// WithRedisClient sets the redis client.
func WithRedisClient(client redis.UniversalClient) StoreOption {
	return func(opts *StoreOpts) {
		opts.redisClient = client
	}
}

// WithRedisClientURL sets the url used to build the redis client.
func WithRedisClientURL(url string) StoreOption {
	return func(opts *StoreOpts) {
		opts.url = url
	}
}

// WithRedisInstance sets the registered redis instance name.
func WithRedisInstance(name string) StoreOption {
	return func(opts *StoreOpts) {
		opts.instanceName = name
	}
}

// Store is the redis session store.
// Storage structure: one hash per tool family,
// kubeintel:session:<toolKind> -> hash [sessionID -> Session(json)].
// A save is a single HSET of the full document, so a record is always
// observed either whole-old or whole-new.
type Store struct {
	client redis.UniversalClient
}

// NewStore creates a new redis session store.
func NewStore(options ...StoreOption) (*Store, error) {
	opts := StoreOpts{}
	for _, option := range options {
		option(&opts)
	}

	client := opts.redisClient
	if client == nil {
		clientOpts := []storage.ClientOpt{}
		if opts.instanceName != "" {
			instanceOpts, ok := storage.Instance(opts.instanceName)
			if !ok {
				return nil, fmt.Errorf("redis session store: instance %s not registered", opts.instanceName)
			}
			clientOpts = append(clientOpts, instanceOpts...)
		}
		if opts.url != "" {
			clientOpts = append(clientOpts, storage.WithClientURL(opts.url))
		}
		var err error
		client, err = storage.NewClient(clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("redis session store: build client: %w", err)
		}
	}
	return &Store{client: client}, nil
}

func toolHashKey(toolKind string) string {
	return keyPrefix + toolKind
}

// Create persists a new session, failing if the id is taken.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	key := session.Key{ToolKind: sess.ToolKind, SessionID: sess.ID}
	if err := key.Check(); err != nil {
		return err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis session store: marshal session: %w", err)
	}
	ok, err := s.client.HSetNX(ctx, toolHashKey(sess.ToolKind), sess.ID, data).Result()
	if err != nil {
		return fmt.Errorf("redis session store: create session: %w", err)
	}
	if !ok {
		return session.ErrAlreadyExists
	}
	return nil
}

// Load returns the stored session, or session.ErrNotFound.
func (s *Store) Load(ctx context.Context, key session.Key) (*session.Session, error) {
	if err := key.Check(); err != nil {
		return nil, err
	}
	data, err := s.client.HGet(ctx, toolHashKey(key.ToolKind), key.SessionID).Bytes()
	if err == redis.Nil {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis session store: load session: %w", err)
	}
	sess := &session.Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("redis session store: unmarshal session: %w", err)
	}
	if sess.Data == nil {
		sess.Data = session.DataMap{}
	}
	return sess, nil
}

// Save atomically overwrites the stored record with a single HSET.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	key := session.Key{ToolKind: sess.ToolKind, SessionID: sess.ID}
	if err := key.Check(); err != nil {
		return err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis session store: marshal session: %w", err)
	}
	if err := s.client.HSet(ctx, toolHashKey(sess.ToolKind), sess.ID, data).Err(); err != nil {
		return fmt.Errorf("redis session store: save session: %w", err)
	}
	return nil
}

// Exists reports whether the session is present.
func (s *Store) Exists(ctx context.Context, key session.Key) (bool, error) {
	if err := key.Check(); err != nil {
		return false, err
	}
	ok, err := s.client.HExists(ctx, toolHashKey(key.ToolKind), key.SessionID).Result()
	if err != nil {
		return false, fmt.Errorf("redis session store: exists: %w", err)
	}
	return ok, nil
}

// DeleteToolSessions wipes one tool family hash.
func (s *Store) DeleteToolSessions(ctx context.Context, toolKind string) error {
	if toolKind == "" {
		return session.ErrToolKindRequired
	}
	if err := s.client.Del(ctx, toolHashKey(toolKind)).Err(); err != nil {
		return fmt.Errorf("redis session store: delete tool sessions: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
