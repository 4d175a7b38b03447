//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package modeltest provides stub reasoning providers for tests.
package modeltest

import (
	"context"
	"sync"

	"trpc.group/trpc-go/trpc-kubeintel-go/model"
)

var _ model.Provider = (*Stub)(nil)

// Stub returns canned results in order, then falls back to Result.
type Stub struct {
	mu sync.Mutex

	// Queue is consumed one result per call.
	Queue []model.StructuredResult
	// Result is returned once the queue is drained.
	Result model.StructuredResult
	// Err, when set, fails every call.
	Err error
	// Prompts records every prompt received.
	Prompts []string
}

// Infer implements model.Provider.
func (s *Stub) Infer(ctx context.Context, prompt string, promptContext map[string]any) (model.StructuredResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, prompt)
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Queue) > 0 {
		next := s.Queue[0]
		s.Queue = s.Queue[1:]
		return next, nil
	}
	if s.Result != nil {
		return s.Result, nil
	}
	return model.StructuredResult{}, nil
}
