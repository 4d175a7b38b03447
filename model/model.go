//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package model is the boundary to the reasoning provider that generates
// analyses, question sets and per-resource descriptions.
package model

import (
	"context"
)

// StructuredResult is a JSON-object result from the reasoning provider.
type StructuredResult map[string]any

// Provider generates a structured result for a prompt over some context.
// A provider failure fails only the current step; it never corrupts
// already-persisted session state.
type Provider interface {
	Infer(ctx context.Context, prompt string, promptContext map[string]any) (StructuredResult, error)
}

// StringValue extracts a string field from a result, "" if absent.
func (r StructuredResult) StringValue(key string) string {
	v, _ := r[key].(string)
	return v
}

// ListValue extracts a list field from a result, nil if absent.
func (r StructuredResult) ListValue(key string) []any {
	v, _ := r[key].([]any)
	return v
}
