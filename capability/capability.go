//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package capability stores the result documents produced by cluster scans
// and other keyed tool artifacts.
package capability

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a document does not exist in the store.
var ErrNotFound = errors.New("capability document not found")

// Document is one scanned capability or tool artifact. Its key is derived
// from the resource's stable identity, so re-scanning the same resource
// overwrites the stored record instead of duplicating it.
type Document struct {
	// Kind is the resource kind, e.g. "Deployment".
	Kind string `json:"kind"`
	// Group is the API group, empty for core resources.
	Group string `json:"group,omitempty"`
	// Description is the agent-facing summary of what the resource provides.
	Description string `json:"description"`
	// Capabilities are searchable capability tags.
	Capabilities []string `json:"capabilities,omitempty"`
	// Custom marks custom resource definitions.
	Custom bool `json:"custom,omitempty"`
	// ScannedAt is the time of the last (over)write.
	ScannedAt time.Time `json:"scannedAt"`
}

// Key is the deterministic storage key: "<Kind>.<group>" for grouped
// resources, bare "<Kind>" for core ones.
func (d *Document) Key() string {
	if d.Group == "" {
		return d.Kind
	}
	return d.Kind + "." + d.Group
}

// Store is keyed document persistence with upsert semantics.
type Store interface {
	// Upsert writes the document at its deterministic key, overwriting any
	// previous record for the same key.
	Upsert(ctx context.Context, doc *Document) error

	// Get returns the document at key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Document, error)

	// List returns every stored document.
	List(ctx context.Context) ([]*Document, error)

	// Delete removes the document at key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}
