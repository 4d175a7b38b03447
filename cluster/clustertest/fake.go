//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package clustertest provides fake cluster clients for tests.
package clustertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-kubeintel-go/cluster"
)

var (
	_ cluster.Lister   = (*Fake)(nil)
	_ cluster.Actioner = (*Fake)(nil)
)

// Fake is a canned-data cluster client.
type Fake struct {
	mu sync.Mutex

	// Kinds is returned by ListResourceKinds.
	Kinds []cluster.ResourceKind
	// ListErr, when set, fails ListResourceKinds.
	ListErr error
	// DescribeErrs fails Describe for specific qualified names.
	DescribeErrs map[string]error
	// DescribeGate, when set, blocks Describe until the channel is closed.
	// Lets tests hold a scan batch in flight.
	DescribeGate chan struct{}
	// ApplyErrs fails Apply for actions whose joined form matches a key.
	ApplyErrs map[string]error
	// Applied records every action vector passed to Apply.
	Applied [][]string
}

// DefaultKinds is a small believable kind set for tests.
func DefaultKinds() []cluster.ResourceKind {
	return []cluster.ResourceKind{
		{Name: "deployments", Kind: "Deployment", Group: "apps", APIVersion: "apps/v1", Namespaced: true},
		{Name: "services", Kind: "Service", APIVersion: "v1", Namespaced: true},
		{Name: "configmaps", Kind: "ConfigMap", APIVersion: "v1", Namespaced: true},
		{Name: "sqlclaims", Kind: "SQLClaim", Group: "devopstoolkit.live", APIVersion: "devopstoolkit.live/v1beta1", Namespaced: true},
	}
}

// ListResourceKinds returns the canned kinds.
func (f *Fake) ListResourceKinds(ctx context.Context) ([]cluster.ResourceKind, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]cluster.ResourceKind(nil), f.Kinds...), nil
}

// Describe returns a canned description, or the configured error.
func (f *Fake) Describe(ctx context.Context, kind string) (string, error) {
	if f.DescribeGate != nil {
		<-f.DescribeGate
	}
	if err := f.DescribeErrs[kind]; err != nil {
		return "", err
	}
	return fmt.Sprintf("KIND: %s\nDESCRIPTION: fake schema for %s", kind, kind), nil
}

// Apply records the action and returns a canned output, or the configured
// error for that action.
func (f *Fake) Apply(ctx context.Context, action []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Applied = append(f.Applied, append([]string(nil), action...))
	if err := f.ApplyErrs[strings.Join(action, " ")]; err != nil {
		return "", err
	}
	return "applied", nil
}
