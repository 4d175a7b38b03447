//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package cluster is the boundary to the Kubernetes cluster: enumerating
// resource kinds, describing them, and applying day-2 actions.
package cluster

import (
	"context"
)

// ResourceKind is one resource kind served by the cluster, built-in or custom.
type ResourceKind struct {
	// Name is the plural resource name, e.g. "deployments".
	Name string `json:"name"`
	// Kind is the object kind, e.g. "Deployment".
	Kind string `json:"kind"`
	// Group is the API group, empty for the core group.
	Group string `json:"group,omitempty"`
	// APIVersion is the served group/version.
	APIVersion string `json:"apiVersion"`
	// Namespaced reports whether instances live in a namespace.
	Namespaced bool `json:"namespaced"`
}

// QualifiedName is the kind's stable identity: "Kind.group", bare "Kind" for
// the core group.
func (k ResourceKind) QualifiedName() string {
	if k.Group == "" {
		return k.Kind
	}
	return k.Kind + "." + k.Group
}

// Custom reports whether the kind is served by a CustomResourceDefinition,
// judged by its group lying outside the built-in *.k8s.io and core surface.
func (k ResourceKind) Custom() bool {
	if k.Group == "" {
		return false
	}
	return !isBuiltinGroup(k.Group)
}

// Lister enumerates and describes the cluster's resource kinds.
type Lister interface {
	// ListResourceKinds returns every resource kind the cluster serves.
	ListResourceKinds(ctx context.Context) ([]ResourceKind, error)

	// Describe returns the schema/field documentation for one kind, addressed
	// by qualified name.
	Describe(ctx context.Context, kind string) (string, error)
}

// Actioner applies day-2 change actions to the cluster.
type Actioner interface {
	// Apply runs one action (a kubectl argument vector) and returns its
	// output.
	Apply(ctx context.Context, action []string) (string, error)
}

var builtinGroups = []string{
	"apps", "batch", "autoscaling", "policy", "extensions",
}

func isBuiltinGroup(group string) bool {
	for _, builtin := range builtinGroups {
		if group == builtin {
			return true
		}
	}
	// Every *.k8s.io group is part of the built-in API surface.
	return len(group) > 7 && group[len(group)-7:] == ".k8s.io"
}
