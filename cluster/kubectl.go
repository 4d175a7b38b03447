//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

package cluster

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-kubeintel-go/log"
)

var (
	_ Lister   = (*KubectlClient)(nil)
	_ Actioner = (*KubectlClient)(nil)
)

const defaultCommandTimeout = 30 * time.Second

// KubectlClient talks to the cluster through the kubectl binary.
type KubectlClient struct {
	binary  string
	timeout time.Duration
}

// KubectlOpt is the option for the kubectl client.
type KubectlOpt func(*KubectlClient)

// WithBinary overrides the kubectl binary path.
func WithBinary(path string) KubectlOpt {
	return func(c *KubectlClient) {
		c.binary = path
	}
}

// WithCommandTimeout bounds each kubectl invocation.
func WithCommandTimeout(d time.Duration) KubectlOpt {
	return func(c *KubectlClient) {
		c.timeout = d
	}
}

// NewKubectlClient creates a kubectl-backed cluster client.
func NewKubectlClient(options ...KubectlOpt) *KubectlClient {
	c := &KubectlClient{
		binary:  "kubectl",
		timeout: defaultCommandTimeout,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// ListResourceKinds enumerates every served resource kind, built-in and
// custom, via `kubectl api-resources`.
func (c *KubectlClient) ListResourceKinds(ctx context.Context) ([]ResourceKind, error) {
	out, err := c.run(ctx, "api-resources", "--no-headers")
	if err != nil {
		return nil, fmt.Errorf("cluster: list resource kinds: %w", err)
	}
	return parseAPIResources(out), nil
}

// Describe returns `kubectl explain` output for a kind.
func (c *KubectlClient) Describe(ctx context.Context, kind string) (string, error) {
	out, err := c.run(ctx, "explain", kind)
	if err != nil {
		return "", fmt.Errorf("cluster: describe %s: %w", kind, err)
	}
	return out, nil
}

// Apply runs one kubectl action vector.
func (c *KubectlClient) Apply(ctx context.Context, action []string) (string, error) {
	if len(action) == 0 {
		return "", fmt.Errorf("cluster: empty action")
	}
	out, err := c.run(ctx, action...)
	if err != nil {
		return "", fmt.Errorf("cluster: apply %q: %w", strings.Join(action, " "), err)
	}
	return out, nil
}

func (c *KubectlClient) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	log.Debugf("cluster: exec %s %s", c.binary, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, c.binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// parseAPIResources parses `kubectl api-resources --no-headers` output.
// Columns: NAME [SHORTNAMES] APIVERSION NAMESPACED KIND.
func parseAPIResources(out string) []ResourceKind {
	var kinds []ResourceKind
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		// The SHORTNAMES column is empty for most kinds.
		if len(fields) < 4 {
			continue
		}
		apiVersion := fields[len(fields)-3]
		namespaced := fields[len(fields)-2] == "true"
		kind := fields[len(fields)-1]
		group := ""
		if idx := strings.Index(apiVersion, "/"); idx >= 0 {
			group = apiVersion[:idx]
		}
		kinds = append(kinds, ResourceKind{
			Name:       fields[0],
			Kind:       kind,
			Group:      group,
			APIVersion: apiVersion,
			Namespaced: namespaced,
		})
	}
	return kinds
}
