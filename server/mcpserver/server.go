//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package mcpserver exposes registered workflow tools over the Model Context
// Protocol. Each tool family becomes one MCP tool; the handler translates the
// call arguments into a workflow request and returns the envelope as JSON.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	mcp "trpc.group/trpc-go/trpc-mcp-go"

	"trpc.group/trpc-go/trpc-kubeintel-go/log"
	"trpc.group/trpc-go/trpc-kubeintel-go/workflow"
)

const serverVersion = "1.0.0"

// Options configures the server.
type Options struct {
	name       string
	address    string
	pathPrefix string
}

// Option sets one server option.
type Option func(*Options)

// WithName sets the server name advertised to MCP clients.
func WithName(name string) Option {
	return func(o *Options) { o.name = name }
}

// WithAddress sets the listen address.
func WithAddress(addr string) Option {
	return func(o *Options) { o.address = addr }
}

// WithPathPrefix sets the HTTP path the MCP endpoint is served under.
func WithPathPrefix(prefix string) Option {
	return func(o *Options) { o.pathPrefix = prefix }
}

// Server serves every tool registered on a workflow router.
type Server struct {
	router *workflow.Router
	mcp    *mcp.Server
}

// New builds the MCP server and registers one MCP tool per workflow tool.
func New(router *workflow.Router, opt ...Option) *Server {
	opts := Options{
		name:       "kubeintel",
		address:    ":3000",
		pathPrefix: "/mcp",
	}
	for _, o := range opt {
		o(&opts)
	}

	srv := mcp.NewServer(
		opts.name,
		serverVersion,
		mcp.WithServerAddress(opts.address),
		mcp.WithServerPath(opts.pathPrefix),
	)
	s := &Server{router: router, mcp: srv}
	for _, spec := range router.Specs() {
		s.registerTool(spec)
	}
	return s
}

// Start serves until the underlying listener fails.
func (s *Server) Start() error {
	return s.mcp.Start()
}

func (s *Server) registerTool(spec *workflow.ToolSpec) {
	tool := mcp.NewTool(
		spec.Kind,
		mcp.WithDescription(toolDescription(spec)),
		mcp.WithString("sessionId",
			mcp.Description("Session to continue. Omit to start a new session.")),
		mcp.WithString("step",
			mcp.Description("Explicit step to run. Usually omitted; the session's nextStep is used.")),
	)
	kind := spec.Kind
	s.mcp.RegisterTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.handleCall(ctx, kind, req)
	})
}

// handleCall translates one MCP call. Workflow failures travel inside the
// envelope; only transport-level faults become MCP error results.
func (s *Server) handleCall(ctx context.Context, kind string, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wreq := workflow.Request{Fields: map[string]any{}}
	for key, value := range req.Params.Arguments {
		switch key {
		case "sessionId":
			if id, ok := value.(string); ok {
				wreq.SessionID = id
			}
		case "step":
			if step, ok := value.(string); ok {
				wreq.Step = step
			}
		default:
			wreq.Fields[key] = value
		}
	}

	envelope, err := s.router.Handle(ctx, kind, wreq)
	if err != nil {
		log.Errorf("tool %s transport failure: %v", kind, err)
		return mcp.NewErrorResult(fmt.Sprintf("%s: %v", kind, err)), nil
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return mcp.NewErrorResult(fmt.Sprintf("%s: encode response: %v", kind, err)), nil
	}
	return mcp.NewTextResult(string(data)), nil
}

// toolDescription folds the step table into the advertised description so
// clients know which fields each step expects.
func toolDescription(spec *workflow.ToolSpec) string {
	var b strings.Builder
	b.WriteString(spec.Description)
	b.WriteString(" Steps: ")

	names := make([]string, 0, len(spec.Steps))
	for name := range spec.Steps {
		names = append(names, name)
	}
	sort.Strings(names)
	// Initial step listed first.
	for i, name := range names {
		if name == spec.InitialStep {
			names = append(names[:i], names[i+1:]...)
			break
		}
	}
	names = append([]string{spec.InitialStep}, names...)

	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		desc := spec.Steps[name]
		if len(desc.RequiredFields) > 0 {
			b.WriteString(" (requires ")
			b.WriteString(strings.Join(desc.RequiredFields, ", "))
			b.WriteString(")")
		}
	}
	b.WriteString(".")
	return b.String()
}
