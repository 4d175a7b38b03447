//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package config loads server configuration from a yaml file with sane
// defaults. Secrets come from the environment, never from the file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server configures the MCP transport.
type Server struct {
	// Address is the listen address, e.g. ":3000".
	Address string `yaml:"address"`
	// PathPrefix is the HTTP path the MCP endpoint is served under.
	PathPrefix string `yaml:"path_prefix"`
}

// Storage selects the session/document backend.
type Storage struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`
	// RedisURL is the redis connection URL, required for the redis backend.
	RedisURL string `yaml:"redis_url"`
}

// Model configures the reasoning provider.
type Model struct {
	// Enabled turns provider-backed summarization and planning on.
	Enabled bool `yaml:"enabled"`
	// Name is the model name, e.g. "gpt-4o-mini".
	Name string `yaml:"name"`
	// BaseURL overrides the provider endpoint for OpenAI-compatible gateways.
	BaseURL string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
}

// Scan configures background capability scans.
type Scan struct {
	// Concurrency bounds the worker pool for per-resource scan items.
	Concurrency int `yaml:"concurrency"`
	// KubectlBinary overrides the kubectl executable path.
	KubectlBinary string `yaml:"kubectl_binary"`
}

// Telemetry configures OTLP export. Empty endpoints leave the noop defaults.
type Telemetry struct {
	TracesEndpoint  string `yaml:"traces_endpoint"`
	MetricsEndpoint string `yaml:"metrics_endpoint"`
	ServiceName     string `yaml:"service_name"`
}

// Config is the full server configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Storage   Storage   `yaml:"storage"`
	Model     Model     `yaml:"model"`
	Scan      Scan      `yaml:"scan"`
	Telemetry Telemetry `yaml:"telemetry"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Address:    ":3000",
			PathPrefix: "/mcp",
		},
		Storage: Storage{
			Backend: "memory",
		},
		Model: Model{
			Name:      "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Scan: Scan{
			Concurrency: 8,
		},
		LogLevel: "info",
	}
}

// Load reads a yaml config file on top of the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Scan.Concurrency <= 0 {
		return fmt.Errorf("scan.concurrency must be positive, got %d", c.Scan.Concurrency)
	}
	return nil
}

// APIKey resolves the model API key from the configured environment variable.
func (m Model) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}
