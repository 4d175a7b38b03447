//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Server.Address)
	assert.Equal(t, "/mcp", cfg.Server.PathPrefix)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 8, cfg.Scan.Concurrency)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":8080"
storage:
  backend: redis
  redis_url: redis://localhost:6379
scan:
  concurrency: 16
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "/mcp", cfg.Server.PathPrefix, "unset fields keep their defaults")
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "redis://localhost:6379", cfg.Storage.RedisURL)
	assert.Equal(t, 16, cfg.Scan.Concurrency)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "redis_without_url",
			content: "storage:\n  backend: redis\n",
			wantErr: "redis_url",
		},
		{
			name:    "unknown_backend",
			content: "storage:\n  backend: etcd\n",
			wantErr: "unknown storage backend",
		},
		{
			name:    "non_positive_concurrency",
			content: "scan:\n  concurrency: 0\n",
			wantErr: "concurrency",
		},
		{
			name:    "malformed_yaml",
			content: "server: [not a map",
			wantErr: "parse config",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestModel_APIKeyFromEnv(t *testing.T) {
	t.Setenv("KUBEINTEL_TEST_KEY", "sk-test")
	m := Model{APIKeyEnv: "KUBEINTEL_TEST_KEY"}
	assert.Equal(t, "sk-test", m.APIKey())

	assert.Empty(t, Model{}.APIKey())
}
