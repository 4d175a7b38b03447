//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(WithClientURL("redis://" + mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	got, err := client.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewClient_BadInput(t *testing.T) {
	_, err := NewClient()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url is empty")

	_, err = NewClient(WithClientURL("://not-a-url"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse url")
}

func TestInstanceRegistry(t *testing.T) {
	_, ok := Instance("unregistered")
	assert.False(t, ok)

	RegisterInstance("primary", WithClientURL("redis://localhost:6379/0"))
	opts, ok := Instance("primary")
	require.True(t, ok)
	require.Len(t, opts, 1)

	o := &ClientOpts{}
	opts[0](o)
	assert.Equal(t, "redis://localhost:6379/0", o.URL)
}
