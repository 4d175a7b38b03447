//
// Tencent is pleased to support the open source community by making trpc-kubeintel-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-kubeintel-go is licensed under the Apache License Version 2.0.
//
//

// Package redis builds redis clients from connection URLs and keeps a
// registry of named instance options, so embedding services can configure
// an instance once and refer to it by name.
package redis

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientOpts is the options for a redis client.
type ClientOpts struct {
	URL string
}

// ClientOpt is the option for a redis client.
type ClientOpt func(*ClientOpts)

// WithClientURL sets the connection URL.
// scheme: redis://<username>:<password>@<host>:<port>/<db>?<options>
// options: refer redis.ParseURL.
func WithClientURL(url string) ClientOpt {
	return func(opts *ClientOpts) {
		opts.URL = url
	}
}

// NewClient builds a redis client from the configured URL.
func NewClient(opt ...ClientOpt) (redis.UniversalClient, error) {
	o := &ClientOpts{}
	for _, op := range opt {
		op(o)
	}
	if o.URL == "" {
		return nil, errors.New("redis: url is empty")
	}
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url %s: %w", o.URL, err)
	}
	return redis.NewClient(opts), nil
}

// instances holds named instance options. Registration happens during
// startup, before any store is built, so the map is not synchronized.
var instances = make(map[string][]ClientOpt)

// RegisterInstance registers options under an instance name.
func RegisterInstance(name string, opts ...ClientOpt) {
	instances[name] = append(instances[name], opts...)
}

// Instance returns the options registered under a name.
func Instance(name string) ([]ClientOpt, bool) {
	opts, ok := instances[name]
	return opts, ok
}
