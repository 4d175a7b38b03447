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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceKind_QualifiedName(t *testing.T) {
	tests := []struct {
		name string
		kind ResourceKind
		want string
	}{
		{name: "core", kind: ResourceKind{Kind: "Service"}, want: "Service"},
		{name: "grouped", kind: ResourceKind{Kind: "Deployment", Group: "apps"}, want: "Deployment.apps"},
		{name: "custom", kind: ResourceKind{Kind: "SQLClaim", Group: "devopstoolkit.live"}, want: "SQLClaim.devopstoolkit.live"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.QualifiedName())
		})
	}
}

func TestResourceKind_Custom(t *testing.T) {
	tests := []struct {
		name string
		kind ResourceKind
		want bool
	}{
		{name: "core", kind: ResourceKind{Kind: "Service"}, want: false},
		{name: "apps", kind: ResourceKind{Kind: "Deployment", Group: "apps"}, want: false},
		{name: "k8s_io_suffix", kind: ResourceKind{Kind: "NetworkPolicy", Group: "networking.k8s.io"}, want: false},
		{name: "crd", kind: ResourceKind{Kind: "SQLClaim", Group: "devopstoolkit.live"}, want: true},
		{name: "crossplane", kind: ResourceKind{Kind: "Composition", Group: "apiextensions.crossplane.io"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Custom())
		})
	}
}

func TestParseAPIResources(t *testing.T) {
	out := `configmaps                        cm           v1                                  true         ConfigMap
services                          svc          v1                                  true         Service
deployments                       deploy       apps/v1                             true         Deployment
cronjobs                          cj           batch/v1                            true         CronJob
bindings                                       v1                                  true         Binding
sqlclaims                                      devopstoolkit.live/v1beta1          true         SQLClaim
clusterroles                                   rbac.authorization.k8s.io/v1        false        ClusterRole
`
	kinds := parseAPIResources(out)
	require.Len(t, kinds, 7)

	byKind := map[string]ResourceKind{}
	for _, k := range kinds {
		byKind[k.Kind] = k
	}

	cm := byKind["ConfigMap"]
	assert.Equal(t, "configmaps", cm.Name)
	assert.Equal(t, "v1", cm.APIVersion)
	assert.Empty(t, cm.Group)
	assert.True(t, cm.Namespaced)

	deploy := byKind["Deployment"]
	assert.Equal(t, "apps", deploy.Group)
	assert.Equal(t, "apps/v1", deploy.APIVersion)

	// The SHORTNAMES column is absent for some kinds; parsing indexes from
	// the line end, so both shapes decode identically.
	binding := byKind["Binding"]
	assert.Equal(t, "bindings", binding.Name)
	assert.Empty(t, binding.Group)

	claim := byKind["SQLClaim"]
	assert.Equal(t, "devopstoolkit.live", claim.Group)
	assert.True(t, claim.Custom())

	role := byKind["ClusterRole"]
	assert.False(t, role.Namespaced)
	assert.False(t, role.Custom())
}

func TestParseAPIResources_SkipsMalformedLines(t *testing.T) {
	out := "garbage\n\n   \nservices svc v1 true Service\n"
	kinds := parseAPIResources(out)
	require.Len(t, kinds, 1)
	assert.Equal(t, "Service", kinds[0].Kind)
}
