// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/alto/pkg/streammap"
)

func TestPlugin_Validate_RequiresRequirementExceptUtility(t *testing.T) {
	tap := &Plugin{Name: "tap-foo", Kind: Tap}
	require.Error(t, tap.Validate())

	util := &Plugin{Name: "util-foo", Kind: Utility}
	require.NoError(t, util.Validate())
}

func TestResolvePlugin_InheritanceMerge(t *testing.T) {
	plugins := map[string]*Plugin{
		"tap-base": {
			Name:         "tap-base",
			Kind:         Tap,
			Requirement:  "tap-base==1.0",
			Capabilities: map[string]bool{"discover": true, "state": true},
			Select:       []string{"*.*"},
		},
		"tap-child": {
			Name:        "tap-child",
			InheritFrom: "tap-base",
			Requirement: "tap-child==2.0",
		},
	}

	resolved, err := ResolvePlugin(plugins, "tap-child")
	require.NoError(t, err)
	assert.Equal(t, "tap-child==2.0", resolved.Requirement)
	assert.Equal(t, Tap, resolved.Kind)
	assert.True(t, resolved.Has("discover"))
	assert.Equal(t, []string{"*.*"}, resolved.Select)
}

func TestResolvePlugin_CycleDetected(t *testing.T) {
	plugins := map[string]*Plugin{
		"a": {Name: "a", InheritFrom: "b"},
		"b": {Name: "b", InheritFrom: "a"},
	}
	_, err := ResolvePlugin(plugins, "a")
	require.Error(t, err)
}

func TestResolvePlugin_UnknownName(t *testing.T) {
	_, err := ResolvePlugin(map[string]*Plugin{}, "missing")
	require.Error(t, err)
}

func TestPlugin_StreamMaps_BuildsChainFromTildeSelectorsOnly(t *testing.T) {
	tap := &Plugin{
		Name:   "tap-foo",
		Kind:   Tap,
		Select: []string{"orders.id", "~users.email", "~users.ssn"},
	}

	chain := tap.StreamMaps()
	require.NotNil(t, chain)
	require.Len(t, chain.Maps, 1)

	leaf, ok := chain.Maps[0].(*streammap.LeafMap)
	require.True(t, ok)
	assert.Equal(t, []string{"users.email", "users.ssn"}, leaf.Select,
		"only the ~-prefixed selectors are kept, with the ~ stripped")
}

func TestPlugin_StreamMaps_NilWhenNoTildeSelectors(t *testing.T) {
	tap := &Plugin{Name: "tap-foo", Kind: Tap, Select: []string{"*.*", "orders.id"}}
	assert.Nil(t, tap.StreamMaps())
}
