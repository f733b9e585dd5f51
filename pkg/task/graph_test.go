// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_ValidateDetectsCycle(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(&Task{Name: "a", TaskDeps: []string{"b"}}))
	require.NoError(t, g.Add(&Task{Name: "b", TaskDeps: []string{"c"}}))
	require.NoError(t, g.Add(&Task{Name: "c", TaskDeps: []string{"a"}}))

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestGraph_ValidateRejectsUnknownDependency(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(&Task{Name: "build:tap-foo", TaskDeps: []string{"missing"}}))

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}

func TestGraph_ValidateAcceptsDiamond(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(&Task{Name: "catalog:tap-foo", TaskDeps: []string{"build:tap-foo"}}))
	require.NoError(t, g.Add(&Task{Name: "apply:tap-foo", TaskDeps: []string{"catalog:tap-foo"}}))
	require.NoError(t, g.Add(&Task{Name: "build:tap-foo"}))
	require.NoError(t, g.Add(&Task{Name: "tap-foo:target-bar", TaskDeps: []string{"build:tap-foo", "apply:tap-foo"}}))

	assert.NoError(t, g.Validate())
}

func TestGraph_AddRejectsDuplicateName(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(&Task{Name: "build:tap-foo"}))
	err := g.Add(&Task{Name: "build:tap-foo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestGraph_ClosureIncludesTransitiveDeps(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(&Task{Name: "build:tap-foo"}))
	require.NoError(t, g.Add(&Task{Name: "catalog:tap-foo", TaskDeps: []string{"build:tap-foo"}}))
	require.NoError(t, g.Add(&Task{Name: "apply:tap-foo", TaskDeps: []string{"catalog:tap-foo"}}))
	require.NoError(t, g.Add(&Task{Name: "unrelated"}))

	closure, err := g.closure([]string{"apply:tap-foo"})
	require.NoError(t, err)
	assert.Len(t, closure, 3)
	assert.True(t, closure["build:tap-foo"])
	assert.True(t, closure["catalog:tap-foo"])
	assert.True(t, closure["apply:tap-foo"])
	assert.False(t, closure["unrelated"])
}
