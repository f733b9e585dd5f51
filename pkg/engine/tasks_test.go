// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	altotesting "github.com/kraklabs/alto/internal/testing"
	"github.com/kraklabs/alto/pkg/settings"
)

const sampleCatalog = `{"streams":[{"tap_stream_id":"users","stream":"users","schema":{"type":"object","properties":{"id":{"type":"integer"}}},"metadata":[{"breadcrumb":[],"metadata":{"selected":false}}]}]}`

func TestEngine_CatalogApplyEndToEnd(t *testing.T) {
	dir := t.TempDir()
	tapBin := altotesting.FakeDiscoverTap(t, dir, "fake-tap", sampleCatalog)

	tap := &settings.Plugin{
		Name:         "tap-fake",
		Kind:         settings.Tap,
		Requirement:  "tap-fake==1.0",
		Entrypoint:   "fake_tap",
		Capabilities: map[string]bool{"catalog": true},
		Select:       []string{"users.*"},
	}

	plugins := map[string]*settings.Plugin{"tap-fake": tap}
	e := newTestEngine(t, plugins)
	// The catalog task shells out to the plugin's binary path
	// computed from the cache key; stage the fake binary there directly
	// so BuildPlugin never needs to run.
	local, _ := e.binaryPaths(tap)
	copyFile(t, tapBin, local)

	ctx := context.Background()
	results, err := e.RunTask(ctx, "apply:tap-fake")
	require.NoError(t, err)

	for name, res := range results {
		require.NoErrorf(t, res.Err, "task %s failed", name)
	}

	applyRes, ok := results["apply:tap-fake"]
	require.True(t, ok)
	assert.True(t, applyRes.Ran)
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.WriteFile(dst, data, 0o755))
}
