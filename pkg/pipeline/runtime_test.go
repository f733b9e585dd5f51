// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/alto/internal/ui"
)

func TestRuntime_Run_DirectPassthroughSucceeds(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	spec := RunSpec{
		PipelineID:    "run-1",
		TapName:       "tap-fake",
		TapBinary:     "sh",
		TapArgs:       []string{"-c", `echo '{"type":"SCHEMA","stream":"users","schema":{}}'; echo '{"type":"RECORD","stream":"users","record":{"id":1}}' 1>&2; true`},
		TargetName:    "target-fake",
		TargetBinary:  "sh",
		TargetArgs:    []string{"-c", `cat > /dev/null; echo '{"type":"STATE","value":{"users":{"bookmark":1}}}'`},
		TapLogPath:    filepath.Join(dir, "tap.log"),
		TargetLogPath: filepath.Join(dir, "target.log"),
		StateLogPath:  filepath.Join(dir, "state.log"),
	}

	rt := &Runtime{Console: ui.NewConsole(&console)}
	stage, err := rt.Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, StageDone, stage)
}

func TestRuntime_Run_FailingTapSurfacesPipelineError(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	spec := RunSpec{
		PipelineID:    "run-2",
		TapName:       "tap-broken",
		TapBinary:     "sh",
		TapArgs:       []string{"-c", "exit 7"},
		TargetName:    "target-fake",
		TargetBinary:  "sh",
		TargetArgs:    []string{"-c", "cat > /dev/null"},
		TapLogPath:    filepath.Join(dir, "tap.log"),
		TargetLogPath: filepath.Join(dir, "target.log"),
		StateLogPath:  filepath.Join(dir, "state.log"),
	}

	rt := &Runtime{Console: ui.NewConsole(&console)}
	_, err := rt.Run(context.Background(), spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tap-broken")
}
