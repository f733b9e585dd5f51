// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/alto/pkg/state"
	"github.com/kraklabs/alto/pkg/store"
)

func TestTeardownState_MergesAndWritesImmutableCopy(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	dir := t.TempDir()

	localStatePath := "state/dev/tap-foo.json"
	existing, err := state.Marshal(state.Doc{"users": map[string]any{"bookmark": float64(1)}})
	require.NoError(t, err)
	require.NoError(t, st.Pipe(ctx, localStatePath, existing))

	logPath := filepath.Join(dir, "state-run1.log")
	require.NoError(t, os.WriteFile(logPath, []byte(
		`{"type":"STATE","value":{"orders":{"bookmark":5}}}`+"\n",
	), 0o644))

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, TeardownState(ctx, st, logPath, localStatePath, now))

	raw, err := st.Cat(ctx, localStatePath)
	require.NoError(t, err)
	doc, err := state.Load(raw)
	require.NoError(t, err)
	assert.EqualValues(t, 1, doc["users"].(map[string]any)["bookmark"])
	assert.EqualValues(t, 5, doc["orders"].(map[string]any)["bookmark"])

	immutable, err := st.Exists(ctx, state.ImmutableCopyPath(localStatePath, now))
	require.NoError(t, err)
	assert.True(t, immutable)

	_, err = os.Stat(logPath)
	assert.True(t, os.IsNotExist(err), "state log should be unlinked after teardown")
}

func TestTeardownState_NoopWhenLogMissing(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	err := TeardownState(ctx, st, "/nonexistent/state.log", "state/dev/tap-foo.json", time.Now())
	assert.NoError(t, err)
}

func TestUploadLogs_UploadsAndUnlinks(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	dir := t.TempDir()

	tapLog := filepath.Join(dir, "tap.log")
	require.NoError(t, os.WriteFile(tapLog, []byte("tap output\n"), 0o644))

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := UploadLogs(ctx, st, "dev", "run-1", map[string]string{"tap-foo": tapLog}, now)
	require.NoError(t, err)

	_, err = os.Stat(tapLog)
	assert.True(t, os.IsNotExist(err))
}
