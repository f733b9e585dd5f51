// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package reservoir

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/alto/internal/ui"
	"github.com/kraklabs/alto/pkg/paths"
	"github.com/kraklabs/alto/pkg/state"
	"github.com/kraklabs/alto/pkg/store"
)

func gzipBatch(t *testing.T, lines ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, l := range lines {
		_, err := gz.Write([]byte(l + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestEmit_ReplaysNotYetEmittedBatchesInOrder(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	dir := t.TempDir()

	base := paths.ReservoirBase("dev", "tap-foo")
	schemaLine := `{"type":"SCHEMA","stream":"orders","schema":{"type":"object"}}`
	b1 := gzipBatch(t, schemaLine, `{"type":"RECORD","stream":"orders","record":{"id":1}}`)
	b2 := gzipBatch(t, schemaLine, `{"type":"RECORD","stream":"orders","record":{"id":2}}`)

	p1 := base + "/orders/s/20260101000000000000.singer.gz"
	p2 := base + "/orders/s/20260101000001000000.singer.gz"
	require.NoError(t, st.Pipe(ctx, p1, b1))
	require.NoError(t, st.Pipe(ctx, p2, b2))

	idx := NewIndex()
	idx.Version = 1
	idx.Streams["orders"] = []string{p1, p2}
	data, err := idx.Marshal()
	require.NoError(t, err)
	require.NoError(t, st.Pipe(ctx, paths.ReservoirIndex("dev", "tap-foo"), data))

	statePath := paths.State("dev", paths.ReservoirStateName("tap-foo"), "target-bar")
	existing, err := state.Marshal(state.Doc{"__version__": float64(1)})
	require.NoError(t, err)
	require.NoError(t, st.Pipe(ctx, statePath, existing))

	received := filepath.Join(dir, "received.ndjson")
	spec := EmitSpec{
		Env:           "dev",
		TapName:       "tap-foo",
		TargetName:    "target-bar",
		TargetBinary:  "sh",
		TargetArgs:    []string{"-c", "cat > " + received},
		StatePath:     statePath,
		TargetLogPath: filepath.Join(dir, "target.log"),
	}

	em := &Emitter{Console: ui.NewConsole(&bytes.Buffer{})}
	require.NoError(t, em.Emit(ctx, st, base, spec))

	out, err := os.ReadFile(received)
	require.NoError(t, err)
	assert.Equal(t, 4, len(splitNonEmpty(string(out))), "2 headers + 2 records")

	stateRaw, err := st.Cat(ctx, statePath)
	require.NoError(t, err)
	doc, err := state.Load(stateRaw)
	require.NoError(t, err)
	assert.Equal(t, "20260101000001000000.singer.gz", doc["orders"].(map[string]any)["emitted"])
}

func TestEmit_VersionReconciliationAfterCompaction(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	dir := t.TempDir()

	base := paths.ReservoirBase("dev", "tap-foo")
	schemaLine := `{"type":"SCHEMA","stream":"s","schema":{"type":"object"}}`
	bBytes := gzipBatch(t, schemaLine, `{"type":"RECORD","stream":"s","record":{"id":1}}`)
	cBytes := gzipBatch(t, schemaLine, `{"type":"RECORD","stream":"s","record":{"id":2}}`)

	pb := base + "/s/sch/b.gz"
	pc := base + "/s/sch/c.gz"
	require.NoError(t, st.Pipe(ctx, pb, bBytes))
	require.NoError(t, st.Pipe(ctx, pc, cBytes))

	idx := NewIndex()
	idx.Version = 4
	idx.Streams["s"] = []string{pb, pc}
	data, err := idx.Marshal()
	require.NoError(t, err)
	require.NoError(t, st.Pipe(ctx, paths.ReservoirIndex("dev", "tap-foo"), data))

	statePath := paths.State("dev", paths.ReservoirStateName("tap-foo"), "target-bar")
	existing, err := state.Marshal(state.Doc{
		"__version__": float64(3),
		"s":           map[string]any{"emitted": "a.gz"},
	})
	require.NoError(t, err)
	require.NoError(t, st.Pipe(ctx, statePath, existing))

	received := filepath.Join(dir, "received.ndjson")
	spec := EmitSpec{
		Env:           "dev",
		TapName:       "tap-foo",
		TargetName:    "target-bar",
		TargetBinary:  "sh",
		TargetArgs:    []string{"-c", "cat > " + received},
		StatePath:     statePath,
		TargetLogPath: filepath.Join(dir, "target.log"),
	}

	em := &Emitter{Console: ui.NewConsole(&bytes.Buffer{})}
	require.NoError(t, em.Emit(ctx, st, base, spec))

	stateRaw, err := st.Cat(ctx, statePath)
	require.NoError(t, err)
	doc, err := state.Load(stateRaw)
	require.NoError(t, err)
	assert.EqualValues(t, 4, doc["__version__"])
	assert.Equal(t, "c.gz", doc["s"].(map[string]any)["emitted"], "b then c processed; final bookmark is the greatest filename")
}

func TestRebuildIndex_ListsStreamDirectoriesAndGlobsBatches(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	base := paths.ReservoirBase("dev", "tap-foo")

	require.NoError(t, st.Pipe(ctx, base+"/orders/s1/1.singer.gz", []byte("x")))
	require.NoError(t, st.Pipe(ctx, base+"/orders/s1/2.singer.gz", []byte("y")))
	require.NoError(t, st.Pipe(ctx, base+"/users/s2/1.singer.gz", []byte("z")))

	idx, err := rebuildIndex(ctx, st, base)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Version)
	assert.Len(t, idx.Streams["orders"], 2)
	assert.Len(t, idx.Streams["users"], 1)
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, line := range bytes.Split([]byte(s), []byte("\n")) {
		if len(line) > 0 {
			out = append(out, string(line))
		}
	}
	return out
}
