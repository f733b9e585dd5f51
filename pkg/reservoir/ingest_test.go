// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package reservoir

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/alto/internal/ui"
	"github.com/kraklabs/alto/pkg/paths"
	"github.com/kraklabs/alto/pkg/store"
)

func fixedNow() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestIngest_BuffersSchemaAndRecordsWithHeaderInvariant(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	dir := t.TempDir()

	tapScript := `
echo '{"type":"SCHEMA","stream":"orders","schema":{"type":"object","properties":{"id":{"type":"integer"}}}}'
echo '{"type":"RECORD","stream":"orders","record":{"id":1}}'
echo '{"type":"RECORD","stream":"orders","record":{"id":2}}'
echo '{"type":"STATE","value":{"orders":{"bookmark":2}}}'
`
	spec := IngestSpec{
		PipelineID:     "run-1",
		Env:            "dev",
		TapName:        "tap-foo",
		TapBinary:      "sh",
		TapArgs:        []string{"-c", tapScript},
		BufferSize:     10000,
		LocalStatePath: "state/dev/reservoir-foo.json",
		TapLogPath:     filepath.Join(dir, "tap.log"),
	}

	ing := &Ingestor{Console: ui.NewConsole(&bytes.Buffer{})}
	require.NoError(t, ing.Ingest(ctx, st, spec, fixedNow))

	raw, err := st.Cat(ctx, paths.ReservoirIndex("dev", "tap-foo"))
	require.NoError(t, err)
	idx, err := LoadIndex(raw)
	require.NoError(t, err)
	require.Len(t, idx.Streams["orders"], 1)

	batchPath := idx.Streams["orders"][0]
	assert.Contains(t, batchPath, "reservoir/dev/tap-foo/orders/")
	assert.Contains(t, batchPath, ".singer.gz")

	batchData, err := st.Cat(ctx, batchPath)
	require.NoError(t, err)
	gz, err := gzip.NewReader(bytes.NewReader(batchData))
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	require.Len(t, lines, 3) // header + 2 records

	var header map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &header))
	assert.Equal(t, "SCHEMA", header["type"])

	var rec1 map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec1))
	assert.Equal(t, "RECORD", rec1["type"])

	stateRaw, err := st.Cat(ctx, spec.LocalStatePath)
	require.NoError(t, err)
	var stateDoc map[string]any
	require.NoError(t, json.Unmarshal(stateRaw, &stateDoc))
	assert.EqualValues(t, 2, stateDoc["orders"].(map[string]any)["bookmark"])

	locked, err := st.Exists(ctx, paths.ReservoirLock("dev", "tap-foo"))
	require.NoError(t, err)
	assert.False(t, locked, "lock should be released after ingest")
}

func TestIngest_FlushesAtBufferSizeIntoMultipleBatches(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	dir := t.TempDir()

	tapScript := `
echo '{"type":"SCHEMA","stream":"orders","schema":{"type":"object"}}'
echo '{"type":"RECORD","stream":"orders","record":{"id":1}}'
echo '{"type":"RECORD","stream":"orders","record":{"id":2}}'
echo '{"type":"RECORD","stream":"orders","record":{"id":3}}'
`
	spec := IngestSpec{
		PipelineID:     "run-1",
		Env:            "dev",
		TapName:        "tap-foo",
		TapBinary:      "sh",
		TapArgs:        []string{"-c", tapScript},
		BufferSize:     2,
		LocalStatePath: "state/dev/reservoir-foo.json",
		TapLogPath:     filepath.Join(dir, "tap.log"),
	}

	ing := &Ingestor{Console: ui.NewConsole(&bytes.Buffer{})}
	require.NoError(t, ing.Ingest(ctx, st, spec, fixedNow))

	raw, err := st.Cat(ctx, paths.ReservoirIndex("dev", "tap-foo"))
	require.NoError(t, err)
	idx, err := LoadIndex(raw)
	require.NoError(t, err)
	assert.Len(t, idx.Streams["orders"], 2, "1 full batch of 2 then a 1-record tail flush")
}

func TestIngest_LockedReservoirFails(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, AcquireLock(ctx, st, paths.ReservoirLock("dev", "tap-foo"), "other-run"))

	spec := IngestSpec{
		PipelineID:     "run-1",
		Env:            "dev",
		TapName:        "tap-foo",
		TapBinary:      "sh",
		TapArgs:        []string{"-c", "true"},
		LocalStatePath: "state/dev/reservoir-foo.json",
		TapLogPath:     filepath.Join(t.TempDir(), "tap.log"),
	}
	ing := &Ingestor{Console: ui.NewConsole(&bytes.Buffer{})}
	err := ing.Ingest(ctx, st, spec, fixedNow)
	require.Error(t, err)
}
