// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package reservoir

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_FlushThenReuseRewritesHeader(t *testing.T) {
	header := []byte(`{"type":"SCHEMA"}` + "\n")
	b := newBatch("orders", "abc123", header)

	require.NoError(t, b.writeRecord([]byte(`{"type":"RECORD","record":{"id":1}}`)))
	first, err := b.flush()
	require.NoError(t, err)

	gz, err := gzip.NewReader(bytes.NewReader(first))
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"SCHEMA"}
{"type":"RECORD","record":{"id":1}}
`, string(body))

	require.NoError(t, b.writeRecord([]byte(`{"type":"RECORD","record":{"id":2}}`)))
	second, err := b.flush()
	require.NoError(t, err)

	gz2, err := gzip.NewReader(bytes.NewReader(second))
	require.NoError(t, err)
	body2, err := io.ReadAll(gz2)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"SCHEMA"}
{"type":"RECORD","record":{"id":2}}
`, string(body2), "second batch is self-describing with its own header")
}
