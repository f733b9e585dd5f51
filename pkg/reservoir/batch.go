// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package reservoir

import (
	"bytes"

	"github.com/klauspost/compress/gzip"
)

// batch accumulates one (stream, schema_id) partition's records into a
// gzip-compressed, newline-delimited buffer that always begins with the
// SCHEMA line as a self-describing header, per spec §4.H/§6.
type batch struct {
	stream   string
	schemaID string
	header   []byte // the transformed SCHEMA message line, with trailing newline

	buf *bytes.Buffer
	gz  *gzip.Writer
	n   int
}

func newBatch(stream, schemaID string, header []byte) *batch {
	b := &batch{stream: stream, schemaID: schemaID, header: header}
	b.reset()
	return b
}

func (b *batch) reset() {
	b.buf = &bytes.Buffer{}
	b.gz = gzip.NewWriter(b.buf)
	b.n = 0
	b.gz.Write(b.header)
}

func (b *batch) writeRecord(line []byte) error {
	if _, err := b.gz.Write(line); err != nil {
		return err
	}
	if _, err := b.gz.Write([]byte("\n")); err != nil {
		return err
	}
	b.n++
	return nil
}

// flush closes the gzip stream and returns its compressed bytes,
// leaving b ready to accept a fresh batch under the same header.
func (b *batch) flush() ([]byte, error) {
	if err := b.gz.Close(); err != nil {
		return nil, err
	}
	data := b.buf.Bytes()
	b.reset()
	return data, nil
}
