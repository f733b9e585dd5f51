// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/kraklabs/alto/pkg/streammap"
)

// Splice reads newline-delimited Singer messages from r, routes SCHEMA
// and RECORD messages through chain, and writes every line (transformed
// or not) to w. Unparseable lines and any other message type pass
// through unchanged, per spec §4.F's pipeline-integration rule. It
// returns once r reaches EOF or an error occurs on either side.
func Splice(r io.Reader, w io.Writer, chain *streammap.Chain) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		out := transformLine(line, chain)
		if _, err := w.Write(out); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func transformLine(line []byte, chain *streammap.Chain) []byte {
	var msg map[string]any
	if err := json.Unmarshal(line, &msg); err != nil {
		return line
	}

	typ, _ := msg["type"].(string)
	var out map[string]any
	switch typ {
	case "SCHEMA":
		out = chain.TransformSchema(msg)
	case "RECORD":
		out = chain.TransformRecord(msg)
	default:
		return line
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return line
	}
	return encoded
}
