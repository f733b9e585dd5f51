// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

// Package state implements the Singer STATE document lifecycle: deep
// merging, the one-shot singer_state unwrap, and timestamped immutable
// snapshots, per spec §4.E.
package state

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kraklabs/alto/internal/errors"
)

// Doc is a free-form JSON object.
type Doc map[string]any

// DeepMerge merges src into dst in place and returns dst: for each key in
// src, if both dst[k] and src[k] are maps they are merged recursively,
// otherwise src[k] replaces dst[k]. Right-biased for scalars, matching
// spec §8's invariant.
func DeepMerge(dst, src Doc) Doc {
	if dst == nil {
		dst = Doc{}
	}
	for k, sv := range src {
		if sm, ok := sv.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				DeepMerge(Doc(dm), Doc(sm))
				continue
			}
		}
		dst[k] = sv
	}
	return dst
}

// Unwrap implements the one-shot "singer_state" container unwrap: if doc
// has a top-level "singer_state" key, its value replaces the document.
// This is never re-applied on write (per spec §9's ambiguity note).
func Unwrap(doc Doc) Doc {
	if inner, ok := doc["singer_state"]; ok {
		if m, ok := inner.(map[string]any); ok {
			return Doc(m)
		}
	}
	return doc
}

// Load reads and unwraps a state document's raw JSON bytes.
func Load(raw []byte) (Doc, error) {
	if len(raw) == 0 {
		return Doc{}, nil
	}
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.NewStateMergeError(
			"state document is not valid JSON",
			err.Error(),
			"inspect and repair the state file, or delete it to start fresh",
			err,
		)
	}
	return Unwrap(doc), nil
}

// ParseTargetOutput reads newline-delimited JSON STATE messages from a
// target's stdout (already captured to a log), deep-merging each
// "value" field into an accumulator. Unparseable lines are skipped
// (DecodeError, non-fatal), matching spec §4.E and §7.
func ParseTargetOutput(r *bufio.Reader) (Doc, error) {
	acc := Doc{}
	for {
		line, err := r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var msg struct {
				Type  string `json:"type"`
				Value Doc    `json:"value"`
			}
			if jsonErr := json.Unmarshal(line, &msg); jsonErr == nil && msg.Type == "STATE" {
				DeepMerge(acc, msg.Value)
			}
			// Any other decode failure or message type is silently
			// dropped per spec §7 (DecodeError is per-line, non-fatal).
		}
		if err != nil {
			break
		}
	}
	return acc, nil
}

// Marshal renders doc as indented JSON.
func Marshal(doc Doc) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// ImmutableCopyPath returns the timestamped immutable-copy path
// alongside the mutable path p, e.g. "state/dev/x.json" ->
// "state/dev/x.20260130153000.json".
func ImmutableCopyPath(p string, at time.Time) string {
	ts := at.UTC().Format("20060102150405")
	ext := ".json"
	if len(p) > len(ext) && p[len(p)-len(ext):] == ext {
		return fmt.Sprintf("%s.%s%s", p[:len(p)-len(ext)], ts, ext)
	}
	return p + "." + ts
}
