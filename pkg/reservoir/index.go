// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

// Package reservoir implements the content-addressed landing store
// between a tap and a target, per spec §4.H–§4.J: an ingestor that
// gzip-batches tap output, an emitter that replays it into a target,
// and a compactor that merges small batches together.
package reservoir

import (
	"encoding/json"
	"sort"
)

// Index is the `_reservoir.json` document: a version counter plus, per
// stream, the ordered list of batch object paths, per spec §3.
type Index struct {
	Version int
	Streams map[string][]string
}

// NewIndex returns an empty index at version 0.
func NewIndex() *Index {
	return &Index{Streams: map[string][]string{}}
}

// MarshalJSON renders the index as `{"__version__": N, "<stream>":
// [...], ...}`, matching the flat layout spec §6 describes (no nested
// "streams" wrapper).
func (idx *Index) MarshalJSON() ([]byte, error) {
	out := map[string]any{"__version__": idx.Version}
	for stream, paths := range idx.Streams {
		out[stream] = paths
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the flat `{"__version__": N, "<stream>": [...]}`
// layout back into an Index.
func (idx *Index) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	idx.Streams = map[string][]string{}
	for k, v := range raw {
		if k == "__version__" {
			if err := json.Unmarshal(v, &idx.Version); err != nil {
				return err
			}
			continue
		}
		var paths []string
		if err := json.Unmarshal(v, &paths); err != nil {
			return err
		}
		idx.Streams[k] = paths
	}
	return nil
}

// LoadIndex parses raw index bytes. Empty input yields a fresh,
// version-0 index, matching the "missing index" case in §4.H/§4.I.
func LoadIndex(raw []byte) (*Index, error) {
	if len(raw) == 0 {
		return NewIndex(), nil
	}
	idx := NewIndex()
	if err := json.Unmarshal(raw, idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// Marshal renders the index as indented JSON.
func (idx *Index) Marshal() ([]byte, error) {
	return json.MarshalIndent(idx, "", "  ")
}

// Append records a newly-uploaded batch path under stream, keeping the
// per-stream list sorted by full path: grouped by schema_id directory,
// and chronological within each group (filenames are timestamp-prefixed).
func (idx *Index) Append(stream, path string) {
	idx.Streams[stream] = append(idx.Streams[stream], path)
	sort.Strings(idx.Streams[stream])
}
