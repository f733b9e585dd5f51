// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

// Package catalog implements Alto's Singer catalog mutator: selection
// pattern parsing, the two-pass selection algorithm, and the metadata
// overlay, per spec §4.D.
package catalog

// ReplicationMethod is one of the Singer replication strategies.
type ReplicationMethod string

const (
	FullTable   ReplicationMethod = "FULL_TABLE"
	Incremental ReplicationMethod = "INCREMENTAL"
	LogBased    ReplicationMethod = "LOG_BASED"
)

// MetadataEntry is one entry in a stream's ordered metadata list. The
// root entry has an empty Breadcrumb.
type MetadataEntry struct {
	Breadcrumb []string
	Metadata   map[string]any
}

// IsRoot reports whether e is the stream-level (empty-breadcrumb) entry.
func (e *MetadataEntry) IsRoot() bool { return len(e.Breadcrumb) == 0 }

// Selected reports the entry's current selected flag, if set.
func (e *MetadataEntry) Selected() (bool, bool) {
	v, ok := e.Metadata["selected"]
	if !ok {
		return false, false
	}
	b, _ := v.(bool)
	return b, true
}

func (e *MetadataEntry) setSelected(v bool) {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	e.Metadata["selected"] = v
}

// fieldPath returns the dotted field path for a breadcrumb, e.g.
// ["properties","a","properties","b"] -> "a.b". Root breadcrumbs
// yield "".
func (e *MetadataEntry) fieldPath() string {
	var segs []string
	for i := 1; i < len(e.Breadcrumb); i += 2 {
		segs = append(segs, e.Breadcrumb[i])
	}
	out := ""
	for i, s := range segs {
		if i > 0 {
			out += "."
		}
		out += s
	}
	return out
}

// Stream is a single Singer stream within a catalog.
type Stream struct {
	TapStreamID       string
	Schema            map[string]any
	Metadata          []*MetadataEntry
	KeyProperties     []string
	ReplicationKey    string
	ReplicationMethod ReplicationMethod
	Selected          bool
}

// RootMetadata returns the stream's root (empty-breadcrumb) metadata
// entry, creating it if absent.
func (s *Stream) RootMetadata() *MetadataEntry {
	for _, e := range s.Metadata {
		if e.IsRoot() {
			return e
		}
	}
	e := &MetadataEntry{Breadcrumb: []string{}, Metadata: map[string]any{}}
	s.Metadata = append(s.Metadata, e)
	return e
}

// Catalog is a list of streams, per spec §3.
type Catalog struct {
	Streams []*Stream
}

// ApplyReplicationInvariant clears ReplicationKey when it is set but
// ReplicationMethod is INCREMENTAL and the key is absent from the
// schema's properties, per spec §3's catalog invariant.
func (s *Stream) ApplyReplicationInvariant() {
	if s.ReplicationMethod != Incremental || s.ReplicationKey == "" {
		return
	}
	props, _ := s.Schema["properties"].(map[string]any)
	if props == nil {
		s.ReplicationKey = ""
		return
	}
	if _, ok := props[s.ReplicationKey]; !ok {
		s.ReplicationKey = ""
	}
}
