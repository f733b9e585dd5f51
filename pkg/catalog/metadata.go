// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package catalog

// ApplyMetadataOverlay merges overlay (pattern -> attribute map) into
// cat's stream metadata, per spec §4.D. Patterns use the same
// stream-glob[.field-glob] grammar as selection patterns; invert and
// PII-hash prefixes are not meaningful here and are ignored. The
// "selected" key is never copied from the overlay — selection is
// owned entirely by ApplySelected. "replication-method" and
// "replication-key" are promoted to stream-level fields in addition
// to being written into the matched metadata entries.
func ApplyMetadataOverlay(cat *Catalog, overlay map[string]map[string]any) {
	for rawPattern, attrs := range overlay {
		p := ParsePattern(rawPattern)
		for _, s := range cat.Streams {
			if !p.MatchesStream(s.TapStreamID) {
				continue
			}
			for _, e := range s.Metadata {
				if !p.MatchesEntry(e) {
					continue
				}
				applyOverlayAttrs(s, e, attrs)
			}
		}
	}
}

func applyOverlayAttrs(s *Stream, e *MetadataEntry, attrs map[string]any) {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	for k, v := range attrs {
		if k == "selected" {
			continue
		}
		e.Metadata[k] = v
		switch k {
		case "replication-method":
			if rm, ok := v.(string); ok {
				s.ReplicationMethod = ReplicationMethod(rm)
				s.RootMetadata().Metadata["replication-method"] = rm
			}
		case "replication-key":
			if rk, ok := v.(string); ok {
				s.ReplicationKey = rk
				s.RootMetadata().Metadata["replication-key"] = rk
			}
		}
	}
}
