// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package catalog

// Strategy controls how ApplySelected disposes of unselected streams
// and fields.
type Strategy int

const (
	// PRUNE physically removes unselected streams and deletes
	// unselected properties from the schema.
	PRUNE Strategy = iota
	// DESELECT only toggles selection flags; nothing is removed.
	DESELECT
)

// ApplySelected runs the two-pass selection algorithm from spec §4.D
// against cat, mutating it in place.
func ApplySelected(cat *Catalog, rawPatterns []string, strategy Strategy) {
	patterns := ParsePatterns(rawPatterns)

	// Pass 1: reset each stream's root selected flag, then apply every
	// selection pattern to every matching stream/entry.
	for _, s := range cat.Streams {
		s.RootMetadata().setSelected(false)
	}
	for _, p := range patterns {
		if p.PIIHash {
			continue
		}
		for _, s := range cat.Streams {
			if !p.MatchesStream(s.TapStreamID) {
				continue
			}
			for _, e := range s.Metadata {
				if p.MatchesEntry(e) {
					e.setSelected(!p.Invert)
				}
			}
		}
	}

	// Pass 2: tri-state attribute evaluation, then stream-level fate.
	var surviving []*Stream
	for _, s := range cat.Streams {
		if applyTriState(s, strategy) {
			surviving = append(surviving, s)
		} else if strategy == DESELECT {
			s.Selected = false
			s.RootMetadata().setSelected(false)
		}
	}
	if strategy == PRUNE {
		cat.Streams = surviving
	}
}

// applyTriState evaluates every metadata entry of s, mutating selected
// flags, and reports whether the stream survives (at least one
// attribute propagated selected=true). When it survives and strategy
// is PRUNE, non-propagating entries and their schema properties are
// removed.
func applyTriState(s *Stream, strategy Strategy) bool {
	type evald struct {
		entry     *MetadataEntry
		propagate bool
		ambiguous bool // forced selected=true by the automatic-inclusion rule; kept even though it doesn't propagate
	}
	results := make([]evald, 0, len(s.Metadata))
	anyPropagate := false

	for _, e := range s.Metadata {
		propagate := false
		ambiguous := false
		if sel, has := e.Selected(); has && sel {
			propagate = true
		} else if !has && selectedByDefault(e) {
			e.setSelected(true)
			propagate = true
		} else if has && !sel && inclusionAutomatic(e) {
			e.setSelected(true) // forced selected, does not propagate alone
			ambiguous = true
		}
		if propagate {
			anyPropagate = true
		}
		results = append(results, evald{entry: e, propagate: propagate, ambiguous: ambiguous})
	}

	if !anyPropagate {
		return false
	}

	s.Selected = true
	s.RootMetadata().setSelected(true)

	var toRemove []*MetadataEntry
	for _, r := range results {
		if r.entry.IsRoot() || r.propagate || r.ambiguous {
			continue
		}
		toRemove = append(toRemove, r.entry)
	}
	if len(toRemove) == 0 || strategy == DESELECT {
		return true
	}

	kept := make([]*MetadataEntry, 0, len(s.Metadata))
	removeSet := make(map[*MetadataEntry]bool, len(toRemove))
	for _, e := range toRemove {
		removeSet[e] = true
	}
	for _, e := range s.Metadata {
		if removeSet[e] {
			s.Schema = pruneProperty(s.Schema, e.Breadcrumb)
			continue
		}
		kept = append(kept, e)
	}
	s.Metadata = kept
	return true
}

func selectedByDefault(e *MetadataEntry) bool {
	v, _ := e.Metadata["selected-by-default"].(bool)
	return v
}

func inclusionAutomatic(e *MetadataEntry) bool {
	v, _ := e.Metadata["inclusion"].(string)
	return v == "automatic"
}

// pruneProperty returns a copy of schema with the property at
// breadcrumb removed, dropping any parent object that becomes empty
// when the breadcrumb is nested more than one level deep. It does not
// mutate schema, per spec §9's "catalog breadcrumb pruning" redesign
// note.
func pruneProperty(schema map[string]any, breadcrumb []string) map[string]any {
	if len(breadcrumb) < 2 {
		return schema
	}
	cp := deepCopyAny(schema).(map[string]any)
	pruneRecursive(cp, breadcrumb)
	return cp
}

// pruneRecursive deletes the leaf named by breadcrumb and reports
// whether the immediate properties bag it lived in is now empty, so a
// caller one level up can cascade-delete it too.
func pruneRecursive(node map[string]any, breadcrumb []string) bool {
	props, ok := node[breadcrumb[0]].(map[string]any)
	if !ok {
		return false
	}
	if len(breadcrumb) == 2 {
		delete(props, breadcrumb[1])
		return len(props) == 0
	}
	child, ok := props[breadcrumb[1]].(map[string]any)
	if !ok {
		return false
	}
	if pruneRecursive(child, breadcrumb[2:]) {
		delete(props, breadcrumb[1])
	}
	return len(props) == 0
}

func deepCopyAny(v any) any {
	switch m := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = deepCopyAny(val)
		}
		return out
	case []any:
		out := make([]any, len(m))
		for i, val := range m {
			out[i] = deepCopyAny(val)
		}
		return out
	default:
		return v
	}
}
