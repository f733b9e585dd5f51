// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"path"
	"strings"
)

// Pattern is a parsed selection pattern: [!~]<stream-glob>[.<field-glob>].
// PIIHash patterns are not selection operators; they are consumed only
// by the stream-map engine (spec §4.F) and are skipped by ApplySelected.
type Pattern struct {
	Invert   bool
	PIIHash  bool
	StreamGlob string
	FieldGlob  string // "" means "whole stream": MatchesEntry treats it as "*", matching root and every field
	Raw      string
}

// ParsePattern parses one selection pattern string.
func ParsePattern(s string) Pattern {
	p := Pattern{Raw: s}
	rest := s
	switch {
	case strings.HasPrefix(rest, "!"):
		p.Invert = true
		rest = rest[1:]
	case strings.HasPrefix(rest, "~"):
		p.PIIHash = true
		rest = rest[1:]
	}
	if idx := strings.IndexByte(rest, '.'); idx >= 0 {
		p.StreamGlob = rest[:idx]
		p.FieldGlob = rest[idx+1:]
	} else {
		p.StreamGlob = rest
	}
	return p
}

// ParsePatterns parses a full pattern list and prepends an implicit
// "*.*" when every non-PII pattern begins with "!", per spec §4.D.
func ParsePatterns(raw []string) []Pattern {
	parsed := make([]Pattern, 0, len(raw)+1)
	allNegated := true
	sawSelector := false
	for _, r := range raw {
		p := ParsePattern(r)
		parsed = append(parsed, p)
		if p.PIIHash {
			continue
		}
		sawSelector = true
		if !p.Invert {
			allNegated = false
		}
	}
	if sawSelector && allNegated {
		implicit := append([]Pattern{ParsePattern("*.*")}, parsed...)
		return implicit
	}
	return parsed
}

// MatchesStream reports whether the pattern's stream glob matches id.
func (p Pattern) MatchesStream(id string) bool {
	ok, err := path.Match(p.StreamGlob, id)
	return err == nil && ok
}

// MatchesEntry reports whether the pattern's field glob matches a
// metadata entry's dotted field path, comparing against the root
// entry's empty path for the stream-level entry itself. An absent
// field glob defaults to "*", which matches every entry: the root and
// every field alike, since fnmatch(path, "*") is true even for the
// root's empty path.
func (p Pattern) MatchesEntry(e *MetadataEntry) bool {
	fieldGlob := p.FieldGlob
	if fieldGlob == "" {
		fieldGlob = "*"
	}
	ok, err := path.Match(fieldGlob, e.fieldPath())
	return err == nil && ok
}
