// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package streammap

import (
	"path"

	"github.com/kraklabs/alto/pkg/catalog"
)

// matchSelector reports whether a single "<stream-glob>[.<field-glob>]"
// selector matches streamName/fieldPath. It reuses the catalog
// package's pattern grammar for the stream-glob portion; the
// invert/PII-hash prefixes a catalog selection pattern may carry are
// meaningless here and are simply ignored.
func matchSelector(selector, streamName, fieldPath string) bool {
	p := catalog.ParsePattern(selector)
	if !p.MatchesStream(streamName) {
		return false
	}
	if fieldPath == "" {
		return p.FieldGlob == ""
	}
	if p.FieldGlob == "" {
		return false
	}
	ok, err := path.Match(p.FieldGlob, fieldPath)
	return err == nil && ok
}

func anyMatch(selectors []string, streamName, fieldPath string) bool {
	for _, sel := range selectors {
		if matchSelector(sel, streamName, fieldPath) {
			return true
		}
	}
	return false
}

// streamMayMatch is a cheap pre-check (no field path) used to decide
// whether a stream can ever match any selector at all, independent of
// which fields are present in a given message.
func streamMayMatch(selectors []string, streamName string) bool {
	for _, sel := range selectors {
		if catalog.ParsePattern(sel).MatchesStream(streamName) {
			return true
		}
	}
	return false
}
