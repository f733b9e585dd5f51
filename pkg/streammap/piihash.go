// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package streammap

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// NewPIIHashMap builds the built-in PII-hash map from spec §4.F:
// matched leaf values are replaced with md5(str(v)), and matched
// JSON-Schema leaves are rewritten to {type: "string", format: "hash"}.
// selectors use the "~<stream-glob>.<field-glob>" patterns declared on
// a plugin's select list, with the leading "~" already stripped by the
// caller.
func NewPIIHashMap(selectors []string) *LeafMap {
	return &LeafMap{
		Select: selectors,
		TransformSchemaLeaf: func(node map[string]any) map[string]any {
			return map[string]any{"type": "string", "format": "hash"}
		},
		TransformRecordLeaf: func(v any) any {
			return HashValue(v)
		},
	}
}

// HashValue is md5(str(v)) in hex, the PII-hash map's value transform.
func HashValue(v any) string {
	sum := md5.Sum([]byte(fmt.Sprint(v)))
	return hex.EncodeToString(sum[:])
}
