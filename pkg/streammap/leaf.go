// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package streammap

import "sync"

// LeafMap is a Map that applies a leaf-level transform wherever a
// selector matches a dotted field path, walking JSON Schema nodes into
// properties/items and record values into nested maps/arrays, per
// spec §4.F. Streams that never match any selector are cached in an
// ignore set after their first observation so later messages for that
// stream skip the walk entirely.
type LeafMap struct {
	Select              []string
	TransformSchemaLeaf func(node map[string]any) map[string]any
	TransformRecordLeaf func(v any) any

	mu       sync.Mutex
	observed map[string]bool
	ignored  map[string]bool
}

func (m *LeafMap) isIgnored(stream string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ignored != nil && m.ignored[stream]
}

func (m *LeafMap) recordObservation(stream string, matched bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.observed == nil {
		m.observed = map[string]bool{}
	}
	if !matched && !m.observed[stream] {
		if m.ignored == nil {
			m.ignored = map[string]bool{}
		}
		m.ignored[stream] = true
	}
	m.observed[stream] = true
}

// TransformSchema implements Map.
func (m *LeafMap) TransformSchema(msg map[string]any) map[string]any {
	stream, _ := msg["stream"].(string)
	if m.isIgnored(stream) || !streamMayMatch(m.Select, stream) {
		if stream != "" {
			m.recordObservation(stream, false)
		}
		return msg
	}
	schema, ok := msg["schema"].(map[string]any)
	if !ok {
		return msg
	}
	matched := false
	newSchema := m.walkSchema(schema, stream, "", &matched)
	m.recordObservation(stream, matched)

	out := shallowCopy(msg)
	out["schema"] = newSchema
	return out
}

// TransformRecord implements Map.
func (m *LeafMap) TransformRecord(msg map[string]any) map[string]any {
	stream, _ := msg["stream"].(string)
	if m.isIgnored(stream) {
		return msg
	}
	record, ok := msg["record"].(map[string]any)
	if !ok {
		return msg
	}
	matched := false
	newRecord := m.walkRecord(record, stream, "", &matched)
	m.recordObservation(stream, matched)

	out := shallowCopy(msg)
	out["record"] = newRecord
	return out
}

func (m *LeafMap) walkSchema(node map[string]any, stream, fieldPath string, matched *bool) map[string]any {
	if anyMatch(m.Select, stream, fieldPath) {
		*matched = true
		return m.TransformSchemaLeaf(node)
	}

	out := shallowCopy(node)
	if props, ok := node["properties"].(map[string]any); ok {
		newProps := make(map[string]any, len(props))
		for k, v := range props {
			child, _ := v.(map[string]any)
			childPath := joinPath(fieldPath, k)
			if child == nil {
				newProps[k] = v
				continue
			}
			newProps[k] = m.walkSchema(child, stream, childPath, matched)
		}
		out["properties"] = newProps
	}
	if items, ok := node["items"].(map[string]any); ok {
		out["items"] = m.walkSchema(items, stream, fieldPath, matched)
	}
	return out
}

func (m *LeafMap) walkRecord(v any, stream, fieldPath string, matched *bool) any {
	if fieldPath != "" && anyMatch(m.Select, stream, fieldPath) {
		*matched = true
		return m.TransformRecordLeaf(v)
	}
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[k] = m.walkRecord(val, stream, joinPath(fieldPath, k), matched)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = m.walkRecord(item, stream, fieldPath, matched)
		}
		return out
	default:
		return v
	}
}

func joinPath(base, seg string) string {
	if base == "" {
		return seg
	}
	return base + "." + seg
}
