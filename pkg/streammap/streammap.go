// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

// Package streammap implements Alto's stream-map engine: an ordered
// chain of pure schema/record transformers spliced into the pipeline
// between a tap and a target, per spec §4.F.
package streammap

// Map is a single transformer in a chain. TransformSchema and
// TransformRecord each take a full Singer message (SCHEMA or RECORD,
// respectively, as a decoded JSON object) and return a new message;
// they must not mutate the input.
type Map interface {
	TransformSchema(msg map[string]any) map[string]any
	TransformRecord(msg map[string]any) map[string]any
}

// Chain applies an ordered sequence of Maps: the first sees the
// original message, each subsequent Map sees the previous Map's
// output, per spec §4.F.
type Chain struct {
	Maps []Map
}

// TransformSchema runs msg through every Map in order.
func (c *Chain) TransformSchema(msg map[string]any) map[string]any {
	out := msg
	for _, m := range c.Maps {
		out = m.TransformSchema(out)
	}
	return out
}

// TransformRecord runs msg through every Map in order.
func (c *Chain) TransformRecord(msg map[string]any) map[string]any {
	out := msg
	for _, m := range c.Maps {
		out = m.TransformRecord(out)
	}
	return out
}

func shallowCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
