// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package reservoir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaID_DeterministicAcrossKeyOrder(t *testing.T) {
	a := map[string]any{"type": "object", "properties": map[string]any{"id": map[string]any{"type": "integer"}, "email": map[string]any{"type": "string"}}}
	b := map[string]any{"properties": map[string]any{"email": map[string]any{"type": "string"}, "id": map[string]any{"type": "integer"}}, "type": "object"}

	assert.Equal(t, SchemaID(a), SchemaID(b))
	assert.Len(t, SchemaID(a), 15)
}

func TestSchemaID_DiffersOnContent(t *testing.T) {
	a := map[string]any{"type": "object", "properties": map[string]any{"id": map[string]any{"type": "integer"}}}
	b := map[string]any{"type": "object", "properties": map[string]any{"id": map[string]any{"type": "string"}}}
	assert.NotEqual(t, SchemaID(a), SchemaID(b))
}
