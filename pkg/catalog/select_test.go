// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersUsersCatalog() *Catalog {
	orders := &Stream{
		TapStreamID: "orders",
		Schema: map[string]any{
			"properties": map[string]any{
				"id":    map[string]any{"type": "integer"},
				"email": map[string]any{"type": "string"},
			},
		},
		Metadata: []*MetadataEntry{
			{Breadcrumb: []string{}, Metadata: map[string]any{}},
			{Breadcrumb: []string{"properties", "id"}, Metadata: map[string]any{}},
			{Breadcrumb: []string{"properties", "email"}, Metadata: map[string]any{}},
		},
	}
	users := &Stream{
		TapStreamID: "users",
		Schema: map[string]any{
			"properties": map[string]any{
				"id": map[string]any{"type": "integer"},
			},
		},
		Metadata: []*MetadataEntry{
			{Breadcrumb: []string{}, Metadata: map[string]any{}},
			{Breadcrumb: []string{"properties", "id"}, Metadata: map[string]any{}},
		},
	}
	return &Catalog{Streams: []*Stream{orders, users}}
}

// Scenario 1 from spec §8: "Selection, single stream prune."
func TestApplySelected_SingleStreamPrune(t *testing.T) {
	cat := ordersUsersCatalog()
	ApplySelected(cat, []string{"orders.id"}, PRUNE)

	require.Len(t, cat.Streams, 1)
	orders := cat.Streams[0]
	assert.Equal(t, "orders", orders.TapStreamID)
	assert.True(t, orders.Selected)
	assert.True(t, orders.RootMetadata().Metadata["selected"].(bool))

	props := orders.Schema["properties"].(map[string]any)
	_, hasEmail := props["email"]
	assert.False(t, hasEmail, "email property should have been pruned")
	_, hasID := props["id"]
	assert.True(t, hasID)
}

// A bare stream selector with no field component keeps every field,
// since an absent field glob defaults to "*" rather than matching only
// the stream's root entry.
func TestApplySelected_BareStreamSelectorKeepsAllFields(t *testing.T) {
	cat := ordersUsersCatalog()
	ApplySelected(cat, []string{"orders"}, PRUNE)

	require.Len(t, cat.Streams, 1)
	orders := cat.Streams[0]
	assert.Equal(t, "orders", orders.TapStreamID)

	props := orders.Schema["properties"].(map[string]any)
	_, hasID := props["id"]
	assert.True(t, hasID)
	_, hasEmail := props["email"]
	assert.True(t, hasEmail, "a bare stream selector should keep every field, not just the root")
}

// Scenario 2 from spec §8: "Inverted selection."
func TestApplySelected_InvertedSelection(t *testing.T) {
	cat := ordersUsersCatalog()
	ApplySelected(cat, []string{"!users.*"}, PRUNE)

	require.Len(t, cat.Streams, 1)
	orders := cat.Streams[0]
	assert.Equal(t, "orders", orders.TapStreamID)
	assert.True(t, orders.Selected)

	props := orders.Schema["properties"].(map[string]any)
	assert.Contains(t, props, "id")
	assert.Contains(t, props, "email")
}

func TestApplySelected_DeselectKeepsStreams(t *testing.T) {
	cat := ordersUsersCatalog()
	ApplySelected(cat, []string{"!users.*"}, DESELECT)

	require.Len(t, cat.Streams, 2)
	var users *Stream
	for _, s := range cat.Streams {
		if s.TapStreamID == "users" {
			users = s
		}
	}
	require.NotNil(t, users)
	assert.False(t, users.Selected)
	assert.False(t, users.RootMetadata().Metadata["selected"].(bool))
	props := users.Schema["properties"].(map[string]any)
	assert.Contains(t, props, "id", "DESELECT must not remove schema properties")
}

func TestApplySelected_AutomaticInclusionForcedButNotRemoved(t *testing.T) {
	cat := &Catalog{Streams: []*Stream{{
		TapStreamID: "orders",
		Schema: map[string]any{
			"properties": map[string]any{
				"id":         map[string]any{"type": "integer"},
				"created_at": map[string]any{"type": "string"},
			},
		},
		Metadata: []*MetadataEntry{
			{Breadcrumb: []string{}, Metadata: map[string]any{}},
			{Breadcrumb: []string{"properties", "id"}, Metadata: map[string]any{}},
			{Breadcrumb: []string{"properties", "created_at"}, Metadata: map[string]any{
				"selected":  false,
				"inclusion": "automatic",
			}},
		},
	}}}

	ApplySelected(cat, []string{"orders.id"}, PRUNE)

	require.Len(t, cat.Streams, 1)
	orders := cat.Streams[0]
	props := orders.Schema["properties"].(map[string]any)
	assert.Contains(t, props, "id")
	assert.Contains(t, props, "created_at", "automatic-inclusion fields survive even when not explicitly selected")

	for _, e := range orders.Metadata {
		if e.fieldPath() == "created_at" {
			sel, _ := e.Selected()
			assert.True(t, sel, "automatic inclusion forces selected=true")
		}
	}
}

func TestApplySelected_NestedBreadcrumbPruneCascadesEmptyParent(t *testing.T) {
	cat := &Catalog{Streams: []*Stream{{
		TapStreamID: "orders",
		Schema: map[string]any{
			"properties": map[string]any{
				"id": map[string]any{"type": "integer"},
				"meta": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"internal": map[string]any{"type": "string"},
					},
				},
			},
		},
		Metadata: []*MetadataEntry{
			{Breadcrumb: []string{}, Metadata: map[string]any{}},
			{Breadcrumb: []string{"properties", "id"}, Metadata: map[string]any{}},
			{Breadcrumb: []string{"properties", "meta", "properties", "internal"}, Metadata: map[string]any{}},
		},
	}}}

	ApplySelected(cat, []string{"orders.id"}, PRUNE)

	props := cat.Streams[0].Schema["properties"].(map[string]any)
	assert.Contains(t, props, "id")
	_, hasMeta := props["meta"]
	assert.False(t, hasMeta, "empty nested parent should be dropped since breadcrumb length > 2")
}

func TestApplySelected_NoSelectionRemovesWholeStream(t *testing.T) {
	cat := ordersUsersCatalog()
	ApplySelected(cat, []string{"nothing.matches"}, PRUNE)
	assert.Empty(t, cat.Streams)
}
