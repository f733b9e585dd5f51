// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package catalog

import "encoding/json"

// Wire shapes mirror the Singer catalog.json convention (tap_stream_id,
// schema, metadata list of {breadcrumb, metadata}), independent of the
// Go-idiomatic field names Catalog/Stream/MetadataEntry use internally.

type wireMetadataEntry struct {
	Breadcrumb []string       `json:"breadcrumb"`
	Metadata   map[string]any `json:"metadata"`
}

type wireStream struct {
	TapStreamID       string              `json:"tap_stream_id"`
	Stream            string              `json:"stream,omitempty"`
	Schema            map[string]any      `json:"schema"`
	Metadata          []wireMetadataEntry `json:"metadata"`
	KeyProperties     []string            `json:"key_properties,omitempty"`
	ReplicationKey    string              `json:"replication_key,omitempty"`
	ReplicationMethod string              `json:"replication_method,omitempty"`
}

type wireCatalog struct {
	Streams []wireStream `json:"streams"`
}

// MarshalJSON renders cat in Singer catalog.json shape.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	w := wireCatalog{Streams: make([]wireStream, len(c.Streams))}
	for i, s := range c.Streams {
		ws := wireStream{
			TapStreamID:       s.TapStreamID,
			Stream:            s.TapStreamID,
			Schema:            s.Schema,
			KeyProperties:     s.KeyProperties,
			ReplicationKey:    s.ReplicationKey,
			ReplicationMethod: string(s.ReplicationMethod),
			Metadata:          make([]wireMetadataEntry, len(s.Metadata)),
		}
		for j, e := range s.Metadata {
			ws.Metadata[j] = wireMetadataEntry{Breadcrumb: e.Breadcrumb, Metadata: e.Metadata}
		}
		w.Streams[i] = ws
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses a Singer catalog.json document, either a fresh
// tap discovery output or a previously applied catalog round-tripped
// through the object store.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	var w wireCatalog
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Streams = make([]*Stream, len(w.Streams))
	for i, ws := range w.Streams {
		id := ws.TapStreamID
		if id == "" {
			id = ws.Stream
		}
		s := &Stream{
			TapStreamID:       id,
			Schema:            ws.Schema,
			KeyProperties:     ws.KeyProperties,
			ReplicationKey:    ws.ReplicationKey,
			ReplicationMethod: ReplicationMethod(ws.ReplicationMethod),
			Metadata:          make([]*MetadataEntry, len(ws.Metadata)),
		}
		for j, we := range ws.Metadata {
			s.Metadata[j] = &MetadataEntry{Breadcrumb: we.Breadcrumb, Metadata: we.Metadata}
		}
		if sel, ok := s.RootMetadata().Selected(); ok {
			s.Selected = sel
		}
		c.Streams[i] = s
	}
	return nil
}
