// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"fmt"
	"strings"

	"github.com/kraklabs/alto/internal/errors"
	"github.com/kraklabs/alto/pkg/streammap"
)

// Kind identifies what role a plugin plays in a pipeline.
type Kind string

const (
	Tap     Kind = "TAP"
	Target  Kind = "TARGET"
	Utility Kind = "UTILITY"
)

// Plugin is a named, typed executable: a tap, target, or utility. It
// carries everything the task engine and pipeline runtime need to build,
// configure, and invoke it, per spec §3 (Plugin).
type Plugin struct {
	Name         string
	Kind         Kind
	Requirement  string
	InheritFrom  string
	Capabilities map[string]bool
	Select       []string
	Metadata     map[string]map[string]any
	Config       map[string]any
	Entrypoint   string
}

// Has reports whether p declares the named capability.
func (p *Plugin) Has(capability string) bool {
	return p.Capabilities != nil && p.Capabilities[capability]
}

// StreamMaps builds the stream-map chain for p's "~<stream-glob>
// [.<field-glob>]" select patterns, wiring them into the built-in
// PII-hash map (spec §4.F). Returns nil when p declares no such
// patterns, so callers can skip splicing a chain into the pipeline or
// reservoir ingestor entirely.
func (p *Plugin) StreamMaps() *streammap.Chain {
	var selectors []string
	for _, s := range p.Select {
		if strings.HasPrefix(s, "~") {
			selectors = append(selectors, strings.TrimPrefix(s, "~"))
		}
	}
	if len(selectors) == 0 {
		return nil
	}
	return &streammap.Chain{Maps: []streammap.Map{streammap.NewPIIHashMap(selectors)}}
}

// Validate enforces that non-utility plugins carry a requirement
// string, per spec §4.C: "fail with a precise error when a plugin has
// no requirements string (except utility plugins, where it is optional)".
func (p *Plugin) Validate() error {
	if p.Requirement == "" && p.Kind != Utility {
		return errors.NewConfigError(
			fmt.Sprintf("plugin %q has no requirement", p.Name),
			fmt.Sprintf("%s plugins must declare a requirement string", p.Kind),
			"add a requirement (e.g. a PyPI package spec) to the plugin definition",
			nil,
		)
	}
	return nil
}

// ResolvePlugin follows p.InheritFrom through plugins, merging the
// parent spec with p's own fields (own wins key-by-key), and rejects
// inheritance cycles at load per spec §3's invariant.
func ResolvePlugin(plugins map[string]*Plugin, name string) (*Plugin, error) {
	visited := map[string]int{} // 0=unvisited,1=in-progress,2=done
	return resolveChain(plugins, name, visited)
}

func resolveChain(plugins map[string]*Plugin, name string, visited map[string]int) (*Plugin, error) {
	if visited[name] == 1 {
		return nil, errors.NewConfigError(
			fmt.Sprintf("inherit_from cycle detected at plugin %q", name),
			"a plugin's inherit_from chain refers back to itself",
			"break the cycle in the plugin definitions",
			nil,
		)
	}
	p, ok := plugins[name]
	if !ok {
		return nil, errors.NewConfigError(
			fmt.Sprintf("unknown plugin %q", name),
			"no plugin with that name is defined",
			"check the plugin name for typos",
			nil,
		)
	}
	if p.InheritFrom == "" {
		return p, nil
	}

	visited[name] = 1
	parent, err := resolveChain(plugins, p.InheritFrom, visited)
	if err != nil {
		return nil, err
	}
	visited[name] = 2

	return mergePlugin(parent, p), nil
}

// mergePlugin returns parent + own, with own winning key by key.
func mergePlugin(parent, own *Plugin) *Plugin {
	merged := &Plugin{
		Name:         own.Name,
		Kind:         parent.Kind,
		Requirement:  parent.Requirement,
		Capabilities: mergeBoolSet(parent.Capabilities, own.Capabilities),
		Select:       own.Select,
		Metadata:     mergeMetadata(parent.Metadata, own.Metadata),
		Config:       mergeAny(parent.Config, own.Config),
		Entrypoint:   parent.Entrypoint,
	}
	if own.Kind != "" {
		merged.Kind = own.Kind
	}
	if own.Requirement != "" {
		merged.Requirement = own.Requirement
	}
	if own.Entrypoint != "" {
		merged.Entrypoint = own.Entrypoint
	}
	if len(own.Select) == 0 {
		merged.Select = parent.Select
	}
	return merged
}

func mergeBoolSet(parent, own map[string]bool) map[string]bool {
	out := make(map[string]bool, len(parent)+len(own))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range own {
		out[k] = v
	}
	return out
}

func mergeMetadata(parent, own map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(parent)+len(own))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range own {
		out[k] = v
	}
	return out
}

func mergeAny(parent, own map[string]any) map[string]any {
	out := make(map[string]any, len(parent)+len(own))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range own {
		out[k] = v
	}
	return out
}
