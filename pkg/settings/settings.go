// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

// Package settings implements Alto's layered configuration and plugin
// model, per spec §4.C. The configuration-file loader itself (finding
// and reading alto.yml off disk, merging includes) is out of scope; this
// package consumes an already-parsed document and a plugin map and
// exposes the merge/override/render behavior the engine depends on.
package settings

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultEnv is used when ALTO_ENV is unset.
const DefaultEnv = "dev"

// Raw is a parsed, not-yet-merged configuration document.
type Raw map[string]any

// Settings is the merge-enabled, environment-switchable configuration
// view: Env selects which Envs layer is overlaid on Defaults, and
// Secrets is overlaid last, matching spec §4.C.
type Settings struct {
	Env     string
	Defaults Raw
	Envs    map[string]Raw
	Secrets Raw
	Plugins map[string]*Plugin
}

// EnvOf returns ALTO_ENV, or DefaultEnv if unset.
func EnvOf() string {
	if v := os.Getenv("ALTO_ENV"); v != "" {
		return v
	}
	return DefaultEnv
}

// Load parses a YAML settings document. The document shape is:
//
//	env: {}                 # base/default layer
//	environments:
//	  prod: {}               # per-env overlay
//	secrets: {}              # overlaid last
func Load(data []byte) (*Settings, error) {
	var doc struct {
		Env          Raw            `yaml:"env"`
		Environments map[string]Raw `yaml:"environments"`
		Secrets      Raw            `yaml:"secrets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &Settings{
		Env:      EnvOf(),
		Defaults: doc.Env,
		Envs:     doc.Environments,
		Secrets:  doc.Secrets,
		Plugins:  map[string]*Plugin{},
	}, nil
}

// Merged returns the fully merged configuration: Defaults, overlaid by
// the selected env layer, overlaid by Secrets, overlaid by ALTO_*
// environment variables.
func (s *Settings) Merged() Raw {
	out := deepCopy(s.Defaults)
	if layer, ok := s.Envs[s.Env]; ok {
		out = overlay(out, layer)
	}
	out = overlay(out, s.Secrets)
	out = overlayEnvVars(out, os.Environ())
	return out
}

func deepCopy(r Raw) Raw {
	out := Raw{}
	for k, v := range r {
		if m, ok := asMap(v); ok {
			out[k] = deepCopy(Raw(m))
			continue
		}
		out[k] = v
	}
	return out
}

// overlay merges src onto dst: maps recurse, everything else is replaced.
func overlay(dst, src Raw) Raw {
	if dst == nil {
		dst = Raw{}
	}
	for k, sv := range src {
		if sm, ok := asMap(sv); ok {
			if dm, ok := asMap(dst[k]); ok {
				dst[k] = overlay(Raw(dm), Raw(sm))
				continue
			}
		}
		dst[k] = sv
	}
	return dst
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Raw:
		return m, true
	default:
		return nil, false
	}
}

// overlayEnvVars applies ALTO_<KEY>__<NESTED> style overrides: each
// double-underscore-separated segment is a nested key, lowercased. A
// segment names an existing key spelled with underscores if there is
// one; otherwise its underscores become hyphens, so keys with hyphens
// are written with underscores in the variable name.
func overlayEnvVars(dst Raw, environ []string) Raw {
	for _, kv := range environ {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		key, val := kv[:idx], kv[idx+1:]
		if !strings.HasPrefix(key, "ALTO_") {
			continue
		}
		rest := strings.TrimPrefix(key, "ALTO_")
		if rest == "ENV" || rest == "MAX_WAIT" {
			continue // consumed directly by the engine, not merged into config
		}
		segments := strings.Split(rest, "__")
		setNested(dst, segments, val)
	}
	return dst
}

func setNested(dst Raw, segments []string, val string) {
	key := strings.ToLower(segments[0])
	if _, exists := dst[key]; !exists {
		key = strings.ReplaceAll(key, "_", "-")
	}
	if len(segments) == 1 {
		dst[key] = val
		return
	}
	child, ok := asMap(dst[key])
	if !ok {
		child = map[string]any{}
	}
	dst[key] = setNestedRaw(Raw(child), segments[1:], val)
}

func setNestedRaw(dst Raw, segments []string, val string) Raw {
	setNested(dst, segments, val)
	return dst
}
