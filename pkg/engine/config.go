// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/alto/internal/errors"
	"github.com/kraklabs/alto/pkg/settings"
)

// RenderConfig renders plugin's config map against ctx, walking nested
// maps/slices and passing every string value through
// settings.RenderConfig when it looks like a template (contains "{{").
// Plain values pass through untouched, so a config doesn't pay the
// templating cost for fields that never use it.
func RenderConfig(plugin map[string]any, ctx settings.RenderContext) (map[string]any, error) {
	rendered, err := renderValue(plugin, ctx)
	if err != nil {
		return nil, err
	}
	out, ok := rendered.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return out, nil
}

func renderValue(v any, ctx settings.RenderContext) (any, error) {
	switch val := v.(type) {
	case string:
		if !strings.Contains(val, "{{") {
			return val, nil
		}
		return settings.RenderConfig(val, ctx)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			rv, err := renderValue(vv, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			rv, err := renderValue(vv, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// RenderAndWriteConfig renders target's config — in the context of
// accent when accent is non-nil (the other side of a tap/target pair,
// per config:<target>--<tap>) — and writes it to configPath as JSON.
// It returns the rendered map so the caller can fold it into a
// ConfigChanged up-to-date signature.
func RenderAndWriteConfig(target *settings.Plugin, accent *settings.Plugin, configPath, env, projectID string) (map[string]any, error) {
	loadPath := target.Name
	if accent != nil {
		loadPath = accent.Name
	}

	rendered, err := RenderConfig(target.Config, settings.RenderContext{
		Plugin:    target.Config,
		Env:       env,
		LoadPath:  loadPath,
		ProjectID: projectID,
	})
	if err != nil {
		return nil, errors.NewConfigError(
			"failed to render config for plugin "+target.Name,
			err.Error(),
			"check the plugin's config template fields",
			err,
		)
	}

	raw, err := json.MarshalIndent(rendered, "", "  ")
	if err != nil {
		return nil, errors.NewConfigError("failed to serialize rendered config", err.Error(), "", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return nil, errors.NewConfigError("failed to create config directory", err.Error(), "", err)
	}
	if err := os.WriteFile(configPath, raw, 0o644); err != nil {
		return nil, errors.NewConfigError("failed to write rendered config", err.Error(), "", err)
	}
	return rendered, nil
}
