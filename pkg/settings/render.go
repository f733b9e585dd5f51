// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"bytes"
	"sync"
	"text/template"
)

// renderMu serializes RenderConfig calls. Templates read the load path
// from RenderContext.LoadPath ({{.LoadPath}}); no process-wide slot is
// mutated during a render.
var renderMu sync.Mutex

// RenderContext is the data made available to a plugin's config
// template: the plugin's own config map plus ambient values like the
// environment name and project root.
type RenderContext struct {
	Plugin    map[string]any
	Env       string
	LoadPath  string
	ProjectID string
}

// RenderConfig renders tmplSrc (a Go text/template string embedded in a
// plugin's config) against ctx. Calls are serialized by renderMu.
func RenderConfig(tmplSrc string, ctx RenderContext) (string, error) {
	renderMu.Lock()
	defer renderMu.Unlock()

	tmpl, err := template.New("config").Parse(tmplSrc)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}
