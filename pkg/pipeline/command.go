// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

// Package pipeline implements Alto's subprocess pipeline runtime: command
// assembly, environment construction, the tap/target process pair, the
// in-process map splice, and the run state machine, per spec §4.G.
package pipeline

import (
	"os"
	"strings"

	"github.com/kraklabs/alto/pkg/settings"
)

// TapArgs assembles a tap's command-line flags per spec §4.G. statePath
// and catalogPath are only appended when hasLocalState/the plugin's
// capabilities call for them.
func TapArgs(p *settings.Plugin, configPath, statePath, catalogPath string, hasLocalState bool) []string {
	args := []string{"--config", configPath}
	if hasLocalState && p.Has("state") {
		args = append(args, "--state", statePath)
	}
	switch {
	case p.Has("catalog"):
		args = append(args, "--catalog", catalogPath)
	case p.Has("properties"):
		args = append(args, "--properties", catalogPath)
	}
	return args
}

// TargetArgs assembles a target's command-line flags per spec §4.G.
func TargetArgs(configPath string) []string {
	return []string{"--config", configPath}
}

// BuildEnv constructs a plugin's process environment: the inherited
// environment plus PEX_MODULE or PEX_SCRIPT (depending on whether the
// entrypoint looks like a dotted module path or a console-script name)
// and ALTO_PLUGIN, per spec §4.G.
func BuildEnv(p *settings.Plugin) []string {
	env := append([]string{}, os.Environ()...)
	if strings.Contains(p.Entrypoint, ".") {
		env = append(env, "PEX_MODULE="+p.Entrypoint)
	} else {
		env = append(env, "PEX_SCRIPT="+p.Entrypoint)
	}
	env = append(env, "ALTO_PLUGIN="+p.Name)
	return env
}
