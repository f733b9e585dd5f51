// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kraklabs/alto/pkg/settings"
)

func TestTapArgs_StateAndCatalog(t *testing.T) {
	tap := &settings.Plugin{
		Name:         "tap-foo",
		Capabilities: map[string]bool{"state": true, "catalog": true},
	}
	args := TapArgs(tap, "config.json", "state.json", "catalog.json", true)
	assert.Equal(t, []string{"--config", "config.json", "--state", "state.json", "--catalog", "catalog.json"}, args)
}

func TestTapArgs_PropertiesFallback(t *testing.T) {
	tap := &settings.Plugin{
		Name:         "tap-foo",
		Capabilities: map[string]bool{"properties": true},
	}
	args := TapArgs(tap, "config.json", "state.json", "catalog.json", false)
	assert.Equal(t, []string{"--config", "config.json", "--properties", "catalog.json"}, args)
}

func TestTapArgs_NoStateWithoutLocalState(t *testing.T) {
	tap := &settings.Plugin{
		Name:         "tap-foo",
		Capabilities: map[string]bool{"state": true},
	}
	args := TapArgs(tap, "config.json", "state.json", "catalog.json", false)
	assert.Equal(t, []string{"--config", "config.json"}, args)
}

func TestTargetArgs(t *testing.T) {
	assert.Equal(t, []string{"--config", "target.json"}, TargetArgs("target.json"))
}

func TestBuildEnv_ModuleVsScript(t *testing.T) {
	module := &settings.Plugin{Name: "tap-foo", Entrypoint: "tap_foo.main"}
	envModule := BuildEnv(module)
	assert.Contains(t, envModule, "PEX_MODULE=tap_foo.main")
	assert.Contains(t, envModule, "ALTO_PLUGIN=tap-foo")

	script := &settings.Plugin{Name: "tap-bar", Entrypoint: "tap-bar"}
	envScript := BuildEnv(script)
	assert.Contains(t, envScript, "PEX_SCRIPT=tap-bar")
}
