// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
env:
  project_id: my-project
  plugins:
    buffer_size: 10000
environments:
  prod:
    plugins:
      buffer_size: 50000
secrets:
  api_key: shh
`

func TestLoad_Merged(t *testing.T) {
	s, err := Load([]byte(sampleYAML))
	require.NoError(t, err)
	s.Env = "prod"

	merged := s.Merged()
	plugins := merged["plugins"].(Raw)
	assert.EqualValues(t, 50000, plugins["buffer_size"])
	assert.Equal(t, "shh", merged["api_key"])
	assert.Equal(t, "my-project", merged["project_id"])
}

func TestLoad_DefaultEnvUnaffectedByProdLayer(t *testing.T) {
	s, err := Load([]byte(sampleYAML))
	require.NoError(t, err)
	s.Env = "dev"

	merged := s.Merged()
	plugins := merged["plugins"].(Raw)
	assert.EqualValues(t, 10000, plugins["buffer_size"])
}

func TestOverlayEnvVars_HyphenAndNesting(t *testing.T) {
	t.Setenv("ALTO_PLUGINS__BUFFER_SIZE", "99")
	t.Setenv("ALTO_SELECTED_BY_DEFAULT", "true")

	s, err := Load([]byte(sampleYAML))
	require.NoError(t, err)
	merged := s.Merged()

	plugins := merged["plugins"].(Raw)
	assert.Equal(t, "99", plugins["buffer_size"])
	assert.Equal(t, "true", merged["selected-by-default"])
}

func TestEnvOf(t *testing.T) {
	os.Unsetenv("ALTO_ENV")
	assert.Equal(t, DefaultEnv, EnvOf())

	t.Setenv("ALTO_ENV", "staging")
	assert.Equal(t, "staging", EnvOf())
}
