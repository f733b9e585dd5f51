// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeTap_EmitsGivenLinesInOrder(t *testing.T) {
	dir := t.TempDir()
	path := FakeTap(t, dir, "fake-tap", `{"type":"SCHEMA"}`, `{"type":"RECORD"}`)

	out, err := exec.Command(path).Output()
	require.NoError(t, err)
	assert.Equal(t, "{\"type\":\"SCHEMA\"}\n{\"type\":\"RECORD\"}\n", string(out))
}

func TestFakeTarget_DrainsStdinAndEmitsState(t *testing.T) {
	dir := t.TempDir()
	path := FakeTarget(t, dir, "fake-target", `{"type":"STATE","value":{}}`)

	cmd := exec.Command(path)
	cmd.Stdin = strReader(`{"type":"RECORD"}` + "\n")
	out, err := cmd.Output()
	require.NoError(t, err)
	assert.Equal(t, "{\"type\":\"STATE\",\"value\":{}}\n", string(out))
}

func TestFakeTarget_NoStateLineEmitsNothing(t *testing.T) {
	dir := t.TempDir()
	path := FakeTarget(t, dir, "fake-target", "")

	out, err := exec.Command(path).Output()
	require.NoError(t, err)
	assert.Empty(t, string(out))
}

func TestFakeDiscoverTap_EmitsCatalogRegardlessOfFlags(t *testing.T) {
	dir := t.TempDir()
	catalogJSON := `{"streams":[]}`
	path := FakeDiscoverTap(t, dir, "fake-tap", catalogJSON)

	out, err := exec.Command(path, "--config", "irrelevant.json", "--discover").Output()
	require.NoError(t, err)
	assert.JSONEq(t, catalogJSON, string(out))
}

func TestScaffoldProject_WritesManifestAtRoot(t *testing.T) {
	root := ScaffoldProject(t, "project_id: test\n")

	data, err := os.ReadFile(filepath.Join(root, "alto.yml"))
	require.NoError(t, err)
	assert.Equal(t, "project_id: test\n", string(data))
}

func strReader(s string) *os.File {
	r, w, err := os.Pipe()
	if err != nil {
		panic(err)
	}
	go func() {
		defer w.Close()
		_, _ = w.WriteString(s)
	}()
	return r
}
