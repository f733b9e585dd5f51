// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// FakeTap writes an executable shell script at dir/name that ignores
// its flags and prints the given SCHEMA/RECORD/STATE lines (one per
// call) to stdout, mimicking a minimal Singer tap.
func FakeTap(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	return writeFakeScript(t, dir, name, linesScript(lines))
}

// FakeTarget writes an executable shell script at dir/name that drains
// stdin and, if stateLine is non-empty, emits it as the sole STATE
// message on stdout, mimicking a minimal Singer target.
func FakeTarget(t *testing.T, dir, name, stateLine string) string {
	t.Helper()
	body := "cat > /dev/null\n"
	if stateLine != "" {
		body += fmt.Sprintf("echo %s\n", shQuote(stateLine))
	}
	return writeFakeScript(t, dir, name, body)
}

// FakeDiscoverTap writes an executable shell script that prints
// catalogJSON on stdout whatever flags it is given, standing in for a
// tap's --discover mode.
func FakeDiscoverTap(t *testing.T, dir, name, catalogJSON string) string {
	t.Helper()
	body := fmt.Sprintf("echo %s\n", shQuote(catalogJSON))
	return writeFakeScript(t, dir, name, body)
}

func linesScript(lines []string) string {
	var body string
	for _, l := range lines {
		body += fmt.Sprintf("echo %s\n", shQuote(l))
	}
	return body
}

func writeFakeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake script %s: %v", path, err)
	}
	return path
}

func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ScaffoldProject creates a temp directory containing an alto.yml with
// the given raw YAML body, returning the project root.
func ScaffoldProject(t *testing.T, manifestYAML string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "alto.yml"), []byte(manifestYAML), 0o644); err != nil {
		t.Fatalf("write alto.yml: %v", err)
	}
	return dir
}
