// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/kraklabs/alto/internal/errors"
)

// RunAbout shells out to a plugin binary with --about --config,
// parsing its stdout as JSON, for plugins with the "about" capability
// (about:<tap> in the task table).
func RunAbout(ctx context.Context, binPath, configPath string) (map[string]any, error) {
	cmd := exec.CommandContext(ctx, binPath, "--about", "--config", configPath)
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.NewPipelineError(
			fmt.Sprintf("plugin %q --about failed", binPath),
			stderrOf(err),
			"",
			err,
		)
	}

	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		return nil, errors.NewDecodeError("failed to parse --about output", err.Error(), err)
	}
	return doc, nil
}

func stderrOf(err error) string {
	if ee, ok := err.(*exec.ExitError); ok {
		return string(ee.Stderr)
	}
	return err.Error()
}
