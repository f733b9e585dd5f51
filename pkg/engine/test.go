// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kraklabs/alto/internal/errors"
)

// RunTest shells out to a tap binary with --config --test, for plugins
// with the "test" capability (test:<tap> in the task table).
func RunTest(ctx context.Context, binPath, configPath string) error {
	cmd := exec.CommandContext(ctx, binPath, "--config", configPath, "--test")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.NewPipelineError(
			fmt.Sprintf("tap %q --test failed", binPath),
			strings.TrimSpace(string(out)),
			"",
			err,
		)
	}
	return nil
}
