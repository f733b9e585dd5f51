// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

// Package main is a thin smoke-test entrypoint wiring settings, the
// engine, and the task runner together. Argument parsing, help
// rendering, and the REPL are out of scope; this only demonstrates
// bootstrap.Load -> engine.New -> Engine.RunTask for manual use.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/pflag"

	"github.com/kraklabs/alto/internal/bootstrap"
	"github.com/kraklabs/alto/internal/output"
	"github.com/kraklabs/alto/internal/ui"
	"github.com/kraklabs/alto/pkg/engine"
)

func main() {
	var (
		projectDir = pflag.StringP("project", "p", "", "project directory (default: walk up from cwd for alto.yml)")
		buildCmd   = pflag.String("build-cmd", "pex", "external command used to build plugin binaries")
		pipelineID = pflag.String("pipeline-id", "", "identifier tagging this run's logs (default: timestamp)")
		jsonOut    = pflag.Bool("json", false, "emit machine-readable JSON summaries instead of console logging")
	)
	pflag.Parse()

	if err := run(*projectDir, *buildCmd, *pipelineID, *jsonOut, pflag.Args()); err != nil {
		if *jsonOut {
			_ = output.JSONError(err)
		} else {
			fmt.Fprintln(os.Stderr, "alto:", err)
		}
		os.Exit(1)
	}
}

// taskSummary is the --json shape for one completed task.
type taskSummary struct {
	Task     string `json:"task"`
	Ran      bool   `json:"ran"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

func run(projectDir, buildCmd, pipelineID string, jsonOut bool, tasks []string) error {
	if len(tasks) == 0 {
		return fmt.Errorf("usage: alto [flags] <task>...")
	}

	root, err := bootstrap.FindRoot(projectDir)
	if err != nil {
		return err
	}
	proj, err := bootstrap.Load(root)
	if err != nil {
		return err
	}

	ctx := context.Background()
	sigDB, err := bootstrap.LoadSignatureDB(ctx, proj)
	if err != nil {
		return err
	}

	if pipelineID == "" {
		pipelineID = time.Now().UTC().Format("20060102150405")
	}

	console := ui.NewConsole(os.Stderr)
	eng := engine.New(proj.Settings, proj.Store, proj.WorkDir, console, sigDB, pipelineID)
	eng.BuildCmd = buildCmd
	eng.ProjectID = proj.ProjectID

	var failed bool
	for _, name := range tasks {
		results, err := eng.RunTask(ctx, name)
		if err != nil {
			_ = bootstrap.SaveSignatureDB(ctx, proj, sigDB)
			return err
		}

		for _, taskName := range sortedKeys(results) {
			res := results[taskName]
			status := "up-to-date"
			if res.Ran {
				status = "done"
			}
			if res.Err != nil {
				status = "failed"
				failed = true
			}

			if jsonOut {
				summary := taskSummary{Task: taskName, Ran: res.Ran, Status: status, Duration: res.Duration.String()}
				if res.Err != nil {
					summary.Error = res.Err.Error()
				}
				_ = output.JSON(summary)
			} else if res.Err != nil {
				fmt.Fprintf(os.Stderr, "alto: %s failed: %v\n", taskName, res.Err)
			}
		}
	}

	if err := bootstrap.SaveSignatureDB(ctx, proj, sigDB); err != nil {
		return err
	}
	if failed {
		return fmt.Errorf("one or more tasks failed")
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
