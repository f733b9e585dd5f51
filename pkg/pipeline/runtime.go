// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/kraklabs/alto/internal/errors"
	"github.com/kraklabs/alto/internal/ui"
	"github.com/kraklabs/alto/pkg/streammap"
)

// Stage identifies a step in the single-pipeline-run state machine from
// spec §4.G: INIT → FETCH_STATE → START_TAP & START_TARGET → STREAM →
// TEARDOWN_STATE → UPLOAD_LOGS → DONE.
type Stage string

const (
	StageInit          Stage = "INIT"
	StageFetchState    Stage = "FETCH_STATE"
	StageStart         Stage = "START"
	StageStream        Stage = "STREAM"
	StageTeardownState Stage = "TEARDOWN_STATE"
	StageUploadLogs    Stage = "UPLOAD_LOGS"
	StageDone          Stage = "DONE"
)

// RunSpec describes one tap→target invocation.
type RunSpec struct {
	PipelineID string

	TapName          string
	TapBinary        string
	TapArgs          []string
	TapEnv           []string
	TapSupportsState bool

	TargetName   string
	TargetBinary string
	TargetArgs   []string
	TargetEnv    []string

	// Chain is nil (or empty) when no maps apply; in that case tap
	// stdout is connected directly to target stdin.
	Chain *streammap.Chain

	TapLogPath    string
	TargetLogPath string
	StateLogPath  string // per-run state-<pipeline_id>.log, parsed by teardown
}

// Runtime executes pipeline runs, serializing stderr output from both
// processes through a shared console so their bytes never interleave.
type Runtime struct {
	Console *ui.Console
}

// Run executes spec's tap→target pair to completion. Failure at any
// stage surfaces the originating error; the caller is still expected
// to attempt log upload afterward (best effort), per spec §4.G.
func (rt *Runtime) Run(ctx context.Context, spec RunSpec) (stage Stage, err error) {
	stage = StageInit

	tapCmd := exec.CommandContext(ctx, spec.TapBinary, spec.TapArgs...)
	tapCmd.Env = spec.TapEnv
	targetCmd := exec.CommandContext(ctx, spec.TargetBinary, spec.TargetArgs...)
	targetCmd.Env = spec.TargetEnv

	tapStdout, err := tapCmd.StdoutPipe()
	if err != nil {
		return stage, errors.NewPipelineError("failed to open tap stdout", err.Error(), "", err)
	}
	tapStderr, err := tapCmd.StderrPipe()
	if err != nil {
		return stage, errors.NewPipelineError("failed to open tap stderr", err.Error(), "", err)
	}
	targetStdin, err := targetCmd.StdinPipe()
	if err != nil {
		return stage, errors.NewPipelineError("failed to open target stdin", err.Error(), "", err)
	}
	targetStderr, err := targetCmd.StderrPipe()
	if err != nil {
		return stage, errors.NewPipelineError("failed to open target stderr", err.Error(), "", err)
	}

	stateLog, err := os.Create(spec.StateLogPath)
	if err != nil {
		return stage, errors.NewPipelineError("failed to open state log", err.Error(), "", err)
	}
	defer stateLog.Close()
	targetCmd.Stdout = stateLog

	stage = StageStart
	if err := tapCmd.Start(); err != nil {
		return stage, errors.NewPipelineError(fmt.Sprintf("tap %q failed to start", spec.TapName), err.Error(), "check the tap binary and its config", err)
	}
	if err := targetCmd.Start(); err != nil {
		return stage, errors.NewPipelineError(fmt.Sprintf("target %q failed to start", spec.TargetName), err.Error(), "check the target binary and its config", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); rt.drainStderr(spec.TapName, tapStderr, spec.TapLogPath) }()
	go func() { defer wg.Done(); rt.drainStderr(spec.TargetName, targetStderr, spec.TargetLogPath) }()

	stage = StageStream
	spliceErrCh := make(chan error, 1)
	go func() {
		defer targetStdin.Close()
		if spec.Chain != nil && len(spec.Chain.Maps) > 0 {
			spliceErrCh <- Splice(tapStdout, targetStdin, spec.Chain)
		} else {
			_, err := io.Copy(targetStdin, tapStdout)
			spliceErrCh <- err
		}
	}()

	// Every pipe must be fully drained before Wait is called on the
	// owning command (os/exec: reads from a Std*Pipe must complete
	// before Wait, since Wait closes the pipe on process exit).
	spliceErr := <-spliceErrCh
	wg.Wait()
	tapErr := tapCmd.Wait()
	targetErr := targetCmd.Wait()

	if tapErr != nil {
		return stage, errors.NewPipelineError(fmt.Sprintf("tap %q exited non-zero", spec.TapName), tapErr.Error(), "", tapErr)
	}
	if spliceErr != nil && spliceErr != io.EOF {
		return stage, errors.NewPipelineError("map splice failed", spliceErr.Error(), "", spliceErr)
	}
	if targetErr != nil {
		return stage, errors.NewPipelineError(fmt.Sprintf("target %q exited non-zero", spec.TargetName), targetErr.Error(), "", targetErr)
	}

	return StageDone, nil
}

// drainStderr copies a process's stderr pipe into both a per-run log
// file and the shared console, one line at a time so the console
// never interleaves bytes belonging to different processes.
func (rt *Runtime) drainStderr(tag string, r io.Reader, logPath string) {
	f, err := os.Create(logPath)
	if err != nil {
		rt.Console.WriteLine(tag, fmt.Sprintf("(failed to open log %s: %v)", logPath, err))
		f = nil
	}
	if f != nil {
		defer f.Close()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if f != nil {
			fmt.Fprintln(f, line)
		}
		rt.Console.WriteLine(tag, line)
	}
}

