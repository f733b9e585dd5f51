// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"time"

	"github.com/kraklabs/alto/pkg/store"
)

// ExecuteSpec bundles a RunSpec with the extra state needed to carry it
// through teardown and log upload: the local path the pipeline's merged
// state document lives at, and the environment name logs are archived
// under.
type ExecuteSpec struct {
	RunSpec
	Env            string
	LocalStatePath string // used only when TapSupportsState is set
}

// Execute runs one full pipeline lifecycle: INIT → START → STREAM →
// TEARDOWN_STATE → UPLOAD_LOGS → DONE, per spec §4.G. Log upload is
// always attempted, even when the run itself failed, so operators can
// inspect a failed run's output; the run's own error takes priority
// over any upload error when both occur.
func Execute(ctx context.Context, rt *Runtime, st store.Store, spec ExecuteSpec, now time.Time) (Stage, error) {
	stage, runErr := rt.Run(ctx, spec.RunSpec)

	logs := map[string]string{
		spec.TapName:    spec.TapLogPath,
		spec.TargetName: spec.TargetLogPath,
	}

	if runErr != nil {
		_ = UploadLogs(ctx, st, spec.Env, spec.PipelineID, logs, now)
		return stage, runErr
	}

	stage = StageTeardownState
	if spec.TapSupportsState && spec.LocalStatePath != "" {
		if err := TeardownState(ctx, st, spec.StateLogPath, spec.LocalStatePath, now); err != nil {
			_ = UploadLogs(ctx, st, spec.Env, spec.PipelineID, logs, now)
			return stage, err
		}
	}

	stage = StageUploadLogs
	if err := UploadLogs(ctx, st, spec.Env, spec.PipelineID, logs, now); err != nil {
		return stage, err
	}

	return StageDone, nil
}
