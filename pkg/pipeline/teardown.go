// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bufio"
	"context"
	"os"
	"time"

	"github.com/kraklabs/alto/internal/errors"
	"github.com/kraklabs/alto/pkg/paths"
	"github.com/kraklabs/alto/pkg/state"
	"github.com/kraklabs/alto/pkg/store"
)

// TeardownState implements the post-run state handling from spec
// §4.G: when present and non-empty, the run's state-*.log is parsed,
// deep-merged into the existing local state (loading/unwrapping it
// first), written back, and uploaded as a mutable copy plus a
// timestamped immutable copy. It is a no-op when stateLogPath is
// absent or empty, which is the normal case for taps without the
// "state" capability.
func TeardownState(ctx context.Context, st store.Store, stateLogPath, localStatePath string, now time.Time) error {
	info, err := os.Stat(stateLogPath)
	if err != nil || info.Size() == 0 {
		return nil
	}

	f, err := os.Open(stateLogPath)
	if err != nil {
		return errors.NewStateMergeError("failed to open state log", err.Error(), "", err)
	}
	defer f.Close()

	parsed, err := state.ParseTargetOutput(bufio.NewReader(f))
	if err != nil {
		return err
	}

	existing := state.Doc{}
	if raw, err := st.Cat(ctx, localStatePath); err == nil {
		if loaded, lerr := state.Load(raw); lerr == nil {
			existing = loaded
		}
	}

	merged := state.DeepMerge(existing, parsed)
	out, err := state.Marshal(merged)
	if err != nil {
		return errors.NewStateMergeError("failed to marshal merged state", err.Error(), "", err)
	}

	if err := st.Pipe(ctx, localStatePath, out); err != nil {
		return errors.NewStoreError("failed to write local state", err.Error(), "", err)
	}
	immutablePath := state.ImmutableCopyPath(localStatePath, now)
	if err := st.Pipe(ctx, immutablePath, out); err != nil {
		return errors.NewStoreError("failed to write immutable state copy", err.Error(), "", err)
	}

	return os.Remove(stateLogPath)
}

// UploadLogs uploads the tap and target log files to
// <ts>--<plugin>--<pipeline_id>.log and unlinks the local copies, per
// spec §4.G. It is best-effort: it returns the first error encountered
// but still attempts every remaining log.
func UploadLogs(ctx context.Context, st store.Store, env, pipelineID string, logs map[string]string, now time.Time) error {
	var firstErr error
	for pluginName, localPath := range logs {
		data, err := os.ReadFile(localPath)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		remotePath := paths.UploadedLog(env, pluginName, pipelineID, now)
		if err := st.Pipe(ctx, remotePath, data); err != nil {
			if firstErr == nil {
				firstErr = errors.NewStoreError("failed to upload log", err.Error(), "", err)
			}
			continue
		}
		if err := os.Remove(localPath); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
