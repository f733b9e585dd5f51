// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package reservoir

import (
	"context"

	"github.com/kraklabs/alto/internal/errors"
	"github.com/kraklabs/alto/pkg/store"
)

// AcquireLock implements the advisory, existence-check lock from spec
// §4.H/§9: it aborts if a lock object is already present, otherwise
// writes pipelineID as its contents. This races on eventually
// consistent stores; a store backed by a conditional-PUT primitive
// could close that race, but Store exposes none today, so this is
// best-effort, matching spec §9's "Reservoir lock" design note.
func AcquireLock(ctx context.Context, st store.Store, lockPath, pipelineID string) error {
	held, err := st.Exists(ctx, lockPath)
	if err != nil {
		return errors.NewStoreError("failed to probe reservoir lock", err.Error(), "", err)
	}
	if held {
		recordLockContention()
		return errors.NewReservoirLockedError(
			"reservoir is locked",
			lockPath+" already exists",
			"wait for the holding pipeline to finish, or remove the lock file if it is stale",
		)
	}
	if err := st.Pipe(ctx, lockPath, []byte(pipelineID)); err != nil {
		return errors.NewStoreError("failed to write reservoir lock", err.Error(), "", err)
	}
	return nil
}

// ReleaseLock removes the lock object. Called unconditionally during
// cleanup, even when the ingest or compaction it guarded failed.
func ReleaseLock(ctx context.Context, st store.Store, lockPath string) error {
	return st.Rm(ctx, lockPath)
}
