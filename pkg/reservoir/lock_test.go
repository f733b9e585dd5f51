// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package reservoir

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/alto/internal/errors"
	"github.com/kraklabs/alto/pkg/store"
)

func TestAcquireLock_SucceedsThenRejectsSecondHolder(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	require.NoError(t, AcquireLock(ctx, st, "reservoir/dev/tap-foo/_reservoir.lock", "run-1"))

	err := AcquireLock(ctx, st, "reservoir/dev/tap-foo/_reservoir.lock", "run-2")
	require.Error(t, err)
	var altoErr *errors.AltoError
	require.ErrorAs(t, err, &altoErr)
	assert.Equal(t, errors.KindReservoirLocked, altoErr.Kind)
}

func TestReleaseLock_AllowsReacquire(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	lockPath := "reservoir/dev/tap-foo/_reservoir.lock"

	require.NoError(t, AcquireLock(ctx, st, lockPath, "run-1"))
	require.NoError(t, ReleaseLock(ctx, st, lockPath))
	require.NoError(t, AcquireLock(ctx, st, lockPath, "run-2"))
}
