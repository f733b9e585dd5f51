// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package reservoir

import (
	"bytes"
	"context"
	"sort"

	"github.com/kraklabs/alto/internal/errors"
	"github.com/kraklabs/alto/pkg/paths"
	"github.com/kraklabs/alto/pkg/store"
)

// compactThreshold is the 25 MiB size ceiling below which a batch file
// is considered compactable, per spec §4.J.
const compactThreshold = 25 * 1024 * 1024

// CompactSpec names the reservoir to compact.
type CompactSpec struct {
	Env     string
	TapName string
}

// Compactor runs the reservoir compactor described in spec §4.J.
type Compactor struct{}

// Compact acquires the reservoir lock, merges runs of small batch
// files per schema partition, and bumps the index version if anything
// changed. A merge exception rebuilds the whole index from physical
// layout (per spec §9's compaction-failure-handling note) and the
// original error is still returned afterward so the caller can
// observe the underlying store issue, even though the rebuild itself
// succeeded.
func (c *Compactor) Compact(ctx context.Context, st store.Store, base string, spec CompactSpec, pipelineID string) error {
	lockPath := paths.ReservoirLock(spec.Env, spec.TapName)
	indexPath := paths.ReservoirIndex(spec.Env, spec.TapName)

	if err := AcquireLock(ctx, st, lockPath, pipelineID); err != nil {
		return err
	}
	defer ReleaseLock(ctx, st, lockPath)

	raw, err := st.Cat(ctx, indexPath)
	if err != nil {
		return nil // missing index: no-op, per spec §4.J
	}
	idx, err := LoadIndex(raw)
	if err != nil {
		return errors.NewDecodeError("reservoir index is not valid JSON", err.Error(), err)
	}

	streamNames := make([]string, 0, len(idx.Streams))
	for s := range idx.Streams {
		streamNames = append(streamNames, s)
	}
	sort.Strings(streamNames)

	changed := false
	var mergeErr error

streams:
	for _, streamName := range streamNames {
		streamPaths := append([]string(nil), idx.Streams[streamName]...)
		sort.Strings(streamPaths)
		for _, partition := range partitionBySchema(streamPaths) {
			removed, cerr := compactPartition(ctx, st, partition)
			if cerr != nil {
				mergeErr = cerr
				break streams
			}
			if len(removed) > 0 {
				changed = true
				idx.Streams[streamName] = removeAll(idx.Streams[streamName], removed)
				recordFilesCompacted(len(removed))
			}
		}
	}

	if mergeErr != nil {
		recordCompactFailure()
		rebuilt, rerr := rebuildIndex(ctx, st, base)
		if rerr != nil {
			return errors.NewStoreError("compaction failed and index rebuild also failed", rerr.Error(), "", rerr)
		}
		idx = rebuilt
		changed = true
	}

	if changed {
		idx.Version++
		recordCompactionRun()
		data, merr := idx.Marshal()
		if merr != nil {
			return errors.NewStoreError("failed to marshal compacted index", merr.Error(), "", merr)
		}
		if perr := st.Pipe(ctx, indexPath, data); perr != nil {
			return errors.NewStoreError("failed to upload compacted index", perr.Error(), "", perr)
		}
	}

	if mergeErr != nil {
		return errors.NewStoreError(
			"compaction merge failed; index was rebuilt from physical layout",
			mergeErr.Error(),
			"inspect the object store for transient failures on the affected batch files",
			mergeErr,
		)
	}
	return nil
}

// compactPartition runs the running-queue merge described in spec
// §4.J over one (stream, schema_id) partition's sorted paths,
// returning every path deleted by a merge.
func compactPartition(ctx context.Context, st store.Store, partition []string) ([]string, error) {
	var mergeQueue []string
	var queueBytes int64
	var removed []string

	flush := func() error {
		if len(mergeQueue) == 0 {
			return nil
		}
		sort.Strings(mergeQueue)
		data, err := st.CatMany(ctx, mergeQueue)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		for _, p := range mergeQueue {
			buf.Write(data[p])
		}
		target := mergeQueue[len(mergeQueue)-1] // lexicographically greatest
		if err := st.Pipe(ctx, target, buf.Bytes()); err != nil {
			return err
		}
		others := mergeQueue[:len(mergeQueue)-1]
		if len(others) > 0 {
			if err := st.Rm(ctx, others...); err != nil {
				return err
			}
			removed = append(removed, others...)
		}
		mergeQueue = nil
		queueBytes = 0
		return nil
	}

	for _, p := range partition {
		size, err := st.Size(ctx, p)
		if err != nil {
			return nil, err
		}
		if size >= compactThreshold {
			continue // not compactable, left untouched
		}
		mergeQueue = append(mergeQueue, p)
		queueBytes += size
		if queueBytes > compactThreshold {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil { // tail merge
		return nil, err
	}
	return removed, nil
}

func removeAll(list, removed []string) []string {
	drop := make(map[string]bool, len(removed))
	for _, p := range removed {
		drop[p] = true
	}
	out := make([]string, 0, len(list))
	for _, p := range list {
		if !drop[p] {
			out = append(out, p)
		}
	}
	return out
}
