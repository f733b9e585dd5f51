// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package reservoir

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"runtime"
	"sort"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/kraklabs/alto/internal/errors"
	"github.com/kraklabs/alto/internal/ui"
	"github.com/kraklabs/alto/pkg/paths"
	"github.com/kraklabs/alto/pkg/state"
	"github.com/kraklabs/alto/pkg/store"
)

// EmitSpec describes one reservoir→target replay run.
type EmitSpec struct {
	Env     string
	TapName string

	TargetName   string
	TargetBinary string
	TargetArgs   []string
	TargetEnv    []string

	// StatePath is the per-target emitted-bookmark state path, keyed by
	// tap-with-"tap"-replaced-by-"reservoir" and the target name, per
	// spec §4.I (see pkg/paths.ReservoirStateName).
	StatePath string

	TargetLogPath string
	// FetchWorkers bounds concurrent object fetches per partition;
	// defaults to runtime.NumCPU().
	FetchWorkers int
}

// Emitter runs the reservoir emitter described in spec §4.I.
type Emitter struct {
	Console *ui.Console
}

// Emit loads (or rebuilds) the reservoir index, reconciles the
// emitter's bookmark state against it, starts spec's target, and
// replays every not-yet-emitted batch into it in schema-partitioned,
// insertion-order groups. Writes to target stdin are serialized by a
// mutex so a batch is never interleaved with another.
func (em *Emitter) Emit(ctx context.Context, st store.Store, base string, spec EmitSpec) error {
	indexPath := paths.ReservoirIndex(spec.Env, spec.TapName)

	idx, err := loadOrRebuildIndex(ctx, st, base, indexPath)
	if err != nil {
		return err
	}

	emitState, err := loadEmitState(ctx, st, spec.StatePath)
	if err != nil {
		return err
	}
	reconcileVersion(emitState, idx)
	if raw, merr := state.Marshal(emitState); merr == nil {
		_ = st.Pipe(ctx, spec.StatePath, raw)
	}

	targetCmd := exec.CommandContext(ctx, spec.TargetBinary, spec.TargetArgs...)
	targetCmd.Env = spec.TargetEnv
	stdin, err := targetCmd.StdinPipe()
	if err != nil {
		return errors.NewPipelineError("failed to open target stdin", err.Error(), "", err)
	}
	stderr, err := targetCmd.StderrPipe()
	if err != nil {
		return errors.NewPipelineError("failed to open target stderr", err.Error(), "", err)
	}
	stateLog, err := os.Create(spec.TargetLogPath + ".state")
	if err != nil {
		return errors.NewPipelineError("failed to open target state log", err.Error(), "", err)
	}
	defer stateLog.Close()
	targetCmd.Stdout = stateLog

	if err := targetCmd.Start(); err != nil {
		return errors.NewPipelineError(fmt.Sprintf("target %q failed to start", spec.TargetName), err.Error(), "check the target binary and its config", err)
	}

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		drainToLog(em.Console, spec.TargetName, stderr, spec.TargetLogPath)
	}()

	var stdinMu sync.Mutex
	var runErr error

	streams := make([]string, 0, len(idx.Streams))
	for s := range idx.Streams {
		streams = append(streams, s)
	}
	sort.Strings(streams)

	for _, streamName := range streams {
		if runErr != nil {
			break
		}
		entry := streamEntry(emitState, streamName)
		emitted, _ := entry["emitted"].(string)

		var workQueue []string
		for _, p := range idx.Streams[streamName] {
			if path.Base(p) > emitted {
				workQueue = append(workQueue, p)
			}
		}
		if len(workQueue) == 0 {
			continue
		}

		for _, partition := range partitionBySchema(workQueue) {
			results, ferr := fetchAll(ctx, st, partition, spec.FetchWorkers)
			if ferr != nil {
				runErr = errors.NewPipelineError("reservoir fetch worker failed", ferr.Error(), "", ferr)
				break
			}
			if werr := writeBatches(&stdinMu, stdin, results); werr != nil {
				runErr = errors.NewPipelineError("failed writing to target stdin", werr.Error(), "", werr)
				break
			}
			for range partition {
				recordRecordEmitted()
			}

			maxFile := path.Base(partition[len(partition)-1])
			if maxFile > emitted {
				emitted = maxFile
			}
			entry["emitted"] = emitted
			if raw, merr := state.Marshal(emitState); merr == nil {
				_ = st.Pipe(ctx, spec.StatePath, raw)
			}
		}
	}

	_ = stdin.Close()
	<-stderrDone
	if werr := targetCmd.Wait(); werr != nil && runErr == nil {
		runErr = errors.NewPipelineError(fmt.Sprintf("target %q exited non-zero", spec.TargetName), werr.Error(), "", werr)
	}

	return runErr
}

// streamEntry returns (creating if absent) doc's per-stream bookmark
// sub-map.
func streamEntry(doc state.Doc, streamName string) map[string]any {
	e, ok := doc[streamName].(map[string]any)
	if !ok {
		e = map[string]any{}
		doc[streamName] = e
	}
	return e
}

func loadEmitState(ctx context.Context, st store.Store, statePath string) (state.Doc, error) {
	raw, err := st.Cat(ctx, statePath)
	if err != nil {
		return state.Doc{"__version__": float64(0)}, nil
	}
	doc, err := state.Load(raw)
	if err != nil {
		return nil, err
	}
	if _, ok := doc["__version__"]; !ok {
		doc["__version__"] = float64(0)
	}
	return doc, nil
}

// reconcileVersion implements spec §4.I's version reconciliation: when
// the emitter's recorded version differs from the index's, the index
// was compacted since the last run, so each stream's emitted bookmark
// is rebuilt to the greatest filename still ≤ the previous bookmark.
// When no filename in the new layout is ≤ the previous bookmark, the
// bookmark is left unchanged.
func reconcileVersion(doc state.Doc, idx *Index) {
	docVersion, _ := doc["__version__"].(float64)
	if int(docVersion) == idx.Version {
		return
	}
	for streamName, pathsForStream := range idx.Streams {
		entry := streamEntry(doc, streamName)
		prevEmitted, _ := entry["emitted"].(string)
		if best := maxLessEqual(pathsForStream, prevEmitted); best != "" {
			entry["emitted"] = best
		}
		// else: no path in the new layout is ≤ the previous bookmark
		// (it was compacted away into something lexicographically
		// greater); leave the bookmark as-is, per spec §8 scenario 4.
	}
	doc["__version__"] = float64(idx.Version)
}

// maxLessEqual returns the greatest basename among pathsForStream that
// is ≤ prevEmitted, or "" if none qualifies.
func maxLessEqual(pathsForStream []string, prevEmitted string) string {
	best := ""
	for _, p := range pathsForStream {
		name := path.Base(p)
		if name <= prevEmitted && name > best {
			best = name
		}
	}
	return best
}

// partitionBySchema groups paths by their schema_id (parent directory
// segment), preserving the insertion order of paths: the first group
// is every path sharing the schema_id of paths[0], in original
// relative order; the next group is the next not-yet-grouped
// schema_id; and so on, per spec §4.I.
func partitionBySchema(pathsIn []string) [][]string {
	var order []string
	groups := map[string][]string{}
	for _, p := range pathsIn {
		schemaID := path.Base(path.Dir(p))
		if _, seen := groups[schemaID]; !seen {
			order = append(order, schemaID)
		}
		groups[schemaID] = append(groups[schemaID], p)
	}
	out := make([][]string, 0, len(order))
	for _, schemaID := range order {
		out = append(out, groups[schemaID])
	}
	return out
}

// fetchAll retrieves every object in paths concurrently, bounded to
// workers in flight, with first-error cancellation (spec §9's "Worker
// pool error propagation" MUST): once any fetch fails, outstanding and
// future fetches are abandoned and the first error is returned.
func fetchAll(ctx context.Context, st store.Store, pathsIn []string, workers int) ([][]byte, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([][]byte, len(pathsIn))
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, p := range pathsIn {
		select {
		case <-cctx.Done():
		default:
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, p string) {
				defer wg.Done()
				defer func() { <-sem }()
				select {
				case <-cctx.Done():
					return
				default:
				}
				data, err := st.Cat(cctx, p)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					cancel()
					return
				}
				results[i] = data
			}(i, p)
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// writeBatches gunzips each fetched object and writes its
// newline-delimited contents (header line included) to w, serialized
// by mu so concurrent emitter activity never interleaves bytes from
// two batches.
func writeBatches(mu *sync.Mutex, w io.Writer, batches [][]byte) error {
	mu.Lock()
	defer mu.Unlock()
	for _, data := range batches {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return err
		}
		scanner := bufio.NewScanner(gz)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			if _, err := w.Write(line); err != nil {
				gz.Close()
				return err
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				gz.Close()
				return err
			}
		}
		serr := scanner.Err()
		gz.Close()
		if serr != nil {
			return serr
		}
	}
	return nil
}

// loadOrRebuildIndex loads the index at indexPath, or rebuilds it by
// listing stream subdirectories under base and globbing their batch
// files, per spec §4.I.
func loadOrRebuildIndex(ctx context.Context, st store.Store, base, indexPath string) (*Index, error) {
	if raw, err := st.Cat(ctx, indexPath); err == nil {
		idx, lerr := LoadIndex(raw)
		if lerr == nil {
			return idx, nil
		}
	}
	return rebuildIndex(ctx, st, base)
}

// rebuildIndex reconstructs the index from physical layout: every
// stream subdirectory under base, and within it every "*.singer.gz"
// file found by a recursive glob, sorted lexicographically.
func rebuildIndex(ctx context.Context, st store.Store, base string) (*Index, error) {
	entries, err := st.Ls(ctx, base, false)
	if err != nil {
		return nil, errors.NewStoreError("failed to list reservoir base", err.Error(), "", err)
	}
	idx := NewIndex()
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		streamName := path.Base(e.Path)
		matches, gerr := st.Glob(ctx, e.Path+"/**/*.singer.gz")
		if gerr != nil {
			return nil, errors.NewStoreError("failed to glob reservoir stream", gerr.Error(), "", gerr)
		}
		sort.Strings(matches)
		idx.Streams[streamName] = matches
	}
	return idx, nil
}
