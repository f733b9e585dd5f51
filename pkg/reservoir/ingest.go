// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package reservoir

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/kraklabs/alto/internal/errors"
	"github.com/kraklabs/alto/internal/ui"
	"github.com/kraklabs/alto/pkg/paths"
	"github.com/kraklabs/alto/pkg/state"
	"github.com/kraklabs/alto/pkg/store"
	"github.com/kraklabs/alto/pkg/streammap"
)

// IngestSpec describes one tap→reservoir landing run.
type IngestSpec struct {
	PipelineID string
	Env        string
	TapName    string

	TapBinary string
	TapArgs   []string
	TapEnv    []string

	// Chain is nil (or empty) when no maps apply.
	Chain *streammap.Chain

	// BufferSize is the record count that triggers a flush; defaults
	// to 10000 per spec §4.H.
	BufferSize int
	// Workers sizes the async-PUT pool; defaults to runtime.NumCPU().
	Workers int

	LocalStatePath string
	TapLogPath     string
}

// Ingestor runs the reservoir ingestor described in spec §4.H.
type Ingestor struct {
	Console *ui.Console
}

// Ingest starts spec's tap, buffers its SCHEMA/RECORD messages (after
// running them through spec.Chain) into gzip batches, uploads full
// batches asynchronously, and maintains the stream index and local
// state. The reservoir lock is held for the duration and always
// released, and the index always re-uploaded, even on failure, per
// spec §4.H's "regardless of success" cleanup phase.
func (ing *Ingestor) Ingest(ctx context.Context, st store.Store, spec IngestSpec, now func() time.Time) error {
	bufferSize := spec.BufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}

	lockPath := paths.ReservoirLock(spec.Env, spec.TapName)
	indexPath := paths.ReservoirIndex(spec.Env, spec.TapName)

	if err := AcquireLock(ctx, st, lockPath, spec.PipelineID); err != nil {
		return err
	}

	idx := NewIndex()
	if raw, err := st.Cat(ctx, indexPath); err == nil {
		if loaded, lerr := LoadIndex(raw); lerr == nil {
			idx = loaded
		}
	}

	runErr := ing.run(ctx, st, spec, bufferSize, idx, now)

	uploadErr := ing.uploadIndex(ctx, st, indexPath, idx)
	lockErr := ReleaseLock(ctx, st, lockPath)

	if runErr != nil {
		return runErr
	}
	if uploadErr != nil {
		return uploadErr
	}
	return lockErr
}

func (ing *Ingestor) uploadIndex(ctx context.Context, st store.Store, indexPath string, idx *Index) error {
	data, err := idx.Marshal()
	if err != nil {
		return errors.NewStoreError("failed to marshal reservoir index", err.Error(), "", err)
	}
	if err := st.Pipe(ctx, indexPath, data); err != nil {
		return errors.NewStoreError("failed to upload reservoir index", err.Error(), "", err)
	}
	return nil
}

// run starts the tap and drives it to completion, landing records into
// idx's batches. It returns the first error encountered, but always
// runs its own cleanup (flushing remaining buffers, waiting for
// uploads) before returning so the caller's index upload reflects
// every batch that was actually written.
func (ing *Ingestor) run(ctx context.Context, st store.Store, spec IngestSpec, bufferSize int, idx *Index, now func() time.Time) error {
	var runErr error

	tapCmd := exec.CommandContext(ctx, spec.TapBinary, spec.TapArgs...)
	tapCmd.Env = spec.TapEnv
	stdout, err := tapCmd.StdoutPipe()
	if err != nil {
		return errors.NewPipelineError("failed to open tap stdout", err.Error(), "", err)
	}
	stderr, err := tapCmd.StderrPipe()
	if err != nil {
		return errors.NewPipelineError("failed to open tap stderr", err.Error(), "", err)
	}

	if err := tapCmd.Start(); err != nil {
		return errors.NewPipelineError(fmt.Sprintf("tap %q failed to start", spec.TapName), err.Error(), "check the tap binary and its config", err)
	}

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		drainToLog(ing.Console, spec.TapName, stderr, spec.TapLogPath)
	}()

	up := newUploader(st, spec.Workers)

	buffers := map[string]map[string]*batch{}
	active := map[string]string{}
	used := map[string]map[string]bool{}
	streamState := state.Doc{}
	if raw, err := st.Cat(ctx, spec.LocalStatePath); err == nil {
		if loaded, lerr := state.Load(raw); lerr == nil {
			streamState = loaded
		}
	}

	batchLog, _ := os.Create(spec.TapLogPath + ".batches")
	if batchLog != nil {
		defer batchLog.Close()
	}

	flush := func(b *batch) error {
		data, ferr := b.flush()
		if ferr != nil {
			return ferr
		}
		path := uniquePath(used, spec.Env, spec.TapName, b.stream, b.schemaID, now())
		up.submit(path, data)
		idx.Append(b.stream, path)
		recordRecordIngested()
		if batchLog != nil {
			fmt.Fprintln(batchLog, path)
		}
		return nil
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		var msg map[string]any
		if err := json.Unmarshal(line, &msg); err != nil {
			continue // dropped, per spec §4.H
		}
		typ, _ := msg["type"].(string)

		switch typ {
		case "STATE":
			if v, ok := msg["value"].(map[string]any); ok {
				streamState = state.DeepMerge(streamState, state.Doc(v))
				if raw, merr := state.Marshal(streamState); merr == nil {
					_ = st.Pipe(ctx, spec.LocalStatePath, raw)
				}
			}
		case "SCHEMA":
			streamName, _ := msg["stream"].(string)
			transformed := msg
			if spec.Chain != nil {
				transformed = spec.Chain.TransformSchema(msg)
			}
			schema, _ := transformed["schema"].(map[string]any)
			schemaID := SchemaID(schema)
			if buffers[streamName] == nil {
				buffers[streamName] = map[string]*batch{}
			}
			if _, exists := buffers[streamName][schemaID]; !exists {
				header, _ := json.Marshal(transformed)
				header = append(header, '\n')
				buffers[streamName][schemaID] = newBatch(streamName, schemaID, header)
			}
			active[streamName] = schemaID
		case "RECORD":
			streamName, _ := msg["stream"].(string)
			schemaID, ok := active[streamName]
			if !ok {
				continue // RECORD with no preceding SCHEMA: nothing to partition by
			}
			transformed := msg
			if spec.Chain != nil {
				transformed = spec.Chain.TransformRecord(msg)
			}
			encoded, merr := json.Marshal(transformed)
			if merr != nil {
				continue
			}
			b := buffers[streamName][schemaID]
			if err := b.writeRecord(encoded); err != nil {
				if runErr == nil {
					runErr = errors.NewPipelineError("failed to write reservoir batch", err.Error(), "", err)
				}
				continue
			}
			recordRecordIngested()
			if b.n >= bufferSize {
				if err := flush(b); err != nil && runErr == nil {
					runErr = errors.NewStoreError("failed to flush reservoir batch", err.Error(), "", err)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil && runErr == nil {
		runErr = errors.NewPipelineError("failed reading tap stdout", err.Error(), "", err)
	}

	for _, byStream := range buffers {
		for _, b := range byStream {
			if b.n > 0 {
				if err := flush(b); err != nil && runErr == nil {
					runErr = errors.NewStoreError("failed to flush final reservoir batch", err.Error(), "", err)
				}
			}
		}
	}
	if raw, merr := state.Marshal(streamState); merr == nil {
		_ = st.Pipe(ctx, spec.LocalStatePath, raw)
	}

	<-stderrDone
	if werr := tapCmd.Wait(); werr != nil && runErr == nil {
		runErr = errors.NewPipelineError(fmt.Sprintf("tap %q exited non-zero", spec.TapName), werr.Error(), "", werr)
	}
	if uerr := up.close(); uerr != nil && runErr == nil {
		runErr = errors.NewStoreError("reservoir upload worker failed", uerr.Error(), "", uerr)
	}

	return runErr
}

// uniquePath computes a batch's destination path, appending an 8-hex
// nonce if two flushes in the same (stream, schema_id) partition land
// on the same microsecond timestamp, per spec §9's open question on
// timestamp collisions: the nonce only breaks ties, so lexicographic
// ordering by timestamp is preserved.
func uniquePath(used map[string]map[string]bool, env, tap, stream, schemaID string, at time.Time) string {
	key := stream + "/" + schemaID
	if used[key] == nil {
		used[key] = map[string]bool{}
	}
	ts := paths.ReservoirTimestamp(at)
	for used[key][ts] {
		ts = ts + "-" + randomNonce()
	}
	used[key][ts] = true
	return paths.ReservoirBatch(env, tap, stream, schemaID, ts)
}

func randomNonce() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func drainToLog(console *ui.Console, tag string, r io.Reader, logPath string) {
	f, err := os.Create(logPath)
	if err == nil {
		defer f.Close()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if f != nil {
			fmt.Fprintln(f, line)
		}
		if console != nil {
			console.WriteLine(tag, line)
		}
	}
}
