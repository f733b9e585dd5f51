// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"github.com/kraklabs/alto/internal/errors"
	"github.com/kraklabs/alto/pkg/store"
)

// SignatureDB is the persistent key→signature map backing
// ConfigChanged and FileDepsUnchanged, so that freshness decisions
// survive across process runs. It is written to `<root>/.alto.json`
// through the same store every other component uses.
type SignatureDB struct {
	mu   sync.Mutex
	data map[string]string
}

// LoadSignatureDB reads the signature database from path. A missing
// object is treated as an empty, fresh database rather than an error —
// the first run of any task is always a cache miss.
func LoadSignatureDB(ctx context.Context, st store.Store, path string) (*SignatureDB, error) {
	db := &SignatureDB{data: map[string]string{}}
	raw, err := st.Cat(ctx, path)
	if err != nil {
		return db, nil
	}
	if len(raw) == 0 {
		return db, nil
	}
	if err := json.Unmarshal(raw, &db.data); err != nil {
		return nil, errors.NewInternalError(
			"corrupt task signature database",
			err.Error(),
			"delete .alto.json to force a full rebuild",
			err,
		)
	}
	return db, nil
}

// Get returns the recorded signature for key, if any.
func (db *SignatureDB) Get(key string) (string, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	v, ok := db.data[key]
	return v, ok
}

// Set records sig for key.
func (db *SignatureDB) Set(key, sig string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[key] = sig
}

// Save persists the database to path.
func (db *SignatureDB) Save(ctx context.Context, st store.Store, path string) error {
	db.mu.Lock()
	raw, err := json.MarshalIndent(db.data, "", "  ")
	db.mu.Unlock()
	if err != nil {
		return errors.NewInternalError("failed to serialize task signature database", err.Error(), "", err)
	}
	if err := st.Pipe(ctx, path, raw); err != nil {
		return errors.NewStoreError("failed to persist task signature database", err.Error(), "", err)
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ConfigChanged returns an UpToDateFunc keyed on the JSON-serialized
// form of blob, matching the "config_changed({...})" sentinel: a task
// whose declared config hasn't changed since the last recorded run is
// up to date. Because UpToDate is evaluated once, immediately before a
// task either runs or is skipped, a false result (about to run) commits
// the new signature immediately rather than waiting on the task's own
// success — a config-bearing task is expected to be idempotent to rerun
// safely if a later step in the same graph fails.
func ConfigChanged(db *SignatureDB, key string, blob any) UpToDateFunc {
	return func() (bool, error) {
		raw, err := json.Marshal(blob)
		if err != nil {
			return false, errors.NewInternalError("failed to serialize config_changed blob", err.Error(), "", err)
		}
		sum := sha256Hex(raw)
		prev, ok := db.Get(key)
		if ok && prev == sum {
			return true, nil
		}
		db.Set(key, sum)
		return false, nil
	}
}

// FileDepsUnchanged returns an UpToDateFunc that hashes the current
// content of every path in deps and compares the combined digest
// against what db recorded under key, so that adding, removing, or
// editing a declared file dependency forces the owning task to rerun.
func FileDepsUnchanged(ctx context.Context, st store.Store, db *SignatureDB, key string, deps []string) UpToDateFunc {
	return func() (bool, error) {
		if len(deps) == 0 {
			return true, nil
		}
		sorted := append([]string(nil), deps...)
		sort.Strings(sorted)
		contents, err := st.CatMany(ctx, sorted)
		if err != nil {
			return false, errors.NewStoreError("failed to read file dependencies", err.Error(), "", err)
		}
		h := sha256.New()
		for _, p := range sorted {
			h.Write([]byte(p))
			h.Write(contents[p])
		}
		sum := hex.EncodeToString(h.Sum(nil))
		prev, ok := db.Get(key)
		if ok && prev == sum {
			return true, nil
		}
		db.Set(key, sum)
		return false, nil
	}
}
