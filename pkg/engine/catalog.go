// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kraklabs/alto/internal/errors"
	"github.com/kraklabs/alto/pkg/catalog"
	"github.com/kraklabs/alto/pkg/store"
)

// Discover runs tap's binary with --discover, writing stdout to
// localPath, then uploads it to remotePath. The partial local file is
// removed on failure so a later run never mistakes it for a good
// catalog, matching catalog:<tap>'s up-to-date contract (file must
// exist locally or remotely to count as built).
func Discover(ctx context.Context, st store.Store, binPath, configPath, localPath, remotePath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return errors.NewDiscoveryError("failed to create catalog directory", err.Error(), "", err)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return errors.NewDiscoveryError("failed to open catalog output file", err.Error(), "", err)
	}

	cmd := exec.CommandContext(ctx, binPath, "--config", configPath, "--discover")
	cmd.Stdout = f
	stderr, serr := cmd.StderrPipe()
	if serr != nil {
		f.Close()
		os.Remove(localPath)
		return errors.NewDiscoveryError("failed to open discovery stderr", serr.Error(), "", serr)
	}

	if err := cmd.Start(); err != nil {
		f.Close()
		os.Remove(localPath)
		return errors.NewDiscoveryError(fmt.Sprintf("tap %q failed to start discovery", binPath), err.Error(), "", err)
	}
	errOut, _ := readAll(stderr)
	runErr := cmd.Wait()
	f.Close()
	if runErr != nil {
		os.Remove(localPath)
		return errors.NewDiscoveryError(
			fmt.Sprintf("tap %q --discover exited non-zero", binPath),
			string(errOut),
			"check the tap's config and credentials",
			runErr,
		)
	}

	return st.Put(ctx, localPath, remotePath)
}

func readAll(r interface{ Read([]byte) (int, error) }) ([]byte, error) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			return buf, nil
		}
	}
}

// CatalogCached reports whether tap's base catalog already exists,
// locally or in the remote cache, pulling it down to localPath if only
// the remote copy is present.
func CatalogCached(ctx context.Context, st store.Store, localPath, remotePath string) (bool, error) {
	if _, err := os.Stat(localPath); err == nil {
		return true, nil
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return false, errors.NewDiscoveryError("failed to create catalog directory", err.Error(), "", err)
	}
	if err := st.Get(ctx, remotePath, localPath); err != nil {
		return false, nil
	}
	return true, nil
}

// CleanCatalog removes tap's base catalog, locally and remotely.
func CleanCatalog(ctx context.Context, st store.Store, localPath, remotePath string) error {
	_ = os.Remove(localPath)
	if err := st.Rm(ctx, remotePath); err != nil {
		return errors.NewStoreError(fmt.Sprintf("failed to remove cached catalog at %q", remotePath), err.Error(), "", err)
	}
	return nil
}

// Apply loads the base catalog at baseLocalPath, applies the selection
// patterns and metadata overlay — selection first, then metadata, per
// the discovered catalog-rendering order — and writes the result to
// appliedLocalPath.
func Apply(baseLocalPath, appliedLocalPath string, selectPatterns []string, metadataOverlay map[string]map[string]any, strategy catalog.Strategy) (*catalog.Catalog, error) {
	raw, err := os.ReadFile(baseLocalPath)
	if err != nil {
		return nil, errors.NewDiscoveryError("failed to read base catalog", err.Error(), "run catalog:<tap> first", err)
	}

	var cat catalog.Catalog
	if err := json.Unmarshal(raw, &cat); err != nil {
		return nil, errors.NewDecodeError("failed to parse base catalog", err.Error(), err)
	}

	catalog.ApplySelected(&cat, selectPatterns, strategy)
	catalog.ApplyMetadataOverlay(&cat, metadataOverlay)

	out, err := json.MarshalIndent(&cat, "", "  ")
	if err != nil {
		return nil, errors.NewDecodeError("failed to serialize applied catalog", err.Error(), err)
	}
	if err := os.MkdirAll(filepath.Dir(appliedLocalPath), 0o755); err != nil {
		return nil, errors.NewDiscoveryError("failed to create catalog directory", err.Error(), "", err)
	}
	if err := os.WriteFile(appliedLocalPath, out, 0o644); err != nil {
		return nil, errors.NewDiscoveryError("failed to write applied catalog", err.Error(), "", err)
	}
	return &cat, nil
}
