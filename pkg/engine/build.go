// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kraklabs/alto/internal/errors"
	"github.com/kraklabs/alto/pkg/store"
)

// BinaryCached reports whether a plugin's binary is present at
// localPath, pulling it down from the remote cache at remotePath first
// if it isn't local yet and opportunistically pushing a local-only
// binary up to the cache. It is the "maybe already built" half of
// build:<plugin>'s up-to-date check: plugin installation mechanics
// themselves (pip/pex internals) are out of scope, so this only
// orchestrates the cache, never the install.
func BinaryCached(ctx context.Context, st store.Store, localPath, remotePath string) (bool, error) {
	if _, err := os.Stat(localPath); err == nil {
		if exists, eerr := st.Exists(ctx, remotePath); eerr == nil && !exists {
			_ = st.Put(ctx, localPath, remotePath)
		}
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return false, errors.NewBinaryError("failed to create binary cache directory", err.Error(), "", err)
	}
	if err := st.Get(ctx, remotePath, localPath); err != nil {
		return false, nil // not cached anywhere: stale, the build action must run
	}
	return true, os.Chmod(localPath, 0o755)
}

// BuildPlugin builds the plugin binary at localPath by invoking an
// external builder command (installCmd, e.g. "pex") with the plugin's
// requirement string as arguments, then uploads the result to the
// remote cache at remotePath. The builder itself — what actually
// resolves and packages the requirement — is intentionally pluggable
// and out of scope here; this only wires the engine's side of it.
func BuildPlugin(ctx context.Context, st store.Store, installCmd, pluginName, requirement, localPath, remotePath string) error {
	if installCmd == "" {
		return errors.NewBinaryError(
			fmt.Sprintf("no binary for plugin %q and no build command configured", pluginName),
			"plugin binaries are not built by Alto; provide one on disk or configure a build command",
			"set a build command or pre-install the plugin binary",
			nil,
		)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return errors.NewBinaryError("failed to create binary output directory", err.Error(), "", err)
	}

	args := append([]string{"-o", localPath, "--no-emit-warnings"}, strings.Fields(requirement)...)
	cmd := exec.CommandContext(ctx, installCmd, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(localPath)
		return errors.NewBinaryError(
			fmt.Sprintf("failed to build plugin %q", pluginName),
			strings.TrimSpace(string(out)),
			"check the plugin's requirement string and that the build command is installed",
			err,
		)
	}
	if err := os.Chmod(localPath, 0o755); err != nil {
		return errors.NewBinaryError("failed to make built binary executable", err.Error(), "", err)
	}
	if err := st.Put(ctx, localPath, remotePath); err != nil {
		return errors.NewStoreError("failed to upload built plugin binary to cache", err.Error(), "", err)
	}
	return nil
}

// CleanBinary removes a plugin's cached binary, locally and remotely.
func CleanBinary(ctx context.Context, st store.Store, localPath, remotePath string) error {
	_ = os.Remove(localPath)
	if err := st.Rm(ctx, remotePath); err != nil {
		return errors.NewStoreError(fmt.Sprintf("failed to remove cached binary at %q", remotePath), err.Error(), "", err)
	}
	return nil
}
