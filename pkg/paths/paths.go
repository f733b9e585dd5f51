// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

// Package paths computes the deterministic object-store paths Alto uses
// for plugin binaries, per-environment state, catalogs, logs, and the
// reservoir, per spec §4.B.
package paths

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// BinaryCacheKey computes the cache key used to invalidate a built
// plugin binary: sha1(requirement || interpreter || machine || os ||
// userCacheVersion).
func BinaryCacheKey(requirement, interpreter, machine, osName, userCacheVersion string) string {
	h := sha1.New()
	h.Write([]byte(requirement))
	h.Write([]byte(interpreter))
	h.Write([]byte(machine))
	h.Write([]byte(osName))
	h.Write([]byte(userCacheVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// Binary returns the cached-binary path for a plugin under cacheKey.
func Binary(cacheKey, plugin string) string {
	return fmt.Sprintf("binaries/%s/%s.pex", cacheKey, plugin)
}

// Config returns the local config path for a plugin, optionally rendered
// relative to an accent plugin (the other side of a tap/target pair).
func Config(name, accent string) string {
	if accent == "" {
		return fmt.Sprintf("config/%s.json", name)
	}
	return fmt.Sprintf("config/%s--%s.json", name, accent)
}

// State returns the per-environment state path for a tap/target pair.
func State(env, tap, target string) string {
	return fmt.Sprintf("state/%s/%s-to-%s.json", env, tap, target)
}

// BaseCatalog returns the discovered-but-unselected catalog path for tap.
func BaseCatalog(tap string) string {
	return fmt.Sprintf("catalogs/%s.base.json", tap)
}

// AppliedCatalog returns the selection-applied catalog path for tap.
func AppliedCatalog(tap string) string {
	return fmt.Sprintf("catalogs/%s.json", tap)
}

// ReservoirBase returns the reservoir root for a tap within env.
func ReservoirBase(env, tap string) string {
	return fmt.Sprintf("reservoir/%s/%s", env, tap)
}

// ReservoirIndex returns the index path for a tap's reservoir.
func ReservoirIndex(env, tap string) string {
	return ReservoirBase(env, tap) + "/_reservoir.json"
}

// ReservoirLock returns the lock path for a tap's reservoir.
func ReservoirLock(env, tap string) string {
	return ReservoirBase(env, tap) + "/_reservoir.lock"
}

// ReservoirBatch returns the path for a single gzip-batch object.
func ReservoirBatch(env, tap, streamName, schemaID, timestamp string) string {
	return fmt.Sprintf("%s/%s/%s/%s.singer.gz", ReservoirBase(env, tap), streamName, schemaID, timestamp)
}

// ReservoirStateName substitutes "tap" with "reservoir" in the tap name
// for the emitter's state path, per spec §4.I.
func ReservoirStateName(tap string) string {
	return strings.Replace(tap, "tap", "reservoir", 1)
}

// Log returns the local log path for a plugin run within env.
func Log(env, name string) string {
	return fmt.Sprintf("logs/%s/%s", env, name)
}

// UploadedLog returns the remote, minute-resolution-prefixed path under
// which a completed log file is archived.
func UploadedLog(env, pluginName, pipelineID string, t time.Time) string {
	return fmt.Sprintf("logs/%s/%s--%s--%s.log", env, t.UTC().Format("200601021504"), pluginName, pipelineID)
}

// ReservoirTimestamp formats t with microsecond resolution, matching
// Python's strftime("%Y%m%d%H%M%S%f") so filenames sort lexicographically
// in time order.
func ReservoirTimestamp(t time.Time) string {
	return t.UTC().Format("20060102150405") + fmt.Sprintf("%06d", t.Nanosecond()/1000)
}
