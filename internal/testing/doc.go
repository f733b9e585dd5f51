// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

// Package testing provides fixtures shared by Alto's test suites:
// fake plugin executables (FakeTap, FakeTarget, FakeDiscoverTap) and
// project scaffolding (ScaffoldProject), so pipeline, reservoir, and
// engine tests run against real subprocesses without needing Python
// or a live Singer plugin installed.
package testing
