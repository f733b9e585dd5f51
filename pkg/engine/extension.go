// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package engine

import "github.com/kraklabs/alto/pkg/task"

// Extension lets downstream tooling contribute additional tasks to an
// Engine's graph under its own namespace, per spec §4.K: "Extensions
// can contribute additional tasks under their own namespace; the
// engine exposes run-task-by-name to extensions."
type Extension interface {
	// Namespace identifies the extension for logging and task naming;
	// extensions are expected to prefix their own task names with it
	// (e.g. "evidence:collect").
	Namespace() string

	// Tasks returns the tasks this extension contributes, given the
	// fully-built core Engine so it can depend on core tasks (e.g. an
	// extension task that runs after "tap-foo:target-bar").
	Tasks(e *Engine) []*task.Task
}
