// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

// Package engine wires Alto's settings, object store, and pipeline/
// reservoir runtimes into a task.Graph, generating the task set from
// spec §4.K's table for every plugin and tap×target pair, and runs it
// through a task.Runner.
package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/alto/internal/ui"
	"github.com/kraklabs/alto/pkg/catalog"
	"github.com/kraklabs/alto/pkg/paths"
	"github.com/kraklabs/alto/pkg/pipeline"
	"github.com/kraklabs/alto/pkg/reservoir"
	"github.com/kraklabs/alto/pkg/settings"
	"github.com/kraklabs/alto/pkg/store"
	"github.com/kraklabs/alto/pkg/task"
)

// Engine orchestrates one Alto project: it resolves plugins, builds
// the task graph, and runs it. Store is the object store every object
// (binaries, catalogs, state, logs, reservoir batches) is addressed
// through; WorkDir is the literal local directory those same objects
// are staged to when a subprocess needs a real file to read or write,
// per the local/remote duality of spec §4.A/§4.B.
type Engine struct {
	Settings *settings.Settings
	Store    store.Store
	WorkDir  string

	Console     *ui.Console
	Logger      *slog.Logger
	Runtime     *pipeline.Runtime
	Ingestor    *reservoir.Ingestor
	Emitter     *reservoir.Emitter
	Compactor   *reservoir.Compactor
	SignatureDB *task.SignatureDB

	// BuildCmd is the external command used to build a plugin binary
	// when one isn't already cached (e.g. "pex"); empty disables
	// building, so build:<plugin> fails with a clear fix hint instead.
	BuildCmd string

	// Interpreter, Machine, OS, and CacheVersion feed the binary cache
	// key alongside each plugin's requirement string, per spec §4.B.
	Interpreter string
	Machine     string
	OS          string
	CacheVersion string

	PipelineID string
	ProjectID  string
	Now        func() time.Time

	extensions []Extension
}

// New builds an Engine from settings and st, staging local-disk
// objects under workDir. Console, Runtime, Ingestor, Emitter, and
// Compactor are constructed with sane defaults; callers can override
// any of them before calling Build.
func New(s *settings.Settings, st store.Store, workDir string, console *ui.Console, sigDB *task.SignatureDB, pipelineID string) *Engine {
	return &Engine{
		Settings:    s,
		Store:       st,
		WorkDir:     workDir,
		Console:     console,
		Logger:      ui.NewLogger(os.Stderr),
		Runtime:     &pipeline.Runtime{Console: console},
		Ingestor:    &reservoir.Ingestor{Console: console},
		Emitter:     &reservoir.Emitter{Console: console},
		Compactor:   &reservoir.Compactor{},
		SignatureDB: sigDB,
		PipelineID:  pipelineID,
		Now:         time.Now,
	}
}

// RegisterExtension adds ext's tasks to the graph on the next Build.
func (e *Engine) RegisterExtension(ext Extension) {
	e.extensions = append(e.extensions, ext)
}

// local resolves a store key to its staged local-disk path under
// WorkDir, for objects a subprocess needs to read or write directly.
func (e *Engine) local(key string) string {
	return filepath.Join(e.WorkDir, filepath.FromSlash(key))
}

func (e *Engine) taps() []*settings.Plugin    { return e.pluginsOfKind(settings.Tap) }
func (e *Engine) targets() []*settings.Plugin { return e.pluginsOfKind(settings.Target) }
func (e *Engine) utilities() []*settings.Plugin {
	return e.pluginsOfKind(settings.Utility)
}

func (e *Engine) pluginsOfKind(kind settings.Kind) []*settings.Plugin {
	var out []*settings.Plugin
	for name := range e.Settings.Plugins {
		p, err := settings.ResolvePlugin(e.Settings.Plugins, name)
		if err != nil || p.Kind != kind {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (e *Engine) resolve(name string) (*settings.Plugin, error) {
	return settings.ResolvePlugin(e.Settings.Plugins, name)
}

// binaryPaths returns the local and remote paths for a plugin's
// cached binary, keyed on its requirement string plus the engine's
// platform fingerprint.
func (e *Engine) binaryPaths(p *settings.Plugin) (local, remote string) {
	key := paths.BinaryCacheKey(p.Requirement, e.Interpreter, e.Machine, e.OS, e.CacheVersion)
	remote = paths.Binary(key, p.Name)
	return e.local(remote), remote
}

// Build generates the full task graph for the project: build/config/
// catalog/apply/about/test tasks per plugin, pipeline/ingest/emit
// tasks per tap×target pair, plus every registered extension's tasks.
func (e *Engine) Build(ctx context.Context) (*task.Graph, error) {
	g := task.NewGraph()
	built := map[string]bool{}

	all := append(append(append([]*settings.Plugin{}, e.taps()...), e.targets()...), e.utilities()...)
	for _, p := range all {
		ok, err := e.addBuildTask(ctx, g, p)
		if err != nil {
			return nil, err
		}
		built[p.Name] = ok
		if err := e.addConfigTask(g, p, nil); err != nil {
			return nil, err
		}
	}

	taps, targets := e.taps(), e.targets()
	for _, tap := range taps {
		if err := e.addCatalogTask(ctx, g, tap, built); err != nil {
			return nil, err
		}
		if err := e.addApplyTask(g, tap); err != nil {
			return nil, err
		}
		if tap.Has("about") {
			if err := e.addAboutTask(g, tap, built); err != nil {
				return nil, err
			}
		}
		if tap.Has("test") {
			if err := e.addTestTask(g, tap); err != nil {
				return nil, err
			}
		}
		if err := e.addIngestTask(g, tap); err != nil {
			return nil, err
		}
	}

	for _, target := range targets {
		for _, tap := range taps {
			if err := e.addConfigTask(g, target, tap); err != nil {
				return nil, err
			}
			if err := e.addPipelineTask(g, tap, target, built); err != nil {
				return nil, err
			}
			if err := e.addEmitTask(g, tap, target, built); err != nil {
				return nil, err
			}
		}
	}

	for _, ext := range e.extensions {
		for _, t := range ext.Tasks(e) {
			if err := g.Add(t); err != nil {
				return nil, err
			}
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// RunTask builds the graph and runs it to (and including) the named
// target, returning every task's result. This is the entrypoint
// extensions and an out-of-scope CLI call by name, per spec §4.K.
func (e *Engine) RunTask(ctx context.Context, name string) (map[string]*task.Result, error) {
	e.Logger.Info("engine.run.start", "target", name, "pipeline_id", e.PipelineID)

	g, err := e.Build(ctx)
	if err != nil {
		e.Logger.Error("engine.run.build_failed", "target", name, "error", err)
		return nil, err
	}
	r := task.NewRunner(g, 0)
	results, err := r.Run(ctx, []string{name})
	if err != nil {
		e.Logger.Error("engine.run.failed", "target", name, "error", err)
		return results, err
	}
	for taskName, res := range results {
		if res.Err != nil {
			e.Logger.Error("engine.task.failed", "task", taskName, "ran", res.Ran, "duration", res.Duration, "error", res.Err)
		} else {
			e.Logger.Info("engine.task.done", "task", taskName, "ran", res.Ran, "duration", res.Duration)
		}
	}
	return results, nil
}

// catalogStrategyFor maps a tap's declared selection strategy; PRUNE
// unless the plugin opts into DESELECT via capability.
func catalogStrategyFor(p *settings.Plugin) catalog.Strategy {
	if p.Has("deselect") {
		return catalog.DESELECT
	}
	return catalog.PRUNE
}
