// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/kraklabs/alto/pkg/paths"
	"github.com/kraklabs/alto/pkg/pipeline"
	"github.com/kraklabs/alto/pkg/reservoir"
	"github.com/kraklabs/alto/pkg/settings"
	"github.com/kraklabs/alto/pkg/task"
)

// configPath returns the local-disk path a plugin's rendered config
// lives at, optionally rendered relative to accent (the other side of
// a tap/target pair, per config:<target>--<tap>).
func (e *Engine) configPath(name, accent string) string {
	return e.local(paths.Config(name, accent))
}

func fileExists(path string) task.UpToDateFunc {
	return func() (bool, error) {
		_, err := os.Stat(path)
		return err == nil, nil
	}
}

// addBuildTask adds build:<name> for plugins that declare a
// requirement string; utility plugins without one are skipped
// entirely, matching "plugins with no requirement carry no build
// task" (plugin installation mechanics stay pluggable via BuildCmd).
// It reports whether a task was added, so dependents can wire
// TaskDeps conditionally.
func (e *Engine) addBuildTask(ctx context.Context, g *task.Graph, p *settings.Plugin) (bool, error) {
	if p.Requirement == "" {
		return false, nil
	}

	local, remote := e.binaryPaths(p)
	name := "build:" + p.Name

	t := &task.Task{
		Name: name,
		Actions: []task.ActionFunc{func(actionCtx context.Context) error {
			return BuildPlugin(actionCtx, e.Store, e.BuildCmd, p.Name, p.Requirement, local, remote)
		}},
		UpToDate: []task.UpToDateFunc{func() (bool, error) { return BinaryCached(ctx, e.Store, local, remote) }},
		Clean:    func(cleanCtx context.Context) error { return CleanBinary(cleanCtx, e.Store, local, remote) },
	}
	return true, g.Add(t)
}

// addConfigTask adds config:<name> (accent == nil) or
// config:<name>--<accent> — always not-up-to-date, per spec §4.K.
func (e *Engine) addConfigTask(g *task.Graph, p *settings.Plugin, accent *settings.Plugin) error {
	name := "config:" + p.Name
	accentName := ""
	if accent != nil {
		accentName = accent.Name
		name = fmt.Sprintf("config:%s--%s", p.Name, accent.Name)
	}
	configPath := e.configPath(p.Name, accentName)
	env := e.Settings.Env
	projectID := e.ProjectID

	t := &task.Task{
		Name: name,
		Actions: []task.ActionFunc{func(ctx context.Context) error {
			_, err := RenderAndWriteConfig(p, accent, configPath, env, projectID)
			return err
		}},
	}
	return g.Add(t)
}

// addCatalogTask adds catalog:<tap>: run --discover, cache the base
// catalog locally and remotely.
func (e *Engine) addCatalogTask(ctx context.Context, g *task.Graph, tap *settings.Plugin, built map[string]bool) error {
	name := "catalog:" + tap.Name
	local := e.local(paths.BaseCatalog(tap.Name))
	remote := paths.BaseCatalog(tap.Name)
	binLocal, _ := e.binaryPaths(tap)
	configPath := e.configPath(tap.Name, "")

	deps := []string{"config:" + tap.Name}
	if built[tap.Name] {
		deps = append(deps, "build:"+tap.Name)
	}

	t := &task.Task{
		Name:     name,
		TaskDeps: deps,
		Actions: []task.ActionFunc{func(actionCtx context.Context) error {
			return Discover(actionCtx, e.Store, binLocal, configPath, local, remote)
		}},
		UpToDate: []task.UpToDateFunc{func() (bool, error) { return CatalogCached(ctx, e.Store, local, remote) }},
		Clean:    func(cleanCtx context.Context) error { return CleanCatalog(cleanCtx, e.Store, local, remote) },
	}
	return g.Add(t)
}

// addApplyTask adds apply:<tap>: selection + metadata overlay, applied
// once and re-applied only when the applied file is missing or the
// select/metadata config changed.
func (e *Engine) addApplyTask(g *task.Graph, tap *settings.Plugin) error {
	name := "apply:" + tap.Name
	baseLocal := e.local(paths.BaseCatalog(tap.Name))
	appliedLocal := e.local(paths.AppliedCatalog(tap.Name))
	strategy := catalogStrategyFor(tap)
	blob := map[string]any{"select": tap.Select, "metadata": tap.Metadata}

	t := &task.Task{
		Name:     name,
		TaskDeps: []string{"catalog:" + tap.Name},
		Actions: []task.ActionFunc{func(ctx context.Context) error {
			_, err := Apply(baseLocal, appliedLocal, tap.Select, tap.Metadata, strategy)
			return err
		}},
		UpToDate: []task.UpToDateFunc{
			fileExists(appliedLocal),
			task.ConfigChanged(e.SignatureDB, name, blob),
		},
	}
	return g.Add(t)
}

// addAboutTask adds about:<tap> for taps with the "about" capability:
// always not-up-to-date, file_dep=[bin, config], per spec §4.K.
func (e *Engine) addAboutTask(g *task.Graph, tap *settings.Plugin, built map[string]bool) error {
	name := "about:" + tap.Name
	binLocal, _ := e.binaryPaths(tap)
	configPath := e.configPath(tap.Name, "")

	deps := []string{"config:" + tap.Name}
	if built[tap.Name] {
		deps = append(deps, "build:"+tap.Name)
	}

	t := &task.Task{
		Name:     name,
		TaskDeps: deps,
		FileDeps: []string{binLocal, configPath},
		Actions: []task.ActionFunc{func(ctx context.Context) error {
			_, err := RunAbout(ctx, binLocal, configPath)
			return err
		}},
	}
	return g.Add(t)
}

// addTestTask adds test:<tap> for taps with the "test" capability.
func (e *Engine) addTestTask(g *task.Graph, tap *settings.Plugin) error {
	name := "test:" + tap.Name
	binLocal, _ := e.binaryPaths(tap)
	configPath := e.configPath(tap.Name, "")

	t := &task.Task{
		Name:     name,
		TaskDeps: []string{"apply:" + tap.Name},
		Actions: []task.ActionFunc{func(ctx context.Context) error {
			return RunTest(ctx, binLocal, configPath)
		}},
	}
	return g.Add(t)
}

// addIngestTask adds <tap>:reservoir: ingest tap output into the
// project reservoir. Clean compacts the reservoir's batch files.
func (e *Engine) addIngestTask(g *task.Graph, tap *settings.Plugin) error {
	name := tap.Name + ":reservoir"
	env := e.Settings.Env
	statePath := paths.State(env, tap.Name, "reservoir")
	reservoirBase := paths.ReservoirBase(env, tap.Name)

	t := &task.Task{
		Name:     name,
		TaskDeps: []string{"apply:" + tap.Name},
		Actions: []task.ActionFunc{func(actionCtx context.Context) error {
			binLocal, _ := e.binaryPaths(tap)
			configPath := e.configPath(tap.Name, "")
			catalogPath := e.local(paths.AppliedCatalog(tap.Name))
			hasState, _ := e.Store.Exists(actionCtx, statePath)

			spec := reservoir.IngestSpec{
				PipelineID:     e.PipelineID,
				Env:            env,
				TapName:        tap.Name,
				TapBinary:      binLocal,
				TapArgs:        pipeline.TapArgs(tap, configPath, e.local(statePath), catalogPath, hasState),
				TapEnv:         pipeline.BuildEnv(tap),
				Chain:          tap.StreamMaps(),
				LocalStatePath: statePath,
				TapLogPath:     e.local(paths.Log(env, fmt.Sprintf("reservoir-tap-%s-%s", tap.Name, e.PipelineID))),
			}
			return e.Ingestor.Ingest(actionCtx, e.Store, spec, e.Now)
		}},
		Clean: func(cleanCtx context.Context) error {
			return e.Compactor.Compact(cleanCtx, e.Store, reservoirBase, reservoir.CompactSpec{Env: env, TapName: tap.Name}, e.PipelineID)
		},
	}
	return g.Add(t)
}

// addPipelineTask adds <tap>:<target>: one full tap-to-target run.
func (e *Engine) addPipelineTask(g *task.Graph, tap, target *settings.Plugin, built map[string]bool) error {
	name := tap.Name + ":" + target.Name
	env := e.Settings.Env
	statePath := paths.State(env, tap.Name, target.Name)
	pipelineID := fmt.Sprintf("%s-%s-%s", e.PipelineID, tap.Name, target.Name)

	deps := []string{"apply:" + tap.Name, "config:" + target.Name + "--" + tap.Name}
	if built[tap.Name] {
		deps = append(deps, "build:"+tap.Name)
	}
	if built[target.Name] {
		deps = append(deps, "build:"+target.Name)
	}

	t := &task.Task{
		Name:     name,
		TaskDeps: deps,
		Actions: []task.ActionFunc{func(actionCtx context.Context) error {
			tapBin, _ := e.binaryPaths(tap)
			targetBin, _ := e.binaryPaths(target)
			tapConfig := e.configPath(tap.Name, "")
			targetConfig := e.configPath(target.Name, tap.Name)
			catalogPath := e.local(paths.AppliedCatalog(tap.Name))
			hasState, _ := e.Store.Exists(actionCtx, statePath)

			spec := pipeline.ExecuteSpec{
				RunSpec: pipeline.RunSpec{
					PipelineID:       pipelineID,
					TapName:          tap.Name,
					TapBinary:        tapBin,
					TapArgs:          pipeline.TapArgs(tap, tapConfig, e.local(statePath), catalogPath, hasState),
					TapEnv:           pipeline.BuildEnv(tap),
					TapSupportsState: tap.Has("state"),
					TargetName:       target.Name,
					TargetBinary:     targetBin,
					TargetArgs:       pipeline.TargetArgs(targetConfig),
					TargetEnv:        pipeline.BuildEnv(target),
					TapLogPath:       e.local(paths.Log(env, "tap-"+pipelineID)),
					TargetLogPath:    e.local(paths.Log(env, "target-"+pipelineID)),
					StateLogPath:     e.local(paths.Log(env, "state-"+pipelineID)),
					Chain:            tap.StreamMaps(),
				},
				Env:            env,
				LocalStatePath: statePath,
			}
			_, err := pipeline.Execute(actionCtx, e.Runtime, e.Store, spec, e.Now())
			return err
		}},
	}
	return g.Add(t)
}

// addEmitTask adds reservoir:<tap>-<target>: replay the reservoir into
// target.
func (e *Engine) addEmitTask(g *task.Graph, tap, target *settings.Plugin, built map[string]bool) error {
	name := fmt.Sprintf("reservoir:%s-%s", tap.Name, target.Name)
	env := e.Settings.Env
	statePath := paths.State(env, paths.ReservoirStateName(tap.Name), target.Name)
	reservoirBase := paths.ReservoirBase(env, tap.Name)

	var deps []string
	if built[target.Name] {
		deps = append(deps, "build:"+target.Name)
	}
	deps = append(deps, "config:"+target.Name+"--"+tap.Name)

	t := &task.Task{
		Name:     name,
		TaskDeps: deps,
		Actions: []task.ActionFunc{func(actionCtx context.Context) error {
			targetBin, _ := e.binaryPaths(target)
			targetConfig := e.configPath(target.Name, tap.Name)

			spec := reservoir.EmitSpec{
				Env:           env,
				TapName:       tap.Name,
				TargetName:    target.Name,
				TargetBinary:  targetBin,
				TargetArgs:    pipeline.TargetArgs(targetConfig),
				TargetEnv:     pipeline.BuildEnv(target),
				StatePath:     statePath,
				TargetLogPath: e.local(paths.Log(env, fmt.Sprintf("reservoir-emit-%s-%s-%s", tap.Name, target.Name, e.PipelineID))),
			}
			return e.Emitter.Emit(actionCtx, e.Store, reservoirBase, spec)
		}},
	}
	return g.Add(t)
}
