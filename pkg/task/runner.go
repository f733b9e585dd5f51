// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/kraklabs/alto/internal/errors"
)

// Result is the outcome of one task's evaluation: either it was
// up to date and skipped, or it ran and either succeeded or failed.
type Result struct {
	Name     string
	Ran      bool
	Err      error
	Duration time.Duration
}

// Runner schedules and executes a Graph's tasks with a bounded worker
// pool: a task becomes eligible for a worker the moment every task it
// depends on has completed. Parallel siblings may run in any order or
// interleaving; a task never starts before its dependencies finish.
type Runner struct {
	Graph   *Graph
	Workers int
}

// NewRunner returns a Runner over g with the given worker count. A
// non-positive count defaults to runtime.NumCPU(), matching the
// "thread pool" scheduling model.
func NewRunner(g *Graph, workers int) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{Graph: g, Workers: workers}
}

// scheduler holds the mutable, mutex-guarded dispatch state shared by
// every worker goroutine during one Run.
type scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	indegree   map[string]int
	dependents map[string][]string
	queue      []string
	failed     map[string]bool
	done       map[string]bool
	results    map[string]*Result
}

// Run validates the graph, computes the transitive closure of targets,
// and executes every task in that closure respecting TaskDeps order. A
// task whose dependency failed (directly or transitively) is itself
// recorded as failed without running, so unrelated subtrees are never
// blocked by a failure elsewhere in the graph.
func (r *Runner) Run(ctx context.Context, targets []string) (map[string]*Result, error) {
	if err := r.Graph.Validate(); err != nil {
		return nil, err
	}
	needed, err := r.Graph.closure(targets)
	if err != nil {
		return nil, err
	}

	sch := &scheduler{
		indegree:   map[string]int{},
		dependents: map[string][]string{},
		failed:     map[string]bool{},
		done:       map[string]bool{},
		results:    make(map[string]*Result, len(needed)),
	}
	sch.cond = sync.NewCond(&sch.mu)

	for name := range needed {
		t, _ := r.Graph.Get(name)
		for _, dep := range t.TaskDeps {
			if needed[dep] {
				sch.indegree[name]++
				sch.dependents[dep] = append(sch.dependents[dep], name)
			}
		}
	}
	for name := range needed {
		if sch.indegree[name] == 0 {
			sch.queue = append(sch.queue, name)
		}
	}

	total := len(needed)
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > total && total > 0 {
		workers = total
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, sch, total)
		}()
	}
	wg.Wait()

	return sch.results, nil
}

func (r *Runner) worker(ctx context.Context, sch *scheduler, total int) {
	for {
		sch.mu.Lock()
		for len(sch.queue) == 0 && len(sch.done) < total {
			sch.cond.Wait()
		}
		if len(sch.done) >= total {
			sch.mu.Unlock()
			return
		}
		name := sch.queue[0]
		sch.queue = sch.queue[1:]
		blocked := false
		t, _ := r.Graph.Get(name)
		for _, dep := range t.TaskDeps {
			if sch.failed[dep] {
				blocked = true
				break
			}
		}
		sch.mu.Unlock()

		var res *Result
		if blocked {
			res = &Result{Name: name, Ran: false, Err: errors.NewInternalError(
				fmt.Sprintf("task %q skipped: a dependency failed", name),
				"one or more task dependencies did not succeed",
				"fix the failing dependency and rerun",
				nil,
			)}
			recordTaskRun(name, "blocked")
		} else {
			res = r.runTask(ctx, t)
		}

		sch.mu.Lock()
		sch.results[name] = res
		sch.done[name] = true
		if res.Err != nil {
			sch.failed[name] = true
		}
		for _, dependent := range sch.dependents[name] {
			sch.indegree[dependent]--
			if sch.indegree[dependent] == 0 {
				sch.queue = append(sch.queue, dependent)
			}
		}
		sch.cond.Broadcast()
		sch.mu.Unlock()
	}
}

// runTask evaluates t's freshness, and if stale, runs Setup, then
// Actions in order (stopping at the first error), then Teardown
// unconditionally — even when Setup or an action failed.
func (r *Runner) runTask(ctx context.Context, t *Task) *Result {
	start := time.Now()

	upToDate, err := evalUpToDate(t.UpToDate)
	if err == nil && upToDate {
		recordTaskRun(t.Name, "uptodate")
		return &Result{Name: t.Name, Ran: false}
	}
	if err != nil {
		recordTaskRun(t.Name, "failed")
		return &Result{Name: t.Name, Ran: false, Err: err}
	}

	var runErr error
	if t.Setup != nil {
		runErr = t.Setup(ctx)
	}
	if runErr == nil {
		for _, action := range t.Actions {
			if aerr := action(ctx); aerr != nil {
				runErr = aerr
				break
			}
		}
	}
	if t.Teardown != nil {
		if terr := t.Teardown(ctx); terr != nil && runErr == nil {
			runErr = terr
		}
	}

	dur := time.Since(start)
	recordTaskDuration(t.Name, dur.Seconds())
	recordTaskRun(t.Name, resultLabel(runErr))

	return &Result{Name: t.Name, Ran: true, Err: runErr, Duration: dur}
}

func resultLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// Clean runs the Clean action (if any) of every task in targets' closure.
// It is never invoked by Run; callers dispatch it explicitly.
func (r *Runner) Clean(ctx context.Context, targets []string) error {
	needed, err := r.Graph.closure(targets)
	if err != nil {
		return err
	}
	for name := range needed {
		t, _ := r.Graph.Get(name)
		if t.Clean == nil {
			continue
		}
		if err := t.Clean(ctx); err != nil {
			return err
		}
	}
	return nil
}
