// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"
	"strings"

	"github.com/kraklabs/alto/internal/errors"
)

// Graph is a named collection of tasks with their dependency edges.
// Tasks are deliberately generated and added in bulk (builds, configs,
// catalogs, pipelines, reservoir jobs) by an engine and validated once
// before any run.
type Graph struct {
	tasks map[string]*Task
	order []string
}

// NewGraph returns an empty task graph.
func NewGraph() *Graph {
	return &Graph{tasks: map[string]*Task{}}
}

// Add registers t. Re-adding a name that already exists is a config
// error: task sets are generated once per engine run and a collision
// signals two generators picked the same name.
func (g *Graph) Add(t *Task) error {
	if _, exists := g.tasks[t.Name]; exists {
		return errors.NewConfigError(
			fmt.Sprintf("duplicate task %q", t.Name),
			"a task with this name is already registered",
			"ensure generated task names are unique per plugin/tap/target",
			nil,
		)
	}
	g.tasks[t.Name] = t
	g.order = append(g.order, t.Name)
	return nil
}

// Get returns the task named name, if any.
func (g *Graph) Get(name string) (*Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// Names returns every registered task name in insertion order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Validate checks that every TaskDeps reference resolves to a
// registered task and that the dependency graph is acyclic, via
// recursive DFS with three-color node marking (white/unvisited,
// gray/in-progress, black/done).
func (g *Graph) Validate() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.tasks))

	var visit func(name string, chain []string) error
	visit = func(name string, chain []string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return errors.NewConfigError(
				fmt.Sprintf("task dependency cycle detected at %q", name),
				strings.Join(append(append([]string{}, chain...), name), " -> "),
				"break the cycle in the generated task dependencies",
				nil,
			)
		}
		t, ok := g.tasks[name]
		if !ok {
			reason := fmt.Sprintf("task %q depends on unknown task %q", chainTail(chain), name)
			return errors.NewConfigError(reason, "no task with that name is registered", "check generated task names for typos", nil)
		}
		color[name] = gray
		for _, dep := range t.TaskDeps {
			if err := visit(dep, append(append([]string{}, chain...), name)); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}

	for _, name := range g.order {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func chainTail(chain []string) string {
	if len(chain) == 0 {
		return "<root>"
	}
	return chain[len(chain)-1]
}

// closure returns every task in targets plus, transitively, every task
// they depend on.
func (g *Graph) closure(targets []string) (map[string]bool, error) {
	out := map[string]bool{}
	var visit func(name string) error
	visit = func(name string) error {
		if out[name] {
			return nil
		}
		t, ok := g.tasks[name]
		if !ok {
			return errors.NewConfigError(
				fmt.Sprintf("unknown task %q", name),
				"no task with that name is registered",
				"check the task name for typos",
				nil,
			)
		}
		out[name] = true
		for _, dep := range t.TaskDeps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range targets {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}
