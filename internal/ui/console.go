// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package ui

import (
	"fmt"
	"io"
	"sync"
)

// Console serializes writes from concurrent subprocess stderr loggers so
// two pipelines never interleave partial lines on the shared terminal.
// The pipeline runtime spawns one stderr logger per subprocess (tap and
// target); both drain into the same Console, guarded by mu, matching the
// "console mutex" requirement of the concurrency model.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{out: w}
}

// WriteLine writes a single line, prefixed with tag, atomically with
// respect to other WriteLine calls on the same Console.
func (c *Console) WriteLine(tag, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s %s\n", tag, line)
}
