// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package ui

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a structured logger for engine-level events (task
// start/done, pipeline stage transitions). Output is JSON when
// ALTO_LOG_FORMAT=json, human text otherwise, writing to w.
func NewLogger(w io.Writer) *slog.Logger {
	if os.Getenv("ALTO_LOG_FORMAT") == "json" {
		return slog.New(slog.NewJSONHandler(w, nil))
	}
	return slog.New(slog.NewTextHandler(w, nil))
}
