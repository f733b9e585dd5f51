// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured error handling for Alto.
//
// It defines AltoError, a type that carries structured error information
// — what went wrong, why, and how to fix it — plus a Kind that maps onto
// the error taxonomy of the task engine and pipeline runtime (config
// errors, binary errors, discovery errors, pipeline failures, reservoir
// locks, decode errors, state-merge errors, and store errors). Each Kind
// carries a semantic process exit code so an out-of-scope CLI can map
// failures to consistent exit behavior.
package errors

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Kind classifies an AltoError for exit-code mapping and programmatic
// handling, matching the error taxonomy of spec §7.
type Kind int

const (
	// KindConfig covers missing/invalid plugin specs, inheritance cycles,
	// unknown plugin names, and unsupported object-store schemes.
	KindConfig Kind = iota
	// KindBinary covers failure to obtain or build a plugin binary.
	KindBinary
	// KindDiscovery covers a tap's --discover exiting non-zero.
	KindDiscovery
	// KindPipeline covers a subprocess or map-worker failure mid-run.
	KindPipeline
	// KindReservoirLocked covers a reservoir lock already held.
	KindReservoirLocked
	// KindDecode covers an unparseable Singer message line.
	KindDecode
	// KindStateMerge covers a state document that isn't a JSON object.
	KindStateMerge
	// KindStore covers a transient object-store failure.
	KindStore
	// KindInternal covers bugs: assertion failures, unreachable branches.
	KindInternal
)

// Exit codes for each Kind, following Unix conventions.
const (
	ExitSuccess         = 0
	ExitConfig          = 1
	ExitBinary          = 2
	ExitDiscovery       = 3
	ExitPipeline        = 4
	ExitReservoirLocked = 5
	ExitDecode          = 6
	ExitStateMerge      = 7
	ExitStore           = 8
	ExitInternal        = 10
)

func (k Kind) exitCode() int {
	switch k {
	case KindConfig:
		return ExitConfig
	case KindBinary:
		return ExitBinary
	case KindDiscovery:
		return ExitDiscovery
	case KindPipeline:
		return ExitPipeline
	case KindReservoirLocked:
		return ExitReservoirLocked
	case KindDecode:
		return ExitDecode
	case KindStateMerge:
		return ExitStateMerge
	case KindStore:
		return ExitStore
	default:
		return ExitInternal
	}
}

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindBinary:
		return "binary"
	case KindDiscovery:
		return "discovery"
	case KindPipeline:
		return "pipeline"
	case KindReservoirLocked:
		return "reservoir_locked"
	case KindDecode:
		return "decode"
	case KindStateMerge:
		return "state_merge"
	case KindStore:
		return "store"
	default:
		return "internal"
	}
}

// AltoError carries structured context about a failure: what went wrong
// (Message), why (Cause), and how to fix it (Fix), plus the Kind used to
// pick an exit code and the wrapped underlying error, if any.
type AltoError struct {
	Kind    Kind
	Message string
	Cause   string
	Fix     string
	Err     error
}

// Error implements the error interface.
func (e *AltoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap enables errors.Is/errors.As over the wrapped cause.
func (e *AltoError) Unwrap() error {
	return e.Err
}

// ExitCode returns the process exit code associated with e.Kind.
func (e *AltoError) ExitCode() int {
	return e.Kind.exitCode()
}

func newErr(kind Kind, msg, cause, fix string, err error) *AltoError {
	return &AltoError{Kind: kind, Message: msg, Cause: cause, Fix: fix, Err: err}
}

// NewConfigError builds a KindConfig error. Fatal at setup; never retried.
func NewConfigError(msg, cause, fix string, err error) *AltoError {
	return newErr(KindConfig, msg, cause, fix, err)
}

// NewBinaryError builds a KindBinary error.
func NewBinaryError(msg, cause, fix string, err error) *AltoError {
	return newErr(KindBinary, msg, cause, fix, err)
}

// NewDiscoveryError builds a KindDiscovery error.
func NewDiscoveryError(msg, cause, fix string, err error) *AltoError {
	return newErr(KindDiscovery, msg, cause, fix, err)
}

// NewPipelineError builds a KindPipeline error.
func NewPipelineError(msg, cause, fix string, err error) *AltoError {
	return newErr(KindPipeline, msg, cause, fix, err)
}

// NewReservoirLockedError builds a KindReservoirLocked error. No retry.
func NewReservoirLockedError(msg, cause, fix string) *AltoError {
	return newErr(KindReservoirLocked, msg, cause, fix, nil)
}

// NewDecodeError builds a KindDecode error for an unparseable line.
func NewDecodeError(msg, cause string, err error) *AltoError {
	return newErr(KindDecode, msg, cause, "", err)
}

// NewStateMergeError builds a KindStateMerge error.
func NewStateMergeError(msg, cause, fix string, err error) *AltoError {
	return newErr(KindStateMerge, msg, cause, fix, err)
}

// NewStoreError builds a KindStore error for a transient store failure.
func NewStoreError(msg, cause, fix string, err error) *AltoError {
	return newErr(KindStore, msg, cause, fix, err)
}

// NewInternalError builds a KindInternal error for unexpected conditions.
func NewInternalError(msg, cause, fix string, err error) *AltoError {
	return newErr(KindInternal, msg, cause, fix, err)
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format renders e for terminal display, with colored Error/Cause/Fix
// sections. Color is disabled when noColor is true or NO_COLOR is set.
//
// This method sets the global color.NoColor for the duration of the
// call and restores its previous value afterward. The global is not
// locked, so concurrent calls can still observe each other's setting.
func (e *AltoError) Format(noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")

	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}

	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}

	return out.String()
}

// JSON represents an AltoError in machine-readable form.
type JSON struct {
	Kind     string `json:"kind"`
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ToJSON converts e to a JSON-serializable structure.
func (e *AltoError) ToJSON() JSON {
	return JSON{
		Kind:     e.Kind.String(),
		Error:    e.Message,
		Cause:    e.Cause,
		Fix:      e.Fix,
		ExitCode: e.ExitCode(),
	}
}

// FatalError prints err and exits with its exit code. For a non-AltoError
// it prints a plain message and exits with ExitInternal. Never returns.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	if ae, ok := err.(*AltoError); ok {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			_ = enc.Encode(ae.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, ae.Format(false))
		}
		os.Exit(ae.ExitCode())
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitInternal)
}
