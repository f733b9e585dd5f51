// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

// Package bootstrap finds an Alto project root, loads its settings
// document and plugin manifest, and opens the local store/signature
// database the engine runs against.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/alto/pkg/settings"
	"github.com/kraklabs/alto/pkg/store"
	"github.com/kraklabs/alto/pkg/task"
)

// ManifestFile is the project configuration file Alto looks for,
// starting at the working directory and walking up to the filesystem
// root.
const ManifestFile = "alto.yml"

// WorkDirName is the project-local staging directory the engine's
// local store is rooted at, sibling to the manifest.
const WorkDirName = ".alto"

// SignatureFile is the persistent task freshness database. It is read
// and written through the project store, so it lives inside the work
// directory (root/.alto/.alto.json), not beside the manifest.
const SignatureFile = ".alto.json"

// pluginDoc mirrors one entry under taps/targets/utilities in
// alto.yml: pip_url is the plugin's requirement string, executable
// is used as the entrypoint when entrypoint itself is unset.
type pluginDoc struct {
	PipURL      string                    `yaml:"pip_url"`
	Executable  string                    `yaml:"executable"`
	Entrypoint  string                    `yaml:"entrypoint"`
	InheritFrom string                    `yaml:"inherit_from"`
	Select      []string                  `yaml:"select"`
	Metadata    map[string]map[string]any `yaml:"metadata"`
	Config      map[string]any            `yaml:"config"`
	Capabilities []string                 `yaml:"capabilities"`
}

type manifestDoc struct {
	ProjectID string                `yaml:"project_id"`
	Taps      map[string]pluginDoc  `yaml:"taps"`
	Targets   map[string]pluginDoc  `yaml:"targets"`
	Utilities map[string]pluginDoc  `yaml:"utilities"`
}

// Project bundles everything RunTask needs once a manifest has been
// located and parsed.
type Project struct {
	Root      string
	WorkDir   string
	ProjectID string
	Settings  *settings.Settings
	Store     store.Store
}

// FindRoot walks up from dir looking for ManifestFile, returning the
// directory it was found in. dir == "" starts from the current
// working directory.
func FindRoot(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve project directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, ManifestFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s found in %q or any parent directory", ManifestFile, dir)
		}
		dir = parent
	}
}

// Load reads root's manifest, merges it into a settings.Settings (env
// layers, plugin definitions), and opens the local store rooted at
// root/.alto.
func Load(root string) (*Project, error) {
	raw, err := os.ReadFile(filepath.Join(root, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ManifestFile, err)
	}

	s, err := settings.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}

	var doc manifestDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plugin manifest: %w", err)
	}
	s.Plugins = mergePlugins(doc)

	workDir := filepath.Join(root, WorkDirName)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	st, err := store.NewLocal(workDir)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	return &Project{
		Root:      root,
		WorkDir:   workDir,
		ProjectID: doc.ProjectID,
		Settings:  s,
		Store:     st,
	}, nil
}

func mergePlugins(doc manifestDoc) map[string]*settings.Plugin {
	out := map[string]*settings.Plugin{}
	add := func(kind settings.Kind, defs map[string]pluginDoc) {
		for name, d := range defs {
			caps := map[string]bool{}
			for _, c := range d.Capabilities {
				caps[c] = true
			}
			entrypoint := d.Entrypoint
			if entrypoint == "" {
				entrypoint = d.Executable
			}
			out[name] = &settings.Plugin{
				Name:         name,
				Kind:         kind,
				Requirement:  d.PipURL,
				InheritFrom:  d.InheritFrom,
				Capabilities: caps,
				Select:       d.Select,
				Metadata:     d.Metadata,
				Config:       d.Config,
				Entrypoint:   entrypoint,
			}
		}
	}
	add(settings.Tap, doc.Taps)
	add(settings.Target, doc.Targets)
	add(settings.Utility, doc.Utilities)
	return out
}

// LoadSignatureDB opens the project's persistent task-freshness
// database, creating an empty one if it doesn't exist yet.
func LoadSignatureDB(ctx context.Context, p *Project) (*task.SignatureDB, error) {
	return task.LoadSignatureDB(ctx, p.Store, SignatureFile)
}

// SaveSignatureDB persists db back to the project's signature file.
func SaveSignatureDB(ctx context.Context, p *Project, db *task.SignatureDB) error {
	return db.Save(ctx, p.Store, SignatureFile)
}
