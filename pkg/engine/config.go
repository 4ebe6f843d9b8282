// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package engine wires the analysis pipeline: sanitizer, front ends, IR
// normalizer, symbol table and dependence graphs, fronted by the result
// cache.
package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/scalpel/pkg/sanitize"
)

// ConfigFileName is the project configuration path relative to the root.
const ConfigFileName = ".scalpel/project.yaml"

// Config is the engine configuration, loaded from .scalpel/project.yaml.
type Config struct {
	// ProjectID is the logical project identifier.
	ProjectID string `yaml:"project_id"`

	// AllowedRoots are the directories path arguments may resolve into.
	// Empty means the project root only.
	AllowedRoots []string `yaml:"allowed_roots"`

	// FollowSymlinks admits symlinked files to the crawl and symlinked path
	// arguments; off by default. Symlinked directories are not descended
	// even when it is set.
	FollowSymlinks bool `yaml:"follow_symlinks"`

	// ExcludeGlobs are crawl exclusion patterns. A pattern without a
	// separator matches any single path segment.
	ExcludeGlobs []string `yaml:"exclude_globs"`

	// MaxFileSize bounds the size of crawled files, bytes. Zero uses the
	// default of 1 MiB.
	MaxFileSize int64 `yaml:"max_file_size"`

	// Sanitize is the default sanitization policy.
	Sanitize sanitize.Policy `yaml:"sanitize"`

	// RulesetDir overrides the embedded taint rulesets when set.
	RulesetDir string `yaml:"ruleset_dir"`

	// CacheCapacity bounds the analysis cache entry count.
	CacheCapacity int `yaml:"cache_capacity"`

	// Limits are the engine default per-call limits.
	Limits LimitDefaults `yaml:"limits"`
}

// LimitDefaults hold engine-side defaults for the per-call limits struct.
type LimitDefaults struct {
	MaxFindings   int `yaml:"max_findings"`
	MaxFiles      int `yaml:"max_files"`
	MaxNodes      int `yaml:"max_nodes"`
	MaxDepth      int `yaml:"max_depth"`
	MaxPaths      int `yaml:"max_paths"`
	MaxLoopUnroll int `yaml:"max_loop_unroll"`
}

// DefaultConfig returns the configuration used when no project file exists.
func DefaultConfig(root string) *Config {
	return &Config{
		ProjectID:    filepath.Base(root),
		AllowedRoots: []string{root},
		MaxFileSize:  1 << 20,
		Sanitize:     sanitize.DefaultPolicy(),
		ExcludeGlobs: []string{"node_modules", ".git", "vendor", "__pycache__", "dist", "build"},
		Limits: LimitDefaults{
			MaxFindings:   100,
			MaxFiles:      2000,
			MaxNodes:      5000,
			MaxDepth:      10,
			MaxPaths:      25,
			MaxLoopUnroll: 3,
		},
	}
}

// LoadConfig reads the project configuration beneath root, falling back to
// defaults when the file does not exist.
func LoadConfig(root string) (*Config, error) {
	cfg := DefaultConfig(root)
	path := filepath.Join(root, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.AllowedRoots) == 0 {
		cfg.AllowedRoots = []string{root}
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 1 << 20
	}
	if cfg.Sanitize.Mode == "" {
		cfg.Sanitize = sanitize.DefaultPolicy()
	}
	return cfg, nil
}
