// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package bootstrap initializes a Scalpel project workspace.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/scalpel/pkg/engine"
)

// ProjectInfo holds information about an initialized project.
type ProjectInfo struct {
	ProjectID  string
	Root       string
	ConfigPath string
	Created    bool
}

// InitProject writes .scalpel/project.yaml beneath root with sane defaults.
// The function is idempotent: an existing configuration is left untouched
// and reported with Created=false.
func InitProject(root string, logger *slog.Logger) (*ProjectInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	configPath := filepath.Join(abs, engine.ConfigFileName)

	info := &ProjectInfo{
		ProjectID:  filepath.Base(abs),
		Root:       abs,
		ConfigPath: configPath,
	}

	if _, err := os.Stat(configPath); err == nil {
		logger.Info("bootstrap.exists", "config", configPath)
		return info, nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	cfg := engine.DefaultConfig(abs)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}

	info.Created = true
	logger.Info("bootstrap.created", "config", configPath, "project", info.ProjectID)
	return info, nil
}
