// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/scalpel/internal/errors"
)

// resolvePath validates a path argument against the configured allowed
// roots. Inputs are resolved to absolute form; escapes return
// path_outside_root and symlinks are refused unless the configuration
// enables them.
func (d *Dispatcher) resolvePath(path string) (string, error) {
	if path == "" {
		return "", argError("path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", argError("path %q cannot be resolved", path)
	}
	abs = filepath.Clean(abs)

	cfg := d.eng.Config()
	inside := false
	for _, root := range cfg.AllowedRoots {
		absRoot, rerr := filepath.Abs(root)
		if rerr != nil {
			continue
		}
		if abs == absRoot || strings.HasPrefix(abs, absRoot+string(filepath.Separator)) {
			inside = true
			break
		}
	}
	if !inside {
		return "", errors.NewAnalysis(errors.KindPathOutsideRoot,
			"path escapes the configured allowed roots").
			WithSuggestion("pass a path inside the project root")
	}

	info, err := os.Lstat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewAnalysis(errors.KindPathNotFound, "path does not exist: "+path)
		}
		if os.IsPermission(err) {
			return "", errors.NewAnalysis(errors.KindPathAccessDenied, "path is not accessible: "+path)
		}
		return "", err
	}
	if info.Mode()&os.ModeSymlink != 0 && !cfg.FollowSymlinks {
		return "", errors.NewAnalysis(errors.KindPathOutsideRoot,
			"symlinks are not followed").
			WithSuggestion("enable follow_symlinks in .scalpel/project.yaml to allow this")
	}
	return abs, nil
}

// PathValidity is one entry of the validate_paths response.
type PathValidity struct {
	Path   string `json:"path"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}
