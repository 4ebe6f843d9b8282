// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package testing provides shared helpers for Scalpel tests.
package testing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kraklabs/scalpel/pkg/engine"
)

// SetupTestEngine creates an engine over a temp project root.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    eng, root := testing.SetupTestEngine(t)
//	    testing.WriteTestFile(t, root, "app.py", "def f():\n    return 1\n")
//	    // Run your tests...
//	}
func SetupTestEngine(t *testing.T) (*engine.Engine, string) {
	t.Helper()
	root := t.TempDir()
	cfg := engine.DefaultConfig(root)
	return engine.New(cfg, nil), root
}

// WriteTestFile seeds one source file beneath the project root and returns
// its absolute path.
func WriteTestFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return full
}
