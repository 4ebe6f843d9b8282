// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package bootstrap

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/scalpel/pkg/engine"
)

func TestInitProjectIdempotent(t *testing.T) {
	root := t.TempDir()

	info, err := InitProject(root, nil)
	require.NoError(t, err)
	assert.True(t, info.Created)

	data, err := os.ReadFile(info.ConfigPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "allowed_roots")

	again, err := InitProject(root, nil)
	require.NoError(t, err)
	assert.False(t, again.Created)

	cfg, err := engine.LoadConfig(root)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.AllowedRoots)
}
