// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserErrorWrapping(t *testing.T) {
	inner := stderrors.New("disk full")
	err := NewConfigError("Cannot write config", "The disk is full", "Free some space", inner)

	assert.Equal(t, ExitConfig, err.ExitCode)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "disk full")
}

func TestUserErrorFormatNoColor(t *testing.T) {
	err := NewNotFoundError("Symbol not found", "No such function", "Run scalpel analyze")
	out := err.Format(true)
	assert.Contains(t, out, "Error: Symbol not found")
	assert.Contains(t, out, "Cause: No such function")
	assert.Contains(t, out, "Fix:   Run scalpel analyze")
}

func TestUserErrorToJSON(t *testing.T) {
	err := NewInputError("Bad argument", "", "")
	j := err.ToJSON()
	assert.Equal(t, "Bad argument", j.Error)
	assert.Equal(t, ExitInput, j.ExitCode)
	assert.Empty(t, j.Cause)
}

func TestAnalysisErrorLocation(t *testing.T) {
	err := NewAnalysis(KindParseError, "unexpected token").WithLocation(4, 2)
	assert.Contains(t, err.Error(), "parse_error")
	assert.Contains(t, err.Error(), "line 4")
	require.NotNil(t, err.Location)
	assert.Equal(t, 4, err.Location.Line)
}

func TestAnalysisErrorUnwrap(t *testing.T) {
	inner := stderrors.New("root cause")
	err := &AnalysisError{Kind: KindInternal, Message: "wrapper", Err: inner}
	assert.ErrorIs(t, err, inner)

	var target *AnalysisError
	assert.ErrorAs(t, error(err), &target)
}
