// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/scalpel/pkg/lang"
)

const conflictInput = "def f():\n<<<<<<< HEAD\n    return 1\n=======\n    return 2\n>>>>>>> branch\n"

func TestStrictModeReturnsInputUnchanged(t *testing.T) {
	out, report, err := Sanitize(conflictInput, lang.Python, Policy{Mode: ModeStrict})
	require.NoError(t, err)
	assert.Equal(t, conflictInput, out)
	assert.False(t, report.Modified)
	assert.Empty(t, report.Changes)
}

func TestPermissiveRemovesConflictMarkers(t *testing.T) {
	out, report, err := Sanitize(conflictInput, lang.Python, DefaultPolicy())
	require.NoError(t, err)

	assert.True(t, report.Modified)
	require.NotEmpty(t, report.Changes)
	assert.Contains(t, report.Changes[0].Reason, "merge conflict")
	assert.Equal(t, 2, report.Changes[0].Line)

	assert.NotContains(t, out, "<<<<<<<")
	assert.NotContains(t, out, "=======")
	assert.NotContains(t, out, ">>>>>>>")

	// Line count is preserved so downstream spans stay correct.
	assert.Equal(t, strings.Count(conflictInput, "\n"), strings.Count(out, "\n"))
}

func TestPermissiveReplacesTemplateSyntax(t *testing.T) {
	input := "{% if user %}\nname = {{ user.name }}\n{# note #}\n"
	out, report, err := Sanitize(input, lang.Python, DefaultPolicy())
	require.NoError(t, err)

	assert.True(t, report.Modified)
	assert.Contains(t, out, "name = None")
	assert.NotContains(t, out, "{%")
	assert.NotContains(t, out, "{{")
	assert.NotContains(t, out, "{#")
}

func TestNeutralLiteralFollowsLanguage(t *testing.T) {
	out, _, err := Sanitize("const n = {{ v }};\n", lang.JavaScript, DefaultPolicy())
	require.NoError(t, err)
	assert.Contains(t, out, "const n = null;")
}

func TestSanitizeIdempotence(t *testing.T) {
	inputs := []string{
		conflictInput,
		"{% block %}\nx = {{ y }}\n",
		"plain = 1\n",
		"",
	}
	for _, input := range inputs {
		for _, p := range []Policy{DefaultPolicy(), {Mode: ModeStrict}} {
			once, _, err := Sanitize(input, lang.Python, p)
			require.NoError(t, err)
			twice, report, err := Sanitize(once, lang.Python, p)
			require.NoError(t, err)
			assert.Equal(t, once, twice, "sanitize must be idempotent for %q", input)
			assert.False(t, report.Modified)
		}
	}
}

func TestNonUTF8FailsWithEncodingError(t *testing.T) {
	_, _, err := Sanitize("x = 1\n\xff\xfe", lang.Python, DefaultPolicy())
	require.Error(t, err)
	var encErr *ErrNotUTF8
	assert.ErrorAs(t, err, &encErr)
}

func TestReportModificationsOff(t *testing.T) {
	p := DefaultPolicy()
	p.ReportModifications = false
	_, report, err := Sanitize(conflictInput, lang.Python, p)
	require.NoError(t, err)
	assert.True(t, report.Modified)
	assert.Empty(t, report.Changes)
}
