// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromPath(t *testing.T) {
	cases := map[string]string{
		"app.py":        Python,
		"lib/mod.PY":    Python,
		"index.js":      JavaScript,
		"server.ts":     TypeScript,
		"Main.java":     Java,
		"readme.md":     "",
		"noextension":   "",
		"component.tsx": TypeScript,
	}
	for path, want := range cases {
		assert.Equal(t, want, FromPath(path), "path %s", path)
	}
}

func TestDetectExplicitWins(t *testing.T) {
	language, ok := Detect("whatever", Python)
	assert.True(t, ok)
	assert.Equal(t, Python, language)

	_, ok = Detect("whatever", "cobol")
	assert.False(t, ok)
}

func TestDetectShebang(t *testing.T) {
	language, ok := Detect("#!/usr/bin/env python3\nprint(1)\n", "")
	assert.True(t, ok)
	assert.Equal(t, Python, language)

	language, ok = Detect("#!/usr/bin/env node\nconsole.log(1)\n", "")
	assert.True(t, ok)
	assert.Equal(t, JavaScript, language)
}

func TestDetectHeuristics(t *testing.T) {
	language, ok := Detect("def handle(x):\n    return x\n\nimport os\n", "")
	assert.True(t, ok)
	assert.Equal(t, Python, language)

	language, ok = Detect("const f = (x) => x * 2;\nfunction g() {}\n", "")
	assert.True(t, ok)
	assert.Equal(t, JavaScript, language)

	language, ok = Detect("interface User { name: string }\nconst u: User = { name: 'a' };\n", "")
	assert.True(t, ok)
	assert.Equal(t, TypeScript, language)

	language, ok = Detect("package com.example;\n\npublic class Main {\n}\n", "")
	assert.True(t, ok)
	assert.Equal(t, Java, language)
}

func TestDetectAmbiguous(t *testing.T) {
	_, ok := Detect("x", "")
	assert.False(t, ok)
}

func TestCommentPrefixAndNeutralLiteral(t *testing.T) {
	assert.Equal(t, "#", CommentPrefix(Python))
	assert.Equal(t, "//", CommentPrefix(Java))
	assert.Equal(t, "None", NeutralLiteral(Python))
	assert.Equal(t, "null", NeutralLiteral(TypeScript))
}
