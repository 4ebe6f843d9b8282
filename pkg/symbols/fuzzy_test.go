// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/scalpel/pkg/lang"
	"github.com/kraklabs/scalpel/pkg/pir"
)

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("process_order", "process_order"))
	assert.GreaterOrEqual(t, Similarity("proces_order", "process_order"), 0.85)
	assert.Less(t, Similarity("foo", "process_order"), 0.3)
	assert.Equal(t, 0.0, Similarity("", "x"))
}

func TestSuggestRanksTypo(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "orders.py", `def process_order(o):
    return o

def process_refund(o):
    return o

def unrelated():
    return None
`)
	table := Build(map[string]*pir.Tree{"orders.py": tree})

	suggestions := table.Suggest("proces_order", 0.6, 5)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "process_order", suggestions[0].Symbol)
	assert.GreaterOrEqual(t, suggestions[0].Score, 0.85)
	for _, s := range suggestions {
		assert.GreaterOrEqual(t, s.Score, 0.6, "suggestions below threshold must not surface")
	}
}

func TestSuggestEmptyForNoise(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "m.py", "def alpha():\n    return 1\n")
	table := Build(map[string]*pir.Tree{"m.py": tree})
	assert.Empty(t, table.Suggest("zzzzzzzz", 0.6, 5))
}
