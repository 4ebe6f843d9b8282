// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package surgery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/scalpel/pkg/frontend"
	"github.com/kraklabs/scalpel/pkg/lang"
	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/symbols"
)

func lowerUnit(t *testing.T, language, unit, code string) *pir.Tree {
	t.Helper()
	fe, err := frontend.ForLanguage(language)
	require.NoError(t, err)
	native, err := fe.Parse(context.Background(), []byte(code), frontend.Options{})
	require.NoError(t, err)
	defer native.Close()
	tree, err := pir.Lower(native, unit)
	require.NoError(t, err)
	return tree
}

func pyParse(t *testing.T) ParseFunc {
	t.Helper()
	return func(ctx context.Context, unit, code string) (*pir.Tree, error) {
		fe, err := frontend.ForLanguage(lang.Python)
		if err != nil {
			return nil, err
		}
		native, err := fe.Parse(ctx, []byte(code), frontend.Options{})
		if err != nil {
			return nil, err
		}
		defer native.Close()
		return pir.Lower(native, unit)
	}
}

const orderFile = `import math

def helper(x):
    return math.floor(x)

def process_order(o):
    total = helper(o)
    return total

class Shop:
    def process_order(self, o):
        return o
`

func TestExtractFunction(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "orders.py", orderFile)

	ex, err := Extract(tree, TargetFunction, "process_order")
	require.NoError(t, err)

	assert.Equal(t, "process_order", ex.Name)
	assert.True(t, strings.HasPrefix(ex.Code, "def process_order(o):"))
	assert.Equal(t, 6, ex.StartLine)
	assert.Equal(t, 8, ex.EndLine)
	assert.Greater(t, ex.TokenEstimate, 0)
	assert.Less(t, ex.TokenEstimate, EstimateTokens(orderFile), "the slice is smaller than the file")
}

func TestExtractMethodQualified(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "orders.py", orderFile)

	ex, err := Extract(tree, TargetMethod, "Shop.process_order")
	require.NoError(t, err)
	assert.Contains(t, ex.Code, "def process_order(self, o):")
}

func TestExtractNotFound(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "orders.py", orderFile)
	_, err := Extract(tree, TargetFunction, "missing")
	var notFound *ErrNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Name)
}

func TestExtractWithContext(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "orders.py", orderFile)
	trees := map[string]*pir.Tree{"orders.py": tree}
	table := symbols.Build(trees)

	ex, err := Extract(tree, TargetFunction, "process_order")
	require.NoError(t, err)
	ex = WithContext(ex, trees, table, ContextOptions{Depth: 2})

	deps := map[string]bool{}
	for _, d := range ex.Dependencies {
		deps[d.Symbol] = true
	}
	assert.True(t, deps["python::orders::helper"], "helper is a dependency of process_order")
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unit.py")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// Update round-trip (property 5): the file reparses, the target body is
// replaced, other symbols keep their relative shape.
func TestUpdateReplaceRoundTrip(t *testing.T) {
	path := writeFile(t, orderFile)

	res, err := Update(context.Background(), UpdateRequest{
		Path:       path,
		TargetType: TargetFunction,
		TargetName: "process_order",
		Op:         OpReplace,
		NewCode:    "def process_order(o):\n    return o * 2\n",
	}, pyParse(t))
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(updated), "return o * 2")
	assert.NotContains(t, string(updated), "total = helper(o)")

	// Still parses and the untouched symbols survive.
	tree, err := pyParse(t)(context.Background(), path, string(updated))
	require.NoError(t, err)
	_, err = Extract(tree, TargetFunction, "helper")
	require.NoError(t, err)
	_, err = Extract(tree, TargetClass, "Shop")
	require.NoError(t, err)
}

func TestUpdateBackup(t *testing.T) {
	path := writeFile(t, orderFile)

	res, err := Update(context.Background(), UpdateRequest{
		Path:       path,
		TargetType: TargetFunction,
		TargetName: "helper",
		Op:         OpDelete,
		Backup:     true,
	}, pyParse(t))
	require.NoError(t, err)
	require.Equal(t, path+".backup", res.BackupPath)

	backup, err := os.ReadFile(res.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, orderFile, string(backup))

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(updated), "def helper")
}

func TestUpdateInvalidReplacementLeavesFileUntouched(t *testing.T) {
	path := writeFile(t, orderFile)

	_, err := Update(context.Background(), UpdateRequest{
		Path:       path,
		TargetType: TargetFunction,
		TargetName: "helper",
		Op:         OpReplace,
		NewCode:    "def broken(:\n",
	}, pyParse(t))
	var invalid *ErrInvalidReplacement
	require.ErrorAs(t, err, &invalid)

	content, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	assert.Equal(t, orderFile, string(content), "failed updates must not write")
}

func TestUpdateRename(t *testing.T) {
	path := writeFile(t, orderFile)

	_, err := Update(context.Background(), UpdateRequest{
		Path:       path,
		TargetType: TargetFunction,
		TargetName: "helper",
		Op:         OpRename,
		NewName:    "floor_of",
	}, pyParse(t))
	require.NoError(t, err)

	updated, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	assert.Contains(t, string(updated), "def floor_of(x):")
	// Only the definition is rewritten; the call site stays.
	assert.Contains(t, string(updated), "total = helper(o)")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("ab"))
	assert.Equal(t, 3, EstimateTokens("abcdefghijkl"))
}
