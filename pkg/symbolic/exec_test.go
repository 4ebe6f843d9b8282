// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package symbolic

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/scalpel/pkg/frontend"
	"github.com/kraklabs/scalpel/pkg/lang"
	"github.com/kraklabs/scalpel/pkg/pir"
)

func lowerFn(t *testing.T, code string) (*pir.Tree, pir.NodeID) {
	t.Helper()
	fe, err := frontend.ForLanguage(lang.Python)
	require.NoError(t, err)
	native, err := fe.Parse(context.Background(), []byte(code), frontend.Options{})
	require.NoError(t, err)
	defer native.Close()
	tree, err := pir.Lower(native, "m.py")
	require.NoError(t, err)
	fns := tree.FindAll(pir.KindFunction)
	require.NotEmpty(t, fns)
	return tree, fns[0]
}

// Branch coverage over a three-way classifier: three feasible paths with
// satisfying example inputs.
func TestClassifierPaths(t *testing.T) {
	tree, fn := lowerFn(t, `def classify(x):
    if x > 10:
        return "high"
    elif x > 5:
        return "medium"
    else:
        return "low"
`)
	res := Execute(tree, fn, Options{MaxPaths: 10})
	require.Len(t, res.Paths, 3)
	assert.False(t, res.Truncated)

	check := func(p PathResult, wantReturn string, satisfies func(int64) bool) {
		assert.Contains(t, p.ReturnValue, wantReturn)
		require.Contains(t, p.ExampleInputs, "x")
		x, ok := p.ExampleInputs["x"].(int64)
		require.True(t, ok)
		assert.True(t, satisfies(x), "example input x=%d must satisfy the path conditions %v", x, p.Conditions)
	}
	check(res.Paths[0], "high", func(x int64) bool { return x > 10 })
	check(res.Paths[1], "medium", func(x int64) bool { return x <= 10 && x > 5 })
	check(res.Paths[2], "low", func(x int64) bool { return x <= 5 })
}

func TestContradictoryPathsPruned(t *testing.T) {
	tree, fn := lowerFn(t, `def f(x):
    if x > 10:
        if x < 5:
            return "impossible"
        return "a"
    return "b"
`)
	res := Execute(tree, fn, Options{MaxPaths: 10})
	for _, p := range res.Paths {
		assert.NotContains(t, p.ReturnValue, "impossible")
	}
}

func TestMaxPathsTruncates(t *testing.T) {
	tree, fn := lowerFn(t, `def f(a, b, c, d):
    if a > 0:
        x = 1
    if b > 0:
        x = 2
    if c > 0:
        x = 3
    if d > 0:
        x = 4
    return x
`)
	res := Execute(tree, fn, Options{MaxPaths: 3})
	assert.True(t, res.Truncated)
	assert.LessOrEqual(t, len(res.Paths), 3)
}

func TestSolveConditions(t *testing.T) {
	inputs, ok := SolveConditions([]string{"x > 10", "x <= 20"}, []string{"x"})
	require.True(t, ok)
	x := inputs["x"].(int64)
	assert.True(t, x > 10 && x <= 20)

	_, ok = SolveConditions([]string{"x > 10", "x < 5"}, []string{"x"})
	assert.False(t, ok, "contradictions are infeasible")

	inputs, ok = SolveConditions([]string{"y == 3"}, []string{"y"})
	require.True(t, ok)
	assert.Equal(t, int64(3), inputs["y"])
}

func TestNegate(t *testing.T) {
	assert.Equal(t, "x <= 10", Negate("x > 10"))
	assert.Equal(t, "x != 3", Negate("x == 3"))
	assert.Equal(t, "cond", Negate("!(cond)"))
	assert.Equal(t, "!(ready)", Negate("ready"))
}

func TestGenerateTestsPytest(t *testing.T) {
	tree, fn := lowerFn(t, `def classify(x):
    if x > 10:
        return "high"
    return "low"
`)
	res := Execute(tree, fn, Options{MaxPaths: 10})
	gen := GenerateTests(res, FrameworkPytest)

	require.Len(t, gen.Tests, 2)
	assert.Contains(t, gen.Tests[0], "def test_classify_path_1():")
	assert.Contains(t, gen.Tests[0], "classify(")
	assert.Contains(t, gen.Tests[0], `assert result == "high"`)
	assert.Contains(t, gen.Source, "def test_classify_path_2():")
}

func TestGenerateTestsJest(t *testing.T) {
	tree, fn := lowerFn(t, "def f(x):\n    return x\n")
	res := Execute(tree, fn, Options{MaxPaths: 2})
	gen := GenerateTests(res, FrameworkJest)
	require.NotEmpty(t, gen.Tests)
	assert.Contains(t, gen.Tests[0], "test(")
	assert.Contains(t, gen.Tests[0], "expect(result)")
}

func TestExampleInputsSerializable(t *testing.T) {
	tree, fn := lowerFn(t, "def f(n):\n    if n > 2:\n        return 1\n    return 0\n")
	res := Execute(tree, fn, Options{MaxPaths: 4})
	for _, p := range res.Paths {
		for _, k := range SortedInputKeys(p.ExampleInputs) {
			_ = strconv.Quote(k)
		}
	}
}
