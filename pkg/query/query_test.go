// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/scalpel/pkg/frontend"
	"github.com/kraklabs/scalpel/pkg/lang"
	"github.com/kraklabs/scalpel/pkg/pdg"
	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/symbols"
)

func lowerUnit(t *testing.T, language, unit, code string) *pir.Tree {
	t.Helper()
	fe, err := frontend.ForLanguage(language)
	require.NoError(t, err)
	native, err := fe.Parse(context.Background(), []byte(code), frontend.Options{AcceptPartial: true})
	require.NoError(t, err)
	defer native.Close()
	tree, err := pir.Lower(native, unit)
	require.NoError(t, err)
	return tree
}

func buildGraph(t *testing.T, code, fn string) *pdg.Graph {
	t.Helper()
	tree := lowerUnit(t, lang.Python, "m.py", code)
	for _, id := range tree.FindAll(pir.KindFunction) {
		if tree.Node(id).Name == fn {
			return pdg.Build(tree, id, "python::m::"+fn)
		}
	}
	t.Fatalf("no function %s", fn)
	return nil
}

func TestForwardSlice(t *testing.T) {
	g := buildGraph(t, `def f(a):
    b = a + 1
    c = b * 2
    unrelated = 7
    return c
`, "f")

	// Slice forward from the statement defining b.
	start := -1
	for _, n := range g.Nodes {
		if n.Kind == pdg.NodeStatement {
			for _, d := range g.StmtDefs(n.ID) {
				if d == "b" {
					start = n.ID
				}
			}
		}
	}
	require.NotEqual(t, -1, start)

	res := Slice(g, start, DirForward, 0)
	assert.False(t, res.Truncated)

	sawC := false
	for _, n := range res.Nodes {
		if n.Kind == pdg.NodeDef && n.Var == "unrelated" {
			t.Fatalf("forward slice leaked into unrelated definition")
		}
		for _, d := range g.StmtDefs(n.ID) {
			if d == "c" {
				sawC = true
			}
		}
	}
	assert.True(t, sawC, "c depends on b and belongs to the forward slice")
}

func TestSliceTruncation(t *testing.T) {
	g := buildGraph(t, `def f(a):
    b = a
    c = b
    d = c
    e = d
    return e
`, "f")
	res := Slice(g, g.Entry, DirForward, 2)
	assert.True(t, res.Truncated)
	assert.LessOrEqual(t, len(res.Nodes), 2)
}

func projectFixture(t *testing.T) (map[string]*pir.Tree, *symbols.Table, *pdg.CallGraph) {
	t.Helper()
	trees := map[string]*pir.Tree{
		"main.py": lowerUnit(t, lang.Python, "main.py", `from svc import handle

def main():
    handle(1)
`),
		"svc.py": lowerUnit(t, lang.Python, "svc.py", `def handle(x):
    return store(x)

def store(x):
    return x
`),
	}
	table := symbols.Build(trees)
	return trees, table, pdg.BuildCallGraph(trees, table)
}

func TestNeighborhood(t *testing.T) {
	_, _, cg := projectFixture(t)

	sub := Neighborhood(cg, "python::svc::handle", 1, DirBoth, 0, 0)
	names := map[string]bool{}
	for _, n := range sub.Nodes {
		names[n.Symbol] = true
	}
	assert.True(t, names["python::main::main"], "caller is one hop in")
	assert.True(t, names["python::svc::store"], "callee is one hop out")
	assert.False(t, sub.Truncated)
}

func TestNeighborhoodTruncation(t *testing.T) {
	_, _, cg := projectFixture(t)
	sub := Neighborhood(cg, "python::svc::handle", 2, DirBoth, 2, 0)
	assert.True(t, sub.Truncated)
	assert.LessOrEqual(t, len(sub.Nodes), 2)
}

func TestPaths(t *testing.T) {
	_, _, cg := projectFixture(t)
	res := Paths(cg, "python::main::main", "python::svc::store", 10, 10)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, []string{"python::main::main", "python::svc::handle", "python::svc::store"}, res.Paths[0])
	assert.False(t, res.Truncated)
}

func TestReferences(t *testing.T) {
	trees, table, _ := projectFixture(t)
	matches := ResolveSymbol(table, "handle")
	require.NotEmpty(t, matches)

	refs := References(trees, matches[0].QualifiedName, "")
	// The call site in main.py binds through the import.
	require.GreaterOrEqual(t, len(refs), 1)
	assert.Equal(t, "main.py", refs[0].Unit)
	assert.Contains(t, refs[0].Context, "handle(1)")

	scoped := References(trees, matches[0].QualifiedName, "main.py")
	for _, r := range scoped {
		assert.Equal(t, "main.py", r.Unit)
	}
}

func TestProjectMap(t *testing.T) {
	trees, table, cg := projectFixture(t)
	pm := BuildProjectMap(trees, table, cg, 5, 0)

	assert.Len(t, pm.Files, 2)
	assert.Equal(t, 2, pm.Languages["python"])
	assert.NotEmpty(t, pm.Hotspots)

	foundMain := false
	for _, ep := range pm.EntryPoints {
		if ep.Reason == "main function" {
			foundMain = true
		}
	}
	assert.True(t, foundMain)
}

func TestComplexity(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "m.py", `def f(x):
    if x > 0:
        for i in range(x):
            if i % 2:
                x += i
    return x
`)
	fn := tree.FindAll(pir.KindFunction)[0]
	assert.GreaterOrEqual(t, Complexity(tree, fn), 4)
}
