// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pdg

import (
	"context"
	"encoding/json"
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
	native, err := fe.Parse(context.Background(), []byte(code), frontend.Options{AcceptPartial: true})
	require.NoError(t, err)
	defer native.Close()
	tree, err := pir.Lower(native, unit)
	require.NoError(t, err)
	return tree
}

func buildFor(t *testing.T, code, fnName string) (*pir.Tree, *Graph) {
	t.Helper()
	tree := lowerUnit(t, lang.Python, "m.py", code)
	for _, id := range tree.FindAll(pir.KindFunction) {
		if tree.Node(id).Name == fnName {
			return tree, Build(tree, id, "python::m::"+fnName)
		}
	}
	t.Fatalf("function %s not found", fnName)
	return nil, nil
}

const flowCode = `def f(a):
    b = a + 1
    c = b * 2
    return c
`

func TestDefUseChain(t *testing.T) {
	_, g := buildFor(t, flowCode, "f")

	// Parameter a is an initial definition at the entry region.
	foundParam := false
	for _, n := range g.Nodes {
		if n.Kind == NodeDef && n.Var == "a" && n.Stmt == g.Entry {
			foundParam = true
		}
	}
	assert.True(t, foundParam)

	// b = a + 1 uses a; data flow connects the param def to the use.
	hasFlow := func(v string) bool {
		for _, e := range g.Edges {
			if e.Kind == EdgeDataFlow && e.Var == v {
				return true
			}
		}
		return false
	}
	assert.True(t, hasFlow("a"))
	assert.True(t, hasFlow("b"))
	assert.True(t, hasFlow("c"))

	// The return flows to the virtual exit.
	exitFlow := false
	for _, e := range g.Edges {
		if e.Kind == EdgeDataFlow && e.To == g.Exit && e.Var == "<return>" {
			exitFlow = true
		}
	}
	assert.True(t, exitFlow)
}

func TestControlDependence(t *testing.T) {
	_, g := buildFor(t, `def f(x):
    if x > 0:
        y = 1
    return x
`, "f")

	var branch, body int = -1, -1
	for _, n := range g.Nodes {
		if n.Kind != NodeStatement {
			continue
		}
		if n.Branch {
			branch = n.ID
		}
		for _, d := range g.StmtDefs(n.ID) {
			if d == "y" {
				body = n.ID
			}
		}
	}
	require.NotEqual(t, -1, branch)
	require.NotEqual(t, -1, body)

	dep := false
	for _, e := range g.Edges {
		if e.Kind == EdgeControlDep && e.From == branch && e.To == body {
			dep = true
		}
	}
	assert.True(t, dep, "the guarded assignment is control-dependent on the branch")
}

func TestBranchConditionCallTarget(t *testing.T) {
	_, g := buildFor(t, `def f(x):
    if is_safe(x):
        y = 1
    while has_more(x):
        x -= 1
`, "f")

	targets := map[string]bool{}
	for _, n := range g.Nodes {
		if n.Kind == NodeStatement && n.Branch {
			targets[n.CallTarget] = true
		}
	}
	assert.True(t, targets["is_safe"], "the if condition's call is the branch call target")
	assert.True(t, targets["has_more"], "the loop condition's call is the branch call target")
}

// Control-dependence edges into a branch's immediate arms carry the arm
// label; the GuardEdge accessor exposes it.
func TestGuardEdgeLabels(t *testing.T) {
	_, g := buildFor(t, `def f(x):
    if x > 0:
        a = 1
    else:
        b = 2
    c = 3
`, "f")

	var branch, thenStmt, elseStmt, after int = -1, -1, -1, -1
	for _, n := range g.Nodes {
		if n.Kind != NodeStatement {
			continue
		}
		if n.Branch {
			branch = n.ID
		}
		for _, d := range g.StmtDefs(n.ID) {
			switch d {
			case "a":
				thenStmt = n.ID
			case "b":
				elseStmt = n.ID
			case "c":
				after = n.ID
			}
		}
	}
	require.NotEqual(t, -1, branch)
	require.NotEqual(t, -1, thenStmt)
	require.NotEqual(t, -1, elseStmt)
	require.NotEqual(t, -1, after)

	b, onTrue, ok := g.GuardEdge(thenStmt)
	require.True(t, ok)
	assert.Equal(t, branch, b)
	assert.True(t, onTrue)

	b, onTrue, ok = g.GuardEdge(elseStmt)
	require.True(t, ok)
	assert.Equal(t, branch, b)
	assert.False(t, onTrue)

	_, _, ok = g.GuardEdge(after)
	assert.False(t, ok, "the statement after the branch is not guarded")
}

func TestAttributeAliasing(t *testing.T) {
	_, g := buildFor(t, `def f(obj):
    obj.name = input()
    save(obj.name)
`, "f")

	aliased := false
	for _, n := range g.Nodes {
		if n.Kind == NodeDef && n.Var == "obj.name" {
			aliased = true
		}
	}
	assert.True(t, aliased, "attribute writes define the aliased attribute path")
}

// Determinism (property 1): identical input yields byte-identical canonical
// serialization.
func TestGraphDeterminism(t *testing.T) {
	_, g1 := buildFor(t, flowCode, "f")
	_, g2 := buildFor(t, flowCode, "f")

	b1, err := json.Marshal(g1)
	require.NoError(t, err)
	b2, err := json.Marshal(g2)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
}

func TestOpaqueBarrier(t *testing.T) {
	_, g := buildFor(t, `def f(s):
    eval(s)
    x = 1
    return x
`, "f")
	assert.True(t, g.HasOpaque())
}

const multiFileCaller = `from helpers import fetch

def handler(uid):
    return fetch(uid)
`

func TestCallGraphResolvedEdge(t *testing.T) {
	helpers := lowerUnit(t, lang.Python, "helpers.py", "def fetch(uid):\n    return uid\n")
	app := lowerUnit(t, lang.Python, "app.py", multiFileCaller)
	trees := map[string]*pir.Tree{"helpers.py": helpers, "app.py": app}
	table := symbols.Build(trees)

	cg := BuildCallGraph(trees, table)
	edges := cg.Callees("python::app::handler")
	require.Len(t, edges, 1)
	assert.Equal(t, "python::helpers::fetch", edges[0].Callee)
	assert.Equal(t, 1.0, edges[0].Confidence)
}

func TestCallGraphDuckTypedDispatch(t *testing.T) {
	code := `class A:
    def run(self):
        return 1

class B:
    def run(self):
        return 2

def go(obj):
    return obj.run()
`
	tree := lowerUnit(t, lang.Python, "m.py", code)
	trees := map[string]*pir.Tree{"m.py": tree}
	table := symbols.Build(trees)

	cg := BuildCallGraph(trees, table)
	edges := cg.Callees("python::m::go")
	require.Len(t, edges, 2, "duck typing fans out to both candidates")
	for _, e := range edges {
		assert.InDelta(t, 0.5, e.Confidence, 1e-9)
	}
}

func TestCallGraphMermaid(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "m.py", "def a():\n    b()\n\ndef b():\n    return 1\n")
	trees := map[string]*pir.Tree{"m.py": tree}
	cg := BuildCallGraph(trees, symbols.Build(trees))

	diagram := cg.Mermaid()
	assert.Contains(t, diagram, "graph TD")
	assert.Contains(t, diagram, "-->")
}

func TestCallGraphDeterminism(t *testing.T) {
	build := func() string {
		tree := lowerUnit(t, lang.Python, "m.py", "def a():\n    b()\n    c()\n\ndef b():\n    c()\n\ndef c():\n    return 1\n")
		trees := map[string]*pir.Tree{"m.py": tree}
		cg := BuildCallGraph(trees, symbols.Build(trees))
		data, err := json.Marshal(cg.Edges)
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, build(), build())
}

func TestNodeAtAndAdjacency(t *testing.T) {
	_, g := buildFor(t, flowCode, "f")

	// Line 2 holds `b = a + 1`.
	sid := g.NodeAt(2, 4)
	require.NotEqual(t, -1, sid)
	assert.Contains(t, g.StmtDefs(sid), "b")

	// Adjacency mirrors the canonical edge list.
	for _, succ := range g.Succ(sid) {
		assert.Contains(t, g.Pred(succ), sid)
	}
	assert.NotEmpty(t, g.EdgesFrom(sid))
}

func TestIDsStable(t *testing.T) {
	span := pir.Span{StartLine: 3, EndLine: 9, StartCol: 0, EndCol: 4}
	assert.Equal(t, FunctionID("a/b.py", "f", span), FunctionID("./a/b.py", "f", span))
	assert.Equal(t, "unit:a/b.py", UnitID("a/b.py"))
}
