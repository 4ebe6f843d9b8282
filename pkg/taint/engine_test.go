// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package taint

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

func analyzeAll(t *testing.T, units map[string]string) (map[string]*pir.Tree, *symbols.Table, map[string]*pdg.Graph, *pdg.CallGraph) {
	t.Helper()
	trees := map[string]*pir.Tree{}
	for unit, code := range units {
		trees[unit] = lowerUnit(t, lang.Python, unit, code)
	}
	table := symbols.Build(trees)
	pdgs := map[string]*pdg.Graph{}
	for unit, tree := range trees {
		for _, sym := range table.InUnit(unit) {
			if sym.Kind == symbols.KindFunction || sym.Kind == symbols.KindMethod {
				pdgs[sym.QualifiedName] = pdg.Build(tree, sym.Node, sym.QualifiedName)
			}
		}
	}
	return trees, table, pdgs, pdg.BuildCallGraph(trees, table)
}

func loadRules(t *testing.T) *Registry {
	t.Helper()
	rules, err := LoadEmbedded()
	require.NoError(t, err)
	return rules
}

func TestLoadEmbeddedRulesets(t *testing.T) {
	rules := loadRules(t)
	for _, language := range lang.All {
		rs := rules.ForLanguage(language)
		require.NotNil(t, rs, language)
		assert.NotEmpty(t, rs.Sources, language)
		assert.NotEmpty(t, rs.Sinks, language)
	}
	assert.NotEmpty(t, rules.Version())
}

func TestInvalidRulesetFailsAtLoad(t *testing.T) {
	_, err := parseRuleset([]byte("version: \"1\"\nsinks:\n  - pattern: x\n"), lang.Python)
	assert.Error(t, err, "a sink without a cwe is ruleset_invalid")

	_, err = parseRuleset([]byte("sinks: []\n"), lang.Python)
	assert.Error(t, err, "a ruleset without a version is invalid")
}

// SQL injection end to end: source -> assignment -> sink.
func TestSQLInjectionDetected(t *testing.T) {
	code := `def handler(request, db):
    q = "SELECT * FROM u WHERE id=" + request.args["id"]
    db.execute(q)
`
	trees, _, pdgs, _ := analyzeAll(t, map[string]string{"app.py": code})
	res, err := ScanFunctions(context.Background(), trees, pdgs, loadRules(t), Options{})
	require.NoError(t, err)

	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, "CWE-89", f.Kind)
	assert.Contains(t, []string{"high", "critical"}, f.Severity)
	assert.GreaterOrEqual(t, len(f.Path), 2)
	assert.Empty(t, f.SanitizerOnPath)
	assert.NotEmpty(t, f.Evidence)
	assert.NotEmpty(t, f.Remediation)
	assert.True(t, res.Complete)
}

// Path validity (property 6): each finding's path starts at the source and
// ends at the sink.
func TestFindingPathEndpoints(t *testing.T) {
	code := `def handler(request, db):
    raw = request.args.get("q")
    cooked = raw.strip()
    db.execute(cooked)
`
	trees, _, pdgs, _ := analyzeAll(t, map[string]string{"app.py": code})
	res, err := ScanFunctions(context.Background(), trees, pdgs, loadRules(t), Options{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Findings)

	f := res.Findings[0]
	assert.Equal(t, f.Source.Span, f.Path[0].Span)
	assert.Equal(t, f.Sink.Span, f.Path[len(f.Path)-1].Span)
}

func TestSanitizerSuppressesMatchingSink(t *testing.T) {
	code := `def handler(request):
    cmd = request.args.get("cmd")
    safe = quote(cmd)
    os.system(safe)
`
	trees, _, pdgs, _ := analyzeAll(t, map[string]string{"app.py": code})
	res, err := ScanFunctions(context.Background(), trees, pdgs, loadRules(t), Options{})
	require.NoError(t, err)

	for _, f := range res.Findings {
		assert.NotEqual(t, "CWE-78", f.Kind, "quote() clears shell injection")
	}
}

func TestSanitizerForWrongSinkStillFires(t *testing.T) {
	// quote() clears CWE-78, but the value flows into a SQL sink.
	code := `def handler(request, db):
    v = request.args.get("v")
    safe = quote(v)
    db.execute(safe)
`
	trees, _, pdgs, _ := analyzeAll(t, map[string]string{"app.py": code})
	res, err := ScanFunctions(context.Background(), trees, pdgs, loadRules(t), Options{})
	require.NoError(t, err)

	found := false
	for _, f := range res.Findings {
		if f.Kind == "CWE-89" {
			found = true
			assert.Equal(t, "quote", f.SanitizerOnPath, "the bypassed sanitizer is recorded")
		}
	}
	assert.True(t, found)
}

// A validator clears taint only on the branch whose condition calls it
// truthfully; the falsy branch keeps the taint.
func TestValidatorClearsTruthyBranchOnly(t *testing.T) {
	code := `def handler(request, db):
    q = request.args.get("q")
    if q.isdigit():
        db.execute(q)
    else:
        db.executemany(q)
`
	trees, _, pdgs, _ := analyzeAll(t, map[string]string{"app.py": code})
	res, err := ScanFunctions(context.Background(), trees, pdgs, loadRules(t), Options{})
	require.NoError(t, err)

	require.Len(t, res.Findings, 1, "only the falsy branch fires: %+v", res.Findings)
	assert.Contains(t, res.Findings[0].Evidence, "executemany")
}

// A validator guarding a different variable does not clear the flow.
func TestValidatorOnOtherVariableDoesNotClear(t *testing.T) {
	code := `def handler(request, db, other):
    q = request.args.get("q")
    if other.isdigit():
        db.execute(q)
`
	trees, _, pdgs, _ := analyzeAll(t, map[string]string{"app.py": code})
	res, err := ScanFunctions(context.Background(), trees, pdgs, loadRules(t), Options{})
	require.NoError(t, err)

	found := false
	for _, f := range res.Findings {
		if f.Kind == "CWE-89" {
			found = true
		}
	}
	assert.True(t, found, "a validator over an unrelated variable must not clear the sink")
}

// A sink outside any validator branch stays tainted even when a validator
// appears elsewhere in the function.
func TestValidatorDoesNotLeakPastItsBranch(t *testing.T) {
	code := `def handler(request, db):
    q = request.args.get("q")
    if q.isdigit():
        log(q)
    db.execute(q)
`
	trees, _, pdgs, _ := analyzeAll(t, map[string]string{"app.py": code})
	res, err := ScanFunctions(context.Background(), trees, pdgs, loadRules(t), Options{})
	require.NoError(t, err)

	found := false
	for _, f := range res.Findings {
		if f.Kind == "CWE-89" {
			found = true
		}
	}
	assert.True(t, found, "the unguarded sink after the branch still fires")
}

// A CWE-scoped validator clears only its kinds on the truthy arm.
func TestScopedValidatorKeepsOtherKinds(t *testing.T) {
	code := `def handler(request):
    target = request.args.get("next")
    if url_has_allowed_host_and_scheme(target):
        redirect(target)
        os.system(target)
`
	trees, _, pdgs, _ := analyzeAll(t, map[string]string{"app.py": code})
	res, err := ScanFunctions(context.Background(), trees, pdgs, loadRules(t), Options{})
	require.NoError(t, err)

	kinds := map[string]bool{}
	for _, f := range res.Findings {
		kinds[f.Kind] = true
	}
	assert.False(t, kinds["CWE-601"], "the redirect is validated on the truthy arm")
	assert.True(t, kinds["CWE-78"], "the validator does not cover shell execution")
}

func TestMaxFindingsTruncates(t *testing.T) {
	code := `def handler(request, db):
    a = request.args.get("a")
    db.execute(a)
    b = request.args.get("b")
    db.execute(b)
    c = request.args.get("c")
    db.execute(c)
`
	trees, _, pdgs, _ := analyzeAll(t, map[string]string{"app.py": code})
	res, err := ScanFunctions(context.Background(), trees, pdgs, loadRules(t), Options{MaxFindings: 1})
	require.NoError(t, err)
	assert.Len(t, res.Findings, 1)
	assert.False(t, res.Complete)
}

func TestInterproceduralFlow(t *testing.T) {
	units := map[string]string{
		"app.py": `from db import run_query

def handler(request):
    uid = request.args.get("id")
    run_query(uid)
`,
		"db.py": `def run_query(q, conn=None):
    cursor.execute(q)
`,
	}
	trees, table, pdgs, cg := analyzeAll(t, units)
	res, err := ScanProject(context.Background(), trees, table, pdgs, cg, loadRules(t), Options{MaxDepth: 3})
	require.NoError(t, err)

	found := false
	for _, f := range res.Findings {
		if f.Kind == "CWE-89" && f.Sink.Unit == "db.py" {
			found = true
		}
	}
	assert.True(t, found, "taint crosses the call into run_query")
}

func TestDetectSinks(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "m.py", `def f(db, q):
    db.execute(q)
    print(q)
`)
	rules := loadRules(t)
	sinks := DetectSinks(tree, rules.ForLanguage(lang.Python), 0.5)
	require.NotEmpty(t, sinks)
	assert.Equal(t, "CWE-89", sinks[0].CWE)
	assert.Greater(t, sinks[0].Confidence, 0.0)
}

func TestSARIFExport(t *testing.T) {
	code := `def handler(request, db):
    q = request.args.get("q")
    db.execute(q)
`
	trees, _, pdgs, _ := analyzeAll(t, map[string]string{"app.py": code})
	res, err := ScanFunctions(context.Background(), trees, pdgs, loadRules(t), Options{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Findings)

	report, err := ToSARIF(res, "test")
	require.NoError(t, err)
	require.Len(t, report.Runs, 1)
	assert.NotEmpty(t, report.Runs[0].Results)
}
