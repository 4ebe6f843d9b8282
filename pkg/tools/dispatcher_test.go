// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/scalpel/internal/errors"
	"github.com/kraklabs/scalpel/pkg/depscan"
	"github.com/kraklabs/scalpel/pkg/engine"
	"github.com/kraklabs/scalpel/pkg/surgery"
	"github.com/kraklabs/scalpel/pkg/taint"
)

type fakeScanner struct {
	resp *depscan.ScanResponse
}

func (f *fakeScanner) Name() string { return "fake" }
func (f *fakeScanner) Scan(ctx context.Context, req depscan.ScanRequest) (*depscan.ScanResponse, error) {
	return f.resp, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	root := t.TempDir()
	cfg := engine.DefaultConfig(root)
	rules, err := taint.LoadEmbedded()
	require.NoError(t, err)
	d := New(engine.New(cfg, nil), rules, Options{
		Version: "test",
		Scanner: &fakeScanner{resp: &depscan.ScanResponse{Scanned: 1}},
	})
	return d, root
}

func seed(t *testing.T, root, rel, content string) string {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	return full
}

func dispatch(t *testing.T, d *Dispatcher, op string, args any) *Response {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return d.Dispatch(context.Background(), Request{Operation: op, Args: raw}, nil)
}

func TestEnvelopeShape(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := dispatch(t, d, "analyze_code", map[string]string{"code": "def f():\n    return 1\n"})

	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Data)
	assert.NotEmpty(t, resp.Metadata.RequestID)
	assert.Equal(t, DefaultTier, resp.Metadata.Tier)
	assert.Equal(t, "test", resp.Metadata.Version)
	assert.GreaterOrEqual(t, resp.Metadata.DurationMS, int64(0))
}

func TestUnknownOperation(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := dispatch(t, d, "explode", nil)
	require.False(t, resp.Success)
	assert.Equal(t, errors.KindInvalidArgument, resp.Error.Kind)
}

const conflictCode = "def f():\n<<<<<<< HEAD\n    return 1\n=======\n    return 2\n>>>>>>> branch\n"

// Scenario: merge conflict under strict mode fails with a located
// parse_error.
func TestStrictModeConflictFails(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := dispatch(t, d, "analyze_code", map[string]string{
		"code":         conflictCode,
		"language":     "python",
		"parsing_mode": "strict",
	})

	require.False(t, resp.Success)
	assert.Equal(t, errors.KindParseError, resp.Error.Kind)
	assert.Equal(t, "line 2", resp.Error.Location)
}

// Scenario: the same input under permissive mode parses, and the metadata
// carries the sanitization report forward.
func TestPermissiveModeConflictSucceeds(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := dispatch(t, d, "analyze_code", map[string]string{
		"code":         conflictCode,
		"language":     "python",
		"parsing_mode": "permissive",
	})

	require.True(t, resp.Success, "error: %+v", resp.Error)
	data := resp.Data.(*AnalyzeData)
	require.Len(t, data.Functions, 1)
	assert.Equal(t, "f", data.Functions[0].Name)

	require.NotNil(t, resp.Metadata.Sanitization)
	assert.True(t, resp.Metadata.Sanitization.Modified)
	require.NotEmpty(t, resp.Metadata.Sanitization.Changes)
	assert.Contains(t, resp.Metadata.Sanitization.Changes[0].Reason, "merge conflict")
}

// Determinism (property 1): repeated dispatches yield byte-identical data.
func TestResponseDeterminism(t *testing.T) {
	d, _ := newTestDispatcher(t)
	code := "def a():\n    b()\n\ndef b():\n    return 1\n"

	serialize := func() string {
		resp := dispatch(t, d, "analyze_code", map[string]string{"code": code})
		require.True(t, resp.Success)
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		return string(raw)
	}
	assert.Equal(t, serialize(), serialize())
}

// Scenario: extracting a named function returns only its slice.
func TestExtractCodeMinimalSlice(t *testing.T) {
	d, root := newTestDispatcher(t)
	var sb strings.Builder
	for i := 0; i < 140; i++ {
		sb.WriteString("# filler line\n")
	}
	sb.WriteString("def process_order(o):\n    return o\n")
	for i := 0; i < 140; i++ {
		sb.WriteString("# more filler\n")
	}
	path := seed(t, root, "orders.py", sb.String())

	resp := dispatch(t, d, "extract_code", map[string]any{
		"target_type": "function",
		"target_name": "process_order",
		"path":        path,
	})
	require.True(t, resp.Success, "error: %+v", resp.Error)

	ex := resp.Data.(*surgery.Extraction)
	assert.Equal(t, "process_order", ex.Name)
	assert.Equal(t, 141, ex.StartLine)
	assert.Equal(t, 142, ex.EndLine)
	assert.Positive(t, ex.TokenEstimate)
	assert.Less(t, ex.TokenEstimate, surgery.EstimateTokens(sb.String()),
		"the slice estimate is below the full-file estimate")
	assert.NotContains(t, ex.Code, "filler")
}

// Scenario: a typo in the target name produces correction_needed with a
// high-scoring suggestion.
func TestExtractCodeCorrectionNeeded(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := dispatch(t, d, "extract_code", map[string]any{
		"target_type": "function",
		"target_name": "proces_order",
		"source":      "def process_order(o):\n    return o\n",
		"language":    "python",
	})

	require.False(t, resp.Success)
	assert.Equal(t, errors.KindCorrectionNeeded, resp.Error.Kind)
	require.NotNil(t, resp.Error.Details)
	suggestions := resp.Error.Details["suggestions"].([]errors.Suggestion)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "process_order", suggestions[0].Symbol)
	assert.GreaterOrEqual(t, suggestions[0].Score, 0.85)
}

// Truncation honesty (property 7): a clamped result names the limit.
func TestTruncationHonesty(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var sb strings.Builder
	for i := 0; i < 12; i++ {
		sb.WriteString("def fn_")
		sb.WriteString(strings.Repeat("x", i+1))
		sb.WriteString("():\n    return 1\n\n")
	}
	raw, _ := json.Marshal(map[string]string{"code": sb.String(), "language": "python"})
	resp := d.Dispatch(context.Background(), Request{
		Operation: "analyze_code",
		Args:      raw,
		Limits:    &Limits{MaxNodes: 5},
	}, nil)

	require.True(t, resp.Success)
	assert.Equal(t, "max_nodes", resp.Metadata.TruncatedByLimit)
}

func TestLimitsClampedToTier(t *testing.T) {
	tier := Limits{MaxFindings: 10}
	defaults := Limits{MaxFindings: 5}
	clamped := Limits{MaxFindings: 50}.clampTo(tier, defaults)
	assert.Equal(t, 10, clamped.MaxFindings, "requests above the tier cap are clamped")

	clamped = Limits{}.clampTo(tier, defaults)
	assert.Equal(t, 5, clamped.MaxFindings, "unset fields take engine defaults")
}

func TestValidatePathsOutsideRoot(t *testing.T) {
	d, root := newTestDispatcher(t)
	inside := seed(t, root, "ok.py", "x = 1\n")

	resp := dispatch(t, d, "validate_paths", map[string]any{
		"paths": []string{inside, "/etc/passwd"},
	})
	require.True(t, resp.Success)
	out := resp.Data.([]PathValidity)
	require.Len(t, out, 2)
	assert.True(t, out[0].Valid)
	assert.False(t, out[1].Valid)
}

func TestSecurityScanEndToEnd(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := dispatch(t, d, "security_scan", map[string]any{
		"code":     "def handler(request, db):\n    q = \"SELECT * FROM u WHERE id=\" + request.args[\"id\"]\n    db.execute(q)\n",
		"language": "python",
	})
	require.True(t, resp.Success, "error: %+v", resp.Error)
	data := resp.Data.(*SecurityScanData)
	require.NotEmpty(t, data.Findings)
	assert.Equal(t, "CWE-89", data.Findings[0].Kind)
}

// Cache purity for the taint path: hit and miss return equal data.
func TestSecurityScanCachePurity(t *testing.T) {
	d, _ := newTestDispatcher(t)
	args := map[string]any{
		"code":     "def handler(request, db):\n    q = request.args.get(\"q\")\n    db.execute(q)\n",
		"language": "python",
	}

	serialize := func() string {
		resp := dispatch(t, d, "security_scan", args)
		require.True(t, resp.Success, "error: %+v", resp.Error)
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		return string(raw)
	}

	before := serialize()
	cached := d.eng.Cache().Len()
	after := serialize()

	assert.Equal(t, before, after, "cache hit and miss must return equal data")
	assert.Equal(t, cached, d.eng.Cache().Len(), "the second dispatch reuses cached entries")
}

// Repeated project operations over unchanged content reuse the cached
// snapshot instead of reloading.
func TestProjectSnapshotReused(t *testing.T) {
	d, root := newTestDispatcher(t)
	seed(t, root, "a.py", "def f():\n    return 1\n")

	resp := dispatch(t, d, "get_project_map", map[string]string{"project_root": root})
	require.True(t, resp.Success, "error: %+v", resp.Error)
	cached := d.eng.Cache().Len()

	resp = dispatch(t, d, "get_project_map", map[string]string{"project_root": root})
	require.True(t, resp.Success)
	assert.Equal(t, cached, d.eng.Cache().Len())

	// Content change rotates the key; the old entry is never mutated.
	seed(t, root, "a.py", "def f():\n    return 2\n")
	resp = dispatch(t, d, "get_project_map", map[string]string{"project_root": root})
	require.True(t, resp.Success)
	assert.Greater(t, d.eng.Cache().Len(), cached)
}

func TestScanDependenciesDelegates(t *testing.T) {
	d, root := newTestDispatcher(t)
	manifest := seed(t, root, "requirements.txt", "flask==1.0\n")

	resp := dispatch(t, d, "scan_dependencies", map[string]string{"path": manifest})
	require.True(t, resp.Success, "error: %+v", resp.Error)
	data := resp.Data.(*depscan.ScanResponse)
	assert.Equal(t, 1, data.Scanned)
}

func TestSymbolicExecuteOperation(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := dispatch(t, d, "symbolic_execute", map[string]any{
		"code":      "def classify(x):\n    if x > 10:\n        return \"high\"\n    elif x > 5:\n        return \"medium\"\n    else:\n        return \"low\"\n",
		"language":  "python",
		"max_paths": 10,
	})
	require.True(t, resp.Success, "error: %+v", resp.Error)
}

func TestSimulateRefactor(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := dispatch(t, d, "simulate_refactor", map[string]string{
		"original_code": "def f(a, b):\n    return a + b\n",
		"new_code":      "def f(a, b):\n    total = a + b\n    return total\n",
		"language":      "python",
	})
	require.True(t, resp.Success, "error: %+v", resp.Error)
	data := resp.Data.(*RefactorData)
	assert.True(t, data.BehaviorPreserved)

	resp = dispatch(t, d, "simulate_refactor", map[string]string{
		"original_code": "def f(a, b):\n    return a + b\n",
		"new_code":      "def f(a):\n    return a\n",
		"language":      "python",
	})
	require.True(t, resp.Success)
	data = resp.Data.(*RefactorData)
	assert.False(t, data.BehaviorPreserved)
	assert.Contains(t, data.SignaturesChanged, "f")
}

func TestCodePolicyCheck(t *testing.T) {
	d, root := newTestDispatcher(t)
	path := seed(t, root, "big.py", "def a():\n    return 1\n\ndef b():\n    return 2\n")

	resp := dispatch(t, d, "code_policy_check", map[string]any{
		"paths": []string{path},
		"rules": []map[string]string{{
			"id":      "max-functions",
			"expr":    "functions > 1",
			"message": "too many functions",
		}},
	})
	require.True(t, resp.Success, "error: %+v", resp.Error)
	data := resp.Data.(map[string]any)
	violations := data["violations"].([]PolicyViolation)
	require.Len(t, violations, 1)
	assert.Equal(t, "max-functions", violations[0].RuleID)
}

func TestPanicBecomesInternalError(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.catalog["boom"] = func(c *Call, args json.RawMessage) (any, error) {
		panic("kaboom")
	}
	resp := dispatch(t, d, "boom", nil)
	require.False(t, resp.Success)
	assert.Equal(t, errors.KindInternal, resp.Error.Kind)
	assert.NotContains(t, resp.Error.Message, "kaboom", "panic details must not leak")
}

func TestAuditCallback(t *testing.T) {
	root := t.TempDir()
	rules, err := taint.LoadEmbedded()
	require.NoError(t, err)

	var events []AuditEvent
	d := New(engine.New(engine.DefaultConfig(root), nil), rules, Options{
		Version: "test",
		Audit:   func(e AuditEvent) { events = append(events, e) },
		Scanner: &fakeScanner{resp: &depscan.ScanResponse{}},
	})

	raw, _ := json.Marshal(map[string]string{"code": "def f():\n    return 1\n"})
	d.Dispatch(context.Background(), Request{Operation: "analyze_code", Args: raw, RequestID: "req-1"}, nil)

	require.Len(t, events, 1)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, "analyze_code", events[0].Operation)
	assert.True(t, events[0].Success)
}
