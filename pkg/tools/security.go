// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kraklabs/scalpel/internal/errors"
	"github.com/kraklabs/scalpel/pkg/cache"
	"github.com/kraklabs/scalpel/pkg/engine"
	"github.com/kraklabs/scalpel/pkg/pdg"
	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/symbols"
	"github.com/kraklabs/scalpel/pkg/taint"
)

// unitGraphs bundles the dependence graphs of one source unit, the cached
// form of the per-unit PDG build.
type unitGraphs struct {
	table *symbols.Table
	pdgs  map[string]*pdg.Graph
}

// unitGraphsFor builds (or fetches) a unit's symbol table and per-function
// PDGs, keyed by the unit's analyzed content. Module-level statements are
// included as a synthetic function so top-level script flows are covered.
func (d *Dispatcher) unitGraphsFor(ua *engine.UnitAnalysis) (*unitGraphs, error) {
	key := cache.Key("pdg.unit.v1", ua.Unit, ua.Language, string(ua.Tree.Source))
	entry, err := d.eng.Cache().GetOrCompute(key, func() (*cache.Entry, error) {
		trees := map[string]*pir.Tree{ua.Unit: ua.Tree}
		table := symbols.Build(trees)
		pdgs := map[string]*pdg.Graph{}
		for _, sym := range table.InUnit(ua.Unit) {
			if sym.Kind == symbols.KindFunction || sym.Kind == symbols.KindMethod {
				pdgs[sym.QualifiedName] = pdg.Build(ua.Tree, sym.Node, sym.QualifiedName)
			}
		}
		moduleKey := symbols.QualifiedName(ua.Language, symbols.ModulePath(ua.Unit, ua.Language), "<module>")
		pdgs[moduleKey] = pdg.Build(ua.Tree, ua.Tree.Root(), moduleKey)
		return &cache.Entry{Value: &unitGraphs{table: table, pdgs: pdgs}, Report: ua.Report}, nil
	})
	if err != nil {
		return nil, err
	}
	return entry.Value.(*unitGraphs), nil
}

type securityScanArgs struct {
	Code     string `json:"code"`
	Path     string `json:"path"`
	Language string `json:"language"`
	Mode     string `json:"parsing_mode"`
	// SARIF adds a SARIF 2.1.0 rendering of the findings.
	SARIF bool `json:"sarif"`
}

// SecurityScanData is the security_scan payload.
type SecurityScanData struct {
	Findings       []taint.Finding `json:"findings"`
	Complete       bool            `json:"complete"`
	RulesetVersion string          `json:"ruleset_version"`
	SARIF          any             `json:"sarif,omitempty"`
}

func (d *Dispatcher) securityScan(c *Call, raw json.RawMessage) (any, error) {
	var args securityScanArgs
	if err := json.Unmarshal(raw, &args); err != nil || (args.Code == "" && args.Path == "") {
		return nil, argError("security_scan requires code or a path")
	}

	code := args.Code
	unit := "inline"
	if code == "" {
		abs, err := d.resolvePath(args.Path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, err
		}
		code = string(data)
		unit = args.Path
	}

	ua, err := d.analyzeUnit(c, code, args.Language, args.Mode, unit)
	if err != nil {
		return nil, err
	}

	// Findings cache per (source unit content, ruleset version, limit
	// digest); the tier-clamped limits shape the result, so they key it.
	key := cache.Key("taint.unit.v1",
		ua.Unit, ua.Language, string(ua.Tree.Source),
		d.rules.Version(),
		fmt.Sprintf("%d|%d", c.Limits.MaxFindings, c.Limits.MaxDepth),
	)
	entry, err := d.eng.Cache().GetOrCompute(key, func() (*cache.Entry, error) {
		graphs, gerr := d.unitGraphsFor(ua)
		if gerr != nil {
			return nil, gerr
		}
		trees := map[string]*pir.Tree{ua.Unit: ua.Tree}
		res, serr := taint.ScanFunctions(c.Ctx, trees, graphs.pdgs, d.rules, taint.Options{
			MaxFindings: c.Limits.MaxFindings,
			MaxDepth:    c.Limits.MaxDepth,
		})
		if serr != nil {
			return nil, serr
		}
		return &cache.Entry{Value: res, Report: ua.Report}, nil
	})
	if err != nil {
		return nil, err
	}
	res := entry.Value.(*taint.Result)
	if !res.Complete {
		c.MarkTruncated("max_findings")
	}

	data := &SecurityScanData{
		Findings:       res.Findings,
		Complete:       res.Complete,
		RulesetVersion: res.RulesetVersion,
	}
	if args.SARIF {
		if report, serr := taint.ToSARIF(res, d.version); serr == nil {
			data.SARIF = report
		}
	}
	return data, nil
}

type crossFileScanArgs struct {
	ProjectRoot string   `json:"project_root"`
	EntryPoints []string `json:"entry_points"`
	MaxDepth    int      `json:"max_depth"`
}

func (d *Dispatcher) crossFileSecurityScan(c *Call, raw json.RawMessage) (any, error) {
	var args crossFileScanArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.ProjectRoot == "" {
		return nil, argError("cross_file_security_scan requires project_root")
	}
	abs, err := d.resolvePath(args.ProjectRoot)
	if err != nil {
		return nil, err
	}
	proj, err := d.project(c.Ctx, abs, c.Progress)
	if err != nil {
		return nil, err
	}

	maxDepth := args.MaxDepth
	if maxDepth <= 0 || (c.Limits.MaxDepth > 0 && maxDepth > c.Limits.MaxDepth) {
		maxDepth = c.Limits.MaxDepth
	}

	pdgs := proj.PDGs
	if len(args.EntryPoints) > 0 {
		pdgs = map[string]*pdg.Graph{}
		for _, entry := range args.EntryPoints {
			for _, sym := range resolveAll(proj.Table, entry) {
				if g := proj.PDGs[sym]; g != nil {
					pdgs[sym] = g
				}
			}
		}
		if len(pdgs) == 0 {
			return nil, errors.NewAnalysis(errors.KindSymbolNotFound, "none of the entry points resolve to project functions")
		}
	}

	// Cross-file findings cache on the project fingerprint, the ruleset
	// version and the shaping inputs.
	key := cache.Key("taint.project.v1",
		proj.Fingerprint,
		d.rules.Version(),
		strings.Join(args.EntryPoints, ","),
		fmt.Sprintf("%d|%d", maxDepth, c.Limits.MaxFindings),
	)
	entry, err := d.eng.Cache().GetOrCompute(key, func() (*cache.Entry, error) {
		res, serr := taint.ScanProject(c.Ctx, proj.Trees(), proj.Table, pdgs, proj.Calls, d.rules, taint.Options{
			MaxFindings: c.Limits.MaxFindings,
			MaxDepth:    maxDepth,
		})
		if serr != nil {
			return nil, serr
		}
		return &cache.Entry{Value: res}, nil
	})
	if err != nil {
		return nil, err
	}
	res := entry.Value.(*taint.Result)
	if !res.Complete {
		c.MarkTruncated("max_findings")
	}
	return &SecurityScanData{
		Findings:       res.Findings,
		Complete:       res.Complete,
		RulesetVersion: res.RulesetVersion,
	}, nil
}

func resolveAll(table *symbols.Table, name string) []string {
	var out []string
	if sym := table.Lookup(name); sym != nil {
		return []string{sym.QualifiedName}
	}
	for _, q := range table.Names() {
		sym := table.Symbols[q]
		if (sym.Kind == symbols.KindFunction || sym.Kind == symbols.KindMethod) && hasSimpleName(q, name) {
			out = append(out, q)
		}
	}
	return out
}

func hasSimpleName(qualified, simple string) bool {
	n := len(qualified)
	return n > len(simple)+2 && qualified[n-len(simple):] == simple && qualified[n-len(simple)-2:n-len(simple)] == "::"
}

type sinkDetectArgs struct {
	Code      string  `json:"code"`
	Language  string  `json:"language"`
	Threshold float64 `json:"threshold"`
}

// SinkDetectData is the unified_sink_detect payload.
type SinkDetectData struct {
	Sinks     []taint.SinkMatch `json:"sinks"`
	Truncated bool              `json:"truncated"`
}

func (d *Dispatcher) unifiedSinkDetect(c *Call, raw json.RawMessage) (any, error) {
	var args sinkDetectArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.Code == "" {
		return nil, argError("unified_sink_detect requires code")
	}
	ua, err := d.analyzeUnit(c, args.Code, args.Language, "", "inline")
	if err != nil {
		return nil, err
	}
	rs := d.rules.ForLanguage(ua.Language)
	if rs == nil {
		return nil, errors.NewAnalysis(errors.KindUnsupportedLanguage, "no ruleset for "+ua.Language)
	}
	sinks := taint.DetectSinks(ua.Tree, rs, args.Threshold)
	data := &SinkDetectData{Sinks: sinks}
	if c.Limits.MaxFindings > 0 && len(sinks) > c.Limits.MaxFindings {
		data.Sinks = sinks[:c.Limits.MaxFindings]
		data.Truncated = true
		c.MarkTruncated("max_findings")
	}
	return data, nil
}

type typeEvaporationArgs struct {
	Frontend string `json:"frontend"`
	Backend  string `json:"backend"`
}

// TypeMismatch is one frontend/backend typing divergence.
type TypeMismatch struct {
	Symbol       string `json:"symbol"`
	FrontendType string `json:"frontend_type"`
	BackendType  string `json:"backend_type"`
	Detail       string `json:"detail"`
}

// typeEvaporationScan compares typed frontend declarations against the
// dynamically typed backend surface: exported TS functions whose parameter
// types evaporate to unknown on the matching backend function.
func (d *Dispatcher) typeEvaporationScan(c *Call, raw json.RawMessage) (any, error) {
	var args typeEvaporationArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.Frontend == "" || args.Backend == "" {
		return nil, argError("type_evaporation_scan requires frontend and backend code")
	}

	feUA, err := d.analyzeUnit(c, args.Frontend, "", "", "frontend")
	if err != nil {
		return nil, err
	}
	beUA, err := d.analyzeUnit(c, args.Backend, "", "", "backend")
	if err != nil {
		return nil, err
	}

	backendFns := map[string]*pir.Node{}
	for _, id := range beUA.Tree.FindAll(pir.KindFunction) {
		n := beUA.Tree.Node(id)
		backendFns[n.Name] = n
	}

	var mismatches []TypeMismatch
	for _, id := range feUA.Tree.FindAll(pir.KindFunction) {
		fe := feUA.Tree.Node(id)
		be, ok := backendFns[fe.Name]
		if !ok {
			continue
		}
		for i, feParam := range fe.Params {
			if feParam.TypeHint == "unknown" || feParam.TypeHint == "" {
				continue
			}
			if i >= len(be.Params) {
				mismatches = append(mismatches, TypeMismatch{
					Symbol:       fe.Name,
					FrontendType: feParam.TypeHint,
					BackendType:  "missing",
					Detail:       "parameter " + feParam.Name + " has no backend counterpart",
				})
				continue
			}
			beParam := be.Params[i]
			if beParam.TypeHint == "unknown" || beParam.TypeHint == "" {
				mismatches = append(mismatches, TypeMismatch{
					Symbol:       fe.Name,
					FrontendType: feParam.TypeHint,
					BackendType:  "unknown",
					Detail:       "typed parameter " + feParam.Name + " is untyped on the backend",
				})
			}
		}
	}
	return map[string]any{"mismatches": mismatches}, nil
}
