// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"encoding/json"
	"os"

	"github.com/kraklabs/scalpel/internal/contract"
	"github.com/kraklabs/scalpel/pkg/engine"
	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/query"
	"github.com/kraklabs/scalpel/pkg/sanitize"
)

// SpanEntry is one row of the analyze_code span table.
type SpanEntry struct {
	Kind      string `json:"kind"`
	Name      string `json:"name,omitempty"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	StartCol  int    `json:"start_col"`
	EndCol    int    `json:"end_col"`
}

// FunctionSummary describes one function found by analyze_code.
type FunctionSummary struct {
	Name       string   `json:"name"`
	Class      string   `json:"class,omitempty"`
	Params     []string `json:"params"`
	IsAsync    bool     `json:"is_async,omitempty"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Complexity int      `json:"complexity"`
}

// AnalyzeData is the analyze_code payload.
type AnalyzeData struct {
	Language   string            `json:"language"`
	Functions  []FunctionSummary `json:"functions"`
	Classes    []string          `json:"classes"`
	Imports    []string          `json:"imports"`
	Complexity int               `json:"complexity"`
	Spans      []SpanEntry       `json:"spans"`
}

type analyzeArgs struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	// Mode overrides the configured sanitization mode (strict | permissive).
	Mode string `json:"parsing_mode"`
}

func (d *Dispatcher) analyzeUnit(c *Call, code, language, mode, unit string) (*engine.UnitAnalysis, error) {
	if v := contract.ValidateCodePayload(code); !v.OK {
		return nil, argError("%s", v.Message)
	}
	opts := engine.ParseOptions{Language: language}
	if mode != "" {
		policy := d.eng.Config().Sanitize
		policy.Mode = sanitize.Mode(mode)
		opts.Policy = policy
	}
	ua, err := d.eng.AnalyzeSource(c.Ctx, unit, code, opts)
	if err != nil {
		return nil, err
	}
	c.attachUnit(ua)
	return ua, nil
}

// analyzeCode parses inline code and reports its structure.
func (d *Dispatcher) analyzeCode(c *Call, raw json.RawMessage) (any, error) {
	var args analyzeArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.Code == "" {
		return nil, argError("analyze_code requires a code argument")
	}

	ua, err := d.analyzeUnit(c, args.Code, args.Language, args.Mode, "inline")
	if err != nil {
		return nil, err
	}
	return summarizeTree(c, ua.Tree), nil
}

func summarizeTree(c *Call, tree *pir.Tree) *AnalyzeData {
	data := &AnalyzeData{Language: tree.Lang}

	maxNodes := c.Limits.MaxNodes
	count := 0
	tree.Walk(tree.Root(), func(id pir.NodeID, n *pir.Node) bool {
		count++
		if maxNodes > 0 && count > maxNodes {
			c.MarkTruncated("max_nodes")
			return false
		}
		switch n.Kind {
		case pir.KindFunction:
			fs := FunctionSummary{
				Name:       n.Name,
				Class:      n.OwnerClass,
				IsAsync:    n.IsAsync,
				StartLine:  n.Span.StartLine,
				EndLine:    n.Span.EndLine,
				Complexity: query.Complexity(tree, id),
			}
			for _, p := range n.Params {
				fs.Params = append(fs.Params, p.Name)
			}
			data.Functions = append(data.Functions, fs)
			data.Complexity += fs.Complexity
			data.Spans = append(data.Spans, spanEntry(n))
		case pir.KindClass:
			data.Classes = append(data.Classes, n.Name)
			data.Spans = append(data.Spans, spanEntry(n))
		case pir.KindImport:
			if n.ModulePath != "" {
				data.Imports = append(data.Imports, n.ModulePath)
			} else {
				for _, imp := range n.Imported {
					data.Imports = append(data.Imports, imp.Name)
				}
			}
			data.Spans = append(data.Spans, spanEntry(n))
		}
		return true
	})
	return data
}

func spanEntry(n *pir.Node) SpanEntry {
	return SpanEntry{
		Kind:      n.Kind.String(),
		Name:      n.Name,
		StartLine: n.Span.StartLine,
		EndLine:   n.Span.EndLine,
		StartCol:  n.Span.StartCol,
		EndCol:    n.Span.EndCol,
	}
}

type fileContextArgs struct {
	Path string `json:"path"`
}

// FileContext is the get_file_context payload: a quick summary without a
// full dependence analysis.
type FileContext struct {
	Path       string   `json:"path"`
	Language   string   `json:"language"`
	LOC        int      `json:"loc"`
	Functions  []string `json:"functions"`
	Classes    []string `json:"classes"`
	Imports    []string `json:"imports"`
	Complexity int      `json:"complexity_estimate"`
}

func (d *Dispatcher) getFileContext(c *Call, raw json.RawMessage) (any, error) {
	var args fileContextArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, argError("get_file_context requires a path argument")
	}
	abs, err := d.resolvePath(args.Path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	ua, err := d.analyzeUnit(c, string(data), "", "", args.Path)
	if err != nil {
		return nil, err
	}
	summary := summarizeTree(c, ua.Tree)

	fc := &FileContext{
		Path:       args.Path,
		Language:   ua.Language,
		LOC:        countLines(data),
		Classes:    summary.Classes,
		Imports:    summary.Imports,
		Complexity: summary.Complexity,
	}
	for _, f := range summary.Functions {
		fc.Functions = append(fc.Functions, f.Name)
	}
	return fc, nil
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := 1
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}

type crawlArgs struct {
	Root string `json:"root"`
	// MinLOC filters the per-file summaries.
	MinLOC int `json:"min_loc"`
}

// CrawlData is the crawl_project payload.
type CrawlData struct {
	Root      string         `json:"root"`
	Files     []FileContext  `json:"files"`
	Languages map[string]int `json:"languages"`
	Skipped   map[string]int `json:"skipped"`
	Truncated bool           `json:"truncated"`
}

func (d *Dispatcher) crawlProject(c *Call, raw json.RawMessage) (any, error) {
	var args crawlArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.Root == "" {
		return nil, argError("crawl_project requires a root argument")
	}
	abs, err := d.resolvePath(args.Root)
	if err != nil {
		return nil, err
	}

	proj, err := d.project(c.Ctx, abs, c.Progress)
	if err != nil {
		return nil, err
	}

	data := &CrawlData{Root: args.Root, Languages: map[string]int{}, Skipped: proj.Skipped}
	for _, unit := range proj.Units {
		ua := proj.Analyses[unit]
		data.Languages[ua.Language]++
		if c.Limits.MaxFiles > 0 && len(data.Files) >= c.Limits.MaxFiles {
			c.MarkTruncated("max_files")
			data.Truncated = true
			break
		}
		summary := summarizeTree(c, ua.Tree)
		loc := countLines(ua.Tree.Source)
		if loc < args.MinLOC {
			continue
		}
		fc := FileContext{
			Path:       unit,
			Language:   ua.Language,
			LOC:        loc,
			Classes:    summary.Classes,
			Imports:    summary.Imports,
			Complexity: summary.Complexity,
		}
		for _, f := range summary.Functions {
			fc.Functions = append(fc.Functions, f.Name)
		}
		data.Files = append(data.Files, fc)
	}
	return data, nil
}

type validatePathsArgs struct {
	Paths []string `json:"paths"`
}

func (d *Dispatcher) validatePaths(c *Call, raw json.RawMessage) (any, error) {
	var args validatePathsArgs
	if err := json.Unmarshal(raw, &args); err != nil || len(args.Paths) == 0 {
		return nil, argError("validate_paths requires a paths argument")
	}
	out := make([]PathValidity, 0, len(args.Paths))
	for _, p := range args.Paths {
		if _, err := d.resolvePath(p); err != nil {
			out = append(out, PathValidity{Path: p, Valid: false, Reason: mapError(err).Message})
			continue
		}
		out = append(out, PathValidity{Path: p, Valid: true})
	}
	return out, nil
}
