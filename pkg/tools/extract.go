// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"encoding/json"
	stderrors "errors"
	"os"

	"github.com/kraklabs/scalpel/internal/errors"
	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/surgery"
	"github.com/kraklabs/scalpel/pkg/symbols"
)

type extractArgs struct {
	TargetType string `json:"target_type"`
	TargetName string `json:"target_name"`
	// Source is inline code; Path reads a file instead.
	Source   string `json:"source"`
	Path     string `json:"path"`
	Language string `json:"language"`

	IncludeContext   bool `json:"include_context"`
	ContextDepth     int  `json:"context_depth"`
	IncludeCrossFile bool `json:"include_cross_file"`
	MaxDepth         int  `json:"max_depth"`
}

// correctionThreshold is the minimum similarity for ranked suggestions.
const correctionThreshold = 0.6

func (d *Dispatcher) extractCode(c *Call, raw json.RawMessage) (any, error) {
	var args extractArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, argError("extract_code requires target_type and target_name")
	}
	if args.TargetName == "" {
		return nil, argError("target_name must not be empty")
	}
	targetType := surgery.TargetType(args.TargetType)
	switch targetType {
	case surgery.TargetFunction, surgery.TargetClass, surgery.TargetMethod:
	default:
		return nil, argError("target_type must be function, class or method")
	}

	code := args.Source
	unit := "inline"
	if code == "" {
		if args.Path == "" {
			return nil, argError("extract_code needs source code or a path")
		}
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

	ua, err := d.analyzeUnit(c, code, args.Language, "", unit)
	if err != nil {
		return nil, err
	}

	ex, err := surgery.Extract(ua.Tree, targetType, args.TargetName)
	if err != nil {
		return nil, d.withCorrections(err, ua.Tree, args.TargetName)
	}

	if args.IncludeContext || args.IncludeCrossFile {
		trees := map[string]*pir.Tree{ua.Unit: ua.Tree}
		table := symbols.Build(trees)
		ex = surgery.WithContext(ex, trees, table, surgery.ContextOptions{
			Depth:     args.ContextDepth,
			CrossFile: false, // single-unit extraction; no cross-file context is added
			MaxDepth:  args.MaxDepth,
		})
	}
	return ex, nil
}

// withCorrections upgrades symbol_not_found into correction_needed when the
// unit's symbol table offers ranked candidates.
func (d *Dispatcher) withCorrections(err error, tree *pir.Tree, requested string) error {
	var notFound *surgery.ErrNotFound
	if !stderrors.As(err, &notFound) {
		return err
	}
	table := symbols.Build(map[string]*pir.Tree{tree.Unit: tree})
	suggestions := table.Suggest(requested, correctionThreshold, 5)
	if len(suggestions) == 0 {
		return err
	}
	ae := errors.NewAnalysis(errors.KindCorrectionNeeded, notFound.Error()).
		WithSuggestion("did you mean " + suggestions[0].Symbol + "?")
	for _, s := range suggestions {
		ae.Suggestions = append(ae.Suggestions, errors.Suggestion{
			Symbol: s.Symbol, Score: s.Score, Reason: s.Reason,
		})
	}
	return ae
}

type crossFileDepsArgs struct {
	ProjectRoot  string `json:"project_root"`
	TargetFile   string `json:"target_file"`
	TargetSymbol string `json:"target_symbol"`
	MaxDepth     int    `json:"max_depth"`
	IncludeCode  bool   `json:"include_code"`
}

// CrossFileDeps is the get_cross_file_dependencies payload.
type CrossFileDeps struct {
	Symbol       string               `json:"symbol"`
	Dependencies []surgery.Dependency `json:"dependencies"`
	Truncated    bool                 `json:"truncated"`
}

func (d *Dispatcher) getCrossFileDependencies(c *Call, raw json.RawMessage) (any, error) {
	var args crossFileDepsArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.TargetFile == "" || args.TargetSymbol == "" {
		return nil, argError("get_cross_file_dependencies requires project_root, target_file and target_symbol")
	}
	root := args.ProjectRoot
	if root == "" {
		root = "."
	}
	abs, err := d.resolvePath(root)
	if err != nil {
		return nil, err
	}

	proj, err := d.project(c.Ctx, abs, c.Progress)
	if err != nil {
		return nil, err
	}

	ua := proj.Analyses[args.TargetFile]
	if ua == nil {
		return nil, errors.NewAnalysis(errors.KindPathNotFound, "target_file is not part of the project snapshot")
	}

	ex, err := surgery.Extract(ua.Tree, surgery.TargetFunction, args.TargetSymbol)
	if err != nil {
		if ex2, err2 := surgery.Extract(ua.Tree, surgery.TargetClass, args.TargetSymbol); err2 == nil {
			ex, err = ex2, nil
		} else if ex3, err3 := surgery.Extract(ua.Tree, surgery.TargetMethod, args.TargetSymbol); err3 == nil {
			ex, err = ex3, nil
		}
	}
	if err != nil {
		return nil, d.withCorrections(err, ua.Tree, args.TargetSymbol)
	}

	maxDepth := args.MaxDepth
	if maxDepth <= 0 || maxDepth > c.Limits.MaxDepth {
		maxDepth = c.Limits.MaxDepth
	}
	ex = surgery.WithContext(ex, proj.Trees(), proj.Table, surgery.ContextOptions{
		Depth:     maxDepth,
		CrossFile: true,
		MaxDepth:  maxDepth,
		MaxDeps:   c.Limits.MaxNodes,
	})

	deps := ex.Dependencies
	if !args.IncludeCode {
		for i := range deps {
			deps[i].Code = ""
		}
	}
	out := &CrossFileDeps{Symbol: args.TargetSymbol, Dependencies: deps}
	if len(deps) >= c.Limits.MaxNodes && c.Limits.MaxNodes > 0 {
		c.MarkTruncated("max_nodes")
		out.Truncated = true
	}
	return out, nil
}
