// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package query

import (
	"sort"
	"strings"

	"github.com/kraklabs/scalpel/pkg/pdg"
	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/symbols"
)

// FileStats summarizes one source unit.
type FileStats struct {
	Unit       string `json:"unit"`
	Language   string `json:"language"`
	LOC        int    `json:"loc"`
	Functions  int    `json:"functions"`
	Classes    int    `json:"classes"`
	Complexity int    `json:"complexity"`
}

// Hotspot is a high-complexity function.
type Hotspot struct {
	Symbol     string `json:"symbol"`
	Unit       string `json:"unit"`
	Complexity int    `json:"complexity"`
	StartLine  int    `json:"start_line"`
}

// EntryPoint is a detected program entry.
type EntryPoint struct {
	Symbol string `json:"symbol"`
	Unit   string `json:"unit"`
	Reason string `json:"reason"`
}

// ProjectMap is the get_project_map payload.
type ProjectMap struct {
	Files       []FileStats    `json:"files"`
	Hotspots    []Hotspot      `json:"hotspots"`
	EntryPoints []EntryPoint   `json:"entry_points"`
	Languages   map[string]int `json:"languages"`
	TotalLOC    int            `json:"total_loc"`
	Truncated   bool           `json:"truncated"`
}

// BuildProjectMap computes per-file statistics, the top-N complexity
// hotspots and detected entry points. maxFiles truncates the file listing.
func BuildProjectMap(trees map[string]*pir.Tree, table *symbols.Table, cg *pdg.CallGraph, topN, maxFiles int) *ProjectMap {
	if topN <= 0 {
		topN = 10
	}
	pm := &ProjectMap{Languages: map[string]int{}}

	units := make([]string, 0, len(trees))
	for u := range trees {
		units = append(units, u)
	}
	sort.Strings(units)

	var hotspots []Hotspot
	for _, unit := range units {
		tree := trees[unit]
		stats := FileStats{Unit: unit, Language: tree.Lang, LOC: countLOC(tree.Source)}
		pm.Languages[tree.Lang]++
		pm.TotalLOC += stats.LOC

		for _, sym := range table.InUnit(unit) {
			switch sym.Kind {
			case symbols.KindFunction, symbols.KindMethod:
				stats.Functions++
				cx := Complexity(tree, sym.Node)
				stats.Complexity += cx
				hotspots = append(hotspots, Hotspot{
					Symbol:     sym.QualifiedName,
					Unit:       unit,
					Complexity: cx,
					StartLine:  tree.Node(sym.Node).Span.StartLine,
				})
				if ep, reason := entryPoint(tree, sym); ep {
					pm.EntryPoints = append(pm.EntryPoints, EntryPoint{Symbol: sym.QualifiedName, Unit: unit, Reason: reason})
				}
			case symbols.KindClass:
				stats.Classes++
			}
		}

		if maxFiles > 0 && len(pm.Files) >= maxFiles {
			pm.Truncated = true
			continue
		}
		pm.Files = append(pm.Files, stats)
	}

	sort.SliceStable(hotspots, func(i, j int) bool {
		if hotspots[i].Complexity != hotspots[j].Complexity {
			return hotspots[i].Complexity > hotspots[j].Complexity
		}
		return hotspots[i].Symbol < hotspots[j].Symbol
	})
	if len(hotspots) > topN {
		hotspots = hotspots[:topN]
	}
	pm.Hotspots = hotspots
	return pm
}

// Complexity computes the cyclomatic complexity of a function node: one plus
// each branching construct in its body.
func Complexity(tree *pir.Tree, fn pir.NodeID) int {
	cx := 1
	tree.Walk(fn, func(id pir.NodeID, n *pir.Node) bool {
		if id != fn && n.Kind == pir.KindFunction {
			return false
		}
		switch n.Kind {
		case pir.KindIf, pir.KindLoop, pir.KindTry:
			cx++
		case pir.KindExpr:
			if n.Tag == pir.TagBinary && (n.Name == "and" || n.Name == "or" || n.Name == "&&" || n.Name == "||") {
				cx++
			}
		}
		return true
	})
	return cx
}

// entryPoint applies the entry-point heuristics: functions named main, HTTP
// route handlers, and CLI command functions.
func entryPoint(tree *pir.Tree, sym *symbols.Symbol) (bool, string) {
	name := simpleName(sym.QualifiedName)
	if name == "main" {
		return true, "main function"
	}
	// Route handlers are recognized by calls anywhere in the unit whose
	// callee name is a routing verb and that pass the function by name as an
	// argument.
	fnName := name
	found := false
	reason := ""
	tree.Walk(tree.Root(), func(id pir.NodeID, n *pir.Node) bool {
		if found || n.Kind != pir.KindCall || n.Callee == pir.NoNode {
			return true
		}
		callee := tree.Node(n.Callee)
		target := callee.Name
		if callee.Kind == pir.KindName {
			target = callee.Name
		}
		if !isRouteVerb(target) {
			return true
		}
		for _, a := range n.Args {
			an := tree.Node(a)
			if an.Kind == pir.KindName && an.Name == fnName {
				found = true
				reason = "HTTP route handler"
				return false
			}
		}
		return true
	})
	if found {
		return true, reason
	}
	// CLI entry functions follow the host framework's naming convention.
	if strings.HasPrefix(name, "cli_") || name == "cli" {
		return true, "CLI entry point"
	}
	return false, ""
}

func isRouteVerb(name string) bool {
	switch name {
	case "route", "get", "post", "put", "delete", "patch", "add_url_rule", "use":
		return true
	}
	return false
}

func countLOC(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	lines := 1
	for _, b := range src {
		if b == '\n' {
			lines++
		}
	}
	return lines
}
