// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package query implements the graph query engine: slices, neighborhoods,
// paths and reference search over PDGs and the project call graph.
package query

import (
	"sort"

	"github.com/kraklabs/scalpel/pkg/pdg"
	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/symbols"
)

// Direction selects traversal orientation.
type Direction string

const (
	DirForward  Direction = "forward"
	DirBackward Direction = "backward"
	DirIn       Direction = "in"
	DirOut      Direction = "out"
	DirBoth     Direction = "both"
)

// SliceResult is the outcome of a program slice.
type SliceResult struct {
	Nodes     []pdg.Node `json:"nodes"`
	Spans     []pir.Span `json:"spans"`
	Truncated bool       `json:"truncated"`
}

// Slice computes the forward or backward slice from a PDG node through
// def-use and control-dependence edges. Traversal is breadth-first with
// earlier spans visited first; maxNodes truncates.
func Slice(g *pdg.Graph, start int, dir Direction, maxNodes int) *SliceResult {
	if maxNodes <= 0 {
		maxNodes = 1 << 30
	}

	follows := func(k pdg.EdgeKind) bool {
		return k == pdg.EdgeDataFlow || k == pdg.EdgeControlDep || k == pdg.EdgeDefUse || k == pdg.EdgeUseDef
	}

	// Neighbor function per direction over the slice-relevant edges.
	neighbors := func(id int) []int {
		var out []int
		for _, e := range g.Edges {
			if !follows(e.Kind) {
				continue
			}
			if dir == DirForward && e.From == id {
				out = append(out, e.To)
			}
			if dir == DirBackward && e.To == id {
				out = append(out, e.From)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			return g.Nodes[out[i]].Span.Before(g.Nodes[out[j]].Span)
		})
		return out
	}

	res := &SliceResult{}
	visited := map[int]bool{start: true}
	frontier := []int{start}
	collected := []int{start}
	for len(frontier) > 0 {
		var next []int
		for _, id := range frontier {
			for _, nb := range neighbors(id) {
				if visited[nb] {
					continue
				}
				if len(collected) >= maxNodes {
					res.Truncated = true
					break
				}
				visited[nb] = true
				collected = append(collected, nb)
				next = append(next, nb)
			}
		}
		frontier = next
	}

	sort.Slice(collected, func(i, j int) bool {
		return g.Nodes[collected[i]].Span.Before(g.Nodes[collected[j]].Span)
	})
	seenSpan := map[pir.Span]bool{}
	for _, id := range collected {
		n := g.Nodes[id]
		res.Nodes = append(res.Nodes, n)
		if n.Kind == pdg.NodeStatement && !seenSpan[n.Span] {
			seenSpan[n.Span] = true
			res.Spans = append(res.Spans, n.Span)
		}
	}
	return res
}

// Subgraph is a truncatable view of the call graph.
type Subgraph struct {
	Center    string         `json:"center"`
	Nodes     []pdg.CGNode   `json:"nodes"`
	Edges     []pdg.CallEdge `json:"edges"`
	Truncated bool           `json:"truncated"`
}

// Neighborhood returns the k-hop neighborhood of a call-graph node. BFS;
// when maxNodes is reached the returned graph is a proper subset rooted at
// the center and Truncated is set. Edges under minConfidence are not
// traversed.
func Neighborhood(cg *pdg.CallGraph, center string, k int, dir Direction, maxNodes int, minConfidence float64) *Subgraph {
	res := &Subgraph{Center: center}
	if _, ok := cg.Nodes[center]; !ok {
		return res
	}
	if maxNodes <= 0 {
		maxNodes = 1 << 30
	}

	visited := map[string]bool{center: true}
	frontier := []string{center}
	included := []string{center}

	for hop := 0; hop < k && len(frontier) > 0; hop++ {
		var next []string
		for _, sym := range frontier {
			var candidates []pdg.CallEdge
			if dir == DirOut || dir == DirBoth {
				candidates = append(candidates, cg.Callees(sym)...)
			}
			if dir == DirIn || dir == DirBoth {
				candidates = append(candidates, cg.Callers(sym)...)
			}
			for _, e := range candidates {
				if e.Confidence < minConfidence {
					continue
				}
				other := e.Callee
				if other == sym {
					other = e.Caller
				}
				if visited[other] {
					continue
				}
				if len(included) >= maxNodes {
					res.Truncated = true
					break
				}
				visited[other] = true
				included = append(included, other)
				next = append(next, other)
			}
		}
		frontier = next
	}

	sort.Strings(included)
	for _, sym := range included {
		if n, ok := cg.Nodes[sym]; ok {
			res.Nodes = append(res.Nodes, *n)
		}
	}
	for _, e := range cg.Edges {
		if visited[e.Caller] && visited[e.Callee] && e.Confidence >= minConfidence {
			res.Edges = append(res.Edges, e)
		}
	}
	return res
}

// PathsResult carries up to N simple paths between two symbols.
type PathsResult struct {
	Paths     [][]string `json:"paths"`
	Truncated bool       `json:"truncated"`
}

// Paths enumerates simple call paths from one symbol to another, bounded by
// maxDepth and maxPaths.
func Paths(cg *pdg.CallGraph, from, to string, maxDepth, maxPaths int) *PathsResult {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	if maxPaths <= 0 {
		maxPaths = 25
	}
	res := &PathsResult{}

	var cur []string
	onPath := map[string]bool{}
	var dfs func(sym string)
	dfs = func(sym string) {
		if len(res.Paths) >= maxPaths {
			res.Truncated = true
			return
		}
		cur = append(cur, sym)
		onPath[sym] = true
		defer func() {
			cur = cur[:len(cur)-1]
			delete(onPath, sym)
		}()

		if sym == to {
			res.Paths = append(res.Paths, append([]string(nil), cur...))
			return
		}
		if len(cur) > maxDepth {
			return
		}
		for _, e := range cg.Callees(sym) {
			if onPath[e.Callee] {
				continue
			}
			dfs(e.Callee)
			if len(res.Paths) >= maxPaths {
				res.Truncated = true
				return
			}
		}
	}
	dfs(from)
	return res
}

// Reference is one resolved use of a symbol.
type Reference struct {
	Unit    string   `json:"unit"`
	Span    pir.Span `json:"span"`
	Context string   `json:"context"`
}

// References finds every Name node whose binding equals the symbol, across
// the project. scopeFilter restricts results to one unit when non-empty.
func References(trees map[string]*pir.Tree, qualified, scopeFilter string) []Reference {
	units := make([]string, 0, len(trees))
	for u := range trees {
		if scopeFilter != "" && u != scopeFilter {
			continue
		}
		units = append(units, u)
	}
	sort.Strings(units)

	var refs []Reference
	for _, unit := range units {
		tree := trees[unit]
		tree.Walk(tree.Root(), func(id pir.NodeID, n *pir.Node) bool {
			if n.Kind == pir.KindName && n.Binding == qualified {
				refs = append(refs, Reference{Unit: unit, Span: n.Span, Context: lineContext(tree, n.Span)})
			}
			return true
		})
	}
	return refs
}

// lineContext extracts the source line a span starts on.
func lineContext(tree *pir.Tree, span pir.Span) string {
	src := tree.Source
	start := int(span.StartByte)
	if start > len(src) {
		return ""
	}
	lineStart := start
	for lineStart > 0 && src[lineStart-1] != '\n' {
		lineStart--
	}
	lineEnd := start
	for lineEnd < len(src) && src[lineEnd] != '\n' {
		lineEnd++
	}
	return string(src[lineStart:lineEnd])
}

// ResolveSymbol finds a symbol by simple or qualified name. Returns the
// matches in deterministic order; the simple-name search skips import
// aliases, so it yields the declarations themselves.
func ResolveSymbol(table *symbols.Table, name string) []*symbols.Symbol {
	if sym := table.Lookup(name); sym != nil {
		return []*symbols.Symbol{sym}
	}
	var out []*symbols.Symbol
	for _, q := range table.Names() {
		sym := table.Symbols[q]
		if sym.Kind == symbols.KindImport {
			continue
		}
		if simpleName(q) == name {
			out = append(out, sym)
		}
	}
	return out
}

func simpleName(qualified string) string {
	for i := len(qualified) - 2; i >= 0; i-- {
		if qualified[i] == ':' && qualified[i+1] == ':' {
			return qualified[i+2:]
		}
	}
	return qualified
}
