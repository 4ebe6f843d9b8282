// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pdg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/symbols"
)

// CGNode is one call-graph node: a function or method symbol.
type CGNode struct {
	Symbol string   `json:"symbol"`
	Name   string   `json:"name"`
	Unit   string   `json:"unit"`
	Kind   string   `json:"kind"`
	Span   pir.Span `json:"span"`
}

// CallEdge is one call site. Confidence is 1.0 for unambiguous resolution
// and 1/n when the callee was inferred through duck typing across n
// candidates.
type CallEdge struct {
	Caller     string   `json:"caller"`
	Callee     string   `json:"callee"`
	Span       pir.Span `json:"call_span"`
	Confidence float64  `json:"confidence"`
}

// CallGraph is the project-wide call graph, stored as adjacency lists indexed
// by symbol keys so cycles are representable without lifetime complications.
type CallGraph struct {
	Nodes map[string]*CGNode `json:"nodes"`
	Edges []CallEdge         `json:"edges"`
	Diags []pir.Diagnostic   `json:"diags,omitempty"`

	out map[string][]int
	in  map[string][]int
}

// Callees returns the edges leaving a symbol.
func (cg *CallGraph) Callees(symbol string) []CallEdge {
	return cg.edgesAt(cg.out[symbol])
}

// Callers returns the edges arriving at a symbol.
func (cg *CallGraph) Callers(symbol string) []CallEdge {
	return cg.edgesAt(cg.in[symbol])
}

func (cg *CallGraph) edgesAt(idx []int) []CallEdge {
	out := make([]CallEdge, 0, len(idx))
	for _, i := range idx {
		out = append(out, cg.Edges[i])
	}
	return out
}

// BuildCallGraph scans every Call node of every function and contributes
// edges. Dynamic dispatch fans out over same-named methods at confidence 1/n;
// calls through opaque nodes produce a dynamic_call diagnostic and no edge.
func BuildCallGraph(trees map[string]*pir.Tree, table *symbols.Table) *CallGraph {
	cg := &CallGraph{Nodes: make(map[string]*CGNode)}

	units := make([]string, 0, len(trees))
	for u := range trees {
		units = append(units, u)
	}
	sort.Strings(units)

	// Function symbol per declaring IR node, and method candidates by simple
	// name for duck-typed dispatch.
	fnByNode := make(map[string]map[pir.NodeID]*symbols.Symbol)
	methodsByName := make(map[string][]*symbols.Symbol)
	functionsByName := make(map[string][]*symbols.Symbol)
	for _, unit := range units {
		fnByNode[unit] = make(map[pir.NodeID]*symbols.Symbol)
		for _, sym := range table.InUnit(unit) {
			switch sym.Kind {
			case symbols.KindFunction, symbols.KindMethod:
				fnByNode[unit][sym.Node] = sym
				simple := simpleName(sym.QualifiedName)
				if sym.Kind == symbols.KindMethod {
					methodsByName[simple] = append(methodsByName[simple], sym)
				} else {
					functionsByName[simple] = append(functionsByName[simple], sym)
				}
				cg.Nodes[sym.QualifiedName] = &CGNode{
					Symbol: sym.QualifiedName,
					Name:   simple,
					Unit:   sym.Unit,
					Kind:   string(sym.Kind),
					Span:   trees[unit].Node(sym.Node).Span,
				}
			}
		}
	}

	for _, unit := range units {
		tree := trees[unit]
		for _, fnID := range tree.FindAll(pir.KindFunction) {
			caller, ok := fnByNode[unit][fnID]
			if !ok {
				continue
			}
			cg.collectCalls(tree, fnID, caller, table, methodsByName, functionsByName)
		}
	}

	cg.Canonicalize()
	return cg
}

func (cg *CallGraph) collectCalls(tree *pir.Tree, fnID pir.NodeID, caller *symbols.Symbol,
	table *symbols.Table, methodsByName, functionsByName map[string][]*symbols.Symbol) {

	tree.Walk(fnID, func(id pir.NodeID, n *pir.Node) bool {
		if id != fnID && n.Kind == pir.KindFunction {
			return false // nested functions contribute their own edges
		}
		if n.Kind == pir.KindOpaque {
			cg.Diags = append(cg.Diags, pir.Diagnostic{
				Code:    "dynamic_call",
				Message: fmt.Sprintf("call through opaque construct in %s", caller.QualifiedName),
				Line:    n.Span.StartLine,
				Col:     n.Span.StartCol,
			})
			return false
		}
		if n.Kind != pir.KindCall || n.Callee == pir.NoNode {
			return true
		}

		span := n.Span
		callee := tree.Node(n.Callee)
		switch {
		case callee.Kind == pir.KindName:
			if sym := table.Lookup(callee.Binding); sym != nil &&
				(sym.Kind == symbols.KindFunction || sym.Kind == symbols.KindMethod) {
				cg.Edges = append(cg.Edges, CallEdge{Caller: caller.QualifiedName, Callee: sym.QualifiedName, Span: span, Confidence: 1.0})
				return true
			}
			// Unbound name: fall back to every project function with the
			// same simple name, at confidence 1/n.
			candidates := functionsByName[callee.Name]
			for _, c := range candidates {
				cg.Edges = append(cg.Edges, CallEdge{
					Caller: caller.QualifiedName, Callee: c.QualifiedName, Span: span,
					Confidence: 1.0 / float64(len(candidates)),
				})
			}

		case callee.Kind == pir.KindExpr && callee.Tag == pir.TagAttribute:
			// obj.method(...): duck-type over all same-named methods; the
			// receiver's binding is not consulted.
			candidates := methodsByName[callee.Name]
			if len(candidates) == 0 {
				return true
			}
			for _, c := range candidates {
				cg.Edges = append(cg.Edges, CallEdge{
					Caller: caller.QualifiedName, Callee: c.QualifiedName, Span: span,
					Confidence: 1.0 / float64(len(candidates)),
				})
			}
		}
		return true
	})
}

func simpleName(qualified string) string {
	if i := strings.LastIndex(qualified, "::"); i >= 0 {
		return qualified[i+2:]
	}
	return qualified
}

// Canonicalize sorts edges lexicographically by endpoint keys then span and
// rebuilds adjacency; serialization of the same project is byte-identical.
func (cg *CallGraph) Canonicalize() {
	sort.SliceStable(cg.Edges, func(i, j int) bool {
		a, b := cg.Edges[i], cg.Edges[j]
		if a.Caller != b.Caller {
			return a.Caller < b.Caller
		}
		if a.Callee != b.Callee {
			return a.Callee < b.Callee
		}
		return a.Span.Before(b.Span)
	})
	cg.out = make(map[string][]int)
	cg.in = make(map[string][]int)
	for i, e := range cg.Edges {
		cg.out[e.Caller] = append(cg.out[e.Caller], i)
		cg.in[e.Callee] = append(cg.in[e.Callee], i)
	}
	sort.SliceStable(cg.Diags, func(i, j int) bool {
		if cg.Diags[i].Line != cg.Diags[j].Line {
			return cg.Diags[i].Line < cg.Diags[j].Line
		}
		return cg.Diags[i].Message < cg.Diags[j].Message
	})
}

// Mermaid renders a textual diagram description of the graph.
func (cg *CallGraph) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	names := make([]string, 0, len(cg.Nodes))
	for k := range cg.Nodes {
		names = append(names, k)
	}
	sort.Strings(names)
	alias := make(map[string]string, len(names))
	for i, n := range names {
		alias[n] = fmt.Sprintf("n%d", i)
		sb.WriteString(fmt.Sprintf("    %s[%q]\n", alias[n], simpleName(n)))
	}
	for _, e := range cg.Edges {
		from, okF := alias[e.Caller]
		to, okT := alias[e.Callee]
		if !okF || !okT {
			continue
		}
		if e.Confidence < 1.0 {
			sb.WriteString(fmt.Sprintf("    %s -.->|%.2f| %s\n", from, e.Confidence, to))
		} else {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", from, to))
		}
	}
	return sb.String()
}
