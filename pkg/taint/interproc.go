// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package taint

import (
	"context"
	"sort"

	"github.com/kraklabs/scalpel/pkg/pdg"
	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/symbols"
)

// workItem pairs a callee with the mask of tainted parameter positions it
// receives.
type workItem struct {
	callee string
	mask   uint64
	depth  int
	// seed state carried into the callee.
	marks []taintMark
	conf  float64
}

// ScanProject runs the interprocedural pass: taint entering a function's
// parameters is propagated into callees through the call graph up to
// opts.MaxDepth, with findings merged at the entry point where the original
// source lives. The worklist memoizes (callee, tainted-parameter-mask) so
// recursion terminates.
func ScanProject(ctx context.Context, trees map[string]*pir.Tree, table *symbols.Table,
	pdgs map[string]*pdg.Graph, cg *pdg.CallGraph, rules *Registry, opts Options) (*Result, error) {

	// Intraprocedural findings first.
	intra, err := ScanFunctions(ctx, trees, pdgs, rules, opts)
	if err != nil {
		return nil, err
	}

	s := &scanner{trees: trees, pdgs: pdgs, cg: cg, rules: rules, opts: opts}
	if s.opts.Budget <= 0 {
		s.opts.Budget = budgetFor(pdgs)
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 5
	}

	// Build the initial worklist: for every function with tainted variables,
	// find calls forwarding those variables as arguments.
	memo := map[string]map[uint64]bool{}
	var work []workItem

	fns := make([]string, 0, len(pdgs))
	for fn := range pdgs {
		fns = append(fns, fn)
	}
	sort.Strings(fns)

	for _, fn := range fns {
		g := pdgs[fn]
		rs := rules.ForLanguage(trees[g.Unit].Lang)
		if rs == nil {
			continue
		}
		tainted := s.taintedAtCalls(g, rs)
		for _, t := range tainted {
			work = append(work, t)
		}
	}

	for len(work) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.steps++
		if s.steps > s.opts.Budget {
			s.exceeded = true
			break
		}

		item := work[0]
		work = work[1:]
		if item.depth > maxDepth {
			continue
		}
		if memo[item.callee] == nil {
			memo[item.callee] = map[uint64]bool{}
		}
		if memo[item.callee][item.mask] {
			continue
		}
		memo[item.callee][item.mask] = true

		g := pdgs[item.callee]
		if g == nil {
			continue
		}
		rs := rules.ForLanguage(trees[g.Unit].Lang)
		if rs == nil {
			continue
		}

		s.scanFunction(ctx, g, rs, item.marks)

		// Continue into this callee's own forwarded calls.
		for _, next := range s.forwardedCalls(g, rs, item.marks, item.conf) {
			next.depth = item.depth + 1
			work = append(work, next)
		}
	}

	combined := append(intra.Findings, dedupe(s.findings)...)
	combined = dedupe(combined)
	if opts.MaxFindings > 0 && len(combined) > opts.MaxFindings {
		combined = combined[:opts.MaxFindings]
		s.exceeded = true
	}
	return &Result{
		Findings:       combined,
		Complete:       intra.Complete && !s.exceeded,
		RulesetVersion: rules.Version(),
	}, nil
}

// taintedAtCalls seeds the worklist from a function's own sources: any call
// statement consuming a tainted variable forwards taint into the callee
// parameter at the matching position.
func (s *scanner) taintedAtCalls(g *pdg.Graph, rs *Ruleset) []workItem {
	seeds := s.seed(g, rs)
	if len(seeds) == 0 {
		return nil
	}
	return s.forwardedCalls(g, rs, seeds, 1.0)
}

// forwardedCalls maps tainted variables onto callee parameters through the
// IR call arguments, producing worklist items.
func (s *scanner) forwardedCalls(g *pdg.Graph, rs *Ruleset, marks []taintMark, baseConf float64) []workItem {
	tree := s.trees[g.Unit]
	if tree == nil {
		return nil
	}

	// Tainted variable set reachable in this function: propagate seeds
	// through data flow cheaply (variable closure).
	tainted := map[string]*taintMark{}
	for i := range marks {
		if marks[i].variable != "" {
			tainted[marks[i].variable] = &marks[i]
		}
	}
	changed := true
	for changed {
		changed = false
		for _, sid := range g.Statements() {
			uses := g.StmtUses(sid)
			hit := (*taintMark)(nil)
			for _, u := range uses {
				for v, m := range tainted {
					if sameOrAliased(u, v) {
						hit = m
						break
					}
				}
				if hit != nil {
					break
				}
			}
			if hit == nil {
				continue
			}
			for _, d := range g.StmtDefs(sid) {
				if _, ok := tainted[d]; !ok {
					tainted[d] = hit
					changed = true
				}
			}
		}
	}
	if len(tainted) == 0 {
		return nil
	}

	var items []workItem
	// Each call edge leaving this function: match tainted args by position.
	for _, edge := range s.callEdgesFrom(g.Fn) {
		calleeGraph := s.pdgs[edge.Callee]
		if calleeGraph == nil {
			continue
		}
		callNode := findCallAt(tree, edge.Span)
		if callNode == pir.NoNode {
			continue
		}
		call := tree.Node(callNode)

		var mask uint64
		var seeds []taintMark
		params := calleeParams(calleeGraph)
		for i, arg := range call.Args {
			if i >= len(params) || i >= 64 {
				break
			}
			argRef := refNameOf(tree, arg)
			if argRef == "" {
				continue
			}
			for v, m := range tainted {
				if !sameOrAliased(argRef, v) {
					continue
				}
				mask |= 1 << uint(i)
				conf := m.confidence * baseConf
				if edge.Confidence < 1.0 {
					conf -= 0.1 // dynamic-dispatch edge
				}
				if conf < 0.1 {
					conf = 0.1
				}
				seeds = append(seeds, taintMark{
					variable:   params[i],
					source:     m.source,
					sourceStmt: calleeGraph.Entry,
					path:       []int{calleeGraph.Entry},
					confidence: conf,
					sanitizers: m.sanitizers,
				})
				break
			}
		}
		if mask != 0 {
			items = append(items, workItem{callee: edge.Callee, mask: mask, marks: seeds, conf: baseConf})
		}
	}
	return items
}

// callEdgesFrom lists call edges leaving a function, via the shared call
// graph when available.
func (s *scanner) callEdgesFrom(fn string) []pdg.CallEdge {
	if s.cg == nil {
		return nil
	}
	return s.cg.Callees(fn)
}

func calleeParams(g *pdg.Graph) []string {
	var out []string
	for _, n := range g.Nodes {
		if n.Kind == pdg.NodeDef && n.Stmt == g.Entry {
			out = append(out, n.Var)
		}
	}
	return out
}

// findCallAt locates the Call IR node whose span matches a call edge.
func findCallAt(tree *pir.Tree, span pir.Span) pir.NodeID {
	found := pir.NoNode
	tree.Walk(tree.Root(), func(id pir.NodeID, n *pir.Node) bool {
		if found != pir.NoNode {
			return false
		}
		if n.Kind == pir.KindCall && n.Span.StartByte == span.StartByte && n.Span.EndByte == span.EndByte {
			found = id
			return false
		}
		return n.Span.Contains(span) || n.Kind == pir.KindModule
	})
	return found
}

func refNameOf(tree *pir.Tree, id pir.NodeID) string {
	n := tree.Node(id)
	switch n.Kind {
	case pir.KindName:
		return n.Name
	case pir.KindExpr:
		if n.Tag == pir.TagAttribute && len(n.Children) > 0 {
			baseName := refNameOf(tree, n.Children[0])
			if baseName == "" {
				return n.Name
			}
			return baseName + "." + n.Name
		}
	}
	return ""
}
