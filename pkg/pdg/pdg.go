// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package pdg builds Program Dependence Graphs and the project call graph
// over the PIR.
//
// A Graph is built per function: a control-flow graph of statements, control
// dependences derived from postdominance, reaching definitions for data-flow
// edges, and def-use chains per variable. Graph nodes reference IR nodes by
// index only, never by pointer, so graphs serialize and copy freely.
package pdg

import (
	"fmt"
	"sort"

	"github.com/kraklabs/scalpel/pkg/pir"
)

// NodeKind classifies PDG nodes.
type NodeKind string

const (
	NodeStatement  NodeKind = "statement"
	NodeExpression NodeKind = "expression"
	NodeDef        NodeKind = "def"
	NodeUse        NodeKind = "use"
	NodeRegion     NodeKind = "region"
)

// EdgeKind classifies PDG edges.
type EdgeKind string

const (
	EdgeDataFlow   EdgeKind = "data_flow"
	EdgeControlDep EdgeKind = "control_dep"
	EdgeDefUse     EdgeKind = "def_use"
	EdgeUseDef     EdgeKind = "use_def"
)

// Node is one PDG node. Def/use nodes carry the variable and reference their
// owning statement through Stmt.
type Node struct {
	ID   int        `json:"id"`
	Kind NodeKind   `json:"kind"`
	IR   pir.NodeID `json:"ir"`
	Span pir.Span   `json:"span"`
	Var  string     `json:"var,omitempty"`
	Stmt int        `json:"stmt,omitempty"`
	// CallTarget is set on statement nodes that perform a call.
	CallTarget string `json:"call_target,omitempty"`
	// Opaque marks barrier nodes: taint and slices do not flow through.
	Opaque bool `json:"opaque,omitempty"`
	Branch bool `json:"branch,omitempty"`
}

// Edge is a directed PDG edge; data-flow edges are labeled with the carried
// variable.
type Edge struct {
	From int      `json:"from"`
	To   int      `json:"to"`
	Kind EdgeKind `json:"kind"`
	Var  string   `json:"var,omitempty"`
}

// Graph is the PDG of one function.
type Graph struct {
	Unit  string           `json:"unit"`
	Fn    string           `json:"fn"`
	Nodes []Node           `json:"nodes"`
	Edges []Edge           `json:"edges"`
	Entry int              `json:"entry"`
	Exit  int              `json:"exit"`
	Diags []pir.Diagnostic `json:"diags,omitempty"`

	// cfgSucc holds control-flow successors between statement node ids.
	cfgSucc map[int][]int
	// guards maps a statement to the branch it lies immediately inside and
	// the arm (true/false) it was laid on. Control-dependence edges to the
	// immediate arm carry the arm as their label.
	guards map[int]guardArm

	out map[int][]int
	in  map[int][]int
}

type guardArm struct {
	branch int
	onTrue bool
}

// markArms records arm membership for the statement nodes in [thenStart,
// elseStart) and [elseStart, end). Nested branches assign first, so only the
// immediate guard sticks.
func (g *Graph) markArms(branch, thenStart, elseStart, end int) {
	if g.guards == nil {
		g.guards = make(map[int]guardArm)
	}
	for id := thenStart; id < elseStart; id++ {
		if _, ok := g.guards[id]; !ok {
			g.guards[id] = guardArm{branch: branch, onTrue: true}
		}
	}
	for id := elseStart; id < end; id++ {
		if _, ok := g.guards[id]; !ok {
			g.guards[id] = guardArm{branch: branch, onTrue: false}
		}
	}
}

// maxFixpointSteps bounds every iterative analysis at O(nodes²).
func (g *Graph) maxFixpointSteps() int {
	n := len(g.Nodes)
	return n*n + 16
}

func (g *Graph) addNode(n Node) int {
	n.ID = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	return n.ID
}

func (g *Graph) addEdge(from, to int, kind EdgeKind, variable string) {
	g.Edges = append(g.Edges, Edge{From: from, To: to, Kind: kind, Var: variable})
}

// Succ returns outgoing neighbor node ids; built lazily after construction.
func (g *Graph) Succ(id int) []int { return g.out[id] }

// Pred returns incoming neighbor node ids.
func (g *Graph) Pred(id int) []int { return g.in[id] }

// EdgesFrom returns the edges leaving id.
func (g *Graph) EdgesFrom(id int) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

func (g *Graph) buildAdjacency() {
	g.out = make(map[int][]int, len(g.Nodes))
	g.in = make(map[int][]int, len(g.Nodes))
	for _, e := range g.Edges {
		g.out[e.From] = append(g.out[e.From], e.To)
		g.in[e.To] = append(g.in[e.To], e.From)
	}
}

// NodeAt returns the most specific statement node covering the span position,
// or -1.
func (g *Graph) NodeAt(line, col int) int {
	best, bestSize := -1, uint32(0)
	for _, n := range g.Nodes {
		if n.Kind != NodeStatement {
			continue
		}
		if n.Span.StartLine > line || n.Span.EndLine < line {
			continue
		}
		size := n.Span.EndByte - n.Span.StartByte
		if best == -1 || size < bestSize {
			best, bestSize = n.ID, size
		}
	}
	return best
}

// Build constructs the PDG for the function node fnID of tree. fnQName is
// the function's qualified symbol name.
func Build(tree *pir.Tree, fnID pir.NodeID, fnQName string) *Graph {
	g := &Graph{Unit: tree.Unit, Fn: fnQName, cfgSucc: make(map[int][]int)}

	fn := tree.Node(fnID)
	g.Entry = g.addNode(Node{Kind: NodeRegion, IR: fnID, Span: fn.Span, Var: "<entry>"})
	g.Exit = g.addNode(Node{Kind: NodeRegion, IR: fnID, Span: fn.Span, Var: "<exit>"})

	// Parameters are initial definitions hanging off the entry region.
	for _, p := range fn.Params {
		def := g.addNode(Node{Kind: NodeDef, IR: p.Node, Span: tree.Node(p.Node).Span, Var: p.Name, Stmt: g.Entry})
		g.addEdge(g.Entry, def, EdgeDefUse, p.Name)
	}

	lay := &layouter{g: g, tree: tree}
	exits := lay.layoutSeq(statementChildren(tree, fnID), []int{g.Entry})
	for _, e := range exits {
		g.connectCFG(e, g.Exit)
	}
	for _, ret := range lay.returns {
		g.connectCFG(ret, g.Exit)
		g.addEdge(ret, g.Exit, EdgeDataFlow, "<return>")
	}

	g.controlDependences()
	g.dataFlow(lay)
	g.Canonicalize()
	return g
}

// splitIfChildren separates an If node's statement children into the
// consequence and the alternative using the node's ElseIdx.
func splitIfChildren(tree *pir.Tree, id pir.NodeID) (thenStmts, elseStmts []pir.NodeID) {
	n := tree.Node(id)
	for i, c := range n.Children {
		if c == n.Cond || !isStatementKind(tree.Node(c).Kind) {
			continue
		}
		if n.ElseIdx >= 0 && i >= n.ElseIdx {
			elseStmts = append(elseStmts, c)
		} else {
			thenStmts = append(thenStmts, c)
		}
	}
	return thenStmts, elseStmts
}

// statementChildren lists the statement-level children of a container node.
// The condition child of an If/Loop is payload, not a body statement.
func statementChildren(tree *pir.Tree, id pir.NodeID) []pir.NodeID {
	n := tree.Node(id)
	var out []pir.NodeID
	for _, c := range n.Children {
		if c == n.Cond {
			continue
		}
		if isStatementKind(tree.Node(c).Kind) {
			out = append(out, c)
		}
	}
	return out
}

type layouter struct {
	g       *Graph
	tree    *pir.Tree
	stmts   map[int]stmt // statement payload by node id
	returns []int
}

func (l *layouter) record(id int, s stmt) {
	if l.stmts == nil {
		l.stmts = make(map[int]stmt)
	}
	l.stmts[id] = s
}

func (g *Graph) connectCFG(from, to int) {
	for _, existing := range g.cfgSucc[from] {
		if existing == to {
			return
		}
	}
	g.cfgSucc[from] = append(g.cfgSucc[from], to)
}

// layoutSeq lays out a statement sequence, wiring CFG edges from preds, and
// returns the exit frontier.
func (l *layouter) layoutSeq(ids []pir.NodeID, preds []int) []int {
	cur := preds
	for _, id := range ids {
		cur = l.layoutStmt(id, cur)
	}
	return cur
}

func (l *layouter) layoutStmt(id pir.NodeID, preds []int) []int {
	s := buildStmt(l.tree, id)
	n := l.tree.Node(id)

	node := Node{
		Kind:       NodeStatement,
		IR:         id,
		Span:       s.span,
		CallTarget: s.callTarget,
		Opaque:     s.opaque,
		Branch:     s.branch,
	}
	sid := l.g.addNode(node)
	l.record(sid, s)
	for _, p := range preds {
		l.g.connectCFG(p, sid)
	}

	switch n.Kind {
	case pir.KindIf:
		thenStmts, elseStmts := splitIfChildren(l.tree, id)
		thenStart := len(l.g.Nodes)
		thenExits := l.layoutSeq(thenStmts, []int{sid})
		elseStart := len(l.g.Nodes)
		if len(elseStmts) > 0 {
			elseExits := l.layoutSeq(elseStmts, []int{sid})
			l.g.markArms(sid, thenStart, elseStart, len(l.g.Nodes))
			return append(thenExits, elseExits...)
		}
		l.g.markArms(sid, thenStart, elseStart, elseStart)
		// Fallthrough on the false branch plus every body exit.
		return append(thenExits, sid)

	case pir.KindLoop:
		bodyStart := len(l.g.Nodes)
		bodyExits := l.layoutSeq(statementChildren(l.tree, id), []int{sid})
		l.g.markArms(sid, bodyStart, len(l.g.Nodes), len(l.g.Nodes))
		for _, e := range bodyExits {
			l.g.connectCFG(e, sid)
		}
		return []int{sid}

	case pir.KindTry:
		bodyExits := l.layoutSeq(statementChildren(l.tree, id), []int{sid})
		return append(bodyExits, sid)

	case pir.KindReturn, pir.KindRaise:
		l.returns = append(l.returns, sid)
		return nil

	default:
		return []int{sid}
	}
}

// controlDependences derives control-dependence edges from postdominance
// (Ferrante et al.): for each CFG edge (a, b) where b does not postdominate
// a, every node from b up the postdominator tree to ipdom(a) exclusive is
// control-dependent on a.
func (g *Graph) controlDependences() {
	ipdom, ok := g.postDominators()
	if !ok {
		g.Diags = append(g.Diags, pir.Diagnostic{
			Code:    "analysis_budget_exhausted",
			Message: fmt.Sprintf("postdominator fixed point exceeded %d steps in %s", g.maxFixpointSteps(), g.Fn),
		})
		return
	}
	for a, succs := range g.cfgSucc {
		for _, b := range succs {
			if g.postdominates(b, a, ipdom) {
				continue
			}
			stop := ipdom[a]
			for x := b; x != -1 && x != stop; x = ipdom[x] {
				if x != a {
					// Edges to a statement's immediate arm carry the arm
					// label so path-sensitive consumers can tell the truthy
					// branch from the falsy one.
					label := ""
					if ga, ok := g.guards[x]; ok && ga.branch == a {
						if ga.onTrue {
							label = "true"
						} else {
							label = "false"
						}
					}
					g.addEdge(a, x, EdgeControlDep, label)
				}
				if x == ipdom[x] {
					break
				}
			}
		}
	}
}

// postDominators computes immediate postdominators over the statement CFG via
// the standard iterative dataflow, bounded by maxFixpointSteps.
func (g *Graph) postDominators() (map[int]int, bool) {
	// Reverse CFG.
	rsucc := make(map[int][]int)
	nodes := []int{g.Entry, g.Exit}
	for _, n := range g.Nodes {
		if n.Kind == NodeStatement {
			nodes = append(nodes, n.ID)
		}
	}
	for from, succs := range g.cfgSucc {
		for _, to := range succs {
			rsucc[to] = append(rsucc[to], from)
		}
	}

	// Reverse postorder on the reverse CFG starting from Exit.
	order := make([]int, 0, len(nodes))
	seen := make(map[int]bool, len(nodes))
	var dfs func(int)
	var stackDepth int
	dfs = func(u int) {
		if seen[u] || stackDepth > len(g.Nodes)+2 {
			return
		}
		seen[u] = true
		stackDepth++
		for _, v := range rsucc[u] {
			dfs(v)
		}
		stackDepth--
		order = append(order, u)
	}
	dfs(g.Exit)
	// order is postorder; reverse it for RPO.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}

	rpoIndex := make(map[int]int, len(order))
	for i, n := range order {
		rpoIndex[n] = i
	}

	ipdom := make(map[int]int, len(nodes))
	for _, n := range nodes {
		ipdom[n] = -1
	}
	ipdom[g.Exit] = g.Exit

	intersect := func(a, b int) int {
		for a != b {
			for rpoIndex[a] > rpoIndex[b] {
				a = ipdom[a]
				if a == -1 {
					return b
				}
			}
			for rpoIndex[b] > rpoIndex[a] {
				b = ipdom[b]
				if b == -1 {
					return a
				}
			}
		}
		return a
	}

	steps := 0
	for changed := true; changed; {
		changed = false
		for _, u := range order {
			if u == g.Exit {
				continue
			}
			steps++
			if steps > g.maxFixpointSteps() {
				return nil, false
			}
			newIdom := -1
			for _, p := range g.cfgSucc[u] {
				if _, ok := rpoIndex[p]; !ok {
					continue
				}
				if ipdom[p] == -1 && p != g.Exit {
					continue
				}
				if newIdom == -1 {
					newIdom = p
				} else {
					newIdom = intersect(newIdom, p)
				}
			}
			if newIdom != -1 && ipdom[u] != newIdom {
				ipdom[u] = newIdom
				changed = true
			}
		}
	}
	return ipdom, true
}

func (g *Graph) postdominates(b, a int, ipdom map[int]int) bool {
	for x := a; x != -1; x = ipdom[x] {
		if x == b {
			return true
		}
		if x == ipdom[x] {
			break
		}
	}
	return false
}

// dataFlow computes reaching definitions over the CFG and materializes def
// and use nodes with data_flow / def_use / use_def edges.
func (g *Graph) dataFlow(lay *layouter) {
	type defKey struct {
		stmt int
		v    string
	}

	// Seed: parameter defs at entry.
	entryDefs := map[string]int{}
	for _, n := range g.Nodes {
		if n.Kind == NodeDef && n.Stmt == g.Entry {
			entryDefs[n.Var] = n.ID
		}
	}

	// gen/kill per statement node.
	stmtIDs := make([]int, 0, len(lay.stmts))
	for id := range lay.stmts {
		stmtIDs = append(stmtIDs, id)
	}
	sort.Ints(stmtIDs)

	// in/out sets: var -> set of def statement ids (g.Entry for params).
	in := make(map[int]map[string]map[int]bool)
	out := make(map[int]map[string]map[int]bool)

	clone := func(m map[string]map[int]bool) map[string]map[int]bool {
		c := make(map[string]map[int]bool, len(m))
		for v, defs := range m {
			cd := make(map[int]bool, len(defs))
			for d := range defs {
				cd[d] = true
			}
			c[v] = cd
		}
		return c
	}

	entryOut := map[string]map[int]bool{}
	for v := range entryDefs {
		entryOut[v] = map[int]bool{g.Entry: true}
	}
	out[g.Entry] = entryOut

	preds := make(map[int][]int)
	for from, succs := range g.cfgSucc {
		for _, to := range succs {
			preds[to] = append(preds[to], from)
		}
	}

	steps := 0
	limit := g.maxFixpointSteps()
	for changed := true; changed; {
		changed = false
		for _, sid := range stmtIDs {
			steps++
			if steps > limit {
				g.Diags = append(g.Diags, pir.Diagnostic{
					Code:    "analysis_budget_exhausted",
					Message: fmt.Sprintf("reaching definitions exceeded %d steps in %s", limit, g.Fn),
				})
				changed = false
				break
			}
			merged := map[string]map[int]bool{}
			for _, p := range preds[sid] {
				for v, defs := range out[p] {
					if merged[v] == nil {
						merged[v] = map[int]bool{}
					}
					for d := range defs {
						merged[v][d] = true
					}
				}
			}
			in[sid] = merged

			s := lay.stmts[sid]
			newOut := clone(merged)
			if !s.opaque {
				for _, d := range s.defs {
					newOut[d] = map[int]bool{sid: true}
				}
			}
			if !setsEqual(out[sid], newOut) {
				out[sid] = newOut
				changed = true
			}
		}
	}

	// Materialize def nodes.
	defNode := map[defKey]int{}
	for v, id := range entryDefs {
		defNode[defKey{g.Entry, v}] = id
	}
	for _, sid := range stmtIDs {
		s := lay.stmts[sid]
		for _, v := range s.defs {
			d := g.addNode(Node{Kind: NodeDef, IR: s.ir, Span: s.span, Var: v, Stmt: sid})
			defNode[defKey{sid, v}] = d
			g.addEdge(sid, d, EdgeDefUse, v)
		}
	}

	// Materialize use nodes and chain edges.
	for _, sid := range stmtIDs {
		s := lay.stmts[sid]
		for _, v := range s.uses {
			u := g.addNode(Node{Kind: NodeUse, IR: s.ir, Span: s.span, Var: v, Stmt: sid})
			g.addEdge(u, sid, EdgeDefUse, v)
			for _, reachingVar := range matchingVars(in[sid], v) {
				for d := range in[sid][reachingVar] {
					dn, ok := defNode[defKey{d, reachingVar}]
					if !ok {
						continue
					}
					g.addEdge(dn, u, EdgeDataFlow, reachingVar)
					g.addEdge(u, dn, EdgeUseDef, reachingVar)
					// Statement-level data flow keeps slicing cheap.
					if d != sid {
						g.addEdge(d, sid, EdgeDataFlow, reachingVar)
					}
				}
			}
		}
	}
}

// matchingVars returns the reaching-definition variables that cover a use of
// v: the variable itself plus aliased attribute definitions reachable through
// their base ("obj" covers a use of "obj.attr" and vice versa).
func matchingVars(in map[string]map[int]bool, v string) []string {
	var out []string
	for candidate := range in {
		if candidate == v || baseOf(candidate) == v || baseOf(v) == candidate {
			out = append(out, candidate)
		}
	}
	sort.Strings(out)
	return out
}

func baseOf(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] == '.' {
			return v[:i]
		}
	}
	return v
}

func setsEqual(a, b map[string]map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v, ad := range a {
		bd, ok := b[v]
		if !ok || len(ad) != len(bd) {
			return false
		}
		for d := range ad {
			if !bd[d] {
				return false
			}
		}
	}
	return true
}

// Canonicalize orders edges lexicographically by endpoint keys and rebuilds
// adjacency, making serialization byte-identical for identical inputs. Nodes
// are already emitted in deterministic construction order: entry/exit
// regions and parameter defs, statements in source order, then def and use
// nodes.
func (g *Graph) Canonicalize() {
	sort.SliceStable(g.Edges, func(i, j int) bool {
		a, b := g.Edges[i], g.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Var < b.Var
	})
	// Drop duplicate edges introduced by aliased reaching definitions.
	dedup := g.Edges[:0]
	for i, e := range g.Edges {
		if i > 0 && e == g.Edges[i-1] {
			continue
		}
		dedup = append(dedup, e)
	}
	g.Edges = dedup
	g.buildAdjacency()
}
