// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package taint

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/scalpel/pkg/pdg"
	"github.com/kraklabs/scalpel/pkg/pir"
)

// Severity ordering for dedup preference.
var severityRank = map[string]int{"low": 0, "medium": 1, "high": 2, "critical": 3}

// PathNode is one step of a taint path.
type PathNode struct {
	Unit string   `json:"unit"`
	Fn   string   `json:"fn"`
	Node int      `json:"node"`
	Span pir.Span `json:"span"`
	Text string   `json:"text,omitempty"`
}

// Finding is one detected source-to-sink flow.
type Finding struct {
	Kind            string     `json:"kind"`
	Severity        string     `json:"severity"`
	Source          PathNode   `json:"source_node"`
	Sink            PathNode   `json:"sink_node"`
	Path            []PathNode `json:"path"`
	SanitizerOnPath string     `json:"sanitizer_on_path,omitempty"`
	Confidence      float64    `json:"confidence"`
	Evidence        string     `json:"evidence"`
	Remediation     string     `json:"remediation"`
	AltPaths        int        `json:"alt_paths,omitempty"`
	SourceDesc      string     `json:"source_desc,omitempty"`
	SinkDesc        string     `json:"sink_desc,omitempty"`
}

// Result is a scan outcome. Complete is false when a budget truncated the
// analysis.
type Result struct {
	Findings       []Finding `json:"findings"`
	Complete       bool      `json:"complete"`
	RulesetVersion string    `json:"ruleset_version"`
}

// Options bound one scan.
type Options struct {
	MaxFindings int
	MaxDepth    int
	// Budget bounds total worklist steps across the scan; zero uses a
	// size-derived default.
	Budget int
}

// taintMark tracks one tainted variable at one statement.
type taintMark struct {
	variable    string
	source      *SourceRule
	sourceStmt  int
	path        []int
	confidence  float64
	sanitizers  []*SanitizerRule
	sanitizerAt string
}

// scanner runs one scan over a set of functions.
type scanner struct {
	trees map[string]*pir.Tree
	pdgs  map[string]*pdg.Graph
	cg    *pdg.CallGraph
	rules *Registry
	opts  Options

	steps    int
	exceeded bool
	findings []Finding
}

// ScanFunctions runs the intraprocedural pass over every supplied PDG.
// Findings are deduplicated by (source, sink, kind) keeping the shortest
// path; the count of longer alternatives is recorded.
func ScanFunctions(ctx context.Context, trees map[string]*pir.Tree, pdgs map[string]*pdg.Graph, rules *Registry, opts Options) (*Result, error) {
	s := &scanner{trees: trees, pdgs: pdgs, rules: rules, opts: opts}
	if s.opts.Budget <= 0 {
		s.opts.Budget = budgetFor(pdgs)
	}

	fns := make([]string, 0, len(pdgs))
	for fn := range pdgs {
		fns = append(fns, fn)
	}
	sort.Strings(fns)

	for _, fn := range fns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g := pdgs[fn]
		rs := s.rules.ForLanguage(s.trees[g.Unit].Lang)
		if rs == nil {
			continue
		}
		s.scanFunction(ctx, g, rs, nil)
		if s.exceeded {
			break
		}
	}

	findings := dedupe(s.findings)
	if opts.MaxFindings > 0 && len(findings) > opts.MaxFindings {
		findings = findings[:opts.MaxFindings]
		s.exceeded = true
	}
	scanFindingsTotal.Add(float64(len(findings)))
	return &Result{
		Findings:       findings,
		Complete:       !s.exceeded,
		RulesetVersion: rules.Version(),
	}, nil
}

func budgetFor(pdgs map[string]*pdg.Graph) int {
	total := 0
	for _, g := range pdgs {
		total += len(g.Nodes)
	}
	return total*total + 4096
}

// seed builds the initial taint marks of a function: statements matching a
// source rule taint their definitions.
func (s *scanner) seed(g *pdg.Graph, rs *Ruleset) []taintMark {
	var marks []taintMark
	for _, sid := range g.Statements() {
		node := g.Nodes[sid]
		var rule *SourceRule
		if node.CallTarget != "" {
			rule = rs.matchSource(node.CallTarget)
		}
		if rule == nil {
			for _, use := range g.StmtUses(sid) {
				if r := rs.matchSource(use); r != nil {
					rule = r
					break
				}
			}
		}
		if rule == nil {
			continue
		}
		for _, def := range g.StmtDefs(sid) {
			marks = append(marks, taintMark{
				variable:   def,
				source:     rule,
				sourceStmt: sid,
				path:       []int{sid},
				confidence: rule.Confidence,
			})
		}
		// A source used directly inside a sink call has no intermediate
		// definition; keep a mark on the statement itself.
		if len(g.StmtDefs(sid)) == 0 {
			marks = append(marks, taintMark{
				variable:   "",
				source:     rule,
				sourceStmt: sid,
				path:       []int{sid},
				confidence: rule.Confidence,
			})
		}
	}
	return marks
}

// scanFunction propagates marks through the function's statement-level data
// flow. extra seeds (from the interprocedural pass) are appended to the
// function's own sources.
func (s *scanner) scanFunction(ctx context.Context, g *pdg.Graph, rs *Ruleset, extra []taintMark) {
	marks := append(s.seed(g, rs), extra...)
	opaquePenalty := 0.0
	if g.HasOpaque() {
		opaquePenalty = 0.1
	}

	// Worklist over (statement, mark); visited keyed by (stmt, variable,
	// source-stmt) to bound repeats.
	type wlKey struct {
		stmt int
		v    string
		src  int
	}
	visited := map[wlKey]bool{}

	var work []taintMark
	work = append(work, marks...)

	for len(work) > 0 {
		if err := ctx.Err(); err != nil {
			return
		}
		s.steps++
		if s.steps > s.opts.Budget {
			s.exceeded = true
			return
		}

		m := work[0]
		work = work[1:]
		cur := m.path[len(m.path)-1]

		// Sink check at the current statement.
		s.checkSink(g, rs, cur, m, opaquePenalty)

		// Propagate along statement-level data-flow edges that carry the
		// tainted variable (or anything, for source statements without a
		// def).
		for _, e := range g.DataFlowSucc(cur) {
			if m.variable != "" && !sameOrAliased(e.Var, m.variable) {
				continue
			}
			next := e.To
			if g.Nodes[next].Opaque {
				continue
			}
			key := wlKey{next, m.variable, m.sourceStmt}
			if visited[key] {
				continue
			}
			visited[key] = true

			nm := m
			nm.path = append(append([]int(nil), m.path...), next)
			nm.sanitizers = append([]*SanitizerRule(nil), m.sanitizers...)

			// Transform sanitizers neutralize the kinds they clear but the
			// flow continues: a sanitized value reaching a sink of another
			// kind still fires. Validators never clear here; they only act
			// through the control-dependence arms checked at the sink.
			target := g.Nodes[next].CallTarget
			if target != "" {
				if san := rs.matchSanitizer(target); san != nil && !san.Validator {
					nm.sanitizers = append(nm.sanitizers, san)
					nm.sanitizerAt = target
				}
			}

			// Redefinitions switch the tracked variable to the new def.
			if defs := g.StmtDefs(next); len(defs) > 0 {
				for _, d := range defs {
					dm := nm
					dm.variable = d
					work = append(work, dm)
				}
			} else {
				work = append(work, nm)
			}
		}
	}
}

func sameOrAliased(a, b string) bool {
	if a == b {
		return true
	}
	return base(a) == b || base(b) == a
}

func base(v string) string {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}

// checkSink emits a finding when the current statement is a sink consuming
// the tainted variable and no sanitizer on the path clears the sink's kind.
func (s *scanner) checkSink(g *pdg.Graph, rs *Ruleset, sid int, m taintMark, opaquePenalty float64) {
	node := g.Nodes[sid]
	if node.CallTarget == "" {
		return
	}
	sink := rs.matchSink(node.CallTarget)
	if sink == nil {
		return
	}
	if len(m.path) < 2 && m.variable != "" {
		// The source statement itself matching a sink pattern is not a flow.
		return
	}
	if m.variable != "" {
		consumed := false
		for _, use := range g.StmtUses(sid) {
			if sameOrAliased(use, m.variable) {
				consumed = true
				break
			}
		}
		if !consumed {
			return
		}
	}

	// Validators are path-sensitive: a guarding branch whose condition calls
	// a validator on the tainted variable clears its kinds on the truthy arm
	// only. The falsy arm keeps the taint.
	sanitizers := m.sanitizers
	if m.variable != "" {
		sanitizers = append(append([]*SanitizerRule(nil), sanitizers...),
			s.guardValidators(g, rs, sid, m.variable)...)
	}

	sanitizerName := ""
	for _, san := range sanitizers {
		if san.clearsCWE(sink.CWE) {
			return // cleanly sanitized for this sink kind
		}
		sanitizerName = san.Pattern
	}

	confidence := m.confidence - opaquePenalty
	if confidence < 0.1 {
		confidence = 0.1
	}

	tree := s.trees[g.Unit]
	f := Finding{
		Kind:            sink.CWE,
		Severity:        sink.Severity,
		Source:          s.pathNode(g, m.sourceStmt),
		Sink:            s.pathNode(g, sid),
		SanitizerOnPath: sanitizerName,
		Confidence:      round2(confidence),
		Evidence:        excerpt(tree, g.Nodes[sid].Span),
		Remediation:     sink.Remediation,
		SourceDesc:      m.source.Description,
		SinkDesc:        sink.Description,
	}
	for _, p := range m.path {
		f.Path = append(f.Path, s.pathNode(g, p))
	}
	if f.Sink.Node != f.Path[len(f.Path)-1].Node {
		f.Path = append(f.Path, f.Sink)
	}
	s.findings = append(s.findings, f)
}

// guardValidators walks the labeled control-dependence chain above a
// statement and collects the validator sanitizers that cover the tainted
// variable on a truthy arm. A validator branch whose falsy arm contains the
// statement contributes nothing.
func (s *scanner) guardValidators(g *pdg.Graph, rs *Ruleset, sid int, variable string) []*SanitizerRule {
	var out []*SanitizerRule
	cur := sid
	for steps := 0; steps < len(g.Nodes); steps++ {
		branch, onTrue, ok := g.GuardEdge(cur)
		if !ok {
			break
		}
		if onTrue {
			if target := g.Nodes[branch].CallTarget; target != "" {
				if san := rs.matchSanitizer(target); san != nil && san.Validator && stmtConsumes(g, branch, variable) {
					out = append(out, san)
				}
			}
		}
		cur = branch
	}
	return out
}

func stmtConsumes(g *pdg.Graph, sid int, variable string) bool {
	for _, use := range g.StmtUses(sid) {
		if sameOrAliased(use, variable) {
			return true
		}
	}
	return false
}

func (s *scanner) pathNode(g *pdg.Graph, sid int) PathNode {
	n := g.Nodes[sid]
	return PathNode{
		Unit: g.Unit,
		Fn:   g.Fn,
		Node: sid,
		Span: n.Span,
		Text: excerpt(s.trees[g.Unit], n.Span),
	}
}

func excerpt(tree *pir.Tree, span pir.Span) string {
	if tree == nil {
		return ""
	}
	start, end := int(span.StartByte), int(span.EndByte)
	if start < 0 || end > len(tree.Source) || start >= end {
		return ""
	}
	text := string(tree.Source[start:end])
	if len(text) > 120 {
		text = text[:120] + "..."
	}
	return text
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

// dedupe collapses findings sharing (source, sink, kind), retaining the
// shortest path and counting alternatives.
func dedupe(findings []Finding) []Finding {
	type key struct {
		src, sink string
		kind      string
	}
	best := map[key]*Finding{}
	order := []key{}
	for i := range findings {
		f := &findings[i]
		k := key{spanKey(f.Source), spanKey(f.Sink), f.Kind}
		if existing, ok := best[k]; ok {
			existing.AltPaths++
			if len(f.Path) < len(existing.Path) {
				f.AltPaths = existing.AltPaths
				best[k] = f
			}
			continue
		}
		best[k] = f
		order = append(order, k)
	}
	out := make([]Finding, 0, len(best))
	for _, k := range order {
		out = append(out, *best[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if severityRank[out[i].Severity] != severityRank[out[j].Severity] {
			return severityRank[out[i].Severity] > severityRank[out[j].Severity]
		}
		if out[i].Source.Unit != out[j].Source.Unit {
			return out[i].Source.Unit < out[j].Source.Unit
		}
		return out[i].Source.Span.Before(out[j].Source.Span)
	})
	return out
}

func spanKey(p PathNode) string {
	return fmt.Sprintf("%s|%s|%d:%d", p.Unit, p.Fn, p.Span.StartLine, p.Span.StartCol)
}
