// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package symbolic explores execution paths of a single function by walking
// its IR, collecting branch conditions and deriving example inputs by
// interval narrowing over integer comparisons.
//
// The explorer is bounded: MaxPaths, MaxDepth and MaxLoopUnroll cap the
// search. It works on a function's IR alone (a tree and the function's node);
// the PDG that the engine's GetFunctionIR hook also returns is not used.
package symbolic

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kraklabs/scalpel/pkg/pir"
)

// Options bound one exploration.
type Options struct {
	MaxPaths      int
	MaxDepth      int
	MaxLoopUnroll int
}

// PathResult is one explored path.
type PathResult struct {
	Conditions    []string       `json:"conditions"`
	ExampleInputs map[string]any `json:"example_inputs"`
	ReturnValue   string         `json:"return_value,omitempty"`
	Feasible      bool           `json:"feasible"`
}

// ExecResult is the full exploration outcome.
type ExecResult struct {
	Function  string       `json:"function"`
	Params    []string     `json:"params"`
	Paths     []PathResult `json:"paths"`
	Truncated bool         `json:"truncated"`
}

// Execute explores the function fnID of tree.
func Execute(tree *pir.Tree, fnID pir.NodeID, opts Options) *ExecResult {
	if opts.MaxPaths <= 0 {
		opts.MaxPaths = 16
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 32
	}
	if opts.MaxLoopUnroll <= 0 {
		opts.MaxLoopUnroll = 1
	}

	fn := tree.Node(fnID)
	res := &ExecResult{Function: fn.Name}
	for _, p := range fn.Params {
		res.Params = append(res.Params, p.Name)
	}

	e := &explorer{tree: tree, opts: opts, res: res}
	e.explore(statementsOf(tree, fnID), nil, 0)
	return res
}

type explorer struct {
	tree *pir.Tree
	opts Options
	res  *ExecResult
}

func statementsOf(tree *pir.Tree, id pir.NodeID) []pir.NodeID {
	n := tree.Node(id)
	var out []pir.NodeID
	for _, c := range n.Children {
		if (n.Kind == pir.KindIf || n.Kind == pir.KindLoop) && c == n.Cond {
			continue
		}
		switch tree.Node(c).Kind {
		case pir.KindAssignment, pir.KindCall, pir.KindReturn, pir.KindRaise,
			pir.KindIf, pir.KindLoop, pir.KindTry, pir.KindOpaque:
			out = append(out, c)
		}
	}
	return out
}

// explore walks a statement sequence under the given path conditions.
func (e *explorer) explore(stmts []pir.NodeID, conditions []string, depth int) {
	if len(e.res.Paths) >= e.opts.MaxPaths {
		e.res.Truncated = true
		return
	}
	if depth > e.opts.MaxDepth {
		e.res.Truncated = true
		e.record(conditions, "")
		return
	}
	if len(stmts) == 0 {
		e.record(conditions, "")
		return
	}

	head, rest := stmts[0], stmts[1:]
	n := e.tree.Node(head)

	switch n.Kind {
	case pir.KindReturn:
		e.record(conditions, e.returnText(head))
		return

	case pir.KindRaise:
		e.record(conditions, "raise "+strings.TrimSpace(e.tree.Text(head)))
		return

	case pir.KindIf:
		cond := e.conditionText(head)
		thenStmts, elseStmts := e.splitIf(head)

		e.explore(append(thenStmts, rest...), appendCond(conditions, cond), depth+1)
		if len(e.res.Paths) >= e.opts.MaxPaths {
			e.res.Truncated = true
			return
		}
		e.explore(append(elseStmts, rest...), appendCond(conditions, Negate(cond)), depth+1)
		return

	case pir.KindLoop:
		body := statementsOf(e.tree, head)
		// Zero iterations, then each unroll step.
		e.explore(rest, appendCond(conditions, "!("+e.conditionText(head)+")"), depth+1)
		unrolled := conditions
		for i := 0; i < e.opts.MaxLoopUnroll && len(e.res.Paths) < e.opts.MaxPaths; i++ {
			unrolled = appendCond(unrolled, e.conditionText(head))
			e.explore(append(append([]pir.NodeID(nil), body...), rest...), unrolled, depth+1)
		}
		return

	case pir.KindTry:
		inner := statementsOf(e.tree, head)
		e.explore(append(inner, rest...), conditions, depth+1)
		return

	default:
		e.explore(rest, conditions, depth)
	}
}

func appendCond(conditions []string, c string) []string {
	if c == "" {
		return conditions
	}
	return append(append([]string(nil), conditions...), c)
}

func (e *explorer) splitIf(id pir.NodeID) (thenStmts, elseStmts []pir.NodeID) {
	n := e.tree.Node(id)
	for i, c := range n.Children {
		if c == n.Cond {
			continue
		}
		switch e.tree.Node(c).Kind {
		case pir.KindAssignment, pir.KindCall, pir.KindReturn, pir.KindRaise,
			pir.KindIf, pir.KindLoop, pir.KindTry, pir.KindOpaque:
			if n.ElseIdx >= 0 && i >= n.ElseIdx {
				elseStmts = append(elseStmts, c)
			} else {
				thenStmts = append(thenStmts, c)
			}
		}
	}
	return thenStmts, elseStmts
}

// conditionText extracts the condition expression text of an If/Loop node:
// the Cond child when set, otherwise the first non-statement child.
func (e *explorer) conditionText(id pir.NodeID) string {
	n := e.tree.Node(id)
	if n.Cond != pir.NoNode {
		return strings.TrimSpace(e.tree.Text(n.Cond))
	}
	for _, c := range n.Children {
		cn := e.tree.Node(c)
		switch cn.Kind {
		case pir.KindAssignment, pir.KindCall, pir.KindReturn, pir.KindRaise,
			pir.KindIf, pir.KindLoop, pir.KindTry, pir.KindOpaque:
			continue
		}
		return strings.TrimSpace(e.tree.Text(c))
	}
	return "true"
}

func (e *explorer) returnText(id pir.NodeID) string {
	text := strings.TrimSpace(e.tree.Text(id))
	text = strings.TrimPrefix(text, "return")
	return strings.TrimSpace(text)
}

func (e *explorer) record(conditions []string, returnValue string) {
	if len(e.res.Paths) >= e.opts.MaxPaths {
		e.res.Truncated = true
		return
	}
	pr := PathResult{
		Conditions:  append([]string(nil), conditions...),
		ReturnValue: returnValue,
	}
	pr.ExampleInputs, pr.Feasible = SolveConditions(conditions, e.res.Params)
	if !pr.Feasible {
		return // contradictory constraint sets are not paths
	}
	e.res.Paths = append(e.res.Paths, pr)
}

var comparisonRe = regexp.MustCompile(`^(!?)\(?\s*([A-Za-z_]\w*)\s*(>=|<=|==|!=|>|<)\s*(-?\d+)\s*\)?$`)

// interval is a closed integer range.
type interval struct {
	lo, hi int64
	hasLo  bool
	hasHi  bool
	ne     map[int64]bool
}

// SolveConditions derives satisfying integer example inputs for simple
// variable-vs-constant comparisons by interval narrowing. Conditions outside
// that fragment are ignored. ok is false when the intervals contradict.
func SolveConditions(conditions []string, params []string) (map[string]any, bool) {
	intervals := map[string]*interval{}
	get := func(v string) *interval {
		if intervals[v] == nil {
			intervals[v] = &interval{ne: map[int64]bool{}}
		}
		return intervals[v]
	}

	for _, cond := range conditions {
		m := comparisonRe.FindStringSubmatch(strings.TrimSpace(cond))
		if m == nil {
			continue
		}
		negated := m[1] == "!"
		v, op, lit := m[2], m[3], m[4]
		k, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			continue
		}
		if negated {
			op = negateOp(op)
		}
		iv := get(v)
		switch op {
		case ">":
			iv.narrowLo(k + 1)
		case ">=":
			iv.narrowLo(k)
		case "<":
			iv.narrowHi(k - 1)
		case "<=":
			iv.narrowHi(k)
		case "==":
			iv.narrowLo(k)
			iv.narrowHi(k)
		case "!=":
			iv.ne[k] = true
		}
		if iv.hasLo && iv.hasHi && iv.lo > iv.hi {
			return nil, false
		}
	}

	inputs := map[string]any{}
	for _, p := range params {
		if iv, ok := intervals[p]; ok {
			inputs[p] = iv.pick()
		} else {
			inputs[p] = 1
		}
	}
	// Constrained non-parameter variables still surface as example state.
	for v, iv := range intervals {
		if _, ok := inputs[v]; !ok {
			inputs[v] = iv.pick()
		}
	}
	return inputs, true
}

func (iv *interval) narrowLo(k int64) {
	if !iv.hasLo || k > iv.lo {
		iv.lo, iv.hasLo = k, true
	}
}

func (iv *interval) narrowHi(k int64) {
	if !iv.hasHi || k < iv.hi {
		iv.hi, iv.hasHi = k, true
	}
}

// pick chooses a witness inside the interval, avoiding != exclusions.
func (iv *interval) pick() int64 {
	var candidate int64
	switch {
	case iv.hasLo && iv.hasHi:
		candidate = iv.lo + (iv.hi-iv.lo)/2
	case iv.hasLo:
		candidate = iv.lo
	case iv.hasHi:
		candidate = iv.hi
	default:
		candidate = 0
	}
	for i := 0; iv.ne[candidate] && i < 64; i++ {
		candidate++
		if iv.hasHi && candidate > iv.hi {
			candidate = iv.lo
		}
	}
	return candidate
}

func negateOp(op string) string {
	switch op {
	case ">":
		return "<="
	case ">=":
		return "<"
	case "<":
		return ">="
	case "<=":
		return ">"
	case "==":
		return "!="
	case "!=":
		return "=="
	}
	return op
}

// Negate wraps a condition in logical negation, normalizing simple
// comparisons instead of stacking parentheses.
func Negate(cond string) string {
	m := comparisonRe.FindStringSubmatch(strings.TrimSpace(cond))
	if m != nil && m[1] == "" {
		return fmt.Sprintf("%s %s %s", m[2], negateOp(m[3]), m[4])
	}
	if strings.HasPrefix(cond, "!(") && strings.HasSuffix(cond, ")") {
		return cond[2 : len(cond)-1]
	}
	return "!(" + cond + ")"
}

// SortedInputKeys returns deterministic iteration order for example inputs.
func SortedInputKeys(inputs map[string]any) []string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
