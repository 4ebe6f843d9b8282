// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pdg

import (
	"strings"

	"github.com/kraklabs/scalpel/pkg/pir"
)

// stmt is the unit of PDG construction: one statement-level IR node with its
// defs, uses and call target extracted.
type stmt struct {
	ir   pir.NodeID
	span pir.Span

	// defs are variables written by the statement. Attribute writes alias
	// conservatively under "obj.attr".
	defs []string
	// uses are variables read by the statement.
	uses []string
	// callTarget is the textual callee for call statements ("db.execute").
	callTarget string
	// branch marks condition-bearing statements (if / loop).
	branch bool
	// opaque marks barrier statements; nothing flows through them.
	opaque bool
	kind   pir.Kind
}

// refName renders the reference path of a Name / attribute chain
// ("request.args.get"). Returns "" for expressions with no stable name.
func refName(t *pir.Tree, id pir.NodeID) string {
	n := t.Node(id)
	switch n.Kind {
	case pir.KindName:
		return n.Name
	case pir.KindExpr:
		if n.Tag == pir.TagAttribute {
			base := ""
			if len(n.Children) > 0 {
				base = refName(t, n.Children[0])
			}
			if base == "" {
				return n.Name
			}
			return base + "." + n.Name
		}
		if n.Tag == pir.TagSubscript && len(n.Children) > 0 {
			return refName(t, n.Children[0])
		}
	}
	return ""
}

// collectUses gathers every readable reference under id: plain names and
// attribute chains. Nested call results count as uses of the callee's
// arguments, matching a conservative "calls propagate" model.
func collectUses(t *pir.Tree, id pir.NodeID, out *[]string) {
	n := t.Node(id)
	switch n.Kind {
	case pir.KindName:
		appendUnique(out, n.Name)
		return
	case pir.KindExpr:
		if n.Tag == pir.TagAttribute {
			if full := refName(t, id); full != "" {
				appendUnique(out, full)
			}
			// The base object is also a use on its own.
			if len(n.Children) > 0 {
				if base := refName(t, n.Children[0]); base != "" && !strings.Contains(base, ".") {
					appendUnique(out, base)
				}
			}
			return
		}
	case pir.KindOpaque:
		return
	case pir.KindFunction, pir.KindClass:
		// Nested definitions do not contribute uses to the enclosing
		// statement.
		return
	}
	for _, c := range n.Children {
		collectUses(t, c, out)
	}
}

func appendUnique(out *[]string, v string) {
	if v == "" {
		return
	}
	for _, existing := range *out {
		if existing == v {
			return
		}
	}
	*out = append(*out, v)
}

// buildStmt extracts defs/uses for a single statement-level node.
func buildStmt(t *pir.Tree, id pir.NodeID) stmt {
	n := t.Node(id)
	s := stmt{ir: id, span: n.Span, kind: n.Kind}

	switch n.Kind {
	case pir.KindAssignment:
		for _, target := range n.Targets {
			tn := t.Node(target)
			switch {
			case tn.Kind == pir.KindName:
				s.defs = append(s.defs, tn.Name)
			case tn.Kind == pir.KindExpr && tn.Tag == pir.TagAttribute:
				if full := refName(t, target); full != "" {
					s.defs = append(s.defs, full)
				}
			case tn.Kind == pir.KindExpr && tn.Tag == pir.TagSubscript:
				if base := refName(t, target); base != "" {
					s.defs = append(s.defs, base)
				}
			}
		}
		if n.RHS != pir.NoNode {
			collectUses(t, n.RHS, &s.uses)
			s.callTarget = nestedCallTarget(t, n.RHS)
		}

	case pir.KindCall:
		if n.Callee != pir.NoNode {
			s.callTarget = refName(t, n.Callee)
		}
		for _, a := range n.Args {
			collectUses(t, a, &s.uses)
		}
		for _, kw := range n.Keywords {
			collectUses(t, kw.Value, &s.uses)
		}

	case pir.KindReturn, pir.KindRaise:
		for _, c := range n.Children {
			collectUses(t, c, &s.uses)
		}
		if len(n.Children) > 0 {
			s.callTarget = nestedCallTarget(t, n.Children[0])
		}

	case pir.KindIf, pir.KindLoop:
		s.branch = true
		// Uses and the call target come from the condition subtree, so a
		// branch like `if is_safe(x):` carries "is_safe" and sanitizer
		// rules can match the condition.
		if n.Cond != pir.NoNode {
			collectUses(t, n.Cond, &s.uses)
			s.callTarget = nestedCallTarget(t, n.Cond)
		} else {
			for _, c := range n.Children {
				if isStatementKind(t.Node(c).Kind) {
					continue
				}
				collectUses(t, c, &s.uses)
				if s.callTarget == "" {
					s.callTarget = nestedCallTarget(t, c)
				}
			}
		}

	case pir.KindOpaque:
		s.opaque = true

	default:
		collectUses(t, id, &s.uses)
		s.callTarget = nestedCallTarget(t, id)
	}
	return s
}

// nestedCallTarget returns the callee path of the first call under id, so
// `q = db.fetch(x)` carries "db.fetch" as its call target.
func nestedCallTarget(t *pir.Tree, id pir.NodeID) string {
	target := ""
	t.Walk(id, func(_ pir.NodeID, n *pir.Node) bool {
		if target != "" {
			return false
		}
		if n.Kind == pir.KindCall && n.Callee != pir.NoNode {
			target = refName(t, n.Callee)
			return false
		}
		return true
	})
	return target
}

func isStatementKind(k pir.Kind) bool {
	switch k {
	case pir.KindAssignment, pir.KindCall, pir.KindReturn, pir.KindRaise,
		pir.KindIf, pir.KindLoop, pir.KindTry, pir.KindOpaque:
		return true
	}
	return false
}
