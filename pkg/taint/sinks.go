// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package taint

import (
	"sort"

	"github.com/kraklabs/scalpel/pkg/pir"
)

// SinkMatch is one detected sink occurrence, independent of taint flow.
type SinkMatch struct {
	Pattern     string   `json:"pattern"`
	CWE         string   `json:"cwe"`
	Severity    string   `json:"severity"`
	Span        pir.Span `json:"span"`
	Confidence  float64  `json:"confidence"`
	Description string   `json:"description"`
}

// DetectSinks lists every sink call site in a tree whose confidence reaches
// threshold. Confidence is 1.0 for fully qualified pattern matches and 0.7
// for bare-name suffix matches.
func DetectSinks(tree *pir.Tree, rs *Ruleset, threshold float64) []SinkMatch {
	var out []SinkMatch
	tree.Walk(tree.Root(), func(id pir.NodeID, n *pir.Node) bool {
		if n.Kind == pir.KindOpaque {
			return false
		}
		if n.Kind != pir.KindCall || n.Callee == pir.NoNode {
			return true
		}
		ref := refNameOf(tree, n.Callee)
		if ref == "" {
			return true
		}
		sink := rs.matchSink(ref)
		if sink == nil {
			return true
		}
		conf := 1.0
		if ref != sink.Pattern {
			conf = 0.7
		}
		if conf < threshold {
			return true
		}
		out = append(out, SinkMatch{
			Pattern:     sink.Pattern,
			CWE:         sink.CWE,
			Severity:    sink.Severity,
			Span:        n.Span,
			Confidence:  conf,
			Description: sink.Description,
		})
		return true
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Span.Before(out[j].Span) })
	return out
}
