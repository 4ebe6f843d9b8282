// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package surgery locates named symbols, returns minimal code slices and
// applies validated replacements.
package surgery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/symbols"
)

// TargetType selects the node kind to operate on.
type TargetType string

const (
	TargetFunction TargetType = "function"
	TargetClass    TargetType = "class"
	TargetMethod   TargetType = "method"
)

// ErrNotFound reports a missing symbol; the dispatcher may attach fuzzy
// suggestions.
type ErrNotFound struct {
	Name string
	Type TargetType
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("no %s named %q", e.Type, e.Name)
}

// ErrAmbiguous reports several candidates for a non-qualified target.
type ErrAmbiguous struct {
	Name    string
	Matches []string
}

func (e *ErrAmbiguous) Error() string {
	return fmt.Sprintf("%q matches %d definitions; qualify the target", e.Name, len(e.Matches))
}

// Dependency is one declaration the extracted code depends on.
type Dependency struct {
	Symbol    string `json:"symbol"`
	Unit      string `json:"unit"`
	Code      string `json:"code"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Extraction is a minimal code slice for one symbol.
type Extraction struct {
	Name          string       `json:"name"`
	Type          TargetType   `json:"type"`
	Unit          string       `json:"unit"`
	Code          string       `json:"code"`
	StartLine     int          `json:"start_line"`
	EndLine       int          `json:"end_line"`
	TokenEstimate int          `json:"token_estimate"`
	Dependencies  []Dependency `json:"dependencies,omitempty"`
}

// findTarget locates the first IR node of the requested type and name.
// Methods accept a "Class.method" qualifier; without one, a method name
// matching several classes is ambiguous.
func findTarget(tree *pir.Tree, targetType TargetType, name string) (pir.NodeID, error) {
	wantClass := ""
	wantName := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 && targetType == TargetMethod {
		wantClass, wantName = name[:i], name[i+1:]
	}

	var matches []pir.NodeID
	tree.Walk(tree.Root(), func(id pir.NodeID, n *pir.Node) bool {
		switch targetType {
		case TargetFunction:
			if n.Kind == pir.KindFunction && !n.IsMethod && n.Name == wantName {
				matches = append(matches, id)
			}
		case TargetMethod:
			if n.Kind == pir.KindFunction && n.IsMethod && n.Name == wantName {
				if wantClass == "" || n.OwnerClass == wantClass {
					matches = append(matches, id)
				}
			}
		case TargetClass:
			if n.Kind == pir.KindClass && n.Name == wantName {
				matches = append(matches, id)
			}
		}
		return true
	})

	switch {
	case len(matches) == 0:
		return pir.NoNode, &ErrNotFound{Name: name, Type: targetType}
	case len(matches) > 1 && targetType == TargetMethod && wantClass == "":
		var owners []string
		for _, m := range matches {
			owners = append(owners, tree.Node(m).OwnerClass+"."+wantName)
		}
		return pir.NoNode, &ErrAmbiguous{Name: name, Matches: owners}
	default:
		return matches[0], nil
	}
}

// Extract returns the source text and span of the first matching symbol.
func Extract(tree *pir.Tree, targetType TargetType, name string) (*Extraction, error) {
	id, err := findTarget(tree, targetType, name)
	if err != nil {
		return nil, err
	}
	n := tree.Node(id)
	code := tree.Text(id)
	return &Extraction{
		Name:          n.Name,
		Type:          targetType,
		Unit:          tree.Unit,
		Code:          code,
		StartLine:     n.Span.StartLine,
		EndLine:       n.Span.EndLine,
		TokenEstimate: EstimateTokens(code),
	}, nil
}

// ContextOptions control dependency chasing for WithContext.
type ContextOptions struct {
	Depth     int
	CrossFile bool
	MaxDepth  int
	MaxDeps   int
}

// WithContext appends the declarations each symbol in the extraction depends
// on, chased through the symbol table up to opts.Depth; with CrossFile it
// recurses across resolved imports up to opts.MaxDepth.
func WithContext(ex *Extraction, trees map[string]*pir.Tree, table *symbols.Table, opts ContextOptions) *Extraction {
	if opts.Depth <= 0 {
		opts.Depth = 1
	}
	if opts.MaxDeps <= 0 {
		opts.MaxDeps = 50
	}

	tree := trees[ex.Unit]
	if tree == nil {
		return ex
	}
	root, err := findTarget(tree, ex.Type, ex.Name)
	if err != nil {
		return ex
	}

	type pending struct {
		unit  string
		node  pir.NodeID
		depth int
	}
	queue := []pending{{ex.Unit, root, 0}}
	seen := map[string]bool{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= opts.Depth && (!opts.CrossFile || cur.depth >= opts.MaxDepth) {
			continue
		}
		curTree := trees[cur.unit]
		if curTree == nil {
			continue
		}
		curTree.Walk(cur.node, func(_ pir.NodeID, n *pir.Node) bool {
			if n.Kind != pir.KindName || n.Binding == "" || seen[n.Binding] {
				return true
			}
			sym := table.Lookup(n.Binding)
			if sym == nil || sym.Node == pir.NoNode {
				return true
			}
			switch sym.Kind {
			case symbols.KindFunction, symbols.KindMethod, symbols.KindClass, symbols.KindVariable:
			default:
				return true
			}
			if sym.Unit == ex.Unit && sym.Node == root {
				return true
			}
			if sym.Unit != cur.unit && !opts.CrossFile {
				return true
			}
			declTree := trees[sym.Unit]
			if declTree == nil {
				return true
			}
			seen[n.Binding] = true
			decl := declTree.Node(sym.Node)
			if len(ex.Dependencies) < opts.MaxDeps {
				ex.Dependencies = append(ex.Dependencies, Dependency{
					Symbol:    sym.QualifiedName,
					Unit:      sym.Unit,
					Code:      declTree.Text(sym.Node),
					StartLine: decl.Span.StartLine,
					EndLine:   decl.Span.EndLine,
				})
				queue = append(queue, pending{sym.Unit, sym.Node, cur.depth + 1})
			}
			return true
		})
	}

	sort.SliceStable(ex.Dependencies, func(i, j int) bool {
		if ex.Dependencies[i].Unit != ex.Dependencies[j].Unit {
			return ex.Dependencies[i].Unit < ex.Dependencies[j].Unit
		}
		return ex.Dependencies[i].StartLine < ex.Dependencies[j].StartLine
	})
	return ex
}

// EstimateTokens approximates the LLM token count of code: characters over
// four, floor one for non-empty input.
func EstimateTokens(code string) int {
	if code == "" {
		return 0
	}
	est := len(code) / 4
	if est == 0 {
		est = 1
	}
	return est
}
