// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"encoding/json"
	"sort"

	"github.com/google/go-cmp/cmp"

	"github.com/kraklabs/scalpel/pkg/pir"
)

type simulateRefactorArgs struct {
	OriginalCode string `json:"original_code"`
	NewCode      string `json:"new_code"`
	Language     string `json:"language"`
}

// RefactorData is the simulate_refactor payload. behavior_preserved is
// confined to signature and side-effect equality plus a structural diff; it
// is not a semantic equivalence claim.
type RefactorData struct {
	BehaviorPreserved  bool     `json:"behavior_preserved"`
	SignaturesChanged  []string `json:"signatures_changed,omitempty"`
	SideEffectsChanged []string `json:"side_effects_changed,omitempty"`
	StructuralDiff     string   `json:"structural_diff,omitempty"`
}

// fnShape is the comparable surface of one function: its signature and the
// side-effecting calls it makes.
type fnShape struct {
	Name        string
	Params      []string
	SideEffects []string
}

func (d *Dispatcher) simulateRefactor(c *Call, raw json.RawMessage) (any, error) {
	var args simulateRefactorArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.OriginalCode == "" || args.NewCode == "" {
		return nil, argError("simulate_refactor requires original_code and new_code")
	}

	origUA, err := d.analyzeUnit(c, args.OriginalCode, args.Language, "", "original")
	if err != nil {
		return nil, err
	}
	newUA, err := d.analyzeUnit(c, args.NewCode, origUA.Language, "", "refactored")
	if err != nil {
		return nil, err
	}

	origShapes := shapesOf(origUA.Tree)
	newShapes := shapesOf(newUA.Tree)

	data := &RefactorData{BehaviorPreserved: true}
	for name, orig := range origShapes {
		replacement, ok := newShapes[name]
		if !ok {
			data.BehaviorPreserved = false
			data.SignaturesChanged = append(data.SignaturesChanged, name+" removed")
			continue
		}
		if !equalStrings(orig.Params, replacement.Params) {
			data.BehaviorPreserved = false
			data.SignaturesChanged = append(data.SignaturesChanged, name)
		}
		if !equalStrings(orig.SideEffects, replacement.SideEffects) {
			data.BehaviorPreserved = false
			data.SideEffectsChanged = append(data.SideEffectsChanged, name)
		}
	}
	for name := range newShapes {
		if _, ok := origShapes[name]; !ok {
			data.SignaturesChanged = append(data.SignaturesChanged, name+" added")
		}
	}
	sort.Strings(data.SignaturesChanged)
	sort.Strings(data.SideEffectsChanged)

	data.StructuralDiff = cmp.Diff(origShapes, newShapes)
	return data, nil
}

// sideEffectPrefixes marks call targets treated as externally visible.
var sideEffectPrefixes = []string{
	"print", "console.log", "open", "write", "send", "execute", "query",
	"os.", "subprocess.", "fs.", "System.out",
}

func shapesOf(tree *pir.Tree) map[string]fnShape {
	out := map[string]fnShape{}
	for _, id := range tree.FindAll(pir.KindFunction) {
		n := tree.Node(id)
		shape := fnShape{Name: n.Name}
		for _, p := range n.Params {
			shape.Params = append(shape.Params, p.Name)
		}
		tree.Walk(id, func(_ pir.NodeID, c *pir.Node) bool {
			if c.Kind == pir.KindCall && c.Callee != pir.NoNode {
				target := calleePath(tree, c.Callee)
				if isSideEffect(target) {
					shape.SideEffects = append(shape.SideEffects, target)
				}
			}
			return true
		})
		sort.Strings(shape.SideEffects)
		out[n.Name] = shape
	}
	return out
}

func calleePath(tree *pir.Tree, id pir.NodeID) string {
	n := tree.Node(id)
	switch n.Kind {
	case pir.KindName:
		return n.Name
	case pir.KindExpr:
		if n.Tag == pir.TagAttribute && len(n.Children) > 0 {
			base := calleePath(tree, n.Children[0])
			if base == "" {
				return n.Name
			}
			return base + "." + n.Name
		}
	}
	return ""
}

func isSideEffect(target string) bool {
	for _, p := range sideEffectPrefixes {
		if target == p || (len(target) > len(p) && target[:len(p)] == p) {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
