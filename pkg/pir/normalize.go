// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pir

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kraklabs/scalpel/pkg/frontend"
	"github.com/kraklabs/scalpel/pkg/lang"
)

// Lower converts a native tree into PIR. Every IR node inherits its span from
// a native node; the normalizer never invents spans. Constructs outside the
// common kinds (eval, dynamically generated code) become Opaque nodes with a
// diagnostic.
func Lower(native *frontend.Tree, unit string) (*Tree, error) {
	root := native.RootNode()
	tree := NewTree(unit, native.Language, native.Source, nodeSpan(root))

	b := &builder{tree: tree, src: native.Source}
	switch native.Language {
	case lang.Python:
		b.lowerPythonChildren(root, tree.Root())
	case lang.JavaScript:
		b.lowerJSChildren(root, tree.Root(), false)
	case lang.TypeScript:
		b.lowerJSChildren(root, tree.Root(), true)
	case lang.Java:
		b.lowerJavaChildren(root, tree.Root())
	default:
		return nil, fmt.Errorf("no normalizer for language %q", native.Language)
	}
	return tree, nil
}

func nodeSpan(n *sitter.Node) Span {
	sb, eb, sl, sc, el, ec := frontend.NodeSpan(n)
	return Span{StartByte: sb, EndByte: eb, StartLine: sl, StartCol: sc, EndLine: el, EndCol: ec}
}

// builder accumulates PIR nodes for one tree.
type builder struct {
	tree *Tree
	src  []byte
}

func (b *builder) text(n *sitter.Node) string {
	return n.Content(b.src)
}

// add appends a node under parent with the native node's span.
func (b *builder) add(parent NodeID, native *sitter.Node, node Node) NodeID {
	node.Span = nodeSpan(native)
	node.Parent = parent
	return b.tree.Add(node)
}

// opaque records a construct the normalizer does not lower. Downstream
// components treat it as a barrier.
func (b *builder) opaque(parent NodeID, native *sitter.Node, reason string) NodeID {
	id := b.add(parent, native, Node{Kind: KindOpaque, Value: b.text(native)})
	sp := b.tree.Node(id).Span
	b.tree.AddDiag("opaque_construct", reason, sp.StartLine, sp.StartCol)
	return id
}

// name emits a Name node with an unresolved binding slot.
func (b *builder) name(parent NodeID, native *sitter.Node, typeHint string) NodeID {
	if typeHint == "" {
		typeHint = "unknown"
	}
	return b.add(parent, native, Node{Kind: KindName, Name: b.text(native), TypeHint: typeHint})
}

func (b *builder) literal(parent NodeID, native *sitter.Node, litType string) NodeID {
	return b.add(parent, native, Node{Kind: KindLiteral, Value: b.text(native), LitType: litType})
}

// eachNamedChild iterates the named children of a native node.
func eachNamedChild(n *sitter.Node, fn func(*sitter.Node)) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		fn(n.NamedChild(i))
	}
}

// sameNode compares native nodes by span; wrapper pointers are not stable.
func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

func hasChildToken(n *sitter.Node, token string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == token {
			return true
		}
	}
	return false
}
