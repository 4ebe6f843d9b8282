// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package frontend parses source text into native trees, one front end per
// supported language.
//
// All front ends are Tree-sitter based. The Python grammar is a complete
// syntactic grammar; the JavaScript, TypeScript and Java front ends
// additionally support incremental reparsing, which is reflected in their
// capability set.
package frontend

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/kraklabs/scalpel/pkg/lang"
)

// Options controls parse behavior.
type Options struct {
	// AcceptPartial keeps trees containing error nodes instead of failing.
	// Unset is equivalent to strict parsing.
	AcceptPartial bool
}

// Tree wraps a native parse tree. Callers must Close it when the IR has been
// lowered; the underlying Tree-sitter tree holds C memory.
type Tree struct {
	Language string
	Source   []byte
	// Partial is true when the tree contains error nodes that were accepted
	// under Options.AcceptPartial.
	Partial bool

	ts *sitter.Tree
}

// RootNode returns the native root.
func (t *Tree) RootNode() *sitter.Node { return t.ts.RootNode() }

// Close releases the native tree.
func (t *Tree) Close() {
	if t.ts != nil {
		t.ts.Close()
		t.ts = nil
	}
}

// ParseError reports the first error node of a failed parse. Line is
// 1-based, Col 0-based.
type ParseError struct {
	Language string
	Line     int
	Col      int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s parse error at line %d, column %d: %s", e.Language, e.Line, e.Col, e.Message)
}

// FrontEnd parses one language.
type FrontEnd struct {
	language    string
	grammar     *sitter.Language
	incremental bool
}

// Language returns the front end's language identifier.
func (f *FrontEnd) Language() string { return f.language }

// SupportsIncremental reports whether the grammar supports incremental
// reparsing.
func (f *FrontEnd) SupportsIncremental() bool { return f.incremental }

// ForLanguage returns the front end for a supported language.
func ForLanguage(language string) (*FrontEnd, error) {
	switch language {
	case lang.Python:
		return &FrontEnd{language: language, grammar: python.GetLanguage()}, nil
	case lang.JavaScript:
		return &FrontEnd{language: language, grammar: javascript.GetLanguage(), incremental: true}, nil
	case lang.TypeScript:
		return &FrontEnd{language: language, grammar: typescript.GetLanguage(), incremental: true}, nil
	case lang.Java:
		return &FrontEnd{language: language, grammar: java.GetLanguage(), incremental: true}, nil
	}
	return nil, fmt.Errorf("unsupported language %q", language)
}

// Parse parses source into a native tree. A tree containing error nodes
// fails with *ParseError unless opts.AcceptPartial is set.
func (f *FrontEnd) Parse(ctx context.Context, source []byte, opts Options) (*Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(f.grammar)

	tsTree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}

	tree := &Tree{Language: f.language, Source: source, ts: tsTree}
	if tsTree.RootNode().HasError() {
		if errNode := firstErrorNode(tsTree.RootNode()); errNode != nil {
			if !opts.AcceptPartial {
				pt := errNode.StartPoint()
				msg := describeError(errNode, source)
				tree.Close()
				return nil, &ParseError{
					Language: f.language,
					Line:     int(pt.Row) + 1,
					Col:      int(pt.Column),
					Message:  msg,
				}
			}
			tree.Partial = true
		}
	}
	return tree, nil
}

// firstErrorNode finds the earliest ERROR or MISSING node.
func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := firstErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func describeError(node *sitter.Node, source []byte) string {
	if node.IsMissing() {
		return fmt.Sprintf("missing %s", node.Type())
	}
	text := node.Content(source)
	if len(text) > 40 {
		text = text[:40] + "..."
	}
	return fmt.Sprintf("unexpected syntax near %q", text)
}

// NodeSpan converts a native node's range into a PIR-style span tuple:
// byte offsets, 1-based lines, 0-based columns.
func NodeSpan(n *sitter.Node) (startByte, endByte uint32, startLine, startCol, endLine, endCol int) {
	sp, ep := n.StartPoint(), n.EndPoint()
	return n.StartByte(), n.EndByte(), int(sp.Row) + 1, int(sp.Column), int(ep.Row) + 1, int(ep.Column)
}
