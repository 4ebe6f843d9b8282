// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package symbols builds the project symbol table: it populates the binding
// slots on PIR Name nodes and resolves imports across source units.
package symbols

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/scalpel/pkg/lang"
	"github.com/kraklabs/scalpel/pkg/pir"
)

// Kind classifies a symbol.
type Kind string

const (
	KindFunction       Kind = "function"
	KindClass          Kind = "class"
	KindMethod         Kind = "method"
	KindVariable       Kind = "variable"
	KindParameter      Kind = "parameter"
	KindImport         Kind = "import"
	KindModule         Kind = "module"
	KindExternalModule Kind = "external_module"
)

// Symbol is one declaration. QualifiedName follows
// language::module_path::...::name and is globally unique in the project.
type Symbol struct {
	QualifiedName string     `json:"qualified_name"`
	Kind          Kind       `json:"kind"`
	Unit          string     `json:"unit"`
	Node          pir.NodeID `json:"node"`
	Visibility    string     `json:"visibility"`
	Language      string     `json:"language"`
}

// Table is the project symbol table. It is immutable once Build returns.
type Table struct {
	Symbols map[string]*Symbol
	// Modules maps a module path (e.g. "app.views") to its source unit.
	Modules map[string]string
	Diags   []pir.Diagnostic

	byUnit        map[string][]*Symbol
	importTargets map[string]string
}

// Lookup returns the symbol with the exact qualified name, or nil.
func (t *Table) Lookup(qualified string) *Symbol {
	return t.Symbols[qualified]
}

// InUnit returns the symbols declared in a source unit, in span order.
func (t *Table) InUnit(unit string) []*Symbol {
	return t.byUnit[unit]
}

// Names returns all qualified names in sorted order.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.Symbols))
	for k := range t.Symbols {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ModulePath derives the module path of a unit for its language.
func ModulePath(unit, language string) string {
	p := unit
	for _, ext := range []string{".py", ".pyi", ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", ".java"} {
		if strings.HasSuffix(p, ext) {
			p = strings.TrimSuffix(p, ext)
			break
		}
	}
	p = strings.TrimPrefix(p, "./")
	if language == lang.Python || language == lang.Java {
		return strings.ReplaceAll(p, "/", ".")
	}
	return p
}

// QualifiedName assembles a symbol key.
func QualifiedName(language, modPath string, parts ...string) string {
	elems := append([]string{language, modPath}, parts...)
	return strings.Join(elems, "::")
}

// scope is one lexical scope during construction and binding.
type scope struct {
	parent *scope
	prefix string // qualified-name prefix for declarations in this scope
	names  map[string]string
}

func (s *scope) declare(name, qualified string) (previous string, collided bool) {
	prev, ok := s.names[name]
	s.names[name] = qualified
	return prev, ok
}

func (s *scope) resolve(name string) string {
	for cur := s; cur != nil; cur = cur.parent {
		if q, ok := cur.names[name]; ok {
			return q
		}
	}
	return ""
}

// Build constructs the symbol table over a set of lowered trees and binds
// every Name node. Trees are mutated only through their binding slots.
//
// The algorithm runs scope construction per file, then import resolution in
// topological order over the import graph, then binding per file.
// Cycles are tolerated and reported as circular_import diagnostics.
func Build(trees map[string]*pir.Tree) *Table {
	table := &Table{
		Symbols: make(map[string]*Symbol),
		Modules: make(map[string]string),
		byUnit:  make(map[string][]*Symbol),
	}

	units := make([]string, 0, len(trees))
	for u := range trees {
		units = append(units, u)
	}
	sort.Strings(units)

	// Pass 1: scope construction per file, lexical order.
	binders := make(map[string]*fileBinder, len(units))
	for _, unit := range units {
		tree := trees[unit]
		modPath := ModulePath(unit, tree.Lang)
		table.Modules[modPath] = unit

		b := &fileBinder{tree: tree, table: table, modPath: modPath}
		b.moduleScope = &scope{prefix: QualifiedName(tree.Lang, modPath), names: make(map[string]string)}
		b.declareSymbol(b.moduleScope, modPath, KindModule, tree.Root(), "")
		b.collect(tree.Root(), b.moduleScope)
		binders[unit] = b
	}

	// Import resolution in topological order; cycles reported and broken by
	// lexical order.
	resolveImports(units, binders, table)

	// Pass 2: binding.
	for _, unit := range units {
		b := binders[unit]
		b.bind(b.tree.Root(), b.moduleScope)
	}

	return table
}

type importBinding struct {
	localName string
	target    string // resolved qualified name, or "" until resolution
	path      string
	relative  bool
	node      pir.NodeID
}

type fileBinder struct {
	tree        *pir.Tree
	table       *Table
	modPath     string
	moduleScope *scope
	imports     []*importBinding
	// subScopes remembers the scope built for each Function/Class node so
	// the binding pass revisits the same scopes.
	subScopes map[pir.NodeID]*scope
}

func (b *fileBinder) declareSymbol(s *scope, name string, kind Kind, node pir.NodeID, visibility string) *Symbol {
	qualified := s.prefix + "::" + name
	if kind == KindModule {
		qualified = s.prefix
	}
	if visibility == "" {
		visibility = "public"
		if strings.HasPrefix(name, "_") {
			visibility = "private"
		}
	}

	if kind == KindFunction || kind == KindMethod || kind == KindClass {
		if prev, collided := s.declare(name, qualified); collided && prev == qualified {
			sp := b.tree.Node(node).Span
			b.table.Diags = append(b.table.Diags, pir.Diagnostic{
				Code:    "name_collision",
				Message: fmt.Sprintf("%q declared more than once in the same scope; later declaration wins", name),
				Line:    sp.StartLine,
				Col:     sp.StartCol,
			})
		}
	} else if kind != KindModule {
		s.declare(name, qualified)
	}

	sym := &Symbol{
		QualifiedName: qualified,
		Kind:          kind,
		Unit:          b.tree.Unit,
		Node:          node,
		Visibility:    visibility,
		Language:      b.tree.Lang,
	}
	b.table.Symbols[qualified] = sym
	b.table.byUnit[b.tree.Unit] = append(b.table.byUnit[b.tree.Unit], sym)
	return sym
}

func (b *fileBinder) subScope(node pir.NodeID, s *scope) *scope {
	if b.subScopes == nil {
		b.subScopes = make(map[pir.NodeID]*scope)
	}
	if existing, ok := b.subScopes[node]; ok {
		return existing
	}
	child := &scope{parent: s, prefix: s.prefix + "::" + b.tree.Node(node).Name, names: make(map[string]string)}
	b.subScopes[node] = child
	return child
}

// collect is pass 1: it declares every name with a stable qualified name.
func (b *fileBinder) collect(id pir.NodeID, s *scope) {
	n := b.tree.Node(id)
	switch n.Kind {
	case pir.KindFunction:
		kind := KindFunction
		if n.IsMethod {
			kind = KindMethod
		}
		b.declareSymbol(s, n.Name, kind, id, "")
		inner := b.subScope(id, s)
		for _, p := range n.Params {
			b.declareSymbol(inner, p.Name, KindParameter, p.Node, "public")
		}
		for _, c := range n.Children {
			b.collect(c, inner)
		}
		return

	case pir.KindClass:
		b.declareSymbol(s, n.Name, KindClass, id, "")
		inner := b.subScope(id, s)
		for _, c := range n.Children {
			b.collect(c, inner)
		}
		return

	case pir.KindAssignment:
		for _, t := range n.Targets {
			target := b.tree.Node(t)
			if target.Kind == pir.KindName {
				if s.resolve(target.Name) == "" {
					b.declareSymbol(s, target.Name, KindVariable, t, "")
				}
			}
		}

	case pir.KindImport:
		for _, imported := range n.Imported {
			local := imported.Alias
			if local == "" {
				local = imported.Name
			}
			if local == "*" {
				continue
			}
			sym := b.declareSymbol(s, local, KindImport, id, "public")
			b.imports = append(b.imports, &importBinding{
				localName: imported.Name,
				path:      n.ModulePath,
				relative:  n.IsRelative,
				node:      id,
				target:    sym.QualifiedName,
			})
		}
	}

	for _, c := range n.Children {
		b.collect(c, s)
	}
}

// bind is pass 2: every Name node gets its binding slot populated with the
// innermost declaring scope's symbol.
func (b *fileBinder) bind(id pir.NodeID, s *scope) {
	n := b.tree.Node(id)
	switch n.Kind {
	case pir.KindFunction, pir.KindClass:
		inner := b.subScope(id, s)
		for _, c := range n.Children {
			b.bind(c, inner)
		}
		return
	case pir.KindName:
		if q := s.resolve(n.Name); q != "" {
			// Imported names forward to their resolved target when known.
			if fwd, ok := b.table.importTargets[q]; ok && fwd != "" {
				q = fwd
			}
			n.Binding = q
		}
	case pir.KindOpaque:
		return
	}
	for _, c := range n.Children {
		b.bind(c, s)
	}
}
