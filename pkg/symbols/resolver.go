// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package symbols

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/kraklabs/scalpel/pkg/lang"
	"github.com/kraklabs/scalpel/pkg/pir"
)

// resolveImports wires import bindings to their target symbols. Imports are
// resolved in topological order over the import graph; cycles are reported as
// circular_import diagnostics and broken by lexical order, so resolution
// inside a cycle prefers the first-declared module.
func resolveImports(units []string, binders map[string]*fileBinder, table *Table) {
	table.importTargets = make(map[string]string)

	// Import graph: edge importer -> imported unit.
	edges := make(map[string][]string)
	indegree := make(map[string]int, len(units))
	for _, u := range units {
		indegree[u] = 0
	}
	for _, u := range units {
		b := binders[u]
		seen := map[string]bool{}
		for _, imp := range b.imports {
			target := resolveModule(b, imp)
			if target == "" || target == u || seen[target] {
				continue
			}
			seen[target] = true
			edges[target] = append(edges[target], u)
			indegree[u]++
		}
	}

	// Kahn's algorithm with a lexically ordered frontier keeps resolution
	// deterministic.
	frontier := make([]string, 0, len(units))
	for _, u := range units {
		if indegree[u] == 0 {
			frontier = append(frontier, u)
		}
	}
	sort.Strings(frontier)

	order := make([]string, 0, len(units))
	for len(frontier) > 0 {
		u := frontier[0]
		frontier = frontier[1:]
		order = append(order, u)
		changed := false
		for _, dep := range edges[u] {
			indegree[dep]--
			if indegree[dep] == 0 {
				frontier = append(frontier, dep)
				changed = true
			}
		}
		if changed {
			sort.Strings(frontier)
		}
	}

	if len(order) < len(units) {
		// Remaining units form cycles. Report and append lexically.
		var cyclic []string
		for _, u := range units {
			if indegree[u] > 0 {
				cyclic = append(cyclic, u)
			}
		}
		sort.Strings(cyclic)
		for _, u := range cyclic {
			table.Diags = append(table.Diags, pir.Diagnostic{
				Code:    "circular_import",
				Message: fmt.Sprintf("%s participates in an import cycle", u),
			})
		}
		order = append(order, cyclic...)
	}

	for _, u := range order {
		b := binders[u]
		for _, imp := range b.imports {
			bindImport(b, imp, table)
		}
	}
}

// resolveModule maps an import path to a project unit, or "" when external.
func resolveModule(b *fileBinder, imp *importBinding) string {
	language := b.tree.Lang
	switch language {
	case lang.Python:
		mod := imp.path
		if imp.relative {
			mod = resolveRelativePython(b.modPath, imp.path)
		}
		if mod == "" {
			return ""
		}
		if unit, ok := b.table.Modules[mod]; ok {
			return unit
		}
		// `import a.b` binds a.b directly; `from a import b` may name a
		// submodule a.b.
		if unit, ok := b.table.Modules[mod+"."+imp.localName]; ok {
			return unit
		}
		return ""
	case lang.JavaScript, lang.TypeScript:
		if !strings.HasPrefix(imp.path, ".") {
			return ""
		}
		base := path.Join(path.Dir(b.tree.Unit), imp.path)
		for _, candidate := range []string{base, base + "/index"} {
			mod := strings.TrimPrefix(candidate, "./")
			if unit, ok := b.table.Modules[mod]; ok {
				return unit
			}
		}
		return ""
	case lang.Java:
		if unit, ok := b.table.Modules[imp.path]; ok {
			return unit
		}
		return ""
	}
	return ""
}

// resolveRelativePython applies Python relative-import rules: one leading dot
// is the current package, each extra dot one package up.
func resolveRelativePython(fromModule, impPath string) string {
	dots := 0
	for dots < len(impPath) && impPath[dots] == '.' {
		dots++
	}
	rest := impPath[dots:]

	parts := strings.Split(fromModule, ".")
	// Drop the module's own name, then one more segment per extra dot.
	drop := dots
	if drop > len(parts) {
		return ""
	}
	base := parts[:len(parts)-drop]
	if rest == "" {
		return strings.Join(base, ".")
	}
	return strings.Join(append(base, rest), ".")
}

// bindImport points an import symbol at its target: a symbol inside a project
// unit when resolvable, otherwise an opaque external_module symbol that
// carries the import path for later inspection.
func bindImport(b *fileBinder, imp *importBinding, table *Table) {
	targetUnit := resolveModule(b, imp)
	if targetUnit == "" {
		external := QualifiedName(b.tree.Lang, "external", importPathKey(imp))
		if _, ok := table.Symbols[external]; !ok {
			table.Symbols[external] = &Symbol{
				QualifiedName: external,
				Kind:          KindExternalModule,
				Unit:          "",
				Node:          pir.NoNode,
				Visibility:    "public",
				Language:      b.tree.Lang,
			}
			if b.tree.Lang != lang.Java && !imp.relative && !isKnownStdlib(imp.path) {
				sp := b.tree.Node(imp.node).Span
				table.Diags = append(table.Diags, pir.Diagnostic{
					Code:    "unresolved_import",
					Message: fmt.Sprintf("import %q does not resolve inside the project", imp.path),
					Line:    sp.StartLine,
					Col:     sp.StartCol,
				})
			}
		}
		table.importTargets[imp.target] = external
		return
	}

	targetMod := ""
	for mod, unit := range table.Modules {
		if unit == targetUnit {
			targetMod = mod
			break
		}
	}
	targetLang := b.tree.Lang

	// `from mod import name` / `import {name}` forwards to the named symbol;
	// plain module imports forward to the module symbol itself.
	candidate := QualifiedName(targetLang, targetMod, imp.localName)
	if sym, ok := table.Symbols[candidate]; ok {
		table.importTargets[imp.target] = sym.QualifiedName
		return
	}
	if sym, ok := table.Symbols[QualifiedName(targetLang, targetMod)]; ok {
		table.importTargets[imp.target] = sym.QualifiedName
	}
}

func importPathKey(imp *importBinding) string {
	if imp.path != "" {
		return imp.path
	}
	return imp.localName
}

// isKnownStdlib suppresses unresolved_import noise for common runtime
// modules; anything else out-of-project still binds external but is flagged.
func isKnownStdlib(path string) bool {
	root := path
	if i := strings.IndexByte(root, '.'); i >= 0 {
		root = root[:i]
	}
	switch root {
	case "os", "sys", "re", "json", "typing", "collections", "itertools",
		"functools", "math", "time", "datetime", "logging", "subprocess",
		"pathlib", "hashlib", "base64", "random", "sqlite3", "java", "javax":
		return true
	}
	return false
}
