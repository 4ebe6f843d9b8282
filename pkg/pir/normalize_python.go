// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pir

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// lowerPythonChildren lowers every named child of a container node.
func (b *builder) lowerPythonChildren(n *sitter.Node, parent NodeID) {
	eachNamedChild(n, func(c *sitter.Node) {
		b.lowerPython(c, parent)
	})
}

// lowerPython lowers one Python native node, attaching results under parent.
func (b *builder) lowerPython(n *sitter.Node, parent NodeID) NodeID {
	switch n.Type() {
	case "comment":
		return NoNode

	case "decorated_definition":
		var last NodeID = NoNode
		eachNamedChild(n, func(c *sitter.Node) {
			if c.Type() == "function_definition" || c.Type() == "class_definition" {
				last = b.lowerPython(c, parent)
			}
		})
		return last

	case "function_definition":
		return b.lowerPythonFunction(n, parent)

	case "class_definition":
		return b.lowerPythonClass(n, parent)

	case "call":
		return b.lowerPythonCall(n, parent)

	case "identifier":
		return b.name(parent, n, "")

	case "assignment", "augmented_assignment":
		return b.lowerPythonAssignment(n, parent)

	case "expression_statement":
		var last NodeID = NoNode
		eachNamedChild(n, func(c *sitter.Node) {
			last = b.lowerPython(c, parent)
		})
		return last

	case "import_statement":
		return b.lowerPythonImport(n, parent)

	case "import_from_statement":
		return b.lowerPythonImportFrom(n, parent)

	case "if_statement":
		var clauses []*sitter.Node
		eachNamedChild(n, func(c *sitter.Node) {
			if c.Type() == "elif_clause" || c.Type() == "else_clause" {
				clauses = append(clauses, c)
			}
		})
		return b.lowerPythonIfClause(n, parent, clauses)

	case "while_statement":
		id := b.add(parent, n, Node{Kind: KindLoop, Cond: NoNode})
		if cond := n.ChildByFieldName("condition"); cond != nil {
			cid := b.lowerPython(cond, id)
			b.tree.Node(id).Cond = cid
		}
		if body := n.ChildByFieldName("body"); body != nil {
			b.lowerPythonChildren(body, id)
		}
		return id

	case "for_statement":
		id := b.add(parent, n, Node{Kind: KindLoop, Cond: NoNode})
		b.lowerPythonChildren(n, id)
		return id

	case "return_statement":
		id := b.add(parent, n, Node{Kind: KindReturn})
		b.lowerPythonChildren(n, id)
		return id

	case "try_statement":
		id := b.add(parent, n, Node{Kind: KindTry})
		b.lowerPythonChildren(n, id)
		return id

	case "raise_statement":
		id := b.add(parent, n, Node{Kind: KindRaise})
		b.lowerPythonChildren(n, id)
		return id

	case "string", "concatenated_string":
		return b.literal(parent, n, "string")
	case "integer", "float":
		return b.literal(parent, n, "number")
	case "true", "false":
		return b.literal(parent, n, "bool")
	case "none":
		return b.literal(parent, n, "null")

	case "attribute":
		return b.lowerPythonAttribute(n, parent)

	case "subscript":
		id := b.add(parent, n, Node{Kind: KindExpr, Tag: TagSubscript})
		if obj := n.ChildByFieldName("value"); obj != nil {
			b.lowerPython(obj, id)
		}
		if sub := n.ChildByFieldName("subscript"); sub != nil {
			b.lowerPython(sub, id)
		}
		return id

	case "binary_operator", "boolean_operator":
		id := b.add(parent, n, Node{Kind: KindExpr, Tag: TagBinary, Name: b.operatorText(n)})
		b.lowerPythonChildren(n, id)
		return id

	case "comparison_operator":
		id := b.add(parent, n, Node{Kind: KindExpr, Tag: TagCompare, Name: b.operatorText(n)})
		b.lowerPythonChildren(n, id)
		return id

	case "unary_operator", "not_operator":
		id := b.add(parent, n, Node{Kind: KindExpr, Tag: TagUnary, Name: b.operatorText(n)})
		b.lowerPythonChildren(n, id)
		return id

	case "parenthesized_expression":
		id := b.add(parent, n, Node{Kind: KindExpr, Tag: TagGroup})
		b.lowerPythonChildren(n, id)
		return id

	case "block":
		b.lowerPythonChildren(n, parent)
		return NoNode

	case "ERROR":
		return b.opaque(parent, n, "unparsed region")

	default:
		// Transparent fallback: containers and sugar we do not model keep
		// their children reachable under the nearest modeled ancestor.
		b.lowerPythonChildren(n, parent)
		return NoNode
	}
}

// lowerPythonIfClause lowers one if/elif clause and chains the remaining
// clauses as its alternative, so `elif` nests the way `else: if:` would.
func (b *builder) lowerPythonIfClause(clause *sitter.Node, parent NodeID, rest []*sitter.Node) NodeID {
	id := b.add(parent, clause, Node{Kind: KindIf, ElseIdx: -1, Cond: NoNode})
	if cond := clause.ChildByFieldName("condition"); cond != nil {
		cid := b.lowerPython(cond, id)
		b.tree.Node(id).Cond = cid
	}
	if cons := clause.ChildByFieldName("consequence"); cons != nil {
		b.lowerPythonChildren(cons, id)
	}
	if len(rest) > 0 {
		b.tree.Node(id).ElseIdx = len(b.tree.Node(id).Children)
		next := rest[0]
		if next.Type() == "elif_clause" {
			b.lowerPythonIfClause(next, id, rest[1:])
		} else {
			b.lowerPythonChildren(next, id)
		}
	}
	return id
}

// operatorText extracts the operator token of a binary/unary native node.
func (b *builder) operatorText(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return b.text(op)
	}
	if n.ChildCount() >= 3 {
		return b.text(n.Child(1))
	}
	return ""
}

func (b *builder) lowerPythonFunction(n *sitter.Node, parent NodeID) NodeID {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return b.opaque(parent, n, "function without a name")
	}

	fn := Node{
		Kind:    KindFunction,
		Name:    b.text(nameNode),
		IsAsync: hasChildToken(n, "async"),
	}
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		fn.ReturnHint = b.text(ret)
	}
	if cls := b.enclosingClassName(parent); cls != "" {
		fn.IsMethod = true
		fn.OwnerClass = cls
	}

	id := b.add(parent, n, fn)

	if params := n.ChildByFieldName("parameters"); params != nil {
		b.lowerPythonParams(params, id)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		before := len(b.tree.Node(id).Children)
		b.lowerPythonChildren(body, id)
		node := b.tree.Node(id)
		node.Body = append([]NodeID(nil), node.Children[before:]...)
	}
	return id
}

func (b *builder) lowerPythonParams(params *sitter.Node, fn NodeID) {
	eachNamedChild(params, func(p *sitter.Node) {
		var nameNode *sitter.Node
		hint := ""
		switch p.Type() {
		case "identifier":
			nameNode = p
		case "typed_parameter", "typed_default_parameter":
			eachNamedChild(p, func(c *sitter.Node) {
				if c.Type() == "identifier" && nameNode == nil {
					nameNode = c
				}
			})
			if t := p.ChildByFieldName("type"); t != nil {
				hint = b.text(t)
			}
		case "default_parameter":
			nameNode = p.ChildByFieldName("name")
		case "list_splat_pattern", "dictionary_splat_pattern":
			eachNamedChild(p, func(c *sitter.Node) {
				if c.Type() == "identifier" {
					nameNode = c
				}
			})
		}
		if nameNode == nil {
			return
		}
		pid := b.name(fn, nameNode, hint)
		node := b.tree.Node(fn)
		node.Params = append(node.Params, Param{Name: b.text(nameNode), TypeHint: hintOrUnknown(hint), Node: pid})
	})
}

func hintOrUnknown(hint string) string {
	if hint == "" {
		return "unknown"
	}
	return hint
}

func (b *builder) enclosingClassName(parent NodeID) string {
	for cur := parent; cur != NoNode; cur = b.tree.Node(cur).Parent {
		n := b.tree.Node(cur)
		if n.Kind == KindClass {
			return n.Name
		}
		if n.Kind == KindFunction {
			return ""
		}
	}
	return ""
}

func (b *builder) lowerPythonClass(n *sitter.Node, parent NodeID) NodeID {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return b.opaque(parent, n, "class without a name")
	}
	cls := Node{Kind: KindClass, Name: b.text(nameNode)}
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		eachNamedChild(supers, func(s *sitter.Node) {
			cls.Bases = append(cls.Bases, b.text(s))
		})
	}
	id := b.add(parent, n, cls)
	if body := n.ChildByFieldName("body"); body != nil {
		b.lowerPythonChildren(body, id)
	}
	return id
}

func (b *builder) lowerPythonCall(n *sitter.Node, parent NodeID) NodeID {
	fnNode := n.ChildByFieldName("function")
	if fnNode != nil {
		callee := b.text(fnNode)
		if callee == "eval" || callee == "exec" || callee == "compile" {
			return b.opaque(parent, n, "dynamic code execution ("+callee+")")
		}
	}

	id := b.add(parent, n, Node{Kind: KindCall, Callee: NoNode})
	if fnNode != nil {
		callee := b.lowerPython(fnNode, id)
		b.tree.Node(id).Callee = callee
	}
	if args := n.ChildByFieldName("arguments"); args != nil {
		eachNamedChild(args, func(a *sitter.Node) {
			if a.Type() == "keyword_argument" {
				kwName := a.ChildByFieldName("name")
				kwValue := a.ChildByFieldName("value")
				if kwName != nil && kwValue != nil {
					vid := b.lowerPython(kwValue, id)
					node := b.tree.Node(id)
					node.Keywords = append(node.Keywords, Keyword{Name: b.text(kwName), Value: vid})
				}
				return
			}
			aid := b.lowerPython(a, id)
			if aid != NoNode {
				node := b.tree.Node(id)
				node.Args = append(node.Args, aid)
			}
		})
	}
	return id
}

func (b *builder) lowerPythonAttribute(n *sitter.Node, parent NodeID) NodeID {
	attr := n.ChildByFieldName("attribute")
	node := Node{Kind: KindExpr, Tag: TagAttribute}
	if attr != nil {
		node.Name = b.text(attr)
	}
	id := b.add(parent, n, node)
	if obj := n.ChildByFieldName("object"); obj != nil {
		b.lowerPython(obj, id)
	}
	return id
}

func (b *builder) lowerPythonAssignment(n *sitter.Node, parent NodeID) NodeID {
	id := b.add(parent, n, Node{Kind: KindAssignment, RHS: NoNode})
	if left := n.ChildByFieldName("left"); left != nil {
		tid := b.lowerPython(left, id)
		if tid != NoNode {
			node := b.tree.Node(id)
			node.Targets = append(node.Targets, tid)
		}
	}
	if right := n.ChildByFieldName("right"); right != nil {
		rid := b.lowerPython(right, id)
		b.tree.Node(id).RHS = rid
	}
	return id
}

func (b *builder) lowerPythonImport(n *sitter.Node, parent NodeID) NodeID {
	imp := Node{Kind: KindImport}
	eachNamedChild(n, func(c *sitter.Node) {
		switch c.Type() {
		case "dotted_name":
			name := b.text(c)
			if imp.ModulePath == "" {
				imp.ModulePath = name
			}
			imp.Imported = append(imp.Imported, ImportedName{Name: name})
		case "aliased_import":
			nameNode := c.ChildByFieldName("name")
			aliasNode := c.ChildByFieldName("alias")
			if nameNode != nil {
				entry := ImportedName{Name: b.text(nameNode)}
				if aliasNode != nil {
					entry.Alias = b.text(aliasNode)
				}
				if imp.ModulePath == "" {
					imp.ModulePath = entry.Name
				}
				imp.Imported = append(imp.Imported, entry)
			}
		}
	})
	return b.add(parent, n, imp)
}

func (b *builder) lowerPythonImportFrom(n *sitter.Node, parent NodeID) NodeID {
	imp := Node{Kind: KindImport}
	if mod := n.ChildByFieldName("module_name"); mod != nil {
		imp.ModulePath = b.text(mod)
		imp.IsRelative = strings.HasPrefix(imp.ModulePath, ".")
	}
	eachNamedChild(n, func(c *sitter.Node) {
		switch c.Type() {
		case "dotted_name", "identifier":
			name := b.text(c)
			if name == imp.ModulePath {
				return
			}
			imp.Imported = append(imp.Imported, ImportedName{Name: name})
		case "aliased_import":
			nameNode := c.ChildByFieldName("name")
			aliasNode := c.ChildByFieldName("alias")
			if nameNode != nil {
				entry := ImportedName{Name: b.text(nameNode)}
				if aliasNode != nil {
					entry.Alias = b.text(aliasNode)
				}
				imp.Imported = append(imp.Imported, entry)
			}
		case "wildcard_import":
			imp.Imported = append(imp.Imported, ImportedName{Name: "*"})
		}
	})
	return b.add(parent, n, imp)
}
