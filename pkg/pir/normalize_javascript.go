// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pir

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// lowerJSChildren lowers every named child of a JavaScript or TypeScript
// container node. The TypeScript walker is the JavaScript walker plus the
// TS-only declaration forms; ts toggles those.
func (b *builder) lowerJSChildren(n *sitter.Node, parent NodeID, ts bool) {
	eachNamedChild(n, func(c *sitter.Node) {
		b.lowerJS(c, parent, ts)
	})
}

func (b *builder) lowerJS(n *sitter.Node, parent NodeID, ts bool) NodeID {
	switch n.Type() {
	case "comment":
		return NoNode

	case "function_declaration", "generator_function_declaration":
		return b.lowerJSFunction(n, n.ChildByFieldName("name"), parent, ts)

	case "method_definition":
		return b.lowerJSFunction(n, n.ChildByFieldName("name"), parent, ts)

	case "class_declaration":
		return b.lowerJSClass(n, parent, ts)

	case "interface_declaration", "type_alias_declaration":
		if !ts {
			break
		}
		nameNode := n.ChildByFieldName("name")
		cls := Node{Kind: KindClass}
		if nameNode != nil {
			cls.Name = b.text(nameNode)
		}
		id := b.add(parent, n, cls)
		if body := n.ChildByFieldName("body"); body != nil {
			b.lowerJSChildren(body, id, ts)
		}
		return id

	case "lexical_declaration", "variable_declaration":
		var last NodeID = NoNode
		eachNamedChild(n, func(c *sitter.Node) {
			if c.Type() == "variable_declarator" {
				last = b.lowerJSDeclarator(c, parent, ts)
			}
		})
		return last

	case "assignment_expression", "augmented_assignment_expression":
		id := b.add(parent, n, Node{Kind: KindAssignment, RHS: NoNode})
		if left := n.ChildByFieldName("left"); left != nil {
			tid := b.lowerJS(left, id, ts)
			if tid != NoNode {
				node := b.tree.Node(id)
				node.Targets = append(node.Targets, tid)
			}
		}
		if right := n.ChildByFieldName("right"); right != nil {
			rid := b.lowerJS(right, id, ts)
			b.tree.Node(id).RHS = rid
		}
		return id

	case "call_expression", "new_expression":
		return b.lowerJSCall(n, parent, ts)

	case "identifier", "property_identifier", "shorthand_property_identifier":
		return b.name(parent, n, "")

	case "import_statement":
		return b.lowerJSImport(n, parent)

	case "if_statement":
		id := b.add(parent, n, Node{Kind: KindIf, ElseIdx: -1, Cond: NoNode})
		if cond := n.ChildByFieldName("condition"); cond != nil {
			cid := b.lowerJS(cond, id, ts)
			b.tree.Node(id).Cond = cid
		}
		if cons := n.ChildByFieldName("consequence"); cons != nil {
			b.lowerJS(cons, id, ts)
		}
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			b.tree.Node(id).ElseIdx = len(b.tree.Node(id).Children)
			b.lowerJS(alt, id, ts)
		}
		return id

	case "for_statement", "for_in_statement", "while_statement", "do_statement":
		id := b.add(parent, n, Node{Kind: KindLoop, Cond: NoNode})
		cond := n.ChildByFieldName("condition")
		if cond != nil {
			cid := b.lowerJS(cond, id, ts)
			b.tree.Node(id).Cond = cid
		}
		eachNamedChild(n, func(c *sitter.Node) {
			if sameNode(c, cond) {
				return
			}
			b.lowerJS(c, id, ts)
		})
		return id

	case "return_statement":
		id := b.add(parent, n, Node{Kind: KindReturn})
		b.lowerJSChildren(n, id, ts)
		return id

	case "try_statement":
		id := b.add(parent, n, Node{Kind: KindTry})
		b.lowerJSChildren(n, id, ts)
		return id

	case "throw_statement":
		id := b.add(parent, n, Node{Kind: KindRaise})
		b.lowerJSChildren(n, id, ts)
		return id

	case "string", "template_string":
		return b.literal(parent, n, "string")
	case "number":
		return b.literal(parent, n, "number")
	case "true", "false":
		return b.literal(parent, n, "bool")
	case "null", "undefined":
		return b.literal(parent, n, "null")

	case "member_expression":
		prop := n.ChildByFieldName("property")
		node := Node{Kind: KindExpr, Tag: TagAttribute}
		if prop != nil {
			node.Name = b.text(prop)
		}
		id := b.add(parent, n, node)
		if obj := n.ChildByFieldName("object"); obj != nil {
			b.lowerJS(obj, id, ts)
		}
		return id

	case "subscript_expression":
		id := b.add(parent, n, Node{Kind: KindExpr, Tag: TagSubscript})
		if obj := n.ChildByFieldName("object"); obj != nil {
			b.lowerJS(obj, id, ts)
		}
		if index := n.ChildByFieldName("index"); index != nil {
			b.lowerJS(index, id, ts)
		}
		return id

	case "binary_expression":
		tag := TagBinary
		if isComparisonOp(b.operatorText(n)) {
			tag = TagCompare
		}
		id := b.add(parent, n, Node{Kind: KindExpr, Tag: tag, Name: b.operatorText(n)})
		b.lowerJSChildren(n, id, ts)
		return id

	case "unary_expression":
		id := b.add(parent, n, Node{Kind: KindExpr, Tag: TagUnary, Name: b.operatorText(n)})
		b.lowerJSChildren(n, id, ts)
		return id

	case "parenthesized_expression":
		id := b.add(parent, n, Node{Kind: KindExpr, Tag: TagGroup})
		b.lowerJSChildren(n, id, ts)
		return id

	case "statement_block", "expression_statement", "program", "export_statement":
		b.lowerJSChildren(n, parent, ts)
		return NoNode

	case "ERROR":
		return b.opaque(parent, n, "unparsed region")
	}

	b.lowerJSChildren(n, parent, ts)
	return NoNode
}

func isComparisonOp(op string) bool {
	switch op {
	case "==", "===", "!=", "!==", "<", ">", "<=", ">=":
		return true
	}
	return false
}

// lowerJSDeclarator models `const f = () => ...` as a Function when the value
// is a function form, and as an Assignment otherwise.
func (b *builder) lowerJSDeclarator(n *sitter.Node, parent NodeID, ts bool) NodeID {
	nameNode := n.ChildByFieldName("name")
	valueNode := n.ChildByFieldName("value")
	if nameNode != nil && valueNode != nil {
		switch valueNode.Type() {
		case "arrow_function", "function_expression", "function", "generator_function":
			return b.lowerJSFunction(n, nameNode, parent, ts)
		}
	}

	id := b.add(parent, n, Node{Kind: KindAssignment, RHS: NoNode})
	if nameNode != nil {
		tid := b.lowerJS(nameNode, id, ts)
		if tid != NoNode {
			node := b.tree.Node(id)
			node.Targets = append(node.Targets, tid)
		}
	}
	if valueNode != nil {
		rid := b.lowerJS(valueNode, id, ts)
		b.tree.Node(id).RHS = rid
	}
	return id
}

// lowerJSFunction lowers any function form. container is the node whose span
// covers the whole definition; nameNode may be nil for anonymous functions.
func (b *builder) lowerJSFunction(container *sitter.Node, nameNode *sitter.Node, parent NodeID, ts bool) NodeID {
	fn := Node{Kind: KindFunction, IsAsync: hasChildToken(container, "async")}
	if nameNode != nil {
		fn.Name = b.text(nameNode)
	}
	if cls := b.enclosingClassName(parent); cls != "" {
		fn.IsMethod = true
		fn.OwnerClass = cls
	}

	// For declarators the function body lives on the value node.
	def := container
	if v := container.ChildByFieldName("value"); v != nil {
		def = v
	}
	if !fn.IsAsync {
		fn.IsAsync = hasChildToken(def, "async")
	}
	if ret := def.ChildByFieldName("return_type"); ret != nil && ts {
		fn.ReturnHint = strings.TrimPrefix(strings.TrimSpace(b.text(ret)), ":")
		fn.ReturnHint = strings.TrimSpace(fn.ReturnHint)
	}

	id := b.add(parent, container, fn)

	if params := def.ChildByFieldName("parameters"); params != nil {
		b.lowerJSParams(params, id, ts)
	} else if p := def.ChildByFieldName("parameter"); p != nil {
		// Single-parameter arrow function without parentheses.
		pid := b.name(id, p, "")
		node := b.tree.Node(id)
		node.Params = append(node.Params, Param{Name: b.text(p), TypeHint: "unknown", Node: pid})
	}

	if body := def.ChildByFieldName("body"); body != nil {
		before := len(b.tree.Node(id).Children)
		b.lowerJS(body, id, ts)
		node := b.tree.Node(id)
		node.Body = append([]NodeID(nil), node.Children[before:]...)
	}
	return id
}

func (b *builder) lowerJSParams(params *sitter.Node, fn NodeID, ts bool) {
	eachNamedChild(params, func(p *sitter.Node) {
		var nameNode *sitter.Node
		hint := ""
		switch p.Type() {
		case "identifier":
			nameNode = p
		case "required_parameter", "optional_parameter":
			nameNode = p.ChildByFieldName("pattern")
			if t := p.ChildByFieldName("type"); t != nil && ts {
				hint = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(b.text(t)), ":"))
			}
		case "assignment_pattern":
			nameNode = p.ChildByFieldName("left")
		case "rest_pattern":
			eachNamedChild(p, func(c *sitter.Node) {
				if c.Type() == "identifier" {
					nameNode = c
				}
			})
		}
		if nameNode == nil || nameNode.Type() != "identifier" {
			return
		}
		pid := b.name(fn, nameNode, hint)
		node := b.tree.Node(fn)
		node.Params = append(node.Params, Param{Name: b.text(nameNode), TypeHint: hintOrUnknown(hint), Node: pid})
	})
}

func (b *builder) lowerJSClass(n *sitter.Node, parent NodeID, ts bool) NodeID {
	nameNode := n.ChildByFieldName("name")
	cls := Node{Kind: KindClass}
	if nameNode != nil {
		cls.Name = b.text(nameNode)
	}
	eachNamedChild(n, func(c *sitter.Node) {
		if c.Type() == "class_heritage" {
			base := strings.TrimSpace(b.text(c))
			base = strings.TrimSpace(strings.TrimPrefix(base, "extends"))
			if base != "" {
				cls.Bases = append(cls.Bases, base)
			}
		}
	})
	id := b.add(parent, n, cls)
	if body := n.ChildByFieldName("body"); body != nil {
		b.lowerJSChildren(body, id, ts)
	}
	return id
}

func (b *builder) lowerJSCall(n *sitter.Node, parent NodeID, ts bool) NodeID {
	fnNode := n.ChildByFieldName("function")
	if fnNode == nil {
		fnNode = n.ChildByFieldName("constructor")
	}
	if fnNode != nil && fnNode.Type() == "identifier" && b.text(fnNode) == "eval" {
		return b.opaque(parent, n, "dynamic code execution (eval)")
	}

	id := b.add(parent, n, Node{Kind: KindCall, Callee: NoNode})
	if fnNode != nil {
		callee := b.lowerJS(fnNode, id, ts)
		b.tree.Node(id).Callee = callee
	}
	if args := n.ChildByFieldName("arguments"); args != nil {
		eachNamedChild(args, func(a *sitter.Node) {
			aid := b.lowerJS(a, id, ts)
			if aid != NoNode {
				node := b.tree.Node(id)
				node.Args = append(node.Args, aid)
			}
		})
	}
	return id
}

func (b *builder) lowerJSImport(n *sitter.Node, parent NodeID) NodeID {
	imp := Node{Kind: KindImport}
	if src := n.ChildByFieldName("source"); src != nil {
		imp.ModulePath = strings.Trim(b.text(src), `"'`)
		imp.IsRelative = strings.HasPrefix(imp.ModulePath, ".")
	}
	eachNamedChild(n, func(c *sitter.Node) {
		if c.Type() != "import_clause" {
			return
		}
		eachNamedChild(c, func(cl *sitter.Node) {
			switch cl.Type() {
			case "identifier":
				imp.Imported = append(imp.Imported, ImportedName{Name: "default", Alias: b.text(cl)})
			case "named_imports":
				eachNamedChild(cl, func(spec *sitter.Node) {
					if spec.Type() != "import_specifier" {
						return
					}
					entry := ImportedName{}
					if name := spec.ChildByFieldName("name"); name != nil {
						entry.Name = b.text(name)
					}
					if alias := spec.ChildByFieldName("alias"); alias != nil {
						entry.Alias = b.text(alias)
					}
					if entry.Name != "" {
						imp.Imported = append(imp.Imported, entry)
					}
				})
			case "namespace_import":
				eachNamedChild(cl, func(ident *sitter.Node) {
					if ident.Type() == "identifier" {
						imp.Imported = append(imp.Imported, ImportedName{Name: "*", Alias: b.text(ident)})
					}
				})
			}
		})
	})
	return b.add(parent, n, imp)
}
