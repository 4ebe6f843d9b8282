// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pir

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

func (b *builder) lowerJavaChildren(n *sitter.Node, parent NodeID) {
	eachNamedChild(n, func(c *sitter.Node) {
		b.lowerJava(c, parent)
	})
}

func (b *builder) lowerJava(n *sitter.Node, parent NodeID) NodeID {
	switch n.Type() {
	case "line_comment", "block_comment":
		return NoNode

	case "class_declaration", "interface_declaration", "enum_declaration":
		return b.lowerJavaClass(n, parent)

	case "method_declaration", "constructor_declaration":
		return b.lowerJavaMethod(n, parent)

	case "method_invocation":
		return b.lowerJavaInvocation(n, parent)

	case "object_creation_expression":
		id := b.add(parent, n, Node{Kind: KindCall, Callee: NoNode})
		if typ := n.ChildByFieldName("type"); typ != nil {
			callee := b.name(id, typ, b.text(typ))
			b.tree.Node(id).Callee = callee
		}
		if args := n.ChildByFieldName("arguments"); args != nil {
			eachNamedChild(args, func(a *sitter.Node) {
				aid := b.lowerJava(a, id)
				if aid != NoNode {
					node := b.tree.Node(id)
					node.Args = append(node.Args, aid)
				}
			})
		}
		return id

	case "identifier":
		return b.name(parent, n, "")

	case "local_variable_declaration":
		return b.lowerJavaVarDecl(n, parent)

	case "assignment_expression":
		id := b.add(parent, n, Node{Kind: KindAssignment, RHS: NoNode})
		if left := n.ChildByFieldName("left"); left != nil {
			tid := b.lowerJava(left, id)
			if tid != NoNode {
				node := b.tree.Node(id)
				node.Targets = append(node.Targets, tid)
			}
		}
		if right := n.ChildByFieldName("right"); right != nil {
			rid := b.lowerJava(right, id)
			b.tree.Node(id).RHS = rid
		}
		return id

	case "import_declaration":
		imp := Node{Kind: KindImport}
		eachNamedChild(n, func(c *sitter.Node) {
			if c.Type() == "scoped_identifier" || c.Type() == "identifier" {
				imp.ModulePath = b.text(c)
			}
		})
		if imp.ModulePath != "" {
			base := imp.ModulePath
			if i := strings.LastIndex(base, "."); i >= 0 {
				base = base[i+1:]
			}
			imp.Imported = append(imp.Imported, ImportedName{Name: base})
		}
		return b.add(parent, n, imp)

	case "if_statement":
		id := b.add(parent, n, Node{Kind: KindIf, ElseIdx: -1, Cond: NoNode})
		if cond := n.ChildByFieldName("condition"); cond != nil {
			cid := b.lowerJava(cond, id)
			b.tree.Node(id).Cond = cid
		}
		if cons := n.ChildByFieldName("consequence"); cons != nil {
			b.lowerJava(cons, id)
		}
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			b.tree.Node(id).ElseIdx = len(b.tree.Node(id).Children)
			b.lowerJava(alt, id)
		}
		return id

	case "for_statement", "enhanced_for_statement", "while_statement", "do_statement":
		id := b.add(parent, n, Node{Kind: KindLoop, Cond: NoNode})
		cond := n.ChildByFieldName("condition")
		if cond != nil {
			cid := b.lowerJava(cond, id)
			b.tree.Node(id).Cond = cid
		}
		eachNamedChild(n, func(c *sitter.Node) {
			if sameNode(c, cond) {
				return
			}
			b.lowerJava(c, id)
		})
		return id

	case "return_statement":
		id := b.add(parent, n, Node{Kind: KindReturn})
		b.lowerJavaChildren(n, id)
		return id

	case "try_statement", "try_with_resources_statement":
		id := b.add(parent, n, Node{Kind: KindTry})
		b.lowerJavaChildren(n, id)
		return id

	case "throw_statement":
		id := b.add(parent, n, Node{Kind: KindRaise})
		b.lowerJavaChildren(n, id)
		return id

	case "string_literal":
		return b.literal(parent, n, "string")
	case "decimal_integer_literal", "hex_integer_literal", "decimal_floating_point_literal":
		return b.literal(parent, n, "number")
	case "true", "false":
		return b.literal(parent, n, "bool")
	case "null_literal":
		return b.literal(parent, n, "null")

	case "field_access":
		field := n.ChildByFieldName("field")
		node := Node{Kind: KindExpr, Tag: TagAttribute}
		if field != nil {
			node.Name = b.text(field)
		}
		id := b.add(parent, n, node)
		if obj := n.ChildByFieldName("object"); obj != nil {
			b.lowerJava(obj, id)
		}
		return id

	case "array_access":
		id := b.add(parent, n, Node{Kind: KindExpr, Tag: TagSubscript})
		b.lowerJavaChildren(n, id)
		return id

	case "binary_expression":
		tag := TagBinary
		if isComparisonOp(b.operatorText(n)) {
			tag = TagCompare
		}
		id := b.add(parent, n, Node{Kind: KindExpr, Tag: tag, Name: b.operatorText(n)})
		b.lowerJavaChildren(n, id)
		return id

	case "unary_expression":
		id := b.add(parent, n, Node{Kind: KindExpr, Tag: TagUnary, Name: b.operatorText(n)})
		b.lowerJavaChildren(n, id)
		return id

	case "parenthesized_expression":
		id := b.add(parent, n, Node{Kind: KindExpr, Tag: TagGroup})
		b.lowerJavaChildren(n, id)
		return id

	case "block", "expression_statement", "class_body", "program":
		b.lowerJavaChildren(n, parent)
		return NoNode

	case "ERROR":
		return b.opaque(parent, n, "unparsed region")
	}

	b.lowerJavaChildren(n, parent)
	return NoNode
}

func (b *builder) lowerJavaClass(n *sitter.Node, parent NodeID) NodeID {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return b.opaque(parent, n, "type declaration without a name")
	}
	cls := Node{Kind: KindClass, Name: b.text(nameNode)}
	if super := n.ChildByFieldName("superclass"); super != nil {
		base := strings.TrimSpace(strings.TrimPrefix(b.text(super), "extends"))
		if base != "" {
			cls.Bases = append(cls.Bases, base)
		}
	}
	if ifaces := n.ChildByFieldName("interfaces"); ifaces != nil {
		eachNamedChild(ifaces, func(list *sitter.Node) {
			eachNamedChild(list, func(t *sitter.Node) {
				cls.Bases = append(cls.Bases, b.text(t))
			})
		})
	}
	id := b.add(parent, n, cls)
	if body := n.ChildByFieldName("body"); body != nil {
		b.lowerJavaChildren(body, id)
	}
	return id
}

func (b *builder) lowerJavaMethod(n *sitter.Node, parent NodeID) NodeID {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return b.opaque(parent, n, "method without a name")
	}
	fn := Node{Kind: KindFunction, Name: b.text(nameNode)}
	if typ := n.ChildByFieldName("type"); typ != nil {
		fn.ReturnHint = b.text(typ)
	}
	if cls := b.enclosingClassName(parent); cls != "" {
		fn.IsMethod = true
		fn.OwnerClass = cls
	}

	id := b.add(parent, n, fn)

	if params := n.ChildByFieldName("parameters"); params != nil {
		eachNamedChild(params, func(p *sitter.Node) {
			if p.Type() != "formal_parameter" && p.Type() != "spread_parameter" {
				return
			}
			nameChild := p.ChildByFieldName("name")
			if nameChild == nil {
				return
			}
			hint := ""
			if t := p.ChildByFieldName("type"); t != nil {
				hint = b.text(t)
			}
			pid := b.name(id, nameChild, hint)
			node := b.tree.Node(id)
			node.Params = append(node.Params, Param{Name: b.text(nameChild), TypeHint: hintOrUnknown(hint), Node: pid})
		})
	}

	if body := n.ChildByFieldName("body"); body != nil {
		before := len(b.tree.Node(id).Children)
		b.lowerJavaChildren(body, id)
		node := b.tree.Node(id)
		node.Body = append([]NodeID(nil), node.Children[before:]...)
	}
	return id
}

func (b *builder) lowerJavaInvocation(n *sitter.Node, parent NodeID) NodeID {
	id := b.add(parent, n, Node{Kind: KindCall, Callee: NoNode})

	nameNode := n.ChildByFieldName("name")
	objNode := n.ChildByFieldName("object")
	if objNode != nil && nameNode != nil {
		// obj.method(...) lowers the callee as an attribute access.
		attr := Node{Kind: KindExpr, Tag: TagAttribute, Name: b.text(nameNode)}
		attr.Span = nodeSpan(n)
		// Tighten the span to cover object..method only.
		attr.Span.EndByte = nameNode.EndByte()
		ep := nameNode.EndPoint()
		attr.Span.EndLine, attr.Span.EndCol = int(ep.Row)+1, int(ep.Column)
		attr.Parent = id
		callee := b.tree.Add(attr)
		b.tree.Node(id).Callee = callee
		b.lowerJava(objNode, callee)
	} else if nameNode != nil {
		callee := b.name(id, nameNode, "")
		b.tree.Node(id).Callee = callee
	}

	if args := n.ChildByFieldName("arguments"); args != nil {
		eachNamedChild(args, func(a *sitter.Node) {
			aid := b.lowerJava(a, id)
			if aid != NoNode {
				node := b.tree.Node(id)
				node.Args = append(node.Args, aid)
			}
		})
	}
	return id
}

func (b *builder) lowerJavaVarDecl(n *sitter.Node, parent NodeID) NodeID {
	typeHint := ""
	if t := n.ChildByFieldName("type"); t != nil {
		typeHint = b.text(t)
	}
	var last NodeID = NoNode
	eachNamedChild(n, func(c *sitter.Node) {
		if c.Type() != "variable_declarator" {
			return
		}
		id := b.add(parent, c, Node{Kind: KindAssignment, RHS: NoNode})
		if nameNode := c.ChildByFieldName("name"); nameNode != nil {
			tid := b.name(id, nameNode, typeHint)
			node := b.tree.Node(id)
			node.Targets = append(node.Targets, tid)
		}
		if value := c.ChildByFieldName("value"); value != nil {
			rid := b.lowerJava(value, id)
			b.tree.Node(id).RHS = rid
		}
		last = id
	})
	return last
}
