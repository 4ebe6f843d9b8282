// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pdg

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kraklabs/scalpel/pkg/pir"
)

// UnitID generates a deterministic id for a source unit. Short paths are
// used verbatim; long paths hash.
func UnitID(unit string) string {
	normalized := normalizePath(unit)
	if len(normalized) <= 256 {
		return "unit:" + normalized
	}
	sum := sha256.Sum256([]byte(normalized))
	return "unit:" + hex.EncodeToString(sum[:16])
}

// FunctionID generates a deterministic id for a function node. The full span
// (lines and columns) participates so same-named functions on the same lines
// stay distinct.
func FunctionID(unit, name string, span pir.Span) string {
	idStr := fmt.Sprintf("%s|%s|%d|%d|%d|%d",
		normalizePath(unit), name, span.StartLine, span.EndLine, span.StartCol, span.EndCol)
	sum := sha256.Sum256([]byte(idStr))
	return "func:" + hex.EncodeToString(sum[:])
}

// PDGNodeID generates a stable cross-graph key for one PDG node.
func PDGNodeID(g *Graph, id int) string {
	n := g.Nodes[id]
	return fmt.Sprintf("%s#%s#%d:%d-%d:%d#%s/%s",
		UnitID(g.Unit), g.Fn,
		n.Span.StartLine, n.Span.StartCol, n.Span.EndLine, n.Span.EndCol,
		n.Kind, n.Var)
}

func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "./")
	return filepath.ToSlash(filepath.Clean(p))
}
