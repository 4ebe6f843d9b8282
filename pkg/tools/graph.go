// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"encoding/json"
	"sort"

	"github.com/kraklabs/scalpel/internal/errors"
	"github.com/kraklabs/scalpel/pkg/pdg"
	"github.com/kraklabs/scalpel/pkg/query"
	"github.com/kraklabs/scalpel/pkg/symbols"
)

type callGraphArgs struct {
	ProjectRoot string `json:"project_root"`
	EntryPoint  string `json:"entry_point"`
	Depth       int    `json:"depth"`
}

// CallGraphData is the get_call_graph payload.
type CallGraphData struct {
	Nodes     []pdg.CGNode   `json:"nodes"`
	Edges     []pdg.CallEdge `json:"edges"`
	Diagram   string         `json:"diagram"`
	Truncated bool           `json:"truncated"`
}

func (d *Dispatcher) getCallGraph(c *Call, raw json.RawMessage) (any, error) {
	var args callGraphArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.ProjectRoot == "" {
		return nil, argError("get_call_graph requires project_root")
	}
	abs, err := d.resolvePath(args.ProjectRoot)
	if err != nil {
		return nil, err
	}
	proj, err := d.project(c.Ctx, abs, c.Progress)
	if err != nil {
		return nil, err
	}

	cg := proj.Calls
	if args.EntryPoint != "" {
		// Restrict to the entry point's forward neighborhood.
		matches := query.ResolveSymbol(proj.Table, args.EntryPoint)
		if len(matches) == 0 {
			return nil, d.symbolNotFound(proj.Table, args.EntryPoint)
		}
		depth := args.Depth
		if depth <= 0 {
			depth = c.Limits.MaxDepth
		}
		sub := query.Neighborhood(cg, matches[0].QualifiedName, depth, query.DirOut, c.Limits.MaxNodes, 0)
		if sub.Truncated {
			c.MarkTruncated("max_nodes")
		}
		restricted := &pdg.CallGraph{Nodes: map[string]*pdg.CGNode{}}
		for i := range sub.Nodes {
			n := sub.Nodes[i]
			restricted.Nodes[n.Symbol] = &n
		}
		restricted.Edges = sub.Edges
		restricted.Canonicalize()
		return &CallGraphData{
			Nodes:     sub.Nodes,
			Edges:     sub.Edges,
			Diagram:   restricted.Mermaid(),
			Truncated: sub.Truncated,
		}, nil
	}

	data := &CallGraphData{Diagram: cg.Mermaid()}
	for _, name := range sortedNodeKeys(cg) {
		if c.Limits.MaxNodes > 0 && len(data.Nodes) >= c.Limits.MaxNodes {
			c.MarkTruncated("max_nodes")
			data.Truncated = true
			break
		}
		data.Nodes = append(data.Nodes, *cg.Nodes[name])
	}
	data.Edges = cg.Edges
	return data, nil
}

func sortedNodeKeys(cg *pdg.CallGraph) []string {
	keys := make([]string, 0, len(cg.Nodes))
	for k := range cg.Nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *Dispatcher) symbolNotFound(table *symbols.Table, name string) error {
	suggestions := table.Suggest(name, correctionThreshold, 5)
	if len(suggestions) == 0 {
		return errors.NewAnalysis(errors.KindSymbolNotFound, "no symbol named "+name)
	}
	ae := errors.NewAnalysis(errors.KindCorrectionNeeded, "no symbol named "+name).
		WithSuggestion("did you mean " + suggestions[0].Symbol + "?")
	for _, s := range suggestions {
		ae.Suggestions = append(ae.Suggestions, errors.Suggestion{Symbol: s.Symbol, Score: s.Score, Reason: s.Reason})
	}
	return ae
}

type neighborhoodArgs struct {
	ProjectRoot   string  `json:"project_root"`
	CenterID      string  `json:"center_id"`
	K             int     `json:"k"`
	Direction     string  `json:"direction"`
	MaxNodes      int     `json:"max_nodes"`
	MinConfidence float64 `json:"min_confidence"`
}

func (d *Dispatcher) getGraphNeighborhood(c *Call, raw json.RawMessage) (any, error) {
	var args neighborhoodArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.CenterID == "" {
		return nil, argError("get_graph_neighborhood requires center_id")
	}
	root := args.ProjectRoot
	if root == "" {
		root = "."
	}
	abs, err := d.resolvePath(root)
	if err != nil {
		return nil, err
	}
	proj, err := d.project(c.Ctx, abs, c.Progress)
	if err != nil {
		return nil, err
	}

	matches := query.ResolveSymbol(proj.Table, args.CenterID)
	if len(matches) == 0 {
		return nil, d.symbolNotFound(proj.Table, args.CenterID)
	}

	dir := query.Direction(args.Direction)
	switch dir {
	case query.DirIn, query.DirOut, query.DirBoth:
	case "":
		dir = query.DirBoth
	default:
		return nil, argError("direction must be in, out or both")
	}
	k := args.K
	if k <= 0 {
		k = 1
	}
	maxNodes := args.MaxNodes
	if maxNodes <= 0 || (c.Limits.MaxNodes > 0 && maxNodes > c.Limits.MaxNodes) {
		maxNodes = c.Limits.MaxNodes
	}

	sub := query.Neighborhood(proj.Calls, matches[0].QualifiedName, k, dir, maxNodes, args.MinConfidence)
	if sub.Truncated {
		c.MarkTruncated("max_nodes")
	}
	return sub, nil
}

type referencesArgs struct {
	Name        string `json:"name"`
	ProjectRoot string `json:"project_root"`
	ScopeFilter string `json:"scope_filter"`
}

// ReferencesData is the get_symbol_references payload.
type ReferencesData struct {
	Symbol     string            `json:"symbol"`
	References []query.Reference `json:"references"`
	Truncated  bool              `json:"truncated"`
}

func (d *Dispatcher) getSymbolReferences(c *Call, raw json.RawMessage) (any, error) {
	var args referencesArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.Name == "" {
		return nil, argError("get_symbol_references requires a name")
	}
	root := args.ProjectRoot
	if root == "" {
		root = "."
	}
	abs, err := d.resolvePath(root)
	if err != nil {
		return nil, err
	}
	proj, err := d.project(c.Ctx, abs, c.Progress)
	if err != nil {
		return nil, err
	}

	matches := query.ResolveSymbol(proj.Table, args.Name)
	if len(matches) == 0 {
		return nil, d.symbolNotFound(proj.Table, args.Name)
	}

	refs := query.References(proj.Trees(), matches[0].QualifiedName, args.ScopeFilter)
	data := &ReferencesData{Symbol: matches[0].QualifiedName, References: refs}
	if c.Limits.MaxNodes > 0 && len(refs) > c.Limits.MaxNodes {
		data.References = refs[:c.Limits.MaxNodes]
		data.Truncated = true
		c.MarkTruncated("max_nodes")
	}
	return data, nil
}

type projectMapArgs struct {
	ProjectRoot string `json:"project_root"`
	TopN        int    `json:"top_n"`
}

func (d *Dispatcher) getProjectMap(c *Call, raw json.RawMessage) (any, error) {
	var args projectMapArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.ProjectRoot == "" {
		return nil, argError("get_project_map requires project_root")
	}
	abs, err := d.resolvePath(args.ProjectRoot)
	if err != nil {
		return nil, err
	}
	proj, err := d.project(c.Ctx, abs, c.Progress)
	if err != nil {
		return nil, err
	}
	pm := query.BuildProjectMap(proj.Trees(), proj.Table, proj.Calls, args.TopN, c.Limits.MaxFiles)
	if pm.Truncated {
		c.MarkTruncated("max_files")
	}
	return pm, nil
}
