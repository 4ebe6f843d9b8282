// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"encoding/json"
	"os"

	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/surgery"
	"github.com/kraklabs/scalpel/pkg/symbolic"
)

type symbolicArgs struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	// Function narrows exploration to one function; empty explores the
	// first function in the unit.
	Function string `json:"function"`
	MaxPaths int    `json:"max_paths"`
	MaxDepth int    `json:"max_depth"`
}

func (d *Dispatcher) symbolicExecute(c *Call, raw json.RawMessage) (any, error) {
	var args symbolicArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.Code == "" {
		return nil, argError("symbolic_execute requires code")
	}

	ua, err := d.analyzeUnit(c, args.Code, args.Language, "", "inline")
	if err != nil {
		return nil, err
	}

	fnID, err := d.pickFunction(ua.Tree, args.Function)
	if err != nil {
		return nil, d.withCorrections(err, ua.Tree, args.Function)
	}

	maxPaths := args.MaxPaths
	if maxPaths <= 0 || (c.Limits.MaxPaths > 0 && maxPaths > c.Limits.MaxPaths) {
		maxPaths = c.Limits.MaxPaths
	}
	maxDepth := args.MaxDepth
	if maxDepth <= 0 || (c.Limits.MaxDepth > 0 && maxDepth > c.Limits.MaxDepth) {
		maxDepth = c.Limits.MaxDepth
	}

	res := symbolic.Execute(ua.Tree, fnID, symbolic.Options{
		MaxPaths:      maxPaths,
		MaxDepth:      maxDepth,
		MaxLoopUnroll: c.Limits.MaxLoopUnroll,
	})
	if res.Truncated {
		c.MarkTruncated("max_paths")
	}
	return res, nil
}

func (d *Dispatcher) pickFunction(tree *pir.Tree, name string) (pir.NodeID, error) {
	fns := tree.FindAll(pir.KindFunction)
	if name == "" {
		if len(fns) == 0 {
			return pir.NoNode, &surgery.ErrNotFound{Name: "<any>", Type: surgery.TargetFunction}
		}
		return fns[0], nil
	}
	for _, id := range fns {
		if tree.Node(id).Name == name {
			return id, nil
		}
	}
	return pir.NoNode, &surgery.ErrNotFound{Name: name, Type: surgery.TargetFunction}
}

type testGenArgs struct {
	Code      string `json:"code"`
	Path      string `json:"path"`
	Language  string `json:"language"`
	Function  string `json:"function"`
	Framework string `json:"framework"`
	MaxPaths  int    `json:"max_paths"`
}

func (d *Dispatcher) generateUnitTests(c *Call, raw json.RawMessage) (any, error) {
	var args testGenArgs
	if err := json.Unmarshal(raw, &args); err != nil || (args.Code == "" && args.Path == "") {
		return nil, argError("generate_unit_tests requires code or a path")
	}

	code := args.Code
	unit := "inline"
	if code == "" {
		abs, err := d.resolvePath(args.Path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, err
		}
		code = string(data)
		unit = args.Path
	}

	ua, err := d.analyzeUnit(c, code, args.Language, "", unit)
	if err != nil {
		return nil, err
	}
	fnID, err := d.pickFunction(ua.Tree, args.Function)
	if err != nil {
		return nil, d.withCorrections(err, ua.Tree, args.Function)
	}

	maxPaths := args.MaxPaths
	if maxPaths <= 0 || (c.Limits.MaxPaths > 0 && maxPaths > c.Limits.MaxPaths) {
		maxPaths = c.Limits.MaxPaths
	}
	res := symbolic.Execute(ua.Tree, fnID, symbolic.Options{
		MaxPaths:      maxPaths,
		MaxDepth:      c.Limits.MaxDepth,
		MaxLoopUnroll: c.Limits.MaxLoopUnroll,
	})
	if res.Truncated {
		c.MarkTruncated("max_paths")
	}

	framework := symbolic.Framework(args.Framework)
	if framework == "" {
		switch ua.Language {
		case "javascript", "typescript":
			framework = symbolic.FrameworkJest
		case "java":
			framework = symbolic.FrameworkJUnit
		default:
			framework = symbolic.FrameworkPytest
		}
	}
	return symbolic.GenerateTests(res, framework), nil
}
