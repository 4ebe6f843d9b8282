// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"

	"github.com/kraklabs/scalpel/pkg/engine"
	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/surgery"
)

type updateArgs struct {
	Path       string `json:"path"`
	TargetType string `json:"target_type"`
	TargetName string `json:"target_name"`
	NewCode    string `json:"new_code"`
	NewName    string `json:"new_name"`
	Operation  string `json:"operation"`
	Backup     bool   `json:"backup"`
}

// parseFor builds the surgery ParseFunc over the engine pipeline in strict
// mode: updates must never validate against sanitized text silently.
func (d *Dispatcher) parseFor(language string) surgery.ParseFunc {
	return func(ctx context.Context, unit, code string) (*pir.Tree, error) {
		ua, err := d.eng.AnalyzeSource(ctx, unit, code, engine.ParseOptions{Language: language})
		if err != nil {
			return nil, err
		}
		return ua.Tree, nil
	}
}

func (d *Dispatcher) updateSymbol(c *Call, raw json.RawMessage) (any, error) {
	var args updateArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.Path == "" || args.TargetName == "" {
		return nil, argError("update_symbol requires path, target_type and target_name")
	}
	op := surgery.Op(args.Operation)
	if op == "" {
		op = surgery.OpReplace
	}
	switch op {
	case surgery.OpReplace:
		if args.NewCode == "" {
			return nil, argError("replace requires new_code")
		}
	case surgery.OpDelete, surgery.OpRename:
	default:
		return nil, argError("operation must be replace, delete or rename")
	}

	abs, err := d.resolvePath(args.Path)
	if err != nil {
		return nil, err
	}

	res, err := surgery.Update(c.Ctx, surgery.UpdateRequest{
		Path:       abs,
		TargetType: surgery.TargetType(args.TargetType),
		TargetName: args.TargetName,
		Op:         op,
		NewCode:    args.NewCode,
		NewName:    args.NewName,
		Backup:     args.Backup,
	}, d.parseFor(""))
	if err != nil {
		var notFound *surgery.ErrNotFound
		if stderrors.As(err, &notFound) {
			if data, rerr := os.ReadFile(abs); rerr == nil {
				if ua, aerr := d.analyzeUnit(c, string(data), "", "", args.Path); aerr == nil {
					return nil, d.withCorrections(err, ua.Tree, args.TargetName)
				}
			}
		}
		return nil, err
	}
	return res, nil
}

type renameArgs struct {
	Path       string `json:"path"`
	TargetType string `json:"target_type"`
	TargetName string `json:"target_name"`
	NewName    string `json:"new_name"`
	Backup     bool   `json:"backup"`
}

// renameSymbol rewrites only the defining identifier. A project-wide rename
// composes get_symbol_references with per-file update_symbol calls at the
// caller's discretion; cross-file updates are not atomic.
func (d *Dispatcher) renameSymbol(c *Call, raw json.RawMessage) (any, error) {
	var args renameArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.Path == "" || args.NewName == "" {
		return nil, argError("rename_symbol requires path, target_name and new_name")
	}
	abs, err := d.resolvePath(args.Path)
	if err != nil {
		return nil, err
	}
	return surgery.Update(c.Ctx, surgery.UpdateRequest{
		Path:       abs,
		TargetType: surgery.TargetType(args.TargetType),
		TargetName: args.TargetName,
		Op:         surgery.OpRename,
		NewName:    args.NewName,
		Backup:     args.Backup,
	}, d.parseFor(""))
}
