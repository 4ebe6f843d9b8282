// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/scalpel/pkg/frontend"
	"github.com/kraklabs/scalpel/pkg/pdg"
	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/symbols"
)

// Project is an immutable analysis snapshot of a source tree: per-unit IR,
// the symbol table, per-function PDGs and the project call graph, keyed by a
// content fingerprint. It is rebuilt on source change, never mutated.
type Project struct {
	Root        string
	Fingerprint string
	Units       []string
	Analyses    map[string]*UnitAnalysis
	Table       *symbols.Table
	PDGs        map[string]*pdg.Graph
	Calls       *pdg.CallGraph
	Skipped     map[string]int
}

// Trees returns the per-unit IR map (shared read-only handles).
func (p *Project) Trees() map[string]*pir.Tree {
	out := make(map[string]*pir.Tree, len(p.Analyses))
	for u, a := range p.Analyses {
		out[u] = a.Tree
	}
	return out
}

// FunctionPDG returns the dependence graph of a function symbol.
func (p *Project) FunctionPDG(qualified string) *pdg.Graph {
	return p.PDGs[qualified]
}

// GetFunctionIR returns a function's IR node plus its PDG, the hook consumed
// by the symbolic-execution collaborator.
func (p *Project) GetFunctionIR(qualified string) (*pir.Tree, pir.NodeID, *pdg.Graph, error) {
	sym := p.Table.Lookup(qualified)
	if sym == nil || (sym.Kind != symbols.KindFunction && sym.Kind != symbols.KindMethod) {
		return nil, pir.NoNode, nil, fmt.Errorf("no function symbol %q", qualified)
	}
	a := p.Analyses[sym.Unit]
	if a == nil {
		return nil, pir.NoNode, nil, fmt.Errorf("unit %q not analyzed", sym.Unit)
	}
	return a.Tree, sym.Node, p.PDGs[qualified], nil
}

// ProgressFunc receives crawl progress. It must not block; the engine calls
// it from worker goroutines.
type ProgressFunc func(stage string, done, total int)

// LoadProject crawls root, parses every supported file and assembles the
// snapshot. The context is checked between files; cancellation returns
// ctx.Err() with no partial snapshot.
func (e *Engine) LoadProject(ctx context.Context, root string, progress ProgressFunc) (*Project, error) {
	started := time.Now()
	files, skipped, err := e.crawl(ctx, root)
	if err != nil {
		return nil, err
	}

	proj := &Project{
		Root:     root,
		Analyses: make(map[string]*UnitAnalysis, len(files)),
		Skipped:  skipped,
	}

	// Parse in parallel with a bounded pool; each worker polls cancellation
	// between files.
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	var done int
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(f.FullPath)
			if err != nil {
				return fmt.Errorf("read %s: %w", f.Path, err)
			}
			ua, err := e.AnalyzeSource(gctx, f.Path, string(data), ParseOptions{
				Language:      f.Language,
				AcceptPartial: true,
			})
			mu.Lock()
			defer mu.Unlock()
			done++
			if progress != nil {
				progress("parse", done, len(files))
			}
			if err != nil {
				// A file that fails to parse is skipped, not fatal for the
				// project snapshot.
				var perr *frontend.ParseError
				if asParseError(err, &perr) {
					skipped["parse_error"]++
					e.logger.Warn("project.parse_error", "unit", f.Path, "line", perr.Line)
					return nil
				}
				skipped["unreadable"]++
				e.logger.Warn("project.skip", "unit", f.Path, "err", err)
				return nil
			}
			proj.Analyses[f.Path] = ua
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for u := range proj.Analyses {
		proj.Units = append(proj.Units, u)
	}
	sort.Strings(proj.Units)

	trees := proj.Trees()
	proj.Table = symbols.Build(trees)
	proj.Calls = pdg.BuildCallGraph(trees, proj.Table)

	proj.PDGs = make(map[string]*pdg.Graph)
	for _, unit := range proj.Units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tree := trees[unit]
		for _, sym := range proj.Table.InUnit(unit) {
			if sym.Kind != symbols.KindFunction && sym.Kind != symbols.KindMethod {
				continue
			}
			proj.PDGs[sym.QualifiedName] = pdg.Build(tree, sym.Node, sym.QualifiedName)
		}
	}

	proj.Fingerprint = fingerprint(proj)
	projectLoadDuration.Observe(time.Since(started).Seconds())
	e.logger.Info("project.loaded",
		"root", root,
		"units", len(proj.Units),
		"functions", len(proj.PDGs),
		"fingerprint", proj.Fingerprint[:12],
	)
	return proj, nil
}

func asParseError(err error, target **frontend.ParseError) bool {
	pe, ok := err.(*frontend.ParseError)
	if ok {
		*target = pe
	}
	return ok
}

// fingerprint digests the sorted unit list with each unit's source bytes.
func fingerprint(p *Project) string {
	h := sha256.New()
	for _, u := range p.Units {
		h.Write([]byte(u))
		h.Write([]byte{0})
		h.Write(p.Analyses[u].Tree.Source)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
