// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"context"

	"github.com/kraklabs/scalpel/pkg/cache"
	"github.com/kraklabs/scalpel/pkg/engine"
)

// project returns the snapshot for a root through the analysis cache, keyed
// by the crawl's content digest. A source change produces a new key, so
// stale snapshots age out of the LRU instead of being mutated; concurrent
// callers for the same uncached root serialize on the key and the second
// reuses the first's snapshot.
func (d *Dispatcher) project(ctx context.Context, root string, progress ProgressFunc) (*engine.Project, error) {
	snap, err := d.eng.TakeSnapshot(ctx, root)
	if err != nil {
		return nil, err
	}

	key := cache.Key("project.v1", root, snap.Digest())
	entry, err := d.eng.Cache().GetOrCompute(key, func() (*cache.Entry, error) {
		proj, err := d.eng.LoadProject(ctx, root, engine.ProgressFunc(progress))
		if err != nil {
			return nil, err
		}
		return &cache.Entry{Value: proj}, nil
	})
	if err != nil {
		return nil, err
	}
	return entry.Value.(*engine.Project), nil
}
