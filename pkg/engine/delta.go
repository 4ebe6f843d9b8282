// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sort"
)

// Snapshot records per-file content digests of a crawl, used to detect what
// changed between two project loads without re-parsing.
type Snapshot struct {
	Root  string            `json:"root"`
	Files map[string]string `json:"files"` // relative path -> sha256
}

// Digest summarizes the snapshot's content state: a SHA-256 over the sorted
// (path, content hash) pairs, usable as a cache-key component.
func (s *Snapshot) Digest() string {
	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{'='})
		h.Write([]byte(s.Files[p]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Delta lists the differences between two snapshots.
type Delta struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// Empty reports whether nothing changed.
func (d *Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0
}

// TakeSnapshot crawls root and digests every selected file.
func (e *Engine) TakeSnapshot(ctx context.Context, root string) (*Snapshot, error) {
	files, _, err := e.crawl(ctx, root)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Root: root, Files: make(map[string]string, len(files))}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(f.FullPath)
		if err != nil {
			continue
		}
		sum := sha256.Sum256(data)
		snap.Files[f.Path] = hex.EncodeToString(sum[:])
	}
	return snap, nil
}

// Diff computes the change set from prev to next. A nil prev marks
// everything added.
func Diff(prev, next *Snapshot) *Delta {
	d := &Delta{}
	if prev == nil {
		for p := range next.Files {
			d.Added = append(d.Added, p)
		}
		sort.Strings(d.Added)
		return d
	}
	for p, digest := range next.Files {
		old, ok := prev.Files[p]
		switch {
		case !ok:
			d.Added = append(d.Added, p)
		case old != digest:
			d.Modified = append(d.Modified, p)
		}
	}
	for p := range prev.Files {
		if _, ok := next.Files[p]; !ok {
			d.Removed = append(d.Removed, p)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Modified)
	sort.Strings(d.Removed)
	return d
}
