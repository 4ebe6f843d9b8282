// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package engine

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/kraklabs/scalpel/pkg/lang"
)

// crawlFile is one file selected by the project crawl.
type crawlFile struct {
	Path     string // relative to root, slash-separated
	FullPath string
	Size     int64
	Language string
}

// crawl walks root collecting supported source files. Exclusion globs match
// any path segment; oversized and unsupported files are counted under skip
// reasons. Symlinks are skipped unless FollowSymlinks is set; with it set,
// symlinked files are read but symlinked directories are not descended. The
// context is checked after each directory entry.
func (e *Engine) crawl(ctx context.Context, root string) ([]crawlFile, map[string]int, error) {
	var files []crawlFile
	skipped := map[string]int{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if e.excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			skipped["excluded"]++
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !e.cfg.FollowSymlinks {
			skipped["symlink"]++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		language := lang.FromPath(rel)
		if language == "" {
			skipped["unsupported_language"]++
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			skipped["unreadable"]++
			return nil
		}
		if info.Size() > e.cfg.MaxFileSize {
			skipped["too_large"]++
			return nil
		}

		files = append(files, crawlFile{Path: rel, FullPath: path, Size: info.Size(), Language: language})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return files, skipped, nil
}

// excluded matches a relative path against the configured globs; a pattern
// with no separator matches any single segment.
func (e *Engine) excluded(rel string) bool {
	segments := strings.Split(rel, "/")
	for _, pattern := range e.cfg.ExcludeGlobs {
		if strings.ContainsRune(pattern, '/') {
			if ok, _ := filepath.Match(pattern, rel); ok {
				return true
			}
			continue
		}
		for _, seg := range segments {
			if ok, _ := filepath.Match(pattern, seg); ok {
				return true
			}
		}
	}
	return false
}
