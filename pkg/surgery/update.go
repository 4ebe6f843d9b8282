// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package surgery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/scalpel/pkg/pir"
)

// Op selects the update operation.
type Op string

const (
	OpReplace Op = "replace"
	OpDelete  Op = "delete"
	OpRename  Op = "rename"
)

// ParseFunc parses code into PIR; the caller supplies the engine pipeline so
// updates validate against the same semantics every other tool sees.
type ParseFunc func(ctx context.Context, unit, code string) (*pir.Tree, error)

// ErrInvalidReplacement reports replacement code that does not parse on its
// own.
type ErrInvalidReplacement struct{ Cause error }

func (e *ErrInvalidReplacement) Error() string {
	return fmt.Sprintf("replacement code does not parse: %v", e.Cause)
}
func (e *ErrInvalidReplacement) Unwrap() error { return e.Cause }

// ErrWouldBreakFile reports a splice whose result no longer parses; no write
// happened.
type ErrWouldBreakFile struct{ Cause error }

func (e *ErrWouldBreakFile) Error() string {
	return fmt.Sprintf("update would leave the file unparsable: %v", e.Cause)
}
func (e *ErrWouldBreakFile) Unwrap() error { return e.Cause }

// UpdateRequest describes one symbol update.
type UpdateRequest struct {
	Path       string
	TargetType TargetType
	TargetName string
	Op         Op
	// NewCode is required for replace.
	NewCode string
	// NewName is required for rename.
	NewName string
	// Backup writes <path>.backup beside the file before rewriting.
	Backup bool
}

// UpdateResult reports a completed update.
type UpdateResult struct {
	Path       string `json:"path"`
	BackupPath string `json:"backup_path,omitempty"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
}

// Update applies a validated modification to one file. Either the file is
// fully rewritten (write-temp-then-rename) or nothing is touched. The
// modified content is re-parsed before the write; failure is atomic.
func Update(ctx context.Context, req UpdateRequest, parse ParseFunc) (*UpdateResult, error) {
	original, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, err
	}

	tree, err := parse(ctx, req.Path, string(original))
	if err != nil {
		return nil, err
	}

	id, err := findTarget(tree, req.TargetType, req.TargetName)
	if err != nil {
		return nil, err
	}
	node := tree.Node(id)
	start, end := int(node.Span.StartByte), int(node.Span.EndByte)

	var updated []byte
	switch req.Op {
	case OpReplace:
		// The replacement must parse standalone in the unit's language
		// before it is allowed anywhere near the file.
		if _, perr := parse(ctx, req.Path, dedent(req.NewCode)); perr != nil {
			return nil, &ErrInvalidReplacement{Cause: perr}
		}
		replacement := matchIndent(string(original[start:end]), req.NewCode)
		updated = splice(original, start, end, replacement)

	case OpDelete:
		cut := end
		if cut < len(original) && original[cut] == '\n' {
			cut++
		}
		updated = splice(original, start, cut, "")

	case OpRename:
		if req.NewName == "" {
			return nil, fmt.Errorf("rename requires new_name")
		}
		// Rewrite only the defining identifier.
		text := string(original[start:end])
		renamed := strings.Replace(text, req.TargetName, req.NewName, 1)
		if renamed == text {
			return nil, fmt.Errorf("definition of %q not found in its own span", req.TargetName)
		}
		updated = splice(original, start, end, renamed)

	default:
		return nil, fmt.Errorf("unknown operation %q", req.Op)
	}

	// Atomicity gate: the whole modified unit must still parse.
	if _, perr := parse(ctx, req.Path, string(updated)); perr != nil {
		return nil, &ErrWouldBreakFile{Cause: perr}
	}

	res := &UpdateResult{Path: req.Path, StartLine: node.Span.StartLine, EndLine: node.Span.EndLine}
	if req.Backup {
		backupPath := req.Path + ".backup"
		if err := os.WriteFile(backupPath, original, 0o644); err != nil {
			return nil, fmt.Errorf("write backup: %w", err)
		}
		res.BackupPath = backupPath
	}

	if err := writeAtomic(req.Path, updated); err != nil {
		return nil, err
	}
	return res, nil
}

func splice(src []byte, start, end int, replacement string) []byte {
	out := make([]byte, 0, len(src)-(end-start)+len(replacement))
	out = append(out, src[:start]...)
	out = append(out, replacement...)
	out = append(out, src[end:]...)
	return out
}

// writeAtomic writes through a temp file in the target directory followed by
// rename, so readers never observe a half-written unit.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".scalpel-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode())
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// matchIndent re-indents replacement code to the original definition's
// leading whitespace, so methods spliced into classes keep their column.
func matchIndent(original, replacement string) string {
	indent := ""
	for _, r := range original {
		if r == ' ' || r == '\t' {
			indent += string(r)
		} else {
			break
		}
	}
	replacement = strings.TrimRight(dedent(replacement), "\n")
	if indent == "" {
		return replacement
	}
	lines := strings.Split(replacement, "\n")
	for i, line := range lines {
		if i == 0 || line == "" {
			continue
		}
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

// dedent strips the common leading whitespace of non-empty lines.
func dedent(code string) string {
	lines := strings.Split(code, "\n")
	common := -1
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		lead := len(line) - len(trimmed)
		if common == -1 || lead < common {
			common = lead
		}
	}
	if common <= 0 {
		return code
	}
	for i, line := range lines {
		if len(line) >= common {
			lines[i] = line[common:]
		}
	}
	return strings.Join(lines, "\n")
}
