// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package sanitize normalizes "dirty" source text (merge-conflict markers,
// template fragments) into something a language parser accepts.
//
// Line numbers are preserved: removed lines are replaced by comment lines, so
// spans reported by downstream analyses keep pointing at the submitted text.
package sanitize

import (
	"strings"
	"unicode/utf8"

	"github.com/kraklabs/scalpel/pkg/lang"
)

// Mode selects sanitizer behavior.
type Mode string

const (
	// ModeStrict returns input unchanged; parse failures surface verbatim.
	ModeStrict Mode = "strict"
	// ModePermissive rewrites conflict markers and template syntax.
	ModePermissive Mode = "permissive"
)

// Policy configures one sanitization pass.
type Policy struct {
	Mode                Mode `yaml:"mode" json:"mode"`
	AllowMergeConflicts bool `yaml:"allow_merge_conflicts" json:"allow_merge_conflicts"`
	AllowTemplates      bool `yaml:"allow_templates" json:"allow_templates"`
	ReportModifications bool `yaml:"report_modifications" json:"report_modifications"`
}

// DefaultPolicy is permissive with full reporting.
func DefaultPolicy() Policy {
	return Policy{
		Mode:                ModePermissive,
		AllowMergeConflicts: true,
		AllowTemplates:      true,
		ReportModifications: true,
	}
}

// Change records one sanitizer rewrite. Line is 1-based.
type Change struct {
	Line        int    `json:"line"`
	Reason      string `json:"reason"`
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
}

// Report describes what a sanitization pass did. It is carried forward on
// every downstream analysis so callers can see that the analyzed text differs
// from the submitted text.
type Report struct {
	Modified bool     `json:"modified"`
	Changes  []Change `json:"changes,omitempty"`
}

// ErrNotUTF8 signals non-UTF-8 input; the caller maps it to encoding_error.
type ErrNotUTF8 struct{ Offset int }

func (e *ErrNotUTF8) Error() string { return "input is not valid UTF-8" }

const markerComment = "scalpel: removed "

var conflictMarkers = []string{"<<<<<<<", "=======", ">>>>>>>"}

func isConflictMarker(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	for _, m := range conflictMarkers {
		if strings.HasPrefix(trimmed, m) {
			return true
		}
	}
	return false
}

func isTemplateBlock(line string) bool {
	trimmed := strings.TrimSpace(line)
	return (strings.HasPrefix(trimmed, "{%") && strings.HasSuffix(trimmed, "%}")) ||
		(strings.HasPrefix(trimmed, "{#") && strings.HasSuffix(trimmed, "#}"))
}

// Sanitize applies the policy to text. The returned report is never nil.
// Sanitize is idempotent: applying it to its own output is a no-op.
func Sanitize(text, language string, p Policy) (string, *Report, error) {
	if !utf8.ValidString(text) {
		for i := 0; i < len(text); {
			r, size := utf8.DecodeRuneInString(text[i:])
			if r == utf8.RuneError && size == 1 {
				return "", nil, &ErrNotUTF8{Offset: i}
			}
			i += size
		}
		return "", nil, &ErrNotUTF8{}
	}

	report := &Report{}
	if p.Mode == ModeStrict {
		return text, report, nil
	}

	comment := lang.CommentPrefix(language)
	neutral := lang.NeutralLiteral(language)

	lines := strings.Split(text, "\n")
	out := make([]string, len(lines))
	for i, line := range lines {
		switch {
		case p.AllowMergeConflicts && isConflictMarker(line):
			replacement := comment + " " + markerComment + "merge conflict marker"
			out[i] = replacement
			report.Changes = append(report.Changes, Change{
				Line: i + 1, Reason: "merge conflict marker", Original: line, Replacement: replacement,
			})
		case p.AllowTemplates && isTemplateBlock(line):
			replacement := comment + " " + markerComment + "template block"
			out[i] = replacement
			report.Changes = append(report.Changes, Change{
				Line: i + 1, Reason: "template block", Original: line, Replacement: replacement,
			})
		case p.AllowTemplates && strings.Contains(line, "{{"):
			replaced := replaceTemplateExprs(line, neutral)
			out[i] = replaced
			if replaced != line {
				report.Changes = append(report.Changes, Change{
					Line: i + 1, Reason: "template expression", Original: line, Replacement: replaced,
				})
			}
		default:
			out[i] = line
		}
	}

	report.Modified = len(report.Changes) > 0
	if !p.ReportModifications {
		report.Changes = nil
	}
	return strings.Join(out, "\n"), report, nil
}

// replaceTemplateExprs substitutes every {{ ... }} with the neutral literal.
func replaceTemplateExprs(line, neutral string) string {
	var b strings.Builder
	for {
		start := strings.Index(line, "{{")
		if start < 0 {
			b.WriteString(line)
			return b.String()
		}
		end := strings.Index(line[start:], "}}")
		if end < 0 {
			b.WriteString(line)
			return b.String()
		}
		b.WriteString(line[:start])
		b.WriteString(neutral)
		line = line[start+end+2:]
	}
}
