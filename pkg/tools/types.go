// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package tools is the dispatcher: it binds the named operations to the
// engine, enforces per-call limits and path safety, and shapes every result
// into the canonical response envelope.
package tools

import (
	"encoding/json"

	"github.com/kraklabs/scalpel/internal/errors"
	"github.com/kraklabs/scalpel/pkg/sanitize"
)

// Limits caps one call's result sizes. Unset fields take engine defaults;
// values exceeding the caller's tier are clamped.
type Limits struct {
	MaxFindings   int `json:"max_findings,omitempty"`
	MaxFiles      int `json:"max_files,omitempty"`
	MaxNodes      int `json:"max_nodes,omitempty"`
	MaxDepth      int `json:"max_depth,omitempty"`
	MaxPaths      int `json:"max_paths,omitempty"`
	MaxLoopUnroll int `json:"max_loop_unroll,omitempty"`
}

// clampTo caps every field against the tier's ceiling; zero fields take the
// supplied defaults.
func (l Limits) clampTo(tier, defaults Limits) Limits {
	pick := func(requested, ceiling, fallback int) int {
		v := requested
		if v <= 0 {
			v = fallback
		}
		if ceiling > 0 && v > ceiling {
			v = ceiling
		}
		return v
	}
	return Limits{
		MaxFindings:   pick(l.MaxFindings, tier.MaxFindings, defaults.MaxFindings),
		MaxFiles:      pick(l.MaxFiles, tier.MaxFiles, defaults.MaxFiles),
		MaxNodes:      pick(l.MaxNodes, tier.MaxNodes, defaults.MaxNodes),
		MaxDepth:      pick(l.MaxDepth, tier.MaxDepth, defaults.MaxDepth),
		MaxPaths:      pick(l.MaxPaths, tier.MaxPaths, defaults.MaxPaths),
		MaxLoopUnroll: pick(l.MaxLoopUnroll, tier.MaxLoopUnroll, defaults.MaxLoopUnroll),
	}
}

// ErrorBody is the envelope's error payload.
type ErrorBody struct {
	Kind       errors.Kind    `json:"kind"`
	Message    string         `json:"message"`
	Location   string         `json:"location,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Metadata rides on every response.
type Metadata struct {
	RequestID        string           `json:"request_id"`
	DurationMS       int64            `json:"duration_ms"`
	Tier             string           `json:"tier"`
	Version          string           `json:"version"`
	TruncatedByLimit string           `json:"truncated_by_limit,omitempty"`
	Sanitization     *sanitize.Report `json:"sanitization,omitempty"`
	PartialParse     bool             `json:"partial_parse,omitempty"`
}

// Response is the canonical envelope. Its shape is stable and does not vary
// by language or operation.
type Response struct {
	Success  bool       `json:"success"`
	Data     any        `json:"data"`
	Error    *ErrorBody `json:"error"`
	Metadata Metadata   `json:"metadata"`
}

// Request is one inbound operation call.
type Request struct {
	RequestID string          `json:"id,omitempty"`
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args,omitempty"`
	Limits    *Limits         `json:"limits,omitempty"`
	Tier      string          `json:"tier,omitempty"`
}

// AuditEvent is handed to the audit callback after every dispatch. The
// callback belongs to an external collaborator; the core only invokes it.
type AuditEvent struct {
	RequestID string `json:"request_id"`
	Operation string `json:"operation"`
	Tier      string `json:"tier"`
	Success   bool   `json:"success"`
	ErrorKind string `json:"error_kind,omitempty"`
	Duration  int64  `json:"duration_ms"`
}

// ProgressFunc receives long-operation progress (files scanned, nodes
// visited). It is invoked from worker goroutines and must not block.
type ProgressFunc func(stage string, done, total int)
