// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/scalpel/internal/contract"
	"github.com/kraklabs/scalpel/internal/errors"
	"github.com/kraklabs/scalpel/pkg/depscan"
	"github.com/kraklabs/scalpel/pkg/engine"
	"github.com/kraklabs/scalpel/pkg/sanitize"
	"github.com/kraklabs/scalpel/pkg/taint"
)

// Call carries per-dispatch state into a handler.
type Call struct {
	Ctx      context.Context
	Limits   Limits
	Progress ProgressFunc

	limitHit     string
	sanitization *sanitize.Report
	partialParse bool
}

// MarkTruncated records which limit truncated the result, surfaced as
// metadata.truncated_by_limit.
func (c *Call) MarkTruncated(limit string) {
	if c.limitHit == "" {
		c.limitHit = limit
	}
}

// attachUnit forwards a unit's sanitization report and partial-parse flag
// into the metadata, so callers always see that the analyzed text differs
// from the submitted text.
func (c *Call) attachUnit(ua *engine.UnitAnalysis) {
	if ua == nil {
		return
	}
	if ua.Report != nil && ua.Report.Modified {
		c.sanitization = ua.Report
	}
	if ua.Partial {
		c.partialParse = true
	}
}

// HandlerFunc implements one operation.
type HandlerFunc func(c *Call, args json.RawMessage) (any, error)

// Options configure dispatcher construction.
type Options struct {
	// Version is reported in every response's metadata.
	Version string
	// Tiers maps tier names to limit ceilings; the registry is immutable
	// after construction. Missing tiers resolve to the "community" entry.
	Tiers map[string]Limits
	// Audit, when set, receives one event per dispatch.
	Audit func(AuditEvent)
	// Scanner is the dependency-scan collaborator client.
	Scanner depscan.Scanner
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Dispatcher routes operations. The catalog is bound at construction and
// never mutated; tier resolution is a pure function of the presented name.
type Dispatcher struct {
	eng     *engine.Engine
	rules   *taint.Registry
	scanner depscan.Scanner
	catalog map[string]HandlerFunc
	tiers   map[string]Limits
	version string
	audit   func(AuditEvent)
	logger  *slog.Logger
}

// DefaultTier is used when the request names no tier.
const DefaultTier = "community"

// New constructs the dispatcher with its full operation catalog.
func New(eng *engine.Engine, rules *taint.Registry, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Tiers == nil {
		opts.Tiers = map[string]Limits{DefaultTier: {}}
	}
	if opts.Scanner == nil {
		opts.Scanner = depscan.NewHTTPScanner("")
	}

	d := &Dispatcher{
		eng:     eng,
		rules:   rules,
		scanner: opts.Scanner,
		tiers:   opts.Tiers,
		version: opts.Version,
		audit:   opts.Audit,
		logger:  opts.Logger,
	}
	d.catalog = map[string]HandlerFunc{
		"analyze_code":                d.analyzeCode,
		"extract_code":                d.extractCode,
		"update_symbol":               d.updateSymbol,
		"rename_symbol":               d.renameSymbol,
		"get_file_context":            d.getFileContext,
		"get_symbol_references":       d.getSymbolReferences,
		"get_call_graph":              d.getCallGraph,
		"get_graph_neighborhood":      d.getGraphNeighborhood,
		"get_project_map":             d.getProjectMap,
		"get_cross_file_dependencies": d.getCrossFileDependencies,
		"crawl_project":               d.crawlProject,
		"security_scan":               d.securityScan,
		"cross_file_security_scan":    d.crossFileSecurityScan,
		"unified_sink_detect":         d.unifiedSinkDetect,
		"type_evaporation_scan":       d.typeEvaporationScan,
		"scan_dependencies":           d.scanDependencies,
		"symbolic_execute":            d.symbolicExecute,
		"generate_unit_tests":         d.generateUnitTests,
		"simulate_refactor":           d.simulateRefactor,
		"validate_paths":              d.validatePaths,
		"verify_policy_integrity":     d.verifyPolicyIntegrity,
		"code_policy_check":           d.codePolicyCheck,
	}
	return d
}

// Operations lists the catalog names in sorted order.
func (d *Dispatcher) Operations() []string {
	out := make([]string, 0, len(d.catalog))
	for name := range d.catalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs one request and always returns an envelope. Internal panics
// are recovered and reported as internal_error without leaking type names.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, progress ProgressFunc) (resp *Response) {
	started := time.Now()

	requestID := req.RequestID
	if v := contract.ValidateRequestID(requestID); !v.OK {
		requestID = ""
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	tierName := req.Tier
	if tierName == "" {
		tierName = DefaultTier
	}

	meta := Metadata{RequestID: requestID, Tier: tierName, Version: d.version}
	finish := func(r *Response) *Response {
		r.Metadata.RequestID = meta.RequestID
		r.Metadata.Tier = meta.Tier
		r.Metadata.Version = meta.Version
		r.Metadata.DurationMS = time.Since(started).Milliseconds()
		opsTotal.WithLabelValues(req.Operation, boolLabel(r.Success)).Inc()
		opDuration.Observe(time.Since(started).Seconds())
		if d.audit != nil {
			kind := ""
			if r.Error != nil {
				kind = string(r.Error.Kind)
			}
			d.audit(AuditEvent{
				RequestID: meta.RequestID,
				Operation: req.Operation,
				Tier:      meta.Tier,
				Success:   r.Success,
				ErrorKind: kind,
				Duration:  r.Metadata.DurationMS,
			})
		}
		return r
	}

	handler, ok := d.catalog[req.Operation]
	if !ok {
		return finish(&Response{
			Success: false,
			Error: &ErrorBody{
				Kind:       errors.KindInvalidArgument,
				Message:    "unknown operation " + req.Operation,
				Suggestion: "call with one of the catalog operations",
			},
		})
	}

	tierCaps, ok := d.tiers[tierName]
	if !ok {
		tierCaps = d.tiers[DefaultTier]
	}
	defaults := d.eng.Config().Limits
	var requested Limits
	if req.Limits != nil {
		requested = *req.Limits
	}
	call := &Call{
		Ctx: ctx,
		Limits: requested.clampTo(tierCaps, Limits{
			MaxFindings:   defaults.MaxFindings,
			MaxFiles:      defaults.MaxFiles,
			MaxNodes:      defaults.MaxNodes,
			MaxDepth:      defaults.MaxDepth,
			MaxPaths:      defaults.MaxPaths,
			MaxLoopUnroll: defaults.MaxLoopUnroll,
		}),
		Progress: progress,
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch.panic", "operation", req.Operation, "panic", r)
			resp = finish(&Response{
				Success: false,
				Error:   &ErrorBody{Kind: errors.KindInternal, Message: "internal error"},
			})
		}
	}()

	data, err := handler(call, req.Args)
	if err != nil {
		body := mapError(err)
		d.logger.Warn("dispatch.error", "operation", req.Operation, "kind", body.Kind, "request_id", requestID)
		return finish(&Response{Success: false, Error: body})
	}

	resp = &Response{Success: true, Data: data}
	resp.Metadata.TruncatedByLimit = call.limitHit
	resp.Metadata.Sanitization = call.sanitization
	resp.Metadata.PartialParse = call.partialParse
	return finish(resp)
}

func boolLabel(b bool) string {
	if b {
		return "ok"
	}
	return "error"
}
