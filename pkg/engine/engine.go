// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/kraklabs/scalpel/pkg/cache"
	"github.com/kraklabs/scalpel/pkg/frontend"
	"github.com/kraklabs/scalpel/pkg/lang"
	"github.com/kraklabs/scalpel/pkg/pir"
	"github.com/kraklabs/scalpel/pkg/sanitize"
)

// Engine runs the parse pipeline with memoization. It is safe for concurrent
// use.
type Engine struct {
	cfg    *Config
	cache  *cache.Cache
	logger *slog.Logger
}

// New creates an engine. A nil logger uses slog.Default().
func New(cfg *Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig(".")
	}
	return &Engine{cfg: cfg, cache: cache.New(cfg.CacheCapacity), logger: logger}
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config { return e.cfg }

// Cache exposes the result cache (the dispatcher records stats from it).
func (e *Engine) Cache() *cache.Cache { return e.cache }

// ParseOptions control one pipeline run.
type ParseOptions struct {
	// Language forces the language; empty auto-detects.
	Language string
	// Policy overrides the configured sanitization policy when Mode is set.
	Policy sanitize.Policy
	// AcceptPartial tolerates error nodes in permissive parses.
	AcceptPartial bool
}

// UnitAnalysis is the pipeline output for one source unit: the lowered IR
// plus the sanitization report that produced it.
type UnitAnalysis struct {
	Unit     string
	Language string
	Tree     *pir.Tree
	Report   *sanitize.Report
	Partial  bool
}

// ErrAmbiguousLanguage reports failed language auto-detection.
type ErrAmbiguousLanguage struct{}

func (*ErrAmbiguousLanguage) Error() string {
	return "language could not be inferred from the code; pass it explicitly"
}

// ErrUnsupportedLanguage reports a language outside the supported set.
type ErrUnsupportedLanguage struct{ Language string }

func (e *ErrUnsupportedLanguage) Error() string {
	return fmt.Sprintf("unsupported language %q", e.Language)
}

func (e *Engine) policy(opts ParseOptions) sanitize.Policy {
	if opts.Policy.Mode != "" {
		return opts.Policy
	}
	return e.cfg.Sanitize
}

// AnalyzeSource runs sanitizer, front end and normalizer over raw code.
// Results are memoized by content fingerprint; a cache hit returns the same
// data as the original miss.
func (e *Engine) AnalyzeSource(ctx context.Context, unit, code string, opts ParseOptions) (*UnitAnalysis, error) {
	language := opts.Language
	if language == "" {
		if fromPath := lang.FromPath(unit); fromPath != "" {
			language = fromPath
		} else {
			detected, ok := lang.Detect(code, "")
			if !ok {
				return nil, &ErrAmbiguousLanguage{}
			}
			language = detected
		}
	}
	if !lang.Supported(language) {
		return nil, &ErrUnsupportedLanguage{Language: language}
	}

	policy := e.policy(opts)
	key := cache.Key("pipeline.v1",
		unit, language, string(policy.Mode),
		fmt.Sprintf("%t%t%t%t", policy.AllowMergeConflicts, policy.AllowTemplates, policy.ReportModifications, opts.AcceptPartial),
		contentDigest(code),
	)

	entry, err := e.cache.GetOrCompute(key, func() (*cache.Entry, error) {
		started := time.Now()
		ua, err := e.analyzeUncached(ctx, unit, code, language, policy, opts.AcceptPartial)
		if err != nil {
			return nil, err
		}
		parseDuration.Observe(time.Since(started).Seconds())
		parseTotal.WithLabelValues(language).Inc()
		return &cache.Entry{Value: ua, Report: ua.Report}, nil
	})
	if err != nil {
		return nil, err
	}
	return entry.Value.(*UnitAnalysis), nil
}

func (e *Engine) analyzeUncached(ctx context.Context, unit, code, language string, policy sanitize.Policy, acceptPartial bool) (*UnitAnalysis, error) {
	clean, report, err := sanitize.Sanitize(code, language, policy)
	if err != nil {
		return nil, err
	}
	if report.Modified {
		e.logger.Debug("sanitize.modified", "unit", unit, "changes", len(report.Changes))
	}

	fe, err := frontend.ForLanguage(language)
	if err != nil {
		return nil, &ErrUnsupportedLanguage{Language: language}
	}
	native, err := fe.Parse(ctx, []byte(clean), frontend.Options{AcceptPartial: acceptPartial})
	if err != nil {
		return nil, err
	}
	defer native.Close()

	tree, err := pir.Lower(native, unit)
	if err != nil {
		return nil, err
	}
	return &UnitAnalysis{
		Unit:     unit,
		Language: language,
		Tree:     tree,
		Report:   report,
		Partial:  native.Partial,
	}, nil
}

func contentDigest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
