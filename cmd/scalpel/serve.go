// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/kraklabs/scalpel/internal/errors"
	"github.com/kraklabs/scalpel/internal/output"
	"github.com/kraklabs/scalpel/pkg/cache"
	"github.com/kraklabs/scalpel/pkg/engine"
	"github.com/kraklabs/scalpel/pkg/taint"
	"github.com/kraklabs/scalpel/pkg/tools"
)

// runServe starts the stdio tool server: one JSON request per line on
// stdin, one envelope per line on stdout. Logs go to stderr so the protocol
// stream stays clean.
func runServe(args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("serve", pflag.ExitOnError)
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (empty disables)")
	timeout := fs.Duration("timeout", 2*time.Minute, "Per-request wall-clock budget")
	rulesetDir := fs.String("rulesets", "", "Directory of taint ruleset overrides")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: scalpel serve [options]

Description:
  Start the tool server. Requests are newline-delimited JSON objects:

    {"id":"r1","operation":"analyze_code","args":{"code":"def f():\n  return 1"}}

  Each request is answered with one envelope line:

    {"success":true,"data":{...},"error":null,"metadata":{...}}

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  scalpel serve
  scalpel serve --metrics-addr :9131 --timeout 5m
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := engine.LoadConfig(globals.Root)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot load project configuration",
			err.Error(),
			"Run 'scalpel init' to create a fresh configuration",
			err,
		), globals.JSON)
	}
	if *rulesetDir != "" {
		cfg.RulesetDir = *rulesetDir
	}

	eng := engine.New(cfg, logger)
	rules, err := loadRules(cfg)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot load taint rulesets",
			err.Error(),
			"Fix the ruleset YAML or remove the override directory",
			err,
		), globals.JSON)
	}

	dispatcher := tools.New(eng, rules, tools.Options{
		Version: version,
		Logger:  logger,
	})

	if *metricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(engine.Collectors()...)
		registry.MustRegister(cache.Collectors()...)
		registry.MustRegister(taint.Collectors()...)
		registry.MustRegister(tools.Collectors()...)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			logger.Info("serve.metrics", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("serve.metrics.error", "err", err)
			}
		}()
	}

	logger.Info("serve.ready", "operations", len(dispatcher.Operations()), "version", version)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1<<20), 64<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req tools.Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := &tools.Response{
				Success: false,
				Error: &tools.ErrorBody{
					Kind:    errors.KindInvalidArgument,
					Message: "request is not valid JSON",
				},
			}
			_ = output.JSONCompact(resp)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		resp := dispatcher.Dispatch(ctx, req, nil)
		cancel()
		_ = output.JSONCompact(resp)
	}
	if err := scanner.Err(); err != nil {
		logger.Error("serve.stdin", "err", err)
		os.Exit(1)
	}
}

func loadRules(cfg *engine.Config) (*taint.Registry, error) {
	if cfg.RulesetDir != "" {
		return taint.LoadDir(cfg.RulesetDir)
	}
	return taint.LoadEmbedded()
}
