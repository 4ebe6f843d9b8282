// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kraklabs/scalpel/internal/errors"
	"github.com/kraklabs/scalpel/internal/output"
	"github.com/kraklabs/scalpel/internal/ui"
	"github.com/kraklabs/scalpel/pkg/engine"
	"github.com/kraklabs/scalpel/pkg/tools"
)

func newDispatcher(globals GlobalFlags, jsonOut bool) *tools.Dispatcher {
	cfg, err := engine.LoadConfig(globals.Root)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot load project configuration",
			err.Error(),
			"Run 'scalpel init' to create a fresh configuration",
			err,
		), jsonOut)
	}
	rules, err := loadRules(cfg)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot load taint rulesets",
			err.Error(),
			"Fix the ruleset YAML or remove the override directory",
			err,
		), jsonOut)
	}
	return tools.New(engine.New(cfg, nil), rules, tools.Options{Version: version})
}

func runAnalyze(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	language := fs.String("language", "", "Force the language (python, javascript, typescript, java)")
	mode := fs.String("mode", "", "Sanitization mode: strict or permissive")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: scalpel analyze [options] <file>

Analyzes one source file: functions, classes, imports, complexity, spans.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  scalpel analyze app.py
  scalpel analyze src/server.ts --json
  scalpel analyze merged.py --mode permissive
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: file argument required\n")
		fs.Usage()
		os.Exit(1)
	}

	path := fs.Arg(0)
	code, err := os.ReadFile(path)
	if err != nil {
		errors.FatalError(errors.NewNotFoundError(
			"Cannot read source file",
			err.Error(),
			"Check the path and permissions",
		), *jsonOutput)
	}

	dispatcher := newDispatcher(globals, *jsonOutput)
	argsJSON, _ := json.Marshal(map[string]string{
		"code":         string(code),
		"language":     *language,
		"parsing_mode": *mode,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	resp := dispatcher.Dispatch(ctx, tools.Request{Operation: "analyze_code", Args: argsJSON}, nil)

	if *jsonOutput {
		_ = output.JSON(resp)
		if !resp.Success {
			os.Exit(errors.ExitInput)
		}
		return
	}

	if !resp.Success {
		ui.Errorf("%s: %s", resp.Error.Kind, resp.Error.Message)
		if resp.Error.Location != "" {
			fmt.Printf("  at %s\n", resp.Error.Location)
		}
		os.Exit(errors.ExitInput)
	}

	data := resp.Data.(*tools.AnalyzeData)
	ui.Header("Analysis: " + path)
	fmt.Printf("Language:   %s\n", data.Language)
	fmt.Printf("Functions:  %d\n", len(data.Functions))
	fmt.Printf("Classes:    %d\n", len(data.Classes))
	fmt.Printf("Imports:    %d\n", len(data.Imports))
	fmt.Printf("Complexity: %d\n", data.Complexity)
	if resp.Metadata.Sanitization != nil {
		ui.Warningf("source was sanitized before analysis (%d changes)", len(resp.Metadata.Sanitization.Changes))
	}
	for _, f := range data.Functions {
		owner := ""
		if f.Class != "" {
			owner = f.Class + "."
		}
		fmt.Printf("  • %s%s (lines %d-%d, complexity %d)\n", owner, f.Name, f.StartLine, f.EndLine, f.Complexity)
	}
}

// runScan executes the security scan over one file or a whole project root.
func runScan(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	sarif := fs.Bool("sarif", false, "Include a SARIF rendering")
	maxFindings := fs.Int("max-findings", 0, "Cap the finding count (0 = engine default)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: scalpel scan [options] <file|dir>

Runs the taint security scan. Directories run the cross-file scan over the
whole project snapshot; single files run the intraprocedural scan.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  scalpel scan app.py
  scalpel scan ./src --json
  scalpel scan handlers.py --sarif
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: file or directory argument required\n")
		fs.Usage()
		os.Exit(1)
	}

	target := fs.Arg(0)
	info, err := os.Stat(target)
	if err != nil {
		errors.FatalError(errors.NewNotFoundError(
			"Cannot access scan target",
			err.Error(),
			"Check the path and permissions",
		), *jsonOutput)
	}

	dispatcher := newDispatcher(globals, *jsonOutput)

	var req tools.Request
	if info.IsDir() {
		argsJSON, _ := json.Marshal(map[string]any{"project_root": target})
		req = tools.Request{Operation: "cross_file_security_scan", Args: argsJSON}
	} else {
		argsJSON, _ := json.Marshal(map[string]any{"path": target, "sarif": *sarif})
		req = tools.Request{Operation: "security_scan", Args: argsJSON}
	}
	if *maxFindings > 0 {
		req.Limits = &tools.Limits{MaxFindings: *maxFindings}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	resp := dispatcher.Dispatch(ctx, req, nil)

	if *jsonOutput {
		_ = output.JSON(resp)
		if !resp.Success {
			os.Exit(errors.ExitInput)
		}
		return
	}

	if !resp.Success {
		ui.Errorf("%s: %s", resp.Error.Kind, resp.Error.Message)
		os.Exit(errors.ExitInput)
	}

	data := resp.Data.(*tools.SecurityScanData)
	if len(data.Findings) == 0 {
		ui.Success("No taint flows detected")
		return
	}
	ui.Warningf("%d finding(s)", len(data.Findings))
	for _, f := range data.Findings {
		fmt.Printf("  [%s] %s %s\n", f.Severity, f.Kind, f.SinkDesc)
		fmt.Printf("      %s:%d → %s:%d (confidence %.2f)\n",
			f.Source.Unit, f.Source.Span.StartLine, f.Sink.Unit, f.Sink.Span.StartLine, f.Confidence)
		if f.Remediation != "" {
			fmt.Printf("      fix: %s\n", f.Remediation)
		}
	}
	if !data.Complete {
		ui.Warning("scan truncated by budget; results are partial")
	}
	os.Exit(1)
}
