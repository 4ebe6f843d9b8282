// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package main implements the Scalpel CLI: code-analysis primitives served
// to AI agents over stdio, plus one-shot analysis commands.
//
// Usage:
//
//	scalpel init                       Create .scalpel/project.yaml
//	scalpel analyze <file> [--json]    Analyze one source file
//	scalpel scan <file|dir> [--json]   Run the taint security scan
//	scalpel serve                      Start the stdio tool server
//	scalpel version                    Show version information
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kraklabs/scalpel/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags carries flags shared by every subcommand.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Root    string
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
		root        = flag.String("root", ".", "Project root directory")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Scalpel - surgical code analysis for AI agents

Usage:
  scalpel <command> [options]

Commands:
  init          Create .scalpel/project.yaml configuration
  analyze       Analyze a source file (structure, complexity, spans)
  scan          Run the taint security scan over a file or project
  serve         Start the stdio tool server (newline-delimited JSON)
  version       Show version information

Global Options:
  --root        Project root directory (default: .)
  --no-color    Disable colored output
  --version     Show version and exit

Examples:
  scalpel init
  scalpel analyze app.py --json
  scalpel scan ./src
  scalpel serve --metrics-addr :9131

Configuration:
  Project settings live in .scalpel/project.yaml beneath the root.

`)
	}

	flag.Parse()
	ui.InitColors(*noColor)

	if *showVersion {
		printVersion(false)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	globals := GlobalFlags{NoColor: *noColor, Root: *root}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "init":
		runInit(rest, globals)
	case "analyze":
		runAnalyze(rest, globals)
	case "scan":
		runScan(rest, globals)
	case "serve":
		runServe(rest, globals)
	case "version":
		printVersion(hasFlag(rest, "--json"))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(1)
	}
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}

func printVersion(jsonOut bool) {
	if jsonOut {
		fmt.Printf("{\"version\":%q,\"commit\":%q,\"date\":%q}\n", version, commit, date)
		return
	}
	fmt.Printf("scalpel %s (commit %s, built %s)\n", version, commit, date)
}
