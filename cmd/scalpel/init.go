// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kraklabs/scalpel/internal/bootstrap"
	"github.com/kraklabs/scalpel/internal/errors"
	"github.com/kraklabs/scalpel/internal/output"
	"github.com/kraklabs/scalpel/internal/ui"
)

func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: scalpel init [options]

Creates .scalpel/project.yaml beneath the project root with default
settings: allowed roots, exclusion globs, sanitization policy and limits.
The command is idempotent.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	info, err := bootstrap.InitProject(globals.Root, nil)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot initialize project",
			err.Error(),
			"Check directory permissions under the project root",
			err,
		), *jsonOutput)
	}

	if *jsonOutput {
		_ = output.JSON(info)
		return
	}
	if info.Created {
		ui.Successf("Created %s", info.ConfigPath)
	} else {
		ui.Infof("Configuration already exists at %s", info.ConfigPath)
	}
}
