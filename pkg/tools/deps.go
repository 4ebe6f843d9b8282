// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"encoding/json"
	"os"

	"github.com/kraklabs/scalpel/internal/errors"
	"github.com/kraklabs/scalpel/pkg/depscan"
)

type scanDepsArgs struct {
	Path      string `json:"path"`
	Ecosystem string `json:"ecosystem"`
}

// scanDependencies ships the manifest to the external vulnerability
// collaborator and returns its advisories unchanged; the core defines only
// the response shape.
func (d *Dispatcher) scanDependencies(c *Call, raw json.RawMessage) (any, error) {
	var args scanDepsArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.Path == "" {
		return nil, argError("scan_dependencies requires a manifest path")
	}
	abs, err := d.resolvePath(args.Path)
	if err != nil {
		return nil, err
	}

	ecosystem := args.Ecosystem
	if ecosystem == "" {
		ecosystem = depscan.DetectEcosystem(abs)
	}
	if ecosystem == "" {
		return nil, errors.NewAnalysis(errors.KindInvalidArgument,
			"cannot infer the package ecosystem from the manifest name").
			WithSuggestion("pass ecosystem explicitly (pypi, npm, maven)")
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	resp, err := d.scanner.Scan(c.Ctx, depscan.ScanRequest{
		ManifestPath: args.Path,
		Ecosystem:    ecosystem,
		Content:      string(content),
	})
	if err != nil {
		return nil, err
	}
	if c.Limits.MaxFindings > 0 && len(resp.Advisories) > c.Limits.MaxFindings {
		resp.Advisories = resp.Advisories[:c.Limits.MaxFindings]
		c.MarkTruncated("max_findings")
	}
	return resp, nil
}
