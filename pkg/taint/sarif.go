// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package taint

import (
	"fmt"

	"github.com/owenrumney/go-sarif/v2/sarif"
)

// ToSARIF renders findings as a SARIF 2.1.0 report for CI and code-scanning
// consumers.
func ToSARIF(result *Result, toolVersion string) (*sarif.Report, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, err
	}

	run := sarif.NewRunWithInformationURI("scalpel", "https://github.com/kraklabs/scalpel")
	run.Tool.Driver.Version = &toolVersion

	seenRules := map[string]bool{}
	for _, f := range result.Findings {
		if !seenRules[f.Kind] {
			seenRules[f.Kind] = true
			rule := run.AddRule(f.Kind).
				WithDescription(f.SinkDesc)
			if f.Remediation != "" {
				rule.WithHelp(sarif.NewMultiformatMessageString(f.Remediation))
			}
		}

		level := sarifLevel(f.Severity)
		msg := fmt.Sprintf("%s: tainted data from %s reaches %s (confidence %.2f)",
			f.Kind, f.SourceDesc, f.SinkDesc, f.Confidence)
		res := run.CreateResultForRule(f.Kind).
			WithLevel(level).
			WithMessage(sarif.NewTextMessage(msg))
		res.AddLocation(
			sarif.NewLocationWithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewSimpleArtifactLocation(f.Sink.Unit)).
					WithRegion(sarif.NewSimpleRegion(f.Sink.Span.StartLine, f.Sink.Span.EndLine)),
			),
		)
	}

	report.AddRun(run)
	return report, nil
}

func sarifLevel(severity string) string {
	switch severity {
	case "critical", "high":
		return "error"
	case "medium":
		return "warning"
	default:
		return "note"
	}
}
