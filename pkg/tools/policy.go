// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"encoding/json"
	"os"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/kraklabs/scalpel/internal/errors"
)

// PolicyRule is one code_policy_check rule: an expr-lang expression
// evaluated against per-file facts. A rule that evaluates true records a
// violation.
type PolicyRule struct {
	ID      string `json:"id"`
	Expr    string `json:"expr"`
	Message string `json:"message"`
}

// PolicyViolation is one rule hit.
type PolicyViolation struct {
	RuleID  string `json:"rule_id"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

type policyCheckArgs struct {
	Paths []string     `json:"paths"`
	Rules []PolicyRule `json:"rules"`
}

func (d *Dispatcher) codePolicyCheck(c *Call, raw json.RawMessage) (any, error) {
	var args policyCheckArgs
	if err := json.Unmarshal(raw, &args); err != nil || len(args.Paths) == 0 || len(args.Rules) == 0 {
		return nil, argError("code_policy_check requires paths and rules")
	}

	// Compile every rule up front; a bad expression fails the whole call.
	type compiledRule struct {
		rule    PolicyRule
		program *vm.Program
	}
	programs := make([]compiledRule, 0, len(args.Rules))
	for _, rule := range args.Rules {
		prog, err := expr.Compile(rule.Expr, expr.Env(map[string]any{}), expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, errors.NewAnalysis(errors.KindInvalidArgument,
				"rule "+rule.ID+" does not compile: "+err.Error())
		}
		programs = append(programs, compiledRule{rule: rule, program: prog})
	}

	var violations []PolicyViolation
	for _, p := range args.Paths {
		abs, err := d.resolvePath(p)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, err
		}
		ua, err := d.analyzeUnit(c, string(data), "", "", p)
		if err != nil {
			continue // unparsable files do not fail the policy run
		}
		summary := summarizeTree(c, ua.Tree)
		env := map[string]any{
			"path":       p,
			"language":   ua.Language,
			"loc":        countLines(ua.Tree.Source),
			"functions":  len(summary.Functions),
			"classes":    len(summary.Classes),
			"complexity": summary.Complexity,
			"imports":    summary.Imports,
		}
		for _, cr := range programs {
			hit, err := expr.Run(cr.program, env)
			if err != nil {
				continue
			}
			if b, ok := hit.(bool); ok && b {
				violations = append(violations, PolicyViolation{
					RuleID:  cr.rule.ID,
					Path:    p,
					Message: cr.rule.Message,
				})
				if c.Limits.MaxFindings > 0 && len(violations) >= c.Limits.MaxFindings {
					c.MarkTruncated("max_findings")
					return map[string]any{"violations": violations}, nil
				}
			}
		}
	}
	return map[string]any{"violations": violations}, nil
}

type verifyPolicyArgs struct {
	PolicyDir string `json:"policy_dir"`
}

// PolicyIntegrityData mirrors the collaborator's response shape; integrity
// verification itself runs out of process.
type PolicyIntegrityData struct {
	Delegated bool   `json:"delegated"`
	PolicyDir string `json:"policy_dir"`
	Note      string `json:"note"`
}

func (d *Dispatcher) verifyPolicyIntegrity(c *Call, raw json.RawMessage) (any, error) {
	var args verifyPolicyArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.PolicyDir == "" {
		return nil, argError("verify_policy_integrity requires policy_dir")
	}
	if _, err := d.resolvePath(args.PolicyDir); err != nil {
		return nil, err
	}
	return &PolicyIntegrityData{
		Delegated: true,
		PolicyDir: args.PolicyDir,
		Note:      "policy integrity verification is performed by the policy collaborator",
	}, nil
}
