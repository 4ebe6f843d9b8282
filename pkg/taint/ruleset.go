// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package taint identifies tainted data flows from configured sources to
// configured sinks over the PDG, detecting sanitizers on the path.
package taint

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/scalpel/pkg/lang"
)

//go:embed rules/*.yaml
var embeddedRules embed.FS

// SourceRule marks an origin of tainted data.
type SourceRule struct {
	// Pattern is a call or attribute path matched by dotted suffix:
	// "request.args.get" matches `flask.request.args.get(...)`.
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description"`
	// Confidence is the default finding confidence for flows from this
	// source; zero means 0.9.
	Confidence float64 `yaml:"confidence"`
}

// SinkRule marks a dangerous operation, tagged by CWE.
type SinkRule struct {
	Pattern     string `yaml:"pattern"`
	CWE         string `yaml:"cwe"`
	Severity    string `yaml:"severity"`
	Description string `yaml:"description"`
	Remediation string `yaml:"remediation"`
}

// SanitizerRule marks a function that removes taint for specific CWEs. An
// empty Clears list clears everything.
//
// Transform sanitizers (the default) clear taint wherever their return value
// flows. Validator sanitizers are path-sensitive: they clear taint only on
// the branch whose condition calls them truthfully; the falsy branch stays
// tainted.
type SanitizerRule struct {
	Pattern   string   `yaml:"pattern"`
	Clears    []string `yaml:"clears"`
	Validator bool     `yaml:"validator"`
}

// Ruleset is the per-language rule collection.
type Ruleset struct {
	Version    string          `yaml:"version"`
	Language   string          `yaml:"language"`
	Sources    []SourceRule    `yaml:"sources"`
	Sinks      []SinkRule      `yaml:"sinks"`
	Sanitizers []SanitizerRule `yaml:"sanitizers"`
}

// Registry holds the rulesets of every language.
type Registry struct {
	byLanguage map[string]*Ruleset
	version    string
}

// Version is the combined ruleset version, part of cache keys.
func (r *Registry) Version() string { return r.version }

// ForLanguage returns the ruleset of a language, or nil.
func (r *Registry) ForLanguage(language string) *Ruleset {
	return r.byLanguage[language]
}

// LoadEmbedded loads the built-in rulesets.
func LoadEmbedded() (*Registry, error) {
	reg := &Registry{byLanguage: make(map[string]*Ruleset)}
	for _, language := range lang.All {
		data, err := embeddedRules.ReadFile("rules/" + language + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("embedded ruleset for %s: %w", language, err)
		}
		rs, err := parseRuleset(data, language)
		if err != nil {
			return nil, err
		}
		reg.byLanguage[language] = rs
		reg.version += language + "=" + rs.Version + ";"
	}
	return reg, nil
}

// LoadDir loads ruleset overrides from a directory of <language>.yaml files,
// falling back to embedded rules for languages without an override.
func LoadDir(dir string) (*Registry, error) {
	reg, err := LoadEmbedded()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read ruleset dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		language := strings.TrimSuffix(e.Name(), ".yaml")
		if !lang.Supported(language) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		rs, err := parseRuleset(data, language)
		if err != nil {
			return nil, err
		}
		reg.byLanguage[language] = rs
	}
	reg.version = ""
	for _, language := range lang.All {
		reg.version += language + "=" + reg.byLanguage[language].Version + ";"
	}
	return reg, nil
}

// parseRuleset validates one ruleset document. Invalid documents fail with
// ruleset_invalid semantics at load time.
func parseRuleset(data []byte, language string) (*Ruleset, error) {
	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("ruleset %s: invalid YAML: %w", language, err)
	}
	if rs.Language != "" && rs.Language != language {
		return nil, fmt.Errorf("ruleset %s: language field says %q", language, rs.Language)
	}
	if rs.Version == "" {
		return nil, fmt.Errorf("ruleset %s: missing version", language)
	}
	for i, s := range rs.Sinks {
		if s.Pattern == "" || s.CWE == "" {
			return nil, fmt.Errorf("ruleset %s: sink %d needs pattern and cwe", language, i)
		}
		if s.Severity == "" {
			rs.Sinks[i].Severity = "medium"
		}
	}
	for i, s := range rs.Sources {
		if s.Pattern == "" {
			return nil, fmt.Errorf("ruleset %s: source %d needs a pattern", language, i)
		}
		if s.Confidence == 0 {
			rs.Sources[i].Confidence = 0.9
		}
	}
	return &rs, nil
}

// matchPattern reports whether a reference path matches a rule pattern.
// Matching is by dotted suffix: pattern "args.get" matches
// "request.args.get" but not "wargs.get".
func matchPattern(ref, pattern string) bool {
	if ref == "" || pattern == "" {
		return false
	}
	if ref == pattern {
		return true
	}
	if strings.HasSuffix(ref, "."+pattern) {
		return true
	}
	return false
}

// matchSource returns the first source rule matching a call target or use.
func (rs *Ruleset) matchSource(ref string) *SourceRule {
	for i := range rs.Sources {
		if matchPattern(ref, rs.Sources[i].Pattern) {
			return &rs.Sources[i]
		}
	}
	return nil
}

func (rs *Ruleset) matchSink(ref string) *SinkRule {
	for i := range rs.Sinks {
		if matchPattern(ref, rs.Sinks[i].Pattern) {
			return &rs.Sinks[i]
		}
	}
	return nil
}

func (rs *Ruleset) matchSanitizer(ref string) *SanitizerRule {
	for i := range rs.Sanitizers {
		if matchPattern(ref, rs.Sanitizers[i].Pattern) {
			return &rs.Sanitizers[i]
		}
	}
	return nil
}

// clearsCWE reports whether a sanitizer neutralizes a sink kind.
func (s *SanitizerRule) clearsCWE(cwe string) bool {
	if len(s.Clears) == 0 {
		return true
	}
	for _, c := range s.Clears {
		if c == cwe {
			return true
		}
	}
	return false
}
