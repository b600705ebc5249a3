// Package analyzer wires the pipeline together: extraction, parsing, the
// per-statement rule engine, the file-scope policy engine, the cross-file
// visibility filter, the size-based risk adjuster, and aggregation.
package analyzer

import (
	"fmt"

	"github.com/flvmnt/pgfence/internal/config"
	"github.com/flvmnt/pgfence/internal/extract"
	"github.com/flvmnt/pgfence/internal/parser"
	"github.com/flvmnt/pgfence/internal/plugin"
	"github.com/flvmnt/pgfence/internal/policy"
	"github.com/flvmnt/pgfence/internal/risk"
	"github.com/flvmnt/pgfence/internal/rules"
	"github.com/flvmnt/pgfence/internal/snapshot"
)

// Input names one migration file and its declared format.
type Input struct {
	Path   string
	Format extract.Format
}

// Result is the per-file analysis output.
type Result struct {
	Path           string              `json:"file"`
	StatementCount int                 `json:"totalStatements"`
	Checks         []rules.CheckResult `json:"checks"`
	Violations     []policy.Violation  `json:"policyViolations"`
	Warnings       []extract.Warning   `json:"extractionWarnings"`
	MaxRisk        risk.Level          `json:"maxRisk"`
}

// HasErrorViolation reports whether any policy violation is error grade.
func (r *Result) HasErrorViolation() bool {
	for _, v := range r.Violations {
		if v.Severity == policy.SeverityError {
			return true
		}
	}
	return false
}

// Analyzer runs the pipeline. Files are processed sequentially in the
// order supplied; the created-tables accumulator is the only state shared
// across them, and it lives for a single batch call.
type Analyzer struct {
	cfg      config.Config
	registry *rules.Registry
	plugins  []*plugin.Manifest
	stats    *risk.StatsMap
	snap     *snapshot.Snapshot
}

// Option configures the Analyzer.
type Option func(*Analyzer)

// WithRegistry overrides the built-in rule registry.
func WithRegistry(r *rules.Registry) Option {
	return func(a *Analyzer) { a.registry = r }
}

// WithPlugins attaches loaded plugin manifests.
func WithPlugins(ms []*plugin.Manifest) Option {
	return func(a *Analyzer) { a.plugins = ms }
}

// WithStats attaches a table-size snapshot for risk adjustment.
func WithStats(s *risk.StatsMap) Option {
	return func(a *Analyzer) { a.stats = s }
}

// WithSnapshot attaches a schema snapshot for collaborator rules.
func WithSnapshot(s *snapshot.Snapshot) Option {
	return func(a *Analyzer) { a.snap = s }
}

// New creates an Analyzer.
func New(cfg config.Config, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg:      cfg,
		registry: rules.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzeFiles runs the pipeline over a batch of files. A file sees the
// tables created by all earlier files of the batch plus those created
// earlier in its own body.
func (a *Analyzer) AnalyzeFiles(inputs []Input) ([]Result, error) {
	vis := newVisibility()
	results := make([]Result, 0, len(inputs))

	for _, in := range inputs {
		extracted, err := extract.File(in.Path, in.Format)
		if err != nil {
			return nil, err
		}

		r, err := a.analyze(in.Path, extracted, vis)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}

	return results, nil
}

// AnalyzeSource runs the pipeline over one in-memory migration, with its
// own single-file visibility scope.
func (a *Analyzer) AnalyzeSource(path string, src []byte, format extract.Format) (*Result, error) {
	extracted, err := extract.Source(path, src, format)
	if err != nil {
		return nil, err
	}
	return a.analyze(path, extracted, newVisibility())
}

// analyze is the single-file pipeline walk.
func (a *Analyzer) analyze(path string, extracted *extract.Result, vis *visibility) (*Result, error) {
	parsed, err := parser.Parse(extracted.SQL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	ctx := &rules.Context{
		MinPGVersion: a.cfg.MinPGVersion,
		PreviewWidth: a.cfg.PreviewWidth,
		Snapshot:     a.snap,
	}

	var checks []rules.CheckResult
	for _, stmt := range parsed.Statements {
		for _, rule := range a.registry.Rules() {
			checks = append(checks, a.filter(rule.Check(stmt, ctx), stmt, vis)...)
		}
		for _, m := range a.plugins {
			for _, rule := range m.Rules {
				checks = append(checks, a.filter(plugin.SafeCheck(rule, stmt, ctx), stmt, vis)...)
			}
		}

		vis.observe(stmt)
	}

	engine := policy.NewEngine(policy.Config{
		RequireLockTimeout:      a.cfg.RequireLockTimeout,
		RequireStatementTimeout: a.cfg.RequireStatementTimeout,
		MaxLockTimeoutMs:        a.cfg.MaxLockTimeoutMs,
		MaxStatementTimeoutMs:   a.cfg.MaxStatementTimeoutMs,
		AutoCommit:              extracted.AutoCommit,
		PreviewWidth:            a.cfg.PreviewWidth,
	})
	violations := engine.Check(parsed.Statements)
	for _, m := range a.plugins {
		for _, check := range m.Policies {
			violations = append(violations, plugin.SafePolicy(check, parsed.Statements)...)
		}
	}

	a.adjustRisk(checks)

	maxRisk := risk.Safe
	for i := range checks {
		if r := checks[i].EffectiveRisk(); r > maxRisk {
			maxRisk = r
		}
	}

	warnings := extracted.Warnings
	if warnings == nil {
		warnings = []extract.Warning{}
	}
	if checks == nil {
		checks = []rules.CheckResult{}
	}
	if violations == nil {
		violations = []policy.Violation{}
	}

	return &Result{
		Path:           path,
		StatementCount: len(parsed.Statements),
		Checks:         checks,
		Violations:     violations,
		Warnings:       warnings,
		MaxRisk:        maxRisk,
	}, nil
}

// filter applies rule enablement, inline suppression, and the visibility
// filter to one rule's findings. Selection deliberately happens after the
// rule runs: rules stay pure and unconditional.
func (a *Analyzer) filter(found []rules.CheckResult, stmt parser.ParsedStatement, vis *visibility) []rules.CheckResult {
	var kept []rules.CheckResult
	for _, c := range found {
		if !a.cfg.RuleEnabled(c.RuleID) {
			continue
		}
		if stmt.Suppresses(c.RuleID) {
			continue
		}
		if vis.suppresses(c) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// adjustRisk maps each finding's table to the stats snapshot and raises
// the risk by table size.
func (a *Analyzer) adjustRisk(checks []rules.CheckResult) {
	if a.stats == nil || a.stats.Len() == 0 {
		return
	}
	for i := range checks {
		s, ok := a.stats.Lookup(checks[i].Table)
		if !ok {
			continue
		}
		adjusted := risk.Adjust(checks[i].BaseRisk, s.RowCount)
		checks[i].AdjustedRisk = &adjusted
	}
}
