package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/flvmnt/pgfence/internal/analyzer"
	"github.com/flvmnt/pgfence/internal/pgast"
	"github.com/flvmnt/pgfence/internal/policy"
	"github.com/flvmnt/pgfence/internal/risk"
)

// CLIReporter renders a human-readable table per file.
type CLIReporter struct {
	// NoColor disables ANSI color codes.
	NoColor bool
}

func (r *CLIReporter) color(level risk.Level) string {
	if r.NoColor {
		return ""
	}
	switch level {
	case risk.Safe:
		return "\033[32m" // green
	case risk.Low:
		return "\033[36m" // cyan
	case risk.Medium:
		return "\033[33m" // yellow
	case risk.High:
		return "\033[31m" // red
	case risk.Critical:
		return "\033[91m" // bright red
	default:
		return ""
	}
}

func (r *CLIReporter) reset() string {
	if r.NoColor {
		return ""
	}
	return "\033[0m"
}

// Report writes the terminal table.
func (r *CLIReporter) Report(w io.Writer, results []analyzer.Result) error {
	for _, res := range results {
		fmt.Fprintf(w, "%s — %d statement(s), max risk %s%s%s\n",
			res.Path, res.StatementCount, r.color(res.MaxRisk), res.MaxRisk, r.reset())

		for _, c := range res.Checks {
			level := c.EffectiveRisk()
			fmt.Fprintf(w, "  [%s%s%s] %s", r.color(level), level, r.reset(), c.RuleID)
			if c.Table != "" {
				fmt.Fprintf(w, " (%s)", pgast.QuoteQualified(c.Table))
			}
			fmt.Fprintln(w)
			fmt.Fprintf(w, "    %s\n", c.Message)
			if c.Lock != nil {
				fmt.Fprintf(w, "    lock: %s%s\n", c.Lock, blockedSuffix(c.Blocked.Reads, c.Blocked.Writes, c.Blocked.OtherDDL))
			}
			if c.AdjustedRisk != nil {
				fmt.Fprintf(w, "    risk: %s (base %s, adjusted for table size)\n", *c.AdjustedRisk, c.BaseRisk)
			}
			if c.Rewrite != nil && len(c.Rewrite.Steps) > 0 {
				fmt.Fprintf(w, "    safe rewrite: %s\n", c.Rewrite.Description)
				for i, step := range c.Rewrite.Steps {
					fmt.Fprintf(w, "      %d. %s\n", i+1, step)
				}
			}
		}

		for _, v := range res.Violations {
			marker := "warning"
			if v.Severity == policy.SeverityError {
				marker = "error"
			}
			fmt.Fprintf(w, "  [policy/%s] %s: %s\n", marker, v.RuleID, v.Message)
			if v.SuggestedFix != "" {
				fmt.Fprintf(w, "    fix: %s\n", v.SuggestedFix)
			}
		}

		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "  [extraction] %s:%d:%d %s\n", warn.File, warn.Line, warn.Column, warn.Message)
		}

		fmt.Fprintln(w)
	}

	cov := ComputeCoverage(results)
	fmt.Fprintf(w, "Coverage: %d%% (%d of %d statements statically analyzed)\n",
		cov.CoveragePercent, cov.TotalStatements-cov.DynamicStatements, cov.TotalStatements)
	return nil
}

func blockedSuffix(reads, writes, ddl bool) string {
	var blocked []string
	if reads {
		blocked = append(blocked, "reads")
	}
	if writes {
		blocked = append(blocked, "writes")
	}
	if ddl {
		blocked = append(blocked, "other DDL")
	}
	if len(blocked) == 0 {
		return ""
	}
	return " — blocks " + strings.Join(blocked, ", ")
}
