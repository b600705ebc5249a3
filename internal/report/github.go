package report

import (
	"fmt"
	"io"

	"github.com/flvmnt/pgfence/internal/analyzer"
	"github.com/flvmnt/pgfence/internal/pgast"
	"github.com/flvmnt/pgfence/internal/risk"
)

// GitHubReporter renders Markdown for a PR comment: one collapsible
// section per file with a risk badge, a findings table, and rewrite
// snippets.
type GitHubReporter struct{}

func riskBadge(level risk.Level) string {
	switch level {
	case risk.Safe:
		return "🟢 SAFE"
	case risk.Low:
		return "🔵 LOW"
	case risk.Medium:
		return "🟡 MEDIUM"
	case risk.High:
		return "🔴 HIGH"
	case risk.Critical:
		return "🚨 CRITICAL"
	default:
		return level.String()
	}
}

// Report writes the Markdown comment body.
func (r *GitHubReporter) Report(w io.Writer, results []analyzer.Result) error {
	cov := ComputeCoverage(results)
	fmt.Fprintf(w, "## pgfence migration analysis\n\n")
	fmt.Fprintf(w, "Coverage: **%d%%** (%d of %d statements statically analyzed)\n\n",
		cov.CoveragePercent, cov.TotalStatements-cov.DynamicStatements, cov.TotalStatements)

	for _, res := range results {
		fmt.Fprintf(w, "<details>\n<summary><code>%s</code> — %s, %d finding(s), %d policy violation(s)</summary>\n\n",
			res.Path, riskBadge(res.MaxRisk), len(res.Checks), len(res.Violations))

		if len(res.Checks) > 0 {
			fmt.Fprintf(w, "| Risk | Rule | Table | Lock | Message |\n")
			fmt.Fprintf(w, "|---|---|---|---|---|\n")
			for _, c := range res.Checks {
				fmt.Fprintf(w, "| %s | `%s` | %s | %s | %s |\n",
					riskBadge(c.EffectiveRisk()), c.RuleID, tableCell(c.Table), lockCell(c.LockName()), c.Message)
			}
			fmt.Fprintln(w)
		}

		for _, c := range res.Checks {
			if c.Rewrite == nil || len(c.Rewrite.Steps) == 0 || c.EffectiveRisk() < risk.High {
				continue
			}
			fmt.Fprintf(w, "**Safe rewrite for `%s`** — %s\n\n```sql\n", c.RuleID, c.Rewrite.Description)
			for _, step := range c.Rewrite.Steps {
				fmt.Fprintf(w, "%s\n", step)
			}
			fmt.Fprintf(w, "```\n\n")
		}

		for _, v := range res.Violations {
			fmt.Fprintf(w, "- **policy/%s** (%s): %s\n", v.RuleID, v.Severity, v.Message)
		}
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "- ⚠️ `%s:%d` %s\n", warn.File, warn.Line, warn.Message)
		}

		fmt.Fprintf(w, "\n</details>\n\n")
	}

	return nil
}

func tableCell(s string) string {
	if s == "" {
		return "—"
	}
	return "`" + pgast.QuoteQualified(s) + "`"
}

func lockCell(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
