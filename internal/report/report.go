// Package report renders analysis results for each output target: a
// terminal table, the JSON envelope, GitHub PR Markdown, and SARIF 2.1.0.
package report

import (
	"fmt"
	"io"

	"github.com/flvmnt/pgfence/internal/analyzer"
)

// Format names an output format.
type Format string

const (
	FormatCLI    Format = "cli"
	FormatJSON   Format = "json"
	FormatGitHub Format = "github"
	FormatSARIF  Format = "sarif"
)

// ParseFormat validates an --output flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCLI, FormatJSON, FormatGitHub, FormatSARIF:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Reporter renders a batch of analysis results.
type Reporter interface {
	Report(w io.Writer, results []analyzer.Result) error
}

// New returns the reporter for a format.
func New(format Format) (Reporter, error) {
	switch format {
	case FormatCLI:
		return &CLIReporter{}, nil
	case FormatJSON:
		return &JSONReporter{}, nil
	case FormatGitHub:
		return &GitHubReporter{}, nil
	case FormatSARIF:
		return &SARIFReporter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// Coverage summarises how much of the batch was statically analyzable.
type Coverage struct {
	TotalStatements   int `json:"totalStatements"`
	DynamicStatements int `json:"dynamicStatements"`
	CoveragePercent   int `json:"coveragePercent"`
}

// ComputeCoverage derives the batch coverage figures. With no statements
// at all, coverage is 100: there was nothing to miss.
func ComputeCoverage(results []analyzer.Result) Coverage {
	c := Coverage{}
	for _, r := range results {
		c.TotalStatements += r.StatementCount
		c.DynamicStatements += len(r.Warnings)
	}
	if c.TotalStatements == 0 {
		c.CoveragePercent = 100
		return c
	}
	analyzed := c.TotalStatements - c.DynamicStatements
	if analyzed < 0 {
		analyzed = 0
	}
	c.CoveragePercent = int(float64(analyzed)/float64(c.TotalStatements)*100 + 0.5)
	return c
}
