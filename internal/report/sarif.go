package report

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/flvmnt/pgfence/internal/analyzer"
	"github.com/flvmnt/pgfence/internal/policy"
	"github.com/flvmnt/pgfence/internal/risk"
)

// SARIF 2.1.0 structures, reduced to the fields code-scanning consumes.

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string            `json:"id"`
	ShortDescription sarifMessage      `json:"shortDescription"`
	DefaultConfig    *sarifRuleDefault `json:"defaultConfiguration,omitempty"`
}

type sarifRuleDefault struct {
	Level string `json:"level"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

// SARIFReporter emits a single-run SARIF 2.1.0 log.
type SARIFReporter struct{}

// riskToSARIFLevel maps risk levels onto the three SARIF levels.
func riskToSARIFLevel(level risk.Level) string {
	switch {
	case level >= risk.High:
		return "error"
	case level == risk.Medium:
		return "warning"
	default:
		return "note"
	}
}

func severityToSARIFLevel(s policy.Severity) string {
	if s == policy.SeverityError {
		return "error"
	}
	return "warning"
}

// Report writes the SARIF log.
func (r *SARIFReporter) Report(w io.Writer, results []analyzer.Result) error {
	ruleLevels := make(map[string]string)
	var sarifResults []sarifResult

	for _, res := range results {
		for _, c := range res.Checks {
			level := riskToSARIFLevel(c.EffectiveRisk())
			if _, seen := ruleLevels[c.RuleID]; !seen {
				ruleLevels[c.RuleID] = level
			}
			sarifResults = append(sarifResults, sarifResult{
				RuleID:  c.RuleID,
				Level:   level,
				Message: sarifMessage{Text: c.Message},
				Locations: []sarifLocation{{
					PhysicalLocation: sarifPhysicalLocation{
						ArtifactLocation: sarifArtifactLocation{URI: res.Path},
					},
				}},
			})
		}

		for _, v := range res.Violations {
			id := "policy-" + v.RuleID
			level := severityToSARIFLevel(v.Severity)
			if _, seen := ruleLevels[id]; !seen {
				ruleLevels[id] = level
			}
			sarifResults = append(sarifResults, sarifResult{
				RuleID:  id,
				Level:   level,
				Message: sarifMessage{Text: v.Message},
				Locations: []sarifLocation{{
					PhysicalLocation: sarifPhysicalLocation{
						ArtifactLocation: sarifArtifactLocation{URI: res.Path},
					},
				}},
			})
		}
	}

	ids := make([]string, 0, len(ruleLevels))
	for id := range ruleLevels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sarifRules := make([]sarifRule, 0, len(ids))
	for _, id := range ids {
		sarifRules = append(sarifRules, sarifRule{
			ID:               id,
			ShortDescription: sarifMessage{Text: id},
			DefaultConfig:    &sarifRuleDefault{Level: ruleLevels[id]},
		})
	}

	if sarifResults == nil {
		sarifResults = []sarifResult{}
	}

	log := sarifLog{
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:  "pgfence",
				Rules: sarifRules,
			}},
			Results: sarifResults,
		}},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}
