package report

import (
	"encoding/json"
	"io"

	"github.com/flvmnt/pgfence/internal/analyzer"
)

// envelopeVersion is the JSON report schema version.
const envelopeVersion = "1.0"

// Envelope is the machine-readable report shape.
type Envelope struct {
	Version  string            `json:"version"`
	Coverage Coverage          `json:"coverage"`
	Results  []analyzer.Result `json:"results"`
}

// JSONReporter emits the JSON envelope.
type JSONReporter struct{}

// Report writes the envelope with stable indentation.
func (r *JSONReporter) Report(w io.Writer, results []analyzer.Result) error {
	if results == nil {
		results = []analyzer.Result{}
	}
	env := Envelope{
		Version:  envelopeVersion,
		Coverage: ComputeCoverage(results),
		Results:  results,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}
