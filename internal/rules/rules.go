// Package rules implements the statement-level rule engine: every rule is a
// pure function over one parsed statement producing zero or more check
// results. Rules hold no state; migration-scope checks live in the policy
// engine.
package rules

import (
	"fmt"

	"github.com/flvmnt/pgfence/internal/lock"
	"github.com/flvmnt/pgfence/internal/parser"
	"github.com/flvmnt/pgfence/internal/rewrite"
	"github.com/flvmnt/pgfence/internal/risk"
	"github.com/flvmnt/pgfence/internal/snapshot"
)

// Context provides the immutable configuration rules read during a check.
type Context struct {
	// MinPGVersion is the oldest PostgreSQL major version the migration
	// must be safe on.
	MinPGVersion int

	// PreviewWidth bounds statement previews embedded in messages.
	PreviewWidth int

	// Snapshot is the optional schema snapshot used to confirm cheap
	// conversions. Nil when no snapshot was supplied.
	Snapshot *snapshot.Snapshot
}

// CheckResult is the output unit of a rule.
type CheckResult struct {
	// Statement is the original trimmed SQL text.
	Statement string `json:"statement"`

	// Preview is the comment-stripped, truncated form used in messages.
	Preview string `json:"preview"`

	// Table is the case-folded target table, empty when unknown.
	Table string `json:"table,omitempty"`

	// Lock is the mode the statement acquires; nil for advisory findings
	// that carry no lock of their own.
	Lock *lock.Mode `json:"lock,omitempty"`

	// Blocked is the blocked-operations triple derived from Lock.
	Blocked lock.Blocked `json:"blocked"`

	// BaseRisk is the calibrated risk before any size adjustment.
	BaseRisk risk.Level `json:"baseRisk"`

	// AdjustedRisk is the size-adjusted risk, set by the risk adjuster
	// when table statistics are available.
	AdjustedRisk *risk.Level `json:"adjustedRisk,omitempty"`

	// Message is the human-readable explanation.
	Message string `json:"message"`

	// RuleID uniquely identifies the rule that fired.
	RuleID string `json:"ruleId"`

	// Rewrite is the optional safe-rewrite recipe.
	Rewrite *rewrite.Recipe `json:"safeRewrite,omitempty"`

	// AppliesToNewTables keeps the finding alive even when the target
	// table was created earlier in the same batch.
	AppliesToNewTables bool `json:"appliesToNewTables,omitempty"`
}

// EffectiveRisk returns the adjusted risk when present, the base otherwise.
func (c *CheckResult) EffectiveRisk() risk.Level {
	if c.AdjustedRisk != nil {
		return *c.AdjustedRisk
	}
	return c.BaseRisk
}

// LockName returns the SQL spelling of the acquired lock, or "".
func (c *CheckResult) LockName() string {
	if c.Lock == nil {
		return ""
	}
	return c.Lock.String()
}

// Rule is a pure check over one parsed statement.
type Rule interface {
	// ID returns the rule's primary kebab-case identifier. Rules that
	// emit variant IDs (e.g. truncate-cascade) still report one primary.
	ID() string

	// Check examines a statement and returns any findings.
	Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult
}

// ErrDuplicateRuleID is returned when two rules register the same ID.
var ErrDuplicateRuleID = fmt.Errorf("duplicate rule ID")

// Registry holds an ordered collection of rules.
type Registry struct {
	rules []Rule
	seen  map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]bool)}
}

// Register adds a rule, rejecting duplicate primary IDs.
func (r *Registry) Register(rule Rule) error {
	if r.seen[rule.ID()] {
		return fmt.Errorf("%w: %s", ErrDuplicateRuleID, rule.ID())
	}
	r.seen[rule.ID()] = true
	r.rules = append(r.rules, rule)
	return nil
}

// MustRegister panics on a duplicate ID; used for the built-in catalogue.
func (r *Registry) MustRegister(rule Rule) {
	if err := r.Register(rule); err != nil {
		panic(err)
	}
}

// Rules returns all registered rules in registration order.
func (r *Registry) Rules() []Rule {
	return r.rules
}

// DefaultRegistry returns a registry with the full built-in catalogue.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, rule := range builtinRules() {
		r.MustRegister(rule)
	}
	return r
}

func builtinRules() []Rule {
	return []Rule{
		// ADD COLUMN family
		&AddColumnNotNullRule{},
		&AddColumnConstantDefaultRule{},
		&AddColumnVolatileDefaultRule{},
		&AddColumnDefaultPrePG11Rule{},
		&AddColumnJSONRule{},
		&AddColumnSerialRule{},
		&AddColumnGeneratedRule{},
		// Indexes
		&CreateIndexRule{},
		&DropIndexRule{},
		// Column alterations
		&AlterColumnTypeRule{},
		&SetNotNullRule{},
		// Constraints
		&AddForeignKeyRule{},
		&AddCheckRule{},
		&AddUniqueRule{},
		&AddPrimaryKeyRule{},
		&AddExcludeRule{},
		&ValidateConstraintRule{},
		// Renames and drops
		&RenameRule{},
		&DropTableRule{},
		&DropColumnRule{},
		// DML
		&TruncateRule{},
		&DeleteWithoutWhereRule{},
		// Maintenance
		&VacuumFullRule{},
		&ReindexRule{},
		&RefreshMatViewRule{},
		// Enums
		&AlterEnumRule{},
		// Triggers
		&CreateTriggerRule{},
		&DropTriggerRule{},
		&TriggerToggleRule{},
		// Partitions
		&AttachPartitionRule{},
		&DetachPartitionRule{},
		// Schema hygiene
		&PreferBigintRule{},
		&PreferTextRule{},
		&PreferTimestamptzRule{},
		&RobustDDLRule{},
	}
}
