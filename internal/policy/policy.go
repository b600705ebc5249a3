// Package policy implements the file-scope policy engine: a single linear
// walk over a migration's statement list driving a transaction state
// machine, emitting violations for missing timeouts, compounding ACCESS
// EXCLUSIVE locks, wide lock windows, and transaction-scoped antipatterns.
package policy

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/flvmnt/pgfence/internal/parser"
	"github.com/flvmnt/pgfence/internal/pgast"
)

// Severity grades a policy violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is the output unit of the policy engine.
type Violation struct {
	RuleID       string   `json:"ruleId"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
	SuggestedFix string   `json:"suggestedFix,omitempty"`
}

// Default timeout ceilings.
const (
	DefaultMaxLockTimeoutMs      = 5_000
	DefaultMaxStatementTimeoutMs = 600_000
)

// Config carries the policy knobs. The zero value requires neither timeout;
// zero ceilings fall back to the defaults.
type Config struct {
	RequireLockTimeout      bool
	RequireStatementTimeout bool
	MaxLockTimeoutMs        int64
	MaxStatementTimeoutMs   int64

	// AutoCommit is the extractor hint: the host migration runs without a
	// wrapping transaction, so locks do not accumulate across statements.
	AutoCommit bool

	PreviewWidth int
}

// DefaultConfig returns the standard policy configuration.
func DefaultConfig() Config {
	return Config{
		RequireLockTimeout:      true,
		RequireStatementTimeout: true,
		MaxLockTimeoutMs:        DefaultMaxLockTimeoutMs,
		MaxStatementTimeoutMs:   DefaultMaxStatementTimeoutMs,
	}
}

// Engine walks one file's statements. Instantiate fresh per file.
type Engine struct {
	cfg Config
}

// NewEngine creates a policy engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	if cfg.MaxLockTimeoutMs == 0 {
		cfg.MaxLockTimeoutMs = DefaultMaxLockTimeoutMs
	}
	if cfg.MaxStatementTimeoutMs == 0 {
		cfg.MaxStatementTimeoutMs = DefaultMaxStatementTimeoutMs
	}
	return &Engine{cfg: cfg}
}

// constraintKey identifies a constraint added NOT VALID in the current
// transaction.
type constraintKey struct {
	table      string
	constraint string
}

// Check runs the policy walk and returns all violations.
func (e *Engine) Check(stmts []parser.ParsedStatement) []Violation {
	var violations []Violation

	state := NewTxState()
	notValid := make(map[constraintKey]bool)

	lockTimeoutIdx := -1
	statementTimeoutIdx := -1
	hasApplicationName := false
	hasIdleTimeout := false

	firstDangerousIdx := -1
	firstDangerousPreview := ""
	prevDangerousInTxIdx := -1
	prevDangerousPreview := ""

	for i, stmt := range stmts {
		if stmt.Stmt == nil {
			continue
		}
		state.CountStatement()

		if vs := stmt.Stmt.GetVariableSetStmt(); vs != nil {
			violations = append(violations, e.checkVariableSet(vs, i, &lockTimeoutIdx, &statementTimeoutIdx, &hasApplicationName, &hasIdleTimeout)...)
			continue
		}

		if tx := stmt.Stmt.GetTransactionStmt(); tx != nil {
			endedTx := e.applyTransaction(state, tx)
			if endedTx {
				notValid = make(map[constraintKey]bool)
				prevDangerousInTxIdx = -1
				prevDangerousPreview = ""
			}
			continue
		}

		// CREATE INDEX CONCURRENTLY cannot run inside a transaction.
		if idx := stmt.Stmt.GetIndexStmt(); idx != nil && idx.Concurrent && state.Active() {
			violations = append(violations, Violation{
				RuleID:   "concurrent-in-transaction",
				Severity: SeverityError,
				Message:  fmt.Sprintf("CREATE INDEX CONCURRENTLY cannot run inside a transaction: %s", e.preview(stmt)),
				SuggestedFix: "Move the concurrent index build outside the BEGIN/COMMIT block; " +
					"most migration runners support a no-transaction mode for it.",
			})
		}

		// UPDATE without WHERE in a migration touches every row.
		if upd := stmt.Stmt.GetUpdateStmt(); upd != nil && upd.WhereClause == nil {
			violations = append(violations, Violation{
				RuleID:       "update-in-migration",
				Severity:     SeverityWarning,
				Message:      fmt.Sprintf("UPDATE without WHERE rewrites every row of %s inside the migration: %s", pgast.TableName(upd.Relation), e.preview(stmt)),
				SuggestedFix: "Backfill in batches from a separate job instead of a schema migration.",
			})
		}

		violations = append(violations, e.trackConstraints(stmt, state, notValid)...)

		dangerous := isDangerous(stmt.Stmt)
		inTxScope := state.Active() || !e.cfg.AutoCommit

		for _, tl := range statementLocks(stmt.Stmt) {
			if !inTxScope {
				continue
			}
			rec := state.RecordLock(tl.table, tl.mode, dangerous)
			if rec.WideLockWindow {
				violations = append(violations, Violation{
					RuleID:   "wide-lock-window",
					Severity: SeverityWarning,
					Message: fmt.Sprintf("transaction holds ACCESS EXCLUSIVE on %s and now takes it on %s, widening the blast radius",
						strings.Join(rec.PreviousTables, ", "), tl.table),
					SuggestedFix: "Split the migration so each transaction locks a single table.",
				})
			}
		}

		if dangerous {
			if firstDangerousIdx < 0 {
				firstDangerousIdx = i
				firstDangerousPreview = e.preview(stmt)
			}
			if inTxScope && prevDangerousInTxIdx >= 0 && !e.cfg.AutoCommit {
				violations = append(violations, Violation{
					RuleID:   "statement-after-access-exclusive",
					Severity: SeverityWarning,
					Message: fmt.Sprintf("%q runs while the ACCESS EXCLUSIVE lock from %q is still held; the blocking window covers both",
						e.preview(stmt), prevDangerousPreview),
					SuggestedFix: "Commit between the two statements, or move the second into its own migration.",
				})
			}
			if inTxScope {
				prevDangerousInTxIdx = i
				prevDangerousPreview = e.preview(stmt)
			}
		}
	}

	violations = append(violations, e.finalChecks(lockTimeoutIdx, statementTimeoutIdx, hasApplicationName, hasIdleTimeout, firstDangerousIdx, firstDangerousPreview)...)
	return violations
}

// preview renders a statement for violation messages.
func (e *Engine) preview(stmt parser.ParsedStatement) string {
	return parser.Preview(stmt.SQL, e.cfg.PreviewWidth)
}

// checkVariableSet handles SET statements: timeout indices, presence
// flags, and the timeout ceilings.
func (e *Engine) checkVariableSet(vs *pg_query.VariableSetStmt, idx int, lockTimeoutIdx, statementTimeoutIdx *int, hasAppName, hasIdleTimeout *bool) []Violation {
	if vs.Kind != pg_query.VariableSetKind_VAR_SET_VALUE {
		return nil
	}

	var violations []Violation
	name := strings.ToLower(vs.Name)

	switch name {
	case "lock_timeout":
		if *lockTimeoutIdx < 0 {
			*lockTimeoutIdx = idx
		}
		if t, ok := setTimeoutValue(vs); ok && t.Exceeds(e.cfg.MaxLockTimeoutMs) {
			violations = append(violations, Violation{
				RuleID:       "lock-timeout-too-long",
				Severity:     SeverityWarning,
				Message:      fmt.Sprintf("lock_timeout %s exceeds the %dms ceiling; blocked DDL queues everything behind it for that long", timeoutDisplay(t), e.cfg.MaxLockTimeoutMs),
				SuggestedFix: fmt.Sprintf("SET lock_timeout = '%dms';", e.cfg.MaxLockTimeoutMs),
			})
		}
	case "statement_timeout":
		if *statementTimeoutIdx < 0 {
			*statementTimeoutIdx = idx
		}
		if t, ok := setTimeoutValue(vs); ok && t.Exceeds(e.cfg.MaxStatementTimeoutMs) {
			violations = append(violations, Violation{
				RuleID:       "statement-timeout-too-long",
				Severity:     SeverityWarning,
				Message:      fmt.Sprintf("statement_timeout %s exceeds the %dms ceiling", timeoutDisplay(t), e.cfg.MaxStatementTimeoutMs),
				SuggestedFix: fmt.Sprintf("SET statement_timeout = '%dms';", e.cfg.MaxStatementTimeoutMs),
			})
		}
	case "application_name":
		*hasAppName = true
	case "idle_in_transaction_session_timeout":
		*hasIdleTimeout = true
	}

	return violations
}

func timeoutDisplay(t Timeout) string {
	if t.Unlimited {
		return "0 (unlimited)"
	}
	return fmt.Sprintf("%dms", t.Millis)
}

// setTimeoutValue extracts and parses the first argument of a SET.
func setTimeoutValue(vs *pg_query.VariableSetStmt) (Timeout, bool) {
	if len(vs.Args) == 0 {
		return Timeout{}, false
	}
	c := vs.Args[0].GetAConst()
	if c == nil {
		return Timeout{}, false
	}

	var raw string
	switch {
	case c.GetIval() != nil:
		raw = fmt.Sprintf("%d", c.GetIval().Ival)
	case c.GetSval() != nil:
		raw = c.GetSval().Sval
	case c.GetFval() != nil:
		raw = c.GetFval().Fval
	default:
		return Timeout{}, false
	}

	t, err := ParseTimeout(raw)
	if err != nil {
		return Timeout{}, false
	}
	return t, true
}

// applyTransaction advances the state machine; returns true when a
// top-level transaction ended (COMMIT or ROLLBACK to depth zero).
func (e *Engine) applyTransaction(state *TxState, tx *pg_query.TransactionStmt) bool {
	switch tx.Kind {
	case pg_query.TransactionStmtKind_TRANS_STMT_BEGIN,
		pg_query.TransactionStmtKind_TRANS_STMT_START:
		state.Begin()
	case pg_query.TransactionStmtKind_TRANS_STMT_COMMIT,
		pg_query.TransactionStmtKind_TRANS_STMT_ROLLBACK:
		state.End()
		return !state.Active()
	case pg_query.TransactionStmtKind_TRANS_STMT_SAVEPOINT:
		state.Savepoint(tx.SavepointName)
	case pg_query.TransactionStmtKind_TRANS_STMT_RELEASE:
		state.Release(tx.SavepointName)
	case pg_query.TransactionStmtKind_TRANS_STMT_ROLLBACK_TO:
		state.RollbackTo(tx.SavepointName)
	}
	return false
}

// trackConstraints maintains the NOT VALID bookkeeping and flags a
// VALIDATE CONSTRAINT that lands in the same transaction as its ADD.
// Outside a transaction each statement commits alone and the two-step
// pattern works as intended.
func (e *Engine) trackConstraints(stmt parser.ParsedStatement, state *TxState, notValid map[constraintKey]bool) []Violation {
	alter := stmt.Stmt.GetAlterTableStmt()
	if alter == nil || !state.Active() {
		return nil
	}

	table := pgast.TableName(alter.Relation)
	var violations []Violation

	for _, cmd := range pgast.AlterTableCmds(alter) {
		switch cmd.Subtype {
		case pg_query.AlterTableType_AT_AddConstraint:
			if cmd.Def == nil {
				continue
			}
			if con := cmd.Def.GetConstraint(); con != nil && con.SkipValidation && con.Conname != "" {
				notValid[constraintKey{table, strings.ToLower(con.Conname)}] = true
			}
		case pg_query.AlterTableType_AT_ValidateConstraint:
			if notValid[constraintKey{table, strings.ToLower(cmd.Name)}] {
				violations = append(violations, Violation{
					RuleID:   "not-valid-validate-same-tx",
					Severity: SeverityError,
					Message: fmt.Sprintf("constraint %s on %s is added NOT VALID and validated in the same transaction; the lock is held across both, defeating the two-step pattern",
						cmd.Name, table),
					SuggestedFix: "Run VALIDATE CONSTRAINT in a separate transaction (or rely on per-statement autocommit).",
				})
			}
		}
	}

	return violations
}

// finalChecks runs after the walk.
func (e *Engine) finalChecks(lockTimeoutIdx, statementTimeoutIdx int, hasAppName, hasIdleTimeout bool, firstDangerousIdx int, firstDangerousPreview string) []Violation {
	var violations []Violation

	if e.cfg.RequireLockTimeout && lockTimeoutIdx < 0 {
		violations = append(violations, Violation{
			RuleID:       "missing-lock-timeout",
			Severity:     SeverityError,
			Message:      "migration never sets lock_timeout; a blocked DDL statement will queue all other traffic indefinitely",
			SuggestedFix: fmt.Sprintf("SET lock_timeout = '%dms'; -- as the first statement", e.cfg.MaxLockTimeoutMs),
		})
	}

	if lockTimeoutIdx > 0 && firstDangerousIdx >= 0 && firstDangerousIdx < lockTimeoutIdx {
		violations = append(violations, Violation{
			RuleID:       "lock-timeout-after-dangerous-statement",
			Severity:     SeverityError,
			Message:      fmt.Sprintf("lock_timeout is set only after %q already ran unprotected", firstDangerousPreview),
			SuggestedFix: "Move SET lock_timeout to the top of the migration.",
		})
	}

	if e.cfg.RequireStatementTimeout && statementTimeoutIdx < 0 {
		violations = append(violations, Violation{
			RuleID:       "missing-statement-timeout",
			Severity:     SeverityWarning,
			Message:      "migration never sets statement_timeout; a runaway backfill or validation can run forever",
			SuggestedFix: fmt.Sprintf("SET statement_timeout = '%dms';", e.cfg.MaxStatementTimeoutMs),
		})
	}

	if !hasAppName {
		violations = append(violations, Violation{
			RuleID:       "missing-application-name",
			Severity:     SeverityWarning,
			Message:      "migration never sets application_name; lock waits from it are hard to attribute in pg_stat_activity",
			SuggestedFix: "SET application_name = 'migration';",
		})
	}

	if !hasIdleTimeout {
		violations = append(violations, Violation{
			RuleID:       "missing-idle-in-transaction-timeout",
			Severity:     SeverityWarning,
			Message:      "migration never sets idle_in_transaction_session_timeout; a stalled client holds its locks forever",
			SuggestedFix: "SET idle_in_transaction_session_timeout = '60s';",
		})
	}

	return violations
}
