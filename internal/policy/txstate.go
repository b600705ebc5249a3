package policy

import "github.com/flvmnt/pgfence/internal/lock"

// TxState is the live transaction state the policy engine maintains while
// walking one file. Locks are kept per table (strongest wins); savepoints
// snapshot the lock map so ROLLBACK TO can restore it.
type TxState struct {
	depth      int
	savepoints []string
	locks      map[string]lock.Mode
	snapshots  map[string]snapshotState
	aeTables   map[string]bool
	stmtCount  int
}

type snapshotState struct {
	locks    map[string]lock.Mode
	aeTables map[string]bool
}

// NewTxState returns the initial (inactive) state.
func NewTxState() *TxState {
	s := &TxState{}
	s.reset()
	return s
}

func (s *TxState) reset() {
	s.depth = 0
	s.savepoints = nil
	s.locks = make(map[string]lock.Mode)
	s.snapshots = make(map[string]snapshotState)
	s.aeTables = make(map[string]bool)
	s.stmtCount = 0
}

// Active reports whether an explicit transaction is open.
func (s *TxState) Active() bool { return s.depth > 0 }

// Depth returns the nesting depth.
func (s *TxState) Depth() int { return s.depth }

// Begin opens a transaction level.
func (s *TxState) Begin() {
	s.depth++
}

// End closes a transaction level for COMMIT or ROLLBACK. The depth floors
// at zero; on the transition to inactive every field resets.
func (s *TxState) End() {
	if s.depth > 0 {
		s.depth--
	}
	if s.depth == 0 {
		s.reset()
	}
}

// Savepoint pushes a savepoint and snapshots the current lock map.
func (s *TxState) Savepoint(name string) {
	s.savepoints = append(s.savepoints, name)
	s.snapshots[name] = snapshotState{
		locks:    copyLocks(s.locks),
		aeTables: copySet(s.aeTables),
	}
}

// Release pops the named savepoint and everything above it, discarding
// their snapshots. Locks are retained: RELEASE does not undo work.
func (s *TxState) Release(name string) {
	idx := s.findSavepoint(name)
	if idx < 0 {
		return
	}
	for _, sp := range s.savepoints[idx:] {
		delete(s.snapshots, sp)
	}
	s.savepoints = s.savepoints[:idx]
}

// RollbackTo pops savepoints strictly above the named one and restores the
// lock map from its snapshot. The ACCESS EXCLUSIVE set is restored from the
// same snapshot.
func (s *TxState) RollbackTo(name string) {
	idx := s.findSavepoint(name)
	if idx < 0 {
		return
	}
	for _, sp := range s.savepoints[idx+1:] {
		delete(s.snapshots, sp)
	}
	s.savepoints = s.savepoints[:idx+1]

	snap := s.snapshots[name]
	s.locks = copyLocks(snap.locks)
	s.aeTables = copySet(snap.aeTables)
}

func (s *TxState) findSavepoint(name string) int {
	for i := len(s.savepoints) - 1; i >= 0; i-- {
		if s.savepoints[i] == name {
			return i
		}
	}
	return -1
}

// LockRecord is the derived information RecordLock hands back to the
// policy walker.
type LockRecord struct {
	// WideLockWindow is set when the statement takes ACCESS EXCLUSIVE on
	// a table while a different table is already held under it.
	WideLockWindow bool

	// PreviousTables lists the tables already under ACCESS EXCLUSIVE.
	PreviousTables []string
}

// RecordLock notes that the current statement acquires the given mode on a
// table, keeping the strongest mode per table. The dangerous flag marks
// statements that genuinely hold ACCESS EXCLUSIVE for a meaningful window
// (brief metadata-only acquisitions are recorded but not tracked in the
// ACCESS EXCLUSIVE set).
func (s *TxState) RecordLock(table string, mode lock.Mode, dangerous bool) LockRecord {
	rec := LockRecord{}
	if table == "" {
		return rec
	}

	if held, ok := s.locks[table]; !ok || mode > held {
		s.locks[table] = mode
	}

	if dangerous && mode == lock.AccessExclusive {
		if !s.aeTables[table] && len(s.aeTables) > 0 {
			rec.WideLockWindow = true
			for t := range s.aeTables {
				rec.PreviousTables = append(rec.PreviousTables, t)
			}
		}
		s.aeTables[table] = true
	}

	return rec
}

// HeldLock returns the strongest lock recorded for a table.
func (s *TxState) HeldLock(table string) (lock.Mode, bool) {
	m, ok := s.locks[table]
	return m, ok
}

// AccessExclusiveTables returns the tables currently tracked under
// ACCESS EXCLUSIVE.
func (s *TxState) AccessExclusiveTables() []string {
	out := make([]string, 0, len(s.aeTables))
	for t := range s.aeTables {
		out = append(out, t)
	}
	return out
}

// CountStatement increments the per-transaction statement counter.
func (s *TxState) CountStatement() { s.stmtCount++ }

// StatementCount returns the number of statements seen in the current
// transaction.
func (s *TxState) StatementCount() int { return s.stmtCount }

func copyLocks(in map[string]lock.Mode) map[string]lock.Mode {
	out := make(map[string]lock.Mode, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copySet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
