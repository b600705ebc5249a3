package lock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flvmnt/pgfence/internal/lock"
)

var allModes = []lock.Mode{
	lock.AccessShare,
	lock.RowShare,
	lock.RowExclusive,
	lock.ShareUpdateExclusive,
	lock.Share,
	lock.ShareRowExclusive,
	lock.Exclusive,
	lock.AccessExclusive,
}

func TestModeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ACCESS SHARE", lock.AccessShare.String())
	assert.Equal(t, "SHARE UPDATE EXCLUSIVE", lock.ShareUpdateExclusive.String())
	assert.Equal(t, "ACCESS EXCLUSIVE", lock.AccessExclusive.String())
}

func TestConflictMatrixSymmetry(t *testing.T) {
	t.Parallel()

	for _, a := range allModes {
		for _, b := range allModes {
			assert.Equal(t, a.ConflictsWith(b), b.ConflictsWith(a),
				"conflict between %s and %s must be symmetric", a, b)
		}
	}
}

func TestAccessExclusiveConflictsWithEverything(t *testing.T) {
	t.Parallel()

	for _, m := range allModes {
		assert.True(t, lock.AccessExclusive.ConflictsWith(m), "ACCESS EXCLUSIVE vs %s", m)
	}
}

func TestAccessShareOnlyConflictsWithAccessExclusive(t *testing.T) {
	t.Parallel()

	for _, m := range allModes {
		want := m == lock.AccessExclusive
		assert.Equal(t, want, lock.AccessShare.ConflictsWith(m), "ACCESS SHARE vs %s", m)
	}
}

func TestBlockedOps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode lock.Mode
		want lock.Blocked
	}{
		{lock.AccessShare, lock.Blocked{OtherDDL: true}},
		{lock.RowExclusive, lock.Blocked{OtherDDL: true}},
		{lock.ShareUpdateExclusive, lock.Blocked{OtherDDL: true}},
		{lock.Share, lock.Blocked{Writes: true, OtherDDL: true}},
		{lock.ShareRowExclusive, lock.Blocked{Writes: true, OtherDDL: true}},
		{lock.Exclusive, lock.Blocked{Writes: true, OtherDDL: true}},
		{lock.AccessExclusive, lock.Blocked{Reads: true, Writes: true, OtherDDL: true}},
	}

	for _, tt := range tests {
		got := lock.BlockedOps(tt.mode)
		assert.Equal(t, tt.want, got, "blocked ops for %s", tt.mode)
	}
}

// The blocked triple is defined by the conflict matrix itself; check the
// derivation for every mode.
func TestBlockedOpsMatchesMatrix(t *testing.T) {
	t.Parallel()

	for _, m := range allModes {
		b := lock.BlockedOps(m)
		assert.Equal(t, m.ConflictsWith(lock.AccessShare), b.Reads, "%s reads", m)
		assert.Equal(t, m.ConflictsWith(lock.RowExclusive), b.Writes, "%s writes", m)
		assert.Equal(t, m.ConflictsWith(lock.AccessExclusive), b.OtherDDL, "%s ddl", m)
	}
}

func TestStrongest(t *testing.T) {
	t.Parallel()

	assert.Equal(t, lock.AccessExclusive, lock.Strongest(lock.Share, lock.AccessExclusive))
	assert.Equal(t, lock.AccessExclusive, lock.Strongest(lock.AccessExclusive, lock.Share))
	assert.Equal(t, lock.Share, lock.Strongest(lock.Share, lock.Share))
}
