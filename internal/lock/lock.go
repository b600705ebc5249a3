// Package lock models PostgreSQL table-level lock modes and their
// documented conflict semantics.
package lock

// Mode represents a PostgreSQL table-level lock mode, ordered from least
// to most restrictive. The ordinal order is significant: keeping the
// strongest lock per table relies on it.
type Mode int

const (
	AccessShare Mode = iota
	RowShare
	RowExclusive
	ShareUpdateExclusive
	Share
	ShareRowExclusive
	Exclusive
	AccessExclusive
)

// String returns the SQL spelling of the lock mode.
func (m Mode) String() string {
	switch m {
	case AccessShare:
		return "ACCESS SHARE"
	case RowShare:
		return "ROW SHARE"
	case RowExclusive:
		return "ROW EXCLUSIVE"
	case ShareUpdateExclusive:
		return "SHARE UPDATE EXCLUSIVE"
	case Share:
		return "SHARE"
	case ShareRowExclusive:
		return "SHARE ROW EXCLUSIVE"
	case Exclusive:
		return "EXCLUSIVE"
	case AccessExclusive:
		return "ACCESS EXCLUSIVE"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON encodes the mode as its SQL spelling.
func (m Mode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// conflictMatrix maps each mode to the set of modes it conflicts with,
// as documented in the PostgreSQL manual (Table-Level Lock Modes).
var conflictMatrix = map[Mode][]Mode{
	AccessShare:          {AccessExclusive},
	RowShare:             {Exclusive, AccessExclusive},
	RowExclusive:         {Share, ShareRowExclusive, Exclusive, AccessExclusive},
	ShareUpdateExclusive: {ShareUpdateExclusive, Share, ShareRowExclusive, Exclusive, AccessExclusive},
	Share:                {RowExclusive, ShareUpdateExclusive, ShareRowExclusive, Exclusive, AccessExclusive},
	ShareRowExclusive:    {RowExclusive, ShareUpdateExclusive, Share, ShareRowExclusive, Exclusive, AccessExclusive},
	Exclusive:            {RowShare, RowExclusive, ShareUpdateExclusive, Share, ShareRowExclusive, Exclusive, AccessExclusive},
	AccessExclusive:      {AccessShare, RowShare, RowExclusive, ShareUpdateExclusive, Share, ShareRowExclusive, Exclusive, AccessExclusive},
}

// ConflictsWith reports whether holding m excludes acquiring other.
func (m Mode) ConflictsWith(other Mode) bool {
	for _, c := range conflictMatrix[m] {
		if c == other {
			return true
		}
	}
	return false
}

// Blocked describes which classes of concurrent work a lock mode shuts out.
type Blocked struct {
	Reads    bool `json:"reads"`
	Writes   bool `json:"writes"`
	OtherDDL bool `json:"otherDDL"`
}

// BlockedOps derives the blocked-operations triple for a mode. Reads take
// ACCESS SHARE, writes take ROW EXCLUSIVE, and DDL takes ACCESS EXCLUSIVE,
// so the triple falls out of the conflict matrix.
func BlockedOps(m Mode) Blocked {
	return Blocked{
		Reads:    m.ConflictsWith(AccessShare),
		Writes:   m.ConflictsWith(RowExclusive),
		OtherDDL: m.ConflictsWith(AccessExclusive),
	}
}

// Strongest returns the more restrictive of two modes.
func Strongest(a, b Mode) Mode {
	if a > b {
		return a
	}
	return b
}
