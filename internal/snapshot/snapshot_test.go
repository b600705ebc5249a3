package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flvmnt/pgfence/internal/snapshot"
)

const snapshotJSON = `{
  "version": "1",
  "generatedAt": "2026-01-15T10:00:00Z",
  "tables": [
    {
      "schemaName": "public",
      "tableName": "users",
      "columns": [
        {"columnName": "id", "dataType": "bigint", "udtName": "int8", "isNullable": "NO"},
        {"columnName": "email", "dataType": "character varying", "udtName": "varchar", "characterMaximumLength": 255, "isNullable": "YES"}
      ],
      "constraints": [{"constraintName": "users_pkey", "constraintType": "PRIMARY KEY"}],
      "indexes": [{"indexName": "users_pkey", "isUnique": true}]
    }
  ]
}`

func TestLoadAndLookup(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(snapshotJSON), 0o644))

	snap, err := snapshot.Load(path)
	require.NoError(t, err)
	require.Len(t, snap.Tables, 1)

	col, ok := snap.Column("users", "email")
	require.True(t, ok)
	assert.Equal(t, "varchar", col.UdtName)
	require.NotNil(t, col.CharacterMaximumLength)
	assert.Equal(t, 255, *col.CharacterMaximumLength)

	col, ok = snap.Column("public.users", "ID")
	require.True(t, ok)
	assert.Equal(t, "int8", col.UdtName)

	_, ok = snap.Column("users", "missing")
	assert.False(t, ok)
	_, ok = snap.Column("ghost", "id")
	assert.False(t, ok)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := snapshot.Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))
	_, err = snapshot.Load(path)
	assert.Error(t, err)
}

func TestNilSnapshot(t *testing.T) {
	t.Parallel()

	var snap *snapshot.Snapshot
	_, ok := snap.Column("users", "id")
	assert.False(t, ok)
}
