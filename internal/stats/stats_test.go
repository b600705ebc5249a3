package stats_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flvmnt/pgfence/internal/stats"
)

const statsArray = `[
  {"schemaName":"public","tableName":"users","rowCount":12000000,"totalBytes":536870912},
  {"schemaName":"public","tableName":"orders","rowCount":50000,"totalBytes":1048576}
]`

func TestDecodeArray(t *testing.T) {
	t.Parallel()

	got, err := stats.Decode([]byte(statsArray), "inline")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "users", got[0].TableName)
	assert.Equal(t, int64(12_000_000), got[0].RowCount)
	assert.Equal(t, int64(536_870_912), got[0].TotalBytes)
}

func TestDecodeEnvelope(t *testing.T) {
	t.Parallel()

	got, err := stats.Decode([]byte(`{"tables": `+statsArray+`}`), "inline")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := stats.Decode([]byte(`{"rows": 3}`), "inline")
	assert.Error(t, err)

	_, err = stats.Decode([]byte(`not json`), "inline")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stats.json")
	require.NoError(t, os.WriteFile(path, []byte(statsArray), 0o644))

	got, err := stats.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = stats.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
