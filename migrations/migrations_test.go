package migrations

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestDiscoverOrdersAndChecksums(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_indexes.sql": {Data: []byte("CREATE INDEX a ON b (c);")},
		"0001_init.sql":    {Data: []byte("CREATE TABLE b (c INT);")},
		"README.md":        {Data: []byte("ignored")},
	}
	list, err := Discover(fsys)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "0001", list[0].Version)
	require.Equal(t, "0002_indexes.sql", list[1].Name)
	require.Len(t, list[0].Checksum, 64)
	require.NotEqual(t, list[0].Checksum, list[1].Checksum)
}

func TestDiscoverRejectsDuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1;")},
		"0001_b.sql": {Data: []byte("SELECT 2;")},
	}
	_, err := Discover(fsys)
	require.ErrorContains(t, err, "version 0001")
}

func TestDiscoverRejectsUnversionedName(t *testing.T) {
	_, err := Discover(fstest.MapFS{"init.sql": {Data: []byte("SELECT 1;")}})
	require.Error(t, err)
}

func TestEmbeddedSchemaCoversStores(t *testing.T) {
	list, err := Embedded()
	require.NoError(t, err)
	require.NotEmpty(t, list)
	schema := list[0].SQL
	for _, table := range []string{
		"stock_levels", "stock_movements", "documents", "document_lines", "document_sequences",
		"customer_ledger_entries", "approvals", "audit_logs", "idempotency_keys", "attachments",
	} {
		require.True(t, strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" ("), table)
	}
}
