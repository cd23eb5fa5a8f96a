package sqlassets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitStatementsKeepsDollarQuotedBlocksIntact(t *testing.T) {
	t.Parallel()

	script := `
-- leading comment
DO $$
BEGIN
    CREATE TYPE order_status AS ENUM ('draft', 'paid');
EXCEPTION
    WHEN duplicate_object THEN NULL;
END
$$;

CREATE TABLE IF NOT EXISTS stores (store_id UUID PRIMARY KEY);
`
	statements := SplitStatements(script)
	require.Len(t, statements, 2)
	require.True(t, strings.HasPrefix(statements[0], "DO $$"))
	require.Contains(t, statements[0], "duplicate_object")
	require.True(t, strings.HasPrefix(statements[1], "CREATE TABLE"))
}

func TestSplitStatementsDropsCommentOnlyChunks(t *testing.T) {
	t.Parallel()

	script := "-- only a comment;\n\nSELECT 1;\n-- trailing comment\n"
	statements := SplitStatements(script)
	require.Equal(t, []string{"SELECT 1"}, statements)
}

func TestEmbeddedAssetsSplitCleanly(t *testing.T) {
	t.Parallel()

	schema := SplitStatements(TenantSchemaSQL)
	require.NotEmpty(t, schema)
	for _, stmt := range schema {
		require.False(t, strings.Contains(stmt, "FOREIGN KEY"), "schema pass must carry no foreign keys: %s", stmt)
	}

	constraints := SplitStatements(TenantConstraintsSQL)
	require.NotEmpty(t, constraints)
	for _, stmt := range constraints {
		require.True(t, strings.HasPrefix(stmt, "ALTER TABLE"), "constraint pass must be ALTER TABLE statements: %s", stmt)
		require.Contains(t, stmt, "FOREIGN KEY")
	}

	require.NotEmpty(t, SplitStatements(TenantSeedSQL))
	require.NotEmpty(t, SplitStatements(RegistrySQL))
}
