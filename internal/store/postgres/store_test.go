package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func pricePointsDDL(t *testing.T) string {
	t.Helper()
	for _, stmt := range schema {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS price_points") {
			return stmt
		}
	}
	t.Fatal("price_points table missing from schema")
	return ""
}

func TestPricePointKeyIncludesToken(t *testing.T) {
	ddl := pricePointsDDL(t)
	require.Contains(t, ddl, "PRIMARY KEY (chain_id, pool_id, token, ts)")
	require.Contains(t, insertPricePointSQL, "ON CONFLICT (chain_id, pool_id, token, ts)")
}
