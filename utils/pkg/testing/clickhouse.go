package laketesting

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/t3/lake/warehouse/pkg/clickhouse"
	clickhousetesting "github.com/t3/lake/warehouse/pkg/clickhouse/testing"
)

// NewClient creates a client on a fresh database with the lake tables migrated.
func NewClient(t *testing.T, db *clickhousetesting.DB) clickhouse.Client {
	return NewClientWithInfo(t, db).Client
}

// NewClientWithInfo is NewClient that also returns the database name.
func NewClientWithInfo(t *testing.T, db *clickhousetesting.DB) *clickhousetesting.ClientInfo {
	info, err := clickhousetesting.NewTestClientWithInfo(t, db)
	require.NoError(t, err)

	err = clickhouse.RunMigrations(t.Context(), NewLogger(), db.MigrationConfig(info.Database))
	require.NoError(t, err)

	return info
}
