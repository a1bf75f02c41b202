package clickhouse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLake_ClickHouse_MigrationConfig_TableEngines(t *testing.T) {
	t.Parallel()

	t.Run("local tables without storage", func(t *testing.T) {
		t.Parallel()

		engines := MigrationConfig{}.TableEngines()
		require.Len(t, engines, 3)
		require.Equal(t, "MergeTree ORDER BY (at, transaction_id)", engines["T3_LAKE_TRANSACTION_ENGINE"])
	})

	t.Run("s3 tables with credentials", func(t *testing.T) {
		t.Parallel()

		engines := MigrationConfig{Storage: &LakeStorage{
			BaseURL:         "https://t3-lake.s3.eu-west-2.amazonaws.com/input",
			AccessKeyID:     "AKIA",
			SecretAccessKey: "s'cret",
		}}.TableEngines()

		require.Equal(t,
			`S3('https://t3-lake.s3.eu-west-2.amazonaws.com/input/transaction/**/*.parquet', 'AKIA', 's\'cret', 'Parquet')`,
			engines["T3_LAKE_TRANSACTION_ENGINE"])
		require.Equal(t,
			`S3('https://t3-lake.s3.eu-west-2.amazonaws.com/input/truck/*.parquet', 'AKIA', 's\'cret', 'Parquet')`,
			engines["T3_LAKE_TRUCK_ENGINE"])
	})

	t.Run("anonymous s3 tables", func(t *testing.T) {
		t.Parallel()

		engines := MigrationConfig{Storage: &LakeStorage{BaseURL: "https://public.example/input/"}}.TableEngines()
		require.Equal(t, `S3('https://public.example/input/payment_method/*.parquet', NOSIGN, 'Parquet')`,
			engines["T3_LAKE_PAYMENT_METHOD_ENGINE"])
	})
}

func TestLake_ClickHouse_ClientConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := ClientConfig{}
	require.EqualError(t, cfg.Validate(), "clickhouse addr is required")

	cfg = ClientConfig{Addr: "localhost:9000"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, DefaultDatabase, cfg.Database)
	require.Equal(t, "default", cfg.Username)
	require.Equal(t, 60, cfg.MaxExecutionTime)
}

func TestLake_ClickHouse_Migrate_UnknownCommand(t *testing.T) {
	t.Parallel()

	err := Migrate(t.Context(), nil, MigrationConfig{}, "sideways")
	require.ErrorContains(t, err, `unknown migration command "sideways"`)
}
