// Package warehouse holds the analytical-store assets shared by the pipeline and reporting
// binaries.
package warehouse

import "embed"

//go:embed db/clickhouse/migrations/*.sql
var ClickHouseMigrationsFS embed.FS
