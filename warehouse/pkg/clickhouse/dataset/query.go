package dataset

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/t3/lake/warehouse/pkg/clickhouse"
)

// ColumnMetadata represents metadata about a column.
type ColumnMetadata struct {
	Name             string `json:"name"`
	DatabaseTypeName string `json:"type"`
	ScanType         string `json:"-"`
}

// QueryResult represents the result of a query execution with column metadata.
type QueryResult struct {
	Columns     []string         `json:"columns"`
	ColumnTypes []ColumnMetadata `json:"column_types"`
	Rows        []map[string]any `json:"rows"`
	Count       int              `json:"count"`
}

// ScanQueryResults scans query results into a slice of maps with column metadata.
func ScanQueryResults(rows driver.Rows) (*QueryResult, error) {
	columns := rows.Columns()
	columnTypes := rows.ColumnTypes()

	meta := make([]ColumnMetadata, len(columnTypes))
	for i, ct := range columnTypes {
		meta[i] = ColumnMetadata{Name: ct.Name(), DatabaseTypeName: ct.DatabaseTypeName()}
		if ct.ScanType() != nil {
			meta[i].ScanType = ct.ScanType().String()
		}
	}

	ptrs := InitializeScanTargets(columnTypes)
	result := &QueryResult{Columns: columns, ColumnTypes: meta, Rows: []map[string]any{}}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result.Rows = append(result.Rows, dereferencePointersToMap(ptrs, columns))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	result.Count = len(result.Rows)
	return result, nil
}

// Query executes a raw SQL query and returns the results with column metadata.
//
// Example:
//
//	result, err := dataset.Query(ctx, conn, "SELECT * FROM truck WHERE truck_id = ?", []any{3})
func Query(ctx context.Context, conn clickhouse.Connection, query string, args []any) (*QueryResult, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return ScanQueryResults(rows)
}

// QueryStructs executes a query and scans every row into a T using `ch` struct tags.
func QueryStructs[T any](ctx context.Context, conn clickhouse.Connection, query string, args ...any) ([]T, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var v T
		if err := rows.ScanStruct(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
