package watermark

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/t3/lake/warehouse/pkg/clickhouse"
)

type fakeClient struct {
	conn    *fakeConn
	connErr error
}

func (c *fakeClient) Conn(context.Context) (clickhouse.Connection, error) {
	if c.connErr != nil {
		return nil, c.connErr
	}
	return c.conn, nil
}

func (c *fakeClient) Close() error { return nil }

// fakeConn answers QueryRow with the values queued for a query.
type fakeConn struct {
	rows    map[string][]any
	rowErr  error
	queries []string
	args    [][]any
}

func (c *fakeConn) Exec(context.Context, string, ...any) error { return errors.New("not implemented") }

func (c *fakeConn) Query(context.Context, string, ...any) (driver.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) QueryRow(_ context.Context, query string, args ...any) driver.Row {
	c.queries = append(c.queries, query)
	c.args = append(c.args, args)
	if c.rowErr != nil {
		return &fakeRow{err: c.rowErr}
	}
	vals, ok := c.rows[query]
	if !ok {
		return &fakeRow{err: fmt.Errorf("unexpected query %q", query)}
	}
	return &fakeRow{vals: vals}
}

func (c *fakeConn) Close() error { return nil }

type fakeRow struct {
	vals []any
	err  error
}

func (r *fakeRow) Err() error { return r.err }

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.vals))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

func (r *fakeRow) ScanStruct(any) error { return errors.New("not implemented") }
