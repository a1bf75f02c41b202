package load

import (
	"bytes"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/t3/lake/pipeline/pkg/clean"
	"github.com/t3/lake/warehouse/pkg/clickhouse/dataset"
)

// arrowTypes maps the ClickHouse column types of the lake schemas to Parquet-bound Arrow types.
var arrowTypes = map[string]arrow.DataType{
	"Int32":                arrow.PrimitiveTypes.Int32,
	"Int64":                arrow.PrimitiveTypes.Int64,
	"String":               arrow.BinaryTypes.String,
	"DateTime64(6, 'UTC')": arrow.FixedWidthTypes.Timestamp_us,
}

// ArrowSchema converts a lake schema to an Arrow schema.
func ArrowSchema(s dataset.Schema) (*arrow.Schema, error) {
	cols, err := dataset.ParseColumns(s)
	if err != nil {
		return nil, err
	}
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		typ, ok := arrowTypes[c.Type]
		if !ok {
			return nil, fmt.Errorf("%s.%s: unsupported column type %q", s.Name(), c.Name, c.Type)
		}
		fields[i] = arrow.Field{Name: c.Name, Type: typ}
	}
	return arrow.NewSchema(fields, nil), nil
}

// encodeRows writes n rows as a single Snappy-compressed Parquet file. row(i) must return the
// values of row i in schema column order.
func encodeRows(s dataset.Schema, n int, row func(i int) []any) ([]byte, error) {
	schema, err := ArrowSchema(s)
	if err != nil {
		return nil, err
	}

	mem := memory.DefaultAllocator
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for i := range n {
		vals := row(i)
		if len(vals) != len(schema.Fields()) {
			return nil, fmt.Errorf("%s: row %d has %d values for %d columns", s.Name(), i, len(vals), len(schema.Fields()))
		}
		for j, v := range vals {
			if err := appendValue(b.Field(j), v); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", s.Name(), schema.Field(j).Name, err)
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithCreatedBy("t3-lake"),
	)
	w, err := pqarrow.NewFileWriter(schema, &buf, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write %s: %w", s.Name(), err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func appendValue(b array.Builder, v any) error {
	switch b := b.(type) {
	case *array.Int64Builder:
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("want int64, got %T", v)
		}
		b.Append(n)
	case *array.Int32Builder:
		n, ok := v.(int32)
		if !ok {
			return fmt.Errorf("want int32, got %T", v)
		}
		b.Append(n)
	case *array.StringBuilder:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("want string, got %T", v)
		}
		b.Append(s)
	case *array.TimestampBuilder:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("want time.Time, got %T", v)
		}
		b.Append(arrow.Timestamp(t.UTC().UnixMicro()))
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	return nil
}

func EncodeTrucks(rows []clean.Truck) ([]byte, error) {
	return encodeRows(dataset.TruckSchema, len(rows), func(i int) []any {
		r := rows[i]
		return []any{r.TruckID, r.TruckName, r.TruckDescription, r.HasCardReader, r.FSARating}
	})
}

func EncodePaymentMethods(rows []clean.PaymentMethod) ([]byte, error) {
	return encodeRows(dataset.PaymentMethodSchema, len(rows), func(i int) []any {
		r := rows[i]
		return []any{r.PaymentMethodID, r.PaymentMethod}
	})
}

// EncodeTransactions encodes transactions with their partition columns.
func EncodeTransactions(rows []clean.Transaction) ([]byte, error) {
	return encodeRows(dataset.TransactionSchema, len(rows), func(i int) []any {
		r := rows[i]
		p := PartitionOf(r.At)
		return []any{r.TransactionID, r.TruckID, r.PaymentMethodID, r.Total, r.At, p.Year, p.Month, p.Day, p.Hour}
	})
}
