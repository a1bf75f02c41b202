package dataset

import (
	"fmt"
	"strings"
)

// Schema describes a lake table. Column definitions use the "name:type" form with ClickHouse
// type names, e.g. "at:DateTime64(6, 'UTC')".
type Schema interface {
	// Name returns the table name (e.g., "transaction")
	Name() string
	// Columns returns the column definitions in file order
	Columns() []string
}

// Column is a parsed "name:type" definition.
type Column struct {
	Name string
	Type string
}

// ParseColumns parses every column definition of a schema.
func ParseColumns(s Schema) ([]Column, error) {
	defs := s.Columns()
	cols := make([]Column, 0, len(defs))
	for _, def := range defs {
		name, typ, ok := strings.Cut(def, ":")
		name, typ = strings.TrimSpace(name), strings.TrimSpace(typ)
		if !ok || name == "" || typ == "" {
			return nil, fmt.Errorf("%s: invalid column definition %q", s.Name(), def)
		}
		cols = append(cols, Column{Name: name, Type: typ})
	}
	return cols, nil
}

// ColumnNames returns the names of a schema's columns.
func ColumnNames(s Schema) ([]string, error) {
	cols, err := ParseColumns(s)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names, nil
}

type schema struct {
	name    string
	columns []string
}

func (s schema) Name() string      { return s.name }
func (s schema) Columns() []string { return s.columns }

// Lake tables. These must match db/clickhouse/migrations.
var (
	TruckSchema Schema = schema{
		name: "truck",
		columns: []string{
			"truck_id:Int64",
			"truck_name:String",
			"truck_description:String",
			"has_card_reader:Int64",
			"fsa_rating:Int64",
		},
	}

	PaymentMethodSchema Schema = schema{
		name: "payment_method",
		columns: []string{
			"payment_method_id:Int64",
			"payment_method:String",
		},
	}

	TransactionSchema Schema = schema{
		name: "transaction",
		columns: []string{
			"transaction_id:Int64",
			"truck_id:Int64",
			"payment_method_id:Int64",
			"total:Int64",
			"at:DateTime64(6, 'UTC')",
			"year:Int32",
			"month:Int32",
			"day:Int32",
			"hour:Int32",
		},
	}
)
