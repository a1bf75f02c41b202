package dataset

import (
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

var stringType = reflect.TypeOf("")

// InitializeScanTargets allocates one scan target per column using the driver's scan type.
// Nullable columns scan into a **T so NULL is distinguishable from the zero value.
func InitializeScanTargets(columnTypes []driver.ColumnType) []any {
	ptrs := make([]any, len(columnTypes))
	for i, ct := range columnTypes {
		typ := ct.ScanType()
		if typ == nil {
			typ = stringType
		}
		ptrs[i] = reflect.New(typ).Interface()
	}
	return ptrs
}

// DereferencePointer returns the value a scan target points at, or nil for a NULL.
func DereferencePointer(ptr any) any {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return ptr
	}
	v = v.Elem()
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}

func dereferencePointersToMap(ptrs []any, columns []string) map[string]any {
	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = DereferencePointer(ptrs[i])
	}
	return row
}
