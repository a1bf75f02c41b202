package clean

import (
	"maps"
	"slices"
)

// TableReport accounts for every row of one table passing through cleaning.
type TableReport struct {
	Table   string         `json:"table"`
	RowsIn  int            `json:"rows_in"`
	RowsOut int            `json:"rows_out"`
	Dropped map[Reason]int `json:"dropped,omitempty"`
}

func newTableReport(table string, rowsIn int) TableReport {
	return TableReport{Table: table, RowsIn: rowsIn, Dropped: map[Reason]int{}}
}

func (r *TableReport) drop(reason Reason) {
	r.Dropped[reason]++
}

// DroppedTotal is RowsIn - RowsOut.
func (r TableReport) DroppedTotal() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}

// Reasons returns the drop reasons in lexical order.
func (r TableReport) Reasons() []Reason {
	return slices.Sorted(maps.Keys(r.Dropped))
}

// LogAttrs returns slog key/value pairs summarising the table.
func (r TableReport) LogAttrs() []any {
	attrs := []any{"table", r.Table, "rows_in", r.RowsIn, "rows_out", r.RowsOut, "dropped", r.DroppedTotal()}
	for _, reason := range r.Reasons() {
		attrs = append(attrs, "dropped."+string(reason), r.Dropped[reason])
	}
	return attrs
}

// Report is the cleaning report of one run.
type Report struct {
	Trucks         TableReport `json:"truck"`
	PaymentMethods TableReport `json:"payment_method"`
	Transactions   TableReport `json:"transaction"`
}

func (r *Report) Tables() []TableReport {
	return []TableReport{r.Trucks, r.PaymentMethods, r.Transactions}
}
