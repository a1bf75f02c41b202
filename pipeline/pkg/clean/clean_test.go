package clean

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/t3/lake/pipeline/pkg/source"
)

func v(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }

var null = sql.NullString{}

func txn(id, truck, method, total, at string) source.RawTransaction {
	return source.RawTransaction{
		TransactionID:   v(id),
		TruckID:         v(truck),
		PaymentMethodID: v(method),
		Total:           v(total),
		At:              v(at),
	}
}

func TestLake_Clean_Transactions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		row    source.RawTransaction
		reason Reason
	}{
		{name: "valid", row: txn("1", "3", "2", "1250", "2024-01-01 10:00:00")},
		{name: "truck outside fleet", row: txn("2", "9", "1", "500", "2024-01-01 10:05:00"), reason: "truck_id:out_of_set"},
		{name: "truck zero", row: txn("2", "0", "1", "500", "2024-01-01 10:05:00"), reason: "truck_id:out_of_set"},
		{name: "unknown payment method", row: txn("3", "1", "3", "500", "2024-01-01 10:05:00"), reason: "payment_method_id:out_of_set"},
		{name: "zero total", row: txn("4", "1", "1", "0", "2024-01-01 10:05:00"), reason: "total:zero"},
		{name: "zero total as decimal", row: txn("4", "1", "1", "0.00", "2024-01-01 10:05:00"), reason: "total:zero"},
		{name: "non numeric total", row: txn("5", "1", "1", "abc", "2024-01-01 10:05:00"), reason: "total:not_numeric"},
		{name: "fractional total", row: txn("5", "1", "1", "12.5", "2024-01-01 10:05:00"), reason: "total:not_integer"},
		{name: "bad timestamp", row: txn("6", "1", "1", "500", "yesterday"), reason: "at:unparseable"},
		{name: "non numeric id", row: txn("x7", "1", "1", "500", "2024-01-01 10:05:00"), reason: "transaction_id:not_numeric"},
		{name: "null truck", row: source.RawTransaction{TransactionID: v("8"), TruckID: null, PaymentMethodID: v("1"), Total: v("1"), At: v("2024-01-01")}, reason: "truck_id:missing"},
		{name: "blank total", row: txn("9", "1", "1", "  ", "2024-01-01 10:05:00"), reason: "total:missing"},
		{name: "first failing column wins", row: txn("10", "9", "7", "0", "never"), reason: "truck_id:out_of_set"},
		{name: "negative refund kept", row: txn("11", "6", "1", "-300", "2024-01-01T10:05:00Z")},
		{name: "padded and exponent numbers", row: txn(" 12 ", "2", "1", "5e2", "2024-01-01 10:05:00.250")},
		{name: "huge exponent id", row: txn("1e200000000", "1", "1", "500", "2024-01-01 10:05:00"), reason: "transaction_id:out_of_range"},
		{name: "huge negative exponent total", row: txn("14", "1", "1", "1e-200000000", "2024-01-01 10:05:00"), reason: "total:not_integer"},
		{name: "zero with huge negative exponent", row: txn("15", "1", "1", "0e-200000000", "2024-01-01 10:05:00"), reason: "total:zero"},
		{name: "id above int64", row: txn("9223372036854775808", "1", "1", "500", "2024-01-01 10:05:00"), reason: "transaction_id:out_of_range"},
		{name: "id at int64 max", row: txn("9223372036854775807", "1", "1", "500", "2024-01-01 10:05:00")},
		{name: "integral decimal with trailing zeros", row: txn("16.000", "1", "1", "12.50e1", "2024-01-01 10:05:00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, report := CleanTransactions([]source.RawTransaction{tt.row}, DefaultRules())
			require.Equal(t, 1, report.RowsIn)
			if tt.reason == "" {
				require.Len(t, out, 1)
				require.Equal(t, 1, report.RowsOut)
				require.Empty(t, report.Dropped)
				return
			}
			require.Empty(t, out)
			require.Equal(t, map[Reason]int{tt.reason: 1}, report.Dropped)
		})
	}
}

func TestLake_Clean_Transactions_Values(t *testing.T) {
	t.Parallel()

	out, _ := CleanTransactions([]source.RawTransaction{
		txn(" 12 ", "2", "1", "5e2", "2024-01-01 10:05:00.250"),
		txn("13", "4", "2", "-300", "2024-03-31T02:30:00+01:00"),
	}, DefaultRules())
	require.Equal(t, []Transaction{
		{TransactionID: 12, TruckID: 2, PaymentMethodID: 1, Total: 500, At: time.Date(2024, 1, 1, 10, 5, 0, 250_000_000, time.UTC)},
		{TransactionID: 13, TruckID: 4, PaymentMethodID: 2, Total: -300, At: time.Date(2024, 3, 31, 1, 30, 0, 0, time.UTC)},
	}, out)
}

func TestLake_Clean_Trucks(t *testing.T) {
	t.Parallel()

	rows := []source.RawTruck{
		{TruckID: v("1"), TruckName: v("Burrito Madness"), TruckDescription: v("An authentic taste of Mexico."), HasCardReader: v("1"), FSARating: v("3")},
		{TruckID: v("2"), TruckName: v("Kings of Kebabs"), TruckDescription: v("Locally-sourced meat."), HasCardReader: v("0"), FSARating: v("6")},
		{TruckID: v("3"), TruckName: v("Cupcakes by Michelle"), TruckDescription: v("Handmade cupcakes."), HasCardReader: v("yes"), FSARating: v("5")},
		{TruckID: v("4"), TruckName: v("Hartmann's Jellied Eels"), TruckDescription: null, HasCardReader: v("1"), FSARating: v("4")},
		{TruckID: v("5"), TruckName: v("Yoghurt Heaven"), TruckDescription: v(""), HasCardReader: v("1"), FSARating: v("0")},
		{TruckID: v("6"), TruckName: v("SuperSmoothie"), TruckDescription: v(""), HasCardReader: v("1"), FSARating: v("1")},
	}

	out, report := CleanTrucks(rows, DefaultRules())
	require.Equal(t, []Truck{
		{TruckID: 1, TruckName: "Burrito Madness", TruckDescription: "An authentic taste of Mexico.", HasCardReader: 1, FSARating: 3},
		{TruckID: 6, TruckName: "SuperSmoothie", TruckDescription: "", HasCardReader: 1, FSARating: 1},
	}, out)
	require.Equal(t, TableReport{
		Table:   TableTruck,
		RowsIn:  6,
		RowsOut: 2,
		Dropped: map[Reason]int{
			"fsa_rating:out_of_range":     2,
			"has_card_reader:not_numeric": 1,
			"truck_description:missing":   1,
		},
	}, report)
}

func TestLake_Clean_PaymentMethods(t *testing.T) {
	t.Parallel()

	out, report := CleanPaymentMethods([]source.RawPaymentMethod{
		{PaymentMethodID: v("1"), PaymentMethod: v("cash")},
		{PaymentMethodID: v("2"), PaymentMethod: v("card")},
		{PaymentMethodID: null, PaymentMethod: v("voucher")},
		{PaymentMethodID: v("4"), PaymentMethod: null},
	})
	require.Equal(t, []PaymentMethod{{1, "cash"}, {2, "card"}}, out)
	require.Equal(t, 2, report.DroppedTotal())
	require.Equal(t, []Reason{"payment_method:missing", "payment_method_id:missing"}, report.Reasons())
}

func TestLake_Clean_Clean(t *testing.T) {
	t.Parallel()

	raw := &source.RawSets{
		Trucks: []source.RawTruck{
			{TruckID: v("3"), TruckName: v("t"), TruckDescription: v("d"), HasCardReader: v("1"), FSARating: v("3")},
			{TruckID: v("4"), TruckName: v("t"), TruckDescription: v("d"), HasCardReader: v("1"), FSARating: v("6")},
		},
		PaymentMethods: []source.RawPaymentMethod{{PaymentMethodID: v("2"), PaymentMethod: v("card")}},
		Transactions: []source.RawTransaction{
			txn("1", "3", "2", "1250", "2024-01-01 10:00:00"),
			txn("2", "9", "1", "500", "2024-01-01 10:05:00"),
			txn("3", "1", "1", "0", "2024-01-01 10:06:00"),
		},
	}

	sets, report := Clean(raw, DefaultRules())

	require.Len(t, sets.Trucks, 1)
	require.Equal(t, int64(3), sets.Trucks[0].FSARating)
	require.Len(t, sets.PaymentMethods, 1)
	require.Len(t, sets.Transactions, 1)
	require.Equal(t, int64(1), sets.Transactions[0].TransactionID)

	for _, tr := range report.Tables() {
		require.Equal(t, tr.RowsIn, tr.RowsOut+tr.DroppedTotal(), tr.Table)
	}
	require.Equal(t, map[Reason]int{"truck_id:out_of_set": 1, "total:zero": 1}, report.Transactions.Dropped)
}

func TestLake_Clean_CustomRules(t *testing.T) {
	t.Parallel()

	rules := Rules{TruckIDs: []int64{7}, PaymentMethodIDs: []int64{3}, MinFSARating: 1, MaxFSARating: 5}
	require.NoError(t, rules.Validate())

	out, _ := CleanTransactions([]source.RawTransaction{
		txn("1", "7", "3", "100", "2024-01-01"),
		txn("2", "1", "1", "100", "2024-01-01"),
	}, rules)
	require.Len(t, out, 1)
	require.Equal(t, int64(7), out[0].TruckID)
}

func TestLake_Clean_Rules_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultRules().Validate())
	require.EqualError(t, Rules{PaymentMethodIDs: []int64{1}}.Validate(), "at least one valid truck id is required")
	require.EqualError(t, Rules{TruckIDs: []int64{1}}.Validate(), "at least one valid payment method id is required")
	require.EqualError(t, Rules{TruckIDs: []int64{1}, PaymentMethodIDs: []int64{1}, MinFSARating: 5, MaxFSARating: 1}.Validate(), "fsa rating range [5, 1] is empty")
	require.Equal(t, "trucks=[1 2 3 4 5 6] payment_methods=[1 2] fsa_rating=[1,5]", DefaultRules().String())
}

func TestLake_Clean_Report_LogAttrs(t *testing.T) {
	t.Parallel()

	r := TableReport{Table: "transaction", RowsIn: 3, RowsOut: 1, Dropped: map[Reason]int{"total:zero": 1, "at:unparseable": 1}}
	require.Equal(t, []any{
		"table", "transaction", "rows_in", 3, "rows_out", 1, "dropped", 2,
		"dropped.at:unparseable", 1, "dropped.total:zero", 1,
	}, r.LogAttrs())
}
