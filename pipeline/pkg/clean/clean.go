// Package clean validates extracted rows. Each column is coerced to its type and checked against
// its rule; a row failing any of them is dropped whole and counted in the report.
package clean

import (
	"time"

	"github.com/t3/lake/pipeline/pkg/source"
)

const (
	TableTruck         = "truck"
	TablePaymentMethod = "payment_method"
	TableTransaction   = "transaction"
)

type Truck struct {
	TruckID          int64
	TruckName        string
	TruckDescription string
	HasCardReader    int64
	FSARating        int64
}

type PaymentMethod struct {
	PaymentMethodID int64
	PaymentMethod   string
}

// Transaction totals are in minor currency units (pence).
type Transaction struct {
	TransactionID   int64
	TruckID         int64
	PaymentMethodID int64
	Total           int64
	At              time.Time
}

// Sets are the cleaned tables of one run.
type Sets struct {
	Trucks         []Truck
	PaymentMethods []PaymentMethod
	Transactions   []Transaction
}

// Clean applies the table rules to every raw set. It never fails; bad rows only reduce counts.
func Clean(raw *source.RawSets, rules Rules) (*Sets, *Report) {
	trucks, truckReport := CleanTrucks(raw.Trucks, rules)
	methods, methodReport := CleanPaymentMethods(raw.PaymentMethods)
	txns, txnReport := CleanTransactions(raw.Transactions, rules)
	return &Sets{
			Trucks:         trucks,
			PaymentMethods: methods,
			Transactions:   txns,
		}, &Report{
			Trucks:         truckReport,
			PaymentMethods: methodReport,
			Transactions:   txnReport,
		}
}

func CleanTransactions(rows []source.RawTransaction, rules Rules) ([]Transaction, TableReport) {
	report := newTableReport(TableTransaction, len(rows))
	trucks, methods := toSet(rules.TruckIDs), toSet(rules.PaymentMethodIDs)

	out := make([]Transaction, 0, len(rows))
	for _, r := range rows {
		var c rowCheck
		t := Transaction{
			TransactionID:   c.integer("transaction_id", r.TransactionID),
			TruckID:         c.integerIn("truck_id", r.TruckID, trucks),
			PaymentMethodID: c.integerIn("payment_method_id", r.PaymentMethodID, methods),
			Total:           c.nonZeroInteger("total", r.Total),
			At:              c.dateTime("at", r.At),
		}
		if !c.ok() {
			report.drop(c.failed)
			continue
		}
		out = append(out, t)
	}
	report.RowsOut = len(out)
	return out, report
}

func CleanPaymentMethods(rows []source.RawPaymentMethod) ([]PaymentMethod, TableReport) {
	report := newTableReport(TablePaymentMethod, len(rows))

	out := make([]PaymentMethod, 0, len(rows))
	for _, r := range rows {
		var c rowCheck
		pm := PaymentMethod{
			PaymentMethodID: c.integer("payment_method_id", r.PaymentMethodID),
			PaymentMethod:   c.text("payment_method", r.PaymentMethod),
		}
		if !c.ok() {
			report.drop(c.failed)
			continue
		}
		out = append(out, pm)
	}
	report.RowsOut = len(out)
	return out, report
}

func CleanTrucks(rows []source.RawTruck, rules Rules) ([]Truck, TableReport) {
	report := newTableReport(TableTruck, len(rows))

	out := make([]Truck, 0, len(rows))
	for _, r := range rows {
		var c rowCheck
		t := Truck{
			TruckID:          c.integer("truck_id", r.TruckID),
			TruckName:        c.text("truck_name", r.TruckName),
			TruckDescription: c.text("truck_description", r.TruckDescription),
			HasCardReader:    c.integer("has_card_reader", r.HasCardReader),
			FSARating:        c.integerBetween("fsa_rating", r.FSARating, rules.MinFSARating, rules.MaxFSARating),
		}
		if !c.ok() {
			report.drop(c.failed)
			continue
		}
		out = append(out, t)
	}
	report.RowsOut = len(out)
	return out, report
}
