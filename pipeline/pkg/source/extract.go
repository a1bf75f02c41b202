package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RawTruck is a DIM_Truck row as stored, every field possibly NULL or malformed.
type RawTruck struct {
	TruckID          sql.NullString
	TruckName        sql.NullString
	TruckDescription sql.NullString
	HasCardReader    sql.NullString
	FSARating        sql.NullString
}

// RawPaymentMethod is a DIM_Payment_Method row as stored.
type RawPaymentMethod struct {
	PaymentMethodID sql.NullString
	PaymentMethod   sql.NullString
}

// RawTransaction is a FACT_Transaction row as stored.
type RawTransaction struct {
	TransactionID   sql.NullString
	TruckID         sql.NullString
	PaymentMethodID sql.NullString
	Total           sql.NullString
	At              sql.NullString
}

// RawSets are the three tables of one extraction.
type RawSets struct {
	Trucks         []RawTruck
	PaymentMethods []RawPaymentMethod
	Transactions   []RawTransaction
}

const (
	truckQuery         = "SELECT truck_id, truck_name, truck_description, has_card_reader, fsa_rating FROM DIM_Truck"
	paymentMethodQuery = "SELECT payment_method_id, payment_method FROM DIM_Payment_Method"
	transactionColumns = "SELECT transaction_id, truck_id, payment_method_id, total, at FROM FACT_Transaction"
)

// Querier is the read side of *sql.DB.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TransactionQuery returns the fact-table query for a watermark. The bound is inclusive so rows
// sharing the watermark timestamp are fetched again.
func TransactionQuery(since *time.Time) (string, []any) {
	if since == nil {
		return transactionColumns + " ORDER BY at DESC", nil
	}
	return transactionColumns + " WHERE at >= ? ORDER BY at DESC", []any{since.UTC()}
}

// Extract reads both dimension tables in full and the fact table from since onwards (all of it
// when since is nil). It never writes.
func Extract(ctx context.Context, db Querier, since *time.Time) (*RawSets, error) {
	trucks, err := queryAll(ctx, db, truckQuery, nil, func(rows *sql.Rows) (RawTruck, error) {
		var r RawTruck
		err := rows.Scan(&r.TruckID, &r.TruckName, &r.TruckDescription, &r.HasCardReader, &r.FSARating)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract DIM_Truck: %w", err)
	}

	methods, err := queryAll(ctx, db, paymentMethodQuery, nil, func(rows *sql.Rows) (RawPaymentMethod, error) {
		var r RawPaymentMethod
		err := rows.Scan(&r.PaymentMethodID, &r.PaymentMethod)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract DIM_Payment_Method: %w", err)
	}

	query, args := TransactionQuery(since)
	txns, err := queryAll(ctx, db, query, args, func(rows *sql.Rows) (RawTransaction, error) {
		var r RawTransaction
		err := rows.Scan(&r.TransactionID, &r.TruckID, &r.PaymentMethodID, &r.Total, &r.At)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract FACT_Transaction: %w", err)
	}

	return &RawSets{Trucks: trucks, PaymentMethods: methods, Transactions: txns}, nil
}

func queryAll[T any](ctx context.Context, db Querier, query string, args []any, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
