package source

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	laketesting "github.com/t3/lake/utils/pkg/testing"
)

var (
	truckCols       = []string{"truck_id", "truck_name", "truck_description", "has_card_reader", "fsa_rating"}
	methodCols      = []string{"payment_method_id", "payment_method"}
	transactionCols = []string{"transaction_id", "truck_id", "payment_method_id", "total", "at"}
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectDimensions(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(truckQuery).WillReturnRows(sqlmock.NewRows(truckCols).
		AddRow("1", "Burrito Madness", "An authentic taste of Mexico.", "1", "4").
		AddRow("2", "Kings of Kebabs", nil, "0", "6"))
	mock.ExpectQuery(paymentMethodQuery).WillReturnRows(sqlmock.NewRows(methodCols).
		AddRow("1", "cash").
		AddRow("2", "card"))
}

func TestLake_Source_TransactionQuery(t *testing.T) {
	t.Parallel()

	query, args := TransactionQuery(nil)
	require.Equal(t, "SELECT transaction_id, truck_id, payment_method_id, total, at FROM FACT_Transaction ORDER BY at DESC", query)
	require.Empty(t, args)

	since := time.Date(2024, 1, 1, 11, 0, 0, 0, time.FixedZone("BST", 3600))
	query, args = TransactionQuery(&since)
	require.Equal(t, "SELECT transaction_id, truck_id, payment_method_id, total, at FROM FACT_Transaction WHERE at >= ? ORDER BY at DESC", query)
	require.Equal(t, []any{time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}, args)
}

func TestLake_Source_Extract(t *testing.T) {
	t.Parallel()

	t.Run("full extract without watermark", func(t *testing.T) {
		t.Parallel()
		db, mock := newMock(t)

		expectDimensions(mock)
		query, _ := TransactionQuery(nil)
		mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows(transactionCols).
			AddRow("2", "9", "1", "500", "2024-01-01 10:05:00").
			AddRow("1", "3", "2", "1250", "2024-01-01 10:00:00"))

		sets, err := Extract(t.Context(), db, nil)
		require.NoError(t, err)
		require.Len(t, sets.Trucks, 2)
		require.False(t, sets.Trucks[1].TruckDescription.Valid)
		require.Equal(t, "6", sets.Trucks[1].FSARating.String)
		require.Len(t, sets.PaymentMethods, 2)
		require.Len(t, sets.Transactions, 2)
		require.Equal(t, "2024-01-01 10:05:00", sets.Transactions[0].At.String)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("incremental extract binds watermark inclusively", func(t *testing.T) {
		t.Parallel()
		db, mock := newMock(t)

		since := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
		expectDimensions(mock)
		query, _ := TransactionQuery(&since)
		mock.ExpectQuery(query).WithArgs(since).WillReturnRows(sqlmock.NewRows(transactionCols).
			AddRow("1", "3", "2", "1250", "2024-01-01 10:00:00"))

		sets, err := Extract(t.Context(), db, &since)
		require.NoError(t, err)
		require.Len(t, sets.Transactions, 1)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure names the table", func(t *testing.T) {
		t.Parallel()
		db, mock := newMock(t)

		mock.ExpectQuery(truckQuery).WillReturnError(errors.New("table missing"))

		_, err := Extract(t.Context(), db, nil)
		require.ErrorContains(t, err, "failed to extract DIM_Truck: table missing")
	})

	t.Run("empty tables yield empty sets", func(t *testing.T) {
		t.Parallel()
		db, mock := newMock(t)

		mock.ExpectQuery(truckQuery).WillReturnRows(sqlmock.NewRows(truckCols))
		mock.ExpectQuery(paymentMethodQuery).WillReturnRows(sqlmock.NewRows(methodCols))
		query, _ := TransactionQuery(nil)
		mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows(transactionCols))

		sets, err := Extract(t.Context(), db, nil)
		require.NoError(t, err)
		require.Empty(t, sets.Trucks)
		require.NotNil(t, sets.Transactions)
	})
}

func TestLake_Source_Extractor(t *testing.T) {
	t.Parallel()

	t.Run("requires logger", func(t *testing.T) {
		t.Parallel()
		_, err := NewExtractor(ExtractorConfig{})
		require.EqualError(t, err, "logger is required")
	})

	t.Run("closes connection after extraction", func(t *testing.T) {
		t.Parallel()
		db, mock := newMock(t)

		expectDimensions(mock)
		query, _ := TransactionQuery(nil)
		mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows(transactionCols))
		mock.ExpectClose()

		e, err := NewExtractor(ExtractorConfig{
			Logger: laketesting.NewLogger(),
			Connect: func(context.Context, Config) (*sql.DB, error) {
				return db, nil
			},
		})
		require.NoError(t, err)

		_, err = e.Extract(t.Context(), nil)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("closes connection when extraction fails", func(t *testing.T) {
		t.Parallel()
		db, mock := newMock(t)

		mock.ExpectQuery(truckQuery).WillReturnError(errors.New("boom"))
		mock.ExpectClose()

		e, err := NewExtractor(ExtractorConfig{
			Logger: laketesting.NewLogger(),
			Connect: func(context.Context, Config) (*sql.DB, error) {
				return db, nil
			},
		})
		require.NoError(t, err)

		_, err = e.Extract(t.Context(), nil)
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("connection errors pass through", func(t *testing.T) {
		t.Parallel()

		e, err := NewExtractor(ExtractorConfig{
			Logger: laketesting.NewLogger(),
			Source: Config{Host: "localhost"},
		})
		require.NoError(t, err)

		_, err = e.Extract(t.Context(), nil)
		require.ErrorIs(t, err, ErrConnection)
	})
}
