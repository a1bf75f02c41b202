package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLake_Dataset_Query(t *testing.T) {
	t.Parallel()
	conn := testConn(t)
	ctx := t.Context()

	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 3; i++ {
		err := conn.Exec(ctx,
			"INSERT INTO `transaction` (transaction_id, truck_id, payment_method_id, total, at, year, month, day, hour) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			i, i, 1, i*250, at.Add(time.Duration(i)*time.Minute), 2024, 1, 1, 10)
		require.NoError(t, err)
	}

	t.Run("maps with metadata", func(t *testing.T) {
		result, err := Query(ctx, conn, "SELECT transaction_id, total, toNullable(if(total > 500, 'big', NULL)) AS label FROM `transaction` WHERE total >= ? ORDER BY transaction_id", []any{500})
		require.NoError(t, err)
		require.Equal(t, 2, result.Count)
		require.Equal(t, []string{"transaction_id", "total", "label"}, result.Columns)
		require.Equal(t, "Int64", result.ColumnTypes[0].DatabaseTypeName)
		require.Equal(t, int64(2), result.Rows[0]["transaction_id"])
		require.Nil(t, result.Rows[0]["label"])
		require.Equal(t, "big", result.Rows[1]["label"])
	})

	t.Run("empty result", func(t *testing.T) {
		result, err := Query(ctx, conn, "SELECT transaction_id FROM `transaction` WHERE truck_id = ?", []any{99})
		require.NoError(t, err)
		require.Zero(t, result.Count)
		require.NotNil(t, result.Rows)
	})

	t.Run("structs", func(t *testing.T) {
		type row struct {
			TransactionID int64     `ch:"transaction_id"`
			At            time.Time `ch:"at"`
		}
		rows, err := QueryStructs[row](ctx, conn, "SELECT transaction_id, at FROM `transaction` ORDER BY at DESC")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		require.Equal(t, int64(3), rows[0].TransactionID)
		require.True(t, rows[0].At.Equal(at.Add(3*time.Minute)))
	})

	t.Run("invalid query", func(t *testing.T) {
		_, err := Query(ctx, conn, "SELECT FROM nowhere", nil)
		require.ErrorContains(t, err, "failed to execute query")
	})
}
