package source

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
)

const seedSchema = `
CREATE TABLE DIM_Truck (
    truck_id INT PRIMARY KEY,
    truck_name TEXT,
    truck_description TEXT,
    has_card_reader TINYINT,
    fsa_rating INT
);
CREATE TABLE DIM_Payment_Method (
    payment_method_id INT PRIMARY KEY,
    payment_method VARCHAR(16)
);
CREATE TABLE FACT_Transaction (
    transaction_id INT PRIMARY KEY,
    truck_id INT,
    payment_method_id INT,
    total INT,
    at DATETIME
);
INSERT INTO DIM_Truck VALUES (1, 'Burrito Madness', 'An authentic taste of Mexico.', 1, 4);
INSERT INTO DIM_Payment_Method VALUES (1, 'cash'), (2, 'card');
INSERT INTO FACT_Transaction VALUES
    (1, 1, 1, 500, '2024-01-01 09:59:59'),
    (2, 1, 2, 750, '2024-01-01 10:00:00'),
    (3, 9, 1, 250, '2024-01-01 10:30:00');
`

func startMySQL(t *testing.T) Config {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := t.Context()
	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("trucks"),
		tcmysql.WithUsername("etl"),
		tcmysql.WithPassword("secret"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(stopCtx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	return Config{Host: host, Port: p, User: "etl", Password: "secret", Database: "trucks"}
}

func TestLake_Source_MySQL(t *testing.T) {
	t.Parallel()
	cfg := startMySQL(t)

	db, err := Connect(t.Context(), cfg)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range strings.Split(seedSchema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt == "" {
			continue
		}
		_, err := db.ExecContext(t.Context(), stmt)
		require.NoError(t, err)
	}

	t.Run("full extract orders by at descending", func(t *testing.T) {
		sets, err := Extract(t.Context(), db, nil)
		require.NoError(t, err)
		require.Len(t, sets.Trucks, 1)
		require.Len(t, sets.PaymentMethods, 2)
		require.Len(t, sets.Transactions, 3)
		require.Equal(t, "3", sets.Transactions[0].TransactionID.String)
		require.Equal(t, "2024-01-01 10:30:00", sets.Transactions[0].At.String)
	})

	t.Run("watermark is inclusive and repeatable", func(t *testing.T) {
		since := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
		first, err := Extract(t.Context(), db, &since)
		require.NoError(t, err)
		second, err := Extract(t.Context(), db, &since)
		require.NoError(t, err)

		require.Equal(t, first, second)
		ids := []string{}
		for _, r := range first.Transactions {
			ids = append(ids, r.TransactionID.String)
		}
		require.Equal(t, []string{"3", "2"}, ids)
	})
}
