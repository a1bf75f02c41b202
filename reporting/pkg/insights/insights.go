// Package insights answers the dashboard and report questions against the lake tables.
package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/t3/lake/reporting/pkg/metrics"
	"github.com/t3/lake/warehouse/pkg/clickhouse"
	"github.com/t3/lake/warehouse/pkg/clickhouse/dataset"
)

const cashPaymentMethod = "cash"

// Bucket groups transactions over a time period.
type Bucket string

const (
	BucketHour Bucket = "hour"
	BucketDay  Bucket = "day"
)

// ParseBucket accepts "hour" or "day" in any case; empty means hour.
func ParseBucket(s string) (Bucket, error) {
	switch strings.ToLower(s) {
	case "", string(BucketHour):
		return BucketHour, nil
	case string(BucketDay):
		return BucketDay, nil
	}
	return "", fmt.Errorf("unknown bucket %q (want hour or day)", s)
}

func (b Bucket) expr() string {
	if b == BucketDay {
		return "dateName('weekday', t.at)"
	}
	return "toString(toHour(t.at))"
}

// ordinal sorts periods in calendar order rather than by name.
func (b Bucket) ordinal() string {
	if b == BucketDay {
		return "toDayOfWeek(t.at)"
	}
	return "toHour(t.at)"
}

type TruckCount struct {
	TruckID      int64  `ch:"truck_id" json:"truck_id"`
	TruckName    string `ch:"truck_name" json:"truck_name"`
	Transactions uint64 `ch:"transactions" json:"transactions"`
}

type TruckRevenue struct {
	TruckID   int64  `ch:"truck_id" json:"truck_id"`
	TruckName string `ch:"truck_name" json:"truck_name"`
	Revenue   int64  `ch:"revenue" json:"revenue"`
}

type TruckAverage struct {
	TruckID      int64   `ch:"truck_id" json:"truck_id"`
	TruckName    string  `ch:"truck_name" json:"truck_name"`
	AverageValue float64 `ch:"average_value" json:"average_value"`
}

type PeriodRevenue struct {
	Period       string  `ch:"period" json:"period"`
	TruckName    string  `ch:"truck_name" json:"truck_name"`
	Transactions uint64  `ch:"transactions" json:"transactions"`
	Revenue      int64   `ch:"revenue" json:"revenue"`
	AverageValue float64 `ch:"average_value" json:"average_value"`
}

type PaymentMethodRevenue struct {
	PaymentMethod string `ch:"payment_method" json:"payment_method"`
	TruckName     string `ch:"truck_name" json:"truck_name"`
	Revenue       int64  `ch:"revenue" json:"revenue"`
}

// DailyTransaction is a transaction joined to its truck and payment method names.
type DailyTransaction struct {
	TransactionID int64     `ch:"transaction_id" json:"transaction_id"`
	TruckID       int64     `ch:"truck_id" json:"truck_id"`
	TruckName     string    `ch:"truck_name" json:"truck_name"`
	Total         int64     `ch:"total" json:"total"`
	PaymentMethod string    `ch:"payment_method" json:"payment_method"`
	At            time.Time `ch:"at" json:"at"`
}

// Summary holds the headline figures. Money is in pence.
type Summary struct {
	Transactions uint64  `json:"transactions"`
	Revenue      int64   `json:"revenue"`
	AverageValue float64 `json:"average_value"`
	CashShare    float64 `json:"cash_share"`
}

type Config struct {
	Logger  *slog.Logger
	Client  clickhouse.Client
	Timeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("clickhouse client is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return nil
}

type Store struct {
	log *slog.Logger
	cfg Config
}

func NewStore(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{log: cfg.Logger, cfg: cfg}, nil
}

const joined = "`transaction` AS t " +
	"INNER JOIN truck AS tr ON tr.truck_id = t.truck_id " +
	"INNER JOIN payment_method AS pm ON pm.payment_method_id = t.payment_method_id"

// truckFilter returns a WHERE fragment restricting to the given trucks, or "" for all trucks.
func truckFilter(truckIDs []int64) (string, []any) {
	if len(truckIDs) == 0 {
		return "", nil
	}
	return " WHERE has(?, t.truck_id)", []any{truckIDs}
}

// Ping checks that the warehouse answers queries.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return err
	}
	return conn.Exec(ctx, "SELECT 1")
}

// TransactionsPerTruck counts transactions per truck, busiest first.
func (s *Store) TransactionsPerTruck(ctx context.Context) ([]TruckCount, error) {
	return query[TruckCount](ctx, s, "transactions_per_truck",
		"SELECT tr.truck_id AS truck_id, tr.truck_name AS truck_name, count() AS transactions FROM "+joined+
			" GROUP BY truck_id, truck_name ORDER BY transactions DESC, truck_id")
}

// RevenuePerTruck sums revenue per truck, lowest first.
func (s *Store) RevenuePerTruck(ctx context.Context) ([]TruckRevenue, error) {
	return query[TruckRevenue](ctx, s, "revenue_per_truck",
		"SELECT tr.truck_id AS truck_id, tr.truck_name AS truck_name, sum(t.total) AS revenue FROM "+joined+
			" GROUP BY truck_id, truck_name ORDER BY revenue ASC, truck_id")
}

// AverageValuePerTruck averages transaction value per truck, highest first.
func (s *Store) AverageValuePerTruck(ctx context.Context) ([]TruckAverage, error) {
	return query[TruckAverage](ctx, s, "average_value_per_truck",
		"SELECT tr.truck_id AS truck_id, tr.truck_name AS truck_name, avg(t.total) AS average_value FROM "+joined+
			" GROUP BY truck_id, truck_name ORDER BY average_value DESC, truck_id")
}

type summaryRow struct {
	Transactions uint64 `ch:"transactions"`
	Cash         uint64 `ch:"cash"`
	Revenue      int64  `ch:"revenue"`
}

// Summary returns the overall transaction count, revenue, average value and cash share.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	rows, err := query[summaryRow](ctx, s, "summary",
		"SELECT count() AS transactions, countIf(lower(pm.payment_method) = ?) AS cash, sum(t.total) AS revenue FROM "+joined,
		cashPaymentMethod)
	if err != nil {
		return nil, err
	}
	out := &Summary{}
	if len(rows) == 0 || rows[0].Transactions == 0 {
		return out, nil
	}
	r := rows[0]
	out.Transactions = r.Transactions
	out.Revenue = r.Revenue
	out.AverageValue = float64(r.Revenue) / float64(r.Transactions)
	out.CashShare = float64(r.Cash) / float64(r.Transactions)
	return out, nil
}

// RevenueOverTime groups revenue and average value by period and truck.
func (s *Store) RevenueOverTime(ctx context.Context, bucket Bucket, truckIDs []int64) ([]PeriodRevenue, error) {
	where, args := truckFilter(truckIDs)
	return query[PeriodRevenue](ctx, s, "revenue_over_time",
		"SELECT "+bucket.expr()+" AS period, tr.truck_name AS truck_name, count() AS transactions, "+
			"sum(t.total) AS revenue, avg(t.total) AS average_value FROM "+joined+where+
			" GROUP BY period, truck_name ORDER BY min("+bucket.ordinal()+"), truck_name", args...)
}

// RevenuePerPaymentMethod sums revenue by payment method and truck.
func (s *Store) RevenuePerPaymentMethod(ctx context.Context, truckIDs []int64) ([]PaymentMethodRevenue, error) {
	where, args := truckFilter(truckIDs)
	return query[PaymentMethodRevenue](ctx, s, "revenue_per_payment_method",
		"SELECT pm.payment_method AS payment_method, tr.truck_name AS truck_name, sum(t.total) AS revenue FROM "+joined+where+
			" GROUP BY payment_method, truck_name ORDER BY payment_method, truck_name", args...)
}

// DailyTransactions returns the joined transactions of one UTC calendar day.
func (s *Store) DailyTransactions(ctx context.Context, day time.Time) ([]DailyTransaction, error) {
	day = day.UTC()
	return query[DailyTransaction](ctx, s, "daily_transactions",
		"SELECT t.transaction_id AS transaction_id, tr.truck_id AS truck_id, tr.truck_name AS truck_name, t.total AS total, "+
			"pm.payment_method AS payment_method, t.at AS at FROM "+joined+
			" WHERE t.year = ? AND t.month = ? AND t.day = ? ORDER BY at, transaction_id",
		int32(day.Year()), int32(day.Month()), int32(day.Day()))
}

func query[T any](ctx context.Context, s *Store, name, q string, args ...any) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get clickhouse connection: %w", err)
	}

	start := time.Now()
	out, err := dataset.QueryStructs[T](ctx, conn, q, args...)
	duration := time.Since(start)
	metrics.RecordClickHouseQuery(name, duration, err)
	if err != nil {
		s.log.Error("insights: query failed", "query", name, "error", err)
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	s.log.Debug("insights: query completed", "query", name, "rows", len(out), "duration", duration)
	return out, nil
}
