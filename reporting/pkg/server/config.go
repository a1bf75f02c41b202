package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/t3/lake/reporting/pkg/insights"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Insights is the query surface the dashboard API serves.
type Insights interface {
	Ping(ctx context.Context) error
	Summary(ctx context.Context) (*insights.Summary, error)
	TransactionsPerTruck(ctx context.Context) ([]insights.TruckCount, error)
	RevenuePerTruck(ctx context.Context) ([]insights.TruckRevenue, error)
	AverageValuePerTruck(ctx context.Context) ([]insights.TruckAverage, error)
	RevenueOverTime(ctx context.Context, bucket insights.Bucket, truckIDs []int64) ([]insights.PeriodRevenue, error)
	RevenuePerPaymentMethod(ctx context.Context, truckIDs []int64) ([]insights.PaymentMethodRevenue, error)
	DailyTransactions(ctx context.Context, day time.Time) ([]insights.DailyTransaction, error)
}

type Config struct {
	Logger            *slog.Logger
	Insights          Insights
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	QueryTimeout      time.Duration
	VersionInfo       VersionInfo

	AllowedOrigins []string
	RateLimit      rate.Limit
	RateBurst      int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Insights == nil {
		return errors.New("insights store is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	// Allows 100 requests per minute per client with a burst of 20.
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Every(time.Minute / 100)
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	return nil
}
