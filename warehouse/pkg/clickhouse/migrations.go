package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pressly/goose/v3"

	"github.com/t3/lake/warehouse"
)

const migrationsDir = "db/clickhouse/migrations"

func CreateDatabase(ctx context.Context, log *slog.Logger, conn Connection, database string) error {
	log.Info("clickhouse: creating database", "database", database)
	return conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database))
}

// LakeStorage points the lake tables at the Parquet files in object storage. A nil
// *LakeStorage creates local MergeTree tables instead, which is what tests use.
type LakeStorage struct {
	// BaseURL is the HTTPS URL of the lake prefix, e.g.
	// https://bucket.s3.eu-west-2.amazonaws.com/input/
	BaseURL         string
	AccessKeyID     string
	SecretAccessKey string
}

// MigrationConfig holds the configuration for running migrations
type MigrationConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Secure   bool
	Storage  *LakeStorage
}

// TableEngines returns the ENGINE clause of each lake table keyed by the env var substituted
// into the migrations.
func (cfg MigrationConfig) TableEngines() map[string]string {
	if cfg.Storage == nil {
		return map[string]string{
			"T3_LAKE_TRUCK_ENGINE":          "MergeTree ORDER BY truck_id",
			"T3_LAKE_PAYMENT_METHOD_ENGINE": "MergeTree ORDER BY payment_method_id",
			"T3_LAKE_TRANSACTION_ENGINE":    "MergeTree ORDER BY (at, transaction_id)",
		}
	}
	base := strings.TrimSuffix(cfg.Storage.BaseURL, "/") + "/"
	return map[string]string{
		"T3_LAKE_TRUCK_ENGINE":          cfg.Storage.s3Engine(base + "truck/*.parquet"),
		"T3_LAKE_PAYMENT_METHOD_ENGINE": cfg.Storage.s3Engine(base + "payment_method/*.parquet"),
		"T3_LAKE_TRANSACTION_ENGINE":    cfg.Storage.s3Engine(base + "transaction/**/*.parquet"),
	}
}

func (s *LakeStorage) s3Engine(url string) string {
	if s.AccessKeyID == "" {
		return fmt.Sprintf("S3('%s', NOSIGN, 'Parquet')", quote(url))
	}
	return fmt.Sprintf("S3('%s', '%s', '%s', 'Parquet')", quote(url), quote(s.AccessKeyID), quote(s.SecretAccessKey))
}

func quote(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

// slogGooseLogger adapts slog.Logger to goose.Logger interface
type slogGooseLogger struct {
	log *slog.Logger
}

func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// goose keeps its settings in package globals and ENVSUB reads the process environment.
var gooseMu sync.Mutex

func withGoose(ctx context.Context, log *slog.Logger, cfg MigrationConfig, fn func(db *sql.DB) error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	for k, v := range cfg.TableEngines() {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("failed to set %s: %w", k, err)
		}
	}

	db := newSQLDB(cfg)
	defer db.Close()

	goose.SetLogger(&slogGooseLogger{log: log})
	goose.SetBaseFS(warehouse.ClickHouseMigrationsFS)
	if err := goose.SetDialect("clickhouse"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return fn(db)
}

// RunMigrations executes all SQL migration files using goose (alias for Up)
func RunMigrations(ctx context.Context, log *slog.Logger, cfg MigrationConfig) error {
	return Up(ctx, log, cfg)
}

// Up runs all pending migrations
func Up(ctx context.Context, log *slog.Logger, cfg MigrationConfig) error {
	log.Info("clickhouse: running migrations (up)", "database", cfg.Database, "s3", cfg.Storage != nil)
	err := withGoose(ctx, log, cfg, func(db *sql.DB) error {
		return goose.UpContext(ctx, db, migrationsDir)
	})
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("clickhouse: migrations completed")
	return nil
}

// Down rolls back the most recent migration
func Down(ctx context.Context, log *slog.Logger, cfg MigrationConfig) error {
	log.Info("clickhouse: rolling back migration (down)")
	err := withGoose(ctx, log, cfg, func(db *sql.DB) error {
		return goose.DownContext(ctx, db, migrationsDir)
	})
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// Reset rolls back all migrations
func Reset(ctx context.Context, log *slog.Logger, cfg MigrationConfig) error {
	log.Info("clickhouse: resetting migrations")
	err := withGoose(ctx, log, cfg, func(db *sql.DB) error {
		return goose.ResetContext(ctx, db, migrationsDir)
	})
	if err != nil {
		return fmt.Errorf("failed to reset migrations: %w", err)
	}
	return nil
}

// Version logs the current migration version
func Version(ctx context.Context, log *slog.Logger, cfg MigrationConfig) error {
	err := withGoose(ctx, log, cfg, func(db *sql.DB) error {
		return goose.VersionContext(ctx, db, migrationsDir)
	})
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	return nil
}

// MigrationStatus logs the status of all migrations
func MigrationStatus(ctx context.Context, log *slog.Logger, cfg MigrationConfig) error {
	return withGoose(ctx, log, cfg, func(db *sql.DB) error {
		return goose.StatusContext(ctx, db, migrationsDir)
	})
}

// Migrate dispatches a migration command by name.
func Migrate(ctx context.Context, log *slog.Logger, cfg MigrationConfig, command string) error {
	switch command {
	case "up":
		return Up(ctx, log, cfg)
	case "down":
		return Down(ctx, log, cfg)
	case "reset":
		return Reset(ctx, log, cfg)
	case "status":
		return MigrationStatus(ctx, log, cfg)
	case "version":
		return Version(ctx, log, cfg)
	default:
		return fmt.Errorf("unknown migration command %q (want up, down, reset, status or version)", command)
	}
}

// newSQLDB creates a database/sql compatible connection for goose
func newSQLDB(cfg MigrationConfig) *sql.DB {
	return clickhouse.OpenDB(ClientConfig{
		Addr:     cfg.Addr,
		Database: cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
		Secure:   cfg.Secure,
	}.options())
}
