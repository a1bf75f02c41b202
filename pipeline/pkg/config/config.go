// Package config assembles the pipeline's settings from flags and the environment.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/t3/lake/pipeline/pkg/clean"
	"github.com/t3/lake/pipeline/pkg/load"
	"github.com/t3/lake/pipeline/pkg/source"
	"github.com/t3/lake/warehouse/pkg/clickhouse"
)

type Config struct {
	Verbose bool

	Source     source.Config
	ClickHouse clickhouse.ClientConfig
	S3         load.S3Config
	Prefix     string
	Rules      clean.Rules

	UploadConcurrency int
	DryRun            bool
	// Interval, when set, keeps the process running one pipeline run per interval.
	Interval time.Duration

	// Migrate is a goose command to run instead of the pipeline.
	Migrate string
	// LakeURL is the HTTPS URL of the lake prefix the S3 tables read from.
	LakeURL string

	PushgatewayURL string
	SentryDSN      string
	Environment    string
}

// Validate checks what a pipeline run needs. Source credentials are checked by source.Connect so
// that a missing credential surfaces as a connection error.
func (c *Config) Validate() error {
	if c.ClickHouse.Addr == "" {
		return errors.New("--clickhouse-addr is required (or set CLICKHOUSE_ADDR_TCP)")
	}
	if c.Migrate != "" {
		return nil
	}
	if !c.DryRun && c.S3.Bucket == "" {
		return errors.New("--s3-bucket is required (or set S3_BUCKET_NAME)")
	}
	if err := c.Rules.Validate(); err != nil {
		return err
	}
	if c.UploadConcurrency <= 0 {
		return errors.New("--upload-concurrency must be greater than 0")
	}
	return nil
}

// Load parses args into a Config. Environment variables, read through getenv, override flags.
func Load(args []string, getenv func(string) string) (*Config, error) {
	fs := flag.NewFlagSet("pipeline", flag.ContinueOnError)

	verbose := fs.Bool("verbose", false, "enable verbose (debug) logging")
	dryRun := fs.Bool("dry-run", false, "extract and clean only, upload nothing")
	interval := fs.Duration("interval", 0, "run continuously, once per interval (0 = run once and exit)")
	migrate := fs.String("clickhouse-migrate", "", "run a ClickHouse migration command (up, down, reset, status, version) and exit")

	dbHost := fs.String("db-host", "", "operational MySQL host (or set DB_HOST)")
	dbPort := fs.Int("db-port", source.DefaultPort, "operational MySQL port (or set DB_PORT)")
	dbName := fs.String("db-name", "", "operational database name (or set DB_NAME)")
	dbUser := fs.String("db-user", "", "operational database user (or set DB_USER)")

	chAddr := fs.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP)")
	chDatabase := fs.String("clickhouse-database", clickhouse.DefaultDatabase, "ClickHouse database holding the lake tables (or set CLICKHOUSE_DATABASE)")
	chUsername := fs.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME)")
	chSecure := fs.Bool("clickhouse-secure", false, "enable TLS for ClickHouse (or set CLICKHOUSE_SECURE=true)")

	bucket := fs.String("s3-bucket", "", "lake bucket (or set S3_BUCKET_NAME)")
	prefix := fs.String("s3-prefix", load.DefaultPrefix, "lake prefix inside the bucket (or set S3_PREFIX)")
	region := fs.String("aws-region", "", "AWS region (or set AWS_REGION)")
	endpoint := fs.String("s3-endpoint", "", "S3-compatible endpoint URL (or set S3_ENDPOINT)")
	lakeURL := fs.String("lake-url", "", "HTTPS URL of the lake prefix for ClickHouse S3 tables (default derived from bucket and region)")
	concurrency := fs.Int("upload-concurrency", 4, "maximum concurrent object uploads")

	defaults := clean.DefaultRules()
	truckIDs := fs.Int64Slice("truck-ids", defaults.TruckIDs, "valid truck ids")
	paymentIDs := fs.Int64Slice("payment-method-ids", defaults.PaymentMethodIDs, "valid payment method ids")
	minRating := fs.Int64("min-fsa-rating", defaults.MinFSARating, "lowest valid FSA rating")
	maxRating := fs.Int64("max-fsa-rating", defaults.MaxFSARating, "highest valid FSA rating")

	pushgateway := fs.String("pushgateway-url", "", "Prometheus pushgateway to push run metrics to (or set PUSHGATEWAY_URL)")
	sentryDSN := fs.String("sentry-dsn", "", "Sentry DSN for error reporting (or set SENTRY_DSN)")
	environment := fs.String("env", "production", "deployment environment reported to Sentry (or set T3_ENV)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	str := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str(dbHost, "DB_HOST")
	str(dbName, "DB_NAME")
	str(dbUser, "DB_USER")
	str(chAddr, "CLICKHOUSE_ADDR_TCP")
	str(chDatabase, "CLICKHOUSE_DATABASE")
	str(chUsername, "CLICKHOUSE_USERNAME")
	str(bucket, "S3_BUCKET_NAME")
	str(prefix, "S3_PREFIX")
	str(region, "AWS_REGION")
	str(endpoint, "S3_ENDPOINT")
	str(lakeURL, "LAKE_URL")
	str(pushgateway, "PUSHGATEWAY_URL")
	str(sentryDSN, "SENTRY_DSN")
	str(environment, "T3_ENV")
	if getenv("CLICKHOUSE_SECURE") == "true" {
		*chSecure = true
	}
	if v := getenv("DB_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT %q: %w", v, err)
		}
		*dbPort = p
	}

	cfg := &Config{
		Verbose: *verbose,
		Source: source.Config{
			Host:     *dbHost,
			Port:     *dbPort,
			User:     *dbUser,
			Password: getenv("DB_PASSWORD"),
			Database: *dbName,
		},
		ClickHouse: clickhouse.ClientConfig{
			Addr:     *chAddr,
			Database: *chDatabase,
			Username: *chUsername,
			Password: getenv("CLICKHOUSE_PASSWORD"),
			Secure:   *chSecure,
		},
		S3: load.S3Config{
			Bucket:   *bucket,
			Region:   *region,
			Endpoint: *endpoint,
		},
		Prefix: *prefix,
		Rules: clean.Rules{
			TruckIDs:         *truckIDs,
			PaymentMethodIDs: *paymentIDs,
			MinFSARating:     *minRating,
			MaxFSARating:     *maxRating,
		},
		UploadConcurrency: *concurrency,
		DryRun:            *dryRun,
		Interval:          *interval,
		Migrate:           *migrate,
		LakeURL:           *lakeURL,
		PushgatewayURL:    *pushgateway,
		SentryDSN:         *sentryDSN,
		Environment:       *environment,
	}
	if cfg.LakeURL == "" {
		cfg.LakeURL = cfg.defaultLakeURL()
	}
	return cfg, nil
}

func (c *Config) defaultLakeURL() string {
	if c.S3.Bucket == "" {
		return ""
	}
	prefix := strings.Trim(c.Prefix, "/")
	if c.S3.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(c.S3.Endpoint, "/"), c.S3.Bucket, prefix)
	}
	if c.S3.Region == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", c.S3.Bucket, prefix)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.S3.Bucket, c.S3.Region, prefix)
}
