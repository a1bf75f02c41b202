package source

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"
)

// ExtractorConfig configures an Extractor.
type ExtractorConfig struct {
	Logger *slog.Logger
	Source Config

	// Connect defaults to Connect; tests replace it.
	Connect func(ctx context.Context, cfg Config) (*sql.DB, error)
}

func (cfg *ExtractorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Connect == nil {
		cfg.Connect = Connect
	}
	return nil
}

// Extractor runs one extraction per call, holding the connection only for its duration.
type Extractor struct {
	log *slog.Logger
	cfg ExtractorConfig
}

func NewExtractor(cfg ExtractorConfig) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{log: cfg.Logger, cfg: cfg}, nil
}

// Extract connects, extracts and closes the connection on every path.
func (e *Extractor) Extract(ctx context.Context, since *time.Time) (*RawSets, error) {
	db, err := e.cfg.Connect(ctx, e.cfg.Source)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := db.Close(); err != nil {
			e.log.Warn("source: failed to close connection", "error", err)
		}
	}()

	start := time.Now()
	sets, err := Extract(ctx, db, since)
	if err != nil {
		return nil, err
	}

	attrs := []any{
		"trucks", len(sets.Trucks),
		"payment_methods", len(sets.PaymentMethods),
		"transactions", len(sets.Transactions),
		"duration", time.Since(start),
	}
	if since != nil {
		attrs = append(attrs, "since", since.UTC())
	}
	e.log.Info("source: extraction completed", attrs...)
	return sets, nil
}
