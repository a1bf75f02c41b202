// Package pipeline runs the extract, clean and load steps as one unit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/t3/lake/pipeline/pkg/clean"
	"github.com/t3/lake/pipeline/pkg/load"
	"github.com/t3/lake/pipeline/pkg/metrics"
	"github.com/t3/lake/pipeline/pkg/source"
	"github.com/t3/lake/pipeline/pkg/watermark"
)

type Extractor interface {
	Extract(ctx context.Context, since *time.Time) (*source.RawSets, error)
}

type WatermarkReader interface {
	Latest(ctx context.Context) watermark.Result
	BoundaryIDs(ctx context.Context, at time.Time) ([]int64, error)
}

type Loader interface {
	Load(ctx context.Context, runID string, sets *clean.Sets) (*load.Manifest, error)
}

type Config struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Extractor Extractor
	Watermark WatermarkReader
	Loader    Loader // optional when DryRun is set
	Rules     clean.Rules

	// DryRun stops after cleaning.
	DryRun bool

	NewRunID func() string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Extractor == nil {
		return errors.New("extractor is required")
	}
	if cfg.Watermark == nil {
		return errors.New("watermark reader is required")
	}
	if cfg.Loader == nil && !cfg.DryRun {
		return errors.New("loader is required")
	}
	if err := cfg.Rules.Validate(); err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = func() string { return uuid.NewString() }
	}
	return nil
}

// Summary describes one run.
type Summary struct {
	RunID           string
	Watermark       watermark.Result
	Report          *clean.Report
	BoundarySkipped int
	Manifest        *load.Manifest
	Duration        time.Duration
}

type Pipeline struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{log: cfg.Logger, cfg: cfg}, nil
}

// Run performs one watermark lookup, extraction, cleaning and load. Watermark failures fall
// back to a full extract; connection and upload failures abort the run.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := p.cfg.Clock.Now()
	summary := &Summary{RunID: p.cfg.NewRunID()}
	log := p.log.With("run_id", summary.RunID)

	summary.Watermark = p.cfg.Watermark.Latest(ctx)
	metrics.WatermarkLookups.WithLabelValues(summary.Watermark.Status.String()).Inc()

	raw, err := p.cfg.Extractor.Extract(ctx, summary.Watermark.Since())
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return summary, fmt.Errorf("extract: %w", err)
	}
	metrics.RowsExtracted.WithLabelValues(clean.TableTruck).Add(float64(len(raw.Trucks)))
	metrics.RowsExtracted.WithLabelValues(clean.TablePaymentMethod).Add(float64(len(raw.PaymentMethods)))
	metrics.RowsExtracted.WithLabelValues(clean.TableTransaction).Add(float64(len(raw.Transactions)))

	summary.BoundarySkipped = p.dropBoundary(ctx, log, summary.Watermark, raw)

	sets, report := clean.Clean(raw, p.cfg.Rules)
	summary.Report = report
	for _, tr := range report.Tables() {
		metrics.RowsCleaned.WithLabelValues(tr.Table).Add(float64(tr.RowsOut))
		for reason, n := range tr.Dropped {
			metrics.RowsDropped.WithLabelValues(tr.Table, string(reason)).Add(float64(n))
		}
		log.Info("pipeline: cleaned table", tr.LogAttrs()...)
	}

	if p.cfg.DryRun {
		summary.Duration = p.cfg.Clock.Since(start)
		log.Info("pipeline: dry run completed, nothing uploaded", "duration", summary.Duration)
		return summary, nil
	}

	summary.Manifest, err = p.cfg.Loader.Load(ctx, summary.RunID, sets)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return summary, fmt.Errorf("load: %w", err)
	}

	summary.Duration = p.cfg.Clock.Since(start)
	metrics.RunsTotal.WithLabelValues("success").Inc()
	metrics.RunDuration.Observe(summary.Duration.Seconds())
	metrics.LastSuccess.Set(float64(p.cfg.Clock.Now().Unix()))
	log.Info("pipeline: run completed",
		"watermark", summary.Watermark.Status.String(),
		"transactions", len(sets.Transactions),
		"objects", len(summary.Manifest.Objects),
		"duration", summary.Duration,
	)
	return summary, nil
}

// dropBoundary removes transactions the lake already holds at exactly the watermark, which the
// inclusive extract fetches again. If the lookup fails the rows are kept.
func (p *Pipeline) dropBoundary(ctx context.Context, log *slog.Logger, wm watermark.Result, raw *source.RawSets) int {
	if wm.Status != watermark.StatusFound {
		return 0
	}
	ids, err := p.cfg.Watermark.BoundaryIDs(ctx, wm.At)
	if err != nil {
		log.Warn("pipeline: boundary lookup failed, re-fetched rows at the watermark may be duplicated", "error", err)
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	kept := raw.Transactions[:0]
	for _, r := range raw.Transactions {
		if id, err := strconv.ParseInt(strings.TrimSpace(r.TransactionID.String), 10, 64); err == nil && r.TransactionID.Valid && seen[id] {
			continue
		}
		kept = append(kept, r)
	}
	skipped := len(raw.Transactions) - len(kept)
	raw.Transactions = kept

	metrics.BoundaryRowsSkipped.Add(float64(skipped))
	log.Debug("pipeline: skipped boundary transactions", "at", wm.At, "skipped", skipped)
	return skipped
}
