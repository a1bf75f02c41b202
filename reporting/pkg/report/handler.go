package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/t3/lake/reporting/pkg/insights"
	"github.com/t3/lake/reporting/pkg/metrics"
)

type TransactionSource interface {
	DailyTransactions(ctx context.Context, day time.Time) ([]insights.DailyTransaction, error)
}

// Notifier announces a finished report.
type Notifier interface {
	Notify(ctx context.Context, r DailyReport) error
}

type HandlerConfig struct {
	Logger   *slog.Logger
	Source   TransactionSource
	Clock    clockwork.Clock
	Notifier Notifier // optional
}

func (cfg *HandlerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Source == nil {
		return errors.New("transaction source is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Handler struct {
	log *slog.Logger
	cfg HandlerConfig
}

func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Handler{log: cfg.Logger, cfg: cfg}, nil
}

// Yesterday is the UTC calendar day before now.
func (h *Handler) Yesterday() time.Time {
	y, m, d := h.cfg.Clock.Now().UTC().AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Generate builds and renders the report for day.
func (h *Handler) Generate(ctx context.Context, day time.Time) (DailyReport, string, error) {
	txns, err := h.cfg.Source.DailyTransactions(ctx, day)
	if err != nil {
		metrics.ReportsGenerated.WithLabelValues("error").Inc()
		return DailyReport{}, "", fmt.Errorf("failed to query transactions: %w", err)
	}

	r := Build(day, txns)
	html, err := RenderHTML(r)
	if err != nil {
		metrics.ReportsGenerated.WithLabelValues("error").Inc()
		return DailyReport{}, "", err
	}
	metrics.ReportsGenerated.WithLabelValues("success").Inc()

	h.log.Info("report: generated",
		"date", r.Date.Format(time.DateOnly),
		"sales", r.NumberOfSales,
		"revenue", Pounds(r.TotalRevenue),
		"trucks", len(r.SalesPerTruck),
	)

	if h.cfg.Notifier != nil {
		if err := h.cfg.Notifier.Notify(ctx, r); err != nil {
			h.log.Warn("report: failed to send notification", "error", err)
		}
	}
	return r, html, nil
}

// Handle is the Lambda entry point. The event is ignored; the report covers yesterday.
func (h *Handler) Handle(ctx context.Context, _ json.RawMessage) (map[string]string, error) {
	_, html, err := h.Generate(ctx, h.Yesterday())
	if err != nil {
		return nil, err
	}
	return map[string]string{"html": html}, nil
}
