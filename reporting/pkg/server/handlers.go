package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/t3/lake/reporting/pkg/insights"
	"github.com/t3/lake/reporting/pkg/report"
)

// serve runs a store query under the query timeout and writes its result as JSON.
func serve[T any](s *Server, w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) (T, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	v, err := fn(ctx)
	if err != nil {
		s.log.Error("server: query failed", "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusInternalServerError, errors.New("query failed"))
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, s.cfg.Insights.Summary)
}

func (s *Server) handleTransactionsPerTruck(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, s.cfg.Insights.TransactionsPerTruck)
}

func (s *Server) handleRevenuePerTruck(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, s.cfg.Insights.RevenuePerTruck)
}

func (s *Server) handleAverageValuePerTruck(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, s.cfg.Insights.AverageValuePerTruck)
}

func (s *Server) handleRevenueOverTime(w http.ResponseWriter, r *http.Request) {
	bucket, err := insights.ParseBucket(r.URL.Query().Get("bucket"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	trucks, err := parseTruckIDs(r.URL.Query().Get("trucks"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	serve(s, w, r, func(ctx context.Context) ([]insights.PeriodRevenue, error) {
		return s.cfg.Insights.RevenueOverTime(ctx, bucket, trucks)
	})
}

func (s *Server) handleRevenuePerPaymentMethod(w http.ResponseWriter, r *http.Request) {
	trucks, err := parseTruckIDs(r.URL.Query().Get("trucks"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	serve(s, w, r, func(ctx context.Context) ([]insights.PaymentMethodRevenue, error) {
		return s.cfg.Insights.RevenuePerPaymentMethod(ctx, trucks)
	})
}

func (s *Server) handleDailyTransactions(w http.ResponseWriter, r *http.Request) {
	day, err := parseDay(r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	serve(s, w, r, func(ctx context.Context) ([]insights.DailyTransaction, error) {
		return s.cfg.Insights.DailyTransactions(ctx, day)
	})
}

// handleDailyReport returns the daily report as JSON, or as the rendered page with format=html.
func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	day, err := parseDay(r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()
	txns, err := s.cfg.Insights.DailyTransactions(ctx, day)
	if err != nil {
		s.log.Error("server: query failed", "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusInternalServerError, errors.New("query failed"))
		return
	}
	rep := report.Build(day, txns)

	if r.URL.Query().Get("format") != "html" {
		s.writeJSON(w, http.StatusOK, rep)
		return
	}
	html, err := report.RenderHTML(rep)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(html)); err != nil {
		s.log.Error("server: failed to write response", "error", err)
	}
}

func parseTruckIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid truck id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("date is required (YYYY-MM-DD)")
	}
	day, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return day, nil
}
