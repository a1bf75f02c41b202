// Package watermark finds how far the lake's transaction table already reaches.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/t3/lake/warehouse/pkg/clickhouse"
)

type Status int

const (
	// StatusEmpty means the lake has no transactions yet.
	StatusEmpty Status = iota
	StatusFound
	// StatusFailed means the lookup could not be answered.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of a watermark lookup. At is set only for StatusFound and Err only for
// StatusFailed.
type Result struct {
	Status Status
	At     time.Time
	Err    error
}

func Found(at time.Time) Result { return Result{Status: StatusFound, At: at.UTC()} }
func Empty() Result             { return Result{Status: StatusEmpty} }
func Failed(err error) Result   { return Result{Status: StatusFailed, Err: err} }

// Since returns the lower bound for incremental extraction, or nil for a full extract.
func (r Result) Since() *time.Time {
	if r.Status != StatusFound {
		return nil
	}
	at := r.At
	return &at
}

const (
	latestQuery   = "SELECT count() AS n, max(at) AS latest FROM `transaction`"
	boundaryQuery = "SELECT groupArray(transaction_id) FROM `transaction` WHERE at = ?"
)

type ReaderConfig struct {
	Logger  *slog.Logger
	Client  clickhouse.Client
	Timeout time.Duration
}

func (cfg *ReaderConfig) Validate() error {
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

// Reader queries the analytical store for the watermark.
type Reader struct {
	log *slog.Logger
	cfg ReaderConfig
}

func NewReader(cfg ReaderConfig) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reader{log: cfg.Logger, cfg: cfg}, nil
}

// Latest returns the greatest transaction timestamp in the lake. It never returns an error:
// failures are reported as StatusFailed so the caller can fall back to a full extract.
func (r *Reader) Latest(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	conn, err := r.cfg.Client.Conn(ctx)
	if err != nil {
		return r.failed(fmt.Errorf("failed to get connection: %w", err))
	}
	defer conn.Close()

	var (
		n      uint64
		latest time.Time
	)
	if err := conn.QueryRow(ctx, latestQuery).Scan(&n, &latest); err != nil {
		return r.failed(fmt.Errorf("failed to query latest transaction: %w", err))
	}
	if n == 0 {
		r.log.Info("watermark: lake is empty, running full extract")
		return Empty()
	}

	r.log.Info("watermark: found", "at", latest.UTC(), "transactions", n)
	return Found(latest)
}

func (r *Reader) failed(err error) Result {
	r.log.Warn("watermark: lookup failed, running full extract", "error", err)
	return Failed(err)
}

// BoundaryIDs returns the ids of the transactions already stored at exactly at, which an
// inclusive incremental extract will fetch again.
func (r *Reader) BoundaryIDs(ctx context.Context, at time.Time) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	conn, err := r.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var ids []int64
	if err := conn.QueryRow(ctx, boundaryQuery, at.UTC()).Scan(&ids); err != nil {
		return nil, fmt.Errorf("failed to query boundary transactions: %w", err)
	}
	return ids, nil
}
