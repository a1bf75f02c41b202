package load

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/t3/lake/pipeline/pkg/clean"
	"github.com/t3/lake/pipeline/pkg/metrics"
	"github.com/t3/lake/utils/pkg/retry"
)

// ErrUpload marks a load that could not be completed after retries.
var ErrUpload = errors.New("upload failed")

const parquetContentType = "application/vnd.apache.parquet"

type Config struct {
	Logger *slog.Logger
	Store  ObjectStore
	Clock  clockwork.Clock

	Prefix      string
	Retry       retry.Config
	Concurrency int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("object store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return nil
}

// Object is one Parquet file written by a run.
type Object struct {
	Table     string `json:"table"`
	Key       string `json:"key"`
	Partition string `json:"partition,omitempty"`
	Rows      int    `json:"rows"`
	Bytes     int    `json:"bytes"`

	body []byte
}

// Manifest lists the objects a run made visible. It is written only after every object is in
// place.
type Manifest struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Objects   []Object  `json:"objects"`
}

// Loader writes cleaned sets to the lake.
type Loader struct {
	log    *slog.Logger
	cfg    Config
	layout Layout
}

func NewLoader(cfg Config) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loader{log: cfg.Logger, cfg: cfg, layout: NewLayout(cfg.Prefix)}, nil
}

func (l *Loader) Layout() Layout { return l.layout }

// Plan encodes the sets into the objects a run will write.
func (l *Loader) Plan(runID string, sets *clean.Sets) ([]Object, error) {
	trucks, err := EncodeTrucks(sets.Trucks)
	if err != nil {
		return nil, err
	}
	methods, err := EncodePaymentMethods(sets.PaymentMethods)
	if err != nil {
		return nil, err
	}
	objects := []Object{
		{Table: clean.TableTruck, Key: l.layout.DimensionKey(clean.TableTruck), Rows: len(sets.Trucks), body: trucks},
		{Table: clean.TablePaymentMethod, Key: l.layout.DimensionKey(clean.TablePaymentMethod), Rows: len(sets.PaymentMethods), body: methods},
	}

	parts, groups := PartitionTransactions(sets.Transactions)
	for _, p := range parts {
		body, err := EncodeTransactions(groups[p])
		if err != nil {
			return nil, err
		}
		objects = append(objects, Object{
			Table:     clean.TableTransaction,
			Key:       l.layout.TransactionKey(p, runID),
			Partition: p.Path(),
			Rows:      len(groups[p]),
			body:      body,
		})
	}
	for i := range objects {
		objects[i].Bytes = len(objects[i].body)
	}
	return objects, nil
}

// Load stages every object under the run's staging prefix, promotes them to their final keys,
// then writes the manifest. If promotion or the manifest fails, the transaction files this run
// already promoted are removed again so no partition becomes visible without the rest.
func (l *Loader) Load(ctx context.Context, runID string, sets *clean.Sets) (*Manifest, error) {
	objects, err := l.Plan(runID, sets)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parquet: %w", err)
	}

	staged := make([]string, 0, len(objects))
	var mu sync.Mutex
	defer func() {
		if len(staged) == 0 {
			return
		}
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := l.do(cleanupCtx, "delete", func() error { return l.cfg.Store.Delete(cleanupCtx, staged) }); err != nil {
			l.log.Warn("load: failed to remove staged objects", "run_id", runID, "objects", len(staged), "error", err)
		}
	}()

	err = l.each(ctx, objects, func(ctx context.Context, o Object) error {
		key := l.layout.StagingKey(runID, o.Key)
		if err := l.do(ctx, "put", func() error { return l.cfg.Store.Put(ctx, key, o.body, parquetContentType) }); err != nil {
			return err
		}
		mu.Lock()
		staged = append(staged, key)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: staging: %w", ErrUpload, err)
	}
	l.log.Debug("load: staged objects", "run_id", runID, "objects", len(objects))

	var promoted []string
	err = l.each(ctx, objects, func(ctx context.Context, o Object) error {
		src := l.layout.StagingKey(runID, o.Key)
		if err := l.do(ctx, "copy", func() error { return l.cfg.Store.Copy(ctx, src, o.Key) }); err != nil {
			return err
		}
		// Transaction keys are unique to the run; dimension files are full refreshes.
		if o.Table == clean.TableTransaction {
			mu.Lock()
			promoted = append(promoted, o.Key)
			mu.Unlock()
		}
		metrics.ObjectsUploaded.WithLabelValues(o.Table).Inc()
		metrics.BytesUploaded.WithLabelValues(o.Table).Add(float64(o.Bytes))
		return nil
	})
	if err != nil {
		l.rollback(ctx, runID, promoted)
		return nil, fmt.Errorf("%w: promote: %w", ErrUpload, err)
	}

	manifest := &Manifest{RunID: runID, CreatedAt: l.cfg.Clock.Now().UTC(), Objects: objects}
	if err := l.writeManifest(ctx, manifest); err != nil {
		l.rollback(ctx, runID, append(promoted, l.layout.ManifestKey(runID)))
		return nil, fmt.Errorf("%w: manifest: %w", ErrUpload, err)
	}

	l.log.Info("load: completed", "run_id", runID, "objects", len(objects), "manifest", l.layout.ManifestKey(runID))
	return manifest, nil
}

// rollback deletes promoted transaction files and any run manifest. The watermark is max(at) over every file under
// the transaction prefix, so a partial promotion would hide the unpromoted hours forever.
func (l *Loader) rollback(ctx context.Context, runID string, keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := l.do(ctx, "delete", func() error { return l.cfg.Store.Delete(ctx, keys) }); err != nil {
		l.log.Error("load: failed to roll back promoted objects", "run_id", runID, "keys", keys, "error", err)
		return
	}
	l.log.Warn("load: rolled back promoted objects", "run_id", runID, "objects", len(keys))
}

func (l *Loader) writeManifest(ctx context.Context, m *Manifest) error {
	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	for _, key := range []string{l.layout.ManifestKey(m.RunID), l.layout.LatestManifestKey()} {
		if err := l.do(ctx, "put", func() error { return l.cfg.Store.Put(ctx, key, body, "application/json") }); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) each(ctx context.Context, objects []Object, fn func(context.Context, Object) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)
	for _, o := range objects {
		g.Go(func() error { return fn(ctx, o) })
	}
	return g.Wait()
}

func (l *Loader) do(ctx context.Context, op string, fn func() error) error {
	cfg := l.cfg.Retry
	cfg.OnRetry = func(attempt int, wait time.Duration, err error) {
		metrics.UploadRetries.WithLabelValues(op).Inc()
		l.log.Warn("load: retrying object store call", "operation", op, "attempt", attempt, "wait", wait, "error", err)
	}
	return retry.Do(ctx, cfg, fn)
}
