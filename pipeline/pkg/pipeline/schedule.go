package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/t3/lake/pipeline/pkg/metrics"
)

// RunEvery runs the pipeline immediately and then on every tick of interval until ctx is done.
// Runs never overlap; a failed run is logged and the next tick tries again.
func (p *Pipeline) RunEvery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	p.log.Info("pipeline: starting schedule", "interval", interval)

	p.safeRun(ctx)

	ticker := p.cfg.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			p.safeRun(ctx)
		}
	}
}

func (p *Pipeline) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pipeline: run panicked", "panic", fmt.Sprint(r))
			metrics.RunsTotal.WithLabelValues("panic").Inc()
		}
	}()

	if _, err := p.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.log.Error("pipeline: run failed", "error", err)
	}
}
