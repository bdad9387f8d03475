package refresh

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MinInterval is the shortest accepted auto-refresh interval.
const MinInterval = time.Second

// Runner is the part of Pipeline the auto-refresher drives.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// AutoRefresher re-runs a pipeline on a fixed interval. Errors are logged and
// the next tick tries again.
type AutoRefresher struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAutoRefresher clamps interval to MinInterval.
func NewAutoRefresher(runner Runner, interval time.Duration, logger *zap.Logger) *AutoRefresher {
	if interval < MinInterval {
		interval = MinInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoRefresher{runner: runner, interval: interval, logger: logger.Named("auto-refresh")}
}

// Interval returns the effective interval.
func (a *AutoRefresher) Interval() time.Duration {
	return a.interval
}

// Start launches the ticker goroutine. Calling Start while running is a no-op.
func (a *AutoRefresher) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.loop(ctx, a.done)
	a.logger.Info("auto-refresh started", zap.Duration("interval", a.interval))
}

// Stop cancels the loop and waits for it to exit.
func (a *AutoRefresher) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	a.logger.Info("auto-refresh stopped")
}

func (a *AutoRefresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.runner.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Warn("scheduled refresh failed", zap.Error(err))
			}
		}
	}
}
