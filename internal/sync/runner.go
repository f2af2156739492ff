package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"chatsync/internal/bus"
	"chatsync/internal/connectivity"
)

// Runner triggers reconciliation runs: once on every offline-to-online
// transition and periodically while online. It replaces ad-hoc retry logic
// in callers with one explicit loop.
type Runner struct {
	coordinator *Coordinator
	monitor     *connectivity.Monitor
	bus         *bus.Bus
	logger      *zap.Logger
	interval    time.Duration
	cancel      context.CancelFunc
}

// NewRunner creates a runner that syncs every interval while online.
func NewRunner(c *Coordinator, monitor *connectivity.Monitor, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Runner{
		coordinator: c,
		monitor:     monitor,
		bus:         b,
		logger:      logger,
		interval:    interval,
	}
}

// Start begins watching connectivity transitions and the periodic ticker.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe("connectivity.", 16)

	go func() {
		defer unsub()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case evt := <-ch:
				change, ok := evt.Payload.(connectivity.Change)
				if !ok || !change.Online {
					continue
				}
				r.trigger(ctx, "connectivity")
			case <-ticker.C:
				if !r.monitor.Online() {
					continue
				}
				r.trigger(ctx, "ticker")
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the runner loop. An in-flight sync is not aborted.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runner) trigger(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	err := r.coordinator.SyncWithServer(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrOffline):
		// Normal guard outcomes, nothing to do.
	default:
		r.logger.Warn("sync attempt failed", zap.String("trigger", reason), zap.Error(err))
	}
}
