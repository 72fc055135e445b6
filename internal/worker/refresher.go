// Package worker runs the background loops: the broker holdings refresher
// and the spreadsheet exporter.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	applog "gagyebu/internal/log"
)

// ActiveRefresher refreshes holdings for recently active users and
// reports how many succeeded. *services.BrokerService satisfies it.
type ActiveRefresher interface {
	RefreshActive(ctx context.Context, window time.Duration) int
}

type RefresherConfig struct {
	// Interval between refresh rounds (default 60s).
	Interval time.Duration
	// Window is how recently a user must have opened the dashboard to be
	// refreshed (default 10m).
	Window time.Duration
}

// Refresher polls the broker on a ticker for users who are looking at
// their dashboard.
type Refresher struct {
	target ActiveRefresher
	cfg    RefresherConfig
	logger *applog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRefresher(target ActiveRefresher, cfg RefresherConfig, logger *applog.Logger) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Minute
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Refresher{target: target, cfg: cfg, logger: logger.WithComponent(applog.ComponentWorker)}
}

// Start begins the refresh loop. It returns an error if already running.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("refresher is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.loop(ctx, r.stopCh, r.doneCh)

	r.logger.InfoContext(ctx, "Holdings refresher started",
		"interval", r.cfg.Interval,
		"window", r.cfg.Window)
	return nil
}

// Stop ends the loop and waits for the current round to finish.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		r.logger.InfoContext(ctx, "Holdings refresher stopped")
		return nil
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Holdings refresher stop timed out")
		return ctx.Err()
	}
}

func (r *Refresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Refresher) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one refresh round.
func (r *Refresher) Tick(ctx context.Context) int {
	start := time.Now()
	n := r.target.RefreshActive(ctx, r.cfg.Window)
	if n > 0 {
		r.logger.DebugContext(ctx, "Refresh round finished",
			applog.FieldOperation, applog.OpRefresh,
			"refreshed", n,
			applog.FieldDuration, time.Since(start).Milliseconds())
	}
	return n
}
