package worker

import (
	"context"
	"time"

	applog "gagyebu/internal/log"
)

// NextDaily returns the first time strictly after now whose local clock
// reads hour:00.
func NextDaily(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Daily runs a job once a day at a fixed hour.
type Daily struct {
	name   string
	hour   int
	job    func(ctx context.Context) error
	logger *applog.Logger
	now    func() time.Time
}

func NewDaily(name string, hour int, job func(ctx context.Context) error, logger *applog.Logger) *Daily {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Daily{
		name:   name,
		hour:   hour,
		job:    job,
		logger: logger.WithComponent(applog.ComponentWorker),
		now:    time.Now,
	}
}

// Run blocks until ctx is cancelled. When started after today's hour the
// job runs once immediately so a restart does not skip a day.
func (d *Daily) Run(ctx context.Context) error {
	if d.now().Hour() >= d.hour {
		d.runOnce(ctx)
	}
	for {
		next := NextDaily(d.now(), d.hour)
		d.logger.InfoContext(ctx, "Next run scheduled", "job", d.name, "at", next.Format(time.RFC3339))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			d.runOnce(ctx)
		}
	}
}

func (d *Daily) runOnce(ctx context.Context) {
	start := d.now()
	if err := d.job(ctx); err != nil {
		d.logger.ErrorContext(ctx, "Daily job failed",
			"job", d.name,
			applog.FieldError, err.Error(),
			applog.FieldDuration, time.Since(start).Milliseconds())
		return
	}
	d.logger.InfoContext(ctx, "Daily job complete",
		"job", d.name,
		applog.FieldDuration, time.Since(start).Milliseconds())
}
