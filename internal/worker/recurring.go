package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/carriage/carriage-api/internal/service/recurring"
	"github.com/carriage/carriage-api/pkg/logger"
)

type sweeper interface {
	Run(ctx context.Context) (recurring.Summary, error)
}

// RecurringWorker runs the recurring ride sweep on a cron schedule.
type RecurringWorker struct {
	sweeper  sweeper
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	log      *logger.Logger

	// mu keeps two sweeps from overlapping when one runs past the next tick.
	mu sync.Mutex
}

type RecurringConfig struct {
	Schedule string
	Location *time.Location
	Timeout  time.Duration
}

func NewRecurringWorker(s sweeper, cfg RecurringConfig, log *logger.Logger) *RecurringWorker {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &RecurringWorker{
		sweeper:  s,
		schedule: cfg.Schedule,
		timeout:  cfg.Timeout,
		cron:     cron.New(cron.WithLocation(loc)),
		log:      log.Component("recurring-worker"),
	}
}

// Start registers the sweep and starts the scheduler. It does not block.
func (w *RecurringWorker) Start() error {
	if _, err := w.cron.AddFunc(w.schedule, w.tick); err != nil {
		return fmt.Errorf("invalid recurring schedule %q: %w", w.schedule, err)
	}
	w.cron.Start()
	w.log.Info("recurring worker started", "schedule", w.schedule)
	return nil
}

// Stop stops scheduling and waits for a running sweep until ctx is done.
func (w *RecurringWorker) Stop(ctx context.Context) error {
	done := w.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *RecurringWorker) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.RunOnce(ctx); err != nil {
		w.log.Error(err, "recurring sweep failed")
	}
}

// RunOnce runs a single sweep immediately.
func (w *RecurringWorker) RunOnce(ctx context.Context) (recurring.Summary, error) {
	if !w.mu.TryLock() {
		w.log.Warn("previous recurring sweep still running, skipping")
		return recurring.Summary{}, nil
	}
	defer w.mu.Unlock()
	return w.sweeper.Run(ctx)
}
