package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/carriage/carriage-api/pkg/logger"
	"github.com/carriage/carriage-api/pkg/metrics"
)

// Group runs detached side-effect tasks. A task never reports back to the code that spawned
// it: errors and panics are logged and counted, then dropped.
type Group struct {
	logger  *logger.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	wg sync.WaitGroup
}

type GroupConfig struct {
	// Timeout bounds each task. Zero means no deadline beyond the transport clients' own.
	Timeout time.Duration
}

func NewGroup(cfg GroupConfig, logger *logger.Logger, metrics *metrics.Metrics) *Group {
	return &Group{
		logger:  logger.Component("worker"),
		metrics: metrics,
		timeout: cfg.Timeout,
	}
}

// Go spawns fn detached from the caller's context: the request that triggered it may
// finish (and cancel its context) long before fn is done.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.fail(name, fmt.Errorf("panic: %v", r), "stack", string(debug.Stack()))
			}
		}()

		ctx := context.Background()
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		if err := fn(ctx); err != nil {
			g.fail(name, err)
		}
	}()
}

func (g *Group) fail(name string, err error, fields ...interface{}) {
	if g.metrics != nil {
		g.metrics.TasksFailed.WithLabelValues(name).Inc()
	}
	g.logger.Error(err, "background task failed", append([]interface{}{"task", name}, fields...)...)
}

// Wait blocks until every spawned task has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// Shutdown waits for in-flight tasks until ctx is done.
func (g *Group) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
