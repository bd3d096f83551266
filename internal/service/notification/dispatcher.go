package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/internal/repository"
	"github.com/carriage/carriage-api/pkg/logger"
	"github.com/carriage/carriage-api/pkg/metrics"
	"github.com/carriage/carriage-api/pkg/push"
)

// Transport delivers a notification to one subscription. Implementations return an error
// wrapping push.ErrGone when the destination no longer exists.
type Transport interface {
	Send(ctx context.Context, sub *model.Subscription, n *model.Notification) error
}

// Report aggregates the outcome of one dispatch.
type Report struct {
	Passed  int
	Total   int
	Removed int
}

func (r Report) String() string {
	return fmt.Sprintf("%d/%d passed, %d removed", r.Passed, r.Total, r.Removed)
}

type Dispatcher struct {
	subs       repository.SubscriptionRepository
	transports map[model.Platform]Transport
	log        *logger.Logger
	metrics    *metrics.Metrics
}

func NewDispatcher(subs repository.SubscriptionRepository, web, mobile Transport, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	transports := map[model.Platform]Transport{}
	if web != nil {
		transports[model.PlatformWeb] = web
	}
	if mobile != nil {
		transports[model.PlatformAndroid] = mobile
		transports[model.PlatformIOS] = mobile
	}
	return &Dispatcher{
		subs:       subs,
		transports: transports,
		log:        log.Component("dispatcher"),
		metrics:    m,
	}
}

// Dispatch delivers n to every subscription of every target. Deliveries run concurrently and
// are all awaited; a failed delivery is logged and counted, never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, targets []model.Target, n *model.Notification) Report {
	start := time.Now()
	subs := d.resolve(ctx, targets)

	var (
		mu     sync.Mutex
		report = Report{Total: len(subs)}
		wg     sync.WaitGroup
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *model.Subscription) {
			defer wg.Done()
			passed, removed := d.deliver(ctx, sub, n)
			mu.Lock()
			defer mu.Unlock()
			if passed {
				report.Passed++
			}
			if removed {
				report.Removed++
			}
		}(sub)
	}
	wg.Wait()

	if d.metrics != nil {
		d.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}
	d.log.Info("notification dispatched",
		"event", string(n.Event),
		"passed", report.Passed,
		"total", report.Total,
		"removed", report.Removed,
	)
	return report
}

// resolve looks up subscriptions for each target. A failed lookup abandons that target only.
func (d *Dispatcher) resolve(ctx context.Context, targets []model.Target) []*model.Subscription {
	seen := make(map[string]bool)
	var out []*model.Subscription
	for _, t := range targets {
		subs, err := d.subs.Find(ctx, t.Role, t.UserID)
		if err != nil {
			d.log.Error(err, "subscription lookup failed", "role", string(t.Role), "user_id", t.UserID)
			continue
		}
		for _, s := range subs {
			if seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			out = append(out, s)
		}
	}
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, sub *model.Subscription, n *model.Notification) (passed, removed bool) {
	transport, ok := d.transports[sub.Platform]
	if !ok {
		d.count(sub.Platform, "unsupported")
		d.log.Warn("no transport for platform", "platform", string(sub.Platform), "subscription_id", sub.ID)
		return false, false
	}

	err := transport.Send(ctx, sub, n)
	switch {
	case err == nil:
		d.count(sub.Platform, "delivered")
		return true, false

	case errors.Is(err, push.ErrGone):
		d.count(sub.Platform, "gone")
		if delErr := d.subs.Delete(ctx, sub.ID); delErr != nil {
			d.log.Error(delErr, "failed to remove gone subscription", "subscription_id", sub.ID)
			return false, false
		}
		if d.metrics != nil {
			d.metrics.SubscriptionsRemoved.Inc()
		}
		d.log.Info("removed gone subscription", "subscription_id", sub.ID, "platform", string(sub.Platform))
		return false, true

	default:
		d.count(sub.Platform, "failed")
		d.log.Error(err, "delivery failed", "subscription_id", sub.ID, "platform", string(sub.Platform))
		return false, false
	}
}

func (d *Dispatcher) count(p model.Platform, result string) {
	if d.metrics != nil {
		d.metrics.NotificationsDelivered.WithLabelValues(string(p), result).Inc()
	}
}
