package notification

import (
	"context"
	"sync"
	"time"

	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/pkg/logger"
)

type Service interface {
	// Notify tells every receiver of (sender, event) about ride.
	Notify(ctx context.Context, sender model.Role, event model.NotificationEvent, ride *model.Ride) Report
}

type dispatcher interface {
	Dispatch(ctx context.Context, targets []model.Target, n *model.Notification) Report
}

type service struct {
	dispatcher dispatcher
	log        *logger.Logger
	now        func() time.Time
}

func NewService(d dispatcher, log *logger.Logger) Service {
	return &service{
		dispatcher: d,
		log:        log.Component("notifier"),
		now:        time.Now,
	}
}

func (s *service) Notify(ctx context.Context, sender model.Role, event model.NotificationEvent, ride *model.Ride) Report {
	receivers, ok := ResolveReceivers(sender, event, ride.HasDriver())
	if !ok {
		s.log.Debug("no receivers for event", "sender", string(sender), "event", string(event), "ride_id", ride.ID)
		return Report{}
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		total Report
	)
	sent := s.now()
	for _, receiver := range receivers {
		targets := Targets(receiver, ride)
		if len(targets) == 0 {
			continue
		}
		n := &model.Notification{
			Title:    Title(event),
			Body:     Compose(sender, receiver, event, ride),
			Event:    event,
			Ride:     ride,
			SentTime: sent,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := s.dispatcher.Dispatch(ctx, targets, n)
			mu.Lock()
			total.Passed += r.Passed
			total.Total += r.Total
			total.Removed += r.Removed
			mu.Unlock()
		}()
	}
	wg.Wait()
	return total
}

// Targets maps a receiver role onto concrete subscription lookups for ride.
func Targets(receiver model.Role, ride *model.Ride) []model.Target {
	switch receiver {
	case model.RoleRider:
		targets := make([]model.Target, 0, len(ride.Riders))
		for _, r := range ride.Riders {
			targets = append(targets, model.Target{Role: model.RoleRider, UserID: r.ID})
		}
		return targets
	case model.RoleDriver:
		if ride.Driver == nil {
			return nil
		}
		return []model.Target{{Role: model.RoleDriver, UserID: ride.Driver.ID}}
	case model.RoleAdmin:
		return []model.Target{{Role: model.RoleAdmin}}
	}
	return nil
}
