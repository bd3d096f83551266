package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carriage/carriage-api/internal/email"
	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/internal/repository"
	"github.com/carriage/carriage-api/pkg/logger"
	"github.com/carriage/carriage-api/pkg/metrics"
)

type Category string

const (
	CategoryNone      Category = ""
	CategoryApproved  Category = "approved"
	CategoryRejected  Category = "rejected"
	CategoryCancelled Category = "cancelled"
	CategoryModified  Category = "modified"
)

var subjects = map[Category]string{
	CategoryApproved:  "Carriage Ride Approved",
	CategoryRejected:  "Carriage Ride Rejected",
	CategoryCancelled: "Carriage Ride Cancelled",
	CategoryModified:  "Carriage Ride Modified",
}

// Result summarizes one pass of the engine.
type Result struct {
	Category Category
	Sent     int
	Failed   int
}

type Engine struct {
	riders  repository.RiderRepository
	sender  email.Sender
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewEngine(riders repository.RiderRepository, sender email.Sender, log *logger.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		riders:  riders,
		sender:  sender,
		log:     log.Component("mail"),
		metrics: m,
	}
}

// Decide picks the email a transition calls for. original may be nil for a new ride.
// Rules are checked in priority order.
func Decide(updated, original *model.Ride) Category {
	switch {
	case updated.Status == model.StatusCancelled:
		return CategoryCancelled
	case updated.SchedulingState == model.SchedulingScheduledWithModification:
		if original == nil {
			return CategoryApproved
		}
		if updated.TripDiffers(original) {
			return CategoryModified
		}
		return CategoryNone
	case updated.SchedulingState == model.SchedulingScheduled:
		if original != nil && original.SchedulingState == model.SchedulingScheduled {
			return CategoryNone
		}
		return CategoryApproved
	case updated.SchedulingState == model.SchedulingRejected:
		return CategoryRejected
	}
	return CategoryNone
}

// Handle sends whatever email the transition from original to updated calls for. It fails
// only when recipients cannot be resolved; individual send failures are logged and counted.
func (e *Engine) Handle(ctx context.Context, updated, original *model.Ride) (Result, error) {
	category := Decide(updated, original)
	res := Result{Category: category}
	if category == CategoryNone {
		return res, nil
	}

	recipients, err := e.recipients(ctx, updated.Riders)
	if err != nil {
		return res, fmt.Errorf("failed to resolve email recipients for ride %s: %w", updated.ID, err)
	}

	for _, r := range recipients {
		msg := email.Message{
			To:      r.Email,
			Subject: subjects[category],
			Text:    render(category, r, updated, original),
		}
		if err := e.sender.Send(ctx, msg); err != nil {
			res.Failed++
			e.count(category, "failed")
			e.log.Error(err, "failed to send ride email",
				"ride_id", updated.ID, "category", string(category), "rider_id", r.ID)
			continue
		}
		res.Sent++
		e.count(category, "sent")
	}
	return res, nil
}

// recipients returns one entry per distinct address. Bare references are resolved with a
// single batch lookup.
func (e *Engine) recipients(ctx context.Context, riders []model.RiderRef) ([]model.RiderRef, error) {
	var (
		resolved []model.RiderRef
		bare     []string
	)
	for _, r := range riders {
		if r.Hydrated() {
			resolved = append(resolved, r)
		} else {
			bare = append(bare, r.ID)
		}
	}

	if len(bare) > 0 {
		fetched, err := e.riders.GetMany(ctx, bare)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]*model.Rider, len(fetched))
		for _, r := range fetched {
			byID[r.ID] = r
		}
		for _, id := range bare {
			r, ok := byID[id]
			if !ok || r.Email == "" {
				e.log.Warn("rider has no email address", "rider_id", id)
				continue
			}
			resolved = append(resolved, r.Ref())
		}
	}

	seen := make(map[string]bool, len(resolved))
	out := resolved[:0]
	for _, r := range resolved {
		addr := strings.ToLower(strings.TrimSpace(r.Email))
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, r)
	}
	return out, nil
}

func (e *Engine) count(c Category, result string) {
	if e.metrics != nil {
		e.metrics.EmailsSent.WithLabelValues(string(c), result).Inc()
	}
}

func render(c Category, to model.RiderRef, ride, original *model.Ride) string {
	var b strings.Builder
	greeting := "Hello"
	if to.FirstName != "" {
		greeting += " " + to.FirstName
	}
	b.WriteString(greeting + ",\n\n")

	switch c {
	case CategoryApproved:
		fmt.Fprintf(&b, "Your ride on %s has been approved.\n\n%s", describeDay(ride), describeTrip(ride))
	case CategoryRejected:
		fmt.Fprintf(&b, "Your ride request for %s could not be accommodated and has been rejected.\n\n%s",
			describeDay(ride), describeTrip(ride))
	case CategoryCancelled:
		fmt.Fprintf(&b, "Your ride on %s has been cancelled.\n\n%s", describeDay(ride), describeTrip(ride))
	case CategoryModified:
		fmt.Fprintf(&b, "Your ride has been modified.\n\nPreviously:\n%s\nNow:\n%s",
			describeTrip(original), describeTrip(ride))
	}
	b.WriteString("\nIf you have any questions, please contact the Carriage dispatch office.\n")
	return b.String()
}

func describeDay(ride *model.Ride) string {
	return localStart(ride).Format("Monday")
}

func describeTrip(ride *model.Ride) string {
	start := localStart(ride)
	return fmt.Sprintf("  Day: %s\n  Pickup time: %s\n  Pickup: %s\n  Dropoff: %s\n",
		start.Format("Monday"),
		start.Format("15:04"),
		locationName(ride.StartLocation),
		locationName(ride.EndLocation),
	)
}

func locationName(l model.Location) string {
	if l.Name != "" {
		return l.Name
	}
	return l.Address
}

func localStart(ride *model.Ride) time.Time {
	if ride.Timezone != "" {
		if loc, err := time.LoadLocation(ride.Timezone); err == nil {
			return ride.StartTime.In(loc)
		}
	}
	return ride.StartTime
}
