package ride

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/internal/repository"
	"github.com/carriage/carriage-api/internal/service/mail"
	"github.com/carriage/carriage-api/internal/service/notification"
	apperrors "github.com/carriage/carriage-api/pkg/errors"
	"github.com/carriage/carriage-api/pkg/logger"
)

type Service interface {
	Create(ctx context.Context, actor model.Actor, req *model.CreateRideRequest) (*model.Ride, error)
	Get(ctx context.Context, actor model.Actor, id string) (*model.Ride, error)
	List(ctx context.Context, actor model.Actor, filter *model.RideFilter) ([]*model.Ride, error)
	Update(ctx context.Context, actor model.Actor, id string, u *model.RideUpdate) (*model.Ride, error)
	// Cancel returns the cancelled snapshot; deleted reports whether the record was removed.
	Cancel(ctx context.Context, actor model.Actor, id string) (ride *model.Ride, deleted bool, err error)
	Reject(ctx context.Context, actor model.Actor, id string) (*model.Ride, error)
	ReportLate(ctx context.Context, actor model.Actor, id string) error
	AvailableDrivers(ctx context.Context, start, end time.Time) ([]*model.Driver, error)
	// CreateOccurrence stores a ride built by the recurring job. The ride's ID is kept.
	CreateOccurrence(ctx context.Context, ride *model.Ride) error
}

type notifier interface {
	Notify(ctx context.Context, sender model.Role, event model.NotificationEvent, ride *model.Ride) notification.Report
}

type mailer interface {
	Handle(ctx context.Context, updated, original *model.Ride) (mail.Result, error)
}

// tasks spawns detached background work.
type tasks interface {
	Go(name string, fn func(ctx context.Context) error)
}

type service struct {
	rides    repository.RideRepository
	drivers  repository.DriverRepository
	notifier notifier
	mailer   mailer
	tasks    tasks
	log      *logger.Logger
	location *time.Location
}

type Option func(*service)

// WithLocation sets the zone used to evaluate driver availability windows.
func WithLocation(loc *time.Location) Option {
	return func(s *service) { s.location = loc }
}

func NewService(
	rides repository.RideRepository,
	drivers repository.DriverRepository,
	n notifier,
	m mailer,
	t tasks,
	log *logger.Logger,
	opts ...Option,
) Service {
	s := &service{
		rides:    rides,
		drivers:  drivers,
		notifier: n,
		mailer:   m,
		tasks:    t,
		log:      log.Component("ride"),
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Create(ctx context.Context, actor model.Actor, req *model.CreateRideRequest) (*model.Ride, error) {
	req.Normalize()
	ride := req.Ride()

	switch actor.Role {
	case model.RoleDriver:
		return nil, apperrors.NewForbidden("drivers cannot create rides")
	case model.RoleRider:
		if !ride.HasRider(actor.UserID) {
			return nil, apperrors.NewForbidden("riders can only request rides for themselves")
		}
		if ride.Driver != nil {
			return nil, apperrors.NewForbidden("riders cannot assign drivers")
		}
	}
	if err := Validate(ride); err != nil {
		return nil, err
	}

	ride.ID = uuid.NewString()
	Initialize(ride)
	if err := s.rides.Create(ctx, ride); err != nil {
		return nil, fmt.Errorf("failed to create ride: %w", err)
	}

	s.log.Info("ride created", "ride_id", ride.ID, "actor", actor.UserID, "role", string(actor.Role))
	s.afterCommit(actor.Role, model.EventCreated, ride, nil)
	return ride, nil
}

func (s *service) CreateOccurrence(ctx context.Context, ride *model.Ride) error {
	if err := Validate(ride); err != nil {
		return err
	}
	if ride.ID == "" {
		ride.ID = uuid.NewString()
	}
	if err := s.rides.Create(ctx, ride); err != nil {
		return err
	}
	s.afterCommit(model.SystemActor.Role, model.EventCreated, ride, nil)
	return nil
}

func (s *service) Get(ctx context.Context, actor model.Actor, id string) (*model.Ride, error) {
	ride, err := s.rides.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, ride); err != nil {
		return nil, err
	}
	return ride, nil
}

// List narrows the filter to the actor's own rides unless the actor is an admin.
func (s *service) List(ctx context.Context, actor model.Actor, filter *model.RideFilter) ([]*model.Ride, error) {
	f := model.RideFilter{}
	if filter != nil {
		f = *filter
	}
	switch actor.Role {
	case model.RoleRider:
		f.RiderID = actor.UserID
	case model.RoleDriver:
		f.DriverID = actor.UserID
	}
	return s.rides.Scan(ctx, &f)
}

func (s *service) Update(ctx context.Context, actor model.Actor, id string, u *model.RideUpdate) (*model.Ride, error) {
	original, err := s.rides.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, event, err := Apply(actor, original, u)
	if err != nil {
		return nil, err
	}
	if err := s.rides.Update(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to update ride: %w", err)
	}

	s.log.Info("ride updated", "ride_id", id, "event", string(event), "scheduling_state", string(next.SchedulingState))
	s.afterCommit(actor.Role, event, next, original)
	return next, nil
}

func (s *service) Cancel(ctx context.Context, actor model.Actor, id string) (*model.Ride, bool, error) {
	original, err := s.rides.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	outcome, next, err := Cancel(actor, original)
	if err != nil {
		return nil, false, err
	}

	if outcome == CancelDelete {
		err = s.rides.Delete(ctx, id)
	} else {
		err = s.rides.Update(ctx, next)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to cancel ride: %w", err)
	}

	deleted := outcome == CancelDelete
	s.log.Info("ride cancelled", "ride_id", id, "deleted", deleted, "role", string(actor.Role))
	s.afterCommit(actor.Role, model.EventCancelled, next, original)
	return next, deleted, nil
}

func (s *service) Reject(ctx context.Context, actor model.Actor, id string) (*model.Ride, error) {
	original, err := s.rides.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := Reject(actor, original)
	if err != nil {
		return nil, err
	}
	if err := s.rides.Update(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to reject ride: %w", err)
	}

	// Rejection has no push event; the rider hears about it by email.
	s.log.Info("ride rejected", "ride_id", id)
	s.spawnMail(next, original)
	return next, nil
}

func (s *service) ReportLate(ctx context.Context, actor model.Actor, id string) error {
	ride, err := s.rides.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := Late(actor, ride); err != nil {
		return err
	}
	s.spawnNotify(actor.Role, model.EventLate, ride)
	return nil
}

func (s *service) AvailableDrivers(ctx context.Context, start, end time.Time) ([]*model.Driver, error) {
	if !start.Before(end) {
		return nil, apperrors.NewBadRequest("start must be before end", nil)
	}
	drivers, err := s.drivers.List(ctx)
	if err != nil {
		return nil, err
	}
	available := make([]*model.Driver, 0, len(drivers))
	for _, d := range drivers {
		if d.AvailableFor(start, end, s.location) {
			available = append(available, d)
		}
	}
	return available, nil
}

// afterCommit hands the committed transition to the email engine and the notifier. Both run
// detached; their failures are logged by the task group and never reach the caller.
func (s *service) afterCommit(sender model.Role, event model.NotificationEvent, updated, original *model.Ride) {
	s.spawnMail(updated, original)
	s.spawnNotify(sender, event, updated)
}

func (s *service) spawnMail(updated, original *model.Ride) {
	updated = updated.Clone()
	original = original.Clone()
	s.tasks.Go("ride-email", func(ctx context.Context) error {
		_, err := s.mailer.Handle(ctx, updated, original)
		return err
	})
}

func (s *service) spawnNotify(sender model.Role, event model.NotificationEvent, ride *model.Ride) {
	ride = ride.Clone()
	s.tasks.Go("ride-notify", func(ctx context.Context) error {
		s.notifier.Notify(ctx, sender, event, ride)
		return nil
	})
}
