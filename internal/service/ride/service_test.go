package ride

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carriage/carriage-api/internal/email"
	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/internal/service/mail"
	"github.com/carriage/carriage-api/internal/service/notification"
	apperrors "github.com/carriage/carriage-api/pkg/errors"
	"github.com/carriage/carriage-api/pkg/logger"
	"github.com/carriage/carriage-api/pkg/worker"
)

type memRides struct {
	mu    sync.Mutex
	rides map[string]*model.Ride
}

func newMemRides(rides ...*model.Ride) *memRides {
	m := &memRides{rides: map[string]*model.Ride{}}
	for _, r := range rides {
		m.rides[r.ID] = r.Clone()
	}
	return m
}

func (m *memRides) Create(_ context.Context, r *model.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; ok {
		return apperrors.NewConflict("ride already exists", nil)
	}
	m.rides[r.ID] = r.Clone()
	return nil
}

func (m *memRides) Get(_ context.Context, id string) (*model.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, apperrors.NewNotFound("ride", nil)
	}
	return r.Clone(), nil
}

func (m *memRides) Scan(_ context.Context, f *model.RideFilter) ([]*model.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Ride
	for _, r := range m.rides {
		if f.RiderID != "" && !r.HasRider(f.RiderID) {
			continue
		}
		if f.DriverID != "" && (r.Driver == nil || r.Driver.ID != f.DriverID) {
			continue
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

func (m *memRides) Update(_ context.Context, r *model.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; !ok {
		return apperrors.NewNotFound("ride", nil)
	}
	m.rides[r.ID] = r.Clone()
	return nil
}

func (m *memRides) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[id]; !ok {
		return apperrors.NewNotFound("ride", nil)
	}
	delete(m.rides, id)
	return nil
}

type memDrivers []*model.Driver

func (m memDrivers) Get(_ context.Context, id string) (*model.Driver, error) {
	for _, d := range m {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, apperrors.NewNotFound("driver", nil)
}

func (m memDrivers) List(context.Context) ([]*model.Driver, error) { return m, nil }

type noRiders struct{}

func (noRiders) Get(context.Context, string) (*model.Rider, error) {
	return nil, apperrors.NewNotFound("rider", nil)
}

func (noRiders) GetMany(context.Context, []string) ([]*model.Rider, error) { return nil, nil }

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

type notifyCall struct {
	sender model.Role
	event  model.NotificationEvent
	ride   *model.Ride
}

func (n *recordingNotifier) Notify(_ context.Context, sender model.Role, event model.NotificationEvent, ride *model.Ride) notification.Report {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{sender, event, ride})
	return notification.Report{}
}

type outbox struct {
	mu   sync.Mutex
	sent []email.Message
}

func (o *outbox) Send(_ context.Context, m email.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, m)
	return nil
}

type fixture struct {
	svc      Service
	rides    *memRides
	notifier *recordingNotifier
	outbox   *outbox
	group    *worker.Group
}

func newFixture(rides ...*model.Ride) *fixture {
	f := &fixture{
		rides:    newMemRides(rides...),
		notifier: &recordingNotifier{},
		outbox:   &outbox{},
		group:    worker.NewGroup(worker.GroupConfig{}, logger.Nop(), nil),
	}
	engine := mail.NewEngine(noRiders{}, f.outbox, logger.Nop(), nil)
	f.svc = NewService(f.rides, memDrivers{}, f.notifier, engine, f.group, logger.Nop())
	return f
}

func hydrated(r *model.Ride) *model.Ride {
	r.Riders = []model.RiderRef{{ID: "r1", FirstName: "Ada", Email: "ada@example.com"}}
	return r
}

func TestRiderCancelDriverlessDeletes(t *testing.T) {
	f := newFixture(hydrated(newRide()))

	snapshot, deleted, err := f.svc.Cancel(context.Background(), rider, "ride-1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, model.StatusCancelled, snapshot.Status)

	_, err = f.rides.Get(context.Background(), "ride-1")
	assert.True(t, apperrors.IsNotFound(err))

	f.group.Wait()
	require.Len(t, f.outbox.sent, 1)
	assert.Equal(t, "Carriage Ride Cancelled", f.outbox.sent[0].Subject)
	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, model.EventCancelled, f.notifier.calls[0].event)
	assert.Equal(t, model.RoleRider, f.notifier.calls[0].sender)
}

func TestCancelRejectedForDriverAndStartedRide(t *testing.T) {
	f := newFixture(scheduledRide())
	_, _, err := f.svc.Cancel(context.Background(), driver, "ride-1")
	assert.True(t, apperrors.IsForbidden(err))

	started := newRide()
	started.ID = "ride-2"
	started.Status = model.StatusOnTheWay
	f = newFixture(started)
	_, _, err = f.svc.Cancel(context.Background(), rider, "ride-2")
	assert.True(t, apperrors.IsForbidden(err))

	stored, err := f.rides.Get(context.Background(), "ride-2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnTheWay, stored.Status)
}

func TestAdminCancelRetains(t *testing.T) {
	f := newFixture(scheduledRide())
	_, deleted, err := f.svc.Cancel(context.Background(), admin, "ride-1")
	require.NoError(t, err)
	assert.False(t, deleted)

	stored, err := f.rides.Get(context.Background(), "ride-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, stored.Status)
}

func TestCreateInitialState(t *testing.T) {
	f := newFixture()
	start := time.Date(2024, 5, 7, 14, 0, 0, 0, time.UTC)
	ada := model.RiderRef{ID: "r1", Email: "ada@example.com"}

	created, err := f.svc.Create(context.Background(), rider, &model.CreateRideRequest{
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Rider:     &ada,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, []model.RiderRef{ada}, created.Riders)
	assert.Equal(t, model.SchedulingUnscheduled, created.SchedulingState)
	assert.Equal(t, model.RideTypeUnscheduled, created.Type)

	f.group.Wait()
	assert.Empty(t, f.outbox.sent)

	_, err = f.svc.Create(context.Background(), model.Actor{Role: model.RoleRider, UserID: "r2"}, &model.CreateRideRequest{
		StartTime: start, EndTime: start.Add(time.Hour), Riders: []model.RiderRef{{ID: "r1"}},
	})
	assert.True(t, apperrors.IsForbidden(err))
}

func TestListScopesToActor(t *testing.T) {
	other := newRide()
	other.ID = "ride-2"
	other.Riders = []model.RiderRef{{ID: "r2"}}
	f := newFixture(newRide(), other)

	rides, err := f.svc.List(context.Background(), rider, nil)
	require.NoError(t, err)
	require.Len(t, rides, 1)
	assert.Equal(t, "ride-1", rides[0].ID)

	rides, err = f.svc.List(context.Background(), admin, nil)
	require.NoError(t, err)
	assert.Len(t, rides, 2)
}

func TestRejectSendsEmailOnly(t *testing.T) {
	f := newFixture(hydrated(newRide()))
	next, err := f.svc.Reject(context.Background(), admin, "ride-1")
	require.NoError(t, err)
	assert.Equal(t, model.SchedulingRejected, next.SchedulingState)

	f.group.Wait()
	require.Len(t, f.outbox.sent, 1)
	assert.Equal(t, "Carriage Ride Rejected", f.outbox.sent[0].Subject)
	assert.Empty(t, f.notifier.calls)
}

func TestReportLate(t *testing.T) {
	f := newFixture(scheduledRide())
	require.NoError(t, f.svc.ReportLate(context.Background(), driver, "ride-1"))
	f.group.Wait()
	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, model.EventLate, f.notifier.calls[0].event)
	assert.Equal(t, model.RoleDriver, f.notifier.calls[0].sender)
}

func TestAvailableDrivers(t *testing.T) {
	var avail model.Availability
	require.NoError(t, avail.Set(model.Tuesday, "08:00", "17:00"))
	drivers := memDrivers{
		{ID: "d1", Availability: avail},
		{ID: "d2"},
	}
	svc := NewService(newMemRides(), drivers, &recordingNotifier{}, nil, nil, logger.Nop())

	start := time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC)
	got, err := svc.AvailableDrivers(context.Background(), start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].ID)

	_, err = svc.AvailableDrivers(context.Background(), start, start)
	assert.Error(t, err)
}

// recordingTransport captures web push deliveries by endpoint.
type recordingTransport struct {
	mu   sync.Mutex
	sent map[string]*model.Notification
}

func (r *recordingTransport) Send(_ context.Context, sub *model.Subscription, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[sub.Endpoint] = n
	return nil
}

type staticSubs []*model.Subscription

func (s staticSubs) Create(context.Context, *model.Subscription) (bool, error) { return false, nil }
func (s staticSubs) Get(context.Context, string) (*model.Subscription, error) {
	return nil, apperrors.NewNotFound("subscription", nil)
}
func (s staticSubs) Delete(context.Context, string) error { return nil }
func (s staticSubs) Find(_ context.Context, role model.Role, userID string) ([]*model.Subscription, error) {
	var out []*model.Subscription
	for _, sub := range s {
		if sub.UserType == role && (userID == "" || sub.UserID == userID) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func TestAssignDriverEndToEnd(t *testing.T) {
	subs := staticSubs{
		{ID: "s-r1", UserType: model.RoleRider, UserID: "r1", Platform: model.PlatformWeb, Endpoint: "https://push/r1", Keys: &model.PushKeys{}},
		{ID: "s-d1", UserType: model.RoleDriver, UserID: "d1", Platform: model.PlatformWeb, Endpoint: "https://push/d1", Keys: &model.PushKeys{}},
		{ID: "s-a", UserType: model.RoleAdmin, UserID: "a1", Platform: model.PlatformWeb, Endpoint: "https://push/admin", Keys: &model.PushKeys{}},
	}
	transport := &recordingTransport{sent: map[string]*model.Notification{}}
	dispatcher := notification.NewDispatcher(subs, transport, nil, logger.Nop(), nil)
	notifier := notification.NewService(dispatcher, logger.Nop())

	box := &outbox{}
	group := worker.NewGroup(worker.GroupConfig{}, logger.Nop(), nil)
	rides := newMemRides(hydrated(newRide()))
	svc := NewService(rides, memDrivers{}, notifier, mail.NewEngine(noRiders{}, box, logger.Nop(), nil), group, logger.Nop())

	updated, err := svc.Update(context.Background(), admin, "ride-1", &model.RideUpdate{
		Driver: model.NullableDriver{Set: true, Value: &model.DriverRef{ID: "d1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SchedulingScheduled, updated.SchedulingState)

	group.Wait()

	require.Len(t, box.sent, 1)
	assert.Equal(t, "ada@example.com", box.sent[0].To)
	assert.Equal(t, "Carriage Ride Approved", box.sent[0].Subject)

	// ADMIN + SCHEDULED with a driver: riders and the driver, never admins.
	require.Contains(t, transport.sent, "https://push/r1")
	assert.Equal(t, model.EventScheduled, transport.sent["https://push/r1"].Event)
	assert.Contains(t, transport.sent, "https://push/d1")
	assert.NotContains(t, transport.sent, "https://push/admin")

	// A second unrelated edit of the now scheduled ride sends no further approval.
	riders := []model.RiderRef{{ID: "r1", FirstName: "Ada", Email: "ada@example.com"}}
	_, err = svc.Update(context.Background(), admin, "ride-1", &model.RideUpdate{Riders: riders})
	require.NoError(t, err)
	group.Wait()
	assert.Len(t, box.sent, 1)
}
