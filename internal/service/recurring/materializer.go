package recurring

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/internal/repository"
	"github.com/carriage/carriage-api/internal/service/ride"
	apperrors "github.com/carriage/carriage-api/pkg/errors"
	"github.com/carriage/carriage-api/pkg/logger"
	"github.com/carriage/carriage-api/pkg/metrics"
)

type occurrenceCreator interface {
	CreateOccurrence(ctx context.Context, ride *model.Ride) error
}

type Config struct {
	// Location is used for masters that carry no timezone of their own.
	Location    *time.Location
	Concurrency int
	Now         func() time.Time
}

// Summary is the outcome of one sweep.
type Summary struct {
	Day     Day
	Scanned int
	Created int
	Skipped int
	Failed  int
}

type Materializer struct {
	rides   repository.RideRepository
	creator occurrenceCreator
	cfg     Config
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewMaterializer(rides repository.RideRepository, creator occurrenceCreator, cfg Config, log *logger.Logger, m *metrics.Metrics) *Materializer {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Materializer{
		rides:   rides,
		creator: creator,
		cfg:     cfg,
		log:     log.Component("recurring"),
		metrics: m,
	}
}

// Run materializes tomorrow's occurrences.
func (m *Materializer) Run(ctx context.Context) (Summary, error) {
	tomorrow := m.cfg.Now().In(m.cfg.Location).AddDate(0, 0, 1)
	return m.RunFor(ctx, DayOf(tomorrow))
}

// RunFor materializes the occurrences of every open recurring ride that falls on day.
// Running it twice for the same day creates nothing new: occurrence IDs are derived from the
// master and the day, and the store rejects the duplicate.
func (m *Materializer) RunFor(ctx context.Context, day Day) (Summary, error) {
	start := time.Now()
	recurring := true
	masters, err := m.rides.Scan(ctx, &model.RideFilter{Recurring: &recurring})
	if err != nil {
		return Summary{Day: day}, fmt.Errorf("failed to scan recurring rides: %w", err)
	}

	var created, skipped, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for _, master := range masters {
		master := master
		g.Go(func() error {
			switch reason, err := m.materialize(gctx, master, day); {
			case err != nil:
				atomic.AddInt64(&failed, 1)
				m.log.Error(err, "failed to materialize occurrence", "ride_id", master.ID, "day", day.String())
			case reason != "":
				atomic.AddInt64(&skipped, 1)
				m.skip(reason)
			default:
				atomic.AddInt64(&created, 1)
				if m.metrics != nil {
					m.metrics.OccurrencesCreated.Inc()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{
		Day:     day,
		Scanned: len(masters),
		Created: int(created),
		Skipped: int(skipped),
		Failed:  int(failed),
	}
	if m.metrics != nil {
		m.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	m.log.Info("recurring sweep finished",
		"day", day.String(),
		"scanned", summary.Scanned,
		"created", summary.Created,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

// materialize returns a non-empty reason when master produces nothing for day.
func (m *Materializer) materialize(ctx context.Context, master *model.Ride, day Day) (string, error) {
	if master.Closed() {
		return "closed", nil
	}
	loc := m.location(master)

	if DayOf(master.StartTime.In(loc)) == day {
		return "master", nil
	}
	ok, err := covers(master, day, loc)
	if err != nil {
		return "", err
	}
	if !ok {
		return "not_due", nil
	}
	if excluded(master, day, loc) {
		return "exdate", nil
	}
	ov := override(master, day)
	if ov != nil && ov.Deleted {
		return "deleted", nil
	}

	occ := Occurrence(master, day, loc, ov)
	if ov != nil && !occ.StartTime.Before(occ.EndTime) {
		m.log.Warn("override ends before it starts", "ride_id", master.ID, "day", day.String())
		return "invalid_override", nil
	}
	if err := m.creator.CreateOccurrence(ctx, occ); err != nil {
		if apperrors.IsConflict(err) {
			return "duplicate", nil
		}
		return "", err
	}
	m.log.Debug("occurrence created", "ride_id", occ.ID, "parent_ride_id", master.ID, "day", day.String())
	return "", nil
}

func (m *Materializer) location(master *model.Ride) *time.Location {
	if master.Timezone != "" {
		if loc, err := time.LoadLocation(master.Timezone); err == nil {
			return loc
		}
		m.log.Warn("unknown ride timezone", "ride_id", master.ID, "timezone", master.Timezone)
	}
	return m.cfg.Location
}

func (m *Materializer) skip(reason string) {
	if m.metrics != nil {
		m.metrics.OccurrencesSkipped.WithLabelValues(reason).Inc()
	}
}

var occurrenceNamespace = uuid.MustParse("0b7c64a2-8f3e-4d1a-b6c5-2e9f71d3a850")

// OccurrenceID is the identity of master's occurrence on day.
func OccurrenceID(masterID string, day Day) string {
	return uuid.NewSHA1(occurrenceNamespace, []byte(masterID+"|"+day.String())).String()
}

// Occurrence builds the concrete ride for day: the master's time of day and duration on that
// date, with any substitution from ov applied.
func Occurrence(master *model.Ride, day Day, loc *time.Location, ov *model.RideOverride) *model.Ride {
	local := master.StartTime.In(loc)
	start := time.Date(day.Year, day.Month, day.Day, local.Hour(), local.Minute(), local.Second(), 0, loc)
	recurrenceID := start.UTC()
	duration := master.EndTime.Sub(master.StartTime)

	occ := &model.Ride{
		ID:            OccurrenceID(master.ID, day),
		StartLocation: master.StartLocation,
		EndLocation:   master.EndLocation,
		StartTime:     start.UTC(),
		EndTime:       start.Add(duration).UTC(),
		Riders:        append([]model.RiderRef(nil), master.Riders...),
		ParentRideID:  master.ID,
		RecurrenceID:  &recurrenceID,
		Timezone:      master.Timezone,
	}
	if master.Driver != nil {
		d := *master.Driver
		occ.Driver = &d
	}

	if ov != nil {
		// A moved start keeps the master's duration unless the end is moved too.
		if ov.StartTime != nil {
			occ.StartTime = ov.StartTime.UTC()
			occ.EndTime = occ.StartTime.Add(duration)
		}
		if ov.EndTime != nil {
			occ.EndTime = ov.EndTime.UTC()
		}
		if ov.StartLocation != nil {
			occ.StartLocation = *ov.StartLocation
		}
		if ov.EndLocation != nil {
			occ.EndLocation = *ov.EndLocation
		}
		if ov.Driver != nil {
			d := *ov.Driver
			occ.Driver = &d
		}
	}

	ride.Initialize(occ)
	return occ
}
