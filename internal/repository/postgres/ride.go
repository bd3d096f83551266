package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/internal/repository"
	apperrors "github.com/carriage/carriage-api/pkg/errors"
)

type rideRepository struct {
	BaseRepository
}

func NewRideRepository(base BaseRepository) repository.RideRepository {
	return &rideRepository{base}
}

// rideRow lifts the filterable fields of a ride out of its document.
type rideRow struct {
	ID              string         `db:"id"`
	Data            string         `db:"data"` // lib/pq would send []byte as bytea
	Type            string         `db:"type"`
	Status          string         `db:"status"`
	SchedulingState string         `db:"scheduling_state"`
	IsRecurring     bool           `db:"is_recurring"`
	DriverID        *string        `db:"driver_id"`
	RiderIDs        pq.StringArray `db:"rider_ids"`
	ParentRideID    *string        `db:"parent_ride_id"`
	RecurrenceID    *time.Time     `db:"recurrence_id"`
	StartTime       time.Time      `db:"start_time"`
	EndTime         time.Time      `db:"end_time"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func toRow(ride *model.Ride) (*rideRow, error) {
	data, err := json.Marshal(ride)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ride: %w", err)
	}
	row := &rideRow{
		ID:              ride.ID,
		Data:            string(data),
		Type:            string(ride.Type),
		Status:          string(ride.Status),
		SchedulingState: string(ride.SchedulingState),
		IsRecurring:     ride.IsRecurring,
		RecurrenceID:    ride.RecurrenceID,
		StartTime:       ride.StartTime,
		EndTime:         ride.EndTime,
		CreatedAt:       ride.CreatedAt,
		UpdatedAt:       ride.UpdatedAt,
	}
	if ride.Driver != nil {
		row.DriverID = &ride.Driver.ID
	}
	if ride.ParentRideID != "" {
		row.ParentRideID = &ride.ParentRideID
	}
	for _, r := range ride.Riders {
		row.RiderIDs = append(row.RiderIDs, r.ID)
	}
	return row, nil
}

func (row *rideRow) ride() (*model.Ride, error) {
	var ride model.Ride
	if err := json.Unmarshal([]byte(row.Data), &ride); err != nil {
		return nil, fmt.Errorf("failed to decode ride %s: %w", row.ID, err)
	}
	return &ride, nil
}

func (r *rideRepository) Create(ctx context.Context, ride *model.Ride) error {
	now := time.Now().UTC()
	ride.CreatedAt = now
	ride.UpdatedAt = now

	row, err := toRow(ride)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rides (
			id, data, type, status, scheduling_state, is_recurring, driver_id,
			rider_ids, parent_ride_id, recurrence_id, start_time, end_time,
			created_at, updated_at
		) VALUES (
			:id, :data, :type, :status, :scheduling_state, :is_recurring, :driver_id,
			:rider_ids, :parent_ride_id, :recurrence_id, :start_time, :end_time,
			:created_at, :updated_at
		)
	`
	_, err = r.db.NamedExecContext(ctx, query, row)
	return r.observe("create_ride", "ride", err)
}

func (r *rideRepository) Get(ctx context.Context, id string) (*model.Ride, error) {
	var row rideRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM rides WHERE id = $1`, id)
	if err := r.observe("get_ride", "ride", err); err != nil {
		return nil, err
	}
	return row.ride()
}

func (r *rideRepository) Scan(ctx context.Context, filter *model.RideFilter) ([]*model.Ride, error) {
	query, args := buildRideScan(filter)

	var rows []rideRow
	err := r.db.SelectContext(ctx, &rows, query, args...)
	if err := r.observe("scan_rides", "ride", err); err != nil {
		return nil, err
	}

	rides := make([]*model.Ride, 0, len(rows))
	for i := range rows {
		ride, err := rows[i].ride()
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, nil
}

func buildRideScan(filter *model.RideFilter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter != nil {
		if filter.Type != "" {
			add("type = $%d", string(filter.Type))
		}
		if filter.Status != "" {
			add("status = $%d", string(filter.Status))
		}
		if filter.SchedulingState != "" {
			add("scheduling_state = $%d", string(filter.SchedulingState))
		}
		if filter.RiderID != "" {
			add("$%d = ANY(rider_ids)", filter.RiderID)
		}
		if filter.DriverID != "" {
			add("driver_id = $%d", filter.DriverID)
		}
		if filter.Recurring != nil {
			add("is_recurring = $%d", *filter.Recurring)
		}
		if filter.From != nil {
			add("start_time >= $%d", *filter.From)
		}
		if filter.To != nil {
			add("start_time < $%d", *filter.To)
		}
	}

	query := "SELECT * FROM rides"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY start_time", args
}

func (r *rideRepository) Update(ctx context.Context, ride *model.Ride) error {
	ride.UpdatedAt = time.Now().UTC()

	row, err := toRow(ride)
	if err != nil {
		return err
	}

	query := `
		UPDATE rides SET
			data = :data, type = :type, status = :status,
			scheduling_state = :scheduling_state, is_recurring = :is_recurring,
			driver_id = :driver_id, rider_ids = :rider_ids, start_time = :start_time,
			end_time = :end_time, updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, row)
	if err := r.observe("update_ride", "ride", err); err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NewNotFound("ride", nil)
	}
	return nil
}

func (r *rideRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rides WHERE id = $1`, id)
	if err := r.observe("delete_ride", "ride", err); err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NewNotFound("ride", nil)
	}
	return nil
}
