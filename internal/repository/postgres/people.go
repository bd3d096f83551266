package postgres

import (
	"context"

	"github.com/lib/pq"

	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/internal/repository"
)

type riderRepository struct {
	BaseRepository
}

func NewRiderRepository(base BaseRepository) repository.RiderRepository {
	return &riderRepository{base}
}

func (r *riderRepository) Get(ctx context.Context, id string) (*model.Rider, error) {
	var rider model.Rider
	err := r.db.GetContext(ctx, &rider, `SELECT * FROM riders WHERE id = $1`, id)
	if err := r.observe("get_rider", "rider", err); err != nil {
		return nil, err
	}
	return &rider, nil
}

// GetMany fetches all requested riders in one round trip.
func (r *riderRepository) GetMany(ctx context.Context, ids []string) ([]*model.Rider, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var riders []*model.Rider
	err := r.db.SelectContext(ctx, &riders, `SELECT * FROM riders WHERE id = ANY($1)`, pq.Array(ids))
	if err := r.observe("get_riders", "rider", err); err != nil {
		return nil, err
	}
	return riders, nil
}

type driverRepository struct {
	BaseRepository
}

func NewDriverRepository(base BaseRepository) repository.DriverRepository {
	return &driverRepository{base}
}

func (r *driverRepository) Get(ctx context.Context, id string) (*model.Driver, error) {
	var driver model.Driver
	err := r.db.GetContext(ctx, &driver, `SELECT * FROM drivers WHERE id = $1`, id)
	if err := r.observe("get_driver", "driver", err); err != nil {
		return nil, err
	}
	return &driver, nil
}

func (r *driverRepository) List(ctx context.Context) ([]*model.Driver, error) {
	var drivers []*model.Driver
	err := r.db.SelectContext(ctx, &drivers, `SELECT * FROM drivers ORDER BY last_name, first_name`)
	if err := r.observe("list_drivers", "driver", err); err != nil {
		return nil, err
	}
	return drivers, nil
}
