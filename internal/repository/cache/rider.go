package cache

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/internal/repository"
)

type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		TTL:             10 * time.Minute,
		CleanupInterval: time.Hour,
	}
}

// riderDirectory is a read-through cache in front of the rider store. Rider contact details
// change rarely and every ride mutation's email pass would otherwise hit the database.
type riderDirectory struct {
	next  repository.RiderRepository
	cache *cache.Cache
}

func NewRiderDirectory(next repository.RiderRepository, cfg Config) repository.RiderRepository {
	return &riderDirectory{
		next:  next,
		cache: cache.New(cfg.TTL, cfg.CleanupInterval),
	}
}

func (d *riderDirectory) Get(ctx context.Context, id string) (*model.Rider, error) {
	if v, ok := d.cache.Get(id); ok {
		return v.(*model.Rider), nil
	}
	rider, err := d.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d.cache.SetDefault(id, rider)
	return rider, nil
}

// GetMany serves what it can from the cache and fetches the rest in one batch.
func (d *riderDirectory) GetMany(ctx context.Context, ids []string) ([]*model.Rider, error) {
	riders := make([]*model.Rider, 0, len(ids))
	var missing []string
	for _, id := range ids {
		if v, ok := d.cache.Get(id); ok {
			riders = append(riders, v.(*model.Rider))
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return riders, nil
	}

	fetched, err := d.next.GetMany(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, r := range fetched {
		d.cache.SetDefault(r.ID, r)
		riders = append(riders, r)
	}
	return riders, nil
}
