package repository

import (
	"context"

	"github.com/carriage/carriage-api/internal/model"
)

// All repository interfaces in one file.
//
// Implementations return pkg/errors NotFound when a record is missing and Conflict when a
// create collides with an existing record.
type (
	// RideRepository is the ride record store.
	RideRepository interface {
		Create(ctx context.Context, ride *model.Ride) error
		Get(ctx context.Context, id string) (*model.Ride, error)
		Scan(ctx context.Context, filter *model.RideFilter) ([]*model.Ride, error)
		Update(ctx context.Context, ride *model.Ride) error
		Delete(ctx context.Context, id string) error
	}

	RiderRepository interface {
		Get(ctx context.Context, id string) (*model.Rider, error)
		// GetMany returns the riders found; missing ids are silently absent.
		GetMany(ctx context.Context, ids []string) ([]*model.Rider, error)
	}

	DriverRepository interface {
		Get(ctx context.Context, id string) (*model.Driver, error)
		List(ctx context.Context) ([]*model.Driver, error)
	}

	// SubscriptionRepository is the push subscription registry.
	SubscriptionRepository interface {
		// Create stores sub unless a subscription with the same ID exists; created reports
		// which happened.
		Create(ctx context.Context, sub *model.Subscription) (created bool, err error)
		Get(ctx context.Context, id string) (*model.Subscription, error)
		// Find returns the subscriptions of a role, narrowed to one user when userID is set.
		Find(ctx context.Context, userType model.Role, userID string) ([]*model.Subscription, error)
		Delete(ctx context.Context, id string) error
	}
)
