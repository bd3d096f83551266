package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/internal/repository"
	apperrors "github.com/carriage/carriage-api/pkg/errors"
)

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
	KeyPrefix    string
}

// NewClient parses the URL, applies pool settings and checks connectivity.
func NewClient(ctx context.Context, config Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// subscriptionRepository keeps each subscription as a JSON string under its ID and indexes
// IDs in two sets: one per role and one per (role, user).
type subscriptionRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewSubscriptionRepository(client redis.UniversalClient, prefix string) repository.SubscriptionRepository {
	if prefix == "" {
		prefix = "carriage"
	}
	return &subscriptionRepository{client: client, prefix: prefix}
}

func (r *subscriptionRepository) key(id string) string {
	return r.prefix + ":sub:" + id
}

func (r *subscriptionRepository) roleIndex(role model.Role) string {
	return r.prefix + ":subs:" + string(role)
}

func (r *subscriptionRepository) userIndex(role model.Role, userID string) string {
	return r.prefix + ":subs:" + string(role) + ":" + userID
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *model.Subscription) (bool, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return false, fmt.Errorf("failed to marshal subscription: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(sub.ID), payload, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store subscription: %w", err)
	}
	if !ok {
		// The record exists but an earlier Create may have failed before indexing it.
		existing, err := r.Get(ctx, sub.ID)
		if err != nil {
			return false, err
		}
		return false, r.index(ctx, existing)
	}
	return true, r.index(ctx, sub)
}

// index adds sub to its role and user sets. SADD is idempotent, so re-indexing is safe.
func (r *subscriptionRepository) index(ctx context.Context, sub *model.Subscription) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, r.roleIndex(sub.UserType), sub.ID)
		if sub.UserID != "" {
			p.SAdd(ctx, r.userIndex(sub.UserType, sub.UserID), sub.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*model.Subscription, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, apperrors.NewNotFound("subscription", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	var sub model.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("failed to decode subscription %s: %w", id, err)
	}
	return &sub, nil
}

func (r *subscriptionRepository) Find(ctx context.Context, userType model.Role, userID string) ([]*model.Subscription, error) {
	index := r.roleIndex(userType)
	if userID != "" {
		index = r.userIndex(userType, userID)
	}

	ids, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	subs := make([]*model.Subscription, 0, len(values))
	var stale []interface{}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var sub model.Subscription
		if err := json.Unmarshal([]byte(s), &sub); err != nil {
			return nil, fmt.Errorf("failed to decode subscription %s: %w", ids[i], err)
		}
		subs = append(subs, &sub)
	}
	if len(stale) > 0 {
		// Index entries whose record is gone are dropped lazily.
		r.client.SRem(ctx, index, stale...)
	}
	return subs, nil
}

func (r *subscriptionRepository) Delete(ctx context.Context, id string) error {
	sub, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.key(id))
		p.SRem(ctx, r.roleIndex(sub.UserType), id)
		if sub.UserID != "" {
			p.SRem(ctx, r.userIndex(sub.UserType, sub.UserID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}
