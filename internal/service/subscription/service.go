package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/internal/repository"
	apperrors "github.com/carriage/carriage-api/pkg/errors"
	"github.com/carriage/carriage-api/pkg/logger"
)

// Registrar turns a device token into a broker endpoint.
type Registrar interface {
	Register(ctx context.Context, ios bool, token string) (endpointARN string, err error)
}

type Service struct {
	repo      repository.SubscriptionRepository
	registrar Registrar
	log       *logger.Logger
	now       func() time.Time
}

// NewService builds the subscription service. registrar may be nil when mobile push is not
// configured.
func NewService(repo repository.SubscriptionRepository, registrar Registrar, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		registrar: registrar,
		log:       log.Component("subscription"),
		now:       time.Now,
	}
}

// SubscribeWeb registers a browser endpoint for actor. Registering the same endpoint again
// succeeds without creating anything; created reports which case happened.
func (s *Service) SubscribeWeb(ctx context.Context, actor model.Actor, req *model.WebSubscriptionRequest) (*model.Subscription, bool, error) {
	keys := req.Keys
	sub := &model.Subscription{
		ID:          model.SubscriptionID(req.Endpoint, actor.Role, model.PlatformWeb),
		UserType:    actor.Role,
		UserID:      actor.UserID,
		Platform:    model.PlatformWeb,
		Endpoint:    req.Endpoint,
		Keys:        &keys,
		Preferences: req.Preferences,
		CreatedAt:   s.now().UTC(),
	}
	return s.store(ctx, sub)
}

// SubscribeMobile registers the device token with the broker and stores the resulting
// platform endpoint.
func (s *Service) SubscribeMobile(ctx context.Context, actor model.Actor, req *model.MobileSubscriptionRequest) (*model.Subscription, bool, error) {
	if s.registrar == nil {
		return nil, false, apperrors.NewBadRequest("mobile notifications are not enabled", nil)
	}
	if !req.Platform.Mobile() {
		return nil, false, apperrors.NewBadRequest("platform must be ANDROID or IOS", nil)
	}

	arn, err := s.registrar.Register(ctx, req.Platform == model.PlatformIOS, req.Token)
	if err != nil {
		return nil, false, fmt.Errorf("failed to register device: %w", err)
	}

	sub := &model.Subscription{
		ID:          model.SubscriptionID(arn, actor.Role, req.Platform),
		UserType:    actor.Role,
		UserID:      actor.UserID,
		Platform:    req.Platform,
		Endpoint:    arn,
		Preferences: req.Preferences,
		CreatedAt:   s.now().UTC(),
	}
	return s.store(ctx, sub)
}

func (s *Service) store(ctx context.Context, sub *model.Subscription) (*model.Subscription, bool, error) {
	if !sub.UserType.Valid() {
		return nil, false, apperrors.NewBadRequest("unknown user type", nil)
	}
	created, err := s.repo.Create(ctx, sub)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save subscription: %w", err)
	}
	if created {
		s.log.Info("subscription created",
			"subscription_id", sub.ID, "user_type", string(sub.UserType), "user_id", sub.UserID, "platform", string(sub.Platform))
	}
	return sub, created, nil
}

// Unsubscribe removes a subscription owned by actor. Admins may remove any.
func (s *Service) Unsubscribe(ctx context.Context, actor model.Actor, id string) error {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != model.RoleAdmin && (sub.UserType != actor.Role || sub.UserID != actor.UserID) {
		return apperrors.NewForbidden("subscription belongs to another user")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	s.log.Info("subscription removed", "subscription_id", id)
	return nil
}
