package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carriage/carriage-api/internal/model"
	apperrors "github.com/carriage/carriage-api/pkg/errors"
	"github.com/carriage/carriage-api/pkg/logger"
)

type memRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Subscription
}

func newMemRepo() *memRepo { return &memRepo{subs: map[string]*model.Subscription{}} }

func (m *memRepo) Create(_ context.Context, sub *model.Subscription) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID]; ok {
		return false, nil
	}
	m.subs[sub.ID] = sub
	return true, nil
}

func (m *memRepo) Get(_ context.Context, id string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[id]; ok {
		return s, nil
	}
	return nil, apperrors.NewNotFound("subscription", nil)
}

func (m *memRepo) Find(context.Context, model.Role, string) ([]*model.Subscription, error) {
	return nil, nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}

type mockRegistrar struct {
	mock.Mock
}

func (m *mockRegistrar) Register(ctx context.Context, ios bool, token string) (string, error) {
	args := m.Called(ctx, ios, token)
	return args.String(0), args.Error(1)
}

var rider = model.Actor{Role: model.RoleRider, UserID: "r1"}

func webRequest() *model.WebSubscriptionRequest {
	return &model.WebSubscriptionRequest{
		Endpoint: "https://fcm.googleapis.com/fcm/send/abc",
		Keys:     model.PushKeys{P256dh: "p", Auth: "a"},
	}
}

func TestSubscribeWebIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, logger.Nop())

	first, created, err := svc.SubscribeWeb(context.Background(), rider, webRequest())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.PlatformWeb, first.Platform)
	assert.Equal(t, "p", first.Keys.P256dh)

	second, created, err := svc.SubscribeWeb(context.Background(), rider, webRequest())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.subs, 1)
}

func TestSubscribeMobile(t *testing.T) {
	reg := &mockRegistrar{}
	reg.On("Register", mock.Anything, true, "apns-token").Return("arn:aws:sns:endpoint/ios/1", nil)
	svc := NewService(newMemRepo(), reg, logger.Nop())

	sub, created, err := svc.SubscribeMobile(context.Background(),
		model.Actor{Role: model.RoleDriver, UserID: "d1"},
		&model.MobileSubscriptionRequest{Token: "apns-token", Platform: model.PlatformIOS})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "arn:aws:sns:endpoint/ios/1", sub.Endpoint)
	assert.Equal(t, model.RoleDriver, sub.UserType)
	reg.AssertExpectations(t)
}

func TestSubscribeMobileErrors(t *testing.T) {
	_, _, err := NewService(newMemRepo(), nil, logger.Nop()).SubscribeMobile(context.Background(), rider,
		&model.MobileSubscriptionRequest{Token: "t", Platform: model.PlatformAndroid})
	assert.True(t, errors.Is(err, apperrors.BadRequestError))

	reg := &mockRegistrar{}
	reg.On("Register", mock.Anything, false, "t").Return("", errors.New("throttled"))
	_, _, err = NewService(newMemRepo(), reg, logger.Nop()).SubscribeMobile(context.Background(), rider,
		&model.MobileSubscriptionRequest{Token: "t", Platform: model.PlatformAndroid})
	assert.Error(t, err)
}

func TestUnsubscribeOwnership(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, logger.Nop())
	sub, _, err := svc.SubscribeWeb(context.Background(), rider, webRequest())
	require.NoError(t, err)

	err = svc.Unsubscribe(context.Background(), model.Actor{Role: model.RoleRider, UserID: "r2"}, sub.ID)
	assert.True(t, apperrors.IsForbidden(err))

	require.NoError(t, svc.Unsubscribe(context.Background(), rider, sub.ID))
	assert.Empty(t, repo.subs)

	err = svc.Unsubscribe(context.Background(), rider, sub.ID)
	assert.True(t, apperrors.IsNotFound(err))
}
