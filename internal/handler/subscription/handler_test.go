package subscription

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/carriage/carriage-api/internal/middleware"
	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/pkg/errors"
	"github.com/carriage/carriage-api/pkg/validator"
)

type mockSubscriber struct {
	mock.Mock
}

func (m *mockSubscriber) SubscribeWeb(ctx context.Context, actor model.Actor, req *model.WebSubscriptionRequest) (*model.Subscription, bool, error) {
	args := m.Called(ctx, actor, req)
	s, _ := args.Get(0).(*model.Subscription)
	return s, args.Bool(1), args.Error(2)
}

func (m *mockSubscriber) SubscribeMobile(ctx context.Context, actor model.Actor, req *model.MobileSubscriptionRequest) (*model.Subscription, bool, error) {
	args := m.Called(ctx, actor, req)
	s, _ := args.Get(0).(*model.Subscription)
	return s, args.Bool(1), args.Error(2)
}

func (m *mockSubscriber) Unsubscribe(ctx context.Context, actor model.Actor, id string) error {
	return m.Called(ctx, actor, id).Error(0)
}

var driver = model.Actor{Role: model.RoleDriver, UserID: "d1"}

func serve(svc *mockSubscriber, method, path, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("", func(c *gin.Context) {
		middleware.SetActor(c, driver)
		c.Next()
	})
	NewHandler(svc, validator.New()).RegisterRoutes(api)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestSubscribeWebStatus(t *testing.T) {
	body := `{"endpoint":"https://push.example/abc","keys":{"p256dh":"p","auth":"a"}}`

	svc := &mockSubscriber{}
	svc.On("SubscribeWeb", mock.Anything, driver, mock.Anything).Return(&model.Subscription{ID: "s1"}, true, nil).Once()
	svc.On("SubscribeWeb", mock.Anything, driver, mock.Anything).Return(&model.Subscription{ID: "s1"}, false, nil).Once()

	assert.Equal(t, http.StatusCreated, serve(svc, http.MethodPost, "/subscriptions/web", body).Code)
	assert.Equal(t, http.StatusOK, serve(svc, http.MethodPost, "/subscriptions/web", body).Code)
}

func TestSubscribeValidation(t *testing.T) {
	svc := &mockSubscriber{}
	assert.Equal(t, http.StatusBadRequest,
		serve(svc, http.MethodPost, "/subscriptions/web", `{"endpoint":"not a url","keys":{"p256dh":"p","auth":"a"}}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		serve(svc, http.MethodPost, "/subscriptions/mobile", `{"token":"t","platform":"WEB"}`).Code)
	svc.AssertNotCalled(t, "SubscribeWeb", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubscribeMobileNotConfigured(t *testing.T) {
	svc := &mockSubscriber{}
	svc.On("SubscribeMobile", mock.Anything, driver, mock.Anything).
		Return(nil, false, errors.NewBadRequest("mobile notifications are not enabled", nil))

	w := serve(svc, http.MethodPost, "/subscriptions/mobile", `{"token":"t","platform":"IOS"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not enabled")
}

func TestUnsubscribe(t *testing.T) {
	svc := &mockSubscriber{}
	svc.On("Unsubscribe", mock.Anything, driver, "s1").Return(nil)
	svc.On("Unsubscribe", mock.Anything, driver, "s2").Return(errors.NewForbidden("subscription belongs to another user"))

	assert.Equal(t, http.StatusNoContent, serve(svc, http.MethodDelete, "/subscriptions/s1", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(svc, http.MethodDelete, "/subscriptions/s2", "").Code)
}
