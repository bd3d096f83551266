package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carriage/carriage-api/internal/handler/health"
	promhandler "github.com/carriage/carriage-api/internal/handler/prometheus"
	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/pkg/auth"
	"github.com/carriage/carriage-api/pkg/logger"
	"github.com/carriage/carriage-api/pkg/metrics"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	jwt := auth.NewJWTService("secret", "carriage")
	rt := NewRouter(
		RouterConfig{RateLimitEnabled: true, RateLimit: 100, RateBurst: 10},
		logger.Nop(),
		metrics.New("test", reg),
		jwt,
		health.NewHandler(nil),
		promhandler.New(reg),
		pingHandler{},
	)

	serve := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		rt.Engine().ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, serve("/health/live", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve("/api/v1/ping", "").Code)

	token, err := jwt.GenerateAccessToken(model.Actor{Role: model.RoleRider, UserID: "r1"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serve("/api/v1/ping", token).Code)

	w := serve("/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}
