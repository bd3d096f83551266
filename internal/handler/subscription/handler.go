package subscription

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carriage/carriage-api/internal/middleware"
	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/pkg/errors"
	"github.com/carriage/carriage-api/pkg/httputil"
	"github.com/carriage/carriage-api/pkg/validator"
)

type subscriber interface {
	SubscribeWeb(ctx context.Context, actor model.Actor, req *model.WebSubscriptionRequest) (*model.Subscription, bool, error)
	SubscribeMobile(ctx context.Context, actor model.Actor, req *model.MobileSubscriptionRequest) (*model.Subscription, bool, error)
	Unsubscribe(ctx context.Context, actor model.Actor, id string) error
}

type Handler struct {
	service   subscriber
	validator validator.Validator
}

func NewHandler(service subscriber, v validator.Validator) *Handler {
	return &Handler{service: service, validator: v}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	subs := r.Group("/subscriptions")
	{
		subs.POST("/web", h.SubscribeWeb)
		subs.POST("/mobile", h.SubscribeMobile)
		subs.DELETE("/:id", h.Unsubscribe)
	}
}

func (h *Handler) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid request body", err))
		return false
	}
	if err := h.validator.Validate(dst); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest(err.Error(), err))
		return false
	}
	return true
}

func respond(c *gin.Context, sub *model.Subscription, created bool, err error) {
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.RespondWithStatus(c, status, sub)
}

func (h *Handler) SubscribeWeb(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
		return
	}
	var req model.WebSubscriptionRequest
	if !h.bind(c, &req) {
		return
	}
	sub, created, err := h.service.SubscribeWeb(c.Request.Context(), actor, &req)
	respond(c, sub, created, err)
}

func (h *Handler) SubscribeMobile(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
		return
	}
	var req model.MobileSubscriptionRequest
	if !h.bind(c, &req) {
		return
	}
	sub, created, err := h.service.SubscribeMobile(c.Request.Context(), actor, &req)
	respond(c, sub, created, err)
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
		return
	}
	if err := h.service.Unsubscribe(c.Request.Context(), actor, c.Param("id")); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
