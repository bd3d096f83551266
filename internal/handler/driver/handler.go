package driver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carriage/carriage-api/internal/middleware"
	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/pkg/errors"
	"github.com/carriage/carriage-api/pkg/httputil"
)

type availability interface {
	AvailableDrivers(ctx context.Context, start, end time.Time) ([]*model.Driver, error)
}

type Handler struct {
	service availability
}

func NewHandler(service availability) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	drivers := r.Group("/drivers", middleware.RequireRole(model.RoleAdmin))
	{
		drivers.GET("/available", h.Available)
	}
}

// Available lists drivers free for the window given by the start and end query parameters.
func (h *Handler) Available(c *gin.Context) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("start must be an RFC 3339 timestamp", err))
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("end must be an RFC 3339 timestamp", err))
		return
	}
	if !start.Before(end) {
		httputil.RespondWithError(c, errors.NewBadRequest("start must be before end", nil))
		return
	}

	drivers, err := h.service.AvailableDrivers(c.Request.Context(), start, end)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if drivers == nil {
		drivers = []*model.Driver{}
	}
	httputil.RespondWithSuccess(c, drivers)
}
