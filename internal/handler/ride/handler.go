package ride

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carriage/carriage-api/internal/middleware"
	"github.com/carriage/carriage-api/internal/model"
	rideService "github.com/carriage/carriage-api/internal/service/ride"
	"github.com/carriage/carriage-api/pkg/errors"
	"github.com/carriage/carriage-api/pkg/httputil"
	"github.com/carriage/carriage-api/pkg/validator"
)

type Handler struct {
	service   rideService.Service
	validator validator.Validator
}

func NewHandler(service rideService.Service, v validator.Validator) *Handler {
	return &Handler{service: service, validator: v}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rides := r.Group("/rides")
	{
		rides.POST("", h.CreateRide)
		rides.GET("", h.ListRides)
		rides.GET("/:id", h.GetRide)
		rides.PUT("/:id", h.UpdateRide)
		rides.POST("/:id/cancel", h.CancelRide)
		rides.POST("/:id/reject", middleware.RequireRole(model.RoleAdmin), h.RejectRide)
		rides.POST("/:id/late", middleware.RequireRole(model.RoleDriver), h.ReportLate)
	}
}

func actor(c *gin.Context) (model.Actor, bool) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
	}
	return a, ok
}

func (h *Handler) CreateRide(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req model.CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid request body", err))
		return
	}
	req.Normalize()
	if err := h.validator.Validate(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest(err.Error(), err))
		return
	}

	ride, err := h.service.Create(c.Request.Context(), a, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, ride)
}

func (h *Handler) GetRide(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	ride, err := h.service.Get(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, ride)
}

type listQuery struct {
	Type            string `form:"type" validate:"omitempty,oneof=ACTIVE PAST UNSCHEDULED"`
	Status          string `form:"status" validate:"omitempty,oneof=NOT_STARTED ON_THE_WAY ARRIVED PICKED_UP COMPLETED NO_SHOW CANCELLED"`
	SchedulingState string `form:"schedulingState" validate:"omitempty,oneof=UNSCHEDULED SCHEDULED SCHEDULED_WITH_MODIFICATION REJECTED"`
	Rider           string `form:"rider"`
	Driver          string `form:"driver"`
	From            string `form:"from"`
	To              string `form:"to"`
}

func (q *listQuery) filter() (*model.RideFilter, error) {
	f := &model.RideFilter{
		Type:            model.RideType(q.Type),
		Status:          model.Status(q.Status),
		SchedulingState: model.SchedulingState(q.SchedulingState),
		RiderID:         q.Rider,
		DriverID:        q.Driver,
	}
	for _, p := range []struct {
		raw string
		dst **time.Time
	}{{q.From, &f.From}, {q.To, &f.To}} {
		if p.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, p.raw)
		if err != nil {
			return nil, errors.NewBadRequest("from and to must be RFC 3339 timestamps", err)
		}
		*p.dst = &t
	}
	return f, nil
}

func (h *Handler) ListRides(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid query", err))
		return
	}
	if err := h.validator.Validate(&q); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest(err.Error(), err))
		return
	}
	filter, err := q.filter()
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	rides, err := h.service.List(c.Request.Context(), a, filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if rides == nil {
		rides = []*model.Ride{}
	}
	httputil.RespondWithSuccess(c, rides)
}

func (h *Handler) UpdateRide(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var u model.RideUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid request body", err))
		return
	}
	if err := h.validator.Validate(&u); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest(err.Error(), err))
		return
	}

	ride, err := h.service.Update(c.Request.Context(), a, c.Param("id"), &u)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, ride)
}

type cancelResponse struct {
	Ride    *model.Ride `json:"ride"`
	Deleted bool        `json:"deleted"`
}

func (h *Handler) CancelRide(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	ride, deleted, err := h.service.Cancel(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, cancelResponse{Ride: ride, Deleted: deleted})
}

func (h *Handler) RejectRide(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	ride, err := h.service.Reject(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, ride)
}

func (h *Handler) ReportLate(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.service.ReportLate(c.Request.Context(), a, c.Param("id")); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
