package model

import (
	"encoding/json"
	"time"
)

type RideType string

const (
	RideTypeActive      RideType = "ACTIVE"
	RideTypePast        RideType = "PAST"
	RideTypeUnscheduled RideType = "UNSCHEDULED"
)

// Status is the driver-controlled operational progress of a ride.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusOnTheWay   Status = "ON_THE_WAY"
	StatusArrived    Status = "ARRIVED"
	StatusPickedUp   Status = "PICKED_UP"
	StatusCompleted  Status = "COMPLETED"
	StatusNoShow     Status = "NO_SHOW"
	StatusCancelled  Status = "CANCELLED"
)

// SchedulingState is the dispatcher-controlled approval state, independent of Status.
type SchedulingState string

const (
	SchedulingUnscheduled              SchedulingState = "UNSCHEDULED"
	SchedulingScheduled                SchedulingState = "SCHEDULED"
	SchedulingScheduledWithModification SchedulingState = "SCHEDULED_WITH_MODIFICATION"
	SchedulingRejected                 SchedulingState = "REJECTED"
)

type Ride struct {
	ID              string          `json:"id" db:"id"`
	Type            RideType        `json:"type"`
	Status          Status          `json:"status"`
	SchedulingState SchedulingState `json:"schedulingState"`
	StartLocation   Location        `json:"startLocation"`
	EndLocation     Location        `json:"endLocation"`
	StartTime       time.Time       `json:"startTime"`
	EndTime         time.Time       `json:"endTime"`
	Riders          []RiderRef      `json:"riders"`
	Driver          *DriverRef      `json:"driver,omitempty"`

	IsRecurring   bool           `json:"isRecurring"`
	RRule         string         `json:"rrule,omitempty"`
	ExDate        []time.Time    `json:"exdate,omitempty"`
	RDate         []time.Time    `json:"rdate,omitempty"`
	ParentRideID  string         `json:"parentRideId,omitempty"`
	RecurrenceID  *time.Time     `json:"recurrenceId,omitempty"`
	Timezone      string         `json:"timezone,omitempty"`
	RecurringDays []Weekday      `json:"recurringDays,omitempty"`
	EndDate       *time.Time     `json:"endDate,omitempty"`
	Overrides     []RideOverride `json:"overrides,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RideOverride is a recorded edit to one occurrence of a recurring ride. Deleted marks a
// deletion-only edit; otherwise the non-nil fields substitute the master's.
type RideOverride struct {
	Date          string     `json:"date"` // 2006-01-02 in the ride's timezone
	Deleted       bool       `json:"deleted,omitempty"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	StartLocation *Location  `json:"startLocation,omitempty"`
	EndLocation   *Location  `json:"endLocation,omitempty"`
	Driver        *DriverRef `json:"driver,omitempty"`
}

// rideAlias avoids recursing into Ride.UnmarshalJSON.
type rideAlias Ride

// UnmarshalJSON folds the legacy singular "rider" field and the legacy "recurring" flag
// into the canonical shape.
func (r *Ride) UnmarshalJSON(data []byte) error {
	aux := struct {
		*rideAlias
		Rider     *RiderRef `json:"rider,omitempty"`
		Recurring *bool     `json:"recurring,omitempty"`
	}{rideAlias: (*rideAlias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Riders = NormalizeRiders(aux.Rider, r.Riders)
	if aux.Recurring != nil && *aux.Recurring {
		r.IsRecurring = true
	}
	return nil
}

// NormalizeRiders merges a legacy single rider into the rider list, dropping duplicates
// while keeping order.
func NormalizeRiders(single *RiderRef, many []RiderRef) []RiderRef {
	out := make([]RiderRef, 0, len(many)+1)
	seen := make(map[string]bool, len(many)+1)
	add := func(r RiderRef) {
		if r.ID == "" || seen[r.ID] {
			return
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	if single != nil {
		add(*single)
	}
	for _, r := range many {
		add(r)
	}
	return out
}

// Clone returns a deep copy so snapshots handed to background work cannot be mutated
// underneath them.
func (r *Ride) Clone() *Ride {
	if r == nil {
		return nil
	}
	c := *r
	c.Riders = append([]RiderRef(nil), r.Riders...)
	if r.Driver != nil {
		d := *r.Driver
		c.Driver = &d
	}
	c.ExDate = append([]time.Time(nil), r.ExDate...)
	c.RDate = append([]time.Time(nil), r.RDate...)
	c.RecurringDays = append([]Weekday(nil), r.RecurringDays...)
	c.Overrides = append([]RideOverride(nil), r.Overrides...)
	if r.RecurrenceID != nil {
		t := *r.RecurrenceID
		c.RecurrenceID = &t
	}
	if r.EndDate != nil {
		t := *r.EndDate
		c.EndDate = &t
	}
	return &c
}

func (r *Ride) HasDriver() bool { return r.Driver != nil }

// HasRider reports whether userID is one of the ride's riders.
func (r *Ride) HasRider(userID string) bool {
	for _, rider := range r.Riders {
		if rider.ID == userID {
			return true
		}
	}
	return false
}

// FirstRider returns the first rider, the one named in notification and email text.
func (r *Ride) FirstRider() *RiderRef {
	if len(r.Riders) == 0 {
		return nil
	}
	return &r.Riders[0]
}

// TripDiffers reports whether the pickup time or either endpoint differs from o.
func (r *Ride) TripDiffers(o *Ride) bool {
	return !r.StartTime.Equal(o.StartTime) ||
		!r.StartLocation.Same(o.StartLocation) ||
		!r.EndLocation.Same(o.EndLocation)
}

// Closed reports whether the ride is cancelled or rejected and so must not be scheduled or
// re-notified as scheduled.
func (r *Ride) Closed() bool {
	return r.Status == StatusCancelled || r.SchedulingState == SchedulingRejected
}

// RideFilter narrows a ride scan. Zero fields do not filter.
type RideFilter struct {
	Type            RideType
	Status          Status
	SchedulingState SchedulingState
	RiderID         string
	DriverID        string
	Recurring       *bool
	From            *time.Time
	To              *time.Time
}

// NullableDriver distinguishes an absent driver field from an explicit null in a patch.
type NullableDriver struct {
	Set   bool
	Value *DriverRef
}

func (n *NullableDriver) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var d DriverRef
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	n.Value = &d
	return nil
}

// RideUpdate is a partial edit. Nil fields are left untouched.
type RideUpdate struct {
	Type          *RideType      `json:"type,omitempty" validate:"omitempty,oneof=ACTIVE PAST UNSCHEDULED"`
	Status        *Status        `json:"status,omitempty" validate:"omitempty,oneof=NOT_STARTED ON_THE_WAY ARRIVED PICKED_UP COMPLETED NO_SHOW"`
	StartLocation *Location      `json:"startLocation,omitempty"`
	EndLocation   *Location      `json:"endLocation,omitempty"`
	StartTime     *time.Time     `json:"startTime,omitempty"`
	EndTime       *time.Time     `json:"endTime,omitempty"`
	Riders        []RiderRef     `json:"riders,omitempty"`
	Driver        NullableDriver `json:"driver"`
}

// CreateRideRequest is the ingestion shape for new rides. The legacy "rider" field is
// accepted and folded into Riders before validation.
type CreateRideRequest struct {
	StartLocation Location   `json:"startLocation" validate:"required"`
	EndLocation   Location   `json:"endLocation" validate:"required"`
	StartTime     time.Time  `json:"startTime" validate:"required"`
	EndTime       time.Time  `json:"endTime" validate:"required,gtfield=StartTime"`
	Rider         *RiderRef  `json:"rider,omitempty"`
	Riders        []RiderRef `json:"riders" validate:"min=1,dive"`
	Driver        *DriverRef `json:"driver,omitempty"`

	IsRecurring   bool        `json:"isRecurring"`
	Recurring     bool        `json:"recurring"`
	RRule         string      `json:"rrule,omitempty"`
	ExDate        []time.Time `json:"exdate,omitempty"`
	RDate         []time.Time `json:"rdate,omitempty"`
	Timezone      string      `json:"timezone,omitempty"`
	RecurringDays []Weekday   `json:"recurringDays,omitempty" validate:"dive,min=0,max=6"`
	EndDate       *time.Time  `json:"endDate,omitempty"`
}

// Normalize folds legacy fields into the canonical ones.
func (req *CreateRideRequest) Normalize() {
	req.Riders = NormalizeRiders(req.Rider, req.Riders)
	req.Rider = nil
	if req.Recurring {
		req.IsRecurring = true
	}
}

// Ride builds an unsaved ride from the request.
func (req *CreateRideRequest) Ride() *Ride {
	return &Ride{
		StartLocation: req.StartLocation,
		EndLocation:   req.EndLocation,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Riders:        append([]RiderRef(nil), req.Riders...),
		Driver:        req.Driver,
		IsRecurring:   req.IsRecurring,
		RRule:         req.RRule,
		ExDate:        req.ExDate,
		RDate:         req.RDate,
		Timezone:      req.Timezone,
		RecurringDays: req.RecurringDays,
		EndDate:       req.EndDate,
	}
}
