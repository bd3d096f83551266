package ride

import (
	"github.com/carriage/carriage-api/internal/model"
	apperrors "github.com/carriage/carriage-api/pkg/errors"
)

// CancelOutcome says what a cancellation does to the stored record.
type CancelOutcome int

const (
	// CancelRetain keeps the ride with status CANCELLED.
	CancelRetain CancelOutcome = iota
	// CancelDelete removes the ride. Nothing was promised for a driverless ride.
	CancelDelete
)

// transitions lists the operational moves a driver may make.
var transitions = map[model.Status][]model.Status{
	model.StatusNotStarted: {model.StatusOnTheWay},
	model.StatusOnTheWay:   {model.StatusArrived, model.StatusNoShow},
	model.StatusArrived:    {model.StatusPickedUp, model.StatusNoShow},
	model.StatusPickedUp:   {model.StatusCompleted},
}

func terminal(s model.Status) bool {
	return s == model.StatusCompleted || s == model.StatusNoShow || s == model.StatusCancelled
}

func canTransition(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Authorize checks that actor is an admin, one of the ride's riders, or its driver.
func Authorize(actor model.Actor, ride *model.Ride) error {
	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleRider:
		if ride.HasRider(actor.UserID) {
			return nil
		}
	case model.RoleDriver:
		if ride.Driver != nil && ride.Driver.ID == actor.UserID {
			return nil
		}
	}
	return apperrors.NewForbidden("not a participant of this ride")
}

// Validate enforces the invariants every stored ride satisfies.
func Validate(ride *model.Ride) error {
	if !ride.StartTime.Before(ride.EndTime) {
		return apperrors.NewBadRequest("startTime must be before endTime", nil)
	}
	if len(ride.Riders) == 0 {
		return apperrors.NewBadRequest("a ride needs at least one rider", nil)
	}
	return nil
}

func checkFields(actor model.Actor, u *model.RideUpdate) error {
	switch actor.Role {
	case model.RoleRider:
		if u.Type != nil || u.Status != nil || u.Driver.Set {
			return apperrors.NewForbidden("riders may only change time, locations and riders")
		}
	case model.RoleDriver:
		if u.Type != nil || u.StartLocation != nil || u.EndLocation != nil ||
			u.StartTime != nil || u.EndTime != nil || u.Riders != nil || u.Driver.Set {
			return apperrors.NewForbidden("drivers may only update status")
		}
	}
	return nil
}

// Apply computes the snapshot that results from actor applying u to original, and the event
// that the change represents. original is not modified.
func Apply(actor model.Actor, original *model.Ride, u *model.RideUpdate) (*model.Ride, model.NotificationEvent, error) {
	if err := Authorize(actor, original); err != nil {
		return nil, "", err
	}
	if original.Closed() {
		return nil, "", apperrors.NewConflict("ride is closed", nil)
	}
	if err := checkFields(actor, u); err != nil {
		return nil, "", err
	}

	next := original.Clone()
	if u.Type != nil {
		next.Type = *u.Type
	}
	if u.StartLocation != nil {
		next.StartLocation = *u.StartLocation
	}
	if u.EndLocation != nil {
		next.EndLocation = *u.EndLocation
	}
	if u.StartTime != nil {
		next.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		next.EndTime = *u.EndTime
	}
	if u.Riders != nil {
		next.Riders = model.NormalizeRiders(nil, u.Riders)
	}
	if u.Driver.Set {
		next.Driver = nil
		if u.Driver.Value != nil {
			d := *u.Driver.Value
			next.Driver = &d
		}
	}

	statusChanged := false
	if u.Status != nil && *u.Status != original.Status {
		if terminal(original.Status) {
			return nil, "", apperrors.NewConflict("ride status "+string(original.Status)+" is final", nil)
		}
		if actor.Role == model.RoleDriver && !canTransition(original.Status, *u.Status) {
			return nil, "", apperrors.NewBadRequest(
				"cannot move ride from "+string(original.Status)+" to "+string(*u.Status), nil)
		}
		next.Status = *u.Status
		statusChanged = true
	}

	if err := Validate(next); err != nil {
		return nil, "", err
	}

	event := model.EventEdited
	hadDriver, hasDriver := original.Driver != nil, next.Driver != nil
	switch {
	case !hasDriver:
		if hadDriver {
			next.SchedulingState = model.SchedulingUnscheduled
			next.Type = model.RideTypeUnscheduled
		}
	case !hadDriver:
		next.SchedulingState = model.SchedulingScheduled
		next.Type = model.RideTypeActive
		event = model.EventScheduled
	default:
		if next.Driver.ID != original.Driver.ID {
			next.SchedulingState = model.SchedulingScheduled
			event = model.EventReassignDriver
		}
		if next.TripDiffers(original) {
			next.SchedulingState = model.SchedulingScheduledWithModification
		}
	}

	if event == model.EventEdited && statusChanged && !next.TripDiffers(original) {
		event = model.StatusEvent(next.Status)
	}
	return next, event, nil
}

// Cancel decides how actor's cancellation of ride is carried out and returns the cancelled
// snapshot. For CancelDelete the snapshot is what the record looked like when removed.
func Cancel(actor model.Actor, ride *model.Ride) (CancelOutcome, *model.Ride, error) {
	if err := Authorize(actor, ride); err != nil {
		return 0, nil, err
	}
	if ride.Closed() {
		return 0, nil, apperrors.NewConflict("ride is closed", nil)
	}

	switch actor.Role {
	case model.RoleDriver:
		return 0, nil, apperrors.NewForbidden("drivers cannot cancel rides")
	case model.RoleRider:
		if ride.Status != model.StatusNotStarted {
			return 0, nil, apperrors.NewForbidden("a ride can only be cancelled before it starts")
		}
	case model.RoleAdmin:
		if terminal(ride.Status) {
			return 0, nil, apperrors.NewConflict("ride status "+string(ride.Status)+" is final", nil)
		}
	}

	next := ride.Clone()
	next.Status = model.StatusCancelled
	if actor.Role == model.RoleRider && !ride.HasDriver() {
		return CancelDelete, next, nil
	}
	return CancelRetain, next, nil
}

// Reject marks a driverless ride as declined by dispatch.
func Reject(actor model.Actor, ride *model.Ride) (*model.Ride, error) {
	if actor.Role != model.RoleAdmin {
		return nil, apperrors.NewForbidden("only admins can reject rides")
	}
	if ride.Closed() {
		return nil, apperrors.NewConflict("ride is closed", nil)
	}
	if ride.HasDriver() {
		return nil, apperrors.NewBadRequest("a ride with a driver cannot be rejected", nil)
	}
	next := ride.Clone()
	next.SchedulingState = model.SchedulingRejected
	return next, nil
}

// Late checks that actor may report the ride as running late.
func Late(actor model.Actor, ride *model.Ride) error {
	if actor.Role != model.RoleDriver {
		return apperrors.NewForbidden("only the assigned driver can report lateness")
	}
	if err := Authorize(actor, ride); err != nil {
		return err
	}
	if ride.Closed() || terminal(ride.Status) {
		return apperrors.NewConflict("ride is no longer active", nil)
	}
	return nil
}

// Initialize sets the entry state of a new ride.
func Initialize(ride *model.Ride) {
	ride.Status = model.StatusNotStarted
	if ride.HasDriver() {
		ride.Type = model.RideTypeActive
		ride.SchedulingState = model.SchedulingScheduled
		return
	}
	ride.Type = model.RideTypeUnscheduled
	ride.SchedulingState = model.SchedulingUnscheduled
}
