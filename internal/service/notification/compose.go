package notification

import (
	"fmt"
	"time"

	"github.com/carriage/carriage-api/internal/model"
)

// Compose renders the notification text a receiver sees. Multi-rider rides are described by
// their first rider only.
func Compose(sender, receiver model.Role, event model.NotificationEvent, ride *model.Ride) string {
	rider := "A rider"
	if r := ride.FirstRider(); r != nil && r.FullName() != "" {
		rider = r.FullName()
	}
	driver := "Your driver"
	if ride.Driver != nil && ride.Driver.FullName() != "" {
		driver = ride.Driver.FullName()
	}
	when := rideTime(ride)
	day := rideDay(ride)

	switch event {
	case model.EventArrived:
		if receiver == model.RoleRider {
			return "Your driver is here! Meet your driver at the pickup point."
		}
		return fmt.Sprintf("%s has arrived to pick up %s.", driver, rider)

	case model.EventCancelled:
		switch receiver {
		case model.RoleDriver:
			return fmt.Sprintf("Rides have been removed from your schedule for %s.", day)
		case model.RoleRider:
			return fmt.Sprintf("Your ride on %s has been cancelled.", when)
		default:
			return fmt.Sprintf("%s cancelled their ride on %s.", rider, when)
		}

	case model.EventCreated:
		switch receiver {
		case model.RoleDriver:
			return fmt.Sprintf("A ride for %s on %s has been added to your schedule.", rider, when)
		case model.RoleRider:
			return fmt.Sprintf("Your ride on %s has been created.", when)
		default:
			return fmt.Sprintf("%s requested a ride on %s.", rider, when)
		}

	case model.EventEdited:
		switch receiver {
		case model.RoleDriver:
			return fmt.Sprintf("Your ride with %s on %s has been edited.", rider, when)
		case model.RoleRider:
			return fmt.Sprintf("Your ride on %s has been edited by an admin.", when)
		default:
			return fmt.Sprintf("%s edited their ride on %s.", rider, when)
		}

	case model.EventLate:
		if receiver == model.RoleRider {
			return "Your driver is running late."
		}
		return fmt.Sprintf("%s is running late for %s's ride on %s.", driver, rider, when)

	case model.EventNoShow:
		if receiver == model.RoleRider {
			return "Your driver cancelled your ride because you were not at the pickup location."
		}
		return fmt.Sprintf("%s reported %s as a no show for the ride on %s.", driver, rider, when)

	case model.EventOnTheWay:
		if receiver == model.RoleRider {
			return "Your driver is on the way!"
		}
		return fmt.Sprintf("%s is on the way to pick up %s.", driver, rider)

	case model.EventScheduled:
		switch receiver {
		case model.RoleDriver:
			return fmt.Sprintf("A ride for %s on %s has been added to your schedule.", rider, when)
		case model.RoleRider:
			return fmt.Sprintf("Your ride on %s has been scheduled.", when)
		default:
			return fmt.Sprintf("%s's ride on %s has been scheduled.", rider, when)
		}
	}
	return ""
}

// Title is the short heading shown above the body.
func Title(event model.NotificationEvent) string {
	switch event {
	case model.EventArrived:
		return "Driver arrived"
	case model.EventCancelled:
		return "Ride cancelled"
	case model.EventCreated:
		return "Ride created"
	case model.EventEdited:
		return "Ride edited"
	case model.EventLate:
		return "Driver running late"
	case model.EventNoShow:
		return "Rider no show"
	case model.EventOnTheWay:
		return "Driver on the way"
	case model.EventScheduled:
		return "Ride scheduled"
	}
	return "Carriage"
}

func rideLocation(ride *model.Ride) *time.Location {
	if ride.Timezone != "" {
		if loc, err := time.LoadLocation(ride.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

func rideTime(ride *model.Ride) string {
	return ride.StartTime.In(rideLocation(ride)).Format("Mon, Jan 2 at 3:04 PM")
}

func rideDay(ride *model.Ride) string {
	return ride.StartTime.In(rideLocation(ride)).Format("Monday, January 2")
}
