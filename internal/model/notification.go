package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the audience category of a notification and the role of the acting user.
type Role string

const (
	RoleRider  Role = "RIDER"
	RoleDriver Role = "DRIVER"
	RoleAdmin  Role = "ADMIN"
)

func (r Role) Valid() bool {
	return r == RoleRider || r == RoleDriver || r == RoleAdmin
}

// Actor is the authenticated user performing a mutation.
type Actor struct {
	Role   Role
	UserID string
}

// SystemActor is used for mutations made by scheduled jobs.
var SystemActor = Actor{Role: RoleAdmin, UserID: "system"}

// NotificationEvent is either a lifecycle Change or an operational Status value.
type NotificationEvent string

// Lifecycle changes.
const (
	EventCreated        NotificationEvent = "CREATED"
	EventEdited         NotificationEvent = "EDITED"
	EventScheduled      NotificationEvent = "SCHEDULED"
	EventReassignDriver NotificationEvent = "REASSIGN_DRIVER"
	EventCancelled      NotificationEvent = "CANCELLED"
	EventLate           NotificationEvent = "LATE"
)

// StatusEvent lifts an operational status into the event vocabulary.
func StatusEvent(s Status) NotificationEvent { return NotificationEvent(s) }

// Operational status events.
var (
	EventNotStarted = StatusEvent(StatusNotStarted)
	EventOnTheWay   = StatusEvent(StatusOnTheWay)
	EventArrived    = StatusEvent(StatusArrived)
	EventPickedUp   = StatusEvent(StatusPickedUp)
	EventCompleted  = StatusEvent(StatusCompleted)
	EventNoShow     = StatusEvent(StatusNoShow)
)

type Platform string

const (
	PlatformWeb     Platform = "WEB"
	PlatformAndroid Platform = "ANDROID"
	PlatformIOS     Platform = "IOS"
)

func (p Platform) Mobile() bool { return p == PlatformAndroid || p == PlatformIOS }

// PushKeys are the browser-generated keys of a web push subscription.
type PushKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

type Subscription struct {
	ID          string            `json:"id"`
	UserType    Role              `json:"userType"`
	UserID      string            `json:"userId"`
	Platform    Platform          `json:"platform"`
	Endpoint    string            `json:"endpoint"` // web push URL or mobile platform-endpoint ARN
	Keys        *PushKeys         `json:"keys,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

var subscriptionNamespace = uuid.MustParse("6f1d7a3c-2b8e-4e53-9a1f-5c3b2d9e7a41")

// SubscriptionID derives the identity of a subscription from what makes it unique, so a
// repeated registration of the same endpoint maps to the same record.
func SubscriptionID(endpoint string, userType Role, platform Platform) string {
	return uuid.NewSHA1(subscriptionNamespace, []byte(endpoint+"|"+string(userType)+"|"+string(platform))).String()
}

// Target is one recipient group of a notification. An empty UserID addresses every user of
// the role.
type Target struct {
	Role   Role
	UserID string
}

// Notification is the rendered payload handed to the dispatcher.
type Notification struct {
	Title    string
	Body     string
	Event    NotificationEvent
	Ride     *Ride
	SentTime time.Time
}

type WebSubscriptionRequest struct {
	Endpoint    string            `json:"endpoint" validate:"required,url"`
	Keys        PushKeys          `json:"keys" validate:"required"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

type MobileSubscriptionRequest struct {
	Token       string            `json:"token" validate:"required"`
	Platform    Platform          `json:"platform" validate:"required,oneof=ANDROID IOS"`
	Preferences map[string]string `json:"preferences,omitempty"`
}
