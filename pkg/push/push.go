// Package push delivers notification payloads to browsers (Web Push with VAPID) and to
// mobile devices through AWS SNS platform endpoints.
package push

import (
	"errors"
	"time"
)

// ErrGone reports that the destination no longer exists and its subscription should be
// forgotten.
var ErrGone = errors.New("push destination gone")

// Message is the transport-neutral notification payload.
type Message struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Body     string      `json:"body"`
	Event    string      `json:"notifEvent"`
	Ride     interface{} `json:"ride,omitempty"`
	SentTime time.Time   `json:"sentTime"`
}
