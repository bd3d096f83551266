package notification

import (
	"context"
	"fmt"

	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/pkg/push"
)

type webSender interface {
	Send(ctx context.Context, endpoint, p256dh, auth string, msg *push.Message) error
}

type mobileSender interface {
	Send(ctx context.Context, endpointARN string, msg *push.Message) error
}

func message(n *model.Notification) *push.Message {
	msg := &push.Message{
		Title:    n.Title,
		Body:     n.Body,
		Event:    string(n.Event),
		SentTime: n.SentTime,
	}
	if n.Ride != nil {
		msg.ID = n.Ride.ID
		msg.Ride = n.Ride
	}
	return msg
}

type webTransport struct {
	sender webSender
}

// NewWebTransport adapts a web push sender to the dispatcher.
func NewWebTransport(sender webSender) Transport {
	return &webTransport{sender: sender}
}

func (t *webTransport) Send(ctx context.Context, sub *model.Subscription, n *model.Notification) error {
	if sub.Keys == nil {
		return fmt.Errorf("web subscription %s has no keys", sub.ID)
	}
	return t.sender.Send(ctx, sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth, message(n))
}

type mobileTransport struct {
	sender mobileSender
}

// NewMobileTransport adapts the SNS publisher to the dispatcher.
func NewMobileTransport(sender mobileSender) Transport {
	return &mobileTransport{sender: sender}
}

func (t *mobileTransport) Send(ctx context.Context, sub *model.Subscription, n *model.Notification) error {
	return t.sender.Send(ctx, sub.Endpoint, message(n))
}
