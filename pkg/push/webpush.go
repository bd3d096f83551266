package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
)

type WebPushConfig struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int
	HTTPClient      webpush.HTTPClient
}

// WebPush sends encrypted payloads to browser push services.
type WebPush struct {
	cfg WebPushConfig
}

func NewWebPush(cfg WebPushConfig) *WebPush {
	cfg.Subscriber = strings.TrimPrefix(cfg.Subscriber, "mailto:")
	if cfg.TTL <= 0 {
		cfg.TTL = 3600
	}
	return &WebPush{cfg: cfg}
}

// webPayload is what the service worker receives.
type webPayload struct {
	Title    string      `json:"title"`
	Body     string      `json:"body"`
	Event    string      `json:"notifEvent,omitempty"`
	Ride     interface{} `json:"ride,omitempty"`
	SentTime string      `json:"sentTime"`
}

func encodeWebPayload(msg *Message) ([]byte, error) {
	return json.Marshal(webPayload{
		Title:    msg.Title,
		Body:     msg.Body,
		Event:    msg.Event,
		Ride:     msg.Ride,
		SentTime: msg.SentTime.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// Send delivers msg to one browser subscription. A 404 or 410 from the push service is
// reported as ErrGone.
func (w *WebPush) Send(ctx context.Context, endpoint, p256dh, auth string, msg *Message) error {
	payload, err := encodeWebPayload(msg)
	if err != nil {
		return fmt.Errorf("failed to encode web push payload: %w", err)
	}

	sub := &webpush.Subscription{
		Endpoint: endpoint,
		Keys:     webpush.Keys{P256dh: p256dh, Auth: auth},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		HTTPClient:      w.cfg.HTTPClient,
		Subscriber:      w.cfg.Subscriber,
		VAPIDPublicKey:  w.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: w.cfg.VAPIDPrivateKey,
		TTL:             w.cfg.TTL,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("web push request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: push service returned %d", ErrGone, resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}
