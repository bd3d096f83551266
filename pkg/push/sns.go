package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"

	"github.com/carriage/carriage-api/pkg/circuitbreaker"
)

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	CreatePlatformEndpoint(ctx context.Context, params *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
}

type SNSConfig struct {
	AndroidPlatformARN string
	IOSPlatformARN     string
}

// SNS publishes to mobile platform endpoints. Calls go through a circuit breaker so a broker
// outage fails fast instead of stalling every dispatch.
type SNS struct {
	client  SNSAPI
	cfg     SNSConfig
	breaker *circuitbreaker.CircuitBreaker
}

func NewSNS(client SNSAPI, cfg SNSConfig, breaker *circuitbreaker.CircuitBreaker) *SNS {
	return &SNS{client: client, cfg: cfg, breaker: breaker}
}

// IsGone classifies SNS errors for disabled or deleted endpoints.
func IsGone(err error) bool {
	if errors.Is(err, ErrGone) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "EndpointDisabled", "EndpointDisabledException", "NotFound", "NotFoundException":
			return true
		}
	}
	return false
}

// Register creates a platform endpoint for a device token and returns its ARN.
func (s *SNS) Register(ctx context.Context, ios bool, token string) (string, error) {
	arn := s.cfg.AndroidPlatformARN
	if ios {
		arn = s.cfg.IOSPlatformARN
	}
	if arn == "" {
		return "", fmt.Errorf("no platform application configured")
	}

	var endpoint string
	err := s.guard(func() error {
		out, err := s.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
			PlatformApplicationArn: aws.String(arn),
			Token:                  aws.String(token),
		})
		if err != nil {
			return err
		}
		endpoint = aws.ToString(out.EndpointArn)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create platform endpoint: %w", err)
	}
	return endpoint, nil
}

// Send publishes msg to one platform endpoint.
func (s *SNS) Send(ctx context.Context, endpointARN string, msg *Message) error {
	body, err := EncodeSNSMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to encode sns message: %w", err)
	}

	err = s.guard(func() error {
		_, err := s.client.Publish(ctx, &sns.PublishInput{
			TargetArn:        aws.String(endpointARN),
			Message:          aws.String(body),
			MessageStructure: aws.String("json"),
		})
		if err != nil && IsGone(err) {
			return fmt.Errorf("%w: %v", ErrGone, err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}
	return nil
}

func (s *SNS) guard(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(fn)
}

type apsAlert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type apnsPayload struct {
	APS struct {
		Alert apsAlert `json:"alert"`
		Sound string   `json:"sound"`
	} `json:"aps"`
	ID       string      `json:"id"`
	Event    string      `json:"notifEvent"`
	Ride     interface{} `json:"ride,omitempty"`
	SentTime string      `json:"sentTime"`
}

type gcmPayload struct {
	Notification apsAlert `json:"notification"`
	Data         struct {
		ID       string `json:"id"`
		Event    string `json:"notifEvent"`
		Ride     string `json:"ride,omitempty"`
		SentTime string `json:"sentTime"`
	} `json:"data"`
}

// EncodeSNSMessage builds the per-platform envelope SNS expects with MessageStructure=json:
// each platform key maps to a JSON document encoded as a string.
func EncodeSNSMessage(msg *Message) (string, error) {
	sent := msg.SentTime.UTC().Format("2006-01-02T15:04:05.000Z07:00")

	var apns apnsPayload
	apns.APS.Alert = apsAlert{Title: msg.Title, Body: msg.Body}
	apns.APS.Sound = "default"
	apns.ID = msg.ID
	apns.Event = msg.Event
	apns.Ride = msg.Ride
	apns.SentTime = sent
	apnsJSON, err := json.Marshal(apns)
	if err != nil {
		return "", err
	}

	// FCM data values must be strings.
	var gcm gcmPayload
	gcm.Notification = apsAlert{Title: msg.Title, Body: msg.Body}
	gcm.Data.ID = msg.ID
	gcm.Data.Event = msg.Event
	gcm.Data.SentTime = sent
	if msg.Ride != nil {
		ride, err := json.Marshal(msg.Ride)
		if err != nil {
			return "", err
		}
		gcm.Data.Ride = string(ride)
	}
	gcmJSON, err := json.Marshal(gcm)
	if err != nil {
		return "", err
	}

	envelope, err := json.Marshal(map[string]string{
		"default":      msg.Body,
		"APNS":         string(apnsJSON),
		"APNS_SANDBOX": string(apnsJSON),
		"GCM":          string(gcmJSON),
	})
	if err != nil {
		return "", err
	}
	return string(envelope), nil
}
