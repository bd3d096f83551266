package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carriage/carriage-api/pkg/circuitbreaker"
)

func browserKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

func newWebPush(t *testing.T, client webpush.HTTPClient) *WebPush {
	t.Helper()
	private, public, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return NewWebPush(WebPushConfig{
		Subscriber:      "mailto:dispatch@carriage.test",
		VAPIDPublicKey:  public,
		VAPIDPrivateKey: private,
		HTTPClient:      client,
	})
}

func TestWebPushSend(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
		anyErr  bool
	}{
		{name: "created", status: http.StatusCreated},
		{name: "gone", status: http.StatusGone, wantErr: ErrGone},
		{name: "not found", status: http.StatusNotFound, wantErr: ErrGone},
		{name: "server error", status: http.StatusInternalServerError, anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
				assert.Contains(t, r.Header.Get("Authorization"), "vapid")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p256dh, auth := browserKeys(t)
			wp := newWebPush(t, srv.Client())
			err := wp.Send(context.Background(), srv.URL+"/push/abc", p256dh, auth, &Message{
				Title:    "Your driver is on the way",
				Body:     "Your driver is on the way!",
				Event:    "ON_THE_WAY",
				SentTime: time.Now(),
			})

			assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				require.Error(t, err)
				assert.False(t, errors.Is(err, ErrGone))
			default:
				assert.NoError(t, err)
			}
		})
	}
}

type fakeSNS struct {
	publishErr error
	published  []*sns.PublishInput
	created    []*sns.CreatePlatformEndpointInput
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.published = append(f.published, in)
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func (f *fakeSNS) CreatePlatformEndpoint(_ context.Context, in *sns.CreatePlatformEndpointInput, _ ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error) {
	f.created = append(f.created, in)
	return &sns.CreatePlatformEndpointOutput{EndpointArn: aws.String("arn:endpoint/" + aws.ToString(in.Token))}, nil
}

func TestSNSSendEnvelope(t *testing.T) {
	client := &fakeSNS{}
	s := NewSNS(client, SNSConfig{}, nil)

	err := s.Send(context.Background(), "arn:endpoint/1", &Message{
		ID:    "ride-1",
		Title: "Ride scheduled",
		Body:  "Your ride has been scheduled",
		Event: "SCHEDULED",
		Ride:  map[string]string{"id": "ride-1"},
	})
	require.NoError(t, err)
	require.Len(t, client.published, 1)

	in := client.published[0]
	assert.Equal(t, "json", aws.ToString(in.MessageStructure))
	assert.Equal(t, "arn:endpoint/1", aws.ToString(in.TargetArn))

	var envelope map[string]string
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.Message)), &envelope))
	assert.Equal(t, "Your ride has been scheduled", envelope["default"])
	assert.Equal(t, envelope["APNS"], envelope["APNS_SANDBOX"])

	var apns map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(envelope["APNS"]), &apns))
	alert := apns["aps"].(map[string]interface{})["alert"].(map[string]interface{})
	assert.Equal(t, "Ride scheduled", alert["title"])

	var gcm gcmPayload
	require.NoError(t, json.Unmarshal([]byte(envelope["GCM"]), &gcm))
	assert.Equal(t, "SCHEDULED", gcm.Data.Event)
	assert.JSONEq(t, `{"id":"ride-1"}`, gcm.Data.Ride)
}

func TestSNSGoneEndpointsDoNotTripBreaker(t *testing.T) {
	client := &fakeSNS{publishErr: &smithy.GenericAPIError{Code: "EndpointDisabled", Message: "Endpoint is disabled"}}
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "sns",
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !IsGone(err) },
	})
	s := NewSNS(client, SNSConfig{}, breaker)

	for i := 0; i < 3; i++ {
		err := s.Send(context.Background(), "arn:endpoint/dead", &Message{Body: "x"})
		assert.ErrorIs(t, err, ErrGone)
	}
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())
}

func TestSNSOutageOpensBreaker(t *testing.T) {
	client := &fakeSNS{publishErr: errors.New("dial tcp: i/o timeout")}
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "sns",
		MaxFailures: 2,
		Timeout:     time.Minute,
		IsFailure:   func(err error) bool { return !IsGone(err) },
	})
	s := NewSNS(client, SNSConfig{}, breaker)

	for i := 0; i < 2; i++ {
		require.Error(t, s.Send(context.Background(), "arn", &Message{}))
	}
	err := s.Send(context.Background(), "arn", &Message{})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Len(t, client.published, 2)
}

func TestSNSRegisterPicksPlatformApplication(t *testing.T) {
	client := &fakeSNS{}
	s := NewSNS(client, SNSConfig{AndroidPlatformARN: "arn:gcm", IOSPlatformARN: "arn:apns"}, nil)

	arn, err := s.Register(context.Background(), true, "device-token")
	require.NoError(t, err)
	assert.Equal(t, "arn:endpoint/device-token", arn)
	assert.Equal(t, "arn:apns", aws.ToString(client.created[0].PlatformApplicationArn))

	_, err = s.Register(context.Background(), false, "other")
	require.NoError(t, err)
	assert.Equal(t, "arn:gcm", aws.ToString(client.created[1].PlatformApplicationArn))
}
