package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRideUnmarshalFoldsLegacyFields(t *testing.T) {
	raw := `{
		"id": "ride-1",
		"rider": {"id": "r1"},
		"riders": [{"id": "r2"}, {"id": "r1"}],
		"recurring": true,
		"startTime": "2024-05-06T14:00:00Z",
		"endTime": "2024-05-06T14:30:00Z"
	}`

	var r Ride
	require.NoError(t, json.Unmarshal([]byte(raw), &r))

	assert.Equal(t, []RiderRef{{ID: "r1"}, {ID: "r2"}}, r.Riders)
	assert.True(t, r.IsRecurring)
	assert.Equal(t, "ride-1", r.ID)
}

func TestRideUnmarshalCanonical(t *testing.T) {
	var r Ride
	require.NoError(t, json.Unmarshal([]byte(`{"riders":[{"id":"r9","email":"r9@example.com"}],"isRecurring":false}`), &r))
	require.Len(t, r.Riders, 1)
	assert.True(t, r.Riders[0].Hydrated())
	assert.False(t, r.IsRecurring)
}

func TestCreateRideRequestNormalize(t *testing.T) {
	req := CreateRideRequest{Rider: &RiderRef{ID: "r1"}, Recurring: true}
	req.Normalize()
	assert.Nil(t, req.Rider)
	assert.Equal(t, []RiderRef{{ID: "r1"}}, req.Riders)
	assert.True(t, req.IsRecurring)
}

func TestNullableDriver(t *testing.T) {
	var absent, cleared, set RideUpdate
	require.NoError(t, json.Unmarshal([]byte(`{}`), &absent))
	require.NoError(t, json.Unmarshal([]byte(`{"driver":null}`), &cleared))
	require.NoError(t, json.Unmarshal([]byte(`{"driver":{"id":"d1"}}`), &set))

	assert.False(t, absent.Driver.Set)
	assert.True(t, cleared.Driver.Set)
	assert.Nil(t, cleared.Driver.Value)
	assert.True(t, set.Driver.Set)
	assert.Equal(t, "d1", set.Driver.Value.ID)
}

func TestRideCloneIsDeep(t *testing.T) {
	orig := &Ride{Riders: []RiderRef{{ID: "r1"}}, Driver: &DriverRef{ID: "d1"}}
	c := orig.Clone()
	c.Riders[0].ID = "changed"
	c.Driver.ID = "changed"
	assert.Equal(t, "r1", orig.Riders[0].ID)
	assert.Equal(t, "d1", orig.Driver.ID)
}

func TestAvailabilityCovers(t *testing.T) {
	var a Availability
	require.NoError(t, a.Set(Monday, "08:00", "17:00"))
	require.Error(t, a.Set(Weekday(7), "08:00", "17:00"))

	monday := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	assert.True(t, a.Covers(monday, monday.Add(time.Hour)))
	assert.False(t, a.Covers(monday.Add(-2*time.Hour), monday))
	assert.False(t, a.Covers(monday.Add(24*time.Hour), monday.Add(25*time.Hour)))

	d := Driver{Availability: a}
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 13:00 UTC is 09:00 in New York in May.
	assert.True(t, d.AvailableFor(monday.Add(4*time.Hour), monday.Add(5*time.Hour), ny))
}

func TestAvailabilityRoundTripsThroughSQL(t *testing.T) {
	var a Availability
	require.NoError(t, a.Set(Friday, "10:00", "12:00"))
	v, err := a.Value()
	require.NoError(t, err)

	var b Availability
	require.NoError(t, b.Scan(v))
	assert.Equal(t, a, b)
}

func TestSubscriptionIDIsNatural(t *testing.T) {
	a := SubscriptionID("https://push.example/abc", RoleRider, PlatformWeb)
	b := SubscriptionID("https://push.example/abc", RoleRider, PlatformWeb)
	c := SubscriptionID("https://push.example/abc", RoleDriver, PlatformWeb)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
