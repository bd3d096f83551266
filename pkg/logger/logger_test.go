package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{Level: InfoLevel, Output: &buf}).
		WithFields(map[string]interface{}{"service": "carriage-api"}).
		Component("dispatcher")

	log.Error(errors.New("gone"), "delivery failed", "subscription_id", "s1", "status", 410)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "delivery failed", entry["message"])
	assert.Equal(t, "gone", entry["error"])
	assert.Equal(t, "dispatcher", entry["component"])
	assert.Equal(t, "carriage-api", entry["service"])
	assert.Equal(t, "s1", entry["subscription_id"])
	assert.Equal(t, float64(410), entry["status"])
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{Level: WarnLevel, Output: &buf})
	log.Info("skipped")
	log.Debug("skipped")
	assert.Zero(t, buf.Len())
	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}
