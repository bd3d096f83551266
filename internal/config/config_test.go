package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigOverlaysSecrets(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9090
database:
  host: db
  port: 5432
  user: carriage
  name: rides
recurring:
  timezone: Europe/London
  schedule: "30 9 * * *"
`)
	t.Setenv("CARRIAGE_JWT_SECRET", "s3cret")
	t.Setenv("CARRIAGE_DB_PASSWORD", "pw")
	t.Setenv("CARRIAGE_VAPID_PRIVATE_KEY", "vapid")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, "vapid", cfg.Push.VAPIDPrivateKey)
	assert.Equal(t, "Europe/London", cfg.Recurring.Timezone)
	assert.Equal(t, "30 9 * * *", cfg.Recurring.Schedule)
	assert.Equal(t, 8, cfg.Recurring.Concurrency)
	assert.Equal(t, "host=db port=5432 user=carriage password=pw dbname=rides sslmode=disable", cfg.Database.DSN())
}

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("CARRIAGE_JWT_SECRET", "s3cret")
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "carriage", cfg.Redis.KeyPrefix)
	assert.Equal(t, 2*time.Minute, cfg.Worker.TaskTimeout)
}

func TestValidate(t *testing.T) {
	t.Setenv("CARRIAGE_JWT_SECRET", "")
	_, err := LoadConfig(t.TempDir())
	assert.ErrorContains(t, err, "jwt secret")

	cfg := &Config{JWT: JWTConfig{Secret: "x"}, Recurring: RecurringConfig{Enabled: true, Timezone: "Mars/Olympus"}}
	assert.ErrorContains(t, cfg.Validate(), "timezone")

	cfg = &Config{JWT: JWTConfig{Secret: "x"}, SNS: SNSConfig{Enabled: true}}
	assert.ErrorContains(t, cfg.Validate(), "sns region")
}
