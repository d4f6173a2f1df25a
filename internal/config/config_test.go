package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/canonical", cfg.OutputDir)
	assert.Empty(t, cfg.OutputFile)
	assert.Equal(t, "data/ingest.db", cfg.LedgerPath)
	assert.Empty(t, cfg.FormatsFile)
	assert.False(t, cfg.BeamSweeping)
	assert.Equal(t, "reject", cfg.OrderPolicy)
	assert.False(t, cfg.SkipBadTimestamps)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "lidar-ingest-events", cfg.KafkaTopic)
	assert.False(t, cfg.NotificationsEnabled())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("OUTPUT_DIR", "/srv/lidar")
	t.Setenv("OUTPUT_FILE", "campaign.nc")
	t.Setenv("LEDGER_PATH", "/srv/lidar/ledger.db")
	t.Setenv("FORMATS_FILE", "/etc/lidar/formats.yaml")
	t.Setenv("BEAM_SWEEPING", "true")
	t.Setenv("ORDER_POLICY", "warn")
	t.Setenv("SKIP_BAD_TIMESTAMPS", "1")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-events")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/lidar", cfg.OutputDir)
	assert.Equal(t, "campaign.nc", cfg.OutputFile)
	assert.Equal(t, "/srv/lidar/ledger.db", cfg.LedgerPath)
	assert.Equal(t, "/etc/lidar/formats.yaml", cfg.FormatsFile)
	assert.True(t, cfg.BeamSweeping)
	assert.Equal(t, "warn", cfg.OrderPolicy)
	assert.True(t, cfg.SkipBadTimestamps)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-events", cfg.KafkaTopic)
	assert.True(t, cfg.NotificationsEnabled())
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidBeamSweeping(t *testing.T) {
	t.Setenv("BEAM_SWEEPING", "sometimes")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BEAM_SWEEPING")
}

func TestLoad_InvalidOrderPolicy(t *testing.T) {
	t.Setenv("ORDER_POLICY", "sort")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORDER_POLICY")
}

func TestValidate_NoOutput(t *testing.T) {
	cfg := &Config{OrderPolicy: "reject"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OUTPUT_DIR")
}

func TestValidate_BrokersWithoutTopic(t *testing.T) {
	cfg := &Config{OutputDir: "out", OrderPolicy: "reject", KafkaBrokers: []string{"localhost:9092"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_TOPIC")
}
