package appconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_HasSaneBaselines(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NatsURL)
	assert.False(t, cfg.LegacyProbe)
	assert.Equal(t, 7*24*3600, cfg.MetaStream.MaxAgeSeconds)
	assert.Equal(t, "dorch-meta-worker", cfg.Worker.Durable)
	assert.Equal(t, 3, cfg.Worker.MaxDeliveries)
}

func TestStreamConfig_DurationHelpers(t *testing.T) {
	s := StreamConfig{MaxAgeSeconds: 3600, DedupeWindowSeconds: 60}
	assert.Equal(t, "1h0m0s", s.MaxAge().String())
	assert.Equal(t, "1m0s", s.DedupeWindow().String())
}

func TestLoadFile_MergesOverTopOfDefaults(t *testing.T) {
	cfg := Default()
	dir := t.TempDir()
	path := filepath.Join(dir, "dorch.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
nats_url = "nats://queue.internal:4222"

[worker]
batch = 25
`), 0644))

	require.NoError(t, LoadFile(cfg, path))

	assert.Equal(t, "nats://queue.internal:4222", cfg.NatsURL)
	assert.Equal(t, 25, cfg.Worker.Batch)
	// Untouched fields keep their default values.
	assert.Equal(t, "dorch-meta-worker", cfg.Worker.Durable)
}

func TestLoadFile_MissingFileIsNotAnError(t *testing.T) {
	cfg := Default()
	err := LoadFile(cfg, filepath.Join(t.TempDir(), "missing.toml"))
	assert.NoError(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DORCH_WAD_BUCKET", "wads-bucket")
	t.Setenv("DORCH_META_BATCH", "42")
	t.Setenv("DORCH_PANORAMA", "true")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PROTO", "rediss")
	t.Setenv("DORCH_METRICS_ENABLED", "false")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "wads-bucket", cfg.WadStore.Bucket)
	assert.Equal(t, 42, cfg.Worker.Batch)
	assert.True(t, cfg.Renderer.Panorama)
	assert.Equal(t, "cache.internal", cfg.Cache.Host)
	assert.True(t, cfg.Cache.TLS)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestApplyEnvOverrides_IgnoresUnparsableValues(t *testing.T) {
	t.Setenv("DORCH_META_BATCH", "not-a-number")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, 10, cfg.Worker.Batch, "unparsable override is ignored, default retained")
}

func TestValidateWatchSchedule(t *testing.T) {
	assert.NoError(t, ValidateWatchSchedule(""))
	assert.NoError(t, ValidateWatchSchedule("0 * * * *")) // hourly
	assert.Error(t, ValidateWatchSchedule("* * * * *"))   // every minute, too frequent
	assert.Error(t, ValidateWatchSchedule("not a cron expression"))
}
