package observability

import (
	"testing"

	"github.com/smallbiznis/cariledger/internal/config"
	"github.com/stretchr/testify/assert"
)

func clearObsEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DEPLOYMENT_ENV", "SERVICE_VERSION", "LOG_LEVEL", "LOG_FORMAT", "OTEL_ENABLED",
		"OTEL_SAMPLING_RATIO", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_PROTOCOL",
		"OTEL_EXPORTER_OTLP_TRACES_PROTOCOL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDevDefaults(t *testing.T) {
	clearObsEnv(t)

	cfg := LoadConfig(config.Config{Environment: "development", AppVersion: "1.0.0"})

	assert.Equal(t, "cariledger", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigProductionEnablesTracingWithEndpoint(t *testing.T) {
	clearObsEnv(t)
	t.Setenv("OTEL_SAMPLING_RATIO", "bogus")

	cfg := LoadConfig(config.Config{AppName: "ledger-api", Environment: "production", OTLPEndpoint: "otel:4317"})

	assert.Equal(t, "ledger-api", cfg.ServiceName)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())

	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "4")
	cfg = LoadConfig(config.Config{Environment: "production", OTLPEndpoint: "otel:4317"})
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
}

func TestDebugFollowsLevelOutsideDev(t *testing.T) {
	assert.False(t, Config{Environment: "production", LogLevel: "info"}.Debug())
	assert.True(t, Config{Environment: "production", LogLevel: "debug"}.Debug())
}
