package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
routing:
  min_accept_score: 0.4
  max_wait_time_minutes: 10
session:
  session_timeout_minutes: 45
  max_pop_points: 8
storage:
  dsn: "host=localhost user=voluntr dbname=voluntr"
metrics:
  prometheus_enabled: true
logging:
  env: dev
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.4, cfg.Routing.MinAcceptScore)
	assert.Equal(t, 10, cfg.Routing.MaxWaitTimeMinutes)
	assert.Equal(t, 45, cfg.Session.SessionTimeoutMinutes)
	assert.Equal(t, 8.0, cfg.Session.MaxPopPoints)
	assert.Equal(t, "host=localhost user=voluntr dbname=voluntr", cfg.Storage.DSN)
	assert.True(t, cfg.Metrics.PrometheusEnabled)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset values fall back to defaults.
	assert.Equal(t, 0.30, cfg.Routing.LanguageWeight)
	assert.Equal(t, 60, cfg.Routing.DirectoryTTLSeconds)
	assert.Equal(t, 2000, cfg.Session.MaxMessageLength)
	assert.Equal(t, 9090, cfg.Metrics.PrometheusPort)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "routing": {"sweep_interval_seconds": 30},
  "session": {"base_pop_points": 4}
}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Routing.SweepIntervalSeconds)
	assert.Equal(t, 4.0, cfg.Session.BasePopPoints)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeConfig(t, "config.toml", "routing = 1")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
routing:
  min_accept_score: 0.3
`)
	t.Setenv("VE_ROUTING__MIN_ACCEPT_SCORE", "0.55")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.55, cfg.Routing.MinAcceptScore)
}

func TestLoadRejectsInvalidRouting(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
routing:
  language_weight: -0.3
  expertise_weight: 0.5
`)
	_, err := Load(path)
	assert.Error(t, err)

	path = writeConfig(t, "config.yaml", `
routing:
  min_accept_score: 1.5
`)
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidSession(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
session:
  min_pop_points: 5
  max_pop_points: 3
  base_pop_points: 4
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestRoutingConversions(t *testing.T) {
	c := RoutingConfig{}
	c.SetDefaults()

	m := c.MatchConfig()
	assert.Equal(t, 0.25, m.ExpertiseWeight)
	assert.True(t, m.UserScoreBoost)
	assert.Equal(t, 0.3, m.MinAcceptScore)

	s := c.SweeperConfig()
	assert.Equal(t, time.Minute, s.Interval)
	assert.Equal(t, 5*time.Minute, s.MaxWaitTime)
	assert.Equal(t, time.Minute, c.DirectoryTTL())
}

func TestSessionConversions(t *testing.T) {
	c := SessionConfig{}
	c.SetDefaults()

	m := c.ManagerConfig()
	assert.Equal(t, 30*time.Minute, m.Timeout)
	assert.Equal(t, 2000, m.MaxMessageLength)

	i := c.IncentiveConfig()
	assert.Equal(t, 2.0, i.MinPopPoints)
	assert.Equal(t, 7.0, i.MaxPopPoints)
	assert.Equal(t, 3.0, i.BasePopPoints)
	assert.Equal(t, 0.5, i.RatingMultiplier)
}

func TestUserScoreBoostDisabledExplicitly(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
routing:
  user_score_boost: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Routing.MatchConfig().UserScoreBoost)
}
