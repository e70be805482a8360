package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/puntaiq/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "puntaiq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, SourceSynthetic, cfg.Fixtures.Source)
	assert.Equal(t, []core.Sport{core.SportFootball, core.SportBasketball}, cfg.Sports())
	assert.Equal(t, 6*time.Hour, cfg.Pipeline.Interval)
	assert.Equal(t, 4, cfg.Accumulators.MaxRelaxSteps)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
fixtures:
  source: file
  path: /data/matches.json
pipeline:
  sports: [basketball]
  days_ahead: 5
  interval: 30m
sinks:
  output_dir: /tmp/out
  sql:
    driver: postgres
    dsn: postgres://localhost/puntaiq
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, SourceFile, cfg.Fixtures.Source)
	assert.Equal(t, []core.Sport{core.SportBasketball}, cfg.Sports())
	assert.Equal(t, 5, cfg.Pipeline.DaysAhead)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.Interval)
	assert.Equal(t, "postgres", cfg.Sinks.SQL.Driver)
	// Unset keys keep their defaults.
	assert.Equal(t, 8, cfg.Engine.Workers)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PUNTAIQ_SPORTS", "football, basketball")
	t.Setenv("PUNTAIQ_DAYS_AHEAD", "2")
	t.Setenv("PUNTAIQ_INTERVAL", "15m")
	t.Setenv("PUNTAIQ_TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("PUNTAIQ_NOTIFY_USERS", "u1,u2")

	cfg, err := Load(writeConfig(t, "pipeline:\n  days_ahead: 9\n"))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Pipeline.DaysAhead)
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.Interval)
	assert.Equal(t, int64(-100123), cfg.Sinks.Telegram.ChatID)
	assert.Equal(t, []string{"u1", "u2"}, cfg.Pipeline.NotifyUsers)
	assert.Len(t, cfg.Sports(), 2)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "unknown sport", yaml: "pipeline:\n  sports: [curling]\n"},
		{name: "no sports", yaml: "pipeline:\n  sports: []\n"},
		{name: "file source without path", yaml: "fixtures:\n  source: file\n"},
		{name: "http source without url", yaml: "fixtures:\n  source: http\n"},
		{name: "unknown source", yaml: "fixtures:\n  source: ftp\n"},
		{name: "bad sql driver", yaml: "sinks:\n  sql:\n    driver: mysql\n    dsn: x\n"},
		{name: "bad yaml", yaml: "pipeline: [\n"},
		{name: "bad env int", yaml: "", env: map[string]string{"PUNTAIQ_DAYS_AHEAD": "three"}},
		{name: "bad env duration", yaml: "", env: map[string]string{"PUNTAIQ_INTERVAL": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
