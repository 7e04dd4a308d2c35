package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 4, cfg.Capture.Workers)
	require.Equal(t, 64, cfg.Capture.QueueDepth)
	require.Equal(t, 0.1, cfg.Capture.ChangeThreshold)
	require.Equal(t, 80, cfg.Capture.JPEGQuality)
	require.Equal(t, 2, cfg.Browser.MaxSessions)
	require.Equal(t, "captures", cfg.Storage.Prefix)
	require.True(t, cfg.Probe.Enabled)
	require.Equal(t, 30*time.Second, cfg.RenderTimeout())
	require.Equal(t, 2*time.Second, cfg.SettleDelay())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
server:
  port: 9090
capture:
  workers: 8
  change_threshold: 0.25
browser:
  max_sessions: 4
  settle_delay_ms: 500
storage:
  gcs_bucket: pagewatch-artifacts
db:
  dsn: postgres://pagewatch@localhost/pagewatch
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 8, cfg.Capture.Workers)
	require.Equal(t, 0.25, cfg.Capture.ChangeThreshold)
	require.Equal(t, 4, cfg.Browser.MaxSessions)
	require.Equal(t, 500*time.Millisecond, cfg.SettleDelay())
	require.Equal(t, "pagewatch-artifacts", cfg.Storage.GCSBucket)
	require.Equal(t, "postgres://pagewatch@localhost/pagewatch", cfg.DB.DSN)
	// Unset keys keep their defaults.
	require.Equal(t, 64, cfg.Capture.QueueDepth)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:  ServerConfig{Port: 8080},
			Capture: CaptureConfig{Workers: 2, ChangeThreshold: 0.1},
			Browser: BrowserConfig{MaxSessions: 1},
		}
	}

	require.NoError(t, base().Validate())

	bad := base()
	bad.Server.Port = 0
	require.Error(t, bad.Validate())

	bad = base()
	bad.Capture.Workers = 0
	require.Error(t, bad.Validate())

	bad = base()
	bad.Capture.ChangeThreshold = 1.5
	require.Error(t, bad.Validate())

	bad = base()
	bad.Browser.MaxSessions = -1
	require.Error(t, bad.Validate())
}
