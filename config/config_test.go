package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebar/permission"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvConfigPath, EnvSkipPermissions, EnvLogLevel, EnvBundleID} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	kinds, err := cfg.CriticalKinds()
	require.NoError(t, err)
	assert.Equal(t, []permission.Kind{permission.Microphone, permission.Accessibility, permission.InputMonitoring}, kinds)
}

func TestLoad_File(t *testing.T) {
	r := require.New(t)
	clearEnv(t)

	path := writeConfig(t, `
bundle_id: com.example.voice
permissions:
  critical: [microphone, screen_capture, microphone]
  settle_delay: 500ms
  freshness: 1m
  marker_path: /tmp/marker.yaml
  databases: [/tmp/TCC.db]
  watch_database: false
logging:
  level: debug
mcp:
  enabled: false
`)

	cfg, err := Load(path)
	r.NoError(err)

	r.Equal("com.example.voice", cfg.BundleID)
	r.Equal(500*time.Millisecond, cfg.Permissions.SettleDelay)
	r.Equal(time.Minute, cfg.Permissions.Freshness)
	r.Equal(permission.DefaultLookupTimeout, cfg.Permissions.LookupTimeout)
	r.Equal([]string{"/tmp/TCC.db"}, cfg.Permissions.Databases)
	r.False(cfg.Permissions.WatchDatabase)
	r.False(cfg.MCP.Enabled)
	r.Equal("debug", cfg.Logging.Level)

	kinds, err := cfg.CriticalKinds()
	r.NoError(err)
	r.Equal([]permission.Kind{permission.Microphone, permission.ScreenCapture}, kinds)

	marker, err := cfg.MarkerPath()
	r.NoError(err)
	r.Equal("/tmp/marker.yaml", marker)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	a := assert.New(t)
	clearEnv(t)

	path := writeConfig(t, "bundle_id: com.example.voice\n")
	t.Setenv(EnvConfigPath, path)
	t.Setenv(EnvBundleID, "com.example.override")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvSkipPermissions, "1")

	cfg, err := Load("")

	a.NoError(err)
	a.Equal("com.example.override", cfg.BundleID)
	a.Equal("warn", cfg.Logging.Level)
	a.True(cfg.Permissions.Bypass)
}

func TestLoad_BypassCannotComeFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "permissions:\n  bypass: true\n")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.False(t, cfg.Permissions.Bypass)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		skip string
		want string
	}{
		{"unknown kind", "permissions:\n  critical: [camera]\n", "", "permissions.critical"},
		{"empty critical set", "permissions:\n  critical: []\n", "", "may only be empty"},
		{"negative duration", "permissions:\n  freshness: -1s\n", "", "must not be negative"},
		{"bad log level", "logging:\n  level: loud\n", "", "logging.level"},
		{"malformed yaml", "permissions: [\n", "", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(EnvSkipPermissions, tt.skip)

			_, err := Load(writeConfig(t, tt.body))

			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoad_EmptyCriticalSetWithBypass(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvSkipPermissions, "true")

	cfg, err := Load(writeConfig(t, "permissions:\n  critical: []\n"))

	require.NoError(t, err)
	kinds, err := cfg.CriticalKinds()
	require.NoError(t, err)
	assert.Empty(t, kinds)
}

func TestMarkerPath_Default(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")

	path, err := Default().MarkerPath()

	require.NoError(t, err)
	assert.Equal(t, "permissions-first-run.yaml", filepath.Base(path))
	assert.Equal(t, AppName, filepath.Base(filepath.Dir(path)))
}
