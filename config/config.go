package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"voicebar/permission"
)

// Environment variables read by Load.
const (
	EnvConfigPath      = "VOICEBAR_CONFIG"
	EnvSkipPermissions = "VOICEBAR_SKIP_PERMISSIONS"
	EnvLogLevel        = "VOICEBAR_LOG_LEVEL"
	EnvBundleID        = "VOICEBAR_BUNDLE_ID"
)

const (
	AppName         = "VoiceBar"
	DefaultBundleID = "com.voicebar.app"
)

// Config represents the application configuration
type Config struct {
	BundleID    string            `yaml:"bundle_id"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Logging     LoggingConfig     `yaml:"logging"`
	MCP         MCPConfig         `yaml:"mcp"`
}

type PermissionsConfig struct {
	Critical      []string      `yaml:"critical"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
	Freshness     time.Duration `yaml:"freshness"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	MarkerPath    string        `yaml:"marker_path"`
	Databases     []string      `yaml:"databases"`
	WatchDatabase bool          `yaml:"watch_database"`
	// Bypass is only ever set from VOICEBAR_SKIP_PERMISSIONS.
	Bypass bool `yaml:"-"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		BundleID: DefaultBundleID,
		Permissions: PermissionsConfig{
			Critical: []string{
				string(permission.Microphone),
				string(permission.Accessibility),
				string(permission.InputMonitoring),
			},
			SettleDelay:   permission.DefaultSettleDelay,
			Freshness:     permission.DefaultFreshness,
			LookupTimeout: permission.DefaultLookupTimeout,
			WatchDatabase: true,
		},
		Logging: LoggingConfig{Level: "info"},
		MCP:     MCPConfig{Enabled: true},
	}
}

// Load reads configuration from path, or from VOICEBAR_CONFIG when path is
// empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables if present
	if v := os.Getenv(EnvBundleID); v != "" {
		cfg.BundleID = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	cfg.Permissions.Bypass = truthy(os.Getenv(EnvSkipPermissions))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BundleID == "" {
		return fmt.Errorf("bundle_id is required")
	}
	if _, err := c.CriticalKinds(); err != nil {
		return err
	}
	if len(c.Permissions.Critical) == 0 && !c.Permissions.Bypass {
		return fmt.Errorf("permissions.critical may only be empty with %s set", EnvSkipPermissions)
	}
	p := c.Permissions
	if p.SettleDelay < 0 || p.Freshness < 0 || p.LookupTimeout < 0 {
		return fmt.Errorf("permissions durations must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}

// CriticalKinds parses the critical set, dropping duplicates.
func (c *Config) CriticalKinds() ([]permission.Kind, error) {
	seen := make(map[permission.Kind]bool)
	var kinds []permission.Kind
	for _, s := range c.Permissions.Critical {
		k, err := permission.ParseKind(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("permissions.critical: %w", err)
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// MarkerPath returns the first-run marker location, defaulting to the
// application support directory.
func (c *Config) MarkerPath() (string, error) {
	if c.Permissions.MarkerPath != "" {
		return c.Permissions.MarkerPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate application support: %w", err)
	}
	return filepath.Join(dir, AppName, "permissions-first-run.yaml"), nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
