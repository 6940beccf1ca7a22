package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Run modes for the serve command.
const (
	ModeHTTP = "http"
	ModeMCP  = "mcp"
	ModeBoth = "both"
)

// ServerConfig is the HTTP control API listener.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string
	Format string
}

// BarkConfig is the environment-level Bark endpoint. It takes precedence
// over notifications.bark_url in the YAML file.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig groups push targets.
type NotificationConfig struct {
	Bark BarkConfig
}

// Config holds the daemon settings. Upload behavior lives in AppConfig.
type Config struct {
	ConfigPath    string
	StateDir      string
	Mode          string
	ShutdownGrace time.Duration

	Server       ServerConfig
	Log          LogConfig
	Notification NotificationConfig
}

// Flags carries command-line overrides. Zero values leave the env or
// default value in place.
type Flags struct {
	ConfigPath    string
	StateDir      string
	Mode          string
	Addr          string
	LogLevel      string
	LogFormat     string
	ShutdownGrace time.Duration
}

const (
	appName    = "ytuploader"
	envPrefix  = "YTU_"
	configFile = "config.yaml"
	listenAddr = "127.0.0.1:7071"
)

// env reads YTU_* variables and collects malformed values.
type env struct {
	errs []error
}

func (e *env) str(name, fallback string) string {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		return v
	}
	return fallback
}

func (e *env) flag(name string, fallback bool) bool {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return fallback
	}
	switch v {
	case "yes", "YES", "on", "ON":
		return true
	case "no", "NO", "off", "OFF":
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s=%q: not a boolean", envPrefix, name, v))
		return fallback
	}
	return b
}

func (e *env) duration(name string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s=%q: %w", envPrefix, name, v, err))
		return fallback
	}
	return d
}

func override[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

// loadDotEnv reads ./.env and then the per-user .env. Variables already
// set in the process win over both files.
func loadDotEnv() {
	files := []string{".env"}
	if dir, err := os.UserConfigDir(); err == nil {
		files = append(files, filepath.Join(dir, appName, ".env"))
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Parse builds the daemon configuration.
// Priority: flags > environment > .env file > defaults.
func Parse(flags Flags) (*Config, error) {
	loadDotEnv()

	var e env
	bark := e.str("BARK_URL", "")
	cfg := &Config{
		ConfigPath:    e.str("CONFIG", configFile),
		StateDir:      e.str("STATE_DIR", ""),
		Mode:          e.str("MODE", ModeHTTP),
		ShutdownGrace: e.duration("SHUTDOWN_GRACE", 10*time.Second),
		Server:        ServerConfig{Addr: e.str("ADDR", listenAddr), AuthToken: e.str("AUTH_TOKEN", "")},
		Log:           LogConfig{Level: e.str("LOG_LEVEL", "info"), Format: e.str("LOG_FORMAT", "text")},
		Notification: NotificationConfig{
			Bark: BarkConfig{URL: bark, Enabled: e.flag("BARK_ENABLED", bark != "")},
		},
	}
	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}

	override(&cfg.ConfigPath, flags.ConfigPath)
	override(&cfg.StateDir, flags.StateDir)
	override(&cfg.Mode, flags.Mode)
	override(&cfg.Server.Addr, flags.Addr)
	override(&cfg.Log.Level, flags.LogLevel)
	override(&cfg.Log.Format, flags.LogFormat)
	if flags.ShutdownGrace > 0 {
		cfg.ShutdownGrace = flags.ShutdownGrace
	}

	switch cfg.Mode {
	case ModeHTTP, ModeMCP, ModeBoth:
	default:
		return nil, fmt.Errorf("invalid mode %q (want %s, %s or %s)", cfg.Mode, ModeHTTP, ModeMCP, ModeBoth)
	}

	if cfg.StateDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = filepath.Join(base, appName)
	}
	return cfg, nil
}
