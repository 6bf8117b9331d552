package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
)

// ErrMissingAPIKey is returned by RequireAPIKey when no Gemini key is set.
var ErrMissingAPIKey = errors.New("missing required config: Gemini API key. " +
	"Set it via environment variable PRODFINDER_GEMINI_API_KEY or `prodfinder config set gemini.api_key <key>`")

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Gemini  GeminiConfig
	Log     LogConfig
	Tracker TrackerConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir   string
	OpTimeout string
}

type GeminiConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerMinute int
	Timeout           string
}

type LogConfig struct {
	Level string
}

// TrackerConfig schedules repeated searches so prices get sampled daily
// without user interaction. An empty Queries list disables the tracker.
type TrackerConfig struct {
	Schedule string
	Queries  string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir:   defaultDataDir(),
			OpTimeout: "5s",
		},
		Gemini: GeminiConfig{
			Model:             "gemini-2.5-flash",
			BaseURL:           "https://generativelanguage.googleapis.com/v1beta",
			RequestsPerMinute: 10,
			Timeout:           "90s",
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracker: TrackerConfig{
			Schedule: "@daily",
		},
	}
}

// Load reads configuration from the config file, environment variables and
// the secrets file, in increasing order of precedence for everything but
// the API key, where the environment wins over the secrets file.
//
// The config file is JSON at $XDG_CONFIG_HOME/prodfinder/config.json unless
// PRODFINDER_CONFIG points elsewhere. Environment variables (PRODFINDER_*)
// override file values. A missing API key is not an error here; commands
// that call the model check RequireAPIKey.
func Load() (Config, error) {
	return loadWith(newFileBackend(ConfigFilePath()), defaultSecrets())
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Gemini.APIKey == "" {
		if key, err := secrets.Get(secretGeminiAPIKey); err == nil && key != "" {
			cfg.Gemini.APIKey = key
		}
	}

	if dir, err := homedir.Expand(cfg.Storage.DataDir); err == nil {
		cfg.Storage.DataDir = dir
	}

	return cfg, nil
}

// RequireAPIKey reports ErrMissingAPIKey when no Gemini key is configured.
func (c Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Timeout parses OpTimeout, falling back to 5s on a bad value.
func (c StorageConfig) Timeout() time.Duration {
	return parseDuration(c.OpTimeout, 5*time.Second)
}

// RequestTimeout parses Timeout, falling back to 90s on a bad value.
func (c GeminiConfig) RequestTimeout() time.Duration {
	return parseDuration(c.Timeout, 90*time.Second)
}

// SlogLevel maps Level to a slog level; unknown names mean info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
