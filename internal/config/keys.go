package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  string // secrets file entry; empty for plain keys
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PRODFINDER_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PRODFINDER_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.op_timeout", typ: kString, env: "PRODFINDER_STORAGE_OP_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Storage.OpTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.OpTimeout },
	},
	{
		key: "gemini.api_key", typ: kString, env: "PRODFINDER_GEMINI_API_KEY",
		secret:  secretGeminiAPIKey,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.model", typ: kString, env: "PRODFINDER_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "gemini.base_url", typ: kString, env: "PRODFINDER_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "gemini.requests_per_minute", typ: kInt, env: "PRODFINDER_GEMINI_REQUESTS_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.Gemini.RequestsPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.Gemini.RequestsPerMinute },
	},
	{
		key: "gemini.timeout", typ: kString, env: "PRODFINDER_GEMINI_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Timeout },
	},
	{
		key: "log.level", typ: kString, env: "PRODFINDER_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "tracker.schedule", typ: kString, env: "PRODFINDER_TRACKER_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Tracker.Schedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Tracker.Schedule },
	},
	{
		key: "tracker.queries", typ: kString, env: "PRODFINDER_TRACKER_QUERIES",
		apply:   func(cfg *Config, v any) { cfg.Tracker.Queries = v.(string) },
		extract: func(cfg Config) any { return cfg.Tracker.Queries },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret != "" {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
