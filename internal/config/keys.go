package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	choices []string // allowed values for string keys, when restricted
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SILLAGE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "SILLAGE_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "engine.backend", typ: kString, env: "SILLAGE_ENGINE_BACKEND",
		choices: []string{"gemini", "ollama"},
		apply:   func(cfg *Config, v any) { cfg.Engine.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Backend },
	},
	{
		key: "gemini.base_url", typ: kString, env: "SILLAGE_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "gemini.model", typ: kString, env: "SILLAGE_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "gemini.api_key", typ: kString, env: "SILLAGE_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SILLAGE_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "SILLAGE_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "analysis.max_attempts", typ: kInt, env: "SILLAGE_ANALYSIS_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Analysis.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Analysis.MaxAttempts },
	},
	{
		key: "analysis.backoff_base", typ: kDuration, env: "SILLAGE_ANALYSIS_BACKOFF_BASE",
		apply:   func(cfg *Config, v any) { cfg.Analysis.BackoffBase = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Analysis.BackoffBase },
	},
	{
		key: "probe.interval", typ: kDuration, env: "SILLAGE_PROBE_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Probe.Interval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Probe.Interval },
	},
	{
		key: "probe.min_spacing", typ: kDuration, env: "SILLAGE_PROBE_MIN_SPACING",
		apply:   func(cfg *Config, v any) { cfg.Probe.MinSpacing = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Probe.MinSpacing },
	},
	{
		key: "quota.scan_daily_limit", typ: kInt, env: "SILLAGE_QUOTA_SCAN_DAILY_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Quota.ScanDailyLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Quota.ScanDailyLimit },
	},
	{
		key: "quota.consult_daily_limit", typ: kInt, env: "SILLAGE_QUOTA_CONSULT_DAILY_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Quota.ConsultDailyLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Quota.ConsultDailyLimit },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SILLAGE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.public_base_url", typ: kString, env: "SILLAGE_STORAGE_PUBLIC_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Storage.PublicBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.PublicBaseURL },
	},
	{
		key: "log.level", typ: kString, env: "SILLAGE_LOG_LEVEL",
		choices: []string{"debug", "info", "warn", "error"},
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "SILLAGE_LOG_FORMAT",
		choices: []string{"text", "json"},
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
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
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
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
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
