package config

import (
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Engine   EngineConfig
	Gemini   GeminiConfig
	Ollama   OllamaConfig
	Analysis AnalysisConfig
	Probe    ProbeConfig
	Quota    QuotaConfig
	Storage  StorageConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type EngineConfig struct {
	Backend string
}

type GeminiConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type AnalysisConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
}

type ProbeConfig struct {
	Interval   time.Duration
	MinSpacing time.Duration
}

type QuotaConfig struct {
	ScanDailyLimit    int
	ConsultDailyLimit int
}

type StorageConfig struct {
	DataDir       string
	PublicBaseURL string
}

type LogConfig struct {
	Level  string
	Format string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Engine: EngineConfig{
			Backend: "gemini",
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Model:   "gemini-2.0-flash",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llava",
		},
		Analysis: AnalysisConfig{
			MaxAttempts: 3,
			BackoffBase: 2 * time.Second,
		},
		Probe: ProbeConfig{
			Interval:   3 * time.Second,
			MinSpacing: 2 * time.Second,
		},
		Quota: QuotaConfig{
			ScanDailyLimit:    3,
			ConsultDailyLimit: 1,
		},
		Storage: StorageConfig{
			DataDir:       defaultDataDir(),
			PublicBaseURL: "http://127.0.0.1:4100/photos",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration in increasing precedence:
//
//  1. built-in defaults
//  2. the JSON file at $XDG_CONFIG_HOME/sillage/config.json
//  3. SILLAGE_* environment variables, including those from a .env file in
//     the working directory (which never override variables already set)
//
// Secrets are read from the environment or from
// $XDG_DATA_HOME/sillage/secrets.json.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(newFileBackend(configFilePath()), newSecretsFile(secretsFilePath()))
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(key string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	return cfg, nil
}

// applySecrets fills secret keys that are still empty after env overrides.
func applySecrets(cfg *Config, secrets secretStore) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := secrets.Get(s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
