package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mapSecrets is a test double for the secrets file.
type mapSecrets map[string]string

func (m mapSecrets) Get(key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "missing.json")), mapSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Engine.Backend != "gemini" {
		t.Errorf("Engine.Backend = %q, want gemini", cfg.Engine.Backend)
	}
	if cfg.Gemini.Model != "gemini-2.0-flash" {
		t.Errorf("Gemini.Model = %q, want gemini-2.0-flash", cfg.Gemini.Model)
	}
	if cfg.Ollama.Model != "llava" {
		t.Errorf("Ollama.Model = %q, want llava", cfg.Ollama.Model)
	}
	if cfg.Analysis.MaxAttempts != 3 || cfg.Analysis.BackoffBase != 2*time.Second {
		t.Errorf("Analysis = %+v, want 3 attempts with 2s base", cfg.Analysis)
	}
	if cfg.Probe.Interval != 3*time.Second || cfg.Probe.MinSpacing != 2*time.Second {
		t.Errorf("Probe = %+v, want 3s interval and 2s spacing", cfg.Probe)
	}
	if cfg.Quota.ScanDailyLimit != 3 || cfg.Quota.ConsultDailyLimit != 1 {
		t.Errorf("Quota = %+v, want 3/1", cfg.Quota)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want info/text", cfg.Log)
	}
}

func TestFileBackendValues(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{
		"server.port": 5000,
		"engine.backend": "ollama",
		"ollama.model": "llava:13b",
		"analysis.backoff_base": "500ms",
		"quota.scan_daily_limit": "10"
	}`)

	cfg, err := loadWith(newFileBackend(path), mapSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Engine.Backend != "ollama" {
		t.Errorf("Engine.Backend = %q, want ollama", cfg.Engine.Backend)
	}
	if cfg.Ollama.Model != "llava:13b" {
		t.Errorf("Ollama.Model = %q", cfg.Ollama.Model)
	}
	if cfg.Analysis.BackoffBase != 500*time.Millisecond {
		t.Errorf("BackoffBase = %v, want 500ms", cfg.Analysis.BackoffBase)
	}
	if cfg.Quota.ScanDailyLimit != 10 {
		t.Errorf("ScanDailyLimit = %d, want 10", cfg.Quota.ScanDailyLimit)
	}
}

func TestInvalidIntInFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"server.port": 40.5}`)
	if _, err := loadWith(newFileBackend(path), mapSecrets{}); err == nil {
		t.Fatal("expected error for fractional port")
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"gemini.model": "file-model", "probe.interval": "5s"}`)
	t.Setenv("SILLAGE_GEMINI_MODEL", "env-model")
	t.Setenv("SILLAGE_PROBE_INTERVAL", "1s")
	t.Setenv("SILLAGE_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(newFileBackend(path), mapSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gemini.Model != "env-model" {
		t.Errorf("Gemini.Model = %q, want env-model", cfg.Gemini.Model)
	}
	if cfg.Probe.Interval != time.Second {
		t.Errorf("Probe.Interval = %v, want 1s", cfg.Probe.Interval)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default after bad env value", cfg.Server.Port)
	}
}

func TestSecrets(t *testing.T) {
	clearEnv(t)
	backend := newFileBackend(filepath.Join(t.TempDir(), "c.json"))

	cfg, err := loadWith(backend, mapSecrets{"gemini.api_key": "file-key", "server.api_token": "tok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gemini.APIKey != "file-key" || cfg.Server.APIToken != "tok" {
		t.Errorf("secrets not applied: %+v %+v", cfg.Gemini, cfg.Server)
	}

	t.Setenv("SILLAGE_GEMINI_API_KEY", "env-key")
	cfg, err = loadWith(backend, mapSecrets{"gemini.api_key": "file-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("Gemini.APIKey = %q, want env value to win", cfg.Gemini.APIKey)
	}
}

func TestSecretsFile(t *testing.T) {
	f := newSecretsFile(filepath.Join(t.TempDir(), "sub", "secrets.json"))
	if _, err := f.Get("gemini.api_key"); err == nil {
		t.Fatal("expected error for missing file")
	}
	if err := f.Set("gemini.api_key", "k1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := f.Get("gemini.api_key")
	if err != nil || got != "k1" {
		t.Errorf("Get = %q, %v; want k1", got, err)
	}

	info, err := os.Stat(f.path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}
}

func TestSetKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	b := newFileBackend(path)

	if err := setKey(b, "analysis.max_attempts", "5"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if err := setKey(b, "probe.interval", "4s"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if err := setKey(b, "probe.interval", "soon"); err == nil {
		t.Error("expected error for bad duration")
	}
	if err := setKey(b, "gemini.api_key", "x"); err == nil {
		t.Error("expected error for secret key")
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := setKey(b, "engine.backend", "openai"); err == nil {
		t.Error("expected error for unsupported backend")
	}
	if err := setKey(b, "quota.scan_daily_limit", "-1"); err == nil {
		t.Error("expected error for negative limit")
	}
	if err := setKey(b, "log.format", "json"); err != nil {
		t.Fatalf("setKey log.format: %v", err)
	}
	if err := b.Delete("log.format"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	clearEnv(t)
	cfg, err := loadWith(newFileBackend(path), mapSecrets{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Analysis.MaxAttempts != 5 || cfg.Probe.Interval != 4*time.Second {
		t.Errorf("persisted values not loaded: %+v %+v", cfg.Analysis, cfg.Probe)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Gemini.APIKey = "hidden"
	for _, k := range ShowAll(cfg) {
		if k.Key == "gemini.api_key" || k.Key == "server.api_token" {
			t.Errorf("secret key %s listed", k.Key)
		}
		if k.Value == "hidden" {
			t.Error("secret value leaked")
		}
	}
	if len(ValidKeys()) != len(specs)-2 {
		t.Errorf("ValidKeys = %d, want %d", len(ValidKeys()), len(specs)-2)
	}
}

func TestEnsureAPIToken(t *testing.T) {
	f := newSecretsFile(filepath.Join(t.TempDir(), "secrets.json"))
	cfg := defaults()

	tok, err := ensureAPIToken(&cfg, f)
	if err != nil {
		t.Fatalf("ensureAPIToken: %v", err)
	}
	if len(tok) != 64 || cfg.Server.APIToken != tok {
		t.Errorf("token = %q, cfg = %q", tok, cfg.Server.APIToken)
	}

	again := defaults()
	tok2, err := ensureAPIToken(&again, f)
	if err != nil {
		t.Fatal(err)
	}
	if tok2 != tok {
		t.Errorf("second call generated a new token")
	}
}
