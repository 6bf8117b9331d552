package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// memSecrets is a test double for the secrets file.
type memSecrets struct {
	values map[string]string
	err    error
}

func (m *memSecrets) Get(name string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.values[name], nil
}

func (m *memSecrets) Set(name, value string) error {
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[name] = value
	return nil
}

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
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
	t.Setenv("PRODFINDER_API_TOKEN", "")
}

// TestDefaults verifies all default values are applied when no config file exists.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	cfg, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "missing.json")), &memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/xdg-data/prodfinder" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Errorf("Gemini.Model = %q", cfg.Gemini.Model)
	}
	if cfg.Gemini.RequestsPerMinute != 10 {
		t.Errorf("Gemini.RequestsPerMinute = %d", cfg.Gemini.RequestsPerMinute)
	}
	if cfg.Tracker.Schedule != "@daily" || cfg.Tracker.Queries != "" {
		t.Errorf("Tracker = %+v", cfg.Tracker)
	}
	if cfg.Storage.Timeout() != 5*time.Second {
		t.Errorf("Storage.Timeout() = %v", cfg.Storage.Timeout())
	}
}

// TestJSONFile verifies fields are read from a nested JSON config file.
func TestJSONFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "config.json", `{
  "server": {"port": 5000},
  "storage": {"data_dir": "/tmp/prodfinder-test", "op_timeout": "2s"},
  "gemini": {"model": "gemini-2.5-pro", "requests_per_minute": 30},
  "log": {"level": "debug"},
  "tracker": {"schedule": "0 9 * * *", "queries": "kettle@UK"}
}`)

	cfg, err := loadWith(newFileBackend(path), &memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/prodfinder-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.Timeout() != 2*time.Second {
		t.Errorf("Storage.Timeout() = %v", cfg.Storage.Timeout())
	}
	if cfg.Gemini.Model != "gemini-2.5-pro" || cfg.Gemini.RequestsPerMinute != 30 {
		t.Errorf("Gemini = %+v", cfg.Gemini)
	}
	if cfg.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("Log.SlogLevel() = %v", cfg.Log.SlogLevel())
	}
	if cfg.Tracker.Schedule != "0 9 * * *" || cfg.Tracker.Queries != "kettle@UK" {
		t.Errorf("Tracker = %+v", cfg.Tracker)
	}
}

// TestYAMLFile verifies the file format follows the extension.
func TestYAMLFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "config.yaml", "server:\n  port: 6000\ngemini:\n  model: custom\n")

	cfg, err := loadWith(newFileBackend(path), &memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 || cfg.Gemini.Model != "custom" {
		t.Errorf("cfg = %+v", cfg)
	}
}

// TestInvalidInt verifies a clear error for a non-integer port.
func TestInvalidInt(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "config.json", `{"server": {"port": "abc"}}`)

	if _, err := loadWith(newFileBackend(path), &memSecrets{}); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "config.json", `{"server": {"port": 5000}, "gemini": {"model": "file-model"}}`)

	t.Setenv("PRODFINDER_SERVER_PORT", "7000")
	t.Setenv("PRODFINDER_GEMINI_MODEL", "env-model")
	t.Setenv("PRODFINDER_GEMINI_API_KEY", "env-key")

	cfg, err := loadWith(newFileBackend(path), &memSecrets{values: map[string]string{secretGeminiAPIKey: "file-key"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Gemini.Model != "env-model" {
		t.Errorf("Gemini.Model = %q", cfg.Gemini.Model)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("Gemini.APIKey = %q, want env-key", cfg.Gemini.APIKey)
	}
}

// TestEnvOverride_BadInt keeps the file value when the env var is not a number.
func TestEnvOverride_BadInt(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "config.json", `{"server": {"port": 5000}}`)
	t.Setenv("PRODFINDER_SERVER_PORT", "lots")

	cfg, err := loadWith(newFileBackend(path), &memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
}

// TestSecretsFallback verifies the secrets file is consulted when no API key is in env.
func TestSecretsFallback(t *testing.T) {
	clearEnv(t)
	secrets := &memSecrets{values: map[string]string{secretGeminiAPIKey: "stored-secret"}}

	cfg, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "none.json")), secrets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gemini.APIKey != "stored-secret" {
		t.Errorf("Gemini.APIKey = %q, want stored-secret", cfg.Gemini.APIKey)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		t.Errorf("RequireAPIKey: %v", err)
	}
}

// TestMissingAPIKey verifies a clear error when the API key is missing everywhere.
func TestMissingAPIKey(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "none.json")), &memSecrets{err: errors.New("unreadable")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = cfg.RequireAPIKey()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("RequireAPIKey = %v, want ErrMissingAPIKey", err)
	}
	if !strings.Contains(err.Error(), "PRODFINDER_GEMINI_API_KEY") {
		t.Errorf("error should name the env var: %v", err)
	}
}

// TestDataDirExpandsHome verifies "~" in the data dir is expanded.
func TestDataDirExpandsHome(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRODFINDER_STORAGE_DATA_DIR", "~/prodfinder-data")

	cfg, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "none.json")), &memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.HasPrefix(cfg.Storage.DataDir, "~") {
		t.Errorf("Storage.DataDir = %q, want home expanded", cfg.Storage.DataDir)
	}
	if !strings.HasSuffix(cfg.Storage.DataDir, "prodfinder-data") {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
}

// TestSetKey_RoundTrip writes keys through the file backend and reads them back.
func TestSetKey_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "prodfinder", "config.json")
	secrets := &memSecrets{}

	if err := setKeyWith(newFileBackend(path), secrets, "server.port", "4242"); err != nil {
		t.Fatalf("SetKey port: %v", err)
	}
	if err := setKeyWith(newFileBackend(path), secrets, "tracker.queries", "kettle@UK, toaster"); err != nil {
		t.Fatalf("SetKey queries: %v", err)
	}
	if err := setKeyWith(newFileBackend(path), secrets, "gemini.api_key", "sk-123"); err != nil {
		t.Fatalf("SetKey api key: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "sk-123") {
		t.Error("API key must not be written to the config file")
	}

	cfg, err := loadWith(newFileBackend(path), secrets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4242 {
		t.Errorf("Server.Port = %d, want 4242", cfg.Server.Port)
	}
	if cfg.Tracker.Queries != "kettle@UK, toaster" {
		t.Errorf("Tracker.Queries = %q", cfg.Tracker.Queries)
	}
	if cfg.Gemini.APIKey != "sk-123" {
		t.Errorf("Gemini.APIKey = %q", cfg.Gemini.APIKey)
	}
}

func TestSetKey_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := setKeyWith(newFileBackend(path), &memSecrets{}, "nope.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := setKeyWith(newFileBackend(path), &memSecrets{}, "server.port", "high"); err == nil {
		t.Error("expected error for non-integer port")
	}
}

func TestShowAll_MasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Gemini.APIKey = "AIzaSyExampleKey"

	var found bool
	for _, ki := range ShowAll(cfg) {
		if ki.Key != "gemini.api_key" {
			continue
		}
		found = true
		if ki.Value != "AIza********" {
			t.Errorf("masked value = %q", ki.Value)
		}
	}
	if !found {
		t.Fatal("gemini.api_key missing from ShowAll")
	}

	cfg.Gemini.APIKey = ""
	for _, ki := range ShowAll(cfg) {
		if ki.Key == "gemini.api_key" && ki.Value != "(not set)" {
			t.Errorf("empty secret shown as %q", ki.Value)
		}
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	if len(keys) != len(specs) {
		t.Fatalf("got %d keys, want %d", len(keys), len(specs))
	}
	for _, s := range specs {
		if s.env == "" || !strings.HasPrefix(s.env, "PRODFINDER_") {
			t.Errorf("key %s has env %q", s.key, s.env)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (LogConfig{Level: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAPIToken(t *testing.T) {
	t.Setenv("PRODFINDER_API_TOKEN", "")
	secrets := secretsFile{path: filepath.Join(t.TempDir(), "secrets.json")}

	first, err := apiTokenFrom(secrets)
	if err != nil {
		t.Fatalf("apiTokenFrom: %v", err)
	}
	if len(first) != 36 {
		t.Fatalf("token = %q, want a uuid", first)
	}
	second, err := apiTokenFrom(secrets)
	if err != nil {
		t.Fatalf("apiTokenFrom: %v", err)
	}
	if first != second {
		t.Errorf("token changed between calls: %q then %q", first, second)
	}

	info, err := os.Stat(secrets.path)
	if err != nil {
		t.Fatalf("secrets file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("secrets file mode = %o, want 600", perm)
	}

	t.Setenv("PRODFINDER_API_TOKEN", "from-env")
	if tok, _ := apiTokenFrom(secrets); tok != "from-env" {
		t.Errorf("token = %q, want env override", tok)
	}
}

func TestSecretsFile_Corrupt(t *testing.T) {
	path := writeTempConfig(t, "secrets.json", "{not json")
	if _, err := (secretsFile{path: path}).Get(secretAPIToken); err == nil {
		t.Fatal("expected parse error")
	}
}
