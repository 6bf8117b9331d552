package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	secretGeminiAPIKey = "gemini_api_key"
	secretAPIToken     = "api_token"
)

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(name string) (string, error)
	Set(name, value string) error
}

// secretsFile is a 0600 JSON object next to the database.
type secretsFile struct {
	path string
}

func defaultSecrets() secretsFile {
	return secretsFile{path: filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")), "prodfinder", "secrets.json")}
}

func (f secretsFile) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	secrets := map[string]string{}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (f secretsFile) Get(name string) (string, error) {
	secrets, err := f.read()
	if err != nil {
		return "", err
	}
	return secrets[name], nil
}

func (f secretsFile) Set(name, value string) error {
	secrets, err := f.read()
	if err != nil {
		return err
	}
	secrets[name] = value

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, out, 0o600)
}

// GetAPIToken returns the bearer token for the HTTP API, generating and
// storing one on first use. PRODFINDER_API_TOKEN overrides the stored token.
func GetAPIToken() (string, error) {
	return apiTokenFrom(defaultSecrets())
}

func apiTokenFrom(s secretStore) (string, error) {
	if tok := os.Getenv("PRODFINDER_API_TOKEN"); tok != "" {
		return tok, nil
	}
	tok, err := s.Get(secretAPIToken)
	if err != nil {
		return "", err
	}
	if tok != "" {
		return tok, nil
	}
	tok = uuid.NewString()
	if err := s.Set(secretAPIToken, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
