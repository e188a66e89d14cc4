package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SyncConfig holds sync-related settings.
type SyncConfig struct {
	URL           string `json:"url,omitempty"`
	Auto          *bool  `json:"auto,omitempty"`           // nil = default true
	ProbeURL      string `json:"probe_url,omitempty"`      // default <url>/v1/ping
	ProbeInterval string `json:"probe_interval,omitempty"` // duration string, default "30s"
}

// Config is the global fittrack config stored at ~/.config/fittrack/config.json.
type Config struct {
	DataDir string     `json:"data_dir,omitempty"`
	Sync    SyncConfig `json:"sync"`
}

// AuthCredentials stores authentication state at ~/.config/fittrack/auth.json.
type AuthCredentials struct {
	APIKey    string `json:"api_key"`
	AccountID string `json:"account_id"`
	Email     string `json:"email,omitempty"`
	ServerURL string `json:"server_url,omitempty"`
}

const defaultServerURL = "http://localhost:8080"

// ConfigDir returns ~/.config/fittrack, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "fittrack")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// LoadConfig reads the global config from ~/.config/fittrack/config.json.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig writes the global config to ~/.config/fittrack/config.json.
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// LoadAuth reads auth credentials from ~/.config/fittrack/auth.json.
func LoadAuth() (*AuthCredentials, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "auth.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds AuthCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// SaveAuth writes auth credentials to ~/.config/fittrack/auth.json (0600 perms).
func SaveAuth(creds *AuthCredentials) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "auth.json"), data, 0600)
}

// ClearAuth removes the auth.json file.
func ClearAuth() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, "auth.json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// DataDir returns the directory holding the local database.
// Priority: FITTRACK_DB_DIR env > config.json data_dir > ~/.fittrack.
func DataDir() (string, error) {
	if v := os.Getenv("FITTRACK_DB_DIR"); v != "" {
		return v, nil
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".fittrack"), nil
}

// GetSyncURL returns the sync server URL.
// Priority: FITTRACK_SYNC_URL env > auth.json server_url > config.json > default.
func GetSyncURL() string {
	if v := os.Getenv("FITTRACK_SYNC_URL"); v != "" {
		return v
	}
	creds, err := LoadAuth()
	if err == nil && creds != nil && creds.ServerURL != "" {
		return creds.ServerURL
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.URL != "" {
		return cfg.Sync.URL
	}
	return defaultServerURL
}

// GetAPIKey returns the API key.
// Priority: FITTRACK_AUTH_KEY env > auth.json.
func GetAPIKey() string {
	if v := os.Getenv("FITTRACK_AUTH_KEY"); v != "" {
		return v
	}
	creds, err := LoadAuth()
	if err == nil && creds != nil {
		return creds.APIKey
	}
	return ""
}

// GetAccount returns the account identifier mutations are synced under.
// Priority: FITTRACK_ACCOUNT env > auth.json.
func GetAccount() string {
	if v := os.Getenv("FITTRACK_ACCOUNT"); v != "" {
		return v
	}
	creds, err := LoadAuth()
	if err == nil && creds != nil {
		return creds.AccountID
	}
	return ""
}

// IsAuthenticated returns true if an API key is available.
func IsAuthenticated() bool {
	return GetAPIKey() != ""
}

// parseBoolEnv returns nil if env not set, pointer to bool if set.
func parseBoolEnv(envKey string) *bool {
	v := os.Getenv(envKey)
	if v == "" {
		return nil
	}
	v = strings.ToLower(v)
	if v == "1" || v == "true" {
		b := true
		return &b
	}
	if v == "0" || v == "false" {
		b := false
		return &b
	}
	return nil
}

// GetAutoSyncEnabled returns whether mutations trigger a sync attempt.
// Priority: FITTRACK_SYNC_AUTO env > config.json sync.auto > true
func GetAutoSyncEnabled() bool {
	if v := parseBoolEnv("FITTRACK_SYNC_AUTO"); v != nil {
		return *v
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.Auto != nil {
		return *cfg.Sync.Auto
	}
	return true
}

// GetProbeURL returns the URL the connectivity probe polls.
// Priority: FITTRACK_PROBE_URL env > config.json sync.probe_url > <sync url>/v1/ping
func GetProbeURL() string {
	if v := os.Getenv("FITTRACK_PROBE_URL"); v != "" {
		return v
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.ProbeURL != "" {
		return cfg.Sync.ProbeURL
	}
	return strings.TrimRight(GetSyncURL(), "/") + "/v1/ping"
}

// GetProbeInterval returns how often the connectivity probe polls.
// Priority: FITTRACK_PROBE_INTERVAL env > config.json sync.probe_interval > 30s
func GetProbeInterval() time.Duration {
	if v := os.Getenv("FITTRACK_PROBE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.ProbeInterval != "" {
		if d, err := time.ParseDuration(cfg.Sync.ProbeInterval); err == nil && d > 0 {
			return d
		}
	}
	return 30 * time.Second
}
