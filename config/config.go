package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "pixel-chat"
	// BackendFreeHost publishes state images to the public image host.
	BackendFreeHost = "freehost"
	// BackendMinio publishes state images to an S3-compatible bucket.
	BackendMinio = "minio"
	// DefaultHostBaseURL is the public image host used without overrides.
	DefaultHostBaseURL = "https://freeimghost.net"
	// DefaultSearchTag prefixes uploaded state image filenames.
	DefaultSearchTag = "PixelChat"
	// DefaultPollIntervalSeconds is the reconcile loop cadence.
	DefaultPollIntervalSeconds = 5
	// configFileName is the persisted configuration file.
	configFileName = "config.json"
)

// MinioConfig holds connection settings for the S3-compatible backend.
type MinioConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl"`
}

// ClientConfig contains persistent local settings.
type ClientConfig struct {
	UserName            string      `json:"user_name"`
	ProfileImage        string      `json:"profile_image"`
	Backend             string      `json:"backend"`
	HostBaseURL         string      `json:"host_base_url"`
	SearchTag           string      `json:"search_tag"`
	PollIntervalSeconds int         `json:"poll_interval_seconds"`
	IdentityPath        string      `json:"identity_path"`
	Minio               MinioConfig `json:"minio"`
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If PIXEL_CHAT_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv("PIXEL_CHAT_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "keys"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	return nil
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*ClientConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg ClientConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *ClientConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns both.
func LoadOrCreate() (*ClientConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig(dataDir)
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}

		return cfg, cfgPath, nil
	}

	if normalizeDefaults(cfg, dataDir) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	return cfg, cfgPath, nil
}

func defaultConfig(dataDir string) *ClientConfig {
	userName := "Pixel Chat User"
	if host, err := os.Hostname(); err == nil && host != "" {
		userName = host
	}

	return &ClientConfig{
		UserName:            userName,
		Backend:             BackendFreeHost,
		HostBaseURL:         DefaultHostBaseURL,
		SearchTag:           DefaultSearchTag,
		PollIntervalSeconds: DefaultPollIntervalSeconds,
		IdentityPath:        filepath.Join(dataDir, "keys", "identity.json"),
	}
}

func normalizeDefaults(cfg *ClientConfig, dataDir string) bool {
	updated := false

	if cfg.UserName == "" {
		userName := "Pixel Chat User"
		if host, err := os.Hostname(); err == nil && host != "" {
			userName = host
		}
		cfg.UserName = userName
		updated = true
	}

	backend := normalizeBackend(cfg.Backend)
	if backend == "" {
		if cfg.Minio.Endpoint != "" {
			backend = BackendMinio
		} else {
			backend = BackendFreeHost
		}
	}
	if cfg.Backend != backend {
		cfg.Backend = backend
		updated = true
	}

	if cfg.Backend == BackendFreeHost && cfg.HostBaseURL == "" {
		cfg.HostBaseURL = DefaultHostBaseURL
		updated = true
	}

	if cfg.SearchTag == "" {
		cfg.SearchTag = DefaultSearchTag
		updated = true
	}

	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = DefaultPollIntervalSeconds
		updated = true
	}

	if cfg.IdentityPath == "" {
		cfg.IdentityPath = filepath.Join(dataDir, "keys", "identity.json")
		updated = true
	}

	return updated
}

func normalizeBackend(value string) string {
	switch value {
	case BackendFreeHost, BackendMinio:
		return value
	default:
		return ""
	}
}
