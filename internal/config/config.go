package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kalambet/prefsets/internal/settings"
)

const (
	keychainService = "prefsets"
	tokenAccount    = "server_token"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	MaxConns int
	// Token authenticates API clients. Never read from the config file.
	Token string
}

type StorageConfig struct {
	// Backend is one of "sqlite", "yaml" or "memory".
	Backend     string
	DataDir     string
	Name        string
	SetEncoding string
	WatchFiles  bool
}

type LogConfig struct {
	Level  string
	Format string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     4100,
			MaxConns: 64,
		},
		Storage: StorageConfig{
			Backend:     "sqlite",
			DataDir:     defaultDataDir(),
			Name:        "settings",
			SetEncoding: string(settings.EncodingAuto),
			WatchFiles:  true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.prefsets.app) and the API
// token falls back to macOS Keychain.
// Elsewhere the backend is a TOML file at $XDG_CONFIG_HOME/prefsets/config.toml
// and the token falls back to a secrets file under $XDG_DATA_HOME.
//
// Environment variables (PREFSETS_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainStore{})
}

// loadFromPath loads from an explicit TOML file instead of the platform
// backend.
func loadFromPath(path string, kc keychain) (Config, error) {
	return loadWith(newFileBackend(path), kc)
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.Token == "" {
		if tok, err := kc.Get(keychainService, tokenAccount); err == nil && tok != "" {
			cfg.Server.Token = tok
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.Storage.Backend {
	case "sqlite", "yaml", "memory":
	default:
		return fmt.Errorf("invalid config storage.backend %q (want sqlite, yaml or memory)", cfg.Storage.Backend)
	}
	if cfg.Storage.Name == "" {
		return fmt.Errorf("invalid config storage.name: must not be empty")
	}
	if _, err := settings.ParseSetEncoding(cfg.Storage.SetEncoding); err != nil {
		return fmt.Errorf("invalid config storage.set_encoding: %w", err)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid config log.format %q (want text or json)", cfg.Log.Format)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid config server.port %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConns <= 0 {
		return fmt.Errorf("invalid config server.max_conns %d: must be positive", cfg.Server.MaxConns)
	}
	return nil
}

// GetAPIToken returns the configured API token, generating and storing a new
// one in the platform keychain on first use.
func GetAPIToken(cfg Config) (string, error) {
	return apiToken(cfg, keychainStore{})
}

func apiToken(cfg Config, kc keychain) (string, error) {
	if cfg.Server.Token != "" {
		return cfg.Server.Token, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := kc.Set(keychainService, tokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w. Set PREFSETS_SERVER_TOKEN instead%s", err, tokenHint())
	}
	return tok, nil
}

// keychainStore reads and writes the platform secret store.
type keychainStore struct{}

func (keychainStore) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainStore) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
