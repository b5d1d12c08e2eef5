package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	value string
	err   error
	set   map[string]string
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.err != nil {
		return m.err
	}
	if m.set == nil {
		m.set = make(map[string]string)
	}
	m.set[service+"/"+account] = value
	return nil
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	path := writeTempConfig(t, `# empty`)
	t.Setenv("PREFSETS_SERVER_TOKEN", "")

	cfg, err := loadFromPath(path, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Server.MaxConns != 64 {
		t.Errorf("Server.MaxConns = %d, want 64", cfg.Server.MaxConns)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, "sqlite")
	}
	if cfg.Storage.Name != "settings" {
		t.Errorf("Storage.Name = %q, want %q", cfg.Storage.Name, "settings")
	}
	if cfg.Storage.SetEncoding != "auto" {
		t.Errorf("Storage.SetEncoding = %q, want %q", cfg.Storage.SetEncoding, "auto")
	}
	if !cfg.Storage.WatchFiles {
		t.Error("Storage.WatchFiles = false, want true")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
	if cfg.Server.Token != "" {
		t.Errorf("Server.Token = %q, want empty", cfg.Server.Token)
	}
}

// TestTOMLParsing verifies that all fields are correctly read from a TOML file.
func TestTOMLParsing(t *testing.T) {
	content := `
[server]
port = 5000
max_conns = 8
token = "ignored-from-file"

[storage]
backend = "yaml"
data_dir = "/tmp/prefsets-test"
name = "profiles"
set_encoding = "json"
watch_files = false

[log]
level = "debug"
format = "json"
`
	path := writeTempConfig(t, content)
	t.Setenv("PREFSETS_SERVER_TOKEN", "")

	cfg, err := loadFromPath(path, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Server.MaxConns != 8 {
		t.Errorf("Server.MaxConns = %d, want 8", cfg.Server.MaxConns)
	}
	if cfg.Server.Token != "" {
		t.Errorf("Server.Token = %q, secrets must not come from the config file", cfg.Server.Token)
	}
	if cfg.Storage.Backend != "yaml" {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Storage.DataDir != "/tmp/prefsets-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.Name != "profiles" {
		t.Errorf("Storage.Name = %q", cfg.Storage.Name)
	}
	if cfg.Storage.SetEncoding != "json" {
		t.Errorf("Storage.SetEncoding = %q", cfg.Storage.SetEncoding)
	}
	if cfg.Storage.WatchFiles {
		t.Error("Storage.WatchFiles = true, want false")
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	path := writeTempConfig(t, "[server]\nport = 5000\n")

	t.Setenv("PREFSETS_SERVER_PORT", "6000")
	t.Setenv("PREFSETS_SERVER_TOKEN", "env-token")
	t.Setenv("PREFSETS_STORAGE_WATCH_FILES", "false")

	cfg, err := loadFromPath(path, &mockKeychain{value: "keychain-token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Server.Token != "env-token" {
		t.Errorf("Server.Token = %q, want %q", cfg.Server.Token, "env-token")
	}
	if cfg.Storage.WatchFiles {
		t.Error("Storage.WatchFiles = true, want false")
	}
}

// TestKeychainFallback verifies the keychain is consulted when no token is in env.
func TestKeychainFallback(t *testing.T) {
	path := writeTempConfig(t, `# no token`)
	t.Setenv("PREFSETS_SERVER_TOKEN", "")

	cfg, err := loadFromPath(path, &mockKeychain{value: "keychain-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Token != "keychain-secret" {
		t.Errorf("Server.Token = %q, want %q", cfg.Server.Token, "keychain-secret")
	}
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"backend", "[storage]\nbackend = \"redis\"\n", "storage.backend"},
		{"set encoding", "[storage]\nset_encoding = \"xml\"\n", "storage.set_encoding"},
		{"log format", "[log]\nformat = \"logfmt\"\n", "log.format"},
		{"port", "[server]\nport = 70000\n", "server.port"},
		{"max conns", "[server]\nmax_conns = 0\n", "server.max_conns"},
		{"empty name", "[storage]\nname = \"\"\n", "storage.name"},
	}
	t.Setenv("PREFSETS_SERVER_TOKEN", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadFromPath(writeTempConfig(t, tt.content), &mockKeychain{})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestSetKeyWritesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	b := newFileBackend(path)

	if err := setKey(b, "server.port", "4242"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if err := setKey(b, "storage.backend", "yaml"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if err := setKey(b, "storage.watch_files", "no"); err == nil {
		t.Error("setKey accepted an invalid bool")
	}
	if err := setKey(b, "server.port", "abc"); err == nil {
		t.Error("setKey accepted an invalid integer")
	}
	if err := setKey(b, "server.token", "x"); err == nil {
		t.Error("setKey accepted a secret")
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("setKey accepted an unknown key")
	}

	t.Setenv("PREFSETS_SERVER_TOKEN", "")
	cfg, err := loadFromPath(path, &mockKeychain{})
	if err != nil {
		t.Fatalf("loadFromPath: %v", err)
	}
	if cfg.Server.Port != 4242 {
		t.Errorf("Server.Port = %d, want 4242", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "yaml" {
		t.Errorf("Storage.Backend = %q, want yaml", cfg.Storage.Backend)
	}

	if err := b.Delete("server.port"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := newFileBackend(path).GetInt("server.port"); ok {
		t.Error("server.port still present after Delete")
	}
}

func TestAPIToken(t *testing.T) {
	kc := &mockKeychain{}
	tok, err := apiToken(Config{}, kc)
	if err != nil {
		t.Fatalf("apiToken: %v", err)
	}
	if len(tok) != 64 {
		t.Errorf("len(token) = %d, want 64", len(tok))
	}
	if kc.set["prefsets/server_token"] != tok {
		t.Errorf("token not stored in keychain: %v", kc.set)
	}

	existing := Config{Server: ServerConfig{Token: "abc"}}
	if got, _ := apiToken(existing, kc); got != "abc" {
		t.Errorf("apiToken = %q, want configured token", got)
	}

	_, err = apiToken(Config{}, &mockKeychain{err: errors.New("locked")})
	if err == nil {
		t.Error("expected error when keychain refuses the token")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Server.Token = "secret"
	for _, ki := range ShowAll(cfg) {
		if ki.Key == "server.token" || ki.Value == "secret" {
			t.Errorf("ShowAll exposed secret: %+v", ki)
		}
	}
	for _, k := range ValidKeys() {
		if k == "server.token" {
			t.Error("ValidKeys lists server.token")
		}
	}
}
