//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.prefsets.app"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "prefsets-data"
	}
	return filepath.Join(home, "Library", "Application Support", "prefsets")
}

func tokenHint() string {
	return " or macOS Keychain (service: " + keychainService + ", account: " + tokenAccount + ")"
}

// defaultsBackend keeps config keys in the UserDefaults domain of the app.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return &defaultsBackend{domain: defaultsDomain}
}

// run invokes the defaults tool on the backend's domain. missing reports
// the exit status defaults uses for an absent key or domain.
func (b *defaultsBackend) run(verb, key string, extra ...string) (out string, missing bool, err error) {
	args := append([]string{verb, b.domain, key}, extra...)
	raw, err := exec.Command("defaults", args...).CombinedOutput()
	out = strings.TrimSpace(string(raw))
	if err == nil {
		return out, false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return "", true, nil
	}
	return "", false, fmt.Errorf("defaults %s %s: %w (%s)", verb, key, err, out)
}

func (b *defaultsBackend) GetString(key string) (string, bool, error) {
	out, missing, err := b.run("read", key)
	return out, !missing && err == nil, err
}

func (b *defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok {
		return 0, false, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

func (b *defaultsBackend) SetString(key, val string) error {
	_, _, err := b.run("write", key, "-string", val)
	return err
}

func (b *defaultsBackend) SetInt(key string, val int) error {
	_, _, err := b.run("write", key, "-int", strconv.Itoa(val))
	return err
}

// Delete treats an already absent key as deleted.
func (b *defaultsBackend) Delete(key string) error {
	_, _, err := b.run("delete", key)
	return err
}
