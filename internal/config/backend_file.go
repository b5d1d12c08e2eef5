package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// fileBackend stores config as TOML. A dotted key such as "server.port" maps
// to the port field of the [server] table. It is the platform backend outside
// macOS and the backend behind loadFromPath everywhere.
type fileBackend struct {
	path string
	data map[string]any
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, data: make(map[string]any)}
	b.load()
	return b
}

func (b *fileBackend) load() {
	if _, err := toml.DecodeFile(b.path, &b.data); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", b.path, err)
		}
		b.data = make(map[string]any)
	}
}

func (b *fileBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(b.data); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(b.path, buf.Bytes(), 0o600)
}

// table walks to the table holding key's last segment, creating tables on
// the way when create is set.
func (b *fileBackend) table(key string, create bool) (map[string]any, string, bool) {
	parts := strings.Split(key, ".")
	t := b.data
	for _, p := range parts[:len(parts)-1] {
		next, ok := t[p].(map[string]any)
		if !ok {
			if !create {
				return nil, "", false
			}
			next = make(map[string]any)
			t[p] = next
		}
		t = next
	}
	return t, parts[len(parts)-1], true
}

func (b *fileBackend) lookup(key string) (any, bool) {
	t, leaf, ok := b.table(key, false)
	if !ok {
		return nil, false
	}
	v, ok := t[leaf]
	return v, ok
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return "", false, nil
	}
	if s, ok := v.(string); ok {
		return s, true, nil
	}
	return fmt.Sprintf("%v", v), true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int64:
		if val < math.MinInt || val > math.MaxInt {
			return 0, true, fmt.Errorf("value %d for %s is out of range", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type %T for %s", v, key)
	}
}

func (b *fileBackend) SetString(key, val string) error {
	t, leaf, _ := b.table(key, true)
	t[leaf] = val
	return b.save()
}

func (b *fileBackend) SetInt(key string, val int) error {
	t, leaf, _ := b.table(key, true)
	t[leaf] = int64(val)
	return b.save()
}

func (b *fileBackend) Delete(key string) error {
	if t, leaf, ok := b.table(key, false); ok {
		delete(t, leaf)
	}
	return b.save()
}
