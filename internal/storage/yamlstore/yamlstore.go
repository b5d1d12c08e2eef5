// Package yamlstore keeps settings in a single YAML file. It holds scalar
// values only, so registries on top of it encode string sets as JSON.
package yamlstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/prefsets/internal/kv"
)

type entry struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

type document struct {
	Entries map[string]entry `yaml:"entries"`
}

// Store is a scalar-only kv.Store persisted to a YAML file.
type Store struct {
	kv.Broadcaster

	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	data map[string]kv.Value
}

var _ kv.Store = (*Store)(nil)

// Open loads dataDir/name.yaml, or starts empty when the file does not exist
// yet. The file is created on the first commit.
func Open(dataDir, name string, logger *slog.Logger) (*Store, error) {
	if name == "" {
		return nil, errors.New("empty store name")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	s := &Store{
		path:   filepath.Join(dataDir, name+".yaml"),
		logger: logger,
	}
	data, err := s.load()
	if err != nil {
		return nil, err
	}
	s.data = data
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) load() (map[string]kv.Value, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]kv.Value), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	out := make(map[string]kv.Value, len(doc.Entries))
	for key, e := range doc.Entries {
		kind, err := kv.ParseKind(e.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %q: %w", s.path, key, err)
		}
		if kind == kv.KindStringSet {
			return nil, fmt.Errorf("%s: entry %q: %w: %s", s.path, key, kv.ErrUnsupportedKind, kind)
		}
		v, err := kv.ParseValue(kind, e.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %q: %w", s.path, key, err)
		}
		out[key] = v
	}
	return out, nil
}

// write replaces the file atomically.
func (s *Store) write(data map[string]kv.Value) error {
	doc := document{Entries: make(map[string]entry, len(data))}
	for key, v := range data {
		doc.Entries[key] = entry{Type: v.Kind.String(), Value: v.Format()}
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) SupportsStringSets() bool { return false }

func (s *Store) Get(key string) (kv.Value, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *Store) All() (map[string]kv.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]kv.Value, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

// Commit writes the file and then notifies subscribers. The in-memory state
// only changes once the file has been replaced.
func (s *Store) Commit(cs kv.ChangeSet) error {
	if err := kv.CheckKinds(s, cs); err != nil {
		return err
	}

	s.mu.Lock()
	next := make(map[string]kv.Value, len(s.data))
	var cleared []string
	for k, v := range s.data {
		if cs.Clear {
			cleared = append(cleared, k)
			continue
		}
		next[k] = v
	}
	for key, m := range cs.Mutations {
		if m.Delete {
			delete(next, key)
			continue
		}
		next[key] = m.Value
	}
	if err := s.write(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.data = next
	s.mu.Unlock()

	s.Notify(cs.Touched(cleared)...)
	return nil
}

// Reload rereads the file and notifies subscribers of every key whose value
// differs from the loaded state.
func (s *Store) Reload() error {
	s.mu.Lock()
	fresh, err := s.load()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	changed := diff(s.data, fresh)
	s.data = fresh
	s.mu.Unlock()

	if len(changed) > 0 {
		s.logger.Debug("settings file changed", "path", s.path, "keys", len(changed))
		s.Notify(changed...)
	}
	return nil
}

func diff(old, fresh map[string]kv.Value) []string {
	var keys []string
	for k, v := range fresh {
		if prev, ok := old[k]; !ok || !prev.Equal(v) {
			keys = append(keys, k)
		}
	}
	for k := range old {
		if _, ok := fresh[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Watch reloads the file whenever it changes on disk, until ctx is done.
// Our own atomic writes reload to an identical state and notify nothing.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: atomic replaces swap the file's inode.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(s.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("reloading settings file", "path", s.path, "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("settings file watcher", "error", err)
		}
	}
}
