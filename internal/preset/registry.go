// Package preset layers named presets over a flat settings store.
//
// Every logical key is stored as prefix+key, where the prefix is derived from
// the preset name. Reads through a non-DEFAULT preset fall back to the
// DEFAULT preset's value when the preset has no override of its own; writes
// always go to the preset's own prefix.
//
// The registry keeps the set of known preset names and the active preset
// under two reserved keys of the same store.
package preset

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/kalambet/prefsets/internal/kv"
	"github.com/kalambet/prefsets/internal/settings"
)

// Registry tracks the presets stored in one physical store.
type Registry struct {
	store  kv.Store
	sets   settings.SetCodec
	logger *slog.Logger
	hub    *hub

	mu sync.Mutex
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	encoding settings.SetEncoding
	logger   *slog.Logger
}

// WithSetEncoding overrides how string sets are stored. The default picks
// native sets when the store supports them.
func WithSetEncoding(enc settings.SetEncoding) Option {
	return func(o *options) { o.encoding = enc }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New returns a registry over store. The string-set encoding is chosen here,
// once, for the lifetime of the registry.
func New(store kv.Store, opts ...Option) (*Registry, error) {
	o := options{encoding: settings.EncodingAuto, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	codec, err := settings.NewSetCodec(store, o.encoding, o.logger)
	if err != nil {
		return nil, fmt.Errorf("selecting string set encoding: %w", err)
	}

	r := &Registry{
		store:  store,
		sets:   codec,
		logger: o.logger,
	}
	r.hub = newHub(store)
	return r, nil
}

// SetEncoding reports the string-set encoding in use.
func (r *Registry) SetEncoding() settings.SetEncoding {
	return r.sets.Encoding()
}

// Flat returns the physical store as Settings, without any key rewriting.
func (r *Registry) Flat() *settings.Flat {
	return settings.NewFlat(r.store, r.sets)
}

func (r *Registry) persistedNames() ([]string, error) {
	names, err := r.sets.GetStringSet(r.store, presetsKey, []string{})
	if err != nil {
		return nil, fmt.Errorf("reading preset names: %w", err)
	}
	return names, nil
}

// Presets returns every known preset name, DEFAULT first and the rest
// sorted. DEFAULT is listed even if no preset was ever added.
func (r *Registry) Presets() ([]string, error) {
	names, err := r.persistedNames()
	if err != nil {
		return nil, err
	}
	out := []string{DefaultName}
	for _, n := range names {
		if n != DefaultName {
			out = append(out, n)
		}
	}
	return out, nil
}

// Has reports whether name is a registered preset.
func (r *Registry) Has(name string) (bool, error) {
	names, err := r.Presets()
	if err != nil {
		return false, err
	}
	return slices.Contains(names, name), nil
}

// Add registers a new preset. It fails with ErrPresetExists when the name is
// already known, and with ErrNameCollision when its storage prefix would
// overlap an existing preset's.
func (r *Registry) Add(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	names, err := r.Presets()
	if err != nil {
		return err
	}
	if slices.Contains(names, name) {
		return fmt.Errorf("preset %q: %w", name, ErrPresetExists)
	}
	prefix := PrefixFor(name)
	for _, existing := range names {
		if foldName(existing) == foldName(name) {
			return fmt.Errorf("preset %q differs from %q only by case: %w", name, existing, ErrNameCollision)
		}
		other := PrefixFor(existing)
		if strings.HasPrefix(other, prefix) || strings.HasPrefix(prefix, other) {
			return fmt.Errorf("preset %q shares storage prefix with %q: %w", name, existing, ErrNameCollision)
		}
	}

	persisted, err := r.persistedNames()
	if err != nil {
		return err
	}
	e := kv.NewEditor(r.store)
	r.sets.PutStringSet(e, presetsKey, append(persisted, name))
	if err := e.Commit(); err != nil {
		return fmt.Errorf("saving preset %q: %w", name, err)
	}
	r.logger.Debug("preset added", "preset", name, "prefix", prefix)
	return nil
}

// Remove deletes a preset and every value stored under its prefix. Unknown
// names are ignored. Removing the active preset makes DEFAULT active again
// in the same commit. DEFAULT itself cannot be removed.
func (r *Registry) Remove(name string) error {
	if name == DefaultName {
		return fmt.Errorf("%w: %s cannot be removed", ErrReservedName, DefaultName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	names, err := r.persistedNames()
	if err != nil {
		return err
	}
	if !slices.Contains(names, name) {
		return nil
	}

	ed := r.Preset(name).edit()
	ed.Clear()
	r.sets.PutStringSet(ed.raw, presetsKey, slices.DeleteFunc(names, func(n string) bool { return n == name }))

	active, err := r.ActiveName()
	if err != nil {
		return err
	}
	if active == name {
		ed.raw.Remove(activeKey)
	}

	if err := ed.Commit(); err != nil {
		return fmt.Errorf("removing preset %q: %w", name, err)
	}
	r.logger.Debug("preset removed", "preset", name, "was_active", active == name)
	return nil
}

// Preset returns a view of the named preset. The name is not checked
// against the registry: an unregistered name yields an empty view that still
// falls back to DEFAULT.
func (r *Registry) Preset(name string) *View {
	return &View{
		registry: r,
		name:     name,
		prefix:   PrefixFor(name),
	}
}

// Default returns the DEFAULT preset's view.
func (r *Registry) Default() *View {
	return r.Preset(DefaultName)
}

// ActiveName returns the persisted active preset name, DEFAULT when unset.
func (r *Registry) ActiveName() (string, error) {
	name, err := settings.GetString(r.store, activeKey, DefaultName)
	if err != nil {
		return "", fmt.Errorf("reading active preset: %w", err)
	}
	return name, nil
}

// RestoreActive returns a view of the active preset. This is the entry point
// for consumers that want "the current settings" at startup.
func (r *Registry) RestoreActive() (*View, error) {
	name, err := r.ActiveName()
	if err != nil {
		return nil, err
	}
	return r.Preset(name), nil
}

// SetActive persists v's preset as the active one.
func (r *Registry) SetActive(v *View) error {
	if v == nil {
		return errors.New("nil preset view")
	}
	if err := kv.NewEditor(r.store).Put(activeKey, kv.String(v.name)).Commit(); err != nil {
		return fmt.Errorf("saving active preset %q: %w", v.name, err)
	}
	return nil
}

// OnActiveChanged registers fn to run whenever the active preset pointer is
// written, with the new active name.
func (r *Registry) OnActiveChanged(fn func(name string)) (cancel func()) {
	return r.hub.watchActive(func() {
		name, err := r.ActiveName()
		if err != nil {
			r.logger.Warn("reading active preset after change", "error", err)
			return
		}
		fn(name)
	})
}

// IsView reports whether s is a preset view rather than a flat store.
func IsView(s settings.Settings) bool {
	_, ok := s.(*View)
	return ok
}
