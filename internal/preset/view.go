package preset

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kalambet/prefsets/internal/kv"
	"github.com/kalambet/prefsets/internal/settings"
)

// View reads and writes one preset. It implements settings.Settings, so it
// can stand in wherever a flat settings store is expected.
//
// Views are cheap and not cached; several views of the same preset may
// coexist, each with its own listeners.
type View struct {
	registry *Registry
	name     string
	prefix   string

	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]settings.ChangeFunc
}

var _ settings.Settings = (*View)(nil)

// Name returns the preset name.
func (v *View) Name() string { return v.name }

// Prefix returns the storage prefix of the preset.
func (v *View) Prefix() string { return v.prefix }

// IsDefault reports whether v reads the DEFAULT prefix, in which case there is
// nothing to fall back to.
func (v *View) IsDefault() bool { return v.prefix == DefaultPrefix }

func (v *View) store() kv.Store { return v.registry.store }

// get resolves key through the own prefix, then DEFAULT, then def. DEFAULT
// is only read when the preset has no value of its own, so an override
// never depends on what DEFAULT holds.
func get[T any](v *View, key string, def T, read func(s kv.Store, key string, def T) (T, error)) (T, error) {
	own := v.prefix + key
	if !v.IsDefault() {
		_, ok, err := v.store().Get(own)
		if err != nil {
			var zero T
			return zero, fmt.Errorf("reading %q: %w", own, err)
		}
		if !ok {
			return read(v.store(), DefaultPrefix+key, def)
		}
	}
	return read(v.store(), own, def)
}

func (v *View) GetString(key, def string) (string, error) {
	return get(v, key, def, settings.GetString)
}

func (v *View) GetInt(key string, def int) (int, error) {
	return get(v, key, def, settings.GetInt)
}

func (v *View) GetLong(key string, def int64) (int64, error) {
	return get(v, key, def, settings.GetLong)
}

func (v *View) GetFloat(key string, def float32) (float32, error) {
	return get(v, key, def, settings.GetFloat)
}

func (v *View) GetBool(key string, def bool) (bool, error) {
	return get(v, key, def, settings.GetBool)
}

func (v *View) GetStringSet(key string, def []string) ([]string, error) {
	return get(v, key, def, v.registry.sets.GetStringSet)
}

// Resolved is the outcome of an untyped lookup.
type Resolved struct {
	Value     kv.Value
	Found     bool
	Inherited bool // value came from DEFAULT
}

// Resolve looks key up with the same fallback as the typed getters, without
// requiring the caller to know the value's kind.
func (v *View) Resolve(key string) (Resolved, error) {
	val, ok, err := v.store().Get(v.prefix + key)
	if err != nil {
		return Resolved{}, fmt.Errorf("reading %q: %w", key, err)
	}
	if ok {
		return Resolved{Value: val, Found: true}, nil
	}
	if v.IsDefault() {
		return Resolved{}, nil
	}
	val, ok, err = v.store().Get(DefaultPrefix + key)
	if err != nil {
		return Resolved{}, fmt.Errorf("reading default %q: %w", key, err)
	}
	if !ok {
		return Resolved{}, nil
	}
	return Resolved{Value: val, Found: true, Inherited: true}, nil
}

// All returns the entries stored under this preset's own prefix. Keys are
// logical keys with the prefix stripped, not the physical keys of the
// store; Flat().All() gives those. Values inherited from DEFAULT are not
// included; see Effective for the merged view.
func (v *View) All() (map[string]kv.Value, error) {
	raw, err := v.store().All()
	if err != nil {
		return nil, fmt.Errorf("listing preset %q: %w", v.name, err)
	}
	out := make(map[string]kv.Value)
	for k, val := range raw {
		if strings.HasPrefix(k, v.prefix) {
			out[k[len(v.prefix):]] = val
		}
	}
	return out, nil
}

// Contains reports whether key resolves to a value, own or inherited.
func (v *View) Contains(key string) (bool, error) {
	_, ok, err := v.store().Get(v.prefix + key)
	if err != nil || ok || v.IsDefault() {
		return ok, err
	}
	_, ok, err = v.store().Get(DefaultPrefix + key)
	return ok, err
}

// Edit returns an editor that writes under this preset's prefix.
func (v *View) Edit() settings.Editor {
	return v.edit()
}

func (v *View) edit() *Editor {
	return &Editor{view: v, raw: kv.NewEditor(v.store())}
}

// SaveAsActive makes this preset the registry's active preset.
func (v *View) SaveAsActive() error {
	return v.registry.SetActive(v)
}

// Listen registers fn for changes to keys under this preset's own prefix.
// Changes to DEFAULT values are not reported here, even when they change what
// this view resolves; listen on the DEFAULT view for those.
func (v *View) Listen(fn settings.ChangeFunc) (cancel func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.listeners == nil {
		v.listeners = make(map[uint64]settings.ChangeFunc)
	}
	v.nextID++
	id := v.nextID
	v.listeners[id] = fn
	if len(v.listeners) == 1 {
		v.registry.hub.attach(v)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.listeners, id)
			if len(v.listeners) == 0 {
				v.registry.hub.detach(v)
			}
		})
	}
}

func (v *View) notify(key string) {
	v.mu.Lock()
	fns := make([]settings.ChangeFunc, 0, len(v.listeners))
	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(v, key)
	}
}

// Effective returns what v resolves for every key: DEFAULT's entries
// overlaid with the preset's own.
func Effective(v *View) (map[string]kv.Value, error) {
	own, err := v.All()
	if err != nil || v.IsDefault() {
		return own, err
	}
	merged, err := v.registry.Default().All()
	if err != nil {
		return nil, err
	}
	for k, val := range own {
		merged[k] = val
	}
	return merged, nil
}
