package settings

import (
	"github.com/kalambet/prefsets/internal/kv"
)

// Flat exposes a physical store as Settings with no key rewriting.
type Flat struct {
	store kv.Store
	sets  SetCodec
}

// NewFlat wraps store. sets decides how string sets are encoded.
func NewFlat(store kv.Store, sets SetCodec) *Flat {
	return &Flat{store: store, sets: sets}
}

func (f *Flat) GetString(key, def string) (string, error) { return GetString(f.store, key, def) }
func (f *Flat) GetInt(key string, def int) (int, error) { return GetInt(f.store, key, def) }
func (f *Flat) GetLong(key string, def int64) (int64, error) {
	return GetLong(f.store, key, def)
}
func (f *Flat) GetFloat(key string, def float32) (float32, error) {
	return GetFloat(f.store, key, def)
}
func (f *Flat) GetBool(key string, def bool) (bool, error) { return GetBool(f.store, key, def) }

func (f *Flat) GetStringSet(key string, def []string) ([]string, error) {
	return f.sets.GetStringSet(f.store, key, def)
}

func (f *Flat) All() (map[string]kv.Value, error) { return f.store.All() }

func (f *Flat) Contains(key string) (bool, error) {
	_, ok, err := f.store.Get(key)
	return ok, err
}

func (f *Flat) Edit() Editor {
	return &flatEditor{sets: f.sets, raw: kv.NewEditor(f.store)}
}

func (f *Flat) Listen(fn ChangeFunc) (cancel func()) {
	return f.store.Subscribe(func(key string) { fn(f, key) })
}

type flatEditor struct {
	sets SetCodec
	raw  *kv.Editor
}

func (e *flatEditor) PutString(key, value string) Editor { return e.Put(key, kv.String(value)) }
func (e *flatEditor) PutInt(key string, value int) Editor { return e.Put(key, kv.Int(value)) }
func (e *flatEditor) PutLong(key string, value int64) Editor { return e.Put(key, kv.Long(value)) }
func (e *flatEditor) PutFloat(key string, value float32) Editor {
	return e.Put(key, kv.Float(value))
}
func (e *flatEditor) PutBool(key string, value bool) Editor { return e.Put(key, kv.Bool(value)) }

func (e *flatEditor) PutStringSet(key string, values []string) Editor {
	e.sets.PutStringSet(e.raw, key, values)
	return e
}

func (e *flatEditor) Put(key string, value kv.Value) Editor {
	if value.Kind == kv.KindStringSet {
		return e.PutStringSet(key, value.Set)
	}
	e.raw.Put(key, value)
	return e
}

func (e *flatEditor) Remove(key string) Editor {
	e.raw.Remove(key)
	return e
}

func (e *flatEditor) Clear() Editor {
	e.raw.Clear()
	return e
}

func (e *flatEditor) Commit() error { return e.raw.Commit() }
func (e *flatEditor) Apply() { e.raw.Apply() }
