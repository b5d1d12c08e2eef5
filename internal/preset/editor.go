package preset

import (
	"fmt"
	"strings"

	"github.com/kalambet/prefsets/internal/kv"
	"github.com/kalambet/prefsets/internal/settings"
)

// Editor buffers writes to one preset. Every key is written under the
// preset's own prefix; nothing is ever written through to DEFAULT.
type Editor struct {
	view *View
	raw  *kv.Editor
	err  error
}

var _ settings.Editor = (*Editor)(nil)

func (e *Editor) key(k string) string { return e.view.prefix + k }

func (e *Editor) PutString(key, value string) settings.Editor {
	return e.Put(key, kv.String(value))
}

func (e *Editor) PutInt(key string, value int) settings.Editor {
	return e.Put(key, kv.Int(value))
}

func (e *Editor) PutLong(key string, value int64) settings.Editor {
	return e.Put(key, kv.Long(value))
}

func (e *Editor) PutFloat(key string, value float32) settings.Editor {
	return e.Put(key, kv.Float(value))
}

func (e *Editor) PutBool(key string, value bool) settings.Editor {
	return e.Put(key, kv.Bool(value))
}

func (e *Editor) PutStringSet(key string, values []string) settings.Editor {
	e.view.registry.sets.PutStringSet(e.raw, e.key(key), values)
	return e
}

func (e *Editor) Put(key string, value kv.Value) settings.Editor {
	if value.Kind == kv.KindStringSet {
		return e.PutStringSet(key, value.Set)
	}
	e.raw.Put(e.key(key), value)
	return e
}

// Remove drops this preset's override of key. A DEFAULT value for the same
// key is left alone and will be resolved afterwards.
func (e *Editor) Remove(key string) settings.Editor {
	e.raw.Remove(e.key(key))
	return e
}

// Clear buffers the removal of every key currently stored under this
// preset's prefix. Keys written by others between Clear and Commit survive.
func (e *Editor) Clear() settings.Editor {
	all, err := e.view.store().All()
	if err != nil {
		if e.err == nil {
			e.err = fmt.Errorf("listing keys of preset %q: %w", e.view.name, err)
		}
		return e
	}
	for k := range all {
		if strings.HasPrefix(k, e.view.prefix) {
			e.raw.Remove(k)
		}
	}
	return e
}

// Commit writes the buffered edits. An error recorded by Clear is returned
// instead, and nothing is written.
func (e *Editor) Commit() error {
	if e.err != nil {
		err := e.err
		e.reset()
		return err
	}
	return e.raw.Commit()
}

// Apply writes in the background. An error recorded by Clear is logged and
// nothing is written.
func (e *Editor) Apply() {
	if e.err != nil {
		e.view.registry.logger.Warn("dropping preset edit", "preset", e.view.name, "error", e.err)
		e.reset()
		return
	}
	e.raw.Apply()
}

func (e *Editor) reset() {
	e.err = nil
	e.raw = kv.NewEditor(e.view.store())
}
