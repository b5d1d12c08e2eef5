package preset

import (
	"sync"

	"github.com/kalambet/prefsets/internal/kv"
)

// hub holds the registry's single raw subscription to the store and routes
// raw keys to the views listening on the matching prefix.
type hub struct {
	store kv.Store

	mu       sync.Mutex
	cancel   func()
	views    map[string]map[*View]struct{} // prefix -> listening views
	activeID uint64
	active   map[uint64]func()
}

func newHub(store kv.Store) *hub {
	return &hub{
		store:  store,
		views:  make(map[string]map[*View]struct{}),
		active: make(map[uint64]func()),
	}
}

func (h *hub) attach(v *View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.views[v.prefix]
	if !ok {
		set = make(map[*View]struct{})
		h.views[v.prefix] = set
	}
	set[v] = struct{}{}
	h.subscribeLocked()
}

func (h *hub) detach(v *View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.views[v.prefix]; ok {
		delete(set, v)
		if len(set) == 0 {
			delete(h.views, v.prefix)
		}
	}
	h.unsubscribeIdleLocked()
}

func (h *hub) watchActive(fn func()) (cancel func()) {
	h.mu.Lock()
	h.activeID++
	id := h.activeID
	h.active[id] = fn
	h.subscribeLocked()
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.active, id)
			h.unsubscribeIdleLocked()
			h.mu.Unlock()
		})
	}
}

func (h *hub) subscribeLocked() {
	if h.cancel == nil {
		h.cancel = h.store.Subscribe(h.dispatch)
	}
}

func (h *hub) unsubscribeIdleLocked() {
	if h.cancel != nil && len(h.views) == 0 && len(h.active) == 0 {
		h.cancel()
		h.cancel = nil
	}
}

// dispatch routes one raw key. A preset prefix is "_NAME_", so every "_"
// after the first byte ends a candidate prefix; each candidate is a direct
// map lookup.
func (h *hub) dispatch(raw string) {
	if raw == activeKey {
		h.mu.Lock()
		fns := make([]func(), 0, len(h.active))
		for _, fn := range h.active {
			fns = append(fns, fn)
		}
		h.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
		return
	}
	if len(raw) == 0 || raw[0] != '_' {
		return
	}

	type target struct {
		view *View
		key  string
	}
	var targets []target

	h.mu.Lock()
	for i := 1; i < len(raw); i++ {
		if raw[i] != '_' {
			continue
		}
		prefix := raw[:i+1]
		for v := range h.views[prefix] {
			targets = append(targets, target{view: v, key: raw[len(prefix):]})
		}
	}
	h.mu.Unlock()

	for _, t := range targets {
		t.view.notify(t.key)
	}
}
