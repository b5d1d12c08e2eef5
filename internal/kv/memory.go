package kv

import "sync"

// Memory is an in-process Store. It backs tests and the "memory" storage
// backend.
type Memory struct {
	Broadcaster

	mu   sync.RWMutex
	data map[string]Value
	sets bool
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithoutStringSets makes the store scalar-only, forcing callers onto the
// JSON string-set encoding.
func WithoutStringSets() MemoryOption {
	return func(m *Memory) { m.sets = false }
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{data: make(map[string]Value), sets: true}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Memory) Get(key string) (Value, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) All() (map[string]Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Value, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SupportsStringSets() bool { return m.sets }

func (m *Memory) Commit(cs ChangeSet) error {
	if err := CheckKinds(m, cs); err != nil {
		return err
	}

	m.mu.Lock()
	var cleared []string
	if cs.Clear {
		for k := range m.data {
			cleared = append(cleared, k)
		}
		m.data = make(map[string]Value)
	}
	for key, mut := range cs.Mutations {
		if mut.Delete {
			delete(m.data, key)
			continue
		}
		m.data[key] = mut.Value
	}
	m.mu.Unlock()

	m.Notify(cs.Touched(cleared)...)
	return nil
}
