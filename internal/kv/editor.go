package kv

import (
	"log/slog"
	"sync"
)

// Editor buffers edits against a Store until Commit or Apply.
// The last edit of a key wins.
type Editor struct {
	store Store

	mu      sync.Mutex
	clear   bool
	pending map[string]Mutation
}

// NewEditor returns an empty editor for s.
func NewEditor(s Store) *Editor {
	return &Editor{store: s, pending: make(map[string]Mutation)}
}

// Put buffers a write of v under key.
func (e *Editor) Put(key string, v Value) *Editor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[key] = Mutation{Value: v}
	return e
}

// Remove buffers a delete of key.
func (e *Editor) Remove(key string) *Editor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[key] = Mutation{Delete: true}
	return e
}

// Clear marks the whole store for removal. Like the platform editors it
// mirrors, the clear runs before any buffered put, whatever the call order.
func (e *Editor) Clear() *Editor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clear = true
	return e
}

// Commit writes the buffered edits synchronously and resets the editor.
func (e *Editor) Commit() error {
	cs := e.take()
	if cs.Empty() {
		return nil
	}
	return e.store.Commit(cs)
}

// Apply commits in the background. Failures are logged and otherwise lost.
func (e *Editor) Apply() {
	cs := e.take()
	if cs.Empty() {
		return
	}
	go func() {
		if err := e.store.Commit(cs); err != nil {
			slog.Warn("async commit failed", "keys", len(cs.Mutations), "error", err)
		}
	}()
}

func (e *Editor) take() ChangeSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	cs := ChangeSet{Clear: e.clear, Mutations: e.pending}
	e.clear = false
	e.pending = make(map[string]Mutation)
	return cs
}
