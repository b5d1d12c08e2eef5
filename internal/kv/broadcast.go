package kv

import "sync"

// Broadcaster fans raw change events out to subscribers. Store
// implementations embed it to provide Subscribe.
type Broadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]Listener
}

// Subscribe registers fn and returns a func that removes it.
func (b *Broadcaster) Subscribe(fn Listener) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[uint64]Listener)
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Notify delivers each key, in order, to every subscriber on the calling
// goroutine. Subscribers may (un)subscribe from inside a callback.
func (b *Broadcaster) Notify(keys ...string) {
	b.mu.Lock()
	fns := make([]Listener, 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, key := range keys {
		for _, fn := range fns {
			fn(key)
		}
	}
}
