// Package settings defines the read/write/listen contract settings consumers
// program against, the string-set encoding strategies, and Flat, the plain
// view over a physical store.
package settings

import "github.com/kalambet/prefsets/internal/kv"

// Settings is what a settings consumer sees. A preset view and a flat store
// view are interchangeable behind it.
type Settings interface {
	GetString(key, def string) (string, error)
	GetInt(key string, def int) (int, error)
	GetLong(key string, def int64) (int64, error)
	GetFloat(key string, def float32) (float32, error)
	GetBool(key string, def bool) (bool, error)
	GetStringSet(key string, def []string) ([]string, error)

	// All returns every entry visible under this view, keyed by logical key.
	All() (map[string]kv.Value, error)
	Contains(key string) (bool, error)

	Edit() Editor

	// Listen registers fn for changes of logical keys and returns a func
	// that removes it.
	Listen(fn ChangeFunc) (cancel func())
}

// ChangeFunc is called with the view that changed and the logical key.
type ChangeFunc func(s Settings, key string)

// Editor buffers writes until Commit or Apply.
type Editor interface {
	PutString(key, value string) Editor
	PutInt(key string, value int) Editor
	PutLong(key string, value int64) Editor
	PutFloat(key string, value float32) Editor
	PutBool(key string, value bool) Editor
	PutStringSet(key string, values []string) Editor
	// Put writes a value of any kind.
	Put(key string, value kv.Value) Editor
	Remove(key string) Editor
	Clear() Editor

	// Commit writes synchronously.
	Commit() error
	// Apply writes in the background; failures are only logged.
	Apply()
}
