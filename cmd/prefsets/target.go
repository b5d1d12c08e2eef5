package main

import (
	"context"
	"fmt"

	"github.com/kalambet/prefsets/internal/kv"
	"github.com/kalambet/prefsets/internal/preset"
)

// mutator applies changes either through a running server, so its watchers
// see them, or straight to the store when no server is up.
type mutator interface {
	addPreset(ctx context.Context, name string) error
	removePreset(ctx context.Context, name string) error
	setActive(ctx context.Context, name string) error
	putSetting(ctx context.Context, name, key string, val kv.Value) error
	deleteSetting(ctx context.Context, name, key string) error
}

var _ mutator = (*apiClient)(nil)

type localMutator struct {
	reg *preset.Registry
}

func (m localMutator) known(name string) (*preset.View, error) {
	ok, err := m.reg.Has(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("preset %q not found", name)
	}
	return m.reg.Preset(name), nil
}

func (m localMutator) addPreset(_ context.Context, name string) error {
	return m.reg.Add(name)
}

func (m localMutator) removePreset(_ context.Context, name string) error {
	if _, err := m.known(name); err != nil {
		return err
	}
	return m.reg.Remove(name)
}

func (m localMutator) setActive(_ context.Context, name string) error {
	v, err := m.known(name)
	if err != nil {
		return err
	}
	return v.SaveAsActive()
}

func (m localMutator) putSetting(_ context.Context, name, key string, val kv.Value) error {
	v, err := m.known(name)
	if err != nil {
		return err
	}
	return v.Edit().Put(key, val).Commit()
}

func (m localMutator) deleteSetting(_ context.Context, name, key string) error {
	v, err := m.known(name)
	if err != nil {
		return err
	}
	return v.Edit().Remove(key).Commit()
}

// mutate runs fn against the running server if there is one, and against
// the local store otherwise. An empty preset name resolves to the active
// preset of whichever side is used.
func mutate(ctx context.Context, fn func(m mutator, active string) error) error {
	if client, err := newAPIClient(); err == nil && client.healthy(ctx) {
		list, err := client.presets(ctx)
		if err != nil {
			return err
		}
		return fn(client, list.Active)
	}
	return withRegistry(func(reg *preset.Registry) error {
		active, err := reg.ActiveName()
		if err != nil {
			return err
		}
		return fn(localMutator{reg: reg}, active)
	})
}
