package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kalambet/prefsets/internal/config"
	"github.com/kalambet/prefsets/internal/kv"
	"github.com/kalambet/prefsets/internal/preset"
	"github.com/kalambet/prefsets/internal/settings"
	"github.com/kalambet/prefsets/internal/storage"
	"github.com/kalambet/prefsets/internal/storage/yamlstore"
)

// backend is an opened store with the registry on top of it.
type backend struct {
	registry *preset.Registry
	location string

	// stats is set for SQLite stores only.
	stats func() (storage.Stats, error)
	// watch is set for file stores that can follow external edits.
	watch func(ctx context.Context) error
	close func() error
}

// openBackend opens the store selected by cfg.Storage. Tests replace it.
var openBackend = func(cfg config.Config, logger *slog.Logger) (*backend, error) {
	enc, err := settings.ParseSetEncoding(cfg.Storage.SetEncoding)
	if err != nil {
		return nil, err
	}

	b := &backend{close: func() error { return nil }}
	var store kv.Store
	switch cfg.Storage.Backend {
	case "sqlite":
		s, err := storage.Open(cfg.Storage.DataDir, cfg.Storage.Name)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		store = s
		b.location = filepath.Join(cfg.Storage.DataDir, cfg.Storage.Name+".db")
		b.stats = s.Stats
		b.close = s.Close
	case "yaml":
		s, err := yamlstore.Open(cfg.Storage.DataDir, cfg.Storage.Name, logger)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		store = s
		b.location = s.Path()
		b.watch = s.Watch
	case "memory":
		store = kv.NewMemory()
		b.location = "memory"
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	reg, err := preset.New(store, preset.WithSetEncoding(enc), preset.WithLogger(logger))
	if err != nil {
		b.close()
		return nil, err
	}
	b.registry = reg
	return b, nil
}

// loadConfig is config.Load; tests replace it.
var loadConfig = config.Load

// withRegistry loads the configuration, opens the store, runs fn and closes
// the store again.
func withRegistry(fn func(reg *preset.Registry) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Backend == "memory" {
		printWarning("storage.backend is memory: changes are lost when this command exits")
	}
	b, err := openBackend(cfg, cliLogger())
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			printWarning("closing storage: %v", err)
		}
	}()
	return fn(b.registry)
}

// cliLogger keeps one-shot commands quiet unless something goes wrong.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
