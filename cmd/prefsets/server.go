package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kalambet/prefsets/internal/api"
	"github.com/kalambet/prefsets/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the presets API (foreground)",
	Long: `Serve the presets HTTP API on 127.0.0.1.

With --mcp the presets are also exposed as MCP tools over stdin/stdout.
File-backed stores are reloaded when edited on disk if storage.watch_files
is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and storage status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print changes of a preset as they happen",
	Long: `Print changes of a preset as they happen, until interrupted.

Without --preset the preset active at connect time is watched. Switches of
the active preset are always reported. Requires a running server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("preset")
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		return client.watch(ctx, name, func(ev api.Event) {
			switch ev.Type {
			case "hello":
				printStep("Watching %s", ev.Preset)
			case "active":
				fmt.Fprintf(out, "%s %s\n", colorize(colorCyan, "active"), ev.Preset)
			default:
				fmt.Fprintf(out, "%s %s/%s\n", colorize(colorYellow, ev.Type), ev.Preset, ev.Key)
			}
		})
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
	watchCmd.Flags().String("preset", "", "preset to watch (default: active)")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "prefsets version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if client, err := newAPIClient(); err == nil && client.healthy(context.Background()) {
		printWarning("prefsets is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	token, err := config.GetAPIToken(cfg)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	logger.Info("API bearer token available")

	b, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()

	reg := b.registry
	active, err := reg.ActiveName()
	if err != nil {
		return err
	}
	logger.Info("storage opened",
		"backend", cfg.Storage.Backend,
		"location", b.location,
		"set_encoding", string(reg.SetEncoding()),
		"active", active,
	)
	defer reg.OnActiveChanged(func(name string) {
		logger.Info("active preset changed", "preset", name)
	})()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	srv := &http.Server{
		Handler:           api.NewHandler(api.Deps{Registry: reg, Token: token, Logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", addr, "max_conns", cfg.Server.MaxConns)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if b.watch != nil && cfg.Storage.WatchFiles {
		g.Go(func() error {
			logger.Info("watching settings file", "path", b.location)
			return b.watch(gctx)
		})
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Registry: reg, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			logger.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func showStatus(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	title := cases.Title(language.English)

	running := false
	if client, err := newAPIClient(); err == nil && client.healthy(ctx) {
		running = true
		printStatus("Server", "running on port %d", cfg.Server.Port)
		if list, err := client.presets(ctx); err == nil {
			printStatus("Presets", "%s", strings.Join(list.Presets, ", "))
			printStatus("Active", "%s", list.Active)
		}
	} else {
		printStatus("Server", "stopped")
	}

	printStatus("Backend", "%s", title.String(cfg.Storage.Backend))
	printStatus("Data dir", "%s", cfg.Storage.DataDir)

	// The in-memory backend only exists inside a running server.
	if cfg.Storage.Backend == "memory" {
		return nil
	}
	b, err := openBackend(cfg, cliLogger())
	if err != nil {
		printStatus("Storage", "error: %v", err)
		return nil
	}
	defer b.close()

	printStatus("Location", "%s", b.location)
	printStatus("Set encoding", "%s", b.registry.SetEncoding())
	if !running {
		if names, err := b.registry.Presets(); err == nil {
			printStatus("Presets", "%s", strings.Join(names, ", "))
		}
		if active, err := b.registry.ActiveName(); err == nil {
			printStatus("Active", "%s", active)
		}
	}
	if b.stats != nil {
		st, err := b.stats()
		if err != nil {
			printStatus("Entries", "error: %v", err)
			return nil
		}
		printStatus("Entries", "%d (%d set members)", st.Entries, st.SetMembers)
		if !st.LastUpdate.IsZero() {
			printStatus("Last update", "%s", st.LastUpdate.Local().Format(time.DateTime))
		}
	}
	return nil
}
