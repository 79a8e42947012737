// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/quire/internal/api"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/mcpserver"
	"github.com/starford/quire/internal/sse"
	"github.com/starford/quire/internal/storage"
	"github.com/starford/quire/internal/workspace"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.FS
	db     *index.DB
}

func (rt *runtime) close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close index failed", slog.String("error", err.Error()))
	}
}

// setup builds the logger, storage and index. The caller must close it.
func setup(opts ...Option) (*runtime, error) {
	app := &application{logOut: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_path", cfg.Workspace.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Workspace.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Workspace.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	return &runtime{cfg: cfg, logger: logger, store: store, db: db}, nil
}

// workspace loads every page into a new workspace service.
func (rt *runtime) loadWorkspace(ctx context.Context, sink workspace.EventSink) (*workspace.Service, error) {
	opts := []workspace.Option{
		workspace.WithLogger(rt.logger),
		workspace.WithPlaceholders(rt.cfg.Editor.Placeholders),
		workspace.WithRecoverOnLoad(rt.cfg.Editor.RecoverOnLoad),
	}
	if sink != nil {
		opts = append(opts, workspace.WithEventSink(sink))
	}
	ws := workspace.New(rt.store, rt.db, opts...)
	if err := ws.Load(ctx); err != nil {
		ws.Close()
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	return ws, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts...)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg, logger := rt.cfg, rt.logger

	broker := sse.NewBroker(cfg.Editor.EventThrottle)
	defer broker.Close()

	ws, err := rt.loadWorkspace(ctx, broker)
	if err != nil {
		return err
	}
	defer ws.Close()

	apiRouter := api.NewRouter(ws, rt.db, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Pages edited outside the editor are reindexed, pushed to browsers
	// and reloaded into the workspace.
	g.Go(func() error {
		return index.Watch(gCtx, rt.db, rt.store, cfg.Workspace.Path, logger, func(kind, file string) {
			broker.FileEvent(kind, file)
			if kind == "deleted" {
				return
			}
			if _, err := ws.Reload(gCtx, file); err != nil {
				logger.Warn("reload failed", slog.String("file", file), slog.String("error", err.Error()))
			}
		})
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if n, err := ws.SaveAll(shutdownCtx); err != nil {
			logger.Error("save on shutdown failed", slog.String("error", err.Error()))
		} else {
			logger.Info("Pages saved", slog.Int("count", n))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the server has stopped so the
// watcher exits too.
var errShutdown = errors.New("shutdown")

// ServeMCP serves the workspace to an MCP client over stdin/stdout.
// Logs must not be written to stdout in this mode.
func ServeMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...)...)
	if err != nil {
		return err
	}
	defer rt.close()

	ws, err := rt.loadWorkspace(ctx, nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	rt.logger.Info("Serving MCP on stdio")
	if err := mcpserver.New(ws, rt.db).ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// Migrate restyles every page with StyleRecovery and saves the result.
func Migrate(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts...)
	if err != nil {
		return err
	}
	defer rt.close()

	ws, err := rt.loadWorkspace(ctx, nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	n, err := ws.Recover(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	rt.logger.Info("Migration finished", slog.Int("changed", n))
	return nil
}
