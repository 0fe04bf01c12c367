// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/memo/internal/api"
	"github.com/starford/memo/internal/index"
	"github.com/starford/memo/internal/mcpserver"
	"github.com/starford/memo/internal/memo"
	"github.com/starford/memo/internal/models"
	"github.com/starford/memo/internal/sse"
	"github.com/starford/memo/internal/storage"
)

// Backend bundles the repository with the substrates it owns.
type Backend struct {
	Repo  *memo.Repository
	Store *storage.FS
	DB    *index.DB
}

// Close releases the index connection.
func (b *Backend) Close() error {
	return b.DB.Close()
}

// OpenBackend opens the index and wires a repository over the documents
// directory. The directory itself is created lazily on the first write.
func OpenBackend(cfg *Config, logger *slog.Logger, opts ...memo.Option) (*Backend, error) {
	store, err := storage.NewFS(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	opts = append([]memo.Option{
		memo.WithLogger(logger),
		memo.WithMessages(cfg.Messages.Messages()),
	}, opts...)
	repo, err := memo.NewRepository(cfg.Storage.RepositoryConfig(), store, db, opts...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init repository: %w", err)
	}
	return &Backend{Repo: repo, Store: store, DB: db}, nil
}

// NewLogger builds the JSON logger used by every entry point.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

func setup(opts []Option) (*application, *slog.Logger, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	logger := NewLogger(app.logOutput, app.config.App.LogLevel)
	slog.SetDefault(logger)
	return app, logger, nil
}

// Run starts the HTTP server and the directory watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("documents_dir", cfg.Storage.Dir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	backend, err := OpenBackend(cfg, logger, memo.WithEventCallback(func(kind string, rec models.Record) {
		broker.PublishMemo(sse.RecordEvent(kind, rec))
	}))
	if err != nil {
		return err
	}
	defer backend.Close()

	// The watcher needs the directory; creation failures surface again on Create.
	watchDir := backend.Repo.Dir()
	if err := backend.Store.EnsureDir(watchDir); err != nil {
		logger.Warn("documents dir unavailable", slog.String("dir", watchDir), slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(backend.Repo, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if err := backend.DB.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"index unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := index.Watch(gCtx, backend.DB, backend.Store, watchDir, logger, func(kind string, id int64, path string) {
			broker.PublishMemo(sse.DriftEvent(kind, id, path))
		})
		if err != nil {
			logger.Warn("watcher disabled", slog.String("error", err.Error()))
		}
		return nil
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
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

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the memo tools over stdio until the client disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}

	backend, err := OpenBackend(app.config, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	logger.Info("MCP server starting", slog.String("documents_dir", backend.Repo.Dir()))
	return mcpserver.New(backend.Repo, app.version).ServeStdio()
}
