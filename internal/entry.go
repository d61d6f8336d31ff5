// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/aprobridge/internal/api"
	"github.com/starford/aprobridge/internal/collection"
	"github.com/starford/aprobridge/internal/mainthread"
	"github.com/starford/aprobridge/internal/mcpserver"
	"github.com/starford/aprobridge/internal/mediasync"
	"github.com/starford/aprobridge/internal/noteservice"
	"github.com/starford/aprobridge/internal/notify"
	"github.com/starford/aprobridge/internal/server"
	"github.com/starford/aprobridge/internal/sse"
	"github.com/starford/aprobridge/internal/storage"
)

// runtime bundles the host-side resources shared by the HTTP bridge and the
// MCP server.
type runtime struct {
	logger *slog.Logger
	store  *storage.FS
	db     *collection.DB
	exec   *mainthread.Executor
}

// open prepares the media directory, the collection and the main-thread
// executor. The caller must call close.
func open(app *application) (*runtime, error) {
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
		slog.String("collection_path", cfg.Collection.Path),
		slog.String("media_dir", cfg.Collection.MediaDir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Collection.MediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	if dir := filepath.Dir(cfg.Collection.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create collection dir: %w", err)
		}
	}

	store, err := storage.NewFS(cfg.Collection.MediaDir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := collection.Open(cfg.Collection.Path, store)
	if err != nil {
		return nil, fmt.Errorf("init collection: %w", err)
	}
	for _, nt := range cfg.Collection.NoteTypes {
		if err := db.AddModel(nt.Model()); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed note type: %w", err)
		}
	}

	exec := mainthread.New(cfg.Executor.QueueSize, logger)

	// Initial media sync runs on the executor like every other write.
	if err := mediasync.Sync(exec, db, store, logger); err != nil {
		logger.Warn("initial media sync failed", slog.String("error", err.Error()))
	}

	return &runtime{logger: logger, store: store, db: db, exec: exec}, nil
}

// close stops the executor before the database so no queued call outlives
// the connection.
func (rt *runtime) close() {
	rt.exec.Close()
	if err := rt.db.Close(); err != nil {
		rt.logger.Error("collection close error", slog.String("error", err.Error()))
	}
}

// Run starts the HTTP bridge with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(os.Stdout, opts)
	rt, err := open(app)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := app.config
	logger := rt.logger

	// SSE broker carries notifications and change events.
	broker := sse.NewBroker(cfg.Events.ChangeThrottle)
	defer broker.Close()

	svc := noteservice.NewService(rt.exec, rt.db, notify.NewBroker(broker, logger), logger)
	bridgeRouter := api.NewRouter(svc, api.RouterOptions{
		Events: broker,
		Media:  rt.store,
		Logger: logger,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/", bridgeRouter)

	srv := server.New(cfg.App.HTTP.Address(), r, logger)
	// Open event streams never finish on their own; end them as shutdown starts.
	srv.OnShutdown(broker.Close)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	if err := srv.Start(); err != nil {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	logger.Info("Bridge listening", slog.String("address", srv.BoundAddr()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Media.Watch {
		g.Go(func() error {
			err := mediasync.Watch(gCtx, rt.exec, rt.db, rt.store, logger, func(kind, name string) {
				broker.TryPublish(sse.Event{Type: "media." + kind, Data: map[string]string{"filename": name}})
			})
			if err != nil {
				logger.Warn("media watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := srv.Wait(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
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
		if err := srv.Stop(shutdownCtx); err != nil {
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

// errShutdown cancels the group once the server has been stopped so the
// watcher and the wait loop exit too.
var errShutdown = errors.New("shutdown")

// RunMCP serves the bridge operations as MCP tools over stdio.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(os.Stderr, opts)
	rt, err := open(app)
	if err != nil {
		return err
	}
	defer rt.close()

	// No event stream in stdio mode; notifications only reach the log.
	svc := noteservice.NewService(rt.exec, rt.db, notify.NewLogger(rt.logger), rt.logger)
	srv := mcpserver.New(svc, app.version, rt.logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
