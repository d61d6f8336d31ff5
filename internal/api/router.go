package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/aprobridge/internal/noteservice"
	"github.com/starford/aprobridge/internal/observability"
	"github.com/starford/aprobridge/internal/storage"
)

// RouterOptions carries the optional operational handlers.
type RouterOptions struct {
	// Events, if non-nil, is mounted at GET /_bridge/events.
	Events http.Handler
	// Media, if non-nil, is served at /_bridge/media.
	Media  storage.Provider
	Logger *slog.Logger
}

// clientCounter is implemented by event handlers that track subscribers.
type clientCounter interface {
	ClientCount() int
}

// NewRouter creates a chi router with all bridge routes mounted. Any path
// not under /_bridge reaches the method's bridge handler.
func NewRouter(svc *noteservice.Service, opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := NewHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(CORSMiddleware())
	r.Use(observability.Middleware)

	// Operational endpoints.
	r.Get("/_bridge/health", func(w http.ResponseWriter, _ *http.Request) {
		health := map[string]any{"status": "ok"}
		if c, ok := opts.Events.(clientCounter); ok {
			health["eventClients"] = c.ClientCount()
		}
		writeJSON(w, http.StatusOK, health)
	})
	r.Handle("/_bridge/metrics", observability.Handler())
	if opts.Events != nil {
		r.Get("/_bridge/events", opts.Events.ServeHTTP)
	}
	if opts.Media != nil {
		mh := NewMediaHandler(svc, opts.Media)
		r.Get("/_bridge/media/{filename}", mh.ServeFile)
		r.Post("/_bridge/media", mh.Upload)
	}

	// Bridge routes: dispatch is by method (and action), not by path.
	for _, pattern := range []string{"/", "/*"} {
		r.Options(pattern, h.Options)
		r.Get(pattern, h.Get)
		r.Post(pattern, h.Post)
		r.Put(pattern, h.Put)
		r.Patch(pattern, h.Patch)
		r.Delete(pattern, h.Delete)
	}

	return r
}
