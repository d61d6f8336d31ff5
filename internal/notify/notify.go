// Package notify raises user-visible notifications. Every call is
// fire-and-forget: it never blocks and never reports failure.
package notify

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/starford/aprobridge/internal/sse"
)

// Notifier receives success, failure and change notifications.
type Notifier interface {
	Info(msg string)
	Error(msg string)
	Changed(kind string, noteIDs ...int64)
}

// Publisher is the subset of *sse.Broker a Notifier needs.
type Publisher interface {
	TryPublish(ev sse.Event) bool
	PublishChange(kind string, noteIDs ...int64)
}

// Broker publishes notifications as SSE events and logs them.
type Broker struct {
	pub    Publisher
	logger *slog.Logger
}

// NewBroker wraps pub. A nil logger falls back to slog.Default().
func NewBroker(pub Publisher, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{pub: pub, logger: logger}
}

func (b *Broker) Info(msg string) {
	b.logger.Info("notify", slog.String("message", msg))
	if !b.pub.TryPublish(sse.Event{Type: "notify.info", Data: message{msg}}) {
		b.logger.Debug("notify: event dropped", slog.String("message", msg))
	}
}

func (b *Broker) Error(msg string) {
	b.logger.Error("notify", slog.String("error", msg))
	if !b.pub.TryPublish(sse.Event{Type: "notify.error", Data: message{msg}}) {
		b.logger.Debug("notify: event dropped", slog.String("error", msg))
	}
}

func (b *Broker) Changed(kind string, noteIDs ...int64) {
	b.pub.PublishChange(kind, noteIDs...)
}

type message struct {
	Message string `json:"message"`
}

// Logger writes notifications to the log only.
type Logger struct {
	logger *slog.Logger
}

// NewLogger returns a log-only Notifier.
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

func (l *Logger) Info(msg string)  { l.logger.Info("notify", slog.String("message", msg)) }
func (l *Logger) Error(msg string) { l.logger.Error("notify", slog.String("error", msg)) }

func (l *Logger) Changed(kind string, noteIDs ...int64) {
	l.logger.Debug("collection changed", slog.String("kind", kind), slog.Any("note_ids", noteIDs))
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Info(string)              {}
func (Discard) Error(string)             {}
func (Discard) Changed(string, ...int64) {}

// Recorder keeps notifications in memory. It is meant for tests and is
// safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	infos   []string
	errors  []string
	changes []Change
}

// Change is one recorded Changed call.
type Change struct {
	Kind    string
	NoteIDs []int64
}

func (r *Recorder) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, msg)
}

func (r *Recorder) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *Recorder) Changed(kind string, noteIDs ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, Change{Kind: kind, NoteIDs: slices.Clone(noteIDs)})
}

// Infos returns a copy of the recorded info messages.
func (r *Recorder) Infos() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.infos)
}

// Errors returns a copy of the recorded error messages.
func (r *Recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.errors)
}

// Changes returns a copy of the recorded change events.
func (r *Recorder) Changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.changes)
}
