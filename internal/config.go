package internal

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/aprobridge/internal/mainthread"
	"github.com/starford/aprobridge/internal/models"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Collection CollectionConfig  `yaml:"collection"`
	Executor   ExecutorConfig    `yaml:"executor"`
	Media      MediaConfig       `yaml:"media"`
	Events     EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Collection.Validate(); err != nil {
		return err
	}
	return c.Executor.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP listener configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP listener address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CollectionConfig locates the collection database and media directory.
type CollectionConfig struct {
	Path      string           `yaml:"path"`
	MediaDir  string           `yaml:"media_dir"`
	NoteTypes []NoteTypeConfig `yaml:"note_types"`
}

// Validate validates the collection configuration.
func (c *CollectionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.MediaDir, validation.Required),
		validation.Field(&c.NoteTypes),
	)
}

// NoteTypeConfig is an extra note type seeded at startup.
type NoteTypeConfig struct {
	Name      string            `yaml:"name"`
	Cloze     bool              `yaml:"cloze"`
	Fields    []string          `yaml:"fields"`
	Templates []models.Template `yaml:"templates"`
	CSS       string            `yaml:"css"`
}

// Validate validates one note type.
func (c NoteTypeConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Fields, validation.Required),
		validation.Field(&c.Templates, validation.Required),
	)
}

// Model converts the configuration into a note type.
func (c NoteTypeConfig) Model() models.Model {
	m := models.Model{
		Name:      c.Name,
		Type:      models.ModelStandard,
		Fields:    c.Fields,
		Templates: c.Templates,
		CSS:       c.CSS,
	}
	if c.Cloze {
		m.Type = models.ModelCloze
	}
	return m
}

// ExecutorConfig tunes the main-thread executor.
type ExecutorConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// Validate validates the executor configuration.
func (c *ExecutorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.QueueSize, validation.Min(0)),
	)
}

// MediaConfig controls media directory syncing.
type MediaConfig struct {
	Watch bool `yaml:"watch"`
}

// EventsConfig controls the server-sent event stream.
type EventsConfig struct {
	ChangeThrottle time.Duration `yaml:"change_throttle"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Host: "localhost",
				Port: 8767,
			},
		},
		Collection: CollectionConfig{
			Path:     "./collection.db",
			MediaDir: "./collection.media",
		},
		Executor: ExecutorConfig{
			QueueSize: mainthread.DefaultQueueSize,
		},
		Media: MediaConfig{
			Watch: true,
		},
		Events: EventsConfig{
			ChangeThrottle: 2 * time.Second,
		},
	}
}
