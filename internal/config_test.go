package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgconfig "github.com/starford/aprobridge/pkg/config"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if got := cfg.App.HTTP.Address(); got != "localhost:8767" {
		t.Errorf("address = %q, want localhost:8767", got)
	}
	if !cfg.Media.Watch {
		t.Error("media watch should default to on")
	}
}

func TestHTTPConfig_InvalidPort(t *testing.T) {
	cfg := HTTPConfig{Host: "localhost", Port: 70000}
	if err := cfg.Validate(); err == nil {
		t.Fatal("port out of range should fail validation")
	}
}

func TestCollectionConfig_RequiresPaths(t *testing.T) {
	cfg := CollectionConfig{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty collection config should fail")
	}
}

func TestNoteTypeConfig(t *testing.T) {
	bad := CollectionConfig{Path: "c.db", MediaDir: "m", NoteTypes: []NoteTypeConfig{{Name: "Vocab"}}}
	if err := bad.Validate(); err == nil {
		t.Fatal("note type without fields or templates should fail")
	}

	nt := NoteTypeConfig{
		Name:   "Vocab Cloze",
		Cloze:  true,
		Fields: []string{"Text"},
	}
	if m := nt.Model(); !m.IsCloze() || m.Name != "Vocab Cloze" {
		t.Errorf("model = %+v", m)
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  log_level: debug
  http:
    port: 9000
collection:
  path: ${APRO_TEST_DIR}/c.db
  note_types:
    - name: Vocab
      fields: [Word, Meaning]
      templates:
        - name: Card 1
          qfmt: "{{Word}}"
          afmt: "{{Meaning}}"
media:
  watch: false
events:
  change_throttle: 500ms
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("APRO_TEST_DIR", "/tmp/apro")

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.HTTP.Address() != "localhost:9000" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
	if cfg.Collection.Path != "/tmp/apro/c.db" {
		t.Errorf("path = %q", cfg.Collection.Path)
	}
	if cfg.Collection.MediaDir != "./collection.media" {
		t.Errorf("media dir default lost: %q", cfg.Collection.MediaDir)
	}
	if len(cfg.Collection.NoteTypes) != 1 || cfg.Collection.NoteTypes[0].Templates[0].QFmt != "{{Word}}" {
		t.Errorf("note types = %+v", cfg.Collection.NoteTypes)
	}
	if cfg.Media.Watch {
		t.Error("media watch should be off")
	}
	if cfg.Events.ChangeThrottle != 500*time.Millisecond {
		t.Errorf("throttle = %v", cfg.Events.ChangeThrottle)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(filepath.Join(t.TempDir(), "absent.yaml"), cfg); err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.App.HTTP.Port != 8767 {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
}
