package internal

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/aprobridge/internal/models"
)

func TestOpenSeedsNoteTypesAndMedia(t *testing.T) {
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Collection.Path = filepath.Join(dir, "db", "collection.db")
	cfg.Collection.MediaDir = filepath.Join(dir, "media")
	cfg.Collection.NoteTypes = []NoteTypeConfig{{
		Name:      "Vocabulary",
		Fields:    []string{"Word", "Meaning"},
		Templates: []models.Template{{Name: "Card 1", QFmt: "{{Word}}", AFmt: "{{Meaning}}"}},
	}}

	if err := os.MkdirAll(cfg.Collection.MediaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Collection.MediaDir, "a.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	rt, err := open(newApplication(io.Discard, []Option{WithConfig(cfg)}))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.close()

	m, err := rt.db.ModelByName("Vocabulary")
	if err != nil {
		t.Fatalf("model lookup: %v", err)
	}
	if len(m.Fields) != 2 {
		t.Errorf("fields = %v", m.Fields)
	}

	sums, err := rt.db.MediaChecksums()
	if err != nil {
		t.Fatalf("checksums: %v", err)
	}
	if _, ok := sums["a.png"]; !ok {
		t.Errorf("initial sync should register a.png, got %v", sums)
	}
}

func TestOpenRequiresConfig(t *testing.T) {
	if _, err := open(newApplication(io.Discard, nil)); err == nil {
		t.Fatal("open without config should fail")
	}
}
