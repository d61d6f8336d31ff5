package collection

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/aprobridge/internal/apperr"
	"github.com/starford/aprobridge/internal/models"
)

// DeckNames returns every deck name.
func (db *DB) DeckNames() ([]string, error) {
	return db.names(`SELECT name FROM decks ORDER BY name`)
}

// ModelNames returns every note type name.
func (db *DB) ModelNames() ([]string, error) {
	return db.names(`SELECT name FROM models ORDER BY name`)
}

func (db *DB) names(query string) ([]string, error) {
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("collection: list names: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeckID resolves a deck by name, creating it and any missing "::" parents
// when absent. An empty name resolves to the default deck.
func (db *DB) DeckID(name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultDeckID, nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("collection: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	parts := strings.Split(name, "::")
	var id int64
	for i := range parts {
		id, err = ensureDeck(tx, strings.Join(parts[:i+1], "::"))
		if err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("collection: commit deck: %w", err)
	}
	return id, nil
}

func ensureDeck(tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM decks WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("collection: lookup deck: %w", err)
	}
	id, err = nextID(tx, "decks")
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`INSERT INTO decks (id, name) VALUES (?, ?)`, id, name); err != nil {
		return 0, fmt.Errorf("collection: insert deck: %w", err)
	}
	return id, nil
}

// ModelByName returns the note type, or an apperr not-found failure.
func (db *DB) ModelByName(name string) (*models.Model, error) {
	return scanModel(db.conn.QueryRow(`SELECT id, name, type, flds, tmpls, css FROM models WHERE name = ?`, name), name)
}

func (db *DB) modelByID(q querier, id int64) (*models.Model, error) {
	return scanModel(q.QueryRow(`SELECT id, name, type, flds, tmpls, css FROM models WHERE id = ?`, id), fmt.Sprint(id))
}

func scanModel(row *sql.Row, key string) (*models.Model, error) {
	var (
		m           models.Model
		flds, tmpls string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Type, &flds, &tmpls, &m.CSS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("Note Type '%s' not found", key)
		}
		return nil, fmt.Errorf("collection: load model: %w", err)
	}
	if err := json.Unmarshal([]byte(flds), &m.Fields); err != nil {
		return nil, fmt.Errorf("collection: decode model fields: %w", err)
	}
	if err := json.Unmarshal([]byte(tmpls), &m.Templates); err != nil {
		return nil, fmt.Errorf("collection: decode model templates: %w", err)
	}
	return &m, nil
}

// AddModel inserts a note type unless one with the same name exists.
func (db *DB) AddModel(m models.Model) error {
	if strings.TrimSpace(m.Name) == "" || len(m.Fields) == 0 || len(m.Templates) == 0 {
		return fmt.Errorf("collection: note type %q needs a name, fields and templates", m.Name)
	}
	flds, _ := json.Marshal(m.Fields)
	tmpls, _ := json.Marshal(m.Templates)
	id, err := nextID(db.conn, "models")
	if err != nil {
		return err
	}
	if _, err := db.conn.Exec(`INSERT OR IGNORE INTO models (id, name, type, flds, tmpls, css) VALUES (?, ?, ?, ?, ?, ?)`,
		id, m.Name, m.Type, string(flds), string(tmpls), m.CSS); err != nil {
		return fmt.Errorf("collection: add model %q: %w", m.Name, err)
	}
	return nil
}
