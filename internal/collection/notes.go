package collection

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/aprobridge/internal/apperr"
	"github.com/starford/aprobridge/internal/models"
	"github.com/starford/aprobridge/internal/parser"
)

// fieldSep separates field values in the notes.flds column.
const fieldSep = "\x1f"

// Note loads a note by id. A missing note is an apperr not-found failure.
func (db *DB) Note(id int64) (*models.Note, error) {
	var (
		n          models.Note
		flds, tags string
		mod        int64
	)
	err := db.conn.QueryRow(`SELECT id, guid, mid, mod, tags, flds FROM notes WHERE id = ?`, id).
		Scan(&n.ID, &n.GUID, &n.ModelID, &mod, &tags, &flds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("Note with ID '%d' not found.", id)
		}
		return nil, fmt.Errorf("collection: load note: %w", err)
	}
	m, err := db.modelByID(db.conn, n.ModelID)
	if err != nil {
		return nil, err
	}
	n.ModelName = m.Name
	n.UpdatedAt = time.UnixMilli(mod)
	n.Tags = splitTags(tags)

	values := strings.Split(flds, fieldSep)
	n.Fields = make([]models.Field, len(m.Fields))
	for i, name := range m.Fields {
		n.Fields[i].Name = name
		if i < len(values) {
			n.Fields[i].Value = values[i]
		}
	}
	return &n, nil
}

// AddNote inserts n into the collection, assigns its id and generates its
// cards in deckID.
func (db *DB) AddNote(n *models.Note, deckID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("collection: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	m, err := db.modelByID(tx, n.ModelID)
	if err != nil {
		return err
	}
	id, err := nextID(tx, "notes")
	if err != nil {
		return err
	}
	now := time.Now()
	if _, err := tx.Exec(`INSERT INTO notes (id, guid, mid, mod, tags, flds) VALUES (?, ?, ?, ?, ?, ?)`,
		id, n.GUID, n.ModelID, now.UnixMilli(), joinTags(n.Tags), strings.Join(n.Values(), fieldSep)); err != nil {
		return fmt.Errorf("collection: insert note: %w", err)
	}
	n.ID = id
	if err := addCards(tx, m, n, deckID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("collection: commit note: %w", err)
	}
	n.UpdatedAt = now
	return nil
}

// UpdateNote persists the fields and tags of an existing note. Cloze notes
// gain cards for newly introduced cloze numbers.
func (db *DB) UpdateNote(n *models.Note) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("collection: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := time.Now()
	res, err := tx.Exec(`UPDATE notes SET flds = ?, tags = ?, mod = ? WHERE id = ?`,
		strings.Join(n.Values(), fieldSep), joinTags(n.Tags), now.UnixMilli(), n.ID)
	if err != nil {
		return fmt.Errorf("collection: update note: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return apperr.NotFound("Note with ID '%d' not found.", n.ID)
	}

	m, err := db.modelByID(tx, n.ModelID)
	if err != nil {
		return err
	}
	if m.IsCloze() {
		var did int64
		err := tx.QueryRow(`SELECT did FROM cards WHERE nid = ? ORDER BY ord LIMIT 1`, n.ID).Scan(&did)
		if errors.Is(err, sql.ErrNoRows) {
			did = DefaultDeckID
		} else if err != nil {
			return fmt.Errorf("collection: lookup card deck: %w", err)
		}
		if err := addCards(tx, m, n, did); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("collection: commit note: %w", err)
	}
	n.UpdatedAt = now
	return nil
}

// RemoveNotes deletes the notes and their cards. Unknown ids are ignored.
func (db *DB) RemoveNotes(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("collection: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM cards WHERE nid = ?`, id); err != nil {
			return fmt.Errorf("collection: delete cards: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("collection: delete note: %w", err)
		}
	}
	return tx.Commit()
}

// CardIDsOfNote returns the card ids generated from a note.
func (db *DB) CardIDsOfNote(id int64) ([]int64, error) {
	rows, err := db.conn.Query(`SELECT id FROM cards WHERE nid = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("collection: card ids: %w", err)
	}
	defer rows.Close()
	out := []int64{}
	for rows.Next() {
		var cid int64
		if err := rows.Scan(&cid); err != nil {
			return nil, err
		}
		out = append(out, cid)
	}
	return out, rows.Err()
}

// addCards inserts any card the note should have but does not yet.
func addCards(tx *sql.Tx, m *models.Model, n *models.Note, deckID int64) error {
	for _, ord := range cardOrdinals(m, n) {
		var exists int
		if err := tx.QueryRow(`SELECT count(*) FROM cards WHERE nid = ? AND ord = ?`, n.ID, ord).Scan(&exists); err != nil {
			return fmt.Errorf("collection: check card: %w", err)
		}
		if exists > 0 {
			continue
		}
		cid, err := nextID(tx, "cards")
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO cards (id, nid, did, ord) VALUES (?, ?, ?, ?)`, cid, n.ID, deckID, ord); err != nil {
			return fmt.Errorf("collection: insert card: %w", err)
		}
	}
	return nil
}

// cardOrdinals lists the zero-based card ordinals a note generates: one per
// template for standard note types, one per cloze number for cloze types.
func cardOrdinals(m *models.Model, n *models.Note) []int {
	if !m.IsCloze() {
		out := make([]int, len(m.Templates))
		for i := range out {
			out[i] = i
		}
		return out
	}
	var text string
	if len(m.Templates) > 0 {
		if name := parser.ClozeField(m.Templates[0].QFmt, m.Templates[0].AFmt); name != "" {
			text, _ = n.Get(name)
		}
	}
	nums := parser.ClozeOrdinals(text)
	if len(nums) == 0 {
		return []int{0}
	}
	out := make([]int, len(nums))
	for i, c := range nums {
		out[i] = c - 1
	}
	return out
}

// joinTags stores tags space-delimited with surrounding spaces so a single
// tag can be matched with LIKE '% tag %'.
func joinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " " + strings.Join(tags, " ") + " "
}

func splitTags(s string) []string {
	out := strings.Fields(s)
	if out == nil {
		return []string{}
	}
	return out
}
