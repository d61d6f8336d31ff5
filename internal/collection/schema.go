// Package collection provides the SQLite-backed flashcard collection: notes,
// cards, decks, note types and the media index.
package collection

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/aprobridge/internal/models"
	"github.com/starford/aprobridge/internal/storage"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS models (
	id    INTEGER PRIMARY KEY,
	name  TEXT NOT NULL UNIQUE,
	type  INTEGER NOT NULL DEFAULT 0,
	flds  TEXT NOT NULL DEFAULT '[]',
	tmpls TEXT NOT NULL DEFAULT '[]',
	css   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS decks (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE COLLATE NOCASE
);

CREATE TABLE IF NOT EXISTS notes (
	id   INTEGER PRIMARY KEY,
	guid TEXT NOT NULL UNIQUE,
	mid  INTEGER NOT NULL REFERENCES models(id),
	mod  INTEGER NOT NULL DEFAULT 0,
	tags TEXT NOT NULL DEFAULT '',
	flds TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS cards (
	id  INTEGER PRIMARY KEY,
	nid INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	did INTEGER NOT NULL REFERENCES decks(id),
	ord INTEGER NOT NULL,
	UNIQUE(nid, ord)
);

CREATE TABLE IF NOT EXISTS media (
	fname TEXT PRIMARY KEY,
	csum  TEXT NOT NULL,
	mtime INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_cards_nid ON cards(nid);
CREATE INDEX IF NOT EXISTS idx_cards_did ON cards(did);
CREATE INDEX IF NOT EXISTS idx_notes_mid ON notes(mid);
`

// DefaultDeckID is the deck every collection starts with.
const DefaultDeckID = 1

const defaultCSS = `.card {
    font-family: arial;
    font-size: 20px;
    text-align: center;
    color: black;
    background-color: white;
}
`

// StockModels are seeded into every new collection.
var StockModels = []models.Model{
	{
		Name:   "Basic",
		Type:   models.ModelStandard,
		Fields: []string{"Front", "Back"},
		Templates: []models.Template{
			{Name: "Card 1", QFmt: "{{Front}}", AFmt: "{{FrontSide}}\n\n<hr id=answer>\n\n{{Back}}"},
		},
		CSS: defaultCSS,
	},
	{
		Name:   "Basic (and reversed card)",
		Type:   models.ModelStandard,
		Fields: []string{"Front", "Back"},
		Templates: []models.Template{
			{Name: "Card 1", QFmt: "{{Front}}", AFmt: "{{FrontSide}}\n\n<hr id=answer>\n\n{{Back}}"},
			{Name: "Card 2", QFmt: "{{Back}}", AFmt: "{{FrontSide}}\n\n<hr id=answer>\n\n{{Front}}"},
		},
		CSS: defaultCSS,
	},
	{
		Name:   "Cloze",
		Type:   models.ModelCloze,
		Fields: []string{"Text", "Back Extra"},
		Templates: []models.Template{
			{Name: "Cloze", QFmt: "{{cloze:Text}}", AFmt: "{{cloze:Text}}<br>\n{{Back Extra}}"},
		},
		CSS: defaultCSS + ".cloze {\n    font-weight: bold;\n    color: blue;\n}\n",
	},
}

// DB is the SQLite collection. Media bytes live in the media provider; the
// media table tracks their checksums.
type DB struct {
	conn  *sql.DB
	media storage.Provider
}

// Open opens (or creates) the collection database, applies the schema and
// seeds the default deck and the stock note types.
func Open(dsn string, media storage.Provider) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("collection: open db: %w", err)
	}
	// One connection keeps the single-writer discipline explicit.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("collection: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("collection: apply schema: %w", err)
	}
	if _, err := conn.Exec(`INSERT OR IGNORE INTO decks (id, name) VALUES (?, 'Default')`, DefaultDeckID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("collection: seed default deck: %w", err)
	}
	db := &DB{conn: conn, media: media}
	for i := range StockModels {
		if err := db.AddModel(StockModels[i]); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return db, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// nextID returns a millisecond timestamp id that is unique within table.
func nextID(q querier, table string) (int64, error) {
	var maxID sql.NullInt64
	if err := q.QueryRow(`SELECT max(id) FROM ` + table).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("collection: next %s id: %w", table, err)
	}
	id := time.Now().UnixMilli()
	if maxID.Valid && maxID.Int64 >= id {
		id = maxID.Int64 + 1
	}
	return id, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}
