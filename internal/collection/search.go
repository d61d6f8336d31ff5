package collection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/aprobridge/internal/apperr"
	"github.com/starford/aprobridge/internal/parser"
)

// FindNotes runs a search query and returns matching note ids in id order.
//
// Supported syntax: whitespace-separated terms are ANDed, double quotes group
// words, a leading '-' negates a term, '*' is a wildcard, and the prefixes
// deck:, tag:, note: and nid: restrict by deck (including subdecks), tag,
// note type name and note id list. Bare text matches any field. An empty
// query or a lone '*' matches every note.
func (db *DB) FindNotes(query string) ([]int64, error) {
	var (
		conds []string
		args  []any
	)
	for _, t := range parser.ParseQuery(query) {
		cond, a, err := termSQL(t)
		if err != nil {
			return nil, err
		}
		if cond == "" {
			continue
		}
		if t.Negate {
			cond = "NOT (" + cond + ")"
		}
		conds = append(conds, cond)
		args = append(args, a...)
	}

	q := `SELECT n.id FROM notes n JOIN models m ON m.id = n.mid`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY n.id`

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("collection: find notes: %w", err)
	}
	defer rows.Close()
	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func termSQL(t parser.Term) (string, []any, error) {
	switch t.Key {
	case "deck":
		if t.Value == "*" {
			return "", nil, nil
		}
		p := likePattern(t.Value)
		return `EXISTS (SELECT 1 FROM cards c JOIN decks d ON d.id = c.did
			WHERE c.nid = n.id AND (d.name LIKE ? ESCAPE '\' OR d.name LIKE ? ESCAPE '\'))`,
			[]any{p, p + "::%"}, nil
	case "tag":
		p := likePattern(t.Value)
		return `(n.tags LIKE ? ESCAPE '\' OR n.tags LIKE ? ESCAPE '\')`,
			[]any{"% " + p + " %", "% " + p + "::%"}, nil
	case "note":
		return `m.name LIKE ? ESCAPE '\'`, []any{likePattern(t.Value)}, nil
	case "nid":
		var (
			marks []string
			args  []any
		)
		for _, raw := range strings.Split(t.Value, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return "", nil, apperr.Validation("invalid note id in search: %q", raw)
			}
			marks = append(marks, "?")
			args = append(args, id)
		}
		return `n.id IN (` + strings.Join(marks, ",") + `)`, args, nil
	default:
		if t.Value == "*" {
			return "", nil, nil
		}
		return `n.flds LIKE ? ESCAPE '\'`, []any{"%" + likePattern(t.Value) + "%"}, nil
	}
}

// likePattern escapes LIKE metacharacters and turns '*' into '%'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `%`)
	return r.Replace(s)
}
