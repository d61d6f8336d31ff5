package collection

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/starford/aprobridge/internal/checksum"
)

var unsafeMediaRe = regexp.MustCompile(`[^\p{L}\p{N}._ -]`)

// WriteMedia stores data under name and returns the name actually used.
// Writing identical bytes under an existing name is a no-op; different
// bytes under a taken name are stored as "<stem>-<sha1><ext>" instead.
func (db *DB) WriteMedia(name string, data []byte) (string, error) {
	name = sanitizeMediaName(name)
	sum := checksum.Sum(data)

	existing, err := db.media.Read(name)
	switch {
	case err == nil && checksum.Sum(existing) == sum:
		return name, db.RegisterMedia(name, sum)
	case err == nil:
		ext := filepath.Ext(name)
		name = strings.TrimSuffix(name, ext) + "-" + sum + ext
		if again, rerr := db.media.Read(name); rerr == nil && checksum.Sum(again) == sum {
			return name, db.RegisterMedia(name, sum)
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("collection: check media %s: %w", name, err)
	}

	if err := db.media.Write(name, data); err != nil {
		return "", err
	}
	if err := db.RegisterMedia(name, sum); err != nil {
		return "", err
	}
	return name, nil
}

// RegisterMedia records (or refreshes) a media file's checksum.
func (db *DB) RegisterMedia(name, sum string) error {
	_, err := db.conn.Exec(`
		INSERT INTO media (fname, csum, mtime) VALUES (?, ?, ?)
		ON CONFLICT(fname) DO UPDATE SET csum = excluded.csum, mtime = excluded.mtime
	`, name, sum, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("collection: register media: %w", err)
	}
	return nil
}

// ForgetMedia drops a media file from the index.
func (db *DB) ForgetMedia(name string) error {
	if _, err := db.conn.Exec(`DELETE FROM media WHERE fname = ?`, name); err != nil {
		return fmt.Errorf("collection: forget media: %w", err)
	}
	return nil
}

// MediaChecksums returns every indexed media file with its checksum.
func (db *DB) MediaChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT fname, csum FROM media`)
	if err != nil {
		return nil, fmt.Errorf("collection: media checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, err
		}
		out[name] = sum
	}
	return out, rows.Err()
}

// sanitizeMediaName strips directories and characters that are unsafe in
// file names.
func sanitizeMediaName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeMediaRe.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ". ")
	if name == "" {
		name = "media"
	}
	return name
}
