// Package storage defines the media directory abstraction.
package storage

import "time"

// MediaFile describes one file in the media directory.
type MediaFile struct {
	Name      string
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for media file operations. Names are plain file
// names; the media directory is flat.
type Provider interface {
	// List returns every media file (temp and hidden files excluded).
	List() ([]MediaFile, error)
	// Read returns the raw bytes of name.
	Read(name string) ([]byte, error)
	// Write atomically writes content to name.
	Write(name string, content []byte) error
	// Delete removes name.
	Delete(name string) error
	// Root returns the absolute media directory.
	Root() string
}
