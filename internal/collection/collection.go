package collection

import "github.com/starford/aprobridge/internal/models"

// Collection is the host capability the operation handlers depend on.
// Implementations are not safe for concurrent use; every call must come
// from the main-thread executor.
type Collection interface {
	Note(id int64) (*models.Note, error)
	AddNote(n *models.Note, deckID int64) error
	UpdateNote(n *models.Note) error
	RemoveNotes(ids []int64) error
	FindNotes(query string) ([]int64, error)
	CardIDsOfNote(id int64) ([]int64, error)
	DeckNames() ([]string, error)
	DeckID(name string) (int64, error)
	ModelNames() ([]string, error)
	ModelByName(name string) (*models.Model, error)
	WriteMedia(name string, data []byte) (string, error)
}

// MediaIndex is the media bookkeeping used by the media directory sync.
type MediaIndex interface {
	RegisterMedia(name, sum string) error
	ForgetMedia(name string) error
	MediaChecksums() (map[string]string, error)
}

// Verify *DB satisfies both interfaces at compile time.
var (
	_ Collection = (*DB)(nil)
	_ MediaIndex = (*DB)(nil)
)
