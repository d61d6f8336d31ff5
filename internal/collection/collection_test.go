package collection

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/aprobridge/internal/apperr"
	"github.com/starford/aprobridge/internal/models"
	"github.com/starford/aprobridge/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "apro-collection-test-*.db")
	require.NoError(t, err)
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	media, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)

	db, err := Open(f.Name(), media)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func addNote(t *testing.T, db *DB, model, deck string, fields map[string]string, tags ...string) *models.Note {
	t.Helper()
	m, err := db.ModelByName(model)
	require.NoError(t, err)
	n := models.NewNote(m)
	for k, v := range fields {
		n.Set(k, v)
	}
	n.SetTags(tags)
	did, err := db.DeckID(deck)
	require.NoError(t, err)
	require.NoError(t, db.AddNote(n, did))
	return n
}

func TestOpenSeeds(t *testing.T) {
	db := testDB(t)

	decks, err := db.DeckNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Default"}, decks)

	names, err := db.ModelNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Basic", "Basic (and reversed card)", "Cloze"}, names)
}

func TestModelByNameMissing(t *testing.T) {
	db := testDB(t)
	_, err := db.ModelByName("Nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeckIDCreatesParents(t *testing.T) {
	db := testDB(t)
	id, err := db.DeckID("Lang::Spanish")
	require.NoError(t, err)

	again, err := db.DeckID("lang::spanish")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	decks, err := db.DeckNames()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Default", "Lang", "Lang::Spanish"}, decks)
}

func TestAddAndLoadNote(t *testing.T) {
	db := testDB(t)
	n := addNote(t, db, "Basic", "Spanish", map[string]string{"Front": "hola", "Back": "hello"}, "vocab", "es")
	require.NotZero(t, n.ID)

	got, err := db.Note(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Basic", got.ModelName)
	assert.Equal(t, []string{"hola", "hello"}, got.Values())
	assert.Equal(t, []string{"vocab", "es"}, got.Tags)

	cards, err := db.CardIDsOfNote(n.ID)
	require.NoError(t, err)
	assert.Len(t, cards, 1)
}

func TestReversedModelMakesTwoCards(t *testing.T) {
	db := testDB(t)
	n := addNote(t, db, "Basic (and reversed card)", "", map[string]string{"Front": "a", "Back": "b"})
	cards, err := db.CardIDsOfNote(n.ID)
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}

func TestClozeCardsFollowOrdinals(t *testing.T) {
	db := testDB(t)
	n := addNote(t, db, "Cloze", "", map[string]string{"Text": "{{c1::Paris}} is in {{c2::France}}"})
	cards, err := db.CardIDsOfNote(n.ID)
	require.NoError(t, err)
	assert.Len(t, cards, 2)

	n.Set("Text", "{{c1::Paris}} is in {{c2::France}}, {{c3::Europe}}")
	require.NoError(t, db.UpdateNote(n))
	cards, err = db.CardIDsOfNote(n.ID)
	require.NoError(t, err)
	assert.Len(t, cards, 3)
}

func TestUniqueIDs(t *testing.T) {
	db := testDB(t)
	a := addNote(t, db, "Basic", "", map[string]string{"Front": "1"})
	b := addNote(t, db, "Basic", "", map[string]string{"Front": "2"})
	assert.NotEqual(t, a.ID, b.ID)
}

func TestUpdateNote(t *testing.T) {
	db := testDB(t)
	n := addNote(t, db, "Basic", "", map[string]string{"Front": "a"})
	n.Set("Back", "b")
	n.AddTag("new")
	require.NoError(t, db.UpdateNote(n))

	got, err := db.Note(n.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Values())
	assert.Equal(t, []string{"new"}, got.Tags)
}

func TestUpdateMissingNote(t *testing.T) {
	db := testDB(t)
	m, _ := db.ModelByName("Basic")
	n := models.NewNote(m)
	n.ID = 42
	assert.ErrorIs(t, db.UpdateNote(n), apperr.ErrNotFound)
}

func TestRemoveNotes(t *testing.T) {
	db := testDB(t)
	n := addNote(t, db, "Basic", "", map[string]string{"Front": "a"})
	require.NoError(t, db.RemoveNotes([]int64{n.ID, 999}))

	_, err := db.Note(n.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	cards, err := db.CardIDsOfNote(n.ID)
	require.NoError(t, err)
	assert.Empty(t, cards)
}
