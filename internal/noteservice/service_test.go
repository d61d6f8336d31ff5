package noteservice

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/aprobridge/internal/apperr"
	"github.com/starford/aprobridge/internal/collection"
	"github.com/starford/aprobridge/internal/models"
	"github.com/starford/aprobridge/internal/notify"
	"github.com/starford/aprobridge/internal/testutil"
)

// countingCollection counts UpdateNote calls.
type countingCollection struct {
	collection.Collection
	updates atomic.Int32
}

func (c *countingCollection) UpdateNote(n *models.Note) error {
	c.updates.Add(1)
	return c.Collection.UpdateNote(n)
}

type fixture struct {
	svc *Service
	col *countingCollection
	rec *notify.Recorder
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, _ := testutil.TestCollection(t)
	col := &countingCollection{Collection: db}
	rec := &notify.Recorder{}
	return fixture{
		svc: NewService(testutil.TestExecutor(t), col, rec, nil),
		col: col,
		rec: rec,
	}
}

func (f fixture) create(t *testing.T, front string, tags ...string) int64 {
	t.Helper()
	id, err := f.svc.CreateNote(context.Background(), NewNote{
		Deck:     "Lang::Spanish",
		NoteType: "Basic",
		Fields:   map[string]string{"Front": front, "Back": "back of " + front},
		Tags:     tags,
	})
	require.NoError(t, err)
	return id
}

func TestCreateThenNotesInfoRoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.svc.CreateNote(ctx, NewNote{
		Deck:     "Lang::Spanish",
		NoteType: "Basic",
		Fields:   map[string]string{"Front": "hola", "Back": "hello", "Extra": "ignored"},
		Tags:     []string{" vocab ", "es"},
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	infos, err := f.svc.NotesInfo(ctx, []int64{id})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	info := infos[0]
	require.NotNil(t, info)
	assert.Equal(t, id, info.NoteID)
	assert.Equal(t, "Basic", info.ModelName)
	assert.ElementsMatch(t, []string{"vocab", "es"}, info.Tags)
	assert.Equal(t, map[string]FieldInfo{
		"Front": {Value: "hola", Order: 0},
		"Back":  {Value: "hello", Order: 1},
	}, info.Fields)
	assert.Len(t, info.Cards, 1)

	sum, err := f.svc.CollectionSummary(ctx)
	require.NoError(t, err)
	assert.Contains(t, sum.Decks, "Lang::Spanish")
	assert.Contains(t, sum.Decks, "Lang")
	assert.Equal(t, []notify.Change{{Kind: "added", NoteIDs: []int64{id}}}, f.rec.Changes())
}

func TestCreateNoteValidation(t *testing.T) {
	f := setup(t)
	_, err := f.svc.CreateNote(context.Background(), NewNote{Deck: "D", NoteType: "Basic"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "Request was missing required fields (deck, noteType, or fields).", err.Error())

	_, err = f.svc.CreateNote(context.Background(), NewNote{Deck: "D", NoteType: "Nope", Fields: map[string]string{"a": "b"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestNotesInfoPreservesHoles(t *testing.T) {
	f := setup(t)
	a := f.create(t, "a")
	b := f.create(t, "b")

	infos, err := f.svc.NotesInfo(context.Background(), []int64{a, 404, b, 405})
	require.NoError(t, err)
	require.Len(t, infos, 4)
	assert.Equal(t, a, infos[0].NoteID)
	assert.Nil(t, infos[1])
	assert.Equal(t, b, infos[2].NoteID)
	assert.Nil(t, infos[3])

	_, err = f.svc.NotesInfo(context.Background(), nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAddTagsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.create(t, "a", "old")
	b := f.create(t, "b")

	rep, err := f.svc.AddTags(ctx, []int64{a, b, 999}, "x y")
	require.NoError(t, err)
	assert.Equal(t, TagReport{Changed: 2, Processed: 2}, rep)

	rep, err = f.svc.AddTags(ctx, []int64{a, b}, "x y")
	require.NoError(t, err)
	assert.Equal(t, TagReport{Changed: 0, Processed: 2}, rep)
	assert.EqualValues(t, 2, f.col.updates.Load())

	infos, err := f.svc.NotesInfo(ctx, []int64{a})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"old", "x", "y"}, infos[0].Tags)
	assert.Contains(t, f.rec.Infos(), "Apro - Bridge updated tags on 0 of 2 note(s)")
}

func TestRemoveTagsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.create(t, "a", "x", "keep")

	rep, err := f.svc.RemoveTags(ctx, []int64{a}, "x missing")
	require.NoError(t, err)
	assert.Equal(t, TagReport{Changed: 1, Processed: 1}, rep)

	rep, err = f.svc.RemoveTags(ctx, []int64{a}, "x missing")
	require.NoError(t, err)
	assert.Equal(t, TagReport{Changed: 0, Processed: 1}, rep)

	infos, err := f.svc.NotesInfo(ctx, []int64{a})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, infos[0].Tags)
}

func TestEmptyTagStringSkipsExecutor(t *testing.T) {
	f := setup(t)
	rep, err := f.svc.AddTags(context.Background(), []int64{1}, "   ")
	require.NoError(t, err)
	assert.Zero(t, rep)
	assert.Empty(t, f.rec.Infos())
}

func TestUpdateNoteTagsSkipsEqualSet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.create(t, "a", "one", "two")

	saved, err := f.svc.UpdateNoteTags(ctx, a, "two one two")
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Zero(t, f.col.updates.Load())

	for range 3 {
		saved, err = f.svc.UpdateNoteTags(ctx, a, "one One two TWO")
		require.NoError(t, err)
		assert.False(t, saved, "tags equal after case-insensitive dedupe")
	}
	assert.Zero(t, f.col.updates.Load())

	saved, err = f.svc.UpdateNoteTags(ctx, a, "One two")
	require.NoError(t, err)
	assert.True(t, saved, "case change is saved")
	assert.EqualValues(t, 1, f.col.updates.Load())

	infos, err := f.svc.NotesInfo(ctx, []int64{a})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"One", "two"}, infos[0].Tags)

	saved, err = f.svc.UpdateNoteTags(ctx, a, "three")
	require.NoError(t, err)
	assert.True(t, saved)
	assert.EqualValues(t, 2, f.col.updates.Load())

	_, err = f.svc.UpdateNoteTags(ctx, 12345, "x")
	require.Error(t, err)
	assert.Equal(t, "Note 12345 not found during updateNoteTags.", err.Error())
}

func TestUpdateNoteFields(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.create(t, "a")

	changed, err := f.svc.UpdateNoteFields(ctx, a, nil)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.svc.UpdateNoteFields(ctx, a, map[string]string{"Front": "a", "Bogus": "x"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Zero(t, f.col.updates.Load())

	changed, err = f.svc.UpdateNoteFields(ctx, a, map[string]string{"Back": "new"})
	require.NoError(t, err)
	assert.True(t, changed)

	infos, err := f.svc.NotesInfo(ctx, []int64{a})
	require.NoError(t, err)
	assert.Equal(t, "new", infos[0].Fields["Back"].Value)

	_, err = f.svc.UpdateNoteFields(ctx, 777, map[string]string{"Back": "x"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDeleteNote(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.create(t, "a")

	require.NoError(t, f.svc.DeleteNote(ctx, a))
	infos, err := f.svc.NotesInfo(ctx, []int64{a})
	require.NoError(t, err)
	assert.Nil(t, infos[0])
	assert.Contains(t, f.rec.Infos(), "Apro - Bridge note "+itoa(a)+" deleted")
}

func TestFindNotes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.create(t, "apple", "fruit")
	f.create(t, "carrot", "veg")

	ids, err := f.svc.FindNotes(ctx, "tag:fruit")
	require.NoError(t, err)
	assert.Equal(t, []int64{a}, ids)

	ids, err = f.svc.FindNotes(ctx, "tag:nothing")
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestWriteMediaContentAddressed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	name1, err := f.svc.WriteMediaBase64(ctx, "aGVsbG8=", "txt")
	require.NoError(t, err)
	name2, err := f.svc.WriteMediaBase64(ctx, "aGVsbG8", "txt")
	require.NoError(t, err)

	assert.Equal(t, "apro-bridge-aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d.txt", name1)
	assert.Equal(t, name1, name2)

	name3, err := f.svc.WriteMediaBase64(ctx, "aGVsbG8=", "")
	require.NoError(t, err)
	assert.Equal(t, "apro-bridge-aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d.unknown", name3)

	_, err = f.svc.WriteMediaBase64(ctx, "", "png")
	assert.Equal(t, "Missing 'mediaData' field.", err.Error())
	_, err = f.svc.WriteMediaBase64(ctx, "!!!", "png")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestModelFields(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	mf, err := f.svc.ModelFields(ctx, "Cloze")
	require.NoError(t, err)
	assert.True(t, mf.IsCloze)
	require.NotNil(t, mf.ClozeFieldName)
	assert.Equal(t, "Text", *mf.ClozeFieldName)
	assert.Contains(t, mf.Front, "{{cloze:Text}}")

	mf, err = f.svc.ModelFields(ctx, "Basic")
	require.NoError(t, err)
	assert.False(t, mf.IsCloze)
	assert.Nil(t, mf.ClozeFieldName)
	assert.Equal(t, []string{"Front", "Back"}, mf.Fields)

	_, err = f.svc.ModelFields(ctx, "Missing")
	require.Error(t, err)
	assert.Equal(t, "Model 'Missing' not found", err.Error())

	_, err = f.svc.ModelFields(ctx, "")
	assert.Equal(t, "modelName parameter is required", err.Error())
}

func TestConcurrentTagUpdatesNeverTear(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.create(t, "a")

	sets := []string{"a1 a2 a3 a4", "b1 b2 b3 b4"}
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UpdateNoteTags(ctx, a, sets[i%2])
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	infos, err := f.svc.NotesInfo(ctx, []int64{a})
	require.NoError(t, err)
	got := infos[0].Tags
	if !assert.Len(t, got, 4) {
		return
	}
	prefix := got[0][:1]
	for _, tag := range got {
		assert.Equal(t, prefix, tag[:1], "torn tag set %v", got)
	}
}

func TestMediaName(t *testing.T) {
	assert.Equal(t, MediaPrefix+"da39a3ee5e6b4b0d3255bfef95601890afd80709.mp3", MediaName(nil, ".mp3"))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
