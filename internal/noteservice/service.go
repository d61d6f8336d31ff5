// Package noteservice implements the bridge operations. Every operation
// runs its collection work on the main-thread executor and waits for it.
package noteservice

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/aprobridge/internal/apperr"
	"github.com/starford/aprobridge/internal/bridge"
	"github.com/starford/aprobridge/internal/checksum"
	"github.com/starford/aprobridge/internal/collection"
	"github.com/starford/aprobridge/internal/models"
	"github.com/starford/aprobridge/internal/notify"
	"github.com/starford/aprobridge/internal/parser"
)

// MediaPrefix starts every file name produced by WriteMedia.
const MediaPrefix = "apro-bridge-"

// NewNote is the input of CreateNote.
type NewNote struct {
	Deck     string
	NoteType string
	Fields   map[string]string
	Tags     []string
}

// Validate checks the required parts of a new note.
func (n NewNote) Validate() error {
	msg := "Request was missing required fields (deck, noteType, or fields)."
	if err := validation.Validate(n.Deck, validation.Required.Error(msg)); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	if err := validation.Validate(n.NoteType, validation.Required.Error(msg)); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	if err := validation.Validate(n.Fields, validation.Required.Error(msg)); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	return nil
}

// FieldInfo is one field of a NoteInfo.
type FieldInfo struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// NoteInfo describes a stored note.
type NoteInfo struct {
	NoteID    int64                `json:"noteId"`
	Tags      []string             `json:"tags"`
	Fields    map[string]FieldInfo `json:"fields"`
	ModelName string               `json:"modelName"`
	Cards     []int64              `json:"cards"`
}

// ModelFields describes a note type.
type ModelFields struct {
	Name           string   `json:"name"`
	Fields         []string `json:"fields"`
	IsCloze        bool     `json:"isCloze"`
	ClozeFieldName *string  `json:"clozeFieldName"`
	Front          string   `json:"Front"`
	Back           string   `json:"Back"`
	CSS            string   `json:"CSS"`
}

// Summary lists every deck and note type.
type Summary struct {
	Decks     []string `json:"decks"`
	NoteTypes []string `json:"noteTypes"`
}

// TagReport counts the notes a tag batch changed out of those it found.
type TagReport struct {
	Changed   int `json:"changed"`
	Processed int `json:"processed"`
}

// Service coordinates the executor, the collection and notifications.
type Service struct {
	exec     bridge.Submitter
	col      collection.Collection
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewService creates a new note service. col must only be used from exec.
func NewService(exec bridge.Submitter, col collection.Collection, notifier notify.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{exec: exec, col: col, notifier: notifier, logger: logger}
}

// Notifier returns the notifier used for success messages.
func (s *Service) Notifier() notify.Notifier { return s.notifier }

func (s *Service) mainLog() *slog.Logger { return s.logger.With(slog.String("thread", "main")) }

// CreateNote adds a note of the named type to the named deck, creating the
// deck if needed. Unknown fields are skipped.
func (s *Service) CreateNote(_ context.Context, in NewNote) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	return bridge.RunAndWait(s.exec, func() (int64, error) {
		log := s.mainLog()
		m, err := s.col.ModelByName(in.NoteType)
		if err != nil {
			return 0, err
		}
		n := models.NewNote(m)
		for _, name := range sortedKeys(in.Fields) {
			if _, ok := n.Set(name, in.Fields[name]); !ok {
				log.Warn("field not in note type, skipped",
					slog.String("field", name), slog.String("note_type", in.NoteType))
			}
		}
		for _, t := range in.Tags {
			n.AddTag(t)
		}
		did, err := s.col.DeckID(in.Deck)
		if err != nil {
			return 0, err
		}
		if err := s.col.AddNote(n, did); err != nil {
			return 0, err
		}
		log.Info("note added", slog.Int64("note_id", n.ID), slog.String("deck", in.Deck))
		s.notifier.Info(fmt.Sprintf("Apro - Bridge note added to %s", in.Deck))
		s.notifier.Changed("added", n.ID)
		return n.ID, nil
	}).Unwrap()
}

// UpdateNoteFields overwrites the given fields of a note where they differ.
// It reports whether anything changed. A nil map is a valid no-op that
// does not touch the collection.
func (s *Service) UpdateNoteFields(_ context.Context, id int64, fields map[string]string) (bool, error) {
	if fields == nil {
		s.logger.Info("no fields supplied, nothing to update", slog.Int64("note_id", id))
		return false, nil
	}
	return bridge.RunAndWait(s.exec, func() (bool, error) {
		log := s.mainLog()
		n, err := s.col.Note(id)
		if err != nil {
			return false, err
		}
		changed := false
		for _, name := range sortedKeys(fields) {
			c, ok := n.Set(name, fields[name])
			if !ok {
				log.Warn("field not in note type, skipped",
					slog.String("field", name), slog.Int64("note_id", id))
				continue
			}
			changed = changed || c
		}
		if !changed {
			s.notifier.Info(fmt.Sprintf("Apro - Bridge note %d fields had no changes", id))
			return false, nil
		}
		if err := s.col.UpdateNote(n); err != nil {
			return false, err
		}
		log.Info("note fields updated", slog.Int64("note_id", id))
		s.notifier.Info(fmt.Sprintf("Apro - Bridge note %d fields updated", id))
		s.notifier.Changed("updated", id)
		return true, nil
	}).Unwrap()
}

// DeleteNote removes a note. Unknown ids are not an error.
func (s *Service) DeleteNote(_ context.Context, id int64) error {
	return bridge.Do(s.exec, func() error {
		if err := s.col.RemoveNotes([]int64{id}); err != nil {
			return err
		}
		s.mainLog().Info("note deleted", slog.Int64("note_id", id))
		s.notifier.Info(fmt.Sprintf("Apro - Bridge note %d deleted", id))
		s.notifier.Changed("deleted", id)
		return nil
	})
}

// NotesInfo returns one entry per requested id, in order, with nil for
// notes that do not exist.
func (s *Service) NotesInfo(_ context.Context, ids []int64) ([]*NoteInfo, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("'notes' parameter (a list of note IDs) is required for notesInfo.")
	}
	return bridge.RunAndWait(s.exec, func() ([]*NoteInfo, error) {
		out := make([]*NoteInfo, len(ids))
		for i, id := range ids {
			n, err := s.col.Note(id)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindNotFound {
					s.mainLog().Debug("note not found", slog.Int64("note_id", id))
					continue
				}
				return nil, err
			}
			cards, err := s.col.CardIDsOfNote(id)
			if err != nil {
				return nil, err
			}
			out[i] = noteInfo(n, cards)
		}
		return out, nil
	}).Unwrap()
}

func noteInfo(n *models.Note, cards []int64) *NoteInfo {
	fields := make(map[string]FieldInfo, len(n.Fields))
	for i, f := range n.Fields {
		fields[f.Name] = FieldInfo{Value: f.Value, Order: i}
	}
	if cards == nil {
		cards = []int64{}
	}
	return &NoteInfo{
		NoteID:    n.ID,
		Tags:      nonNilSlice(n.Tags),
		Fields:    fields,
		ModelName: n.ModelName,
		Cards:     cards,
	}
}

// AddTags adds every tag in the space-separated list to each note.
func (s *Service) AddTags(_ context.Context, ids []int64, tags string) (TagReport, error) {
	return s.editTags(ids, tags, "addTags", (*models.Note).AddTag)
}

// RemoveTags removes every tag in the space-separated list from each note.
func (s *Service) RemoveTags(_ context.Context, ids []int64, tags string) (TagReport, error) {
	return s.editTags(ids, tags, "removeTags", (*models.Note).RemoveTag)
}

// editTags applies edit per tag to each note and saves only the notes it
// changed. Missing notes are skipped.
func (s *Service) editTags(ids []int64, tags, action string, edit func(*models.Note, string) bool) (TagReport, error) {
	if len(ids) == 0 {
		return TagReport{}, apperr.Validation("'notes' (list of IDs) and 'tags' (space-separated string) are required for %s.", action)
	}
	list := parser.SplitTags(tags)
	if len(list) == 0 {
		s.logger.Info("no tags supplied", slog.String("action", action))
		return TagReport{}, nil
	}
	return bridge.RunAndWait(s.exec, func() (TagReport, error) {
		log := s.mainLog()
		var rep TagReport
		var changedIDs []int64
		for _, id := range ids {
			n, err := s.col.Note(id)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindNotFound {
					log.Warn("note not found, skipped", slog.Int64("note_id", id), slog.String("action", action))
					continue
				}
				return rep, err
			}
			changed := false
			for _, t := range list {
				if edit(n, t) {
					changed = true
				}
			}
			if changed {
				if err := s.col.UpdateNote(n); err != nil {
					return rep, err
				}
				rep.Changed++
				changedIDs = append(changedIDs, id)
			}
			rep.Processed++
		}
		log.Info("tags edited", slog.String("action", action),
			slog.Int("changed", rep.Changed), slog.Int("processed", rep.Processed))
		s.notifier.Info(fmt.Sprintf("Apro - Bridge updated tags on %d of %d note(s)", rep.Changed, rep.Processed))
		if len(changedIDs) > 0 {
			s.notifier.Changed("updated", changedIDs...)
		}
		return rep, nil
	}).Unwrap()
}

// UpdateNoteTags replaces a note's tags. When the list, deduplicated the way
// it would be stored, equals the current tags as a set the note is not saved.
// It reports whether it saved.
func (s *Service) UpdateNoteTags(_ context.Context, id int64, tags string) (bool, error) {
	list := parser.SplitTags(tags)
	return bridge.RunAndWait(s.exec, func() (bool, error) {
		n, err := s.col.Note(id)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return false, apperr.NotFound("Note %d not found during updateNoteTags.", id)
			}
			return false, err
		}
		if n.SameTags(list) {
			s.notifier.Info(fmt.Sprintf("Apro - Bridge tags for note %d had no changes", id))
			return false, nil
		}
		n.SetTags(list)
		if err := s.col.UpdateNote(n); err != nil {
			return false, err
		}
		s.mainLog().Info("note tags replaced", slog.Int64("note_id", id), slog.Any("tags", n.Tags))
		s.notifier.Info(fmt.Sprintf("Apro - Bridge tags updated for note %d", id))
		s.notifier.Changed("updated", id)
		return true, nil
	}).Unwrap()
}

// FindNotes runs a collection search and returns the matching note ids.
func (s *Service) FindNotes(_ context.Context, query string) ([]int64, error) {
	return bridge.RunAndWait(s.exec, func() ([]int64, error) {
		ids, err := s.col.FindNotes(query)
		return nonNilSlice(ids), err
	}).Unwrap()
}

// WriteMediaBase64 decodes a padded or unpadded base64 payload and stores it
// with WriteMedia.
func (s *Service) WriteMediaBase64(ctx context.Context, b64, ext string) (string, error) {
	if b64 == "" {
		return "", apperr.Validation("Missing 'mediaData' field.")
	}
	data, err := DecodeBase64(b64)
	if err != nil {
		return "", apperr.Validation("invalid base64 mediaData: %v", err)
	}
	return s.WriteMedia(ctx, data, ext)
}

// WriteMedia stores data under a name derived from its SHA-1 and ext and
// returns the name the collection actually used.
func (s *Service) WriteMedia(_ context.Context, data []byte, ext string) (string, error) {
	name := MediaName(data, ext)
	return bridge.RunAndWait(s.exec, func() (string, error) {
		final, err := s.col.WriteMedia(name, data)
		if err != nil {
			return "", err
		}
		s.mainLog().Info("media written", slog.String("file", final), slog.Int("size", len(data)))
		return final, nil
	}).Unwrap()
}

// MediaName is the content-addressed file name for data.
func MediaName(data []byte, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "unknown"
	}
	return MediaPrefix + checksum.Sum(data) + "." + ext
}

// DecodeBase64 accepts standard base64 with or without padding. Whitespace
// is ignored.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// ModelFields describes the named note type.
func (s *Service) ModelFields(_ context.Context, name string) (*ModelFields, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Validation("modelName parameter is required")
	}
	return bridge.RunAndWait(s.exec, func() (*ModelFields, error) {
		m, err := s.col.ModelByName(name)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return nil, apperr.NotFound("Model '%s' not found", name)
			}
			return nil, err
		}
		out := &ModelFields{
			Name:    m.Name,
			Fields:  nonNilSlice(slices.Clone(m.Fields)),
			IsCloze: m.IsCloze(),
			CSS:     m.CSS,
		}
		if len(m.Templates) > 0 {
			out.Front = m.Templates[0].QFmt
			out.Back = m.Templates[0].AFmt
		}
		if out.IsCloze {
			if f := parser.ClozeField(out.Front, out.Back); f != "" {
				out.ClozeFieldName = &f
			}
		}
		return out, nil
	}).Unwrap()
}

// CollectionSummary returns the sorted deck and note type names.
func (s *Service) CollectionSummary(_ context.Context) (*Summary, error) {
	return bridge.RunAndWait(s.exec, func() (*Summary, error) {
		decks, err := s.col.DeckNames()
		if err != nil {
			return nil, err
		}
		types, err := s.col.ModelNames()
		if err != nil {
			return nil, err
		}
		slices.Sort(decks)
		slices.Sort(types)
		return &Summary{Decks: nonNilSlice(decks), NoteTypes: nonNilSlice(types)}, nil
	}).Unwrap()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
