package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/aprobridge/internal/apperr"
	"github.com/starford/aprobridge/internal/noteservice"
)

// Response envelope types (aliased from the domain layer).
type (
	NoteInfo    = noteservice.NoteInfo
	ModelFields = noteservice.ModelFields
	Summary     = noteservice.Summary
)

// envelope is the standard success body.
type envelope struct {
	Result any     `json:"result"`
	Error  *string `json:"error"`
}

func ok(result any) envelope { return envelope{Result: result} }

// DeleteRequest is the DELETE body.
type DeleteRequest struct {
	NoteID *int64 `json:"noteId" example:"1700000000000"`
}

func (r DeleteRequest) Validate() error {
	return validate(r.NoteID, validation.Required.Error("Request was missing required field 'noteId'."))
}

// PatchNote is the note object of a PATCH body.
type PatchNote struct {
	ID     *int64          `json:"id" example:"1700000000000"`
	Fields json.RawMessage `json:"fields,omitempty" swaggertype:"object"`
}

// PatchRequest is the PATCH body. The note may sit at the top level or
// under params.
type PatchRequest struct {
	Note   *PatchNote `json:"note"`
	Params *struct {
		Note *PatchNote `json:"note"`
	} `json:"params,omitempty"`
}

// Target returns the note object to patch.
func (r PatchRequest) Target() *PatchNote {
	if r.Note != nil {
		return r.Note
	}
	if r.Params != nil {
		return r.Params.Note
	}
	return nil
}

func (r PatchRequest) Validate() error {
	note := r.Target()
	if err := validate(note, validation.NotNil.Error("Request 'note' structure or 'params.note' structure missing.")); err != nil {
		return err
	}
	return validate(note.ID, validation.Required.Error("Request was missing required field 'id' within 'note'."))
}

// FieldValues decodes the fields object. It returns nil when no fields
// were sent.
func (n *PatchNote) FieldValues() (map[string]string, error) {
	raw := bytes.TrimSpace(n.Fields)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var m map[string]any
	if raw[0] != '{' || json.Unmarshal(raw, &m) != nil {
		return nil, apperr.Validation("'fields' must be an object/dictionary.")
	}
	return stringValues(m), nil
}

// MediaRequest is the PUT body.
type MediaRequest struct {
	MediaData string  `json:"mediaData" example:"aGVsbG8="`
	Extension *string `json:"extension,omitempty" example:"png"`
}

// Ext returns the requested extension, "unknown" when absent.
func (r MediaRequest) Ext() string {
	if r.Extension == nil {
		return "unknown"
	}
	return *r.Extension
}

// CreateNoteRequest is the legacy POST body that creates a note.
type CreateNoteRequest struct {
	Deck     string          `json:"deck" example:"Default"`
	NoteType string          `json:"noteType" example:"Basic"`
	Fields   map[string]any  `json:"fields"`
	Tags     json.RawMessage `json:"tags,omitempty" swaggertype:"array,string"`
}

// NewNote converts the request. Non-list tags are logged and ignored,
// non-string tags skipped.
func (r CreateNoteRequest) NewNote(logger *slog.Logger) noteservice.NewNote {
	n := noteservice.NewNote{
		Deck:     r.Deck,
		NoteType: r.NoteType,
		Fields:   stringValues(r.Fields),
	}
	if len(r.Fields) == 0 {
		n.Fields = nil
	}
	if len(bytes.TrimSpace(r.Tags)) == 0 {
		return n
	}
	var tags []any
	if err := json.Unmarshal(r.Tags, &tags); err != nil {
		logger.Warn("'tags' field was not a list, ignored", slog.String("deck", r.Deck))
		return n
	}
	for _, t := range tags {
		if s, isStr := t.(string); isStr {
			n.Tags = append(n.Tags, s)
		}
	}
	return n
}

// ActionRequest is a POST body carrying an action.
type ActionRequest struct {
	Action  string          `json:"action" example:"notesInfo"`
	Version int             `json:"version,omitempty" example:"6"`
	Params  json.RawMessage `json:"params,omitempty" swaggertype:"object"`
}

// NotesParams is shared by notesInfo, addTags and removeTags.
type NotesParams struct {
	Notes []int64 `json:"notes"`
	Tags  *string `json:"tags,omitempty"`
}

// NoteTagsParams is the params object of updateNoteTags.
type NoteTagsParams struct {
	Note *struct {
		ID   *int64  `json:"id"`
		Tags *string `json:"tags"`
	} `json:"note"`
}

func (p NoteTagsParams) Validate() error {
	if err := validate(p.Note, validation.NotNil.Error("'note' parameter object is required for updateNoteTags.")); err != nil {
		return err
	}
	msg := "'note.id' and 'note.tags' (space-separated string) are required."
	if err := validate(p.Note.ID, validation.NotNil.Error(msg)); err != nil {
		return err
	}
	return validate(p.Note.Tags, validation.NotNil.Error(msg))
}

// FindParams is the params object of findNotes.
type FindParams struct {
	Query *string `json:"query"`
}

func (p FindParams) Validate() error {
	return validate(p.Query, validation.NotNil.Error("'query' parameter (a search string) is required for findNotes."))
}

// decodeParams unmarshals raw into target, reporting any mismatch as a
// validation failure carrying msg.
func decodeParams(raw json.RawMessage, target any, msg string) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return apperr.Validation("%s", msg)
	}
	return nil
}

// validate runs ozzo rules against one value and tags the failure as a
// validation error with the rule's own message.
func validate(value any, rules ...validation.Rule) error {
	if err := validation.Validate(value, rules...); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	return nil
}

func stringValues(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch v := v.(type) {
		case string:
			out[k] = v
		case nil:
			out[k] = ""
		default:
			b, err := json.Marshal(v)
			if err != nil {
				out[k] = fmt.Sprint(v)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
