package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/starford/aprobridge/internal/apperr"
	"github.com/starford/aprobridge/internal/noteservice"
)

const (
	maxBodyBytes  = 10 << 20
	maxMediaBytes = 100 << 20
)

// Handler holds the bridge route handlers.
type Handler struct {
	svc    *noteservice.Service
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// fail logs err, raises a user notification and writes the error body.
func (h *Handler) fail(w http.ResponseWriter, method string, status int, err error) {
	h.logger.Error("bridge request failed",
		slog.String("method", method),
		slog.Int("status", status),
		slog.String("kind", apperr.KindOf(err).String()),
		slog.String("error", err.Error()))
	h.svc.Notifier().Error(fmt.Sprintf("Apro - Bridge Connector Error (%s):\n%s", method, err.Error()))

	body := errorBody(err.Error())
	if method == http.MethodPatch && status == http.StatusNotFound {
		body.Status = "not found"
	}
	writeJSON(w, status, body)
}

// readJSON reads at most limit bytes of body into v.
func readJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apperr.Validation("failed to read body: %v", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return nil
}

// Options handles OPTIONS on any path.
//
//	@Summary		CORS pre-flight
//	@Success		200
//	@Router			/ [options]
func (h *Handler) Options(w http.ResponseWriter, _ *http.Request) {
	setCORSHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// Get handles GET /model-fields and GET on any other path (collection
// summary). Failures are 500.
//
//	@Summary		Collection summary or note type description
//	@Produce		json
//	@Param			modelName	query		string	false	"Note type, for /model-fields"
//	@Success		200			{object}	envelope
//	@Failure		500			{object}	errResponse
//	@Router			/ [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("GET request", slog.String("path", r.URL.Path), slog.String("query", r.URL.RawQuery))

	if r.URL.Path == "/model-fields" {
		mf, err := h.svc.ModelFields(r.Context(), r.URL.Query().Get("modelName"))
		if err != nil {
			h.fail(w, http.MethodGet, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, ok(mf))
		return
	}

	sum, err := h.svc.CollectionSummary(r.Context())
	if err != nil {
		h.fail(w, http.MethodGet, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ok(sum))
}

// Post dispatches on the body's action. A body without an action but with
// a deck key creates a note. Failures are 400.
//
//	@Summary		Run an action or create a note
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ActionRequest	true	"Action with params, or a CreateNoteRequest"
//	@Success		200		{object}	envelope
//	@Failure		400		{object}	errResponse
//	@Router			/ [post]
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := readJSON(w, r, maxBodyBytes, &raw); err != nil {
		h.fail(w, http.MethodPost, http.StatusBadRequest, err)
		return
	}

	result, err := h.dispatch(r, raw)
	if err != nil {
		h.fail(w, http.MethodPost, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, ok(result))
}

func (h *Handler) dispatch(r *http.Request, raw map[string]json.RawMessage) (any, error) {
	var action *string
	if a, present := raw["action"]; present {
		if err := json.Unmarshal(a, &action); err != nil {
			return nil, apperr.Validation("'action' must be a string.")
		}
	}
	params := raw["params"]
	ctx := r.Context()

	if action == nil {
		if _, hasDeck := raw["deck"]; hasDeck {
			return h.createNote(r, raw)
		}
		return nil, apperr.Unsupported("Unsupported action: null")
	}
	h.logger.Debug("POST action", slog.String("action", *action))

	switch *action {
	case "notesInfo":
		msg := "'notes' parameter (a list of note IDs) is required for notesInfo."
		var p NotesParams
		if err := decodeParams(params, &p, msg); err != nil {
			return nil, err
		}
		return h.svc.NotesInfo(ctx, p.Notes)

	case "addTags", "removeTags":
		msg := fmt.Sprintf("'notes' (list of IDs) and 'tags' (space-separated string) are required for %s.", *action)
		var p NotesParams
		if err := decodeParams(params, &p, msg); err != nil {
			return nil, err
		}
		if len(p.Notes) == 0 || p.Tags == nil {
			return nil, apperr.Validation("%s", msg)
		}
		var err error
		if *action == "addTags" {
			_, err = h.svc.AddTags(ctx, p.Notes, *p.Tags)
		} else {
			_, err = h.svc.RemoveTags(ctx, p.Notes, *p.Tags)
		}
		return nil, err

	case "updateNoteTags":
		var p NoteTagsParams
		if err := decodeParams(params, &p, "'note' parameter object is required for updateNoteTags."); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		_, err := h.svc.UpdateNoteTags(ctx, *p.Note.ID, *p.Note.Tags)
		return nil, err

	case "findNotes":
		var p FindParams
		if err := decodeParams(params, &p, "'query' parameter (a search string) is required for findNotes."); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return h.svc.FindNotes(ctx, *p.Query)

	default:
		return nil, apperr.Unsupported("Unsupported action: %s", *action)
	}
}

func (h *Handler) createNote(r *http.Request, raw map[string]json.RawMessage) (any, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var req CreateNoteRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, apperr.Validation("invalid note: %v", err)
	}
	h.logger.Debug("create note", slog.String("deck", req.Deck), slog.String("note_type", req.NoteType))
	return h.svc.CreateNote(r.Context(), req.NewNote(h.logger))
}

// Patch updates note fields. A missing note is 404, other failures 400.
//
//	@Summary		Update note fields
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PatchRequest	true	"Note id and fields"
//	@Success		200		{object}	envelope
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/ [patch]
func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	var req PatchRequest
	if err := readJSON(w, r, maxBodyBytes, &req); err != nil {
		h.fail(w, http.MethodPatch, http.StatusBadRequest, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, http.MethodPatch, http.StatusBadRequest, err)
		return
	}
	note := req.Target()
	fields, err := note.FieldValues()
	if err != nil {
		h.fail(w, http.MethodPatch, http.StatusBadRequest, err)
		return
	}

	if _, err := h.svc.UpdateNoteFields(r.Context(), *note.ID, fields); err != nil {
		status := http.StatusBadRequest
		if apperr.KindOf(err) == apperr.KindNotFound {
			status = http.StatusNotFound
		}
		h.fail(w, http.MethodPatch, status, err)
		return
	}
	writeJSON(w, http.StatusOK, ok(nil))
}

// Delete removes a note. Failures are 400.
//
//	@Summary		Delete a note
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DeleteRequest	true	"Note id"
//	@Success		200		{object}	map[string]string
//	@Failure		400		{object}	errResponse
//	@Router			/ [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := readJSON(w, r, maxBodyBytes, &req); err != nil {
		h.fail(w, http.MethodDelete, http.StatusBadRequest, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, http.MethodDelete, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.DeleteNote(r.Context(), *req.NoteID); err != nil {
		h.fail(w, http.MethodDelete, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// Put stores a base64 media payload and returns the stored file name.
// Failures are 500.
//
//	@Summary		Store media
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MediaRequest	true	"Base64 payload and extension"
//	@Success		200		{object}	envelope
//	@Failure		500		{object}	errResponse
//	@Router			/ [put]
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	var req MediaRequest
	if err := readJSON(w, r, maxMediaBytes, &req); err != nil {
		h.fail(w, http.MethodPut, http.StatusInternalServerError, err)
		return
	}
	h.logger.Debug("PUT media", slog.String("extension", req.Ext()), slog.String("preview", preview(req.MediaData)))

	name, err := h.svc.WriteMediaBase64(r.Context(), req.MediaData, req.Ext())
	if err != nil {
		h.fail(w, http.MethodPut, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ok(name))
}

func preview(s string) string {
	if s == "" {
		return "None"
	}
	if len(s) > 30 {
		return s[:30] + "..."
	}
	return s
}
