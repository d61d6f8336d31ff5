// Package models defines the collection's domain types.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Model types.
const (
	ModelStandard = 0
	ModelCloze    = 1
)

// Template is one card template of a note type.
type Template struct {
	Name string `json:"name" yaml:"name"`
	QFmt string `json:"qfmt" yaml:"qfmt"`
	AFmt string `json:"afmt" yaml:"afmt"`
}

// Model is a note type: ordered field names, card templates and CSS.
type Model struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Type      int        `json:"type"`
	Fields    []string   `json:"fields"`
	Templates []Template `json:"templates"`
	CSS       string     `json:"css"`
}

// IsCloze reports whether the model uses cloze deletions.
func (m *Model) IsCloze() bool { return m.Type == ModelCloze }

// FieldIndex returns the position of name, or -1.
func (m *Model) FieldIndex(name string) int {
	for i, f := range m.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// Deck is a named container cards are filed into.
type Deck struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Field is one named value of a note, in model order.
type Field struct {
	Name  string
	Value string
}

// Note is a flashcard content record bound to a model.
type Note struct {
	ID        int64
	GUID      string
	ModelID   int64
	ModelName string
	Fields    []Field
	Tags      []string
	UpdatedAt time.Time
}

// NewNote returns an unsaved note with empty values for every model field.
func NewNote(m *Model) *Note {
	fields := make([]Field, len(m.Fields))
	for i, name := range m.Fields {
		fields[i] = Field{Name: name}
	}
	return &Note{
		GUID:      uuid.NewString(),
		ModelID:   m.ID,
		ModelName: m.Name,
		Fields:    fields,
		Tags:      []string{},
	}
}

// Has reports whether the note's model defines the field.
func (n *Note) Has(name string) bool {
	_, ok := n.Get(name)
	return ok
}

// Get returns the field value.
func (n *Note) Get(name string) (string, bool) {
	for _, f := range n.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Set assigns value to the named field. ok is false when the model has no
// such field; changed is false when the value was already equal.
func (n *Note) Set(name, value string) (changed, ok bool) {
	for i := range n.Fields {
		if n.Fields[i].Name != name {
			continue
		}
		if n.Fields[i].Value == value {
			return false, true
		}
		n.Fields[i].Value = value
		return true, true
	}
	return false, false
}

// Values returns the field values in model order.
func (n *Note) Values() []string {
	out := make([]string, len(n.Fields))
	for i, f := range n.Fields {
		out[i] = f.Value
	}
	return out
}

// HasTag reports whether tag is present, ignoring case.
func (n *Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// AddTag appends tag unless already present. Returns true if added.
func (n *Note) AddTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || n.HasTag(tag) {
		return false
	}
	n.Tags = append(n.Tags, tag)
	return true
}

// RemoveTag drops every case-insensitive match of tag. Returns true if
// anything was removed.
func (n *Note) RemoveTag(tag string) bool {
	kept := n.Tags[:0]
	removed := false
	for _, t := range n.Tags {
		if strings.EqualFold(t, tag) {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	n.Tags = kept
	return removed
}

// SetTags replaces the tag list, dropping blanks and duplicates.
func (n *Note) SetTags(tags []string) {
	n.Tags = []string{}
	for _, t := range tags {
		n.AddTag(t)
	}
}

// SameTags reports whether saving tags through SetTags would leave the
// note's tags unchanged. Duplicates differing only by case collapse to
// their first spelling; a case change on its own still counts as different.
func (n *Note) SameTags(tags []string) bool {
	next := Note{}
	next.SetTags(tags)
	if len(next.Tags) != len(n.Tags) {
		return false
	}
	have := make(map[string]struct{}, len(n.Tags))
	for _, t := range n.Tags {
		have[t] = struct{}{}
	}
	for _, t := range next.Tags {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}
