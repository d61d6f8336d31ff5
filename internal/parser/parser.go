// Package parser extracts structure from card templates, cloze text, tag
// strings and search queries.
package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	clozeFieldRe = regexp.MustCompile(`\{\{cloze:(.*?)\}\}`)
	clozeOrdRe   = regexp.MustCompile(`\{\{c(\d+)::`)
)

// ClozeField returns the field named by the first {{cloze:FIELD}} tag found
// in the concatenation of the question and answer formats, or "".
func ClozeField(qfmt, afmt string) string {
	m := clozeFieldRe.FindStringSubmatch(qfmt + afmt)
	if m == nil {
		return ""
	}
	return m[1]
}

// ClozeOrdinals returns the distinct cloze numbers used in text, ascending.
func ClozeOrdinals(text string) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, m := range clozeOrdRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// SplitTags splits a space-separated tag string. Runs of whitespace are
// collapsed and an all-blank string yields no tags.
func SplitTags(s string) []string {
	return strings.Fields(s)
}

// Term is one search clause.
type Term struct {
	Negate bool
	Key    string // "" for free text, otherwise deck, tag, note, nid
	Value  string
}

// ParseQuery splits a search string into terms. Double quotes group words,
// a leading '-' negates, and key:value prefixes are recognised for a known
// set of keys. Unknown keys are treated as free text.
func ParseQuery(q string) []Term {
	var out []Term
	for _, tok := range tokenize(q) {
		t := Term{}
		if strings.HasPrefix(tok, "-") && len(tok) > 1 {
			t.Negate = true
			tok = tok[1:]
		}
		tok = strings.Trim(tok, `"`)
		if i := strings.Index(tok, ":"); i > 0 {
			key := strings.ToLower(tok[:i])
			switch key {
			case "deck", "tag", "note", "nid":
				t.Key = key
				t.Value = strings.Trim(tok[i+1:], `"`)
				out = append(out, t)
				continue
			}
		}
		t.Value = tok
		if t.Value == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

func tokenize(q string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote bool
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range q {
		switch {
		case r == '"':
			quote = !quote
			cur.WriteRune(r)
		case !quote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
