package workflow

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"coparent/api/internal/store"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	MarkerOriginal = "(Original)"
	MarkerCurrent  = "(Current)"
)

type VersionView struct {
	Index     int       `json:"index"`
	Number    int       `json:"number"`
	Label     string    `json:"label"`
	Marker    string    `json:"marker,omitempty"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type DiffSegment struct {
	Op   string `json:"op"`
	Text string `json:"text"`
}

type Comparison struct {
	Left  VersionView   `json:"left"`
	Right VersionView   `json:"right"`
	Diff  []DiffSegment `json:"diff"`
}

// LabelVersions marks the first entry as original and, when there is more
// than one, the last entry as current.
func LabelVersions(entries []store.VersionEntry) []VersionView {
	views := make([]VersionView, len(entries))
	for i, entry := range entries {
		views[i] = versionView(entries, i, entry)
	}
	return views
}

func versionView(entries []store.VersionEntry, i int, entry store.VersionEntry) VersionView {
	view := VersionView{
		Index:     i,
		Number:    i + 1,
		Content:   entry.Content,
		Author:    entry.Author,
		Note:      entry.Note,
		CreatedAt: entry.CreatedAt,
	}
	switch {
	case i == 0:
		view.Marker = MarkerOriginal
	case i == len(entries)-1:
		view.Marker = MarkerCurrent
	}
	view.Label = fmt.Sprintf("Version %d", view.Number)
	if view.Marker != "" {
		view.Label += " " + view.Marker
	}
	return view
}

// CompareVersions puts two distinct entries side by side with a word diff
// from a to b.
func CompareVersions(entries []store.VersionEntry, a, b int) (Comparison, error) {
	if a == b {
		return Comparison{}, ErrInvalidComparison
	}
	if a < 0 || a >= len(entries) || b < 0 || b >= len(entries) {
		return Comparison{}, ErrVersionOutOfRange
	}
	return Comparison{
		Left:  versionView(entries, a, entries[a]),
		Right: versionView(entries, b, entries[b]),
		Diff:  WordDiff(entries[a].Content, entries[b].Content),
	}, nil
}

// WordDiff diffs two texts token by token, where a token is a run of
// whitespace or a run of non-whitespace.
func WordDiff(from, to string) []DiffSegment {
	enc := newTokenEncoder()
	a := enc.encode(from)
	b := enc.encode(to)

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMainRunes(a, b, false)

	segments := make([]DiffSegment, 0, len(diffs))
	for _, d := range diffs {
		text := enc.decode(d.Text)
		if text == "" {
			continue
		}
		op := "equal"
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = "insert"
		case diffmatchpatch.DiffDelete:
			op = "delete"
		}
		if n := len(segments); n > 0 && segments[n-1].Op == op {
			segments[n-1].Text += text
			continue
		}
		segments = append(segments, DiffSegment{Op: op, Text: text})
	}
	return segments
}

// tokenEncoder maps each distinct token to one rune so the character diff
// works on words. Runes are handed out from the private use area upward,
// which keeps them clear of surrogates.
type tokenEncoder struct {
	runes  map[string]rune
	tokens map[rune]string
	next   rune
}

func newTokenEncoder() *tokenEncoder {
	return &tokenEncoder{runes: map[string]rune{}, tokens: map[rune]string{}, next: 0xE000}
}

func (e *tokenEncoder) encode(text string) []rune {
	var out []rune
	for _, token := range tokenize(text) {
		r, ok := e.runes[token]
		if !ok {
			r = e.next
			e.next++
			e.runes[token] = r
			e.tokens[r] = token
		}
		out = append(out, r)
	}
	return out
}

func (e *tokenEncoder) decode(encoded string) string {
	var b strings.Builder
	for _, r := range encoded {
		b.WriteString(e.tokens[r])
	}
	return b.String()
}

func tokenize(text string) []string {
	var tokens []string
	start := 0
	runes := []rune(text)
	for i := 1; i <= len(runes); i++ {
		if i == len(runes) || unicode.IsSpace(runes[i]) != unicode.IsSpace(runes[i-1]) {
			tokens = append(tokens, string(runes[start:i]))
			start = i
		}
	}
	return tokens
}
