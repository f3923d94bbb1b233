package workflow

import (
	"context"
	"fmt"
	"time"

	"coparent/api/internal/store"
)

const (
	SystemAuthor   = "System"
	NoteOriginal   = "Original version"
	NoteAIAssisted = "AI-assisted update"
)

// RestoreNote annotates an entry created by restoring version number n (1-based).
func RestoreNote(n int) string {
	return fmt.Sprintf("Restored from version %d", n)
}

// Ledger is the append-only version history of each section.
type Ledger struct {
	store Store
	now   func() time.Time
}

func NewLedger(s Store, now func() time.Time) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{store: s, now: now}
}

// EnsureSeeded records initialContent as the original version when the
// section has no history yet. Repeated or concurrent calls are no-ops.
func (l *Ledger) EnsureSeeded(ctx context.Context, id store.SectionID, initialContent string) (bool, error) {
	created, err := l.store.SeedVersion(ctx, store.VersionEntry{
		SectionID: id,
		Content:   initialContent,
		Author:    SystemAuthor,
		Note:      NoteOriginal,
		CreatedAt: l.now(),
	})
	if err != nil {
		return false, fmt.Errorf("seed ledger %s: %w", id, err)
	}
	return created, nil
}

// Append adds an entry at the end. Unknown sections start an empty ledger.
func (l *Ledger) Append(ctx context.Context, id store.SectionID, content, author, note string) (store.VersionEntry, error) {
	entry, err := l.store.AppendVersion(ctx, l.entry(id, content, author, note))
	if err != nil {
		return store.VersionEntry{}, fmt.Errorf("append ledger %s: %w", id, err)
	}
	return entry, nil
}

// List returns entries oldest first: index 0 is the original, the last one is current.
func (l *Ledger) List(ctx context.Context, id store.SectionID) ([]store.VersionEntry, error) {
	entries, err := l.store.ListVersions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list ledger %s: %w", id, err)
	}
	return entries, nil
}

func (l *Ledger) entry(id store.SectionID, content, author, note string) store.VersionEntry {
	return store.VersionEntry{
		SectionID: id,
		Content:   content,
		Author:    author,
		Note:      note,
		CreatedAt: l.now(),
	}
}
