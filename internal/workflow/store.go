package workflow

import (
	"context"

	"coparent/api/internal/store"
)

// Store is the persistence the workflow needs. store.MemoryStore and
// store.PostgresStore both satisfy it.
type Store interface {
	ListSections(ctx context.Context) ([]store.Section, error)
	GetSection(ctx context.Context, id store.SectionID) (store.Section, bool, error)
	SetContent(ctx context.Context, id store.SectionID, content string) error

	ListVersions(ctx context.Context, id store.SectionID) ([]store.VersionEntry, error)
	VersionCounts(ctx context.Context) (map[store.SectionID]int, error)
	SeedVersion(ctx context.Context, entry store.VersionEntry) (bool, error)
	AppendVersion(ctx context.Context, entry store.VersionEntry) (store.VersionEntry, error)

	GetApproval(ctx context.Context, id store.SectionID) (store.Approval, error)
	SetApproval(ctx context.Context, id store.SectionID, approval store.Approval) error
	// ToggleApproval flips one party's flag as a single read-modify-write.
	ToggleApproval(ctx context.Context, id store.SectionID, party store.Party) (store.Approval, error)

	// CommitVersion sets entry.Content as current content, appends entry and
	// stores approval atomically. When base is non-nil the commit fails with
	// store.ErrStaleContent unless the current content still equals it.
	CommitVersion(ctx context.Context, entry store.VersionEntry, approval store.Approval, base *string) (store.VersionEntry, error)
}
