package workflow

import (
	"context"

	"coparent/api/internal/store"
)

// Registry holds the text currently in force for each section.
type Registry struct {
	store Store
}

func NewRegistry(s Store) *Registry {
	return &Registry{store: s}
}

// GetContent returns "" for unknown sections.
func (r *Registry) GetContent(ctx context.Context, id store.SectionID) (string, error) {
	section, _, err := r.Section(ctx, id)
	return section.Content, err
}

// Section returns the stored section, or an empty one titled by its id.
func (r *Registry) Section(ctx context.Context, id store.SectionID) (store.Section, bool, error) {
	section, ok, err := r.store.GetSection(ctx, id)
	if err != nil {
		return store.Section{}, false, err
	}
	if !ok {
		return store.Section{ID: id, Title: string(id)}, false, nil
	}
	return section, true, nil
}

// SetContent overwrites the current content. It never touches the ledger.
func (r *Registry) SetContent(ctx context.Context, id store.SectionID, text string) error {
	return r.store.SetContent(ctx, id, text)
}

func (r *Registry) Sections(ctx context.Context) ([]store.Section, error) {
	return r.store.ListSections(ctx)
}
