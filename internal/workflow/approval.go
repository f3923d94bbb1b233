package workflow

import (
	"context"
	"fmt"

	"coparent/api/internal/store"
)

type Status string

const (
	StatusApproved        Status = "Approved"
	StatusNeedsReview     Status = "NeedsReview"
	StatusMissingInitials Status = "MissingInitials"
	StatusNotApproved     Status = "NotApproved"
)

// DeriveStatus classifies a section from its initials and ledger length.
func DeriveStatus(approval store.Approval, versionCount int) Status {
	switch {
	case approval.Both():
		return StatusApproved
	case versionCount > 1:
		return StatusNeedsReview
	case approval.Count() == 1:
		return StatusMissingInitials
	default:
		return StatusNotApproved
	}
}

// Approvals tracks each party's sign-off per section.
type Approvals struct {
	store Store
}

func NewApprovals(s Store) *Approvals {
	return &Approvals{store: s}
}

// Get returns {false, false} for unknown sections.
func (a *Approvals) Get(ctx context.Context, id store.SectionID) (store.Approval, error) {
	approval, err := a.store.GetApproval(ctx, id)
	if err != nil {
		return store.Approval{}, fmt.Errorf("get approval %s: %w", id, err)
	}
	return approval, nil
}

// Toggle flips one party's flag. Callers enforce the pending-proposal guard.
func (a *Approvals) Toggle(ctx context.Context, id store.SectionID, party store.Party) (store.Approval, error) {
	if !party.Valid() {
		return store.Approval{}, ErrInvalidParty
	}
	next, err := a.store.ToggleApproval(ctx, id, party)
	if err != nil {
		return store.Approval{}, fmt.Errorf("toggle approval %s: %w", id, err)
	}
	return next, nil
}

// ResetOnProposalAccepted leaves only the authoring party's initials in place.
// Proposal acceptance applies the same rule inside Store.CommitVersion.
func (a *Approvals) ResetOnProposalAccepted(ctx context.Context, id store.SectionID, author store.Party) (store.Approval, error) {
	if !author.Valid() {
		return store.Approval{}, ErrInvalidParty
	}
	next := store.AcceptedBy(author)
	if err := a.store.SetApproval(ctx, id, next); err != nil {
		return store.Approval{}, fmt.Errorf("reset approval %s: %w", id, err)
	}
	return next, nil
}

// Status derives the section status from its flags and ledger length.
func (a *Approvals) Status(ctx context.Context, id store.SectionID) (Status, error) {
	approval, err := a.Get(ctx, id)
	if err != nil {
		return "", err
	}
	versions, err := a.store.ListVersions(ctx, id)
	if err != nil {
		return "", fmt.Errorf("status %s: %w", id, err)
	}
	return DeriveStatus(approval, len(versions)), nil
}
