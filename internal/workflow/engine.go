package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"coparent/api/internal/store"
	mapset "github.com/deckarep/golang-set/v2"
)

// Actor is the party a session acts for.
type Actor struct {
	Party       store.Party
	DisplayName string
}

// PartyNames are the display names used in messages and as ledger authors.
type PartyNames struct {
	PartyA string
	PartyB string
}

func (n PartyNames) Name(p store.Party) string {
	switch p {
	case store.PartyA:
		return n.PartyA
	case store.PartyB:
		return n.PartyB
	default:
		return string(p)
	}
}

type EventKind string

const (
	EventProposal EventKind = "proposal"
	EventRestore  EventKind = "restore"
)

// VersionEvent describes a committed ledger entry.
type VersionEvent struct {
	Kind     EventKind
	Section  store.Section
	Entry    store.VersionEntry
	Approval store.Approval
	Author   Actor
}

// Observer is told about workflow activity after the fact. Implementations
// must not call back into the session that reported the event.
type Observer interface {
	VersionRecorded(ctx context.Context, event VersionEvent)
	DraftStarted(id store.SectionID)
	DraftCancelled(id store.SectionID)
	GuardRejected(operation string)
}

type NopObserver struct{}

func (NopObserver) VersionRecorded(context.Context, VersionEvent) {}
func (NopObserver) DraftStarted(store.SectionID)                 {}
func (NopObserver) DraftCancelled(store.SectionID)               {}
func (NopObserver) GuardRejected(string)                         {}

type Options struct {
	Drafter  Drafter
	Observer Observer
	Names    PartyNames
	Now      func() time.Time
}

// Engine bundles the section stores shared by every session.
type Engine struct {
	Registry  *Registry
	Ledger    *Ledger
	Approvals *Approvals

	store    Store
	drafter  Drafter
	observer Observer
	names    PartyNames
	now      func() time.Time
}

func NewEngine(s Store, opts Options) *Engine {
	if opts.Drafter == nil {
		opts.Drafter = ConcatDrafter{}
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Names.PartyA == "" {
		opts.Names.PartyA = "Parent A"
	}
	if opts.Names.PartyB == "" {
		opts.Names.PartyB = "Parent B"
	}
	return &Engine{
		Registry:  NewRegistry(s),
		Ledger:    NewLedger(s, opts.Now),
		Approvals: NewApprovals(s),
		store:     s,
		drafter:   opts.Drafter,
		observer:  opts.Observer,
		names:     opts.Names,
		now:       opts.Now,
	}
}

func (e *Engine) Names() PartyNames {
	return e.names
}

// SectionView is a section with its derived review state.
type SectionView struct {
	ID           store.SectionID `json:"id"`
	Title        string          `json:"title"`
	Content      string          `json:"content"`
	Approval     ApprovalView    `json:"approval"`
	Status       Status          `json:"status"`
	VersionCount int             `json:"versionCount"`
}

type ApprovalView struct {
	PartyA bool `json:"partyA"`
	PartyB bool `json:"partyB"`
}

func approvalView(a store.Approval) ApprovalView {
	return ApprovalView{PartyA: a.PartyA, PartyB: a.PartyB}
}

// Section loads one section with its status. Unknown sections read as empty.
func (e *Engine) Section(ctx context.Context, id store.SectionID) (SectionView, error) {
	if id == "" {
		return SectionView{}, ErrInvalidSection
	}
	section, _, err := e.Registry.Section(ctx, id)
	if err != nil {
		return SectionView{}, err
	}
	approval, err := e.Approvals.Get(ctx, id)
	if err != nil {
		return SectionView{}, err
	}
	versions, err := e.Ledger.List(ctx, id)
	if err != nil {
		return SectionView{}, err
	}
	return SectionView{
		ID:           id,
		Title:        section.Title,
		Content:      section.Content,
		Approval:     approvalView(approval),
		Status:       DeriveStatus(approval, len(versions)),
		VersionCount: len(versions),
	}, nil
}

type PlanSummary struct {
	Sections       []SectionView     `json:"sections"`
	Tally          map[Status]int    `json:"tally"`
	Completion     float64           `json:"completion"`
	AwaitingPartyA []store.SectionID `json:"awaitingPartyA"`
	AwaitingPartyB []store.SectionID `json:"awaitingPartyB"`
}

// Summary lists every section with its status, a per-status tally, the share
// of approved sections and the sections each party still has to initial.
func (e *Engine) Summary(ctx context.Context) (PlanSummary, error) {
	sections, err := e.Registry.Sections(ctx)
	if err != nil {
		return PlanSummary{}, fmt.Errorf("plan summary: %w", err)
	}
	counts, err := e.store.VersionCounts(ctx)
	if err != nil {
		return PlanSummary{}, fmt.Errorf("plan summary: %w", err)
	}

	summary := PlanSummary{
		Sections: make([]SectionView, 0, len(sections)),
		Tally: map[Status]int{
			StatusApproved:        0,
			StatusNeedsReview:     0,
			StatusMissingInitials: 0,
			StatusNotApproved:     0,
		},
	}
	approved := mapset.NewThreadUnsafeSet[store.SectionID]()
	awaiting := map[store.Party]mapset.Set[store.SectionID]{
		store.PartyA: mapset.NewThreadUnsafeSet[store.SectionID](),
		store.PartyB: mapset.NewThreadUnsafeSet[store.SectionID](),
	}

	for _, section := range sections {
		approval, err := e.Approvals.Get(ctx, section.ID)
		if err != nil {
			return PlanSummary{}, err
		}
		status := DeriveStatus(approval, counts[section.ID])
		summary.Sections = append(summary.Sections, SectionView{
			ID:           section.ID,
			Title:        section.Title,
			Content:      section.Content,
			Approval:     approvalView(approval),
			Status:       status,
			VersionCount: counts[section.ID],
		})
		summary.Tally[status]++
		if status == StatusApproved {
			approved.Add(section.ID)
		}
		for party, set := range awaiting {
			if !approval.For(party) {
				set.Add(section.ID)
			}
		}
	}

	if len(sections) > 0 {
		summary.Completion = float64(approved.Cardinality()) / float64(len(sections))
	}
	summary.AwaitingPartyA = sortedIDs(awaiting[store.PartyA])
	summary.AwaitingPartyB = sortedIDs(awaiting[store.PartyB])
	return summary, nil
}

func sortedIDs(set mapset.Set[store.SectionID]) []store.SectionID {
	ids := set.ToSlice()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// commit writes entry with the acceptance approval rule applied for author.
func (e *Engine) commit(ctx context.Context, kind EventKind, actor Actor, entry store.VersionEntry, base *string) (VersionEvent, error) {
	approval := store.AcceptedBy(actor.Party)
	entry.CreatedAt = e.now()
	stored, err := e.store.CommitVersion(ctx, entry, approval, base)
	if errors.Is(err, store.ErrStaleContent) {
		return VersionEvent{}, ErrDraftStale
	}
	if err != nil {
		return VersionEvent{}, fmt.Errorf("commit %s for %s: %w", kind, entry.SectionID, err)
	}
	section, _, err := e.Registry.Section(ctx, entry.SectionID)
	if err != nil {
		section = store.Section{ID: entry.SectionID, Title: string(entry.SectionID), Content: stored.Content}
	}
	return VersionEvent{
		Kind:     kind,
		Section:  section,
		Entry:    stored,
		Approval: approval,
		Author:   actor,
	}, nil
}
