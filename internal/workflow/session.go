package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"coparent/api/internal/store"
	"coparent/api/internal/util"
)

type State string

const (
	StateIdle     State = "idle"
	StateEditing  State = "editing"
	StateDrafting State = "drafting"
)

type draft struct {
	id          string
	sectionID   store.SectionID
	instruction string
	base        string
	candidate   string
	ready       bool
	err         error
	requestedAt time.Time
	done        chan struct{}
	cancel      context.CancelFunc
}

// DraftView is the pending proposal as shown to the user.
type DraftView struct {
	ID          string          `json:"id"`
	SectionID   store.SectionID `json:"sectionId"`
	Instruction string          `json:"instruction"`
	Current     string          `json:"current"`
	Candidate   string          `json:"candidate,omitempty"`
	Ready       bool            `json:"ready"`
	Error       string          `json:"error,omitempty"`
	RequestedAt time.Time       `json:"requestedAt"`
}

func (d *draft) view() *DraftView {
	v := &DraftView{
		ID:          d.id,
		SectionID:   d.sectionID,
		Instruction: d.instruction,
		Current:     d.base,
		Candidate:   d.candidate,
		Ready:       d.ready,
		RequestedAt: d.requestedAt,
	}
	if d.err != nil {
		v.Error = d.err.Error()
	}
	return v
}

type historyState struct {
	sectionID store.SectionID
	compare   *[2]int
}

// Snapshot is the session's view state.
type Snapshot struct {
	Party         store.Party     `json:"party"`
	State         State           `json:"state"`
	ActiveSection store.SectionID `json:"activeSection,omitempty"`
	Draft         *DraftView      `json:"draft,omitempty"`
	History       *HistoryView    `json:"history,omitempty"`
}

type HistoryView struct {
	SectionID store.SectionID `json:"sectionId"`
	Compare   []int           `json:"compare,omitempty"`
}

// Outcome reports a committed change.
type Outcome struct {
	Entry    store.VersionEntry `json:"entry"`
	Approval ApprovalView       `json:"approval"`
	Status   Status             `json:"status"`
	Message  string             `json:"message"`
	Changed  bool               `json:"changed"`
}

// Session is one party's editing session over the shared plan. All methods
// are safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	engine   *Engine
	actor    Actor
	state    State
	active   store.SectionID
	draft    *draft
	history  *historyState
	lastSeen time.Time
}

func (e *Engine) NewSession(actor Actor) *Session {
	if actor.DisplayName == "" {
		actor.DisplayName = e.names.Name(actor.Party)
	}
	return &Session{engine: e, actor: actor, state: StateIdle, lastSeen: e.now()}
}

func (s *Session) Actor() Actor {
	return s.actor
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{Party: s.actor.Party, State: s.state, ActiveSection: s.active}
	if s.draft != nil {
		snap.Draft = s.draft.view()
	}
	if s.history != nil {
		snap.History = &HistoryView{SectionID: s.history.sectionID}
		if s.history.compare != nil {
			snap.History.Compare = []int{s.history.compare[0], s.history.compare[1]}
		}
	}
	return snap
}

// OpenSection makes id the active section, seeding its ledger on first open.
// Any pending proposal is discarded and the history viewer is closed.
func (s *Session) OpenSection(ctx context.Context, id store.SectionID) (SectionView, error) {
	if strings.TrimSpace(string(id)) == "" {
		return SectionView{}, ErrInvalidSection
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	content, err := s.engine.Registry.GetContent(ctx, id)
	if err != nil {
		return SectionView{}, err
	}
	if _, err := s.engine.Ledger.EnsureSeeded(ctx, id, content); err != nil {
		return SectionView{}, err
	}

	s.dropDraftLocked()
	s.history = nil
	s.active = id
	s.state = StateEditing
	return s.engine.Section(ctx, id)
}

// RequestModification starts drafting a replacement for the active section.
// A blank instruction changes nothing. A newer request replaces a pending one.
func (s *Session) RequestModification(ctx context.Context, id store.SectionID, instruction string) (*DraftView, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, ErrEmptyInstruction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	if s.state == StateIdle || s.active != id {
		return nil, ErrSectionNotOpen
	}
	section, _, err := s.engine.Registry.Section(ctx, id)
	if err != nil {
		return nil, err
	}
	s.dropDraftLocked()

	draftCtx, cancel := context.WithCancel(context.Background())
	d := &draft{
		id:          util.NewID("draft"),
		sectionID:   id,
		instruction: instruction,
		base:        section.Content,
		requestedAt: s.engine.now(),
		done:        make(chan struct{}),
		cancel:      cancel,
	}
	s.draft = d
	s.state = StateDrafting
	s.engine.observer.DraftStarted(id)

	go s.runDraft(draftCtx, d, DraftRequest{
		SectionID:   id,
		Title:       section.Title,
		Current:     section.Content,
		Instruction: instruction,
	})
	return d.view(), nil
}

func (s *Session) runDraft(ctx context.Context, d *draft, req DraftRequest) {
	defer close(d.done)
	candidate, err := s.engine.drafter.Draft(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft != d {
		return
	}
	if err != nil {
		d.err = fmt.Errorf("%w: %v", ErrDraftFailed, err)
	} else {
		d.candidate = candidate
	}
	d.ready = true
}

// WaitDraft blocks until the pending proposal has been drafted or ctx ends.
func (s *Session) WaitDraft(ctx context.Context) (*DraftView, error) {
	s.mu.Lock()
	d := s.draft
	s.mu.Unlock()
	if d == nil {
		return nil, ErrNoDraft
	}

	select {
	case <-d.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft != d {
		return nil, ErrNoDraft
	}
	return d.view(), nil
}

// Draft returns the pending proposal, if any.
func (s *Session) Draft() *DraftView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return nil
	}
	return s.draft.view()
}

// AcceptProposal records the drafted text as the section's new version,
// authored by this session's party, and resets the other party's initials.
// Content, ledger and approval are committed together or not at all.
func (s *Session) AcceptProposal(ctx context.Context, id store.SectionID) (Outcome, error) {
	s.mu.Lock()
	s.touchLocked()
	d := s.draft
	switch {
	case d == nil || d.sectionID != id:
		s.mu.Unlock()
		return Outcome{}, ErrNoDraft
	case !d.ready:
		s.mu.Unlock()
		return Outcome{}, ErrDraftNotReady
	case d.err != nil:
		s.mu.Unlock()
		return Outcome{}, d.err
	}

	event, err := s.engine.commit(ctx, EventProposal, s.actor, store.VersionEntry{
		SectionID: id,
		Content:   d.candidate,
		Author:    s.actor.DisplayName,
		Note:      NoteAIAssisted,
	}, &d.base)
	if err != nil {
		s.mu.Unlock()
		return Outcome{}, err
	}
	d.cancel()
	s.draft = nil
	s.state = StateEditing
	s.mu.Unlock()

	s.engine.observer.VersionRecorded(ctx, event)
	other := s.engine.names.Name(s.actor.Party.Other())
	return Outcome{
		Entry:    event.Entry,
		Approval: approvalView(event.Approval),
		Status:   DeriveStatus(event.Approval, event.Entry.Seq+1),
		Changed:  true,
		Message: fmt.Sprintf("Your changes to %s were saved as version %d. %s will be asked to review and initial them.",
			event.Section.Title, event.Entry.Seq+1, other),
	}, nil
}

// ToggleInitials flips party's initials on a section. It is refused while a
// proposed change is pending.
func (s *Session) ToggleInitials(ctx context.Context, id store.SectionID, party store.Party) (ApprovalView, error) {
	if strings.TrimSpace(string(id)) == "" {
		return ApprovalView{}, ErrInvalidSection
	}
	if !party.Valid() {
		return ApprovalView{}, ErrInvalidParty
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	if s.draft != nil {
		s.engine.observer.GuardRejected("toggle")
		return ApprovalView{}, ErrProposalPending
	}
	approval, err := s.engine.Approvals.Toggle(ctx, id, party)
	if err != nil {
		return ApprovalView{}, err
	}
	return approvalView(approval), nil
}

// Cancel abandons any pending proposal and returns to idle without touching
// stored data.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.dropDraftLocked()
	s.history = nil
	s.active = ""
	s.state = StateIdle
}

// CloseSection is Cancel under the name the editor uses.
func (s *Session) CloseSection() {
	s.Cancel()
}

// OpenHistory opens the version viewer on id and lists its labelled versions.
func (s *Session) OpenHistory(ctx context.Context, id store.SectionID) ([]VersionView, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, ErrInvalidSection
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	entries, err := s.seededVersionsLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	s.history = &historyState{sectionID: id}
	return LabelVersions(entries), nil
}

// Compare shows versions a and b of id side by side.
func (s *Session) Compare(ctx context.Context, id store.SectionID, a, b int) (Comparison, error) {
	if strings.TrimSpace(string(id)) == "" {
		return Comparison{}, ErrInvalidSection
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	entries, err := s.engine.Ledger.List(ctx, id)
	if err != nil {
		return Comparison{}, err
	}
	cmp, err := CompareVersions(entries, a, b)
	if err != nil {
		return Comparison{}, err
	}
	s.history = &historyState{sectionID: id, compare: &[2]int{a, b}}
	return cmp, nil
}

// Restore makes version index of id the current content again. The restore
// is itself recorded in the ledger, authored by this session's party, and
// the viewer is closed.
func (s *Session) Restore(ctx context.Context, id store.SectionID, index int) (Outcome, error) {
	if strings.TrimSpace(string(id)) == "" {
		return Outcome{}, ErrInvalidSection
	}
	s.mu.Lock()
	s.touchLocked()
	if s.draft != nil {
		s.mu.Unlock()
		s.engine.observer.GuardRejected("restore")
		return Outcome{}, ErrProposalPending
	}

	entries, err := s.seededVersionsLocked(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return Outcome{}, err
	}
	if index < 0 || index >= len(entries) {
		s.mu.Unlock()
		return Outcome{}, ErrVersionOutOfRange
	}
	target := entries[index]
	current := entries[len(entries)-1]

	if target.Content == current.Content {
		s.history = nil
		s.mu.Unlock()
		approval, err := s.engine.Approvals.Get(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Entry:    current,
			Approval: approvalView(approval),
			Status:   DeriveStatus(approval, len(entries)),
			Message:  fmt.Sprintf("Version %d already matches the current text.", index+1),
		}, nil
	}

	event, err := s.engine.commit(ctx, EventRestore, s.actor, store.VersionEntry{
		SectionID: id,
		Content:   target.Content,
		Author:    s.actor.DisplayName,
		Note:      RestoreNote(index + 1),
	}, nil)
	if err != nil {
		s.mu.Unlock()
		return Outcome{}, err
	}
	s.history = nil
	s.mu.Unlock()

	s.engine.observer.VersionRecorded(ctx, event)
	return Outcome{
		Entry:    event.Entry,
		Approval: approvalView(event.Approval),
		Status:   DeriveStatus(event.Approval, event.Entry.Seq+1),
		Changed:  true,
		Message: fmt.Sprintf("Version %d was restored as version %d. %s will be asked to review and initial it.",
			index+1, event.Entry.Seq+1, s.engine.names.Name(s.actor.Party.Other())),
	}, nil
}

// CloseHistory closes the version viewer.
func (s *Session) CloseHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.history = nil
}

// LastSeen reports when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touchLocked() {
	s.lastSeen = s.engine.now()
}

// seededVersionsLocked lists the ledger, seeding it from the current content
// when the section has never been opened.
func (s *Session) seededVersionsLocked(ctx context.Context, id store.SectionID) ([]store.VersionEntry, error) {
	entries, err := s.engine.Ledger.List(ctx, id)
	if err != nil || len(entries) > 0 {
		return entries, err
	}
	content, err := s.engine.Registry.GetContent(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.engine.Ledger.EnsureSeeded(ctx, id, content); err != nil {
		return nil, err
	}
	return s.engine.Ledger.List(ctx, id)
}

func (s *Session) dropDraftLocked() {
	if s.draft == nil {
		return
	}
	s.draft.cancel()
	s.engine.observer.DraftCancelled(s.draft.sectionID)
	s.draft = nil
	if s.state == StateDrafting {
		s.state = StateEditing
	}
}
