package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"coparent/api/internal/store"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu        sync.Mutex
	versions  []VersionEvent
	started   int
	cancelled int
	rejected  []string
}

func (o *recordingObserver) VersionRecorded(_ context.Context, event VersionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.versions = append(o.versions, event)
}

func (o *recordingObserver) DraftStarted(store.SectionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) DraftCancelled(store.SectionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelled++
}

func (o *recordingObserver) GuardRejected(operation string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = append(o.rejected, operation)
}

type fixture struct {
	store    *store.MemoryStore
	engine   *Engine
	observer *recordingObserver
}

func newFixture(t *testing.T, drafter Drafter) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	_, err := s.EnsureSection(ctx, store.Section{
		ID:      "jurisdiction",
		Title:   "Jurisdiction",
		Content: "The United States is the country of habitual residence.",
	}, store.Approval{PartyA: true, PartyB: true})
	require.NoError(t, err)
	_, err = s.EnsureSection(ctx, store.Section{ID: "custody", Title: "Legal Custody", Content: "Joint legal custody.", SortOrder: 1}, store.Approval{PartyB: true})
	require.NoError(t, err)

	if drafter == nil {
		drafter = ConcatDrafter{}
	}
	observer := &recordingObserver{}
	engine := NewEngine(s, Options{
		Drafter:  drafter,
		Observer: observer,
		Names:    PartyNames{PartyA: "Alex", PartyB: "Blake"},
	})
	return &fixture{store: s, engine: engine, observer: observer}
}

func (f *fixture) session(party store.Party) *Session {
	return f.engine.NewSession(Actor{Party: party})
}

// propose runs open → request → wait → accept and returns the outcome.
func propose(t *testing.T, s *Session, id store.SectionID, instruction string) Outcome {
	t.Helper()
	ctx := context.Background()
	_, err := s.OpenSection(ctx, id)
	require.NoError(t, err)
	_, err = s.RequestModification(ctx, id, instruction)
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = s.WaitDraft(waitCtx)
	require.NoError(t, err)
	outcome, err := s.AcceptProposal(ctx, id)
	require.NoError(t, err)
	return outcome
}

// blockingDrafter returns its candidate only once released.
type blockingDrafter struct {
	release chan struct{}
	calls   chan DraftRequest
}

func newBlockingDrafter() *blockingDrafter {
	return &blockingDrafter{release: make(chan struct{}), calls: make(chan DraftRequest, 16)}
}

func (d *blockingDrafter) Draft(ctx context.Context, req DraftRequest) (string, error) {
	d.calls <- req
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-d.release:
		return req.Current + " + " + req.Instruction, nil
	}
}
