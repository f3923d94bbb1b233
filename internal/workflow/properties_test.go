package workflow

import (
	"context"
	"testing"

	"coparent/api/internal/store"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/sanity-io/litter"
)

func propertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	return parameters
}

func TestSeedingIsIdempotent(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("opening a section any number of times leaves one original entry", prop.ForAll(
		func(opens int, content string) bool {
			s := store.NewMemoryStore()
			ctx := context.Background()
			_, _ = s.EnsureSection(ctx, store.Section{ID: "x", Title: "X", Content: content}, store.Approval{})
			engine := NewEngine(s, Options{})
			session := engine.NewSession(Actor{Party: store.PartyA})
			for i := 0; i < opens; i++ {
				if _, err := session.OpenSection(ctx, "x"); err != nil {
					return false
				}
			}
			versions, err := engine.Ledger.List(ctx, "x")
			if err != nil || len(versions) != 1 {
				return false
			}
			return versions[0].Note == NoteOriginal && versions[0].Author == SystemAuthor && versions[0].Content == content
		},
		gen.IntRange(1, 6),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

const (
	opOpen = iota
	opRequest
	opAccept
	opToggle
	opRestore
	opCancel
	opCount
)

// TestLedgerIsAppendOnly drives a session with random operation sequences and
// checks that every earlier ledger snapshot stays a prefix of the later one.
func TestLedgerIsAppendOnly(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("ledger only grows and entries never change", prop.ForAll(
		func(ops []int, args []int) bool {
			ctx := context.Background()
			s := store.NewMemoryStore()
			_, _ = s.EnsureSection(ctx, store.Section{ID: "x", Title: "X", Content: "seed"}, store.Approval{})
			engine := NewEngine(s, Options{})
			session := engine.NewSession(Actor{Party: store.PartyB})

			var previous []store.VersionEntry
			for i, op := range ops {
				arg := 0
				if i < len(args) {
					arg = args[i]
				}
				switch op % opCount {
				case opOpen:
					_, _ = session.OpenSection(ctx, "x")
				case opRequest:
					if _, err := session.RequestModification(ctx, "x", "clause"); err == nil {
						_, _ = session.WaitDraft(ctx)
					}
				case opAccept:
					_, _ = session.AcceptProposal(ctx, "x")
				case opToggle:
					party := store.PartyA
					if arg%2 == 1 {
						party = store.PartyB
					}
					_, _ = session.ToggleInitials(ctx, "x", party)
				case opRestore:
					_, _ = session.Restore(ctx, "x", arg)
				case opCancel:
					session.Cancel()
				}

				current, err := engine.Ledger.List(ctx, "x")
				if err != nil || len(current) < len(previous) {
					t.Logf("ledger shrank: %s", litter.Sdump(previous, current))
					return false
				}
				for j := range previous {
					if previous[j] != current[j] {
						t.Logf("entry %d changed: %s", j, litter.Sdump(previous[j], current[j]))
						return false
					}
				}
				if len(current) > 0 {
					content, _ := engine.Registry.GetContent(ctx, "x")
					if content != current[len(current)-1].Content {
						t.Logf("current content diverged from ledger: %q", content)
						return false
					}
				}
				previous = current
			}
			return true
		},
		gen.SliceOfN(20, gen.IntRange(0, opCount-1)),
		gen.SliceOfN(20, gen.IntRange(0, 4)),
	))

	properties.TestingRun(t)
}

func TestAcceptanceResetsApproval(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("author keeps initials, other party loses them", prop.ForAll(
		func(priorA, priorB, authorIsB bool) bool {
			ctx := context.Background()
			s := store.NewMemoryStore()
			_, _ = s.EnsureSection(ctx, store.Section{ID: "x", Title: "X", Content: "seed"}, store.Approval{PartyA: priorA, PartyB: priorB})
			engine := NewEngine(s, Options{})
			author := store.PartyA
			if authorIsB {
				author = store.PartyB
			}
			session := engine.NewSession(Actor{Party: author})

			if _, err := session.OpenSection(ctx, "x"); err != nil {
				return false
			}
			if _, err := session.RequestModification(ctx, "x", "change"); err != nil {
				return false
			}
			if _, err := session.WaitDraft(ctx); err != nil {
				return false
			}
			if _, err := session.AcceptProposal(ctx, "x"); err != nil {
				return false
			}
			approval, err := engine.Approvals.Get(ctx, "x")
			return err == nil && approval.For(author) && !approval.For(author.Other())
		},
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestToggleGuardLeavesStateUnchanged(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("toggle is refused while a draft exists", prop.ForAll(
		func(priorA, priorB, toggleB bool) bool {
			ctx := context.Background()
			s := store.NewMemoryStore()
			prior := store.Approval{PartyA: priorA, PartyB: priorB}
			_, _ = s.EnsureSection(ctx, store.Section{ID: "x", Title: "X", Content: "seed"}, prior)
			engine := NewEngine(s, Options{})
			session := engine.NewSession(Actor{Party: store.PartyA})
			_, _ = session.OpenSection(ctx, "x")
			if _, err := session.RequestModification(ctx, "x", "change"); err != nil {
				return false
			}
			party := store.PartyA
			if toggleB {
				party = store.PartyB
			}
			if _, err := session.ToggleInitials(ctx, "x", party); err != ErrProposalPending {
				return false
			}
			approval, err := engine.Approvals.Get(ctx, "x")
			return err == nil && approval == prior
		},
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestStatusDerivationProperty(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("status follows flags and ledger length", prop.ForAll(
		func(a, b bool, length int) bool {
			approval := store.Approval{PartyA: a, PartyB: b}
			status := DeriveStatus(approval, length)
			switch {
			case a && b:
				return status == StatusApproved
			case length > 1:
				return status == StatusNeedsReview
			case a != b:
				return status == StatusMissingInitials
			default:
				return status == StatusNotApproved
			}
		},
		gen.Bool(),
		gen.Bool(),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

func TestDeriveStatusTable(t *testing.T) {
	cases := []struct {
		name     string
		approval store.Approval
		length   int
		want     Status
	}{
		{name: "both initialled original", approval: store.Approval{PartyA: true, PartyB: true}, length: 1, want: StatusApproved},
		{name: "both initialled revised", approval: store.Approval{PartyA: true, PartyB: true}, length: 4, want: StatusApproved},
		{name: "revised one initial", approval: store.Approval{PartyA: true}, length: 2, want: StatusNeedsReview},
		{name: "revised no initials", approval: store.Approval{}, length: 3, want: StatusNeedsReview},
		{name: "original one initial", approval: store.Approval{PartyB: true}, length: 1, want: StatusMissingInitials},
		{name: "original no initials", approval: store.Approval{}, length: 1, want: StatusNotApproved},
		{name: "unseen no initials", approval: store.Approval{}, length: 0, want: StatusNotApproved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveStatus(tc.approval, tc.length); got != tc.want {
				t.Fatalf("DeriveStatus(%+v, %d) = %s, want %s", tc.approval, tc.length, got, tc.want)
			}
		})
	}
}
