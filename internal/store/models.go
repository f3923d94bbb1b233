package store

import "time"

// SectionID identifies a plan section ("jurisdiction", "custody", ...).
type SectionID string

// Party is one of the two co-parents signing off on the plan.
type Party string

const (
	PartyA Party = "partyA"
	PartyB Party = "partyB"
)

func (p Party) Valid() bool {
	return p == PartyA || p == PartyB
}

// Other returns the opposite party. An invalid party has no counterpart.
func (p Party) Other() Party {
	switch p {
	case PartyA:
		return PartyB
	case PartyB:
		return PartyA
	default:
		return ""
	}
}

type Section struct {
	ID        SectionID
	Title     string
	Content   string
	SortOrder int
	UpdatedAt time.Time
}

// VersionEntry is one immutable snapshot in a section's ledger.
type VersionEntry struct {
	ID        string    `json:"id"`
	SectionID SectionID `json:"sectionId"`
	Seq       int       `json:"seq"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

// Approval holds the initials of both parties for one section.
type Approval struct {
	PartyA bool
	PartyB bool
}

func (a Approval) For(p Party) bool {
	switch p {
	case PartyA:
		return a.PartyA
	case PartyB:
		return a.PartyB
	default:
		return false
	}
}

func (a Approval) With(p Party, value bool) Approval {
	switch p {
	case PartyA:
		a.PartyA = value
	case PartyB:
		a.PartyB = value
	}
	return a
}

func (a Approval) Both() bool {
	return a.PartyA && a.PartyB
}

func (a Approval) Count() int {
	n := 0
	if a.PartyA {
		n++
	}
	if a.PartyB {
		n++
	}
	return n
}

// AcceptedBy is the approval state right after author's change lands: the
// author keeps their initials, the other party must review again.
func AcceptedBy(author Party) Approval {
	return Approval{}.With(author, true)
}

type Account struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Party        Party
	Role         string
	CreatedAt    time.Time
}
