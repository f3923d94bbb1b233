package workflow

import "errors"

var (
	ErrInvalidSection    = errors.New("section id is required")
	ErrEmptyInstruction  = errors.New("modification instruction is empty")
	ErrSectionNotOpen    = errors.New("section is not open for editing")
	ErrProposalPending   = errors.New("a proposed change is pending")
	ErrNoDraft           = errors.New("no proposed change to accept")
	ErrDraftNotReady     = errors.New("proposed change is still being drafted")
	ErrDraftFailed       = errors.New("drafting the proposed change failed")
	ErrDraftStale        = errors.New("the section changed while the proposal was drafted")
	ErrInvalidComparison = errors.New("choose two different versions to compare")
	ErrVersionOutOfRange = errors.New("version index out of range")
	ErrInvalidParty      = errors.New("party must be partyA or partyB")
)

// ProposalPendingMessage is shown instead of an error when initials are
// attempted while a proposed change is awaiting acceptance.
const ProposalPendingMessage = "Please complete or cancel the current proposed changes before adding initials"
