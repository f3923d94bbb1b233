package app

import (
	"errors"
	"fmt"
	"net/http"

	"coparent/api/internal/authpw"
	"coparent/api/internal/export"
	"coparent/api/internal/workflow"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var errPartyMissing = domainError(http.StatusForbidden, "PARTY_REQUIRED", "Only a parent can change the plan", nil)

// workflowError turns the workflow and account sentinels into domain errors.
// Errors it does not know are returned unchanged.
func workflowError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, workflow.ErrProposalPending):
		return domainError(http.StatusConflict, "PROPOSAL_PENDING", workflow.ProposalPendingMessage, nil)
	case errors.Is(err, workflow.ErrDraftNotReady):
		return domainError(http.StatusConflict, "DRAFT_NOT_READY", "The proposed change is still being drafted", nil)
	case errors.Is(err, workflow.ErrDraftFailed):
		return domainError(http.StatusBadGateway, "DRAFT_FAILED", "The proposed change could not be drafted", nil)
	case errors.Is(err, workflow.ErrDraftStale):
		return domainError(http.StatusConflict, "DRAFT_STALE", "The section was changed by someone else. Request the change again to draft it against the new text", nil)
	case errors.Is(err, workflow.ErrNoDraft):
		return domainError(http.StatusNotFound, "NO_DRAFT", "There is no proposed change for this section", nil)
	case errors.Is(err, workflow.ErrSectionNotOpen):
		return domainError(http.StatusConflict, "SECTION_NOT_OPEN", "Open the section before requesting changes", nil)
	case errors.Is(err, workflow.ErrEmptyInstruction),
		errors.Is(err, workflow.ErrInvalidSection),
		errors.Is(err, workflow.ErrInvalidComparison),
		errors.Is(err, workflow.ErrVersionOutOfRange),
		errors.Is(err, workflow.ErrInvalidParty):
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, authpw.ErrEmailTaken):
		return domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	case errors.Is(err, authpw.ErrMissingFields),
		errors.Is(err, authpw.ErrWeakPassword),
		errors.Is(err, authpw.ErrInvalidEmail),
		errors.Is(err, authpw.ErrInvalidParty):
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, export.ErrUnsupportedFormat):
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, export.ErrStorageNotConfigured):
		return domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", err.Error(), nil)
	}
	return err
}
