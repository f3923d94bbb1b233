package app

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"coparent/api/internal/workflow"
	"github.com/sanity-io/litter"
	"github.com/stretchr/testify/require"
)

func TestProposalAcceptedOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.login(t, "partyA", "")

	rr := env.do(t, http.MethodPost, "/api/sections/jurisdiction/open", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	opened := decode(t, rr)
	require.Equal(t, "Approved", opened["status"])
	require.EqualValues(t, 1, opened["versionCount"])

	rr = env.do(t, http.MethodPost, "/api/sections/jurisdiction/modifications", token, map[string]any{
		"instruction": "Add Canada as a secondary residence.",
		"wait":        true,
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	draft, _ := decode(t, rr)["draft"].(map[string]any)
	require.Equal(t, true, draft["ready"], litter.Sdump(draft))
	require.Equal(t, "The United States is the country of habitual residence.\n\nAdd Canada as a secondary residence.", draft["candidate"])

	rr = env.do(t, http.MethodGet, "/api/sections/jurisdiction/draft", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/sections/jurisdiction/accept", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	outcome := decode(t, rr)
	require.Equal(t, "NeedsReview", outcome["status"])
	require.Equal(t, map[string]any{"partyA": true, "partyB": false}, outcome["approval"])
	require.Contains(t, outcome["message"], "version 2")
	require.Contains(t, outcome["message"], "Blake")
	entry, _ := outcome["entry"].(map[string]any)
	require.Equal(t, "Alex", entry["author"])
	require.Equal(t, workflow.NoteAIAssisted, entry["note"])

	rr = env.do(t, http.MethodGet, "/api/sections/jurisdiction/draft", token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "NO_DRAFT", decode(t, rr)["code"])

	rr = env.do(t, http.MethodGet, "/api/sections/jurisdiction", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	section := decode(t, rr)
	require.Equal(t, "NeedsReview", section["status"])
	require.EqualValues(t, 2, section["versionCount"])
	require.True(t, strings.HasSuffix(section["content"].(string), "secondary residence."))

	other, _ := env.login(t, "partyB", "")
	rr = env.do(t, http.MethodPost, "/api/sections/jurisdiction/initials", other, map[string]string{})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "Approved", decode(t, rr)["status"])
}

func TestAcceptWithoutDraftIsRejected(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.login(t, "partyA", "")

	rr := env.do(t, http.MethodPost, "/api/sections/custody/accept", token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "NO_DRAFT", decode(t, rr)["code"])

	rr = env.do(t, http.MethodPost, "/api/sections/custody/modifications", token, map[string]any{"instruction": "Add a clause"})
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "SECTION_NOT_OPEN", decode(t, rr)["code"])

	rr = env.do(t, http.MethodPost, "/api/sections/custody/open", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodPost, "/api/sections/custody/modifications", token, map[string]any{"instruction": "   "})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "VALIDATION_ERROR", decode(t, rr)["code"])
}

func TestInitialsRefusedWhileProposalPending(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	env := newTestEnv(t, withDrafter(workflow.DrafterFunc(func(ctx context.Context, req workflow.DraftRequest) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-release:
			return req.Current + " revised", nil
		}
	})))
	token, _ := env.login(t, "partyB", "")

	rr := env.do(t, http.MethodPost, "/api/sections/custody/open", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodPost, "/api/sections/custody/modifications", token, map[string]any{"instruction": "Add a holiday clause"})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	rr = env.do(t, http.MethodPost, "/api/sections/custody/accept", token, nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "DRAFT_NOT_READY", decode(t, rr)["code"])

	rr = env.do(t, http.MethodPost, "/api/sections/custody/initials", token, map[string]string{"party": "partyB"})
	require.Equal(t, http.StatusConflict, rr.Code)
	payload := decode(t, rr)
	require.Equal(t, "PROPOSAL_PENDING", payload["code"])
	require.Equal(t, workflow.ProposalPendingMessage, payload["error"])

	rr = env.do(t, http.MethodPost, "/api/sections/custody/restore", token, map[string]int{"index": 0})
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/sections/custody", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, map[string]any{"partyA": false, "partyB": true}, decode(t, rr)["approval"])

	rr = env.do(t, http.MethodPost, "/api/workflow/close", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "idle", decode(t, rr)["state"])

	rr = env.do(t, http.MethodPost, "/api/sections/custody/initials", token, map[string]string{"party": "partyB"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, map[string]any{"partyA": false, "partyB": false}, decode(t, rr)["approval"])
}

func TestInitialsRespectRoles(t *testing.T) {
	env := newTestEnv(t)
	parent, _ := env.login(t, "partyA", "")
	admin, _ := env.login(t, "partyA", "admin")
	viewer, _ := env.login(t, "", "")

	rr := env.do(t, http.MethodPost, "/api/sections/custody/initials", parent, map[string]string{"party": "partyB"})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/sections/custody/initials", admin, map[string]string{"party": "partyB"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "NotApproved", decode(t, rr)["status"])

	rr = env.do(t, http.MethodPost, "/api/sections/custody/initials", viewer, map[string]string{"party": "partyA"})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/sections/custody/initials", parent, map[string]string{"party": "nobody"})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/sections/custody/open", viewer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodPost, "/api/sections/custody/modifications", viewer, map[string]any{"instruction": "x"})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/plan", viewer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestVersionsCompareAndRestore(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.login(t, "partyA", "")
	env.propose(t, token, "custody", "Weekends alternate.")

	rr := env.do(t, http.MethodGet, "/api/sections/custody/versions", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	versions, _ := decode(t, rr)["versions"].([]any)
	require.Len(t, versions, 2)
	first := versions[0].(map[string]any)
	last := versions[1].(map[string]any)
	require.Equal(t, "Version 1 (Original)", first["label"])
	require.Equal(t, "Version 2 (Current)", last["label"])

	rr = env.do(t, http.MethodGet, "/api/workflow", token, nil)
	history, _ := decode(t, rr)["history"].(map[string]any)
	require.Equal(t, "custody", history["sectionId"])

	rr = env.do(t, http.MethodGet, "/api/sections/custody/compare?a=0&b=1", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	cmp := decode(t, rr)
	diff, _ := cmp["diff"].([]any)
	require.NotEmpty(t, diff)

	rr = env.do(t, http.MethodGet, "/api/sections/custody/compare?a=1&b=1", token, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/sections/custody/compare?a=0&b=9", token, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/sections/custody/compare?a=x&b=1", token, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	other, _ := env.login(t, "partyB", "")
	rr = env.do(t, http.MethodPost, "/api/sections/custody/restore", other, map[string]int{"index": 0})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	outcome := decode(t, rr)
	require.Equal(t, true, outcome["changed"])
	require.Equal(t, map[string]any{"partyA": false, "partyB": true}, outcome["approval"])
	entry := outcome["entry"].(map[string]any)
	require.Equal(t, "Joint legal custody of the children.", entry["content"])
	require.Equal(t, "Restored from version 1", entry["note"])
	require.Equal(t, "Blake", entry["author"])

	rr = env.do(t, http.MethodPost, "/api/sections/custody/restore", other, map[string]int{"index": 2})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, false, decode(t, rr)["changed"], "restoring the current text records nothing")

	rr = env.do(t, http.MethodPost, "/api/sections/custody/restore", other, map[string]int{"index": 7})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = env.do(t, http.MethodPost, "/api/sections/custody/restore", other, map[string]any{})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/sections/custody/history/close", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Nil(t, decode(t, rr)["history"])
}

func TestPlanSummary(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.login(t, "partyA", "")
	env.propose(t, token, "jurisdiction", "Add Canada.")

	rr := env.do(t, http.MethodGet, "/api/plan", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	summary := decode(t, rr)
	sections, _ := summary["sections"].([]any)
	require.Len(t, sections, 2)
	tally := summary["tally"].(map[string]any)
	require.EqualValues(t, 1, tally["NeedsReview"])
	require.EqualValues(t, 1, tally["MissingInitials"])
	require.EqualValues(t, 0, summary["completion"])
	require.Equal(t, []any{"custody"}, summary["awaitingPartyA"])
	require.Equal(t, []any{"jurisdiction"}, summary["awaitingPartyB"])
}

func TestSearchReportsCurrentStatus(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.login(t, "partyA", "")

	rr := env.do(t, http.MethodGet, "/api/search?q=custody", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decode(t, rr)
	results, _ := payload["results"].([]any)
	require.Len(t, results, 1, litter.Sdump(payload))
	hit := results[0].(map[string]any)
	require.Equal(t, "custody", hit["sectionId"])
	require.Equal(t, "MissingInitials", hit["status"])

	rr = env.do(t, http.MethodGet, "/api/search?q=custody&status=Approved", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	results, _ = decode(t, rr)["results"].([]any)
	require.Empty(t, results)

	rr = env.do(t, http.MethodGet, "/api/search?q=", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/search?q=x&limit=abc", token, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestExportHTML(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.login(t, "", "")

	rr := env.do(t, http.MethodGet, "/api/plan/export?format=html", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), ".html")
	body := rr.Body.String()
	require.Contains(t, body, "Legal Custody")
	require.Contains(t, body, "Alex")

	rr = env.do(t, http.MethodGet, "/api/plan/export?format=rtf", token, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/plan/export?format=html&upload=true", token, nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "STORAGE_UNAVAILABLE", decode(t, rr)["code"])
}

func TestArchiveRecordsAcceptedVersions(t *testing.T) {
	env := newTestEnv(t, withArchive(t.TempDir()))
	token, _ := env.login(t, "partyA", "")

	rr := env.do(t, http.MethodGet, "/api/sections/custody/archive", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	empty := decode(t, rr)
	require.Equal(t, true, empty["enabled"])
	require.Empty(t, empty["commits"])

	env.propose(t, token, "custody", "Weekends alternate.")

	rr = env.do(t, http.MethodGet, "/api/sections/custody/archive", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	commits, _ := decode(t, rr)["commits"].([]any)
	require.Len(t, commits, 1)
	commit := commits[0].(map[string]any)
	require.Equal(t, "Alex", commit["author"])
	require.Equal(t, "custody: "+workflow.NoteAIAssisted, commit["message"])

	hash, _ := commit["hash"].(string)
	rr = env.do(t, http.MethodGet, "/api/sections/custody/archive/"+hash, token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	archived := decode(t, rr)
	require.Equal(t, hash, archived["hash"])
	require.Equal(t, "Joint legal custody of the children.\n\nWeekends alternate.", archived["content"])

	rr = env.do(t, http.MethodGet, "/api/sections/custody/archive/deadbeef", token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestArchiveDisabled(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.login(t, "partyA", "")

	rr := env.do(t, http.MethodGet, "/api/sections/custody/archive", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, false, decode(t, rr)["enabled"])
}
