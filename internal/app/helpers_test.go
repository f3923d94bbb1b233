package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"coparent/api/internal/config"
	"coparent/api/internal/email"
	"coparent/api/internal/gitrepo"
	"coparent/api/internal/store"
	"coparent/api/internal/workflow"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store   *store.MemoryStore
	service *Service
	server  *HTTPServer
	handler http.Handler
}

type envOption func(*config.Config, *Deps)

func withRateLimit(rps float64, burst int) envOption {
	return func(cfg *config.Config, _ *Deps) {
		cfg.RateLimitRPS = rps
		cfg.RateLimitBurst = burst
	}
}

func withArchive(dir string) envOption {
	return func(cfg *config.Config, deps *Deps) {
		cfg.ArchiveDir = dir
		deps.Archive = gitrepo.New(dir)
	}
}

func withDrafter(d workflow.Drafter) envOption {
	return func(_ *config.Config, deps *Deps) {
		deps.Drafter = d
	}
}

func testConfig() config.Config {
	return config.Config{
		PlanID:     "plan-test",
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		SessionTTL: time.Hour,
		CORSOrigin: "*",
		PartyAName: "Alex",
		PartyBName: "Blake",
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	_, err := s.EnsureSection(ctx, store.Section{
		ID:      "jurisdiction",
		Title:   "Jurisdiction",
		Content: "The United States is the country of habitual residence.",
	}, store.Approval{PartyA: true, PartyB: true})
	require.NoError(t, err)
	_, err = s.EnsureSection(ctx, store.Section{
		ID:        "custody",
		Title:     "Legal Custody",
		Content:   "Joint legal custody of the children.",
		SortOrder: 1,
	}, store.Approval{PartyB: true})
	require.NoError(t, err)

	cfg := testConfig()
	deps := Deps{Store: s}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	svc := New(cfg, deps)
	t.Cleanup(svc.Close)
	server := NewHTTPServer(svc, cfg.CORSOrigin)
	return &testEnv{store: s, service: svc, server: server, handler: server.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

// login runs the development login and returns the access and refresh tokens.
func (e *testEnv) login(t *testing.T, party, role string) (string, string) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/session/login", "", map[string]string{"party": party, "role": role})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decode(t, rr)
	token, _ := payload["token"].(string)
	refresh, _ := payload["refreshToken"].(string)
	require.NotEmpty(t, token)
	require.NotEmpty(t, refresh)
	return token, refresh
}

// propose opens id, drafts instruction, waits for it and accepts it.
func (e *testEnv) propose(t *testing.T, token, id, instruction string) map[string]any {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/sections/"+id+"/open", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = e.do(t, http.MethodPost, "/api/sections/"+id+"/modifications", token, map[string]any{"instruction": instruction, "wait": true})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	rr = e.do(t, http.MethodPost, "/api/sections/"+id+"/accept", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode(t, rr)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), rr.Body.String())
	return payload
}

type sentReview struct {
	to   []string
	data email.ReviewRequestData
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentReview
}

func (f *fakeMailer) IsConfigured() bool { return true }

func (f *fakeMailer) SendReviewRequest(to []string, data email.ReviewRequestData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentReview{to: to, data: data})
	return nil
}

func (f *fakeMailer) reviews() []sentReview {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentReview(nil), f.sent...)
}
