package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"coparent/api/internal/auth"
	"coparent/api/internal/authpw"
	"coparent/api/internal/export"
	"coparent/api/internal/rbac"
	"coparent/api/internal/search"
	"coparent/api/internal/store"
	"golang.org/x/time/rate"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string

	limitMu  sync.Mutex
	limiters map[string]*sessionLimiter
	rps      rate.Limit
	burst    int
}

type sessionLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	cfg := service.Config()
	rps := rate.Limit(cfg.RateLimitRPS)
	if cfg.RateLimitRPS <= 0 {
		rps = rate.Inf
	}
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		limiters:   make(map[string]*sessionLimiter),
		rps:        rps,
		burst:      cfg.RateLimitBurst,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		statusCode := http.StatusOK
		checks := map[string]any{
			"store":   map[string]any{"status": "ok"},
			"refresh": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{"status": "error", "error": err.Error()}
		}
		if err := s.service.PingRefreshStore(ctx); err != nil {
			statusCode = http.StatusServiceUnavailable
			checks["refresh"] = map[string]any{"status": "error", "error": err.Error()}
		}
		status := "ready"
		if statusCode != http.StatusOK {
			status = "not_ready"
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     statusCode == http.StatusOK,
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.service.Metrics().Handler().ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userName":      session.UserName,
			"userId":        session.UserID,
			"party":         session.Party,
			"role":          session.Role,
			"expiresAt":     session.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		var body struct {
			Party string `json:"party"`
			Role  string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Login(r.Context(), body.Party, body.Role)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		s.forgetLimiter(session.SessionID)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if r.Method == http.MethodPost && !s.allow(session.SessionID) {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, slow down", nil)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/plan" {
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		summary, err := s.service.PlanSummary(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/plan/export" {
		if !s.service.Can(session.Role, rbac.ActionExport) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		s.handleExport(w, r, session)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/workflow" {
		writeJSON(w, http.StatusOK, s.service.Workflow(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/workflow/close" {
		writeJSON(w, http.StatusOK, s.service.CloseWorkflow(session))
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "sections" {
		s.handleSections(w, r, session, store.SectionID(parts[2]), parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSections(w http.ResponseWriter, r *http.Request, session Session, sectionID store.SectionID, rest []string) {
	action := strings.Join(rest, "/")
	ctx := r.Context()

	switch {
	case r.Method == http.MethodGet && action == "":
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		view, err := s.service.Section(ctx, sectionID)
		respond(w, view, err)

	case r.Method == http.MethodPost && action == "open":
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		view, err := s.service.OpenSection(ctx, session, sectionID)
		respond(w, view, err)

	case r.Method == http.MethodPost && action == "modifications":
		if !s.service.Can(session.Role, rbac.ActionPropose) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body struct {
			Instruction string `json:"instruction"`
			Wait        bool   `json:"wait"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		draft, err := s.service.RequestModification(ctx, session, sectionID, body.Instruction, body.Wait)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"draft": draft})

	case r.Method == http.MethodGet && action == "draft":
		wait := r.URL.Query().Get("wait") == "true"
		draft, err := s.service.Draft(ctx, session, sectionID, wait)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"draft": draft})

	case r.Method == http.MethodPost && action == "accept":
		if !s.service.Can(session.Role, rbac.ActionPropose) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		outcome, err := s.service.AcceptProposal(ctx, session, sectionID)
		respond(w, outcome, err)

	case r.Method == http.MethodPost && action == "initials":
		if !s.service.Can(session.Role, rbac.ActionInitial) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body struct {
			Party string `json:"party"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.ToggleInitials(ctx, session, sectionID, store.Party(strings.TrimSpace(body.Party)))
		respond(w, view, err)

	case r.Method == http.MethodGet && action == "versions":
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		versions, err := s.service.Versions(ctx, session, sectionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sectionId": sectionID, "versions": versions})

	case r.Method == http.MethodGet && action == "compare":
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		a, errA := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("a")))
		b, errB := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("b")))
		if errA != nil || errB != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a and b must be version indexes", nil)
			return
		}
		cmp, err := s.service.Compare(ctx, session, sectionID, a, b)
		respond(w, cmp, err)

	case r.Method == http.MethodPost && action == "restore":
		if !s.service.Can(session.Role, rbac.ActionRestore) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body struct {
			Index *int `json:"index"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Index == nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "index is required", nil)
			return
		}
		outcome, err := s.service.Restore(ctx, session, sectionID, *body.Index)
		respond(w, outcome, err)

	case r.Method == http.MethodPost && action == "history/close":
		writeJSON(w, http.StatusOK, s.service.CloseHistory(session))

	case r.Method == http.MethodGet && action == "archive":
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		limit, err := queryInt(r, "limit", 50)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		history, err := s.service.Archive(ctx, sectionID, limit)
		respond(w, history, err)

	case r.Method == http.MethodGet && len(rest) == 2 && rest[0] == "archive":
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		archived, err := s.service.ArchivedVersion(ctx, sectionID, rest[1])
		respond(w, archived, err)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusOK, search.Response{Results: []search.Result{}, Query: q})
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
		return
	}
	resp, err := s.service.Search(r.Context(), search.Query{
		Text:   q,
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	respond(w, resp, err)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session Session) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be 'html', 'pdf' or 'docx'", nil)
		return
	}
	upload := r.URL.Query().Get("upload") == "true"
	result, err := s.service.Export(r.Context(), session, format, upload)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	if upload {
		writeJSON(w, http.StatusOK, map[string]any{"url": result.URL, "filename": result.Filename})
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	w.Header().Set("Content-Type", result.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
		Party       string `json:"party"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	account, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
		Party:       store.Party(strings.TrimSpace(body.Party)),
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"userId":      account.ID,
		"email":       account.Email,
		"displayName": account.DisplayName,
		"party":       account.Party,
		"role":        account.Role,
	})
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"party":        session.Party,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

// allow spends one token from the session's limiter. Idle limiters are
// dropped once the table grows.
func (s *HTTPServer) allow(sessionID string) bool {
	if s.rps == rate.Inf {
		return true
	}
	now := time.Now()
	s.limitMu.Lock()
	defer s.limitMu.Unlock()
	entry, ok := s.limiters[sessionID]
	if !ok {
		if len(s.limiters) >= 1024 {
			for id, l := range s.limiters {
				if now.Sub(l.lastSeen) > 10*time.Minute {
					delete(s.limiters, id)
				}
			}
		}
		entry = &sessionLimiter{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.limiters[sessionID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (s *HTTPServer) forgetLimiter(sessionID string) {
	s.limitMu.Lock()
	defer s.limitMu.Unlock()
	delete(s.limiters, sessionID)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	log := s.service.Logger()
	m := s.service.Metrics()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		log.LogRequest(requestID, r.Method, r.URL.Path, writer.status, elapsed)
		m.RecordHTTPRequest(routeLabel(r.URL.Path), strconv.Itoa(writer.status), elapsed)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// routeLabel collapses section ids so metrics keep a bounded label set.
func routeLabel(path string) string {
	parts := splitPath(path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "sections" {
		parts[2] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func mapError(err error) (status int, code, message string, details any) {
	err = workflowError(err)
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
