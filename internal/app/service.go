package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"coparent/api/internal/auth"
	"coparent/api/internal/authpw"
	"coparent/api/internal/config"
	"coparent/api/internal/email"
	"coparent/api/internal/export"
	"coparent/api/internal/gitrepo"
	"coparent/api/internal/logger"
	"coparent/api/internal/metrics"
	"coparent/api/internal/rbac"
	"coparent/api/internal/search"
	"coparent/api/internal/session"
	"coparent/api/internal/store"
	"coparent/api/internal/util"
	"coparent/api/internal/workflow"
)

// Session is an authenticated caller. SessionID names the workflow session
// the caller's requests run against; it is carried over on refresh.
type Session struct {
	Token        string
	RefreshToken string
	SessionID    string
	UserID       string
	UserName     string
	Party        store.Party
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	workflow.Store
	authpw.AccountStore
	Ping(context.Context) error
	ListAccountsByParty(context.Context, store.Party) ([]store.Account, error)
}

type archiver interface {
	CommitVersion(planID string, v gitrepo.Version) (gitrepo.CommitInfo, error)
	History(planID, sectionID string, limit int) ([]gitrepo.CommitInfo, error)
	ContentAt(planID, sectionID, hash string) (string, error)
}

type notifier interface {
	IsConfigured() bool
	SendReviewRequest(to []string, data email.ReviewRequestData) error
}

// Deps are the collaborators New wires together. Everything except Store is
// optional.
type Deps struct {
	Store    dataStore
	Refresh  session.Store
	Archive  *gitrepo.Service
	Meili    *search.Meili
	SearchDB *sql.DB
	Uploader export.Uploader
	Mailer   *email.Service
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
	Drafter  workflow.Drafter
	Now      func() time.Time
}

type Service struct {
	cfg      config.Config
	store    dataStore
	refresh  session.Store
	engine   *workflow.Engine
	sessions *workflow.Sessions
	accounts *authpw.Service
	search   *search.Service
	exporter *export.Service
	archive  archiver
	mailer   notifier
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time

	revokedMu sync.Mutex
	revoked   map[string]time.Time
	pending   sync.WaitGroup
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		refresh:  deps.Refresh,
		accounts: authpw.NewService(deps.Store),
		metrics:  deps.Metrics,
		log:      deps.Logger,
		now:      deps.Now,
		revoked:  make(map[string]time.Time),
	}
	if s.refresh == nil {
		s.refresh = session.NewMemoryStore()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Archive != nil {
		s.archive = deps.Archive
	}
	if deps.Mailer != nil {
		s.mailer = deps.Mailer
	}

	drafter := deps.Drafter
	if drafter == nil {
		drafter = workflow.ConcatDrafter{Delay: cfg.DraftDelay}
	}
	s.engine = workflow.NewEngine(deps.Store, workflow.Options{
		Drafter:  drafter,
		Observer: s,
		Names:    workflow.PartyNames{PartyA: cfg.PartyAName, PartyB: cfg.PartyBName},
		Now:      s.now,
	})
	s.sessions = workflow.NewSessions(s.engine, cfg.SessionTTL, func(active int) {
		s.metrics.ActiveSessions.Set(float64(active))
	})

	var fallback search.Searcher
	if deps.SearchDB != nil {
		fallback = search.NewPgFTS(deps.SearchDB)
	} else {
		fallback = search.NewScanSearcher(s.SectionRecords)
	}
	s.search = search.NewService(deps.Meili, fallback, s.log)
	s.exporter = export.NewService(s, deps.Uploader)
	return s
}

func (s *Service) Engine() *workflow.Engine {
	return s.engine
}

func (s *Service) Sessions() *workflow.Sessions {
	return s.sessions
}

func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

func (s *Service) Logger() *logger.Logger {
	return s.log
}

func (s *Service) Config() config.Config {
	return s.cfg
}

// Bootstrap pushes every section to the search index.
func (s *Service) Bootstrap(ctx context.Context) {
	s.search.ReindexAll(ctx, s.SectionRecords)
}

// Close waits for outstanding notifications.
func (s *Service) Close() {
	s.pending.Wait()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingRefreshStore(ctx context.Context) error {
	return s.refresh.Ping(ctx)
}

// Login is the development login: it acts for a party under the configured
// display name without a password. An empty party logs in a read-only
// viewer.
func (s *Service) Login(ctx context.Context, party, role string) (Session, error) {
	p := store.Party(strings.TrimSpace(party))
	if p != "" && !p.Valid() {
		return Session{}, workflow.ErrInvalidParty
	}
	identity := session.TokenData{
		Subject:     "party:" + string(p),
		DisplayName: s.engine.Names().Name(p),
		Party:       string(p),
		Role:        string(rbac.RoleParent),
	}
	if p == "" {
		identity.Subject = "viewer"
		identity.DisplayName = "Viewer"
		identity.Role = string(rbac.RoleViewer)
	}
	if rbac.Role(role) == rbac.RoleAdmin && p != "" {
		identity.Role = string(rbac.RoleAdmin)
	}
	identity.SessionID = util.NewID("sess")
	return s.issueSession(ctx, identity)
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (store.Account, error) {
	account, err := s.accounts.SignUp(ctx, req)
	return account, workflowError(err)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	account, err := s.accounts.SignIn(ctx, req)
	if err != nil {
		return Session{}, workflowError(err)
	}
	return s.issueSession(ctx, session.TokenData{
		Subject:     account.ID,
		DisplayName: account.DisplayName,
		Party:       string(account.Party),
		Role:        account.Role,
		SessionID:   util.NewID("sess"),
	})
}

// Refresh exchanges a refresh token for a new pair. The workflow session is
// kept.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	identity, err := s.refresh.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if err := s.refresh.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, identity)
}

func (s *Service) issueSession(ctx context.Context, identity session.TokenData) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   identity.Subject,
		Name:  identity.DisplayName,
		Party: identity.Party,
		Role:  identity.Role,
		Sid:   identity.SessionID,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	identity.CreatedAt = now
	if err := s.refresh.SaveRefreshSession(ctx, auth.HashToken(refresh), identity, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		SessionID:    identity.SessionID,
		UserID:       identity.Subject,
		UserName:     identity.DisplayName,
		Party:        store.Party(identity.Party),
		Role:         identity.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	if s.isRevoked(claims.JTI) {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:     token,
		SessionID: claims.Sid,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Party:     store.Party(claims.Party),
		Role:      claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes both tokens and ends the workflow session, discarding any
// pending proposal.
func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		s.revoke(sess.JTI, sess.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.refresh.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	if sess.SessionID != "" {
		s.sessions.End(sess.SessionID)
	}
	return nil
}

func (s *Service) revoke(jti string, until time.Time) {
	s.revokedMu.Lock()
	defer s.revokedMu.Unlock()
	now := s.now()
	for id, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, id)
		}
	}
	s.revoked[jti] = until
}

func (s *Service) isRevoked(jti string) bool {
	s.revokedMu.Lock()
	defer s.revokedMu.Unlock()
	_, ok := s.revoked[jti]
	return ok
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) workflow(sess Session) *workflow.Session {
	return s.sessions.Get(sess.SessionID, workflow.Actor{Party: sess.Party, DisplayName: sess.UserName})
}

// requireParty rejects callers that cannot author a version.
func requireParty(sess Session) error {
	if !sess.Party.Valid() {
		return errPartyMissing
	}
	return nil
}

func (s *Service) PlanSummary(ctx context.Context) (workflow.PlanSummary, error) {
	return s.engine.Summary(ctx)
}

func (s *Service) Section(ctx context.Context, id store.SectionID) (workflow.SectionView, error) {
	view, err := s.engine.Section(ctx, id)
	return view, workflowError(err)
}

func (s *Service) Workflow(sess Session) workflow.Snapshot {
	return s.workflow(sess).Snapshot()
}

func (s *Service) CloseWorkflow(sess Session) workflow.Snapshot {
	ws := s.workflow(sess)
	ws.CloseSection()
	return ws.Snapshot()
}

func (s *Service) OpenSection(ctx context.Context, sess Session, id store.SectionID) (workflow.SectionView, error) {
	view, err := s.workflow(sess).OpenSection(ctx, id)
	return view, workflowError(err)
}

const draftWaitTimeout = 30 * time.Second

// RequestModification starts drafting. With wait set it returns once the
// draft is ready.
func (s *Service) RequestModification(ctx context.Context, sess Session, id store.SectionID, instruction string, wait bool) (*workflow.DraftView, error) {
	if err := requireParty(sess); err != nil {
		return nil, err
	}
	ws := s.workflow(sess)
	view, err := ws.RequestModification(ctx, id, instruction)
	if err != nil || !wait {
		return view, workflowError(err)
	}
	return s.waitDraft(ctx, ws)
}

// Draft returns the pending proposal for id, optionally waiting for it.
func (s *Service) Draft(ctx context.Context, sess Session, id store.SectionID, wait bool) (*workflow.DraftView, error) {
	ws := s.workflow(sess)
	view := ws.Draft()
	if view == nil || view.SectionID != id {
		return nil, workflowError(workflow.ErrNoDraft)
	}
	if !wait || view.Ready {
		return view, nil
	}
	return s.waitDraft(ctx, ws)
}

func (s *Service) waitDraft(ctx context.Context, ws *workflow.Session) (*workflow.DraftView, error) {
	waitCtx, cancel := context.WithTimeout(ctx, draftWaitTimeout)
	defer cancel()
	view, err := ws.WaitDraft(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		return ws.Draft(), nil
	}
	return view, workflowError(err)
}

func (s *Service) AcceptProposal(ctx context.Context, sess Session, id store.SectionID) (workflow.Outcome, error) {
	if err := requireParty(sess); err != nil {
		return workflow.Outcome{}, err
	}
	outcome, err := s.workflow(sess).AcceptProposal(ctx, id)
	return outcome, workflowError(err)
}

// ToggleInitials flips target's initials. An empty target means the caller's
// own party.
func (s *Service) ToggleInitials(ctx context.Context, sess Session, id store.SectionID, target store.Party) (workflow.SectionView, error) {
	if target == "" {
		target = sess.Party
	}
	if !target.Valid() {
		return workflow.SectionView{}, workflowError(workflow.ErrInvalidParty)
	}
	if !rbac.CanInitialFor(rbac.Normalize(sess.Role), sess.Party, target) {
		return workflow.SectionView{}, domainError(http.StatusForbidden, "FORBIDDEN", "You can only add or remove your own initials", nil)
	}
	if _, err := s.workflow(sess).ToggleInitials(ctx, id, target); err != nil {
		return workflow.SectionView{}, workflowError(err)
	}
	view, err := s.engine.Section(ctx, id)
	if err != nil {
		return workflow.SectionView{}, err
	}
	s.indexSection(view)
	return view, nil
}

func (s *Service) Versions(ctx context.Context, sess Session, id store.SectionID) ([]workflow.VersionView, error) {
	versions, err := s.workflow(sess).OpenHistory(ctx, id)
	return versions, workflowError(err)
}

func (s *Service) Compare(ctx context.Context, sess Session, id store.SectionID, a, b int) (workflow.Comparison, error) {
	cmp, err := s.workflow(sess).Compare(ctx, id, a, b)
	return cmp, workflowError(err)
}

func (s *Service) Restore(ctx context.Context, sess Session, id store.SectionID, index int) (workflow.Outcome, error) {
	if err := requireParty(sess); err != nil {
		return workflow.Outcome{}, err
	}
	outcome, err := s.workflow(sess).Restore(ctx, id, index)
	return outcome, workflowError(err)
}

func (s *Service) CloseHistory(sess Session) workflow.Snapshot {
	ws := s.workflow(sess)
	ws.CloseHistory()
	return ws.Snapshot()
}

// ArchiveHistory is the git history of one section.
type ArchiveHistory struct {
	Enabled bool                 `json:"enabled"`
	Commits []gitrepo.CommitInfo `json:"commits"`
}

func (s *Service) Archive(_ context.Context, id store.SectionID, limit int) (ArchiveHistory, error) {
	if s.archive == nil {
		return ArchiveHistory{Commits: []gitrepo.CommitInfo{}}, nil
	}
	commits, err := s.archive.History(s.cfg.PlanID, string(id), limit)
	if err != nil {
		return ArchiveHistory{}, err
	}
	return ArchiveHistory{Enabled: true, Commits: commits}, nil
}

// ArchivedContent is a section body as it stood at one archive commit.
type ArchivedContent struct {
	SectionID string `json:"sectionId"`
	Hash      string `json:"hash"`
	Content   string `json:"content"`
}

func (s *Service) ArchivedVersion(_ context.Context, id store.SectionID, hash string) (ArchivedContent, error) {
	if s.archive == nil {
		return ArchivedContent{}, domainError(http.StatusNotFound, "ARCHIVE_DISABLED", "Version archive is not configured", nil)
	}
	content, err := s.archive.ContentAt(s.cfg.PlanID, string(id), hash)
	if err != nil {
		s.log.Debug().Err(err).Str("hash", hash).Msg("archive lookup")
		return ArchivedContent{}, domainError(http.StatusNotFound, "NOT_FOUND", "Archived version not found", map[string]string{"hash": hash})
	}
	return ArchivedContent{SectionID: string(id), Hash: hash, Content: content}, nil
}

// Search runs a full-text query over section titles and content. Results
// carry the section's current status, and a status filter is applied here
// for searchers that cannot filter on it.
func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	q.PlanID = s.cfg.PlanID
	resp := s.search.Search(q)
	summary, err := s.engine.Summary(ctx)
	if err != nil {
		return search.Response{}, err
	}
	statuses := make(map[string]string, len(summary.Sections))
	for _, section := range summary.Sections {
		statuses[string(section.ID)] = string(section.Status)
	}
	filtered := resp.Results[:0]
	for _, result := range resp.Results {
		if status, ok := statuses[result.SectionID]; ok {
			result.Status = status
		}
		if q.Status != "" && result.Status != q.Status {
			continue
		}
		filtered = append(filtered, result)
	}
	if len(filtered) != len(resp.Results) {
		resp.Total = len(filtered)
	}
	resp.Results = filtered
	return resp, nil
}

// SectionRecords lists every section as a search record.
func (s *Service) SectionRecords(ctx context.Context) ([]search.SectionRecord, error) {
	summary, err := s.engine.Summary(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]search.SectionRecord, 0, len(summary.Sections))
	for _, section := range summary.Sections {
		records = append(records, s.sectionRecord(section))
	}
	return records, nil
}

func (s *Service) sectionRecord(view workflow.SectionView) search.SectionRecord {
	return search.SectionRecord{
		ID:        search.RecordID(s.cfg.PlanID, string(view.ID)),
		PlanID:    s.cfg.PlanID,
		SectionID: string(view.ID),
		Title:     view.Title,
		Content:   view.Content,
		Status:    string(view.Status),
	}
}

func (s *Service) indexSection(view workflow.SectionView) {
	s.search.IndexSection(s.sectionRecord(view))
}

func (s *Service) Export(ctx context.Context, sess Session, format export.Format, upload bool) (*export.Result, error) {
	result, err := s.exporter.Export(ctx, export.Request{
		Format:      format,
		GeneratedBy: sess.UserName,
		Upload:      upload,
	})
	return result, workflowError(err)
}

// ExportPlan snapshots the plan for export.
func (s *Service) ExportPlan(ctx context.Context) (export.Plan, error) {
	summary, err := s.engine.Summary(ctx)
	if err != nil {
		return export.Plan{}, err
	}
	names := s.engine.Names()
	plan := export.Plan{
		ID:         s.cfg.PlanID,
		Title:      "Parenting Plan",
		PartyAName: names.PartyA,
		PartyBName: names.PartyB,
		Completion: summary.Completion,
		Sections:   make([]export.Section, 0, len(summary.Sections)),
	}
	for _, section := range summary.Sections {
		plan.Sections = append(plan.Sections, export.Section{
			ID:           string(section.ID),
			Title:        section.Title,
			Content:      section.Content,
			Status:       string(section.Status),
			PartyA:       section.Approval.PartyA,
			PartyB:       section.Approval.PartyB,
			VersionCount: section.VersionCount,
		})
	}
	return plan, nil
}

// VersionRecorded mirrors a new version to the archive and the search index
// and asks the other party to review it.
func (s *Service) VersionRecorded(ctx context.Context, event workflow.VersionEvent) {
	s.metrics.RecordVersion(string(event.Kind))
	number := event.Entry.Seq + 1
	log := s.log.WithFields(map[string]any{
		"section": string(event.Section.ID),
		"version": number,
		"kind":    string(event.Kind),
	})
	log.Info().Str("author", event.Entry.Author).Msg("version recorded")

	if s.archive != nil {
		started := time.Now()
		_, err := s.archive.CommitVersion(s.cfg.PlanID, gitrepo.Version{
			SectionID: string(event.Section.ID),
			Title:     event.Section.Title,
			Content:   event.Entry.Content,
			Number:    number,
			Author:    event.Entry.Author,
			Note:      event.Entry.Note,
			When:      event.Entry.CreatedAt,
		})
		s.log.LogStoreOperation("archive_commit", time.Since(started), err)
	}

	s.search.IndexSection(search.SectionRecord{
		ID:        search.RecordID(s.cfg.PlanID, string(event.Section.ID)),
		PlanID:    s.cfg.PlanID,
		SectionID: string(event.Section.ID),
		Title:     event.Section.Title,
		Content:   event.Entry.Content,
		Status:    string(workflow.DeriveStatus(event.Approval, number)),
	})

	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	reviewer := event.Author.Party.Other()
	if !reviewer.Valid() {
		return
	}
	recipients, err := s.store.ListAccountsByParty(ctx, reviewer)
	if err != nil {
		log.Warn().Err(err).Msg("list reviewers")
		return
	}
	data := email.ReviewRequestData{
		AuthorName:    event.Entry.Author,
		SectionTitle:  event.Section.Title,
		Note:          event.Entry.Note,
		VersionNumber: number,
	}
	for _, account := range recipients {
		data := data
		data.RecipientName = account.DisplayName
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			if err := s.mailer.SendReviewRequest([]string{account.Email}, data); err != nil {
				log.Warn().Err(err).Str("recipient", account.Email).Msg("send review request")
			}
		}()
	}
}

func (s *Service) DraftStarted(store.SectionID) {
	s.metrics.RecordDraftStarted()
}

func (s *Service) DraftCancelled(store.SectionID) {
	s.metrics.RecordDraftCancelled()
}

func (s *Service) GuardRejected(operation string) {
	s.metrics.RecordGuardRejection(operation)
}
