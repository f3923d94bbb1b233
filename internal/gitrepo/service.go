package gitrepo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Version is one accepted section text to archive.
type Version struct {
	SectionID string
	Title     string
	Content   string
	Number    int
	Author    string
	Note      string
	When      time.Time
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service mirrors each plan into its own git repository, one markdown file
// per section, so the version ledger can be inspected with ordinary git tools.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsurePlanRepo initialises the plan repository with HEAD on main. It is a
// no-op when the repository already exists.
func (s *Service) EnsurePlanRepo(planID string) error {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()
	_, err := s.openOrInit(planID)
	return err
}

// CommitVersion writes v to sections/<id>.md and commits it as v.Author.
func (s *Service) CommitVersion(planID string, v Version) (CommitInfo, error) {
	if strings.TrimSpace(v.SectionID) == "" {
		return CommitInfo{}, errors.New("archive: section id is required")
	}
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(planID)
	if err != nil {
		return CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	rel := sectionFile(v.SectionID)
	abs := filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return CommitInfo{}, fmt.Errorf("create sections dir: %w", err)
	}
	if err := os.WriteFile(abs, []byte(renderSection(v)), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write %s: %w", rel, err)
	}
	if _, err := worktree.Add(rel); err != nil {
		return CommitInfo{}, fmt.Errorf("git add %s: %w", rel, err)
	}

	when := v.When
	if when.IsZero() {
		when = time.Now()
	}
	message := fmt.Sprintf("%s: %s\n\nsection=%s version=%d", v.SectionID, v.Note, v.SectionID, v.Number)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  v.Author,
			Email: fmt.Sprintf("%s@local.coparent.dev", sanitizeEmail(v.Author)),
			When:  when,
		},
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit %s: %w", rel, err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists the commits touching one section, newest first. An empty
// sectionID lists the whole plan. A missing repository has no history.
func (s *Service) History(planID, sectionID string, limit int) ([]CommitInfo, error) {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(planID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	opts := &git.LogOptions{From: head.Hash()}
	if sectionID != "" {
		file := sectionFile(sectionID)
		opts.FileName = &file
	}
	iter, err := repo.Log(opts)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ContentAt returns the archived body of sectionID as of commit hash.
func (s *Service) ContentAt(planID, sectionID, hash string) (string, error) {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(planID))
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return "", err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commitObj.File(sectionFile(sectionID))
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", sectionID, err)
	}
	raw, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", sectionID, err)
	}
	return parseSection(raw), nil
}

func (s *Service) openOrInit(planID string) (*git.Repository, error) {
	repoPath := s.repoPath(planID)
	repo, err := git.PlainOpen(repoPath)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(repoPath, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(repoPath, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(planID string) string {
	return filepath.Join(s.baseDir, planID)
}

func (s *Service) planLock(planID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[planID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[planID] = lock
	return lock
}

func sectionFile(sectionID string) string {
	return path.Join("sections", sanitizeEmail(sectionID)+".md")
}

const bodySeparator = "\n---\n"

func renderSection(v Version) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", v.Title)
	fmt.Fprintf(&b, "- version: %d\n", v.Number)
	fmt.Fprintf(&b, "- author: %s\n", v.Author)
	fmt.Fprintf(&b, "- note: %s\n", v.Note)
	b.WriteString(bodySeparator)
	b.WriteString(v.Content)
	if !strings.HasSuffix(v.Content, "\n") {
		b.WriteByte('\n')
	}
	return b.String()
}

func parseSection(raw string) string {
	_, body, ok := strings.Cut(raw, bodySeparator)
	if !ok {
		return raw
	}
	return strings.TrimSuffix(body, "\n")
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	summary, _, _ := strings.Cut(commitObj.Message, "\n")
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   summary,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
