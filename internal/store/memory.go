package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"coparent/api/internal/util"
)

var (
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrStaleContent reports that a conditional commit found the section
	// text changed since the caller read it.
	ErrStaleContent = errors.New("section content changed")
)

// MemoryStore keeps a single plan in process memory. It is the default store
// when no database is configured; nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	sections  map[SectionID]Section
	versions  map[SectionID][]VersionEntry
	approvals map[SectionID]Approval
	accounts  map[string]Account
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sections:  map[SectionID]Section{},
		versions:  map[SectionID][]VersionEntry{},
		approvals: map[SectionID]Approval{},
		accounts:  map[string]Account{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) ListSections(_ context.Context) ([]Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Section, 0, len(s.sections))
	for _, section := range s.sections {
		items = append(items, section)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].SortOrder != items[j].SortOrder {
			return items[i].SortOrder < items[j].SortOrder
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *MemoryStore) GetSection(_ context.Context, id SectionID) (Section, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	section, ok := s.sections[id]
	return section, ok, nil
}

func (s *MemoryStore) EnsureSection(_ context.Context, section Section, approval Approval) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sections[section.ID]; ok {
		return false, nil
	}
	section.UpdatedAt = s.now()
	s.sections[section.ID] = section
	s.approvals[section.ID] = approval
	return true, nil
}

func (s *MemoryStore) SetContent(_ context.Context, id SectionID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setContentLocked(id, content)
	return nil
}

func (s *MemoryStore) ListVersions(_ context.Context, id SectionID) ([]VersionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.versions[id]
	out := make([]VersionEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *MemoryStore) VersionCounts(_ context.Context) (map[SectionID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[SectionID]int, len(s.versions))
	for id, entries := range s.versions {
		counts[id] = len(entries)
	}
	return counts, nil
}

func (s *MemoryStore) SeedVersion(_ context.Context, entry VersionEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.versions[entry.SectionID]) > 0 {
		return false, nil
	}
	s.ensureSectionLocked(entry.SectionID)
	s.appendLocked(entry)
	return true, nil
}

func (s *MemoryStore) AppendVersion(_ context.Context, entry VersionEntry) (VersionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureSectionLocked(entry.SectionID)
	return s.appendLocked(entry), nil
}

func (s *MemoryStore) GetApproval(_ context.Context, id SectionID) (Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approvals[id], nil
}

func (s *MemoryStore) SetApproval(_ context.Context, id SectionID, approval Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureSectionLocked(id)
	s.approvals[id] = approval
	return nil
}

func (s *MemoryStore) ToggleApproval(_ context.Context, id SectionID, party Party) (Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureSectionLocked(id)
	current := s.approvals[id]
	next := current.With(party, !current.For(party))
	s.approvals[id] = next
	return next, nil
}

// CommitVersion writes content, ledger entry and approval under one lock.
// A non-nil base must equal the current content or ErrStaleContent is
// returned and nothing is written.
func (s *MemoryStore) CommitVersion(_ context.Context, entry VersionEntry, approval Approval, base *string) (VersionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if base != nil && s.sections[entry.SectionID].Content != *base {
		return VersionEntry{}, ErrStaleContent
	}
	s.setContentLocked(entry.SectionID, entry.Content)
	stored := s.appendLocked(entry)
	s.approvals[entry.SectionID] = approval
	return stored, nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(account.Email)
	for _, existing := range s.accounts {
		if strings.ToLower(existing.Email) == email {
			return ErrDuplicateEmail
		}
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.now()
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *MemoryStore) GetAccountByEmail(_ context.Context, email string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, account := range s.accounts {
		if strings.ToLower(account.Email) == email {
			return account, nil
		}
	}
	return Account{}, sql.ErrNoRows
}

func (s *MemoryStore) GetAccountByID(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (s *MemoryStore) ListAccountsByParty(_ context.Context, party Party) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []Account
	for _, account := range s.accounts {
		if account.Party == party {
			items = append(items, account)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Email < items[j].Email })
	return items, nil
}

func (s *MemoryStore) ensureSectionLocked(id SectionID) {
	if _, ok := s.sections[id]; ok {
		return
	}
	s.sections[id] = Section{ID: id, Title: string(id), SortOrder: len(s.sections), UpdatedAt: s.now()}
}

func (s *MemoryStore) setContentLocked(id SectionID, content string) {
	s.ensureSectionLocked(id)
	section := s.sections[id]
	section.Content = content
	section.UpdatedAt = s.now()
	s.sections[id] = section
}

func (s *MemoryStore) appendLocked(entry VersionEntry) VersionEntry {
	if entry.ID == "" {
		entry.ID = util.NewID("ver")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	entry.Seq = len(s.versions[entry.SectionID])
	s.versions[entry.SectionID] = append(s.versions[entry.SectionID], entry)
	return entry
}
