package workflow

import (
	"context"
	"sync"
	"time"
)

// Sessions keeps one workflow session per session id and evicts sessions
// that have been idle longer than ttl. Eviction cancels pending drafts.
type Sessions struct {
	mu       sync.Mutex
	engine   *Engine
	ttl      time.Duration
	sessions map[string]*Session
	onChange func(active int)
}

func NewSessions(engine *Engine, ttl time.Duration, onChange func(active int)) *Sessions {
	if onChange == nil {
		onChange = func(int) {}
	}
	return &Sessions{engine: engine, ttl: ttl, sessions: map[string]*Session{}, onChange: onChange}
}

// Get returns the session for sid, creating it for actor on first use. A
// session id always stays bound to the party it was created for; a caller
// presenting a different party gets a fresh session.
func (m *Sessions) Get(sid string, actor Actor) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[sid]; ok && session.actor.Party == actor.Party {
		return session
	} else if ok {
		session.Cancel()
	}
	session := m.engine.NewSession(actor)
	m.sessions[sid] = session
	m.onChange(len(m.sessions))
	return session
}

// Lookup returns an existing session without creating one.
func (m *Sessions) Lookup(sid string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sid]
	return session, ok
}

// End closes and forgets sid.
func (m *Sessions) End(sid string) {
	m.mu.Lock()
	session, ok := m.sessions[sid]
	delete(m.sessions, sid)
	active := len(m.sessions)
	m.mu.Unlock()
	if ok {
		session.Cancel()
		m.onChange(active)
	}
}

func (m *Sessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle since before now-ttl and returns how many it removed.
func (m *Sessions) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-m.ttl)

	m.mu.Lock()
	var expired []*Session
	for sid, session := range m.sessions {
		if session.LastSeen().Before(cutoff) {
			expired = append(expired, session)
			delete(m.sessions, sid)
		}
	}
	active := len(m.sessions)
	m.mu.Unlock()

	for _, session := range expired {
		session.Cancel()
	}
	if len(expired) > 0 {
		m.onChange(active)
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done, then ends every session.
func (m *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			m.Sweep(m.engine.now())
		}
	}
}

func (m *Sessions) closeAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*Session{}
	m.mu.Unlock()
	for _, session := range sessions {
		session.Cancel()
	}
	m.onChange(0)
}
