// Package sessions implements the Session Store (spec §4.F): a
// thread-safe key->session map with bounded FIFO-evicted history, a
// periodic reaper, and per-session serialization for the orchestrator.
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yieldline-labs/copilot/pkg/models"
)

// Config configures a Store's bounds and reaper cadence.
type Config struct {
	MaxHistory      int
	SessionTimeout  time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig mirrors the spec §3/§4.F defaults.
func DefaultConfig() Config {
	return Config{MaxHistory: 100, SessionTimeout: 30 * time.Minute, CleanupInterval: 5 * time.Minute}
}

// entry holds one session plus the per-session lock that serializes
// requests against it (spec §3 "at most one in-flight LLM request per
// session", §4.G "Concurrency").
type entry struct {
	mu      sync.Mutex // guards session-scoped processing; not the map itself
	session models.Session
}

// Store is a thread-safe session map. The top-level mutex guards
// insert/delete of sessions; each session's own fields are guarded by its
// entry lock, acquired via Lock/Unlock around a single inbound message's
// processing.
type Store struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*entry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewStore constructs a Store and starts its reaper goroutine.
func NewStore(cfg Config) *Store {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 100
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	s := &Store{cfg: cfg, sessions: make(map[string]*entry), stopCh: make(chan struct{})}
	go s.reapLoop()
	return s
}

// Stop halts the reaper goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// GetOrCreate returns the session for id, creating it if unknown.
func (s *Store) GetOrCreate(id string) models.Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()

	s.mu.Lock()
	e, ok := s.sessions[id]
	if !ok {
		e = &entry{session: models.Session{ID: id, CreatedAt: now, LastActivity: now}}
		s.sessions[id] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSession(e.session)
}

// Lock acquires the per-session lock for id's entry, creating the session
// if it does not yet exist, and returns an unlock function plus the
// current (cloned) session. Callers must call unlock exactly once.
//
// This gives the orchestrator "at most one in-flight request per
// session" serialization (spec §3) without blocking unrelated sessions.
func (s *Store) Lock(id string) (models.Session, func()) {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()

	s.mu.Lock()
	e, ok := s.sessions[id]
	if !ok {
		e = &entry{session: models.Session{ID: id, CreatedAt: now, LastActivity: now}}
		s.sessions[id] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	return cloneSession(e.session), e.mu.Unlock
}

// Append adds message to id's session, evicting the oldest non-system
// message if MaxHistory is exceeded (spec §4.F). Caller must hold id's
// lock (i.e. call this between Lock and its unlock).
func (s *Store) Append(id string, message models.Message) models.Session {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return models.Session{}
	}

	e.session.Messages = append(e.session.Messages, message)
	e.session.Messages = evictFIFO(e.session.Messages, s.cfg.MaxHistory)
	e.session.LastActivity = time.Now()
	e.session.Metrics.MessageCount++
	if message.Role == models.RoleAssistant {
		e.session.Metrics.ToolCallCount += len(message.ToolCalls)
	}
	return cloneSession(e.session)
}

// evictFIFO trims messages to at most max entries, dropping the oldest
// non-system messages first and always retaining system messages.
func evictFIFO(messages []models.Message, max int) []models.Message {
	if max <= 0 || len(messages) <= max {
		return messages
	}

	var system []models.Message
	var rest []models.Message
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	overflow := len(messages) - max
	drop := overflow
	if drop > len(rest) {
		drop = len(rest)
	}
	rest = rest[drop:]

	out := make([]models.Message, 0, len(system)+len(rest))
	out = append(out, system...)
	out = append(out, rest...)
	return out
}

// Touch refreshes id's last-activity timestamp without appending a
// message. The gateway's PING handling does not call it.
func (s *Store) Touch(id string) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.session.LastActivity = time.Now()
	e.mu.Unlock()
}

// Close removes id's session immediately, bypassing the reaper.
func (s *Store) Close(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Get returns a cloned snapshot of id's session and whether it exists.
func (s *Store) Get(id string) (models.Session, bool) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return models.Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSession(e.session), true
}

// Metrics aggregates counters across every live session.
type Metrics struct {
	ActiveSessions int
	TotalMessages  int
}

// Snapshot returns aggregate metrics across all live sessions, for the §6
// metrics endpoint.
func (s *Store) Snapshot() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := Metrics{ActiveSessions: len(s.sessions)}
	for _, e := range s.sessions {
		e.mu.Lock()
		m.TotalMessages += e.session.Metrics.MessageCount
		e.mu.Unlock()
	}
	return m
}

func (s *Store) reapLoop() {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.reapOnce(time.Now())
		}
	}
}

func (s *Store) reapOnce(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.sessions {
		e.mu.Lock()
		stale := now.Sub(e.session.LastActivity) > s.cfg.SessionTimeout
		e.mu.Unlock()
		if stale {
			delete(s.sessions, id)
		}
	}
}

// ReapNow runs one reaper pass synchronously (used by tests and by a
// caller that wants a deterministic sweep on shutdown).
func (s *Store) ReapNow(ctx context.Context) {
	s.reapOnce(time.Now())
}

func cloneSession(src models.Session) models.Session {
	out := src
	out.Messages = make([]models.Message, len(src.Messages))
	for i, m := range src.Messages {
		out.Messages[i] = cloneMessage(m)
	}
	return out
}

func cloneMessage(src models.Message) models.Message {
	out := src
	if src.ToolCalls != nil {
		out.ToolCalls = make([]models.ToolCall, len(src.ToolCalls))
		copy(out.ToolCalls, src.ToolCalls)
	}
	return out
}
