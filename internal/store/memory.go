package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfrange/internal/metrics"
	"github.com/local/pdfrange/internal/orchestrator"
)

// Memory is an in-process Store. Sessions idle for longer than ttl are
// treated as gone and removed by Sweep.
type Memory struct {
	orch *orchestrator.Orchestrator
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*orchestrator.Session
}

func NewMemory(orch *orchestrator.Orchestrator, ttl time.Duration) *Memory {
	return &Memory{
		orch:     orch,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*orchestrator.Session),
	}
}

func (m *Memory) Create(context.Context) (*orchestrator.Session, error) {
	s := orchestrator.NewSession(newID(), m.orch)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.SetSessions(n)
	return s, nil
}

func (m *Memory) Get(_ context.Context, id string) (*orchestrator.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || m.expired(s) {
		return nil, ErrNotFound
	}
	s.Touch()
	return s, nil
}

// Save is a no-op: sessions are held by pointer.
func (m *Memory) Save(_ context.Context, s *orchestrator.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID()]; !ok {
		return ErrNotFound
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	metrics.SetSessions(n)
	return nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions), nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) expired(s *orchestrator.Session) bool {
	if m.ttl <= 0 || s.State() == orchestrator.StateExtracting {
		return false
	}
	return m.now().Sub(s.LastUsed()) >= m.ttl
}

// Sweep removes expired sessions and reports how many were dropped.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			s.Reset()
			delete(m.sessions, id)
			removed++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.SetSessions(n)
	if removed > 0 {
		log.Debug().Int("removed", removed).Int("remaining", n).Msg("expired sessions swept")
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}
