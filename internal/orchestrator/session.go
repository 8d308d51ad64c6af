package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/local/pdfrange/internal/logger"
	"github.com/local/pdfrange/internal/metrics"
)

// State is the session lifecycle: Empty -> Loaded -> (Extracting -> Loaded)*.
type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateExtracting
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateExtracting:
		return "extracting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Guard admits one operation at a time. Acquire returns ErrBusy when
// another holder is active.
type Guard interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// localGuard is an in-process Guard.
type localGuard struct{ busy atomic.Bool }

func (g *localGuard) Acquire(context.Context) (func(), error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	var once sync.Once
	return func() { once.Do(func() { g.busy.Store(false) }) }, nil
}

// SessionOption customises a new Session.
type SessionOption func(*Session)

// WithGuard replaces the in-process guard, e.g. with a distributed lock.
func WithGuard(g Guard) SessionOption { return func(s *Session) { s.guard = g } }

// WithSource starts the session in Loaded with src.
func WithSource(src *Source) SessionOption { return func(s *Session) { s.source = src } }

// Session holds one user's current Source. Overlapping operations are
// rejected with ErrBusy, never queued.
type Session struct {
	id    string
	orch  *Orchestrator
	guard Guard

	mu         sync.RWMutex
	source     *Source
	extracting bool
	lastUsed   time.Time
}

func NewSession(id string, orch *Orchestrator, opts ...SessionOption) *Session {
	s := &Session{id: id, orch: orch, guard: &localGuard{}, lastUsed: time.Now()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.source == nil:
		return StateEmpty
	case s.extracting:
		return StateExtracting
	default:
		return StateLoaded
	}
}

// Source returns the current document, or nil when Empty.
func (s *Session) Source() *Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// DefaultRange is the whole document, the range the page pre-fills after a load.
func (s *Session) DefaultRange() (PageRange, bool) {
	src := s.Source()
	if src == nil || src.PageCount() == 0 {
		return PageRange{}, false
	}
	return PageRange{Start: 1, End: src.PageCount()}, true
}

// LastUsed is when the session was created or last operated on.
func (s *Session) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// Load replaces the session's document. On any load failure the session
// is reset to Empty so no stale document survives.
func (s *Session) Load(ctx context.Context, name string, raw []byte) (*Source, error) {
	s.Touch()
	release, err := s.guard.Acquire(ctx)
	if err != nil {
		metrics.IncLoad(resultLabel(err))
		return nil, err
	}
	defer release()

	src, err := s.orch.LoadSource(ctx, name, raw)
	metrics.IncLoad(resultLabel(err))
	if err != nil {
		s.Reset()
		l := logger.ForSession(s.id)
		l.Warn().Err(err).Str("file", name).Int("bytes", len(raw)).Msg("pdf load failed; session reset")
		return nil, err
	}

	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
	l := logger.ForSession(s.id)
	l.Info().Str("file", name).Int("pages", src.PageCount()).Str("fingerprint", src.Fingerprint()).Msg("pdf loaded")
	return src, nil
}

// Extract validates the raw start/end fields and extracts that range from
// the current document. The session stays Loaded whatever the outcome.
func (s *Session) Extract(ctx context.Context, start, end string) (ext *Extract, err error) {
	s.Touch()
	defer func() { metrics.IncExtraction(resultLabel(err)) }()

	// Source is read under the guard; a concurrent Load reports ErrBusy.
	release, err := s.guard.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	src := s.Source()
	if src == nil {
		return nil, ErrNoSource
	}
	r, err := ParseRange(start, end)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(src.PageCount()); err != nil {
		return nil, err
	}

	s.setExtracting(true)
	defer s.setExtracting(false)

	ext, err = s.orch.ExtractRange(ctx, src, r.Start, r.End)
	if err != nil {
		l := logger.ForSession(s.id)
		l.Error().Err(err).Str("range", r.String()).Msg("extraction failed")
		return nil, err
	}
	l := logger.ForSession(s.id)
	l.Info().Int("start", r.Start).Int("end", r.End).Int("bytes", len(ext.Data)).Msg("pages extracted")
	return ext, nil
}

func (s *Session) setExtracting(v bool) {
	s.mu.Lock()
	s.extracting = v
	s.mu.Unlock()
}

// Abandon resets the session after a load that failed before its bytes
// reached Load, e.g. an unreachable reference. It returns ErrBusy and
// leaves the session alone while another operation holds it.
func (s *Session) Abandon(ctx context.Context, cause error) error {
	s.Touch()
	release, err := s.guard.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.Reset()
	metrics.IncLoad(resultLabel(cause))
	l := logger.ForSession(s.id)
	l.Warn().Err(cause).Msg("pdf load failed; session reset")
	return nil
}

// Reset drops the current document and returns the session to Empty.
func (s *Session) Reset() {
	s.mu.Lock()
	s.source = nil
	s.extracting = false
	s.mu.Unlock()
}
