// Package store keeps orchestrator sessions between HTTP requests.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/local/pdfrange/internal/orchestrator"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Store creates, restores and expires sessions. Save must be called after
// a session's source changes so backends that serialise state see it.
type Store interface {
	Create(ctx context.Context) (*orchestrator.Session, error)
	Get(ctx context.Context, id string) (*orchestrator.Session, error)
	Save(ctx context.Context, s *orchestrator.Session) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

func newID() string { return uuid.NewString() }
