package recorder

import (
	"context"

	"github.com/filipezaidan/google-meet-captions/internal/caption"
)

// Store persists full session snapshots keyed by session id.
type Store interface {
	// Save upserts s, replacing any previous snapshot with the same id.
	Save(ctx context.Context, s *caption.Session) error
	// Load returns caption.ErrSessionNotFound for unknown ids.
	Load(ctx context.Context, sessionID string) (*caption.Session, error)
	// List returns every stored session, most recently updated first.
	List(ctx context.Context) ([]caption.Summary, error)
}

// OpenFunc opens the store. The engine calls it lazily and keeps the result.
type OpenFunc func() (Store, error)
