package ports

import (
	"context"
	"time"

	"github.com/bnema/helper-gateway/internal/domain"
)

// SessionRecord is the non-secret half of a session. The credential itself
// lives in a SecretStore under SecretRef.
type SessionRecord struct {
	State       domain.SessionState
	SecretRef   string
	ActiveJobID string
	UpdatedAt   time.Time
}

// SessionRepository MUST return domain.ErrSessionNotFound from Load when no
// record was saved yet.
type SessionRepository interface {
	Load(ctx context.Context) (SessionRecord, error)
	Save(ctx context.Context, record SessionRecord) error
}
