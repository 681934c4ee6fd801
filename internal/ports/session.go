package ports

import (
	"context"

	"github.com/bnema/helper-gateway/internal/domain"
)

// Session is the single source of truth for the bearer credential shared by
// the request gateway and the realtime channel.
type Session interface {
	Get() domain.Credential
	State() domain.SessionState
	CanRefresh() bool

	Set(ctx context.Context, cred domain.Credential) error
	Clear(ctx context.Context, reason domain.SignOutReason) error

	Login(ctx context.Context, cred domain.Credential) error
	Rotate(ctx context.Context, cred domain.Credential) error
	BeginRefresh(ctx context.Context) error
	RefreshSucceeded(ctx context.Context, cred domain.Credential) error
	RefreshFailed(ctx context.Context) error
	Logout(ctx context.Context) error

	ActiveJobID() string
	SetActiveJobID(ctx context.Context, id string) error
}
