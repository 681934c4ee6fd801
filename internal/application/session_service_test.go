package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/bnema/helper-gateway/internal/ports"
	"github.com/bnema/helper-gateway/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func mockAnyContext() interface{} {
	return mock.MatchedBy(func(context.Context) bool { return true })
}

func TestSessionLoginPersistsCredentialAndRecord(t *testing.T) {
	repo := mocks.NewMockSessionRepository(t)
	store := mocks.NewMockSecretStore(t)
	clock := mocks.NewMockClock(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	service := NewSessionService(repo, store, clock)

	clock.EXPECT().Now().Return(now)
	store.EXPECT().Put(mockAnyContext(), CredentialRef, `{"accessToken":"access-1","refreshToken":"refresh-1"}`).Return(nil)
	repo.EXPECT().Save(mockAnyContext(), ports.SessionRecord{
		State:     domain.SessionAuthenticated,
		SecretRef: CredentialRef,
		UpdatedAt: now,
	}).Return(nil)

	var observed []domain.Credential
	service.OnCredentialChange(func(cred domain.Credential) { observed = append(observed, cred) })

	err := service.Login(context.Background(), domain.Credential{AccessToken: "access-1", RefreshToken: "refresh-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.SessionAuthenticated, service.State())
	assert.Equal(t, "access-1", service.Get().AccessToken)
	require.Len(t, observed, 1)
	assert.Equal(t, "refresh-1", observed[0].RefreshToken)
}

func TestSessionLoginRejectsEmptyAccessToken(t *testing.T) {
	service := NewSessionService(nil, nil, nil)

	err := service.Login(context.Background(), domain.Credential{RefreshToken: "refresh-only"})
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Equal(t, domain.SessionUnauthenticated, service.State())
}

func TestSessionRotateKeepsRefreshTokenWhenOmitted(t *testing.T) {
	service := NewSessionService(nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, service.Login(ctx, domain.Credential{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, service.Rotate(ctx, domain.Credential{AccessToken: "a2"}))

	assert.Equal(t, domain.Credential{AccessToken: "a2", RefreshToken: "r1"}, service.Get())
	assert.Equal(t, domain.SessionAuthenticated, service.State())
}

func TestSessionRotateWithoutLoginIsInvalid(t *testing.T) {
	service := NewSessionService(nil, nil, nil)

	err := service.Rotate(context.Background(), domain.Credential{AccessToken: "a2"})
	require.ErrorIs(t, err, domain.ErrInvalidSessionTransition)
	assert.True(t, service.Get().IsZero())
}

func TestSessionSetLogsInOrRotates(t *testing.T) {
	service := NewSessionService(nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, service.Set(ctx, domain.Credential{AccessToken: "a1"}))
	assert.Equal(t, domain.SessionAuthenticated, service.State())

	require.NoError(t, service.BeginRefresh(ctx))
	require.NoError(t, service.Set(ctx, domain.Credential{AccessToken: "a2"}))
	assert.Equal(t, domain.SessionAuthenticated, service.State())
	assert.Equal(t, "a2", service.Get().AccessToken)
}

func TestSessionClearDeletesSecretAndSignalsSignOut(t *testing.T) {
	repo := mocks.NewMockSessionRepository(t)
	store := mocks.NewMockSecretStore(t)
	clock := mocks.NewMockClock(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	service := NewSessionService(repo, store, clock)
	ctx := context.Background()

	clock.EXPECT().Now().Return(now)
	store.EXPECT().Put(mockAnyContext(), CredentialRef, mock.Anything).Return(nil).Once()
	repo.EXPECT().Save(mockAnyContext(), mock.Anything).Return(nil)
	require.NoError(t, service.Login(ctx, domain.Credential{AccessToken: "a1"}))

	store.EXPECT().Delete(mockAnyContext(), CredentialRef).Return(nil).Once()

	var reasons []domain.SignOutReason
	service.OnSignedOut(func(reason domain.SignOutReason) { reasons = append(reasons, reason) })

	require.NoError(t, service.Clear(ctx, domain.SignOutAuthRejected))

	assert.True(t, service.Get().IsZero())
	assert.Equal(t, domain.SessionUnauthenticated, service.State())
	assert.False(t, service.CanRefresh())
	assert.Equal(t, []domain.SignOutReason{domain.SignOutAuthRejected}, reasons)
}

func TestSessionClearDropsCredentialWhenPersistenceFails(t *testing.T) {
	repo := mocks.NewMockSessionRepository(t)
	clock := mocks.NewMockClock(t)
	service := NewSessionService(repo, nil, clock)
	ctx := context.Background()

	clock.EXPECT().Now().Return(time.Unix(0, 0))
	repo.EXPECT().Save(mockAnyContext(), mock.Anything).Return(nil).Once()
	require.NoError(t, service.Login(ctx, domain.Credential{AccessToken: "a1"}))

	saveErr := errors.New("disk full")
	repo.EXPECT().Save(mockAnyContext(), mock.Anything).Return(saveErr).Once()

	err := service.Clear(ctx, domain.SignOutAuthRejected)
	require.ErrorIs(t, err, saveErr)
	assert.True(t, service.Get().IsZero())
}

func TestSessionLogoutEndsInLoggedOut(t *testing.T) {
	service := NewSessionService(nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, service.Login(ctx, domain.Credential{AccessToken: "a1"}))
	require.NoError(t, service.SetActiveJobID(ctx, "job-1"))
	require.NoError(t, service.Logout(ctx))

	assert.Equal(t, domain.SessionLoggedOut, service.State())
	assert.Empty(t, service.ActiveJobID())
	assert.False(t, service.CanRefresh())
}

func TestSessionObserversRegisteredDuringNotificationFireNextTime(t *testing.T) {
	service := NewSessionService(nil, nil, nil)
	ctx := context.Background()

	var calls []string
	service.OnCredentialChange(func(cred domain.Credential) {
		calls = append(calls, "first:"+cred.AccessToken)
		if cred.AccessToken == "a1" {
			service.OnCredentialChange(func(cred domain.Credential) {
				calls = append(calls, "late:"+cred.AccessToken)
			})
		}
	})
	var signedOut int
	service.OnSignedOut(func(domain.SignOutReason) {
		signedOut++
		service.OnSignedOut(func(domain.SignOutReason) { signedOut += 10 })
	})

	require.NoError(t, service.Login(ctx, domain.Credential{AccessToken: "a1"}))
	require.NoError(t, service.Rotate(ctx, domain.Credential{AccessToken: "a2"}))
	assert.Equal(t, []string{"first:a1", "first:a2", "late:a2"}, calls)

	require.NoError(t, service.Logout(ctx))
	assert.Equal(t, 1, signedOut)
}

func TestSessionRefreshLifecycle(t *testing.T) {
	service := NewSessionService(nil, nil, nil)
	ctx := context.Background()

	var reasons []domain.SignOutReason
	service.OnSignedOut(func(reason domain.SignOutReason) { reasons = append(reasons, reason) })

	require.NoError(t, service.Login(ctx, domain.Credential{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, service.BeginRefresh(ctx))
	assert.Equal(t, domain.SessionRefreshing, service.State())
	assert.True(t, service.CanRefresh())

	require.NoError(t, service.RefreshSucceeded(ctx, domain.Credential{AccessToken: "a2", RefreshToken: "r2"}))
	assert.Equal(t, domain.SessionAuthenticated, service.State())

	require.NoError(t, service.BeginRefresh(ctx))
	require.NoError(t, service.RefreshFailed(ctx))
	assert.Equal(t, domain.SessionUnauthenticated, service.State())
	assert.True(t, service.Get().IsZero())
	assert.Equal(t, []domain.SignOutReason{domain.SignOutRefreshFailed}, reasons)
}

func TestSessionBeginRefreshRequiresSession(t *testing.T) {
	service := NewSessionService(nil, nil, nil)

	err := service.BeginRefresh(context.Background())
	require.ErrorIs(t, err, domain.ErrInvalidSessionTransition)
}

func TestSessionRestore(t *testing.T) {
	tests := []struct {
		name       string
		record     ports.SessionRecord
		secret     string
		secretErr  error
		wantState  domain.SessionState
		wantAccess string
	}{
		{
			name:       "refreshing comes back authenticated",
			record:     ports.SessionRecord{State: domain.SessionRefreshing, SecretRef: CredentialRef, ActiveJobID: "job-9"},
			secret:     `{"accessToken":"a1","refreshToken":"r1"}`,
			wantState:  domain.SessionAuthenticated,
			wantAccess: "a1",
		},
		{
			name:      "missing secret downgrades to unauthenticated",
			record:    ports.SessionRecord{State: domain.SessionAuthenticated, SecretRef: CredentialRef},
			secretErr: domain.ErrSecretNotFound,
			wantState: domain.SessionUnauthenticated,
		},
		{
			name:      "logged out stays logged out",
			record:    ports.SessionRecord{State: domain.SessionLoggedOut},
			wantState: domain.SessionLoggedOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockSessionRepository(t)
			store := mocks.NewMockSecretStore(t)
			service := NewSessionService(repo, store, nil)

			repo.EXPECT().Load(mockAnyContext()).Return(tt.record, nil)
			if tt.record.SecretRef != "" {
				store.EXPECT().Get(mockAnyContext(), tt.record.SecretRef).Return(tt.secret, tt.secretErr)
			}

			require.NoError(t, service.Restore(context.Background()))
			assert.Equal(t, tt.wantState, service.State())
			assert.Equal(t, tt.wantAccess, service.Get().AccessToken)
			assert.Equal(t, tt.record.ActiveJobID, service.ActiveJobID())
		})
	}
}

func TestSessionRestoreWithoutRecord(t *testing.T) {
	repo := mocks.NewMockSessionRepository(t)
	service := NewSessionService(repo, nil, nil)

	repo.EXPECT().Load(mockAnyContext()).Return(ports.SessionRecord{}, domain.ErrSessionNotFound)

	require.NoError(t, service.Restore(context.Background()))
	assert.Equal(t, domain.SessionUnauthenticated, service.State())
}
