package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/bnema/helper-gateway/internal/ports"
	"github.com/goccy/go-json"
)

// CredentialRef is the secret store key holding the serialized credential.
const CredentialRef = "helper/session/credential"

type SessionService struct {
	repo  ports.SessionRepository
	store ports.SecretStore
	clock ports.Clock

	mu     sync.RWMutex
	cred   domain.Credential
	record ports.SessionRecord

	obsMu       sync.RWMutex
	onCred      []func(domain.Credential)
	onSignedOut []func(domain.SignOutReason)
}

var _ ports.Session = (*SessionService)(nil)

// NewSessionService builds a session backed by repo and store. Either may be
// nil, in which case that half of the session lives in memory only.
func NewSessionService(repo ports.SessionRepository, store ports.SecretStore, clock ports.Clock) *SessionService {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &SessionService{
		repo:   repo,
		store:  store,
		clock:  clock,
		record: ports.SessionRecord{State: domain.SessionUnauthenticated},
	}
}

// OnCredentialChange registers fn to run after every credential update.
func (s *SessionService) OnCredentialChange(fn func(domain.Credential)) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.onCred = append(s.onCred, fn)
}

// OnSignedOut registers fn to run after the credential was cleared.
func (s *SessionService) OnSignedOut(fn func(domain.SignOutReason)) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.onSignedOut = append(s.onSignedOut, fn)
}

// Restore loads the persisted session. A session saved mid-refresh comes back
// as authenticated so the next protected call can retry the refresh.
func (s *SessionService) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	record, err := s.repo.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("load session record: %w", err)
	}

	state, err := domain.ParseSessionState(string(record.State))
	if err != nil {
		return fmt.Errorf("parse session record: %w", err)
	}
	if state == domain.SessionRefreshing {
		state = domain.SessionAuthenticated
	}
	record.State = state

	var cred domain.Credential
	if record.SecretRef != "" && s.store != nil {
		cred, err = s.loadCredential(ctx, record.SecretRef)
		if err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
			return err
		}
	}
	if cred.IsZero() && record.State == domain.SessionAuthenticated {
		record.State = domain.SessionUnauthenticated
	}

	s.mu.Lock()
	s.cred = cred
	s.record = record
	s.mu.Unlock()

	return nil
}

func (s *SessionService) Get() domain.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

func (s *SessionService) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.State
}

func (s *SessionService) CanRefresh() bool {
	return s.State().CanRefresh()
}

func (s *SessionService) ActiveJobID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.ActiveJobID
}

func (s *SessionService) SetActiveJobID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record.ActiveJobID = id
	return s.saveRecordLocked(ctx)
}

// Set stores cred as the current credential. It logs the session in when no
// session is active and counts as a rotation otherwise.
func (s *SessionService) Set(ctx context.Context, cred domain.Credential) error {
	trigger := domain.TriggerTokenRotated
	if !s.State().CanRefresh() {
		trigger = domain.TriggerLogin
	}
	return s.apply(ctx, trigger, cred)
}

func (s *SessionService) Login(ctx context.Context, cred domain.Credential) error {
	return s.apply(ctx, domain.TriggerLogin, cred)
}

func (s *SessionService) Rotate(ctx context.Context, cred domain.Credential) error {
	return s.apply(ctx, domain.TriggerTokenRotated, cred)
}

func (s *SessionService) RefreshSucceeded(ctx context.Context, cred domain.Credential) error {
	return s.apply(ctx, domain.TriggerRefreshSucceeded, cred)
}

func (s *SessionService) BeginRefresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.record.State.Next(domain.TriggerRefreshStarted)
	if err != nil {
		return err
	}
	s.record.State = next
	return s.saveRecordLocked(ctx)
}

func (s *SessionService) RefreshFailed(ctx context.Context) error {
	return s.Clear(ctx, domain.SignOutRefreshFailed)
}

func (s *SessionService) Logout(ctx context.Context) error {
	return s.Clear(ctx, domain.SignOutExplicit)
}

// Clear drops the credential in memory before touching storage so readers
// observe the absence even when persistence fails.
func (s *SessionService) Clear(ctx context.Context, reason domain.SignOutReason) error {
	trigger := domain.TriggerInvalidated
	switch reason {
	case domain.SignOutExplicit:
		trigger = domain.TriggerLogout
	case domain.SignOutRefreshFailed:
		if s.State() == domain.SessionRefreshing {
			trigger = domain.TriggerRefreshFailed
		}
	}

	s.mu.Lock()
	next, err := s.record.State.Next(trigger)
	if err != nil {
		next = domain.SessionUnauthenticated
	}
	s.cred = domain.Credential{}
	s.record.State = next
	s.record.ActiveJobID = ""
	ref := s.record.SecretRef
	s.record.SecretRef = ""

	var persistErr error
	if ref != "" && s.store != nil {
		if err := s.store.Delete(ctx, ref); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
			persistErr = fmt.Errorf("delete session credential: %w", err)
		}
	}
	if err := s.saveRecordLocked(ctx); err != nil {
		persistErr = errors.Join(persistErr, err)
	}
	s.mu.Unlock()

	for _, fn := range s.signedOutObservers() {
		fn(reason)
	}

	return persistErr
}

func (s *SessionService) apply(ctx context.Context, trigger domain.SessionTrigger, cred domain.Credential) error {
	if !cred.HasAccessToken() {
		return fmt.Errorf("%s: %w", trigger, domain.ErrNotAuthenticated)
	}

	s.mu.Lock()
	next, err := s.record.State.Next(trigger)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = s.cred.RefreshToken
	}
	s.cred = cred
	s.record.State = next

	var persistErr error
	if s.store != nil {
		if err := s.storeCredentialLocked(ctx, cred); err != nil {
			persistErr = err
		} else {
			s.record.SecretRef = CredentialRef
		}
	}
	if err := s.saveRecordLocked(ctx); err != nil {
		persistErr = errors.Join(persistErr, err)
	}
	s.mu.Unlock()

	for _, fn := range s.credentialObservers() {
		fn(cred)
	}

	return persistErr
}

func (s *SessionService) storeCredentialLocked(ctx context.Context, cred domain.Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode session credential: %w", err)
	}
	if err := s.store.Put(ctx, CredentialRef, string(raw)); err != nil {
		return fmt.Errorf("store session credential: %w", err)
	}
	return nil
}

func (s *SessionService) loadCredential(ctx context.Context, ref string) (domain.Credential, error) {
	raw, err := s.store.Get(ctx, ref)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("get session credential: %w", err)
	}

	var cred domain.Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return domain.Credential{}, fmt.Errorf("decode session credential: %w", err)
	}
	return cred, nil
}

func (s *SessionService) saveRecordLocked(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	s.record.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Save(ctx, s.record); err != nil {
		return fmt.Errorf("save session record: %w", err)
	}
	return nil
}

func (s *SessionService) credentialObservers() []func(domain.Credential) {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return slices.Clone(s.onCred)
}

func (s *SessionService) signedOutObservers() []func(domain.SignOutReason) {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return slices.Clone(s.onSignedOut)
}
