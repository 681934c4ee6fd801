// Package chain layers secret backends. Reads and writes walk the backends in
// order; deletes reach every backend so no copy of a credential survives a
// sign-out.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/bnema/helper-gateway/internal/ports"
	"github.com/rs/zerolog"
)

type Backend struct {
	Name  string
	Store ports.SecretStore
}

type Store struct {
	backends []Backend
	logger   zerolog.Logger
}

var _ ports.SecretStore = (*Store)(nil)

var errNoBackends = errors.New("secret chain needs at least one backend")

func New(logger zerolog.Logger, backends ...Backend) (*Store, error) {
	if len(backends) == 0 {
		return nil, errNoBackends
	}
	for i, backend := range backends {
		if backend.Store == nil {
			return nil, fmt.Errorf("secret backend %d (%s) is nil", i, backend.Name)
		}
	}

	return &Store{
		backends: append([]Backend(nil), backends...),
		logger:   logger.With().Str("component", "secrets").Logger(),
	}, nil
}

// Names lists the backends in lookup order.
func (s *Store) Names() []string {
	names := make([]string, len(s.backends))
	for i, backend := range s.backends {
		names[i] = backend.Name
	}
	return names
}

// Put stores value in the first backend that accepts it.
func (s *Store) Put(ctx context.Context, key string, value string) error {
	var errs []error
	for i, backend := range s.backends {
		err := backend.Store.Put(ctx, key, value)
		if err == nil {
			if i > 0 {
				s.logger.Warn().Str("backend", backend.Name).Msg("credential stored in fallback backend")
			}
			return nil
		}
		if isContextError(err) {
			return err
		}
		errs = append(errs, fmt.Errorf("%s put: %w", backend.Name, err))
	}
	return errors.Join(errs...)
}

// Get returns the first hit. The result wraps domain.ErrSecretNotFound only
// when every backend reported the key missing.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var errs []error
	missing := 0
	for _, backend := range s.backends {
		value, err := backend.Store.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if isContextError(err) {
			return "", err
		}
		if errors.Is(err, domain.ErrSecretNotFound) {
			missing++
		} else {
			s.logger.Debug().Err(err).Str("backend", backend.Name).Msg("secret backend unavailable")
		}
		errs = append(errs, fmt.Errorf("%s get: %w", backend.Name, err))
	}

	if missing == len(s.backends) {
		return "", fmt.Errorf("%w: %s", domain.ErrSecretNotFound, key)
	}
	return "", errors.Join(errs...)
}

// Delete removes key everywhere. Missing keys are not failures.
func (s *Store) Delete(ctx context.Context, key string) error {
	var errs []error
	for _, backend := range s.backends {
		err := backend.Store.Delete(ctx, key)
		if err == nil || errors.Is(err, domain.ErrSecretNotFound) {
			continue
		}
		if isContextError(err) {
			return err
		}
		errs = append(errs, fmt.Errorf("%s delete: %w", backend.Name, err))
	}
	return errors.Join(errs...)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
