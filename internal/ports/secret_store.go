package ports

import "context"

// SecretStore persists opaque secret values by key. Get MUST wrap
// domain.ErrSecretNotFound when the key does not exist.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
