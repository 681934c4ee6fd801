// Package pass stores secrets in the user's password-store through the pass
// CLI, so credentials stay encrypted with the user's GPG key.
package pass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/bnema/helper-gateway/internal/ports"
)

var ErrUnavailable = errors.New("pass command unavailable")

const missingEntry = "is not in the password store"

// invocation is one pass command: its arguments, optional stdin and the
// environment overrides it runs with.
type invocation struct {
	args  []string
	stdin string
	env   []string
}

type runner func(ctx context.Context, inv invocation) (stdout, stderr string, err error)

type Store struct {
	binary   string
	storeDir string
	run      runner
}

var _ ports.SecretStore = (*Store)(nil)

type Option func(*Store)

// WithStoreDir points pass at a password-store other than ~/.password-store.
func WithStoreDir(dir string) Option {
	return func(s *Store) { s.storeDir = dir }
}

func WithBinary(path string) Option {
	return func(s *Store) { s.binary = path }
}

func NewStore(opts ...Option) *Store {
	s := &Store{binary: "pass"}
	for _, opt := range opts {
		opt(s)
	}
	s.run = s.exec
	return s
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, stderr, err := s.run(ctx, s.command(value+"\n", "insert", "--multiline", "--force", key))
	if err != nil {
		return commandError("insert", key, err, stderr)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stdout, stderr, err := s.run(ctx, s.command("", "show", key))
	switch {
	case err == nil:
		return strings.TrimRight(stdout, "\r\n"), nil
	case strings.Contains(stderr, missingEntry):
		return "", fmt.Errorf("pass entry %q: %w", key, domain.ErrSecretNotFound)
	default:
		return "", commandError("show", key, err, stderr)
	}
}

// Delete treats a missing entry as already deleted.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, stderr, err := s.run(ctx, s.command("", "rm", "--force", key))
	if err != nil && !strings.Contains(stderr, missingEntry) {
		return commandError("rm", key, err, stderr)
	}
	return nil
}

func (s *Store) command(stdin string, args ...string) invocation {
	inv := invocation{args: args, stdin: stdin}
	if s.storeDir != "" {
		inv.env = append(inv.env, "PASSWORD_STORE_DIR="+s.storeDir)
	}
	return inv
}

func (s *Store) exec(ctx context.Context, inv invocation) (string, string, error) {
	path, err := exec.LookPath(s.binary)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "", ErrUnavailable
		}
		return "", "", fmt.Errorf("locate %s: %w", s.binary, err)
	}

	cmd := exec.CommandContext(ctx, path, inv.args...)
	if len(inv.env) > 0 {
		cmd.Env = append(os.Environ(), inv.env...)
	}
	if inv.stdin != "" {
		cmd.Stdin = strings.NewReader(inv.stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}

func commandError(op, key string, err error, stderr string) error {
	if stderr == "" {
		return fmt.Errorf("pass %s %q: %w", op, key, err)
	}
	return fmt.Errorf("pass %s %q: %w: %s", op, key, err, stderr)
}
