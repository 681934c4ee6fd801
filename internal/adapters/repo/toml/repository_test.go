package toml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/bnema/helper-gateway/internal/ports"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, sessionPath string) *Repository {
	t.Helper()

	config := viper.New()
	config.Set(SessionPathKey, sessionPath)

	repo, err := NewRepository(config)
	require.NoError(t, err)
	return repo
}

func TestRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "session.toml"))
	record := ports.SessionRecord{
		State:       domain.SessionAuthenticated,
		SecretRef:   "helper/session/credential",
		ActiveJobID: "job-42",
		UpdatedAt:   time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}

	require.NoError(t, repo.Save(context.Background(), record))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestRepositorySaveReplacesRecord(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "session.toml"))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, ports.SessionRecord{State: domain.SessionAuthenticated, ActiveJobID: "job-1"}))
	require.NoError(t, repo.Save(ctx, ports.SessionRecord{State: domain.SessionLoggedOut}))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, ports.SessionRecord{State: domain.SessionLoggedOut}, got)
}

func TestRepositoryMissingFileReturnsNotFound(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "missing", "session.toml"))

	_, err := repo.Load(context.Background())
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRepositorySaveCreatesDefaultPathAndEnforcesPermissions(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("HOME", configHome)
	t.Setenv("XDG_CONFIG_HOME", configHome)

	repo, err := NewRepository(viper.New())
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), ports.SessionRecord{State: domain.SessionAuthenticated}))

	sessionPath := filepath.Join(configHome, "hg", "session.toml")
	assert.Equal(t, sessionPath, repo.Path())
	info, err := os.Stat(sessionPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRepositorySerializedTOMLHasNoCredential(t *testing.T) {
	t.Parallel()

	sessionPath := filepath.Join(t.TempDir(), "session.toml")
	repo := newTestRepository(t, sessionPath)

	require.NoError(t, repo.Save(context.Background(), ports.SessionRecord{
		State:     domain.SessionAuthenticated,
		SecretRef: "helper/session/credential",
	}))

	data, err := os.ReadFile(sessionPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version = 1")
	assert.Contains(t, string(data), "authenticated")
	assert.NotContains(t, string(data), "token")
}

func TestRepositoryLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "malformed", content: "session = [", wantErr: "decode session file"},
		{name: "future version", content: "version = 999\n", wantErr: "unsupported session schema version"},
		{name: "unknown state", content: "version = 1\n\n[session]\nstate = \"suspended\"\n", wantErr: "unknown session state"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sessionPath := filepath.Join(t.TempDir(), "session.toml")
			require.NoError(t, os.WriteFile(sessionPath, []byte(tt.content), 0o600))

			_, err := newTestRepository(t, sessionPath).Load(context.Background())
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRepositoryLoadAcceptsEmptyState(t *testing.T) {
	t.Parallel()

	sessionPath := filepath.Join(t.TempDir(), "session.toml")
	require.NoError(t, os.WriteFile(sessionPath, []byte(strings.Join([]string{
		"version = 1",
		"",
		"[session]",
		"active_job_id = \"job-1\"",
		"",
	}, "\n")), 0o600))

	got, err := newTestRepository(t, sessionPath).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SessionUnauthenticated, got.State)
	assert.Equal(t, "job-1", got.ActiveJobID)
}

func TestRepositorySaveCanceledContextReturnsContextError(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "session.toml"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Save(ctx, ports.SessionRecord{State: domain.SessionAuthenticated})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRepositoryConcurrentSavesAcrossInstancesStayReadable(t *testing.T) {
	t.Parallel()

	sessionPath := filepath.Join(t.TempDir(), "session.toml")
	repoA := newTestRepository(t, sessionPath)
	repoB := newTestRepository(t, sessionPath)

	const perRepoWrites = 50
	start := make(chan struct{})
	errCh := make(chan error, perRepoWrites*2)
	var wg sync.WaitGroup
	wg.Add(2)

	save := func(repo *Repository, prefix string) {
		defer wg.Done()
		<-start
		for i := 0; i < perRepoWrites; i++ {
			errCh <- repo.Save(context.Background(), ports.SessionRecord{
				State:       domain.SessionAuthenticated,
				ActiveJobID: prefix + strconv.Itoa(i),
			})
		}
	}
	go save(repoA, "job-a-")
	go save(repoB, "job-b-")

	close(start)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	got, err := repoA.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SessionAuthenticated, got.State)
	assert.True(t, strings.HasPrefix(got.ActiveJobID, "job-"))
}
