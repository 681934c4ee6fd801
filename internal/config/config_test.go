package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, v, err := Load(LoadOptions{})
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "http://localhost:3000/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 5, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Realtime.ReconnectDelay)
	assert.Equal(t, 4, cfg.Gateway.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Gateway.CacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.Gateway.HotCooldown)
	assert.Equal(t, 45*time.Second, cfg.Gateway.PrefixCooldown)
	assert.Equal(t, 30*time.Second, cfg.Gateway.ExhaustedCooldown)
	assert.Equal(t, []string{"/services/active"}, cfg.Gateway.HotEndpoints)
	assert.Equal(t, []string{"/notifications"}, cfg.Gateway.CooldownPrefixes)
	assert.Equal(t, SecretsBackendChain, cfg.Secrets.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := isolate(t)

	configPath := filepath.Join(dir, "hg", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o700))
	require.NoError(t, os.WriteFile(configPath, []byte(strings.Join([]string{
		"[api]",
		"base_url = \"https://api.example.com/v2\"",
		"",
		"[gateway]",
		"hot_cooldown = \"2m\"",
		"hot_endpoints = [\"/services/active\", \"/services/nearby\"]",
		"",
		"[realtime]",
		"max_reconnect_attempts = 8",
		"",
	}, "\n")), 0o600))

	cfg, _, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/v2", cfg.API.BaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Gateway.HotCooldown)
	assert.Equal(t, []string{"/services/active", "/services/nearby"}, cfg.Gateway.HotEndpoints)
	assert.Equal(t, 8, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, 45*time.Second, cfg.Gateway.PrefixCooldown)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := isolate(t)

	configPath := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[api]\nbase_url = \"https://file.example.com\"\n"), 0o600))
	t.Setenv("HG_API_BASE_URL", "https://env.example.com")
	t.Setenv("HG_GATEWAY_PREFIX_COOLDOWN", "90s")

	cfg, _, err := Load(LoadOptions{ConfigFile: configPath})
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Gateway.PrefixCooldown)
}

func TestLoadEnvFile(t *testing.T) {
	dir := isolate(t)

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("HG_REALTIME_NAMESPACE=/dispatch\nHG_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("HG_REALTIME_NAMESPACE")
		_ = os.Unsetenv("HG_LOG_LEVEL")
	})

	cfg, _, err := Load(LoadOptions{EnvFile: envPath})
	require.NoError(t, err)

	assert.Equal(t, "/dispatch", cfg.Realtime.Namespace)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	dir := isolate(t)

	_, _, err := Load(LoadOptions{EnvFile: filepath.Join(dir, "missing.env")})
	require.NoError(t, err)
}

func TestLoadMalformedConfigFails(t *testing.T) {
	dir := isolate(t)

	configPath := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[api\n"), 0o600))

	_, _, err := Load(LoadOptions{ConfigFile: configPath})
	require.Error(t, err)
	assert.ErrorContains(t, err, "read config file")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		API:      APIConfig{BaseURL: "https://api.example.com"},
		Realtime: RealtimeConfig{URL: "wss://rt.example.com"},
		Secrets:  SecretsConfig{Backend: SecretsBackendFile},
	}
	require.NoError(t, valid.Validate())

	redisWithoutAddr := valid
	redisWithoutAddr.Secrets.Backend = SecretsBackendRedis
	assert.ErrorContains(t, redisWithoutAddr.Validate(), "redis.addr is required")

	unknown := valid
	unknown.Secrets.Backend = "vault"
	assert.ErrorContains(t, unknown.Validate(), `unknown secrets.backend "vault"`)

	empty := Config{Secrets: SecretsConfig{Backend: SecretsBackendPass}, Gateway: GatewayConfig{MaxRetries: -1}}
	err := empty.Validate()
	assert.ErrorContains(t, err, "api.base_url is required")
	assert.ErrorContains(t, err, "realtime.url is required")
	assert.ErrorContains(t, err, "gateway.max_retries")
}
