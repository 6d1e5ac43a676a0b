package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the todorun config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL"} {
		t.Setenv(key, "")
	}
	dir := filepath.Join(home, ".config", "todorun")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_DefaultsWhenMissing(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.IdleTimeout)
	assert.Equal(t, "./output", cfg.Tools.WorkspaceDir)
	assert.True(t, cfg.Tools.ScrubSecrets)
	assert.Equal(t, "runs", cfg.Events.SubjectPrefix)
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `server:
  http_port: 9191
  shutdown_timeout: 5s
gateway:
  model: gpt-4o
  api_key: sk-from-file
orchestrator:
  max_iterations: 7
tools:
  workspace_dir: /tmp/todorun-out
  scrub_secrets: false
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "gpt-4o", cfg.Gateway.Model)
	assert.Equal(t, "sk-from-file", cfg.Gateway.APIKey.Value())
	assert.Equal(t, 7, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, "/tmp/todorun-out", cfg.Tools.WorkspaceDir)
	assert.False(t, cfg.Tools.ScrubSecrets)
	// untouched sections keep defaults
	assert.Equal(t, 15*time.Second, cfg.Server.HeartbeatInterval)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "orchestrator:\n  max_iterations: 7\n", 0600)

	t.Setenv("TODORUN_ORCHESTRATOR_MAX_ITERATIONS", "3")
	t.Setenv("TODORUN_SESSIONS_IDLE_TIMEOUT", "2m")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 2*time.Minute, cfg.Sessions.IdleTimeout)
}

func TestLoadWithFile_OpenAIFallbacks(t *testing.T) {
	setupTestHome(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_MODEL", "gpt-4.1")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Gateway.APIKey.Value())
	assert.Equal(t, "gpt-4.1", cfg.Gateway.Model)
}

func TestLoadWithFile_RejectsOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)
	other := filepath.Join(t.TempDir(), "config.yaml")

	_, err := LoadWithFile(other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoadWithFile_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9000\n", 0644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_ValidationFailure(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "orchestrator:\n  max_iterations: 0\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_iterations")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.http_port", envKey("TODORUN_SERVER_HTTP_PORT"))
	assert.Equal(t, "gateway.api_key", envKey("TODORUN_GATEWAY_API_KEY"))
	assert.Equal(t, "debug", envKey("TODORUN_DEBUG"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"bad base url", func(c *Config) { c.Gateway.BaseURL = "::nope" }, "base_url"},
		{"zero burst", func(c *Config) { c.Gateway.Burst = 0 }, "burst"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging format"},
		{"telemetry protocol", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Protocol = "udp"
		}, "telemetry protocol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "config.Secret([REDACTED])", fmt.Sprintf("%#v", s))

	data, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-live-123")

	assert.Equal(t, "sk-live-123", s.Value())
	assert.False(t, Secret("").IsSet())
}
