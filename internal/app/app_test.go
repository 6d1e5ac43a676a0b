package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/todorun/internal/config"
	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/secrets"
	"github.com/fyrsmithlabs/todorun/internal/toolset"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Tools.WorkspaceDir = t.TempDir()
	cfg.Logging.Output = "stderr"
	return cfg
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TODORUN_ORCHESTRATOR_MAX_ITERATIONS", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Orchestrator.MaxIterations)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TODORUN_LOGGING_OUTPUT", "syslog")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging output")
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, "test")
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "test", a.Version())
	assert.True(t, a.Scrubber.IsEnabled())
	assert.ElementsMatch(t, []string{
		toolset.CreateFile, toolset.ReadFile, toolset.ListFiles, toolset.Calculate, toolset.LogAction,
	}, a.Tools.Names())
	assert.Nil(t, a.Gateway)
}

func TestNew_ScrubbingDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tools.ScrubSecrets = false

	a, err := New(context.Background(), cfg, "test")
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, secrets.NoopScrubber{}, a.Scrubber)
}

func TestNew_BadLogLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Level = "loud"

	_, err := New(context.Background(), cfg, "test")
	assert.Error(t, err)
}

func TestNewGateway_RequiresKey(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), "test")
	require.NoError(t, err)
	defer a.Close()

	require.Error(t, a.NewGateway())
	assert.Nil(t, a.Gateway)

	_, err = a.NewOrchestrator()
	assert.Error(t, err, "orchestrator needs a gateway")
}

func TestNewOrchestrator(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gateway.APIKey = "sk-test-not-a-real-key"
	cfg.Orchestrator.MaxIterations = 12

	a, err := New(context.Background(), cfg, "test")
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.NewGateway())

	o, err := a.NewOrchestrator(orchestrator.WithMode(orchestrator.ModeAuto))
	require.NoError(t, err)
	assert.Equal(t, 12, o.MaxIterations())
	assert.Equal(t, orchestrator.ModeAuto, o.Mode())
	assert.Equal(t, a.Tools.Names(), o.Capabilities())
}
