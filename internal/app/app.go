// Package app wires configuration, logging, telemetry and the shared
// runtime dependencies used by the todorun binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/todorun/internal/config"
	"github.com/fyrsmithlabs/todorun/internal/gateway"
	"github.com/fyrsmithlabs/todorun/internal/logging"
	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/secrets"
	"github.com/fyrsmithlabs/todorun/internal/telemetry"
	"github.com/fyrsmithlabs/todorun/internal/toolset"
)

const instrumentationName = "github.com/fyrsmithlabs/todorun"

// App holds the dependencies shared by every entry point.
type App struct {
	Config    *config.Config
	Logger    *logging.Logger
	Telemetry *telemetry.Telemetry
	Scrubber  secrets.Scrubber
	Tools     *toolset.Registry
	Workspace *toolset.Workspace

	// Gateway is nil until NewGateway is called. Commands that never
	// reach the model (tools, health) skip it.
	Gateway gateway.Gateway

	version string
}

// Load reads and validates configuration from path, or from the default
// location when path is empty.
func Load(path string) (*config.Config, error) {
	cfg, err := config.LoadWithFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// New initializes logging, telemetry, the secret scrubber and the toolset.
//
// Telemetry failures leave the app degraded rather than failing startup.
func New(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry, version)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	var logger *logging.Logger
	if cfg.Telemetry.Enabled {
		logCfg.Output.OTEL = true
		logger, err = logging.NewLogger(logCfg, global.GetLoggerProvider())
	} else {
		logger, err = logging.NewLogger(logCfg, nil)
	}
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	if degraded, derr := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.Error(derr))
	}

	scrubber, err := newScrubber(cfg.Tools)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	reg, ws, err := toolset.New(cfg.Tools, toolset.Options{
		Scrubber: scrubber,
		Metrics:  toolset.NewMetrics(tel.Meter(instrumentationName), logger.Underlying()),
		Logger:   logger.Underlying().Named("toolset"),
	})
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("initializing toolset: %w", err)
	}

	logger.Info(ctx, "runtime initialized",
		zap.String("version", version),
		zap.String("workspace", ws.Root()),
		zap.Strings("tools", reg.Names()),
		zap.Bool("scrub_secrets", scrubber.IsEnabled()),
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Telemetry: tel,
		Scrubber:  scrubber,
		Tools:     reg,
		Workspace: ws,
		version:   version,
	}, nil
}

func newScrubber(cfg config.ToolsConfig) (secrets.Scrubber, error) {
	if !cfg.ScrubSecrets {
		return secrets.NoopScrubber{}, nil
	}
	allow, err := secrets.LoadAllowlist(cfg.AllowlistPath)
	if err != nil {
		return nil, fmt.Errorf("loading secret allowlist: %w", err)
	}
	s, err := secrets.New(secrets.DefaultConfig().WithAllowlist(allow))
	if err != nil {
		return nil, fmt.Errorf("initializing secret scrubber: %w", err)
	}
	return s, nil
}

// NewGateway connects the reasoning gateway described by the config.
func (a *App) NewGateway() error {
	gw, err := gateway.NewFromConfig(a.Config.Gateway,
		gateway.WithScrubber(a.Scrubber),
		gateway.WithLogger(a.Logger.Underlying().Named("gateway")),
	)
	if err != nil {
		return err
	}
	a.Gateway = gw
	return nil
}

// NewOrchestrator builds an orchestrator on the app's gateway and toolset.
// extra options are applied after the configured defaults.
func (a *App) NewOrchestrator(extra ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	opts := []orchestrator.Option{
		orchestrator.WithMaxIterations(a.Config.Orchestrator.MaxIterations),
		orchestrator.WithLogger(a.Logger.Named("orchestrator")),
		orchestrator.WithTracer(a.Telemetry.Tracer(instrumentationName)),
		orchestrator.WithMeter(a.Telemetry.Meter(instrumentationName)),
	}
	return orchestrator.New(a.Gateway, a.Tools.Names(), append(opts, extra...)...)
}

// Version reports the build version the app was started with.
func (a *App) Version() string {
	return a.version
}

// Close flushes telemetry and the logger.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Telemetry.Shutdown(ctx); err != nil {
		a.Logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.Logger.Sync()
}
