// Todorund serves todo-list sessions over HTTP with SSE execution streams.
//
// Each session owns its own plan and orchestrator. Run events are fanned out
// over NATS (embedded unless events.url is set) and streamed to clients.
//
// Configuration is read from ~/.config/todorun/config.yaml and TODORUN_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults on 127.0.0.1:8000
//	todorund
//
//	# Override via environment
//	TODORUN_SERVER_HTTP_PORT=9000 OPENAI_API_KEY=sk-... todorund
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/todorun/internal/app"
	"github.com/fyrsmithlabs/todorun/internal/events"
	httpserver "github.com/fyrsmithlabs/todorun/internal/http"
	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/session"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/todorun/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  todorund           Start the todorun server\n")
			fmt.Fprintf(os.Stderr, "  todorund version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func printVersion() {
	fmt.Printf("todorund by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires every dependency and serves until ctx is cancelled:
//  1. Loads configuration and initializes logging, telemetry and tools
//  2. Connects the reasoning gateway
//  3. Connects (or embeds) NATS for run events
//  4. Creates the session store and its idle janitor
//  5. Serves HTTP, then shuts down gracefully
func run(ctx context.Context, configPath string) error {
	cfg, err := app.Load(configPath)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, version)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger.Underlying()

	if err := a.NewGateway(); err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	bus, err := events.Connect(cfg.Events, logger.Named("events"), events.WithScrubber(a.Scrubber))
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer bus.Close()

	store, err := session.NewStore(
		func(_ context.Context, id string) (*orchestrator.Orchestrator, error) {
			return a.NewOrchestrator(orchestrator.WithObserver(bus.Observer(id)))
		},
		session.WithIdleTimeout(cfg.Sessions.IdleTimeout),
		session.WithMetrics(session.NewMetrics(nil)),
		session.WithLogger(logger.Named("sessions")),
	)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}
	go store.RunJanitor(ctx, cfg.Sessions.SweepInterval)

	srv, err := httpserver.NewServer(store, bus, logger.Named("http"), &httpserver.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
	}, httpserver.WithMeter(a.Telemetry.Meter("github.com/fyrsmithlabs/todorun/http")))
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"),
		zap.Duration("session_idle_timeout", cfg.Sessions.IdleTimeout))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Server shutdown complete")
	return nil
}
