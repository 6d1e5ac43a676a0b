// Package config provides configuration loading for todorun.
//
// Values come from hardcoded defaults, then an optional YAML file, then
// TODORUN_* environment variables. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the complete todorun configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Gateway      GatewayConfig      `koanf:"gateway"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Sessions     SessionsConfig     `koanf:"sessions"`
	Tools        ToolsConfig        `koanf:"tools"`
	Events       EventsConfig       `koanf:"events"`
	Logging      LoggingConfig      `koanf:"logging"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host              string        `koanf:"http_host"`
	Port              int           `koanf:"http_port"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
}

// GatewayConfig configures the reasoning service client.
type GatewayConfig struct {
	BaseURL   string        `koanf:"base_url"`
	Model     string        `koanf:"model"`
	APIKey    Secret        `koanf:"api_key"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"` // requests per second
	Burst     int           `koanf:"burst"`
}

// OrchestratorConfig bounds the execution loop.
type OrchestratorConfig struct {
	MaxIterations int `koanf:"max_iterations"`
}

// SessionsConfig controls the networked session store.
type SessionsConfig struct {
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// ToolsConfig configures the sandboxed toolset.
type ToolsConfig struct {
	WorkspaceDir  string `koanf:"workspace_dir"`
	LogFile       string `koanf:"log_file"`
	ScrubSecrets  bool   `koanf:"scrub_secrets"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// EventsConfig configures run event fan-out. An empty URL starts an
// in-process NATS server.
type EventsConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// Output is stdout or stderr.
	Output string `koanf:"output"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	ServiceName string  `koanf:"service_name"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc or http/protobuf
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              8000,
			ShutdownTimeout:   10 * time.Second,
			HeartbeatInterval: 15 * time.Second,
		},
		Gateway: GatewayConfig{
			Model:     "gpt-4o-mini",
			Timeout:   60 * time.Second,
			RateLimit: 2,
			Burst:     4,
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations: 100,
		},
		Sessions: SessionsConfig{
			IdleTimeout:   30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Tools: ToolsConfig{
			WorkspaceDir: "./output",
			LogFile:      "agent_log.txt",
			ScrubSecrets: true,
		},
		Events: EventsConfig{
			SubjectPrefix: "runs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "todorun",
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			SampleRate:  1.0,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}

	if c.Gateway.Model == "" {
		return errors.New("gateway model is required")
	}
	if c.Gateway.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Gateway.BaseURL); err != nil {
			return fmt.Errorf("invalid gateway base_url: %w", err)
		}
	}
	if c.Gateway.Timeout <= 0 {
		return errors.New("gateway timeout must be positive")
	}
	if c.Gateway.RateLimit <= 0 {
		return fmt.Errorf("gateway rate_limit must be positive, got %v", c.Gateway.RateLimit)
	}
	if c.Gateway.Burst < 1 {
		return fmt.Errorf("gateway burst must be >= 1, got %d", c.Gateway.Burst)
	}

	if c.Orchestrator.MaxIterations < 1 {
		return fmt.Errorf("orchestrator max_iterations must be >= 1, got %d", c.Orchestrator.MaxIterations)
	}

	if c.Sessions.IdleTimeout <= 0 || c.Sessions.SweepInterval <= 0 {
		return errors.New("session idle_timeout and sweep_interval must be positive")
	}

	if c.Tools.WorkspaceDir == "" {
		return errors.New("tools workspace_dir is required")
	}
	if c.Tools.LogFile == "" {
		return errors.New("tools log_file is required")
	}

	if c.Events.SubjectPrefix == "" {
		return errors.New("events subject_prefix is required")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.Logging.Output != "stdout" && c.Logging.Output != "stderr" {
		return fmt.Errorf("logging output must be 'stdout' or 'stderr', got %q", c.Logging.Output)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return errors.New("service name required when telemetry is enabled")
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
			return fmt.Errorf("telemetry protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry sample_rate must be within [0,1], got %v", c.Telemetry.SampleRate)
		}
	}

	return nil
}
