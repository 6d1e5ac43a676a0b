package toolset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/todorun/internal/config"
	"github.com/fyrsmithlabs/todorun/internal/secrets"
)

// Capability names.
const (
	CreateFile = "create_file"
	ReadFile   = "read_file"
	ListFiles  = "list_files"
	Calculate  = "calculate"
	LogAction  = "log_action"
)

const logTimeFormat = "2006-01-02 15:04:05"

// Options bundles dependencies of the built-in capabilities.
type Options struct {
	Scrubber secrets.Scrubber
	Metrics  *Metrics
	Logger   *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// New builds the standard capability set on a workspace described by cfg.
func New(cfg config.ToolsConfig, opts Options) (*Registry, *Workspace, error) {
	ws, err := NewWorkspace(cfg.WorkspaceDir)
	if err != nil {
		return nil, nil, err
	}
	if opts.Scrubber == nil || !cfg.ScrubSecrets {
		opts.Scrubber = secrets.NoopScrubber{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "agent_log.txt"
	}

	reg, err := NewRegistry([]Capability{
		&createFile{ws: ws, scrubber: opts.Scrubber},
		&readFile{ws: ws},
		&listFiles{ws: ws},
		calculate{},
		&logAction{ws: ws, file: logFile, scrubber: opts.Scrubber, now: opts.Now},
	}, WithMetrics(opts.Metrics), WithRegistryLogger(opts.Logger))
	if err != nil {
		return nil, nil, err
	}
	return reg, ws, nil
}

type createFile struct {
	ws       *Workspace
	scrubber secrets.Scrubber
}

func (c *createFile) Name() string { return CreateFile }

func (c *createFile) Description() string {
	return "Create or overwrite a file in the workspace"
}

func (c *createFile) Invoke(_ context.Context, args Args) Result {
	name, err := args.String("filename")
	if err != nil {
		return Failure("Failed to create file: %v", err)
	}
	content := args.OptionalString("content")

	path, err := c.ws.Resolve(name)
	if err != nil {
		return Failure("Failed to create file: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Failure("Failed to create file: %v", err)
	}

	scrubbed := c.scrubber.ScrubPath(c.ws.Rel(path), content)
	if err := os.WriteFile(path, []byte(scrubbed.Scrubbed), 0o644); err != nil {
		return Failure("Failed to create file: %v", err)
	}

	msg := fmt.Sprintf("Created file: %s", c.ws.Rel(path))
	if scrubbed.HasFindings() {
		msg = fmt.Sprintf("%s (%d secret(s) redacted)", msg, len(scrubbed.Findings))
	}
	return Result{Success: true, Message: msg, Path: c.ws.Rel(path)}
}

type readFile struct {
	ws *Workspace
}

func (r *readFile) Name() string { return ReadFile }

func (r *readFile) Description() string {
	return "Read a file from the workspace"
}

func (r *readFile) Invoke(_ context.Context, args Args) Result {
	name, err := args.String("filename")
	if err != nil {
		return Failure("Failed to read file: %v", err)
	}
	path, err := r.ws.Resolve(name)
	if err != nil {
		return Failure("Failed to read file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Failure("Failed to read file: %v", err)
	}
	return Result{Success: true, Content: string(data), Path: r.ws.Rel(path)}
}

type listFiles struct {
	ws *Workspace
}

func (l *listFiles) Name() string { return ListFiles }

func (l *listFiles) Description() string {
	return "List every file in the workspace"
}

func (l *listFiles) Invoke(_ context.Context, _ Args) Result {
	files, err := l.ws.Files()
	if err != nil {
		return Failure("Failed to list files: %v", err)
	}
	if files == nil {
		files = []string{}
	}
	return Result{Success: true, Files: files, Count: len(files)}
}

type calculate struct{}

func (calculate) Name() string { return Calculate }

func (calculate) Description() string {
	return "Evaluate an arithmetic expression using + - * / // ** and parentheses"
}

func (calculate) Invoke(_ context.Context, args Args) Result {
	expr, err := args.String("expression")
	if err != nil {
		return Failure("Calculation error: %v", err)
	}
	v, err := Evaluate(expr)
	if err != nil {
		if errors.Is(err, errInvalidChars) {
			return Failure("Invalid characters in expression")
		}
		return Failure("Calculation error: %v", err)
	}
	return Result{Success: true, Expression: expr, Value: v}
}

type logAction struct {
	ws       *Workspace
	file     string
	scrubber secrets.Scrubber
	now      func() time.Time

	mu sync.Mutex
}

func (l *logAction) Name() string { return LogAction }

func (l *logAction) Description() string {
	return "Append a timestamped entry to the workspace action log"
}

func (l *logAction) Invoke(_ context.Context, args Args) Result {
	action, err := args.String("action")
	if err != nil {
		return Failure("Failed to log action: %v", err)
	}
	details := args.OptionalString("details")

	entry := fmt.Sprintf("[%s] %s", l.now().Format(logTimeFormat), action)
	if details != "" {
		entry += " - " + details
	}
	entry = l.scrubber.Scrub(entry).Scrubbed + "\n"

	path, err := l.ws.Resolve(l.file)
	if err != nil {
		return Failure("Failed to log action: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Failure("Failed to log action: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		return Failure("Failed to log action: %v", err)
	}
	return Result{Success: true, Message: "Action logged"}
}
