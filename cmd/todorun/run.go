package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/todorun/internal/app"
	"github.com/fyrsmithlabs/todorun/internal/console"
	"github.com/fyrsmithlabs/todorun/internal/gateway"
	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/task"
)

type runOptions struct {
	goal       string
	expertise  string
	mode       string
	export     string
	accessible bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan a goal and execute it interactively",
		Long: `Ask for a goal, clarify it, generate a phased task list and execute it.

In confirm mode the plan is shown for review first: approve it, edit a
single task in plain language, regenerate it or cancel. Auto mode runs the
plan as soon as it is generated.

Examples:
  todorun run
  todorun run --goal "Summarize notes.txt into summary.md" --expertise expert
  todorun run --mode auto --export run.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.goal, "goal", "", "goal to plan (prompted when empty)")
	cmd.Flags().StringVar(&opts.expertise, "expertise", "", "beginner, intermediate or expert (prompted when empty)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "confirm or auto (prompted when empty)")
	cmd.Flags().StringVar(&opts.export, "export", "", "write the final task list and result as YAML to this file")
	cmd.Flags().BoolVar(&opts.accessible, "accessible", os.Getenv("ACCESSIBLE") != "", "use line-based prompts")
	return cmd
}

// presets turns flags into orchestrator options. Unset flags leave the
// matching prompt in place.
func (o runOptions) presets() ([]orchestrator.Option, error) {
	var opts []orchestrator.Option
	if o.goal != "" {
		opts = append(opts, orchestrator.WithGoal(o.goal))
	}
	if o.expertise != "" {
		e, err := gateway.ParseExpertise(o.expertise)
		if err != nil {
			return nil, err
		}
		opts = append(opts, orchestrator.WithExpertise(e))
	}
	if o.mode != "" {
		m, err := orchestrator.ParseMode(o.mode)
		if err != nil {
			return nil, err
		}
		opts = append(opts, orchestrator.WithMode(m))
	}
	return opts, nil
}

func runInteractive(ctx context.Context, in io.Reader, out io.Writer, opts runOptions) error {
	presets, err := opts.presets()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.Load(configPath)
	if err != nil {
		return err
	}
	// stdout belongs to the prompts.
	cfg.Logging.Output = "stderr"

	a, err := app.New(ctx, cfg, version)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.NewGateway(); err != nil {
		return err
	}

	presets = append(presets, orchestrator.WithObserver(console.NewProgress(out)))
	o, err := a.NewOrchestrator(presets...)
	if err != nil {
		return err
	}

	var promptOpts []console.PrompterOption
	if opts.accessible {
		promptOpts = append(promptOpts, console.WithAccessible(in))
	}
	res, runErr := o.Interact(ctx, console.NewPrompter(out, promptOpts...))

	if opts.export != "" && o.Queue().Len() > 0 {
		if err := exportRun(opts.export, o, res); err != nil {
			a.Logger.Warn(ctx, "export failed", zap.String("path", opts.export), zap.Error(err))
			return err
		}
		fmt.Fprintf(out, "Exported %d tasks to %s\n", o.Queue().Len(), opts.export)
	}

	if errors.Is(runErr, orchestrator.ErrCancelled) {
		fmt.Fprintln(out, "Cancelled.")
		return nil
	}
	return runErr
}

// runExport is the YAML document written by --export.
type runExport struct {
	Goal      string                 `yaml:"goal"`
	Expertise gateway.Expertise      `yaml:"expertise"`
	Mode      orchestrator.Mode      `yaml:"mode"`
	Tasks     []task.Task            `yaml:"tasks"`
	Result    orchestrator.RunResult `yaml:"result"`
}

func exportRun(path string, o *orchestrator.Orchestrator, res orchestrator.RunResult) error {
	doc := runExport{
		Goal:      o.Goal(),
		Expertise: o.Expertise(),
		Mode:      o.Mode(),
		Tasks:     o.Queue().Tasks(),
		Result:    res,
	}
	if doc.Result.Summary.Total == 0 {
		doc.Result.Summary = o.Queue().Summary()
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	return nil
}
