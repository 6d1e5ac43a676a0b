package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/todorun/internal/app"
	"github.com/fyrsmithlabs/todorun/internal/toolset"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Serve the sandboxed toolset over MCP stdio",
		Long: `Expose create_file, read_file, list_files, calculate and log_action to an
MCP client over stdio. Files stay inside the configured workspace directory.

Logs go to stderr; stdout carries the MCP protocol.

Examples:
  todorun tools
  TODORUN_TOOLS_WORKSPACE_DIR=/tmp/work todorun tools`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := app.Load(configPath)
			if err != nil {
				return err
			}
			cfg.Logging.Output = "stderr"

			a, err := app.New(ctx, cfg, version)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := toolset.NewMCPServer(a.Tools, "todorun", version, a.Logger.Underlying().Named("mcp"))
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "todorun tools serving %s over stdio\n", a.Workspace.Root())
			return srv.Run(ctx)
		},
	}
}
