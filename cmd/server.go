package main

import (
	"github.com/spf13/cobra"

	"github.com/harshul/octo-runner/internal/observability"
	"github.com/harshul/octo-runner/internal/tools"
	"github.com/harshul/octo-runner/internal/ui"
)

func newKillCmd(g *globals) *cobra.Command {
	var cwd string

	cmd := &cobra.Command{
		Use:   "kill-dev-server",
		Short: "Stop whatever serves the dev port",
		Long: `Stop the dev server on port 3000, whoever started it. Processes running
from this application's own install root are left alone, and port 5173 is
never touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return report(g.App().toolkit.KillProjectDevServer(cmd.Context(), cwd))
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "Project directory")
	return cmd
}

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tracked servers and what listens on the canonical ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ui.Muted(g.App().toolkit.DevServerStatus(cmd.Context()))
			return nil
		},
	}
}

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose the tools to an agent over MCP on stdio",
		Long: `Serve run_command, open_browser_preview, kill_project_dev_server,
validate_page and dev_server_status as Model Context Protocol tools on
stdin/stdout. Servers started through the tools are stopped when the client
disconnects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := g.App()
			defer a.shutdown(cmd.Context())

			observability.FromContext(cmd.Context()).Info("serving tools over stdio")
			return tools.ServeStdio(a.toolkit, version)
		},
	}
}
