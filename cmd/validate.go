package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-runner/internal/ui"
)

func newValidateCmd(g *globals) *cobra.Command {
	var (
		cwd     string
		timeout time.Duration
		fix     bool
	)

	cmd := &cobra.Command{
		Use:   "validate <url>",
		Short: "Check that a page renders without errors",
		Long: `Load a page in a headless browser and decide whether it rendered. Error
overlays, uncaught exceptions, console errors and failed requests fail the
page. Without a usable browser the page is fetched over HTTP instead.

With --fix and a project directory, fixable errors (missing packages, broken
stylesheet imports) are repaired.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := g.App()
			dir := ""
			if fix {
				dir = cwd
				if dir == "" {
					dir = "."
				}
			}

			out := ui.RunWithSpinner(fmt.Sprintf("Validating %s...", args[0]), func() string {
				return a.toolkit.ValidatePage(cmd.Context(), args[0], timeout, dir)
			})
			return report(out)
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "Project directory used for fixes (default: current directory)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Validation timeout (default from config, 15s)")
	cmd.Flags().BoolVar(&fix, "fix", false, "Repair fixable errors in the project")
	return cmd
}

func newOpenCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "open <url>",
		Short: "Open a URL in the default browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(g.App().toolkit.OpenBrowserPreview(cmd.Context(), args[0]))
		},
	}
}
