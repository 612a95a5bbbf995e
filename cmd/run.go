package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-runner/internal/executor"
	"github.com/harshul/octo-runner/internal/provisioner"
	"github.com/harshul/octo-runner/internal/ui"
)

func newRunCmd(g *globals) *cobra.Command {
	var cwd string

	cmd := &cobra.Command{
		Use:   "run <command...>",
		Short: "Run a command in a project",
		Long: `Run a shell command in a project directory.

Dev server commands (npm run dev, vite, next dev, ...) start in the background
on port 3000 and preview commands (vite preview, next start, ...) on port 4173.
Whatever else holds those ports is stopped first. Other commands run to
completion with a timeout and their output is returned.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")
			a := g.App()

			run := func() string { return a.toolkit.RunCommand(cmd.Context(), command, cwd) }
			var out string
			if kind := executor.Classify(command); kind != executor.KindOneShot {
				out = ui.RunWithSpinner(fmt.Sprintf("Starting %s...", kind), run)
			} else {
				out = run()
			}
			return report(out)
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "Project directory (default: current directory)")
	return cmd
}

func newDevCmd(g *globals) *cobra.Command {
	return newServerCmd(g, "dev", "Start the project's dev server on the dev port", executor.KindDevServer)
}

func newPreviewCmd(g *globals) *cobra.Command {
	return newServerCmd(g, "preview", "Start the project's preview server on the preview port", executor.KindPreviewServer)
}

// newServerCmd starts the package script named use. Without --detach it
// stays in the foreground and stops the server on interrupt.
func newServerCmd(g *globals, use, short string, kind executor.Kind) *cobra.Command {
	var (
		cwd     string
		command string
		detach  bool
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := g.App()

			if command == "" {
				dir := cwd
				if dir == "" {
					dir = "."
				}
				command = scriptCommand(provisioner.DetectPackageManager(dir).Manager, use)
			}
			if executor.Classify(command) != kind {
				return fmt.Errorf("%q does not look like a %s command", command, kind)
			}

			out := ui.RunWithSpinner(fmt.Sprintf("Starting %s...", kind), func() string {
				return a.toolkit.RunCommand(ctx, command, cwd)
			})
			if err := report(out); err != nil || detach {
				return err
			}

			ui.Muted("Press Ctrl+C to stop the server.")
			<-ctx.Done()
			ui.Info(fmt.Sprintf("Stopping %s...", kind))
			a.shutdown(ctx)
			return nil
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "Project directory (default: current directory)")
	cmd.Flags().StringVar(&command, "command", "", "Command to run instead of the package script")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Leave the server running in the background and return")
	return cmd
}

// scriptCommand returns the invocation of a package.json script for manager
func scriptCommand(manager provisioner.PackageManager, script string) string {
	switch manager {
	case provisioner.PNPM:
		return "pnpm " + script
	case provisioner.Yarn:
		return "yarn " + script
	case provisioner.Bun:
		return "bun run " + script
	default:
		return "npm run " + script
	}
}

// report prints a tool result and turns an error result into a failed exit
func report(out string) error {
	ui.Result(out)
	if strings.HasPrefix(out, "Error:") || strings.HasPrefix(out, "Validation failed") {
		return errReported
	}
	return nil
}
