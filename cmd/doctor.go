package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-runner/internal/doctor"
	"github.com/harshul/octo-runner/internal/executor"
	"github.com/harshul/octo-runner/internal/ports"
	"github.com/harshul/octo-runner/internal/toolchain"
	"github.com/harshul/octo-runner/internal/ui"
)

func newDoctorCmd(g *globals) *cobra.Command {
	var cwd string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that a project can be run and validated here",
		Long: `Check the Node.js runtime, the project's package manager and installed
dependencies, the headless browser used for validation and who holds the
dev, preview and app ports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := filepath.Abs(cwd)
			if err != nil {
				return err
			}
			a := g.App()
			opts := a.exec.Options()

			d := doctor.Diagnose(cmd.Context(), dir, doctor.Probes{
				Resolve:   opts.Resolve,
				Browser:   func() string { return toolchain.FindBrowser(a.cfg.BrowserPath()) },
				Listeners: a.reaper.Listeners,
				Available: ports.IsPortAvailable,
			}, []doctor.Port{
				{Number: opts.DevPort, Role: executor.KindDevServer.String()},
				{Number: opts.PreviewPort, Role: executor.KindPreviewServer.String()},
				{Number: a.cfg.AppPort(), Role: "this application"},
			})

			ui.Muted(d.Report())
			if !d.Healthy {
				ui.Error("Project is not ready to run.")
				return errReported
			}
			ui.Success("Project is ready to run.")
			return nil
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", ".", "Project directory")
	return cmd
}
