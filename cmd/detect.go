package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-runner/internal/detect"
	"github.com/harshul/octo-runner/internal/fixer"
	"github.com/harshul/octo-runner/internal/provisioner"
	"github.com/harshul/octo-runner/internal/ui"
)

// detectFrom scans text the way the named source is scanned
func detectFrom(source, text, cwd string) ([]detect.DetectedError, error) {
	switch source {
	case "output", "":
		return detect.FromOutput(text, cwd), nil
	case "overlay":
		return detect.FromOverlay(text, cwd), nil
	case "console":
		return detect.FromConsole(text, cwd), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want output, overlay or console)", source)
	}
}

func readInput(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, 10*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(b), nil
}

func newDetectCmd(_ *globals) *cobra.Command {
	var (
		cwd    string
		source string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Recognize errors in text read from stdin",
		Long: `Read dev server output, an error overlay's text or a console message from
stdin and list the errors recognized in it.

  npm run dev 2>&1 | octo-runner detect --cwd .`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := readInput(cmd.InOrStdin())
			if err != nil {
				return err
			}
			errs, err := detectFrom(source, text, cwd)
			if err != nil {
				return err
			}

			if asJSON {
				if errs == nil {
					errs = []detect.DetectedError{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(errs)
			}

			if len(errs) == 0 {
				ui.Info("No errors detected.")
				return nil
			}
			ui.Warn(fmt.Sprintf("Detected %d error(s):", len(errs)))
			ui.Muted(strings.TrimRight(detect.Format(errs, installFor(cwd)), "\n"))
			return nil
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "Project directory used to resolve file paths")
	cmd.Flags().StringVar(&source, "source", "output", "Kind of text: output, overlay or console")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the errors as JSON")
	return cmd
}

func newFixCmd(g *globals) *cobra.Command {
	var (
		cwd    string
		source string
	)

	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Repair the fixable errors found in text read from stdin",
		Long: `Read error text from stdin, recognize the errors in it and repair the
fixable ones: missing packages are installed with the project's package
manager and broken stylesheet imports are substituted or removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cwd == "" {
				cwd = "."
			}
			text, err := readInput(cmd.InOrStdin())
			if err != nil {
				return err
			}
			errs, err := detectFrom(source, text, cwd)
			if err != nil {
				return err
			}
			if len(errs) == 0 {
				ui.Info("No errors detected.")
				return nil
			}

			a := g.App()
			outcomes := ui.RunWithSpinner(fmt.Sprintf("Fixing %d error(s)...", len(errs)), func() string {
				return renderOutcomes(a.fixer.FixAll(cmd.Context(), errs, cwd))
			})
			ui.Muted(outcomes)
			return nil
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "Project directory (default: current directory)")
	cmd.Flags().StringVar(&source, "source", "output", "Kind of text: output, overlay or console")
	return cmd
}

func renderOutcomes(outcomes []fixer.Outcome) string {
	var b strings.Builder
	for i, o := range outcomes {
		status := "FAILED"
		if o.Result.Success {
			status = "OK"
		}
		fmt.Fprintf(&b, "%d. [%s] %s: %s\n", i+1, o.Result.Action, status, o.Result.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

func installFor(cwd string) string {
	if cwd == "" {
		return ""
	}
	return provisioner.AddPrefix(provisioner.DetectPackageManager(cwd).Manager)
}
