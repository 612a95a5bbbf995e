package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-runner/internal/config"
	"github.com/harshul/octo-runner/internal/observability"
	"github.com/harshul/octo-runner/internal/ui"
)

// Version information (can be set at build time)
var (
	version = "0.1.0"
)

// errReported means the failure was already printed
var errReported = errors.New("failure already reported")

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			ui.Error(err.Error())
		}
		return 1
	}
	return 0
}

// globals carries the state every subcommand shares
type globals struct {
	configFile string
	quiet      bool

	cfg     *config.Config
	logger  *slog.Logger
	cleanup func() error
	app     *app
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "octo-runner",
		Short: "Run, supervise and validate JavaScript dev servers",
		Long: `octo-runner is the local automation layer an agent drives to work on a
JavaScript project. It runs commands, keeps dev and preview servers on fixed
ports, reads their errors, validates pages in a headless browser and applies
safe fixes.

Usage:
  octo-runner dev              Start the project's dev server on port 3000
  octo-runner run <command>    Run any command in a project
  octo-runner validate <url>   Check that a page renders without errors
  octo-runner serve            Expose the tools over MCP on stdio`,
		Version:            version,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  g.setup,
		PersistentPostRunE: g.teardown,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "Config file (default ~/.config/octo-runner/config.yaml)")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-format", "", "Log format: text, json")
	pf.String("log-file", "", "Also write logs to this file")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "Keep logs off stderr (a --log-file still receives them)")

	rootCmd.AddCommand(
		newRunCmd(g),
		newDevCmd(g),
		newPreviewCmd(g),
		newKillCmd(g),
		newValidateCmd(g),
		newOpenCmd(g),
		newStatusCmd(g),
		newDoctorCmd(g),
		newConfigCmd(g),
		newDetectCmd(g),
		newFixCmd(g),
		newServeCmd(g),
	)
	return rootCmd
}

func (g *globals) setup(cmd *cobra.Command, _ []string) error {
	g.cfg = config.Load(g.configFile)

	v := g.cfg.Viper()
	for key, flag := range map[string]string{
		"log.level":  "log-level",
		"log.format": "log-format",
		"log.file":   "log-file",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", flag, err)
			}
		}
	}

	if err := g.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, cleanup, err := observability.NewLogger(&observability.Config{
		Level:   g.cfg.LogLevel(),
		Format:  g.cfg.LogFormat(),
		LogFile: g.cfg.LogFile(),
		Quiet:   g.quiet,
		Command: cmd.CommandPath(),
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	slog.SetDefault(logger)
	g.logger = logger
	g.cleanup = cleanup

	cmd.SetContext(observability.WithLogger(cmd.Context(), logger))
	return nil
}

func (g *globals) teardown(*cobra.Command, []string) error {
	if g.cleanup != nil {
		return g.cleanup()
	}
	return nil
}

// App builds the component graph on first use
func (g *globals) App() *app {
	if g.app == nil {
		g.app = newApp(g.cfg, g.logger)
	}
	return g.app
}
