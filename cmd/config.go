package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harshul/octo-runner/internal/config"
)

func newConfigCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: fmt.Sprintf(`Print the configuration after defaults, the config file, OCTO_RUNNER_*
environment variables and flags are merged. The config file lives in %s
unless --config names another.`, "~/.config/octo-runner"),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := yaml.Marshal(g.cfg.All())
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			if f := g.cfg.Viper().ConfigFileUsed(); f != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", f)
			} else if dir := config.Dir(); dir != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# no config file in %s\n", dir)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
