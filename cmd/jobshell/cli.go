package main

import (
	"github.com/spf13/cobra"
)

// TODO: Inject version at build time.
const version = "0.0.1"

func rootCmd() *cobra.Command {
	cfg := defaultConfig()

	var configPath string

	command := &cobra.Command{
		Use:          "jobshell",
		Short:        "Interactive command interpreter with job control",
		Example:      "  jobshell --prompt '$ ' --debug",
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.load(configPath, cmd.Flags()); err != nil {
				return err
			}

			if err := cfg.validate(); err != nil {
				return err
			}

			return runShell(
				cmd.Context(),
				cfg,
				cmd.InOrStdin(),
				cmd.OutOrStdout(),
				cmd.ErrOrStderr(),
			)
		},
	}

	command.CompletionOptions.HiddenDefaultCmd = true

	command.Flags().StringVar(
		&configPath,
		"config",
		"",
		"Path to YAML config file",
	)

	bindFlags(command.Flags(), cfg)

	return command
}
