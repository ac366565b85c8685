package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wekan-attachments/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var jsonOutput bool
	var logLevel string

	cmd := &cobra.Command{
		Use:           "wekan-attachments",
		Short:         "Export and migrate Wekan attachments stored in MongoDB GridFS",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newExportCmd(cfg, &jsonOutput),
		newMigrateCmd(cfg, &jsonOutput),
		newLedgerCmd(cfg, &jsonOutput),
		newConfigCmd(cfg),
	)

	return cmd
}
