package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"wekan-attachments/internal/config"
)

func newConfigCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(newConfigGetCmd(cfg))
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
			}
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}
			return writePlain("%s\n", value)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var project bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Long: "Writes ~/.wekan-attachments.toml (or $WEKAN_ATTACHMENTS_CONFIG_DIR/.wekan-attachments.toml).\n" +
			"--project writes ./.wekan-attachments.toml, which is only read when\n" +
			"WEKAN_ATTACHMENTS_TRUST_PROJECT_CONFIG=true.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			path, err := config.SetPath(project)
			if err != nil {
				return err
			}
			if err := config.SetKey(path, key, value); err != nil {
				return err
			}
			slog.Debug("config updated", "path", path, "key", key)
			return nil
		},
	}

	cmd.Flags().BoolVar(&project, "project", false, "write to the project config (./.wekan-attachments.toml)")
	return cmd
}
