package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wekan-attachments/internal/config"
	"wekan-attachments/internal/ledger"
)

type ledgerStatus struct {
	Path       string                  `json:"path" yaml:"path"`
	Exists     bool                    `json:"exists" yaml:"exists"`
	Migrations *ledger.MigrationStatus `json:"migrations,omitempty" yaml:"migrations,omitempty"`
	Entries    int                     `json:"entries" yaml:"entries"`
}

func newLedgerCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the export ledger",
	}

	cmd.AddCommand(newLedgerStatusCmd(cfg, jsonOutput))
	return cmd
}

func newLedgerStatusCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show ledger schema version and recorded file count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := cfg.Export.OutputDir
			if outputDir != "" {
				dir = outputDir
			}
			status, err := inspectLedger(cmd.Context(), cfg.Export.LedgerFile(dir))
			if err != nil {
				return err
			}

			if *jsonOutput {
				return writeJSON(status)
			}
			return writeLedgerStatus(status)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "export directory holding the ledger")
	return cmd
}

// inspectLedger never creates a ledger. Entries are only counted once the
// schema is current, since opening applies pending migrations.
func inspectLedger(ctx context.Context, path string) (ledgerStatus, error) {
	status := ledgerStatus{Path: path}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return status, nil
		}
		return status, err
	}
	status.Exists = true

	plan, err := ledger.Inspect(path)
	if err != nil {
		return status, fmt.Errorf("inspect ledger: %w", err)
	}
	status.Migrations = plan
	if len(plan.Pending) > 0 {
		return status, nil
	}

	led, err := ledger.Open(path)
	if err != nil {
		return status, err
	}
	defer led.Close()
	if status.Entries, err = led.Count(ctx); err != nil {
		return status, fmt.Errorf("count ledger entries: %w", err)
	}
	return status, nil
}
