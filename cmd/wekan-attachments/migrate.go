package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"wekan-attachments/internal/config"
	"wekan-attachments/internal/migrator"
)

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool
	var skipChunks bool
	var progressEvery int
	var reportPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate CollectionFS attachments to the Meteor-Files layout",
		Long: "Copies cfs.attachments.filerecord and cfs_gridfs.attachments.* into the attachments\n" +
			"collection and the attachments GridFS bucket. Documents keep their ids, so the\n" +
			"command can be re-run. Back up the database first.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			every := cfg.Migrate.ProgressEvery
			if cmd.Flags().Changed("progress-every") {
				if progressEvery <= 0 {
					return fmt.Errorf("--progress-every must be a positive integer")
				}
				every = progressEvery
			}

			st, err := connectStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore(st)

			runID := uuid.NewString()
			m, err := migrator.New(migrator.Options{
				Store:         st,
				ProgressEvery: every,
				DryRun:        dryRun,
				SkipChunks:    skipChunks,
				RunID:         runID,
				Logger:        slog.Default().With("component", "migrator", "database", st.DatabaseName()),
			})
			if err != nil {
				return err
			}

			summary, runErr := m.Run(ctx)
			if err := writeReport(reportPath, summary); err != nil {
				return err
			}
			if runErr != nil {
				return runErr
			}

			if *jsonOutput {
				return writeJSON(summary)
			}
			return writeMigrateSummary(summary)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "map every record without writing anything")
	cmd.Flags().BoolVar(&skipChunks, "skip-chunks", false, "migrate file records only")
	cmd.Flags().IntVar(&progressEvery, "progress-every", 0, "log progress after this many records (default from config)")
	cmd.Flags().StringVar(&reportPath, "report", "", "write a YAML run report to this file")

	return cmd
}
