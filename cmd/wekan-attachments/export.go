package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"wekan-attachments/internal/blobstore"
	"wekan-attachments/internal/config"
	"wekan-attachments/internal/exporter"
	"wekan-attachments/internal/ledger"
)

var errLedgerRequired = errors.New("--resume requires the export ledger")

func newExportCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var outputDir string
	var reportPath string
	var resume bool
	var noLedger bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the original version of every attachment from GridFS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dir := cfg.Export.OutputDir
			if outputDir != "" {
				dir = outputDir
			}
			useLedger := cfg.Export.Ledger && !noLedger
			if resume && !useLedger {
				return errLedgerRequired
			}

			runID := uuid.NewString()
			logger := slog.Default().With("component", "exporter")

			sink, err := blobstore.NewLocalDir(dir)
			if err != nil {
				return err
			}

			opts := exporter.Options{
				Sink:   sink,
				Resume: resume,
				RunID:  runID,
				Logger: logger,
			}
			if useLedger {
				ledgerPath := cfg.Export.LedgerFile(dir)
				led, err := ledger.Open(ledgerPath)
				if err != nil {
					return fmt.Errorf("open export ledger %s: %w", ledgerPath, err)
				}
				defer led.Close()
				opts.Ledger = led
			}

			st, err := connectStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore(st)
			opts.Source = st

			exp, err := exporter.New(opts)
			if err != nil {
				return err
			}

			logger.Info("exporting attachments", "run_id", runID, "database", st.DatabaseName(), "output", sink.Root())
			summary, runErr := exp.Run(ctx)
			if err := writeReport(reportPath, summary); err != nil {
				return err
			}
			if runErr != nil {
				return runErr
			}

			if *jsonOutput {
				return writeJSON(summary)
			}
			return writeExportSummary(summary, sink.Root())
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: ./attachments)")
	cmd.Flags().BoolVar(&resume, "resume", false, "skip files already exported by an earlier run")
	cmd.Flags().BoolVar(&noLedger, "no-ledger", false, "do not record exported files in the ledger")
	cmd.Flags().StringVar(&reportPath, "report", "", "write a YAML run report to this file")

	return cmd
}
