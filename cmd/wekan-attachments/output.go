package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wekan-attachments/internal/exporter"
	"wekan-attachments/internal/format"
	"wekan-attachments/internal/migrator"
)

var (
	outputFormatter format.Formatter = format.JSONFormatter{}
	reportFormatter format.Formatter = format.YAMLFormatter{}
)

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

// writeReport writes payload as YAML to path. An empty path is a no-op.
func writeReport(path string, payload any) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := reportFormatter.Write(f, payload); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return f.Close()
}

func writeExportSummary(s exporter.Summary, dir string) error {
	lines := []string{
		fmt.Sprintf("run_id: %s", s.RunID),
		fmt.Sprintf("output: %s", dir),
		fmt.Sprintf("scanned: %d", s.Scanned),
		fmt.Sprintf("exported: %d (%d bytes)", s.Exported, s.Bytes),
	}
	lines = appendCount(lines, "unchanged", s.Unchanged)
	lines = appendCount(lines, "skipped", s.Skipped)
	lines = appendCount(lines, "invalid", s.Invalid)
	lines = appendCount(lines, "missing", s.Missing)
	lines = appendCount(lines, "failed", s.Failed)
	lines = append(lines, fmt.Sprintf("duration: %s", formatDuration(s.Duration)))
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeMigrateSummary(s migrator.Summary) error {
	lines := []string{
		fmt.Sprintf("run_id: %s", s.RunID),
	}
	if s.DryRun {
		lines = append(lines, "dry_run: true")
	}
	lines = append(lines,
		fmt.Sprintf("scanned: %d", s.Scanned),
		fmt.Sprintf("migrated: %d", s.Migrated),
	)
	lines = appendCount(lines, "skipped", s.Skipped)
	lines = appendCount(lines, "errors", s.Errors)
	if len(s.FailedRecords) > 0 {
		lines = append(lines, fmt.Sprintf("failed_records: %s", strings.Join(s.FailedRecords, ", ")))
	}
	if s.ChunksMerged || s.LegacyChunks > 0 || s.Chunks > 0 {
		lines = append(lines, fmt.Sprintf("chunks: %d legacy, %d new", s.LegacyChunks, s.Chunks))
	}
	if s.ChunkCountMismatch {
		lines = append(lines, "chunk_count_mismatch: true")
	}
	if s.ChunkError != "" {
		lines = append(lines, fmt.Sprintf("chunk_error: %s", s.ChunkError))
	}
	lines = append(lines, fmt.Sprintf("duration: %s", formatDuration(s.Duration)))
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeLedgerStatus(s ledgerStatus) error {
	if !s.Exists {
		return writePlain("No ledger at %s.\n", s.Path)
	}
	lines := []string{fmt.Sprintf("path: %s", s.Path)}
	if s.Migrations != nil {
		lines = append(lines,
			fmt.Sprintf("current_version: %d", s.Migrations.CurrentVersion),
			fmt.Sprintf("available_version: %d", s.Migrations.AvailableVersion),
		)
		if len(s.Migrations.Pending) > 0 {
			lines = append(lines, fmt.Sprintf("pending migrations: %d (applied on the next export)", len(s.Migrations.Pending)))
			for _, m := range s.Migrations.Pending {
				lines = append(lines, fmt.Sprintf("  %d: %s", m.Version, m.Description))
			}
		}
	}
	lines = append(lines, fmt.Sprintf("entries: %d", s.Entries))
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func appendCount(lines []string, label string, n int) []string {
	if n == 0 {
		return lines
	}
	return append(lines, fmt.Sprintf("%s: %d", label, n))
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
