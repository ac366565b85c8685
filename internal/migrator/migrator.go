package migrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"wekan-attachments/internal/models"
	"wekan-attachments/internal/store"
)

const defaultProgressEvery = 100

// Options configures a Migrator. Store is required.
type Options struct {
	Store store.MigrationStore
	// ProgressEvery logs a progress line after this many migrated records.
	ProgressEvery int
	// DryRun maps every record but writes nothing and skips the chunk merge.
	DryRun bool
	// SkipChunks runs only the file record phase.
	SkipChunks bool
	RunID      string
	Logger     *slog.Logger
}

// Summary is the outcome of a migration run. It is advisory: Run reports
// per-record and chunk-phase failures here instead of returning them.
type Summary struct {
	RunID              string        `json:"run_id" yaml:"run_id"`
	DryRun             bool          `json:"dry_run" yaml:"dry_run"`
	Scanned            int           `json:"scanned" yaml:"scanned"`
	Migrated           int           `json:"migrated" yaml:"migrated"`
	Skipped            int           `json:"skipped" yaml:"skipped"`
	Errors             int           `json:"errors" yaml:"errors"`
	FailedRecords      []string      `json:"failed_records,omitempty" yaml:"failed_records,omitempty"`
	ChunksMerged       bool          `json:"chunks_merged" yaml:"chunks_merged"`
	LegacyChunks       int64         `json:"legacy_chunks" yaml:"legacy_chunks"`
	Chunks             int64         `json:"chunks" yaml:"chunks"`
	ChunkCountMismatch bool          `json:"chunk_count_mismatch" yaml:"chunk_count_mismatch"`
	ChunkError         string        `json:"chunk_error,omitempty" yaml:"chunk_error,omitempty"`
	Duration           time.Duration `json:"duration" yaml:"duration"`
}

// Migrator rewrites the CollectionFS attachment layout into the Meteor-Files
// layout. Every write is keyed by _id, so a run can be repeated safely.
type Migrator struct {
	store         store.MigrationStore
	progressEvery int
	dryRun        bool
	skipChunks    bool
	runID         string
	log           *slog.Logger
}

// New returns a Migrator for opts.
func New(opts Options) (*Migrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("migration store is required")
	}
	progressEvery := opts.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = defaultProgressEvery
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{
		store:         opts.Store,
		progressEvery: progressEvery,
		dryRun:        opts.DryRun,
		skipChunks:    opts.SkipChunks,
		runID:         opts.RunID,
		log:           logger.With("run_id", opts.RunID),
	}, nil
}

// Run executes the file record phase, then the chunk phase. The returned
// error is non-nil only when the legacy cursor fails or ctx is canceled.
func (m *Migrator) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	summary := Summary{RunID: m.runID, DryRun: m.dryRun}

	m.log.Warn("ensure you have a backup of the database before proceeding")
	if m.dryRun {
		m.log.Info("dry run: no documents will be written")
	}

	if err := m.migrateFileRecords(ctx, &summary); err != nil {
		summary.Duration = time.Since(started)
		return summary, err
	}

	if m.skipChunks {
		m.log.Info("skipping chunk migration")
	} else {
		m.migrateChunks(ctx, &summary)
	}

	summary.Duration = time.Since(started)
	m.log.Info("migration process finished",
		"migrated", summary.Migrated,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
		"chunks_merged", summary.ChunksMerged,
		"chunk_count_mismatch", summary.ChunkCountMismatch,
		"duration", summary.Duration.Round(time.Millisecond),
	)
	return summary, ctx.Err()
}

func (m *Migrator) migrateFileRecords(ctx context.Context, summary *Summary) error {
	m.log.Info("migrating file records")

	err := m.store.EachLegacyFileRecord(ctx, func(raw bson.Raw) error {
		summary.Scanned++
		recordID := models.RawDocumentID(raw)
		if err := m.migrateRecord(ctx, raw, summary); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			summary.Errors++
			summary.FailedRecords = append(summary.FailedRecords, recordID)
			m.log.Error("failed to migrate file record", "id", recordID, "err", err)
			return nil
		}
		return ctx.Err()
	})
	if err != nil {
		return fmt.Errorf("walk legacy file records: %w", err)
	}

	m.log.Info("file metadata migration complete", "migrated", summary.Migrated, "skipped", summary.Skipped)
	if summary.Errors > 0 {
		m.log.Warn("file metadata migration encountered errors", "errors", summary.Errors)
	}
	return nil
}

// migrateRecord handles one legacy file record. Skips are counted here and
// return nil; a returned error counts the record as failed.
func (m *Migrator) migrateRecord(ctx context.Context, raw bson.Raw, summary *Summary) error {
	rec, err := models.DecodeLegacyFileRecord(raw)
	if err != nil {
		return err
	}

	key, ok := rec.BlobKey()
	if !ok {
		m.log.Warn("skipping record without gridfs key", "id", rec.IDString())
		summary.Skipped++
		return nil
	}
	blobID, err := models.ParseObjectID(key)
	if err != nil {
		return err
	}

	legacy, err := m.store.FindLegacyBlobFile(ctx, blobID)
	if errors.Is(err, store.ErrNotFound) {
		m.log.Warn("skipping record whose gridfs file was not found", "id", rec.IDString(), "blob_id", key)
		summary.Skipped++
		return nil
	}
	if err != nil {
		return err
	}

	header, err := models.NewBlobFileHeader(rec, legacy)
	if err != nil {
		return err
	}
	attachment, err := models.NewAttachmentMetadata(rec, legacy)
	if err != nil {
		return err
	}

	if !m.dryRun {
		if err := m.store.UpsertAttachment(ctx, attachment); err != nil {
			return err
		}
		if err := m.store.UpsertBlobFile(ctx, header); err != nil {
			return err
		}
	}

	summary.Migrated++
	if summary.Migrated%m.progressEvery == 0 {
		m.log.Info("processed file records", "migrated", summary.Migrated)
	}
	return nil
}

// migrateChunks merges the legacy chunk collection into the new one and
// compares counts. Failures are logged and recorded, never returned: the
// file record phase has already committed and stays in place.
func (m *Migrator) migrateChunks(ctx context.Context, summary *Summary) {
	m.log.Info("starting chunk migration; this may take some time depending on the total size of attachments")

	if !m.dryRun {
		if err := m.store.MergeLegacyChunks(ctx); err != nil {
			summary.ChunkError = err.Error()
			m.log.Error("chunk migration failed", "err", err)
			return
		}
		summary.ChunksMerged = true
	}

	legacyCount, err := m.store.CountLegacyChunks(ctx)
	if err != nil {
		summary.ChunkError = err.Error()
		m.log.Error("chunk migration failed", "err", err)
		return
	}
	newCount, err := m.store.CountChunks(ctx)
	if err != nil {
		summary.ChunkError = err.Error()
		m.log.Error("chunk migration failed", "err", err)
		return
	}
	summary.LegacyChunks = legacyCount
	summary.Chunks = newCount

	m.log.Info("chunk migration complete", "legacy_chunks", legacyCount, "chunks", newCount)
	if m.dryRun {
		return
	}
	if legacyCount != newCount {
		summary.ChunkCountMismatch = true
		m.log.Warn("chunk counts do not match; please review", "legacy_chunks", legacyCount, "chunks", newCount)
	}
}
