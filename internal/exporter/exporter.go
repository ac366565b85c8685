package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"wekan-attachments/internal/blobstore"
	"wekan-attachments/internal/ledger"
	"wekan-attachments/internal/models"
	"wekan-attachments/internal/store"
)

// Ledger remembers which blobs were written by earlier runs.
type Ledger interface {
	Record(ctx context.Context, e ledger.Entry) error
	Lookup(ctx context.Context, blobID string) (ledger.Entry, bool, error)
}

// Options configures an Exporter. Source and Sink are required.
type Options struct {
	Source store.ExportSource
	Sink   blobstore.Sink
	Ledger Ledger
	// Resume skips blobs whose ledger entry still matches the file on disk.
	Resume bool
	RunID  string
	Logger *slog.Logger
}

// Summary counts what happened to every attachments document.
type Summary struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Scanned   int           `json:"scanned" yaml:"scanned"`
	Exported  int           `json:"exported" yaml:"exported"`
	Unchanged int           `json:"unchanged" yaml:"unchanged"`
	Skipped   int           `json:"skipped" yaml:"skipped"`
	Invalid   int           `json:"invalid" yaml:"invalid"`
	Missing   int           `json:"missing" yaml:"missing"`
	Failed    int           `json:"failed" yaml:"failed"`
	Bytes     int64         `json:"bytes" yaml:"bytes"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Exporter copies the original version of every attachment out of GridFS.
type Exporter struct {
	source store.ExportSource
	sink   blobstore.Sink
	ledger Ledger
	resume bool
	runID  string
	log    *slog.Logger
}

// New returns an Exporter for opts.
func New(opts Options) (*Exporter, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("export source is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("export sink is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		source: opts.Source,
		sink:   opts.Sink,
		ledger: opts.Ledger,
		resume: opts.Resume && opts.Ledger != nil,
		runID:  opts.RunID,
		log:    logger.With("run_id", opts.RunID),
	}, nil
}

// Run walks the attachments collection once. Per-document problems are logged
// and counted; only cursor failures and cancellation end the run early.
func (e *Exporter) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	summary := Summary{RunID: e.runID}

	e.log.Info("exporting attachments")
	err := e.source.EachAttachment(ctx, func(raw bson.Raw) error {
		summary.Scanned++
		if err := e.exportDocument(ctx, raw, &summary); err != nil {
			return err
		}
		return ctx.Err()
	})
	summary.Duration = time.Since(started)
	if err != nil {
		return summary, fmt.Errorf("walk attachments: %w", err)
	}

	e.log.Info("export finished",
		"scanned", summary.Scanned,
		"exported", summary.Exported,
		"unchanged", summary.Unchanged,
		"skipped", summary.Skipped,
		"invalid", summary.Invalid,
		"missing", summary.Missing,
		"failed", summary.Failed,
		"bytes", summary.Bytes,
	)
	return summary, nil
}

// exportDocument handles one attachments document. The returned error is
// non-nil only when the run must stop.
func (e *Exporter) exportDocument(ctx context.Context, raw bson.Raw, summary *Summary) error {
	docID := models.RawDocumentID(raw)

	ref, ok := models.BlobReference(raw)
	if !ok {
		e.log.Info("skipping document without gridfsFileId", "id", docID)
		summary.Skipped++
		return nil
	}

	blobID, err := models.ParseObjectID(ref)
	if err != nil {
		e.log.Error("skipping document with malformed gridfsFileId", "id", docID, "ref", ref, "err", err)
		summary.Invalid++
		return nil
	}
	ref = blobID.Hex()

	header, err := e.source.FindBlobFile(ctx, blobID)
	if errors.Is(err, store.ErrNotFound) {
		e.log.Warn("blob not found in gridfs, skipping", "id", docID, "blob_id", ref)
		summary.Missing++
		return nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e.log.Error("failed to load blob header", "id", docID, "blob_id", ref, "err", err)
		summary.Failed++
		return nil
	}

	name := models.ExportFileName(ref, header.Filename)
	if e.resume && e.unchanged(ctx, ref, name, header.Length) {
		e.log.Debug("already exported", "blob_id", ref, "file", name)
		summary.Unchanged++
		return nil
	}

	e.log.Info("downloading", "filename", header.Filename, "blob_id", ref, "file", name)
	result, err := e.download(ctx, header, name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, store.ErrNotFound) {
			e.log.Warn("blob chunks not found in gridfs, skipping", "id", docID, "blob_id", ref)
			summary.Missing++
			return nil
		}
		e.log.Error("failed to write file", "blob_id", ref, "file", name, "err", err)
		summary.Failed++
		return nil
	}

	summary.Exported++
	summary.Bytes += result.SizeBytes
	e.log.Debug("saved", "path", result.Path, "bytes", result.SizeBytes)

	if e.ledger != nil {
		entry := ledger.Entry{
			BlobID:    ref,
			FileName:  name,
			SizeBytes: result.SizeBytes,
			Digest:    result.Digest,
			RunID:     e.runID,
		}
		if err := e.ledger.Record(ctx, entry); err != nil {
			e.log.Warn("failed to record export in ledger", "blob_id", ref, "err", err)
		}
	}
	return nil
}

func (e *Exporter) download(ctx context.Context, header models.BlobFileHeader, name string) (blobstore.PutResult, error) {
	rc, err := e.source.OpenBlob(ctx, header.ID)
	if err != nil {
		return blobstore.PutResult{}, err
	}
	defer rc.Close()

	result, err := e.sink.Put(ctx, name, rc)
	if err != nil {
		return blobstore.PutResult{}, err
	}
	if header.Length > 0 && result.SizeBytes != header.Length {
		e.log.Warn("exported size differs from gridfs length",
			"blob_id", header.ID.Hex(), "expected", header.Length, "written", result.SizeBytes)
	}
	return result, nil
}

// unchanged reports whether a previous run already wrote this blob and the
// file on disk still has the recorded size and digest.
func (e *Exporter) unchanged(ctx context.Context, blobID, name string, length int64) bool {
	entry, ok, err := e.ledger.Lookup(ctx, blobID)
	if err != nil {
		e.log.Warn("ledger lookup failed", "blob_id", blobID, "err", err)
		return false
	}
	if !ok || entry.FileName != name || entry.SizeBytes != length {
		return false
	}
	info, exists, err := e.sink.Stat(ctx, name)
	if err != nil || !exists || info.SizeBytes != entry.SizeBytes {
		return false
	}
	digest, err := e.sink.Digest(ctx, name)
	if err != nil {
		return false
	}
	return digest == entry.Digest
}
