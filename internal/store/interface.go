package store

import (
	"context"
	"errors"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"wekan-attachments/internal/models"
)

// ErrNotFound is returned when a single document lookup matches nothing.
var ErrNotFound = errors.New("not found")

// DocumentFunc receives one raw document. The slice is only valid for the
// duration of the call.
type DocumentFunc func(raw bson.Raw) error

// ExportSource is the read-only view the exporter needs.
type ExportSource interface {
	EachAttachment(ctx context.Context, fn DocumentFunc) error
	FindBlobFile(ctx context.Context, id primitive.ObjectID) (models.BlobFileHeader, error)
	OpenBlob(ctx context.Context, id primitive.ObjectID) (io.ReadCloser, error)
}

// MigrationStore is the read/write view the migrator needs.
type MigrationStore interface {
	EachLegacyFileRecord(ctx context.Context, fn DocumentFunc) error
	FindLegacyBlobFile(ctx context.Context, id primitive.ObjectID) (models.LegacyBlobFileHeader, error)
	UpsertAttachment(ctx context.Context, doc models.AttachmentMetadata) error
	UpsertBlobFile(ctx context.Context, doc models.BlobFileHeader) error
	MergeLegacyChunks(ctx context.Context) error
	CountLegacyChunks(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
}

var (
	_ ExportSource   = (*Mongo)(nil)
	_ MigrationStore = (*Mongo)(nil)
)
