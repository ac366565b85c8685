package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wekan-attachments/internal/models"
)

var blobFileProjection = bson.D{
	{Key: "_id", Value: 1},
	{Key: "length", Value: 1},
	{Key: "chunkSize", Value: 1},
	{Key: "uploadDate", Value: 1},
	{Key: "filename", Value: 1},
	{Key: "contentType", Value: 1},
}

// EachAttachment walks the attachments collection in natural order.
func (m *Mongo) EachAttachment(ctx context.Context, fn DocumentFunc) error {
	return m.eachDocument(ctx, m.cols.Attachments, fn)
}

// FindBlobFile loads a GridFS file header from the new bucket.
func (m *Mongo) FindBlobFile(ctx context.Context, id primitive.ObjectID) (models.BlobFileHeader, error) {
	var header models.BlobFileHeader
	opts := options.FindOne().SetProjection(blobFileProjection)
	if err := findOne(ctx, m.collection(m.cols.Files), bson.D{{Key: "_id", Value: id}}, &header, opts); err != nil {
		return models.BlobFileHeader{}, err
	}
	return header, nil
}

// OpenBlob opens a download stream for a GridFS file.
func (m *Mongo) OpenBlob(ctx context.Context, id primitive.ObjectID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream, err := m.bucket.OpenDownloadStream(id)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open download stream %s: %w", id.Hex(), err)
	}
	return stream, nil
}
