package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wekan-attachments/internal/models"
)

// EachLegacyFileRecord walks cfs.attachments.filerecord in natural order.
func (m *Mongo) EachLegacyFileRecord(ctx context.Context, fn DocumentFunc) error {
	return m.eachDocument(ctx, m.cols.LegacyFileRecords, fn)
}

// FindLegacyBlobFile loads a CollectionFS GridFS file header.
func (m *Mongo) FindLegacyBlobFile(ctx context.Context, id primitive.ObjectID) (models.LegacyBlobFileHeader, error) {
	var header models.LegacyBlobFileHeader
	if err := findOne(ctx, m.collection(m.cols.LegacyFiles), bson.D{{Key: "_id", Value: id}}, &header); err != nil {
		return models.LegacyBlobFileHeader{}, err
	}
	return header, nil
}

// UpsertAttachment replaces the attachment document with the same _id, or inserts it.
func (m *Mongo) UpsertAttachment(ctx context.Context, doc models.AttachmentMetadata) error {
	return m.replaceByID(ctx, m.cols.Attachments, doc.ID, doc)
}

// UpsertBlobFile replaces the GridFS file header with the same _id, or inserts it.
func (m *Mongo) UpsertBlobFile(ctx context.Context, doc models.BlobFileHeader) error {
	return m.replaceByID(ctx, m.cols.Files, doc.ID, doc)
}

func (m *Mongo) replaceByID(ctx context.Context, collection string, id any, doc any) error {
	_, err := m.collection(collection).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert %s into %s: %w", models.FormatID(id), collection, err)
	}
	return nil
}

// MergeLegacyChunks copies every legacy chunk into the new chunk collection
// server-side, replacing chunks that already exist with the same _id.
func (m *Mongo) MergeLegacyChunks(ctx context.Context) error {
	opts := options.Aggregate().SetAllowDiskUse(true)
	cur, err := m.collection(m.cols.LegacyChunks).Aggregate(ctx, chunkMergePipeline(m.cols.Chunks), opts)
	if err != nil {
		return fmt.Errorf("merge %s into %s: %w", m.cols.LegacyChunks, m.cols.Chunks, err)
	}
	return cur.Close(ctx)
}

// CountLegacyChunks counts documents in the legacy chunk collection.
func (m *Mongo) CountLegacyChunks(ctx context.Context) (int64, error) {
	return m.count(ctx, m.cols.LegacyChunks)
}

// CountChunks counts documents in the new chunk collection.
func (m *Mongo) CountChunks(ctx context.Context) (int64, error) {
	return m.count(ctx, m.cols.Chunks)
}

func chunkMergePipeline(into string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 1},
			{Key: "files_id", Value: 1},
			{Key: "n", Value: 1},
			{Key: "data", Value: 1},
		}}},
		{{Key: "$merge", Value: bson.D{
			{Key: "into", Value: into},
			{Key: "on", Value: "_id"},
			{Key: "whenMatched", Value: "replace"},
			{Key: "whenNotMatched", Value: "insert"},
		}}},
	}
}
