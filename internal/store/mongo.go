package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultConnectTimeout = 10 * time.Second

	legacyFileRecordsCollection = "cfs.attachments.filerecord"
	legacyFilesCollection       = "cfs_gridfs.attachments.files"
	legacyChunksCollection      = "cfs_gridfs.attachments.chunks"
)

// Collections names every collection the tool touches.
type Collections struct {
	LegacyFileRecords string
	LegacyFiles       string
	LegacyChunks      string
	Attachments       string
	Files             string
	Chunks            string
}

// DefaultCollections returns the Wekan collection layout for a GridFS bucket.
func DefaultCollections(bucket string) Collections {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		bucket = "attachments"
	}
	return Collections{
		LegacyFileRecords: legacyFileRecordsCollection,
		LegacyFiles:       legacyFilesCollection,
		LegacyChunks:      legacyChunksCollection,
		Attachments:       "attachments",
		Files:             bucket + ".files",
		Chunks:            bucket + ".chunks",
	}
}

// Options configures Connect.
type Options struct {
	URI            string
	Database       string
	Bucket         string
	ConnectTimeout time.Duration
}

// Mongo wraps the MongoDB client, database and GridFS bucket.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	bucket *gridfs.Bucket
	cols   Collections
}

// Connect opens the client and verifies the server is reachable.
func Connect(ctx context.Context, opts Options) (*Mongo, error) {
	if strings.TrimSpace(opts.URI) == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if strings.TrimSpace(opts.Database) == "" {
		return nil, fmt.Errorf("database name is required")
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	cols := DefaultCollections(opts.Bucket)
	db := client.Database(opts.Database)
	bucketName := strings.TrimSuffix(cols.Files, ".files")
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("open gridfs bucket %s: %w", bucketName, err)
	}

	return &Mongo{client: client, db: db, bucket: bucket, cols: cols}, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

// DatabaseName returns the connected database name.
func (m *Mongo) DatabaseName() string {
	return m.db.Name()
}

// Collections returns the collection layout in use.
func (m *Mongo) Collections() Collections {
	return m.cols
}

func (m *Mongo) collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

func (m *Mongo) eachDocument(ctx context.Context, collection string, fn DocumentFunc) error {
	cur, err := m.collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("find %s: %w", collection, err)
	}
	return forEach(ctx, cur, fn)
}

// forEach walks cur in order and always closes it.
func forEach(ctx context.Context, cur *mongo.Cursor, fn DocumentFunc) error {
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		if err := fn(cur.Current); err != nil {
			return err
		}
	}
	return cur.Err()
}

func findOne(ctx context.Context, coll *mongo.Collection, filter any, out any, opts ...*options.FindOneOptions) error {
	err := coll.FindOne(ctx, filter, opts...).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find one in %s: %w", coll.Name(), err)
	}
	return nil
}

func (m *Mongo) count(ctx context.Context, collection string) (int64, error) {
	n, err := m.collection(collection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}
