package blobstore

import (
	"context"
	"io"
)

// PutResult describes one file written to the sink.
type PutResult struct {
	Path      string
	Digest    string
	SizeBytes int64
}

// FileInfo describes an existing file in the sink.
type FileInfo struct {
	Path      string
	SizeBytes int64
}

// Sink is the local destination used by the exporter.
type Sink interface {
	Put(ctx context.Context, name string, r io.Reader) (PutResult, error)
	Stat(ctx context.Context, name string) (FileInfo, bool, error)
	Digest(ctx context.Context, name string) (string, error)
}
