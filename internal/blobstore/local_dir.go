package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	tmpPattern = ".put-*"

	// fileMode lets another uid (the Wekan server) read exported files.
	fileMode os.FileMode = 0o644
)

// LocalDir writes exported blobs into a flat local directory.
type LocalDir struct {
	root string
}

// NewLocalDir creates root (and parents) when missing.
func NewLocalDir(root string) (*LocalDir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &LocalDir{root: abs}, nil
}

// Root returns the absolute output directory.
func (d *LocalDir) Root() string {
	return d.root
}

// Put streams r into name. Bytes land in a temp file first and are renamed
// into place only after the copy succeeds, so a failed stream leaves no
// partial file behind. An existing file with the same name is replaced.
func (d *LocalDir) Put(ctx context.Context, name string, r io.Reader) (PutResult, error) {
	var zero PutResult
	if d == nil {
		return zero, fmt.Errorf("output directory is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	dst, err := d.pathFromName(name)
	if err != nil {
		return zero, err
	}
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp(d.root, tmpPattern)
	if err != nil {
		return zero, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	h := newHash()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		cleanup()
		return zero, err
	}
	if err := tmp.Chmod(fileMode); err != nil {
		cleanup()
		return zero, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return zero, err
	}

	return PutResult{Path: dst, Digest: hex.EncodeToString(h.Sum(nil)), SizeBytes: n}, nil
}

// Stat reports whether name exists as a regular file.
func (d *LocalDir) Stat(ctx context.Context, name string) (FileInfo, bool, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, false, err
	}
	path, err := d.pathFromName(name)
	if err != nil {
		return FileInfo{}, false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return FileInfo{}, false, nil
	}
	if err != nil {
		return FileInfo{}, false, err
	}
	if !info.Mode().IsRegular() {
		return FileInfo{}, false, nil
	}
	return FileInfo{Path: path, SizeBytes: info.Size()}, true, nil
}

// Digest hashes an existing file with the same algorithm Put uses.
func (d *LocalDir) Digest(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := d.pathFromName(name)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func newHash() hash.Hash {
	// blake2b.New256 only fails for keys longer than 64 bytes.
	h, _ := blake2b.New256(nil)
	return h
}

func (d *LocalDir) pathFromName(name string) (string, error) {
	if d == nil {
		return "", fmt.Errorf("output directory is not configured")
	}
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("file name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(d.root, name), nil
}
