package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

// Entry is one exported file.
type Entry struct {
	BlobID     string
	FileName   string
	SizeBytes  int64
	Digest     string
	RunID      string
	ExportedAt time.Time
}

// Ledger records exported files in a local SQLite database so later runs
// can tell which blobs are already on disk.
type Ledger struct {
	db *sql.DB
}

// Open opens the ledger database and bootstraps the schema.
func Open(path string) (*Ledger, error) {
	db, err := openRaw(path)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record inserts or replaces the entry for e.BlobID.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.BlobID == "" {
		return fmt.Errorf("blob id is required")
	}
	if e.ExportedAt.IsZero() {
		e.ExportedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO exported_files (blob_id, file_name, size_bytes, digest, run_id, exported_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(blob_id) DO UPDATE SET
  file_name = excluded.file_name,
  size_bytes = excluded.size_bytes,
  digest = excluded.digest,
  run_id = excluded.run_id,
  exported_at = excluded.exported_at`,
		e.BlobID, e.FileName, e.SizeBytes, e.Digest, e.RunID, e.ExportedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record %s: %w", e.BlobID, err)
	}
	return nil
}

// Lookup returns the entry for blobID, if one was recorded.
func (l *Ledger) Lookup(ctx context.Context, blobID string) (Entry, bool, error) {
	var e Entry
	var exportedAt string
	err := l.db.QueryRowContext(ctx, `
SELECT blob_id, file_name, size_bytes, digest, run_id, exported_at
FROM exported_files WHERE blob_id = ?`, blobID).
		Scan(&e.BlobID, &e.FileName, &e.SizeBytes, &e.Digest, &e.RunID, &exportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup %s: %w", blobID, err)
	}
	if t, parseErr := time.Parse(time.RFC3339Nano, exportedAt); parseErr == nil {
		e.ExportedAt = t
	}
	return e, true, nil
}

// Count returns the number of recorded files.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM exported_files").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Inspect reports the ledger schema status at path without applying migrations.
func Inspect(path string) (*MigrationStatus, error) {
	db, err := openRaw(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return MigrationPlan(db)
}

func openRaw(path string) (*sql.DB, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return sql.Open("sqlite", dsn)
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("ledger path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}
