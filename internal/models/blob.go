package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// OriginalVersion is the only version name produced by the migration.
	OriginalVersion = "original"

	blobFilenamePrefix = "__"
)

var (
	ErrMissingField    = errors.New("missing field")
	ErrInvalidObjectID = errors.New("invalid object id")
)

// BlobFileHeader is a GridFS file document in the new attachments bucket.
type BlobFileHeader struct {
	ID          primitive.ObjectID `bson:"_id"`
	Length      int64              `bson:"length"`
	ChunkSize   int32              `bson:"chunkSize"`
	UploadDate  time.Time          `bson:"uploadDate"`
	Filename    string             `bson:"filename"`
	ContentType string             `bson:"contentType"`
	Metadata    *BlobFileMetadata  `bson:"metadata,omitempty"`
}

// BlobFileMetadata links a GridFS file back to its board placement and attachment.
type BlobFileMetadata struct {
	BoardID     string  `bson:"boardId"`
	SwimlaneID  *string `bson:"swimlaneId"`
	ListID      *string `bson:"listId"`
	CardID      string  `bson:"cardId"`
	UserID      string  `bson:"userId"`
	VersionName string  `bson:"versionName"`
	FileID      any     `bson:"fileId"`
}

// BlobChunk is one GridFS chunk. Chunks are copied verbatim, _id is the merge key.
type BlobChunk struct {
	ID      primitive.ObjectID `bson:"_id"`
	FilesID primitive.ObjectID `bson:"files_id"`
	N       int32              `bson:"n"`
	Data    []byte             `bson:"data"`
}

// ParseObjectID validates a hex object id reference.
func ParseObjectID(hex string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(hex))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidObjectID, hex)
	}
	return oid, nil
}

// NewBlobFileHeader builds the new-layout GridFS header for a legacy file.
func NewBlobFileHeader(rec LegacyFileRecord, legacy LegacyBlobFileHeader) (BlobFileHeader, error) {
	if legacy.Filename == nil {
		return BlobFileHeader{}, fmt.Errorf("%w: filename", ErrMissingField)
	}
	contentType := ""
	if legacy.ContentType != nil {
		contentType = *legacy.ContentType
	}
	return BlobFileHeader{
		ID:          legacy.ID,
		Length:      legacy.Length,
		ChunkSize:   legacy.ChunkSize,
		UploadDate:  legacy.UploadDate,
		Filename:    blobFilenamePrefix + *legacy.Filename,
		ContentType: contentType,
		Metadata: &BlobFileMetadata{
			BoardID:     rec.BoardID,
			SwimlaneID:  optionalString(rec.SwimlaneID),
			ListID:      optionalString(rec.ListID),
			CardID:      rec.CardID,
			UserID:      rec.UserID,
			VersionName: OriginalVersion,
			FileID:      rec.ID,
		},
	}, nil
}

// ExportFileName is the local file name for the original version of a blob.
// Leading underscores added by the migration are stripped and path separators
// are flattened so the result never escapes the export directory.
func ExportFileName(blobID, filename string) string {
	name := strings.TrimLeft(filename, "_")
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	return fmt.Sprintf("%s-%s-%s", blobID, OriginalVersion, name)
}
