package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LegacyFileRecord is a CollectionFS file record from cfs.attachments.filerecord.
type LegacyFileRecord struct {
	ID         any              `bson:"_id"`
	Copies     LegacyFileCopies `bson:"copies"`
	BoardID    string           `bson:"boardId"`
	SwimlaneID string           `bson:"swimlaneId"`
	ListID     string           `bson:"listId"`
	CardID     string           `bson:"cardId"`
	UserID     string           `bson:"userId"`
}

// LegacyFileCopies lists the stores a CollectionFS file was copied into.
type LegacyFileCopies struct {
	Attachments *LegacyFileCopy `bson:"attachments"`
}

// LegacyFileCopy points at the GridFS file holding one stored copy. Key is
// usually a hex string but some deployments stored an ObjectId.
type LegacyFileCopy struct {
	Key any `bson:"key"`
}

// LegacyBlobFileHeader is a GridFS file document from cfs_gridfs.attachments.files.
type LegacyBlobFileHeader struct {
	ID          primitive.ObjectID `bson:"_id"`
	Length      int64              `bson:"length"`
	ChunkSize   int32              `bson:"chunkSize"`
	UploadDate  time.Time          `bson:"uploadDate"`
	Filename    *string            `bson:"filename"`
	ContentType *string            `bson:"contentType"`
}

// DecodeLegacyFileRecord decodes a raw file record document.
func DecodeLegacyFileRecord(raw bson.Raw) (LegacyFileRecord, error) {
	var rec LegacyFileRecord
	if err := bson.Unmarshal(raw, &rec); err != nil {
		return LegacyFileRecord{}, fmt.Errorf("decode file record: %w", err)
	}
	if rec.ID == nil {
		return LegacyFileRecord{}, fmt.Errorf("decode file record: %w: _id", ErrMissingField)
	}
	return rec, nil
}

// BlobKey returns the legacy GridFS file id this record points at.
// Keys of any other type are returned in printed form so they fail
// ParseObjectID rather than being skipped.
func (r LegacyFileRecord) BlobKey() (string, bool) {
	if r.Copies.Attachments == nil {
		return "", false
	}
	switch key := r.Copies.Attachments.Key.(type) {
	case nil:
		return "", false
	case string:
		return key, key != ""
	case primitive.ObjectID:
		return key.Hex(), true
	default:
		return fmt.Sprint(key), true
	}
}

// IDString renders the record id for logs.
func (r LegacyFileRecord) IDString() string {
	return FormatID(r.ID)
}

// FormatID renders a document id for logs regardless of its BSON type.
func FormatID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case primitive.ObjectID:
		return v.Hex()
	default:
		return fmt.Sprint(v)
	}
}

// RawDocumentID renders the _id of a raw document for logs.
func RawDocumentID(raw bson.Raw) string {
	value, err := raw.LookupErr("_id")
	if err != nil {
		return "<unknown>"
	}
	if s, ok := value.StringValueOK(); ok {
		return s
	}
	if oid, ok := value.ObjectIDOK(); ok {
		return oid.Hex()
	}
	return value.String()
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
