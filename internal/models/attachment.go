package models

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	AttachmentsCollectionName = "attachments"
	AttachmentDownloadRoute   = "/cdn/storage"
	AttachmentStoragePath     = "/data/attachments"
	AttachmentStorageGridFS   = "gridfs"
)

// AttachmentMetadata is a Meteor-Files attachment document in the attachments collection.
type AttachmentMetadata struct {
	ID               any                `bson:"_id"`
	Size             int64              `bson:"size"`
	Type             string             `bson:"type"`
	Name             string             `bson:"name"`
	Ext              string             `bson:"ext"`
	Extension        string             `bson:"extension"`
	ExtensionWithDot string             `bson:"extensionWithDot"`
	UserID           string             `bson:"userId"`
	Path             string             `bson:"path"`
	CollectionName   string             `bson:"_collectionName"`
	DownloadRoute    string             `bson:"_downloadRoute"`
	StoragePath      string             `bson:"_storagePath"`
	IsImage          bool               `bson:"isImage"`
	IsAudio          bool               `bson:"isAudio"`
	IsVideo          bool               `bson:"isVideo"`
	IsText           bool               `bson:"isText"`
	IsJSON           bool               `bson:"isJSON"`
	IsPDF            bool               `bson:"isPDF"`
	Public           bool               `bson:"public"`
	Meta             AttachmentMeta     `bson:"meta"`
	Versions         AttachmentVersions `bson:"versions"`
}

// AttachmentMeta places an attachment on the board.
type AttachmentMeta struct {
	BoardID    string  `bson:"boardId"`
	SwimlaneID *string `bson:"swimlaneId"`
	ListID     *string `bson:"listId"`
	CardID     string  `bson:"cardId"`
}

type AttachmentVersions struct {
	Original AttachmentVersion `bson:"original"`
}

// AttachmentVersion describes one stored rendition of an attachment.
type AttachmentVersion struct {
	Path      string                `bson:"path"`
	Size      int64                 `bson:"size"`
	Type      string                `bson:"type"`
	Extension string                `bson:"extension"`
	Storage   string                `bson:"storage"`
	Meta      AttachmentVersionMeta `bson:"meta"`
}

type AttachmentVersionMeta struct {
	GridFSFileID string `bson:"gridfsFileId"`
}

// TypeFlags classifies a content type the way Meteor-Files does.
type TypeFlags struct {
	Image bool
	Audio bool
	Video bool
	Text  bool
	JSON  bool
	PDF   bool
}

// ClassifyContentType derives the is* flags stored on attachment documents.
func ClassifyContentType(contentType string) TypeFlags {
	return TypeFlags{
		Image: strings.HasPrefix(contentType, "image/"),
		Audio: strings.HasPrefix(contentType, "audio/"),
		Video: strings.HasPrefix(contentType, "video/"),
		Text:  strings.HasPrefix(contentType, "text/"),
		JSON:  strings.Contains(contentType, "json"),
		PDF:   strings.Contains(contentType, "pdf"),
	}
}

// ExtensionOf returns the text after the last dot. A name without a dot is
// returned whole, which is what existing attachment documents contain.
func ExtensionOf(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[i+1:]
	}
	return filename
}

// NewAttachmentMetadata builds the attachment document for a legacy file record.
func NewAttachmentMetadata(rec LegacyFileRecord, legacy LegacyBlobFileHeader) (AttachmentMetadata, error) {
	if legacy.Filename == nil {
		return AttachmentMetadata{}, fmt.Errorf("%w: filename", ErrMissingField)
	}
	if legacy.ContentType == nil {
		return AttachmentMetadata{}, fmt.Errorf("%w: contentType", ErrMissingField)
	}
	filename := *legacy.Filename
	contentType := *legacy.ContentType
	ext := ExtensionOf(filename)
	blobHex := legacy.ID.Hex()
	flags := ClassifyContentType(contentType)

	return AttachmentMetadata{
		ID:               rec.ID,
		Size:             legacy.Length,
		Type:             contentType,
		Name:             filename,
		Ext:              ext,
		Extension:        ext,
		ExtensionWithDot: "." + ext,
		UserID:           rec.UserID,
		Path:             AttachmentStoragePath + "/" + blobHex,
		CollectionName:   AttachmentsCollectionName,
		DownloadRoute:    AttachmentDownloadRoute,
		StoragePath:      AttachmentStoragePath,
		IsImage:          flags.Image,
		IsAudio:          flags.Audio,
		IsVideo:          flags.Video,
		IsText:           flags.Text,
		IsJSON:           flags.JSON,
		IsPDF:            flags.PDF,
		Public:           false,
		Meta: AttachmentMeta{
			BoardID:    rec.BoardID,
			SwimlaneID: optionalString(rec.SwimlaneID),
			ListID:     optionalString(rec.ListID),
			CardID:     rec.CardID,
		},
		Versions: AttachmentVersions{
			Original: AttachmentVersion{
				Path:      fmt.Sprintf("%s/%s-%s-%s", AttachmentStoragePath, blobHex, OriginalVersion, filename),
				Size:      legacy.Length,
				Type:      contentType,
				Extension: ext,
				Storage:   AttachmentStorageGridFS,
				Meta:      AttachmentVersionMeta{GridFSFileID: blobHex},
			},
		},
	}, nil
}

// BlobReference extracts versions.original.meta.gridfsFileId from a raw
// attachment document. Object ids are accepted as well as hex strings.
func BlobReference(raw bson.Raw) (string, bool) {
	value, err := raw.LookupErr("versions", OriginalVersion, "meta", "gridfsFileId")
	if err != nil {
		return "", false
	}
	if s, ok := value.StringValueOK(); ok && s != "" {
		return s, true
	}
	if oid, ok := value.ObjectIDOK(); ok {
		return oid.Hex(), true
	}
	return "", false
}
