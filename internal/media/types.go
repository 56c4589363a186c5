package media

import (
	"context"
	"time"
)

// MediaType classifies the kind of media asset.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeFile  MediaType = "file"
)

// Folder returns the storage sub-folder for the media type in the month of at,
// e.g. "images/2024-01".
func (t MediaType) Folder(at time.Time) string {
	base := "files"
	if t == MediaTypeImage {
		base = "images"
	}
	return base + "/" + at.UTC().Format("2006-01")
}

// Asset describes an object written to storage.
type Asset struct {
	MediaType    MediaType `json:"media_type"`
	Name         string    `json:"name"`
	Folder       string    `json:"folder"`
	OriginalName string    `json:"original_name,omitempty"`
	Mime         string    `json:"mime"`
	SizeBytes    int64     `json:"size_bytes"`
	ContentHash  string    `json:"content_hash"`
	StorageID    string    `json:"storage_id,omitempty"`
	WebURL       string    `json:"web_url,omitempty"`
}

// IngestInput carries the data needed to store a new media asset.
type IngestInput struct {
	MediaType    MediaType
	UserID       string
	OriginalName string
	// Mime is the content type reported by the platform; sniffed when empty.
	Mime       string
	Data       []byte
	ReceivedAt time.Time
}

// StoredObject is what a storage backend reports after a write.
type StoredObject struct {
	ID     string
	Name   string
	WebURL string
	Size   int64
}

// StorageProvider abstracts object storage writes.
type StorageProvider interface {
	// Upload writes content as name inside folder (relative to the provider root).
	Upload(ctx context.Context, content []byte, name, folder string) (StoredObject, error)
}
