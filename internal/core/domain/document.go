package domain

import "time"

// Document is a documents row: the stored source PDF behind a parsed invoice.
type Document struct {
	ID                 string    `json:"id"`
	AttachmentFilename string    `json:"attachment_filename,omitempty"`
	StorageBucket      string    `json:"storage_bucket,omitempty"`
	StoragePath        string    `json:"storage_path,omitempty"`
	RawFileURL         string    `json:"raw_file_url,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
