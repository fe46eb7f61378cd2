package models

// StoredFile is one upload persisted by the storage allocator.
type StoredFile struct {
	OriginalName string `json:"originalName"`
	StoredName   string `json:"storedName"`
	Path         string `json:"path"`
	Category     string `json:"category"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// AttachmentRecord joins a stored file with its client-supplied metadata and
// content hash. ContentHash is nil when the hash could not be computed.
type AttachmentRecord struct {
	File         StoredFile `json:"file"`
	Key          string     `json:"key,omitempty"`
	Description  string     `json:"description"`
	DocumentType string     `json:"documentType"`
	ContentHash  *string    `json:"contentHash"`
	DetectedType string     `json:"detectedType,omitempty"`
	TypeMismatch bool       `json:"typeMismatch,omitempty"`
	PageCount    int        `json:"pageCount,omitempty"`
}
