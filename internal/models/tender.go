package models

import "time"

// Tender is the persisted form of an accepted submission.
type Tender struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Title       string     `gorm:"size:512;index" json:"title"`
	Reference   string     `gorm:"size:128;index" json:"referenceNumber,omitempty"`
	Category    string     `gorm:"size:128;index" json:"category,omitempty"`
	Deadline    *time.Time `gorm:"index" json:"deadline,omitempty"`
	Data        string     `gorm:"type:text" json:"-"`
	SubmittedBy string     `gorm:"size:128;index" json:"submittedBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	Documents []TenderDocument `gorm:"constraint:OnDelete:CASCADE" json:"documents,omitempty"`
}

// TenderDocument is one attachment record belonging to a tender.
type TenderDocument struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	TenderID     string    `gorm:"size:36;index" json:"tenderId"`
	Position     int       `json:"position"`
	OriginalName string    `gorm:"size:512" json:"originalName"`
	StoredName   string    `gorm:"size:512" json:"storedName"`
	Path         string    `gorm:"size:1024" json:"-"`
	MimeType     string    `gorm:"size:128" json:"mimeType"`
	DetectedType string    `gorm:"size:128" json:"detectedType,omitempty"`
	TypeMismatch bool      `json:"typeMismatch,omitempty"`
	UploadKey    string    `gorm:"size:128" json:"key,omitempty"`
	Size         int64     `json:"size"`
	Description  string    `gorm:"type:text" json:"description"`
	DocumentType string    `gorm:"size:64;index" json:"documentType"`
	ContentHash  *string   `gorm:"size:64;index" json:"contentHash"`
	PageCount    int       `json:"pageCount,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
