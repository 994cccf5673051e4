package model

import "time"

// Processing status for an uploaded sheet.
const (
	SheetStatusPending    = "pending"
	SheetStatusProcessing = "processing"
	SheetStatusCompleted  = "completed"
	SheetStatusFailed     = "failed"
)

// SheetMusic is a persisted record of an uploaded piece: the source PDF,
// the recognition job state and, once completed, the animation data object.
type SheetMusic struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	UserID       int64     `json:"userId" gorm:"index"`
	CategoryID   int64     `json:"categoryId" gorm:"index"`
	Title        string    `json:"title" gorm:"size:255"`
	Composer     string    `json:"composer" gorm:"size:255"`
	PDFKey       string    `json:"-" gorm:"column:pdf_key;size:512"`       // MinIO object key of the source PDF
	AnimationKey string    `json:"animationKey" gorm:"size:512"`           // MinIO object key of the animation JSON
	Status       string    `json:"status" gorm:"size:32;default:pending"`  // pending, processing, completed, failed
	JobID        string    `json:"jobId,omitempty" gorm:"size:64"`         // OMR service job id while processing
	IsPublic     bool      `json:"isPublic"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName overrides gorm's pluralization.
func (SheetMusic) TableName() string {
	return "sheet_music"
}

// Category groups sheet music records.
type Category struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	UserID    int64     `json:"userId" gorm:"index"`
	Name      string    `json:"name" gorm:"size:128"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SheetWithCategory bundles a sheet record with its category for API responses.
type SheetWithCategory struct {
	Sheet    SheetMusic `json:"sheet"`
	Category *Category  `json:"category,omitempty"`
}
