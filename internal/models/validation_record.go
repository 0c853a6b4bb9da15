package models

import (
	"time"

	"gorm.io/gorm"
)

// ValidationRecord is the archived outcome of a completed validation job.
// The full result payload is kept as jsonb so the API can replay it
// without recomputing anything.
type ValidationRecord struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	JobID      string         `json:"jobId" gorm:"uniqueIndex;not null"`
	Filename   string         `json:"filename" gorm:"not null"`
	NumPages   int            `json:"numPages"`
	Confidence float64        `json:"confidence"`
	Status     string         `json:"status" gorm:"index"`
	RulesValid *bool          `json:"rulesValid"`
	Result     JSONB          `json:"result" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

func (ValidationRecord) TableName() string {
	return "validation_records"
}
