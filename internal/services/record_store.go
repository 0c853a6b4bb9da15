package services

import (
	"encoding/json"
	"fmt"

	"github.com/nocvalidator/backend/internal/models"
	"gorm.io/gorm"
)

// RecordStore archives completed jobs as validation records so verdicts
// survive process restarts. The in-memory registry stays the source of truth
// for live jobs; the store is a write-behind audit trail.
type RecordStore struct {
	db *gorm.DB
}

func NewRecordStore(db *gorm.DB) *RecordStore {
	if db == nil {
		return nil
	}
	return &RecordStore{db: db}
}

// Archive persists the result of a completed job.
func (s *RecordStore) Archive(jobID string, result *JobResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	var resultJSON models.JSONB
	if err := json.Unmarshal(payload, &resultJSON); err != nil {
		return fmt.Errorf("failed to build result payload: %w", err)
	}

	record := models.ValidationRecord{
		JobID:      jobID,
		Filename:   result.Filename,
		NumPages:   result.NumPages,
		Confidence: result.Confidence,
		Status:     result.Status,
		Result:     resultJSON,
	}
	if result.Validation != nil {
		record.RulesValid = &result.Validation.Valid
	}

	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to save validation record: %w", err)
	}
	return nil
}

// List returns archived records, newest first.
func (s *RecordStore) List(limit, offset int) ([]models.ValidationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []models.ValidationRecord
	err := s.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&records).Error
	return records, err
}
