package services

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/fruteroclub/pulpa-distributor/internal/models"
)

// LedgerService is the durable record of every payout attempt. It is a
// dumb store: idempotency enforcement belongs to the orchestrator.
type LedgerService interface {
	Create(record *models.DistributionRecord) error
	Update(id uint, updates map[string]interface{}) error
	GetByID(id uint) (*models.DistributionRecord, error)
	GetBySubmission(submissionID string) ([]models.DistributionRecord, error)
	GetActiveForSubmission(submissionID string) (*models.DistributionRecord, error)
	ExistsActiveForSubmission(submissionID string) (bool, error)
	List(limit, offset int) ([]models.DistributionRecord, error)
}

type ledgerService struct {
	db *gorm.DB
}

func NewLedgerService(db *gorm.DB) LedgerService {
	return &ledgerService{db: db}
}

// Create always inserts a new row; retries after a failed attempt get a
// fresh row so the audit trail keeps one entry per attempt.
func (s *ledgerService) Create(record *models.DistributionRecord) error {
	return s.db.Create(record).Error
}

func (s *ledgerService) Update(id uint, updates map[string]interface{}) error {
	result := s.db.Model(&models.DistributionRecord{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("distribution record %d not found", id)
	}
	return nil
}

func (s *ledgerService) GetByID(id uint) (*models.DistributionRecord, error) {
	var record models.DistributionRecord
	if err := s.db.First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// GetBySubmission returns every attempt for a submission, newest first.
func (s *ledgerService) GetBySubmission(submissionID string) ([]models.DistributionRecord, error) {
	var records []models.DistributionRecord
	err := s.db.Where("submission_id = ?", submissionID).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

// GetActiveForSubmission returns the processing or completed row for a
// submission, or gorm.ErrRecordNotFound when only failed attempts exist.
func (s *ledgerService) GetActiveForSubmission(submissionID string) (*models.DistributionRecord, error) {
	var record models.DistributionRecord
	err := s.db.Where("submission_id = ? AND status IN ?", submissionID, []models.DistributionStatus{
		models.DistributionStatusProcessing,
		models.DistributionStatusCompleted,
	}).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *ledgerService) ExistsActiveForSubmission(submissionID string) (bool, error) {
	var count int64
	err := s.db.Model(&models.DistributionRecord{}).
		Where("submission_id = ? AND status IN ?", submissionID, []models.DistributionStatus{
			models.DistributionStatusProcessing,
			models.DistributionStatusCompleted,
		}).
		Count(&count).Error
	return count > 0, err
}

func (s *ledgerService) List(limit, offset int) ([]models.DistributionRecord, error) {
	query := s.db.Model(&models.DistributionRecord{}).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var records []models.DistributionRecord
	err := query.Find(&records).Error
	return records, err
}
