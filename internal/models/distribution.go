package models

import "time"

type DistributionStatus string

type DistributionMethod string

const (
	DistributionStatusPending    DistributionStatus = "pending"
	DistributionStatusProcessing DistributionStatus = "processing"
	DistributionStatusCompleted  DistributionStatus = "completed"
	DistributionStatusFailed     DistributionStatus = "failed"
)

const (
	DistributionMethodSmartContract DistributionMethod = "smart_contract"
)

// DistributionRecord is one ledger row per PULPA payout attempt. Rows are
// never deleted; failed attempts stay behind as an audit trail.
type DistributionRecord struct {
	ID                  uint               `gorm:"primaryKey" json:"id"`
	SubmissionID        string             `gorm:"index;not null;type:varchar(255)" json:"submission_id"`
	ActivityID          string             `gorm:"index;type:varchar(255)" json:"activity_id"`
	UserID              string             `gorm:"index;type:varchar(255)" json:"user_id"`
	DistributedByUserID string             `gorm:"type:varchar(255)" json:"distributed_by_user_id"`
	PulpaAmount         string             `gorm:"not null" json:"pulpa_amount"` // human units, decimal string
	RecipientWallet     string             `gorm:"not null;type:varchar(64)" json:"recipient_wallet"`
	ChainID             int64              `gorm:"not null" json:"chain_id"`
	DistributionMethod  DistributionMethod `gorm:"not null;default:smart_contract" json:"distribution_method"`
	Status              DistributionStatus `gorm:"not null;default:pending" json:"status"`
	TransactionHash     string             `gorm:"type:varchar(80)" json:"transaction_hash,omitempty"`
	ErrorMessage        string             `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount          int                `gorm:"default:0" json:"retry_count"`
	Metadata            JSON               `gorm:"type:text" json:"metadata,omitempty"` // block_number, gas_used once confirmed
	DistributedAt       *time.Time         `json:"distributed_at,omitempty"`
	ConfirmedAt         *time.Time         `json:"confirmed_at,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// IsActive reports whether the record blocks a new payout attempt for the
// same submission. Failed rows do not; a retry creates a fresh row.
func (r *DistributionRecord) IsActive() bool {
	return r.Status == DistributionStatusProcessing || r.Status == DistributionStatusCompleted
}
