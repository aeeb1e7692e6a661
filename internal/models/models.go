package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSON is a custom type for JSON fields
type JSON map[string]interface{}

// Implement the driver.Valuer interface for JSON type
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Implement the sql.Scanner interface for JSON type
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	case nil:
		*j = nil
		return nil
	default:
		return errors.New("type assertion to []byte failed")
	}

	if len(bytes) == 0 {
		*j = nil
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// User mirrors the platform's member record. Only the wallet fields are
// read by this service; everything else lives in the main app.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(255)" json:"id"`
	Username  string    `json:"username"`
	AppWallet string    `gorm:"type:varchar(64)" json:"app_wallet"` // platform-managed embedded wallet
	ExtWallet string    `gorm:"type:varchar(64)" json:"ext_wallet"` // externally linked wallet
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Submission is the external entity a reward distribution is tied to.
// This service only transitions Status from approved to distributed.
type Submission struct {
	ID         string           `gorm:"primaryKey;type:varchar(255)" json:"id"`
	ActivityID string           `gorm:"index;type:varchar(255)" json:"activity_id"`
	UserID     string           `gorm:"index;type:varchar(255)" json:"user_id"`
	Status     SubmissionStatus `gorm:"not null;default:pending" json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

type SubmissionStatus string

const (
	SubmissionStatusPending     SubmissionStatus = "pending"
	SubmissionStatusApproved    SubmissionStatus = "approved"
	SubmissionStatusRejected    SubmissionStatus = "rejected"
	SubmissionStatusDistributed SubmissionStatus = "distributed"
)
