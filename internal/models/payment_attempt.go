package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentAttemptStatus string

const (
	PaymentAttemptPending   PaymentAttemptStatus = "PENDING"
	PaymentAttemptSucceeded PaymentAttemptStatus = "SUCCEEDED"
	PaymentAttemptFailed    PaymentAttemptStatus = "FAILED"
	PaymentAttemptExpired   PaymentAttemptStatus = "EXPIRED"
)

// PaymentAttempt records every STK push sent for a job.
type PaymentAttempt struct {
	ID             uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	JobID          uuid.UUID            `gorm:"type:uuid;index;not null" json:"job_id"`
	Attempt        int                  `gorm:"not null" json:"attempt"`
	IdempotencyKey string               `gorm:"type:varchar(80);uniqueIndex;not null" json:"idempotency_key"`
	InitiatedBy    uuid.UUID            `gorm:"type:uuid" json:"initiated_by"`
	Phone          string               `gorm:"type:varchar(20)" json:"phone"`
	Amount         int64                `json:"amount"`
	Status         PaymentAttemptStatus `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Response       datatypes.JSON       `json:"response"`
	Error          string               `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func (p *PaymentAttempt) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return
}

func PaymentIdempotencyKey(jobID uuid.UUID, attempt int) string {
	return fmt.Sprintf("job_%s_%d", jobID, attempt)
}
