package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobPending        JobStatus = "Pending"
	JobAssigned       JobStatus = "Assigned"
	JobAccepted       JobStatus = "Accepted"
	JobInProgress     JobStatus = "InProgress"
	JobQuoteSubmitted JobStatus = "QuoteSubmitted"
	JobQuoteApproved  JobStatus = "QuoteApproved"
	JobCompleted      JobStatus = "Completed"
	JobApproved       JobStatus = "Approved"
	JobPaid           JobStatus = "Paid"
	JobCancelled      JobStatus = "Cancelled"
)

func (s JobStatus) Terminal() bool {
	return s == JobPaid || s == JobCancelled
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobAssigned, JobAccepted, JobInProgress, JobQuoteSubmitted,
		JobQuoteApproved, JobCompleted, JobApproved, JobPaid, JobCancelled:
		return true
	}
	return false
}

type JobRequest struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	CraftsmanID *uuid.UUID `gorm:"type:uuid;index" json:"craftsman_id"`

	Name          string    `gorm:"type:varchar(100)" json:"name"`
	Phone         string    `gorm:"type:varchar(20)" json:"phone"`
	Service       string    `gorm:"type:varchar(50);not null" json:"service"`
	CustomService string    `gorm:"type:varchar(255)" json:"custom_service,omitempty"`
	Schedule      time.Time `gorm:"not null" json:"schedule"`
	Address       string    `gorm:"type:varchar(255)" json:"address"`
	Location      string    `gorm:"type:varchar(100)" json:"location"`
	Description   string    `gorm:"type:text" json:"description"`
	IsUrgent      bool      `gorm:"default:false" json:"is_urgent"`
	MediaURL      string    `gorm:"type:text" json:"media_url,omitempty"`

	Status                JobStatus      `gorm:"type:varchar(20);not null;default:'Pending';index" json:"status"`
	StartTime             *time.Time     `json:"start_time"`
	EndTime               *time.Time     `json:"end_time"`
	QuoteDetails          datatypes.JSON `json:"quote_details"`
	QuoteFileURL          string         `gorm:"type:text" json:"quote_file_url,omitempty"`
	QuoteApprovedByClient *bool          `json:"quote_approved_by_client"`
	Review                string         `gorm:"type:text" json:"review,omitempty"`

	Budget       *int64 `json:"budget"`
	TotalPayment *int64 `json:"total_payment"`
	CompanyFee   *int64 `json:"company_fee"`
	NetPayment   *int64 `json:"net_payment"`

	// Version is bumped by every lifecycle transition.
	Version int64 `gorm:"not null;default:0" json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Client      *User             `gorm:"foreignKey:ClientID" json:"-"`
	Craftsman   *CraftsmanProfile `gorm:"foreignKey:CraftsmanID" json:"-"`
	ProofImages []JobProofImage   `gorm:"foreignKey:JobID" json:"proof_images"`
}

// QuoteAmount returns a positive numeric "amount" from the quote details.
func (j *JobRequest) QuoteAmount() (int64, bool) {
	if len(j.QuoteDetails) == 0 {
		return 0, false
	}
	var q struct {
		Amount *float64 `json:"amount"`
	}
	if err := json.Unmarshal(j.QuoteDetails, &q); err != nil || q.Amount == nil || *q.Amount <= 0 {
		return 0, false
	}
	return int64(*q.Amount), true
}

type JobProofImage struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	JobID      uuid.UUID `gorm:"type:uuid;index;not null" json:"job_id"`
	ImageURL   string    `gorm:"type:text;not null" json:"image_url"`
	StorageKey string    `gorm:"type:text" json:"-"`
	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}
