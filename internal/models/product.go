package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ModerationPending  = "pending"
	ModerationApproved = "approved"
	ModerationRejected = "rejected"
)

type Service struct {
	ID                uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CraftsmanID       uuid.UUID `gorm:"type:uuid;not null;index" json:"craftsman_id"`
	ServiceName       string    `gorm:"type:varchar(255);not null" json:"service_name"`
	CustomServiceName string    `gorm:"type:varchar(255)" json:"custom_service_name,omitempty"`
	ImageURL          string    `gorm:"type:text" json:"image_url"`
	IsApproved        bool      `gorm:"default:false" json:"is_approved"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CraftsmanID uuid.UUID `gorm:"type:uuid;not null;index" json:"craftsman_id"`

	Name        string `gorm:"type:varchar(100);not null;default:'Unnamed Product'" json:"name"`
	Price       int64  `gorm:"not null" json:"price"`
	Description string `gorm:"type:text" json:"description"`
	ImageURL    string `gorm:"type:text" json:"image_url"`

	Status     string `gorm:"type:varchar(20);default:'pending'" json:"status"`
	IsApproved bool   `gorm:"default:false" json:"is_approved"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
