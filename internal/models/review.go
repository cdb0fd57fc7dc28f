package models

import (
	"time"

	"github.com/google/uuid"
)

type Review struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CraftsmanID uuid.UUID  `gorm:"type:uuid;index;not null" json:"craftsman"`
	JobID       *uuid.UUID `gorm:"type:uuid;index" json:"job,omitempty"`
	ReviewerID  *uuid.UUID `gorm:"type:uuid;index" json:"reviewer_id,omitempty"`

	Reviewer string `gorm:"type:varchar(255)" json:"reviewer"`
	Location string `gorm:"type:varchar(255)" json:"location"`
	Rating   int    `gorm:"not null" json:"rating"`
	Comment  string `gorm:"type:text" json:"comment"`

	CreatedAt time.Time `json:"created_at"`
}

type ContactMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Email     string    `gorm:"type:varchar(255);not null" json:"email"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
