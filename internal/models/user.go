package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleClient    Role = "client"
	RoleCraftsman Role = "craftsman"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleCraftsman, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	FullName     string    `gorm:"type:varchar(255);not null" json:"full_name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PhoneNumber  string    `gorm:"type:varchar(20)" json:"phone_number"`
	Location     string    `gorm:"type:varchar(100)" json:"location"`
	Subscription string    `gorm:"type:varchar(20);default:'free'" json:"subscription"`

	Password string `gorm:"not null" json:"-"`
	Role     Role   `gorm:"type:varchar(20);not null;default:'client';index" json:"role"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
	IsStaff  bool   `gorm:"default:false" json:"is_staff"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CraftsmanProfile *CraftsmanProfile `gorm:"foreignKey:UserID;references:ID" json:"craftsman_profile,omitempty"`
}
