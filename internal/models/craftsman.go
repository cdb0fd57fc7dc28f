package models

import (
	"time"

	"github.com/google/uuid"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// CraftsmanProfile extends a craftsman-role user with the public catalog data.
type CraftsmanProfile struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	FullName        string     `gorm:"type:varchar(255)" json:"full_name"`
	Slug            string     `gorm:"type:varchar(120);uniqueIndex" json:"slug"`
	ProfileURL      string     `gorm:"type:text" json:"profile_url"`
	Profession      string     `gorm:"type:varchar(100)" json:"profession"`
	CompanyName     string     `gorm:"type:varchar(255)" json:"company_name"`
	MemberSince     *time.Time `json:"member_since,omitempty"`
	Location        string     `gorm:"type:varchar(255)" json:"location"`
	Skills          string     `gorm:"type:text" json:"skills"`
	PrimaryService  string     `gorm:"type:varchar(255)" json:"primary_service"`
	ServiceImageURL string     `gorm:"type:text" json:"service_image_url"`
	VideoURL        string     `gorm:"type:text" json:"video"`
	Description     string     `gorm:"type:text" json:"description"`

	Status     ApprovalStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	IsApproved bool           `gorm:"default:false" json:"is_approved"`
	IsActive   bool           `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User     *User          `gorm:"foreignKey:UserID" json:"-"`
	Services []Service      `gorm:"foreignKey:CraftsmanID" json:"services,omitempty"`
	Gallery  []GalleryImage `gorm:"foreignKey:CraftsmanID" json:"gallery_images,omitempty"`
	Reviews  []Review       `gorm:"foreignKey:CraftsmanID" json:"reviews,omitempty"`
}

// Approve marks the profile approved and reports whether anything changed.
func (p *CraftsmanProfile) Approve() bool {
	changed := p.Status != ApprovalApproved || !p.IsApproved
	p.Status = ApprovalApproved
	p.IsApproved = true
	return changed
}

func (p *CraftsmanProfile) Reject() {
	p.Status = ApprovalRejected
	p.IsApproved = false
}

// Assignable reports whether an admin may hand jobs to this craftsman.
func (p *CraftsmanProfile) Assignable() bool {
	return p.IsApproved && p.Status == ApprovalApproved && p.IsActive
}

type GalleryImage struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CraftsmanID uuid.UUID `gorm:"type:uuid;index;not null" json:"craftsman_id"`
	ImageURL    string    `gorm:"type:text;not null" json:"image_url"`
	StorageKey  string    `gorm:"type:text" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}
