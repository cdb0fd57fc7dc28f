// Package craftsman manages craftsman profiles: self-service onboarding,
// the public catalog and admin moderation.
package craftsman

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/models"
	"github.com/JAY4T/kaakazini/internal/services/notify"
)

type Service struct {
	db       *gorm.DB
	notifier notify.Publisher
	log      *logrus.Logger
}

func NewService(db *gorm.DB, notifier notify.Publisher, log *logrus.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{db: db, notifier: notifier, log: log}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify builds a stable, unique public handle from a display name.
func Slugify(name string, id uuid.UUID) string {
	base := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if base == "" {
		base = "craftsman"
	}
	if len(base) > 100 {
		base = strings.TrimRight(base[:100], "-")
	}
	return base + "-" + id.String()[:8]
}

// NewProfile is the empty pending profile a craftsman starts with.
func NewProfile(u *models.User) *models.CraftsmanProfile {
	id := uuid.New()
	now := time.Now()
	return &models.CraftsmanProfile{
		ID:          id,
		UserID:      u.ID,
		FullName:    u.FullName,
		Slug:        Slugify(u.FullName, id),
		Location:    u.Location,
		MemberSince: &now,
		Status:      models.ApprovalPending,
		IsActive:    true,
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("craftsman")
	}
	return err
}

// ForUser returns the user's profile, or nil when there is none.
func (s *Service) ForUser(ctx context.Context, userID uuid.UUID) (*models.CraftsmanProfile, error) {
	var p models.CraftsmanProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// User loads the account behind a token.
func (s *Service) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	return &u, nil
}

// Ensure is get-or-create for craftsman-role users only. A client never
// acquires a profile by visiting the craftsman endpoints.
func (s *Service) Ensure(ctx context.Context, u *models.User) (*models.CraftsmanProfile, error) {
	if u.Role != models.RoleCraftsman {
		return nil, apperr.Forbidden("only craftsman accounts have a craftsman profile")
	}
	p, err := s.ForUser(ctx, u.ID)
	if err != nil || p != nil {
		return p, err
	}

	p = NewProfile(u)
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Omit(clause.Associations).
		Create(p).Error
	if err != nil {
		return nil, err
	}
	s.log.WithField("user", u.ID).Info("craftsman profile created")
	return s.ForUser(ctx, u.ID)
}

type ProfileInput struct {
	FullName        *string `json:"full_name" form:"full_name" validate:"omitempty,max=255"`
	Profession      *string `json:"profession" form:"profession" validate:"omitempty,max=100"`
	CompanyName     *string `json:"company_name" form:"company_name" validate:"omitempty,max=255"`
	Location        *string `json:"location" form:"location" validate:"omitempty,max=255"`
	Skills          *string `json:"skills" form:"skills"`
	PrimaryService  *string `json:"primary_service" form:"primary_service" validate:"omitempty,max=255"`
	Description     *string `json:"description" form:"description"`
	ProfileURL      *string `json:"profile_url" form:"profile_url"`
	ServiceImageURL *string `json:"service_image_url" form:"service_image_url"`
	VideoURL        *string `json:"video" form:"video"`
}

func (in ProfileInput) apply(p *models.CraftsmanProfile) map[string]interface{} {
	changes := map[string]interface{}{}
	set := func(col string, dst *string, v *string) {
		if v == nil {
			return
		}
		*dst = strings.TrimSpace(*v)
		changes[col] = *dst
	}
	set("full_name", &p.FullName, in.FullName)
	set("profession", &p.Profession, in.Profession)
	set("company_name", &p.CompanyName, in.CompanyName)
	set("location", &p.Location, in.Location)
	set("skills", &p.Skills, in.Skills)
	set("primary_service", &p.PrimaryService, in.PrimaryService)
	set("description", &p.Description, in.Description)
	set("profile_url", &p.ProfileURL, in.ProfileURL)
	set("service_image_url", &p.ServiceImageURL, in.ServiceImageURL)
	set("video_url", &p.VideoURL, in.VideoURL)
	return changes
}

// UpdateProfile is the craftsman's own onboarding/profile edit.
func (s *Service) UpdateProfile(ctx context.Context, u *models.User, in ProfileInput) (*models.CraftsmanProfile, error) {
	p, err := s.Ensure(ctx, u)
	if err != nil {
		return nil, err
	}
	changes := in.apply(p)
	if len(changes) == 0 {
		return p, nil
	}
	if err := s.save(ctx, p.ID, changes); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) save(ctx context.Context, id uuid.UUID, changes map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&models.CraftsmanProfile{}).Where("id = ?", id).Updates(changes).Error
}

func (s *Service) publicQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Services", "is_approved = ?", true).
		Preload("Gallery").
		Preload("Reviews", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Where("is_approved = ? AND is_active = ?", true, true)
}

// Public lists approved, active craftsmen for the catalog.
func (s *Service) Public(ctx context.Context) ([]models.CraftsmanProfile, error) {
	var out []models.CraftsmanProfile
	err := s.publicQuery(ctx).Order("full_name").Find(&out).Error
	return out, err
}

func (s *Service) PublicBySlug(ctx context.Context, slug string) (*models.CraftsmanProfile, error) {
	var p models.CraftsmanProfile
	if err := s.publicQuery(ctx).Where("slug = ?", slug).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

type AdminFilter struct {
	IsApproved *bool
	Search     string
}

func (s *Service) AdminList(ctx context.Context, f AdminFilter) ([]models.CraftsmanProfile, error) {
	q := s.db.WithContext(ctx).Preload("User").Order("created_at DESC")
	if f.IsApproved != nil {
		q = q.Where("is_approved = ?", *f.IsApproved)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		q = q.Where("full_name ILIKE ?", "%"+search+"%")
	}
	var out []models.CraftsmanProfile
	err := q.Find(&out).Error
	return out, err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.CraftsmanProfile, error) {
	var p models.CraftsmanProfile
	if err := s.db.WithContext(ctx).Preload("User").First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

type AdminPatch struct {
	FullName       *string `json:"full_name" validate:"omitempty,max=255"`
	Profession     *string `json:"profession" validate:"omitempty,max=100"`
	Description    *string `json:"description"`
	PrimaryService *string `json:"primary_service" validate:"omitempty,max=255"`
}

func (s *Service) AdminUpdate(ctx context.Context, id uuid.UUID, patch AdminPatch) (*models.CraftsmanProfile, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	changes := ProfileInput{
		FullName:       patch.FullName,
		Profession:     patch.Profession,
		Description:    patch.Description,
		PrimaryService: patch.PrimaryService,
	}.apply(p)
	if len(changes) > 0 {
		if err := s.save(ctx, p.ID, changes); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// moderate loads the profile under a row lock and writes whatever change
// returns, so concurrent admin actions on one profile run one at a time.
func (s *Service) moderate(ctx context.Context, id uuid.UUID, change func(p *models.CraftsmanProfile) map[string]interface{}) (*models.CraftsmanProfile, bool, error) {
	var (
		p       models.CraftsmanProfile
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("User").First(&p, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		cols := change(&p)
		if len(cols) == 0 {
			return nil
		}
		changed = true
		return tx.Model(&models.CraftsmanProfile{}).Where("id = ?", p.ID).Updates(cols).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &p, changed, nil
}

// Approve is idempotent: the approval email goes out only when the profile
// was not approved before. Email problems are logged, never returned.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*models.CraftsmanProfile, error) {
	p, changed, err := s.moderate(ctx, id, func(p *models.CraftsmanProfile) map[string]interface{} {
		if !p.Approve() {
			return nil
		}
		return map[string]interface{}{"status": p.Status, "is_approved": p.IsApproved}
	})
	if err != nil || !changed {
		return p, err
	}
	s.log.WithField("craftsman", p.ID).Info("craftsman approved")

	if p.User != nil && p.User.Email != "" {
		ev := notify.Event{Type: notify.TypeCraftsmanApproved, Name: p.FullName, Email: p.User.Email}
		if err := s.notifier.Publish(ctx, ev); err != nil {
			s.log.WithError(err).WithField("craftsman", p.ID).Error("queue approval email")
		}
	}
	return p, nil
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*models.CraftsmanProfile, error) {
	p, _, err := s.moderate(ctx, id, func(p *models.CraftsmanProfile) map[string]interface{} {
		p.Reject()
		return map[string]interface{}{"status": p.Status, "is_approved": p.IsApproved}
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("craftsman", p.ID).Info("craftsman rejected")
	return p, nil
}

func (s *Service) ToggleActive(ctx context.Context, id uuid.UUID) (*models.CraftsmanProfile, error) {
	p, _, err := s.moderate(ctx, id, func(p *models.CraftsmanProfile) map[string]interface{} {
		p.IsActive = !p.IsActive
		return map[string]interface{}{"is_active": p.IsActive}
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
