// Package catalog holds the craftsman-owned listings (services, products,
// gallery images) plus reviews and contact messages.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/models"
)

type Service struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewService(db *gorm.DB, log *logrus.Logger) *Service {
	return &Service{db: db, log: log}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what)
	}
	return err
}

// ---------- services ----------

type ServiceInput struct {
	ServiceName       string `json:"service_name" form:"service_name" validate:"required,max=255"`
	CustomServiceName string `json:"custom_service_name" form:"custom_service_name" validate:"max=255"`
	ImageURL          string `json:"image_url" form:"image_url"`
}

func checkServiceName(in ServiceInput) error {
	if in.ServiceName == models.ServiceOther {
		if strings.TrimSpace(in.CustomServiceName) == "" {
			return apperr.Validation("custom_service_name is required when service_name is other")
		}
		return nil
	}
	if !models.IsCatalogService(in.ServiceName) {
		return apperr.Validation("unknown service %q", in.ServiceName)
	}
	return nil
}

// ListServices lists one craftsman's services, or every approved service when craftsmanID is nil.
func (s *Service) ListServices(ctx context.Context, craftsmanID *uuid.UUID) ([]models.Service, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if craftsmanID != nil {
		q = q.Where("craftsman_id = ?", *craftsmanID)
	} else {
		q = q.Where("is_approved = ?", true)
	}
	var out []models.Service
	err := q.Find(&out).Error
	return out, err
}

func (s *Service) CreateService(ctx context.Context, craftsmanID uuid.UUID, in ServiceInput) (*models.Service, error) {
	if err := checkServiceName(in); err != nil {
		return nil, err
	}
	svc := &models.Service{
		CraftsmanID:       craftsmanID,
		ServiceName:       in.ServiceName,
		CustomServiceName: strings.TrimSpace(in.CustomServiceName),
		ImageURL:          in.ImageURL,
	}
	if err := s.db.WithContext(ctx).Create(svc).Error; err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) ownService(ctx context.Context, craftsmanID, id uuid.UUID) (*models.Service, error) {
	var svc models.Service
	err := s.db.WithContext(ctx).Where("id = ? AND craftsman_id = ?", id, craftsmanID).First(&svc).Error
	if err != nil {
		return nil, notFound(err, "service")
	}
	return &svc, nil
}

func (s *Service) UpdateService(ctx context.Context, craftsmanID, id uuid.UUID, in ServiceInput) (*models.Service, error) {
	svc, err := s.ownService(ctx, craftsmanID, id)
	if err != nil {
		return nil, err
	}
	if in.ServiceName != "" {
		if err := checkServiceName(in); err != nil {
			return nil, err
		}
		svc.ServiceName = in.ServiceName
		svc.CustomServiceName = strings.TrimSpace(in.CustomServiceName)
	}
	if in.ImageURL != "" {
		svc.ImageURL = in.ImageURL
	}
	if err := s.db.WithContext(ctx).Save(svc).Error; err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) DeleteService(ctx context.Context, craftsmanID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND craftsman_id = ?", id, craftsmanID).Delete(&models.Service{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("service")
	}
	return nil
}

// ---------- products ----------

type ProductInput struct {
	Name        string `json:"name" form:"name" validate:"max=100"`
	Price       *int64 `json:"price" form:"price" validate:"omitempty,gte=0"`
	Description string `json:"description" form:"description"`
	ImageURL    string `json:"image_url" form:"image_url"`
}

func (s *Service) ListProducts(ctx context.Context, craftsmanID uuid.UUID) ([]models.Product, error) {
	var out []models.Product
	err := s.db.WithContext(ctx).Where("craftsman_id = ?", craftsmanID).Order("created_at DESC").Find(&out).Error
	return out, err
}

func (s *Service) CreateProduct(ctx context.Context, craftsmanID uuid.UUID, in ProductInput) (*models.Product, error) {
	if in.Price == nil {
		return nil, apperr.Validation("price is required")
	}
	p := &models.Product{
		CraftsmanID: craftsmanID,
		Name:        strings.TrimSpace(in.Name),
		Price:       *in.Price,
		Description: in.Description,
		ImageURL:    in.ImageURL,
		Status:      models.ModerationPending,
	}
	if p.Name == "" {
		p.Name = "Unnamed Product"
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetProduct(ctx context.Context, craftsmanID, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).Where("id = ? AND craftsman_id = ?", id, craftsmanID).First(&p).Error
	if err != nil {
		return nil, notFound(err, "product")
	}
	return &p, nil
}

// UpdateProduct edits an own product. Any edit sends it back to moderation.
func (s *Service) UpdateProduct(ctx context.Context, craftsmanID, id uuid.UUID, in ProductInput) (*models.Product, error) {
	p, err := s.GetProduct(ctx, craftsmanID, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		p.Name = name
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Description != "" {
		p.Description = in.Description
	}
	if in.ImageURL != "" {
		p.ImageURL = in.ImageURL
	}
	p.Status = models.ModerationPending
	p.IsApproved = false
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeleteProduct(ctx context.Context, craftsmanID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND craftsman_id = ?", id, craftsmanID).Delete(&models.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("product")
	}
	return nil
}

func (s *Service) AdminProducts(ctx context.Context, status string) ([]models.Product, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.Product
	err := q.Find(&out).Error
	return out, err
}

// ModerateProduct approves or rejects a product.
func (s *Service) ModerateProduct(ctx context.Context, id uuid.UUID, approve bool) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "product")
	}
	p.IsApproved = approve
	p.Status = models.ModerationRejected
	if approve {
		p.Status = models.ModerationApproved
	}
	err := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": p.Status, "is_approved": p.IsApproved}).Error
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"product": id, "status": p.Status}).Info("product moderated")
	return &p, nil
}

// ---------- gallery ----------

func (s *Service) ListGallery(ctx context.Context, craftsmanID uuid.UUID) ([]models.GalleryImage, error) {
	var out []models.GalleryImage
	err := s.db.WithContext(ctx).Where("craftsman_id = ?", craftsmanID).Order("created_at DESC").Find(&out).Error
	return out, err
}

func (s *Service) AddGalleryImage(ctx context.Context, craftsmanID uuid.UUID, url, key string) (*models.GalleryImage, error) {
	img := &models.GalleryImage{CraftsmanID: craftsmanID, ImageURL: url, StorageKey: key}
	if err := s.db.WithContext(ctx).Create(img).Error; err != nil {
		return nil, err
	}
	return img, nil
}

// DeleteGalleryImage removes the row and returns its storage key so the
// caller can drop the object too.
func (s *Service) DeleteGalleryImage(ctx context.Context, craftsmanID, id uuid.UUID) (string, error) {
	var img models.GalleryImage
	err := s.db.WithContext(ctx).Where("id = ? AND craftsman_id = ?", id, craftsmanID).First(&img).Error
	if err != nil {
		return "", notFound(err, "gallery image")
	}
	if err := s.db.WithContext(ctx).Delete(&img).Error; err != nil {
		return "", err
	}
	return img.StorageKey, nil
}

// ---------- reviews ----------

type ReviewInput struct {
	CraftsmanID uuid.UUID  `json:"craftsman" validate:"required"`
	JobID       *uuid.UUID `json:"job"`
	Location    string     `json:"location" validate:"max=255"`
	Rating      int        `json:"rating" validate:"required,min=1,max=5"`
	Comment     string     `json:"comment"`
}

// ListReviews returns reviews newest first, optionally for one craftsman.
func (s *Service) ListReviews(ctx context.Context, craftsmanID *uuid.UUID, limit int) ([]models.Review, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if craftsmanID != nil {
		q = q.Where("craftsman_id = ?", *craftsmanID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Review
	err := q.Find(&out).Error
	return out, err
}

// CreateReview records a review under the reviewer's own name. When a job
// is referenced it must be the reviewer's job with that craftsman.
func (s *Service) CreateReview(ctx context.Context, reviewer *models.User, in ReviewInput) (*models.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperr.Validation("rating must be between 1 and 5")
	}
	db := s.db.WithContext(ctx)

	var craftsman models.CraftsmanProfile
	if err := db.Select("id").First(&craftsman, "id = ?", in.CraftsmanID).Error; err != nil {
		return nil, notFound(err, "craftsman")
	}
	if in.JobID != nil {
		var job models.JobRequest
		if err := db.Select("id", "client_id", "craftsman_id").First(&job, "id = ?", *in.JobID).Error; err != nil {
			return nil, notFound(err, "job")
		}
		if job.ClientID != reviewer.ID || job.CraftsmanID == nil || *job.CraftsmanID != in.CraftsmanID {
			return nil, apperr.Forbidden("you can only review craftsmen who worked on your job")
		}
	}

	reviewerID := reviewer.ID
	r := &models.Review{
		CraftsmanID: in.CraftsmanID,
		JobID:       in.JobID,
		ReviewerID:  &reviewerID,
		Reviewer:    reviewer.FullName,
		Location:    strings.TrimSpace(in.Location),
		Rating:      in.Rating,
		Comment:     strings.TrimSpace(in.Comment),
	}
	if err := db.Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// ---------- contact ----------

type ContactInput struct {
	Name    string `json:"name" validate:"required,max=255"`
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"required"`
}

func (s *Service) CreateContact(ctx context.Context, in ContactInput) (*models.ContactMessage, error) {
	m := &models.ContactMessage{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.ToLower(strings.TrimSpace(in.Email)),
		Message: strings.TrimSpace(in.Message),
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ListContacts(ctx context.Context) ([]models.ContactMessage, error) {
	var out []models.ContactMessage
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}
