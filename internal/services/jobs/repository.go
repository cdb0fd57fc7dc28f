package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/models"
)

type ListFilter struct {
	ClientID    *uuid.UUID
	CraftsmanID *uuid.UUID
	Status      models.JobStatus
}

// Tx is the part of the store usable while a job row is locked.
type Tx interface {
	Craftsman(ctx context.Context, id uuid.UUID) (*models.CraftsmanProfile, error)
	LatestAttempt(ctx context.Context, jobID uuid.UUID) (*models.PaymentAttempt, error)
	SaveAttempt(ctx context.Context, a *models.PaymentAttempt) error
}

type Repository interface {
	Create(ctx context.Context, job *models.JobRequest) error
	Get(ctx context.Context, id uuid.UUID) (*models.JobRequest, error)
	List(ctx context.Context, f ListFilter) ([]models.JobRequest, error)
	FindCraftsman(ctx context.Context, id uuid.UUID) (*models.CraftsmanProfile, error)
	// Mutate locks the job row, runs fn and persists the job if fn bumped
	// its version. The write is conditional on the version that was read.
	Mutate(ctx context.Context, id uuid.UUID, fn func(tx Tx, job *models.JobRequest) error) (*models.JobRequest, error)
	Attempts(ctx context.Context, jobID uuid.UUID) ([]models.PaymentAttempt, error)
	ExpireAttempts(ctx context.Context, before time.Time) (int64, error)
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what)
	}
	return err
}

func (r *GormRepository) Create(ctx context.Context, job *models.JobRequest) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(job).Error
}

func (r *GormRepository) Get(ctx context.Context, id uuid.UUID) (*models.JobRequest, error) {
	var job models.JobRequest
	err := r.db.WithContext(ctx).
		Preload("Client").
		Preload("Craftsman").
		Preload("Craftsman.User").
		Preload("ProofImages").
		First(&job, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "job")
	}
	return &job, nil
}

func (r *GormRepository) List(ctx context.Context, f ListFilter) ([]models.JobRequest, error) {
	q := r.db.WithContext(ctx).
		Preload("Client").
		Preload("Craftsman").
		Preload("ProofImages").
		Order("created_at DESC")
	if f.ClientID != nil {
		q = q.Where("client_id = ?", *f.ClientID)
	}
	if f.CraftsmanID != nil {
		q = q.Where("craftsman_id = ?", *f.CraftsmanID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []models.JobRequest
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRepository) FindCraftsman(ctx context.Context, id uuid.UUID) (*models.CraftsmanProfile, error) {
	return (&gormTx{db: r.db}).Craftsman(ctx, id)
}

func (r *GormRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(tx Tx, job *models.JobRequest) error) (*models.JobRequest, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.JobRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, "id = ?", id).Error; err != nil {
			return notFound(err, "job")
		}

		read := job.Version
		if err := fn(&gormTx{db: tx}, &job); err != nil {
			return err
		}
		if job.Version == read {
			return nil
		}

		res := tx.Model(&models.JobRequest{}).
			Where("id = ? AND version = ?", job.ID, read).
			Updates(columns(&job))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("job was changed by another request")
		}

		for i := range job.ProofImages {
			img := &job.ProofImages[i]
			if img.ID != uuid.Nil {
				continue
			}
			if err := tx.Create(img).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// columns lists every field a transition or client edit may touch.
func columns(job *models.JobRequest) map[string]interface{} {
	return map[string]interface{}{
		"craftsman_id":             job.CraftsmanID,
		"name":                     job.Name,
		"phone":                    job.Phone,
		"service":                  job.Service,
		"custom_service":           job.CustomService,
		"schedule":                 job.Schedule,
		"address":                  job.Address,
		"location":                 job.Location,
		"description":              job.Description,
		"is_urgent":                job.IsUrgent,
		"media_url":                job.MediaURL,
		"status":                   job.Status,
		"start_time":               job.StartTime,
		"end_time":                 job.EndTime,
		"quote_details":            job.QuoteDetails,
		"quote_file_url":           job.QuoteFileURL,
		"quote_approved_by_client": job.QuoteApprovedByClient,
		"review":                   job.Review,
		"budget":                   job.Budget,
		"total_payment":            job.TotalPayment,
		"company_fee":              job.CompanyFee,
		"net_payment":              job.NetPayment,
		"version":                  job.Version,
	}
}

func (r *GormRepository) Attempts(ctx context.Context, jobID uuid.UUID) ([]models.PaymentAttempt, error) {
	var out []models.PaymentAttempt
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Order("attempt DESC").Find(&out).Error
	return out, err
}

func (r *GormRepository) ExpireAttempts(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.PaymentAttempt{}).
		Where("status = ? AND created_at < ?", models.PaymentAttemptPending, before).
		Updates(map[string]interface{}{"status": models.PaymentAttemptExpired, "error": "expired without confirmation"})
	return res.RowsAffected, res.Error
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) Craftsman(ctx context.Context, id uuid.UUID) (*models.CraftsmanProfile, error) {
	var p models.CraftsmanProfile
	if err := t.db.WithContext(ctx).Preload("User").First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "craftsman")
	}
	return &p, nil
}

func (t *gormTx) LatestAttempt(ctx context.Context, jobID uuid.UUID) (*models.PaymentAttempt, error) {
	var a models.PaymentAttempt
	err := t.db.WithContext(ctx).Where("job_id = ?", jobID).Order("attempt DESC").First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *gormTx) SaveAttempt(ctx context.Context, a *models.PaymentAttempt) error {
	return t.db.WithContext(ctx).Save(a).Error
}
