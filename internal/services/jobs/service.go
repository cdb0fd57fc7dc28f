package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/jobflow"
	"github.com/JAY4T/kaakazini/internal/metrics"
	"github.com/JAY4T/kaakazini/internal/models"
	"github.com/JAY4T/kaakazini/internal/services/mpesa"
	"github.com/JAY4T/kaakazini/internal/services/notify"
)

// Pusher sends realtime updates to connected users.
type Pusher interface {
	SendToUsers(data interface{}, userIDs ...uuid.UUID)
}

// Gateway is the payment provider.
type Gateway interface {
	STKPush(ctx context.Context, req mpesa.STKPushRequest, idempotencyKey string) (*mpesa.Result, error)
}

type Options struct {
	RejectPolicy   jobflow.QuoteRejectPolicy
	FeePercent     int64
	AttemptTTL     time.Duration
	PaymentTimeout time.Duration
	CountryCode    string
}

type Service struct {
	repo     Repository
	machine  *jobflow.Machine
	gateway  Gateway
	notifier notify.Publisher
	pusher   Pusher
	log      *logrus.Logger
	opts     Options
	now      func() time.Time
}

func NewService(repo Repository, gateway Gateway, notifier notify.Publisher, pusher Pusher, log *logrus.Logger, opts Options) *Service {
	if opts.AttemptTTL <= 0 {
		opts.AttemptTTL = 5 * time.Minute
	}
	if opts.PaymentTimeout <= 0 {
		opts.PaymentTimeout = 10 * time.Second
	}
	if opts.CountryCode == "" {
		opts.CountryCode = "254"
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		repo:     repo,
		machine:  jobflow.New(opts.RejectPolicy),
		gateway:  gateway,
		notifier: notifier,
		pusher:   pusher,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

// View is a job as shown to one caller, with the actions they may take next.
type View struct {
	*models.JobRequest
	ClientName    string          `json:"client_name,omitempty"`
	CraftsmanName string          `json:"craftsman_name,omitempty"`
	Actions       []jobflow.Event `json:"actions"`
}

func (s *Service) view(job *models.JobRequest, a jobflow.Actor) *View {
	v := &View{JobRequest: job, Actions: s.machine.Available(job, a)}
	if v.Actions == nil {
		v.Actions = []jobflow.Event{}
	}
	if job.Client != nil {
		v.ClientName = job.Client.FullName
	}
	if job.Craftsman != nil {
		v.CraftsmanName = job.Craftsman.FullName
	}
	return v
}

func canSee(job *models.JobRequest, a jobflow.Actor) bool {
	if a.IsAdmin() || job.ClientID == a.UserID {
		return true
	}
	return a.CraftsmanID != nil && job.CraftsmanID != nil && *a.CraftsmanID == *job.CraftsmanID
}

type CreateInput struct {
	Name          string    `json:"name" validate:"max=100"`
	Phone         string    `json:"phone" validate:"max=20"`
	Service       string    `json:"service" validate:"required,max=50"`
	CustomService string    `json:"custom_service" validate:"max=255"`
	Schedule      time.Time `json:"schedule" validate:"required"`
	Address       string    `json:"address" validate:"required,max=255"`
	Location      string    `json:"location" validate:"max=100"`
	Description   string    `json:"description"`
	IsUrgent      bool      `json:"is_urgent"`
	MediaURL      string    `json:"media_url"`
	Budget        *int64    `json:"budget" validate:"omitempty,gte=0"`
}

func (s *Service) checkService(service, custom string) error {
	if service == models.ServiceOther || strings.EqualFold(service, "other") {
		if strings.TrimSpace(custom) == "" {
			return apperr.Validation("custom_service is required when service is other")
		}
		return nil
	}
	if !models.IsCatalogService(service) {
		return apperr.Validation("unknown service %q", service)
	}
	return nil
}

func (s *Service) checkSchedule(t time.Time) error {
	if !t.After(s.now()) {
		return apperr.Validation("schedule must be in the future")
	}
	return nil
}

// Create opens a new Pending job owned by the caller.
func (s *Service) Create(ctx context.Context, a jobflow.Actor, in CreateInput) (*View, error) {
	if a.CraftsmanID != nil {
		return nil, apperr.Forbidden("switch to the client view to request a job")
	}
	if err := s.checkService(in.Service, in.CustomService); err != nil {
		return nil, err
	}
	if err := s.checkSchedule(in.Schedule); err != nil {
		return nil, err
	}

	job := &models.JobRequest{
		ClientID:      a.UserID,
		Name:          strings.TrimSpace(in.Name),
		Phone:         strings.TrimSpace(in.Phone),
		Service:       in.Service,
		CustomService: strings.TrimSpace(in.CustomService),
		Schedule:      in.Schedule,
		Address:       strings.TrimSpace(in.Address),
		Location:      strings.TrimSpace(in.Location),
		Description:   in.Description,
		IsUrgent:      in.IsUrgent,
		MediaURL:      in.MediaURL,
		Budget:        in.Budget,
		Status:        models.JobPending,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"job": job.ID, "client": a.UserID}).Info("job created")

	full, err := s.repo.Get(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	return s.view(full, a), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID, a jobflow.Actor) (*View, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(job, a) {
		return nil, apperr.Forbidden("not your job")
	}
	return s.view(job, a), nil
}

// List shows admins every job, acting craftsmen their assignments and
// everyone else the jobs they requested.
func (s *Service) List(ctx context.Context, a jobflow.Actor, status string) ([]*View, error) {
	f := ListFilter{}
	if status != "" {
		st := models.JobStatus(status)
		if !st.Valid() {
			return nil, apperr.Validation("unknown status %q", status)
		}
		f.Status = st
	}
	switch {
	case a.IsAdmin():
	case a.CraftsmanID != nil:
		f.CraftsmanID = a.CraftsmanID
	default:
		uid := a.UserID
		f.ClientID = &uid
	}

	jobs, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]*View, 0, len(jobs))
	for i := range jobs {
		out = append(out, s.view(&jobs[i], a))
	}
	return out, nil
}

type UpdateInput struct {
	Name          *string    `json:"name" validate:"omitempty,max=100"`
	Phone         *string    `json:"phone" validate:"omitempty,max=20"`
	Service       *string    `json:"service" validate:"omitempty,max=50"`
	CustomService *string    `json:"custom_service" validate:"omitempty,max=255"`
	Schedule      *time.Time `json:"schedule"`
	Address       *string    `json:"address" validate:"omitempty,max=255"`
	Location      *string    `json:"location" validate:"omitempty,max=100"`
	Description   *string    `json:"description"`
	IsUrgent      *bool      `json:"is_urgent"`
	MediaURL      *string    `json:"media_url"`
	Budget        *int64     `json:"budget" validate:"omitempty,gte=0"`
}

// Update edits the descriptive fields of a job that nobody has taken yet.
func (s *Service) Update(ctx context.Context, id uuid.UUID, a jobflow.Actor, in UpdateInput) (*View, error) {
	job, err := s.repo.Mutate(ctx, id, func(_ Tx, job *models.JobRequest) error {
		if !a.IsAdmin() && job.ClientID != a.UserID {
			return apperr.Forbidden("only the client who requested the job")
		}
		if job.Status != models.JobPending {
			return apperr.Conflict("job can only be edited while Pending, it is %s", job.Status)
		}

		set := func(dst *string, v *string) {
			if v != nil {
				*dst = strings.TrimSpace(*v)
			}
		}
		set(&job.Name, in.Name)
		set(&job.Phone, in.Phone)
		set(&job.Service, in.Service)
		set(&job.CustomService, in.CustomService)
		set(&job.Address, in.Address)
		set(&job.Location, in.Location)
		set(&job.MediaURL, in.MediaURL)
		if in.Description != nil {
			job.Description = *in.Description
		}
		if in.IsUrgent != nil {
			job.IsUrgent = *in.IsUrgent
		}
		if in.Budget != nil {
			b := *in.Budget
			job.Budget = &b
		}
		if in.Schedule != nil {
			if err := s.checkSchedule(*in.Schedule); err != nil {
				return err
			}
			job.Schedule = *in.Schedule
		}
		if err := s.checkService(job.Service, job.CustomService); err != nil {
			return err
		}
		job.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(job, a), nil
}

type TransitionInput struct {
	CraftsmanID    *uuid.UUID
	ProofImages    []models.JobProofImage
	QuoteDetails   datatypes.JSON
	QuoteFileURL   string
	ExpectedStatus string
}

// Transition fires one lifecycle event under a row lock. Payment goes
// through InitiatePayment instead.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, a jobflow.Actor, ev jobflow.Event, in TransitionInput) (*View, error) {
	if ev == jobflow.EventPay {
		return nil, apperr.Validation("use the payment endpoint")
	}

	var previous *uuid.UUID
	job, err := s.repo.Mutate(ctx, id, func(tx Tx, job *models.JobRequest) error {
		if err := s.machine.Check(job, a, ev); err != nil {
			return err
		}
		if err := jobflow.ExpectStatus(job, in.ExpectedStatus); err != nil {
			return err
		}
		// assign resolves the craftsman only after the guard passes
		var craftsman *models.CraftsmanProfile
		if ev == jobflow.EventAssign {
			if in.CraftsmanID == nil {
				return apperr.Validation("craftsman_id is required")
			}
			var err error
			if craftsman, err = tx.Craftsman(ctx, *in.CraftsmanID); err != nil {
				return err
			}
		}
		previous = job.CraftsmanID
		err := s.machine.Apply(job, a, ev, jobflow.Input{
			Craftsman:    craftsman,
			ProofImages:  in.ProofImages,
			QuoteDetails: in.QuoteDetails,
			QuoteFileURL: in.QuoteFileURL,
		})
		if err != nil {
			return err
		}
		if ev == jobflow.EventMarkPaid {
			s.fillPayment(job)
		}
		return nil
	})
	metrics.RecordTransition(string(ev), err)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"job": id, "event": ev, "user": a.UserID}).Warn("job transition rejected")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"job": id, "event": ev, "status": job.Status, "version": job.Version}).Info("job transition")
	s.announce(ctx, job, ev, previous)
	return s.view(job, a), nil
}

// Amount is what the client pays: the budget, else a numeric quote amount.
func Amount(job *models.JobRequest) (int64, bool) {
	if job.Budget != nil && *job.Budget > 0 {
		return *job.Budget, true
	}
	return job.QuoteAmount()
}

// Split returns the company fee and the craftsman's net share of total.
func Split(total, feePercent int64) (fee, net int64) {
	fee = total * feePercent / 100
	return fee, total - fee
}

func (s *Service) fillPayment(job *models.JobRequest) bool {
	total, ok := Amount(job)
	if !ok {
		return false
	}
	fee, net := Split(total, s.opts.FeePercent)
	job.TotalPayment, job.CompanyFee, job.NetPayment = &total, &fee, &net
	return true
}

// announce pushes the new state to the people involved. Failures are logged.
func (s *Service) announce(ctx context.Context, job *models.JobRequest, ev jobflow.Event, previous *uuid.UUID) {
	craftsman := job.Craftsman
	if craftsman == nil && previous != nil {
		if p, err := s.repo.FindCraftsman(ctx, *previous); err == nil {
			craftsman = p
		}
	}

	users := []uuid.UUID{job.ClientID}
	if craftsman != nil {
		users = append(users, craftsman.UserID)
	}
	if s.pusher != nil {
		s.pusher.SendToUsers(map[string]interface{}{
			"type":    "job_update",
			"event":   ev,
			"job_id":  job.ID,
			"status":  job.Status,
			"version": job.Version,
		}, users...)
	}

	data := map[string]string{"service": job.Service, "status": string(job.Status), "job_id": job.ID.String()}
	if job.Service == models.ServiceOther && job.CustomService != "" {
		data["service"] = job.CustomService
	}
	var events []notify.Event
	if job.Client != nil {
		events = append(events, notify.Event{Type: notify.TypeJobUpdate, Name: job.Client.FullName, Email: job.Client.Email, Data: data})
	}
	if craftsman != nil && craftsman.User != nil && craftsman.User.PhoneNumber != "" {
		events = append(events, notify.Event{Type: notify.TypeJobUpdate, Name: craftsman.FullName, Phone: craftsman.User.PhoneNumber, Data: data})
	}
	for _, e := range events {
		if err := s.notifier.Publish(ctx, e); err != nil {
			s.log.WithError(err).WithField("job", job.ID).Warn("publish job notification")
		}
	}
}
