package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/jobflow"
	"github.com/JAY4T/kaakazini/internal/models"
	"github.com/JAY4T/kaakazini/internal/services/jobs"
	"github.com/JAY4T/kaakazini/internal/utils"
)

// JobService is the lifecycle API the handler drives.
type JobService interface {
	Create(ctx context.Context, a jobflow.Actor, in jobs.CreateInput) (*jobs.View, error)
	Get(ctx context.Context, id uuid.UUID, a jobflow.Actor) (*jobs.View, error)
	List(ctx context.Context, a jobflow.Actor, status string) ([]*jobs.View, error)
	Update(ctx context.Context, id uuid.UUID, a jobflow.Actor, in jobs.UpdateInput) (*jobs.View, error)
	Transition(ctx context.Context, id uuid.UUID, a jobflow.Actor, ev jobflow.Event, in jobs.TransitionInput) (*jobs.View, error)
	InitiatePayment(ctx context.Context, id uuid.UUID, a jobflow.Actor, expectedStatus string) (*jobs.PaymentResult, error)
	Attempts(ctx context.Context, id uuid.UUID, a jobflow.Actor) ([]models.PaymentAttempt, error)
}

type JobRequestHandler struct {
	Svc      JobService
	Profiles Profiles
	Store    Uploader
	MaxBytes int64
	Log      *logrus.Logger
}

func NewJobRequestHandler(svc JobService, profiles Profiles, store Uploader, maxBytes int64, log *logrus.Logger) *JobRequestHandler {
	return &JobRequestHandler{Svc: svc, Profiles: profiles, Store: store, MaxBytes: maxBytes, Log: log}
}

func (h *JobRequestHandler) Routes(r fiber.Router, auth fiber.Handler) {
	g := r.Group("/job-requests", auth)
	g.Get("/", h.List)
	g.Post("/", h.Create)
	g.Get("/:id", h.Get)
	g.Patch("/:id", h.Update)
	g.Put("/:id", h.Update)
	g.Get("/:id/payments", h.Payments)

	g.Post("/:id/assign", h.Assign)
	g.Post("/:id/accept", h.simple(jobflow.EventAccept))
	g.Post("/:id/start", h.simple(jobflow.EventStart))
	g.Post("/:id/complete", h.Complete)
	g.Post("/:id/approve", h.simple(jobflow.EventAdminApprove))
	g.Post("/:id/paid", h.simple(jobflow.EventMarkPaid))
	g.Post("/:id/cancel", h.simple(jobflow.EventCancel))
	g.Post("/:id/submit-quote", h.SubmitQuote)
	g.Post("/:id/send-quote", h.SubmitQuote)
	g.Post("/:id/quote-decision", h.QuoteDecision)
	g.Post("/:id/pay", h.Pay)
}

type transitionReq struct {
	ExpectedStatus string `json:"expected_status" form:"expected_status"`
}

type assignReq struct {
	CraftsmanID    string `json:"craftsman_id" validate:"required,uuid"`
	ExpectedStatus string `json:"expected_status"`
}

type quoteReq struct {
	QuoteDetails   json.RawMessage `json:"quote_details"`
	QuoteFileURL   string          `json:"quote_file_url"`
	ExpectedStatus string          `json:"expected_status"`
}

type decisionReq struct {
	Decision       string `json:"decision" validate:"required,oneof=approve reject"`
	ExpectedStatus string `json:"expected_status"`
}

type completeReq struct {
	ProofImages    []string `json:"proof_images"`
	ExpectedStatus string   `json:"expected_status"`
}

func (h *JobRequestHandler) target(c *fiber.Ctx) (uuid.UUID, jobflow.Actor, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return uuid.Nil, jobflow.Actor{}, err
	}
	a, err := actor(c, h.Profiles)
	return id, a, err
}

func (h *JobRequestHandler) List(c *fiber.Ctx) error {
	a, err := actor(c, h.Profiles)
	if err != nil {
		return utils.Fail(c, err)
	}
	out, err := h.Svc.List(c.UserContext(), a, c.Query("status"))
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, out)
}

func (h *JobRequestHandler) Create(c *fiber.Ctx) error {
	a, err := actor(c, h.Profiles)
	if err != nil {
		return utils.Fail(c, err)
	}
	var in jobs.CreateInput
	if err := bind(c, &in); err != nil {
		return utils.Fail(c, err)
	}
	v, err := h.Svc.Create(c.UserContext(), a, in)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.Created(c, v)
}

func (h *JobRequestHandler) Get(c *fiber.Ctx) error {
	id, a, err := h.target(c)
	if err != nil {
		return utils.Fail(c, err)
	}
	v, err := h.Svc.Get(c.UserContext(), id, a)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, v)
}

func (h *JobRequestHandler) Update(c *fiber.Ctx) error {
	id, a, err := h.target(c)
	if err != nil {
		return utils.Fail(c, err)
	}
	var in jobs.UpdateInput
	if err := bind(c, &in); err != nil {
		return utils.Fail(c, err)
	}
	v, err := h.Svc.Update(c.UserContext(), id, a, in)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, v)
}

func (h *JobRequestHandler) Payments(c *fiber.Ctx) error {
	id, a, err := h.target(c)
	if err != nil {
		return utils.Fail(c, err)
	}
	out, err := h.Svc.Attempts(c.UserContext(), id, a)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, out)
}

func (h *JobRequestHandler) transition(c *fiber.Ctx, ev jobflow.Event, in jobs.TransitionInput) error {
	id, a, err := h.target(c)
	if err != nil {
		return utils.Fail(c, err)
	}
	v, err := h.Svc.Transition(c.UserContext(), id, a, ev, in)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, v)
}

// simple handles events whose only input is the optional expected status.
func (h *JobRequestHandler) simple(ev jobflow.Event) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req transitionReq
		if err := bindOptional(c, &req); err != nil {
			return utils.Fail(c, err)
		}
		return h.transition(c, ev, jobs.TransitionInput{ExpectedStatus: req.ExpectedStatus})
	}
}

func (h *JobRequestHandler) Assign(c *fiber.Ctx) error {
	var req assignReq
	if err := bind(c, &req); err != nil {
		return utils.Fail(c, apperr.Validation("craftsman_id is required"))
	}
	cid := uuid.MustParse(req.CraftsmanID)
	return h.transition(c, jobflow.EventAssign, jobs.TransitionInput{CraftsmanID: &cid, ExpectedStatus: req.ExpectedStatus})
}

// Complete takes proof images either as multipart "proof_images" files or
// as a JSON list of already uploaded URLs.
func (h *JobRequestHandler) Complete(c *fiber.Ctx) error {
	var (
		images   []models.JobProofImage
		expected string
		uploaded []string
	)
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		expected = c.FormValue("expected_status")
		form, err := c.MultipartForm()
		if err != nil {
			return utils.Fail(c, apperr.Validation("invalid multipart form"))
		}
		files := form.File["proof_images"]
		if len(files) > 0 && h.Store == nil {
			return utils.Fail(c, apperr.Validation("file uploads are not configured"))
		}
		for _, fh := range files {
			obj, err := putFile(c.UserContext(), h.Store, "proof-images", fh, h.MaxBytes)
			if err != nil {
				h.removeAll(c.UserContext(), uploaded)
				return utils.Fail(c, err)
			}
			uploaded = append(uploaded, obj.Path)
			images = append(images, models.JobProofImage{ImageURL: obj.URL, StorageKey: obj.Path})
		}
	} else {
		var req completeReq
		if err := bindOptional(c, &req); err != nil {
			return utils.Fail(c, err)
		}
		expected = req.ExpectedStatus
		for _, u := range req.ProofImages {
			if u = strings.TrimSpace(u); u != "" {
				images = append(images, models.JobProofImage{ImageURL: u})
			}
		}
	}

	id, a, err := h.target(c)
	if err != nil {
		h.removeAll(c.UserContext(), uploaded)
		return utils.Fail(c, err)
	}
	v, err := h.Svc.Transition(c.UserContext(), id, a, jobflow.EventComplete, jobs.TransitionInput{
		ProofImages:    images,
		ExpectedStatus: expected,
	})
	if err != nil {
		h.removeAll(c.UserContext(), uploaded)
		return utils.Fail(c, err)
	}
	return utils.OK(c, v)
}

func (h *JobRequestHandler) removeAll(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := h.Store.Remove(ctx, k); err != nil {
			h.Log.WithError(err).WithField("key", k).Warn("remove orphaned upload")
		}
	}
}

// quoteJSON accepts quote details as a JSON value or as a string holding JSON.
func quoteJSON(raw []byte) (datatypes.JSON, error) {
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return nil, apperr.Validation("quote details are required")
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		raw = []byte(strings.TrimSpace(s))
	}
	if !json.Valid(raw) {
		return nil, apperr.Validation("quote_details must be valid JSON")
	}
	return datatypes.JSON(raw), nil
}

// SubmitQuote records the craftsman's quote. Multipart requests carry
// quote_details as a JSON string and an optional "quote_file".
func (h *JobRequestHandler) SubmitQuote(c *fiber.Ctx) error {
	var (
		details  datatypes.JSON
		fileURL  string
		expected string
		fileKey  string
		err      error
	)
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		expected = c.FormValue("expected_status")
		if details, err = quoteJSON([]byte(c.FormValue("quote_details"))); err != nil {
			return utils.Fail(c, err)
		}
		obj, err := optionalFile(c, h.Store, "quote_file", "quotes", h.MaxBytes)
		if err != nil {
			return utils.Fail(c, err)
		}
		fileURL, fileKey = obj.URL, obj.Path
	} else {
		var req quoteReq
		if err := bind(c, &req); err != nil {
			return utils.Fail(c, err)
		}
		if details, err = quoteJSON(req.QuoteDetails); err != nil {
			return utils.Fail(c, err)
		}
		fileURL, expected = req.QuoteFileURL, req.ExpectedStatus
	}

	id, a, err := h.target(c)
	if err == nil {
		var v *jobs.View
		v, err = h.Svc.Transition(c.UserContext(), id, a, jobflow.EventSubmitQuote, jobs.TransitionInput{
			QuoteDetails:   details,
			QuoteFileURL:   fileURL,
			ExpectedStatus: expected,
		})
		if err == nil {
			return utils.OK(c, v)
		}
	}
	if fileKey != "" {
		h.removeAll(c.UserContext(), []string{fileKey})
	}
	return utils.Fail(c, err)
}

func (h *JobRequestHandler) QuoteDecision(c *fiber.Ctx) error {
	var req decisionReq
	if err := bind(c, &req); err != nil {
		return utils.Fail(c, apperr.Validation("decision must be approve or reject"))
	}
	ev := jobflow.EventApproveQuote
	if req.Decision == "reject" {
		ev = jobflow.EventRejectQuote
	}
	return h.transition(c, ev, jobs.TransitionInput{ExpectedStatus: req.ExpectedStatus})
}

// Pay pushes the craftsman's share to their phone and marks the job paid
// when the provider accepts.
func (h *JobRequestHandler) Pay(c *fiber.Ctx) error {
	var req transitionReq
	if err := bindOptional(c, &req); err != nil {
		return utils.Fail(c, err)
	}
	id, a, err := h.target(c)
	if err != nil {
		return utils.Fail(c, err)
	}
	res, err := h.Svc.InitiatePayment(c.UserContext(), id, a, req.ExpectedStatus)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Payment initiated successfully.", "data": res})
}
