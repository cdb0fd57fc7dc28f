// Package jobflow holds the job request lifecycle: which events are legal
// from which status, and who may trigger them. It has no I/O; callers load
// the job under a row lock, call Apply and persist the result.
package jobflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/models"
)

var (
	ErrNotFound   = apperr.ErrNotFound
	ErrForbidden  = apperr.ErrForbidden
	ErrValidation = apperr.ErrValidation
	ErrConflict   = apperr.ErrConflict
)

type Event string

const (
	EventAssign       Event = "assign"
	EventAccept       Event = "accept"
	EventStart        Event = "start"
	EventComplete     Event = "complete"
	EventSubmitQuote  Event = "submit_quote"
	EventApproveQuote Event = "quote_approve"
	EventRejectQuote  Event = "quote_reject"
	EventAdminApprove Event = "approve"
	EventMarkPaid     Event = "mark_paid"
	EventPay          Event = "pay"
	EventCancel       Event = "cancel"
)

// QuoteRejectPolicy decides what a rejected quote does to the assignment.
type QuoteRejectPolicy string

const (
	// RejectRelease returns the job to the open pool: Pending, no craftsman.
	RejectRelease QuoteRejectPolicy = "release"
	// RejectRequote keeps the craftsman and lets them quote again from Assigned.
	RejectRequote QuoteRejectPolicy = "requote"
)

func ParseQuoteRejectPolicy(s string) QuoteRejectPolicy {
	if QuoteRejectPolicy(s) == RejectRequote {
		return RejectRequote
	}
	return RejectRelease
}

// Actor is the resolved identity of whoever triggers an event.
type Actor struct {
	UserID uuid.UUID
	Role   models.Role
	// CraftsmanID is set only when the caller acts as an approved craftsman.
	CraftsmanID *uuid.UUID
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

func (a Actor) isAssignedCraftsman(job *models.JobRequest) bool {
	return a.CraftsmanID != nil && job.CraftsmanID != nil && *a.CraftsmanID == *job.CraftsmanID
}

func (a Actor) isOwner(job *models.JobRequest) bool {
	return a.UserID != uuid.Nil && a.UserID == job.ClientID
}

// Input carries the event payload. Only the fields an event needs are read.
type Input struct {
	Craftsman    *models.CraftsmanProfile
	ProofImages  []models.JobProofImage
	QuoteDetails datatypes.JSON
	QuoteFileURL string
}

type rule struct {
	from  []models.JobStatus
	guard func(job *models.JobRequest, a Actor) error
	// needsCraftsman makes a missing craftsman a validation error rather
	// than a status conflict.
	needsCraftsman bool
}

var withCraftsman = []models.JobStatus{
	models.JobAssigned, models.JobAccepted, models.JobInProgress, models.JobQuoteSubmitted,
	models.JobQuoteApproved, models.JobCompleted, models.JobApproved,
}

var nonTerminal = append([]models.JobStatus{models.JobPending}, withCraftsman...)

func adminOnly(_ *models.JobRequest, a Actor) error {
	if !a.IsAdmin() {
		return fmt.Errorf("%w: admin only", ErrForbidden)
	}
	return nil
}

func assignedCraftsman(job *models.JobRequest, a Actor) error {
	if a.CraftsmanID == nil {
		return fmt.Errorf("%w: not a craftsman", ErrForbidden)
	}
	if !a.isAssignedCraftsman(job) {
		return fmt.Errorf("%w: job not assigned to you", ErrForbidden)
	}
	return nil
}

func owningClient(job *models.JobRequest, a Actor) error {
	if !a.isOwner(job) {
		return fmt.Errorf("%w: only the client who requested the job", ErrForbidden)
	}
	return nil
}

func ownerOrAdmin(job *models.JobRequest, a Actor) error {
	if a.IsAdmin() || a.isOwner(job) {
		return nil
	}
	return fmt.Errorf("%w: not authorized", ErrForbidden)
}

func adminOrAssignedCraftsman(job *models.JobRequest, a Actor) error {
	if a.IsAdmin() || a.isAssignedCraftsman(job) {
		return nil
	}
	return fmt.Errorf("%w: not authorized to initiate payment", ErrForbidden)
}

var rules = map[Event]rule{
	EventAssign:       {from: []models.JobStatus{models.JobPending}, guard: adminOnly},
	EventAccept:       {from: []models.JobStatus{models.JobAssigned}, guard: assignedCraftsman},
	EventStart:        {from: []models.JobStatus{models.JobAccepted, models.JobQuoteApproved}, guard: assignedCraftsman},
	EventComplete:     {from: []models.JobStatus{models.JobInProgress}, guard: assignedCraftsman},
	EventSubmitQuote:  {from: []models.JobStatus{models.JobAssigned, models.JobAccepted, models.JobInProgress}, guard: assignedCraftsman},
	EventApproveQuote: {from: []models.JobStatus{models.JobQuoteSubmitted}, guard: owningClient},
	EventRejectQuote:  {from: []models.JobStatus{models.JobQuoteSubmitted}, guard: owningClient},
	EventAdminApprove: {from: []models.JobStatus{models.JobCompleted}, guard: adminOnly},
	EventMarkPaid:     {from: withCraftsman, guard: adminOnly, needsCraftsman: true},
	EventPay:          {from: withCraftsman, guard: adminOrAssignedCraftsman, needsCraftsman: true},
	EventCancel:       {from: nonTerminal, guard: ownerOrAdmin},
}

// Machine applies events to jobs.
type Machine struct {
	RejectPolicy QuoteRejectPolicy
	Now          func() time.Time
}

func New(policy QuoteRejectPolicy) *Machine {
	return &Machine{RejectPolicy: policy, Now: time.Now}
}

// Check reports whether actor may fire ev on job in its current status,
// without changing anything. The actor guard runs before the status check.
func (m *Machine) Check(job *models.JobRequest, a Actor, ev Event) error {
	r, ok := rules[ev]
	if !ok {
		return fmt.Errorf("%w: unknown event %q", ErrValidation, ev)
	}
	if err := r.guard(job, a); err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job is %s", ErrConflict, job.Status)
	}
	if r.needsCraftsman && job.CraftsmanID == nil {
		return fmt.Errorf("%w: job has no craftsman", ErrValidation)
	}
	if !contains(r.from, job.Status) {
		return fmt.Errorf("%w: cannot %s a job in status %s", ErrConflict, ev, job.Status)
	}
	return nil
}

// Apply checks and performs ev, mutating job in place.
func (m *Machine) Apply(job *models.JobRequest, a Actor, ev Event, in Input) error {
	if err := m.Check(job, a, ev); err != nil {
		return err
	}

	now := m.now()
	switch ev {
	case EventAssign:
		if in.Craftsman == nil {
			return fmt.Errorf("%w: craftsman is required", ErrValidation)
		}
		if !in.Craftsman.Assignable() {
			return fmt.Errorf("%w: craftsman is not approved", ErrValidation)
		}
		id := in.Craftsman.ID
		job.CraftsmanID = &id
		job.Craftsman = in.Craftsman
		job.QuoteApprovedByClient = nil
		job.Status = models.JobAssigned
	case EventAccept:
		job.Status = models.JobAccepted
	case EventStart:
		job.StartTime = &now
		job.Status = models.JobInProgress
	case EventComplete:
		job.EndTime = &now
		for _, img := range in.ProofImages {
			img.JobID = job.ID
			job.ProofImages = append(job.ProofImages, img)
		}
		job.Status = models.JobCompleted
	case EventSubmitQuote:
		if len(in.QuoteDetails) == 0 || string(in.QuoteDetails) == "null" {
			return fmt.Errorf("%w: quote details are required", ErrValidation)
		}
		job.QuoteDetails = in.QuoteDetails
		if in.QuoteFileURL != "" {
			job.QuoteFileURL = in.QuoteFileURL
		}
		job.QuoteApprovedByClient = nil
		job.Status = models.JobQuoteSubmitted
	case EventApproveQuote:
		approved := true
		job.QuoteApprovedByClient = &approved
		job.Status = models.JobQuoteApproved
	case EventRejectQuote:
		approved := false
		job.QuoteApprovedByClient = &approved
		if m.RejectPolicy == RejectRequote {
			job.Status = models.JobAssigned
		} else {
			job.CraftsmanID = nil
			job.Craftsman = nil
			job.Status = models.JobPending
		}
	case EventAdminApprove:
		job.Status = models.JobApproved
	case EventMarkPaid, EventPay:
		job.Status = models.JobPaid
	case EventCancel:
		job.Status = models.JobCancelled
	}

	job.Version++
	return CheckInvariant(job)
}

// Available lists the events actor could fire on job right now.
func (m *Machine) Available(job *models.JobRequest, a Actor) []Event {
	var out []Event
	for _, ev := range []Event{
		EventAssign, EventAccept, EventStart, EventComplete, EventSubmitQuote,
		EventApproveQuote, EventRejectQuote, EventAdminApprove, EventMarkPaid, EventPay, EventCancel,
	} {
		if m.Check(job, a, ev) == nil {
			out = append(out, ev)
		}
	}
	return out
}

// ExpectStatus enforces a caller-supplied precondition on the current status.
func ExpectStatus(job *models.JobRequest, expected string) error {
	if expected == "" {
		return nil
	}
	if !models.JobStatus(expected).Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, expected)
	}
	if models.JobStatus(expected) != job.Status {
		return fmt.Errorf("%w: expected status %s but job is %s", ErrConflict, expected, job.Status)
	}
	return nil
}

// CheckInvariant: Pending has no craftsman, every later non-cancelled status has one.
func CheckInvariant(job *models.JobRequest) error {
	switch job.Status {
	case models.JobPending:
		if job.CraftsmanID != nil {
			return fmt.Errorf("%w: pending job has a craftsman", ErrConflict)
		}
	case models.JobCancelled:
	default:
		if job.CraftsmanID == nil {
			return fmt.Errorf("%w: %s job has no craftsman", ErrConflict, job.Status)
		}
	}
	return nil
}

func (m *Machine) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func contains(list []models.JobStatus, s models.JobStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
