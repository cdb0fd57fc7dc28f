package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/jobflow"
	"github.com/JAY4T/kaakazini/internal/metrics"
	"github.com/JAY4T/kaakazini/internal/models"
	"github.com/JAY4T/kaakazini/internal/services/mpesa"
	"github.com/JAY4T/kaakazini/internal/utils"
)

type PaymentResult struct {
	Job      *View                  `json:"job"`
	Attempt  *models.PaymentAttempt `json:"attempt"`
	Response json.RawMessage        `json:"response,omitempty"`
}

// InitiatePayment sends an STK push for the craftsman's share of the job.
// The job row is locked only while the attempt is opened and while the
// result is recorded; the provider call itself runs outside any transaction.
func (s *Service) InitiatePayment(ctx context.Context, id uuid.UUID, a jobflow.Actor, expectedStatus string) (*PaymentResult, error) {
	var (
		attempt *models.PaymentAttempt
		req     mpesa.STKPushRequest
	)
	_, err := s.repo.Mutate(ctx, id, func(tx Tx, job *models.JobRequest) error {
		if err := s.machine.Check(job, a, jobflow.EventPay); err != nil {
			return err
		}
		if err := jobflow.ExpectStatus(job, expectedStatus); err != nil {
			return err
		}

		craftsman, err := tx.Craftsman(ctx, *job.CraftsmanID)
		if err != nil {
			return err
		}
		if craftsman.User == nil || craftsman.User.PhoneNumber == "" {
			return apperr.Validation("craftsman has no phone number")
		}
		total, ok := Amount(job)
		if !ok {
			return apperr.Validation("job has no budget or quoted amount")
		}
		_, net := Split(total, s.opts.FeePercent)
		if net <= 0 {
			return apperr.Validation("nothing to pay after the company fee")
		}

		last, err := tx.LatestAttempt(ctx, job.ID)
		if err != nil {
			return err
		}
		n := 1
		if last != nil {
			n = last.Attempt + 1
			if last.Status == models.PaymentAttemptPending {
				if s.now().Sub(last.CreatedAt) < s.opts.AttemptTTL {
					return apperr.Conflict("a payment request for this job is already in progress")
				}
				last.Status = models.PaymentAttemptExpired
				last.Error = "superseded by a new attempt"
				if err := tx.SaveAttempt(ctx, last); err != nil {
					return err
				}
			}
		}

		phone := utils.NormalizePhone(craftsman.User.PhoneNumber, s.opts.CountryCode)
		attempt = &models.PaymentAttempt{
			JobID:          job.ID,
			Attempt:        n,
			IdempotencyKey: models.PaymentIdempotencyKey(job.ID, n),
			InitiatedBy:    a.UserID,
			Phone:          phone,
			Amount:         net,
			Status:         models.PaymentAttemptPending,
		}
		req = mpesa.STKPushRequest{
			Amount:      net,
			PhoneNumber: phone,
			Reference:   attempt.IdempotencyKey,
			Description: fmt.Sprintf("Payment for %s job", job.Service),
		}
		return tx.SaveAttempt(ctx, attempt)
	})
	if err != nil {
		metrics.RecordTransition(string(jobflow.EventPay), err)
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{"job": id, "attempt": attempt.Attempt, "key": attempt.IdempotencyKey})
	pctx, cancel := context.WithTimeout(ctx, s.opts.PaymentTimeout)
	start := time.Now()
	res, pushErr := s.gateway.STKPush(pctx, req, attempt.IdempotencyKey)
	cancel()

	switch {
	case pushErr != nil:
		metrics.RecordPayment("failed", time.Since(start))
		log.WithError(pushErr).Error("stk push failed")
	case !res.Accepted:
		metrics.RecordPayment("rejected", time.Since(start))
		log.WithField("http_status", res.HTTPStatus).Warn("stk push rejected: " + res.Message)
	default:
		metrics.RecordPayment("accepted", time.Since(start))
		log.Info("stk push accepted")
	}

	// The caller's context may already be cancelled; the outcome still has to be recorded.
	rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer rcancel()

	var previous *uuid.UUID
	var applyErr error
	job, err := s.repo.Mutate(rctx, id, func(tx Tx, job *models.JobRequest) error {
		switch {
		case pushErr != nil:
			attempt.Status = models.PaymentAttemptFailed
			attempt.Error = pushErr.Error()
		case !res.Accepted:
			attempt.Status = models.PaymentAttemptFailed
			attempt.Error = res.Message
			attempt.Response = datatypes.JSON(res.Raw)
		default:
			attempt.Status = models.PaymentAttemptSucceeded
			attempt.Response = datatypes.JSON(res.Raw)
			previous = job.CraftsmanID
			if applyErr = s.machine.Apply(job, a, jobflow.EventPay, jobflow.Input{}); applyErr != nil {
				attempt.Error = "provider accepted but job could not be marked paid: " + applyErr.Error()
			} else {
				s.fillPayment(job)
			}
		}
		return tx.SaveAttempt(rctx, attempt)
	})
	if err != nil {
		metrics.RecordTransition(string(jobflow.EventPay), err)
		log.WithError(err).Error("record payment attempt")
		return nil, err
	}

	switch {
	case pushErr != nil:
		err = &apperr.Upstream{Provider: "mpesa", Message: "Payment initiation failed.", Detail: pushErr.Error(), Err: pushErr}
	case !res.Accepted:
		err = &apperr.Upstream{Provider: "mpesa", Rejected: true, Message: "Payment failed.", Detail: res.Message, Response: res.Raw}
	case applyErr != nil:
		log.WithError(applyErr).Error("payment accepted for a job that moved on")
		err = applyErr
	}
	metrics.RecordTransition(string(jobflow.EventPay), err)
	if err != nil {
		return nil, err
	}

	s.announce(ctx, job, jobflow.EventPay, previous)
	return &PaymentResult{Job: s.view(job, a), Attempt: attempt, Response: res.Raw}, nil
}

// Attempts lists the payment attempts of a job the caller can see.
func (s *Service) Attempts(ctx context.Context, id uuid.UUID, a jobflow.Actor) ([]models.PaymentAttempt, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(job, a) {
		return nil, apperr.Forbidden("not your job")
	}
	out, err := s.repo.Attempts(ctx, id)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.PaymentAttempt{}
	}
	return out, nil
}

// ExpireStalePayments closes attempts that never got a final answer.
func (s *Service) ExpireStalePayments(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireAttempts(ctx, s.now().Add(-s.opts.AttemptTTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("count", n).Info("expired stale payment attempts")
	}
	return n, nil
}
