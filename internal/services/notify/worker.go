package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/JAY4T/kaakazini/internal/metrics"
	"github.com/JAY4T/kaakazini/internal/utils"
)

type Source interface {
	Publisher
	Pop(ctx context.Context, timeout time.Duration) (*Event, error)
}

type EmailSender interface {
	SendEmail(ctx context.Context, toEmail, toName, subject, html string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// BackoffDuration grows exponentially with the attempt number, capped at a minute.
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > time.Minute {
		return time.Minute
	}
	return d
}

type Worker struct {
	src         Source
	email       EmailSender
	sms         SMSSender
	log         *logrus.Logger
	workerCount int
	maxAttempts int
	countryCode string

	PopTimeout time.Duration
	Backoff    func(attempt int) time.Duration

	wg sync.WaitGroup
}

func NewWorker(src Source, email EmailSender, sms SMSSender, log *logrus.Logger, workerCount, maxAttempts int, countryCode string) *Worker {
	if workerCount <= 0 {
		workerCount = 2
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Worker{
		src:         src,
		email:       email,
		sms:         sms,
		log:         log,
		workerCount: workerCount,
		maxAttempts: maxAttempts,
		countryCode: countryCode,
		PopTimeout:  2 * time.Second,
		Backoff:     BackoffDuration,
	}
}

// Start launches the worker goroutines. They stop when ctx is cancelled;
// call Wait to block until they have.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.workerCount; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) run(ctx context.Context, id int) {
	defer w.wg.Done()
	for {
		if ctx.Err() != nil {
			w.log.WithField("worker", id).Debug("notify worker stopping")
			return
		}
		ev, err := w.src.Pop(ctx, w.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.WithError(err).Error("notify: pop event")
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}
		if ev == nil {
			continue
		}
		w.handle(ctx, *ev)
	}
}

func (w *Worker) handle(ctx context.Context, ev Event) {
	err := w.Deliver(ctx, &ev)
	if err == nil {
		return
	}

	entry := w.log.WithFields(logrus.Fields{"type": ev.Type, "email": ev.Email, "attempt": ev.Attempts + 1})
	ev.Attempts++
	if ev.Attempts >= w.maxAttempts {
		entry.WithError(err).Error("notify: giving up")
		return
	}
	entry.WithError(err).Warn("notify: delivery failed, retrying")
	if !sleepCtx(ctx, w.Backoff(ev.Attempts)) {
		return
	}
	if perr := w.src.Publish(ctx, ev); perr != nil {
		entry.WithError(perr).Error("notify: requeue")
	}
}

// Deliver renders ev and sends it on every channel it has an address for
// and has not reached yet. Successful channels are marked on ev so a retry
// only repeats the ones that failed.
func (w *Worker) Deliver(ctx context.Context, ev *Event) error {
	msg, err := Render(*ev)
	if err != nil {
		return err
	}

	var errs []error
	if ev.Email != "" && !ev.EmailSent && w.email != nil {
		err := w.email.SendEmail(ctx, ev.Email, displayName(ev.Name), msg.Subject, msg.HTML)
		metrics.RecordNotification("email", err)
		if err != nil {
			errs = append(errs, err)
		} else {
			ev.EmailSent = true
		}
	}
	if ev.Phone != "" && !ev.SMSSent && msg.SMS != "" && w.sms != nil {
		to := "+" + utils.NormalizePhone(ev.Phone, w.countryCode)
		err := w.sms.SendSMS(ctx, to, msg.SMS)
		metrics.RecordNotification("sms", err)
		if err != nil {
			errs = append(errs, err)
		} else {
			ev.SMSSent = true
		}
	}
	return errors.Join(errs...)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
