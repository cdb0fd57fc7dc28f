package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper periodically expires payment attempts that were never confirmed.
type Sweeper struct {
	cron *cron.Cron
	svc  *Service
	log  *logrus.Logger
}

func NewSweeper(svc *Service, log *logrus.Logger) *Sweeper {
	return &Sweeper{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		svc:  svc,
		log:  log,
	}
}

// Start schedules the sweep. spec is a cron expression such as "@every 1m".
func (s *Sweeper) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Sweep() {
	if _, err := s.svc.ExpireStalePayments(context.Background()); err != nil {
		s.log.WithError(err).Error("expire stale payment attempts")
	}
}

// Stop waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Every schedules an extra housekeeping task on the same cron.
func (s *Sweeper) Every(spec string, fn func()) error {
	_, err := s.cron.AddFunc(spec, fn)
	return err
}
