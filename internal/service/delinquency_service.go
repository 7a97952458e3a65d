package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tuition-portal-api/internal/models"
	"github.com/noah-isme/tuition-portal-api/pkg/jobs"
)

type delinquentLister interface {
	ListDelinquent(ctx context.Context, graceDays int, asOf time.Time) ([]string, error)
}

type suspensionSetter interface {
	SetSuspension(ctx context.Context, enrollmentID string, req SetSuspensionRequest, actorID string) (*models.FinancialStatus, error)
}

// delinquencyActor is the audit identity used for sweeper-driven changes.
const delinquencyActor = "system:delinquency"

// DelinquencyService is the background workflow that owns the is_suspended
// flag. It periodically finds enrollments whose grace window lapsed with an
// outstanding balance and suspends them through a worker queue, so a slow or
// failing enrollment never stalls the rest of the sweep.
type DelinquencyService struct {
	statuses delinquentLister
	finance  suspensionSetter
	queue    *jobs.Queue
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
}

// NewDelinquencyService constructs DelinquencyService. The queue is created
// here and started by Run.
func NewDelinquencyService(statuses delinquentLister, finance suspensionSetter, logger *zap.Logger, interval time.Duration) *DelinquencyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	s := &DelinquencyService{
		statuses: statuses,
		finance:  finance,
		logger:   logger,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.queue = jobs.NewQueue("delinquency", s.handleJob, jobs.QueueConfig{
		Workers: 2,
		Logger:  logger,
	})
	return s
}

// Run starts the worker queue and sweeps on the configured interval until the
// context is cancelled. An initial sweep runs immediately.
func (s *DelinquencyService) Run(ctx context.Context) {
	s.queue.Start(ctx)
	defer s.queue.Stop()

	if err := s.Sweep(ctx); err != nil {
		s.logger.Warn("delinquency sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Warn("delinquency sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep enqueues a suspension job for every delinquent enrollment.
func (s *DelinquencyService) Sweep(ctx context.Context) error {
	ids, err := s.statuses.ListDelinquent(ctx, graceWindowDays, s.now())
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.queue.Enqueue(jobs.Job{ID: id, Type: "suspend", Payload: id}); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		s.logger.Info("delinquency sweep enqueued suspensions", zap.Int("count", len(ids)))
	}
	return nil
}

func (s *DelinquencyService) handleJob(ctx context.Context, job jobs.Job) error {
	_, err := s.finance.SetSuspension(ctx, job.Payload, SetSuspensionRequest{Suspended: true}, delinquencyActor)
	return err
}
