package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-portal-api/internal/models"
)

type delinquentListerStub struct {
	ids []string
	err error
}

func (s *delinquentListerStub) ListDelinquent(ctx context.Context, graceDays int, asOf time.Time) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ids, nil
}

type suspensionSetterStub struct {
	mu        sync.Mutex
	suspended []string
	done      chan struct{}
	want      int
}

func (s *suspensionSetterStub) SetSuspension(ctx context.Context, enrollmentID string, req SetSuspensionRequest, actorID string) (*models.FinancialStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Suspended {
		s.suspended = append(s.suspended, enrollmentID)
	}
	if s.done != nil && len(s.suspended) == s.want {
		close(s.done)
		s.done = nil
	}
	return &models.FinancialStatus{EnrollmentID: enrollmentID, IsSuspended: req.Suspended}, nil
}

func TestDelinquencyServiceSweepSuspendsLapsedEnrollments(t *testing.T) {
	setter := &suspensionSetterStub{done: make(chan struct{}), want: 2}
	done := setter.done
	svc := NewDelinquencyService(&delinquentListerStub{ids: []string{"enr-1", "enr-2"}}, setter, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.queue.Start(ctx)
	defer svc.queue.Stop()

	require.NoError(t, svc.Sweep(ctx))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for suspension jobs")
	}

	setter.mu.Lock()
	defer setter.mu.Unlock()
	assert.ElementsMatch(t, []string{"enr-1", "enr-2"}, setter.suspended)
}

func TestDelinquencyServiceSweepNothingDelinquent(t *testing.T) {
	setter := &suspensionSetterStub{}
	svc := NewDelinquencyService(&delinquentListerStub{}, setter, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.queue.Start(ctx)
	defer svc.queue.Stop()

	require.NoError(t, svc.Sweep(ctx))
	assert.Empty(t, setter.suspended)
}
