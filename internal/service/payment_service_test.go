package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-portal-api/internal/models"
	appErrors "github.com/noah-isme/tuition-portal-api/pkg/errors"
)

type paymentRepoStub struct {
	payments     map[string]*models.PaymentRecord
	created      []*models.PaymentRecord
	completeErrs []error
	calls        int
}

func (s *paymentRepoStub) Create(ctx context.Context, payment *models.PaymentRecord) error {
	if payment.ID == "" {
		payment.ID = "pay-new"
	}
	if s.payments == nil {
		s.payments = make(map[string]*models.PaymentRecord)
	}
	copied := *payment
	s.payments[payment.ID] = &copied
	s.created = append(s.created, payment)
	return nil
}

func (s *paymentRepoStub) FindByID(ctx context.Context, id string) (*models.PaymentRecord, error) {
	if p, ok := s.payments[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *paymentRepoStub) CompletePending(ctx context.Context, id, actorID string, completedAt time.Time) (bool, error) {
	call := s.calls
	s.calls++
	if call < len(s.completeErrs) && s.completeErrs[call] != nil {
		return false, s.completeErrs[call]
	}
	p, ok := s.payments[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = models.PaymentStatusCompleted
	p.CompletedBy = &actorID
	p.CompletedAt = &completedAt
	return true, nil
}

func (s *paymentRepoStub) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.PaymentRecord, error) {
	var out []models.PaymentRecord
	for _, p := range s.payments {
		if p.EnrollmentID == enrollmentID {
			out = append(out, *p)
		}
	}
	return out, nil
}

type recomputerStub struct {
	status *models.FinancialStatus
	err    error
	calls  int
}

func (s *recomputerStub) Recompute(ctx context.Context, enrollmentID string) (*models.FinancialStatus, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.status != nil {
		return s.status, nil
	}
	return &models.FinancialStatus{EnrollmentID: enrollmentID}, nil
}

func activeEnrollments() *enrollmentStub {
	return &enrollmentStub{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", ClassID: "class-1", Status: models.EnrollmentStatusActive},
	}}
}

func pendingPayment(id string) *models.PaymentRecord {
	return &models.PaymentRecord{
		ID:           id,
		EnrollmentID: "enr-1",
		Amount:       decimal.NewFromInt(35000),
		Purpose:      models.PurposeBlock1,
		Status:       models.PaymentStatusPending,
	}
}

func TestPaymentServiceRecord(t *testing.T) {
	repo := &paymentRepoStub{}
	audit := &auditStub{}
	svc := NewPaymentService(repo, activeEnrollments(), &recomputerStub{}, audit, nil, nil)

	payment, err := svc.Record(context.Background(), RecordPaymentRequest{
		EnrollmentID: "enr-1",
		Amount:       decimal.NewFromInt(35000),
		Purpose:      "BLOCK1",
	}, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, models.PurposeBlock1, payment.Purpose)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionPaymentRecord, audit.logs[0].Action)
}

func TestPaymentServiceRecordRejectsUnknownPurpose(t *testing.T) {
	svc := NewPaymentService(&paymentRepoStub{}, activeEnrollments(), &recomputerStub{}, nil, nil, nil)

	_, err := svc.Record(context.Background(), RecordPaymentRequest{
		EnrollmentID: "enr-1",
		Amount:       decimal.NewFromInt(100),
		Purpose:      "DONATION",
	}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnknownPurpose.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceRecordRejectsNonPositiveAmount(t *testing.T) {
	svc := NewPaymentService(&paymentRepoStub{}, activeEnrollments(), &recomputerStub{}, nil, nil, nil)

	_, err := svc.Record(context.Background(), RecordPaymentRequest{
		EnrollmentID: "enr-1",
		Amount:       decimal.Zero,
		Purpose:      "BLOCK1",
	}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidAmount.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceRecordUnknownEnrollment(t *testing.T) {
	svc := NewPaymentService(&paymentRepoStub{}, &enrollmentStub{}, &recomputerStub{}, nil, nil, nil)

	_, err := svc.Record(context.Background(), RecordPaymentRequest{
		EnrollmentID: "enr-x",
		Amount:       decimal.NewFromInt(100),
		Purpose:      "BLOCK1",
	}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceCompleteAppliesOnce(t *testing.T) {
	repo := &paymentRepoStub{payments: map[string]*models.PaymentRecord{
		"pay-1": pendingPayment("pay-1"),
	}}
	recomputer := &recomputerStub{}
	svc := NewPaymentService(repo, activeEnrollments(), recomputer, &auditStub{}, nil, nil)

	first, err := svc.Complete(context.Background(), "pay-1", "admin-1")
	require.NoError(t, err)
	assert.True(t, first.Applied)
	require.NotNil(t, first.Payment)
	assert.Equal(t, models.PaymentStatusCompleted, first.Payment.Status)
	assert.Equal(t, 1, recomputer.calls)

	second, err := svc.Complete(context.Background(), "pay-1", "admin-2")
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Nil(t, second.Payment)
	assert.Equal(t, 1, recomputer.calls, "losing completion must not recompute")
}

func TestPaymentServiceCompleteMissingPaymentNotApplied(t *testing.T) {
	svc := NewPaymentService(&paymentRepoStub{}, activeEnrollments(), &recomputerStub{}, nil, nil, nil)

	result, err := svc.Complete(context.Background(), "pay-x", "admin-1")
	require.NoError(t, err)
	assert.False(t, result.Applied)
}

func TestPaymentServiceCompleteRetriesOnceThenSucceeds(t *testing.T) {
	repo := &paymentRepoStub{
		payments:     map[string]*models.PaymentRecord{"pay-1": pendingPayment("pay-1")},
		completeErrs: []error{errors.New("deadlock detected")},
	}
	svc := NewPaymentService(repo, activeEnrollments(), &recomputerStub{}, nil, nil, nil)

	result, err := svc.Complete(context.Background(), "pay-1", "admin-1")
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, 2, repo.calls)
}

func TestPaymentServiceCompleteSurfacesTransientAfterRetry(t *testing.T) {
	repo := &paymentRepoStub{
		payments:     map[string]*models.PaymentRecord{"pay-1": pendingPayment("pay-1")},
		completeErrs: []error{errors.New("deadlock detected"), errors.New("deadlock detected")},
	}
	svc := NewPaymentService(repo, activeEnrollments(), &recomputerStub{}, nil, nil, nil)

	_, err := svc.Complete(context.Background(), "pay-1", "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTransientStorage.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceCompleteSucceedsWhenRecomputeFails(t *testing.T) {
	repo := &paymentRepoStub{payments: map[string]*models.PaymentRecord{
		"pay-1": pendingPayment("pay-1"),
	}}
	svc := NewPaymentService(repo, activeEnrollments(), &recomputerStub{err: errors.New("storage down")}, nil, nil, nil)

	result, err := svc.Complete(context.Background(), "pay-1", "admin-1")
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Nil(t, result.Status)
}

func TestPaymentServiceLedgerUnknownEnrollment(t *testing.T) {
	svc := NewPaymentService(&paymentRepoStub{}, &enrollmentStub{}, &recomputerStub{}, nil, nil, nil)

	_, err := svc.Ledger(context.Background(), "enr-x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceExportLedgerCSV(t *testing.T) {
	completedAt := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	completed := pendingPayment("pay-1")
	completed.Status = models.PaymentStatusCompleted
	completed.CompletedAt = &completedAt
	repo := &paymentRepoStub{payments: map[string]*models.PaymentRecord{"pay-1": completed}}
	svc := NewPaymentService(repo, activeEnrollments(), &recomputerStub{}, nil, nil, nil)

	payload, filename, err := svc.ExportLedgerCSV(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, "ledger-enr-1.csv", filename)
	body := string(payload)
	assert.True(t, strings.Contains(body, "pay-1"))
	assert.True(t, strings.Contains(body, "35000.00"))
}

func TestPaymentServiceReceiptRequiresCompletedPayment(t *testing.T) {
	repo := &paymentRepoStub{payments: map[string]*models.PaymentRecord{
		"pay-1": pendingPayment("pay-1"),
	}}
	svc := NewPaymentService(repo, activeEnrollments(), &recomputerStub{}, nil, nil, nil)

	_, _, err := svc.Receipt(context.Background(), "pay-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceReceiptRendersPDF(t *testing.T) {
	completedAt := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	completed := pendingPayment("pay-1")
	completed.Status = models.PaymentStatusCompleted
	completed.CompletedAt = &completedAt
	repo := &paymentRepoStub{payments: map[string]*models.PaymentRecord{"pay-1": completed}}
	svc := NewPaymentService(repo, activeEnrollments(), &recomputerStub{}, nil, nil, nil)

	payload, filename, err := svc.Receipt(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "receipt-pay-1.pdf", filename)
	assert.True(t, len(payload) > 0)
}
