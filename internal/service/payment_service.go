package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-portal-api/internal/models"
	appErrors "github.com/noah-isme/tuition-portal-api/pkg/errors"
	"github.com/noah-isme/tuition-portal-api/pkg/export"
)

type paymentRepository interface {
	Create(ctx context.Context, payment *models.PaymentRecord) error
	FindByID(ctx context.Context, id string) (*models.PaymentRecord, error)
	CompletePending(ctx context.Context, id, actorID string, completedAt time.Time) (bool, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.PaymentRecord, error)
}

type projectionRecomputer interface {
	Recompute(ctx context.Context, enrollmentID string) (*models.FinancialStatus, error)
}

// RecordPaymentRequest creates a pending ledger entry.
type RecordPaymentRequest struct {
	EnrollmentID string          `json:"enrollment_id" validate:"required"`
	Amount       decimal.Decimal `json:"amount"`
	Purpose      string          `json:"purpose" validate:"required"`
}

// CompletePaymentResult reports whether the completion was applied. A payment
// that was already completed, or does not exist in pending state, yields
// Applied=false without error.
type CompletePaymentResult struct {
	Applied bool                    `json:"applied"`
	Payment *models.PaymentRecord   `json:"payment,omitempty"`
	Status  *models.FinancialStatus `json:"status,omitempty"`
}

// PaymentService owns the payment ledger workflows.
type PaymentService struct {
	repo        paymentRepository
	enrollments enrollmentReader
	projection  projectionRecomputer
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	now         func() time.Time
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(repo paymentRepository, enrollments enrollmentReader, projection projectionRecomputer, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		repo:        repo,
		enrollments: enrollments,
		projection:  projection,
		audit:       audit,
		validator:   validate,
		logger:      logger,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Record creates a pending payment against an enrollment.
func (s *PaymentService) Record(ctx context.Context, req RecordPaymentRequest, actorID string) (*models.PaymentRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	purpose := models.PaymentPurpose(req.Purpose)
	if !models.KnownPurpose(purpose) {
		return nil, appErrors.Clone(appErrors.ErrUnknownPurpose, "unrecognized invoice purpose: "+req.Purpose)
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrInvalidAmount, "payment amount must be positive")
	}

	if _, err := s.enrollments.FindByID(ctx, req.EnrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	payment := &models.PaymentRecord{
		EnrollmentID: req.EnrollmentID,
		Amount:       req.Amount,
		Purpose:      purpose,
		Status:       models.PaymentStatusPending,
		CreatedAt:    s.now(),
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	s.writeAudit(ctx, actorID, models.AuditActionPaymentRecord, payment.ID)

	return payment, nil
}

// Complete transitions a payment from pending to completed. The underlying
// update is conditional on the current status, so concurrent completion
// requests apply at most once; the losing request observes Applied=false.
// A storage conflict is retried once before surfacing as a transient error.
func (s *PaymentService) Complete(ctx context.Context, paymentID, actorID string) (*CompletePaymentResult, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &CompletePaymentResult{Applied: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	completedAt := s.now()
	applied, err := s.repo.CompletePending(ctx, paymentID, actorID, completedAt)
	if err != nil {
		s.logger.Warn("payment completion conflict, retrying", zap.String("payment_id", paymentID), zap.Error(err))
		applied, err = s.repo.CompletePending(ctx, paymentID, actorID, completedAt)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrTransientStorage.Code, appErrors.ErrTransientStorage.Status, "payment completion failed after retry")
		}
	}

	if !applied {
		return &CompletePaymentResult{Applied: false}, nil
	}

	payment.Status = models.PaymentStatusCompleted
	payment.CompletedBy = &actorID
	payment.CompletedAt = &completedAt

	status, err := s.projection.Recompute(ctx, payment.EnrollmentID)
	if err != nil {
		// The credit is applied; the projection catches up on the next read.
		s.logger.Error("projection recompute failed after completion",
			zap.String("enrollment_id", payment.EnrollmentID), zap.Error(err))
	}

	s.writeAudit(ctx, actorID, models.AuditActionPaymentComplete, paymentID)

	return &CompletePaymentResult{Applied: true, Payment: payment, Status: status}, nil
}

// Ledger returns the full payment history for an enrollment.
func (s *PaymentService) Ledger(ctx context.Context, enrollmentID string) ([]models.PaymentRecord, error) {
	if _, err := s.enrollments.FindByID(ctx, enrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	payments, err := s.repo.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, nil
}

// ExportLedgerCSV renders the ledger for an enrollment as a CSV download.
func (s *PaymentService) ExportLedgerCSV(ctx context.Context, enrollmentID string) ([]byte, string, error) {
	payments, err := s.Ledger(ctx, enrollmentID)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{
		Headers: []string{"ID", "Purpose", "Amount", "Status", "Completed At", "Created At"},
	}
	for _, p := range payments {
		completedAt := ""
		if p.CompletedAt != nil {
			completedAt = p.CompletedAt.Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, []string{
			p.ID,
			string(p.Purpose),
			p.Amount.StringFixed(2),
			string(p.Status),
			completedAt,
			p.CreatedAt.Format(time.RFC3339),
		})
	}

	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render ledger csv")
	}
	filename := fmt.Sprintf("ledger-%s.csv", enrollmentID)
	return payload, filename, nil
}

// Receipt renders a PDF receipt for a completed payment.
func (s *PaymentService) Receipt(ctx context.Context, paymentID string) ([]byte, string, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Status != models.PaymentStatusCompleted {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, "receipt available only for completed payments")
	}

	lines := []export.ReceiptLine{
		{Label: "Payment ID", Value: payment.ID},
		{Label: "Enrollment", Value: payment.EnrollmentID},
		{Label: "Purpose", Value: string(payment.Purpose)},
		{Label: "Amount", Value: payment.Amount.StringFixed(2)},
	}
	if payment.CompletedAt != nil {
		lines = append(lines, export.ReceiptLine{Label: "Completed At", Value: payment.CompletedAt.Format(time.RFC3339)})
	}

	payload, err := s.pdf.RenderReceipt("Payment Receipt", lines)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	filename := fmt.Sprintf("receipt-%s.pdf", paymentID)
	return payload, filename, nil
}

func (s *PaymentService) writeAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	var userID *string
	if actorID != "" {
		actor := actorID
		userID = &actor
	}
	rid := resourceID
	_ = s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "payment",
		ResourceID: &rid,
	})
}
