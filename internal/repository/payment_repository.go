package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/tuition-portal-api/internal/models"
)

// PaymentRepository is the persistence layer of the payment ledger.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a new pending payment record.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.PaymentRecord) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = payment.CreatedAt
	const query = `INSERT INTO payments (id, enrollment_id, amount, purpose, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query, payment.ID, payment.EnrollmentID, payment.Amount, payment.Purpose, payment.Status, payment.CreatedAt, payment.UpdatedAt); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// FindByID returns a payment record by its ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.PaymentRecord, error) {
	const query = `SELECT id, enrollment_id, amount, purpose, status, completed_by, completed_at, created_at, updated_at FROM payments WHERE id = $1`
	var payment models.PaymentRecord
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// CompletePending transitions a payment from PENDING to COMPLETED. The status
// predicate makes the update conditional: a record that is already completed,
// or does not exist, affects zero rows and the method reports applied=false
// without error. Duplicate completion requests therefore never double-credit.
func (r *PaymentRepository) CompletePending(ctx context.Context, id, actorID string, completedAt time.Time) (bool, error) {
	const query = `UPDATE payments
        SET status = $2, completed_by = $3, completed_at = $4, updated_at = $4
        WHERE id = $1 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, id, models.PaymentStatusCompleted, actorID, completedAt, models.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("complete payment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete payment rows affected: %w", err)
	}
	return affected > 0, nil
}

// SumCompleted returns the total of all completed payments for an enrollment.
// Pending records never count.
func (r *PaymentRepository) SumCompleted(ctx context.Context, enrollmentID string) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE enrollment_id = $1 AND status = $2`
	var total decimal.Decimal
	if err := r.db.GetContext(ctx, &total, query, enrollmentID, models.PaymentStatusCompleted); err != nil {
		return decimal.Zero, fmt.Errorf("sum completed payments: %w", err)
	}
	return total, nil
}

// CompletedPurposeDates returns the earliest completion date per purpose for
// an enrollment. Used by the projection to set the per-block paid flags.
func (r *PaymentRepository) CompletedPurposeDates(ctx context.Context, enrollmentID string) (map[models.PaymentPurpose]time.Time, error) {
	const query = `SELECT purpose, MIN(completed_at) AS completed_at
        FROM payments WHERE enrollment_id = $1 AND status = $2 GROUP BY purpose`
	rows := []struct {
		Purpose     models.PaymentPurpose `db:"purpose"`
		CompletedAt time.Time             `db:"completed_at"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, enrollmentID, models.PaymentStatusCompleted); err != nil {
		return nil, fmt.Errorf("completed purposes: %w", err)
	}
	dates := make(map[models.PaymentPurpose]time.Time, len(rows))
	for _, row := range rows {
		dates[row.Purpose] = row.CompletedAt
	}
	return dates, nil
}

// ListByEnrollment returns the full ledger for an enrollment, oldest first.
func (r *PaymentRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.PaymentRecord, error) {
	const query = `SELECT id, enrollment_id, amount, purpose, status, completed_by, completed_at, created_at, updated_at
        FROM payments WHERE enrollment_id = $1 ORDER BY created_at ASC`
	var payments []models.PaymentRecord
	if err := r.db.SelectContext(ctx, &payments, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}
