package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-portal-api/internal/models"
)

// FinanceRepository persists the per-enrollment financial status projection.
// The projection is a single row per (student, class) pair, overwritten on
// every recompute.
type FinanceRepository struct {
	db *sqlx.DB
}

// NewFinanceRepository constructs the repository.
func NewFinanceRepository(db *sqlx.DB) *FinanceRepository {
	return &FinanceRepository{db: db}
}

const financeColumns = `id, enrollment_id, student_id, class_id, total_fee, paid_amount, balance,
        registration_paid, registration_paid_at, block1_paid, block1_paid_at, block2_paid, block2_paid_at,
        current_block, is_cleared, is_suspended, next_payment_due, updated_at`

// FindByEnrollment returns the projection for an enrollment.
func (r *FinanceRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.FinancialStatus, error) {
	query := fmt.Sprintf(`SELECT %s FROM financial_statuses WHERE enrollment_id = $1`, financeColumns)
	var status models.FinancialStatus
	if err := r.db.GetContext(ctx, &status, query, enrollmentID); err != nil {
		return nil, err
	}
	return &status, nil
}

// FindByStudentAndClass returns the projection keyed by the pair.
func (r *FinanceRepository) FindByStudentAndClass(ctx context.Context, studentID, classID string) (*models.FinancialStatus, error) {
	query := fmt.Sprintf(`SELECT %s FROM financial_statuses WHERE student_id = $1 AND class_id = $2`, financeColumns)
	var status models.FinancialStatus
	if err := r.db.GetContext(ctx, &status, query, studentID, classID); err != nil {
		return nil, err
	}
	return &status, nil
}

// Upsert writes the projection for an enrollment. Recomputation does not own
// is_suspended or next_payment_due, so on conflict those columns are left
// untouched: a suspension applied between the caller's read and this write
// survives. The values on the provided status only seed a brand new row.
func (r *FinanceRepository) Upsert(ctx context.Context, status *models.FinancialStatus) error {
	if status.ID == "" {
		status.ID = uuid.NewString()
	}
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO financial_statuses (id, enrollment_id, student_id, class_id, total_fee, paid_amount, balance,
            registration_paid, registration_paid_at, block1_paid, block1_paid_at, block2_paid, block2_paid_at,
            current_block, is_cleared, is_suspended, next_payment_due, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
        ON CONFLICT (enrollment_id) DO UPDATE SET
            total_fee = EXCLUDED.total_fee,
            paid_amount = EXCLUDED.paid_amount,
            balance = EXCLUDED.balance,
            registration_paid = EXCLUDED.registration_paid,
            registration_paid_at = EXCLUDED.registration_paid_at,
            block1_paid = EXCLUDED.block1_paid,
            block1_paid_at = EXCLUDED.block1_paid_at,
            block2_paid = EXCLUDED.block2_paid,
            block2_paid_at = EXCLUDED.block2_paid_at,
            current_block = EXCLUDED.current_block,
            is_cleared = EXCLUDED.is_cleared,
            updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query,
		status.ID, status.EnrollmentID, status.StudentID, status.ClassID,
		status.TotalFee, status.PaidAmount, status.Balance,
		status.RegistrationPaid, status.RegistrationAt,
		status.Block1Paid, status.Block1PaidAt,
		status.Block2Paid, status.Block2PaidAt,
		status.CurrentBlock, status.IsCleared, status.IsSuspended,
		status.NextPaymentDue, status.UpdatedAt); err != nil {
		return fmt.Errorf("upsert financial status: %w", err)
	}
	return nil
}

// ListDelinquent returns enrollment IDs whose grace window has lapsed with an
// outstanding balance and which are not suspended yet. Free courses never
// qualify.
func (r *FinanceRepository) ListDelinquent(ctx context.Context, graceDays int, asOf time.Time) ([]string, error) {
	const query = `SELECT fs.enrollment_id
        FROM financial_statuses fs
        JOIN classes cl ON cl.id = fs.class_id
        WHERE fs.is_cleared = FALSE
          AND fs.is_suspended = FALSE
          AND fs.total_fee > 0
          AND cl.start_date + make_interval(days => $2) < $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, asOf, graceDays); err != nil {
		return nil, fmt.Errorf("list delinquent enrollments: %w", err)
	}
	return ids, nil
}

// UpdateSuspension flips only the advisory suspension flag. The flag is owned
// by the delinquency workflow, not by recomputation.
func (r *FinanceRepository) UpdateSuspension(ctx context.Context, enrollmentID string, suspended bool, updatedAt time.Time) error {
	const query = `UPDATE financial_statuses SET is_suspended = $2, updated_at = $3 WHERE enrollment_id = $1`
	result, err := r.db.ExecContext(ctx, query, enrollmentID, suspended, updatedAt)
	if err != nil {
		return fmt.Errorf("update suspension: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update suspension rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update suspension: no projection for enrollment %s", enrollmentID)
	}
	return nil
}
