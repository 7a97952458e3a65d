package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Block numbers for the installment plan. CurrentBlock is BlockCleared once
// both installments have completed payments.
const (
	BlockOne     = 1
	BlockTwo     = 2
	BlockCleared = 0
)

// FinancialStatus is the per-(student, class) projection derived from the
// payment ledger and the fee schedule. One row per enrollment, overwritten
// on every recompute. IsSuspended and NextPaymentDue are owned by external
// processes and carried through recomputation unchanged.
type FinancialStatus struct {
	ID               string          `db:"id" json:"id"`
	EnrollmentID     string          `db:"enrollment_id" json:"enrollment_id"`
	StudentID        string          `db:"student_id" json:"student_id"`
	ClassID          string          `db:"class_id" json:"class_id"`
	TotalFee         decimal.Decimal `db:"total_fee" json:"total_fee"`
	PaidAmount       decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	Balance          decimal.Decimal `db:"balance" json:"balance"`
	RegistrationPaid bool            `db:"registration_paid" json:"registration_paid"`
	RegistrationAt   *time.Time      `db:"registration_paid_at" json:"registration_paid_at,omitempty"`
	Block1Paid       bool            `db:"block1_paid" json:"block1_paid"`
	Block1PaidAt     *time.Time      `db:"block1_paid_at" json:"block1_paid_at,omitempty"`
	Block2Paid       bool            `db:"block2_paid" json:"block2_paid"`
	Block2PaidAt     *time.Time      `db:"block2_paid_at" json:"block2_paid_at,omitempty"`
	CurrentBlock     int             `db:"current_block" json:"current_block"`
	IsCleared        bool            `db:"is_cleared" json:"is_cleared"`
	IsSuspended      bool            `db:"is_suspended" json:"is_suspended"`
	NextPaymentDue   *time.Time      `db:"next_payment_due" json:"next_payment_due,omitempty"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// AccessState is the mutually exclusive category yielded by the access gate.
type AccessState string

const (
	AccessNotYetOpen   AccessState = "NOT_YET_OPEN"
	AccessFree         AccessState = "FREE_ACCESS"
	AccessPaidComplete AccessState = "PAID_COMPLETE"
	AccessGracePeriod  AccessState = "GRACE_PERIOD"
	AccessRestricted   AccessState = "RESTRICTED"
)

// AccessDecision is the access gate output. Not persisted; recomputed from
// wall-clock time and the latest projection on every evaluation.
type AccessDecision struct {
	State              AccessState `json:"state"`
	CanEnter           bool        `json:"can_enter"`
	Suspended          bool        `json:"suspended"`
	DaysUntilOpen      int         `json:"days_until_open,omitempty"`
	GraceDaysRemaining int         `json:"grace_days_remaining,omitempty"`
	Message            string      `json:"message"`
}
