package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentPurpose identifies what an invoice or payment is for.
type PaymentPurpose string

const (
	PurposeRegistration PaymentPurpose = "REGISTRATION"
	PurposeBlock1       PaymentPurpose = "BLOCK1"
	PurposeBlock2       PaymentPurpose = "BLOCK2"
	PurposeLateFee      PaymentPurpose = "LATE_FEE"
	PurposeOther        PaymentPurpose = "OTHER"
)

// KnownPurpose reports whether the purpose tag is one of the enumerated values.
func KnownPurpose(p PaymentPurpose) bool {
	switch p {
	case PurposeRegistration, PurposeBlock1, PurposeBlock2, PurposeLateFee, PurposeOther:
		return true
	}
	return false
}

// PaymentStatus is the lifecycle of a payment record. PENDING transitions
// to COMPLETED at most once; COMPLETED is terminal.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
)

// PaymentRecord is one row per attempted payment against an enrollment.
type PaymentRecord struct {
	ID           string          `db:"id" json:"id"`
	EnrollmentID string          `db:"enrollment_id" json:"enrollment_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Purpose      PaymentPurpose  `db:"purpose" json:"purpose"`
	Status       PaymentStatus   `db:"status" json:"status"`
	CompletedBy  *string         `db:"completed_by" json:"completed_by,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}
